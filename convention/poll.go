package convention

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/hypermedia-lab/labclient/metrics"
	"github.com/hypermedia-lab/labclient/servicedef"
)

// StreamingChunkSize is the buffer size used when copying binary results.
const StreamingChunkSize = 10240

// PollOperation follows a long-running operation started by a 202 reply until it reaches
// 100% progress. The status URL is taken from the first status and never changes; every poll
// waits the scope's poll interval and does not follow redirects. A terminal state other than
// success is returned as *OperationFailedError.
func (c *Chain) PollOperation(ctx context.Context, reply *Reply) (*servicedef.OperationStatus, error) {
	statusURL := ""
	for {
		if len(reply.Body) == 0 {
			return nil, fmt.Errorf("%w from query to %s%s", ErrNoStatus, reply.URL, c.formattedNotifications(ctx))
		}
		if err := sleep(ctx, c.state.pollInterval); err != nil {
			return nil, err
		}
		var status servicedef.OperationStatus
		if err := json.Unmarshal(reply.Body, &status); err != nil {
			return nil, fmt.Errorf("malformed operation status from %s: %w", reply.URL, err)
		}
		if statusURL == "" {
			statusURL = status.URL
		}
		if status.Progress < 100 {
			if statusURL == "" {
				return nil, fmt.Errorf("%w: operation status from %s has no url", ErrNoStatus, reply.URL)
			}
			c.state.metrics.PollIssued()
			next, err := c.GetRaw(ctx, statusURL, NoRedirects())
			if err != nil {
				return nil, err
			}
			reply = next
			continue
		}
		if !strings.EqualFold(status.State, servicedef.StateSuccess) {
			c.state.metrics.OperationFinished(metrics.OutcomeFailed)
			return nil, &OperationFailedError{
				Method:        reply.Method,
				URL:           reply.URL,
				State:         status.State,
				Message:       status.Message,
				Notifications: c.formattedNotifications(ctx),
			}
		}
		c.state.metrics.OperationFinished(metrics.OutcomeSuccess)
		return &status, nil
	}
}

// Download streams the body of url into w in StreamingChunkSize pieces and returns the number
// of bytes written. If w has a Flush method it is called at the end.
func (c *Chain) Download(ctx context.Context, url string, w io.Writer, opts ...RequestOption) (int64, error) {
	r := Request{Method: http.MethodGet, URL: url}
	for _, o := range opts {
		o(&r)
	}
	resp, err := c.Do(ctx, r)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	var total int64
	buf := make([]byte, StreamingChunkSize)
	for {
		n, rerr := resp.Body.Read(buf)
		if n > 0 {
			written, werr := w.Write(buf[:n])
			total += int64(written)
			if werr != nil {
				return total, werr
			}
		}
		if errors.Is(rerr, io.EOF) {
			break
		}
		if rerr != nil {
			return total, fmt.Errorf("error reading %s: %w", url, rerr)
		}
	}
	if f, ok := w.(interface{ Flush() error }); ok {
		if err := f.Flush(); err != nil {
			return total, err
		}
	}
	return total, nil
}

// PostAndDownload starts a long-running operation that produces a file, waits for it and
// streams the result into w. Any reply other than 202 is an error.
func (c *Chain) PostAndDownload(ctx context.Context, url string, body interface{}, w io.Writer, opts ...RequestOption) (int64, error) {
	reply, err := c.PostRaw(ctx, url, body, opts...)
	if err != nil {
		return 0, err
	}
	if reply.StatusCode != http.StatusAccepted {
		return 0, fmt.Errorf("unexpected status code %d from POST request to '%s'", reply.StatusCode, reply.URL)
	}
	status, err := c.PollOperation(ctx, reply)
	if err != nil {
		return 0, err
	}
	if status.ResultURL == "" {
		return 0, fmt.Errorf("operation started by POST to '%s' produced no result", reply.URL)
	}
	return c.Download(ctx, status.ResultURL, w)
}

func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
