package convention

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/hypermedia-lab/labclient/transport"
)

const maxErrorBodyLength = 4096

// Request describes one HTTP call. URL is relative to the scope that makes it. Body may be
// nil, []byte, string, an io.Reader, or anything encoding/json can marshal.
type Request struct {
	Method            string
	URL               string
	Body              interface{}
	Params            map[string]string
	Headers           map[string]string
	Extras            Extras
	SkipNotifications bool
}

// RequestOption adjusts a single Request.
type RequestOption func(*Request)

func Param(name, value string) RequestOption {
	return func(r *Request) { r.Params = mergeMaps(r.Params, map[string]string{name: value}) }
}

func Params(params map[string]string) RequestOption {
	return func(r *Request) { r.Params = mergeMaps(r.Params, params) }
}

func Header(name, value string) RequestOption {
	return func(r *Request) { r.Headers = mergeMaps(r.Headers, map[string]string{name: value}) }
}

func Headers(headers map[string]string) RequestOption {
	return func(r *Request) { r.Headers = mergeMaps(r.Headers, headers) }
}

func RequestExtras(extras Extras) RequestOption {
	return func(r *Request) { r.Extras = r.Extras.Merge(extras) }
}

// NoRedirects returns a redirect reply to the caller instead of following it.
func NoRedirects() RequestOption {
	follow := false
	return func(r *Request) { r.Extras.FollowRedirects = &follow }
}

// NoNotifications skips the notification lookup if the request fails. Notifiers use it for
// their own requests.
func NoNotifications() RequestOption {
	return func(r *Request) { r.SkipNotifications = true }
}

// Reply is a fully read HTTP response.
type Reply struct {
	Method     string
	URL        string
	StatusCode int
	Status     string
	Header     http.Header
	Body       []byte
}

func (r *Reply) Text() string { return string(r.Body) }

// Location returns the Location header, or "" if there is none.
func (r *Reply) Location() string { return r.Header.Get("Location") }

func (r *Reply) DecodeJSON(target interface{}) error {
	if err := json.Unmarshal(r.Body, target); err != nil {
		return fmt.Errorf("malformed JSON from %s: %w", r.URL, err)
	}
	return nil
}

// Request performs r and reads the whole response.
func (c *Chain) Request(ctx context.Context, r Request) (*Reply, error) {
	resp, err := c.Do(ctx, r)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("error reading reply to %s request to '%s': %w", r.Method, resp.Request.URL, err)
	}
	return newReply(resp, body), nil
}

// Do performs r and returns the response with its body unread; the caller must close it.
// Error statuses and login redirects are returned as *ProtocolError with the body consumed.
func (c *Chain) Do(ctx context.Context, r Request) (*http.Response, error) {
	absURL, err := c.ResolveURL(r.URL)
	if err != nil {
		return nil, err
	}
	headers := c.ResolveHeaders(r.Headers)
	params := c.ResolveParams(r.Params)
	extras := c.ResolveExtras(r.Extras)

	u, err := url.Parse(absURL)
	if err != nil {
		return nil, fmt.Errorf("invalid request URL %q: %w", absURL, err)
	}
	if len(params) > 0 {
		q := u.Query()
		for k, v := range params {
			q.Set(k, v)
		}
		u.RawQuery = q.Encode()
	}

	bodyReader, traceBody, err := encodeBody(r.Body)
	if err != nil {
		return nil, fmt.Errorf("cannot encode body of %s request to '%s': %w", r.Method, absURL, err)
	}

	var cancel context.CancelFunc
	if ms, ok := extras.TimeoutMS.Get(); ok && ms > 0 {
		ctx, cancel = context.WithTimeout(ctx, time.Duration(ms)*time.Millisecond)
	}
	if !extras.followsRedirects() {
		ctx = transport.WithoutRedirects(ctx)
	}

	req, err := http.NewRequestWithContext(ctx, r.Method, u.String(), bodyReader)
	if err != nil {
		if cancel != nil {
			cancel()
		}
		return nil, err
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	if c.state.trace {
		c.state.logger.Printf("%s", curlCommand(req, traceBody))
	}

	start := time.Now()
	resp, err := c.state.client.Do(req)
	elapsed := time.Since(start)
	if err != nil {
		if cancel != nil {
			cancel()
		}
		c.state.metrics.ObserveRequest(r.Method, 0, elapsed)
		c.state.logger.Printf("%s %s failed: %s", r.Method, u, err)
		return nil, fmt.Errorf("%s request to '%s' failed: %w", r.Method, u, err)
	}
	c.state.metrics.ObserveRequest(r.Method, resp.StatusCode, elapsed)
	c.state.logger.Printf("%s %s -> %s (%s)", r.Method, u, resp.Status, elapsed)
	if cancel != nil {
		resp.Body = &cancelOnClose{ReadCloser: resp.Body, cancel: cancel}
	}

	if err := c.check(ctx, resp, r, u); err != nil {
		return nil, err
	}
	return resp, nil
}

// check classifies a response. Status codes below 400 are accepted, since a caller that
// disabled redirects wants the 3xx reply itself.
func (c *Chain) check(ctx context.Context, resp *http.Response, r Request, requested *url.URL) error {
	if resp.StatusCode >= 400 {
		defer resp.Body.Close()
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodyLength))
		e := &ProtocolError{
			Method:     r.Method,
			URL:        requested.String(),
			StatusCode: resp.StatusCode,
			Reason:     reasonPhrase(resp.Status, resp.StatusCode),
			Body:       string(body),
			Reply:      newReply(resp, body),
		}
		if !r.SkipNotifications {
			e.Notifications = c.formattedNotifications(ctx)
		}
		return e
	}

	final := resp.Request.URL
	if final != nil && stripQuery(final) != stripQuery(requested) && strings.HasSuffix(final.Path, "/login") {
		defer resp.Body.Close()
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodyLength))
		e := &ProtocolError{
			Method:        r.Method,
			URL:           requested.String(),
			StatusCode:    resp.StatusCode,
			Reason:        reasonPhrase(resp.Status, resp.StatusCode),
			Body:          string(body),
			LoginRedirect: true,
			Reply:         newReply(resp, body),
		}
		if !r.SkipNotifications {
			e.Notifications = c.formattedNotifications(ctx)
		}
		return e
	}
	return nil
}

type notificationCheckKey struct{}

// formattedNotifications returns the scope's error notifications as a suffix for an error
// message, or "" if there are none. A request made while collecting notifications never
// collects them again, and a failure to collect them is ignored.
func (c *Chain) formattedNotifications(ctx context.Context) string {
	if ctx.Value(notificationCheckKey{}) != nil {
		return ""
	}
	n := c.nearestNotifier()
	if n == nil {
		return ""
	}
	msgs, err := n.ErrorNotifications(context.WithValue(ctx, notificationCheckKey{}, true))
	if err != nil {
		c.state.logger.Printf("Unable to get error notifications: %s", err)
		return ""
	}
	if len(msgs) == 0 {
		return ""
	}
	return "\nError notification(s): " + strings.Join(msgs, "; ")
}

func newReply(resp *http.Response, body []byte) *Reply {
	r := &Reply{
		StatusCode: resp.StatusCode,
		Status:     resp.Status,
		Header:     resp.Header,
		Body:       body,
	}
	if resp.Request != nil {
		r.Method = resp.Request.Method
		r.URL = resp.Request.URL.String()
	}
	return r
}

func encodeBody(body interface{}) (io.Reader, []byte, error) {
	switch b := body.(type) {
	case nil:
		return nil, nil, nil
	case []byte:
		return bytes.NewReader(b), b, nil
	case string:
		return strings.NewReader(b), []byte(b), nil
	case io.Reader:
		return b, nil, nil
	}
	data, err := json.Marshal(body)
	if err != nil {
		return nil, nil, err
	}
	return bytes.NewReader(data), data, nil
}

func stripQuery(u *url.URL) string {
	cp := *u
	cp.RawQuery = ""
	cp.Fragment = ""
	return cp.String()
}

type cancelOnClose struct {
	io.ReadCloser
	cancel context.CancelFunc
}

func (c *cancelOnClose) Close() error {
	err := c.ReadCloser.Close()
	c.cancel()
	return err
}
