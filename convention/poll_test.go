package convention

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hypermedia-lab/labclient/labtest"
	"github.com/hypermedia-lab/labclient/resource"
)

func newPollingChain(srv *labtest.Server) *Chain {
	return New(srv.APIURL(), WithPollInterval(time.Millisecond))
}

func TestPostPollsOperationThenFetchesResult(t *testing.T) {
	srv := labtest.NewServer()
	defer srv.Close()
	srv.AddOperation(labtest.Operation{
		Method:     "POST",
		Path:       "/api/v1/sessions/1/operations/start",
		StatusPath: "/api/v1/sessions/1/operations/start/8",
		Progress:   []float64{0, 40, 100},
		FinalState: "SUCCESS",
		ResultPath: "/api/v1/sessions/1/operations/start/8/result",
	})
	srv.HandleJSON("GET", "/api/v1/sessions/1/operations/start/8/result", 200, map[string]interface{}{"testId": 12})

	v, err := newPollingChain(srv).Post(context.Background(), "sessions/1/operations/start", nil)
	require.NoError(t, err)
	id, err := v.(*resource.Object).IntField("testId")
	require.NoError(t, err)
	assert.Equal(t, int64(12), id)
	url, err := v.(*resource.Object).URL()
	require.NoError(t, err)
	assert.Equal(t, srv.URL+"/api/v1/sessions/1/operations/start/8/result", url)

	assert.Equal(t, 2, srv.Count("GET", "/api/v1/sessions/1/operations/start/8"))
	assert.Equal(t, 1, srv.Count("GET", "/api/v1/sessions/1/operations/start/8/result"))
}

func TestPostOperationFailureSkipsResult(t *testing.T) {
	srv := labtest.NewServer()
	defer srv.Close()
	srv.AddOperation(labtest.Operation{
		Method:     "POST",
		Path:       "/api/v1/op",
		StatusPath: "/api/v1/op/1",
		Progress:   []float64{0, 40, 100},
		FinalState: "failure",
		Message:    "port is down",
		ResultPath: "/api/v1/op/1/result",
	})

	c := newPollingChain(srv)
	c.SetNotifier(NotifierFunc(func(ctx context.Context) ([]string, error) {
		return []string{"chassis unreachable"}, nil
	}))
	_, err := c.Post(context.Background(), "op", nil)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrOperationFailed))

	var failed *OperationFailedError
	require.True(t, errors.As(err, &failed))
	assert.Equal(t, "failure", failed.State)
	assert.Equal(t, "port is down", failed.Message)
	assert.Equal(t, "GET", failed.Method)
	assert.Equal(t, "GET to '"+srv.URL+"/api/v1/op/1' returned error. State: 'failure' Message: 'port is down'"+
		"\nError notification(s): chassis unreachable", err.Error())
	assert.Equal(t, 0, srv.Count("GET", "/api/v1/op/1/result"))
}

func TestPollStatusURLIsFixed(t *testing.T) {
	srv := labtest.NewServer()
	defer srv.Close()
	srv.Handle("POST", "/api/v1/op", labtest.JSONResponse(202,
		map[string]interface{}{"url": srv.URL + "/api/v1/op/1", "progress": 10, "state": "IN_PROGRESS"}, nil))
	srv.HandleSequence("GET", "/api/v1/op/1",
		labtest.JSONResponse(200, map[string]interface{}{"url": srv.URL + "/api/v1/elsewhere", "progress": 50}, nil),
		labtest.JSONResponse(200, map[string]interface{}{"progress": 100, "state": "Success"}, nil))

	c := newPollingChain(srv)
	reply, err := c.PostRaw(context.Background(), "op", nil)
	require.NoError(t, err)
	status, err := c.PollOperation(context.Background(), reply)
	require.NoError(t, err)
	assert.Equal(t, 100.0, status.Progress)
	assert.Equal(t, 2, srv.Count("GET", "/api/v1/op/1"))
	assert.Equal(t, 0, srv.Count("GET", "/api/v1/elsewhere"))
}

func TestAcceptedWithoutStatus(t *testing.T) {
	srv := labtest.NewServer()
	defer srv.Close()
	srv.Handle("POST", "/api/v1/op", labtest.TextResponse(202, ""))

	_, err := newPollingChain(srv).Post(context.Background(), "op", nil)
	assert.True(t, errors.Is(err, ErrNoStatus))
}

func TestPollHonorsContext(t *testing.T) {
	srv := labtest.NewServer()
	defer srv.Close()
	srv.AddOperation(labtest.Operation{
		Method:     "POST",
		Path:       "/api/v1/op",
		StatusPath: "/api/v1/op/1",
		Progress:   []float64{0, 10},
		FinalState: "IN_PROGRESS",
	})

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err := newPollingChain(srv).Post(ctx, "op", nil)
	assert.True(t, errors.Is(err, context.DeadlineExceeded))
}

type chunkRecorder struct {
	bytes.Buffer
	writes  []int
	flushed bool
}

func (c *chunkRecorder) Write(p []byte) (int, error) {
	c.writes = append(c.writes, len(p))
	return c.Buffer.Write(p)
}

func (c *chunkRecorder) Flush() error {
	c.flushed = true
	return nil
}

func TestPostAndDownloadStreamsInChunks(t *testing.T) {
	payload := bytes.Repeat([]byte("0123456789"), 2500)
	srv := labtest.NewServer()
	defer srv.Close()
	srv.AddOperation(labtest.Operation{
		Method:     "POST",
		Path:       "/api/v1/diagnostics/sessions/3/diags",
		StatusPath: "/api/v1/diagnostics/operations/1",
		Progress:   []float64{0, 100},
		FinalState: "SUCCESS",
		ResultPath: "/api/v1/diagnostics/operations/1/result",
	})
	srv.Handle("GET", "/api/v1/diagnostics/operations/1/result", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/zip")
		_, _ = w.Write(payload)
	}))

	var out chunkRecorder
	n, err := newPollingChain(srv).PostAndDownload(context.Background(), "diagnostics/sessions/3/diags",
		map[string]bool{"clientOnly": false}, &out)
	require.NoError(t, err)
	assert.Equal(t, int64(len(payload)), n)
	assert.Equal(t, payload, out.Bytes())
	assert.True(t, out.flushed)
	for _, w := range out.writes {
		assert.LessOrEqual(t, w, StreamingChunkSize)
	}
}

func TestPostAndDownloadRequiresAccepted(t *testing.T) {
	srv := labtest.NewServer()
	defer srv.Close()
	srv.HandleJSON("POST", "/api/v1/results/4/zip", 200, map[string]interface{}{})

	var out bytes.Buffer
	_, err := newPollingChain(srv).PostAndDownload(context.Background(), "results/4/zip", nil, &out)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unexpected status code 200")
}
