package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hypermedia-lab/labclient/labtest"
	"github.com/hypermedia-lab/labclient/resource"
)

const (
	testAPIKey   = "key-1"
	sessionPath  = labtest.APIPath + "/sessions/7"
	registerPath = sessionPath + "/stats/registration"
	unregPath    = sessionPath + "/stats/deregistration"
	readPath     = sessionPath + "/stats/data/cache"
)

func newLab(t *testing.T) *labtest.Server {
	srv := labtest.NewServer()
	t.Cleanup(srv.Close)
	srv.AddLab(labtest.Lab{APIKey: testAPIKey})
	return srv
}

func execute(args ...string) (string, error) {
	var out bytes.Buffer
	cmd := newRootCommand(&out)
	cmd.SetErr(io.Discard)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func run(t *testing.T, srv *labtest.Server, args ...string) (string, error) {
	t.Helper()
	return execute(append(args, "--site", srv.URL, "--api-key", testAPIKey, "--no-color", "--log-level", "error")...)
}

func TestColumnFilter(t *testing.T) {
	var f columnFilter
	columns := []string{"Frames Tx.", "Frames Rx.", "Valid Frames Rx.", "Port Name"}
	assert.False(t, f.IsDefined())
	assert.Equal(t, columns, f.Select(columns))

	require.NoError(t, f.MustMatch.Set("Frames"))
	require.NoError(t, f.MustNotMatch.Set("^Valid"))
	assert.True(t, f.IsDefined())
	assert.Equal(t, []string{"Frames Tx.", "Frames Rx."}, f.Select(columns))

	require.NoError(t, f.MustNotMatch.Set("Tx"))
	assert.Equal(t, []string{"Frames Rx."}, f.Select(columns))
	assert.Equal(t, `"^Valid" or "Tx"`, f.MustNotMatch.String())
}

func TestRegexListRejectsBadPattern(t *testing.T) {
	var r regexList
	assert.Error(t, r.Set("(unclosed"))
	assert.False(t, r.IsDefined())
	assert.Equal(t, "regex", r.Type())
}

func TestRender(t *testing.T) {
	v, err := resource.Parse([]byte(`{"state": "Active", "id": 7}`))
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, render(&buf, v, formatJSON))
	assert.JSONEq(t, `{"state": "Active", "id": 7}`, buf.String())

	buf.Reset()
	require.NoError(t, render(&buf, v, formatYAML))
	assert.Contains(t, buf.String(), "state: Active\n")

	buf.Reset()
	require.NoError(t, render(&buf, "plain", formatText))
	assert.Equal(t, "plain\n", buf.String())

	assert.Error(t, render(&buf, v, "xml"))
}

func TestParseID(t *testing.T) {
	id, err := parseID("42")
	require.NoError(t, err)
	assert.Equal(t, int64(42), id)

	for _, s := range []string{"", "0", "-3", "abc"} {
		_, err := parseID(s)
		assert.Error(t, err, s)
	}
}

func TestCommandNeedsSite(t *testing.T) {
	_, err := execute("get", "sessions", "--api-key", testAPIKey)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "site.url is required")
}

func TestGetCommand(t *testing.T) {
	srv := newLab(t)
	srv.HandleJSON("GET", sessionPath, http.StatusOK, map[string]interface{}{"id": 7, "state": "Active"})

	out, err := run(t, srv, "get", "sessions/7", "-o", "yaml")
	require.NoError(t, err)
	assert.Contains(t, out, "state: Active")

	out, err = run(t, srv, "get", "sessions/7")
	require.NoError(t, err)
	assert.JSONEq(t, `{"id": 7, "state": "Active"}`, out)

	pings := srv.RequestsTo("GET", labtest.APIPath+"/auth/ping")
	require.NotEmpty(t, pings)
	assert.Equal(t, testAPIKey, pings[0].Header.Get("X-Api-Key"))
}

func TestSessionsCommand(t *testing.T) {
	srv := newLab(t)
	srv.HandleJSON("GET", labtest.APIPath+"/sessions", http.StatusOK,
		[]map[string]interface{}{{"id": 3}, {"id": 7}})

	out, err := run(t, srv, "sessions", "-o", "text")
	require.NoError(t, err)
	assert.Equal(t, "3\n7\n", out)

	out, err = run(t, srv, "sessions")
	require.NoError(t, err)
	assert.JSONEq(t, `[3, 7]`, out)
}

func TestDownloadToStdout(t *testing.T) {
	srv := newLab(t)
	srv.Handle("GET", labtest.APIPath+"/files/log.txt", labtest.TextResponse(http.StatusOK, "line 1\nline 2\n"))

	out, err := run(t, srv, "download", "files/log.txt", "-")
	require.NoError(t, err)
	assert.Equal(t, "line 1\nline 2\n", out)
}

func TestDiagnosticsCommandWritesFile(t *testing.T) {
	srv := newLab(t)
	srv.AddOperation(labtest.Operation{
		Method:     "POST",
		Path:       labtest.APIPath + "/diagnostics/sessions/7/diags",
		StatusPath: labtest.APIPath + "/diagnostics/sessions/7/diags/op",
		Progress:   []float64{100},
		FinalState: "SUCCESS",
		ResultPath: labtest.APIPath + "/diagnostics/sessions/7/diags/op/result",
	})
	srv.Handle("GET", labtest.APIPath+"/diagnostics/sessions/7/diags/op/result",
		labtest.TextResponse(http.StatusOK, "archive"))
	path := filepath.Join(t.TempDir(), "diags.zip")

	out, err := run(t, srv, "diagnostics", "7", path, "--client-only")
	require.NoError(t, err)
	assert.Equal(t, fmt.Sprintf("wrote 7 bytes to %s\n", path), out)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "archive", string(data))

	reqs := srv.RequestsTo("POST", labtest.APIPath+"/diagnostics/sessions/7/diags")
	require.Len(t, reqs, 1)
	assert.JSONEq(t, `{"clientOnly": true}`, string(reqs[0].Body))
}

func TestStatsWatchPrintsSelectedColumns(t *testing.T) {
	srv := newLab(t)
	srv.HandleJSON("GET", sessionPath, http.StatusOK, map[string]interface{}{"id": 7, "state": "Active"})
	srv.HandleJSON("POST", registerPath, http.StatusOK, nil)
	srv.HandleJSON("POST", unregPath, http.StatusOK, nil)
	srv.Handle("POST", readPath, http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		var queries []struct {
			ID string `json:"id"`
		}
		_ = json.NewDecoder(req.Body).Decode(&queries)
		reply := map[string]interface{}{"map": map[string]interface{}{}}
		if len(queries) == 1 {
			reply["map"] = map[string]interface{}{
				queries[0].ID: []interface{}{
					map[string]interface{}{"timestamp": 100, "values": [][]interface{}{{5, 6}}},
				},
			}
		}
		labtest.JSONResponse(http.StatusOK, reply, nil).ServeHTTP(w, req)
	}))

	out, err := run(t, srv, "stats", "watch", "--session", "7",
		"--stat", "Port Statistics:Frames Tx.", "--stat", "Port Statistics:Frames Rx.",
		"--hide", "Rx", "--count", "1")
	require.NoError(t, err)

	assert.Contains(t, out, `hide any matching "Rx"`)
	assert.Contains(t, out, fmt.Sprintf("%12s%12s\n", "Timestamp", "Frames Tx."))
	assert.Contains(t, out, fmt.Sprintf("%12d%12s\n", 100, "5"))
	assert.NotContains(t, out, "Frames Rx.")
	assert.Equal(t, 1, srv.Count("POST", registerPath))
	assert.Equal(t, 1, srv.Count("POST", unregPath))
}

func TestStatsWatchNeedsStats(t *testing.T) {
	srv := newLab(t)
	_, err := run(t, srv, "stats", "watch", "--session", "7")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "--stat")
}
