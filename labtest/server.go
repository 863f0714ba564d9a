package labtest

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"

	"github.com/launchdarkly/go-test-helpers/v2/httphelpers"

	"github.com/hypermedia-lab/labclient/logging"
)

// APIPath is the API root path the server's helpers assume, matching a client that connects
// with API version v1.
const APIPath = "/api/v1"

// RecordedRequest is one request received by a Server.
type RecordedRequest struct {
	Method string
	Path   string
	Query  string
	Header http.Header
	Body   []byte
}

type Server struct {
	*httptest.Server
	routes   map[string]http.Handler
	requests []RecordedRequest
	logger   logging.Logger
	lock     sync.Mutex
}

// NewServer starts a plain HTTP server. Call Close when done.
func NewServer() *Server {
	s := newServer()
	s.Server = httptest.NewServer(http.HandlerFunc(s.serveHTTP))
	return s
}

// NewTLSServer starts a server with a self-signed certificate.
func NewTLSServer() *Server {
	s := newServer()
	s.Server = httptest.NewTLSServer(http.HandlerFunc(s.serveHTTP))
	return s
}

func newServer() *Server {
	return &Server{routes: make(map[string]http.Handler), logger: logging.NullLogger()}
}

// SetLogger sets where unmatched requests are reported.
func (s *Server) SetLogger(l logging.Logger) {
	s.lock.Lock()
	s.logger = logging.OrNull(l)
	s.lock.Unlock()
}

// APIURL is the base URL a client should treat as its API root.
func (s *Server) APIURL() string { return s.URL + APIPath }

// Handle routes method and path to h, replacing any previous route.
func (s *Server) Handle(method, path string, h http.Handler) {
	s.lock.Lock()
	s.routes[method+" "+path] = h
	s.lock.Unlock()
}

// HandleJSON answers with status and body encoded as JSON.
func (s *Server) HandleJSON(method, path string, status int, body interface{}) {
	s.Handle(method, path, JSONResponse(status, body, nil))
}

// HandleSequence answers each request with the next handler; the last one repeats.
func (s *Server) HandleSequence(method, path string, first http.Handler, rest ...http.Handler) {
	s.Handle(method, path, httphelpers.SequentialHandler(first, rest...))
}

func (s *Server) Requests() []RecordedRequest {
	s.lock.Lock()
	defer s.lock.Unlock()
	return append([]RecordedRequest(nil), s.requests...)
}

// RequestsTo returns the recorded requests for one route.
func (s *Server) RequestsTo(method, path string) []RecordedRequest {
	var ret []RecordedRequest
	for _, r := range s.Requests() {
		if r.Method == method && r.Path == path {
			ret = append(ret, r)
		}
	}
	return ret
}

func (s *Server) Count(method, path string) int {
	return len(s.RequestsTo(method, path))
}

func (s *Server) serveHTTP(w http.ResponseWriter, req *http.Request) {
	var body []byte
	if req.Body != nil {
		data, err := io.ReadAll(req.Body)
		req.Body.Close()
		if err != nil {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		body = data
	}

	s.lock.Lock()
	s.requests = append(s.requests, RecordedRequest{
		Method: req.Method,
		Path:   req.URL.Path,
		Query:  req.URL.RawQuery,
		Header: req.Header.Clone(),
		Body:   body,
	})
	h := s.routes[req.Method+" "+req.URL.Path]
	logger := s.logger
	s.lock.Unlock()

	if h == nil {
		logger.Printf("Received request for unrecognized route %s %s", req.Method, req.URL.Path)
		w.WriteHeader(http.StatusNotFound)
		return
	}
	req.Body = io.NopCloser(bytes.NewReader(body))
	h.ServeHTTP(w, req)
}

// JSONResponse answers with status and body encoded as JSON, plus any extra headers.
func JSONResponse(status int, body interface{}, headers http.Header) http.Handler {
	data, err := json.Marshal(body)
	if err != nil {
		panic(err)
	}
	h := make(http.Header)
	for k, v := range headers {
		h[k] = v
	}
	h.Set("Content-Type", "application/json")
	return httphelpers.HandlerWithResponse(status, h, data)
}

// TextResponse answers with a plain-text body.
func TextResponse(status int, text string) http.Handler {
	return httphelpers.HandlerWithResponse(status, http.Header{"Content-Type": {"text/plain"}}, []byte(text))
}
