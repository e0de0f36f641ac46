// Package httpclienttest provides a fake platform API for tests of code built
// on httpclient.
package httpclienttest

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/logiride/client/internal/domain/identity"
	"github.com/logiride/client/internal/infrastructure/config"
	"github.com/logiride/client/internal/infrastructure/httpclient"
)

// HandlerFunc answers one request with a status and a JSON body
type HandlerFunc func(r *http.Request, body []byte) (int, any)

// Call records one request the server received
type Call struct {
	Method string
	Path   string
	Auth   string
	Body   []byte
}

// Decode unmarshals the request body into v
func (c Call) Decode(v any) error {
	return json.Unmarshal(c.Body, v)
}

// Server is an httptest server routing on method and exact path
type Server struct {
	*httptest.Server

	mu     sync.Mutex
	routes map[string]HandlerFunc
	calls  []Call
}

// OK wraps data in a success envelope
func OK(data any) map[string]any {
	return map[string]any{"code": 200, "message": "success", "data": data}
}

// Fail builds an error envelope
func Fail(code int, message string) map[string]any {
	return map[string]any{"code": code, "message": message, "data": nil}
}

// NewServer starts a server that is closed when the test ends
func NewServer(t testing.TB) *Server {
	s := &Server{routes: make(map[string]HandlerFunc)}
	s.Server = httptest.NewServer(http.HandlerFunc(s.serve))
	t.Cleanup(s.Close)
	return s
}

// Handle registers h for method and path
func (s *Server) Handle(method, path string, h HandlerFunc) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.routes[method+" "+path] = h
}

// Reply registers a handler that always answers 200 with data in an envelope
func (s *Server) Reply(method, path string, data any) {
	s.Handle(method, path, func(*http.Request, []byte) (int, any) {
		return http.StatusOK, OK(data)
	})
}

// Calls returns the requests received so far
func (s *Server) Calls() []Call {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Call, len(s.calls))
	copy(out, s.calls)
	return out
}

// Last returns the most recent request to path
func (s *Server) Last(path string) (Call, bool) {
	calls := s.Calls()
	for i := len(calls) - 1; i >= 0; i-- {
		if calls[i].Path == path {
			return calls[i], true
		}
	}
	return Call{}, false
}

// Client builds an httpclient.Client pointed at the server
func (s *Server) Client(t testing.TB, sessions identity.SessionStore, opts ...httpclient.Option) *httpclient.Client {
	t.Helper()
	c, err := httpclient.New(config.APIConfig{BaseURL: s.URL}, sessions, opts...)
	require.NoError(t, err)
	return c
}

func (s *Server) serve(w http.ResponseWriter, r *http.Request) {
	body, _ := io.ReadAll(r.Body)

	s.mu.Lock()
	s.calls = append(s.calls, Call{
		Method: r.Method,
		Path:   r.URL.Path,
		Auth:   r.Header.Get("Authorization"),
		Body:   body,
	})
	h, ok := s.routes[r.Method+" "+r.URL.Path]
	s.mu.Unlock()

	status, payload := http.StatusNotFound, any(Fail(http.StatusNotFound, "Not found"))
	if ok {
		status, payload = h(r, body)
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
