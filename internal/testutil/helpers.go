// Package testutil holds helpers shared by tests that need a running API.
package testutil

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/TimurManjosov/gorules/internal/api"
	"github.com/TimurManjosov/gorules/internal/rules"
	"github.com/TimurManjosov/gorules/internal/service"
	"github.com/TimurManjosov/gorules/internal/store"
	"github.com/rs/zerolog"
)

// NewTestServer creates an API server over an in-memory store with the
// default schema.
func NewTestServer(t *testing.T, adminKey string) (*api.Server, *service.Service) {
	t.Helper()
	svc := service.New(store.NewMemoryStore(), service.Options{
		Schema: rules.DefaultSchema(),
		Logger: zerolog.Nop(),
	})
	server := api.NewServer(svc, api.Options{AdminAPIKey: adminKey, Logger: zerolog.Nop()})
	return server, svc
}

// NewHTTPServer starts NewTestServer on a real listener, closed at test end.
func NewHTTPServer(t *testing.T, adminKey string) (*httptest.Server, *service.Service) {
	t.Helper()
	server, svc := NewTestServer(t, adminKey)
	ts := httptest.NewServer(server.Router())
	t.Cleanup(ts.Close)
	return ts, svc
}

// HTTPRequest is a helper for making test HTTP requests.
type HTTPRequest struct {
	Method  string
	Path    string
	Body    string
	Headers map[string]string
}

// Do executes the HTTP request and returns the response recorder.
func (r *HTTPRequest) Do(t *testing.T, handler http.Handler) *httptest.ResponseRecorder {
	t.Helper()
	var body io.Reader
	if r.Body != "" {
		body = bytes.NewBufferString(r.Body)
	}
	req := httptest.NewRequest(r.Method, r.Path, body)
	if r.Body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range r.Headers {
		req.Header.Set(k, v)
	}
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)
	return rr
}

// SeedRules creates one rule per string, in order.
func SeedRules(ctx context.Context, svc *service.Service, ruleStrings ...string) ([]store.Rule, error) {
	out := make([]store.Rule, 0, len(ruleStrings))
	for _, s := range ruleStrings {
		r, err := svc.Create(ctx, s)
		if err != nil {
			return nil, err
		}
		out = append(out, *r)
	}
	return out, nil
}
