package identity

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestMiddleware(t *testing.T) {
	var gotClient, gotRequest string
	h := NewMiddleware()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotClient = GetClientID(r.Context())
		gotRequest = GetRequestID(r.Context())
	}))

	req := httptest.NewRequest("GET", "/v1/models", nil)
	req.Header.Set(ClientIDHeader, "cli-7")
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)

	if gotClient != "cli-7" {
		t.Errorf("Expected client cli-7, got %q", gotClient)
	}
	if gotRequest == "" || w.Header().Get(RequestIDHeader) != gotRequest {
		t.Errorf("Expected request id echoed in header, got %q / %q", gotRequest, w.Header().Get(RequestIDHeader))
	}
}

func TestMiddleware_FallsBackToRemoteHost(t *testing.T) {
	var gotClient string
	h := NewMiddleware()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotClient = GetClientID(r.Context())
	}))

	req := httptest.NewRequest("GET", "/v1/models", nil)
	req.RemoteAddr = "10.1.2.3:5555"
	h.ServeHTTP(httptest.NewRecorder(), req)

	if gotClient != "10.1.2.3" {
		t.Errorf("Expected remote host, got %q", gotClient)
	}
}
