// Package identity tags each request with a request id and the calling
// client. There is no end-user authentication; the client id only scopes
// rate limits and usage reports.
package identity

import (
	"context"
	"net"
	"net/http"
	"strings"

	"github.com/google/uuid"
)

const (
	ClientIDHeader  = "X-Client-ID"
	RequestIDHeader = "X-Request-ID"
)

type Middleware func(next http.Handler) http.Handler

type contextKey string

const (
	clientIDKey  contextKey = "client_id"
	requestIDKey contextKey = "request_id"
)

// NewMiddleware reads the client id from X-Client-ID, falling back to the
// remote host, and assigns a fresh request id echoed in X-Request-ID.
func NewMiddleware() Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()

			requestID := uuid.New().String()
			ctx = WithRequestID(ctx, requestID)
			w.Header().Set(RequestIDHeader, requestID)

			ctx = WithClientID(ctx, clientID(r))
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func clientID(r *http.Request) string {
	if id := strings.TrimSpace(r.Header.Get(ClientIDHeader)); id != "" {
		return id
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func GetClientID(ctx context.Context) string {
	if id, ok := ctx.Value(clientIDKey).(string); ok {
		return id
	}
	return ""
}

func GetRequestID(ctx context.Context) string {
	if id, ok := ctx.Value(requestIDKey).(string); ok {
		return id
	}
	return ""
}

func WithClientID(ctx context.Context, clientID string) context.Context {
	return context.WithValue(ctx, clientIDKey, clientID)
}

func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, requestIDKey, requestID)
}
