package provider

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
)

const maxErrorMessage = 512

type apiErrorBody struct {
	Error struct {
		Message string `json:"message"`
	} `json:"error"`
}

// NewStatusError classifies a non-2xx provider response. 429, 408 and 5xx are
// transient; every other 4xx is not.
func NewStatusError(providerName, model string, status int, body []byte) *ProviderError {
	kind := KindBadRequest
	switch {
	case status == http.StatusTooManyRequests:
		kind = KindRateLimit
	case status == http.StatusRequestTimeout || status == http.StatusGatewayTimeout:
		kind = KindTimeout
	case status == http.StatusServiceUnavailable:
		kind = KindUnavailable
	case status >= 500:
		kind = KindServer
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		kind = KindAuth
	case status == http.StatusNotFound:
		kind = KindNotFound
	}

	msg := strings.TrimSpace(string(body))
	var parsed apiErrorBody
	if json.Unmarshal(body, &parsed) == nil && parsed.Error.Message != "" {
		msg = parsed.Error.Message
	}
	if len(msg) > maxErrorMessage {
		msg = msg[:maxErrorMessage]
	}
	return &ProviderError{
		Provider:   providerName,
		Model:      model,
		Kind:       kind,
		StatusCode: status,
		Message:    msg,
	}
}

// NewTransportError classifies a failure to complete an HTTP exchange.
func NewTransportError(providerName, model string, err error) *ProviderError {
	kind := KindConnection
	var netErr net.Error
	switch {
	case errors.Is(err, context.Canceled):
		kind = KindCanceled
	case errors.Is(err, context.DeadlineExceeded):
		kind = KindTimeout
	case errors.As(err, &netErr) && netErr.Timeout():
		kind = KindTimeout
	}
	return &ProviderError{Provider: providerName, Model: model, Kind: kind, Err: err}
}

// NewDecodeError wraps an unparseable provider payload.
func NewDecodeError(providerName, model string, err error) *ProviderError {
	return &ProviderError{Provider: providerName, Model: model, Kind: KindDecode, Err: err}
}

// Call performs req and returns the body of a 2xx response. Any other outcome
// is returned as a classified *ProviderError.
func Call(doer HTTPDoer, req *http.Request, providerName, model string) ([]byte, error) {
	resp, err := doer.Do(req)
	if err != nil {
		return nil, NewTransportError(providerName, model, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, NewTransportError(providerName, model, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, NewStatusError(providerName, model, resp.StatusCode, body)
	}
	return body, nil
}

// Open performs req and returns the live response for streaming. The caller
// closes the body.
func Open(doer HTTPDoer, req *http.Request, providerName, model string) (*http.Response, error) {
	resp, err := doer.Do(req)
	if err != nil {
		return nil, NewTransportError(providerName, model, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		defer resp.Body.Close()
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
		return nil, NewStatusError(providerName, model, resp.StatusCode, body)
	}
	return resp, nil
}

// ErrStopStream ends ReadSSE without error.
var ErrStopStream = errors.New("stop stream")

// ReadSSE calls fn with the payload of every "data:" line in r.
func ReadSSE(r io.Reader, fn func(data string) error) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64<<10), 4<<20)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		data, ok := strings.CutPrefix(line, "data:")
		if !ok {
			continue
		}
		if err := fn(strings.TrimSpace(data)); err != nil {
			if errors.Is(err, ErrStopStream) {
				return nil
			}
			return err
		}
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("read event stream: %w", err)
	}
	return nil
}

// SendChunk delivers c unless ctx is done first.
func SendChunk(ctx context.Context, ch chan<- *Chunk, c *Chunk) bool {
	select {
	case ch <- c:
		return true
	case <-ctx.Done():
		return false
	}
}
