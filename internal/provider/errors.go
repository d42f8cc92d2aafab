package provider

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrValidation            = errors.New("invalid request")
	ErrNoCapableModel        = errors.New("no capable model")
	ErrNotImplemented        = errors.New("provider not implemented")
	ErrProviderNotConfigured = errors.New("provider not configured")
	ErrUnsupportedCapability = errors.New("unsupported capability")
	ErrUnsupportedExtraction = errors.New("unsupported text extraction")
	ErrNoAPIKey              = errors.New("no api key configured")
)

type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid request: %s: %s", e.Field, e.Reason)
}

func (e *ValidationError) Is(target error) bool { return target == ErrValidation }

type NoCapableModelError struct {
	RequestType RequestType
}

func (e *NoCapableModelError) Error() string {
	return fmt.Sprintf("no capable model for %s requests", e.RequestType)
}

func (e *NoCapableModelError) Is(target error) bool { return target == ErrNoCapableModel }

type NotImplementedError struct {
	Provider  string
	Supported []string
}

func (e *NotImplementedError) Error() string {
	return fmt.Sprintf("provider %q is not implemented; supported providers: %s",
		e.Provider, strings.Join(e.Supported, ", "))
}

func (e *NotImplementedError) Is(target error) bool { return target == ErrNotImplemented }

type UnsupportedCapabilityError struct {
	Provider    string
	Model       string
	RequestType RequestType
}

func (e *UnsupportedCapabilityError) Error() string {
	return fmt.Sprintf("model %s/%s does not support %s requests", e.Provider, e.Model, e.RequestType)
}

func (e *UnsupportedCapabilityError) Is(target error) bool { return target == ErrUnsupportedCapability }

type UnsupportedExtractionError struct {
	Type AttachmentType
}

func (e *UnsupportedExtractionError) Error() string {
	return fmt.Sprintf("cannot extract text from %s attachment", e.Type)
}

func (e *UnsupportedExtractionError) Is(target error) bool { return target == ErrUnsupportedExtraction }

// ErrorKind classifies provider failures.
type ErrorKind string

const (
	KindTimeout     ErrorKind = "timeout"
	KindRateLimit   ErrorKind = "rate_limit"
	KindConnection  ErrorKind = "connection"
	KindServer      ErrorKind = "server"
	KindUnavailable ErrorKind = "unavailable"
	KindAuth        ErrorKind = "auth"
	KindBadRequest  ErrorKind = "bad_request"
	KindNotFound    ErrorKind = "not_found"
	KindUnsupported ErrorKind = "unsupported"
	KindDecode      ErrorKind = "decode"
	KindCanceled    ErrorKind = "canceled"
)

// ProviderError is a failed provider call.
type ProviderError struct {
	Provider   string
	Model      string
	Kind       ErrorKind
	StatusCode int
	Message    string
	Err        error
}

func (e *ProviderError) Error() string {
	var b strings.Builder
	b.WriteString(e.Provider)
	b.WriteString(" api error (")
	b.WriteString(string(e.Kind))
	if e.StatusCode != 0 {
		fmt.Fprintf(&b, ", status %d", e.StatusCode)
	}
	b.WriteString(")")
	switch {
	case e.Message != "":
		b.WriteString(": ")
		b.WriteString(e.Message)
	case e.Err != nil:
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

func (e *ProviderError) Unwrap() error { return e.Err }

// Transient reports whether a retry may succeed.
func (e *ProviderError) Transient() bool {
	switch e.Kind {
	case KindTimeout, KindRateLimit, KindConnection, KindServer, KindUnavailable:
		return true
	default:
		return false
	}
}

// IsTransient reports whether err is a retryable provider failure.
func IsTransient(err error) bool {
	var pe *ProviderError
	if errors.As(err, &pe) {
		return pe.Transient()
	}
	return false
}

// Attempt is one dispatch of a request to a provider.
type Attempt struct {
	Provider string `json:"provider"`
	Model    string `json:"model"`
	Err      error  `json:"-"`
}

// ExhaustedError is returned when the primary provider and every fallback
// failed. Attempts are in dispatch order.
type ExhaustedError struct {
	Attempts []Attempt
}

func (e *ExhaustedError) Error() string {
	parts := make([]string, len(e.Attempts))
	for i, a := range e.Attempts {
		parts[i] = fmt.Sprintf("%s/%s: %v", a.Provider, a.Model, a.Err)
	}
	return "all providers failed: " + strings.Join(parts, "; ")
}

func (e *ExhaustedError) Unwrap() []error {
	errs := make([]error, 0, len(e.Attempts))
	for _, a := range e.Attempts {
		errs = append(errs, a.Err)
	}
	return errs
}

// Providers returns the provider of every attempt in order.
func (e *ExhaustedError) Providers() []string {
	out := make([]string, len(e.Attempts))
	for i, a := range e.Attempts {
		out[i] = a.Provider
	}
	return out
}
