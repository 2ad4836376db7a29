package llm

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
)

type ErrorKind string

const (
	ErrKindInput         ErrorKind = "input"
	ErrKindConfig        ErrorKind = "config"
	ErrKindTransport     ErrorKind = "transport"
	ErrKindAuth          ErrorKind = "auth"
	ErrKindRateLimit     ErrorKind = "rate_limit"
	ErrKindBadRequest    ErrorKind = "bad_request"
	ErrKindContentFilter ErrorKind = "content_filter"
	ErrKindServer        ErrorKind = "server"
	ErrKindTimeout       ErrorKind = "timeout"
	ErrKindCanceled      ErrorKind = "canceled"
	ErrKindParse         ErrorKind = "parse"
	ErrKindUnknown       ErrorKind = "unknown"
)

// Error is the single failure shape crossing the provider boundary. Raw SDK
// and transport errors are kept as Cause but never surface on their own.
type Error struct {
	Provider   string
	Kind       ErrorKind
	StatusCode int
	Message    string
	Cause      error
}

func (e *Error) Error() string {
	msg := e.Message
	if msg == "" {
		msg = string(e.Kind)
	}
	if e.Provider != "" {
		return fmt.Sprintf("llm %s: %s: %s", e.Provider, e.Kind, msg)
	}
	return fmt.Sprintf("llm: %s: %s", e.Kind, msg)
}

func (e *Error) Unwrap() error { return e.Cause }

// AsError extracts an *Error from err's chain.
func AsError(err error) (*Error, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}

// IsKind reports whether err carries the given kind.
func IsKind(err error, kind ErrorKind) bool {
	e, ok := AsError(err)
	return ok && e.Kind == kind
}

func configError(format string, args ...any) *Error {
	return &Error{Kind: ErrKindConfig, Message: fmt.Sprintf(format, args...)}
}

// KindFromStatus maps an upstream HTTP status code to an ErrorKind.
func KindFromStatus(status int) ErrorKind {
	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return ErrKindAuth
	case status == http.StatusTooManyRequests:
		return ErrKindRateLimit
	case status == http.StatusRequestTimeout || status == http.StatusGatewayTimeout:
		return ErrKindTimeout
	case status == http.StatusBadRequest || status == http.StatusNotFound ||
		status == http.StatusConflict || status == http.StatusRequestEntityTooLarge ||
		status == http.StatusUnprocessableEntity:
		return ErrKindBadRequest
	case status >= 500:
		return ErrKindServer
	default:
		return ErrKindUnknown
	}
}

// classify normalizes any error returned while talking to a vendor. status
// is the HTTP status extracted by the caller from its SDK error type, or 0.
// apiKey is scrubbed from the message.
func classify(provider string, err error, status int, apiKey string) *Error {
	if err == nil {
		return nil
	}
	if e, ok := AsError(err); ok {
		return e
	}

	kind := ErrKindUnknown
	var netErr net.Error
	switch {
	case errors.Is(err, context.Canceled):
		kind = ErrKindCanceled
	case errors.Is(err, context.DeadlineExceeded):
		kind = ErrKindTimeout
	case status != 0:
		kind = KindFromStatus(status)
	case errors.As(err, &netErr):
		if netErr.Timeout() {
			kind = ErrKindTimeout
		} else {
			kind = ErrKindTransport
		}
	}

	return &Error{
		Provider:   provider,
		Kind:       kind,
		StatusCode: status,
		Message:    redact(err.Error(), apiKey),
		Cause:      err,
	}
}

func redact(msg string, secrets ...string) string {
	for _, secret := range secrets {
		if len(secret) < 4 {
			continue
		}
		msg = strings.ReplaceAll(msg, secret, "[REDACTED]")
	}
	return msg
}
