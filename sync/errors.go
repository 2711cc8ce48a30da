package sync

import (
	"fmt"
	"net/http"
	"unicode/utf8"
)

// ConfigurationError reports invalid configuration. It is raised before any
// network activity and its message is meant to be shown to the operator as is.
type ConfigurationError struct {
	Field   string
	Message string
}

func (e *ConfigurationError) Error() string {
	return e.Message
}

func configErrorf(field string, format string, args ...interface{}) *ConfigurationError {
	return &ConfigurationError{Field: field, Message: fmt.Sprintf(format, args...)}
}

// DecodeError reports a response body that could not be turned into records.
type DecodeError struct {
	Reason string
	Err    error
}

func (e *DecodeError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("failed to decode page: %s: %v", e.Reason, e.Err)
	}
	return fmt.Sprintf("failed to decode page: %s", e.Reason)
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}

// StatusError is a non-2xx response from the API.
type StatusError struct {
	StatusCode int
	Header     http.Header
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("unexpected status %d: %s", e.StatusCode, truncate(e.Body, maxErrorBodyLength))
}

// Retryable reports whether the status is worth another attempt.
func (e *StatusError) Retryable() bool {
	return ShouldRetry(e.StatusCode)
}

// TransportError is a failure to get any response at all (timeouts, refused
// connections, TLS problems).
type TransportError struct {
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("request failed: %v", e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

const maxErrorBodyLength = 200

// truncate cuts s to at most n bytes without splitting a rune.
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n] + "..."
}
