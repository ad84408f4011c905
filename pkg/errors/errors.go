package errors

import (
	stderrors "errors"
	"fmt"
	"regexp"
	"strings"
)

// ErrorType classifies failures so callers can decide between retrying,
// degrading a single item, or failing the whole session.
type ErrorType string

const (
	ErrorTypeTransientFetch ErrorType = "transient_fetch"
	ErrorTypeDecode         ErrorType = "decode"
	ErrorTypeUpstream       ErrorType = "upstream"
	ErrorTypeCapacity       ErrorType = "capacity"
	ErrorTypeNotFound       ErrorType = "not_found"
	ErrorTypeConflict       ErrorType = "conflict"
	ErrorTypeValidation     ErrorType = "validation"
	ErrorTypeUnknown        ErrorType = "unknown"
)

// Error represents a classified failure. Code carries the HTTP status of the
// upstream response when there was one.
type Error struct {
	Type    ErrorType
	Message string
	Code    int
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s error (code %d): %s: %v", e.Type, e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s error (code %d): %s", e.Type, e.Code, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches another *Error by type so sentinel values like ErrNotFound work
// with errors.Is.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Type == e.Type && (t.Message == "" || t.Message == e.Message)
}

// New creates a classified error.
func New(t ErrorType, msg string) *Error {
	return &Error{Type: t, Message: msg}
}

// Wrap classifies an underlying error.
func Wrap(t ErrorType, err error, msg string) *Error {
	return &Error{Type: t, Message: msg, Err: err}
}

func TransientFetch(code int, err error, msg string) *Error {
	return &Error{Type: ErrorTypeTransientFetch, Message: msg, Code: code, Err: err}
}

func Decode(err error, msg string) *Error {
	return &Error{Type: ErrorTypeDecode, Message: msg, Err: err}
}

func Upstream(code int, err error, msg string) *Error {
	return &Error{Type: ErrorTypeUpstream, Message: msg, Code: code, Err: err}
}

func Capacity(msg string) *Error {
	return &Error{Type: ErrorTypeCapacity, Message: msg}
}

// TypeOf returns the classification of err, or ErrorTypeUnknown.
func TypeOf(err error) ErrorType {
	var e *Error
	if stderrors.As(err, &e) {
		return e.Type
	}
	return ErrorTypeUnknown
}

// IsType reports whether err carries the given classification anywhere in its chain.
func IsType(err error, t ErrorType) bool {
	return TypeOf(err) == t
}

// IsRetryable checks if an error type should be retried
func IsRetryable(errorType ErrorType) bool {
	switch errorType {
	case ErrorTypeTransientFetch, ErrorTypeCapacity:
		return true
	case ErrorTypeDecode, ErrorTypeUpstream, ErrorTypeNotFound, ErrorTypeConflict, ErrorTypeValidation:
		return false
	default:
		return false
	}
}

// IsRetryableError is IsRetryable applied to an error chain.
func IsRetryableError(err error) bool {
	return err != nil && IsRetryable(TypeOf(err))
}

// IsRetryableStatusCode checks if an HTTP status code indicates a retryable error
func IsRetryableStatusCode(statusCode int) bool {
	switch statusCode {
	case 0: // Network error
		return true
	case 408, 429:
		return true
	case 500, 502, 503, 504:
		return true
	case 400, 401, 403, 404:
		return false
	default:
		return statusCode >= 500
	}
}

var (
	secretParam = regexp.MustCompile(`(?i)([?&](token|key|api_key|apikey|access_token|signature)=)[^&\s"]+`)
	bearer      = regexp.MustCompile(`(?i)(bearer\s+)[A-Za-z0-9._\-]+`)
	apiKeyLike  = regexp.MustCompile(`\b(sk-ant-[A-Za-z0-9_\-]+|apify_api_[A-Za-z0-9]+)\b`)
)

// Sanitize renders err as a message safe to show to polling clients: secrets
// and query credentials are redacted and only the first line is kept.
func Sanitize(err error) string {
	if err == nil {
		return ""
	}

	msg := err.Error()
	var e *Error
	if stderrors.As(err, &e) && e.Message != "" {
		msg = e.Message
		if e.Err != nil {
			msg = fmt.Sprintf("%s: %v", e.Message, e.Err)
		}
	}

	if i := strings.IndexByte(msg, '\n'); i >= 0 {
		msg = msg[:i]
	}
	msg = secretParam.ReplaceAllString(msg, "${1}REDACTED")
	msg = bearer.ReplaceAllString(msg, "${1}REDACTED")
	msg = apiKeyLike.ReplaceAllString(msg, "REDACTED")

	const maxLen = 300
	if len(msg) > maxLen {
		msg = msg[:maxLen] + "..."
	}
	return msg
}
