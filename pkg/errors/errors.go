package errors

import (
	stderrors "errors"
	"fmt"
	"net/http"
)

// ErrorType represents different types of errors that can occur during a sync run
type ErrorType string

const (
	// Sync failure classes. None of them terminate the process.
	ErrorTypeConfigMissing       ErrorType = "config_missing"
	ErrorTypeConfigMalformed     ErrorType = "config_malformed"
	ErrorTypeTokenExchange       ErrorType = "token_exchange_failed"
	ErrorTypeFetch               ErrorType = "fetch_failed"
	ErrorTypeMediaDownload       ErrorType = "media_download_failed"
	ErrorTypeMalformedCheckpoint ErrorType = "malformed_checkpoint"

	// Transport classes reported by the API client
	ErrorTypeNetwork     ErrorType = "network"
	ErrorTypeRateLimit   ErrorType = "rate_limit"
	ErrorTypeAuth        ErrorType = "auth"
	ErrorTypeParsing     ErrorType = "parsing"
	ErrorTypeNotFound    ErrorType = "not_found"
	ErrorTypeServerError ErrorType = "server_error"
	ErrorTypeUnknown     ErrorType = "unknown"
)

// Error carries a failure class, an optional HTTP status and the underlying cause
type Error struct {
	Type    ErrorType
	Message string
	Code    int
	Err     error
}

func (e *Error) Error() string {
	if e.Code != 0 {
		if e.Err != nil {
			return fmt.Sprintf("%s error (code %d): %s: %v", e.Type, e.Code, e.Message, e.Err)
		}
		return fmt.Sprintf("%s error (code %d): %s", e.Type, e.Code, e.Message)
	}
	if e.Err != nil {
		return fmt.Sprintf("%s error: %s: %v", e.Type, e.Message, e.Err)
	}
	return fmt.Sprintf("%s error: %s", e.Type, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// New creates an error of the given type
func New(t ErrorType, msg string) *Error {
	return &Error{Type: t, Message: msg}
}

// Wrap classifies err under t. The status code of a wrapped *Error is kept.
func Wrap(t ErrorType, err error, msg string) *Error {
	wrapped := &Error{Type: t, Message: msg, Err: err}
	var inner *Error
	if stderrors.As(err, &inner) {
		wrapped.Code = inner.Code
	}
	return wrapped
}

// TypeOf returns the outermost ErrorType in err's chain, or ErrorTypeUnknown
func TypeOf(err error) ErrorType {
	var e *Error
	if stderrors.As(err, &e) {
		return e.Type
	}
	return ErrorTypeUnknown
}

// IsType reports whether any *Error in err's chain has type t
func IsType(err error, t ErrorType) bool {
	for err != nil {
		var e *Error
		if !stderrors.As(err, &e) {
			return false
		}
		if e.Type == t {
			return true
		}
		err = e.Err
	}
	return false
}

// FromStatusCode maps a non-2xx HTTP status to a transport error type
func FromStatusCode(statusCode int) ErrorType {
	switch {
	case statusCode == http.StatusUnauthorized, statusCode == http.StatusForbidden:
		return ErrorTypeAuth
	case statusCode == http.StatusNotFound:
		return ErrorTypeNotFound
	case statusCode == http.StatusTooManyRequests:
		return ErrorTypeRateLimit
	case statusCode >= 500:
		return ErrorTypeServerError
	default:
		return ErrorTypeUnknown
	}
}
