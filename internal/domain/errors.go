package domain

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	ErrAuthenticationMissing = errors.New("authentication missing")
	ErrAuthenticationInvalid = errors.New("authentication invalid")
	ErrUpstreamNotFound      = errors.New("upstream not found")
	ErrUpstreamForbidden     = errors.New("upstream forbidden")
	ErrUpstreamRateLimited   = errors.New("upstream rate limited")
	ErrUnexpectedOutput      = errors.New("unexpected output format")
	ErrDownloadFailed        = errors.New("download failed")
	ErrUploadFailed          = errors.New("upload failed")
	ErrDecodeFailed          = errors.New("decode failed")
)

// Failure is a typed upstream or validation failure carrying an
// HTTP-status-like code alongside a human-readable message.
type Failure struct {
	Code    int
	Message string
}

func (f *Failure) Error() string {
	return fmt.Sprintf("%s (status %d)", f.Message, f.Code)
}

// NewFailure constructs a Failure with the given code and formatted message.
func NewFailure(code int, format string, args ...any) *Failure {
	return &Failure{Code: code, Message: fmt.Sprintf(format, args...)}
}

// FailureFrom extracts a *Failure from an error chain, if present.
func FailureFrom(err error) (*Failure, bool) {
	var f *Failure
	if errors.As(err, &f) {
		return f, true
	}
	return nil, false
}

// HTTPStatus maps an error from the failure taxonomy to an HTTP status code.
func HTTPStatus(err error) int {
	if f, ok := FailureFrom(err); ok && f.Code >= 400 {
		return f.Code
	}
	switch {
	case err == nil:
		return http.StatusOK
	case errors.Is(err, ErrAuthenticationMissing):
		return http.StatusUnauthorized
	case errors.Is(err, ErrAuthenticationInvalid):
		return http.StatusUnauthorized
	case errors.Is(err, ErrUpstreamNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrUpstreamForbidden):
		return http.StatusForbidden
	case errors.Is(err, ErrUpstreamRateLimited):
		return http.StatusTooManyRequests
	case errors.Is(err, ErrDecodeFailed):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}
