package lms

import (
	"fmt"
	"net/http"

	"github.com/pkg/errors"
)

// Machine-readable error codes surfaced by the API collaborator.
const (
	CodeSessionExpired     = "session_expired"
	CodeForbidden          = "forbidden"
	CodeNotFound           = "not_found"
	CodeServiceUnavailable = "service_unavailable"
	CodeRequestFailed      = "request_failed"
)

// APIError is an error response from the upstream LMS API. It always carries
// the HTTP status and a machine-readable code so callers can special-case
// session expiry, authorization failures and missing resources.
type APIError struct {
	Status  int
	Code    string
	Message string
}

func (err *APIError) Error() string {
	if err.Message == "" {
		return fmt.Sprintf("lms: %s (%d)", err.Code, err.Status)
	}
	return fmt.Sprintf("lms: %s (%d): %s", err.Code, err.Status, err.Message)
}

func newAPIError(status int, message string) *APIError {
	code := CodeRequestFailed
	switch {
	case status == http.StatusUnauthorized:
		// the session credential itself is no longer valid
		code = CodeSessionExpired
	case status == http.StatusForbidden:
		code = CodeForbidden
	case status == http.StatusNotFound:
		code = CodeNotFound
	case status >= 500:
		code = CodeServiceUnavailable
	}
	return &APIError{Status: status, Code: code, Message: message}
}

func apiErrorCode(err error) string {
	if apiErr, ok := errors.Cause(err).(*APIError); ok {
		return apiErr.Code
	}
	return ""
}

// IsSessionExpired reports whether the user's LMS session credential is no
// longer valid and a reconnect is required.
func IsSessionExpired(err error) bool { return apiErrorCode(err) == CodeSessionExpired }

// IsForbidden reports a per-resource authorization failure (HTTP 403).
func IsForbidden(err error) bool { return apiErrorCode(err) == CodeForbidden }

// IsNotFound reports that the resource does not exist on this institution's
// LMS revision, or the feature is not enabled (HTTP 404).
func IsNotFound(err error) bool { return apiErrorCode(err) == CodeNotFound }

// IsTransient reports an upstream 5xx; callers treat the source as
// temporarily unavailable rather than failing the run.
func IsTransient(err error) bool { return apiErrorCode(err) == CodeServiceUnavailable }
