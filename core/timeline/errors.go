package timeline

import "github.com/pkg/errors"

// Sync error codes.
const (
	CodePaginationExcessive = "pagination_excessive"
	CodeHostMismatch        = "calendar_pagination_host_mismatch"
	CodeInvalidNext         = "calendar_pagination_invalid_next"
	CodeAPIUnavailable      = "calendar_api_unavailable"
	CodeReconnectRequired   = "reconnect_required"
	CodeNoActiveCourses     = "no_active_courses"
)

// SyncError is a coded, user-surfaceable failure of a sync run.
type SyncError struct {
	Code    string
	Message string
}

func (err *SyncError) Error() string {
	if err.Message == "" {
		return err.Code
	}
	return err.Code + ": " + err.Message
}

func newSyncError(code, message string) *SyncError {
	return &SyncError{Code: code, Message: message}
}

var (
	// ErrReconnectRequired is returned when the user's LMS session
	// credential has expired; the run aborts and the user must reconnect.
	ErrReconnectRequired = newSyncError(CodeReconnectRequired, "LMS session expired, please reconnect")

	// ErrNoActiveCourses is returned when the user has no synced active
	// courses to scope the run to.
	ErrNoActiveCourses = newSyncError(CodeNoActiveCourses, "no active courses found, sync courses first")
)

// IsSyncError reports whether err is a SyncError with the given code.
func IsSyncError(err error, code string) bool {
	if syncErr, ok := errors.Cause(err).(*SyncError); ok {
		return syncErr.Code == code
	}
	return false
}
