// Package mergeerr defines the error kinds that the merge-gate core surfaces
// to its callers.
package mergeerr

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

var (
	// ErrNotFound is returned when a repository, pull request or branch
	// does not exist.
	ErrNotFound = errors.New("not found")

	// ErrInvalidTransition is returned when a pull request status change
	// would move a terminal record to another state.
	ErrInvalidTransition = errors.New("invalid status transition")

	// ErrUnknownRule is returned when a configuration write references a
	// rule name that is not registered.
	ErrUnknownRule = errors.New("unknown workflow rule")

	// ErrPermissionDenied is returned when the subject of an operation
	// lacks the required permission.
	ErrPermissionDenied = errors.New("permission denied")
)

// BackendError wraps an I/O failure of the VCS backend.
// Reconciliation passes fail fatally with it, the transport layer decides
// whether the triggering event is redelivered.
type BackendError struct {
	Op  string
	Err error
}

func NewBackendError(op string, err error) *BackendError {
	return &BackendError{Op: op, Err: err}
}

func (e *BackendError) Error() string {
	return fmt.Sprintf("vcs backend unavailable: %s: %s", e.Op, e.Err)
}

func (e *BackendError) Unwrap() error {
	return e.Err
}

// ProtectedWriteError rejects a push that writes directly to a protected
// branch. Violations lists one message per rejected ref or changeset.
type ProtectedWriteError struct {
	Repository string
	Violations []string
}

func (e *ProtectedWriteError) Error() string {
	return fmt.Sprintf(
		"push to %s rejected, branch only writable via merge: %s",
		e.Repository, strings.Join(e.Violations, "; "),
	)
}

// MergeNotAllowedError blocks a merge. Messages contains the full obstacle
// list so the caller can show exactly what blocked the operation.
type MergeNotAllowedError struct {
	Messages []string
}

func (e *MergeNotAllowedError) Error() string {
	return fmt.Sprintf("merge not allowed: %s", strings.Join(e.Messages, "; "))
}

// RetryableError marks an error as worth retrying at the transport layer.
type RetryableError struct {
	// Err is the wrapped original error
	Err error
	// After is the earliest point in time that the operation can be retried
	After time.Time
}

func NewRetryableError(originalErr error, retryAfter time.Time) *RetryableError {
	return &RetryableError{
		Err:   originalErr,
		After: retryAfter,
	}
}

func NewRetryableAnytimeError(originalErr error) *RetryableError {
	return &RetryableError{
		Err: originalErr,
	}
}

func (e *RetryableError) Unwrap() error {
	return e.Err
}

func (e *RetryableError) Error() string {
	if e.After.IsZero() {
		return fmt.Sprintf("retryable error: %s", e.Err)
	}

	return fmt.Sprintf("retryable error (after %s): %s", e.After, e.Err)
}
