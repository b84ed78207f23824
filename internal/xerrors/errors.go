// Package xerrors defines the typed error family for the consistency layer.
//
// Conflict and lock contention are expected control flow here, not panics:
// every recoverable condition gets its own type so callers can branch with
// errors.As instead of string matching.
package xerrors

import (
	"errors"
	"fmt"
	"time"

	"scriptsync/internal/diffview"
)

type Kind string

const (
	KindValidation  Kind = "VALIDATION"
	KindNotFound    Kind = "NOT_FOUND"
	KindConflict    Kind = "CONFLICT"
	KindMatch       Kind = "MATCH"
	KindLockTimeout Kind = "LOCK_TIMEOUT"
	KindPlan        Kind = "PLAN"
)

// Error is the generic form used for validation, not-found and match
// failures. Conflict, lock timeout and plan failures carry dedicated types
// below because callers need their structured payloads.
type Error struct {
	Kind    Kind   `json:"kind"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
}

func (e *Error) Error() string {
	return e.Message
}

func Validation(message string, details any) *Error {
	return &Error{Kind: KindValidation, Message: message, Details: details}
}

func NotFound(path string) *Error {
	return &Error{Kind: KindNotFound, Message: fmt.Sprintf("file not found: %s", path), Details: path}
}

func Match(message string) *Error {
	return &Error{Kind: KindMatch, Message: message}
}

// ConflictDetails describes a hash mismatch detected by the optimistic
// concurrency gate. Diff is present only when both sides were readable.
type ConflictDetails struct {
	Path         string         `json:"path"`
	ExpectedHash string         `json:"expected_hash"`
	CurrentHash  string         `json:"current_hash"`
	Diff         *diffview.Diff `json:"diff,omitempty"`
}

type ConflictError struct {
	Details ConflictDetails
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("remote content for %s changed since last read (expected %s, found %s)",
		e.Details.Path, short(e.Details.ExpectedHash), short(e.Details.CurrentHash))
}

func Conflict(details ConflictDetails) *ConflictError {
	return &ConflictError{Details: details}
}

// HolderInfo mirrors the on-disk lock record of the process that kept a
// resource busy past the caller's patience.
type HolderInfo struct {
	LockID     string    `json:"lock_id"`
	OwnerPID   int       `json:"owner_pid"`
	Hostname   string    `json:"hostname"`
	AcquiredAt time.Time `json:"acquired_at"`
	Operation  string    `json:"operation"`
}

type LockTimeoutError struct {
	ResourceID string
	Timeout    time.Duration
	Holder     HolderInfo
}

func (e *LockTimeoutError) Error() string {
	if e.Holder.OwnerPID == 0 && e.Holder.Hostname == "" {
		return fmt.Sprintf("timed out after %s waiting for lock on %s (holder unknown)",
			e.Timeout, e.ResourceID)
	}
	return fmt.Sprintf("timed out after %s waiting for lock on %s (held by pid %d on %s for %q)",
		e.Timeout, e.ResourceID, e.Holder.OwnerPID, e.Holder.Hostname, e.Holder.Operation)
}

func LockTimeout(resourceID string, timeout time.Duration, holder HolderInfo) *LockTimeoutError {
	return &LockTimeoutError{ResourceID: resourceID, Timeout: timeout, Holder: holder}
}

// PlanCode classifies sync planning failures. All are safe to retry once the
// underlying condition is fixed because planning never mutates anything.
type PlanCode string

const (
	PlanBreadcrumbMissing  PlanCode = "BREADCRUMB_MISSING"
	PlanUncommittedChanges PlanCode = "UNCOMMITTED_CHANGES"
	PlanGitNotFound        PlanCode = "GIT_NOT_FOUND"
	PlanAPIError           PlanCode = "API_ERROR"
	PlanLocalReadError     PlanCode = "LOCAL_READ_ERROR"
)

type PlanError struct {
	Code    PlanCode
	Message string
	Hint    string
	Err     error
}

func (e *PlanError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *PlanError) Unwrap() error {
	return e.Err
}

func Plan(code PlanCode, message, hint string) *PlanError {
	return &PlanError{Code: code, Message: message, Hint: hint}
}

func PlanWrap(code PlanCode, message, hint string, err error) *PlanError {
	return &PlanError{Code: code, Message: message, Hint: hint, Err: err}
}

// Kind helpers for callers that only need coarse classification.

func IsValidation(err error) bool { return isKind(err, KindValidation) }
func IsNotFound(err error) bool   { return isKind(err, KindNotFound) }
func IsMatch(err error) bool      { return isKind(err, KindMatch) }

func IsConflict(err error) bool {
	var ce *ConflictError
	return errors.As(err, &ce)
}

func IsLockTimeout(err error) bool {
	var le *LockTimeoutError
	return errors.As(err, &le)
}

func PlanCodeOf(err error) (PlanCode, bool) {
	var pe *PlanError
	if errors.As(err, &pe) {
		return pe.Code, true
	}
	return "", false
}

func isKind(err error, k Kind) bool {
	var e *Error
	return errors.As(err, &e) && e.Kind == k
}

func short(hash string) string {
	if len(hash) > 8 {
		return hash[:8]
	}
	if hash == "" {
		return "<absent>"
	}
	return hash
}
