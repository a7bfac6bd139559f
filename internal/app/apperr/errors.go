// Package apperr defines the typed error taxonomy returned by the enrollment
// core. Every failure carries a stable machine-readable code; callers match
// on the code, never on message text.
package apperr

import (
	"errors"
	"fmt"
)

// Code identifies a failure class.
type Code string

const (
	CodeDuplicateActive   Code = "duplicate_active"
	CodeGroupNotOpen      Code = "group_not_open"
	CodeGroupFull         Code = "group_full"
	CodeInvalidTransition Code = "invalid_transition"
	CodeForbidden         Code = "forbidden"
	CodeInterviewRequired Code = "interview_required"
	CodeInterviewRejected Code = "interview_rejected"
	CodeInvalidState      Code = "invalid_state"
	CodeConflict          Code = "conflict"
	CodeNotFound          Code = "not_found"
)

// Error is a domain failure with a stable code and a human message.
type Error struct {
	Code    Code
	Message string
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Is makes two domain errors equal when their codes match, so callers can use
// errors.Is(err, apperr.Conflict()) style checks.
func (e *Error) Is(target error) bool {
	var other *Error
	if !errors.As(target, &other) {
		return false
	}
	return e.Code == other.Code
}

// New builds a domain error with an explicit code and message.
func New(code Code, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// CodeOf extracts the code from err, or "" when err is not a domain error.
func CodeOf(err error) Code {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}

func DuplicateActive() *Error {
	return New(CodeDuplicateActive, "an active application for this group already exists; cancel it before re-applying")
}

func GroupNotOpen() *Error {
	return New(CodeGroupNotOpen, "the group is not accepting applications")
}

func GroupFull() *Error {
	return New(CodeGroupFull, "the group has no remaining seats")
}

func InvalidTransition(from, to string) *Error {
	return New(CodeInvalidTransition, "cannot move application from %s to %s", from, to)
}

// Forbidden deliberately carries no detail about which rule failed.
func Forbidden() *Error {
	return New(CodeForbidden, "the action is not permitted")
}

func InterviewRequired() *Error {
	return New(CodeInterviewRequired, "an interview result must be recorded before approval")
}

func InterviewRejected() *Error {
	return New(CodeInterviewRejected, "the recorded interview result does not recommend approval")
}

func InvalidState(detail string) *Error {
	return New(CodeInvalidState, "%s", detail)
}

func Conflict() *Error {
	return New(CodeConflict, "the application changed concurrently; reload and retry")
}

func NotFound(what string) *Error {
	return New(CodeNotFound, "%s not found", what)
}
