package storage

import (
	"context"

	"github.com/classforge/enrollment/internal/app/domain/application"
	"github.com/classforge/enrollment/internal/app/domain/group"
	"github.com/classforge/enrollment/internal/app/domain/interview"
)

// ApplicationStore persists enrollment applications.
//
// CreateApplication must enforce the invariant that at most one non-cancelled
// application exists per (user, group) pair, returning
// apperr.CodeDuplicateActive when violated; under concurrent creation exactly
// one call wins.
//
// TransitionStatus is an atomic compare-and-set: it applies the new status
// only when the stored status still equals expected, returning
// apperr.CodeConflict otherwise. Failed attempts surface to the caller,
// never retried internally.
type ApplicationStore interface {
	CreateApplication(ctx context.Context, app application.Application) (application.Application, error)
	GetApplication(ctx context.Context, id string) (application.Application, error)
	ListApplications(ctx context.Context, f application.Filter) ([]application.Application, error)
	ListApplicationViews(ctx context.Context, f application.Filter) ([]application.View, error)
	TransitionStatus(ctx context.Context, id string, expected, next application.Status) (application.Application, error)
}

// InterviewStore persists the single-slot interview outcome per application.
type InterviewStore interface {
	UpsertInterview(ctx context.Context, in interview.Interview) (interview.Interview, error)
	GetInterviewByApplication(ctx context.Context, applicationID string) (interview.Interview, bool, error)
}

// GroupDirectory is the read-only lookup of group attributes used by guards.
type GroupDirectory interface {
	GetGroup(ctx context.Context, id string) (group.Group, error)
	IsTeacherInGroup(ctx context.Context, groupID, userID string) (bool, error)
	IsTeacherInProgram(ctx context.Context, programID, userID string) (bool, error)
}

// EnrollmentStore persists group memberships created on approval.
// CreateEnrollment is idempotent per (user, group).
type EnrollmentStore interface {
	CreateEnrollment(ctx context.Context, userID, groupID string) error
	CountEnrollmentsByGroup(ctx context.Context, groupID string) (int, error)
	ListEnrolledUsersByGroup(ctx context.Context, groupID string) ([]string, error)
}

// AuditStore records the status-change history of applications.
type AuditStore interface {
	AppendStatusChange(ctx context.Context, change application.StatusChange) error
	ListStatusChanges(ctx context.Context, applicationID string) ([]application.StatusChange, error)
}
