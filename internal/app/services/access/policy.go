// Package access derives the capability set an actor holds over an
// application and its group. The rest of the core consumes these booleans
// instead of scattering role checks.
package access

import (
	"github.com/classforge/enrollment/internal/app/domain/application"
	"github.com/classforge/enrollment/internal/app/domain/group"
	"github.com/classforge/enrollment/internal/app/domain/identity"
)

// Decision is the per-request capability set.
type Decision struct {
	// IsStaff holds for admin and moderator roles, across all groups.
	IsStaff bool
	// IsAssignedTeacher holds when the actor is individually assigned to the
	// group, regardless of role.
	IsAssignedTeacher bool
	// IsOwner holds when the actor created the application.
	IsOwner bool
}

// Resolve computes the capability set for an actor against an application
// and its group.
func Resolve(actor identity.Actor, g group.Group, app application.Application) Decision {
	return Decision{
		IsStaff:           actor.IsStaff(),
		IsAssignedTeacher: g.HasTeacher(actor.UserID),
		IsOwner:           actor.UserID == app.UserID,
	}
}

// CanReview reports whether the actor may move the application between the
// review states (in_review, approved, rejected).
func (d Decision) CanReview() bool {
	return d.IsStaff || d.IsAssignedTeacher
}

// CanCancel reports whether the actor may cancel the application. Only the
// owning user can, regardless of role.
func (d Decision) CanCancel() bool {
	return d.IsOwner
}

// CanRecordInterview reports whether the actor may write the interview
// outcome. Only the assigned teacher can; staff cannot.
func (d Decision) CanRecordInterview() bool {
	return d.IsAssignedTeacher
}

// CanReadInterview reports whether the actor may read the interview outcome.
func (d Decision) CanReadInterview() bool {
	return d.IsStaff || d.IsAssignedTeacher
}

// Allows reports whether the decision satisfies the actor class demanded by
// a transition rule.
func (d Decision) Allows(class application.ActorClass) bool {
	switch class {
	case application.ActorStaffOrTeacher:
		return d.CanReview()
	case application.ActorOwner:
		return d.CanCancel()
	}
	return false
}
