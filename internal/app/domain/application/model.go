// Package application defines the enrollment application aggregate and its
// status lifecycle.
package application

import "time"

// Status is the lifecycle state of an application.
type Status string

const (
	StatusSubmitted Status = "submitted"
	StatusInReview  Status = "in_review"
	StatusApproved  Status = "approved"
	StatusRejected  Status = "rejected"
	StatusCancelled Status = "cancelled"
)

// Valid reports whether s is one of the defined statuses.
func (s Status) Valid() bool {
	switch s {
	case StatusSubmitted, StatusInReview, StatusApproved, StatusRejected, StatusCancelled:
		return true
	}
	return false
}

// Terminal reports whether the status ends the lifecycle of this application
// instance. A cancelled application can be superseded by creating a new one.
func (s Status) Terminal() bool {
	return s == StatusApproved || s == StatusRejected || s == StatusCancelled
}

// Application is a user's request to join a group.
type Application struct {
	ID        string    `json:"id" db:"id"`
	UserID    string    `json:"user_id" db:"user_id"`
	GroupID   string    `json:"group_id" db:"group_id"`
	Status    Status    `json:"status" db:"status"`
	Comment   string    `json:"comment" db:"comment"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// ActorClass identifies who may perform a transition.
type ActorClass int

const (
	// ActorStaffOrTeacher allows admins, moderators, and teachers assigned
	// to the application's group.
	ActorStaffOrTeacher ActorClass = iota
	// ActorOwner allows only the user who created the application.
	ActorOwner
)

// Rule describes one row of the transition table.
type Rule struct {
	Actor ActorClass
	// InterviewGated marks transitions that require a recommended interview.
	InterviewGated bool
}

type edge struct {
	from, to Status
}

// The transition table. Anything absent is an invalid transition. The
// interview gate on approval applies regardless of the group's
// requires-interview flag.
var transitions = map[edge]Rule{
	{StatusSubmitted, StatusInReview}:  {Actor: ActorStaffOrTeacher},
	{StatusInReview, StatusApproved}:   {Actor: ActorStaffOrTeacher, InterviewGated: true},
	{StatusInReview, StatusRejected}:   {Actor: ActorStaffOrTeacher},
	{StatusSubmitted, StatusCancelled}: {Actor: ActorOwner},
	{StatusInReview, StatusCancelled}:  {Actor: ActorOwner},
}

// RuleFor looks up the transition rule for from -> to. The second return is
// false when the transition is not allowed for any actor.
func RuleFor(from, to Status) (Rule, bool) {
	r, ok := transitions[edge{from, to}]
	return r, ok
}

// StatusChange is one audit record of a transition.
type StatusChange struct {
	ID            string    `json:"id" db:"id"`
	ApplicationID string    `json:"application_id" db:"application_id"`
	ActorUserID   string    `json:"actor_user_id" db:"actor_user_id"`
	ActorRole     string    `json:"actor_role" db:"actor_role"`
	From          Status    `json:"from" db:"from_status"`
	To            Status    `json:"to" db:"to_status"`
	Reason        string    `json:"reason" db:"reason"`
	CreatedAt     time.Time `json:"created_at" db:"created_at"`
}

// Enrollment records an approved applicant's membership in a group.
type Enrollment struct {
	ID        string    `json:"id" db:"id"`
	UserID    string    `json:"user_id" db:"user_id"`
	GroupID   string    `json:"group_id" db:"group_id"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

// View is a list row joined with catalog titles and the latest interview,
// used by display surfaces.
type View struct {
	Application
	ProgramID        string     `json:"program_id" db:"program_id"`
	ProgramTitle     string     `json:"program_title" db:"program_title"`
	GroupTitle       string     `json:"group_title" db:"group_title"`
	InterviewResult  *string    `json:"interview_result,omitempty" db:"interview_result"`
	InterviewComment *string    `json:"interview_comment,omitempty" db:"interview_comment"`
	InterviewAt      *time.Time `json:"interview_at,omitempty" db:"interview_at"`
}

// Filter narrows list queries. Zero fields match everything; Year matches the
// application's creation year.
type Filter struct {
	GroupID   string
	ProgramID string
	Status    Status
	Year      int
	UserID    string
	// TeacherUserID limits results to groups the teacher is assigned to.
	TeacherUserID string
}
