// Package interview defines the interview outcome recorded against an
// enrollment application.
package interview

import "time"

// Result is the recorded outcome of an interview.
type Result string

const (
	ResultPending        Result = "pending"
	ResultRecommended    Result = "recommended"
	ResultNotRecommended Result = "not_recommended"
	ResultNeedsMore      Result = "needs_more"
)

// Valid reports whether r is one of the defined results.
func (r Result) Valid() bool {
	switch r {
	case ResultPending, ResultRecommended, ResultNotRecommended, ResultNeedsMore:
		return true
	}
	return false
}

// Interview is the single-slot outcome attached to an application. A later
// recording overwrites the previous one; no history is kept.
type Interview struct {
	ID                string    `json:"id" db:"id"`
	ApplicationID     string    `json:"application_id" db:"application_id"`
	GroupID           string    `json:"group_id" db:"group_id"`
	CandidateUserID   string    `json:"candidate_user_id" db:"candidate_user_id"`
	InterviewerUserID string    `json:"interviewer_user_id" db:"interviewer_user_id"`
	InterviewerRole   string    `json:"interviewer_role" db:"interviewer_role"`
	Result            Result    `json:"result" db:"result"`
	Comment           string    `json:"comment" db:"comment"`
	CreatedAt         time.Time `json:"created_at" db:"created_at"`
	UpdatedAt         time.Time `json:"updated_at" db:"updated_at"`
}
