// Package group defines the read-only group attributes the enrollment core
// consults for its guards. The core never mutates groups; catalog management
// lives elsewhere.
package group

import "time"

// Group is an offering of a program with capacity and an optional interview
// requirement.
type Group struct {
	ID                string    `json:"id" db:"id"`
	ProgramID         string    `json:"program_id" db:"program_id"`
	Title             string    `json:"title" db:"title"`
	ProgramTitle      string    `json:"program_title" db:"program_title"`
	Capacity          int       `json:"capacity" db:"capacity"`
	IsOpen            bool      `json:"is_open" db:"is_open"`
	RequiresInterview bool      `json:"requires_interview" db:"requires_interview"`
	ProgramPublished  bool      `json:"program_published" db:"program_published"`
	Teachers          []string  `json:"teachers"`
	CreatedAt         time.Time `json:"created_at" db:"created_at"`
}

// HasTeacher reports whether userID is individually assigned to teach this
// group. Assignment is independent of the user's role.
func (g Group) HasTeacher(userID string) bool {
	for _, t := range g.Teachers {
		if t == userID {
			return true
		}
	}
	return false
}
