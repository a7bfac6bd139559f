// Package identity defines the already-authenticated caller the core
// receives. Resolving identity (tokens, sessions, dev switches) is the
// transport layer's problem; the core only ever sees an Actor.
package identity

// Role is the caller's global role.
type Role string

const (
	RoleUser      Role = "user"
	RoleModerator Role = "moderator"
	RoleAdmin     Role = "admin"
)

// Valid reports whether r is one of the defined roles.
func (r Role) Valid() bool {
	return r == RoleUser || r == RoleModerator || r == RoleAdmin
}

// Actor is the resolved caller identity for a single request.
type Actor struct {
	UserID string
	Role   Role
}

// IsStaff reports whether the actor holds a staff role. Staff status is
// global; teacher assignment is per group and checked separately.
func (a Actor) IsStaff() bool {
	return a.Role == RoleAdmin || a.Role == RoleModerator
}
