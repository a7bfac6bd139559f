package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/classforge/enrollment/internal/app/apperr"
	"github.com/classforge/enrollment/internal/app/domain/application"
	"github.com/classforge/enrollment/internal/app/domain/group"
	"github.com/classforge/enrollment/internal/app/domain/interview"
	"github.com/classforge/enrollment/internal/app/storage"
)

// Store is an in-memory implementation of the storage interfaces. It is safe
// for concurrent use and is primarily intended for tests and local
// development.
type Store struct {
	mu           sync.RWMutex
	nextID       int64
	applications map[string]application.Application
	interviews   map[string]interview.Interview // keyed by application id
	groups       map[string]group.Group
	enrollments  map[string][]string // group id -> ordered user ids
	audit        map[string][]application.StatusChange
}

var _ storage.ApplicationStore = (*Store)(nil)
var _ storage.InterviewStore = (*Store)(nil)
var _ storage.GroupDirectory = (*Store)(nil)
var _ storage.EnrollmentStore = (*Store)(nil)
var _ storage.AuditStore = (*Store)(nil)

// New creates an empty store.
func New() *Store {
	return &Store{
		nextID:       1,
		applications: make(map[string]application.Application),
		interviews:   make(map[string]interview.Interview),
		groups:       make(map[string]group.Group),
		enrollments:  make(map[string][]string),
		audit:        make(map[string][]application.StatusChange),
	}
}

func (s *Store) nextIDLocked() string {
	id := s.nextID
	s.nextID++
	return fmt.Sprintf("%d", id)
}

// AddGroup seeds a group into the directory. The enrollment core treats
// groups as read-only; this exists for tests and local bootstrap.
func (s *Store) AddGroup(g group.Group) group.Group {
	s.mu.Lock()
	defer s.mu.Unlock()

	if g.ID == "" {
		g.ID = s.nextIDLocked()
	}
	if g.CreatedAt.IsZero() {
		g.CreatedAt = time.Now().UTC()
	}
	g.Teachers = cloneStrings(g.Teachers)
	s.groups[g.ID] = g
	return cloneGroup(g)
}

// ApplicationStore implementation ---------------------------------------------

func (s *Store) CreateApplication(_ context.Context, app application.Application) (application.Application, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, existing := range s.applications {
		if existing.UserID == app.UserID && existing.GroupID == app.GroupID && existing.Status != application.StatusCancelled {
			return application.Application{}, apperr.DuplicateActive()
		}
	}

	if app.ID == "" {
		app.ID = s.nextIDLocked()
	} else if _, exists := s.applications[app.ID]; exists {
		return application.Application{}, fmt.Errorf("application %s already exists", app.ID)
	}

	now := time.Now().UTC()
	app.CreatedAt = now
	app.UpdatedAt = now
	s.applications[app.ID] = app
	return app, nil
}

func (s *Store) GetApplication(_ context.Context, id string) (application.Application, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	app, ok := s.applications[id]
	if !ok {
		return application.Application{}, apperr.NotFound("application")
	}
	return app, nil
}

func (s *Store) ListApplications(_ context.Context, f application.Filter) ([]application.Application, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []application.Application
	for _, app := range s.applications {
		if s.matchesLocked(app, f) {
			out = append(out, app)
		}
	}
	sortByCreatedDesc(out, func(a application.Application) time.Time { return a.CreatedAt })
	return out, nil
}

func (s *Store) ListApplicationViews(_ context.Context, f application.Filter) ([]application.View, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	views := make([]application.View, 0)
	for _, app := range s.applications {
		if !s.matchesLocked(app, f) {
			continue
		}
		v := application.View{Application: app}
		if g, ok := s.groups[app.GroupID]; ok {
			v.ProgramID = g.ProgramID
			v.ProgramTitle = g.ProgramTitle
			v.GroupTitle = g.Title
		}
		if in, ok := s.interviews[app.ID]; ok {
			result := string(in.Result)
			comment := in.Comment
			at := in.UpdatedAt
			v.InterviewResult = &result
			v.InterviewComment = &comment
			v.InterviewAt = &at
		}
		views = append(views, v)
	}
	sortByCreatedDesc(views, func(v application.View) time.Time { return v.CreatedAt })
	return views, nil
}

func (s *Store) TransitionStatus(_ context.Context, id string, expected, next application.Status) (application.Application, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	app, ok := s.applications[id]
	if !ok {
		return application.Application{}, apperr.NotFound("application")
	}
	if app.Status != expected {
		return application.Application{}, apperr.Conflict()
	}
	app.Status = next
	app.UpdatedAt = time.Now().UTC()
	s.applications[id] = app
	return app, nil
}

func (s *Store) matchesLocked(app application.Application, f application.Filter) bool {
	if f.GroupID != "" && app.GroupID != f.GroupID {
		return false
	}
	if f.Status != "" && app.Status != f.Status {
		return false
	}
	if f.UserID != "" && app.UserID != f.UserID {
		return false
	}
	if f.Year != 0 && app.CreatedAt.Year() != f.Year {
		return false
	}
	if f.ProgramID != "" {
		g, ok := s.groups[app.GroupID]
		if !ok || g.ProgramID != f.ProgramID {
			return false
		}
	}
	if f.TeacherUserID != "" {
		g, ok := s.groups[app.GroupID]
		if !ok || !g.HasTeacher(f.TeacherUserID) {
			return false
		}
	}
	return true
}

// InterviewStore implementation -----------------------------------------------

func (s *Store) UpsertInterview(_ context.Context, in interview.Interview) (interview.Interview, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now().UTC()
	if prior, ok := s.interviews[in.ApplicationID]; ok {
		in.ID = prior.ID
		in.CreatedAt = prior.CreatedAt
	} else {
		if in.ID == "" {
			in.ID = s.nextIDLocked()
		}
		in.CreatedAt = now
	}
	in.UpdatedAt = now
	s.interviews[in.ApplicationID] = in
	return in, nil
}

func (s *Store) GetInterviewByApplication(_ context.Context, applicationID string) (interview.Interview, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	in, ok := s.interviews[applicationID]
	return in, ok, nil
}

// GroupDirectory implementation -----------------------------------------------

func (s *Store) GetGroup(_ context.Context, id string) (group.Group, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	g, ok := s.groups[id]
	if !ok {
		return group.Group{}, apperr.NotFound("group")
	}
	return cloneGroup(g), nil
}

func (s *Store) IsTeacherInGroup(_ context.Context, groupID, userID string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	g, ok := s.groups[groupID]
	if !ok {
		return false, nil
	}
	return g.HasTeacher(userID), nil
}

func (s *Store) IsTeacherInProgram(_ context.Context, programID, userID string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, g := range s.groups {
		if g.ProgramID == programID && g.HasTeacher(userID) {
			return true, nil
		}
	}
	return false, nil
}

// EnrollmentStore implementation ----------------------------------------------

func (s *Store) CreateEnrollment(_ context.Context, userID, groupID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, existing := range s.enrollments[groupID] {
		if existing == userID {
			return nil
		}
	}
	s.enrollments[groupID] = append(s.enrollments[groupID], userID)
	return nil
}

func (s *Store) CountEnrollmentsByGroup(_ context.Context, groupID string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return len(s.enrollments[groupID]), nil
}

func (s *Store) ListEnrolledUsersByGroup(_ context.Context, groupID string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return cloneStrings(s.enrollments[groupID]), nil
}

// AuditStore implementation ---------------------------------------------------

func (s *Store) AppendStatusChange(_ context.Context, change application.StatusChange) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if change.ID == "" {
		change.ID = s.nextIDLocked()
	}
	if change.CreatedAt.IsZero() {
		change.CreatedAt = time.Now().UTC()
	}
	s.audit[change.ApplicationID] = append(s.audit[change.ApplicationID], change)
	return nil
}

func (s *Store) ListStatusChanges(_ context.Context, applicationID string) ([]application.StatusChange, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	changes := s.audit[applicationID]
	out := make([]application.StatusChange, len(changes))
	copy(out, changes)
	return out, nil
}

// helpers ---------------------------------------------------------------------

func cloneGroup(g group.Group) group.Group {
	g.Teachers = cloneStrings(g.Teachers)
	return g
}

func cloneStrings(in []string) []string {
	if in == nil {
		return nil
	}
	out := make([]string, len(in))
	copy(out, in)
	return out
}

func sortByCreatedDesc[T any](items []T, created func(T) time.Time) {
	sort.Slice(items, func(i, j int) bool {
		return created(items[i]).After(created(items[j]))
	})
}
