// Package postgres implements the storage interfaces backed by PostgreSQL.
//
// The active-uniqueness invariant lives in a partial unique index so
// concurrent creates race in the database, not in Go; status transitions are
// single conditional UPDATEs.
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/classforge/enrollment/internal/app/apperr"
	"github.com/classforge/enrollment/internal/app/domain/application"
	"github.com/classforge/enrollment/internal/app/domain/group"
	"github.com/classforge/enrollment/internal/app/domain/interview"
	"github.com/classforge/enrollment/internal/app/storage"
)

const uniqueViolation = "23505"

// Store implements the storage interfaces backed by PostgreSQL.
type Store struct {
	db *sqlx.DB
}

var _ storage.ApplicationStore = (*Store)(nil)
var _ storage.InterviewStore = (*Store)(nil)
var _ storage.GroupDirectory = (*Store)(nil)
var _ storage.EnrollmentStore = (*Store)(nil)
var _ storage.AuditStore = (*Store)(nil)

// New creates a Store using the provided database handle.
func New(db *sqlx.DB) *Store {
	return &Store{db: db}
}

// --- ApplicationStore -------------------------------------------------------

func (s *Store) CreateApplication(ctx context.Context, app application.Application) (application.Application, error) {
	if app.ID == "" {
		app.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	app.CreatedAt = now
	app.UpdatedAt = now

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO enrollment_applications (id, user_id, group_id, status, comment, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, app.ID, app.UserID, app.GroupID, app.Status, app.Comment, app.CreatedAt, app.UpdatedAt)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
			return application.Application{}, apperr.DuplicateActive()
		}
		return application.Application{}, err
	}
	return app, nil
}

func (s *Store) GetApplication(ctx context.Context, id string) (application.Application, error) {
	var app application.Application
	err := s.db.GetContext(ctx, &app, `
		SELECT id, user_id, group_id, status, comment, created_at, updated_at
		FROM enrollment_applications
		WHERE id = $1
	`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return application.Application{}, apperr.NotFound("application")
	}
	if err != nil {
		return application.Application{}, err
	}
	return app, nil
}

func (s *Store) ListApplications(ctx context.Context, f application.Filter) ([]application.Application, error) {
	where, args := filterClauses(f)
	query := `
		SELECT a.id, a.user_id, a.group_id, a.status, a.comment, a.created_at, a.updated_at
		FROM enrollment_applications a
		JOIN groups g ON g.id = a.group_id
	` + where + `
		ORDER BY a.created_at DESC
	`
	var apps []application.Application
	if err := s.db.SelectContext(ctx, &apps, query, args...); err != nil {
		return nil, err
	}
	return apps, nil
}

func (s *Store) ListApplicationViews(ctx context.Context, f application.Filter) ([]application.View, error) {
	where, args := filterClauses(f)
	query := `
		SELECT a.id, a.user_id, a.group_id, a.status, a.comment, a.created_at, a.updated_at,
		       g.program_id, p.title AS program_title, g.title AS group_title,
		       i.result AS interview_result, i.comment AS interview_comment, i.updated_at AS interview_at
		FROM enrollment_applications a
		JOIN groups g ON g.id = a.group_id
		JOIN programs p ON p.id = g.program_id
		LEFT JOIN interviews i ON i.application_id = a.id
	` + where + `
		ORDER BY a.created_at DESC
	`
	var views []application.View
	if err := s.db.SelectContext(ctx, &views, query, args...); err != nil {
		return nil, err
	}
	return views, nil
}

func (s *Store) TransitionStatus(ctx context.Context, id string, expected, next application.Status) (application.Application, error) {
	var app application.Application
	err := s.db.GetContext(ctx, &app, `
		UPDATE enrollment_applications
		SET status = $3, updated_at = $4
		WHERE id = $1 AND status = $2
		RETURNING id, user_id, group_id, status, comment, created_at, updated_at
	`, id, expected, next, time.Now().UTC())
	if errors.Is(err, sql.ErrNoRows) {
		// Distinguish a missing row from a lost race.
		var exists bool
		if probeErr := s.db.GetContext(ctx, &exists, `
			SELECT EXISTS (SELECT 1 FROM enrollment_applications WHERE id = $1)
		`, id); probeErr != nil {
			return application.Application{}, probeErr
		}
		if !exists {
			return application.Application{}, apperr.NotFound("application")
		}
		return application.Application{}, apperr.Conflict()
	}
	if err != nil {
		return application.Application{}, err
	}
	return app, nil
}

// filterClauses renders the WHERE clause for list queries. The alias set
// matches both list queries: a = applications, g = groups.
func filterClauses(f application.Filter) (string, []interface{}) {
	var (
		conds []string
		args  []interface{}
	)
	add := func(cond string, arg interface{}) {
		args = append(args, arg)
		conds = append(conds, fmt.Sprintf(cond, len(args)))
	}

	if f.GroupID != "" {
		add("a.group_id = $%d", f.GroupID)
	}
	if f.ProgramID != "" {
		add("g.program_id = $%d", f.ProgramID)
	}
	if f.Status != "" {
		add("a.status = $%d", f.Status)
	}
	if f.UserID != "" {
		add("a.user_id = $%d", f.UserID)
	}
	if f.Year != 0 {
		add("EXTRACT(YEAR FROM a.created_at) = $%d", f.Year)
	}
	if f.TeacherUserID != "" {
		add("EXISTS (SELECT 1 FROM group_teachers gt WHERE gt.group_id = a.group_id AND gt.user_id = $%d)", f.TeacherUserID)
	}

	if len(conds) == 0 {
		return "", nil
	}
	return "WHERE " + strings.Join(conds, " AND "), args
}

// --- InterviewStore ---------------------------------------------------------

func (s *Store) UpsertInterview(ctx context.Context, in interview.Interview) (interview.Interview, error) {
	if in.ID == "" {
		in.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	in.CreatedAt = now
	in.UpdatedAt = now

	var saved interview.Interview
	err := s.db.GetContext(ctx, &saved, `
		INSERT INTO interviews (id, application_id, group_id, candidate_user_id, interviewer_user_id, interviewer_role, result, comment, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (application_id) DO UPDATE
		SET interviewer_user_id = EXCLUDED.interviewer_user_id,
		    interviewer_role = EXCLUDED.interviewer_role,
		    result = EXCLUDED.result,
		    comment = EXCLUDED.comment,
		    updated_at = EXCLUDED.updated_at
		RETURNING id, application_id, group_id, candidate_user_id, interviewer_user_id, interviewer_role, result, comment, created_at, updated_at
	`, in.ID, in.ApplicationID, in.GroupID, in.CandidateUserID, in.InterviewerUserID, in.InterviewerRole, in.Result, in.Comment, in.CreatedAt, in.UpdatedAt)
	if err != nil {
		return interview.Interview{}, err
	}
	return saved, nil
}

func (s *Store) GetInterviewByApplication(ctx context.Context, applicationID string) (interview.Interview, bool, error) {
	var in interview.Interview
	err := s.db.GetContext(ctx, &in, `
		SELECT id, application_id, group_id, candidate_user_id, interviewer_user_id, interviewer_role, result, comment, created_at, updated_at
		FROM interviews
		WHERE application_id = $1
	`, applicationID)
	if errors.Is(err, sql.ErrNoRows) {
		return interview.Interview{}, false, nil
	}
	if err != nil {
		return interview.Interview{}, false, err
	}
	return in, true, nil
}

// --- GroupDirectory ---------------------------------------------------------

func (s *Store) GetGroup(ctx context.Context, id string) (group.Group, error) {
	var g group.Group
	err := s.db.GetContext(ctx, &g, `
		SELECT g.id, g.program_id, g.title, p.title AS program_title,
		       g.capacity, g.is_open, g.requires_interview, p.published AS program_published,
		       g.created_at
		FROM groups g
		JOIN programs p ON p.id = g.program_id
		WHERE g.id = $1
	`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return group.Group{}, apperr.NotFound("group")
	}
	if err != nil {
		return group.Group{}, err
	}

	if err := s.db.SelectContext(ctx, &g.Teachers, `
		SELECT user_id FROM group_teachers WHERE group_id = $1 ORDER BY user_id
	`, id); err != nil {
		return group.Group{}, err
	}
	return g, nil
}

func (s *Store) IsTeacherInGroup(ctx context.Context, groupID, userID string) (bool, error) {
	var assigned bool
	err := s.db.GetContext(ctx, &assigned, `
		SELECT EXISTS (SELECT 1 FROM group_teachers WHERE group_id = $1 AND user_id = $2)
	`, groupID, userID)
	return assigned, err
}

func (s *Store) IsTeacherInProgram(ctx context.Context, programID, userID string) (bool, error) {
	var assigned bool
	err := s.db.GetContext(ctx, &assigned, `
		SELECT EXISTS (
			SELECT 1
			FROM group_teachers gt
			JOIN groups g ON g.id = gt.group_id
			WHERE g.program_id = $1 AND gt.user_id = $2
		)
	`, programID, userID)
	return assigned, err
}

// --- EnrollmentStore --------------------------------------------------------

func (s *Store) CreateEnrollment(ctx context.Context, userID, groupID string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO enrollments (id, user_id, group_id, created_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (user_id, group_id) DO NOTHING
	`, uuid.NewString(), userID, groupID, time.Now().UTC())
	return err
}

func (s *Store) CountEnrollmentsByGroup(ctx context.Context, groupID string) (int, error) {
	var n int
	err := s.db.GetContext(ctx, &n, `
		SELECT COUNT(*) FROM enrollments WHERE group_id = $1
	`, groupID)
	return n, err
}

func (s *Store) ListEnrolledUsersByGroup(ctx context.Context, groupID string) ([]string, error) {
	var users []string
	err := s.db.SelectContext(ctx, &users, `
		SELECT user_id FROM enrollments WHERE group_id = $1 ORDER BY created_at
	`, groupID)
	return users, err
}

// --- AuditStore -------------------------------------------------------------

func (s *Store) AppendStatusChange(ctx context.Context, change application.StatusChange) error {
	if change.ID == "" {
		change.ID = uuid.NewString()
	}
	if change.CreatedAt.IsZero() {
		change.CreatedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO application_status_audit (id, application_id, actor_user_id, actor_role, from_status, to_status, reason, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`, change.ID, change.ApplicationID, change.ActorUserID, change.ActorRole, change.From, change.To, change.Reason, change.CreatedAt)
	return err
}

func (s *Store) ListStatusChanges(ctx context.Context, applicationID string) ([]application.StatusChange, error) {
	var changes []application.StatusChange
	err := s.db.SelectContext(ctx, &changes, `
		SELECT id, application_id, actor_user_id, actor_role, from_status, to_status, reason, created_at
		FROM application_status_audit
		WHERE application_id = $1
		ORDER BY created_at
	`, applicationID)
	return changes, err
}
