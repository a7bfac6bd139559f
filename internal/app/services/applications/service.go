// Package applications implements the enrollment application lifecycle: the
// status state machine, its guards, and the operations exposed to callers.
package applications

import (
	"context"
	"fmt"

	"github.com/classforge/enrollment/internal/app/apperr"
	"github.com/classforge/enrollment/internal/app/domain/application"
	"github.com/classforge/enrollment/internal/app/domain/group"
	"github.com/classforge/enrollment/internal/app/domain/identity"
	"github.com/classforge/enrollment/internal/app/domain/interview"
	"github.com/classforge/enrollment/internal/app/metrics"
	"github.com/classforge/enrollment/internal/app/services/access"
	"github.com/classforge/enrollment/internal/app/storage"
	"github.com/classforge/enrollment/pkg/logger"
)

// Service validates and applies application lifecycle operations.
type Service struct {
	apps        storage.ApplicationStore
	directory   storage.GroupDirectory
	interviews  storage.InterviewStore
	enrollments storage.EnrollmentStore
	audit       storage.AuditStore
	log         *logger.Logger
}

// New constructs an application lifecycle service.
func New(
	apps storage.ApplicationStore,
	directory storage.GroupDirectory,
	interviews storage.InterviewStore,
	enrollments storage.EnrollmentStore,
	audit storage.AuditStore,
	log *logger.Logger,
) *Service {
	if log == nil {
		log = logger.NewDefault("applications")
	}
	return &Service{
		apps:        apps,
		directory:   directory,
		interviews:  interviews,
		enrollments: enrollments,
		audit:       audit,
		log:         log,
	}
}

// Create submits a new application for the actor. The group must be open and
// its program published; a teacher assigned anywhere in the target program
// cannot apply to it; at most one non-cancelled application may exist per
// (user, group) pair.
func (s *Service) Create(ctx context.Context, actor identity.Actor, groupID, comment string) (application.Application, error) {
	if groupID == "" {
		return application.Application{}, fmt.Errorf("group_id is required")
	}

	g, err := s.directory.GetGroup(ctx, groupID)
	if err != nil {
		return application.Application{}, err
	}
	if !g.ProgramPublished || !g.IsOpen {
		return application.Application{}, apperr.GroupNotOpen()
	}

	assigned, err := s.directory.IsTeacherInProgram(ctx, g.ProgramID, actor.UserID)
	if err != nil {
		return application.Application{}, err
	}
	if assigned {
		return application.Application{}, apperr.Forbidden()
	}

	created, err := s.apps.CreateApplication(ctx, application.Application{
		UserID:  actor.UserID,
		GroupID: groupID,
		Status:  application.StatusSubmitted,
		Comment: comment,
	})
	if err != nil {
		return application.Application{}, err
	}
	s.log.Infof("application %s created by %s for group %s", created.ID, actor.UserID, groupID)
	return created, nil
}

// Get returns a single application to its owner, staff, or a teacher
// assigned to its group.
func (s *Service) Get(ctx context.Context, actor identity.Actor, id string) (application.Application, error) {
	app, g, err := s.load(ctx, id)
	if err != nil {
		return application.Application{}, err
	}
	d := access.Resolve(actor, g, app)
	if !d.IsOwner && !d.CanReview() {
		return application.Application{}, apperr.Forbidden()
	}
	return app, nil
}

// Transition moves an application to the target status on behalf of the
// actor. The order of checks is fixed: unknown edge, then authorization,
// then the approval guards, then the atomic conditional write.
func (s *Service) Transition(ctx context.Context, actor identity.Actor, id string, target application.Status, reason string) (application.Application, error) {
	app, g, err := s.load(ctx, id)
	if err != nil {
		return application.Application{}, err
	}

	updated, err := s.transition(ctx, actor, app, g, target, reason)
	outcome := "ok"
	if err != nil {
		if code := apperr.CodeOf(err); code != "" {
			outcome = string(code)
		} else {
			outcome = "error"
		}
	}
	metrics.RecordTransition(string(app.Status), string(target), outcome)
	return updated, err
}

func (s *Service) transition(ctx context.Context, actor identity.Actor, app application.Application, g group.Group, target application.Status, reason string) (application.Application, error) {
	rule, ok := application.RuleFor(app.Status, target)
	if !ok {
		return application.Application{}, apperr.InvalidTransition(string(app.Status), string(target))
	}

	d := access.Resolve(actor, g, app)
	if !d.Allows(rule.Actor) {
		return application.Application{}, apperr.Forbidden()
	}

	if rule.InterviewGated {
		// The gate applies even when the group itself does not require an
		// interview: absence still blocks approval.
		in, found, err := s.interviews.GetInterviewByApplication(ctx, app.ID)
		if err != nil {
			return application.Application{}, err
		}
		if !found {
			return application.Application{}, apperr.InterviewRequired()
		}
		if in.Result != interview.ResultRecommended {
			return application.Application{}, apperr.InterviewRejected()
		}

		enrolled, err := s.enrollments.CountEnrollmentsByGroup(ctx, app.GroupID)
		if err != nil {
			return application.Application{}, err
		}
		if g.Capacity > 0 && enrolled >= g.Capacity {
			return application.Application{}, apperr.GroupFull()
		}
	}

	updated, err := s.apps.TransitionStatus(ctx, app.ID, app.Status, target)
	if err != nil {
		return application.Application{}, err
	}

	if err := s.audit.AppendStatusChange(ctx, application.StatusChange{
		ApplicationID: app.ID,
		ActorUserID:   actor.UserID,
		ActorRole:     string(actor.Role),
		From:          app.Status,
		To:            target,
		Reason:        reason,
	}); err != nil {
		// The transition is already committed; the trail is best effort.
		s.log.WithError(err).Warnf("audit write failed for application %s", app.ID)
	}

	if target == application.StatusApproved {
		if err := s.enrollments.CreateEnrollment(ctx, app.UserID, app.GroupID); err != nil {
			s.log.WithError(err).Errorf("enrollment write failed for application %s", app.ID)
		}
	}

	s.log.Infof("application %s moved %s -> %s by %s", app.ID, app.Status, target, actor.UserID)
	return updated, nil
}

// Cancel moves the actor's own application to cancelled.
func (s *Service) Cancel(ctx context.Context, actor identity.Actor, id string) (application.Application, error) {
	return s.Transition(ctx, actor, id, application.StatusCancelled, "")
}

// List returns applications matching the filter, joined with catalog titles.
// Staff see everything; teachers must filter by a group they are assigned to,
// or by program, in which case results are narrowed to their assigned groups.
func (s *Service) List(ctx context.Context, actor identity.Actor, f application.Filter) ([]application.View, error) {
	if !actor.IsStaff() {
		switch {
		case f.GroupID != "":
			assigned, err := s.directory.IsTeacherInGroup(ctx, f.GroupID, actor.UserID)
			if err != nil {
				return nil, err
			}
			if !assigned {
				return nil, apperr.Forbidden()
			}
		case f.ProgramID != "":
			f.TeacherUserID = actor.UserID
		default:
			return nil, apperr.Forbidden()
		}
	}
	return s.apps.ListApplicationViews(ctx, f)
}

// ListMine returns the actor's own applications, newest first.
func (s *Service) ListMine(ctx context.Context, actor identity.Actor) ([]application.View, error) {
	return s.apps.ListApplicationViews(ctx, application.Filter{UserID: actor.UserID})
}

// History returns the status audit trail of an application to staff.
func (s *Service) History(ctx context.Context, actor identity.Actor, id string) ([]application.StatusChange, error) {
	if !actor.IsStaff() {
		return nil, apperr.Forbidden()
	}
	if _, err := s.apps.GetApplication(ctx, id); err != nil {
		return nil, err
	}
	return s.audit.ListStatusChanges(ctx, id)
}

// GroupStudents returns the enrolled roster of a group to staff or an
// assigned teacher.
func (s *Service) GroupStudents(ctx context.Context, actor identity.Actor, groupID string) ([]string, error) {
	if !actor.IsStaff() {
		assigned, err := s.directory.IsTeacherInGroup(ctx, groupID, actor.UserID)
		if err != nil {
			return nil, err
		}
		if !assigned {
			return nil, apperr.Forbidden()
		}
	}
	return s.enrollments.ListEnrolledUsersByGroup(ctx, groupID)
}

// TeacherProgramAccess reports whether the actor is assigned to any group of
// the program. It never fails with Forbidden; absence is just false.
func (s *Service) TeacherProgramAccess(ctx context.Context, actor identity.Actor, programID string) (bool, error) {
	return s.directory.IsTeacherInProgram(ctx, programID, actor.UserID)
}

func (s *Service) load(ctx context.Context, id string) (application.Application, group.Group, error) {
	app, err := s.apps.GetApplication(ctx, id)
	if err != nil {
		return application.Application{}, group.Group{}, err
	}
	g, err := s.directory.GetGroup(ctx, app.GroupID)
	if err != nil {
		return application.Application{}, group.Group{}, fmt.Errorf("load group %s: %w", app.GroupID, err)
	}
	return app, g, nil
}
