// Package interviews records interview outcomes against applications under
// review. Recording is the assigned teacher's power alone; staff may only
// read.
package interviews

import (
	"context"

	"github.com/classforge/enrollment/internal/app/apperr"
	"github.com/classforge/enrollment/internal/app/domain/application"
	"github.com/classforge/enrollment/internal/app/domain/identity"
	"github.com/classforge/enrollment/internal/app/domain/interview"
	"github.com/classforge/enrollment/internal/app/metrics"
	"github.com/classforge/enrollment/internal/app/services/access"
	"github.com/classforge/enrollment/internal/app/storage"
	"github.com/classforge/enrollment/pkg/logger"
)

// Service manages the single-slot interview outcome per application.
type Service struct {
	apps       storage.ApplicationStore
	directory  storage.GroupDirectory
	interviews storage.InterviewStore
	log        *logger.Logger
}

// New constructs an interview service.
func New(apps storage.ApplicationStore, directory storage.GroupDirectory, interviews storage.InterviewStore, log *logger.Logger) *Service {
	if log == nil {
		log = logger.NewDefault("interviews")
	}
	return &Service{apps: apps, directory: directory, interviews: interviews, log: log}
}

// Record writes the interview outcome for an application. The application
// must be in review and the actor must be a teacher assigned to its group.
// A later recording overwrites the previous outcome.
func (s *Service) Record(ctx context.Context, actor identity.Actor, applicationID string, result interview.Result, comment string) (interview.Interview, error) {
	app, err := s.apps.GetApplication(ctx, applicationID)
	if err != nil {
		return interview.Interview{}, err
	}
	g, err := s.directory.GetGroup(ctx, app.GroupID)
	if err != nil {
		return interview.Interview{}, err
	}

	d := access.Resolve(actor, g, app)
	if !d.CanRecordInterview() {
		return interview.Interview{}, apperr.Forbidden()
	}

	if app.Status != application.StatusInReview {
		return interview.Interview{}, apperr.InvalidState("interview can only be recorded while the application is in review")
	}
	if !result.Valid() {
		return interview.Interview{}, apperr.InvalidState("unknown interview result")
	}

	saved, err := s.interviews.UpsertInterview(ctx, interview.Interview{
		ApplicationID:     app.ID,
		GroupID:           app.GroupID,
		CandidateUserID:   app.UserID,
		InterviewerUserID: actor.UserID,
		InterviewerRole:   string(actor.Role),
		Result:            result,
		Comment:           comment,
	})
	if err != nil {
		return interview.Interview{}, err
	}
	metrics.RecordInterview(string(result))
	s.log.Infof("interview for application %s recorded as %s by %s", app.ID, result, actor.UserID)
	return saved, nil
}

// Get returns the interview for an application to staff or an assigned
// teacher.
func (s *Service) Get(ctx context.Context, actor identity.Actor, applicationID string) (interview.Interview, error) {
	app, err := s.apps.GetApplication(ctx, applicationID)
	if err != nil {
		return interview.Interview{}, err
	}
	g, err := s.directory.GetGroup(ctx, app.GroupID)
	if err != nil {
		return interview.Interview{}, err
	}

	if !access.Resolve(actor, g, app).CanReadInterview() {
		return interview.Interview{}, apperr.Forbidden()
	}

	in, found, err := s.interviews.GetInterviewByApplication(ctx, applicationID)
	if err != nil {
		return interview.Interview{}, err
	}
	if !found {
		return interview.Interview{}, apperr.NotFound("interview")
	}
	return in, nil
}
