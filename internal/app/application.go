package app

import (
	"context"
	"fmt"

	"github.com/classforge/enrollment/internal/app/services/applications"
	"github.com/classforge/enrollment/internal/app/services/interviews"
	"github.com/classforge/enrollment/internal/app/storage"
	"github.com/classforge/enrollment/internal/app/storage/memory"
	"github.com/classforge/enrollment/internal/app/system"
	"github.com/classforge/enrollment/pkg/logger"
)

// Stores encapsulates persistence dependencies. Nil stores default to the
// in-memory implementation.
type Stores struct {
	Applications storage.ApplicationStore
	Interviews   storage.InterviewStore
	Groups       storage.GroupDirectory
	Enrollments  storage.EnrollmentStore
	Audit        storage.AuditStore
}

// Application ties domain services together and manages their lifecycle.
type Application struct {
	manager *system.Manager
	log     *logger.Logger

	Applications *applications.Service
	Interviews   *interviews.Service
}

// New builds a fully initialised application with the provided stores.
func New(stores Stores, log *logger.Logger) (*Application, error) {
	if log == nil {
		log = logger.NewDefault("app")
	}

	mem := memory.New()
	if stores.Applications == nil {
		stores.Applications = mem
	}
	if stores.Interviews == nil {
		stores.Interviews = mem
	}
	if stores.Groups == nil {
		stores.Groups = mem
	}
	if stores.Enrollments == nil {
		stores.Enrollments = mem
	}
	if stores.Audit == nil {
		stores.Audit = mem
	}

	manager := system.NewManager()

	appService := applications.New(stores.Applications, stores.Groups, stores.Interviews, stores.Enrollments, stores.Audit, log)
	interviewService := interviews.New(stores.Applications, stores.Groups, stores.Interviews, log)

	for _, name := range []string{"applications", "interviews"} {
		if err := manager.Register(system.NoopService{ServiceName: name}); err != nil {
			return nil, fmt.Errorf("register %s service: %w", name, err)
		}
	}

	return &Application{
		manager:      manager,
		log:          log,
		Applications: appService,
		Interviews:   interviewService,
	}, nil
}

// Attach registers an additional lifecycle-managed service. Call before Start.
func (a *Application) Attach(service system.Service) error {
	return a.manager.Register(service)
}

// Start begins all registered services.
func (a *Application) Start(ctx context.Context) error {
	return a.manager.Start(ctx)
}

// Stop stops all services.
func (a *Application) Stop(ctx context.Context) error {
	return a.manager.Stop(ctx)
}
