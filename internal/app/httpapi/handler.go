// Package httpapi exposes the enrollment services over REST. Identity is
// resolved by middleware into an Actor; handlers translate between the wire
// shapes and the service layer and map domain error codes to HTTP statuses.
package httpapi

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	app "github.com/classforge/enrollment/internal/app"
	"github.com/classforge/enrollment/internal/app/domain/application"
	"github.com/classforge/enrollment/internal/app/domain/interview"
	"github.com/classforge/enrollment/internal/app/metrics"
	"github.com/classforge/enrollment/pkg/logger"
)

// Options configures the HTTP surface.
type Options struct {
	Auth      AuthConfig
	RateLimit RateLimitConfig
	// AuditLogPath mirrors the request audit trail to a JSONL file when set.
	AuditLogPath string
	// AuditLogSize bounds the in-memory audit trail. Zero means the default.
	AuditLogSize int
	// CORSAllowedOrigins lists origins allowed to call the API from a
	// browser. Empty disables CORS handling.
	CORSAllowedOrigins []string
	Log                *logger.Logger
}

type handler struct {
	app     *app.Application
	auth    AuthConfig
	limiter *callerLimiter
	audit   *auditLog
	log     *logger.Logger
}

// NewHandler returns the instrumented router exposing the REST API.
func NewHandler(application *app.Application, opts Options) (http.Handler, error) {
	log := opts.Log
	if log == nil {
		log = logger.NewDefault("httpapi")
	}

	sink, err := newFileAuditSink(opts.AuditLogPath)
	if err != nil {
		return nil, err
	}

	h := &handler{
		app:     application,
		auth:    opts.Auth,
		limiter: newCallerLimiter(opts.RateLimit),
		audit:   newAuditLog(opts.AuditLogSize, sink),
		log:     log,
	}

	r := chi.NewRouter()

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Method(http.MethodGet, "/metrics", metrics.Handler())

	r.Group(func(r chi.Router) {
		r.Use(h.identityMiddleware)
		r.Use(h.rateLimitMiddleware)
		r.Use(h.auditMiddleware)

		r.Route("/applications", func(r chi.Router) {
			r.Post("/", h.createApplication)
			r.Get("/", h.listApplications)
			r.Get("/mine", h.listMyApplications)
			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", h.getApplication)
				r.Post("/status", h.transitionApplication)
				r.Post("/cancel", h.cancelApplication)
				r.Put("/interview", h.recordInterview)
				r.Get("/interview", h.getInterview)
				r.Get("/history", h.applicationHistory)
			})
		})
		r.Get("/groups/{id}/students", h.groupStudents)
		r.Get("/teacher/programs/{id}/access", h.teacherProgramAccess)
		r.Get("/auditlog", h.auditTrail)
	})

	var out http.Handler = r
	if len(opts.CORSAllowedOrigins) > 0 {
		out = newCORSMiddleware(opts.CORSAllowedOrigins).handler(out)
	}
	return metrics.InstrumentHandler(out), nil
}

func (h *handler) createApplication(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		GroupID string `json:"group_id"`
		Comment string `json:"comment"`
	}
	if err := decodeJSON(r.Body, &payload); err != nil {
		writeErrorCode(w, http.StatusBadRequest, "bad_request", err.Error())
		return
	}
	if strings.TrimSpace(payload.GroupID) == "" {
		writeErrorCode(w, http.StatusBadRequest, "bad_request", "group_id is required")
		return
	}

	created, err := h.app.Applications.Create(r.Context(), actorFrom(r.Context()), payload.GroupID, payload.Comment)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, created)
}

func (h *handler) listApplications(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	f := application.Filter{
		GroupID:   q.Get("group_id"),
		ProgramID: q.Get("program_id"),
	}
	if raw := q.Get("status"); raw != "" {
		status := application.Status(raw)
		if !status.Valid() {
			writeErrorCode(w, http.StatusBadRequest, "bad_request", "unknown status "+raw)
			return
		}
		f.Status = status
	}
	if raw := q.Get("year"); raw != "" {
		year, err := strconv.Atoi(raw)
		if err != nil {
			writeErrorCode(w, http.StatusBadRequest, "bad_request", "year must be an integer")
			return
		}
		f.Year = year
	}

	views, err := h.app.Applications.List(r.Context(), actorFrom(r.Context()), f)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, views)
}

func (h *handler) listMyApplications(w http.ResponseWriter, r *http.Request) {
	views, err := h.app.Applications.ListMine(r.Context(), actorFrom(r.Context()))
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, views)
}

func (h *handler) getApplication(w http.ResponseWriter, r *http.Request) {
	found, err := h.app.Applications.Get(r.Context(), actorFrom(r.Context()), chi.URLParam(r, "id"))
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, found)
}

func (h *handler) transitionApplication(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		Status string `json:"status"`
		Reason string `json:"reason"`
	}
	if err := decodeJSON(r.Body, &payload); err != nil {
		writeErrorCode(w, http.StatusBadRequest, "bad_request", err.Error())
		return
	}
	target := application.Status(payload.Status)
	if !target.Valid() {
		writeErrorCode(w, http.StatusBadRequest, "bad_request", "unknown status "+payload.Status)
		return
	}

	updated, err := h.app.Applications.Transition(r.Context(), actorFrom(r.Context()), chi.URLParam(r, "id"), target, payload.Reason)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, updated)
}

func (h *handler) cancelApplication(w http.ResponseWriter, r *http.Request) {
	updated, err := h.app.Applications.Cancel(r.Context(), actorFrom(r.Context()), chi.URLParam(r, "id"))
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, updated)
}

func (h *handler) recordInterview(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		Result  string `json:"result"`
		Comment string `json:"comment"`
	}
	if err := decodeJSON(r.Body, &payload); err != nil {
		writeErrorCode(w, http.StatusBadRequest, "bad_request", err.Error())
		return
	}

	saved, err := h.app.Interviews.Record(r.Context(), actorFrom(r.Context()), chi.URLParam(r, "id"), interview.Result(payload.Result), payload.Comment)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, saved)
}

func (h *handler) getInterview(w http.ResponseWriter, r *http.Request) {
	in, err := h.app.Interviews.Get(r.Context(), actorFrom(r.Context()), chi.URLParam(r, "id"))
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, in)
}

func (h *handler) applicationHistory(w http.ResponseWriter, r *http.Request) {
	changes, err := h.app.Applications.History(r.Context(), actorFrom(r.Context()), chi.URLParam(r, "id"))
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, changes)
}

func (h *handler) groupStudents(w http.ResponseWriter, r *http.Request) {
	students, err := h.app.Applications.GroupStudents(r.Context(), actorFrom(r.Context()), chi.URLParam(r, "id"))
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	if students == nil {
		students = []string{}
	}
	writeJSON(w, http.StatusOK, students)
}

func (h *handler) teacherProgramAccess(w http.ResponseWriter, r *http.Request) {
	ok, err := h.app.Applications.TeacherProgramAccess(r.Context(), actorFrom(r.Context()), chi.URLParam(r, "id"))
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"ok": ok})
}

func (h *handler) auditTrail(w http.ResponseWriter, r *http.Request) {
	if !actorFrom(r.Context()).IsStaff() {
		writeErrorCode(w, http.StatusForbidden, "forbidden", "the action is not permitted")
		return
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	writeJSON(w, http.StatusOK, h.audit.listLimit(limit))
}
