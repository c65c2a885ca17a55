// Package handlers provides HTTP request handlers for the draw service.
package handlers

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/lottoworks/drawstack/common/httputil"
	"github.com/lottoworks/drawstack/common/logging"
	"github.com/lottoworks/drawstack/draw/internal/repository"
	"github.com/lottoworks/drawstack/draw/internal/service"
	"github.com/lottoworks/drawstack/draw/pkg/model"
)

// Orchestrator is the draw and export surface exposed over HTTP.
type Orchestrator interface {
	RunDueDraws(ctx context.Context) (*service.BatchResult, error)
	RunExports(ctx context.Context) (*service.BatchResult, error)
	DrawLottery(ctx context.Context, lottery *model.Lottery) (*service.DrawOutcome, error)
}

// ReadyCheck reports whether a dependency can serve traffic.
type ReadyCheck func(ctx context.Context) error

// Handler provides HTTP handlers for the draw service
type Handler struct {
	orch     Orchestrator
	tickets  repository.TicketStore
	schedule repository.ScheduleStore
	checks   map[string]ReadyCheck
	now      func() time.Time
	logger   *slog.Logger
}

// NewHandler creates a new Handler instance
func NewHandler(orch Orchestrator, tickets repository.TicketStore, schedule repository.ScheduleStore, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		orch:     orch,
		tickets:  tickets,
		schedule: schedule,
		checks:   make(map[string]ReadyCheck),
		now:      time.Now,
		logger:   logger.With(slog.String(logging.FieldComponent, "http")),
	}
}

// WithReadyCheck registers a dependency checked by /readyz.
func (h *Handler) WithReadyCheck(name string, check ReadyCheck) *Handler {
	h.checks[name] = check
	return h
}

// WithClock overrides the clock used to derive lottery stages.
func (h *Handler) WithClock(now func() time.Time) *Handler {
	h.now = now
	return h
}

// HealthCheck handles GET /healthz
func (h *Handler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	httputil.WriteJSON(w, http.StatusOK, map[string]string{
		"status":  "healthy",
		"service": "draw",
	})
}

// ReadyCheck handles GET /readyz
func (h *Handler) ReadyCheck(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	status := http.StatusOK
	results := make(map[string]string, len(h.checks))
	for name, check := range h.checks {
		if err := check(ctx); err != nil {
			results[name] = err.Error()
			status = http.StatusServiceUnavailable
			continue
		}
		results[name] = "ok"
	}

	state := "ready"
	if status != http.StatusOK {
		state = "not_ready"
	}
	httputil.WriteJSON(w, status, map[string]interface{}{
		"status": state,
		"checks": results,
	})
}

// writeServiceError maps domain errors onto HTTP status codes.
func (h *Handler) writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, repository.ErrLotteryNotFound):
		httputil.WriteErrorCode(w, http.StatusNotFound, "not_found", err.Error())
	case errors.Is(err, service.ErrNoTickets):
		httputil.WriteErrorCode(w, http.StatusConflict, "no_tickets", err.Error())
	case errors.Is(err, service.ErrNotDue):
		httputil.WriteErrorCode(w, http.StatusConflict, "not_due", err.Error())
	case model.IsPermanent(err):
		httputil.WriteErrorCode(w, http.StatusUnprocessableEntity, model.FailureReason(err), err.Error())
	default:
		h.logger.ErrorContext(r.Context(), "request failed",
			slog.String("path", r.URL.Path), logging.Error(err))
		httputil.WriteErrorCode(w, http.StatusInternalServerError, "internal", "internal error")
	}
}

func parseLotteryID(r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}
