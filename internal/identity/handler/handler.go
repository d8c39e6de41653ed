// Package handler exposes read-only athlete lookups over HTTP for warehouse
// loaders and dashboards that need canonical IDs without running an attach.
package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"roster/internal/identity/models"
	id "roster/pkg/domain"
	dErrors "roster/pkg/domain-errors"
	"roster/pkg/platform/httputil"
	"roster/pkg/requestcontext"
)

//go:generate mockgen -source=handler.go -destination=mocks/mocks.go -package=mocks Service

// Service is the slice of the identity service the lookup API needs.
type Service interface {
	Athlete(ctx context.Context, athleteID id.AthleteID) (*models.Athlete, error)
	Resolve(ctx context.Context, name string, system models.SourceSystem) (*models.Match, error)
}

type Handler struct {
	service Service
	logger  *slog.Logger
}

func New(service Service, logger *slog.Logger) *Handler {
	return &Handler{service: service, logger: logger}
}

// Register mounts the lookup endpoints on the router.
func (h *Handler) Register(r chi.Router) {
	r.Get("/athletes/resolve", h.HandleResolve)
	r.Get("/athletes/{id}", h.HandleGetAthlete)
}

// HandleGetAthlete handles GET /athletes/{id}.
func (h *Handler) HandleGetAthlete(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	athleteID, err := id.ParseAthleteID(chi.URLParam(r, "id"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	a, err := h.service.Athlete(ctx, athleteID)
	if err != nil {
		h.failed(ctx, "athlete lookup failed", err, "athlete_id", athleteID)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, FromAthlete(a))
}

// HandleResolve handles GET /athletes/resolve?name=...&source=....
func (h *Handler) HandleResolve(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	start := requestcontext.Now(ctx)
	name := r.URL.Query().Get("name")
	system, err := models.ParseSourceSystem(r.URL.Query().Get("source"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	if name == "" {
		httputil.WriteError(w, dErrors.New(dErrors.CodeInvalidInput, "name is required"))
		return
	}

	m, err := h.service.Resolve(ctx, name, system)
	if err != nil {
		h.failed(ctx, "athlete resolve failed", err, "source_system", system)
		httputil.WriteError(w, err)
		return
	}

	h.logger.InfoContext(ctx, "athlete resolved",
		"run_id", requestcontext.RunID(ctx),
		"source_system", system,
		"athlete_id", m.Athlete.ID,
		"method", m.Method,
		"duration_ms", time.Since(start).Milliseconds(),
	)
	httputil.WriteJSON(w, http.StatusOK, MatchResponse{
		Athlete: FromAthlete(m.Athlete),
		Method:  string(m.Method),
		Score:   m.Score,
	})
}

// failed logs server-side failures; lookups that simply miss are not logged.
func (h *Handler) failed(ctx context.Context, msg string, err error, attrs ...any) {
	if httputil.StatusFor(dErrors.CodeOf(err)) < http.StatusInternalServerError {
		return
	}
	attrs = append(attrs, "run_id", requestcontext.RunID(ctx), "error", err)
	h.logger.ErrorContext(ctx, msg, attrs...)
}
