package api

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"
	"github.com/tendant/social-content/pkg/socialcontent/sweep"
)

// AdminHandler exposes maintenance operations
type AdminHandler struct {
	sweeper *sweep.Sweeper
	logger  *slog.Logger
}

// NewAdminHandler creates a new admin handler
func NewAdminHandler(sweeper *sweep.Sweeper, logger *slog.Logger) *AdminHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &AdminHandler{sweeper: sweeper, logger: logger}
}

// Routes returns the routes for admin endpoints
func (h *AdminHandler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Post("/sweep", h.Sweep)
	return r
}

// Sweep runs the purge sweep. It is a dry run unless apply=true.
func (h *AdminHandler) Sweep(w http.ResponseWriter, r *http.Request) {
	apply := false
	if raw := r.URL.Query().Get("apply"); raw != "" {
		parsed, err := strconv.ParseBool(raw)
		if err != nil {
			badRequest(w, r, "Invalid apply flag")
			return
		}
		apply = parsed
	}

	result, err := h.sweeper.Run(r.Context(), apply)
	if err != nil {
		writeError(w, r, h.logger, "Sweep failed", err)
		return
	}
	h.logger.Info("Sweep finished",
		"dry_run", result.DryRun,
		"candidates", result.Candidates,
		"deleted", result.Deleted,
		"failed", result.Failed,
		"reclaimed_bytes", result.ReclaimedBytes)
	render.JSON(w, r, result)
}
