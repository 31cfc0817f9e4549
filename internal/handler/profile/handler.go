package profile

import (
	"net/http"

	"github.com/charmbracelet/log"
	"github.com/go-chi/chi/v5"

	"github.com/listening-buddy/backend/internal/service/discovery"
	"github.com/listening-buddy/backend/pkg/utils"
)

// Handler serves the listener interest profile.
type Handler struct {
	profiles *discovery.ProfileService
	logger   *log.Logger
}

// New creates the profile handler.
func New(profiles *discovery.ProfileService, logger *log.Logger) *Handler {
	return &Handler{profiles: profiles, logger: logger}
}

// RegisterRoutes mounts the interest endpoints.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/interests", h.getInterests)
}

// getInterests returns the cached profile, rebuilding it from liked content
// when refresh is requested or nothing is cached yet.
func (h *Handler) getInterests(w http.ResponseWriter, r *http.Request) {
	refresh := r.URL.Query().Get("refresh") == "1" || r.URL.Query().Get("refresh") == "true"

	prof, err := h.profiles.Get(r.Context(), refresh)
	if err != nil {
		h.logger.Warn("failed to build interest profile", "error", err)
		utils.RespondError(w, http.StatusBadGateway, "failed to build interest profile")
		return
	}
	utils.RespondJSON(w, http.StatusOK, prof)
}
