package feed

import (
	"errors"
	"net/http"

	"github.com/charmbracelet/log"
	"github.com/go-chi/chi/v5"

	"github.com/listening-buddy/backend/internal/service/insight"
	"github.com/listening-buddy/backend/internal/store"
	"github.com/listening-buddy/backend/pkg/utils"
)

// Handler streams the live insight feed for a session over SSE.
type Handler struct {
	sessions *store.Store
	insights *insight.Service
	logger   *log.Logger
}

// New creates the feed handler.
func New(sessions *store.Store, insights *insight.Service, logger *log.Logger) *Handler {
	return &Handler{sessions: sessions, insights: insights, logger: logger}
}

// RegisterRoutes mounts the feed endpoint.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/sessions/{sessionID}/insights/stream", h.streamInsights)
}

func (h *Handler) streamInsights(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "sessionID")

	// Resolve the session before committing to the stream so an unknown ID
	// still gets a plain 404.
	if _, err := h.sessions.GetSession(id); err != nil {
		utils.RespondError(w, http.StatusNotFound, "session not found")
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		utils.RespondError(w, http.StatusInternalServerError, "streaming not supported")
		return
	}
	utils.SetupSSEHeaders(w)
	flusher.Flush()

	err := h.insights.Subscribe(r.Context(), id, func(event insight.FeedEvent) error {
		return utils.SendSSEChunk(w, flusher, event)
	})
	switch {
	case err == nil, errors.Is(err, r.Context().Err()):
	case errors.Is(err, insight.ErrSessionNotFound):
		h.logger.Warn("insight stream closed: session record gone", "session_id", id)
	default:
		h.logger.Warn("insight stream ended", "session_id", id, "error", err)
	}
}
