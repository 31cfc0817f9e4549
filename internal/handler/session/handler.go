package session

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"unicode/utf8"

	"github.com/charmbracelet/log"
	"github.com/go-chi/chi/v5"

	insightmodel "github.com/listening-buddy/backend/internal/model/insight"
	"github.com/listening-buddy/backend/internal/service/insight"
	"github.com/listening-buddy/backend/internal/service/speech"
	"github.com/listening-buddy/backend/internal/store"
	"github.com/listening-buddy/backend/pkg/utils"
)

// Handler serves the session query surface: listing, transcripts, titles,
// insights, artifacts, and question answering.
type Handler struct {
	sessions    *store.Store
	insights    *insight.Service
	synthesizer *speech.Synthesizer
	logger      *log.Logger
}

// New creates the session handler.
func New(sessions *store.Store, insights *insight.Service, synthesizer *speech.Synthesizer, logger *log.Logger) *Handler {
	return &Handler{
		sessions:    sessions,
		insights:    insights,
		synthesizer: synthesizer,
		logger:      logger,
	}
}

// RegisterRoutes mounts the session endpoints.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/sessions", h.listSessions)
	r.Get("/sessions/{sessionID}", h.getSession)
	r.Get("/sessions/{sessionID}/transcript", h.getTranscript)
	r.Get("/sessions/{sessionID}/title", h.getTitle)
	r.Get("/sessions/{sessionID}/insights", h.getInsights)
	r.Get("/sessions/{sessionID}/artifacts", h.getArtifacts)
	r.Post("/sessions/{sessionID}/ask", h.ask)
	r.Post("/sessions/{sessionID}/ask/speech", h.askSpeech)
}

func (h *Handler) listSessions(w http.ResponseWriter, r *http.Request) {
	sessions, err := h.sessions.ListSessions()
	if err != nil {
		h.logger.Error("failed to list sessions", "error", err)
		utils.RespondError(w, http.StatusInternalServerError, "failed to list sessions")
		return
	}
	utils.RespondJSON(w, http.StatusOK, map[string]any{"sessions": sessions})
}

func (h *Handler) getSession(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "sessionID")
	sess, err := h.sessions.GetSession(id)
	if err != nil {
		utils.RespondError(w, http.StatusNotFound, "session not found")
		return
	}
	utils.RespondJSON(w, http.StatusOK, sess)
}

func (h *Handler) getTranscript(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "sessionID")
	transcript, err := h.insights.Transcript(r.Context(), id)
	if err != nil {
		h.respondServiceError(w, id, err)
		return
	}
	utils.RespondJSON(w, http.StatusOK, map[string]string{
		"session_id": id,
		"transcript": transcript,
	})
}

func (h *Handler) getTitle(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "sessionID")
	title, err := h.insights.Title(r.Context(), id)
	if err != nil {
		h.respondServiceError(w, id, err)
		return
	}
	utils.RespondJSON(w, http.StatusOK, map[string]string{
		"session_id": id,
		"title":      title,
	})
}

func (h *Handler) getInsights(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "sessionID")
	entries, err := h.insights.Insights(r.Context(), id)
	if err != nil {
		h.respondServiceError(w, id, err)
		return
	}
	if entries == nil {
		entries = []insightmodel.Entry{}
	}
	utils.RespondJSON(w, http.StatusOK, map[string]any{
		"session_id": id,
		"insights":   entries,
	})
}

func (h *Handler) getArtifacts(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "sessionID")
	refresh := r.URL.Query().Get("refresh") == "1" || r.URL.Query().Get("refresh") == "true"

	artifacts, query, err := h.insights.Artifacts(r.Context(), id, refresh)
	if err != nil {
		h.respondServiceError(w, id, err)
		return
	}
	if artifacts == nil {
		artifacts = []insightmodel.Artifact{}
	}
	utils.RespondJSON(w, http.StatusOK, map[string]any{
		"session_id": id,
		"query":      query,
		"artifacts":  artifacts,
	})
}

type askRequest struct {
	Question string `json:"question"`
	Voice    string `json:"voice"`
	Format   string `json:"format"`
}

func (h *Handler) ask(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "sessionID")
	req, ok := h.decodeAsk(w, r)
	if !ok {
		return
	}

	answer, err := h.insights.Answer(r.Context(), id, req.Question)
	if err != nil {
		h.respondServiceError(w, id, err)
		return
	}
	utils.RespondJSON(w, http.StatusOK, map[string]string{
		"session_id": id,
		"question":   req.Question,
		"answer":     answer,
	})
}

// askSpeech answers the question and streams the spoken answer back as audio.
func (h *Handler) askSpeech(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "sessionID")
	req, ok := h.decodeAsk(w, r)
	if !ok {
		return
	}

	answer, err := h.insights.Answer(r.Context(), id, req.Question)
	if err != nil {
		h.respondServiceError(w, id, err)
		return
	}

	audio, mimeType, err := h.synthesizer.Synthesize(r.Context(), answer, req.Voice, req.Format)
	if err != nil {
		if errors.Is(err, speech.ErrNotConfigured) {
			utils.RespondError(w, http.StatusServiceUnavailable, "speech synthesis not configured")
			return
		}
		h.logger.Error("speech synthesis failed", "session_id", id, "error", err)
		utils.RespondError(w, http.StatusBadGateway, "speech synthesis failed")
		return
	}

	w.Header().Set("Content-Type", mimeType)
	w.Header().Set("X-Answer-Text", sanitizeHeader(answer))
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(audio); err != nil {
		h.logger.Warn("failed to write audio response", "session_id", id, "error", err)
	}
}

func (h *Handler) decodeAsk(w http.ResponseWriter, r *http.Request) (askRequest, bool) {
	var req askRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		utils.RespondError(w, http.StatusBadRequest, "invalid request body")
		return askRequest{}, false
	}
	if strings.TrimSpace(req.Question) == "" {
		utils.RespondError(w, http.StatusBadRequest, "question is required")
		return askRequest{}, false
	}
	return req, true
}

func (h *Handler) respondServiceError(w http.ResponseWriter, sessionID string, err error) {
	switch {
	case errors.Is(err, insight.ErrSessionNotFound):
		utils.RespondError(w, http.StatusNotFound, "session not found")
	case errors.Is(err, insight.ErrNoTranscript):
		utils.RespondError(w, http.StatusConflict, "no transcript available yet")
	default:
		h.logger.Error("session request failed", "session_id", sessionID, "error", err)
		utils.RespondError(w, http.StatusBadGateway, "upstream request failed")
	}
}

// sanitizeHeader strips characters that are not valid in a header value and
// caps the length without splitting a UTF-8 sequence.
func sanitizeHeader(s string) string {
	s = strings.ReplaceAll(s, "\n", " ")
	s = strings.ReplaceAll(s, "\r", " ")
	const limit = 500
	if len(s) <= limit {
		return s
	}
	cut := limit
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut]
}
