package integration

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/charmbracelet/log"
	"github.com/go-chi/chi/v5"

	"github.com/listening-buddy/backend/internal/integration"
	"github.com/listening-buddy/backend/pkg/utils"
)

// Handler exposes the X integration surface: status checks, manual key
// entry, and the OAuth connect flow. Credential material never leaves the
// server; status responses only say whether keys are present.
type Handler struct {
	store  *integration.Store
	oauth  *integration.OAuthFlow
	logger *log.Logger
}

// New creates the integration handler.
func New(store *integration.Store, oauth *integration.OAuthFlow, logger *log.Logger) *Handler {
	return &Handler{store: store, oauth: oauth, logger: logger}
}

// RegisterRoutes mounts the integration endpoints.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/integrations", h.list)
	r.Get("/integrations/x", h.status)
	r.Post("/integrations/x", h.setKeys)
	r.Delete("/integrations/x", h.disconnect)
	r.Get("/integrations/x/oauth/start", h.connect)
	r.Get("/integrations/x/oauth/callback", h.callback)
}

type statusResponse struct {
	Connected    bool            `json:"connected"`
	HasKeys      bool            `json:"has_keys"`
	OAuthEnabled bool            `json:"oauth_enabled"`
	UpdatedAt    string          `json:"updated_at,omitempty"`
	User         json.RawMessage `json:"user,omitempty"`
}

// list enumerates every integration the service knows about.
func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	creds := h.store.LoadX()
	utils.RespondJSON(w, http.StatusOK, map[string]any{
		"integrations": map[string]any{
			"x": statusResponse{
				Connected:    creds.Connected,
				HasKeys:      creds.HasKeys(),
				OAuthEnabled: h.oauth.Configured(),
				UpdatedAt:    creds.UpdatedAt,
			},
		},
	})
}

func (h *Handler) status(w http.ResponseWriter, r *http.Request) {
	creds := h.store.LoadX()
	utils.RespondJSON(w, http.StatusOK, statusResponse{
		Connected:    creds.Connected,
		HasKeys:      creds.HasKeys(),
		OAuthEnabled: h.oauth.Configured(),
		UpdatedAt:    creds.UpdatedAt,
		User:         creds.User,
	})
}

type setKeysRequest struct {
	BearerToken string `json:"bearer_token"`
}

// setKeys stores an app bearer token supplied directly by the operator,
// replacing any OAuth tokens.
func (h *Handler) setKeys(w http.ResponseWriter, r *http.Request) {
	var req setKeysRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		utils.RespondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if strings.TrimSpace(req.BearerToken) == "" {
		utils.RespondError(w, http.StatusBadRequest, "bearer_token is required")
		return
	}

	if err := h.store.SaveX(integration.XCredentials{BearerToken: strings.TrimSpace(req.BearerToken)}); err != nil {
		h.logger.Error("failed to save integration keys", "error", err)
		utils.RespondError(w, http.StatusInternalServerError, "failed to save keys")
		return
	}
	utils.RespondJSON(w, http.StatusOK, map[string]bool{"connected": true})
}

func (h *Handler) disconnect(w http.ResponseWriter, r *http.Request) {
	if err := h.store.SaveX(integration.XCredentials{}); err != nil {
		h.logger.Error("failed to clear integration keys", "error", err)
		utils.RespondError(w, http.StatusInternalServerError, "failed to disconnect")
		return
	}
	utils.RespondJSON(w, http.StatusOK, map[string]bool{"connected": false})
}

// connect begins the OAuth handshake and redirects the browser to X.
func (h *Handler) connect(w http.ResponseWriter, r *http.Request) {
	if !h.oauth.Configured() {
		utils.RespondError(w, http.StatusServiceUnavailable, "x oauth not configured")
		return
	}

	authURL, _, err := h.oauth.Start()
	if err != nil {
		h.logger.Error("failed to start oauth flow", "error", err)
		utils.RespondError(w, http.StatusInternalServerError, "failed to start oauth flow")
		return
	}
	http.Redirect(w, r, authURL, http.StatusTemporaryRedirect)
}

// callback completes the OAuth handshake. The response is a tiny HTML page
// because the browser lands here directly.
func (h *Handler) callback(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	if errCode := query.Get("error"); errCode != "" {
		h.logger.Warn("oauth callback returned error", "error", errCode)
		h.renderResult(w, false, "Authorization was denied.")
		return
	}

	code := query.Get("code")
	state := query.Get("state")
	if code == "" || state == "" {
		h.renderResult(w, false, "Missing code or state.")
		return
	}

	if err := h.oauth.Callback(r.Context(), code, state); err != nil {
		h.logger.Error("oauth callback failed", "error", err)
		h.renderResult(w, false, "Could not complete the connection.")
		return
	}
	h.renderResult(w, true, "X is connected. You can close this window.")
}

func (h *Handler) renderResult(w http.ResponseWriter, ok bool, message string) {
	status := http.StatusOK
	heading := "Connected"
	if !ok {
		status = http.StatusBadRequest
		heading = "Connection failed"
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	fmt.Fprintf(w, "<!doctype html><html><body><h1>%s</h1><p>%s</p><script>setTimeout(function(){window.close()},1500)</script></body></html>", heading, message)
}
