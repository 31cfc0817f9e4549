package integration

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/charmbracelet/log"
	"github.com/go-chi/chi/v5"

	"github.com/listening-buddy/backend/internal/config"
	"github.com/listening-buddy/backend/internal/integration"
)

func setupRouter(t *testing.T, cfg config.XConfig) (*chi.Mux, *integration.Store) {
	t.Helper()
	logger := log.New(io.Discard)

	store, err := integration.NewStore(t.TempDir(), logger)
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	oauth := integration.NewOAuthFlow(cfg, store, logger)

	handler := New(store, oauth, logger)
	r := chi.NewRouter()
	handler.RegisterRoutes(r)
	return r, store
}

func TestStatusDisconnected(t *testing.T) {
	r, _ := setupRouter(t, config.XConfig{})

	req := httptest.NewRequest(http.MethodGet, "/integrations/x", nil)
	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, req)

	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.Code)
	}
	var body statusResponse
	if err := json.Unmarshal(resp.Body.Bytes(), &body); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if body.Connected || body.HasKeys || body.OAuthEnabled {
		t.Errorf("expected everything off, got %+v", body)
	}
}

func TestSetKeysAndStatus(t *testing.T) {
	r, store := setupRouter(t, config.XConfig{})

	payload := []byte(`{"bearer_token":"  app-token  "}`)
	req := httptest.NewRequest(http.MethodPost, "/integrations/x", bytes.NewReader(payload))
	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, req)

	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.Code)
	}
	creds := store.LoadX()
	if creds.BearerToken != "app-token" {
		t.Errorf("token not trimmed and stored: %q", creds.BearerToken)
	}
	if !creds.Connected {
		t.Error("expected connected after key set")
	}

	// Status never echoes credential material.
	req = httptest.NewRequest(http.MethodGet, "/integrations/x", nil)
	resp = httptest.NewRecorder()
	r.ServeHTTP(resp, req)
	if strings.Contains(resp.Body.String(), "app-token") {
		t.Error("status response leaked the bearer token")
	}
}

func TestSetKeysValidation(t *testing.T) {
	r, _ := setupRouter(t, config.XConfig{})

	for _, payload := range []string{`{}`, `{"bearer_token":"   "}`, `not json`} {
		req := httptest.NewRequest(http.MethodPost, "/integrations/x", strings.NewReader(payload))
		resp := httptest.NewRecorder()
		r.ServeHTTP(resp, req)
		if resp.Code != http.StatusBadRequest {
			t.Errorf("payload %q: expected 400, got %d", payload, resp.Code)
		}
	}
}

func TestDisconnect(t *testing.T) {
	r, store := setupRouter(t, config.XConfig{})
	if err := store.SaveX(integration.XCredentials{BearerToken: "tok"}); err != nil {
		t.Fatalf("seed failed: %v", err)
	}

	req := httptest.NewRequest(http.MethodDelete, "/integrations/x", nil)
	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, req)

	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.Code)
	}
	if store.LoadX().HasKeys() {
		t.Error("expected keys cleared")
	}
}

func TestConnectUnconfigured(t *testing.T) {
	r, _ := setupRouter(t, config.XConfig{})

	req := httptest.NewRequest(http.MethodGet, "/integrations/x/oauth/start", nil)
	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, req)

	if resp.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", resp.Code)
	}
}

func TestConnectRedirects(t *testing.T) {
	r, _ := setupRouter(t, config.XConfig{
		ClientID: "client-1",
		AuthURL:  "https://twitter.com/i/oauth2/authorize",
	})

	req := httptest.NewRequest(http.MethodGet, "/integrations/x/oauth/start", nil)
	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, req)

	if resp.Code != http.StatusTemporaryRedirect {
		t.Fatalf("expected 307, got %d", resp.Code)
	}
	location := resp.Header().Get("Location")
	if !strings.HasPrefix(location, "https://twitter.com/i/oauth2/authorize?") {
		t.Errorf("unexpected redirect target %q", location)
	}
	if !strings.Contains(location, "code_challenge_method=S256") {
		t.Errorf("redirect missing pkce challenge: %q", location)
	}
}

func TestCallbackMissingParams(t *testing.T) {
	r, _ := setupRouter(t, config.XConfig{ClientID: "client-1"})

	req := httptest.NewRequest(http.MethodGet, "/integrations/x/oauth/callback", nil)
	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, req)

	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.Code)
	}
	if !strings.Contains(resp.Body.String(), "Connection failed") {
		t.Errorf("expected failure page, got %q", resp.Body.String())
	}
}

func TestCallbackDenied(t *testing.T) {
	r, _ := setupRouter(t, config.XConfig{ClientID: "client-1"})

	req := httptest.NewRequest(http.MethodGet, "/integrations/x/oauth/callback?error=access_denied", nil)
	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, req)

	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.Code)
	}
}
