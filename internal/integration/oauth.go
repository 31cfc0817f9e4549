package integration

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/charmbracelet/log"

	"github.com/listening-buddy/backend/internal/config"
)

// OAuthFlow drives the X OAuth 2.0 PKCE handshake. It is a thin collaborator:
// start builds the authorization URL and parks the verifier; callback trades
// the code for tokens and persists them.
type OAuthFlow struct {
	cfg    config.XConfig
	store  *Store
	client *http.Client
	logger *log.Logger
}

// NewOAuthFlow builds the flow over the integration store.
func NewOAuthFlow(cfg config.XConfig, store *Store, logger *log.Logger) *OAuthFlow {
	return &OAuthFlow{
		cfg:    cfg,
		store:  store,
		client: &http.Client{Timeout: 15 * time.Second},
		logger: logger,
	}
}

// Configured reports whether the OAuth client is usable.
func (f *OAuthFlow) Configured() bool {
	return f.cfg.Enabled()
}

func randomToken(n int) (string, error) {
	buf := make([]byte, n)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("failed to generate random token: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}

func codeChallenge(verifier string) string {
	digest := sha256.Sum256([]byte(verifier))
	return base64.RawURLEncoding.EncodeToString(digest[:])
}

// Start returns the authorization URL the user should visit and the state
// token bound to it.
func (f *OAuthFlow) Start() (authURL, state string, err error) {
	if !f.Configured() {
		return "", "", fmt.Errorf("X_CLIENT_ID not configured")
	}

	state, err = randomToken(16)
	if err != nil {
		return "", "", err
	}
	verifier, err := randomToken(64)
	if err != nil {
		return "", "", err
	}

	params := url.Values{}
	params.Set("response_type", "code")
	params.Set("client_id", f.cfg.ClientID)
	params.Set("redirect_uri", f.cfg.RedirectURI)
	params.Set("scope", f.cfg.Scopes)
	params.Set("state", state)
	params.Set("code_challenge", codeChallenge(verifier))
	params.Set("code_challenge_method", "S256")

	pending := pendingOAuth{
		State:        state,
		CodeVerifier: verifier,
		CreatedAt:    time.Now().UTC().Format(time.RFC3339),
	}
	if err := f.store.savePending(pending); err != nil {
		return "", "", err
	}

	return f.cfg.AuthURL + "?" + params.Encode(), state, nil
}

// Callback completes the handshake: verifies state, exchanges the code, looks
// up the connected user, and persists the credentials.
func (f *OAuthFlow) Callback(ctx context.Context, code, state string) error {
	pending, ok := f.store.loadPending()
	if !ok || pending.State != state {
		return fmt.Errorf("invalid or missing oauth state")
	}
	if pending.CodeVerifier == "" {
		return fmt.Errorf("missing code verifier")
	}

	form := url.Values{}
	form.Set("grant_type", "authorization_code")
	form.Set("client_id", f.cfg.ClientID)
	form.Set("redirect_uri", f.cfg.RedirectURI)
	form.Set("code", code)
	form.Set("code_verifier", pending.CodeVerifier)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, f.cfg.TokenURL, strings.NewReader(form.Encode()))
	if err != nil {
		return fmt.Errorf("failed to build token request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	if f.cfg.ClientSecret != "" {
		req.SetBasicAuth(f.cfg.ClientID, f.cfg.ClientSecret)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return fmt.Errorf("token exchange failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("token exchange read failed: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("token exchange failed with status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var token struct {
		AccessToken  string `json:"access_token"`
		RefreshToken string `json:"refresh_token"`
		ExpiresIn    int    `json:"expires_in"`
	}
	if err := json.Unmarshal(body, &token); err != nil {
		return fmt.Errorf("token exchange response malformed: %w", err)
	}

	creds := XCredentials{
		AccessToken:  token.AccessToken,
		RefreshToken: token.RefreshToken,
	}
	if token.ExpiresIn > 0 {
		creds.ExpiresAt = time.Now().UTC().Add(time.Duration(token.ExpiresIn) * time.Second).Format(time.RFC3339)
	}

	// User lookup is informational; failure is not fatal to the handshake.
	if token.AccessToken != "" {
		if user, err := f.fetchUser(ctx, token.AccessToken); err != nil {
			f.logger.Warn("user lookup failed after oauth", "error", err)
		} else {
			creds.User = user
		}
	}

	if err := f.store.SaveX(creds); err != nil {
		return err
	}
	f.store.clearPending()

	f.logger.Info("x integration connected")
	return nil
}

func (f *OAuthFlow) fetchUser(ctx context.Context, accessToken string) (json.RawMessage, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, f.cfg.APIBaseURL+"/users/me", nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("user lookup returned status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	return json.RawMessage(body), nil
}
