package integration

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/charmbracelet/log"
)

// XCredentials is everything the service stores about the X integration.
// Either a user OAuth token or an app bearer token is enough for discovery.
type XCredentials struct {
	BearerToken  string          `json:"bearer_token,omitempty"`
	AccessToken  string          `json:"access_token,omitempty"`
	RefreshToken string          `json:"refresh_token,omitempty"`
	ExpiresAt    string          `json:"expires_at,omitempty"`
	Connected    bool            `json:"connected"`
	UpdatedAt    string          `json:"updated_at,omitempty"`
	User         json.RawMessage `json:"user,omitempty"`
}

// Token returns whichever credential is usable for API calls.
func (c XCredentials) Token() string {
	if c.AccessToken != "" {
		return c.AccessToken
	}
	return c.BearerToken
}

// HasKeys reports whether any credential material is present.
func (c XCredentials) HasKeys() bool {
	return c.BearerToken != "" || c.AccessToken != ""
}

type pendingOAuth struct {
	State        string `json:"state"`
	CodeVerifier string `json:"code_verifier"`
	CreatedAt    string `json:"created_at"`
}

// Store keeps integration credentials as one JSON file per integration under
// the storage root. Unreadable files degrade to empty credentials.
type Store struct {
	dir    string
	logger *log.Logger
	mu     sync.Mutex
}

// NewStore creates the integrations directory under root.
func NewStore(root string, logger *log.Logger) (*Store, error) {
	dir := filepath.Join(root, "integrations")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create integrations dir: %w", err)
	}
	return &Store{dir: dir, logger: logger}, nil
}

func (s *Store) path(name string) string {
	return filepath.Join(s.dir, name+".json")
}

func (s *Store) load(name string, v any) bool {
	data, err := os.ReadFile(s.path(name))
	if err != nil {
		return false
	}
	if err := json.Unmarshal(data, v); err != nil {
		s.logger.Warn("skipping corrupt integration record", "integration", name, "error", err)
		return false
	}
	return true
}

func (s *Store) save(name string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal integration %s: %w", name, err)
	}
	if err := os.WriteFile(s.path(name), data, 0o600); err != nil {
		return fmt.Errorf("failed to write integration %s: %w", name, err)
	}
	return nil
}

// LoadX reads the stored X credentials, empty when absent or corrupt.
func (s *Store) LoadX() XCredentials {
	s.mu.Lock()
	defer s.mu.Unlock()

	var creds XCredentials
	s.load("x", &creds)
	return creds
}

// SaveX persists the X credentials, stamping connectivity and update time.
func (s *Store) SaveX(creds XCredentials) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	creds.Connected = creds.HasKeys()
	creds.UpdatedAt = time.Now().UTC().Format(time.RFC3339)
	return s.save("x", creds)
}

func (s *Store) savePending(p pendingOAuth) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.save("x_pending", p)
}

func (s *Store) loadPending() (pendingOAuth, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var p pendingOAuth
	ok := s.load("x_pending", &p)
	return p, ok
}

func (s *Store) clearPending() {
	s.mu.Lock()
	defer s.mu.Unlock()
	_ = os.Remove(s.path("x_pending"))
}
