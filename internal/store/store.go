package store

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"

	"github.com/listening-buddy/backend/internal/model/insight"
	"github.com/listening-buddy/backend/internal/model/session"
)

var ErrSessionNotFound = errors.New("session not found")

const (
	sessionFile    = "session.json"
	transcriptFile = "transcript.txt"
	insightsFile   = "insights.jsonl"
	profileFile    = "interest_profile.json"
)

// Store persists sessions as flat per-session directories under one root:
// a JSON registry record, an append-only transcript, and an append-only
// insight log. Each session has exactly one writer at a time; reads are safe
// concurrently because both logs only ever grow.
type Store struct {
	root   string
	logger *log.Logger

	// Guards read-modify-write of session records and the insight tail check.
	mu sync.Mutex
}

// New creates the storage root if needed.
func New(root string, logger *log.Logger) (*Store, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create storage root: %w", err)
	}
	return &Store{root: root, logger: logger}, nil
}

// NewSessionID generates a session identity with enough entropy that two
// bridges can never collide on one directory.
func NewSessionID() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")
}

func (s *Store) sessionDir(id string) string {
	return filepath.Join(s.root, id)
}

// CreateSession provisions the session directory and writes the initial record.
func (s *Store) CreateSession(sess session.Session) error {
	if sess.ID == "" {
		return fmt.Errorf("session id is required")
	}

	if err := os.MkdirAll(s.sessionDir(sess.ID), 0o755); err != nil {
		return fmt.Errorf("failed to create session dir: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	return s.writeSession(sess)
}

// GetSession reads one session record. Missing or corrupt records both come
// back as ErrSessionNotFound; corruption is logged, never propagated.
func (s *Store) GetSession(id string) (session.Session, error) {
	data, err := os.ReadFile(filepath.Join(s.sessionDir(id), sessionFile))
	if err != nil {
		return session.Session{}, ErrSessionNotFound
	}

	var sess session.Session
	if err := json.Unmarshal(data, &sess); err != nil {
		s.logger.Warn("skipping corrupt session record", "session", id, "error", err)
		return session.Session{}, ErrSessionNotFound
	}
	return sess, nil
}

// UpdateSession applies mutate to the stored record under the store lock.
// The relay bridge's owner loop is the only caller while a session is active.
func (s *Store) UpdateSession(id string, mutate func(*session.Session)) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(filepath.Join(s.sessionDir(id), sessionFile))
	if err != nil {
		return ErrSessionNotFound
	}

	var sess session.Session
	if err := json.Unmarshal(data, &sess); err != nil {
		return ErrSessionNotFound
	}

	mutate(&sess)
	return s.writeSession(sess)
}

// ListSessions returns every readable session record, newest first. Corrupt
// or foreign directories are skipped.
func (s *Store) ListSessions() ([]session.Session, error) {
	entries, err := os.ReadDir(s.root)
	if err != nil {
		return nil, nil
	}

	sessions := make([]session.Session, 0, len(entries))
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		sess, err := s.GetSession(entry.Name())
		if err != nil {
			continue
		}
		sessions = append(sessions, sess)
	}

	sort.Slice(sessions, func(i, j int) bool {
		return sessions[i].StartedAt.After(sessions[j].StartedAt)
	})
	return sessions, nil
}

// writeSession atomically replaces the record file. Callers hold s.mu.
func (s *Store) writeSession(sess session.Session) error {
	data, err := json.MarshalIndent(sess, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal session: %w", err)
	}

	path := filepath.Join(s.sessionDir(sess.ID), sessionFile)
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("failed to write session record: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("failed to replace session record: %w", err)
	}
	return nil
}

// AppendTranscript appends one finalized segment with a trailing separator.
// Segments are never edited or reordered afterwards.
func (s *Store) AppendTranscript(id, text string) error {
	f, err := os.OpenFile(
		filepath.Join(s.sessionDir(id), transcriptFile),
		os.O_APPEND|os.O_CREATE|os.O_WRONLY,
		0o644,
	)
	if err != nil {
		return fmt.Errorf("failed to open transcript: %w", err)
	}
	defer f.Close()

	if _, err := f.WriteString(text + "\n"); err != nil {
		return fmt.Errorf("failed to append transcript: %w", err)
	}
	return nil
}

// ReadTranscript returns the transcript so far. A session with no speech yet
// reads as empty, not as an error.
func (s *Store) ReadTranscript(id string) (string, error) {
	data, err := os.ReadFile(filepath.Join(s.sessionDir(id), transcriptFile))
	if err != nil {
		if os.IsNotExist(err) {
			return "", nil
		}
		return "", fmt.Errorf("failed to read transcript: %w", err)
	}
	return string(data), nil
}

// AppendInsight appends entry unless it matches the current tail in notes and
// artifacts. Returns whether the log actually grew.
func (s *Store) AppendInsight(id string, entry insight.Entry) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if tail, ok := s.latestInsightLocked(id); ok && tail.SameContent(entry) {
		return false, nil
	}

	data, err := json.Marshal(entry)
	if err != nil {
		return false, fmt.Errorf("failed to marshal insight entry: %w", err)
	}

	f, err := os.OpenFile(
		filepath.Join(s.sessionDir(id), insightsFile),
		os.O_APPEND|os.O_CREATE|os.O_WRONLY,
		0o644,
	)
	if err != nil {
		return false, fmt.Errorf("failed to open insight log: %w", err)
	}
	defer f.Close()

	if _, err := f.Write(append(data, '\n')); err != nil {
		return false, fmt.Errorf("failed to append insight entry: %w", err)
	}
	return true, nil
}

// ReadInsights returns the ordered insight history. Corrupt lines are skipped.
func (s *Store) ReadInsights(id string) ([]insight.Entry, error) {
	f, err := os.Open(filepath.Join(s.sessionDir(id), insightsFile))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to open insight log: %w", err)
	}
	defer f.Close()

	var entries []insight.Entry
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		var entry insight.Entry
		if err := json.Unmarshal([]byte(line), &entry); err != nil {
			s.logger.Warn("skipping corrupt insight entry", "session", id, "error", err)
			continue
		}
		entries = append(entries, entry)
	}
	if err := scanner.Err(); err != nil {
		return entries, fmt.Errorf("failed to scan insight log: %w", err)
	}
	return entries, nil
}

// LatestInsight returns the tail entry, if any.
func (s *Store) LatestInsight(id string) (insight.Entry, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.latestInsightLocked(id)
}

func (s *Store) latestInsightLocked(id string) (insight.Entry, bool) {
	f, err := os.Open(filepath.Join(s.sessionDir(id), insightsFile))
	if err != nil {
		return insight.Entry{}, false
	}
	defer f.Close()

	var (
		last  insight.Entry
		found bool
	)
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		var entry insight.Entry
		if err := json.Unmarshal([]byte(line), &entry); err != nil {
			continue
		}
		last = entry
		found = true
	}
	return last, found
}

// ReadProfile loads the process-wide interest profile cache.
func (s *Store) ReadProfile() (insight.InterestProfile, bool) {
	data, err := os.ReadFile(filepath.Join(s.root, profileFile))
	if err != nil {
		return insight.InterestProfile{}, false
	}

	var profile insight.InterestProfile
	if err := json.Unmarshal(data, &profile); err != nil {
		s.logger.Warn("skipping corrupt interest profile", "error", err)
		return insight.InterestProfile{}, false
	}
	if profile.GeneratedAt.IsZero() && profile.Themes == "" {
		return insight.InterestProfile{}, false
	}
	return profile, true
}

// WriteProfile replaces the cached interest profile.
func (s *Store) WriteProfile(profile insight.InterestProfile) error {
	if profile.GeneratedAt.IsZero() {
		profile.GeneratedAt = time.Now().UTC()
	}

	data, err := json.MarshalIndent(profile, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal interest profile: %w", err)
	}

	path := filepath.Join(s.root, profileFile)
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("failed to write interest profile: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("failed to replace interest profile: %w", err)
	}
	return nil
}
