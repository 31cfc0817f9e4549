package store

import (
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/charmbracelet/log"

	"github.com/listening-buddy/backend/internal/model/insight"
	"github.com/listening-buddy/backend/internal/model/session"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	st, err := New(t.TempDir(), log.New(io.Discard))
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	return st
}

func TestSessionLifecycle(t *testing.T) {
	st := newTestStore(t)
	id := NewSessionID()

	started := time.Now().UTC().Truncate(time.Second)
	if err := st.CreateSession(session.Session{ID: id, StartedAt: started, Status: session.StatusActive}); err != nil {
		t.Fatalf("create failed: %v", err)
	}

	got, err := st.GetSession(id)
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if got.Status != session.StatusActive {
		t.Fatalf("expected active status, got %q", got.Status)
	}

	now := started.Add(30 * time.Second)
	if err := st.UpdateSession(id, func(s *session.Session) {
		s.Touch(now)
	}); err != nil {
		t.Fatalf("update failed: %v", err)
	}

	got, err = st.GetSession(id)
	if err != nil {
		t.Fatalf("get after update failed: %v", err)
	}
	if got.SegmentCount != 1 {
		t.Errorf("expected segment count 1, got %d", got.SegmentCount)
	}
	if got.DurationSeconds != 30 {
		t.Errorf("expected duration 30s, got %v", got.DurationSeconds)
	}
}

func TestGetSessionUnknown(t *testing.T) {
	st := newTestStore(t)

	if _, err := st.GetSession("missing"); err != ErrSessionNotFound {
		t.Fatalf("expected ErrSessionNotFound, got %v", err)
	}
}

func TestGetSessionCorruptRecord(t *testing.T) {
	st := newTestStore(t)
	id := NewSessionID()
	if err := st.CreateSession(session.Session{ID: id, StartedAt: time.Now()}); err != nil {
		t.Fatalf("create failed: %v", err)
	}

	path := filepath.Join(st.sessionDir(id), sessionFile)
	if err := os.WriteFile(path, []byte("{not json"), 0o644); err != nil {
		t.Fatalf("failed to corrupt record: %v", err)
	}

	if _, err := st.GetSession(id); err != ErrSessionNotFound {
		t.Fatalf("expected ErrSessionNotFound for corrupt record, got %v", err)
	}
}

func TestListSessionsNewestFirst(t *testing.T) {
	st := newTestStore(t)
	base := time.Now().UTC()

	older := NewSessionID()
	newer := NewSessionID()
	if err := st.CreateSession(session.Session{ID: older, StartedAt: base.Add(-time.Hour)}); err != nil {
		t.Fatalf("create failed: %v", err)
	}
	if err := st.CreateSession(session.Session{ID: newer, StartedAt: base}); err != nil {
		t.Fatalf("create failed: %v", err)
	}

	sessions, err := st.ListSessions()
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if len(sessions) != 2 {
		t.Fatalf("expected 2 sessions, got %d", len(sessions))
	}
	if sessions[0].ID != newer {
		t.Errorf("expected newest session first, got %s", sessions[0].ID)
	}
}

func TestTranscriptAppendOnly(t *testing.T) {
	st := newTestStore(t)
	id := NewSessionID()
	if err := st.CreateSession(session.Session{ID: id, StartedAt: time.Now()}); err != nil {
		t.Fatalf("create failed: %v", err)
	}

	segments := []string{"hello world", "second segment", "third"}
	var previous string
	for _, seg := range segments {
		if err := st.AppendTranscript(id, seg); err != nil {
			t.Fatalf("append failed: %v", err)
		}
		current, err := st.ReadTranscript(id)
		if err != nil {
			t.Fatalf("read failed: %v", err)
		}
		// The transcript only ever grows; earlier content stays a prefix.
		if len(current) <= len(previous) {
			t.Fatalf("transcript did not grow: %q -> %q", previous, current)
		}
		if current[:len(previous)] != previous {
			t.Fatalf("earlier transcript content changed: %q is not a prefix of %q", previous, current)
		}
		previous = current
	}

	if previous != "hello world\nsecond segment\nthird\n" {
		t.Errorf("unexpected final transcript: %q", previous)
	}
}

func TestReadTranscriptMissing(t *testing.T) {
	st := newTestStore(t)
	id := NewSessionID()
	if err := st.CreateSession(session.Session{ID: id, StartedAt: time.Now()}); err != nil {
		t.Fatalf("create failed: %v", err)
	}

	transcript, err := st.ReadTranscript(id)
	if err != nil {
		t.Fatalf("expected no error for empty transcript, got %v", err)
	}
	if transcript != "" {
		t.Errorf("expected empty transcript, got %q", transcript)
	}
}

func TestAppendInsightDedupsTail(t *testing.T) {
	st := newTestStore(t)
	id := NewSessionID()
	if err := st.CreateSession(session.Session{ID: id, StartedAt: time.Now()}); err != nil {
		t.Fatalf("create failed: %v", err)
	}

	entry := insight.Entry{
		Timestamp: time.Now().UTC(),
		Notes:     []string{"point one", "point two"},
	}
	added, err := st.AppendInsight(id, entry)
	if err != nil {
		t.Fatalf("append failed: %v", err)
	}
	if !added {
		t.Fatal("expected first append to grow the log")
	}

	// Same content, different timestamp: the tail check ignores timestamps.
	duplicate := entry
	duplicate.Timestamp = entry.Timestamp.Add(5 * time.Second)
	added, err = st.AppendInsight(id, duplicate)
	if err != nil {
		t.Fatalf("append failed: %v", err)
	}
	if added {
		t.Fatal("expected duplicate tail to be skipped")
	}

	changed := entry
	changed.Notes = []string{"point one", "point two", "point three"}
	added, err = st.AppendInsight(id, changed)
	if err != nil {
		t.Fatalf("append failed: %v", err)
	}
	if !added {
		t.Fatal("expected changed entry to grow the log")
	}

	entries, err := st.ReadInsights(id)
	if err != nil {
		t.Fatalf("read failed: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(entries))
	}
}

func TestAppendInsightDedupOnlyAgainstTail(t *testing.T) {
	st := newTestStore(t)
	id := NewSessionID()
	if err := st.CreateSession(session.Session{ID: id, StartedAt: time.Now()}); err != nil {
		t.Fatalf("create failed: %v", err)
	}

	a := insight.Entry{Notes: []string{"a"}}
	b := insight.Entry{Notes: []string{"b"}}

	for _, entry := range []insight.Entry{a, b, a} {
		if _, err := st.AppendInsight(id, entry); err != nil {
			t.Fatalf("append failed: %v", err)
		}
	}

	entries, err := st.ReadInsights(id)
	if err != nil {
		t.Fatalf("read failed: %v", err)
	}
	// a repeats, but it only matches against the tail, which was b.
	if len(entries) != 3 {
		t.Fatalf("expected 3 entries, got %d", len(entries))
	}
}

func TestReadInsightsSkipsCorruptLines(t *testing.T) {
	st := newTestStore(t)
	id := NewSessionID()
	if err := st.CreateSession(session.Session{ID: id, StartedAt: time.Now()}); err != nil {
		t.Fatalf("create failed: %v", err)
	}

	if _, err := st.AppendInsight(id, insight.Entry{Notes: []string{"good"}}); err != nil {
		t.Fatalf("append failed: %v", err)
	}

	path := filepath.Join(st.sessionDir(id), insightsFile)
	f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		t.Fatalf("failed to open log: %v", err)
	}
	if _, err := f.WriteString("{broken json\n"); err != nil {
		t.Fatalf("failed to write corrupt line: %v", err)
	}
	f.Close()

	if _, err := st.AppendInsight(id, insight.Entry{Notes: []string{"after"}}); err != nil {
		t.Fatalf("append after corruption failed: %v", err)
	}

	entries, err := st.ReadInsights(id)
	if err != nil {
		t.Fatalf("read failed: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("expected 2 readable entries, got %d", len(entries))
	}
	if entries[0].Notes[0] != "good" || entries[1].Notes[0] != "after" {
		t.Errorf("unexpected entries: %+v", entries)
	}
}

func TestProfileRoundTrip(t *testing.T) {
	st := newTestStore(t)

	if _, ok := st.ReadProfile(); ok {
		t.Fatal("expected no profile initially")
	}

	profile := insight.InterestProfile{
		Themes:      "distributed systems and audio engineering",
		SampleItems: []string{"post one", "post two"},
		GeneratedAt: time.Now().UTC().Truncate(time.Second),
	}
	if err := st.WriteProfile(profile); err != nil {
		t.Fatalf("write failed: %v", err)
	}

	got, ok := st.ReadProfile()
	if !ok {
		t.Fatal("expected profile after write")
	}
	if got.Themes != profile.Themes {
		t.Errorf("themes mismatch: %q", got.Themes)
	}
	if len(got.SampleItems) != 2 {
		t.Errorf("sample items mismatch: %v", got.SampleItems)
	}
}

func TestNewSessionIDShape(t *testing.T) {
	a := NewSessionID()
	b := NewSessionID()
	if a == b {
		t.Fatal("expected distinct ids")
	}
	if len(a) != 32 {
		t.Errorf("expected 32 hex chars, got %d", len(a))
	}
	for _, r := range a {
		if r == '-' {
			t.Fatal("expected no dashes in session id")
		}
	}
}
