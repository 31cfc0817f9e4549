package insight

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/log"

	"github.com/listening-buddy/backend/internal/config"
	insightmodel "github.com/listening-buddy/backend/internal/model/insight"
	"github.com/listening-buddy/backend/internal/model/session"
	"github.com/listening-buddy/backend/internal/store"
)

var (
	// ErrSessionNotFound mirrors the store sentinel for handler mapping.
	ErrSessionNotFound = store.ErrSessionNotFound
	// ErrNoTranscript means the session exists but nothing has been said yet.
	ErrNoTranscript = errors.New("no transcript available yet")
)

// Oracle is the slice of the enrichment oracles the insight service uses.
type Oracle interface {
	GenerateTitle(ctx context.Context, transcript string) (string, error)
	GenerateInsights(ctx context.Context, transcript, interests string) ([]string, error)
	GenerateSearchQuery(ctx context.Context, transcript, interests string) (string, error)
	AnswerQuestion(ctx context.Context, question, transcript, interests string) (string, error)
}

// Searcher fetches recent external artifacts for a query.
type Searcher interface {
	SearchRecent(ctx context.Context, query string, start, end time.Time, max int) ([]insightmodel.Artifact, error)
}

// InterestProvider supplies the best-effort interest profile text for prompts.
type InterestProvider interface {
	Text(ctx context.Context) string
}

// Service derives titles, notes, artifacts, and answers from session
// transcripts, and runs the background polling loop for live subscribers.
type Service struct {
	store     *store.Store
	oracle    Oracle
	searcher  Searcher
	interests InterestProvider
	cfg       config.InsightConfig
	logger    *log.Logger

	now func() time.Time

	// Live feed runners, one per session with at least one subscriber.
	runnersMu sync.Mutex
	runners   map[string]*sessionRunner
}

// NewService wires the insight service.
func NewService(st *store.Store, oracle Oracle, searcher Searcher, interests InterestProvider, cfg config.InsightConfig, logger *log.Logger) *Service {
	return &Service{
		store:     st,
		oracle:    oracle,
		searcher:  searcher,
		interests: interests,
		cfg:       cfg,
		logger:    logger,
		now:       time.Now,
		runners:   make(map[string]*sessionRunner),
	}
}

// Transcript returns the session's transcript, distinguishing "unknown
// session" from "no speech yet".
func (s *Service) Transcript(ctx context.Context, sessionID string) (string, error) {
	if _, err := s.store.GetSession(sessionID); err != nil {
		return "", err
	}

	transcript, err := s.store.ReadTranscript(sessionID)
	if err != nil {
		return "", err
	}
	if strings.TrimSpace(transcript) == "" {
		return "", ErrNoTranscript
	}
	return transcript, nil
}

// Title returns the session title, generating and caching it on first use.
// A cached title never re-invokes the oracle.
func (s *Service) Title(ctx context.Context, sessionID string) (string, error) {
	sess, err := s.store.GetSession(sessionID)
	if err != nil {
		return "", err
	}
	if sess.Title != "" {
		return sess.Title, nil
	}

	transcript, err := s.Transcript(ctx, sessionID)
	if err != nil {
		return "", err
	}

	title, err := s.oracle.GenerateTitle(ctx, transcript)
	if err != nil {
		return "", err
	}

	if err := s.store.UpdateSession(sessionID, func(rec *session.Session) {
		rec.Title = title
	}); err != nil {
		return "", err
	}
	return title, nil
}

// Insights returns the full insight history, running one enrichment cycle
// first when the log is still empty.
func (s *Service) Insights(ctx context.Context, sessionID string) ([]insightmodel.Entry, error) {
	if _, err := s.store.GetSession(sessionID); err != nil {
		return nil, err
	}

	entries, err := s.store.ReadInsights(sessionID)
	if err != nil {
		return nil, err
	}
	if len(entries) > 0 {
		return entries, nil
	}

	if _, _, err := s.runCycle(ctx, sessionID); err != nil {
		return nil, err
	}
	return s.store.ReadInsights(sessionID)
}

// Artifacts returns the latest cached artifacts, or fetches fresh ones when
// none exist yet or refresh is forced.
func (s *Service) Artifacts(ctx context.Context, sessionID string, refresh bool) ([]insightmodel.Artifact, string, error) {
	if _, err := s.store.GetSession(sessionID); err != nil {
		return nil, "", err
	}

	if !refresh {
		if tail, ok := s.store.LatestInsight(sessionID); ok && len(tail.Artifacts) > 0 {
			return tail.Artifacts, tail.Query, nil
		}
	}

	transcript, err := s.Transcript(ctx, sessionID)
	if err != nil {
		return nil, "", err
	}

	result := s.fetchArtifacts(ctx, transcript)
	if result.Outcome == OutcomeFailed {
		return nil, "", result.Err
	}

	// Carry the current notes forward so the dedup rule only fires when the
	// artifacts genuinely changed.
	var notes []string
	if tail, ok := s.store.LatestInsight(sessionID); ok {
		notes = tail.Notes
	}

	entry := insightmodel.Entry{
		Timestamp: s.now().UTC(),
		Notes:     notes,
		Artifacts: result.Artifacts,
		Query:     result.Query,
	}
	if _, err := s.store.AppendInsight(sessionID, entry); err != nil {
		return nil, "", err
	}
	return result.Artifacts, result.Query, nil
}

// Answer responds to a listener question against the session transcript.
func (s *Service) Answer(ctx context.Context, sessionID, question string) (string, error) {
	transcript, err := s.Transcript(ctx, sessionID)
	if err != nil {
		return "", err
	}
	return s.oracle.AnswerQuestion(ctx, question, transcript, s.interests.Text(ctx))
}

// runCycle executes one enrichment pass: notes from the oracle, artifacts
// best-effort, combined into a dedup-checked append. Returns the entry and
// whether the log grew.
func (s *Service) runCycle(ctx context.Context, sessionID string) (insightmodel.Entry, bool, error) {
	transcript, err := s.store.ReadTranscript(sessionID)
	if err != nil {
		return insightmodel.Entry{}, false, err
	}
	if strings.TrimSpace(transcript) == "" {
		return insightmodel.Entry{}, false, ErrNoTranscript
	}

	interests := s.interests.Text(ctx)

	notes, err := s.oracle.GenerateInsights(ctx, transcript, interests)
	if err != nil {
		return insightmodel.Entry{}, false, err
	}

	// Artifact discovery is optional: a failure degrades to an entry with
	// empty artifacts, never an aborted cycle.
	result := s.fetchArtifacts(ctx, transcript)
	if result.Outcome == OutcomeFailed {
		s.logger.Debug("artifact fetch failed, continuing without", "session", sessionID, "error", result.Err)
	}

	entry := insightmodel.Entry{
		Timestamp: s.now().UTC(),
		Notes:     notes,
		Artifacts: result.Artifacts,
		Query:     result.Query,
	}

	added, err := s.store.AppendInsight(sessionID, entry)
	if err != nil {
		return insightmodel.Entry{}, false, err
	}
	return entry, added, nil
}

// fetchArtifacts derives a query and searches the recent-content window. The
// outcome is explicit so callers decide their own fallback.
func (s *Service) fetchArtifacts(ctx context.Context, transcript string) ArtifactResult {
	interests := s.interests.Text(ctx)

	query, err := s.oracle.GenerateSearchQuery(ctx, transcript, interests)
	if err != nil {
		return ArtifactResult{Outcome: OutcomeFailed, Err: fmt.Errorf("query generation failed: %w", err)}
	}
	if strings.TrimSpace(query) == "" {
		return ArtifactResult{Outcome: OutcomeEmpty}
	}

	end := s.now().UTC()
	start := end.Add(-s.cfg.SearchWindow)
	artifacts, err := s.searcher.SearchRecent(ctx, query, start, end, s.cfg.MaxArtifacts)
	if err != nil {
		return ArtifactResult{Query: query, Outcome: OutcomeFailed, Err: err}
	}
	if len(artifacts) == 0 {
		return ArtifactResult{Query: query, Outcome: OutcomeEmpty}
	}
	return ArtifactResult{Query: query, Artifacts: artifacts, Outcome: OutcomeValue}
}
