package feed

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/charmbracelet/log"
	"github.com/go-chi/chi/v5"

	"github.com/listening-buddy/backend/internal/config"
	insightmodel "github.com/listening-buddy/backend/internal/model/insight"
	sessionmodel "github.com/listening-buddy/backend/internal/model/session"
	"github.com/listening-buddy/backend/internal/service/insight"
	"github.com/listening-buddy/backend/internal/store"
)

type stubOracle struct {
	notes []string
}

func (o stubOracle) GenerateTitle(context.Context, string) (string, error) { return "t", nil }

func (o stubOracle) GenerateInsights(context.Context, string, string) ([]string, error) {
	return o.notes, nil
}

func (o stubOracle) GenerateSearchQuery(context.Context, string, string) (string, error) {
	return "", nil
}

func (o stubOracle) AnswerQuestion(context.Context, string, string, string) (string, error) {
	return "", nil
}

type stubSearcher struct{}

func (stubSearcher) SearchRecent(context.Context, string, time.Time, time.Time, int) ([]insightmodel.Artifact, error) {
	return nil, nil
}

type noInterests struct{}

func (noInterests) Text(context.Context) string { return "" }

func setupRouter(t *testing.T, oracle stubOracle) (*chi.Mux, *store.Store) {
	t.Helper()
	logger := log.New(io.Discard)

	st, err := store.New(t.TempDir(), logger)
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	insights := insight.NewService(st, oracle, stubSearcher{}, noInterests{}, config.InsightConfig{
		PollInterval: 10 * time.Millisecond,
		SearchWindow: time.Hour,
		MaxArtifacts: 5,
	}, logger)

	handler := New(st, insights, logger)
	r := chi.NewRouter()
	handler.RegisterRoutes(r)
	return r, st
}

func TestStreamUnknownSession(t *testing.T) {
	r, _ := setupRouter(t, stubOracle{})

	req := httptest.NewRequest(http.MethodGet, "/sessions/unknown/insights/stream", nil)
	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, req)

	if resp.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", resp.Code)
	}
}

func TestStreamReplaysHistoryAndPushesInsights(t *testing.T) {
	r, st := setupRouter(t, stubOracle{notes: []string{"live note"}})

	id := store.NewSessionID()
	if err := st.CreateSession(sessionmodel.Session{ID: id, StartedAt: time.Now().UTC()}); err != nil {
		t.Fatalf("create failed: %v", err)
	}
	if err := st.AppendTranscript(id, "something was said"); err != nil {
		t.Fatalf("append failed: %v", err)
	}
	if _, err := st.AppendInsight(id, insightmodel.Entry{Notes: []string{"old note"}}); err != nil {
		t.Fatalf("seed insight failed: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	req := httptest.NewRequest(http.MethodGet, "/sessions/"+id+"/insights/stream", nil).WithContext(ctx)
	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, req)

	if ct := resp.Header().Get("Content-Type"); !strings.HasPrefix(ct, "text/event-stream") {
		t.Fatalf("unexpected content type %q", ct)
	}

	var events []insight.FeedEvent
	for _, line := range strings.Split(resp.Body.String(), "\n") {
		if !strings.HasPrefix(line, "data: ") {
			continue
		}
		var event insight.FeedEvent
		if err := json.Unmarshal([]byte(strings.TrimPrefix(line, "data: ")), &event); err != nil {
			t.Fatalf("failed to decode sse chunk %q: %v", line, err)
		}
		events = append(events, event)
	}

	if len(events) < 2 {
		t.Fatalf("expected history plus at least one insight, got %+v", events)
	}
	if events[0].Type != insight.FeedHistory || len(events[0].Entries) != 1 {
		t.Errorf("unexpected first event %+v", events[0])
	}
	var sawInsight bool
	for _, event := range events[1:] {
		if event.Type == insight.FeedInsight && event.Entry != nil && event.Entry.Notes[0] == "live note" {
			sawInsight = true
		}
	}
	if !sawInsight {
		t.Errorf("expected a live insight event, got %+v", events)
	}
}
