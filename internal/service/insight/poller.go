package insight

import (
	"context"
	"sync"
	"time"

	insightmodel "github.com/listening-buddy/backend/internal/model/insight"
)

// FeedEventType tags messages pushed to a live subscriber.
type FeedEventType string

const (
	FeedHistory FeedEventType = "history"
	FeedInsight FeedEventType = "insight"
	FeedError   FeedEventType = "error"
)

// FeedEvent is one message on a subscriber's feed.
type FeedEvent struct {
	Type    FeedEventType        `json:"type"`
	Entries []insightmodel.Entry `json:"entries,omitempty"`
	Entry   *insightmodel.Entry  `json:"entry,omitempty"`
	Message string               `json:"message,omitempty"`
}

// Subscribe replays the existing insight history to push, then forwards live
// feed events for the session until ctx is done, the session disappears, or
// push fails.
//
// Enrichment itself runs in one shared per-session runner: however many
// subscribers are attached, each transcript change costs one oracle cycle,
// and every appended entry fans out to all of them.
func (s *Service) Subscribe(ctx context.Context, sessionID string, push func(FeedEvent) error) error {
	if _, err := s.store.GetSession(sessionID); err != nil {
		return err
	}

	sub := s.attach(sessionID)
	defer s.detach(sessionID, sub)

	history, err := s.store.ReadInsights(sessionID)
	if err != nil {
		return err
	}
	if err := push(FeedEvent{Type: FeedHistory, Entries: history}); err != nil {
		return err
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-sub.ch:
			if !ok {
				// The runner saw the session record vanish.
				return ErrSessionNotFound
			}
			if err := push(event); err != nil {
				return err
			}
		}
	}
}

// subscriber is one attached feed consumer. The channel is buffered; a
// consumer that cannot keep up loses events rather than stalling the runner.
type subscriber struct {
	ch chan FeedEvent
}

// sessionRunner drives the polling loop for one session on behalf of every
// attached subscriber. It owns the transcript-length watermark, so a
// transcript change triggers exactly one enrichment cycle regardless of the
// subscriber count.
type sessionRunner struct {
	svc       *Service
	sessionID string

	mu   sync.Mutex
	subs map[*subscriber]struct{}

	stop chan struct{}
}

// attach registers a new subscriber, starting the session's runner if it is
// the first one.
func (s *Service) attach(sessionID string) *subscriber {
	s.runnersMu.Lock()
	defer s.runnersMu.Unlock()

	runner := s.runners[sessionID]
	if runner == nil {
		runner = &sessionRunner{
			svc:       s,
			sessionID: sessionID,
			subs:      make(map[*subscriber]struct{}),
			stop:      make(chan struct{}),
		}
		s.runners[sessionID] = runner
		go runner.run()
	}

	sub := &subscriber{ch: make(chan FeedEvent, 16)}
	runner.mu.Lock()
	runner.subs[sub] = struct{}{}
	runner.mu.Unlock()
	return sub
}

// detach removes a subscriber and stops the runner when it was the last one.
func (s *Service) detach(sessionID string, sub *subscriber) {
	s.runnersMu.Lock()
	defer s.runnersMu.Unlock()

	runner := s.runners[sessionID]
	if runner == nil {
		return
	}

	runner.mu.Lock()
	delete(runner.subs, sub)
	empty := len(runner.subs) == 0
	runner.mu.Unlock()

	if empty {
		delete(s.runners, sessionID)
		close(runner.stop)
	}
}

// retire removes the runner from the registry and closes every subscriber
// channel, ending their streams.
func (r *sessionRunner) retire() {
	r.svc.runnersMu.Lock()
	if r.svc.runners[r.sessionID] == r {
		delete(r.svc.runners, r.sessionID)
	}
	r.svc.runnersMu.Unlock()

	r.mu.Lock()
	for sub := range r.subs {
		close(sub.ch)
	}
	r.subs = make(map[*subscriber]struct{})
	r.mu.Unlock()
}

// broadcast delivers one event to every attached subscriber. Delivery is
// best-effort; a full subscriber buffer drops the event for that subscriber.
func (r *sessionRunner) broadcast(event FeedEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for sub := range r.subs {
		select {
		case sub.ch <- event:
		default:
		}
	}
}

// run polls the transcript on the configured interval and runs an enrichment
// cycle whenever it grew, pushing only entries that actually extended the
// log. Oracle errors are reported as error events and never stop the loop.
func (r *sessionRunner) run() {
	ticker := time.NewTicker(r.svc.cfg.PollInterval)
	defer ticker.Stop()

	// The transcript is append-only, so length alone tells whether anything
	// new arrived since the previous check. Starting at zero makes the first
	// tick enrich whatever already exists.
	lastLength := 0

	for {
		select {
		case <-r.stop:
			return
		case <-ticker.C:
		}

		if _, err := r.svc.store.GetSession(r.sessionID); err != nil {
			r.retire()
			return
		}

		transcript, err := r.svc.store.ReadTranscript(r.sessionID)
		if err != nil {
			r.svc.logger.Warn("poll transcript read failed", "session", r.sessionID, "error", err)
			continue
		}
		if len(transcript) == lastLength || len(transcript) == 0 {
			continue
		}
		lastLength = len(transcript)

		entry, added, err := r.svc.runCycle(context.Background(), r.sessionID)
		if err != nil {
			// Transient for the loop; subscribers hear about it and the next
			// tick tries again.
			lastLength = 0
			r.broadcast(FeedEvent{Type: FeedError, Message: err.Error()})
			continue
		}
		if !added {
			continue
		}

		appended := entry
		r.broadcast(FeedEvent{Type: FeedInsight, Entry: &appended})
	}
}
