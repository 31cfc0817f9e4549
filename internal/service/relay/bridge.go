package relay

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/log"

	"github.com/listening-buddy/backend/internal/model/session"
	"github.com/listening-buddy/backend/internal/service/recognizer"
	"github.com/listening-buddy/backend/internal/store"
)

// ClientConn is the device-facing half of a relay session. The websocket
// handler adapts a real connection onto it; tests supply fakes.
type ClientConn interface {
	// ReadAudio blocks for the next binary audio frame from the capture client.
	ReadAudio() ([]byte, error)
	// WriteEvent pushes a JSON-encodable notification to the client.
	WriteEvent(v any) error
	Close() error
}

// UpstreamStream is one live connection to the recognition service.
type UpstreamStream interface {
	SendAudio(frame []byte) error
	Next() (recognizer.Event, error)
	Close() error
}

// UpstreamDialer opens recognition streams.
type UpstreamDialer interface {
	Configured() bool
	Connect(ctx context.Context) (UpstreamStream, error)
}

// SessionAnnouncement tells the client which session it got before any audio
// is exchanged.
type SessionAnnouncement struct {
	Type      string `json:"type"`
	SessionID string `json:"sessionId"`
}

// TranscriptNotice echoes one finalized segment back to the client.
type TranscriptNotice struct {
	Type    string `json:"type"`
	Text    string `json:"text"`
	IsFinal bool   `json:"isFinal"`
}

// Bridge owns the full lifecycle of one session's realtime relay: the upstream
// handshake, both pumps, transcript persistence, and the finalize-once close.
type Bridge struct {
	sessions *store.Store
	upstream UpstreamDialer
	logger   *log.Logger

	now func() time.Time
}

// NewBridge wires a relay bridge over the given stores and upstream dialer.
func NewBridge(sessions *store.Store, upstream UpstreamDialer, logger *log.Logger) *Bridge {
	return &Bridge{
		sessions: sessions,
		upstream: upstream,
		logger:   logger,
		now:      time.Now,
	}
}

// Configured reports whether sessions can be started. The handler checks this
// before a session record exists, so a missing credential never leaves an
// active record dangling.
func (b *Bridge) Configured() bool {
	return b.upstream.Configured()
}

// Run drives one session from client accept to final metadata flush. It
// returns once both pumps have exited and the session record is finalized.
func (b *Bridge) Run(ctx context.Context, client ClientConn) error {
	if !b.upstream.Configured() {
		return recognizer.ErrNotConfigured
	}

	id := store.NewSessionID()
	logger := b.logger.With("session", id)

	sess := session.Session{
		ID:        id,
		StartedAt: b.now().UTC(),
		Status:    session.StatusActive,
	}
	if err := b.sessions.CreateSession(sess); err != nil {
		return err
	}
	logger.Info("session started")

	// Announce the identity before any audio moves.
	if err := client.WriteEvent(SessionAnnouncement{Type: "session", SessionID: id}); err != nil {
		b.finalize(id, logger)
		return err
	}

	stream, err := b.upstream.Connect(ctx)
	if err != nil {
		logger.Error("upstream connect failed", "error", err)
		b.finalize(id, logger)
		return err
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	// Either side failing cancels the whole session; closing both ends
	// unblocks whichever pump is still parked in a read.
	go func() {
		<-ctx.Done()
		stream.Close()
		client.Close()
	}()

	finals := make(chan string, 16)

	var pumps sync.WaitGroup
	pumps.Add(2)
	go func() {
		defer pumps.Done()
		defer cancel()
		b.pumpUpstream(client, stream, logger)
	}()
	go func() {
		defer pumps.Done()
		defer cancel()
		b.pumpDownstream(stream, finals, logger)
	}()
	go func() {
		pumps.Wait()
		close(finals)
	}()

	// Owner loop: the only writer of this session's transcript and record.
	// Both pumps feed it over the finals channel, so no field is ever touched
	// from two goroutines.
	for text := range finals {
		persisted := true
		if err := b.sessions.AppendTranscript(id, text); err != nil {
			// Losing a finalized segment is data loss; shout, but keep the
			// session alive.
			logger.Error("TRANSCRIPT APPEND FAILED, segment lost", "error", err, "text", text)
			persisted = false
		}

		if err := client.WriteEvent(TranscriptNotice{Type: "transcript", Text: text, IsFinal: true}); err != nil {
			// Persistence must not depend on client liveness.
			logger.Warn("client notify failed", "error", err)
		}

		if persisted {
			now := b.now().UTC()
			if err := b.sessions.UpdateSession(id, func(s *session.Session) {
				s.Touch(now)
			}); err != nil {
				logger.Error("session progress update failed", "error", err)
			}
		}
	}

	b.finalize(id, logger)
	return nil
}

// finalize flushes the closing metadata exactly once per Run.
func (b *Bridge) finalize(id string, logger *log.Logger) {
	now := b.now().UTC()
	if err := b.sessions.UpdateSession(id, func(s *session.Session) {
		s.Finalize(now)
	}); err != nil {
		logger.Error("session finalize failed", "error", err)
		return
	}
	logger.Info("session completed")
}

// pumpUpstream relays client audio frames into the recognition stream. Any
// read or send failure is fatal for the pump; frames are never retried.
func (b *Bridge) pumpUpstream(client ClientConn, stream UpstreamStream, logger *log.Logger) {
	for {
		frame, err := client.ReadAudio()
		if err != nil {
			logger.Debug("client audio ended", "error", err)
			return
		}
		if len(frame) == 0 {
			continue
		}
		if err := stream.SendAudio(frame); err != nil {
			logger.Warn("upstream send failed", "error", err)
			return
		}
	}
}

// pumpDownstream consumes recognition events and forwards finalized segments
// to the owner loop. Interim results are observed, never persisted.
func (b *Bridge) pumpDownstream(stream UpstreamStream, finals chan<- string, logger *log.Logger) {
	for {
		event, err := stream.Next()
		if err != nil {
			logger.Debug("upstream stream ended", "error", err)
			return
		}

		switch event.Kind {
		case recognizer.EventRecognizedFinal:
			text := strings.TrimSpace(event.Transcript)
			if text == "" {
				continue
			}
			finals <- text
		case recognizer.EventRecognizedInterim:
			logger.Debug("interim", "text", event.Transcript)
		case recognizer.EventError:
			logger.Warn("upstream reported error", "message", event.Message)
		case recognizer.EventConfigAck:
			logger.Debug("upstream config acknowledged")
		default:
			// Unknown message kinds are skipped explicitly.
		}
	}
}
