package recognizer

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/charmbracelet/log"
	"github.com/gorilla/websocket"

	"github.com/listening-buddy/backend/internal/config"
)

// ErrNotConfigured is returned when no upstream credential is present.
var ErrNotConfigured = errors.New("recognizer credential not configured")

// Client dials the upstream realtime transcription websocket.
type Client struct {
	cfg    config.RecognizerConfig
	dialer *websocket.Dialer
	logger *log.Logger
}

// NewClient builds a recognizer client from configuration.
func NewClient(cfg config.RecognizerConfig, logger *log.Logger) *Client {
	return &Client{
		cfg: cfg,
		dialer: &websocket.Dialer{
			HandshakeTimeout: 30 * time.Second,
		},
		logger: logger,
	}
}

// Configured reports whether a session could be started at all.
func (c *Client) Configured() bool {
	return c.cfg.Enabled()
}

type configMessage struct {
	Type string       `json:"type"`
	Data configParams `json:"data"`
}

type configParams struct {
	Encoding             string `json:"encoding"`
	SampleRateHertz      int    `json:"sample_rate_hertz"`
	EnableInterimResults bool   `json:"enable_interim_results"`
}

type audioMessage struct {
	Type string     `json:"type"`
	Data audioFrame `json:"data"`
}

type audioFrame struct {
	Audio string `json:"audio"`
}

// Connect opens the upstream connection and completes the handshake: one
// configuration message declaring 16-bit linear PCM at 16 kHz with interim
// results enabled.
func (c *Client) Connect(ctx context.Context) (*Stream, error) {
	if !c.Configured() {
		return nil, ErrNotConfigured
	}

	header := http.Header{}
	header.Set("Authorization", "Bearer "+c.cfg.APIKey)

	conn, resp, err := c.dialer.DialContext(ctx, c.cfg.WebsocketURL(), header)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("recognizer dial failed (status %d): %w", resp.StatusCode, err)
		}
		return nil, fmt.Errorf("recognizer dial failed: %w", err)
	}

	cfgMsg := configMessage{
		Type: "config",
		Data: configParams{
			Encoding:             "linear16",
			SampleRateHertz:      16000,
			EnableInterimResults: true,
		},
	}
	if err := conn.WriteJSON(cfgMsg); err != nil {
		conn.Close()
		return nil, fmt.Errorf("recognizer config send failed: %w", err)
	}

	c.logger.Debug("recognizer connected", "url", c.cfg.WebsocketURL())
	return &Stream{conn: conn}, nil
}

// Stream is one live upstream connection.
type Stream struct {
	conn *websocket.Conn
}

// SendAudio forwards one binary audio frame, base64-wrapped in the upstream
// audio envelope.
func (s *Stream) SendAudio(frame []byte) error {
	msg := audioMessage{
		Type: "audio",
		Data: audioFrame{Audio: base64.StdEncoding.EncodeToString(frame)},
	}
	if err := s.conn.WriteJSON(msg); err != nil {
		return fmt.Errorf("recognizer audio send failed: %w", err)
	}
	return nil
}

// Next blocks for the next upstream message and decodes it. An error means
// the connection is no longer readable; malformed single messages come back
// as EventUnknown instead.
func (s *Stream) Next() (Event, error) {
	_, raw, err := s.conn.ReadMessage()
	if err != nil {
		return Event{}, fmt.Errorf("recognizer read failed: %w", err)
	}
	return DecodeEvent(raw), nil
}

// Close tears the upstream connection down.
func (s *Stream) Close() error {
	return s.conn.Close()
}
