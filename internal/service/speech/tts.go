package speech

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/charmbracelet/log"

	"github.com/listening-buddy/backend/internal/config"
)

var (
	// ErrNotConfigured means synthesis cannot be attempted at all.
	ErrNotConfigured = errors.New("speech synthesis not configured")
	// ErrSynthesis wraps upstream synthesis failures.
	ErrSynthesis = errors.New("speech synthesis failed")
)

// Synthesizer converts answer text into audio via the upstream speech REST
// endpoint.
type Synthesizer struct {
	cfg        config.SpeechConfig
	httpClient *http.Client
	logger     *log.Logger
}

// NewSynthesizer builds the TTS client.
func NewSynthesizer(cfg config.SpeechConfig, logger *log.Logger) *Synthesizer {
	return &Synthesizer{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: 30 * time.Second},
		logger:     logger,
	}
}

type synthesisRequest struct {
	Input          string `json:"input"`
	Voice          string `json:"voice"`
	ResponseFormat string `json:"response_format"`
}

// Synthesize returns the audio bytes and their MIME type for the given text.
// Empty voice or format fall back to the configured defaults.
func (s *Synthesizer) Synthesize(ctx context.Context, text, voice, format string) ([]byte, string, error) {
	if strings.TrimSpace(text) == "" {
		return nil, "", fmt.Errorf("%w: text is required", ErrSynthesis)
	}
	if !s.cfg.Enabled() {
		return nil, "", ErrNotConfigured
	}

	if voice == "" {
		voice = s.cfg.Voice
	}
	if format == "" {
		format = s.cfg.Format
	}

	payload, err := json.Marshal(synthesisRequest{
		Input:          text,
		Voice:          voice,
		ResponseFormat: format,
	})
	if err != nil {
		return nil, "", fmt.Errorf("%w: %v", ErrSynthesis, err)
	}

	endpoint := strings.TrimSuffix(s.cfg.BaseURL, "/") + "/audio/speech"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, "", fmt.Errorf("%w: %v", ErrSynthesis, err)
	}
	req.Header.Set("Authorization", "Bearer "+s.cfg.APIKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, "", fmt.Errorf("%w: %v", ErrSynthesis, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, "", fmt.Errorf("%w: %v", ErrSynthesis, err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, "", fmt.Errorf("%w: status %d: %s", ErrSynthesis, resp.StatusCode, strings.TrimSpace(string(body)))
	}

	mimeType := resp.Header.Get("Content-Type")
	if mimeType == "" {
		mimeType = "audio/mpeg"
	}

	s.logger.Debug("synthesized speech", "bytes", len(body), "voice", voice, "format", format)
	return body, mimeType, nil
}
