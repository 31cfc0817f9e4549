package config

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/cloudwego/eino-ext/components/model/ark"
	"github.com/cloudwego/eino/components/model"
)

// Config aggregates every section of the service configuration.
type Config struct {
	Server     ServerConfig
	Storage    StorageConfig
	Recognizer RecognizerConfig
	Oracle     OracleConfig
	Speech     SpeechConfig
	Insight    InsightConfig
	X          XConfig
}

// Load reads the full configuration from environment variables.
func Load() (*Config, error) {
	server, err := loadServerConfig()
	if err != nil {
		return nil, err
	}

	insight, err := loadInsightConfig()
	if err != nil {
		return nil, err
	}

	oracle, err := loadOracleConfig()
	if err != nil {
		return nil, err
	}

	return &Config{
		Server:     server,
		Storage:    loadStorageConfig(),
		Recognizer: loadRecognizerConfig(),
		Oracle:     oracle,
		Speech:     loadSpeechConfig(),
		Insight:    insight,
		X:          loadXConfig(),
	}, nil
}

// ServerConfig describes the HTTP listener.
type ServerConfig struct {
	Addr string
}

func loadServerConfig() (ServerConfig, error) {
	port := strings.TrimSpace(os.Getenv("PORT"))
	if port == "" {
		port = "8000"
	}

	if strings.Contains(port, ":") {
		// Allow passing ":8000" or "127.0.0.1:8000" directly.
		return ServerConfig{Addr: port}, nil
	}

	if _, err := strconv.Atoi(port); err != nil {
		return ServerConfig{}, fmt.Errorf("invalid PORT value %q: %w", port, err)
	}

	return ServerConfig{Addr: ":" + port}, nil
}

// StorageConfig locates the per-session storage tree.
type StorageConfig struct {
	Root string
}

func loadStorageConfig() StorageConfig {
	return StorageConfig{Root: getEnvOrDefault("STORAGE_ROOT", "storage")}
}

// RecognizerConfig holds credentials for the upstream realtime speech
// recognition service.
type RecognizerConfig struct {
	APIKey  string
	BaseURL string
}

func loadRecognizerConfig() RecognizerConfig {
	return RecognizerConfig{
		APIKey:  strings.TrimSpace(os.Getenv("XAI_API_KEY")),
		BaseURL: getEnvOrDefault("BASE_URL", "https://api.x.ai/v1"),
	}
}

// Enabled reports whether the upstream credential is present. Sessions cannot
// start without it.
func (c RecognizerConfig) Enabled() bool {
	return c.APIKey != ""
}

// WebsocketURL derives the realtime transcription endpoint from the REST base.
func (c RecognizerConfig) WebsocketURL() string {
	base := strings.TrimSuffix(c.BaseURL, "/")
	base = strings.Replace(base, "https://", "wss://", 1)
	base = strings.Replace(base, "http://", "ws://", 1)
	return base + "/realtime/audio/transcriptions"
}

// OracleConfig describes the text-generation model behind the enrichment
// oracles.
type OracleConfig struct {
	APIKey      string
	BaseURL     string
	Model       string
	Temperature *float32
	MaxTokens   *int
}

func loadOracleConfig() (OracleConfig, error) {
	temperature, err := parseOptionalFloat32Env("ORACLE_TEMPERATURE")
	if err != nil {
		return OracleConfig{}, err
	}

	maxTokens, err := parseOptionalIntEnv("ORACLE_MAX_TOKENS")
	if err != nil {
		return OracleConfig{}, err
	}

	apiKey := strings.TrimSpace(os.Getenv("ORACLE_API_KEY"))
	if apiKey == "" {
		// The recognizer and the oracles share one upstream account by default.
		apiKey = strings.TrimSpace(os.Getenv("XAI_API_KEY"))
	}

	return OracleConfig{
		APIKey:      apiKey,
		BaseURL:     getEnvOrDefault("ORACLE_BASE_URL", getEnvOrDefault("BASE_URL", "https://api.x.ai/v1")),
		Model:       getEnvOrDefault("ORACLE_MODEL", "grok-4-1-fast-reasoning"),
		Temperature: temperature,
		MaxTokens:   maxTokens,
	}, nil
}

// Enabled reports whether the oracle credentials and model are present.
func (c OracleConfig) Enabled() bool {
	return c.APIKey != "" && c.Model != ""
}

// NewChatModel builds a chat model instance from the configuration.
func (c OracleConfig) NewChatModel(ctx context.Context) (model.ChatModel, error) {
	if !c.Enabled() {
		return nil, fmt.Errorf("oracle credentials missing: set XAI_API_KEY or ORACLE_API_KEY")
	}

	cfg := &ark.ChatModelConfig{
		BaseURL:     c.BaseURL,
		APIKey:      c.APIKey,
		Model:       c.Model,
		Temperature: c.Temperature,
		MaxTokens:   c.MaxTokens,
	}

	return ark.NewChatModel(ctx, cfg)
}

// SpeechConfig describes the text-to-speech synthesis endpoint.
type SpeechConfig struct {
	APIKey  string
	BaseURL string
	Voice   string
	Format  string
}

func loadSpeechConfig() SpeechConfig {
	return SpeechConfig{
		APIKey:  strings.TrimSpace(os.Getenv("XAI_API_KEY")),
		BaseURL: getEnvOrDefault("BASE_URL", "https://api.x.ai/v1"),
		Voice:   getEnvOrDefault("TTS_VOICE", "Ara"),
		Format:  getEnvOrDefault("TTS_FORMAT", "mp3"),
	}
}

// Enabled reports whether synthesis can be attempted at all.
func (c SpeechConfig) Enabled() bool {
	return c.APIKey != ""
}

// InsightConfig tunes the background enrichment loop.
type InsightConfig struct {
	PollInterval time.Duration
	SearchWindow time.Duration
	MaxArtifacts int
	ExcerptLimit int
}

func loadInsightConfig() (InsightConfig, error) {
	pollSeconds := 5
	if override, err := parseOptionalIntEnv("INSIGHT_POLL_INTERVAL"); err != nil {
		return InsightConfig{}, err
	} else if override != nil {
		if *override < 1 {
			pollSeconds = 1
		} else {
			pollSeconds = *override
		}
	}

	maxArtifacts := 5
	if override, err := parseOptionalIntEnv("INSIGHT_MAX_ARTIFACTS"); err != nil {
		return InsightConfig{}, err
	} else if override != nil && *override > 0 {
		maxArtifacts = *override
	}

	return InsightConfig{
		PollInterval: time.Duration(pollSeconds) * time.Second,
		SearchWindow: 48 * time.Hour,
		MaxArtifacts: maxArtifacts,
		ExcerptLimit: 6000,
	}, nil
}

// XConfig describes the X platform integration used for discovery and the
// OAuth handshake.
type XConfig struct {
	ClientID     string
	ClientSecret string
	RedirectURI  string
	Scopes       string
	APIBaseURL   string
	AuthURL      string
	TokenURL     string
}

func loadXConfig() XConfig {
	return XConfig{
		ClientID:     strings.TrimSpace(os.Getenv("X_CLIENT_ID")),
		ClientSecret: strings.TrimSpace(os.Getenv("X_CLIENT_SECRET")),
		RedirectURI:  getEnvOrDefault("X_REDIRECT_URI", "http://localhost:8000/api/integrations/x/oauth/callback"),
		Scopes:       getEnvOrDefault("X_OAUTH_SCOPES", "tweet.read users.read follows.read like.read offline.access"),
		APIBaseURL:   getEnvOrDefault("X_API_BASE_URL", "https://api.twitter.com/2"),
		AuthURL:      getEnvOrDefault("X_AUTH_URL", "https://twitter.com/i/oauth2/authorize"),
		TokenURL:     getEnvOrDefault("X_TOKEN_URL", "https://api.twitter.com/2/oauth2/token"),
	}
}

// Enabled reports whether the OAuth client is configured.
func (c XConfig) Enabled() bool {
	return c.ClientID != ""
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value
	}
	return defaultValue
}

func parseOptionalIntEnv(key string) (*int, error) {
	raw, ok := os.LookupEnv(key)
	if !ok {
		return nil, nil
	}

	value := strings.TrimSpace(raw)
	if value == "" {
		return nil, nil
	}

	val, err := strconv.Atoi(value)
	if err != nil {
		return nil, fmt.Errorf("invalid %s value %q: %w", key, value, err)
	}
	return &val, nil
}

func parseOptionalFloat32Env(key string) (*float32, error) {
	raw, ok := os.LookupEnv(key)
	if !ok {
		return nil, nil
	}

	value := strings.TrimSpace(raw)
	if value == "" {
		return nil, nil
	}

	val, err := strconv.ParseFloat(value, 32)
	if err != nil {
		return nil, fmt.Errorf("invalid %s value %q: %w", key, value, err)
	}
	result := float32(val)
	return &result, nil
}
