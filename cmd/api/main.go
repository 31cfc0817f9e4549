package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/charmbracelet/log"
	"github.com/joho/godotenv"

	"github.com/listening-buddy/backend/internal/config"
	"github.com/listening-buddy/backend/internal/handler"
	"github.com/listening-buddy/backend/internal/integration"
	"github.com/listening-buddy/backend/internal/service/discovery"
	"github.com/listening-buddy/backend/internal/service/insight"
	"github.com/listening-buddy/backend/internal/service/oracle"
	"github.com/listening-buddy/backend/internal/service/recognizer"
	"github.com/listening-buddy/backend/internal/service/relay"
	"github.com/listening-buddy/backend/internal/service/speech"
	"github.com/listening-buddy/backend/internal/store"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger := log.NewWithOptions(os.Stderr, log.Options{
		ReportTimestamp: true,
		Prefix:          "listening-buddy",
	})

	if err := godotenv.Load(); err != nil {
		logger.Debug("no .env file loaded, using system environment", "error", err)
	}

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("failed to load configuration", "error", err)
	}

	sessions, err := store.New(cfg.Storage.Root, logger)
	if err != nil {
		logger.Fatal("failed to open session store", "error", err)
	}

	integrations, err := integration.NewStore(cfg.Storage.Root, logger)
	if err != nil {
		logger.Fatal("failed to open integration store", "error", err)
	}
	oauthFlow := integration.NewOAuthFlow(cfg.X, integrations, logger)

	// The relay refuses sessions itself when the credential is missing, so the
	// server always starts; it just runs degraded.
	upstream := recognizer.NewClient(cfg.Recognizer, logger)
	if !cfg.Recognizer.Enabled() {
		logger.Warn("XAI_API_KEY not set: audio sessions will be refused")
	}
	bridge := relay.NewBridge(sessions, recognizerDialer{upstream}, logger)

	var oracleSvc insightOracle = unavailableOracle{}
	if cfg.Oracle.Enabled() {
		chatModel, err := cfg.Oracle.NewChatModel(ctx)
		if err != nil {
			logger.Warn("failed to initialize oracle model, enrichment disabled", "error", err)
		} else {
			svc, err := oracle.NewService(ctx, chatModel, cfg.Insight.ExcerptLimit, logger)
			if err != nil {
				logger.Warn("failed to build oracle chain, enrichment disabled", "error", err)
			} else {
				oracleSvc = svc
				logger.Info("oracle initialized", "model", cfg.Oracle.Model)
			}
		}
	} else {
		logger.Warn("oracle credentials not set: titles, insights, and answers unavailable")
	}

	searcher := discovery.NewClient(cfg.X, integrations, logger)
	profiles := discovery.NewProfileService(sessions, searcher, oracleSvc, logger)
	insights := insight.NewService(sessions, oracleSvc, searcher, profiles, cfg.Insight, logger)
	synthesizer := speech.NewSynthesizer(cfg.Speech, logger)

	router := handler.NewRouter(handler.Deps{
		Sessions:     sessions,
		Bridge:       bridge,
		Insights:     insights,
		Synthesizer:  synthesizer,
		Profiles:     profiles,
		Integrations: integrations,
		OAuth:        oauthFlow,
		Logger:       logger,
	})

	startServer(ctx, cfg.Server, router, logger)
}

// insightOracle is the union of the oracle slices main has to wire.
type insightOracle interface {
	insight.Oracle
	discovery.InterestSummarizer
}

// recognizerDialer adapts the concrete recognizer client onto the relay's
// dialer interface.
type recognizerDialer struct {
	client *recognizer.Client
}

func (d recognizerDialer) Configured() bool {
	return d.client.Configured()
}

func (d recognizerDialer) Connect(ctx context.Context) (relay.UpstreamStream, error) {
	stream, err := d.client.Connect(ctx)
	if err != nil {
		return nil, err
	}
	return stream, nil
}

var errOracleUnavailable = errors.New("oracle not configured: set XAI_API_KEY")

// unavailableOracle stands in when no model credentials exist. Every call
// fails with the same actionable error.
type unavailableOracle struct{}

func (unavailableOracle) GenerateTitle(context.Context, string) (string, error) {
	return "", errOracleUnavailable
}

func (unavailableOracle) GenerateInsights(context.Context, string, string) ([]string, error) {
	return nil, errOracleUnavailable
}

func (unavailableOracle) GenerateSearchQuery(context.Context, string, string) (string, error) {
	return "", errOracleUnavailable
}

func (unavailableOracle) AnswerQuestion(context.Context, string, string, string) (string, error) {
	return "", errOracleUnavailable
}

func (unavailableOracle) SummarizeInterests(context.Context, string) (string, error) {
	return "", errOracleUnavailable
}

func startServer(ctx context.Context, serverCfg config.ServerConfig, router http.Handler, logger *log.Logger) {
	srv := &http.Server{
		Addr:              serverCfg.Addr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	logger.Info("listening", "addr", serverCfg.Addr)
	if err := runServer(ctx, srv); err != nil {
		logger.Fatal("server error", "error", err)
	}
}

func runServer(ctx context.Context, srv *http.Server) error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
		err := <-errCh
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}
