package handler

import (
	"net/http"

	"github.com/charmbracelet/log"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/listening-buddy/backend/internal/handler/audio"
	"github.com/listening-buddy/backend/internal/handler/feed"
	integrationHandler "github.com/listening-buddy/backend/internal/handler/integration"
	"github.com/listening-buddy/backend/internal/handler/profile"
	sessionHandler "github.com/listening-buddy/backend/internal/handler/session"
	"github.com/listening-buddy/backend/internal/integration"
	middlewarePkg "github.com/listening-buddy/backend/internal/middleware"
	"github.com/listening-buddy/backend/internal/service/discovery"
	"github.com/listening-buddy/backend/internal/service/insight"
	"github.com/listening-buddy/backend/internal/service/relay"
	"github.com/listening-buddy/backend/internal/service/speech"
	"github.com/listening-buddy/backend/internal/store"
	"github.com/listening-buddy/backend/pkg/utils"
)

// Deps collects everything the router wires together.
type Deps struct {
	Sessions     *store.Store
	Bridge       *relay.Bridge
	Insights     *insight.Service
	Synthesizer  *speech.Synthesizer
	Profiles     *discovery.ProfileService
	Integrations *integration.Store
	OAuth        *integration.OAuthFlow
	Logger       *log.Logger
}

// NewRouter wires HTTP routes to core services.
func NewRouter(deps Deps) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middlewarePkg.CORS)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		utils.RespondJSON(w, http.StatusOK, map[string]string{
			"status":  "ok",
			"service": "listening-buddy",
		})
	})

	audioHandler := audio.New(deps.Bridge, deps.Logger)
	audioHandler.RegisterRoutes(r)

	sessions := sessionHandler.New(deps.Sessions, deps.Insights, deps.Synthesizer, deps.Logger)
	feedHandler := feed.New(deps.Sessions, deps.Insights, deps.Logger)
	profileHandler := profile.New(deps.Profiles, deps.Logger)
	integrations := integrationHandler.New(deps.Integrations, deps.OAuth, deps.Logger)

	r.Route("/api", func(api chi.Router) {
		sessions.RegisterRoutes(api)
		feedHandler.RegisterRoutes(api)
		profileHandler.RegisterRoutes(api)
		integrations.RegisterRoutes(api)
	})

	return r
}
