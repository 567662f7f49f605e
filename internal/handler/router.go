package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog/log"

	"github.com/zhouzirui/finpilot/backend/internal/handler/profile"
	"github.com/zhouzirui/finpilot/backend/internal/handler/stream"
	"github.com/zhouzirui/finpilot/backend/internal/handler/turn"
	"github.com/zhouzirui/finpilot/backend/internal/handler/ws"
	middlewarePkg "github.com/zhouzirui/finpilot/backend/internal/middleware"
	"github.com/zhouzirui/finpilot/backend/pkg/utils"
)

// Engine is the turn engine surface exposed over HTTP.
type Engine interface {
	turn.Engine
}

// Options configures NewRouter.
type Options struct {
	Engine      Engine
	Profiles    profile.Store
	CORSOrigins []string
	// Ping reports backing store health for /healthz. Nil skips the check.
	Ping func() error
}

// NewRouter wires HTTP routes to the turn engine.
func NewRouter(opts Options) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middlewarePkg.RequestLogger)
	r.Use(middleware.Recoverer)
	r.Use(middlewarePkg.CORS(opts.CORSOrigins))

	r.Get("/healthz", healthz(opts.Ping))

	r.Route("/api", func(api chi.Router) {
		turn.New(opts.Engine).RegisterRoutes(api)
		stream.New(opts.Engine).RegisterRoutes(api)
		ws.New(opts.Engine, opts.CORSOrigins).RegisterRoutes(api)
		profile.New(opts.Profiles, opts.Engine).RegisterRoutes(api)
	})

	return r
}

func healthz(ping func() error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if ping != nil {
			if err := ping(); err != nil {
				log.Error().Str("component", "handler").Err(err).Msg("health check failed")
				utils.RespondJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
				return
			}
		}
		utils.RespondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}
}
