package main

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/Turnstyle/ria-hunter-sub007/cmd/ria-hunter-api/handlers"
	"github.com/Turnstyle/ria-hunter-sub007/cmd/ria-hunter-api/middleware"
	"github.com/Turnstyle/ria-hunter-sub007/internal/observability"
	"github.com/Turnstyle/ria-hunter-sub007/internal/search"
)

const serviceName = "ria-hunter"

// RouterConfig holds HTTP settings.
type RouterConfig struct {
	RequestTimeout time.Duration
	AllowedOrigins []string
	// Registry is served at /metrics when set.
	Registry *prometheus.Registry
}

// NewRouter creates the API router.
func NewRouter(logger *observability.Logger, svc *search.Service, cfg RouterConfig) http.Handler {
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 90 * time.Second
	}
	if len(cfg.AllowedOrigins) == 0 {
		cfg.AllowedOrigins = []string{"*"}
	}

	r := chi.NewRouter()
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.Trace)
	r.Use(middleware.RequestLogger(logger))
	r.Use(chimiddleware.Recoverer)
	r.Use(middleware.CORS(cfg.AllowedOrigins))
	r.Use(chimiddleware.Timeout(cfg.RequestTimeout))

	health := handlers.NewHealthHandler(logger, serviceName, svc)
	r.Get("/health", health.Health)
	r.Get("/ready", health.Ready)
	if cfg.Registry != nil {
		r.Handle("/metrics", promhttp.HandlerFor(cfg.Registry, promhttp.HandlerOpts{}))
	}

	searchHandler := handlers.NewSearchHandler(logger, svc)
	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/search", searchHandler.Search)
		r.Post("/answer", searchHandler.Answer)
		r.Post("/answer/stream", searchHandler.AnswerStream)
		r.Post("/ask", searchHandler.Ask)
		r.Post("/ask/stream", searchHandler.AskStream)
	})

	return r
}
