package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/capitalize-ai/agent-relay/internal/middleware"
	"github.com/capitalize-ai/agent-relay/pkg/logger"
)

// RouterConfig wires handlers into the HTTP router.
type RouterConfig struct {
	Chat           *ChatHandler
	Health         *HealthHandler
	Logger         *logger.Logger
	AllowedOrigins []string
	// ServiceName names the server spans.
	ServiceName string
}

// NewRouter builds the HTTP handler for the API server.
func NewRouter(cfg RouterConfig) http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.Logging(cfg.Logger))
	r.Use(chimiddleware.Recoverer)
	r.Use(middleware.CORS(cfg.AllowedOrigins))

	// Health endpoints
	r.Get("/health", cfg.Health.Health)
	r.Get("/ready", cfg.Health.Ready)

	// Metrics endpoint
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api", func(r chi.Router) {
		r.Post("/chat", cfg.Chat.Chat)
	})

	name := cfg.ServiceName
	if name == "" {
		name = "agent-relay"
	}
	return otelhttp.NewHandler(r, name,
		otelhttp.WithSpanNameFormatter(func(_ string, req *http.Request) string {
			return req.Method + " " + req.URL.Path
		}),
	)
}
