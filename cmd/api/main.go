// Package main is the entry point for the API server.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/capitalize-ai/agent-relay/internal/agent"
	"github.com/capitalize-ai/agent-relay/internal/config"
	"github.com/capitalize-ai/agent-relay/internal/handler"
	natsclient "github.com/capitalize-ai/agent-relay/internal/nats"
	"github.com/capitalize-ai/agent-relay/internal/service"
	"github.com/capitalize-ai/agent-relay/internal/telemetry"
	"github.com/capitalize-ai/agent-relay/pkg/logger"
	"github.com/capitalize-ai/agent-relay/pkg/metrics"
	"github.com/capitalize-ai/agent-relay/pkg/tracing"
)

const serviceName = "agent-relay"

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger
	log, err := logger.New(cfg.LogLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()
	logger.SetGlobal(log)

	log.Info("starting API server", zap.String("agent_backend", cfg.AgentBackend))

	// Initialize tracing if enabled
	ctx := context.Background()
	if cfg.TracingEnabled {
		tp, err := tracing.InitTracer(ctx, serviceName, cfg.TracingEndpoint, cfg.TracingSampleRate)
		if err != nil {
			log.Warn("failed to initialize tracing", zap.Error(err))
		} else {
			defer tracing.Shutdown(context.Background(), tp)
		}
	}

	// Metric sinks: Prometheus always, JetStream when configured
	sinks := []telemetry.Metrics{metrics.NewRecorder()}

	var natsClient *natsclient.Client
	if cfg.NATSURL != "" {
		natsClient, err = natsclient.Connect(ctx, natsclient.Config{
			URL:      cfg.NATSURL,
			CAFile:   cfg.NATSCAFile,
			CertFile: cfg.NATSCertFile,
			KeyFile:  cfg.NATSKeyFile,
			Token:    cfg.NATSToken,
		}, log)
		if err != nil {
			log.Error("failed to connect to NATS", zap.Error(err))
			os.Exit(1)
		}
		defer natsClient.Close()
		log.Info("connected to NATS", zap.String("url", natsClient.Conn().ConnectedUrlRedacted()))

		// Ensure JetStream stream exists
		streamManager := natsclient.NewStreamManager(natsClient, cfg.NATSTelemetryStream)
		if err := streamManager.EnsureStream(ctx); err != nil {
			log.Error("failed to ensure stream", zap.Error(err))
			os.Exit(1)
		}
		sinks = append(sinks, natsclient.NewPublisher(natsClient, log))
	}

	// Initialize agent runtime
	runtime, err := agent.NewRuntime(agent.Config{
		Backend:         agent.Backend(cfg.AgentBackend),
		ClaudeBinary:    cfg.ClaudeBinary,
		AnthropicAPIKey: cfg.AnthropicAPIKey,
		AnthropicURL:    cfg.AnthropicURL,
		OpenAIAPIKey:    cfg.OpenAIAPIKey,
		OpenAIURL:       cfg.OpenAIURL,
	})
	if err != nil {
		log.Error("failed to create agent runtime", zap.Error(err))
		os.Exit(1)
	}

	// Initialize services
	chatSvc := service.NewChatService(runtime, telemetry.Multi(sinks...), log, service.ChatConfig{
		Cwd:     cfg.AgentWorkdir,
		Model:   cfg.AgentModel,
		Timeout: cfg.AgentTimeout,
	})

	// Initialize handlers
	router := handler.NewRouter(handler.RouterConfig{
		Chat:           handler.NewChatHandler(chatSvc, log),
		Health:         handler.NewHealthHandler(natsClient),
		Logger:         log,
		AllowedOrigins: cfg.CORSAllowedOrigins,
		ServiceName:    serviceName,
	})

	// Create HTTP server
	server := &http.Server{
		Addr:         ":" + cfg.ServerPort,
		Handler:      router,
		ReadTimeout:  cfg.ServerReadTimeout,
		WriteTimeout: cfg.ServerWriteTimeout,
		IdleTimeout:  120 * time.Second,
	}

	// Start server in goroutine
	go func() {
		log.Info("server listening", zap.String("port", cfg.ServerPort))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("server error", zap.Error(err))
			os.Exit(1)
		}
	}()

	// Wait for shutdown signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("shutting down server")

	// Graceful shutdown with timeout
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("server forced to shutdown", zap.Error(err))
	}

	log.Info("server stopped")
}
