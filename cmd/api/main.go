// Package main is the entry point for the handoff engine API server.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/capitalize-ai/handoff-engine/internal/archetype"
	"github.com/capitalize-ai/handoff-engine/internal/compliance"
	"github.com/capitalize-ai/handoff-engine/internal/config"
	"github.com/capitalize-ai/handoff-engine/internal/handler"
	"github.com/capitalize-ai/handoff-engine/internal/llm"
	"github.com/capitalize-ai/handoff-engine/internal/middleware"
	"github.com/capitalize-ai/handoff-engine/internal/model"
	natsclient "github.com/capitalize-ai/handoff-engine/internal/nats"
	"github.com/capitalize-ai/handoff-engine/internal/policy"
	"github.com/capitalize-ai/handoff-engine/internal/service"
	"github.com/capitalize-ai/handoff-engine/internal/store"
	"github.com/capitalize-ai/handoff-engine/pkg/logger"
	"github.com/capitalize-ai/handoff-engine/pkg/metrics"
	"github.com/capitalize-ai/handoff-engine/pkg/tracing"
)

func main() {
	// Load configuration
	cfg := config.Load()

	// Initialize logger
	log, err := logger.NewWithOptions(logger.Options{
		Level:    cfg.LogLevel,
		Format:   cfg.LogFormat,
		Sampling: cfg.LogSampling,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	if err := cfg.Validate(); err != nil {
		log.Fatal("invalid configuration", zap.Error(err))
	}

	log.Info("starting handoff engine",
		zap.String("store", cfg.StoreDriver),
		zap.String("llm_provider", cfg.LLMProvider),
		zap.Bool("nats_enabled", cfg.NATSEnabled),
	)

	// Initialize tracing if enabled
	ctx := context.Background()
	if cfg.TracingEnabled {
		tp, err := tracing.InitTracer(ctx, "handoff-engine", cfg.TracingEndpoint, tracing.WithSampleRatio(cfg.TracingSampleRatio))
		if err != nil {
			log.Warn("failed to initialize tracing", zap.Error(err))
		} else {
			defer tracing.Shutdown(context.Background(), tp)
		}
	}

	// Compliance template and personas
	template, err := loadTemplate(cfg)
	if err != nil {
		log.Fatal("failed to load compliance template", zap.Error(err))
	}
	registry := archetype.NewRegistry(template,
		policy.WithShortMessageRunes(cfg.ShortMessageRunes),
		policy.WithMaxInboundRunes(cfg.MaxInboundRunes),
	)
	if cfg.PersonaDir != "" {
		n, err := registry.RegisterDir(cfg.PersonaDir)
		if err != nil {
			log.Fatal("failed to load personas", zap.String("dir", cfg.PersonaDir), zap.Error(err))
		}
		log.Info("personas loaded", zap.Int("count", n), zap.String("template_version", template.Version))
	}
	metrics.PersonasRegistered.Set(float64(registry.Len()))

	checks := map[string]handler.Check{}

	// Persistence
	st, err := openStore(ctx, cfg, checks)
	if err != nil {
		log.Fatal("failed to open store", zap.Error(err))
	}
	defer st.Close()

	// Text generation
	llmClient, err := newLLMClient(cfg, log)
	if err != nil {
		log.Fatal("failed to create LLM client", zap.Error(err))
	}
	generator := llm.NewGenerator(llmClient, llm.GeneratorConfig{
		Model:       cfg.LLMModel,
		MaxTokens:   cfg.LLMMaxTokens,
		Temperature: cfg.LLMTemperature,
		Timeout:     cfg.GenerationTimeout,
	})

	dispatcher := service.NewDispatcher(cfg.Workers, cfg.QueueSize, log)
	opts := []service.Option{service.WithHistoryCapacity(cfg.HistoryWindow)}

	// NATS transport, operator notifications and audit mirror
	var (
		natsClient    *natsclient.Client
		streamManager *natsclient.StreamManager
		mirror        handler.AuditMirror
	)
	if cfg.NATSEnabled {
		natsClient, err = natsclient.Connect(ctx, natsclient.Config{
			URL:      cfg.NATSURL,
			Name:     "handoff-engine",
			CAFile:   cfg.NATSCAFile,
			CertFile: cfg.NATSCertFile,
			KeyFile:  cfg.NATSKeyFile,
			Token:    cfg.NATSToken,
		}, log)
		if err != nil {
			log.Fatal("failed to connect to NATS", zap.Error(err))
		}
		defer natsClient.Close()

		streamManager = natsclient.NewStreamManager(natsClient)
		if err := streamManager.EnsureStreams(ctx); err != nil {
			log.Fatal("failed to ensure streams", zap.Error(err))
		}
		opts = append(opts, service.WithNotifier(streamManager), service.WithAuditSink(streamManager))
		mirror = streamManager

		checks["nats"] = natsClient.Check
	}

	// Initialize services
	personaSvc := service.NewPersonaService(registry, log)
	conversationSvc := service.NewConversationService(st, registry, generator, dispatcher, log, opts...)

	var transport *natsclient.Transport
	if natsClient != nil {
		transport = natsclient.NewTransport(conversationSvc, natsClient.Conn(), natsclient.TransportConfig{
			HandleTimeout: 3 * cfg.GenerationTimeout,
			Workers:       cfg.Workers,
			QueueSize:     cfg.QueueSize,
		}, log)
		if err := transport.Start(natsClient.Conn()); err != nil {
			log.Fatal("failed to start transport", zap.Error(err))
		}
	}

	statsCtx, stopStats := context.WithCancel(ctx)
	defer stopStats()
	if streamManager != nil {
		go collectStreamStats(statsCtx, streamManager, cfg.NATSStatsInterval, log)
	}

	// Initialize handlers
	healthHandler := handler.NewHealthHandler(checks)
	personaHandler := handler.NewPersonaHandler(personaSvc, log)
	conversationHandler := handler.NewConversationHandler(conversationSvc, mirror, log)

	r := newRouter(cfg, log, healthHandler, personaHandler, conversationHandler)

	// Create HTTP server
	server := &http.Server{
		Addr:         ":" + cfg.ServerPort,
		Handler:      r,
		ReadTimeout:  cfg.ServerReadTimeout,
		WriteTimeout: cfg.ServerWriteTimeout,
		IdleTimeout:  120 * time.Second,
	}

	// Start server in goroutine
	go func() {
		log.Info("server listening", zap.String("port", cfg.ServerPort))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("server error", zap.Error(err))
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
	if transport != nil {
		if err := transport.Close(); err != nil {
			log.Error("failed to close transport", zap.Error(err))
		}
	}
	if err := dispatcher.Close(); err != nil {
		log.Error("failed to close dispatcher", zap.Error(err))
	}

	log.Info("server stopped")
}

func newRouter(
	cfg *config.Config,
	log *logger.Logger,
	health *handler.HealthHandler,
	personas *handler.PersonaHandler,
	conversations *handler.ConversationHandler,
) chi.Router {
	r := chi.NewRouter()

	// Global middleware
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.Logging(log))
	r.Use(middleware.SecurityHeaders)
	r.Use(chimiddleware.Recoverer)
	r.Use(middleware.CORS(cfg.CORSOrigins))

	// Health endpoints (no auth required)
	r.Get("/health", health.Health)
	r.Get("/ready", health.Ready)

	// Metrics endpoint
	r.Handle("/metrics", promhttp.Handler())

	// API routes with authentication
	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.Auth(cfg.JWTSecret))
		r.Use(middleware.RateLimit(cfg.RateLimitRequests, cfg.RateLimitWindow))

		r.Route("/personas", func(r chi.Router) {
			r.Get("/", personas.List)
			r.Get("/{id}", personas.Get)
			r.With(middleware.RequireScope(middleware.ScopePersonas)).Post("/", personas.Create)
		})

		r.Route("/conversations/{id}", func(r chi.Router) {
			r.Get("/", conversations.Get)
			r.Get("/audit", conversations.Audit)
			r.Get("/audit/mirror", conversations.AuditMirror)

			r.With(middleware.ConversationRateLimit(cfg.InboundRateLimitRequests, cfg.RateLimitWindow)).
				Post("/inbound", conversations.Inbound)
			r.Post("/outbound", conversations.Outbound)

			// Operator actions
			r.Group(func(r chi.Router) {
				r.Use(middleware.RequireScope(middleware.ScopeOperate))
				r.Post("/takeover", conversations.TakeOver)
				r.Post("/return", conversations.Return)
				r.Post("/human-reply", conversations.HumanReply)
			})
		})
	})

	return r
}

func loadTemplate(cfg *config.Config) (*model.CompliancePolicy, error) {
	if cfg.TemplateFile == "" {
		return compliance.Default(), nil
	}
	return compliance.Load(cfg.TemplateFile)
}

func openStore(ctx context.Context, cfg *config.Config, checks map[string]handler.Check) (store.Store, error) {
	if cfg.StoreDriver != config.StoreRedis {
		return store.NewMemoryStore(), nil
	}
	client, err := store.NewRedisClient(ctx, cfg.RedisURL)
	if err != nil {
		return nil, err
	}
	checks["redis"] = func(ctx context.Context) error {
		return client.Ping(ctx).Err()
	}
	return store.NewRedisStore(client, cfg.RedisTTL), nil
}

func newLLMClient(cfg *config.Config, log *logger.Logger) (llm.Client, error) {
	primary, err := llm.NewClient(llm.Provider(cfg.LLMProvider), cfg.APIKey(cfg.LLMProvider))
	if err != nil {
		return nil, err
	}
	if cfg.LLMFallbackProvider == "" {
		return primary, nil
	}
	fallback, err := llm.NewClient(llm.Provider(cfg.LLMFallbackProvider), cfg.APIKey(cfg.LLMFallbackProvider))
	if err != nil {
		return nil, err
	}
	return llm.NewFallbackClient(primary, fallback, log), nil
}

func collectStreamStats(ctx context.Context, sm *natsclient.StreamManager, interval time.Duration, log *logger.Logger) {
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := sm.CollectStats(ctx); err != nil {
				log.Warn("failed to collect stream stats", zap.Error(err))
			}
		}
	}
}
