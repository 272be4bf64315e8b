package main

import (
	"context"
	"encoding/json"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/pflag"

	"github.com/openclaw/line-agent-relay/internal/agent"
	"github.com/openclaw/line-agent-relay/internal/config"
	"github.com/openclaw/line-agent-relay/internal/database"
	"github.com/openclaw/line-agent-relay/internal/handler"
	"github.com/openclaw/line-agent-relay/internal/jobs"
	"github.com/openclaw/line-agent-relay/internal/middleware"
	"github.com/openclaw/line-agent-relay/internal/redis"
	"github.com/openclaw/line-agent-relay/internal/repository"
	"github.com/openclaw/line-agent-relay/internal/service"
	"github.com/openclaw/line-agent-relay/internal/session"
)

func main() {
	envFile := pflag.String("env-file", "", "load environment variables from this file (default ./.env when present)")
	addr := pflag.String("addr", "", "listen address, overrides PORT")
	pflag.Parse()

	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	cfg, err := config.Load(*envFile)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}
	if err := cfg.Validate(); err != nil {
		log.Fatal().Err(err).Msg("invalid config")
	}

	setLogLevel(cfg.LogLevel)

	listenAddr := cfg.Addr()
	if *addr != "" {
		listenAddr = *addr
	}

	var redisClient *redis.Client
	if cfg.UsesRedis() {
		redisClient, err = redis.NewClient(cfg.RedisURL)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to connect to redis")
		}
		defer redisClient.Close()
		log.Info().Msg("redis connected")
	}

	var nameCardRepo repository.NameCardRepository
	if cfg.DatabaseURL != "" {
		db, err := database.Connect(cfg.DatabaseURL)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to connect to database")
		}
		defer db.Close()

		ctx, cancel := context.WithTimeout(context.Background(), config.DBPingTimeout)
		if err := db.Ping(ctx); err != nil {
			log.Fatal().Err(err).Msg("failed to ping database")
		}
		if err := db.EnsureSchema(ctx); err != nil {
			log.Fatal().Err(err).Msg("failed to apply database schema")
		}
		cancel()
		log.Info().Msg("database connected")

		nameCardRepo = repository.NewNameCardRepository(db.DB)
	}

	var cleanupTargets []jobs.Target

	var store agent.SessionStore
	if cfg.SessionStoreBackend == config.StoreRedis {
		store = agent.NewRedisSessionStore(redisClient.Client, cfg.SessionTTL())
	} else {
		memStore := agent.NewMemorySessionStore(cfg.SessionTTL())
		store = memStore
		cleanupTargets = append(cleanupTargets, jobs.Target{Name: "agent sessions", Expirer: memStore})
	}

	var registry session.Registry
	if cfg.RegistryBackend == config.StoreRedis {
		registry = session.NewRedisRegistry(cfg.AppName, redisClient.Client, store)
	} else {
		registry = session.NewMemoryRegistry(cfg.AppName, store)
	}

	model, err := newModel(cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to create model backend")
	}

	runnerOpts := []agent.RunnerOption{agent.WithHistoryTurns(cfg.HistoryMaxTurns)}
	if cfg.AgentInstruction != "" {
		runnerOpts = append(runnerOpts, agent.WithInstruction(cfg.AgentInstruction))
	}
	runner := agent.NewRunner(cfg.AppName, store, model, runnerOpts...)
	log.Info().Str("backend", cfg.AgentBackend).Str("model", model.Name()).Msg("agent runner ready")

	agentService := service.NewAgentService(registry, runner, cfg.AgentTimeout())
	lineService := service.NewLineService(cfg.LineAPIBaseURL, cfg.LineDataAPIBaseURL, cfg.LineChannelAccessToken)
	conversationService := service.NewConversationService(cfg.AppName, registry, store)

	var parser service.NamecardParser
	if cfg.OpenAIAPIKey != "" {
		parser = agent.NewNamecardVision(cfg.OpenAIAPIKey, cfg.OpenAIBaseURL, cfg.VisionModel)
	}
	namecardService := service.NewNamecardService(lineService, parser, agentService, nameCardRepo)

	var (
		limiter service.UserLimiter
		deduper service.EventDeduper
	)
	if redisClient != nil {
		limiter = service.NewRedisRateLimiter(redisClient.Client, cfg.UserRateLimitPerMin, config.UserRateLimitWindow)
		deduper = service.NewRedisEventDeduper(redisClient.Client, config.WebhookEventDedupTTL)
	} else {
		limiter = service.NewMemoryRateLimiter(cfg.UserRateLimitPerMin, config.UserRateLimitWindow)
		memDeduper := service.NewMemoryEventDeduper(config.WebhookEventDedupTTL)
		deduper = memDeduper
		cleanupTargets = append(cleanupTargets, jobs.Target{Name: "webhook events", Expirer: memDeduper})
	}

	lineSignatureMiddleware := middleware.NewLineSignatureMiddleware(cfg.LineChannelSecret)
	bodyLimitMiddleware := middleware.NewBodyLimitMiddleware(0)

	lineHandler := handler.NewLineHandler(agentService, namecardService, lineService, limiter, deduper, conversationService)

	r := chi.NewRouter()

	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.RequestLogger)
	r.Use(chimiddleware.Recoverer)
	r.Use(chimiddleware.Timeout(config.ServerRequestTimeout))
	r.Use(bodyLimitMiddleware.Handler)

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		json.NewEncoder(w).Encode(map[string]any{
			"status":    "ok",
			"timestamp": time.Now().UnixMilli(),
		})
	})

	r.Group(func(r chi.Router) {
		r.Use(lineSignatureMiddleware.Handler)
		r.Post("/callback", lineHandler.Webhook)
		r.Post("/", lineHandler.Webhook)
	})

	if cfg.AdminPasswordHash != "" {
		isProduction := os.Getenv("FLY_APP_NAME") != ""
		securityHeadersMiddleware := middleware.NewSecurityHeadersMiddleware(isProduction)
		attemptLimiter := middleware.NewAttemptLimiter(config.AdminMaxAttempts, config.AdminAttemptWindow)
		adminAuth := middleware.NewAdminAuthMiddleware(cfg.AdminPasswordHash, attemptLimiter)

		var lister handler.NameCardLister
		if nameCardRepo != nil {
			lister = namecardService
		}
		adminHandler := handler.NewAdminHandler(lister, conversationService, adminAuth.Handler)

		r.Route("/admin", func(r chi.Router) {
			r.Use(securityHeadersMiddleware.Handler)
			r.Mount("/", adminHandler.Routes())
		})
		log.Info().Bool("namecards", lister != nil).Msg("admin API enabled")
	}

	cleanupJob := jobs.NewCleanupJob(config.CleanupJobInterval, cleanupTargets...)
	if cleanupJob.Len() > 0 {
		cleanupJob.Start()
		defer cleanupJob.Stop()
	}

	server := &http.Server{
		Addr:         listenAddr,
		Handler:      r,
		ReadTimeout:  config.ServerReadTimeout,
		WriteTimeout: 0,
		IdleTimeout:  config.ServerIdleTimeout,
	}

	go func() {
		log.Info().Str("addr", listenAddr).Msg("starting server")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info().Msg("shutting down server")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), config.ServerShutdownTimeout)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("server forced to shutdown")
	}

	log.Info().Msg("server stopped")
}

func newModel(cfg *config.Config) (agent.Model, error) {
	if cfg.AgentBackend == config.BackendOllama {
		m, err := agent.NewOllamaModel(cfg.OllamaHost, cfg.AgentModel, nil)
		if err != nil {
			return nil, err
		}
		return m, nil
	}
	return agent.NewOpenAIModel(cfg.OpenAIAPIKey, cfg.OpenAIBaseURL, cfg.AgentModel), nil
}

func setLogLevel(level string) {
	switch level {
	case "debug":
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	case "info":
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	case "warn":
		zerolog.SetGlobalLevel(zerolog.WarnLevel)
	case "error":
		zerolog.SetGlobalLevel(zerolog.ErrorLevel)
	default:
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	}
}
