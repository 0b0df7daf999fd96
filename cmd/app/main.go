// File: cmd/app/main.go
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"lead-sms-pipeline/internal/config"
	"lead-sms-pipeline/internal/domain/ports/adapter"
	aiAdapters "lead-sms-pipeline/internal/infra/adapters/ai"
	smsAdapters "lead-sms-pipeline/internal/infra/adapters/sms"
	pg "lead-sms-pipeline/internal/infra/db/postgres"
	"lead-sms-pipeline/internal/infra/events"
	"lead-sms-pipeline/internal/infra/logging"
	"lead-sms-pipeline/internal/infra/metrics"
	red "lead-sms-pipeline/internal/infra/redis"
	"lead-sms-pipeline/internal/infra/web"
	"lead-sms-pipeline/internal/queue"
	"lead-sms-pipeline/internal/usecase"
)

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// ---- CLI flags ----
	cfgPath := flag.String("config", "config.yaml", "path to YAML config file")
	devMode := flag.Bool("dev", false, "enable developer mode (noop providers allowed)")
	flag.Parse()

	cfg, err := config.LoadConfig(*cfgPath, *devMode)
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	logger := logging.New(cfg.Log, cfg.Runtime.Dev)
	if cfg.Runtime.Dev {
		logger.Info().Msg("[DEV MODE] enabled")
	}
	metrics.MustRegister()

	// ---- Postgres ----
	pool, err := pg.NewPgxPool(ctx, cfg.Database.URL, 10)
	if err != nil {
		logger.Fatal().Err(err).Msg("postgres")
	}
	defer pool.Close()

	// ---- Redis ----
	redisClient, err := red.NewClient(ctx, &cfg.Redis)
	if err != nil {
		logger.Fatal().Err(err).Msg("redis")
	}
	locker := red.NewLocker(redisClient)
	rateLimiter := red.NewRateLimiter(redisClient)
	convCache := red.NewConversationCache(redisClient, cfg.Redis.TTL)
	promptCache := red.NewPromptCache(redisClient, cfg.Conversation.PromptCacheTTL)

	// ---- Repositories ----
	msgRepo := pg.NewPostgresMessageRepo(pool)
	convRepo := pg.NewPostgresConversationRepo(pool, convCache)

	// ---- Event sink ----
	sink := events.NewLogSink(logger)

	// ---- SMS provider ----
	var provider adapter.SMSProviderAdapter
	switch cfg.SMS.Provider {
	case "twilio":
		provider, err = smsAdapters.NewTwilioAdapter(cfg.SMS.AccountSID, cfg.SMS.AuthToken, cfg.SMS.From)
		if err != nil {
			logger.Fatal().Err(err).Msg("twilio adapter")
		}
		logger.Info().Str("from", logging.Redact(cfg.SMS.From, cfg.Runtime.Dev)).Msg("SMS provider: Twilio")
	case "noop":
		if !cfg.Runtime.Dev {
			logger.Fatal().Msg("sms.provider=noop requires -dev")
		}
		provider = smsAdapters.NewNoopSMS(logger)
	default:
		logger.Fatal().Str("provider", cfg.SMS.Provider).Msg("unknown sms provider")
	}

	// ---- Dispatch pipeline ----
	breaker := queue.NewCircuitBreaker(cfg.Breaker.Threshold, cfg.Breaker.ResetTimeout, sink, logger)
	policy := queue.NewBackoffPolicy(cfg.Retry.InitialBackoff, cfg.Retry.MaxBackoff, cfg.Retry.Multiplier, time.Now().UnixNano())
	retryQueue := queue.NewRetryQueue(policy, breaker, cfg.Retry.MaxAttempts, sink, logger)
	dispatchQueue := queue.NewDispatchQueue(
		cfg.Dispatch.Workers, cfg.Dispatch.JobTimeout,
		provider, breaker, retryQueue, msgRepo, sink, logger,
	)
	retryQueue.Bind(dispatchQueue)
	dispatchQueue.Start(ctx)

	// ---- AI adapter (Gemini -> OpenAI) ----
	var ai adapter.AIServiceAdapter
	if cfg.AI.GeminiKey != "" {
		ai, err = aiAdapters.NewGeminiAdapter(ctx, cfg.AI.GeminiKey, cfg.AI.GeminiURL, cfg.AI.Model, cfg.Conversation.MaxMessageLength)
		if err != nil {
			logger.Fatal().Err(err).Msg("gemini adapter")
		}
		logger.Info().Str("model", cfg.AI.Model).Msg("AI adapter: Gemini")
	} else if cfg.AI.OpenAIKey != "" {
		ai, err = aiAdapters.NewOpenAIAdapter(cfg.AI.OpenAIKey, cfg.AI.Model)
		if err != nil {
			logger.Fatal().Err(err).Msg("openai adapter")
		}
		logger.Info().Str("model", cfg.AI.Model).Msg("AI adapter: OpenAI")
	} else if cfg.Runtime.Dev {
		ai = aiAdapters.NewNoopAI()
		logger.Info().Msg("AI adapter: noop (dev)")
	} else {
		logger.Fatal().Msgf("no AI provider configured: set ai.gemini_key or ai.openai_key in %s", *cfgPath)
	}
	ai = aiAdapters.NewLimitedAI(ai, cfg.AI.ConcurrentLimit)

	// ---- Use cases ----
	responder := usecase.NewResponderUseCase(ai, promptCache, usecase.ResponderConfig{
		Model:             cfg.AI.Model,
		Timeout:           cfg.AI.Timeout,
		MaxRetries:        cfg.AI.MaxRetries,
		RetryBase:         cfg.AI.RetryBase,
		HistoryCharBudget: cfg.Conversation.HistoryCharBudget,
		MaxMessageLength:  cfg.Conversation.MaxMessageLength,
	}, logger)

	convUC := usecase.NewConversationUseCase(
		convRepo, msgRepo, responder, dispatchQueue, locker, rateLimiter, sink,
		usecase.ConversationConfig{
			ConfidenceThreshold:    cfg.Conversation.ConfidenceThreshold,
			MaxConsecutiveFailures: cfg.Conversation.MaxConsecutiveFailures,
			HandoffKeywords:        cfg.Conversation.HandoffKeywords,
			LockTTL:                cfg.Conversation.LockTTL,
			InboundRateLimit:       cfg.Conversation.InboundRateLimit,
			InboundRateWindow:      cfg.Conversation.InboundRateWindow,
		}, logger)
	// The platform's HTTP layer (webhooks, dashboard API) drives the
	// conversation use case; this binary only hosts the pipeline.
	_ = convUC

	// ---- Ops server ----
	srv := web.NewServer(cfg.Web.BearerToken, logger)
	server := &http.Server{Addr: fmt.Sprintf(":%d", cfg.Web.Port), Handler: srv.Router()}
	go func() {
		logger.Info().Str("addr", server.Addr).Msg("ops server listening")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error().Err(err).Msg("ops server error")
		}
	}()

	// ---- Graceful shutdown ----
	sigc := make(chan os.Signal, 1)
	signal.Notify(sigc, syscall.SIGINT, syscall.SIGTERM)
	<-sigc
	logger.Info().Msg("shutdown requested")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	_ = server.Shutdown(shutdownCtx)

	// Let in-flight deliveries finish, then drain scheduled retries.
	dispatchQueue.Stop()
	retryQueue.Stop()
	breaker.Stop()
	cancel()
}
