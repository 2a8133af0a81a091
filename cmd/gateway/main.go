package main

import (
	"context"
	"database/sql"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/lib/pq"

	"github.com/knackw/ai-orchestra-gateway-sub000/internal/api"
	"github.com/knackw/ai-orchestra-gateway-sub000/internal/auth"
	"github.com/knackw/ai-orchestra-gateway-sub000/internal/compliance"
	"github.com/knackw/ai-orchestra-gateway-sub000/internal/config"
	"github.com/knackw/ai-orchestra-gateway-sub000/internal/ledger"
	"github.com/knackw/ai-orchestra-gateway-sub000/internal/license"
	"github.com/knackw/ai-orchestra-gateway-sub000/internal/notifications"
	"github.com/knackw/ai-orchestra-gateway-sub000/internal/pipeline"
	"github.com/knackw/ai-orchestra-gateway-sub000/internal/provider"
	"github.com/knackw/ai-orchestra-gateway-sub000/internal/provider/anthropic"
	"github.com/knackw/ai-orchestra-gateway-sub000/internal/provider/bedrock"
	"github.com/knackw/ai-orchestra-gateway-sub000/internal/provider/ollama"
	"github.com/knackw/ai-orchestra-gateway-sub000/internal/provider/openaicompat"
	"github.com/knackw/ai-orchestra-gateway-sub000/internal/provider/vertexclaude"
	"github.com/knackw/ai-orchestra-gateway-sub000/internal/resilience"
	"github.com/knackw/ai-orchestra-gateway-sub000/internal/secrets"
	"github.com/knackw/ai-orchestra-gateway-sub000/internal/telemetry"
	"github.com/knackw/ai-orchestra-gateway-sub000/internal/usage"
)

const version = "0.2.0"

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	setupLogger(cfg.LogLevel)

	slog.Info("starting gateway", "addr", cfg.Addr, "version", version)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if cfg.OTLPEndpoint != "" {
		shutdown, err := telemetry.Init(ctx, "ai-orchestra-gateway", cfg.OTLPEndpoint)
		if err != nil {
			slog.Error("failed to init tracing", "error", err)
			os.Exit(1)
		}
		defer shutdown(context.Background())
		slog.Info("tracing enabled", "endpoint", cfg.OTLPEndpoint)
	}

	// Provider credentials: Secrets Manager when configured, env vars
	// otherwise.
	keys := secrets.ProviderKeys{
		Anthropic:         cfg.AnthropicAPIKey,
		OpenAI:            cfg.OpenAIAPIKey,
		Scaleway:          cfg.ScalewayAPIKey,
		VertexAccessToken: cfg.VertexAccessToken,
	}
	if cfg.SecretsName != "" {
		store, err := secrets.NewAWSStore(ctx, cfg.AWSRegion)
		if err != nil {
			slog.Error("failed to init secrets store", "error", err)
			os.Exit(1)
		}
		if err := store.GetJSON(ctx, cfg.SecretsName, &keys); err != nil {
			slog.Error("failed to load provider keys", "secret", cfg.SecretsName, "error", err)
			os.Exit(1)
		}
		slog.Info("loaded provider keys from secrets manager", "secret", cfg.SecretsName)
	}

	registry := provider.NewRegistry()
	registerProviders(ctx, registry, cfg, keys)
	if len(registry.Names()) == 0 {
		slog.Error("no providers configured")
		os.Exit(1)
	}

	var db *sql.DB
	if cfg.DatabaseURL != "" {
		db, err = sql.Open("postgres", cfg.DatabaseURL)
		if err != nil {
			slog.Error("failed to open database", "error", err)
			os.Exit(1)
		}
		defer db.Close()
		if err := db.PingContext(ctx); err != nil {
			slog.Error("failed to ping database", "error", err)
			os.Exit(1)
		}
		slog.Info("connected to postgres")
	}

	var notifier notifications.Notifier
	if cfg.SNSTopicARN != "" {
		snsNotifier, err := notifications.NewSNSNotifier(ctx, cfg.AWSRegion, cfg.SNSTopicARN)
		if err != nil {
			slog.Error("failed to init sns notifier", "error", err)
			os.Exit(1)
		}
		notifier = snsNotifier
		slog.Info("using sns notifier", "topic", cfg.SNSTopicARN)
	}

	notifyStateChange := func(ntype notifications.NotificationType, provider, message string) {
		if notifier == nil {
			return
		}
		sendCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := notifier.Send(sendCtx, notifications.Notification{
			Type:     ntype,
			Provider: provider,
			Message:  message,
		}); err != nil {
			slog.Warn("state-change notification failed", "provider", provider, "error", err)
		}
	}

	onCircuitOpen := func(p string) {
		slog.Warn("circuit opened", "provider", p)
		notifyStateChange(notifications.NotificationProviderDown, p, "circuit opened after repeated failures")
	}
	onCircuitClose := func(p string) {
		slog.Info("circuit closed", "provider", p)
		notifyStateChange(notifications.NotificationProviderUp, p, "provider recovered")
	}

	healthRegistry := resilience.NewRegistry(resilience.DefaultHealthConfig(),
		resilience.WithStateChangeHooks(onCircuitOpen, onCircuitClose),
	)

	// The admin API and the executor must share one tracker, otherwise
	// operators inspect and reset state the breaker never touches.
	var tracker resilience.HealthReporter = healthRegistry
	if cfg.UseDistributedHealth && cfg.RedisURL != "" {
		redisTracker, err := resilience.NewRedisHealthTracker(cfg.RedisURL, resilience.DefaultHealthConfig())
		if err != nil {
			slog.Error("failed to connect to redis for health tracking", "error", err)
			os.Exit(1)
		}
		defer redisTracker.Close()
		redisTracker.SetStateChangeHooks(onCircuitOpen, onCircuitClose)
		tracker = redisTracker
		slog.Info("using distributed health tracking")
	}

	executor := resilience.NewExecutor(resilience.ExecutorConfig{
		Registry: registry,
		Health:   tracker,
		Retry:    resilience.DefaultRetryPolicy(),
	})

	var licenses license.Directory
	var creditLedger ledger.Ledger
	switch {
	case db != nil:
		licenses = license.NewPostgresDirectory(db)
		creditLedger = ledger.NewPostgresLedger(db)
		slog.Info("using postgres license directory and ledger")
	case cfg.RedisURL != "":
		redisLedger, err := ledger.NewRedisLedger(cfg.RedisURL)
		if err != nil {
			slog.Error("failed to connect to redis for ledger", "error", err)
			os.Exit(1)
		}
		defer redisLedger.Close()
		licenses = license.NewInMemoryDirectory()
		creditLedger = redisLedger
		slog.Info("using redis ledger with in-memory license directory")
	default:
		licenses = license.NewInMemoryDirectory()
		creditLedger = ledger.NewInMemoryLedger()
		slog.Warn("using in-memory license directory and ledger; state is lost on restart")
	}

	var recorder usage.Recorder
	switch {
	case cfg.SQSQueueURL != "":
		sqsRecorder, err := usage.NewSQSRecorder(ctx, cfg.AWSRegion, cfg.SQSQueueURL)
		if err != nil {
			slog.Error("failed to init sqs recorder", "error", err)
			os.Exit(1)
		}
		recorder = sqsRecorder
		slog.Info("using sqs usage recorder", "queue", cfg.SQSQueueURL)
	case db != nil:
		recorder = usage.NewPostgresRecorder(db)
		slog.Info("using postgres usage recorder")
	default:
		recorder = usage.NewInMemoryRecorder()
	}

	complianceRouter := compliance.NewDefaultRouter()

	pipe := pipeline.New(pipeline.Config{
		Router:          complianceRouter,
		Executor:        executor,
		Ledger:          creditLedger,
		Recorder:        recorder,
		Notifier:        notifier,
		Failover:        resilience.FailoverPolicy{Providers: cfg.FailoverChain},
		RequestTimeout:  cfg.RequestTimeout,
		DeductTimeout:   cfg.DeductTimeout,
		DefaultProvider: cfg.DefaultProvider,
	})

	var adminAuth *auth.Middleware
	if cfg.AdminAuthEnabled {
		var repo auth.OperatorRepository
		switch {
		case db != nil:
			repo = auth.NewPostgresOperatorRepository(db)
		case cfg.AdminKeyHash != "":
			repo = auth.NewBootstrapOperatorRepository(cfg.AdminKeyHash)
			slog.Info("admin auth using bootstrap operator", "username", auth.BootstrapUsername)
		default:
			slog.Error("ADMIN_AUTH_ENABLED requires DATABASE_URL or ADMIN_KEY_HASH")
			os.Exit(1)
		}
		adminAuth = auth.NewMiddleware(auth.NewAuthenticator(repo))
		slog.Info("admin auth enabled")
	}

	var usageTotals usage.TotalsReader
	if tr, ok := recorder.(usage.TotalsReader); ok {
		usageTotals = tr
	}

	handler := api.NewHandler(api.HandlerConfig{
		Licenses:  licenses,
		Pipeline:  pipe,
		Router:    complianceRouter,
		Health:    tracker,
		Usage:     usageTotals,
		AdminAuth: adminAuth,
	})

	srv := &http.Server{
		Addr:         cfg.Addr,
		Handler:      handler,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 150 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		slog.Info("server listening", "addr", cfg.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	slog.Info("shutting down server...")

	shutdownCtx, shutdownCancel := context.WithTimeout(ctx, cfg.ShutdownTimeout)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("server forced to shutdown", "error", err)
	}

	slog.Info("server stopped")
}

func registerProviders(ctx context.Context, registry *provider.Registry, cfg *config.Config, keys secrets.ProviderKeys) {
	register := func(p provider.Provider) {
		if err := registry.Register(p); err != nil {
			slog.Error("failed to register provider", "provider", p.Name(), "error", err)
			os.Exit(1)
		}
		slog.Info("registered provider", "provider", p.Name())
	}

	if keys.Anthropic != "" {
		register(anthropic.New(keys.Anthropic))
	}
	if keys.OpenAI != "" {
		register(openaicompat.New("openai", keys.OpenAI, cfg.OpenAIBaseURL, ""))
	}
	if keys.Scaleway != "" {
		register(openaicompat.New("scaleway", keys.Scaleway, cfg.ScalewayBaseURL, ""))
	}
	if cfg.OllamaBaseURL != "" {
		register(ollama.New(cfg.OllamaBaseURL))
	}
	if cfg.VertexProjectID != "" && keys.VertexAccessToken != "" {
		register(vertexclaude.New(cfg.VertexProjectID, cfg.VertexRegion, keys.VertexAccessToken))
	}
	if cfg.BedrockEnabled {
		adapter, err := bedrock.New(ctx, cfg.AWSRegion)
		if err != nil {
			slog.Error("failed to init bedrock provider", "error", err)
			os.Exit(1)
		}
		register(adapter)
	}
}

func setupLogger(level string) {
	var logLevel slog.Level
	switch level {
	case "debug":
		logLevel = slog.LevelDebug
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	default:
		logLevel = slog.LevelInfo
	}

	handler := slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: logLevel,
	})
	slog.SetDefault(slog.New(handler))
}
