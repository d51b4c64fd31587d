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

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/ekaya-inc/chat-gateway/pkg/audit"
	"github.com/ekaya-inc/chat-gateway/pkg/auth"
	"github.com/ekaya-inc/chat-gateway/pkg/config"
	"github.com/ekaya-inc/chat-gateway/pkg/database"
	"github.com/ekaya-inc/chat-gateway/pkg/handlers"
	"github.com/ekaya-inc/chat-gateway/pkg/llm"
	"github.com/ekaya-inc/chat-gateway/pkg/middleware"
	"github.com/ekaya-inc/chat-gateway/pkg/repositories"
	"github.com/ekaya-inc/chat-gateway/pkg/retry"
	"github.com/ekaya-inc/chat-gateway/pkg/services"
)

// Version is set at build time via ldflags
var Version = "dev"

// shareSweepSpec is how often the in-memory share store drops expired links.
const shareSweepSpec = "@every 5m"

func main() {
	cfg, err := config.Load(Version)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger, err := newLogger(cfg.Env)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	if err := run(cfg, logger); err != nil {
		logger.Fatal("Server failed", zap.Error(err))
	}
}

func newLogger(env string) (*zap.Logger, error) {
	if env == "local" || env == "dev" {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}

func run(cfg *config.Config, logger *zap.Logger) error {
	ctx := context.Background()

	logger.Info("Configuration loaded",
		zap.String("environment", cfg.Env),
		zap.String("base_url", cfg.BaseURL),
		zap.String("upstream", cfg.OpenRouter.BaseURL),
		zap.Strings("chat_models", cfg.OpenRouter.ChatModels),
		zap.Strings("summary_models", cfg.OpenRouter.SummaryModels),
		zap.String("opensearch", cfg.OpenSearch.URL),
		zap.String("redis", cfg.Redis.Host),
		zap.Bool("google_sign_in", cfg.Auth.IsGoogleEnabled()))

	// Document store: optional, every dependent feature degrades to a no-op.
	indexes := repositories.IndexNames{
		Summaries: cfg.OpenSearch.SummaryIndex,
		Usage:     cfg.OpenSearch.UsageIndex,
		Activity:  cfg.OpenSearch.ActivityIndex,
	}
	search := connectOpenSearch(ctx, cfg, indexes, logger)
	store := documentStore(search)

	redisClient, err := connectRedis(ctx, cfg, logger)
	if err != nil {
		logger.Warn("Redis unreachable, using in-memory share store", zap.Error(err))
	}
	if redisClient != nil {
		defer func() { _ = redisClient.Close() }()
	}
	shares, shareBackend, err := newShareRepository(redisClient, logger)
	if err != nil {
		return err
	}
	defer func() { _ = shares.Close() }()

	// Upstream completion client and cascade.
	client, err := llm.NewClient(&llm.Config{
		BaseURL: cfg.OpenRouter.BaseURL,
		APIKey:  cfg.OpenRouter.APIKey,
		Timeout: cfg.OpenRouter.Timeout,
		Referer: cfg.OpenRouter.Referer,
		Title:   cfg.OpenRouter.Title,
	}, logger)
	if err != nil {
		return fmt.Errorf("failed to create completion client: %w", err)
	}
	if !client.HasDefaultKey() {
		logger.Warn("OPENROUTER_API_KEY not set, callers must send Authorization: Bearer <key>")
	}
	cascade := llm.NewCascade(client, retry.RateLimitConfig(cfg.OpenRouter.RateLimitDelay, cfg.OpenRouter.RateLimitMaxDelay), logger)
	quirks := services.NewQuirkTable(cfg.OpenRouter.NoSystemRole)

	// Services
	memory := services.NewMemoryService(repositories.NewSummaryRepository(store, indexes.Summaries), logger)
	telemetry := services.NewAsyncTelemetrySink(
		repositories.NewTelemetryRepository(store, indexes, cfg.Telemetry.Environment), logger, cfg.Telemetry.QueueSize)
	runner := services.NewBackgroundRunner(services.BackgroundRunnerConfig{
		MaxConcurrent: cfg.Memory.BackgroundConcurrency,
		Timeout:       cfg.Memory.BackgroundTimeout,
	}, logger)
	summarizer := services.NewSummarizer(cascade, memory, quirks, services.SummarizerConfig{
		Models: cfg.OpenRouter.SummaryModels,
		Window: cfg.Memory.SummaryWindow,
	}, logger)
	chat := services.NewChatService(cascade, memory, telemetry, summarizer, runner, quirks, services.ChatConfig{
		ChatModels:     cfg.OpenRouter.ChatModels,
		SummarizeEvery: cfg.Memory.SummarizeEvery,
		Endpoint:       client.Endpoint(),
	}, logger)
	dashboard := services.NewDashboardService(repositories.NewDashboardRepository(store, indexes), store != nil, logger)
	shareService := services.NewShareService(shares, cfg.Redis.ShareTTL, logger)
	opengraph := services.NewOpenGraphService(0, logger)

	// Auth
	secure := cfg.Auth.SecureCookie || auth.IsHTTPS(cfg.BaseURL)
	sessions, err := auth.NewSessionStore(cfg.Auth.SessionSecret, cfg.Auth.SessionMaxAge, secure)
	if err != nil {
		return err
	}
	if cfg.Auth.SessionSecret == "" {
		logger.Warn("SESSION_SECRET not set, sign-in sessions will not survive a restart")
	}
	verifier := newTokenVerifier(ctx, cfg, logger)
	if verifier != nil {
		defer verifier.Close()
	}
	authMiddleware := auth.NewMiddleware(sessions, logger)

	// Routes
	mux := http.NewServeMux()
	handlers.NewHealthHandler(cfg, handlers.Dependencies{DocumentStore: store != nil, ShareStore: shareBackend}, logger).RegisterRoutes(mux)
	chatSessions := services.NewChatSessionService(newActiveChatRepository(redisClient, cfg.Redis.ActiveChatTTL), logger)
	handlers.NewChatHandler(chat, chatSessions, cfg.OpenRouter.APIKey, logger).RegisterRoutes(mux)
	handlers.NewShareHandler(shareService, cfg.BaseURL, logger).RegisterRoutes(mux)
	handlers.NewExtractHandler(opengraph, logger).RegisterRoutes(mux)
	handlers.NewAuthHandler(tokenVerifier(verifier), sessions, authMiddleware, audit.NewSecurityAuditor(logger), logger).RegisterRoutes(mux)
	handlers.NewDashboardHandler(dashboard, logger).RegisterRoutes(mux)
	handlers.RegisterStatic(mux, cfg.StaticDir, logger)

	var handler http.Handler = mux
	handler = authMiddleware.LoadIdentity(handler)
	handler = middleware.CORS(cfg.CORSAllowedOrigins)(handler)
	handler = middleware.RequestLogger(logger)(handler)

	server := &http.Server{
		Addr:              cfg.ListenAddr(),
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		logger.Info("Starting chat-gateway",
			zap.String("addr", server.Addr),
			zap.String("version", cfg.Version))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
		close(serverErr)
	}()

	sigCtx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	select {
	case err := <-serverErr:
		if err != nil {
			return fmt.Errorf("http server: %w", err)
		}
	case <-sigCtx.Done():
		logger.Info("Shutdown signal received")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("HTTP server shutdown failed", zap.Error(err))
	}
	if err := runner.Close(shutdownCtx); err != nil {
		logger.Warn("Background jobs did not finish", zap.Error(err))
	}
	// Follow-up jobs may record telemetry, so the sink closes last.
	telemetry.Close()

	logger.Info("Server exited cleanly")
	return nil
}

// connectOpenSearch returns a ready client, or nil when OpenSearch is not
// configured or unreachable. Never fatal.
func connectOpenSearch(ctx context.Context, cfg *config.Config, indexes repositories.IndexNames, logger *zap.Logger) *database.OpenSearch {
	client, err := database.NewOpenSearchClient(&cfg.OpenSearch, logger)
	if err != nil {
		logger.Warn("OpenSearch disabled: invalid configuration", zap.Error(err))
		return nil
	}
	if client == nil {
		logger.Info("OpenSearch not configured, memory and telemetry disabled")
		return nil
	}

	if err := retry.DoIfRetryable(ctx, retry.DefaultConfig(), func() error {
		return client.Ping(ctx)
	}); err != nil {
		logger.Warn("OpenSearch unreachable, memory and telemetry disabled", zap.Error(err))
		return nil
	}

	for index, mapping := range repositories.IndexMappings(indexes) {
		if err := client.EnsureIndex(ctx, index, mapping); err != nil {
			logger.Warn("Failed to ensure index", zap.String("index", index), zap.Error(err))
		}
	}

	logger.Info("Connected to OpenSearch", zap.String("url", cfg.OpenSearch.URL))
	return client
}

// documentStore avoids handing repositories a non-nil interface holding a nil client.
func documentStore(client *database.OpenSearch) repositories.DocumentStore {
	if client == nil {
		return nil
	}
	return client
}

// connectRedis returns nil without error when Redis is not configured.
func connectRedis(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*redis.Client, error) {
	client, err := retry.DoWithResult(ctx, retry.DefaultConfig(), func() (*redis.Client, error) {
		return database.NewRedisClient(ctx, &cfg.Redis)
	})
	if err != nil {
		return nil, err
	}
	if client != nil {
		logger.Info("Connected to Redis", zap.String("addr", cfg.Redis.Addr()))
	}
	return client, nil
}

// newShareRepository prefers Redis and falls back to the in-process store.
func newShareRepository(client *redis.Client, logger *zap.Logger) (repositories.ShareRepository, string, error) {
	if client != nil {
		return repositories.NewRedisShareRepository(client), "redis", nil
	}
	repo, err := repositories.NewMemoryShareRepository(shareSweepSpec, logger)
	if err != nil {
		return nil, "", err
	}
	return repo, "memory", nil
}

// newActiveChatRepository follows the share store's backend choice.
func newActiveChatRepository(client *redis.Client, ttl time.Duration) repositories.ActiveChatRepository {
	if client != nil {
		return repositories.NewRedisActiveChatRepository(client, ttl)
	}
	return repositories.NewMemoryActiveChatRepository()
}

func newTokenVerifier(ctx context.Context, cfg *config.Config, logger *zap.Logger) *auth.GoogleVerifier {
	if !cfg.Auth.IsGoogleEnabled() {
		logger.Info("Google sign-in not configured")
		return nil
	}
	verifier, err := auth.NewGoogleVerifier(ctx, auth.GoogleConfig{
		ClientID: cfg.Auth.GoogleClientID,
		JWKSURL:  cfg.Auth.JWKSURL,
		Issuers:  cfg.Auth.Issuers,
	})
	if err != nil {
		logger.Warn("Google sign-in disabled: failed to load signing keys", zap.Error(err))
		return nil
	}
	return verifier
}

func tokenVerifier(v *auth.GoogleVerifier) auth.TokenVerifier {
	if v == nil {
		return nil
	}
	return v
}
