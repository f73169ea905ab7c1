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
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/taskhive/pulse/internal/api"
	"github.com/taskhive/pulse/internal/chatapi"
	"github.com/taskhive/pulse/internal/chatlink"
	"github.com/taskhive/pulse/internal/circuitbreaker"
	"github.com/taskhive/pulse/internal/config"
	"github.com/taskhive/pulse/internal/db"
	"github.com/taskhive/pulse/internal/dispatch"
	"github.com/taskhive/pulse/internal/feed"
	"github.com/taskhive/pulse/internal/metrics"
	"github.com/taskhive/pulse/internal/observ"
	"github.com/taskhive/pulse/internal/prefs"
	"github.com/taskhive/pulse/internal/redis"
	"github.com/taskhive/pulse/internal/transport"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	// Load config
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	// Setup logger
	logger, err := observ.NewLogger(cfg.Env, cfg.LogLevel)
	if err != nil {
		return fmt.Errorf("failed to create logger: %w", err)
	}
	defer func() { _ = logger.Sync() }()

	logger.Info("starting pulse gateway",
		zap.String("env", cfg.Env),
		zap.Int("port", cfg.Port),
	)

	// Initialize database connection
	ctx := context.Background()
	dbConfig := db.Config{
		Host:     cfg.DBHost,
		Port:     cfg.DBPort,
		User:     cfg.DBUser,
		Password: cfg.DBPassword,
		Database: cfg.DBName,
		SSLMode:  cfg.DBSSLMode,
	}

	database, err := db.New(ctx, dbConfig, logger)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer database.Close()

	logger.Info("database connection established",
		zap.String("host", cfg.DBHost),
		zap.Int("port", cfg.DBPort),
		zap.String("database", cfg.DBName),
	)

	// Initialize repositories
	notificationRepo := db.NewNotificationRepo(database, logger)
	preferenceRepo := db.NewPreferenceRepo(database, logger)
	chatLinkRepo := db.NewChatLinkRepo(database, logger)
	subscriptionRepo := db.NewSubscriptionRepo(database, logger)
	userRepo := db.NewUserRepo(database)
	invitationRepo := db.NewInvitationRepo(database)

	// Initialize Redis for dedup, rate limiting and the unread cache
	redisConfig := redis.Config{
		Host:     cfg.RedisHost,
		Port:     cfg.RedisPort,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	}

	redisClient, err := redis.New(ctx, redisConfig, logger)
	if err != nil {
		logger.Warn("redis unavailable, dedup and unread cache disabled",
			zap.Error(err),
			zap.String("host", cfg.RedisHost),
		)
	}

	var (
		eventDedup    *redis.EventDedup
		unreadCounter *redis.UnreadCounter
		apiLimiter    *redis.RateLimiter
		codeLimiter   *redis.RateLimiter
	)
	if redisClient != nil {
		eventDedup = redis.NewEventDedup(redisClient, logger)
		unreadCounter = redis.NewUnreadCounter(redisClient, logger)
		apiLimiter = redis.NewRateLimiter(redisClient, logger, redis.RateLimitConfig{
			Limit:  300,             // 300 requests
			Window: 1 * time.Minute, // per minute per user
		})
		codeLimiter = redis.NewRateLimiter(redisClient, logger, redis.RateLimitConfig{
			Limit:  5,               // 5 code submissions
			Window: 1 * time.Minute, // per minute per chat identity
		})
		defer redisClient.Close()
	}

	// Chat bot API client, shared by the chat transport and the webhook
	chatClient, err := chatapi.New(chatapi.Config{
		BaseURL: cfg.ChatBaseURL,
		Token:   cfg.ChatToken,
		Timeout: time.Duration(cfg.ChatTimeout) * time.Second,
	}, logger)
	if err != nil {
		return fmt.Errorf("failed to create chat api client: %w", err)
	}

	// Channel transports, each behind its own circuit breaker
	var counterHook transport.UnreadBumper
	if unreadCounter != nil {
		counterHook = unreadCounter
	}
	inApp := transport.NewInApp(notificationRepo, counterHook, logger)

	pushTransport, err := transport.NewPush(ctx, transport.PushConfig{
		Region: cfg.SNSRegion,
	}, subscriptionRepo, logger)
	if err != nil {
		return fmt.Errorf("failed to create push transport: %w", err)
	}

	emailTransport, err := transport.NewEmail(ctx, transport.EmailConfig{
		Region:    cfg.AWSRegion,
		FromEmail: cfg.SESFromEmail,
	}, userRepo, logger)
	if err != nil {
		return fmt.Errorf("failed to create email transport: %w", err)
	}

	chatTransport := transport.NewChat(chatClient, chatLinkRepo, logger)

	protectedPush := transport.NewProtected(pushTransport,
		circuitbreaker.New(circuitbreaker.DefaultConfig("push"), logger), logger)
	protectedEmail := transport.NewProtected(emailTransport,
		circuitbreaker.New(circuitbreaker.DefaultConfig("email"), logger), logger)
	protectedChat := transport.NewProtected(chatTransport,
		circuitbreaker.New(circuitbreaker.DefaultConfig("chat"), logger), logger)

	// Dispatcher resolves preferences through the service so absent
	// records read as the documented defaults, not as errors.
	prefService := prefs.New(preferenceRepo, logger)

	var dedup dispatch.Deduper
	if eventDedup != nil {
		dedup = eventDedup
	}
	dispatcher := dispatch.New(
		prefService,
		userRepo,
		inApp,
		[]transport.Transport{protectedPush, protectedEmail, protectedChat},
		dedup,
		dispatch.Config{
			ConcurrencyLimit: cfg.DispatchConcurrency,
			SendTimeout:      time.Duration(cfg.DispatchSendTimeout) * time.Second,
		},
		logger,
	)

	// Read model, preferences, linking
	var countCache feed.CountCache
	if unreadCounter != nil {
		countCache = unreadCounter
	}
	feedService := feed.NewService(notificationRepo, countCache, logger)
	linkService := chatlink.NewService(chatLinkRepo, logger)
	webhook := chatlink.NewWebhook(chatLinkRepo, chatClient, codeLimiter, logger)

	logger.Info("initialized notification delivery engine",
		zap.Bool("dedup_enabled", eventDedup != nil),
		zap.Bool("unread_cache_enabled", unreadCounter != nil),
		zap.Int("dispatch_concurrency", cfg.DispatchConcurrency),
	)

	// Setup router
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(30 * time.Second))
	r.Use(metrics.Middleware)

	// Custom logging middleware
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

			next.ServeHTTP(ww, r)

			logger.Info("request completed",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", ww.Status()),
				zap.Duration("duration_ms", time.Since(start)),
				zap.String("request_id", middleware.GetReqID(r.Context())),
			)
		})
	})

	// API routes
	handler := api.NewHandler(
		logger,
		dispatcher,
		prefService,
		feedService,
		linkService,
		webhook,
		subscriptionRepo,
		userRepo,
		invitationRepo,
		protectedPush,
	)

	r.Route("/v1", func(r chi.Router) {
		r.Post("/events", handler.DispatchEvent)
		r.Post("/invitations/notify", handler.NotifyInvitation)

		r.Route("/users/{userID}", func(r chi.Router) {
			// Apply per-user rate limiting to user-scoped routes
			r.Use(api.RateLimitMiddleware(apiLimiter, logger, api.UserKeyFunc))

			r.Get("/preferences", handler.GetPreferences)
			r.Put("/preferences", handler.PutPreferences)

			r.Get("/notifications", handler.ListNotifications)
			r.Get("/notifications/unread-count", handler.UnreadCount)
			r.Post("/notifications/{id}/read", handler.MarkRead)
			r.Post("/notifications/read-all", handler.MarkAllRead)

			r.Put("/push-subscription", handler.PutPushSubscription)
			r.Delete("/push-subscription", handler.DeletePushSubscription)
		})

		r.Post("/chat/link", handler.ChatLink)
		r.Post("/chat/disconnect", handler.ChatDisconnect)
		r.Get("/chat/status", handler.ChatStatus)
		r.Post("/chat/webhook", handler.ChatWebhook)

		r.Post("/push/send", handler.PushSend)
	})

	// Health check
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		if err := database.Health(r.Context()); err != nil {
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte("database unavailable"))
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})

	// Prometheus metrics endpoint
	r.Handle("/metrics", metrics.Handler())

	// Setup HTTP server
	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in a goroutine
	serverErrors := make(chan error, 1)
	go func() {
		logger.Info("server listening", zap.String("addr", srv.Addr))
		serverErrors <- srv.ListenAndServe()
	}()

	// Listen for shutdown signals
	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

	// Block until we receive a signal or server error
	select {
	case err := <-serverErrors:
		return fmt.Errorf("server error: %w", err)
	case sig := <-shutdown:
		logger.Info("shutdown signal received", zap.String("signal", sig.String()))

		// Give outstanding requests 10 seconds to complete
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		if err := srv.Shutdown(ctx); err != nil {
			srv.Close()
			return fmt.Errorf("graceful shutdown failed: %w", err)
		}

		logger.Info("server stopped gracefully")
	}

	return nil
}
