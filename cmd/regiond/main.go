package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"go.opentelemetry.io/otel"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"

	httpAdapter "github.com/lorrc/region-sync/internal/adapters/primary/http"
	mw "github.com/lorrc/region-sync/internal/adapters/primary/http/middleware"
	"github.com/lorrc/region-sync/internal/adapters/primary/websocket"
	"github.com/lorrc/region-sync/internal/adapters/secondary/postgres"
	"github.com/lorrc/region-sync/internal/adapters/secondary/redis"
	"github.com/lorrc/region-sync/internal/auth"
	"github.com/lorrc/region-sync/internal/config"
	"github.com/lorrc/region-sync/internal/core/dispatch"
	apperrors "github.com/lorrc/region-sync/internal/core/errors"
	"github.com/lorrc/region-sync/internal/core/eventbus"
	"github.com/lorrc/region-sync/internal/core/ports"
	"github.com/lorrc/region-sync/internal/core/scene"
	"github.com/lorrc/region-sync/internal/core/services"
	"github.com/lorrc/region-sync/internal/infrastructure/logging"
)

func main() {
	// 1. Load Configuration
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	// 2. Initialize Structured Logger
	hostname, _ := os.Hostname()
	logger := logging.NewLogger(logging.Config{
		Level:       cfg.Logging.Level,
		Format:      cfg.Logging.Format,
		Output:      os.Stdout,
		ServiceName: cfg.App.Name,
		Environment: cfg.App.Environment,
		ProcessID:   fmt.Sprintf("%s-%d", hostname, os.Getpid()),
	})

	logger.Info("starting service",
		"version", cfg.App.Version,
		"environment", cfg.App.Environment,
		"config", cfg.String(),
	)

	// Spans are sampled but not exported until a collector is configured.
	tracerProvider := sdktrace.NewTracerProvider(
		sdktrace.WithSampler(sdktrace.ParentBased(sdktrace.AlwaysSample())),
	)
	otel.SetTracerProvider(tracerProvider)

	// 3. Initialize Database Pool
	ctx := context.Background()
	pool, err := postgres.NewPool(ctx, postgres.PoolConfig{
		URL:             cfg.Database.URL,
		MaxOpenConns:    cfg.Database.MaxOpenConns,
		MaxIdleConns:    cfg.Database.MaxIdleConns,
		ConnMaxLifetime: cfg.Database.ConnMaxLifetime,
		ConnMaxIdleTime: cfg.Database.ConnMaxIdleTime,
	})
	if err != nil {
		logger.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer pool.Close()
	logger.Info("database connection established")

	if cfg.Database.AutoMigrate {
		if err := postgres.Migrate(cfg.Database.MigrationsPath, cfg.Database.URL); err != nil {
			logger.Error("failed to apply migrations", "error", err)
			os.Exit(1)
		}
		logger.Info("migrations applied", "source", cfg.Database.MigrationsPath)
	}

	// 4. Initialize Redis
	rdb, err := redis.NewClient(ctx, redis.ClientConfig{
		URL:         cfg.Redis.URL,
		DialTimeout: cfg.Redis.DialTimeout,
		PoolSize:    cfg.Redis.PoolSize,
	})
	if err != nil {
		logger.Error("failed to connect to redis", "error", err)
		os.Exit(1)
	}
	defer rdb.Close()
	logger.Info("redis connection established")

	// 5. Directories (Secondary Adapters)
	friendsRepo := postgres.NewFriendsRepository(pool)
	estateRepo := postgres.NewEstateRepository(pool)
	regionDir := redis.NewRegionCache(postgres.NewRegionRepository(pool), rdb, cfg.Redis.RegionCacheTTL)
	presenceDir := redis.NewPresenceDirectory(rdb, cfg.Redis.PresenceTTL)

	// 6. Hosted scenes
	scenes := scene.NewSet()
	if err := loadScenes(ctx, cfg, regionDir, estateRepo, scenes, logger); err != nil {
		logger.Error("failed to load hosted regions", "error", err)
		os.Exit(1)
	}

	// 7. Dispatch
	runCtx, stopRun := context.WithCancel(ctx)
	defer stopRun()

	bus := eventbus.New(logger)
	server := dispatch.NewServer(logger)
	transport := redis.NewTransport(rdb, cfg.Redis.ChannelPrefix)

	var clientOpts []dispatch.Option
	if cfg.Dispatch.Loopback {
		clientOpts = append(clientOpts, dispatch.WithLoopback(server, scenes))
	}
	dispatcher := dispatch.NewClient(transport, dispatch.ClientConfig{
		Workers:     cfg.Dispatch.Workers,
		QueueSize:   cfg.Dispatch.QueueSize,
		SendTimeout: cfg.Dispatch.SendTimeout,
	}, logger, clientOpts...)

	// 8. Viewer-facing components
	hub := websocket.NewHub(logger)
	go hub.Run(runCtx)
	presenter := websocket.NewFriendsPresenter(hub, logger)

	// 9. Services (Core)
	friendStatus := services.NewFriendStatusService(friendsRepo, presenceDir, regionDir, scenes, presenter, dispatcher, logger)
	estateUpdate := services.NewEstateUpdateService(estateRepo, regionDir, scenes, dispatcher, hub, logger)
	presenceService := services.NewPresenceService(presenceDir, bus.UserStatus)
	estateService := services.NewEstateService(estateRepo, scenes, bus.EstateSettings)

	bus.UserStatus.Subscribe("friend_status", friendStatus.HandleStatusChange)
	bus.EstateSettings.Subscribe("estate_update", estateUpdate.HandleSettingsChanged)
	server.Register("friend_status", friendStatus)
	server.Register("estate_update", estateUpdate)

	channels := make([]string, 0, scenes.Len())
	for _, s := range scenes.Scenes() {
		channels = append(channels, transport.Channel(s.Handle()))
	}
	subscriber := redis.NewSubscriber(rdb, server, channels, logger)
	go subscriber.Run(runCtx)

	// 10. Initialize Security & Rate Limiters
	tokenManager := auth.NewTokenManager(cfg.JWT.Secret, cfg.JWT.AccessTokenTTL)

	var generalRateLimiter, envelopeRateLimiter *mw.RateLimiter
	if cfg.RateLimit.Enabled {
		generalRateLimiter = mw.NewRateLimiter(mw.RateLimiterConfig{
			RequestsPerSecond: cfg.RateLimit.RequestsPerSecond,
			BurstSize:         cfg.RateLimit.BurstSize,
			CleanupInterval:   time.Minute,
			TTL:               3 * time.Minute,
		})

		envelopeConfig := mw.EnvelopeRateLimiterConfig()
		envelopeConfig.RequestsPerSecond = cfg.RateLimit.EnvelopeRPS
		envelopeConfig.BurstSize = cfg.RateLimit.EnvelopeBurst
		envelopeRateLimiter = mw.NewRateLimiter(envelopeConfig, mw.WithKeyFunc(func(r *http.Request) string {
			return r.Header.Get(httpAdapter.PeerRegionHeader)
		}))
	}

	// 11. Handlers (Primary Adapters)
	errorHandler := httpAdapter.NewErrorHandler(logger)
	envelopeHandler := httpAdapter.NewEnvelopeHandler(server, errorHandler, logger)
	presenceHandler := httpAdapter.NewPresenceHandler(presenceService, errorHandler, logger)
	estateHandler := httpAdapter.NewEstateHandler(estateService, errorHandler, logger)
	meHandler := httpAdapter.NewMeHandler(presenter, errorHandler, logger)
	wsHandler := httpAdapter.NewWebSocketHandler(hub, tokenManager, cfg, logger)
	healthHandler := httpAdapter.NewHealthHandler(map[string]httpAdapter.HealthChecker{
		"database": httpAdapter.PingFunc(pool.Ping),
		"redis": httpAdapter.PingFunc(func(ctx context.Context) error {
			return rdb.Ping(ctx).Err()
		}),
	}, dispatcher, scenes.Len, cfg.App.Version)

	// 12. Setup Router
	r := chi.NewRouter()

	// Global middleware
	r.Use(mw.RequestID)
	r.Use(mw.RequestLogger(logger))
	r.Use(mw.RecoveryLogger(logger))
	r.Use(cors.Handler(corsOptions(cfg)))

	// Health check endpoints (outside /api/v1 for standard probe paths)
	healthHandler.RegisterRoutes(r)

	// Region-to-region receive path, limited per peer
	r.Group(func(r chi.Router) {
		if envelopeRateLimiter != nil {
			r.Use(envelopeRateLimiter.Middleware)
		}
		r.Route("/internal/v1/envelopes", envelopeHandler.RegisterRoutes)
	})

	// API routes
	r.Route("/api/v1", func(r chi.Router) {
		if generalRateLimiter != nil {
			r.Use(generalRateLimiter.Middleware)
		}

		// WebSocket route (Authentication is handled inside the handler)
		r.Get("/ws", wsHandler.ServeHTTP)

		// Protected REST routes
		r.Group(func(r chi.Router) {
			r.Use(mw.JWTMiddleware(tokenManager))
			r.Route("/me", meHandler.RegisterRoutes)
			r.Route("/presence", presenceHandler.RegisterRoutes)
			r.Route("/regions", estateHandler.RegisterRegionRoutes)

			r.Group(func(r chi.Router) {
				r.Use(mw.RequireAdmin)
				r.Route("/estates", estateHandler.RegisterRoutes)
			})
		})
	})

	// 13. Start Server with Graceful Shutdown
	srv := &http.Server{
		Addr:         cfg.Server.Port,
		Handler:      r,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	go func() {
		logger.Info("server starting",
			"port", cfg.Server.Port,
			"scenes", scenes.Len(),
			"decoders", server.DecoderCount(),
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit

	logger.Info("shutdown signal received", "signal", sig.String())

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown error", "error", err)
	}

	// Stop the hub and the subscriber, then drain queued envelopes.
	stopRun()
	if err := dispatcher.Shutdown(shutdownCtx); err != nil {
		logger.Warn("dispatch queue not drained", "error", err, "stats", dispatcher.Stats())
	}
	if generalRateLimiter != nil {
		generalRateLimiter.Stop()
	}
	if envelopeRateLimiter != nil {
		envelopeRateLimiter.Stop()
	}
	if err := tracerProvider.Shutdown(shutdownCtx); err != nil {
		logger.Warn("tracer shutdown error", "error", err)
	}

	logger.Info("server shutdown complete")
}

// loadScenes builds a scene for every hosted region from the directories.
// A region without saved settings starts with none.
func loadScenes(
	ctx context.Context,
	cfg *config.Config,
	regions ports.RegionDirectory,
	estates ports.EstateDirectory,
	scenes *scene.Set,
	logger *slog.Logger,
) error {
	ids, err := cfg.HostedRegionIDs()
	if err != nil {
		return err
	}
	if len(ids) == 0 {
		logger.Warn("no hosted regions configured; this process only serves the admin surface")
	}

	for _, id := range ids {
		info, err := regions.GetRegionByID(ctx, id)
		if err != nil {
			return fmt.Errorf("region %s: %w", id, err)
		}

		settings, err := estates.LoadEstateSettings(ctx, id)
		if err != nil && !errors.Is(err, apperrors.ErrSettingsNotFound) {
			return fmt.Errorf("estate settings for region %s: %w", id, err)
		}

		scenes.Add(scene.New(*info, settings))
		logger.Info("scene loaded",
			"region_id", id,
			"handle", info.Handle.String(),
			"estate_id", info.EstateID,
		)
	}
	return nil
}

func corsOptions(cfg *config.Config) cors.Options {
	origins := cfg.WebSocket.AllowedOrigins
	if len(origins) == 0 && cfg.IsDevelopment() {
		origins = []string{"*"}
	}
	return cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", mw.RequestIDHeader},
		ExposedHeaders:   []string{mw.RequestIDHeader},
		AllowCredentials: false,
		MaxAge:           300,
	}
}
