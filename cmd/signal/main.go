package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	ossignal "os/signal"
	"syscall"

	httphandlers "roomcast/internal/handlers/http"

	"roomcast/internal/core/domain"
	"roomcast/internal/core/ports"
	"roomcast/internal/core/services"
	"roomcast/internal/infrastructure/directory"
	"roomcast/internal/infrastructure/distributed"
	"roomcast/internal/infrastructure/middleware"
	"roomcast/internal/infrastructure/monitoring"
	"roomcast/internal/infrastructure/repositories/memory"
	"roomcast/internal/infrastructure/signal"
	"roomcast/pkg/config"
	"roomcast/pkg/logger"
	"roomcast/pkg/tracing"
	"roomcast/pkg/utils"

	"github.com/gin-gonic/gin"
)

func main() {
	configPath := flag.String("config", "configs/config.yaml", "path to configuration file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		panic(err)
	}

	log := logger.New(cfg.Logging.Level, cfg.Logging.Format)
	defer log.Sync()
	sugar := log.Sugar()

	instanceID := utils.GenerateInstanceID()
	sugar.Infow("starting roomcast signaling coordinator", "instance_id", instanceID, "address", cfg.Server.Address)

	// Tracing
	tp, err := tracing.Init(tracing.Config{
		Enabled:     cfg.Tracing.Enabled,
		ServiceName: cfg.Tracing.ServiceName,
		JaegerURL:   cfg.Tracing.JaegerURL,
		Environment: cfg.Tracing.Environment,
		SampleRate:  cfg.Tracing.SampleRate,
	})
	if err != nil {
		sugar.Fatalw("failed to initialize tracing", "error", err)
	}

	// Metrics
	var metrics ports.MetricsRecorder
	var collector *monitoring.PrometheusCollector
	if cfg.Monitoring.PrometheusEnabled {
		collector = monitoring.NewPrometheusCollector()
		metrics = collector
	}

	healthChecker := monitoring.NewHealthChecker()

	ctx, stop := ossignal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Optional presence mirror
	var mirror ports.PresenceMirror
	if cfg.Redis.Enabled {
		redisClient, err := distributed.NewRedisClient(
			cfg.Redis.Address, cfg.Redis.Password, cfg.Redis.DB, cfg.Redis.PoolSize, sugar)
		if err != nil {
			sugar.Fatalw("failed to connect to redis", "error", err)
		}
		defer redisClient.Close()

		redisMirror := distributed.NewRedisPresenceMirror(redisClient, instanceID, sugar)
		mirror = redisMirror

		healthChecker.AddCheck("redis", func(ctx context.Context) error {
			return redisClient.Ping(ctx).Err()
		}, cfg.Server.ReadTimeout)

		go func() {
			err := redisMirror.Subscribe(ctx, func(event *distributed.Event) error {
				sugar.Debugw("remote presence event",
					"type", event.Type,
					"instance_id", event.InstanceID,
					"room", string(event.Room),
					"participant_id", string(event.ParticipantID),
				)
				return nil
			})
			if err != nil && !errors.Is(err, context.Canceled) {
				sugar.Warnw("presence subscription ended", "error", err)
			}
		}()
	}

	// Room directory: one coordinator per room name, each with its own
	// registry instance.
	roomDirectory := directory.New(func(name domain.RoomName) ports.RoomCoordinator {
		return services.NewRoomCoordinator(name, memory.NewParticipantRegistry(), mirror, metrics, sugar)
	}, metrics, sugar)

	// Auth
	var tokens *services.RoomTokenService
	if cfg.Auth.Enabled {
		tokens = services.NewRoomTokenService(cfg.Auth.JWTSecret, cfg.Auth.TokenTTL)
	}

	wsServer := signal.NewWebSocketServer(roomDirectory, tokens, cfg, sugar)

	// HTTP routes
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery(), middleware.NewHTTPRateLimitMiddleware(cfg))

	router.GET("/ws", gin.WrapF(wsServer.HandleWebSocket))
	router.GET("/health", func(c *gin.Context) {
		status := healthChecker.CheckAll(c.Request.Context())
		code := http.StatusOK
		if status.Status != "healthy" {
			code = http.StatusServiceUnavailable
		}
		c.JSON(code, status)
	})
	if collector != nil {
		router.GET(cfg.Monitoring.MetricsPath, gin.WrapH(collector.Handler()))
	}

	var authMW gin.HandlerFunc
	if tokens != nil {
		authMW = middleware.AuthMiddleware(tokens)
	}
	roomHandler := httphandlers.NewRoomHandler(roomDirectory, tokens)
	roomHandler.SetupRoutes(router, authMW)

	server := &http.Server{
		Addr:         cfg.Server.Address,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			sugar.Fatalw("server failed", "error", err)
		}
	}()
	sugar.Infow("listening", "address", cfg.Server.Address)

	<-ctx.Done()
	sugar.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		sugar.Warnw("server shutdown failed", "error", err)
	}
	if err := tp.Shutdown(shutdownCtx); err != nil {
		sugar.Warnw("tracer shutdown failed", "error", err)
	}
}
