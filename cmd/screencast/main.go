package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"screencast/internal/bootstrap"
	"screencast/internal/core/ports"
	"screencast/internal/core/services"
	"screencast/internal/core/session"
	httphandlers "screencast/internal/handlers/http"
	"screencast/internal/infrastructure/distributed"
	"screencast/internal/infrastructure/middleware"
	"screencast/internal/infrastructure/monitoring"
	"screencast/internal/infrastructure/notify"
	"screencast/internal/infrastructure/repositories"
	wsnotify "screencast/internal/infrastructure/signal"
	"screencast/pkg/logger"
	"screencast/pkg/tracing"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func main() {
	startTime := time.Now()

	configPath := flag.String("config", "", "path to the YAML config file")
	printToken := flag.String("print-token", "", "print an access token for this subject and exit")
	flag.Parse()

	cfg, err := bootstrap.LoadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	zapLogger, err := logger.New(cfg.Logging.Level, cfg.Logging.Format)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer zapLogger.Sync()
	log := zapLogger.Sugar()

	authService := services.NewAuthService(cfg.Auth.JWTSecret, cfg.Auth.Issuer, cfg.Auth.AccessTokenTTL)
	if *printToken != "" {
		token, err := authService.GenerateToken(*printToken)
		if err != nil {
			log.Fatalw("failed to generate token", "error", err)
		}
		fmt.Println(token)
		return
	}

	tp, err := tracing.Init(bootstrap.Tracing(cfg, "screencast"))
	if err != nil {
		log.Fatalw("failed to initialize tracing", "error", err)
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	collector := monitoring.NewPrometheusCollector(registry)

	// Recording store
	repoFactory, err := repositories.NewRepositoryFactory(cfg, log)
	if err != nil {
		log.Fatalw("failed to create repository factory", "error", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	instanceID := uuid.NewString()
	var events ports.RecordingEventPublisher
	var bus *distributed.EventBus
	if client := repoFactory.RedisClient(); client != nil {
		bus = distributed.NewEventBus(client, instanceID, log)
		events = bus
	}

	recordingService := services.NewRecordingService(repoFactory.CreateRecordingRepository(), events, collector, log)
	recordings := services.NewCachedRecordingService(recordingService, cfg.Storage.CacheTTL)
	defer recordings.Stop()

	if bus != nil {
		go func() {
			err := bus.Subscribe(ctx, func(event *distributed.Event) error {
				recordings.Invalidate(event.RecordingID)
				return nil
			})
			if err != nil && !errors.Is(err, context.Canceled) {
				log.Warnw("recording event subscription ended", "error", err)
			}
		}()
	}

	// Recording session
	hubCfg := wsnotify.DefaultConfig()
	hubCfg.PingInterval = cfg.Events.PingInterval
	hubCfg.PongTimeout = cfg.Events.PongTimeout
	hubCfg.SendBuffer = cfg.Events.SendBuffer
	hubCfg.AllowedOrigins = cfg.Auth.AllowedOrigins
	hub := wsnotify.NewNotificationHub(hubCfg, log)

	source, platform, err := bootstrap.Capture(cfg, log)
	if err != nil {
		log.Fatalw("failed to create capture platform", "error", err)
	}
	exporter, err := bootstrap.Exporter(cfg, log)
	if err != nil {
		log.Fatalw("failed to create exporter", "error", err)
	}

	sess := session.New(bootstrap.SessionConfig(cfg), session.Dependencies{
		Source:    source,
		Platform:  platform,
		Publisher: bootstrap.Publisher(cfg, recordings, log),
		Exporter:  exporter,
		Notifier:  notify.Fanout{notify.NewLogNotifier(log), hub},
		Metrics:   collector,
		Logger:    log,
	})

	health := monitoring.NewHealthChecker()
	health.AddCheck("recording_store", repoFactory.HealthCheck, 2*time.Second)

	// HTTP
	if cfg.Logging.Level != "debug" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(
		middleware.RecoveryMiddleware(log),
		middleware.TracingMiddleware(),
		middleware.RequestLoggingMiddleware(logger.NewContextLogger(zapLogger)),
		middleware.ErrorHandlerMiddleware(log),
		middleware.NewHTTPRateLimitMiddleware(cfg),
	)

	var guard gin.HandlerFunc
	if cfg.Auth.Enabled {
		guard = middleware.AuthMiddleware(authService)
	}

	httphandlers.NewRecordingHandler(recordings).SetupRoutes(router, guard)
	httphandlers.NewSessionHandler(sess, bootstrap.CaptureConstraints(cfg), http.HandlerFunc(hub.HandleWebSocket)).
		SetupRoutes(router, guard, middleware.NewWebSocketRateLimitMiddleware(cfg))

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":    "healthy",
			"timestamp": time.Now(),
			"uptime":    time.Since(startTime).String(),
			"session":   sess.State(),
		})
	})

	router.GET("/ready", func(c *gin.Context) {
		status := health.CheckAll(c.Request.Context())
		if status.Status != "healthy" {
			c.JSON(http.StatusServiceUnavailable, status)
			return
		}
		c.JSON(http.StatusOK, status)
	})

	if cfg.Monitoring.PrometheusEnabled {
		router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(registry, promhttp.HandlerOpts{})))
		log.Info("Prometheus metrics enabled")
	}

	srv := &http.Server{
		Addr:         cfg.Server.Address,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	serverErr := make(chan error, 1)
	go func() {
		log.Infow("starting screencast server",
			"address", cfg.Server.Address,
			"capture_platform", cfg.Capture.Platform,
			"store", repoFactory.Driver(),
			"instance_id", instanceID,
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-serverErr:
		log.Errorw("server failed", "error", err)
	case sig := <-sigChan:
		log.Infow("received shutdown signal", "signal", sig)
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()

	// A recording in progress is finalized and delivered before exit.
	if artifact := sess.StopAll(shutdownCtx); artifact != nil {
		log.Infow("finalized recording on shutdown",
			"size_bytes", artifact.SizeBytes,
			"duration_seconds", artifact.DurationSeconds,
		)
	}
	hub.Close()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Errorw("error during server shutdown", "error", err)
		if closeErr := srv.Close(); closeErr != nil {
			log.Errorw("error force closing server", "error", closeErr)
		}
	} else {
		log.Info("server shutdown gracefully")
	}

	cancel()
	if err := repoFactory.Close(); err != nil {
		log.Errorw("error closing repository factory", "error", err)
	}
	if err := tp.Shutdown(shutdownCtx); err != nil {
		log.Errorw("error shutting down tracer provider", "error", err)
	}

	log.Info("screencast server stopped")
}
