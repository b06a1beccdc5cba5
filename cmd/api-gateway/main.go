package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	_ "github.com/evently-app/evently-api/api/swagger"
	"github.com/evently-app/evently-api/internal/handler"
	"github.com/evently-app/evently-api/internal/middleware"
	"github.com/evently-app/evently-api/internal/repository"
	"github.com/evently-app/evently-api/internal/service"
	"github.com/evently-app/evently-api/pkg/cache"
	"github.com/evently-app/evently-api/pkg/config"
	"github.com/evently-app/evently-api/pkg/database"
	"github.com/evently-app/evently-api/pkg/jobs"
	"github.com/evently-app/evently-api/pkg/logger"
	corsmiddleware "github.com/evently-app/evently-api/pkg/middleware/cors"
	reqidmiddleware "github.com/evently-app/evently-api/pkg/middleware/requestid"
)

// @title Evently API
// @version 1.0.0
// @description Capacity-bounded event waitlists with lottery selection and channel-addressed notifications
// @BasePath /
// @schemes http

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logr, err := logger.New(cfg)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logr.Sync() //nolint:errcheck

	db, err := database.NewPostgres(cfg.Database)
	if err != nil {
		logr.Sugar().Fatalw("failed to connect to postgres", "error", err)
	}
	defer db.Close()

	redisClient, err := cache.NewRedis(cfg.Redis)
	if err != nil {
		// Channel resolution degrades to direct reads without Redis.
		logr.Sugar().Warnw("redis unavailable, channel caching disabled", "error", err)
		redisClient = nil
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	batchSize := cfg.Notifications.QueryBatchSize
	eventRepo := repository.NewEventRepository(db, batchSize)
	entrantRepo := repository.NewEntrantRepository(db, batchSize)
	notificationRepo := repository.NewNotificationRepository(db, batchSize)
	cacheRepo := repository.NewCacheRepository(redisClient, logr)

	metrics := service.NewMetricsService()
	engine := service.NewDrawEngine(cfg.Lottery.Seed)

	redrawSvc := service.NewRedrawService(eventRepo, entrantRepo, engine, metrics, logr)
	queue := jobs.NewQueue("redraw", redrawSvc.Handler(), jobs.QueueConfig{
		Workers:    cfg.RedrawQueue.Workers,
		BufferSize: cfg.RedrawQueue.BufferSize,
		MaxRetries: cfg.RedrawQueue.MaxRetries,
		RetryDelay: cfg.RedrawQueue.RetryDelay,
		Logger:     logr,
	})
	queue.Start(ctx)
	defer queue.Stop()

	lifecycleSvc := service.NewLifecycleService(eventRepo, entrantRepo, queue, engine, metrics, logr)
	eventSvc := service.NewEventService(eventRepo, entrantRepo, nil, logr)
	channelSvc := service.NewChannelService(eventRepo, entrantRepo, cacheRepo, cfg.Notifications.ChannelCacheTTL, metrics, logr)
	notificationSvc := service.NewNotificationService(notificationRepo, eventRepo, channelSvc, nil, logr)

	eventHandler := handler.NewEventHandler(eventSvc)
	entrantHandler := handler.NewEntrantHandler(lifecycleSvc)
	notificationHandler := handler.NewNotificationHandler(notificationSvc)
	metricsHandler := handler.NewMetricsHandler(metrics)

	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(middleware.Metrics(metrics))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))

	r.GET("/health", metricsHandler.Health)
	r.GET("/ready", func(c *gin.Context) {
		if err := db.PingContext(c.Request.Context()); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ready"})
	})
	r.GET("/metrics", metricsHandler.Prometheus)

	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	api := r.Group(cfg.APIPrefix)
	{
		events := api.Group("/events")
		events.POST("", eventHandler.Create)
		events.GET("", eventHandler.List)
		events.GET("/:id", eventHandler.Get)
		events.DELETE("/:id", eventHandler.Delete)
		events.GET("/:id/entrants", eventHandler.Entrants)
		events.POST("/:id/enroll", entrantHandler.Enroll)
		events.DELETE("/:id/enroll/:email", entrantHandler.Unenroll)
		events.POST("/:id/draw", entrantHandler.Draw)
		events.POST("/:id/accept", entrantHandler.Accept)
		events.POST("/:id/cancel", entrantHandler.Cancel)

		notifications := api.Group("/notifications")
		notifications.POST("", notificationHandler.Broadcast)
		notifications.GET("", notificationHandler.List)
		notifications.POST("/:id/seen", notificationHandler.MarkSeen)
	}

	addr := fmt.Sprintf(":%d", cfg.Port)
	server := &http.Server{Addr: addr, Handler: r}

	go func() {
		logr.Sugar().Infow("server starting", "addr", addr, "env", cfg.Env)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logr.Sugar().Fatalw("server failed", "error", err)
		}
	}()

	<-ctx.Done()
	logr.Sugar().Infow("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logr.Sugar().Errorw("server shutdown failed", "error", err)
	}
}
