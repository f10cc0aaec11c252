package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/smartcampus/timetable-engine/internal/engine"
	"github.com/smartcampus/timetable-engine/internal/handler"
	"github.com/smartcampus/timetable-engine/internal/repository"
	"github.com/smartcampus/timetable-engine/internal/service"
	"github.com/smartcampus/timetable-engine/pkg/cache"
	"github.com/smartcampus/timetable-engine/pkg/config"
	"github.com/smartcampus/timetable-engine/pkg/database"
	"github.com/smartcampus/timetable-engine/pkg/logger"
	"github.com/smartcampus/timetable-engine/pkg/metrics"
	"github.com/smartcampus/timetable-engine/pkg/middleware/cors"
	"github.com/smartcampus/timetable-engine/pkg/middleware/requestid"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(fmt.Sprintf("failed to load configuration: %v", err))
	}

	log, err := logger.New(cfg)
	if err != nil {
		panic(fmt.Sprintf("failed to build logger: %v", err))
	}
	defer func() { _ = log.Sync() }()

	db, err := database.NewPostgres(cfg.Database)
	if err != nil {
		log.Fatal("failed to connect to postgres", zap.Error(err))
	}
	defer db.Close()

	var redisClient *redis.Client
	if cfg.Redis.Enabled {
		client, err := cache.NewRedis(cfg.Redis)
		if err != nil {
			log.Warn("redis unavailable, continuing without cache", zap.Error(err))
		} else {
			redisClient = client
			defer client.Close()
		}
	}

	m := metrics.New()

	orchestrator := engine.NewOrchestrator(engine.SolverOptions{
		MaxTime:       cfg.Solver.MaxTime,
		MaxBacktracks: cfg.Solver.MaxBacktracks,
		Propagation:   cfg.Solver.Propagation,
	}, log.Named("engine"))
	orchestrator.SetKeep(cfg.Generator.PortfolioSize)

	timetableRepo := repository.NewTimetableRepository(db)
	slotRepo := repository.NewTimetableSlotRepository(db)
	cacheRepo := repository.NewCacheRepository(redisClient, log.Named("cache"))

	timetableService := service.NewTimetableService(
		orchestrator,
		timetableRepo,
		slotRepo,
		cacheRepo,
		db,
		nil,
		log.Named("service"),
		m,
		service.TimetableServiceConfig{
			ProposalTTL:  cfg.Generator.ProposalTTL,
			AsyncWorkers: cfg.Generator.AsyncWorkers,
			AsyncBuffer:  cfg.Generator.AsyncBufferSize,
		},
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if cfg.Generator.AsyncEnabled {
		timetableService.StartWorkers(ctx)
		defer timetableService.StopWorkers()
	}

	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(requestid.Middleware())
	router.Use(cors.New(cfg.CORS.AllowedOrigins))
	router.Use(logger.GinMiddleware(log.Named("http")))

	healthHandler := handler.NewHealthHandler(db, redisClient)
	router.GET("/health", healthHandler.Health)
	router.GET("/ready", healthHandler.Ready)
	router.GET("/metrics", gin.WrapH(m.Handler()))

	api := router.Group(cfg.APIPrefix)
	handler.NewTimetableHandler(timetableService, cfg.Generator.AsyncEnabled).Register(api)

	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.Info("server starting", zap.Int("port", cfg.Port), zap.String("env", cfg.Env))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("server failed", zap.Error(err))
		}
	}()

	<-ctx.Done()
	log.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("graceful shutdown failed", zap.Error(err))
	}
}
