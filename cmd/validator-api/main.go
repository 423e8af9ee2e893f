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
	"github.com/go-playground/validator/v10"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	_ "github.com/noah-isme/sma-timetable-validator/api/swagger"
	"github.com/noah-isme/sma-timetable-validator/internal/constraint"
	"github.com/noah-isme/sma-timetable-validator/internal/handler"
	"github.com/noah-isme/sma-timetable-validator/internal/repository"
	"github.com/noah-isme/sma-timetable-validator/internal/service"
	"github.com/noah-isme/sma-timetable-validator/pkg/cache"
	"github.com/noah-isme/sma-timetable-validator/pkg/config"
	"github.com/noah-isme/sma-timetable-validator/pkg/database"
	"github.com/noah-isme/sma-timetable-validator/pkg/jobs"
	"github.com/noah-isme/sma-timetable-validator/pkg/logger"
	"github.com/noah-isme/sma-timetable-validator/pkg/storage"
)

// @title SMA Timetable Validator API
// @version 1.0.0
// @description Constraint validation for school timetables
// @BasePath /api/v1
// @schemes http
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization

const shutdownTimeout = 15 * time.Second

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

	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logr); err != nil {
		logr.Sugar().Fatalw("server failed", "error", err)
	}
}

func run(ctx context.Context, cfg *config.Config, logr *zap.Logger) error {
	db, err := database.NewPostgres(cfg.Database)
	if err != nil {
		return fmt.Errorf("connect postgres: %w", err)
	}
	defer db.Close()

	var redisClient *redis.Client
	if cfg.Validation.ReportCache {
		redisClient, err = cache.NewRedis(ctx, cfg.Redis)
		if err != nil {
			logr.Warn("report cache disabled, redis unavailable", zap.Error(err))
			redisClient = nil
		}
	}

	metrics := service.NewMetricsService()
	validate := validator.New()

	engine := constraint.NewManager(nil, logr.Named("constraint"), constraint.ManagerConfig{
		ValidatorTimeout: cfg.Validation.ValidatorTimeout,
		Concurrency:      cfg.Validation.Concurrency,
		Observer:         metrics,
	})
	engine.RegisterDefaults()

	timetableRepo := repository.NewTimetableRepository(db)
	settingRepo := repository.NewConstraintSettingRepository(db)
	cacheRepo := repository.NewCacheRepository(redisClient, logr)
	defer cacheRepo.Close() //nolint:errcheck

	cacheSvc := service.NewCacheService(cacheRepo, metrics, cfg.Validation.ReportCacheTTL, logr, redisClient != nil)
	settingsSvc := service.NewConstraintSettingsService(engine, settingRepo, cacheSvc, logr)

	seeds, err := config.LoadConstraintSeeds(cfg.Validation.RulesFile)
	if err != nil {
		return fmt.Errorf("load constraint rules: %w", err)
	}
	if err := settingsSvc.Bootstrap(ctx, seeds); err != nil {
		return fmt.Errorf("bootstrap constraint settings: %w", err)
	}

	validationSvc := service.NewValidationService(engine, timetableRepo, cacheSvc, metrics, validate, logr, service.ValidationServiceConfig{
		CacheTTL: cfg.Validation.ReportCacheTTL,
	})
	exportSvc := service.NewReportExportService(nil, nil)

	files, err := storage.NewLocalStorage(cfg.Reports.StorageDir)
	if err != nil {
		return err
	}
	signer := storage.NewSignedURLSigner(cfg.Reports.SignedURLSecret, cfg.Reports.SignedURLTTL)

	jobSvc := service.NewValidationJobService(validationSvc, timetableRepo, exportSvc, files, signer, metrics, validate, logr, service.ValidationJobConfig{
		APIPrefix:       cfg.APIPrefix,
		RunTTL:          cfg.Validation.RunTTL,
		CleanupInterval: cfg.Reports.CleanupInterval,
	})
	queue := jobs.NewQueue(service.ValidationRunJobType, jobSvc.Handle, jobs.QueueConfig{
		Workers:    cfg.Validation.Workers,
		MaxRetries: cfg.Validation.WorkerRetries,
		RetryDelay: time.Second,
		OnGiveUp:   jobSvc.GiveUp,
		Logger:     logr,
	})
	jobSvc.SetQueue(queue)
	queue.Start(ctx)
	defer queue.Stop()
	jobSvc.StartCleanup(ctx)

	checks := map[string]handler.HealthCheck{"postgres": db.PingContext}
	if redisClient != nil {
		checks["redis"] = cacheRepo.Ping
	}

	router := newRouter(cfg, logr, routes{
		constraints: handler.NewConstraintHandler(settingsSvc),
		validation:  handler.NewValidationHandler(validationSvc, exportSvc),
		runs:        handler.NewValidationRunHandler(jobSvc),
		metrics:     handler.NewMetricsHandler(metrics, checks),
		tokens:      service.NewTokenService(service.TokenConfig{Secret: cfg.JWT.Secret, Issuer: cfg.JWT.Issuer}),
		observer:    metrics,
	})

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logr.Sugar().Infow("server starting", "addr", srv.Addr, "env", cfg.Env)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logr.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
