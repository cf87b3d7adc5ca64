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

	"github.com/go-playground/validator/v10"
	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	_ "github.com/noah-isme/invigilation-api/api/swagger"
	"github.com/noah-isme/invigilation-api/internal/handler"
	"github.com/noah-isme/invigilation-api/internal/repository"
	"github.com/noah-isme/invigilation-api/internal/service"
	"github.com/noah-isme/invigilation-api/pkg/cache"
	"github.com/noah-isme/invigilation-api/pkg/config"
	"github.com/noah-isme/invigilation-api/pkg/database"
	"github.com/noah-isme/invigilation-api/pkg/export"
	"github.com/noah-isme/invigilation-api/pkg/jobs"
	"github.com/noah-isme/invigilation-api/pkg/logger"
	"github.com/noah-isme/invigilation-api/pkg/storage"
)

// @title Invigilation API
// @version 1.0.0
// @description Exam room booking, invigilator assignment and conflict-checked scheduling
// @BasePath /api/v1
// @schemes http https
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization

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

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logr); err != nil {
		logr.Fatal("server failed", zap.Error(err))
	}
}

func run(ctx context.Context, cfg *config.Config, logr *zap.Logger) error {
	db, err := database.NewPostgres(ctx, cfg.Database)
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}
	defer db.Close()

	if cfg.AutoMigrate {
		if err := database.Migrate(ctx, db.DB, logr); err != nil {
			return fmt.Errorf("migrate database: %w", err)
		}
	}

	redisClient, err := cache.NewRedis(ctx, cfg.Redis)
	if err != nil {
		logr.Warn("redis unavailable, caching disabled", zap.Error(err))
	}
	cacheRepo := repository.NewCacheRepository(redisClient, logr)
	defer cacheRepo.Close() //nolint:errcheck

	metrics := service.NewMetricsService()
	validate := validator.New()
	cacheSvc := service.NewCacheService(cacheRepo, metrics, cfg.Dashboard.CacheTTL, logr, redisClient != nil)

	rooms := repository.NewRoomRepository(db)
	departments := repository.NewDepartmentRepository(db)
	invigilators := repository.NewInvigilatorRepository(db)
	preferences := repository.NewInvigilatorPreferenceRepository(db)
	exams := repository.NewExamRepository(db)
	dutyReports := repository.NewDutyReportRepository(db)
	users := repository.NewUserRepository(db)

	bindStore := func(exec sqlx.ExtContext) service.SchedulingStore {
		return repository.NewSchedulingStore(exec).WithObserver(metrics)
	}
	policy := service.WorkloadPolicy{
		Ceiling:           cfg.Scheduler.WorkloadCeiling,
		DefaultMaxPerDay:  cfg.Scheduler.DefaultMaxPerDay,
		DefaultMaxPerWeek: cfg.Scheduler.DefaultMaxPerWeek,
	}
	checker := service.NewConflictChecker(bindStore(db), service.ParseRequirementRule(cfg.Scheduler.RequirementRule), policy, logr)

	authSvc := service.NewAuthService(users, validate, logr, service.AuthConfig{
		AccessTokenSecret:  cfg.JWT.Secret,
		AccessTokenExpiry:  cfg.JWT.Expiration,
		RefreshTokenExpiry: cfg.JWT.RefreshExpiration,
		Issuer:             "invigilation-api",
	})
	if err := authSvc.EnsureAdmin(ctx, cfg.Bootstrap.AdminEmail, cfg.Bootstrap.AdminPassword); err != nil {
		return fmt.Errorf("bootstrap admin: %w", err)
	}

	examSvc := service.NewExamService(service.ExamServiceParams{
		Exams:        exams,
		Rooms:        rooms,
		Invigilators: invigilators,
		Tx:           db,
		Stores:       bindStore,
		Checker:      checker,
		Cache:        cacheSvc,
		Metrics:      metrics,
		Validator:    validate,
		Logger:       logr,
	})
	schedulerSvc := service.NewSchedulerService(service.SchedulerServiceParams{
		Exams:     exams,
		Tx:        db,
		Stores:    bindStore,
		Checker:   checker,
		Cache:     cacheSvc,
		Metrics:   metrics,
		Validator: validate,
		Logger:    logr,
	})
	invigilatorSvc := service.NewInvigilatorService(service.InvigilatorServiceParams{
		Invigilators: invigilators,
		Preferences:  preferences,
		Duties:       exams,
		Accounts:     users,
		Tx:           db,
		Cache:        cacheSvc,
		Policy:       policy,
		CacheTTL:     cfg.Dashboard.CacheTTL,
		Validator:    validate,
		Logger:       logr,
	})
	dashboardSvc := service.NewDashboardService(service.DashboardServiceParams{
		Rooms:        rooms,
		Departments:  departments,
		Invigilators: invigilators,
		Exams:        exams,
		Cache:        cacheSvc,
		Config:       service.DashboardServiceConfig{CacheTTL: cfg.Dashboard.CacheTTL},
		Logger:       logr,
	})

	fileStore, err := storage.NewLocalStorage(cfg.Exports.StorageDir)
	if err != nil {
		return fmt.Errorf("init export storage: %w", err)
	}
	exportSvc := service.NewExportService(service.ExportServiceParams{
		Roster:  exams,
		Storage: fileStore,
		Signer:  storage.NewSignedURLSigner(cfg.Exports.SignedURLSecret, cfg.Exports.SignedURLTTL),
		CSV:     export.NewCSVRenderer(),
		PDF:     export.NewPDFRenderer(),
		Config: service.ExportConfig{
			APIPrefix:       cfg.APIPrefix,
			ResultTTL:       cfg.Exports.SignedURLTTL,
			CleanupInterval: cfg.Exports.CleanupInterval,
			MaxRetries:      cfg.Exports.WorkerRetries,
		},
		Validator: validate,
		Logger:    logr,
	})
	exportQueue := jobs.NewQueue("exports", exportSvc.Handle, jobs.QueueConfig{
		Workers:    cfg.Exports.WorkerConcurrency,
		MaxRetries: cfg.Exports.WorkerRetries,
		RetryDelay: 2 * time.Second,
		Logger:     logr,
	})
	exportSvc.AttachQueue(exportQueue)
	exportQueue.Start(ctx)
	defer func() {
		exportQueue.Stop()
		stats := exportQueue.Stats()
		logr.Info("export queue drained",
			zap.Int("pending", stats.Pending),
			zap.Uint64("completed", stats.Completed),
			zap.Uint64("failed", stats.Failed),
			zap.Uint64("retried", stats.Retried),
		)
	}()
	exportSvc.StartCleanup(ctx)

	handlers := routeHandlers{
		auth:         handler.NewAuthHandler(authSvc),
		dashboard:    handler.NewDashboardHandler(dashboardSvc),
		exams:        handler.NewExamHandler(examSvc),
		scheduler:    handler.NewSchedulerHandler(schedulerSvc),
		rooms:        handler.NewRoomHandler(service.NewRoomService(rooms, exams, checker, validate, logr)),
		departments:  handler.NewDepartmentHandler(service.NewDepartmentService(departments, validate, logr)),
		invigilators: handler.NewInvigilatorHandler(invigilatorSvc),
		dutyReports:  handler.NewDutyReportHandler(service.NewDutyReportService(dutyReports, exams, db, validate, logr)),
		exports:      handler.NewExportHandler(exportSvc),
		metrics:      handler.NewMetricsHandler(metrics, db),
		users:        handler.NewUserHandler(service.NewUserService(users, invigilators, validate, logr)),
	}
	router := newRouter(cfg, logr, authSvc, metrics, handlers)

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	serveErr := make(chan error, 1)
	go func() {
		logr.Info("server starting", zap.String("addr", srv.Addr), zap.String("env", cfg.Env))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case err := <-serveErr:
		return err
	case <-ctx.Done():
	}

	logr.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
