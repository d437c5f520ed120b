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
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"

	_ "github.com/noah-isme/transcript-review-api/api/swagger"
	"github.com/noah-isme/transcript-review-api/internal/handler"
	"github.com/noah-isme/transcript-review-api/internal/middleware"
	"github.com/noah-isme/transcript-review-api/internal/repository"
	"github.com/noah-isme/transcript-review-api/internal/service"
	"github.com/noah-isme/transcript-review-api/pkg/cache"
	"github.com/noah-isme/transcript-review-api/pkg/config"
	"github.com/noah-isme/transcript-review-api/pkg/database"
	"github.com/noah-isme/transcript-review-api/pkg/logger"
	corsmiddleware "github.com/noah-isme/transcript-review-api/pkg/middleware/cors"
	reqidmiddleware "github.com/noah-isme/transcript-review-api/pkg/middleware/requestid"
	"github.com/noah-isme/transcript-review-api/pkg/storage"
)

// @title Transcript Review API
// @version 1.0.0
// @description Annotation and review workflow for image transcripts
// @BasePath /
// @schemes http
// @securityDefinitions.apikey SessionToken
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
	db, err := database.NewPostgres(cfg.Database)
	if err != nil {
		return fmt.Errorf("connect postgres: %w", err)
	}
	defer db.Close()

	if cfg.Database.AutoMigrate {
		if err := database.Migrate(ctx, db); err != nil {
			return err
		}
	}

	redisClient, err := cache.NewRedis(ctx, cfg.Redis)
	if err != nil {
		logr.Warn("redis unavailable, caching disabled", zap.Error(err))
	}

	archive, err := storage.NewLocalStorage(cfg.Ingestion.ArchiveDir)
	if err != nil {
		return fmt.Errorf("init upload archive: %w", err)
	}

	validate := validator.New()
	metricsSvc := service.NewMetricsService()

	userRepo := repository.NewUserRepository(db)
	rateRepo := repository.NewRateRepository(db)
	cacheRepo := repository.NewCacheRepository(redisClient, logr)
	defer func() {
		if err := cacheRepo.Close(); err != nil {
			logr.Warn("failed to close redis", zap.Error(err))
		}
	}()
	cacheSvc := service.NewCacheService(cacheRepo, metricsSvc, cfg.Cache.TTL, logr, cfg.Cache.Enabled && redisClient != nil)

	auditSvc := service.NewAuditService(userRepo, metricsSvc, logr, service.AuditConfig{
		Workers:    cfg.Audit.Workers,
		Retries:    cfg.Audit.Retries,
		BufferSize: cfg.Audit.BufferSize,
	})
	// Workers outlive the signal context so Stop can drain pending entries.
	auditSvc.Start(context.Background())
	defer auditSvc.Stop()

	sessionSvc := service.NewSessionService(userRepo, cacheSvc, auditSvc, validate, logr, service.SessionConfig{
		Secret:  cfg.Session.Secret,
		TTL:     cfg.Session.TTL,
		Issuer:  cfg.Session.Issuer,
		UserTTL: cfg.Cache.UserTTL,
	})
	userSvc := service.NewUserService(userRepo, cacheSvc, auditSvc, validate, logr)
	workSvc := service.NewWorkService(rateRepo, cacheSvc, auditSvc, metricsSvc, validate, logr, service.WorkConfig{
		ClaimTTL:             cfg.Work.ClaimTTL,
		ReviewExcludeOwnWork: cfg.Work.ReviewExcludeOwnWork,
		StatsTTL:             cfg.Cache.StatsTTL,
	})
	historySvc := service.NewHistoryService(rateRepo, logr)
	ingestionSvc := service.NewIngestionService(rateRepo, archive, cacheSvc, auditSvc, metricsSvc, logr, service.IngestionConfig{
		BatchSize:        cfg.Ingestion.BatchSize,
		ArchiveRetention: cfg.Ingestion.ArchiveRetention,
	})

	if err := sessionSvc.BootstrapAdmins(ctx, cfg.Session.BootstrapAdminEmails); err != nil {
		return err
	}

	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(middleware.Metrics(metricsSvc, "/metrics", "/health", "/ready"))

	registerRoutes(r, cfg.APIPrefix, routeHandlers{
		sessions: sessionSvc,
		session:  handler.NewSessionHandler(sessionSvc),
		work:     handler.NewWorkHandler(workSvc),
		history:  handler.NewHistoryHandler(historySvc),
		admin:    handler.NewAdminHandler(userSvc, workSvc, ingestionSvc, cfg.Ingestion.MaxUploadBytes),
		metrics:  handler.NewMetricsHandler(metricsSvc, db),
	})

	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
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
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
