package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/jmoiron/sqlx"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	_ "github.com/noah-isme/capstone-api/api/swagger"
	"github.com/noah-isme/capstone-api/internal/handler"
	"github.com/noah-isme/capstone-api/internal/repository"
	"github.com/noah-isme/capstone-api/internal/service"
	"github.com/noah-isme/capstone-api/pkg/cache"
	"github.com/noah-isme/capstone-api/pkg/config"
	"github.com/noah-isme/capstone-api/pkg/database"
	"github.com/noah-isme/capstone-api/pkg/logger"
	"github.com/noah-isme/capstone-api/pkg/storage"
)

// @title Capstone API
// @version 1.0.0
// @description Capstone allocation and proposal review service
// @BasePath /api/v1
// @schemes http
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

	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := database.NewPostgres(ctx, cfg.Database)
	if err != nil {
		logr.Fatal("failed to connect database", zap.Error(err))
	}
	defer db.Close() //nolint:errcheck

	if cfg.Database.AutoMigrate {
		if err := database.RunMigrations(db, logr); err != nil {
			logr.Fatal("failed to apply migrations", zap.Error(err))
		}
	}

	metrics := service.NewMetricsService()
	checks := map[string]handler.ReadinessCheck{
		"database": func(ctx context.Context) error { return db.PingContext(ctx) },
	}

	var redisClient *redis.Client
	cacheRepo := repository.NewCacheRepository(nil, logr)
	if cfg.Cache.Enabled {
		redisClient, err = cache.NewRedis(ctx, cfg.Redis)
		if err != nil {
			logr.Fatal("failed to connect redis", zap.Error(err))
		}
		cacheRepo = repository.NewCacheRepository(redisClient, logr)
		defer cacheRepo.Close() //nolint:errcheck
		checks["redis"] = cacheRepo.Ping
	}
	cacheSvc := service.NewCacheService(cacheRepo, metrics, cfg.Cache.TTL, logr, cfg.Cache.Enabled)

	exportStore, localStore, err := newExportStorage(ctx, cfg.Exports)
	if err != nil {
		logr.Fatal("failed to init export storage", zap.Error(err))
	}
	signer := storage.NewSignedURLSigner(cfg.Exports.SignedURLSecret, cfg.Exports.SignedURLTTL)
	exportSvc := service.NewExportService(exportStore, signer, service.ExportConfig{APIPrefix: cfg.APIPrefix}, logr)

	app := buildServices(db, cfg, metrics, cacheSvc, exportSvc, logr)

	var janitor interface {
		CleanupOlderThan(ttl time.Duration) ([]string, error)
	}
	if localStore != nil {
		janitor = localStore
	}
	if cfg.Proposals.SweepEnabled {
		sweeper := service.NewSideEffectSweeper(app.proposals, janitor, service.SweeperConfig{
			Schedule:        cfg.Proposals.SweepSchedule,
			BatchSize:       cfg.Proposals.SweepBatch,
			Workers:         cfg.Proposals.WorkerCount,
			MaxRetries:      cfg.Proposals.WorkerRetries,
			RetryDelay:      time.Second,
			ExportRetention: cfg.Exports.SignedURLTTL,
		}, logr)
		if err := sweeper.Start(ctx); err != nil {
			logr.Fatal("failed to start side effect sweeper", zap.Error(err))
		}
		defer sweeper.Stop()
	}

	verifier := service.NewTokenVerifier(service.TokenVerifierConfig{
		Secret:   cfg.JWT.Secret,
		Issuer:   cfg.JWT.Issuer,
		Audience: cfg.JWT.Audience,
	})

	router := newRouter(cfg, logr, routerDeps{
		verifier:    verifier,
		metrics:     handler.NewMetricsHandler(metrics, checks),
		metricsSvc:  metrics,
		preferences: handler.NewPreferenceHandler(app.preferences),
		offers:      handler.NewOfferHandler(app.offers),
		allocations: handler.NewAllocationHandler(app.recommendations, exportSvc, app.allocations),
		proposals:   handler.NewProposalHandler(app.proposals),
	})

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logr.Sugar().Infow("server starting", "addr", srv.Addr, "env", cfg.Env)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logr.Sugar().Fatalw("server failed", "error", err)
		}
	}()

	<-ctx.Done()
	logr.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logr.Error("graceful shutdown failed", zap.Error(err))
	}
}

type services struct {
	preferences     *service.PreferenceService
	offers          *service.OfferService
	recommendations *service.RecommendationService
	allocations     *service.AllocationService
	proposals       *service.ProposalService
}

func buildServices(db *sqlx.DB, cfg *config.Config, metrics *service.MetricsService, cacheSvc *service.CacheService, exportSvc *service.ExportService, logr *zap.Logger) services {
	validate := validator.New()

	prefRepo := repository.NewPreferenceRepository(db)
	offerRepo := repository.NewOfferRepository(db)
	allocationRepo := repository.NewAllocationRepository(db)
	proposalRepo := repository.NewProposalRepository(db)
	outlineRepo := repository.NewOutlineRepository(db)
	commentRepo := repository.NewProposalCommentRepository(db)
	projectRepo := repository.NewProjectRepository(db)
	scopeRepo := repository.NewScopeRepository(db)

	engine := service.NewAllocationEngine(service.AllocationEngineConfig{
		FallbackStrategy: cfg.Allocation.FallbackStrategy,
		FallbackSeed:     cfg.Allocation.FallbackSeed,
	})
	materializer := service.NewProjectMaterializer(projectRepo, proposalRepo, scopeRepo, db, logr)

	return services{
		preferences: service.NewPreferenceService(prefRepo, validate, logr),
		offers:      service.NewOfferService(offerRepo, validate, logr),
		recommendations: service.NewRecommendationService(prefRepo, offerRepo, engine, exportSvc, cacheSvc, metrics, validate, logr,
			service.RecommendationConfig{TTL: cfg.Allocation.RecommendationTTL}),
		allocations: service.NewAllocationService(allocationRepo, offerRepo, prefRepo, proposalRepo, db, metrics, validate, logr),
		proposals:   service.NewProposalService(proposalRepo, outlineRepo, commentRepo, projectRepo, materializer, db, metrics, validate, logr),
	}
}

func newExportStorage(ctx context.Context, cfg config.ExportsConfig) (storage.Storage, *storage.LocalStorage, error) {
	if cfg.Driver == config.StorageDriverS3 {
		s3Store, err := storage.NewS3Storage(ctx, storage.S3Options{
			Bucket:    cfg.S3.Bucket,
			Region:    cfg.S3.Region,
			Endpoint:  cfg.S3.Endpoint,
			PathStyle: cfg.S3.PathStyle,
			Prefix:    "exports",
		})
		if err != nil {
			return nil, nil, err
		}
		return s3Store, nil, nil
	}
	local, err := storage.NewLocalStorage(cfg.StorageDir)
	if err != nil {
		return nil, nil, err
	}
	return local, local, nil
}
