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

	_ "github.com/noah-isme/lab-timetable-api/api/swagger"
	"github.com/noah-isme/lab-timetable-api/internal/handler"
	internalmiddleware "github.com/noah-isme/lab-timetable-api/internal/middleware"
	"github.com/noah-isme/lab-timetable-api/internal/repository"
	"github.com/noah-isme/lab-timetable-api/internal/service"
	"github.com/noah-isme/lab-timetable-api/pkg/cache"
	"github.com/noah-isme/lab-timetable-api/pkg/config"
	"github.com/noah-isme/lab-timetable-api/pkg/database"
	"github.com/noah-isme/lab-timetable-api/pkg/logger"
	corsmiddleware "github.com/noah-isme/lab-timetable-api/pkg/middleware/cors"
	reqidmiddleware "github.com/noah-isme/lab-timetable-api/pkg/middleware/requestid"
)

// @title Lab Timetable API
// @version 1.0.0
// @description Weekly lab timetable editing, import and export
// @BasePath /api/v1
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

	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	db, err := database.NewPostgres(cfg.Database)
	if err != nil {
		logr.Sugar().Fatalw("database unavailable", "error", err)
	}
	defer db.Close() //nolint:errcheck

	if cfg.Database.AutoMigrate {
		if err := database.RunMigrations(db.DB, logr); err != nil {
			logr.Sugar().Fatalw("migrations failed", "error", err)
		}
	}

	redisClient, err := cache.NewRedis(cfg.Redis)
	if err != nil {
		logr.Sugar().Fatalw("redis unavailable", "error", err)
	}
	if redisClient == nil {
		logr.Sugar().Infow("redis locks disabled, using in-process edit locks")
	}

	loc := cfg.Reconcile.Location()
	validate := validator.New()
	metrics := service.NewMetricsService()

	labRepo := repository.NewLabRepository(db)
	sessionRepo := repository.NewSessionRepository(db)
	editLocks := repository.NewEditLockRepository(redisClient, logr).WithKeyPrefix(cfg.Redis.KeyPrefix)
	defer editLocks.Close() //nolint:errcheck

	labSvc := service.NewLabService(labRepo, validate, logr)
	weekSvc := service.NewWeekService(sessionRepo, labRepo, service.WeekConfig{
		Location:      loc,
		ExportEnabled: cfg.Exports.Enabled,
		PDFTitle:      cfg.Exports.PDFTitle,
	}, logr, nil, nil, nil)
	reconcilerSvc := service.NewReconcilerService(sessionRepo, validate, logr,
		service.WithEditLocker(editLocks, cfg.Reconcile.EditLockTTL),
		service.WithReconcileMetrics(metrics),
	)
	importSvc := service.NewImportService(sessionRepo, service.ImportConfig{
		MaxRows:  cfg.Imports.MaxRows,
		Location: loc,
	}, metrics, logr)

	labHandler := handler.NewLabHandler(labSvc)
	weekHandler := handler.NewWeekHandler(weekSvc)
	reconcileHandler := handler.NewReconcileHandler(reconcilerSvc)
	importHandler := handler.NewImportHandler(importSvc, cfg.Imports.MaxFileSizeBytes)
	periodHandler := handler.NewPeriodHandler(loc)
	metricsHandler := handler.NewMetricsHandler(metrics, db)

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(internalmiddleware.Metrics(metrics))

	r.GET("/health", metricsHandler.Health)
	r.GET("/ready", metricsHandler.Ready)
	r.GET("/metrics", metricsHandler.Prometheus)

	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	api := r.Group(cfg.APIPrefix)
	api.GET("/periods", periodHandler.List)

	labs := api.Group("/labs")
	labs.GET("", labHandler.List)
	labs.POST("", labHandler.Create)
	labs.GET("/:id", labHandler.Get)
	labs.PUT("/:id", labHandler.Update)
	labs.DELETE("/:id", labHandler.Delete)

	labs.GET("/:id/weeks/:date", weekHandler.Get)
	labs.GET("/:id/weeks/:date/export", weekHandler.Export)
	labs.POST("/:id/weeks/:date/reconcile", reconcileHandler.Reconcile)
	labs.DELETE("/:id/weeks/:date/cells/:weekday/:period", reconcileHandler.DeleteCell)

	labs.POST("/:id/imports/preview", importHandler.Preview)
	labs.POST("/:id/imports/commit", importHandler.Commit)

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go func() {
		logr.Sugar().Infow("server starting", "addr", srv.Addr, "env", cfg.Env)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logr.Sugar().Fatalw("server failed", "error", err)
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logr.Sugar().Errorw("graceful shutdown failed", "error", err)
	}
	logr.Sugar().Infow("server stopped")
}
