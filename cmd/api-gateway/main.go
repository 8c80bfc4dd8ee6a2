package main

import (
	"fmt"
	"log"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	_ "github.com/noah-isme/edu-billing-api/api/swagger"
	"github.com/noah-isme/edu-billing-api/internal/handler"
	"github.com/noah-isme/edu-billing-api/internal/middleware"
	"github.com/noah-isme/edu-billing-api/internal/models"
	"github.com/noah-isme/edu-billing-api/internal/repository"
	"github.com/noah-isme/edu-billing-api/internal/service"
	"github.com/noah-isme/edu-billing-api/pkg/cache"
	"github.com/noah-isme/edu-billing-api/pkg/config"
	"github.com/noah-isme/edu-billing-api/pkg/database"
	"github.com/noah-isme/edu-billing-api/pkg/logger"
	corsmiddleware "github.com/noah-isme/edu-billing-api/pkg/middleware/cors"
	reqidmiddleware "github.com/noah-isme/edu-billing-api/pkg/middleware/requestid"
)

// @title Edu Billing API
// @version 0.1.0
// @description Enrollment pricing and payment lifecycle service
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
		logr.Sugar().Fatalw("failed to connect to postgres", "error", err)
	}
	defer db.Close() //nolint:errcheck

	metrics := service.NewMetricsService()

	var cacheSvc *service.CacheService
	redisClient, err := cache.NewRedis(cfg.Redis)
	if err != nil {
		logr.Sugar().Warnw("redis unavailable, catalog caching disabled", "error", err)
	} else {
		cacheRepo := repository.NewCacheRepository(redisClient, logr)
		cacheSvc = service.NewCacheService(cacheRepo, metrics, cfg.Catalog.CacheTTL, logr, cfg.Catalog.CacheEnabled)
		defer cacheRepo.Close() //nolint:errcheck
	}

	validate := validator.New()

	studentRepo := repository.NewStudentRepository(db)
	courseRepo := repository.NewCourseRepository(db)
	enrollmentRepo := repository.NewEnrollmentRepository(db)
	paymentRepo := repository.NewPaymentRepository(db)
	settingsRepo := repository.NewSettingsRepository(db)

	notifier := service.NewLogNotifier(logr)

	studentSvc := service.NewStudentService(studentRepo, validate, logr)
	courseSvc := service.NewCourseService(courseRepo, cacheSvc, cfg.Catalog.CacheTTL, logr)
	settingsSvc := service.NewSettingsService(settingsRepo, cfg.Settings.CacheTTL, logr)
	enrollmentSvc := service.NewEnrollmentService(enrollmentRepo, studentSvc, courseSvc, settingsSvc, notifier, metrics, validate, logr, service.EnrollmentPolicy{
		InitialStatus:   models.EnrollmentStatus(cfg.Billing.InitialStatus),
		DiscountPolicy:  service.DiscountPolicy(cfg.Billing.DiscountPolicy),
		MaxInstallments: cfg.Billing.MaxInstallments,
	})
	paymentSvc := service.NewPaymentService(paymentRepo, enrollmentRepo, notifier, metrics, validate, logr)

	enrollmentHandler := handler.NewEnrollmentHandler(enrollmentSvc)
	paymentHandler := handler.NewPaymentHandler(paymentSvc)
	studentHandler := handler.NewStudentHandler(studentSvc)
	courseHandler := handler.NewCourseHandler(courseSvc)
	settingsHandler := handler.NewSettingsHandler(settingsSvc, courseSvc)
	metricsHandler := handler.NewMetricsHandler(metrics, db)

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(middleware.Metrics(metrics))

	r.GET("/health", metricsHandler.Health)
	r.GET("/ready", metricsHandler.Ready)
	r.GET("/metrics", metricsHandler.Prometheus)

	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	api := r.Group(cfg.APIPrefix)
	{
		api.GET("/enrollments", enrollmentHandler.List)
		api.POST("/enrollments", enrollmentHandler.Create)
		api.GET("/enrollments/:id", enrollmentHandler.Get)
		api.PUT("/enrollments/:id/status", enrollmentHandler.UpdateStatus)

		api.GET("/enrollments/:id/payments", paymentHandler.List)
		api.POST("/enrollments/:id/payments", paymentHandler.Add)
		api.GET("/enrollments/:id/payments/export", paymentHandler.Export)
		api.PUT("/payments/:id", paymentHandler.Transition)

		api.GET("/students", studentHandler.List)
		api.POST("/students", studentHandler.Create)
		api.GET("/students/:id", studentHandler.Get)

		api.GET("/courses/:id/formats", courseHandler.Formats)

		api.GET("/settings", settingsHandler.List)
		api.PUT("/settings/:key", settingsHandler.Update)
	}

	addr := fmt.Sprintf(":%d", cfg.Port)
	logr.Sugar().Infow("server starting", "addr", addr, "env", cfg.Env)
	if err := r.Run(addr); err != nil {
		logr.Sugar().Fatalw("server failed", "error", err)
	}
}
