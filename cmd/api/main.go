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
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"

	_ "github.com/campus-adp/records-api/api/swagger"
	"github.com/campus-adp/records-api/internal/handler"
	"github.com/campus-adp/records-api/internal/middleware"
	"github.com/campus-adp/records-api/internal/models"
	"github.com/campus-adp/records-api/internal/repository"
	"github.com/campus-adp/records-api/internal/service"
	"github.com/campus-adp/records-api/pkg/cache"
	"github.com/campus-adp/records-api/pkg/config"
	"github.com/campus-adp/records-api/pkg/database"
	"github.com/campus-adp/records-api/pkg/logger"
	corsmiddleware "github.com/campus-adp/records-api/pkg/middleware/cors"
	reqidmiddleware "github.com/campus-adp/records-api/pkg/middleware/requestid"
	"github.com/campus-adp/records-api/pkg/notify"
	"github.com/campus-adp/records-api/pkg/storage"
)

// @title Campus Records API
// @version 1.0.0
// @description Institutional records portal with tutor approval workflow
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
		logr.Fatal("failed to connect to postgres", zap.Error(err))
	}
	defer db.Close()

	var cacheRepo service.CacheRepository
	if cfg.Cache.Enabled {
		redisClient, err := cache.NewRedis(cfg.Redis)
		if err != nil {
			logr.Warn("redis unavailable, caching disabled", zap.Error(err))
		} else {
			defer redisClient.Close()
			cacheRepo = repository.NewCacheRepository(redisClient, logr)
		}
	}

	uploads, err := storage.NewLocalStorage(cfg.Imports.UploadDir)
	if err != nil {
		logr.Fatal("failed to prepare upload dir", zap.Error(err))
	}

	validate := validator.New()

	userRepo := repository.NewUserRepository(db)
	recordRepo := repository.NewRecordRepository(db)
	studentRepo := repository.NewStudentRepository(db)
	courseRepo := repository.NewCourseRepository(db)
	importRepo := repository.NewImportRepository(db)

	metricsSvc := service.NewMetricsService()
	cacheSvc := service.NewCacheService(cacheRepo, metricsSvc, cfg.Cache.ListTTL, logr, cfg.Cache.Enabled && cacheRepo != nil)

	var sender service.Sender
	if cfg.Notifications.Enabled {
		amqpSender, err := notify.NewAMQPSender(cfg.Notifications.AMQPURL, cfg.Notifications.AMQPExchange, cfg.Notifications.AMQPQueue)
		if err != nil {
			logr.Fatal("failed to connect to broker", zap.Error(err))
		}
		defer amqpSender.Close()
		sender = amqpSender
	} else {
		sender = notify.NewLogSender(logr)
	}

	notificationSvc := service.NewNotificationService(sender, cfg.Notifications, metricsSvc, logr)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	notificationSvc.Start(ctx)
	defer notificationSvc.Stop()

	authSvc := service.NewAuthService(userRepo, validate, logr, service.AuthConfig{
		AccessTokenSecret: cfg.JWT.Secret,
		AccessTokenExpiry: cfg.JWT.Expiration,
		Issuer:            cfg.JWT.Issuer,
	})
	workflowSvc := service.NewWorkflowService(recordRepo, studentRepo, userRepo, courseRepo, userRepo, notificationSvc, validate, logr)
	importSvc := service.NewImportService(importRepo, uploads, cfg.Imports.MaxRows, cfg.Imports.InitialPassword, logr)
	courseSvc := service.NewCourseService(courseRepo, validate, logr)
	userSvc := service.NewUserService(userRepo, studentRepo, logr)

	authHandler := handler.NewAuthHandler(authSvc)
	recordHandler := handler.NewRecordHandler(workflowSvc, cacheSvc, metricsSvc)
	importHandler := handler.NewImportHandler(importSvc, metricsSvc)
	courseHandler := handler.NewCourseHandler(courseSvc)
	userHandler := handler.NewUserHandler(userSvc)
	metricsHandler := handler.NewMetricsHandler(metricsSvc)

	// stale import artifacts are swept on the same cadence as their TTL
	if cfg.Imports.ArtifactTTL > 0 {
		go func() {
			ticker := time.NewTicker(cfg.Imports.ArtifactTTL)
			defer ticker.Stop()
			for {
				select {
				case <-ctx.Done():
					return
				case <-ticker.C:
					if removed, err := uploads.CleanupOlderThan(cfg.Imports.ArtifactTTL); err != nil {
						logr.Warn("artifact cleanup failed", zap.Error(err))
					} else if len(removed) > 0 {
						logr.Info("removed stale import artifacts", zap.Int("count", len(removed)))
					}
				}
			}
		}()
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(middleware.Metrics(metricsSvc))
	r.Use(middleware.WithResponseMeta())

	r.GET("/health", metricsHandler.Health)
	r.GET("/ready", func(c *gin.Context) {
		if err := db.PingContext(c.Request.Context()); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "not ready"})
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
		api.POST("/auth/login", authHandler.Login)

		authed := api.Group("")
		authed.Use(middleware.JWT(authSvc))

		authed.GET("/auth/me", authHandler.Me)

		records := authed.Group("/records")
		{
			records.POST("", middleware.RequireRoles(models.RoleStudent), recordHandler.Submit)
			records.GET("/pending", recordHandler.ListPending)
			records.GET("/resolved", recordHandler.ListResolved)
			records.GET("/:id", recordHandler.Get)
			records.PUT("/:id", middleware.RequireRoles(models.RoleStudent, models.RoleAdmin), recordHandler.Resubmit)
			records.POST("/:id/review", middleware.RequireRoles(models.RoleTutor, models.RoleAdmin), recordHandler.Review)
			records.DELETE("/:id", recordHandler.Delete)
		}

		authed.POST("/imports/users", middleware.RequireRoles(models.RoleAdmin), importHandler.ImportUsers)

		courses := authed.Group("/courses")
		{
			courses.GET("", courseHandler.List)
			courses.POST("",
				middleware.RequireRoles(models.RoleAdmin),
				middleware.Audit(userRepo, models.AuditActionCourseCreate, "courses"),
				courseHandler.Create)
			courses.GET("/:id", courseHandler.Get)
			courses.GET("/:id/grade", courseHandler.Grade)
		}

		users := authed.Group("/users")
		{
			staffOnly := middleware.RequireRoles(models.RoleAdmin, models.RoleTutor)
			adminOnly := middleware.RequireRoles(models.RoleAdmin)
			users.GET("", staffOnly, userHandler.List)
			users.POST("", adminOnly,
				middleware.Audit(userRepo, models.AuditActionUserCreate, "users"),
				userHandler.Create)
			users.GET("/:id", middleware.RequireRolesOrSelf(models.RoleAdmin, models.RoleTutor), userHandler.Get)
			users.GET("/:id/profile", middleware.RequireRolesOrSelf(models.RoleAdmin, models.RoleTutor), userHandler.GetStudentProfile)
			users.PUT("/:id/tutor", adminOnly,
				middleware.Audit(userRepo, models.AuditActionTutorAssign, "student_profiles"),
				userHandler.AssignTutor)
		}
	}

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Port),
		Handler: r,
	}

	go func() {
		logr.Sugar().Infow("server starting", "addr", srv.Addr, "env", cfg.Env)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logr.Fatal("server failed", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logr.Info("shutting down")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logr.Error("forced shutdown", zap.Error(err))
	}
}
