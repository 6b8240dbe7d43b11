package main

import (
	"context"
	"fmt"
	"log"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"

	_ "github.com/uniplan/uniplan-api/api/swagger"
	"github.com/uniplan/uniplan-api/internal/handler"
	"github.com/uniplan/uniplan-api/internal/middleware"
	"github.com/uniplan/uniplan-api/internal/models"
	"github.com/uniplan/uniplan-api/internal/repository"
	"github.com/uniplan/uniplan-api/internal/service"
	"github.com/uniplan/uniplan-api/pkg/cache"
	"github.com/uniplan/uniplan-api/pkg/config"
	"github.com/uniplan/uniplan-api/pkg/database"
	"github.com/uniplan/uniplan-api/pkg/logger"
	corsmiddleware "github.com/uniplan/uniplan-api/pkg/middleware/cors"
	reqidmiddleware "github.com/uniplan/uniplan-api/pkg/middleware/requestid"
	"github.com/uniplan/uniplan-api/pkg/notify"
)

// @title UniPlan API
// @version 1.0.0
// @description Academic planning backend: semesters, subjects, events and grade averages
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

	db, err := database.NewPostgres(cfg.Database)
	if err != nil {
		logr.Sugar().Fatalw("failed to connect to postgres", "error", err)
	}
	defer db.Close()

	metrics := service.NewMetricsService()

	validate := validator.New()

	userRepo := repository.NewUserRepository(db)
	semesterRepo := repository.NewSemesterRepository(db)
	subjectRepo := repository.NewSubjectRepository(db)
	eventRepo := repository.NewEventRepository(db)

	var cacheSvc *service.CacheService
	if cfg.Averages.CacheEnabled {
		redisClient, err := cache.NewRedis(cfg.Redis)
		if err != nil {
			logr.Sugar().Fatalw("failed to connect to redis", "error", err)
		}
		cacheRepo := repository.NewCacheRepository(redisClient, logr)
		defer cacheRepo.Close() //nolint:errcheck
		cacheSvc = service.NewCacheService(cacheRepo, metrics, cfg.Averages.CacheTTL, logr, true)
	} else {
		cacheSvc = service.NewCacheService(nil, metrics, cfg.Averages.CacheTTL, logr, false)
	}

	var sender notify.Sender = notify.NopSender{}
	if cfg.Notifications.Enabled {
		sender = notify.NewGatewaySender(notify.GatewayConfig{
			URL:       cfg.Notifications.GatewayURL,
			ServerKey: cfg.Notifications.ServerKey,
			Timeout:   cfg.Notifications.RequestTimeout,
		}, logr)
	}
	notifications := service.NewNotificationService(sender, service.NotificationConfig{
		Enabled:    cfg.Notifications.Enabled,
		Workers:    cfg.Notifications.WorkerConcurrency,
		MaxRetries: cfg.Notifications.WorkerRetries,
	}, logr)
	notifications.Start(context.Background())
	defer notifications.Stop()

	authSvc := service.NewAuthService(userRepo, validate, logr, service.AuthConfig{
		Secret:     cfg.JWT.Secret,
		Expiration: cfg.JWT.Expiration,
		Issuer:     cfg.JWT.Issuer,
	})
	userSvc := service.NewUserService(userRepo, semesterRepo, notifications, validate, logr)
	subjectSvc := service.NewSubjectService(subjectRepo, eventRepo, semesterRepo, cacheSvc, validate, logr)
	semesterSvc := service.NewSemesterService(semesterRepo, subjectRepo, eventRepo, userRepo, cacheSvc, validate, logr)
	eventSvc := service.NewEventService(eventRepo, subjectRepo, userRepo, notifications, cacheSvc, validate, logr)

	authHandler := handler.NewAuthHandler(authSvc)
	userHandler := handler.NewUserHandler(userSvc, semesterSvc)
	semesterHandler := handler.NewSemesterHandler(semesterSvc, subjectSvc)
	subjectHandler := handler.NewSubjectHandler(subjectSvc)
	eventHandler := handler.NewEventHandler(eventSvc)
	metricsHandler := handler.NewMetricsHandler(metrics)

	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(middleware.Metrics(metrics))

	r.GET("/health", metricsHandler.Health)
	r.GET("/ready", func(c *gin.Context) {
		if err := db.Ping(); err != nil {
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

	auth := api.Group("/auth")
	{
		auth.POST("/register", authHandler.Register)
		auth.POST("/login", authHandler.Login)
	}

	protected := api.Group("")
	protected.Use(middleware.JWT(authSvc))

	staff := []string{string(models.RoleAdmin), string(models.RoleProfessor)}
	staffOrSelf := append([]string{middleware.SelfRole}, staff...)
	adminOrSelf := []string{middleware.SelfRole, string(models.RoleAdmin)}

	users := protected.Group("/users")
	{
		users.GET("", middleware.RBAC(staff...), userHandler.List)
		users.GET("/:id", middleware.RBAC(staffOrSelf...), userHandler.Get)
		users.PUT("/:id", middleware.RBAC(adminOrSelf...), userHandler.Update)
		users.DELETE("/:id", middleware.RequireRoles(models.RoleAdmin), userHandler.Delete)
		users.PUT("/:id/role", middleware.RequireRoles(models.RoleAdmin), userHandler.AssignRole)
		users.PUT("/:id/notification-token", middleware.RBAC(adminOrSelf...), userHandler.SetNotificationToken)
		users.POST("/:id/notification-test", middleware.RBAC(adminOrSelf...), userHandler.SendTestNotification)
		users.GET("/:id/semesters", middleware.RBAC(staffOrSelf...), userHandler.Semesters)
		users.POST("/:id/semesters", middleware.RBAC(adminOrSelf...), userHandler.Enroll)
		users.DELETE("/:id/semesters/:semesterId", middleware.RBAC(adminOrSelf...), userHandler.Unenroll)
	}

	semesters := protected.Group("/semesters")
	{
		semesters.GET("", semesterHandler.List)
		semesters.POST("", semesterHandler.Create)
		semesters.GET("/:id", semesterHandler.Get)
		semesters.PUT("/:id", middleware.RBAC(staff...), semesterHandler.Update)
		semesters.DELETE("/:id", middleware.RequireRoles(models.RoleAdmin), semesterHandler.Delete)
		semesters.GET("/:id/average", semesterHandler.Average)
		semesters.POST("/:id/subjects", middleware.RBAC(staff...), semesterHandler.CreateSubject)
		semesters.GET("/:id/report", semesterHandler.Report)
	}

	subjects := protected.Group("/subjects")
	{
		subjects.GET("", subjectHandler.List)
		subjects.GET("/:id", subjectHandler.Get)
		subjects.PUT("/:id", middleware.RBAC(staff...), subjectHandler.Update)
		subjects.DELETE("/:id", middleware.RBAC(staff...), subjectHandler.Delete)
		subjects.GET("/:id/average", subjectHandler.Average)
		subjects.GET("/:id/events", subjectHandler.Events)
		subjects.GET("/:id/weight-total", subjectHandler.WeightTotal)
	}

	events := protected.Group("/events")
	{
		events.GET("", eventHandler.List)
		events.POST("", middleware.RBAC(staff...), eventHandler.Create)
		events.GET("/:id", eventHandler.Get)
		events.PUT("/:id", middleware.RBAC(staff...), eventHandler.Update)
		events.DELETE("/:id", middleware.RBAC(staff...), eventHandler.Delete)
		events.GET("/:id/is-evaluated", eventHandler.IsEvaluated)
		events.POST("/:id/grades", middleware.RBAC(staff...), eventHandler.AddGrade)
		events.POST("/:id/grades/batch", middleware.RBAC(staff...), eventHandler.AddGrades)
	}

	addr := fmt.Sprintf(":%d", cfg.Port)
	logr.Info("server starting", zap.String("addr", addr), zap.String("env", cfg.Env))
	if err := r.Run(addr); err != nil {
		logr.Sugar().Fatalw("server failed", "error", err)
	}
}
