package main

import (
	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"

	"github.com/noah-isme/invigilation-api/internal/handler"
	"github.com/noah-isme/invigilation-api/internal/middleware"
	"github.com/noah-isme/invigilation-api/internal/models"
	"github.com/noah-isme/invigilation-api/internal/service"
	"github.com/noah-isme/invigilation-api/pkg/config"
	"github.com/noah-isme/invigilation-api/pkg/logger"
	corsmiddleware "github.com/noah-isme/invigilation-api/pkg/middleware/cors"
	reqidmiddleware "github.com/noah-isme/invigilation-api/pkg/middleware/requestid"
)

type routeHandlers struct {
	auth         *handler.AuthHandler
	dashboard    *handler.DashboardHandler
	exams        *handler.ExamHandler
	scheduler    *handler.SchedulerHandler
	rooms        *handler.RoomHandler
	departments  *handler.DepartmentHandler
	invigilators *handler.InvigilatorHandler
	dutyReports  *handler.DutyReportHandler
	exports      *handler.ExportHandler
	metrics      *handler.MetricsHandler
	users        *handler.UserHandler
}

func newRouter(cfg *config.Config, logr *zap.Logger, auth *service.AuthService, metrics *service.MetricsService, h routeHandlers) *gin.Engine {
	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr, "/health", "/metrics"))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(middleware.Metrics(metrics))

	r.GET("/health", h.metrics.Health)
	r.GET("/metrics", h.metrics.Prometheus)

	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	api := r.Group(cfg.APIPrefix)
	api.Use(middleware.WithResponseMeta())

	api.POST("/auth/login", h.auth.Login)
	api.POST("/auth/refresh", h.auth.Refresh)
	api.GET("/exports/download/:token", h.exports.Download)

	secured := api.Group("")
	secured.Use(middleware.JWT(auth))

	admin := middleware.RequireRoles(models.RoleAdmin)
	anyRole := middleware.RequireRoles(models.RoleAdmin, models.RoleInvigilator)
	selfOrAdmin := middleware.RequireRoleOrSelf(models.RoleAdmin)

	secured.POST("/auth/logout", h.auth.Logout)
	secured.GET("/auth/me", h.auth.Me)

	secured.GET("/dashboard", admin, h.dashboard.Summary)
	secured.GET("/metrics/summary", admin, h.metrics.Summary)

	exams := secured.Group("/exams")
	exams.GET("", anyRole, h.exams.List)
	exams.GET("/:id", anyRole, h.exams.Get)
	exams.POST("", admin, h.exams.Create)
	exams.PUT("/:id", admin, h.exams.Update)
	exams.DELETE("/:id", admin, h.exams.Delete)
	exams.POST("/:id/invigilators", admin, h.exams.AddInvigilator)
	exams.DELETE("/:id/invigilators/:invigilatorId", admin, h.exams.RemoveInvigilator)

	scheduler := secured.Group("/scheduler", admin)
	scheduler.POST("/plan", h.scheduler.Plan)
	scheduler.GET("/requirements", h.scheduler.Requirements)
	scheduler.POST("/validate", h.scheduler.Validate)

	rooms := secured.Group("/rooms")
	rooms.GET("", anyRole, h.rooms.List)
	rooms.GET("/available", admin, h.rooms.Available)
	rooms.GET("/:id", anyRole, h.rooms.Get)
	rooms.GET("/:id/schedule", anyRole, h.rooms.Schedule)
	rooms.POST("", admin, h.rooms.Create)
	rooms.PUT("/:id", admin, h.rooms.Update)
	rooms.DELETE("/:id", admin, h.rooms.Delete)

	departments := secured.Group("/departments")
	departments.GET("", anyRole, h.departments.List)
	departments.GET("/:id", anyRole, h.departments.Get)
	departments.POST("", admin, h.departments.Create)
	departments.PUT("/:id", admin, h.departments.Update)
	departments.DELETE("/:id", admin, h.departments.Delete)

	invigilators := secured.Group("/invigilators")
	invigilators.GET("", admin, h.invigilators.List)
	invigilators.GET("/availability", admin, h.invigilators.Availability)
	invigilators.GET("/workload", admin, h.invigilators.Workload)
	invigilators.POST("", admin, h.invigilators.Create)
	invigilators.GET("/:id", selfOrAdmin, h.invigilators.Get)
	invigilators.PUT("/:id", admin, h.invigilators.Update)
	invigilators.PATCH("/:id/status", admin, h.invigilators.SetStatus)
	invigilators.DELETE("/:id", admin, h.invigilators.Delete)
	invigilators.GET("/:id/schedule", selfOrAdmin, h.invigilators.Schedule)
	invigilators.GET("/:id/preferences", selfOrAdmin, h.invigilators.Preferences)
	invigilators.PUT("/:id/preferences", admin, h.invigilators.UpdatePreferences)

	secured.POST("/duty-reports", anyRole, h.dutyReports.Submit)
	secured.GET("/duty-reports", anyRole, h.dutyReports.List)
	secured.PUT("/duty-reports/:id", anyRole, h.dutyReports.Update)
	secured.DELETE("/duty-reports/:id", admin, h.dutyReports.Delete)

	exports := secured.Group("/exports")
	exports.POST("/roster", admin, h.exports.RequestRoster)
	exports.GET("/:id", anyRole, h.exports.Status)

	users := secured.Group("/users", admin)
	users.GET("", h.users.List)
	users.GET("/:id", h.users.Get)
	users.POST("", h.users.Create)
	users.PUT("/:id", h.users.Update)
	users.DELETE("/:id", h.users.Delete)

	return r
}
