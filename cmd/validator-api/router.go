package main

import (
	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"

	"github.com/noah-isme/sma-timetable-validator/internal/handler"
	"github.com/noah-isme/sma-timetable-validator/internal/middleware"
	"github.com/noah-isme/sma-timetable-validator/internal/models"
	"github.com/noah-isme/sma-timetable-validator/pkg/config"
	"github.com/noah-isme/sma-timetable-validator/pkg/logger"
	corsmiddleware "github.com/noah-isme/sma-timetable-validator/pkg/middleware/cors"
	reqidmiddleware "github.com/noah-isme/sma-timetable-validator/pkg/middleware/requestid"
)

type routes struct {
	constraints *handler.ConstraintHandler
	validation  *handler.ValidationHandler
	runs        *handler.ValidationRunHandler
	metrics     *handler.MetricsHandler
	tokens      middleware.TokenValidator
	observer    middleware.RequestObserver
}

func newRouter(cfg *config.Config, logr *zap.Logger, h routes) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(middleware.Metrics(h.observer))
	r.Use(middleware.WithResponseMeta())

	r.GET("/health", h.metrics.Health)
	r.GET("/metrics", h.metrics.Prometheus)
	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	api := r.Group(cfg.APIPrefix)

	constraints := api.Group("/constraints")
	constraints.GET("", h.constraints.List)
	constraints.GET("/:id", h.constraints.Get)
	constraints.PATCH("/:id",
		middleware.JWT(h.tokens),
		middleware.RequireRoles(models.RoleAdmin, models.RoleSuperAdmin),
		h.constraints.Update,
	)

	validation := api.Group("/validation")
	validation.POST("", h.validation.Validate)
	validation.GET("/runs/:id", h.runs.Get)
	validation.GET("/downloads/:token", h.runs.Download)
	validation.POST("/:category", h.validation.ValidateCategory)

	timetables := api.Group("/timetables/:id")
	timetables.GET("/validation", h.validation.Timetable)
	timetables.GET("/validation/export", h.validation.Export)
	timetables.POST("/validation/runs", middleware.OptionalJWT(h.tokens), h.runs.Create)

	return r
}
