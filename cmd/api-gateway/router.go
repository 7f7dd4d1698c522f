package main

import (
	"strings"

	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"

	"github.com/noah-isme/capstone-api/internal/handler"
	"github.com/noah-isme/capstone-api/internal/middleware"
	"github.com/noah-isme/capstone-api/internal/models"
	"github.com/noah-isme/capstone-api/internal/service"
	"github.com/noah-isme/capstone-api/pkg/config"
	"github.com/noah-isme/capstone-api/pkg/logger"
	corsmiddleware "github.com/noah-isme/capstone-api/pkg/middleware/cors"
	reqidmiddleware "github.com/noah-isme/capstone-api/pkg/middleware/requestid"
)

type routerDeps struct {
	verifier    middleware.IdentityResolver
	metrics     *handler.MetricsHandler
	metricsSvc  *service.MetricsService
	preferences *handler.PreferenceHandler
	offers      *handler.OfferHandler
	allocations *handler.AllocationHandler
	proposals   *handler.ProposalHandler
}

func newRouter(cfg *config.Config, logr *zap.Logger, deps routerDeps) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr, "/health", "/metrics"))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(middleware.Metrics(deps.metricsSvc, "/metrics"))

	r.GET("/health", deps.metrics.Health)
	r.GET("/ready", deps.metrics.Ready)
	r.GET("/metrics", deps.metrics.Prometheus)

	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	prefix := "/" + strings.Trim(cfg.APIPrefix, "/")
	api := r.Group(prefix)

	// Download links are authorised by their signed token.
	api.GET("/allocations/exports/:token", deps.allocations.DownloadExport)

	secured := api.Group("")
	secured.Use(middleware.JWT(deps.verifier))

	preferences := secured.Group("/preferences", middleware.RequireRoles(models.RoleStudent))
	preferences.POST("", deps.preferences.Create)
	preferences.GET("/me", deps.preferences.ListMine)
	preferences.PUT("/:id", deps.preferences.Update)
	preferences.DELETE("/:id", deps.preferences.Delete)

	offers := secured.Group("/offers")
	offers.GET("", deps.offers.List)
	offers.POST("", middleware.RequireRoles(models.RoleLecturer, models.RoleAdmin), deps.offers.Create)
	offers.PATCH("/:id", middleware.RequireRoles(models.RoleLecturer, models.RoleAdmin), deps.offers.Update)
	offers.PATCH("/:id/status", middleware.RequireRoles(models.RoleAdmin), deps.offers.UpdateStatus)

	allocations := secured.Group("/allocations")
	allocations.POST("/recommendations", middleware.RequireRoles(models.RoleAdmin), deps.allocations.Recommend)
	allocations.GET("/recommendations/:id", middleware.RequireRoles(models.RoleAdmin), deps.allocations.GetRecommendation)
	allocations.POST("/recommendations/:id/export", middleware.RequireRoles(models.RoleAdmin), deps.allocations.ExportRecommendation)
	allocations.POST("", middleware.RequireRoles(models.RoleAdmin, models.RoleLecturer), deps.allocations.Create)
	allocations.POST("/materialize", middleware.RequireRoles(models.RoleAdmin), deps.allocations.Materialize)
	allocations.PATCH("/:id/review", middleware.RequireRoles(models.RoleAdmin, models.RoleLecturer), deps.allocations.Review)

	proposals := secured.Group("/proposals")
	proposals.GET("", deps.proposals.List)
	proposals.POST("/bulk-transition", middleware.RequireRoles(models.RoleLecturer, models.RoleDivisionHead, models.RoleDean), deps.proposals.BulkTransition)
	proposals.GET("/:id", deps.proposals.Get)
	proposals.GET("/:id/comments", deps.proposals.Comments)
	proposals.PATCH("/:id", middleware.RequireRoles(models.RoleStudent), deps.proposals.Update)
	proposals.PUT("/:id/outline", middleware.RequireRoles(models.RoleStudent), deps.proposals.SubmitOutline)
	proposals.POST("/:id/advisor-review", middleware.RequireRoles(models.RoleLecturer), deps.proposals.AdvisorReview)
	proposals.POST("/:id/head-review", middleware.RequireRoles(models.RoleDivisionHead, models.RoleDean), deps.proposals.HeadReview)
	proposals.POST("/:id/retry-side-effect", middleware.RequireRoles(models.RoleAdmin), deps.proposals.RetrySideEffect)

	return r
}
