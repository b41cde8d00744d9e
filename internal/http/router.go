package httpapi

import (
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	"github.com/wespeak/backend/internal/config"
	"github.com/wespeak/backend/internal/db"
	"github.com/wespeak/backend/internal/http/handlers"
	"github.com/wespeak/backend/internal/http/middleware"
	"github.com/wespeak/backend/internal/service"

	_ "github.com/wespeak/backend/docs"
)

func Router(cfg config.Config, store *db.Store, statsService *service.StatsService, sweep *service.SweepJob, logger zerolog.Logger) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(middleware.RequestID())
	r.Use(middleware.Logger(logger))

	corsCfg := cors.Config{
		AllowMethods:     []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "Authorization", "X-Admin-Key", "X-Request-Id"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}
	if cfg.CORSAllowed == "*" {
		corsCfg.AllowAllOrigins = true
	} else {
		corsCfg.AllowOrigins = []string{cfg.CORSAllowed}
	}
	r.Use(cors.New(corsCfg))

	h := &handlers.Handler{
		Store:     store,
		Stats:     statsService,
		Sweep:     sweep,
		Validator: validator.New(),
		Logger:    logger,
	}

	r.GET("/healthz", h.Healthz)

	api := r.Group("/api")
	{
		api.GET("/organizations", h.OrganizationsList)
		api.GET("/organizations/:id", h.OrganizationDetails)
		api.GET("/organizations/:id/graph", h.OrganizationGraph)
		api.GET("/runs/latest", h.RunsLatest)
	}

	admin := api.Group("")
	admin.Use(middleware.AdminKey(cfg.AdminKey))
	{
		admin.POST("/organizations", h.CreateOrganization)
		admin.POST("/complaints", h.CreateComplaint)
		admin.POST("/complaints/:id/state", h.ChangeComplaintState)
		admin.POST("/complaints/:id/reopen", h.ReopenComplaint)
		admin.POST("/sweep", h.RunSweep)
	}

	r.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	return r
}
