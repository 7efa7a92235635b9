package httpapi

import (
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	"github.com/techdispatch/backend/internal/config"
	"github.com/techdispatch/backend/internal/db"
	"github.com/techdispatch/backend/internal/geocode"
	"github.com/techdispatch/backend/internal/http/handlers"
	"github.com/techdispatch/backend/internal/http/middleware"
	"github.com/techdispatch/backend/internal/lock"
	"github.com/techdispatch/backend/internal/metrics"
	"github.com/techdispatch/backend/internal/service"

	_ "github.com/techdispatch/backend/docs"
)

func Router(cfg config.Config, store db.Store, geocoder geocode.Lookup, locker lock.Locker, logger zerolog.Logger) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(middleware.RequestID())
	r.Use(middleware.Logger(logger))
	r.MaxMultipartMemory = cfg.MaxUploadSizeMB << 20

	corsCfg := cors.Config{
		AllowMethods:     []string{"GET", "POST", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "Authorization", middleware.StaffKeyHeader, middleware.RequestIDHeader},
		ExposeHeaders:    []string{middleware.RequestIDHeader},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}
	if cfg.CORSAllowed == "*" || cfg.CORSAllowed == "" {
		corsCfg.AllowAllOrigins = true
		corsCfg.AllowCredentials = false
	} else {
		corsCfg.AllowOrigins = []string{cfg.CORSAllowed}
	}
	r.Use(cors.New(corsCfg))

	h := &handlers.Handler{
		Store:        store,
		Dispatcher:   service.NewDispatcher(store, geocoder, locker, logger),
		Orchestrator: service.NewOrchestrator(store, locker, logger),
		Slots:        &service.Slots{Store: store, Logger: logger},
		Logger:       logger,
	}

	r.GET("/healthz", h.Healthz)
	r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(metrics.Registry, promhttp.HandlerOpts{})))

	api := r.Group("/api")
	{
		api.GET("/available-slots", h.AvailableSlots)
		api.POST("/book", h.Book)
		api.GET("/technicians", h.Technicians)
	}

	ops := api.Group("/ops")
	ops.Use(middleware.StaffKey(cfg.StaffKey))
	{
		ops.GET("/schedule", h.Schedule)
		ops.POST("/preview", h.Preview)
		ops.POST("/apply", h.Apply)
		ops.GET("/runs", h.Runs)
		ops.GET("/runs/:id", h.RunDetails)
		ops.POST("/slots/generate", h.GenerateSlots)
		ops.POST("/import", h.ImportTechnicians)
	}

	r.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	return r
}
