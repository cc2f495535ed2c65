package server

import (
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"github.com/leadforge/truthtable-backend/internal/handlers"
)

type RouterConfig struct {
	CORSOrigins    []string
	EnrichHandler  *handlers.EnrichHandler
	RecordsHandler *handlers.RecordsHandler
	StatsHandler   *handlers.StatsHandler
}

func NewRouter(cfg RouterConfig) *gin.Engine {
	router := gin.Default()

	origins := cfg.CORSOrigins
	if len(origins) == 0 {
		origins = []string{"http://localhost:3000"}
	}
	router.Use(cors.New(cors.Config{
		AllowOrigins:     origins,
		AllowMethods:     []string{"GET", "POST", "OPTIONS"},
		AllowHeaders:     []string{"Authorization", "Content-Type", "X-Requested-With"},
		AllowCredentials: true,
	}))

	router.GET("/healthz", handlers.HealthCheck)

	api := router.Group("/api")
	{
		api.POST("/enrich/upload", cfg.EnrichHandler.Upload)
		api.POST("/enrich/scrape-items", cfg.EnrichHandler.ScrapeItems)

		api.GET("/records", cfg.RecordsHandler.List)
		api.GET("/records/columns", cfg.RecordsHandler.Columns)
		api.GET("/export", cfg.RecordsHandler.Export)

		api.GET("/stats", cfg.StatsHandler.Get)
	}

	return router
}
