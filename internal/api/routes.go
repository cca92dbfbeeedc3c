package api

import (
	"github.com/gin-gonic/gin"
	"github.com/jroosing/dnstp/internal/api/handlers"
	"github.com/jroosing/dnstp/internal/api/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	_ "github.com/jroosing/dnstp/internal/api/docs" // swagger docs
)

// RegisterRoutes mounts the API, /metrics and the Swagger UI on r. A non-empty
// apiKey protects everything except the health check and the Swagger UI.
func RegisterRoutes(r *gin.Engine, h *handlers.Handler, apiKey string, gatherer prometheus.Gatherer) {
	// Swagger UI at /swagger/*
	r.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	auth := middleware.RequireAPIKey(apiKey, "/api/v1/health")

	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	r.GET("/metrics", auth, gin.WrapH(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})))

	api := r.Group("/api/v1")
	api.Use(auth)

	api.GET("/health", h.Health)
	api.GET("/stats", h.Stats)

	api.GET("/sessions", h.ListSessions)
	api.GET("/sessions/:fingerprint", h.GetSession)
	api.POST("/sessions/:fingerprint/outbox", h.EnqueuePayload)
	api.GET("/sessions/:fingerprint/uploads", h.ListUploads)
}
