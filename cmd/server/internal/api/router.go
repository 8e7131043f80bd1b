package api

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/callytics/callytics/cmd/server/internal/middleware"
)

// NewRouter builds the gin engine with all routes registered. production
// switches gin to release mode.
func NewRouter(h *Handler, production bool) *gin.Engine {
	if production {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(middleware.RequestLogger())

	r.GET("/healthz", h.HandleHealthz)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	apiGroup := r.Group("/api")
	{
		apiGroup.POST("/analyze/", h.HandleAnalyze)
		apiGroup.GET("/jobs/", h.HandleListJobs)
		apiGroup.GET("/jobs/:id/", h.HandleGetJob)
		apiGroup.GET("/analytics/", h.HandleListAnalytics)
		apiGroup.GET("/analytics/:id/", h.HandleGetAnalytics)
		apiGroup.GET("/services/health", h.HandleServicesHealth)
	}

	return r
}
