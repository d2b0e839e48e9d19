package main

import (
	"github.com/gin-gonic/gin"

	"github.com/therealutkarshpriyadarshi/vidsum/internal/logging"
	"github.com/therealutkarshpriyadarshi/vidsum/internal/middleware"
)

// routerOptions toggles the optional middleware
type routerOptions struct {
	auth    *middleware.Auth
	limiter *middleware.RateLimiter
}

func setupRouter(api *API, logger *logging.Logger, opts routerOptions) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery(), middleware.RequestID(), middleware.Logger(logger))

	// Health check
	router.GET("/health", api.healthCheck)

	// API routes
	v1 := router.Group("/api/v1")
	if opts.limiter != nil {
		v1.Use(middleware.RateLimit(opts.limiter))
	}
	if opts.auth != nil {
		v1.Use(opts.auth.JWTAuth())
	}
	{
		// Videos
		v1.POST("/videos/upload", api.uploadVideo)
		v1.GET("/videos", api.listVideos)
		v1.GET("/videos/:id", api.getVideo)

		// Jobs
		v1.POST("/videos/:id/summarize", api.createSummarizeJob)
		v1.GET("/videos/:id/jobs", api.getVideoJobs)
		v1.GET("/jobs/:id", api.getJob)

		// Summaries
		v1.GET("/videos/:id/summary", api.getSummary)
		v1.GET("/videos/:id/summary/manifest", api.getManifest)
		v1.GET("/videos/:id/summary/evaluation", api.getEvaluation)

		// Synchronous detection over a distance curve
		v1.POST("/detect", api.detect)
	}

	return router
}
