package api

import (
	"github.com/gin-gonic/gin"
	"github.com/jstittsworth/nfl-predictor/internal/api/handlers"
	"github.com/jstittsworth/nfl-predictor/internal/api/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
)

// NewRouter builds the engine with probes, metrics and the /api/v1 routes.
func NewRouter(pipeline handlers.Pipeline, heavyPerMinute int, logger *logrus.Logger) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.RequestLogger(logger))

	health := handlers.NewHealthHandler(pipeline)
	router.GET("/health", health.GetHealth)
	router.GET("/ready", health.GetReady)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	SetupRoutes(router.Group("/api/v1"), pipeline, heavyPerMinute)
	return router
}

// SetupRoutes configures all API routes on the given router group
func SetupRoutes(group *gin.RouterGroup, pipeline handlers.Pipeline, heavyPerMinute int) {
	trainingHandler := handlers.NewTrainingHandler(pipeline)
	eloHandler := handlers.NewEloHandler(pipeline)
	predictionHandler := handlers.NewPredictionHandler(pipeline)

	// Read endpoints
	group.GET("/training/runs", trainingHandler.ListRuns)
	group.GET("/elo/ratings", eloHandler.GetRatings)
	group.GET("/elo/history/:team", eloHandler.GetHistory)
	group.GET("/predictions/:season", predictionHandler.ListPredictions)
	group.POST("/predict/game", predictionHandler.PredictGame)

	// Pipeline runs share one limiter
	heavy := group.Group("")
	heavy.Use(middleware.RateLimit(heavyPerMinute))
	{
		heavy.POST("/training/run", trainingHandler.Train)
		heavy.POST("/elo/rebuild", eloHandler.Rebuild)
		heavy.POST("/predictions/:season/:week", predictionHandler.PredictWeek)
		heavy.POST("/results/:season/backfill", predictionHandler.Backfill)
	}
}
