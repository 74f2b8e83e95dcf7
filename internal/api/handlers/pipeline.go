package handlers

import (
	"context"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/jstittsworth/nfl-predictor/internal/elo"
	"github.com/jstittsworth/nfl-predictor/internal/models"
	"github.com/jstittsworth/nfl-predictor/internal/predictor"
	"github.com/jstittsworth/nfl-predictor/internal/services"
	"github.com/jstittsworth/nfl-predictor/internal/trainer"
)

// Pipeline is the part of services.PipelineService the handlers call.
type Pipeline interface {
	Train(ctx context.Context) (*trainer.Result, error)
	RebuildElo(ctx context.Context, fromSeason int) (*services.EloRebuild, error)
	EloRatings(ctx context.Context) (*elo.Snapshot, bool, error)
	EloHistory(ctx context.Context, team string, season int) ([]models.EloHistory, error)
	PredictWeek(ctx context.Context, season, week int, includePlayed bool) (*services.WeekPredictions, error)
	PredictGame(ctx context.Context, season, week int, home, away string, lines predictor.MarketLines) (models.MLPrediction, error)
	BackfillResults(ctx context.Context, season int) (int, error)
	ListPredictions(ctx context.Context, season, week int) ([]models.MLPrediction, bool, error)
	TrainingRuns(ctx context.Context, limit int) ([]models.TrainingRun, error)
	Health(ctx context.Context) services.Health
}

// intParam reads a positive integer path parameter.
func intParam(c *gin.Context, name string) (int, bool) {
	v, err := strconv.Atoi(c.Param(name))
	return v, err == nil && v > 0
}

// intQuery reads an optional non-negative integer query parameter.
func intQuery(c *gin.Context, name string, def int) (int, bool) {
	raw := c.Query(name)
	if raw == "" {
		return def, true
	}
	v, err := strconv.Atoi(raw)
	return v, err == nil && v >= 0
}
