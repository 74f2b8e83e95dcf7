package handlers

import (
	"github.com/gin-gonic/gin"
	"github.com/jstittsworth/nfl-predictor/internal/predictor"
	"github.com/jstittsworth/nfl-predictor/pkg/utils"
)

type PredictionHandler struct {
	pipeline Pipeline
}

func NewPredictionHandler(pipeline Pipeline) *PredictionHandler {
	return &PredictionHandler{pipeline: pipeline}
}

// PredictWeek predicts and stores /predictions/:season/:week. Played games
// are included only with ?include_played=true.
func (h *PredictionHandler) PredictWeek(c *gin.Context) {
	season, ok := intParam(c, "season")
	if !ok {
		utils.SendValidationError(c, "Invalid season", c.Param("season"))
		return
	}
	week, ok := intParam(c, "week")
	if !ok {
		utils.SendValidationError(c, "Invalid week", c.Param("week"))
		return
	}
	includePlayed := c.Query("include_played") == "true"

	res, err := h.pipeline.PredictWeek(c.Request.Context(), season, week, includePlayed)
	if err != nil {
		c.Error(err)
		utils.SendPipelineError(c, "Prediction batch failed", err)
		return
	}
	utils.SendSuccessWithMeta(c, res, &utils.Meta{
		Season: season,
		Week:   week,
		Total:  int64(len(res.Predictions)),
	})
}

// ListPredictions returns stored predictions for a season, optionally one ?week.
func (h *PredictionHandler) ListPredictions(c *gin.Context) {
	season, ok := intParam(c, "season")
	if !ok {
		utils.SendValidationError(c, "Invalid season", c.Param("season"))
		return
	}
	week, ok := intQuery(c, "week", 0)
	if !ok {
		utils.SendValidationError(c, "Invalid week", c.Query("week"))
		return
	}

	preds, cached, err := h.pipeline.ListPredictions(c.Request.Context(), season, week)
	if err != nil {
		utils.SendPipelineError(c, "Failed to list predictions", err)
		return
	}
	utils.SendSuccessWithMeta(c, preds, &utils.Meta{
		Season: season,
		Week:   week,
		Total:  int64(len(preds)),
		Cached: cached,
	})
}

type predictGameRequest struct {
	Season   int    `json:"season" binding:"required,min=1"`
	Week     int    `json:"week" binding:"required,min=1"`
	HomeTeam string `json:"home_team" binding:"required"`
	AwayTeam string `json:"away_team" binding:"required"`
	predictor.MarketLines
}

// PredictGame predicts an ad-hoc matchup without storing it.
func (h *PredictionHandler) PredictGame(c *gin.Context) {
	var req predictGameRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.SendValidationError(c, "Invalid request", err.Error())
		return
	}

	pred, err := h.pipeline.PredictGame(c.Request.Context(), req.Season, req.Week, req.HomeTeam, req.AwayTeam, req.MarketLines)
	if err != nil {
		utils.SendPipelineError(c, "Prediction failed", err)
		return
	}
	utils.SendSuccess(c, pred)
}

// Backfill fills post-game results for a season's predictions.
func (h *PredictionHandler) Backfill(c *gin.Context) {
	season, ok := intParam(c, "season")
	if !ok {
		utils.SendValidationError(c, "Invalid season", c.Param("season"))
		return
	}
	n, err := h.pipeline.BackfillResults(c.Request.Context(), season)
	if err != nil {
		c.Error(err)
		utils.SendPipelineError(c, "Backfill failed", err)
		return
	}
	utils.SendSuccess(c, gin.H{"season": season, "updated": n})
}
