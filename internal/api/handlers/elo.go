package handlers

import (
	"github.com/gin-gonic/gin"
	"github.com/jstittsworth/nfl-predictor/pkg/utils"
)

type EloHandler struct {
	pipeline Pipeline
}

func NewEloHandler(pipeline Pipeline) *EloHandler {
	return &EloHandler{pipeline: pipeline}
}

// Rebuild replays completed games from ?from_season (default: configured start).
func (h *EloHandler) Rebuild(c *gin.Context) {
	from, ok := intQuery(c, "from_season", 0)
	if !ok {
		utils.SendValidationError(c, "Invalid from_season", c.Query("from_season"))
		return
	}
	res, err := h.pipeline.RebuildElo(c.Request.Context(), from)
	if err != nil {
		c.Error(err)
		utils.SendPipelineError(c, "Elo rebuild failed", err)
		return
	}
	utils.SendSuccess(c, res)
}

func (h *EloHandler) GetRatings(c *gin.Context) {
	snap, cached, err := h.pipeline.EloRatings(c.Request.Context())
	if err != nil {
		utils.SendPipelineError(c, "Elo ratings unavailable", err)
		return
	}
	utils.SendSuccessWithMeta(c, snap, &utils.Meta{
		Season: snap.Season,
		Total:  int64(len(snap.Ratings)),
		Cached: cached,
	})
}

func (h *EloHandler) GetHistory(c *gin.Context) {
	season, ok := intQuery(c, "season", 0)
	if !ok {
		utils.SendValidationError(c, "Invalid season", c.Query("season"))
		return
	}
	rows, err := h.pipeline.EloHistory(c.Request.Context(), c.Param("team"), season)
	if err != nil {
		utils.SendPipelineError(c, "Failed to load elo history", err)
		return
	}
	if len(rows) == 0 {
		utils.SendNotFound(c, "No elo history for team")
		return
	}
	utils.SendSuccessWithMeta(c, rows, &utils.Meta{Season: season, Total: int64(len(rows))})
}
