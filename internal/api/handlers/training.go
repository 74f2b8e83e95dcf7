package handlers

import (
	"github.com/gin-gonic/gin"
	"github.com/jstittsworth/nfl-predictor/pkg/utils"
)

type TrainingHandler struct {
	pipeline Pipeline
}

func NewTrainingHandler(pipeline Pipeline) *TrainingHandler {
	return &TrainingHandler{pipeline: pipeline}
}

// Train runs the training pipeline synchronously and returns its metrics.
func (h *TrainingHandler) Train(c *gin.Context) {
	res, err := h.pipeline.Train(c.Request.Context())
	if err != nil {
		c.Error(err)
		utils.SendPipelineError(c, "Training failed", err)
		return
	}
	utils.SendSuccess(c, res)
}

func (h *TrainingHandler) ListRuns(c *gin.Context) {
	limit, ok := intQuery(c, "limit", 20)
	if !ok {
		utils.SendValidationError(c, "Invalid limit", c.Query("limit"))
		return
	}
	runs, err := h.pipeline.TrainingRuns(c.Request.Context(), limit)
	if err != nil {
		utils.SendPipelineError(c, "Failed to list training runs", err)
		return
	}
	utils.SendSuccessWithMeta(c, runs, &utils.Meta{Total: int64(len(runs))})
}
