package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

type HealthHandler struct {
	pipeline Pipeline
}

func NewHealthHandler(pipeline Pipeline) *HealthHandler {
	return &HealthHandler{
		pipeline: pipeline,
	}
}

// GetHealth is the liveness probe; it answers whenever the process is up.
func (h *HealthHandler) GetHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "ok",
		"time":    time.Now().UTC(),
		"service": "nfl-predictor",
	})
}

// GetReady is the readiness probe: 200 only when the database answers.
func (h *HealthHandler) GetReady(c *gin.Context) {
	health := h.pipeline.Health(c.Request.Context())
	status := http.StatusOK
	if !health.Healthy {
		status = http.StatusServiceUnavailable
	}
	c.JSON(status, health)
}
