package utils

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// Response is the envelope every API handler writes.
type Response struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   *AppError   `json:"error,omitempty"`
	Meta    *Meta       `json:"meta,omitempty"`
}

// Meta scopes a list response to a season/week and flags cache hits.
type Meta struct {
	Season int   `json:"season,omitempty"`
	Week   int   `json:"week,omitempty"`
	Total  int64 `json:"total,omitempty"`
	Cached bool  `json:"cached,omitempty"`
}

func SendSuccess(c *gin.Context, data interface{}) {
	SendSuccessWithMeta(c, data, nil)
}

func SendSuccessWithMeta(c *gin.Context, data interface{}, meta *Meta) {
	c.JSON(http.StatusOK, Response{Success: true, Data: data, Meta: meta})
}

func SendError(c *gin.Context, statusCode int, err *AppError) {
	c.JSON(statusCode, Response{Error: err})
}

func SendValidationError(c *gin.Context, message string, details string) {
	SendError(c, http.StatusBadRequest, NewAppError(ErrCodeValidation, message, details))
}

func SendNotFound(c *gin.Context, message string) {
	SendError(c, http.StatusNotFound, NewAppError(ErrCodeNotFound, message))
}

// SendTooManyRequests rejects a pipeline run refused by the rate limiter.
func SendTooManyRequests(c *gin.Context, message string) {
	SendError(c, http.StatusTooManyRequests, NewAppError(ErrCodeRateLimited, message))
}

// SendPipelineError translates a pipeline error kind into the matching status
// and code. Unclassified errors keep their text out of the response body.
func SendPipelineError(c *gin.Context, message string, err error) {
	status, code := StatusFor(err)
	if code == ErrCodeInternal {
		SendError(c, status, NewAppError(code, message))
		return
	}
	SendError(c, status, NewAppError(code, message, err.Error()))
}
