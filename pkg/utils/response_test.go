package utils

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func send(t *testing.T, write func(c *gin.Context)) (int, Response) {
	gin.SetMode(gin.TestMode)
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	write(c)

	var body Response
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	return w.Code, body
}

func TestSendPipelineError(t *testing.T) {
	code, body := send(t, func(c *gin.Context) {
		SendPipelineError(c, "Prediction failed", fmt.Errorf("week 23: %w", ErrMissingData))
	})
	assert.Equal(t, http.StatusNotFound, code)
	assert.False(t, body.Success)
	require.NotNil(t, body.Error)
	assert.Equal(t, ErrCodeMissingData, body.Error.Code)
	assert.Equal(t, "week 23: missing data", body.Error.Details)

	code, body = send(t, func(c *gin.Context) {
		SendPipelineError(c, "Prediction failed", errors.New("dial tcp 10.0.0.5:5432: refused"))
	})
	assert.Equal(t, http.StatusInternalServerError, code)
	require.NotNil(t, body.Error)
	assert.Equal(t, ErrCodeInternal, body.Error.Code)
	assert.Empty(t, body.Error.Details)
}

func TestSendTooManyRequests(t *testing.T) {
	code, body := send(t, func(c *gin.Context) {
		SendTooManyRequests(c, "slow down")
	})
	assert.Equal(t, http.StatusTooManyRequests, code)
	require.NotNil(t, body.Error)
	assert.Equal(t, ErrCodeRateLimited, body.Error.Code)
	assert.Equal(t, "slow down", body.Error.Message)
}

func TestSendSuccessWithMeta(t *testing.T) {
	code, body := send(t, func(c *gin.Context) {
		SendSuccessWithMeta(c, []string{"2025_01_BUF_KC"}, &Meta{Season: 2025, Week: 1, Total: 1})
	})
	assert.Equal(t, http.StatusOK, code)
	assert.True(t, body.Success)
	assert.Nil(t, body.Error)
	require.NotNil(t, body.Meta)
	assert.Equal(t, 1, body.Meta.Week)
}
