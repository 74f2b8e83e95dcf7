package middleware

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jstittsworth/nfl-predictor/pkg/utils"
	"golang.org/x/time/rate"
)

// RateLimit shares one token bucket across every request of the group it is
// attached to. perMinute <= 0 disables the limit.
func RateLimit(perMinute int) gin.HandlerFunc {
	if perMinute <= 0 {
		return func(c *gin.Context) { c.Next() }
	}
	limiter := rate.NewLimiter(rate.Every(time.Minute/time.Duration(perMinute)), perMinute)
	return func(c *gin.Context) {
		if !limiter.Allow() {
			utils.SendTooManyRequests(c, "Too many pipeline runs, try again later")
			c.Abort()
			return
		}
		c.Next()
	}
}
