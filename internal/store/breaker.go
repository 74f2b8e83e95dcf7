package store

import (
	"errors"
	"time"

	"github.com/jstittsworth/nfl-predictor/pkg/utils"
	"github.com/sirupsen/logrus"
	"github.com/sony/gobreaker"
	"gorm.io/gorm"
)

func newBreaker(threshold int, timeout time.Duration, logger *logrus.Logger) *gobreaker.CircuitBreaker {
	if threshold <= 0 {
		threshold = 5
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	settings := gobreaker.Settings{
		Name:        "game-store",
		MaxRequests: 1,
		Timeout:     timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= uint32(threshold)
		},
		// a missing key is an answer from a healthy store
		IsSuccessful: func(err error) bool {
			return err == nil ||
				errors.Is(err, gorm.ErrRecordNotFound) ||
				errors.Is(err, utils.ErrMissingData) ||
				errors.Is(err, utils.ErrInvalidInput)
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			logger.WithFields(logrus.Fields{
				"component": "circuit_breaker",
				"service":   name,
				"from":      from.String(),
				"to":        to.String(),
			}).Warn("Circuit breaker state changed")
		},
	}
	return gobreaker.NewCircuitBreaker(settings)
}
