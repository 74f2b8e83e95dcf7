package logger

import (
	"os"
	"strings"

	"github.com/sirupsen/logrus"
)

var Logger *logrus.Logger

// InitLogger initializes the structured logger with proper configuration
func InitLogger(logLevel string, isDevelopment bool) *logrus.Logger {
	log := logrus.New()

	// Override with environment if not provided
	if logLevel == "" {
		logLevel = os.Getenv("LOG_LEVEL")
		if logLevel == "" {
			if isDevelopment {
				logLevel = "debug"
			} else {
				logLevel = "info"
			}
		}
	}

	if level, err := logrus.ParseLevel(strings.ToLower(logLevel)); err == nil {
		log.SetLevel(level)
	} else {
		log.SetLevel(logrus.InfoLevel)
		log.WithField("invalid_level", logLevel).Warn("Invalid LOG_LEVEL, using INFO")
	}

	if !isDevelopment || strings.ToLower(os.Getenv("LOG_FORMAT")) == "json" {
		log.SetFormatter(&logrus.JSONFormatter{
			TimestampFormat: "2006-01-02T15:04:05.000Z07:00",
		})
	} else {
		log.SetFormatter(&logrus.TextFormatter{
			FullTimestamp:   true,
			TimestampFormat: "2006-01-02 15:04:05",
		})
	}

	log.SetOutput(os.Stdout)

	Logger = log

	return log
}

// GetLogger returns the global logger instance
func GetLogger() *logrus.Logger {
	if Logger == nil {
		return InitLogger("info", false)
	}
	return Logger
}

// WithComponent tags entries with the pipeline component that produced them
func WithComponent(log *logrus.Logger, component string) *logrus.Entry {
	if log == nil {
		log = GetLogger()
	}
	return log.WithField("component", component)
}

// WithGame creates a logger with game context
func WithGame(entry *logrus.Entry, gameID string, season, week int) *logrus.Entry {
	return entry.WithFields(logrus.Fields{
		"game_id": gameID,
		"season":  season,
		"week":    week,
	})
}

// WithRun creates a logger with training-run context
func WithRun(entry *logrus.Entry, runID, version string) *logrus.Entry {
	return entry.WithFields(logrus.Fields{
		"run_id":  runID,
		"version": version,
	})
}
