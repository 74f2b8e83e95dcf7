package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	PredictionsGenerated = promauto.NewCounter(prometheus.CounterOpts{
		Name: "nflpred_predictions_generated_total",
		Help: "Total number of game predictions produced",
	})
	PredictionsSkipped = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "nflpred_predictions_skipped_total",
		Help: "Total number of games skipped in a prediction batch, by reason",
	}, []string{"reason"})
	TrainingRuns = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "nflpred_training_runs_total",
		Help: "Total number of training runs, by outcome",
	}, []string{"outcome"})
	TrainingDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "nflpred_training_duration_seconds",
		Help:    "Duration of training runs",
		Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600},
	})
	EloRebuildGames = promauto.NewCounter(prometheus.CounterOpts{
		Name: "nflpred_elo_rebuild_games_total",
		Help: "Total number of games replayed by Elo rebuilds",
	})
)

// Skip reasons
const (
	ReasonPlayed       = "played"
	ReasonFeatureError = "feature_error"
	ReasonStoreError   = "store_error"
)
