package models

import "time"

// Prediction sources
const (
	SourceModel          = "model"
	SourceEloFallback    = "elo_fallback"
	SourceMarketFallback = "market_fallback"
)

// TieResult is stored as actual_winner when a game ends level.
const TieResult = "TIE"

// MLPrediction is the persisted per-game prediction. Post-game fields stay nil
// until the result is backfilled.
type MLPrediction struct {
	GameID   string `gorm:"primaryKey;size:32" json:"game_id"`
	Season   int    `gorm:"index:idx_ml_predictions_season_week,priority:1" json:"season"`
	Week     int    `gorm:"index:idx_ml_predictions_season_week,priority:2" json:"week"`
	HomeTeam string `gorm:"size:4" json:"home_team"`
	AwayTeam string `gorm:"size:4" json:"away_team"`

	PredictedWinner    string   `gorm:"size:4" json:"predicted_winner"`
	WinConfidence      float64  `json:"win_confidence"`
	HomeWinProb        float64  `json:"home_win_prob"`
	AwayWinProb        float64  `json:"away_win_prob"`
	PredictedHomeScore float64  `json:"predicted_home_score"`
	PredictedAwayScore float64  `json:"predicted_away_score"`
	PredictedMargin    float64  `json:"predicted_margin"`
	AISpread           float64  `gorm:"column:ai_spread" json:"ai_spread"`
	VegasSpread        *float64 `json:"vegas_spread,omitempty"`
	VegasTotal         *float64 `json:"vegas_total,omitempty"`

	// Provenance
	PredictionSource  string   `gorm:"size:24" json:"prediction_source"`
	ModelVersion      string   `gorm:"size:64" json:"model_version"`
	ModelHomeProb     *float64 `json:"model_home_prob,omitempty"`
	EloHomeProb       *float64 `json:"elo_home_prob,omitempty"`
	MarketHomeProb    *float64 `json:"market_home_prob,omitempty"`
	MarginWinProb     *float64 `json:"margin_win_prob,omitempty"`
	IsSplitPrediction bool     `json:"is_split_prediction"`

	PredictedAt time.Time `json:"predicted_at"`

	// Post-game fill
	ActualWinner             *string    `gorm:"size:4" json:"actual_winner,omitempty"`
	ActualMargin             *int       `json:"actual_margin,omitempty"`
	WinPredictionCorrect     *bool      `json:"win_prediction_correct,omitempty"`
	MarginPredictionError    *float64   `json:"margin_prediction_error,omitempty"`
	ScorePredictionErrorHome *float64   `json:"score_prediction_error_home,omitempty"`
	ScorePredictionErrorAway *float64   `json:"score_prediction_error_away,omitempty"`
	ResultRecordedAt         *time.Time `json:"result_recorded_at,omitempty"`
}

// TableName specifies the table name for GORM
func (MLPrediction) TableName() string {
	return "ml_predictions"
}

// PredictionColumns are overwritten on upsert; post-game columns are left alone.
func PredictionColumns() []string {
	return []string{
		"season", "week", "home_team", "away_team",
		"predicted_winner", "win_confidence", "home_win_prob", "away_win_prob",
		"predicted_home_score", "predicted_away_score", "predicted_margin", "ai_spread",
		"vegas_spread", "vegas_total",
		"prediction_source", "model_version", "model_home_prob", "elo_home_prob",
		"market_home_prob", "margin_win_prob", "is_split_prediction",
		"predicted_at",
	}
}
