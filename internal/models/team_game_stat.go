package models

// TeamGameStat is one team's box score and EPA aggregates for one game.
// Any metric may be nil for older seasons where it was not computable.
type TeamGameStat struct {
	GameID   string `gorm:"primaryKey;size:32" json:"game_id"`
	Team     string `gorm:"primaryKey;size:4" json:"team"`
	Season   int    `gorm:"not null;index:idx_tgs_team_season_week,priority:2" json:"season"`
	Week     int    `gorm:"not null;index:idx_tgs_team_season_week,priority:3" json:"week"`
	Opponent string `gorm:"size:4;not null" json:"opponent"`
	IsHome   bool   `json:"is_home"`

	// Box score
	Points        *float64 `json:"points,omitempty"`
	TotalYards    *float64 `json:"total_yards,omitempty"`
	PassingYards  *float64 `json:"passing_yards,omitempty"`
	RushingYards  *float64 `json:"rushing_yards,omitempty"`
	Turnovers     *float64 `json:"turnovers,omitempty"`
	Touchdowns    *float64 `json:"touchdowns,omitempty"`
	CompletionPct *float64 `json:"completion_pct,omitempty"`
	ThirdDownPct  *float64 `json:"third_down_pct,omitempty"`
	RedZonePct    *float64 `json:"red_zone_pct,omitempty"`

	// Advanced
	EPAPerPlay          *float64 `gorm:"column:epa_per_play" json:"epa_per_play,omitempty"`
	SuccessRate         *float64 `json:"success_rate,omitempty"`
	PassEPA             *float64 `gorm:"column:pass_epa" json:"pass_epa,omitempty"`
	RushEPA             *float64 `gorm:"column:rush_epa" json:"rush_epa,omitempty"`
	TotalEPA            *float64 `gorm:"column:total_epa" json:"total_epa,omitempty"`
	WPA                 *float64 `gorm:"column:wpa" json:"wpa,omitempty"`
	CPOE                *float64 `gorm:"column:cpoe" json:"cpoe,omitempty"`
	YardsPerPlay        *float64 `json:"yards_per_play,omitempty"`
	TimeOfPossessionPct *float64 `json:"time_of_possession_pct,omitempty"`
}

// TableName specifies the table name for GORM
func (TeamGameStat) TableName() string {
	return "team_game_stats"
}

// StatKey identifies a stat row by (game, team).
type StatKey struct {
	GameID string
	Team   string
}
