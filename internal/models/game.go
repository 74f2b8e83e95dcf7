package models

import (
	"sort"
	"strings"
	"time"
)

// RegularSeasonWeeks is the last regular-season week; later weeks are postseason.
const RegularSeasonWeeks = 18

// Game is one scheduled NFL game. Scores are nil until the game is played.
//
// SpreadLine is held in the Vegas convention once it leaves the store adapter:
// negative means the home team is favored.
type Game struct {
	GameID        string    `gorm:"primaryKey;size:32" json:"game_id"`
	Season        int       `gorm:"not null;index:idx_games_season_week,priority:1" json:"season"`
	Week          int       `gorm:"not null;index:idx_games_season_week,priority:2" json:"week"`
	GameType      string    `gorm:"size:8" json:"game_type"`
	Kickoff       time.Time `gorm:"column:kickoff_timestamp" json:"kickoff_timestamp"`
	HomeTeam      string    `gorm:"size:4;not null;index" json:"home_team"`
	AwayTeam      string    `gorm:"size:4;not null;index" json:"away_team"`
	HomeScore     *int      `json:"home_score,omitempty"`
	AwayScore     *int      `json:"away_score,omitempty"`
	SpreadLine    *float64  `json:"spread_line,omitempty"`
	TotalLine     *float64  `json:"total_line,omitempty"`
	HomeMoneyline *float64  `json:"home_moneyline,omitempty"`
	AwayMoneyline *float64  `json:"away_moneyline,omitempty"`

	// Context
	Location string   `gorm:"size:16" json:"location"` // "Home" or "Neutral"
	Stadium  string   `gorm:"size:100" json:"stadium,omitempty"`
	Roof     string   `gorm:"size:16" json:"roof,omitempty"`
	Surface  string   `gorm:"size:32" json:"surface,omitempty"`
	Temp     *float64 `json:"temp,omitempty"`
	Wind     *float64 `json:"wind,omitempty"`
	HomeRest *int     `json:"home_rest,omitempty"`
	AwayRest *int     `json:"away_rest,omitempty"`
	DivGame  bool     `json:"div_game"`
}

// TableName specifies the table name for GORM
func (Game) TableName() string {
	return "games"
}

// IsPlayed reports whether both final scores are present.
func (g Game) IsPlayed() bool {
	return g.HomeScore != nil && g.AwayScore != nil
}

func (g Game) IsNeutral() bool {
	return strings.EqualFold(g.Location, "Neutral")
}

// IsPostseason prefers the game type when the schedule carries one.
func (g Game) IsPostseason() bool {
	if g.GameType != "" {
		return g.GameType != "REG"
	}
	return g.Week > RegularSeasonWeeks
}

// Margin returns home minus away points for a played game.
func (g Game) Margin() (int, bool) {
	if !g.IsPlayed() {
		return 0, false
	}
	return *g.HomeScore - *g.AwayScore, true
}

// Before orders games by (season, week, game_id, kickoff), the order every
// chronological consumer must use.
func (g Game) Before(o Game) bool {
	if g.Season != o.Season {
		return g.Season < o.Season
	}
	if g.Week != o.Week {
		return g.Week < o.Week
	}
	if g.GameID != o.GameID {
		return g.GameID < o.GameID
	}
	return g.Kickoff.Before(o.Kickoff)
}

var teamAliases = map[string]string{
	"OAK": "LV",
	"SD":  "LAC",
	"STL": "LA",
	"LAR": "LA",
	"JAC": "JAX",
	"WSH": "WAS",
}

// NormalizeTeam maps relocated and alternate franchise codes onto the current code.
func NormalizeTeam(code string) string {
	code = strings.ToUpper(strings.TrimSpace(code))
	if alias, ok := teamAliases[code]; ok {
		return alias
	}
	return code
}

// TeamCodes returns every stored code that normalizes to team, current code first.
func TeamCodes(team string) []string {
	team = NormalizeTeam(team)
	codes := []string{team}
	for alias, current := range teamAliases {
		if current == team {
			codes = append(codes, alias)
		}
	}
	sort.Strings(codes[1:])
	return codes
}
