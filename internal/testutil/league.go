// Package testutil builds deterministic synthetic leagues for pipeline tests.
package testutil

import (
	"fmt"
	"math"
	"math/rand"
	"time"

	"github.com/jstittsworth/nfl-predictor/internal/models"
	"gorm.io/gorm"
)

var teamPool = []string{"KC", "BUF", "BAL", "CIN", "DAL", "PHI", "SF", "DET", "GB", "MIA", "NYJ", "LV"}

// LeagueConfig shapes a generated league. Games at or after (UnplayedSeason,
// UnplayedWeek) are left without scores.
type LeagueConfig struct {
	Teams          int
	FirstSeason    int
	LastSeason     int
	Weeks          int
	Seed           int64
	NoiseSigma     float64
	UnplayedSeason int
	UnplayedWeek   int
}

func DefaultLeague() LeagueConfig {
	return LeagueConfig{
		Teams:       8,
		FirstSeason: 2020,
		LastSeason:  2025,
		Weeks:       14,
		Seed:        42,
		NoiseSigma:  13,
	}
}

type League struct {
	Teams []string
	Games []models.Game
	Stats []models.TeamGameStat
}

// GenerateLeague plays a round-robin style schedule driven by a latent team
// strength that drifts between seasons. Spread lines use the negative-favors-home
// convention.
func GenerateLeague(cfg LeagueConfig) League {
	if cfg.Teams > len(teamPool) {
		cfg.Teams = len(teamPool)
	}
	if cfg.Teams%2 == 1 {
		cfg.Teams--
	}
	rng := rand.New(rand.NewSource(cfg.Seed))
	teams := append([]string(nil), teamPool[:cfg.Teams]...)

	strength := make(map[string]float64, len(teams))
	for _, t := range teams {
		strength[t] = rng.NormFloat64() * 6
	}

	var league League
	league.Teams = teams
	for season := cfg.FirstSeason; season <= cfg.LastSeason; season++ {
		for _, t := range teams {
			strength[t] = strength[t]*0.7 + rng.NormFloat64()*3
		}
		for week := 1; week <= cfg.Weeks; week++ {
			for i, pair := range pairings(teams, week) {
				home, away := pair[0], pair[1]
				edge := strength[home] - strength[away] + 2
				g := models.Game{
					GameID:     fmt.Sprintf("%d_%02d_%s_%s", season, week, away, home),
					Season:     season,
					Week:       week,
					GameType:   "REG",
					Kickoff:    time.Date(season, 9, 7, 17, 0, 0, 0, time.UTC).AddDate(0, 0, 7*(week-1)).Add(time.Duration(i) * time.Hour),
					HomeTeam:   home,
					AwayTeam:   away,
					SpreadLine: ptr(-math.Round(edge*2) / 2),
					TotalLine:  ptr(45 + math.Round(rng.NormFloat64()*4)),
					Location:   "Home",
				}

				unplayed := cfg.UnplayedSeason > 0 &&
					(season > cfg.UnplayedSeason || (season == cfg.UnplayedSeason && week >= cfg.UnplayedWeek))
				if !unplayed {
					margin := edge + rng.NormFloat64()*cfg.NoiseSigma
					hs := clampScore(22 + margin/2 + rng.NormFloat64()*3)
					as := clampScore(22 - margin/2 + rng.NormFloat64()*3)
					g.HomeScore, g.AwayScore = &hs, &as
					league.Stats = append(league.Stats,
						teamStat(rng, g, home, away, true, hs, as),
						teamStat(rng, g, away, home, false, as, hs),
					)
				}
				league.Games = append(league.Games, g)
			}
		}
	}
	return league
}

// pairings rotates a circle schedule so every team plays once per week.
func pairings(teams []string, week int) [][2]string {
	n := len(teams)
	rot := make([]string, n)
	rot[0] = teams[0]
	for i := 1; i < n; i++ {
		rot[i] = teams[1+(i-1+week)%(n-1)]
	}
	out := make([][2]string, 0, n/2)
	for i := 0; i < n/2; i++ {
		a, b := rot[i], rot[n-1-i]
		if (week+i)%2 == 0 {
			a, b = b, a
		}
		out = append(out, [2]string{a, b})
	}
	return out
}

func teamStat(rng *rand.Rand, g models.Game, team, opp string, home bool, pts, oppPts int) models.TeamGameStat {
	diff := float64(pts - oppPts)
	epa := diff/60 + rng.NormFloat64()*0.05
	return models.TeamGameStat{
		GameID:              g.GameID,
		Team:                team,
		Season:              g.Season,
		Week:                g.Week,
		Opponent:            opp,
		IsHome:              home,
		Points:              ptr(float64(pts)),
		TotalYards:          ptr(280 + float64(pts)*4 + rng.NormFloat64()*25),
		PassingYards:        ptr(200 + rng.NormFloat64()*40),
		RushingYards:        ptr(110 + rng.NormFloat64()*25),
		Turnovers:           ptr(math.Max(0, math.Round(1.3-diff/30+rng.NormFloat64()))),
		Touchdowns:          ptr(math.Round(float64(pts) / 7)),
		ThirdDownPct:        ptr(0.4 + diff/200),
		RedZonePct:          ptr(0.55 + rng.NormFloat64()*0.1),
		EPAPerPlay:          ptr(epa),
		SuccessRate:         ptr(0.45 + epa/4),
		PassEPA:             ptr(epa * 1.2),
		RushEPA:             ptr(epa * 0.6),
		TotalEPA:            ptr(epa * 62),
		WPA:                 ptr(diff / 100),
		YardsPerPlay:        ptr(5.3 + diff/40),
		TimeOfPossessionPct: ptr(0.5 + diff/300),
	}
}

func clampScore(v float64) int {
	if v < 0 {
		return 0
	}
	return int(math.Round(v))
}

func ptr(v float64) *float64 { return &v }

// Seed writes the league into db.
func Seed(db *gorm.DB, l League) error {
	if err := db.CreateInBatches(l.Games, 200).Error; err != nil {
		return fmt.Errorf("seed games: %w", err)
	}
	if len(l.Stats) == 0 {
		return nil
	}
	if err := db.CreateInBatches(l.Stats, 200).Error; err != nil {
		return fmt.Errorf("seed stats: %w", err)
	}
	return nil
}
