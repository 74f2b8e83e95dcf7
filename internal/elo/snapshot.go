package elo

import (
	"fmt"
	"time"

	"github.com/jstittsworth/nfl-predictor/pkg/utils"
)

// Snapshot is the persisted form of the current ratings.
type Snapshot struct {
	Ratings           map[string]float64 `json:"ratings"`
	BaseElo           float64            `json:"base_elo"`
	KFactor           float64            `json:"k"`
	HomeAdvantage     float64            `json:"home_advantage"`
	MeanReversion     float64            `json:"mean_reversion"`
	PlayoffMultiplier float64            `json:"playoff_multiplier"`
	Season            int                `json:"season"`
	GamesProcessed    int                `json:"games_processed"`
	LastGame          time.Time          `json:"last_game"`
	LastUpdated       time.Time          `json:"last_updated"`
}

func (e *Engine) Snapshot(now time.Time) Snapshot {
	return Snapshot{
		Ratings:           e.Ratings(),
		BaseElo:           e.params.Base,
		KFactor:           e.params.KFactor,
		HomeAdvantage:     e.params.HomeAdvantage,
		MeanReversion:     e.params.MeanReversion,
		PlayoffMultiplier: e.params.PlayoffMultiplier,
		Season:            e.season,
		GamesProcessed:    e.games,
		LastGame:          e.lastGame,
		LastUpdated:       now.UTC(),
	}
}

// Params recovers the system parameters stored with the snapshot.
func (s Snapshot) Params() Params {
	p := Params{
		Base:              s.BaseElo,
		KFactor:           s.KFactor,
		HomeAdvantage:     s.HomeAdvantage,
		MeanReversion:     s.MeanReversion,
		PlayoffMultiplier: s.PlayoffMultiplier,
	}
	if p.PlayoffMultiplier == 0 {
		p.PlayoffMultiplier = DefaultParams().PlayoffMultiplier
	}
	return p
}

// Validate rejects snapshots that cannot drive predictions.
func (s Snapshot) Validate() error {
	if len(s.Ratings) == 0 {
		return fmt.Errorf("elo snapshot has no ratings: %w", utils.ErrMissingArtifact)
	}
	if s.BaseElo <= 0 {
		return fmt.Errorf("elo snapshot has base_elo %v: %w", s.BaseElo, utils.ErrMissingArtifact)
	}
	return nil
}

// FromSnapshot restores an engine positioned after the snapshot's last season.
func FromSnapshot(s Snapshot) *Engine {
	e := NewEngine(s.Params())
	for team, r := range s.Ratings {
		e.ratings[team] = r
	}
	e.season = s.Season
	e.games = s.GamesProcessed
	e.lastGame = s.LastGame
	return e
}
