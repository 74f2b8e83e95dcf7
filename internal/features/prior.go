package features

import (
	"sort"

	"github.com/jstittsworth/nfl-predictor/internal/models"
)

type teamSeason struct {
	team   string
	season int
}

// PriorIndex groups stat rows by (team, season) in week order so a training
// pass can look up each side's prior games without going back to the store.
type PriorIndex struct {
	rows map[teamSeason][]models.TeamGameStat
}

func NewPriorIndex(stats map[models.StatKey]models.TeamGameStat) *PriorIndex {
	idx := &PriorIndex{rows: make(map[teamSeason][]models.TeamGameStat)}
	for _, row := range stats {
		key := teamSeason{team: models.NormalizeTeam(row.Team), season: row.Season}
		idx.rows[key] = append(idx.rows[key], row)
	}
	for _, rows := range idx.rows {
		sort.Slice(rows, func(i, j int) bool {
			if rows[i].Week != rows[j].Week {
				return rows[i].Week < rows[j].Week
			}
			return rows[i].GameID < rows[j].GameID
		})
	}
	return idx
}

// Prior returns the team's rows from season with week strictly before week.
func (p *PriorIndex) Prior(team string, season, week int) []models.TeamGameStat {
	rows := p.rows[teamSeason{team: models.NormalizeTeam(team), season: season}]
	n := sort.Search(len(rows), func(i int) bool { return rows[i].Week >= week })
	out := make([]models.TeamGameStat, n)
	copy(out, rows[:n])
	return out
}
