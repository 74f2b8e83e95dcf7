package features

import (
	"math"
	"testing"

	"github.com/jstittsworth/nfl-predictor/internal/models"
	"github.com/jstittsworth/nfl-predictor/pkg/utils"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func f(v float64) *float64 { return &v }
func i(v int) *int         { return &v }

func statRows(team string, season int, weeks int, epa, points float64) []models.TeamGameStat {
	rows := make([]models.TeamGameStat, 0, weeks)
	for w := 1; w <= weeks; w++ {
		rows = append(rows, models.TeamGameStat{
			GameID:      team + "_" + string(rune('a'+w)),
			Team:        team,
			Season:      season,
			Week:        w,
			Points:      f(points + float64(w)),
			TotalYards:  f(350),
			Turnovers:   f(1),
			EPAPerPlay:  f(epa * float64(w)),
			SuccessRate: f(0.45),
			PassEPA:     f(0.1),
			RushEPA:     f(-0.02),
		})
	}
	return rows
}

func column(t *testing.T, ex Example, name string) float64 {
	t.Helper()
	idx, missing, ok := Indices(Names(), []string{name})
	require.True(t, ok, "unknown feature %s", missing)
	return ex.Features[idx[0]]
}

func TestLayout(t *testing.T) {
	names := Names()
	assert.Equal(t, 39, Width())
	assert.Len(t, names, Width())
	assert.Equal(t, "home_ppg_season", names[0])
	assert.Equal(t, "away_moneyline", names[len(names)-1])
	assert.NotContains(t, names, "season")
	assert.NotContains(t, names, "week")

	seen := map[string]bool{}
	for _, n := range names {
		assert.False(t, seen[n], "duplicate feature %s", n)
		seen[n] = true
	}

	reg := RegressorNames()
	assert.Len(t, reg, Width()-2)
	assert.NotContains(t, reg, "home_moneyline")
	assert.NotContains(t, reg, "away_moneyline")

	_, missing, ok := Indices(names, []string{"spread_line", "home_score"})
	assert.False(t, ok)
	assert.Equal(t, "home_score", missing)
}

func TestBuild_WeekOneIsInsufficientHistory(t *testing.T) {
	b := NewBuilder(WeightRecency)
	target := models.Game{GameID: "2025_01_BUF_KC", Season: 2025, Week: 1, HomeTeam: "KC", AwayTeam: "BUF"}

	_, err := b.Build(target, nil, nil)
	assert.ErrorIs(t, err, utils.ErrInsufficientHistory)

	_, err = b.Build(target, statRows("KC", 2025, 0, 0, 0), nil)
	assert.ErrorIs(t, err, utils.ErrInsufficientHistory)
}

func TestBuild_WeekFive(t *testing.T) {
	b := NewBuilder(WeightRecency)
	target := models.Game{GameID: "2025_05_BUF_KC", Season: 2025, Week: 5, HomeTeam: "KC", AwayTeam: "BUF"}
	home := statRows("KC", 2025, 4, 0.05, 20)
	away := statRows("BUF", 2025, 4, 0.02, 17)

	ex, err := b.Build(target, home, away)
	require.NoError(t, err)

	assert.Len(t, ex.Features, Width())
	for idx, v := range ex.Features {
		assert.False(t, math.IsNaN(v) || math.IsInf(v, 0), "feature %d not finite", idx)
	}
	assert.Equal(t, 4.0, column(t, ex, "home_games_played"))
	assert.Equal(t, 4.0, column(t, ex, "away_games_played"))
	assert.InDelta(t,
		column(t, ex, "home_epa_season")-column(t, ex, "away_epa_season"),
		column(t, ex, "epa_differential"), 1e-12)

	// epa = 0.05 * week, weeks 1..4
	assert.InDelta(t, 0.125, column(t, ex, "home_epa_season"), 1e-12)
	assert.InDelta(t, 0.15, column(t, ex, "home_epa_l3"), 1e-12)
	assert.InDelta(t, 0.125, column(t, ex, "home_epa_l5"), 1e-12)
	assert.InDelta(t, 22.5, column(t, ex, "home_ppg_season"), 1e-12)

	assert.False(t, ex.HasLabels)
	assert.Equal(t, 1.0, ex.SampleWeight)
}

func TestBuild_MissingStatsAreZeroFilled(t *testing.T) {
	b := NewBuilder(WeightRecency)
	target := models.Game{GameID: "2008_03_X", Season: 2008, Week: 3, HomeTeam: "NE", AwayTeam: "NYJ"}
	home := []models.TeamGameStat{{GameID: "h1", Team: "NE", Season: 2008, Week: 1, Points: f(24)}}
	away := []models.TeamGameStat{{GameID: "a1", Team: "NYJ", Season: 2008, Week: 2}}

	ex, err := b.Build(target, home, away)
	require.NoError(t, err)

	assert.Equal(t, 0.0, column(t, ex, "home_epa_season"))
	assert.Equal(t, 0.0, column(t, ex, "away_ppg_season"))
	assert.Equal(t, 24.0, column(t, ex, "ppg_differential"))
	assert.NoError(t, CheckFinite(ex.GameID, Names(), ex.Features))
	assert.Equal(t, 0.2, ex.SampleWeight)
}

func TestBuild_MarketDefaultsAndLines(t *testing.T) {
	b := NewBuilder(WeightRecency)
	home := statRows("KC", 2025, 2, 0.1, 20)
	away := statRows("BUF", 2025, 2, 0.1, 20)

	ex, err := b.Build(models.Game{GameID: "g", Season: 2025, Week: 3, HomeTeam: "KC", AwayTeam: "BUF"}, home, away)
	require.NoError(t, err)
	assert.Equal(t, DefaultSpread, column(t, ex, "spread_line"))
	assert.Equal(t, DefaultTotal, column(t, ex, "total_line"))
	assert.Equal(t, DefaultHomeMoneyline, column(t, ex, "home_moneyline"))
	assert.Equal(t, DefaultAwayMoneyline, column(t, ex, "away_moneyline"))

	ex, err = b.Build(models.Game{
		GameID: "g", Season: 2025, Week: 3, HomeTeam: "KC", AwayTeam: "BUF",
		SpreadLine: f(-3), TotalLine: f(51.5), HomeMoneyline: f(-160), AwayMoneyline: f(140),
		HomeScore: i(27), AwayScore: i(24),
	}, home, away)
	require.NoError(t, err)
	assert.Equal(t, -3.0, column(t, ex, "spread_line"))
	assert.Equal(t, 51.5, column(t, ex, "total_line"))
	assert.True(t, ex.HasLabels)
	assert.Equal(t, 1, ex.LabelWinner)
	assert.Equal(t, 3.0, ex.LabelMargin)
}

func TestBuild_RejectsRowsFromTargetWeekOrLater(t *testing.T) {
	b := NewBuilder(WeightRecency)
	target := models.Game{GameID: "2025_05_BUF_KC", Season: 2025, Week: 5, HomeTeam: "KC", AwayTeam: "BUF"}

	tests := []struct {
		name string
		row  models.TeamGameStat
	}{
		{"same week", models.TeamGameStat{GameID: "x", Team: "KC", Season: 2025, Week: 5}},
		{"later week", models.TeamGameStat{GameID: "x", Team: "KC", Season: 2025, Week: 7}},
		{"previous season", models.TeamGameStat{GameID: "x", Team: "KC", Season: 2024, Week: 2}},
		{"target game", models.TeamGameStat{GameID: "2025_05_BUF_KC", Team: "KC", Season: 2025, Week: 4}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := b.Build(target, []models.TeamGameStat{tt.row}, statRows("BUF", 2025, 2, 0, 0))
			assert.ErrorIs(t, err, utils.ErrLeakageDetected)
		})
	}
}

func TestBuild_Deterministic(t *testing.T) {
	b := NewBuilder(WeightTripartite)
	target := models.Game{GameID: "g", Season: 2021, Week: 6, HomeTeam: "DAL", AwayTeam: "PHI"}
	home := statRows("DAL", 2021, 5, 0.03, 21)
	away := statRows("PHI", 2021, 5, 0.01, 18)
	// shuffled input order must not matter
	shuffled := []models.TeamGameStat{home[3], home[0], home[4], home[1], home[2]}

	first, err := b.Build(target, home, away)
	require.NoError(t, err)
	second, err := b.Build(target, shuffled, away)
	require.NoError(t, err)
	assert.Equal(t, first.Features, second.Features)
	assert.Equal(t, 2.0, first.SampleWeight)
}

func TestCheckFinite(t *testing.T) {
	err := CheckFinite("g1", []string{"a", "b"}, []float64{1, math.Inf(1)})
	assert.ErrorIs(t, err, utils.ErrNumericAnomaly)
	assert.Contains(t, err.Error(), "feature b")
}

func TestWeightSchemesAreMonotone(t *testing.T) {
	for _, scheme := range []WeightScheme{WeightRecency, WeightTripartite} {
		for s := 1999; s < 2030; s++ {
			assert.LessOrEqual(t, scheme.Weight(s), scheme.Weight(s+1), "%s %d", scheme, s)
		}
	}
	assert.Equal(t, 0.6, WeightRecency.Weight(2015))
	assert.Equal(t, 1.0, WeightTripartite.Weight(2015))

	_, err := ParseWeightScheme("flat")
	assert.Error(t, err)
}

func TestPriorIndex_StrictlyEarlierWeeks(t *testing.T) {
	stats := map[models.StatKey]models.TeamGameStat{}
	for _, row := range append(statRows("KC", 2025, 6, 0.1, 20), statRows("KC", 2024, 17, 0.1, 20)...) {
		stats[models.StatKey{GameID: row.GameID + "_" + string(rune('0'+row.Season%10)), Team: row.Team}] = row
	}
	idx := NewPriorIndex(stats)

	for week := 1; week <= 8; week++ {
		prior := idx.Prior("KC", 2025, week)
		for _, row := range prior {
			assert.Equal(t, 2025, row.Season)
			assert.Less(t, row.Week, week)
		}
		want := week - 1
		if want > 6 {
			want = 6
		}
		assert.Len(t, prior, want)
	}
	assert.Empty(t, idx.Prior("BUF", 2025, 5))
}
