package features

import (
	"fmt"
	"math"
	"sort"

	"github.com/jstittsworth/nfl-predictor/internal/models"
	"github.com/jstittsworth/nfl-predictor/pkg/utils"
)

// Example is one feature row for a target game. Labels are only set when the
// target game has been played.
type Example struct {
	GameID       string
	Season       int
	Week         int
	HomeTeam     string
	AwayTeam     string
	Features     []float64
	HasLabels    bool
	LabelWinner  int
	LabelMargin  float64
	SampleWeight float64
}

// Builder turns a target game plus each side's prior stat rows into an Example.
// It holds no state besides the weight scheme and never reads the clock.
type Builder struct {
	scheme WeightScheme
}

func NewBuilder(scheme WeightScheme) *Builder {
	if scheme == "" {
		scheme = WeightRecency
	}
	return &Builder{scheme: scheme}
}

// Build emits the feature row for target. Every prior row must be from the
// target's season and an earlier week; anything else is treated as leakage.
func (b *Builder) Build(target models.Game, homePrior, awayPrior []models.TeamGameStat) (Example, error) {
	home := models.NormalizeTeam(target.HomeTeam)
	away := models.NormalizeTeam(target.AwayTeam)
	if home == "" || away == "" || home == away {
		return Example{}, fmt.Errorf("game %s has teams %q/%q: %w", target.GameID, home, away, utils.ErrInvalidInput)
	}

	if err := checkPrior(target, home, homePrior); err != nil {
		return Example{}, err
	}
	if err := checkPrior(target, away, awayPrior); err != nil {
		return Example{}, err
	}
	if len(homePrior) == 0 || len(awayPrior) == 0 {
		return Example{}, fmt.Errorf("game %s (%d week %d) home=%d away=%d prior games: %w",
			target.GameID, target.Season, target.Week, len(homePrior), len(awayPrior), utils.ErrInsufficientHistory)
	}

	h := summarize(homePrior)
	a := summarize(awayPrior)

	row := make([]float64, 0, Width())
	row = append(row, h.values()...)
	row = append(row, a.values()...)
	row = append(row,
		h.epaSeason-a.epaSeason,
		h.ppgSeason-a.ppgSeason,
		h.successSeason-a.successSeason,
	)
	row = append(row, marketValues(target)...)

	for i, v := range row {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			row[i] = 0
		}
	}

	ex := Example{
		GameID:       target.GameID,
		Season:       target.Season,
		Week:         target.Week,
		HomeTeam:     home,
		AwayTeam:     away,
		Features:     row,
		SampleWeight: b.scheme.Weight(target.Season),
	}
	if margin, ok := target.Margin(); ok {
		ex.HasLabels = true
		ex.LabelMargin = float64(margin)
		if margin > 0 {
			ex.LabelWinner = 1
		}
	}
	return ex, nil
}

func checkPrior(target models.Game, team string, rows []models.TeamGameStat) error {
	for _, r := range rows {
		if r.Season != target.Season || r.Week >= target.Week {
			return fmt.Errorf("stat row %s/%s (%d week %d) is not before game %s (%d week %d): %w",
				r.GameID, r.Team, r.Season, r.Week, target.GameID, target.Season, target.Week, utils.ErrLeakageDetected)
		}
		if r.GameID == target.GameID {
			return fmt.Errorf("stat row for target game %s: %w", target.GameID, utils.ErrLeakageDetected)
		}
		if models.NormalizeTeam(r.Team) != team {
			return fmt.Errorf("stat row %s belongs to %s, expected %s: %w", r.GameID, r.Team, team, utils.ErrInvalidInput)
		}
	}
	return nil
}

type sideSummary struct {
	ppgSeason, ypgSeason, tpgSeason       float64
	epaSeason, successSeason              float64
	passEPASeason, rushEPASeason          float64
	wpaSeason, yppSeason                  float64
	thirdDownSeason, redZoneSeason, topPc float64
	epaL5, ppgL5, epaL3                   float64
	gamesPlayed                           float64
}

// values follows the order of sideStats.
func (s sideSummary) values() []float64 {
	return []float64{
		s.ppgSeason, s.ypgSeason, s.tpgSeason,
		s.epaSeason, s.successSeason,
		s.passEPASeason, s.rushEPASeason,
		s.wpaSeason, s.yppSeason,
		s.thirdDownSeason, s.redZoneSeason, s.topPc,
		s.epaL5, s.ppgL5, s.epaL3,
		s.gamesPlayed,
	}
}

func summarize(rows []models.TeamGameStat) sideSummary {
	sorted := make([]models.TeamGameStat, len(rows))
	copy(sorted, rows)
	sort.SliceStable(sorted, func(i, j int) bool {
		if sorted[i].Week != sorted[j].Week {
			return sorted[i].Week < sorted[j].Week
		}
		return sorted[i].GameID < sorted[j].GameID
	})

	season := func(f statField) float64 { return presentMean(sorted, f) }
	last := func(n int, f statField) float64 {
		if len(sorted) > n {
			return presentMean(sorted[len(sorted)-n:], f)
		}
		return presentMean(sorted, f)
	}

	return sideSummary{
		ppgSeason:       season(func(r models.TeamGameStat) *float64 { return r.Points }),
		ypgSeason:       season(func(r models.TeamGameStat) *float64 { return r.TotalYards }),
		tpgSeason:       season(func(r models.TeamGameStat) *float64 { return r.Turnovers }),
		epaSeason:       season(epaPerPlay),
		successSeason:   season(func(r models.TeamGameStat) *float64 { return r.SuccessRate }),
		passEPASeason:   season(func(r models.TeamGameStat) *float64 { return r.PassEPA }),
		rushEPASeason:   season(func(r models.TeamGameStat) *float64 { return r.RushEPA }),
		wpaSeason:       season(func(r models.TeamGameStat) *float64 { return r.WPA }),
		yppSeason:       season(func(r models.TeamGameStat) *float64 { return r.YardsPerPlay }),
		thirdDownSeason: season(func(r models.TeamGameStat) *float64 { return r.ThirdDownPct }),
		redZoneSeason:   season(func(r models.TeamGameStat) *float64 { return r.RedZonePct }),
		topPc:           season(func(r models.TeamGameStat) *float64 { return r.TimeOfPossessionPct }),
		epaL5:           last(5, epaPerPlay),
		ppgL5:           last(5, func(r models.TeamGameStat) *float64 { return r.Points }),
		epaL3:           last(3, epaPerPlay),
		gamesPlayed:     float64(len(sorted)),
	}
}

type statField func(models.TeamGameStat) *float64

func epaPerPlay(r models.TeamGameStat) *float64 { return r.EPAPerPlay }

// presentMean averages the non-nil values; with none present it returns 0.
func presentMean(rows []models.TeamGameStat, f statField) float64 {
	sum, n := 0.0, 0
	for _, r := range rows {
		if v := f(r); v != nil {
			sum += *v
			n++
		}
	}
	if n == 0 {
		return 0
	}
	return sum / float64(n)
}

func marketValues(g models.Game) []float64 {
	value := func(p *float64, def float64) float64 {
		if p == nil {
			return def
		}
		return *p
	}
	return []float64{
		value(g.SpreadLine, DefaultSpread),
		value(g.TotalLine, DefaultTotal),
		value(g.HomeMoneyline, DefaultHomeMoneyline),
		value(g.AwayMoneyline, DefaultAwayMoneyline),
	}
}

// CheckFinite fails with ErrNumericAnomaly naming the first non-finite column.
func CheckFinite(gameID string, names []string, row []float64) error {
	for i, v := range row {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			name := fmt.Sprintf("col_%d", i)
			if i < len(names) {
				name = names[i]
			}
			return fmt.Errorf("game %s feature %s = %v: %w", gameID, name, v, utils.ErrNumericAnomaly)
		}
	}
	return nil
}
