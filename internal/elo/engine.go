package elo

import (
	"math"
	"sort"
	"time"

	"github.com/jstittsworth/nfl-predictor/internal/models"
)

// Params are the tunable constants of the rating system.
type Params struct {
	Base              float64 `json:"base_elo"`
	KFactor           float64 `json:"k_factor"`
	HomeAdvantage     float64 `json:"home_advantage"`
	MeanReversion     float64 `json:"mean_reversion"`
	PlayoffMultiplier float64 `json:"playoff_multiplier"`
}

func DefaultParams() Params {
	return Params{
		Base:              1500,
		KFactor:           20,
		HomeAdvantage:     65,
		MeanReversion:     0.33,
		PlayoffMultiplier: 1.2,
	}
}

// PointsPerSpread converts a rating gap into a point spread.
const PointsPerSpread = 25.0

// movDenominatorFloor keeps the MOV multiplier finite for absurd rating gaps.
const movDenominatorFloor = 0.1

// Prediction is the pre-game view from the ratings alone.
type Prediction struct {
	HomeRating  float64 `json:"home_rating"`
	AwayRating  float64 `json:"away_rating"`
	HomeWinProb float64 `json:"home_win_prob"`
	Spread      float64 `json:"predicted_spread"` // expected home margin in points
}

// Update describes one applied game.
type Update struct {
	HomeBefore float64
	AwayBefore float64
	HomeChange float64
	AwayChange float64
	Expected   float64
	MOV        float64
}

// Engine holds the current rating of every team seen so far. It is not safe
// for concurrent use; rebuilds run single-threaded.
type Engine struct {
	params      Params
	ratings     map[string]float64
	season      int
	games       int
	lastGame    time.Time
	history     []models.EloHistory
	keepHistory bool
}

func NewEngine(p Params) *Engine {
	return &Engine{
		params:  p,
		ratings: make(map[string]float64),
	}
}

func (e *Engine) Params() Params {
	return e.params
}

// Rating returns the team's rating, initializing unknown teams at base.
func (e *Engine) Rating(team string) float64 {
	team = models.NormalizeTeam(team)
	r, ok := e.ratings[team]
	if !ok {
		r = e.params.Base
		e.ratings[team] = r
	}
	return r
}

// Ratings returns a copy of the current ratings.
func (e *Engine) Ratings() map[string]float64 {
	out := make(map[string]float64, len(e.ratings))
	for team, r := range e.ratings {
		out[team] = r
	}
	return out
}

// Season is the last season applied, 0 before any game.
func (e *Engine) Season() int {
	return e.season
}

func (e *Engine) GamesProcessed() int {
	return e.games
}

// History returns the rating movements recorded by Apply.
func (e *Engine) History() []models.EloHistory {
	return e.history
}

func (e *Engine) adjustedHome(home float64, neutral bool) float64 {
	if neutral {
		return home
	}
	return home + e.params.HomeAdvantage
}

// ExpectedScore is the logistic expectation for a home side rated adjHome.
func ExpectedScore(adjHome, away float64) float64 {
	return 1.0 / (1.0 + math.Pow(10, (away-adjHome)/400.0))
}

// Predict gives the home win probability and point spread for a matchup.
func (e *Engine) Predict(home, away string, neutral bool) Prediction {
	h, a := e.Rating(home), e.Rating(away)
	adj := e.adjustedHome(h, neutral)
	return Prediction{
		HomeRating:  h,
		AwayRating:  a,
		HomeWinProb: ExpectedScore(adj, a),
		Spread:      (adj - a) / PointsPerSpread,
	}
}

// MOVMultiplier scales K by the margin of victory, damped when the winner was
// already the stronger side. Ratings are home-advantage adjusted.
func MOVMultiplier(pointDiff int, winnerElo, loserElo float64) float64 {
	diff := math.Abs(float64(pointDiff))
	denom := (winnerElo-loserElo)*0.001 + 2.2
	if denom < movDenominatorFloor {
		denom = movDenominatorFloor
	}
	return math.Log(diff+1) * 2.2 / denom
}

// Update applies one result. Ties produce no change because the MOV
// multiplier of a zero margin is zero.
func (e *Engine) Update(home, away string, homeScore, awayScore int, neutral, playoff bool) Update {
	home, away = models.NormalizeTeam(home), models.NormalizeTeam(away)
	h, a := e.Rating(home), e.Rating(away)
	adj := e.adjustedHome(h, neutral)
	expected := ExpectedScore(adj, a)

	actual := 0.5
	winnerElo, loserElo := adj, a
	switch {
	case homeScore > awayScore:
		actual = 1
	case homeScore < awayScore:
		actual = 0
		winnerElo, loserElo = a, adj
	}

	mov := MOVMultiplier(homeScore-awayScore, winnerElo, loserElo)
	k := e.params.KFactor * mov
	if playoff {
		k *= e.params.PlayoffMultiplier
	}

	change := k * (actual - expected)
	e.ratings[home] = h + change
	e.ratings[away] = a - change

	return Update{
		HomeBefore: h,
		AwayBefore: a,
		HomeChange: change,
		AwayChange: -change,
		Expected:   expected,
		MOV:        mov,
	}
}

// RegressToMean pulls every rating toward base by fraction m.
func (e *Engine) RegressToMean(m float64) {
	for team, r := range e.ratings {
		e.ratings[team] = r*(1-m) + e.params.Base*m
	}
}

// PreGame returns the engine as it stands before the first game of season.
// When season is past the last one applied, a copy is regressed toward base
// the same way Apply does at a season boundary; otherwise e itself is
// returned. The receiver is never modified.
func (e *Engine) PreGame(season int) *Engine {
	if e.season == 0 || season <= e.season {
		return e
	}
	c := &Engine{
		params:   e.params,
		ratings:  make(map[string]float64, len(e.ratings)),
		season:   season,
		games:    e.games,
		lastGame: e.lastGame,
	}
	for team, r := range e.ratings {
		c.ratings[team] = r
	}
	c.RegressToMean(c.params.MeanReversion)
	return c
}

// Apply processes a completed game in chronological order, regressing all
// ratings at the first game of a new season.
func (e *Engine) Apply(g models.Game) (Update, bool) {
	if !g.IsPlayed() {
		return Update{}, false
	}
	if e.season != 0 && g.Season > e.season {
		e.RegressToMean(e.params.MeanReversion)
	}
	if g.Season > e.season {
		e.season = g.Season
	}

	u := e.Update(g.HomeTeam, g.AwayTeam, *g.HomeScore, *g.AwayScore, g.IsNeutral(), g.IsPostseason())
	e.games++
	if g.Kickoff.After(e.lastGame) {
		e.lastGame = g.Kickoff
	}

	if e.keepHistory {
		e.history = append(e.history,
			historyRow(g, models.NormalizeTeam(g.HomeTeam), u.HomeBefore, u.HomeChange),
			historyRow(g, models.NormalizeTeam(g.AwayTeam), u.AwayBefore, u.AwayChange),
		)
	}
	return u, true
}

func historyRow(g models.Game, team string, before, change float64) models.EloHistory {
	return models.EloHistory{
		Team:         team,
		GameID:       g.GameID,
		Season:       g.Season,
		Week:         g.Week,
		GameDate:     g.Kickoff,
		RatingBefore: before,
		RatingAfter:  before + change,
		Change:       change,
	}
}

// Rebuild replays completed games from fromSeason onward on a clean engine.
// Input order does not matter; games are sorted chronologically first.
func Rebuild(p Params, games []models.Game, fromSeason int) *Engine {
	ordered := make([]models.Game, 0, len(games))
	for _, g := range games {
		if g.Season >= fromSeason && g.IsPlayed() {
			ordered = append(ordered, g)
		}
	}
	sort.SliceStable(ordered, func(i, j int) bool { return ordered[i].Before(ordered[j]) })

	e := NewEngine(p)
	e.keepHistory = true
	for _, g := range ordered {
		e.Apply(g)
	}
	return e
}
