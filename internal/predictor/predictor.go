package predictor

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/jstittsworth/nfl-predictor/internal/artifacts"
	"github.com/jstittsworth/nfl-predictor/internal/elo"
	"github.com/jstittsworth/nfl-predictor/internal/features"
	"github.com/jstittsworth/nfl-predictor/internal/metrics"
	"github.com/jstittsworth/nfl-predictor/internal/models"
	"github.com/jstittsworth/nfl-predictor/pkg/logger"
	"github.com/jstittsworth/nfl-predictor/pkg/utils"
	"github.com/sirupsen/logrus"
	"gonum.org/v1/gonum/stat/distuv"
)

// GameSource is the slice of the game store a prediction batch needs.
type GameSource interface {
	FetchScheduledGames(ctx context.Context, season, week int) ([]models.Game, error)
	FetchPriorGamesForTeam(ctx context.Context, team string, season, week int) ([]models.TeamGameStat, error)
	UpsertPrediction(ctx context.Context, p *models.MLPrediction) error
}

// FallbackSource picks the probability source for games without in-season history.
type FallbackSource string

const (
	FallbackElo    FallbackSource = "elo"
	FallbackMarket FallbackSource = "market"
)

type Options struct {
	Fallback    FallbackSource
	EnableBlend bool
	// MarginSigma is the spread of actual margins around the predicted one.
	MarginSigma float64
}

func DefaultOptions() Options {
	return Options{Fallback: FallbackElo, MarginSigma: 13.5}
}

// Skip records why a game in a batch produced no prediction.
type Skip struct {
	GameID string `json:"game_id"`
	Reason string `json:"reason"`
	Error  string `json:"error,omitempty"`
}

// Predictor turns scheduled games into predictions with one loaded model set.
type Predictor struct {
	source  GameSource
	set     *artifacts.ModelSet
	elo     *elo.Engine
	builder *features.Builder
	clfIdx  []int
	regIdx  []int
	opts    Options
	margin  distuv.Normal
	logger  *logrus.Logger
	now     func() time.Time
}

// New checks that the model set matches the current feature layout. The Elo
// snapshot is required when it is the fallback source or the blend is on.
func New(source GameSource, set *artifacts.ModelSet, snap *elo.Snapshot, opts Options, log *logrus.Logger) (*Predictor, error) {
	if set == nil {
		return nil, fmt.Errorf("no model set loaded: %w", utils.ErrMissingArtifact)
	}
	layout := features.Names()
	if !equalNames(set.Scaler.Features, layout) {
		return nil, fmt.Errorf("run %s was trained on a different feature layout (%d columns, expected %d): %w",
			set.Version, len(set.Scaler.Features), len(layout), utils.ErrMissingArtifact)
	}
	clfIdx, missing, ok := features.Indices(layout, set.ClassifierFeatures)
	if !ok {
		return nil, fmt.Errorf("classifier feature %s not in layout: %w", missing, utils.ErrMissingArtifact)
	}
	regIdx, missing, ok := features.Indices(layout, set.RegressorFeatures)
	if !ok {
		return nil, fmt.Errorf("regressor feature %s not in layout: %w", missing, utils.ErrMissingArtifact)
	}

	if opts.Fallback == "" {
		opts.Fallback = FallbackElo
	}
	if opts.MarginSigma <= 0 {
		opts.MarginSigma = DefaultOptions().MarginSigma
	}

	p := &Predictor{
		source:  source,
		set:     set,
		builder: features.NewBuilder(features.WeightRecency),
		clfIdx:  clfIdx,
		regIdx:  regIdx,
		opts:    opts,
		margin:  distuv.Normal{Mu: 0, Sigma: opts.MarginSigma},
		logger:  log,
		now:     func() time.Time { return time.Now().UTC() },
	}
	if snap != nil {
		p.elo = elo.FromSnapshot(*snap)
	}
	if p.elo == nil && (opts.Fallback == FallbackElo || opts.EnableBlend) {
		return nil, fmt.Errorf("elo snapshot required for fallback %q / blend: %w", opts.Fallback, utils.ErrMissingArtifact)
	}
	return p, nil
}

func equalNames(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// ModelVersion is the run the predictor was built from.
func (p *Predictor) ModelVersion() string {
	return p.set.Version
}

// PredictWeek predicts and upserts every unplayed game of the week, or every
// game when includePlayed is set. Per-game feature failures are skipped;
// store failures and numeric anomalies abort the batch.
func (p *Predictor) PredictWeek(ctx context.Context, season, week int, includePlayed bool) ([]models.MLPrediction, []Skip, error) {
	log := logger.WithComponent(p.logger, "predictor")
	games, err := p.source.FetchScheduledGames(ctx, season, week)
	if err != nil {
		return nil, nil, err
	}

	var out []models.MLPrediction
	var skips []Skip
	var firstFailure error
	for _, g := range games {
		glog := logger.WithGame(log, g.GameID, g.Season, g.Week)
		if g.IsPlayed() && !includePlayed {
			skips = append(skips, Skip{GameID: g.GameID, Reason: metrics.ReasonPlayed})
			metrics.PredictionsSkipped.WithLabelValues(metrics.ReasonPlayed).Inc()
			continue
		}

		pred, err := p.predictScheduled(ctx, g)
		if err != nil {
			if errors.Is(err, utils.ErrStoreUnavailable) {
				metrics.PredictionsSkipped.WithLabelValues(metrics.ReasonStoreError).Inc()
				return nil, skips, err
			}
			if errors.Is(err, utils.ErrNumericAnomaly) {
				return nil, skips, err
			}
			skips = append(skips, Skip{GameID: g.GameID, Reason: metrics.ReasonFeatureError, Error: err.Error()})
			metrics.PredictionsSkipped.WithLabelValues(metrics.ReasonFeatureError).Inc()
			glog.WithFields(logrus.Fields{"reason": metrics.ReasonFeatureError, "error": err.Error()}).Warn("Skipping game")
			if firstFailure == nil {
				firstFailure = err
			}
			continue
		}

		if err := p.source.UpsertPrediction(ctx, &pred); err != nil {
			return nil, skips, err
		}
		metrics.PredictionsGenerated.Inc()
		out = append(out, pred)
	}

	if len(out) == 0 && firstFailure != nil {
		return nil, skips, fmt.Errorf("no predictions for season %d week %d: %w", season, week, firstFailure)
	}
	log.WithFields(logrus.Fields{
		"season":    season,
		"week":      week,
		"predicted": len(out),
		"skipped":   len(skips),
		"version":   p.set.Version,
	}).Info("Prediction batch complete")
	return out, skips, nil
}

func (p *Predictor) predictScheduled(ctx context.Context, g models.Game) (models.MLPrediction, error) {
	homePrior, err := p.source.FetchPriorGamesForTeam(ctx, g.HomeTeam, g.Season, g.Week)
	if err != nil {
		return models.MLPrediction{}, err
	}
	awayPrior, err := p.source.FetchPriorGamesForTeam(ctx, g.AwayTeam, g.Season, g.Week)
	if err != nil {
		return models.MLPrediction{}, err
	}
	return p.Predict(g, homePrior, awayPrior)
}

// MarketLines are optional pre-game lines for an ad-hoc matchup. Spread uses
// the negative-favors-home convention.
type MarketLines struct {
	Spread        *float64 `json:"spread_line,omitempty"`
	Total         *float64 `json:"total_line,omitempty"`
	HomeMoneyline *float64 `json:"home_moneyline,omitempty"`
	AwayMoneyline *float64 `json:"away_moneyline,omitempty"`
	Neutral       bool     `json:"neutral,omitempty"`
}

// PredictGame predicts a single matchup without persisting it.
func (p *Predictor) PredictGame(ctx context.Context, season, week int, home, away string, lines MarketLines) (models.MLPrediction, error) {
	home, away = models.NormalizeTeam(home), models.NormalizeTeam(away)
	if season <= 0 || week <= 0 || home == "" || away == "" || home == away {
		return models.MLPrediction{}, fmt.Errorf("matchup %s@%s season %d week %d: %w", away, home, season, week, utils.ErrInvalidInput)
	}
	g := models.Game{
		GameID:        fmt.Sprintf("%d_%02d_%s_%s", season, week, away, home),
		Season:        season,
		Week:          week,
		HomeTeam:      home,
		AwayTeam:      away,
		SpreadLine:    lines.Spread,
		TotalLine:     lines.Total,
		HomeMoneyline: lines.HomeMoneyline,
		AwayMoneyline: lines.AwayMoneyline,
		Location:      "Home",
	}
	if lines.Neutral {
		g.Location = "Neutral"
	}
	return p.predictScheduled(ctx, g)
}

// Predict produces the prediction for g from each side's prior rows. Missing
// in-season history switches to the configured fallback.
func (p *Predictor) Predict(g models.Game, homePrior, awayPrior []models.TeamGameStat) (models.MLPrediction, error) {
	ex, err := p.builder.Build(g, homePrior, awayPrior)
	if errors.Is(err, utils.ErrInsufficientHistory) {
		return p.fallback(g), nil
	}
	if err != nil {
		return models.MLPrediction{}, err
	}

	scaled, err := p.set.Scaler.TransformRow(ex.Features)
	if err != nil {
		return models.MLPrediction{}, fmt.Errorf("scale %s: %v: %w", g.GameID, err, utils.ErrMissingArtifact)
	}
	if err := features.CheckFinite(g.GameID, p.set.Scaler.Features, scaled); err != nil {
		p.logger.WithFields(logrus.Fields{
			"component": "predictor",
			"game_id":   g.GameID,
			"error":     err.Error(),
		}).Error("Non-finite scaled feature")
		return models.MLPrediction{}, err
	}

	homeProb, err := p.set.Classifier.PredictProbaRow(features.Select(scaled, p.clfIdx))
	if err != nil {
		return models.MLPrediction{}, fmt.Errorf("classifier %s: %v: %w", g.GameID, err, utils.ErrMissingArtifact)
	}
	margin, err := p.set.Regressor.PredictRow(features.Select(scaled, p.regIdx))
	if err != nil {
		return models.MLPrediction{}, fmt.Errorf("regressor %s: %v: %w", g.GameID, err, utils.ErrMissingArtifact)
	}
	if math.IsNaN(homeProb) || math.IsNaN(margin) {
		return models.MLPrediction{}, fmt.Errorf("game %s model output prob=%v margin=%v: %w", g.GameID, homeProb, margin, utils.ErrNumericAnomaly)
	}

	pred := p.assemble(g, homeProb, margin, models.SourceModel)
	pred.ModelHomeProb = ptr(homeProb)
	// the snapshot already holds the result of a played game
	if p.elo != nil && !g.IsPlayed() {
		eloProb := p.eloPredict(g).HomeWinProb
		pred.EloHomeProb = ptr(eloProb)
		if p.opts.EnableBlend {
			b := blend(eloProb, homeProb, *pred.MarketHomeProb)
			setProbs(&pred, b.HomeProb)
			pred.IsSplitPrediction = b.Split
		}
	}
	return pred, nil
}

func (p *Predictor) fallback(g models.Game) models.MLPrediction {
	var pred models.MLPrediction
	if p.opts.Fallback == FallbackMarket {
		spread := features.DefaultSpread
		if g.SpreadLine != nil {
			spread = *g.SpreadLine
		}
		pred = p.assemble(g, MarketHomeProb(spread), -spread, models.SourceMarketFallback)
	} else {
		e := p.eloPredict(g)
		pred = p.assemble(g, e.HomeWinProb, e.Spread, models.SourceEloFallback)
	}
	if p.elo != nil && !g.IsPlayed() {
		pred.EloHomeProb = ptr(p.eloPredict(g).HomeWinProb)
	}
	return pred
}

// eloPredict rates g with the ratings as they stand before its season,
// regressing the snapshot when g opens a season it has not seen.
func (p *Predictor) eloPredict(g models.Game) elo.Prediction {
	return p.elo.PreGame(g.Season).Predict(g.HomeTeam, g.AwayTeam, g.IsNeutral())
}

// assemble derives every output column from a home win probability and an
// expected home margin. The winner follows the margin's sign; a zero margin
// goes to the away side.
func (p *Predictor) assemble(g models.Game, homeProb, margin float64, source string) models.MLPrediction {
	total := features.DefaultTotal
	if g.TotalLine != nil {
		total = *g.TotalLine
	}
	spread := features.DefaultSpread
	if g.SpreadLine != nil {
		spread = *g.SpreadLine
	}
	homeScore := (total + margin) / 2

	winner := models.NormalizeTeam(g.AwayTeam)
	if margin > 0 {
		winner = models.NormalizeTeam(g.HomeTeam)
	}

	pred := models.MLPrediction{
		GameID:             g.GameID,
		Season:             g.Season,
		Week:               g.Week,
		HomeTeam:           models.NormalizeTeam(g.HomeTeam),
		AwayTeam:           models.NormalizeTeam(g.AwayTeam),
		PredictedWinner:    winner,
		PredictedHomeScore: homeScore,
		PredictedAwayScore: total - homeScore,
		PredictedMargin:    margin,
		AISpread:           -margin,
		VegasSpread:        g.SpreadLine,
		VegasTotal:         g.TotalLine,
		PredictionSource:   source,
		ModelVersion:       p.set.Version,
		MarketHomeProb:     ptr(MarketHomeProb(spread)),
		MarginWinProb:      ptr(p.margin.CDF(margin)),
		PredictedAt:        p.now(),
	}
	setProbs(&pred, homeProb)
	return pred
}

func setProbs(pred *models.MLPrediction, homeProb float64) {
	homeProb = clamp(homeProb, 0, 1)
	pred.HomeWinProb = homeProb
	pred.AwayWinProb = 1 - homeProb
	pred.WinConfidence = math.Max(pred.HomeWinProb, pred.AwayWinProb)
}

func ptr(v float64) *float64 { return &v }
