package predictor

import (
	"context"
	"math"
	"testing"
	"time"

	"github.com/jstittsworth/nfl-predictor/internal/artifacts"
	"github.com/jstittsworth/nfl-predictor/internal/elo"
	"github.com/jstittsworth/nfl-predictor/internal/ml"
	"github.com/jstittsworth/nfl-predictor/internal/models"
	"github.com/jstittsworth/nfl-predictor/internal/store"
	"github.com/jstittsworth/nfl-predictor/internal/testutil"
	"github.com/jstittsworth/nfl-predictor/internal/trainer"
	"github.com/jstittsworth/nfl-predictor/pkg/utils"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/suite"
	"gonum.org/v1/gonum/stat/distuv"
)

func league() testutil.LeagueConfig {
	cfg := testutil.DefaultLeague()
	cfg.UnplayedSeason = 2025
	cfg.UnplayedWeek = 14
	return cfg
}

type PredictorTestSuite struct {
	suite.Suite
	set  *artifacts.ModelSet
	snap elo.Snapshot

	store  *store.GameStore
	league testutil.League
	ctx    context.Context
}

func (s *PredictorTestSuite) SetupSuite() {
	st, lg := testutil.NewSeededStore(s.T(), league())
	art := artifacts.NewStore(s.T().TempDir(), testutil.QuietLogger())

	opts := trainer.DefaultOptions()
	opts.MLP.HiddenLayers = []int{16, 8}
	opts.MLP.MaxIter = 30
	opts.MLP.LearningRate = 0.005
	opts.GBRT = ml.GBRTConfig{NTrees: 10, MaxDepth: 3, LearningRate: 0.1}
	_, err := trainer.New(st, art, opts, testutil.QuietLogger()).Train(context.Background())
	s.Require().NoError(err)

	s.set, err = art.LoadModels()
	s.Require().NoError(err)

	var played []models.Game
	for _, g := range lg.Games {
		if g.IsPlayed() {
			played = append(played, g)
		}
	}
	s.snap = elo.Rebuild(elo.DefaultParams(), played, 2020).Snapshot(time.Now())
}

func (s *PredictorTestSuite) SetupTest() {
	s.ctx = context.Background()
	s.store, s.league = testutil.NewSeededStore(s.T(), league())
}

func (s *PredictorTestSuite) newPredictor(opts Options) *Predictor {
	p, err := New(s.store, s.set, &s.snap, opts, testutil.QuietLogger())
	s.Require().NoError(err)
	return p
}

func (s *PredictorTestSuite) assertConsistent(p models.MLPrediction) {
	s.InDelta(1.0, p.HomeWinProb+p.AwayWinProb, 1e-9, p.GameID)
	s.InDelta(math.Max(p.HomeWinProb, p.AwayWinProb), p.WinConfidence, 1e-9, p.GameID)
	s.GreaterOrEqual(p.WinConfidence, 0.5)
	s.Equal(-p.PredictedMargin, p.AISpread)
	s.InDelta(p.PredictedMargin, p.PredictedHomeScore-p.PredictedAwayScore, 1e-9)
	if p.PredictedMargin > 0 {
		s.Equal(p.HomeTeam, p.PredictedWinner, p.GameID)
	} else {
		s.Equal(p.AwayTeam, p.PredictedWinner, p.GameID)
	}
	s.Require().NotNil(p.MarginWinProb)
	s.InDelta(distuv.Normal{Mu: 0, Sigma: 13.5}.CDF(p.PredictedMargin), *p.MarginWinProb, 1e-12)
}

func (s *PredictorTestSuite) TestPredictWeek_UnplayedGamesUseModel() {
	p := s.newPredictor(DefaultOptions())

	preds, skips, err := p.PredictWeek(s.ctx, 2025, 14, false)
	s.Require().NoError(err)
	s.Empty(skips)
	s.Len(preds, 4)
	for _, pred := range preds {
		s.Equal(models.SourceModel, pred.PredictionSource)
		s.Equal(s.set.Version, pred.ModelVersion)
		s.NotNil(pred.ModelHomeProb)
		s.NotNil(pred.EloHomeProb)
		s.NotNil(pred.VegasSpread)
		s.False(pred.IsSplitPrediction)
		s.InDelta(*pred.ModelHomeProb, pred.HomeWinProb, 1e-12)
		s.assertConsistent(pred)
	}

	stored, err := s.store.ListPredictions(s.ctx, 2025, 14)
	s.Require().NoError(err)
	s.Len(stored, 4)
}

func (s *PredictorTestSuite) TestPredictWeek_RerunIsIdempotent() {
	p := s.newPredictor(DefaultOptions())

	first, _, err := p.PredictWeek(s.ctx, 2025, 14, false)
	s.Require().NoError(err)
	second, _, err := p.PredictWeek(s.ctx, 2025, 14, false)
	s.Require().NoError(err)

	stored, err := s.store.ListPredictions(s.ctx, 2025, 14)
	s.Require().NoError(err)
	s.Len(stored, 4)
	for i := range first {
		s.Equal(first[i].PredictedMargin, second[i].PredictedMargin)
		s.Equal(first[i].HomeWinProb, second[i].HomeWinProb)
	}
}

func (s *PredictorTestSuite) TestPredictWeek_SkipsPlayedGames() {
	p := s.newPredictor(DefaultOptions())

	preds, skips, err := p.PredictWeek(s.ctx, 2025, 5, false)
	s.Require().NoError(err)
	s.Empty(preds)
	s.Len(skips, 4)
	for _, sk := range skips {
		s.Equal("played", sk.Reason)
	}

	preds, _, err = p.PredictWeek(s.ctx, 2025, 5, true)
	s.Require().NoError(err)
	s.Len(preds, 4)
}

func (s *PredictorTestSuite) TestPredictWeek_WeekOneFallsBackToElo() {
	p := s.newPredictor(DefaultOptions())
	engine := elo.FromSnapshot(s.snap).PreGame(2025)

	preds, _, err := p.PredictWeek(s.ctx, 2025, 1, true)
	s.Require().NoError(err)
	s.Len(preds, 4)
	for _, pred := range preds {
		s.Equal(models.SourceEloFallback, pred.PredictionSource)
		s.Nil(pred.ModelHomeProb)
		s.Nil(pred.EloHomeProb)
		want := engine.Predict(pred.HomeTeam, pred.AwayTeam, false)
		s.InDelta(want.HomeWinProb, pred.HomeWinProb, 1e-12)
		s.InDelta(want.Spread, pred.PredictedMargin, 1e-12)
		s.assertConsistent(pred)
	}
}

func (s *PredictorTestSuite) TestPredictGame_NewSeasonRegressesRatings() {
	snap := elo.Snapshot{
		Ratings:           map[string]float64{"KC": 1700, "BUF": 1300},
		BaseElo:           1500,
		KFactor:           20,
		HomeAdvantage:     65,
		MeanReversion:     0.33,
		PlayoffMultiplier: 1.2,
		Season:            2024,
	}
	p, err := New(s.store, s.set, &snap, DefaultOptions(), testutil.QuietLogger())
	s.Require().NoError(err)

	pred, err := p.PredictGame(s.ctx, 2025, 1, "KC", "BUF", MarketLines{})
	s.Require().NoError(err)
	s.Equal(models.SourceEloFallback, pred.PredictionSource)
	s.InDelta(0.8718, pred.HomeWinProb, 1e-4)
	s.InDelta(13.32, pred.PredictedMargin, 1e-9)
	s.Require().NotNil(pred.EloHomeProb)
	s.InDelta(pred.HomeWinProb, *pred.EloHomeProb, 1e-12)
	s.assertConsistent(pred)

	// the stored ratings stay as persisted
	s.Equal(1700.0, snap.Ratings["KC"])
	again, err := p.PredictGame(s.ctx, 2025, 1, "KC", "BUF", MarketLines{})
	s.Require().NoError(err)
	s.Equal(pred.HomeWinProb, again.HomeWinProb)
}

func (s *PredictorTestSuite) TestPredictWeek_PlayedGamesOmitEloAndBlend() {
	p := s.newPredictor(Options{Fallback: FallbackElo, EnableBlend: true})

	preds, _, err := p.PredictWeek(s.ctx, 2025, 5, true)
	s.Require().NoError(err)
	s.Len(preds, 4)
	for _, pred := range preds {
		s.Equal(models.SourceModel, pred.PredictionSource)
		s.Nil(pred.EloHomeProb, pred.GameID)
		s.Require().NotNil(pred.ModelHomeProb)
		s.InDelta(*pred.ModelHomeProb, pred.HomeWinProb, 1e-12)
		s.False(pred.IsSplitPrediction)
		s.assertConsistent(pred)
	}
}

func (s *PredictorTestSuite) TestPredictWeek_WeekOneMarketFallback() {
	p, err := New(s.store, s.set, nil, Options{Fallback: FallbackMarket}, testutil.QuietLogger())
	s.Require().NoError(err)

	preds, _, err := p.PredictWeek(s.ctx, 2025, 1, true)
	s.Require().NoError(err)
	s.Len(preds, 4)
	for _, pred := range preds {
		s.Equal(models.SourceMarketFallback, pred.PredictionSource)
		s.Nil(pred.EloHomeProb)
		s.Require().NotNil(pred.VegasSpread)
		s.InDelta(MarketHomeProb(*pred.VegasSpread), pred.HomeWinProb, 1e-12)
		s.InDelta(-*pred.VegasSpread, pred.PredictedMargin, 1e-12)
		s.assertConsistent(pred)
	}
}

func (s *PredictorTestSuite) TestPredictWeek_BlendMarksSplitGames() {
	p := s.newPredictor(Options{Fallback: FallbackElo, EnableBlend: true})

	preds, _, err := p.PredictWeek(s.ctx, 2025, 14, false)
	s.Require().NoError(err)
	s.Len(preds, 4)
	for _, pred := range preds {
		s.Require().NotNil(pred.ModelHomeProb)
		b := blend(*pred.EloHomeProb, *pred.ModelHomeProb, *pred.MarketHomeProb)
		s.InDelta(b.HomeProb, pred.HomeWinProb, 1e-12)
		s.Equal(b.Split, pred.IsSplitPrediction)
		s.assertConsistent(pred)
	}
}

func (s *PredictorTestSuite) TestPredictWeek_UnknownWeek() {
	p := s.newPredictor(DefaultOptions())
	_, _, err := p.PredictWeek(s.ctx, 2031, 3, false)
	s.ErrorIs(err, utils.ErrMissingData)
}

func (s *PredictorTestSuite) TestPredictGame_DoesNotPersist() {
	p := s.newPredictor(DefaultOptions())
	spread := -3.5

	pred, err := p.PredictGame(s.ctx, 2025, 14, "KC", "BUF", MarketLines{Spread: &spread})
	s.Require().NoError(err)
	s.Equal("2025_14_BUF_KC", pred.GameID)
	s.Equal(models.SourceModel, pred.PredictionSource)
	s.InDelta(MarketHomeProb(-3.5), *pred.MarketHomeProb, 1e-12)
	s.assertConsistent(pred)

	stored, err := s.store.ListPredictions(s.ctx, 2025, 0)
	s.Require().NoError(err)
	s.Empty(stored)
}

func (s *PredictorTestSuite) TestPredictGame_InvalidMatchup() {
	p := s.newPredictor(DefaultOptions())
	_, err := p.PredictGame(s.ctx, 2025, 14, "KC", "kc", MarketLines{})
	s.ErrorIs(err, utils.ErrInvalidInput)
}

func (s *PredictorTestSuite) TestNew_RejectsMismatchedArtifacts() {
	_, err := New(s.store, s.set, nil, DefaultOptions(), testutil.QuietLogger())
	s.ErrorIs(err, utils.ErrMissingArtifact, "elo fallback without a snapshot")

	scaler := *s.set.Scaler
	scaler.Features = scaler.Features[:10]
	bad := *s.set
	bad.Scaler = &scaler
	_, err = New(s.store, &bad, &s.snap, DefaultOptions(), testutil.QuietLogger())
	s.ErrorIs(err, utils.ErrMissingArtifact, "layout drift")

	bad = *s.set
	bad.RegressorFeatures = append([]string{"home_final_score"}, s.set.RegressorFeatures...)
	_, err = New(s.store, &bad, &s.snap, DefaultOptions(), testutil.QuietLogger())
	s.ErrorIs(err, utils.ErrMissingArtifact, "unknown regressor feature")

	_, err = New(s.store, nil, &s.snap, DefaultOptions(), testutil.QuietLogger())
	s.ErrorIs(err, utils.ErrMissingArtifact)
}

func TestPredictorTestSuite(t *testing.T) {
	suite.Run(t, new(PredictorTestSuite))
}

func TestAssemble_ZeroMarginGoesAway(t *testing.T) {
	p := &Predictor{
		set:    &artifacts.ModelSet{Version: "v1"},
		margin: distuv.Normal{Mu: 0, Sigma: 13.5},
		now:    time.Now,
	}
	g := models.Game{GameID: "2024_01_BUF_KC", Season: 2024, Week: 1, HomeTeam: "KC", AwayTeam: "BUF"}

	pred := p.assemble(g, 0.5, 0, models.SourceMarketFallback)
	assert.Equal(t, "BUF", pred.PredictedWinner)
	assert.Equal(t, 47.0, pred.PredictedHomeScore+pred.PredictedAwayScore)
	assert.InDelta(t, 0.5, *pred.MarginWinProb, 1e-12)
	assert.InDelta(t, 0.5, *pred.MarketHomeProb, 1e-12)
	assert.Nil(t, pred.VegasSpread)

	pred = p.assemble(g, 0.62, 3, models.SourceModel)
	assert.Equal(t, "KC", pred.PredictedWinner)
	assert.Equal(t, 25.0, pred.PredictedHomeScore)
	assert.Equal(t, 22.0, pred.PredictedAwayScore)
	assert.Equal(t, -3.0, pred.AISpread)
	assert.InDelta(t, 0.62, pred.WinConfidence, 1e-12)

	pred = p.assemble(g, 0.4, -1, models.SourceModel)
	assert.Equal(t, "BUF", pred.PredictedWinner)
	assert.InDelta(t, 0.6, pred.WinConfidence, 1e-12)
}
