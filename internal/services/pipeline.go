package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jstittsworth/nfl-predictor/internal/artifacts"
	"github.com/jstittsworth/nfl-predictor/internal/elo"
	"github.com/jstittsworth/nfl-predictor/internal/features"
	"github.com/jstittsworth/nfl-predictor/internal/metrics"
	"github.com/jstittsworth/nfl-predictor/internal/models"
	"github.com/jstittsworth/nfl-predictor/internal/predictor"
	"github.com/jstittsworth/nfl-predictor/internal/store"
	"github.com/jstittsworth/nfl-predictor/internal/trainer"
	"github.com/jstittsworth/nfl-predictor/pkg/config"
	"github.com/jstittsworth/nfl-predictor/pkg/logger"
	"github.com/jstittsworth/nfl-predictor/pkg/utils"
	"github.com/sirupsen/logrus"
)

// maxCachedWeek bounds the per-week prediction keys dropped after a backfill.
const maxCachedWeek = 22

// PipelineService is the invocation surface shared by the HTTP server and the CLI.
type PipelineService struct {
	store     *store.GameStore
	artifacts *artifacts.Store
	cache     *CacheService
	cfg       *config.Config
	logger    *logrus.Logger
	now       func() time.Time
}

func NewPipelineService(st *store.GameStore, art *artifacts.Store, cache *CacheService, cfg *config.Config, logger *logrus.Logger) *PipelineService {
	return &PipelineService{
		store:     st,
		artifacts: art,
		cache:     cache,
		cfg:       cfg,
		logger:    logger,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// StoreOptions projects the store settings out of cfg.
func StoreOptions(cfg *config.Config) store.Options {
	return store.Options{
		SpreadConvention: cfg.SpreadConvention,
		BreakerThreshold: cfg.CircuitBreakerThreshold,
		BreakerTimeout:   cfg.CircuitBreakerTimeout,
	}
}

func EloParams(cfg *config.Config) elo.Params {
	return elo.Params{
		Base:              cfg.EloBase,
		KFactor:           cfg.EloKFactor,
		HomeAdvantage:     cfg.EloHomeAdvantage,
		MeanReversion:     cfg.EloMeanReversion,
		PlayoffMultiplier: cfg.EloPlayoffMultiplier,
	}
}

func TrainerOptions(cfg *config.Config) (trainer.Options, error) {
	scheme, err := features.ParseWeightScheme(cfg.SampleWeightScheme)
	if err != nil {
		return trainer.Options{}, err
	}
	opts := trainer.DefaultOptions()
	opts.StartSeason = cfg.TrainStartSeason
	opts.TrainEndSeason = cfg.TrainEndSeason
	opts.ValidationSeason = cfg.ValidationSeason
	opts.TestSeason = cfg.TestSeason
	opts.WeightScheme = scheme

	opts.MLP.HiddenLayers = cfg.MLPHiddenLayers
	opts.MLP.MaxIter = cfg.MLPMaxIter
	opts.MLP.Patience = cfg.MLPPatience
	opts.MLP.Seed = cfg.RandomSeed

	opts.GBRT.NTrees = cfg.GBRTTrees
	opts.GBRT.MaxDepth = cfg.GBRTMaxDepth
	opts.GBRT.LearningRate = cfg.GBRTLearningRate
	return opts, nil
}

func PredictorOptions(cfg *config.Config) predictor.Options {
	opts := predictor.DefaultOptions()
	opts.Fallback = predictor.FallbackSource(cfg.FallbackSource)
	opts.EnableBlend = cfg.EnableEloBlend
	return opts
}

// Train runs the full training pipeline and publishes a new model set.
func (s *PipelineService) Train(ctx context.Context) (*trainer.Result, error) {
	opts, err := TrainerOptions(s.cfg)
	if err != nil {
		return nil, err
	}
	return trainer.New(s.store, s.artifacts, opts, s.logger).Train(ctx)
}

// EloRebuild is the outcome of replaying completed games into fresh ratings.
type EloRebuild struct {
	FromSeason     int                `json:"from_season"`
	GamesProcessed int                `json:"games_processed"`
	HistoryRows    int                `json:"history_rows"`
	Ratings        map[string]float64 `json:"ratings"`
	Snapshot       string             `json:"snapshot"`
}

// RebuildElo replays every completed game from fromSeason on, rewrites the
// rating history for those seasons and publishes a new snapshot. A zero
// fromSeason uses the configured start season.
func (s *PipelineService) RebuildElo(ctx context.Context, fromSeason int) (*EloRebuild, error) {
	if fromSeason <= 0 {
		fromSeason = s.cfg.EloStartSeason
	}
	log := logger.WithComponent(s.logger, "elo").WithField("from_season", fromSeason)

	games, err := s.store.FetchCompletedGames(ctx, store.SeasonRange{From: fromSeason})
	if err != nil {
		return nil, err
	}
	if len(games) == 0 {
		return nil, fmt.Errorf("no completed games since %d: %w", fromSeason, utils.ErrMissingData)
	}

	engine := elo.Rebuild(EloParams(s.cfg), games, fromSeason)
	history := engine.History()
	if err := s.store.ReplaceEloHistory(ctx, fromSeason, history); err != nil {
		return nil, err
	}

	now := s.now()
	snap := engine.Snapshot(now)
	path, err := s.artifacts.SaveEloSnapshot(snap, artifacts.NewVersion(now))
	if err != nil {
		return nil, err
	}
	metrics.EloRebuildGames.Add(float64(engine.GamesProcessed()))
	if err := s.cache.Set(ctx, EloRatingsCacheKey(), snap, s.cfg.PredictionCacheTTL); err != nil {
		log.WithError(err).Warn("Failed to cache elo ratings")
	}

	log.WithFields(logrus.Fields{
		"games":    engine.GamesProcessed(),
		"teams":    len(snap.Ratings),
		"snapshot": path,
	}).Info("Elo ratings rebuilt")

	return &EloRebuild{
		FromSeason:     fromSeason,
		GamesProcessed: engine.GamesProcessed(),
		HistoryRows:    len(history),
		Ratings:        snap.Ratings,
		Snapshot:       path,
	}, nil
}

// WeekPredictions is one prediction batch.
type WeekPredictions struct {
	Season       int                   `json:"season"`
	Week         int                   `json:"week"`
	ModelVersion string                `json:"model_version"`
	Predictions  []models.MLPrediction `json:"predictions"`
	Skipped      []predictor.Skip      `json:"skipped"`
}

func (s *PipelineService) loadPredictor() (*predictor.Predictor, error) {
	set, err := s.artifacts.LoadModels()
	if err != nil {
		return nil, err
	}
	var snap *elo.Snapshot
	loaded, err := s.artifacts.LoadEloSnapshot()
	switch {
	case err == nil:
		snap = &loaded
	case !errors.Is(err, utils.ErrMissingArtifact):
		return nil, err
	}
	return predictor.New(s.store, set, snap, PredictorOptions(s.cfg), s.logger)
}

// PredictWeek predicts and stores the week's games.
func (s *PipelineService) PredictWeek(ctx context.Context, season, week int, includePlayed bool) (*WeekPredictions, error) {
	if season <= 0 || week <= 0 {
		return nil, fmt.Errorf("season %d week %d: %w", season, week, utils.ErrInvalidInput)
	}
	p, err := s.loadPredictor()
	if err != nil {
		return nil, err
	}
	preds, skips, err := p.PredictWeek(ctx, season, week, includePlayed)
	if err != nil {
		return nil, err
	}
	s.cache.Invalidate(ctx, PredictionsCacheKey(season, week), PredictionsCacheKey(season, 0))
	return &WeekPredictions{
		Season:       season,
		Week:         week,
		ModelVersion: p.ModelVersion(),
		Predictions:  preds,
		Skipped:      skips,
	}, nil
}

// PredictGame predicts one matchup without storing it.
func (s *PipelineService) PredictGame(ctx context.Context, season, week int, home, away string, lines predictor.MarketLines) (models.MLPrediction, error) {
	p, err := s.loadPredictor()
	if err != nil {
		return models.MLPrediction{}, err
	}
	return p.PredictGame(ctx, season, week, home, away, lines)
}

// BackfillResults fills the post-game fields for the season's predictions.
func (s *PipelineService) BackfillResults(ctx context.Context, season int) (int, error) {
	if season <= 0 {
		return 0, fmt.Errorf("season %d: %w", season, utils.ErrInvalidInput)
	}
	n, err := s.store.BackfillActuals(ctx, season)
	if err != nil {
		return 0, err
	}
	keys := make([]string, 0, maxCachedWeek+1)
	for week := 0; week <= maxCachedWeek; week++ {
		keys = append(keys, PredictionsCacheKey(season, week))
	}
	s.cache.Invalidate(ctx, keys...)

	logger.WithComponent(s.logger, "backfill").WithFields(logrus.Fields{
		"season":  season,
		"updated": n,
	}).Info("Prediction results backfilled")
	return n, nil
}

// ListPredictions reads stored predictions through the cache. A zero week
// lists the whole season.
func (s *PipelineService) ListPredictions(ctx context.Context, season, week int) ([]models.MLPrediction, bool, error) {
	key := PredictionsCacheKey(season, week)
	var cached []models.MLPrediction
	err := s.cache.Get(ctx, key, &cached)
	if err == nil {
		return cached, true, nil
	}
	if !errors.Is(err, ErrCacheMiss) {
		s.logger.WithError(err).WithField("key", key).Warn("Prediction cache read failed")
	}

	preds, err := s.store.ListPredictions(ctx, season, week)
	if err != nil {
		return nil, false, err
	}
	if len(preds) > 0 {
		if err := s.cache.Set(ctx, key, preds, s.cfg.PredictionCacheTTL); err != nil {
			s.logger.WithError(err).WithField("key", key).Warn("Prediction cache write failed")
		}
	}
	return preds, false, nil
}

// EloRatings returns the current snapshot, from the cache when possible.
func (s *PipelineService) EloRatings(ctx context.Context) (*elo.Snapshot, bool, error) {
	var snap elo.Snapshot
	if err := s.cache.Get(ctx, EloRatingsCacheKey(), &snap); err == nil {
		return &snap, true, nil
	}
	snap, err := s.artifacts.LoadEloSnapshot()
	if err != nil {
		return nil, false, err
	}
	if err := s.cache.Set(ctx, EloRatingsCacheKey(), snap, s.cfg.PredictionCacheTTL); err != nil {
		s.logger.WithError(err).Warn("Failed to cache elo ratings")
	}
	return &snap, false, nil
}

// EloHistory returns one team's rating trail for a season.
func (s *PipelineService) EloHistory(ctx context.Context, team string, season int) ([]models.EloHistory, error) {
	return s.store.EloHistoryForTeam(ctx, team, season)
}

func (s *PipelineService) TrainingRuns(ctx context.Context, limit int) ([]models.TrainingRun, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	return s.store.ListTrainingRuns(ctx, limit)
}

// Health reports dependency status. The store must answer; the cache and
// the artifacts are informational.
type Health struct {
	Database     string `json:"database"`
	Breaker      string `json:"circuit_breaker"`
	Cache        string `json:"cache"`
	ModelVersion string `json:"model_version,omitempty"`
	Healthy      bool   `json:"healthy"`
}

func (s *PipelineService) Health(ctx context.Context) Health {
	h := Health{Database: "ok", Cache: "disabled", Breaker: s.store.BreakerState(), Healthy: true}
	if err := s.store.Ping(ctx); err != nil {
		h.Database = err.Error()
		h.Healthy = false
	}
	if s.cache.Enabled() {
		h.Cache = "ok"
		if err := s.cache.Ping(ctx); err != nil {
			h.Cache = err.Error()
		}
	}
	if v, err := s.artifacts.CurrentVersion(); err == nil {
		h.ModelVersion = v
	}
	return h
}
