package trainer

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jstittsworth/nfl-predictor/internal/artifacts"
	"github.com/jstittsworth/nfl-predictor/internal/features"
	"github.com/jstittsworth/nfl-predictor/internal/metrics"
	"github.com/jstittsworth/nfl-predictor/internal/ml"
	"github.com/jstittsworth/nfl-predictor/internal/models"
	"github.com/jstittsworth/nfl-predictor/internal/store"
	"github.com/jstittsworth/nfl-predictor/pkg/logger"
	"github.com/jstittsworth/nfl-predictor/pkg/utils"
	"github.com/sirupsen/logrus"
	"gorm.io/datatypes"
)

// GameSource is the slice of the game store the trainer reads and writes.
type GameSource interface {
	FetchCompletedGames(ctx context.Context, r store.SeasonRange) ([]models.Game, error)
	FetchTeamGameStats(ctx context.Context, r store.SeasonRange) (map[models.StatKey]models.TeamGameStat, error)
	SaveTrainingRun(ctx context.Context, run *models.TrainingRun) error
}

type Options struct {
	StartSeason      int
	TrainEndSeason   int
	ValidationSeason int
	TestSeason       int
	WeightScheme     features.WeightScheme
	WeightRegressor  bool
	MLP              ml.MLPConfig
	GBRT             ml.GBRTConfig
	Guard            LeakageGuard
	Envelope         Envelope
}

func DefaultOptions() Options {
	return Options{
		StartSeason:      2020,
		TrainEndSeason:   2023,
		ValidationSeason: 2024,
		TestSeason:       2025,
		WeightScheme:     features.WeightRecency,
		MLP:              ml.DefaultMLPConfig(),
		GBRT:             ml.DefaultGBRTConfig(),
		Guard:            DefaultLeakageGuard(),
		Envelope:         DefaultEnvelope(),
	}
}

// SplitMetrics pairs both models' scores on one split.
type SplitMetrics struct {
	Classifier ml.ClassifierMetrics `json:"classifier"`
	Regressor  ml.RegressorMetrics  `json:"regressor"`
}

// Result is what a successful run reports back to callers.
type Result struct {
	RunID              uuid.UUID    `json:"run_id"`
	Version            string       `json:"version"`
	TrainRows          int          `json:"train_rows"`
	ValidationRows     int          `json:"validation_rows"`
	TestRows           int          `json:"test_rows"`
	SkippedRows        int          `json:"skipped_rows"`
	ClassifierFeatures []string     `json:"classifier_features"`
	RegressorFeatures  []string     `json:"regressor_features"`
	Validation         SplitMetrics `json:"validation"`
	Test               SplitMetrics `json:"test"`
	EnvelopeWarnings   []string     `json:"envelope_warnings,omitempty"`
	ClassifierEpochs   int          `json:"classifier_epochs"`
	DurationSeconds    float64      `json:"duration_seconds"`
}

type Trainer struct {
	source    GameSource
	artifacts *artifacts.Store
	opts      Options
	logger    *logrus.Logger
	now       func() time.Time
}

func New(source GameSource, art *artifacts.Store, opts Options, logger *logrus.Logger) *Trainer {
	return &Trainer{
		source:    source,
		artifacts: art,
		opts:      opts,
		logger:    logger,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// Train runs the full pipeline. Nothing is published unless every step,
// including the leakage checks, succeeds; the run is recorded either way.
func (t *Trainer) Train(ctx context.Context) (*Result, error) {
	started := t.now()
	res := &Result{
		RunID:   uuid.New(),
		Version: artifacts.NewVersion(started),
	}
	log := logger.WithRun(logger.WithComponent(t.logger, "trainer"), res.RunID.String(), res.Version)
	log.WithFields(logrus.Fields{
		"start_season": t.opts.StartSeason,
		"test_season":  t.opts.TestSeason,
	}).Info("Starting training run")

	err := t.train(ctx, res, log)
	res.DurationSeconds = t.now().Sub(started).Seconds()
	metrics.TrainingDuration.Observe(res.DurationSeconds)
	t.record(ctx, res, started, err, log)

	if err != nil {
		metrics.TrainingRuns.WithLabelValues(models.RunStatusFailed).Inc()
		log.WithError(err).Error("Training run failed")
		return nil, err
	}
	metrics.TrainingRuns.WithLabelValues(models.RunStatusSucceeded).Inc()
	log.WithFields(logrus.Fields{
		"test_accuracy": res.Test.Classifier.Accuracy,
		"test_mae":      res.Test.Regressor.MAE,
		"duration_s":    res.DurationSeconds,
	}).Info("Training run published")
	return res, nil
}

func (t *Trainer) train(ctx context.Context, res *Result, log *logrus.Entry) error {
	o := t.opts
	span := store.SeasonRange{From: o.StartSeason, To: o.TestSeason}

	games, err := t.source.FetchCompletedGames(ctx, span)
	if err != nil {
		return err
	}
	stats, err := t.source.FetchTeamGameStats(ctx, span)
	if err != nil {
		return err
	}

	ds, err := BuildDataset(games, features.NewPriorIndex(stats), features.NewBuilder(o.WeightScheme), t.logger)
	if err != nil {
		return err
	}
	split, err := ds.SplitBySeason(o.TrainEndSeason, o.ValidationSeason, o.TestSeason)
	if err != nil {
		return err
	}
	res.TrainRows, res.ValidationRows, res.TestRows = len(split.Train), len(split.Validation), len(split.Test)
	res.SkippedRows = ds.Skipped
	log.WithFields(logrus.Fields{
		"games":      len(games),
		"train":      res.TrainRows,
		"validation": res.ValidationRows,
		"test":       res.TestRows,
		"skipped":    res.SkippedRows,
	}).Info("Assembled training dataset")
	if res.TrainRows == 0 {
		return fmt.Errorf("no training rows for seasons %d-%d: %w", o.StartSeason, o.TrainEndSeason, utils.ErrMissingData)
	}

	clfNames := ds.Names
	regNames := features.RegressorNames()
	if err := o.Guard.CheckNames(clfNames); err != nil {
		return err
	}
	if err := o.Guard.CheckNames(regNames); err != nil {
		return err
	}
	regIdx, missing, ok := features.Indices(clfNames, regNames)
	if !ok {
		return fmt.Errorf("regressor feature %s not in layout: %w", missing, utils.ErrInvalidInput)
	}
	res.ClassifierFeatures, res.RegressorFeatures = clfNames, regNames

	rawX, yWin, yMargin, weights := columns(split.Train)
	trainX, err := ml.NewMatrix(rawX)
	if err != nil {
		return err
	}
	if err := o.Guard.CheckSeparability(clfNames, trainX, yWin, weights); err != nil {
		return err
	}

	scaler, err := ml.FitScaler(clfNames, trainX)
	if err != nil {
		return err
	}
	scaledTrain, err := scaler.Transform(trainX)
	if err != nil {
		return err
	}

	clf := ml.NewMLPClassifier(o.MLP)
	if err := clf.Fit(scaledTrain, yWin, weights); err != nil {
		return fmt.Errorf("fit classifier: %w", err)
	}
	res.ClassifierEpochs = clf.Iterations()

	var regWeights []float64
	if o.WeightRegressor {
		regWeights = weights
	}
	reg := ml.NewGBRTRegressor(o.GBRT)
	if err := reg.Fit(ml.SelectColumns(scaledTrain, regIdx), yMargin, regWeights); err != nil {
		return fmt.Errorf("fit regressor: %w", err)
	}

	if res.Validation, err = evaluate(split.Validation, scaler, clf, reg, regIdx); err != nil {
		return err
	}
	if res.Test, err = evaluate(split.Test, scaler, clf, reg, regIdx); err != nil {
		return err
	}

	if res.Test.Classifier.N > 0 && res.Test.Classifier.Accuracy >= o.Envelope.LeakageAccuracy {
		return fmt.Errorf("test accuracy %.3f >= %.2f: %w", res.Test.Classifier.Accuracy, o.Envelope.LeakageAccuracy, utils.ErrLeakageDetected)
	}
	res.EnvelopeWarnings = o.Envelope.Check(res.Test)
	for _, w := range res.EnvelopeWarnings {
		log.WithField("check", w).Warn("Held-out metrics outside expected envelope")
	}
	if res.TestRows == 0 {
		log.WithField("test_season", o.TestSeason).Warn("Test season has no completed games; test metrics are empty")
	}

	_, err = t.artifacts.SaveModels(artifacts.ModelSet{
		Version:            res.Version,
		Classifier:         clf,
		Regressor:          reg,
		Scaler:             scaler,
		ClassifierFeatures: clfNames,
		RegressorFeatures:  regNames,
	}, res)
	return err
}

func evaluate(examples []features.Example, scaler *ml.Scaler, clf *ml.MLPClassifier, reg *ml.GBRTRegressor, regIdx []int) (SplitMetrics, error) {
	if len(examples) == 0 {
		return SplitMetrics{}, nil
	}
	rawX, yWin, yMargin, _ := columns(examples)
	x, err := ml.NewMatrix(rawX)
	if err != nil {
		return SplitMetrics{}, err
	}
	scaled, err := scaler.Transform(x)
	if err != nil {
		return SplitMetrics{}, err
	}
	probs, err := clf.PredictProba(scaled)
	if err != nil {
		return SplitMetrics{}, err
	}
	margins, err := reg.Predict(ml.SelectColumns(scaled, regIdx))
	if err != nil {
		return SplitMetrics{}, err
	}
	return SplitMetrics{
		Classifier: ml.EvaluateClassifier(probs, yWin),
		Regressor:  ml.EvaluateRegressor(margins, yMargin),
	}, nil
}

// record appends the run to the ledger. A ledger failure is logged and never
// masks the training outcome.
func (t *Trainer) record(ctx context.Context, res *Result, started time.Time, runErr error, log *logrus.Entry) {
	run := &models.TrainingRun{
		ID:                 res.RunID,
		Version:            res.Version,
		Status:             models.RunStatusSucceeded,
		StartedAt:          started,
		FinishedAt:         t.now(),
		TrainRows:          res.TrainRows,
		ValidationRows:     res.ValidationRows,
		TestRows:           res.TestRows,
		ClassifierFeatures: models.FeatureList(res.ClassifierFeatures),
		RegressorFeatures:  models.FeatureList(res.RegressorFeatures),
	}
	if runErr != nil {
		run.Status = models.RunStatusFailed
		run.Error = runErr.Error()
	}
	if doc, err := json.Marshal(map[string]SplitMetrics{"validation": res.Validation, "test": res.Test}); err == nil {
		run.Metrics = datatypes.JSON(doc)
	}

	if err := t.source.SaveTrainingRun(ctx, run); err != nil {
		log.WithError(err).Warn("Failed to record training run")
	}
}
