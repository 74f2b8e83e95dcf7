package trainer

import (
	"errors"
	"fmt"
	"sort"

	"github.com/jstittsworth/nfl-predictor/internal/features"
	"github.com/jstittsworth/nfl-predictor/internal/models"
	"github.com/jstittsworth/nfl-predictor/pkg/utils"
	"github.com/sirupsen/logrus"
)

// Dataset is the ordered list of labelled examples a run trains on.
type Dataset struct {
	Names    []string
	Examples []features.Example
	Skipped  int
}

// BuildDataset walks games in (season, week, game_id, kickoff) order and keeps
// every example with history on both sides. Leakage or a non-finite value
// aborts the whole build.
func BuildDataset(games []models.Game, idx *features.PriorIndex, builder *features.Builder, logger *logrus.Logger) (*Dataset, error) {
	ordered := make([]models.Game, len(games))
	copy(ordered, games)
	sort.SliceStable(ordered, func(i, j int) bool { return ordered[i].Before(ordered[j]) })

	ds := &Dataset{Names: features.Names()}
	for _, g := range ordered {
		if !g.IsPlayed() {
			continue
		}
		ex, err := builder.Build(g, idx.Prior(g.HomeTeam, g.Season, g.Week), idx.Prior(g.AwayTeam, g.Season, g.Week))
		switch {
		case err == nil:
		case errors.Is(err, utils.ErrInsufficientHistory), errors.Is(err, utils.ErrInvalidInput):
			ds.Skipped++
			continue
		default:
			return nil, err
		}

		if err := features.CheckFinite(ex.GameID, ds.Names, ex.Features); err != nil {
			logger.WithFields(logrus.Fields{
				"component": "trainer",
				"game_id":   ex.GameID,
				"error":     err.Error(),
			}).Error("Non-finite feature escaped the builder")
			return nil, err
		}
		ds.Examples = append(ds.Examples, ex)
	}
	return ds, nil
}

// Split partitions a dataset by season, never by row.
type Split struct {
	Train      []features.Example
	Validation []features.Example
	Test       []features.Example
}

func (d *Dataset) SplitBySeason(trainEnd, validation, test int) (Split, error) {
	if !(trainEnd < validation && validation < test) {
		return Split{}, fmt.Errorf("split seasons %d/%d/%d out of order: %w", trainEnd, validation, test, utils.ErrInvalidInput)
	}
	var s Split
	for _, ex := range d.Examples {
		switch {
		case ex.Season <= trainEnd:
			s.Train = append(s.Train, ex)
		case ex.Season == validation:
			s.Validation = append(s.Validation, ex)
		case ex.Season == test:
			s.Test = append(s.Test, ex)
		}
	}
	return s, nil
}

// columns unpacks a split into feature rows, both labels and weights.
func columns(examples []features.Example) (x [][]float64, winner, margin, weight []float64) {
	for _, ex := range examples {
		x = append(x, ex.Features)
		winner = append(winner, float64(ex.LabelWinner))
		margin = append(margin, ex.LabelMargin)
		weight = append(weight, ex.SampleWeight)
	}
	return x, winner, margin, weight
}
