package trainer

import (
	"fmt"
	"math"
	"strings"

	"github.com/jstittsworth/nfl-predictor/pkg/utils"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"
)

// Column names that can only be known once the target game is over.
var outcomeColumns = map[string]bool{
	"home_score":    true,
	"away_score":    true,
	"result":        true,
	"margin":        true,
	"point_diff":    true,
	"winner":        true,
	"home_win":      true,
	"total_points":  true,
	"spread_result": true,
	"total_result":  true,
}

var outcomePrefixes = []string{"label_", "actual_", "final_", "post_"}

// LeakageGuard rejects feature layouts that reference the target game's outcome
// and columns that separate the winner label on their own.
type LeakageGuard struct {
	// MinRows is the smallest training set on which the separability canary runs.
	MinRows int
	// MaxCorrelation bounds |corr(feature, label_winner)|.
	MaxCorrelation float64
}

func DefaultLeakageGuard() LeakageGuard {
	return LeakageGuard{MinRows: 50, MaxCorrelation: 0.9}
}

// CheckNames fails on any denylisted column name.
func (LeakageGuard) CheckNames(names []string) error {
	for _, name := range names {
		n := strings.ToLower(name)
		if outcomeColumns[n] || strings.HasSuffix(n, "_score") {
			return fmt.Errorf("feature %q is an outcome column: %w", name, utils.ErrLeakageDetected)
		}
		for _, p := range outcomePrefixes {
			if strings.HasPrefix(n, p) {
				return fmt.Errorf("feature %q is an outcome column: %w", name, utils.ErrLeakageDetected)
			}
		}
	}
	return nil
}

// CheckSeparability fails when a single column perfectly splits home wins from
// losses, or correlates with the label beyond MaxCorrelation.
func (g LeakageGuard) CheckSeparability(names []string, x mat.Matrix, y, w []float64) error {
	rows, cols := x.Dims()
	if rows < g.MinRows {
		return nil
	}
	positives := 0
	for _, v := range y {
		if v >= 0.5 {
			positives++
		}
	}
	if positives == 0 || positives == rows {
		return nil
	}

	col := make([]float64, rows)
	for j := 0; j < cols; j++ {
		mat.Col(col, j, x)

		lo0, hi0 := math.Inf(1), math.Inf(-1)
		lo1, hi1 := math.Inf(1), math.Inf(-1)
		for i, v := range col {
			if y[i] >= 0.5 {
				lo1, hi1 = math.Min(lo1, v), math.Max(hi1, v)
			} else {
				lo0, hi0 = math.Min(lo0, v), math.Max(hi0, v)
			}
		}
		if hi0 < lo1 || hi1 < lo0 {
			return fmt.Errorf("feature %q separates label_winner perfectly: %w", names[j], utils.ErrLeakageDetected)
		}

		if r := stat.Correlation(col, y, w); !math.IsNaN(r) && math.Abs(r) >= g.MaxCorrelation {
			return fmt.Errorf("feature %q has correlation %.3f with label_winner: %w", names[j], r, utils.ErrLeakageDetected)
		}
	}
	return nil
}
