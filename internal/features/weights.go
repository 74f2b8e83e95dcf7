package features

import "fmt"

// WeightScheme maps a season onto a sample weight. Both schemes are
// non-decreasing in season.
type WeightScheme string

const (
	// WeightRecency gives 1.0 from 2020, 0.6 for 2010-2019 and 0.2 before.
	WeightRecency WeightScheme = "recency"
	// WeightTripartite gives 2.0 from 2020, 1.0 for 2010-2019 and 0.5 before.
	WeightTripartite WeightScheme = "tripartite"
)

func ParseWeightScheme(s string) (WeightScheme, error) {
	switch WeightScheme(s) {
	case WeightRecency, "":
		return WeightRecency, nil
	case WeightTripartite:
		return WeightTripartite, nil
	}
	return "", fmt.Errorf("unknown sample weight scheme %q", s)
}

func (w WeightScheme) Weight(season int) float64 {
	modern, mid, old := 1.0, 0.6, 0.2
	if w == WeightTripartite {
		modern, mid, old = 2.0, 1.0, 0.5
	}
	switch {
	case season >= 2020:
		return modern
	case season >= 2010:
		return mid
	default:
		return old
	}
}
