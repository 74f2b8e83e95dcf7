package ml

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"
)

// Scaler standardizes each column to zero mean and unit variance using
// statistics from the training split only.
type Scaler struct {
	Features []string  `json:"features"`
	Mean     []float64 `json:"mean"`
	Scale    []float64 `json:"scale"`
}

func FitScaler(features []string, x mat.Matrix) (*Scaler, error) {
	r, c := x.Dims()
	if r == 0 {
		return nil, fmt.Errorf("fit scaler: no rows")
	}
	if len(features) != c {
		return nil, fmt.Errorf("fit scaler: %d names for %d columns", len(features), c)
	}

	s := &Scaler{
		Features: append([]string(nil), features...),
		Mean:     make([]float64, c),
		Scale:    make([]float64, c),
	}
	col := make([]float64, r)
	for j := 0; j < c; j++ {
		mat.Col(col, j, x)
		mean, std := stat.PopMeanStdDev(col, nil)
		if std == 0 || math.IsNaN(std) {
			std = 1
		}
		s.Mean[j] = mean
		s.Scale[j] = std
	}
	return s, nil
}

func (s *Scaler) Transform(x mat.Matrix) (*mat.Dense, error) {
	r, c := x.Dims()
	if c != len(s.Mean) {
		return nil, fmt.Errorf("scaler expects %d columns, got %d", len(s.Mean), c)
	}
	if r == 0 {
		return nil, fmt.Errorf("scaler: no rows")
	}
	out := mat.NewDense(r, c, nil)
	out.Apply(func(i, j int, v float64) float64 {
		return (v - s.Mean[j]) / s.Scale[j]
	}, x)
	return out, nil
}

func (s *Scaler) TransformRow(row []float64) ([]float64, error) {
	if len(row) != len(s.Mean) {
		return nil, fmt.Errorf("scaler expects %d columns, got %d", len(s.Mean), len(row))
	}
	out := make([]float64, len(row))
	for j, v := range row {
		out[j] = (v - s.Mean[j]) / s.Scale[j]
	}
	return out, nil
}

// Validate checks internal consistency after loading.
func (s *Scaler) Validate() error {
	if len(s.Features) == 0 || len(s.Mean) != len(s.Features) || len(s.Scale) != len(s.Features) {
		return fmt.Errorf("scaler has %d features, %d means, %d scales", len(s.Features), len(s.Mean), len(s.Scale))
	}
	for j, v := range s.Scale {
		if v == 0 || math.IsNaN(v) || math.IsInf(v, 0) {
			return fmt.Errorf("scaler column %s has scale %v", s.Features[j], v)
		}
	}
	return nil
}
