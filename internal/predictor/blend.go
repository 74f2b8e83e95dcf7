package predictor

import (
	"math"

	"gonum.org/v1/gonum/stat"
)

// Blend weights and calibration bounds for the optional three-way blend.
const (
	blendEloWeight        = 0.40
	blendClassifierWeight = 0.30
	blendMarketWeight     = 0.30
	splitStdThreshold     = 0.10

	marketPointsPerProb = 22.0
)

func clamp(v, lo, hi float64) float64 {
	return math.Min(math.Max(v, lo), hi)
}

// MarketHomeProb converts a spread in the negative-favors-home convention
// into an implied home win probability.
func MarketHomeProb(spread float64) float64 {
	return clamp(0.5-spread/marketPointsPerProb, 0.1, 0.9)
}

func calibrateElo(p float64) float64 {
	return clamp(p, 0.35, 0.75)
}

// calibrateClassifier compresses overconfident outputs, topping out near 0.65.
func calibrateClassifier(p float64) float64 {
	if p > 0.75 {
		return 0.55 + (p-0.75)*0.8
	}
	return p
}

func calibrateMarket(p float64) float64 {
	return clamp(p, 0.40, 0.70)
}

// blendResult carries the blended probability and its calibrated inputs.
type blendResult struct {
	HomeProb   float64
	Elo        float64
	Classifier float64
	Market     float64
	Split      bool
}

func blend(eloProb, classifierProb, marketProb float64) blendResult {
	e, c, m := calibrateElo(eloProb), calibrateClassifier(classifierProb), calibrateMarket(marketProb)
	_, std := stat.PopMeanStdDev([]float64{e, c, m}, nil)
	return blendResult{
		HomeProb:   blendEloWeight*e + blendClassifierWeight*c + blendMarketWeight*m,
		Elo:        e,
		Classifier: c,
		Market:     m,
		Split:      std > splitStdThreshold,
	}
}
