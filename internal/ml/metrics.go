package ml

import (
	"math"

	"gonum.org/v1/gonum/stat"
)

// ClassifierMetrics summarizes a binary classifier on one split. The
// confusion matrix is indexed [actual][predicted] with 1 meaning home win.
type ClassifierMetrics struct {
	N               int       `json:"n"`
	Accuracy        float64   `json:"accuracy"`
	ConfusionMatrix [2][2]int `json:"confusion_matrix"`
	RecallAwayWin   float64   `json:"recall_away_win"`
	RecallHomeWin   float64   `json:"recall_home_win"`
	LogLoss         float64   `json:"log_loss"`
	Brier           float64   `json:"brier"`
}

// RegressorMetrics summarizes the margin regressor on one split.
type RegressorMetrics struct {
	N            int     `json:"n"`
	MAE          float64 `json:"mae"`
	RMSE         float64 `json:"rmse"`
	R2           float64 `json:"r2"`
	SignAccuracy float64 `json:"sign_accuracy"`
}

func EvaluateClassifier(probs []float64, labels []float64) ClassifierMetrics {
	m := ClassifierMetrics{N: len(labels)}
	if len(labels) == 0 {
		return m
	}
	correct := 0
	for i, y := range labels {
		actual := 0
		if y >= 0.5 {
			actual = 1
		}
		predicted := 0
		if probs[i] > 0.5 {
			predicted = 1
		}
		m.ConfusionMatrix[actual][predicted]++
		if actual == predicted {
			correct++
		}
		p := clip(probs[i])
		m.LogLoss -= y*math.Log(p) + (1-y)*math.Log(1-p)
		m.Brier += (probs[i] - y) * (probs[i] - y)
	}
	n := float64(len(labels))
	m.Accuracy = float64(correct) / n
	m.LogLoss /= n
	m.Brier /= n
	m.RecallAwayWin = ratio(m.ConfusionMatrix[0][0], m.ConfusionMatrix[0][0]+m.ConfusionMatrix[0][1])
	m.RecallHomeWin = ratio(m.ConfusionMatrix[1][1], m.ConfusionMatrix[1][0]+m.ConfusionMatrix[1][1])
	return m
}

func EvaluateRegressor(pred, actual []float64) RegressorMetrics {
	m := RegressorMetrics{N: len(actual)}
	if len(actual) == 0 {
		return m
	}
	sumAbs, sumSq, signHits := 0.0, 0.0, 0
	for i, y := range actual {
		d := pred[i] - y
		sumAbs += math.Abs(d)
		sumSq += d * d
		if sign(pred[i]) == sign(y) {
			signHits++
		}
	}
	n := float64(len(actual))
	m.MAE = sumAbs / n
	m.RMSE = math.Sqrt(sumSq / n)
	m.SignAccuracy = float64(signHits) / n
	if len(actual) > 1 {
		// constant targets leave R² undefined
		if r2 := stat.RSquaredFrom(pred, actual, nil); !math.IsNaN(r2) && !math.IsInf(r2, 0) {
			m.R2 = r2
		}
	}
	return m
}

func sign(v float64) int {
	switch {
	case v > 0:
		return 1
	case v < 0:
		return -1
	}
	return 0
}

func ratio(a, b int) float64 {
	if b == 0 {
		return 0
	}
	return float64(a) / float64(b)
}
