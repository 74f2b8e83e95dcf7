package trainer

import "fmt"

// Envelope is the range of held-out scores a healthy pipeline lands in.
type Envelope struct {
	MinAccuracy     float64
	MaxAccuracy     float64
	LeakageAccuracy float64
	MinMAE          float64
	MaxMAE          float64
	MinSignAccuracy float64
}

func DefaultEnvelope() Envelope {
	return Envelope{
		MinAccuracy:     0.55,
		MaxAccuracy:     0.70,
		LeakageAccuracy: 0.90,
		MinMAE:          8.5,
		MaxMAE:          13.0,
		MinSignAccuracy: 0.55,
	}
}

// Check lists every way m falls outside the envelope. An empty split yields
// no findings.
func (e Envelope) Check(m SplitMetrics) []string {
	if m.Classifier.N == 0 {
		return nil
	}
	var out []string
	acc := m.Classifier.Accuracy
	switch {
	case acc >= e.LeakageAccuracy:
		out = append(out, fmt.Sprintf("classifier accuracy %.3f >= %.2f: likely leakage", acc, e.LeakageAccuracy))
	case acc > e.MaxAccuracy:
		out = append(out, fmt.Sprintf("classifier accuracy %.3f above %.2f: check for leakage", acc, e.MaxAccuracy))
	case acc <= 0.50:
		out = append(out, fmt.Sprintf("classifier accuracy %.3f at or below chance: broken pipeline", acc))
	case acc < e.MinAccuracy:
		out = append(out, fmt.Sprintf("classifier accuracy %.3f below %.2f", acc, e.MinAccuracy))
	}

	mae := m.Regressor.MAE
	if mae < e.MinMAE {
		out = append(out, fmt.Sprintf("regressor MAE %.2f below %.1f: check for leakage", mae, e.MinMAE))
	} else if mae > e.MaxMAE {
		out = append(out, fmt.Sprintf("regressor MAE %.2f above %.1f", mae, e.MaxMAE))
	}
	if m.Regressor.SignAccuracy < e.MinSignAccuracy {
		out = append(out, fmt.Sprintf("regressor sign accuracy %.3f below %.2f", m.Regressor.SignAccuracy, e.MinSignAccuracy))
	}
	return out
}
