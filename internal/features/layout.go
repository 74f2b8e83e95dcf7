package features

// Per-side statistics, prefixed with home_ or away_ in the emitted layout.
var sideStats = []string{
	"ppg_season",
	"ypg_season",
	"tpg_season",
	"epa_season",
	"success_season",
	"pass_epa_season",
	"rush_epa_season",
	"wpa_season",
	"ypp_season",
	"third_down_pct_season",
	"red_zone_pct_season",
	"top_pct_season",
	"epa_l5",
	"ppg_l5",
	"epa_l3",
	"games_played",
}

var differentials = []string{
	"epa_differential",
	"ppg_differential",
	"success_differential",
}

var marketFeatures = []string{
	"spread_line",
	"total_line",
	"home_moneyline",
	"away_moneyline",
}

// Market defaults for games without a posted line.
const (
	DefaultSpread        = 0.0
	DefaultTotal         = 47.0
	DefaultHomeMoneyline = -110.0
	DefaultAwayMoneyline = 110.0
)

var modelFeatureNames = buildNames()

func buildNames() []string {
	names := make([]string, 0, 2*len(sideStats)+len(differentials)+len(marketFeatures))
	for _, side := range []string{"home_", "away_"} {
		for _, stat := range sideStats {
			names = append(names, side+stat)
		}
	}
	names = append(names, differentials...)
	names = append(names, marketFeatures...)
	return names
}

// Names returns the model-input layout in emission order. season and week
// travel on the Example and are never part of it.
func Names() []string {
	out := make([]string, len(modelFeatureNames))
	copy(out, modelFeatureNames)
	return out
}

// RegressorNames is the margin regressor's subset: the full layout without moneylines.
func RegressorNames() []string {
	out := make([]string, 0, len(modelFeatureNames))
	for _, name := range modelFeatureNames {
		if name == "home_moneyline" || name == "away_moneyline" {
			continue
		}
		out = append(out, name)
	}
	return out
}

// Width is the length of every emitted feature vector.
func Width() int {
	return len(modelFeatureNames)
}

// Indices resolves names against layout. ok is false when any name is unknown.
func Indices(layout, names []string) (idx []int, missing string, ok bool) {
	pos := make(map[string]int, len(layout))
	for i, name := range layout {
		pos[name] = i
	}
	idx = make([]int, len(names))
	for i, name := range names {
		p, found := pos[name]
		if !found {
			return nil, name, false
		}
		idx[i] = p
	}
	return idx, "", true
}

// Select projects row onto the columns at idx.
func Select(row []float64, idx []int) []float64 {
	out := make([]float64, len(idx))
	for i, j := range idx {
		out[i] = row[j]
	}
	return out
}
