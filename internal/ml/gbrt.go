package ml

import (
	"encoding/json"
	"fmt"
	"sort"

	"gonum.org/v1/gonum/mat"
)

// GBRTConfig controls the boosted ensemble.
type GBRTConfig struct {
	NTrees         int     `json:"n_trees"`
	MaxDepth       int     `json:"max_depth"`
	LearningRate   float64 `json:"learning_rate"`
	MinSamplesLeaf int     `json:"min_samples_leaf"`
}

func DefaultGBRTConfig() GBRTConfig {
	return GBRTConfig{
		NTrees:         150,
		MaxDepth:       6,
		LearningRate:   0.1,
		MinSamplesLeaf: 1,
	}
}

const leaf = -1

type treeNode struct {
	Feature   int     `json:"f"`
	Threshold float64 `json:"t"`
	Left      int     `json:"l"`
	Right     int     `json:"r"`
	Value     float64 `json:"v"`
}

type regressionTree struct {
	Nodes []treeNode `json:"nodes"`
}

func (t regressionTree) predict(row []float64) float64 {
	i := 0
	for {
		n := t.Nodes[i]
		if n.Left == leaf {
			return n.Value
		}
		if row[n.Feature] <= n.Threshold {
			i = n.Left
		} else {
			i = n.Right
		}
	}
}

// GBRTRegressor is a least-squares gradient-boosted ensemble of regression
// trees grown with exact greedy splits.
type GBRTRegressor struct {
	config GBRTConfig
	init   float64
	trees  []regressionTree
	inputs int
}

func NewGBRTRegressor(cfg GBRTConfig) *GBRTRegressor {
	if cfg.MinSamplesLeaf < 1 {
		cfg.MinSamplesLeaf = 1
	}
	return &GBRTRegressor{config: cfg}
}

func (g *GBRTRegressor) Inputs() int { return g.inputs }

func (g *GBRTRegressor) Trees() int { return len(g.trees) }

// Fit boosts trees on the residuals of y. Weights are optional.
func (g *GBRTRegressor) Fit(x mat.Matrix, y []float64, w []float64) error {
	n, c := x.Dims()
	if n == 0 || n != len(y) {
		return fmt.Errorf("gbrt fit: %d rows, %d targets", n, len(y))
	}
	if w == nil {
		w = ones(n)
	} else if len(w) != n {
		return fmt.Errorf("gbrt fit: %d rows, %d weights", n, len(w))
	}

	cols := make([][]float64, c)
	for j := range cols {
		cols[j] = mat.Col(nil, j, x)
	}

	wsum, ysum := 0.0, 0.0
	for i := range y {
		wsum += w[i]
		ysum += w[i] * y[i]
	}
	if wsum <= 0 {
		return fmt.Errorf("gbrt fit: non-positive total weight")
	}

	g.inputs = c
	g.init = ysum / wsum
	g.trees = g.trees[:0]

	pred := make([]float64, n)
	for i := range pred {
		pred[i] = g.init
	}
	resid := make([]float64, n)
	all := make([]int, n)
	for i := range all {
		all[i] = i
	}

	for t := 0; t < g.config.NTrees; t++ {
		for i := range resid {
			resid[i] = y[i] - pred[i]
		}
		b := &treeBuilder{cols: cols, target: resid, weight: w, maxDepth: g.config.MaxDepth, minLeaf: g.config.MinSamplesLeaf}
		b.grow(append([]int(nil), all...), 0)
		tree := regressionTree{Nodes: b.nodes}

		row := make([]float64, c)
		for i := 0; i < n; i++ {
			for j := range cols {
				row[j] = cols[j][i]
			}
			pred[i] += g.config.LearningRate * tree.predict(row)
		}
		g.trees = append(g.trees, tree)
	}
	return nil
}

func (g *GBRTRegressor) PredictRow(row []float64) (float64, error) {
	if len(row) != g.inputs {
		return 0, fmt.Errorf("gbrt expects %d inputs, got %d", g.inputs, len(row))
	}
	out := g.init
	for _, t := range g.trees {
		out += g.config.LearningRate * t.predict(row)
	}
	return out, nil
}

func (g *GBRTRegressor) Predict(x mat.Matrix) ([]float64, error) {
	r, c := x.Dims()
	out := make([]float64, r)
	row := make([]float64, c)
	for i := 0; i < r; i++ {
		mat.Row(row, i, x)
		v, err := g.PredictRow(row)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

type treeBuilder struct {
	cols     [][]float64
	target   []float64
	weight   []float64
	maxDepth int
	minLeaf  int
	nodes    []treeNode
}

// grow appends the subtree for idx and returns its node index.
func (b *treeBuilder) grow(idx []int, depth int) int {
	sw, swy := 0.0, 0.0
	for _, i := range idx {
		sw += b.weight[i]
		swy += b.weight[i] * b.target[i]
	}
	value := 0.0
	if sw > 0 {
		value = swy / sw
	}

	id := len(b.nodes)
	b.nodes = append(b.nodes, treeNode{Feature: -1, Left: leaf, Right: leaf, Value: value})
	if depth >= b.maxDepth || len(idx) < 2*b.minLeaf || sw <= 0 {
		return id
	}

	feature, threshold, ok := b.bestSplit(idx, sw, swy)
	if !ok {
		return id
	}

	var left, right []int
	col := b.cols[feature]
	for _, i := range idx {
		if col[i] <= threshold {
			left = append(left, i)
		} else {
			right = append(right, i)
		}
	}

	l := b.grow(left, depth+1)
	r := b.grow(right, depth+1)
	b.nodes[id].Feature = feature
	b.nodes[id].Threshold = threshold
	b.nodes[id].Left = l
	b.nodes[id].Right = r
	return id
}

// bestSplit scans every feature for the threshold maximizing the weighted
// reduction in squared error.
func (b *treeBuilder) bestSplit(idx []int, sw, swy float64) (int, float64, bool) {
	parent := swy * swy / sw
	bestGain, bestFeature, bestThreshold := 1e-12, -1, 0.0
	sorted := make([]int, len(idx))

	for f, col := range b.cols {
		copy(sorted, idx)
		sort.Slice(sorted, func(a, c int) bool { return col[sorted[a]] < col[sorted[c]] })

		lw, lwy := 0.0, 0.0
		for k := 0; k < len(sorted)-1; k++ {
			i := sorted[k]
			lw += b.weight[i]
			lwy += b.weight[i] * b.target[i]

			cur, next := col[i], col[sorted[k+1]]
			if cur == next {
				continue
			}
			if k+1 < b.minLeaf || len(sorted)-k-1 < b.minLeaf {
				continue
			}
			rw := sw - lw
			if lw <= 0 || rw <= 0 {
				continue
			}
			rwy := swy - lwy
			gain := lwy*lwy/lw + rwy*rwy/rw - parent
			if gain > bestGain {
				bestGain, bestFeature, bestThreshold = gain, f, (cur+next)/2
			}
		}
	}
	return bestFeature, bestThreshold, bestFeature >= 0
}

type gbrtJSON struct {
	Kind   string           `json:"kind"`
	Config GBRTConfig       `json:"config"`
	Inputs int              `json:"inputs"`
	Init   float64          `json:"init"`
	Trees  []regressionTree `json:"trees"`
}

const gbrtKind = "gbrt_regressor"

func (g *GBRTRegressor) MarshalJSON() ([]byte, error) {
	return json.Marshal(gbrtJSON{
		Kind:   gbrtKind,
		Config: g.config,
		Inputs: g.inputs,
		Init:   g.init,
		Trees:  g.trees,
	})
}

func (g *GBRTRegressor) UnmarshalJSON(data []byte) error {
	var doc gbrtJSON
	if err := json.Unmarshal(data, &doc); err != nil {
		return err
	}
	if doc.Kind != gbrtKind {
		return fmt.Errorf("artifact kind %q is not %s", doc.Kind, gbrtKind)
	}
	if doc.Inputs <= 0 {
		return fmt.Errorf("gbrt artifact has %d inputs", doc.Inputs)
	}
	for t, tree := range doc.Trees {
		if len(tree.Nodes) == 0 {
			return fmt.Errorf("gbrt tree %d is empty", t)
		}
		for k, n := range tree.Nodes {
			if n.Left == leaf {
				continue
			}
			if n.Feature < 0 || n.Feature >= doc.Inputs ||
				n.Left <= k || n.Left >= len(tree.Nodes) || n.Right <= k || n.Right >= len(tree.Nodes) {
				return fmt.Errorf("gbrt tree %d node %d is malformed", t, k)
			}
		}
	}
	g.config = doc.Config
	g.inputs = doc.Inputs
	g.init = doc.Init
	g.trees = doc.Trees
	return nil
}
