package ml

import (
	"encoding/json"
	"fmt"
	"math"
	"math/rand"

	"gonum.org/v1/gonum/mat"
	"gorgonia.org/gorgonia"
	"gorgonia.org/tensor"
)

// MLPConfig mirrors the usual feed-forward classifier knobs.
type MLPConfig struct {
	HiddenLayers       []int   `json:"hidden_layers"`
	LearningRate       float64 `json:"learning_rate"`
	MinLearningRate    float64 `json:"min_learning_rate"`
	BatchSize          int     `json:"batch_size"`
	MaxIter            int     `json:"max_iter"`
	Patience           int     `json:"patience"`
	Tol                float64 `json:"tol"`
	ValidationFraction float64 `json:"validation_fraction"`
	Alpha              float64 `json:"alpha"`
	Seed               int64   `json:"seed"`
}

func DefaultMLPConfig() MLPConfig {
	return MLPConfig{
		HiddenLayers:       []int{128, 64, 32},
		LearningRate:       0.001,
		MinLearningRate:    1e-6,
		BatchSize:          200,
		MaxIter:            200,
		Patience:           20,
		Tol:                1e-4,
		ValidationFraction: 0.15,
		Alpha:              1e-4,
		Seed:               42,
	}
}

const (
	probClip = 1e-12
	// rows needed before an internal validation slice is carved out
	minRowsForValidation = 20
)

// MLPClassifier is a ReLU network with a single sigmoid output giving the
// probability of the positive class. Training runs on a gorgonia graph;
// prediction replays the learned weights with gonum.
type MLPClassifier struct {
	config     MLPConfig
	weights    []*mat.Dense
	biases     [][]float64
	inputs     int
	iterations int
	bestLoss   float64
}

func NewMLPClassifier(cfg MLPConfig) *MLPClassifier {
	return &MLPClassifier{config: cfg}
}

func (m *MLPClassifier) Inputs() int { return m.inputs }

// Iterations is the number of epochs run before stopping.
func (m *MLPClassifier) Iterations() int { return m.iterations }

// BestLoss is the lowest early-stopping loss seen during Fit.
func (m *MLPClassifier) BestLoss() float64 { return m.bestLoss }

// Fit trains on x with binary labels y and optional per-row weights.
// Training holds out ValidationFraction of the rows for early stopping and
// restores the weights of the best validation epoch.
func (m *MLPClassifier) Fit(x mat.Matrix, y []float64, w []float64) error {
	n, inputs := x.Dims()
	if n == 0 || n != len(y) {
		return fmt.Errorf("mlp fit: %d rows, %d labels", n, len(y))
	}
	if w == nil {
		w = ones(n)
	} else if len(w) != n {
		return fmt.Errorf("mlp fit: %d rows, %d weights", n, len(w))
	}

	rng := rand.New(rand.NewSource(m.config.Seed))
	m.inputs = inputs
	m.initLayers(rng)

	perm := rng.Perm(n)
	trainIdx, valIdx := perm, []int(nil)
	if n >= minRowsForValidation && m.config.ValidationFraction > 0 {
		nVal := int(math.Ceil(float64(n) * m.config.ValidationFraction))
		valIdx, trainIdx = perm[:nVal], perm[nVal:]
	}

	xt, yt, wt := gather(x, y, w, trainIdx)
	var xv *mat.Dense
	var yv, wv []float64
	if len(valIdx) > 0 {
		xv, yv, wv = gather(x, y, w, valIdx)
	}

	batch := m.config.BatchSize
	if batch <= 0 || batch > len(trainIdx) {
		batch = len(trainIdx)
	}
	nn, err := m.buildNet(batch)
	if err != nil {
		return fmt.Errorf("mlp fit: %w", err)
	}
	defer nn.vm.Close()

	lr := m.config.LearningRate
	var solver gorgonia.Solver = gorgonia.NewAdamSolver(gorgonia.WithLearnRate(lr))

	best := math.Inf(1)
	bestWeights, bestBiases := m.cloneParams()
	stale := 0
	order := make([]int, len(trainIdx))
	for i := range order {
		order[i] = i
	}

	for epoch := 1; epoch <= m.config.MaxIter; epoch++ {
		rng.Shuffle(len(order), func(i, j int) { order[i], order[j] = order[j], order[i] })
		for start := 0; start < len(order); start += batch {
			if err := nn.step(solver, xt, yt, wt, order, start); err != nil {
				return fmt.Errorf("mlp fit: epoch %d: %w", epoch, err)
			}
		}
		m.iterations = epoch
		if err := m.pull(nn); err != nil {
			return fmt.Errorf("mlp fit: %w", err)
		}

		var loss float64
		if xv != nil {
			loss = m.loss(xv, yv, wv)
		} else {
			loss = m.loss(xt, yt, wt)
		}
		if math.IsNaN(loss) {
			return fmt.Errorf("mlp fit: loss diverged at epoch %d", epoch)
		}

		if loss < best-m.config.Tol {
			stale = 0
		} else {
			stale++
			if stale%2 == 0 && lr > m.config.MinLearningRate {
				lr = math.Max(lr/5, m.config.MinLearningRate)
				solver = gorgonia.NewAdamSolver(gorgonia.WithLearnRate(lr))
			}
		}
		if loss < best {
			best = loss
			bestWeights, bestBiases = m.cloneParams()
		}
		if m.config.Patience > 0 && stale >= m.config.Patience {
			break
		}
	}

	m.weights, m.biases = bestWeights, bestBiases
	m.bestLoss = best
	return nil
}

func (m *MLPClassifier) initLayers(rng *rand.Rand) {
	sizes := append([]int{m.inputs}, m.config.HiddenLayers...)
	sizes = append(sizes, 1)
	m.weights = make([]*mat.Dense, len(sizes)-1)
	m.biases = make([][]float64, len(sizes)-1)
	for l := 0; l < len(sizes)-1; l++ {
		in, out := sizes[l], sizes[l+1]
		factor := 6.0
		if l == len(sizes)-2 {
			factor = 2.0
		}
		bound := math.Sqrt(factor / float64(in+out))
		data := make([]float64, in*out)
		for i := range data {
			data[i] = (rng.Float64()*2 - 1) * bound
		}
		m.weights[l] = mat.NewDense(in, out, data)
		bias := make([]float64, out)
		for i := range bias {
			bias[i] = (rng.Float64()*2 - 1) * bound
		}
		m.biases[l] = bias
	}
}

// mlpNet is the training graph for one fixed batch size. Short batches are
// padded with zero-weight rows so every step reuses the same tape.
type mlpNet struct {
	batch   int
	inputs  int
	vm      gorgonia.VM
	x, y, w *gorgonia.Node
	weights []*gorgonia.Node
	biases  []*gorgonia.Node
	cost    *gorgonia.Node

	xBuf, yBuf, wBuf []float64
}

// buildNet lays the current weights out as graph learnables and wires a
// sample-weighted cross-entropy cost with an L2 penalty on the weights.
func (m *MLPClassifier) buildNet(batch int) (*mlpNet, error) {
	g := gorgonia.NewGraph()
	nn := &mlpNet{
		batch:  batch,
		inputs: m.inputs,
		xBuf:   make([]float64, batch*m.inputs),
		yBuf:   make([]float64, batch),
		wBuf:   make([]float64, batch),
	}
	nn.x = gorgonia.NewMatrix(g, tensor.Float64, gorgonia.WithShape(batch, m.inputs), gorgonia.WithName("x"))
	nn.y = gorgonia.NewMatrix(g, tensor.Float64, gorgonia.WithShape(batch, 1), gorgonia.WithName("y"))
	nn.w = gorgonia.NewMatrix(g, tensor.Float64, gorgonia.WithShape(batch, 1), gorgonia.WithName("sample_weight"))

	h := nn.x
	var l2 *gorgonia.Node
	last := len(m.weights) - 1
	for l, wd := range m.weights {
		r, c := wd.Dims()
		wn := gorgonia.NewMatrix(g, tensor.Float64,
			gorgonia.WithShape(r, c),
			gorgonia.WithName(fmt.Sprintf("w%d", l)),
			gorgonia.WithValue(tensor.New(tensor.WithShape(r, c), tensor.WithBacking(flatten(wd)))))
		bn := gorgonia.NewMatrix(g, tensor.Float64,
			gorgonia.WithShape(1, c),
			gorgonia.WithName(fmt.Sprintf("b%d", l)),
			gorgonia.WithValue(tensor.New(tensor.WithShape(1, c), tensor.WithBacking(append([]float64(nil), m.biases[l]...)))))
		nn.weights = append(nn.weights, wn)
		nn.biases = append(nn.biases, bn)

		linear := gorgonia.Must(gorgonia.Mul(h, wn))
		h = gorgonia.Must(gorgonia.BroadcastAdd(linear, bn, nil, []byte{0}))
		if l < last {
			h = gorgonia.Must(gorgonia.Rectify(h))
		}

		sq := gorgonia.Must(gorgonia.Sum(gorgonia.Must(gorgonia.Square(wn))))
		if l2 == nil {
			l2 = sq
		} else {
			l2 = gorgonia.Must(gorgonia.Add(l2, sq))
		}
	}

	one := gorgonia.NewConstant(1.0)
	prob := gorgonia.Must(gorgonia.Sigmoid(h))
	// keep both log terms finite once the sigmoid saturates
	prob = gorgonia.Must(gorgonia.Add(gorgonia.NewConstant(probClip),
		gorgonia.Must(gorgonia.Mul(gorgonia.NewConstant(1-2*probClip), prob))))
	pos := gorgonia.Must(gorgonia.HadamardProd(nn.y, gorgonia.Must(gorgonia.Log(prob))))
	neg := gorgonia.Must(gorgonia.HadamardProd(
		gorgonia.Must(gorgonia.Sub(one, nn.y)),
		gorgonia.Must(gorgonia.Log(gorgonia.Must(gorgonia.Sub(one, prob))))))
	xent := gorgonia.Must(gorgonia.Neg(gorgonia.Must(gorgonia.Add(pos, neg))))
	nn.cost = gorgonia.Must(gorgonia.Sum(gorgonia.Must(gorgonia.HadamardProd(xent, nn.w))))
	if m.config.Alpha > 0 {
		penalty := gorgonia.Must(gorgonia.Mul(gorgonia.NewConstant(0.5*m.config.Alpha/float64(batch)), l2))
		nn.cost = gorgonia.Must(gorgonia.Add(nn.cost, penalty))
	}

	if _, err := gorgonia.Grad(nn.cost, nn.learnables()...); err != nil {
		return nil, fmt.Errorf("building gradients: %w", err)
	}
	nn.vm = gorgonia.NewTapeMachine(g, gorgonia.BindDualValues(nn.learnables()...))
	return nn, nil
}

func (nn *mlpNet) learnables() gorgonia.Nodes {
	out := make(gorgonia.Nodes, 0, len(nn.weights)*2)
	for l := range nn.weights {
		out = append(out, nn.weights[l], nn.biases[l])
	}
	return out
}

// step runs one Adam update on order[start:start+batch]. Sample weights are
// normalised over the real rows; padding rows carry zero weight.
func (nn *mlpNet) step(solver gorgonia.Solver, x *mat.Dense, y, w []float64, order []int, start int) error {
	wsum := 0.0
	for i := 0; i < nn.batch; i++ {
		k := start + i
		weight := 0.0
		if k >= len(order) {
			k -= len(order)
		} else {
			weight = w[order[k]]
		}
		r := order[k]
		mat.Row(nn.xBuf[i*nn.inputs:(i+1)*nn.inputs], r, x)
		nn.yBuf[i] = y[r]
		nn.wBuf[i] = weight
		wsum += weight
	}
	if wsum == 0 {
		return nil
	}
	for i := range nn.wBuf {
		nn.wBuf[i] /= wsum
	}

	if err := gorgonia.Let(nn.x, tensor.New(tensor.WithShape(nn.batch, nn.inputs), tensor.WithBacking(nn.xBuf))); err != nil {
		return err
	}
	if err := gorgonia.Let(nn.y, tensor.New(tensor.WithShape(nn.batch, 1), tensor.WithBacking(nn.yBuf))); err != nil {
		return err
	}
	if err := gorgonia.Let(nn.w, tensor.New(tensor.WithShape(nn.batch, 1), tensor.WithBacking(nn.wBuf))); err != nil {
		return err
	}
	defer nn.vm.Reset()
	if err := nn.vm.RunAll(); err != nil {
		return err
	}
	return solver.Step(gorgonia.NodesToValueGrads(nn.learnables()))
}

// pull copies the graph's current learnables back into the gonum layers.
func (m *MLPClassifier) pull(nn *mlpNet) error {
	for l := range nn.weights {
		wd, ok := nn.weights[l].Value().Data().([]float64)
		if !ok {
			return fmt.Errorf("layer %d weights are not float64", l)
		}
		bd, ok := nn.biases[l].Value().Data().([]float64)
		if !ok {
			return fmt.Errorf("layer %d bias is not float64", l)
		}
		r, c := m.weights[l].Dims()
		m.weights[l] = mat.NewDense(r, c, append([]float64(nil), wd...))
		m.biases[l] = append([]float64(nil), bd...)
	}
	return nil
}

// forward returns the activation of every layer, input first.
func (m *MLPClassifier) forward(x mat.Matrix) []*mat.Dense {
	r, c := x.Dims()
	input := mat.NewDense(r, c, nil)
	input.Copy(x)
	acts := []*mat.Dense{input}
	last := len(m.weights) - 1
	for l, w := range m.weights {
		var z mat.Dense
		z.Mul(acts[l], w)
		bias := m.biases[l]
		if l < last {
			z.Apply(func(_, j int, v float64) float64 {
				return math.Max(0, v+bias[j])
			}, &z)
		} else {
			z.Apply(func(_, j int, v float64) float64 {
				return sigmoid(v + bias[j])
			}, &z)
		}
		acts = append(acts, &z)
	}
	return acts
}

func (m *MLPClassifier) loss(x *mat.Dense, y, w []float64) float64 {
	acts := m.forward(x)
	out := acts[len(acts)-1]
	total, wsum := 0.0, 0.0
	for i := range y {
		p := clip(out.At(i, 0))
		total -= w[i] * (y[i]*math.Log(p) + (1-y[i])*math.Log(1-p))
		wsum += w[i]
	}
	if wsum == 0 {
		return 0
	}
	return total / wsum
}

// PredictProba returns P(positive) for every row.
func (m *MLPClassifier) PredictProba(x mat.Matrix) ([]float64, error) {
	r, c := x.Dims()
	if len(m.weights) == 0 {
		return nil, fmt.Errorf("mlp not fitted")
	}
	if c != m.inputs {
		return nil, fmt.Errorf("mlp expects %d inputs, got %d", m.inputs, c)
	}
	if r == 0 {
		return nil, nil
	}
	acts := m.forward(x)
	out := acts[len(acts)-1]
	probs := make([]float64, r)
	for i := range probs {
		probs[i] = out.At(i, 0)
	}
	return probs, nil
}

func (m *MLPClassifier) PredictProbaRow(row []float64) (float64, error) {
	if len(row) != m.inputs || len(row) == 0 {
		return 0, fmt.Errorf("mlp expects %d inputs, got %d", m.inputs, len(row))
	}
	probs, err := m.PredictProba(mat.NewDense(1, len(row), append([]float64(nil), row...)))
	if err != nil {
		return 0, err
	}
	return probs[0], nil
}

func (m *MLPClassifier) cloneParams() ([]*mat.Dense, [][]float64) {
	ws := make([]*mat.Dense, len(m.weights))
	bs := make([][]float64, len(m.biases))
	for l := range m.weights {
		ws[l] = mat.DenseCopyOf(m.weights[l])
		bs[l] = append([]float64(nil), m.biases[l]...)
	}
	return ws, bs
}

type mlpLayerJSON struct {
	Weights denseJSON `json:"weights"`
	Bias    []float64 `json:"bias"`
}

type mlpJSON struct {
	Kind       string         `json:"kind"`
	Config     MLPConfig      `json:"config"`
	Inputs     int            `json:"inputs"`
	Iterations int            `json:"iterations"`
	BestLoss   float64        `json:"best_loss"`
	Layers     []mlpLayerJSON `json:"layers"`
}

const mlpKind = "mlp_classifier"

func (m *MLPClassifier) MarshalJSON() ([]byte, error) {
	doc := mlpJSON{
		Kind:       mlpKind,
		Config:     m.config,
		Inputs:     m.inputs,
		Iterations: m.iterations,
		BestLoss:   m.bestLoss,
	}
	for l := range m.weights {
		doc.Layers = append(doc.Layers, mlpLayerJSON{Weights: encodeDense(m.weights[l]), Bias: m.biases[l]})
	}
	return json.Marshal(doc)
}

func (m *MLPClassifier) UnmarshalJSON(data []byte) error {
	var doc mlpJSON
	if err := json.Unmarshal(data, &doc); err != nil {
		return err
	}
	if doc.Kind != mlpKind {
		return fmt.Errorf("artifact kind %q is not %s", doc.Kind, mlpKind)
	}
	if len(doc.Layers) == 0 {
		return fmt.Errorf("mlp artifact has no layers")
	}

	weights := make([]*mat.Dense, len(doc.Layers))
	biases := make([][]float64, len(doc.Layers))
	prev := doc.Inputs
	for l, layer := range doc.Layers {
		w, err := layer.Weights.decode()
		if err != nil {
			return fmt.Errorf("mlp layer %d: %w", l, err)
		}
		r, c := w.Dims()
		if r != prev || len(layer.Bias) != c {
			return fmt.Errorf("mlp layer %d is %dx%d with %d biases after %d units", l, r, c, len(layer.Bias), prev)
		}
		weights[l], biases[l] = w, layer.Bias
		prev = c
	}
	if prev != 1 {
		return fmt.Errorf("mlp output layer has %d units", prev)
	}

	m.config = doc.Config
	m.inputs = doc.Inputs
	m.iterations = doc.Iterations
	m.bestLoss = doc.BestLoss
	m.weights, m.biases = weights, biases
	return nil
}

func gather(x mat.Matrix, y, w []float64, idx []int) (*mat.Dense, []float64, []float64) {
	xs := SelectRows(x, idx)
	ys := make([]float64, len(idx))
	ws := make([]float64, len(idx))
	for i, r := range idx {
		ys[i] = y[r]
		ws[i] = w[r]
	}
	return xs, ys, ws
}

func sigmoid(v float64) float64 {
	if v >= 0 {
		return 1 / (1 + math.Exp(-v))
	}
	e := math.Exp(v)
	return e / (1 + e)
}

func clip(p float64) float64 {
	return math.Min(math.Max(p, probClip), 1-probClip)
}

func ones(n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = 1
	}
	return out
}

func flatten(d *mat.Dense) []float64 {
	r, c := d.Dims()
	out := make([]float64, 0, r*c)
	for i := 0; i < r; i++ {
		out = append(out, d.RawRowView(i)...)
	}
	return out
}
