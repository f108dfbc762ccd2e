package emotion

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os"

	"gonum.org/v1/gonum/mat"
)

// Layer types understood by the model artifact.
const (
	LayerConv1D        = "conv1d"
	LayerReLU          = "relu"
	LayerMaxPool       = "maxpool"
	LayerGlobalAvgPool = "globalavgpool"
	LayerFlatten       = "flatten"
	LayerDense         = "dense"
)

// ModelFile is the on-disk JSON form of a trained network.
//
// Activations are (channels x time). The input is the feature matrix with
// coefficients as channels. Conv1D weights are [out][in*kernel] with index
// in*kernel+k; dense weights are [out][in]. Flatten is channel-major.
type ModelFile struct {
	Name       string      `json:"name"`
	Version    string      `json:"version,omitempty"`
	InputShape []int       `json:"input_shape"`
	Labels     []string    `json:"labels,omitempty"`
	Layers     []LayerSpec `json:"layers"`
}

// LayerSpec describes one layer of a ModelFile.
type LayerSpec struct {
	Type        string      `json:"type"`
	InChannels  int         `json:"in_channels,omitempty"`
	OutChannels int         `json:"out_channels,omitempty"`
	KernelSize  int         `json:"kernel_size,omitempty"`
	Stride      int         `json:"stride,omitempty"`
	Padding     int         `json:"padding,omitempty"`
	InFeatures  int         `json:"in_features,omitempty"`
	OutFeatures int         `json:"out_features,omitempty"`
	Weights     [][]float64 `json:"weights,omitempty"`
	Bias        []float64   `json:"bias,omitempty"`
}

// ReadModelFile decodes a model artifact from path.
func ReadModelFile(path string) (*ModelFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var mf ModelFile
	if err := json.Unmarshal(data, &mf); err != nil {
		return nil, fmt.Errorf("failed to parse model file: %w", err)
	}
	return &mf, nil
}

// Save writes the artifact as JSON.
func (mf *ModelFile) Save(path string) error {
	data, err := json.Marshal(mf)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

type layer interface {
	kind() string
	// outShape maps an input (channels, time) to the output shape.
	outShape(channels, steps int) (int, int, error)
	forward(x *mat.Dense) *mat.Dense
	params() int
}

// Network runs inference over a compiled ModelFile. Weights are never
// mutated after compile, so one Network is safe for concurrent use.
type Network struct {
	name     string
	version  string
	channels int
	steps    int
	layers   []layer
}

// NewNetwork compiles mf and checks that a NumCoefficients x NumFrames input
// flows through every layer to NumLabels scores.
func NewNetwork(mf *ModelFile) (*Network, error) {
	if len(mf.InputShape) != 2 || mf.InputShape[0] != NumCoefficients || mf.InputShape[1] != NumFrames {
		return nil, fmt.Errorf("%w: model input %v, want [%d %d]", ErrShapeMismatch, mf.InputShape, NumCoefficients, NumFrames)
	}
	if len(mf.Labels) > 0 {
		if len(mf.Labels) != NumLabels {
			return nil, fmt.Errorf("%w: model has %d labels, want %d", ErrShapeMismatch, len(mf.Labels), NumLabels)
		}
		for i, l := range mf.Labels {
			if Label(l) != Labels[i] {
				return nil, fmt.Errorf("model label %d is %q, want %q", i, l, Labels[i])
			}
		}
	}
	if len(mf.Layers) == 0 {
		return nil, errors.New("model has no layers")
	}

	n := &Network{
		name:     mf.Name,
		version:  mf.Version,
		channels: mf.InputShape[0],
		steps:    mf.InputShape[1],
	}

	c, t := n.channels, n.steps
	for i, spec := range mf.Layers {
		l, err := compileLayer(spec)
		if err != nil {
			return nil, fmt.Errorf("layer %d (%s): %w", i, spec.Type, err)
		}
		c, t, err = l.outShape(c, t)
		if err != nil {
			return nil, fmt.Errorf("layer %d (%s): %w", i, spec.Type, err)
		}
		n.layers = append(n.layers, l)
	}

	if c*t != NumLabels {
		return nil, fmt.Errorf("%w: model produces %dx%d outputs, want %d scores", ErrShapeMismatch, c, t, NumLabels)
	}
	return n, nil
}

// Forward runs a batch of feature matrices and returns NumLabels scores per item.
func (n *Network) Forward(batch []FeatureMatrix) ([][]float64, error) {
	scores := make([][]float64, len(batch))
	for b, m := range batch {
		if err := m.Validate(); err != nil {
			return nil, fmt.Errorf("batch item %d: %w", b, err)
		}

		x := mat.NewDense(n.channels, n.steps, nil)
		for i, row := range m {
			x.SetRow(i, row)
		}
		for _, l := range n.layers {
			x = l.forward(x)
		}

		r, c := x.Dims()
		out := make([]float64, 0, r*c)
		for i := 0; i < r; i++ {
			out = append(out, mat.Row(nil, i, x)...)
		}
		scores[b] = out
	}
	return scores, nil
}

// ModelInfo summarises a compiled network.
type ModelInfo struct {
	Name       string   `json:"name"`
	Version    string   `json:"version,omitempty"`
	InputShape []int    `json:"input_shape"`
	Layers     []string `json:"layers"`
	Parameters int      `json:"parameters"`
}

// Info describes the network for the model inspect command.
func (n *Network) Info() ModelInfo {
	info := ModelInfo{
		Name:       n.name,
		Version:    n.version,
		InputShape: []int{n.channels, n.steps},
	}
	for _, l := range n.layers {
		info.Layers = append(info.Layers, l.kind())
		info.Parameters += l.params()
	}
	return info
}

func compileLayer(spec LayerSpec) (layer, error) {
	switch spec.Type {
	case LayerConv1D:
		return newConv1D(spec)
	case LayerDense:
		return newDense(spec)
	case LayerReLU:
		return relu{}, nil
	case LayerMaxPool:
		k := spec.KernelSize
		if k <= 0 {
			return nil, errors.New("kernel_size must be positive")
		}
		stride := spec.Stride
		if stride <= 0 {
			stride = k
		}
		return maxPool{kernel: k, stride: stride}, nil
	case LayerGlobalAvgPool:
		return globalAvgPool{}, nil
	case LayerFlatten:
		return flatten{}, nil
	default:
		return nil, fmt.Errorf("unknown layer type %q", spec.Type)
	}
}

func weightMatrix(rows, cols int, weights [][]float64) (*mat.Dense, error) {
	if len(weights) != rows {
		return nil, fmt.Errorf("weights have %d rows, want %d", len(weights), rows)
	}
	w := mat.NewDense(rows, cols, nil)
	for i, row := range weights {
		if len(row) != cols {
			return nil, fmt.Errorf("weight row %d has %d values, want %d", i, len(row), cols)
		}
		w.SetRow(i, row)
	}
	return w, nil
}

func biasVector(n int, bias []float64) (*mat.VecDense, error) {
	if len(bias) == 0 {
		return mat.NewVecDense(n, nil), nil
	}
	if len(bias) != n {
		return nil, fmt.Errorf("bias has %d values, want %d", len(bias), n)
	}
	return mat.NewVecDense(n, append([]float64(nil), bias...)), nil
}

type conv1D struct {
	in, out, kernel, stride, padding int
	weights                          *mat.Dense // out x (in*kernel)
	bias                             *mat.VecDense
}

func newConv1D(spec LayerSpec) (*conv1D, error) {
	if spec.InChannels <= 0 || spec.OutChannels <= 0 || spec.KernelSize <= 0 {
		return nil, errors.New("in_channels, out_channels and kernel_size must be positive")
	}
	stride := max(1, spec.Stride)

	w, err := weightMatrix(spec.OutChannels, spec.InChannels*spec.KernelSize, spec.Weights)
	if err != nil {
		return nil, err
	}
	b, err := biasVector(spec.OutChannels, spec.Bias)
	if err != nil {
		return nil, err
	}

	return &conv1D{
		in:      spec.InChannels,
		out:     spec.OutChannels,
		kernel:  spec.KernelSize,
		stride:  stride,
		padding: max(0, spec.Padding),
		weights: w,
		bias:    b,
	}, nil
}

func (c *conv1D) kind() string { return LayerConv1D }

func (c *conv1D) params() int { return c.out*c.in*c.kernel + c.out }

func (c *conv1D) outShape(channels, steps int) (int, int, error) {
	if channels != c.in {
		return 0, 0, fmt.Errorf("%w: got %d channels, want %d", ErrShapeMismatch, channels, c.in)
	}
	outSteps := (steps+2*c.padding-c.kernel)/c.stride + 1
	if outSteps <= 0 {
		return 0, 0, fmt.Errorf("%w: %d steps too short for kernel %d", ErrShapeMismatch, steps, c.kernel)
	}
	return c.out, outSteps, nil
}

// forward lowers the convolution to one matrix product over an im2col buffer.
func (c *conv1D) forward(x *mat.Dense) *mat.Dense {
	_, steps := x.Dims()
	_, outSteps, _ := c.outShape(c.in, steps)

	cols := mat.NewDense(c.in*c.kernel, outSteps, nil)
	for ch := 0; ch < c.in; ch++ {
		for k := 0; k < c.kernel; k++ {
			row := ch*c.kernel + k
			for t := 0; t < outSteps; t++ {
				src := t*c.stride + k - c.padding
				if src >= 0 && src < steps {
					cols.Set(row, t, x.At(ch, src))
				}
			}
		}
	}

	var y mat.Dense
	y.Mul(c.weights, cols)
	for o := 0; o < c.out; o++ {
		b := c.bias.AtVec(o)
		for t := 0; t < outSteps; t++ {
			y.Set(o, t, y.At(o, t)+b)
		}
	}
	return &y
}

type dense struct {
	in, out int
	weights *mat.Dense // out x in
	bias    *mat.VecDense
}

func newDense(spec LayerSpec) (*dense, error) {
	if spec.InFeatures <= 0 || spec.OutFeatures <= 0 {
		return nil, errors.New("in_features and out_features must be positive")
	}
	w, err := weightMatrix(spec.OutFeatures, spec.InFeatures, spec.Weights)
	if err != nil {
		return nil, err
	}
	b, err := biasVector(spec.OutFeatures, spec.Bias)
	if err != nil {
		return nil, err
	}
	return &dense{in: spec.InFeatures, out: spec.OutFeatures, weights: w, bias: b}, nil
}

func (d *dense) kind() string { return LayerDense }

func (d *dense) params() int { return d.out*d.in + d.out }

// dense expects a column vector (features x 1).
func (d *dense) outShape(channels, steps int) (int, int, error) {
	if steps != 1 || channels != d.in {
		return 0, 0, fmt.Errorf("%w: got %dx%d, want %dx1", ErrShapeMismatch, channels, steps, d.in)
	}
	return d.out, 1, nil
}

func (d *dense) forward(x *mat.Dense) *mat.Dense {
	var y mat.Dense
	y.Mul(d.weights, x)
	for o := 0; o < d.out; o++ {
		y.Set(o, 0, y.At(o, 0)+d.bias.AtVec(o))
	}
	return &y
}

type relu struct{}

func (relu) kind() string { return LayerReLU }

func (relu) params() int { return 0 }

func (relu) outShape(channels, steps int) (int, int, error) { return channels, steps, nil }

func (relu) forward(x *mat.Dense) *mat.Dense {
	var y mat.Dense
	y.Apply(func(_, _ int, v float64) float64 { return math.Max(0, v) }, x)
	return &y
}

type maxPool struct {
	kernel, stride int
}

func (maxPool) kind() string { return LayerMaxPool }

func (maxPool) params() int { return 0 }

func (p maxPool) outShape(channels, steps int) (int, int, error) {
	out := (steps-p.kernel)/p.stride + 1
	if out <= 0 {
		return 0, 0, fmt.Errorf("%w: %d steps too short for pool %d", ErrShapeMismatch, steps, p.kernel)
	}
	return channels, out, nil
}

func (p maxPool) forward(x *mat.Dense) *mat.Dense {
	channels, steps := x.Dims()
	_, out, _ := p.outShape(channels, steps)

	y := mat.NewDense(channels, out, nil)
	for c := 0; c < channels; c++ {
		for t := 0; t < out; t++ {
			best := math.Inf(-1)
			for k := 0; k < p.kernel; k++ {
				best = math.Max(best, x.At(c, t*p.stride+k))
			}
			y.Set(c, t, best)
		}
	}
	return y
}

type globalAvgPool struct{}

func (globalAvgPool) kind() string { return LayerGlobalAvgPool }

func (globalAvgPool) params() int { return 0 }

func (globalAvgPool) outShape(channels, _ int) (int, int, error) { return channels, 1, nil }

func (globalAvgPool) forward(x *mat.Dense) *mat.Dense {
	channels, steps := x.Dims()
	y := mat.NewDense(channels, 1, nil)
	for c := 0; c < channels; c++ {
		y.Set(c, 0, mat.Sum(x.RowView(c))/float64(steps))
	}
	return y
}

type flatten struct{}

func (flatten) kind() string { return LayerFlatten }

func (flatten) params() int { return 0 }

func (flatten) outShape(channels, steps int) (int, int, error) { return channels * steps, 1, nil }

func (flatten) forward(x *mat.Dense) *mat.Dense {
	channels, steps := x.Dims()
	y := mat.NewDense(channels*steps, 1, nil)
	for c := 0; c < channels; c++ {
		for t := 0; t < steps; t++ {
			y.Set(c*steps+t, 0, x.At(c, t))
		}
	}
	return y
}
