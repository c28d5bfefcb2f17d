// Package comptonnet defines the source-localization network: a stack of
// 1-D convolution blocks along the event axis, bidirectional GRU
// aggregation and dense regression heads, together with its composite
// loss, optimizers, learning-rate schedules and trainer.
//
// The implementation is a self-contained pure-Go trainer in the style of
// the rest of the repository: forward and backward passes over plain
// float32 slices, deterministic under a fixed seed. Datasets feeding it
// can also expose gomlx tensors (see the datasets package) for callers
// that want to drive a gomlx training loop instead.
package comptonnet

import (
	"errors"
	"fmt"
	"math/rand"
	"time"
)

// Config holds the architecture and regularization hyperparameters.
type Config struct {
	// Events is the fixed event-count dimension of every input tensor.
	Events int
	// Channels is the per-event feature width.
	Channels int

	// ConvChannels lists the output width of each conv block
	// (64→128→256 standard, 128→256→512 in the deep variant).
	ConvChannels []int
	// KernelSize is the conv window along the event axis.
	KernelSize int
	// PoolSize is the event-axis max-pool window of each block.
	PoolSize int

	// GRUSizes lists the hidden width of each bidirectional recurrent
	// layer, decreasing. The last layer emits its final states; earlier
	// ones emit full sequences.
	GRUSizes []int

	// DenseSize is the width of the hidden dense layer.
	DenseSize int
	// SigmoidHead selects two sigmoid output units (bounded-label
	// contract) instead of a linear 2-output head.
	SigmoidHead bool

	// L2 is the weight-decay coefficient applied to dense weights.
	L2 float64
	// Dropout is the drop rate after the hidden dense layer.
	Dropout float64

	// Seed controls weight init, shuffling and dropout masks. Zero means
	// time-based.
	Seed int64
}

// DefaultConfig returns the standard variant for the fixed 3000-event,
// six-feature input.
func DefaultConfig() Config {
	return Config{
		Events:       3000,
		Channels:     6,
		ConvChannels: []int{64, 128, 256},
		KernelSize:   5,
		PoolSize:     4,
		GRUSizes:     []int{64, 32},
		DenseSize:    64,
		L2:           1e-4,
		Dropout:      0.3,
	}
}

// DeepConfig returns the deeper variant (wider conv stack, single
// recurrent layer, linear head left to the label policy).
func DeepConfig() Config {
	cfg := DefaultConfig()
	cfg.ConvChannels = []int{128, 256, 512}
	cfg.GRUSizes = []int{64}
	return cfg
}

// convBlock is conv + channel normalization + ReLU + event-axis max pool.
type convBlock struct {
	conv *conv1d
	norm *channelNorm
	pool *maxPool1d
}

// Model owns the network weights. It is constructed for one fixed input
// shape, trained by the Trainer, then used read-only for inference.
type Model struct {
	Config Config

	convs  []*convBlock
	grus   []*biGRU
	hidden *dense
	drop   *dropout
	head   *dense

	rng       *rand.Rand
	allParams []*param
}

// NewModel builds a model with initialized weights for the given config.
func NewModel(cfg Config) (*Model, error) {
	if cfg.Events <= 0 || cfg.Channels <= 0 {
		return nil, errors.New("config must set Events and Channels")
	}
	if len(cfg.ConvChannels) == 0 || len(cfg.GRUSizes) == 0 {
		return nil, errors.New("config must set ConvChannels and GRUSizes")
	}
	if cfg.KernelSize <= 0 || cfg.KernelSize%2 == 0 {
		return nil, fmt.Errorf("kernel size must be positive and odd, got %d", cfg.KernelSize)
	}
	if cfg.PoolSize <= 0 {
		return nil, fmt.Errorf("pool size must be positive, got %d", cfg.PoolSize)
	}
	if cfg.Seed == 0 {
		cfg.Seed = time.Now().UnixNano()
	}

	m := &Model{Config: cfg, rng: rand.New(rand.NewSource(cfg.Seed))}

	T := cfg.Events
	in := cfg.Channels
	for i, out := range cfg.ConvChannels {
		blk := &convBlock{
			conv: newConv1d(m.rng, fmt.Sprintf("conv%d", i), in, out, cfg.KernelSize),
			norm: newChannelNorm(fmt.Sprintf("norm%d", i), out),
			pool: &maxPool1d{pool: cfg.PoolSize, c: out},
		}
		m.convs = append(m.convs, blk)
		in = out
		T /= cfg.PoolSize
		if T < 1 {
			return nil, fmt.Errorf("event dimension collapsed to %d after conv block %d", T, i)
		}
	}

	for i, h := range cfg.GRUSizes {
		returnSeq := i < len(cfg.GRUSizes)-1
		g := newBiGRU(m.rng, fmt.Sprintf("bigru%d", i), in, h, returnSeq)
		m.grus = append(m.grus, g)
		in = g.outWidth()
	}

	m.hidden = newDense(m.rng, "hidden", in, cfg.DenseSize, cfg.L2 > 0)
	m.drop = &dropout{rate: cfg.Dropout}
	m.head = newDense(m.rng, "head", cfg.DenseSize, 2, cfg.L2 > 0)

	for _, blk := range m.convs {
		m.allParams = append(m.allParams, blk.conv.params()...)
		m.allParams = append(m.allParams, blk.norm.params()...)
	}
	for _, g := range m.grus {
		m.allParams = append(m.allParams, g.params()...)
	}
	m.allParams = append(m.allParams, m.hidden.params()...)
	m.allParams = append(m.allParams, m.head.params()...)
	return m, nil
}

// InputSize returns the flattened length a sample input must have.
func (m *Model) InputSize() int { return m.Config.Events * m.Config.Channels }

func (m *Model) params() []*param { return m.allParams }

// fwdCache holds everything one sample's backward pass needs.
type fwdCache struct {
	convIn   [][]float32 // input to each conv block
	convT    []int       // event length entering each block
	normOut  [][]float32 // post-ReLU activations per block
	norms    []*channelNormCache
	poolArgs [][]int

	gruIn  [][]float32 // input to each recurrent layer
	gruT   []int
	grus   []*biGRUCache
	gruOut []float32 // final recurrent summary vector

	hiddenAct []float32 // post-ReLU hidden activations
	dropMask  []float32
	dropOut   []float32
	pred      []float32
}

// forward runs one sample through the network. train enables dropout.
func (m *Model) forward(x []float32, train bool) (*fwdCache, error) {
	if len(x) != m.InputSize() {
		return nil, fmt.Errorf("input has length %d, want %d", len(x), m.InputSize())
	}
	cache := &fwdCache{}
	T := m.Config.Events
	cur := x
	for _, blk := range m.convs {
		cache.convIn = append(cache.convIn, cur)
		cache.convT = append(cache.convT, T)
		y := blk.conv.forward(cur, T)
		y, nc := blk.norm.forward(y, T)
		cache.norms = append(cache.norms, nc)
		y = reluForward(y)
		cache.normOut = append(cache.normOut, y)
		pooled, arg := blk.pool.forward(y, T)
		cache.poolArgs = append(cache.poolArgs, arg)
		cur = pooled
		T = blk.pool.outLen(T)
	}

	for _, g := range m.grus {
		cache.gruIn = append(cache.gruIn, cur)
		cache.gruT = append(cache.gruT, T)
		y, gc := g.forward(cur, T)
		cache.grus = append(cache.grus, gc)
		cur = y
	}
	cache.gruOut = cur

	h := m.hidden.forward(cur)
	h = reluForward(h)
	cache.hiddenAct = h
	d, mask := m.drop.forward(m.rng, h, train)
	cache.dropMask = mask
	cache.dropOut = d

	pred := m.head.forward(d)
	if m.Config.SigmoidHead {
		for i := range pred {
			pred[i] = sigmoid(pred[i])
		}
	}
	cache.pred = pred
	return cache, nil
}

// backward accumulates parameter gradients for one sample given the loss
// gradient on the prediction.
func (m *Model) backward(cache *fwdCache, dPred []float32) {
	d := make([]float32, len(dPred))
	copy(d, dPred)
	if m.Config.SigmoidHead {
		for i, p := range cache.pred {
			d[i] *= p * (1 - p)
		}
	}

	dx := m.head.backward(cache.dropOut, d)
	dx = m.drop.backward(cache.dropMask, dx)
	dx = reluBackward(cache.hiddenAct, dx)
	dx = m.hidden.backward(cache.gruOut, dx)

	for i := len(m.grus) - 1; i >= 0; i-- {
		dx = m.grus[i].backward(cache.gruIn[i], cache.gruT[i], cache.grus[i], dx)
	}

	for i := len(m.convs) - 1; i >= 0; i-- {
		blk := m.convs[i]
		T := cache.convT[i]
		dx = blk.pool.backward(cache.poolArgs[i], T, dx)
		dx = reluBackward(cache.normOut[i], dx)
		dx = blk.norm.backward(cache.norms[i], dx)
		dx = blk.conv.backward(cache.convIn[i], T, dx)
	}
}

// Predict runs inference for one flattened sample and returns the
// 2-element model-space prediction.
func (m *Model) Predict(x []float32) ([]float32, error) {
	cache, err := m.forward(x, false)
	if err != nil {
		return nil, err
	}
	return cache.pred, nil
}

// PredictBatch runs inference over a batch of flattened samples. The
// returned slice has shape (batch, 2) in model output space.
func (m *Model) PredictBatch(inputs [][]float32) ([][]float32, error) {
	out := make([][]float32, len(inputs))
	for i, x := range inputs {
		pred, err := m.Predict(x)
		if err != nil {
			return nil, fmt.Errorf("sample %d: %w", i, err)
		}
		out[i] = pred
	}
	return out, nil
}
