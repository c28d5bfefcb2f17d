package comptonnet

import (
	"math"
	"math/rand"
)

// param is one learnable tensor: a flat weight buffer and its gradient
// accumulator. Layers register their params with the model so the
// optimizer, gradient clipping and weight snapshots can treat the whole
// network uniformly.
type param struct {
	name string
	w    []float32
	g    []float32
	// decay marks params subject to L2 regularization (dense weights).
	decay bool
}

func newParam(name string, size int) *param {
	return &param{name: name, w: make([]float32, size), g: make([]float32, size)}
}

func (p *param) zeroGrad() {
	for i := range p.g {
		p.g[i] = 0
	}
}

// initXavier fills w with the Glorot uniform heuristic for a layer with
// the given fan-in and fan-out, matching the repository's MLP init.
func initXavier(rng *rand.Rand, w []float32, fanIn, fanOut int) {
	limit := float32(math.Sqrt(6.0 / float64(fanIn+fanOut)))
	for i := range w {
		w[i] = (rng.Float32()*2 - 1) * limit
	}
}

// snapshotParams deep-copies all weights, used by early stopping to roll
// back to the best-observed epoch.
func snapshotParams(params []*param) [][]float32 {
	snap := make([][]float32, len(params))
	for i, p := range params {
		cp := make([]float32, len(p.w))
		copy(cp, p.w)
		snap[i] = cp
	}
	return snap
}

func restoreParams(params []*param, snap [][]float32) {
	for i, p := range params {
		copy(p.w, snap[i])
	}
}

// scaleGrads multiplies every gradient by s (batch averaging).
func scaleGrads(params []*param, s float32) {
	for _, p := range params {
		for i := range p.g {
			p.g[i] *= s
		}
	}
}

// clipGrads rescales gradients so their global L2 norm does not exceed
// maxNorm. A zero or negative maxNorm disables clipping.
func clipGrads(params []*param, maxNorm float32) {
	if maxNorm <= 0 {
		return
	}
	var sum float64
	for _, p := range params {
		for _, g := range p.g {
			sum += float64(g) * float64(g)
		}
	}
	norm := math.Sqrt(sum)
	if norm <= float64(maxNorm) {
		return
	}
	scale := float32(float64(maxNorm) / norm)
	for _, p := range params {
		for i := range p.g {
			p.g[i] *= scale
		}
	}
}
