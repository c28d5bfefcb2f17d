package comptonnet

import "math"

// Optimizer applies accumulated gradients to the model parameters.
type Optimizer interface {
	Step(params []*param, lr float64)
}

// SGD is plain gradient descent.
type SGD struct{}

func (SGD) Step(params []*param, lr float64) {
	for _, p := range params {
		for i := range p.w {
			p.w[i] -= float32(lr) * p.g[i]
		}
	}
}

// Adam keeps per-parameter first and second moment estimates. State is
// allocated lazily on the first step and keyed by position in the param
// list, which is stable for the lifetime of a model.
type Adam struct {
	Beta1   float64
	Beta2   float64
	Epsilon float64

	t int
	m [][]float32
	v [][]float32
}

// NewAdam returns an Adam optimizer with the usual defaults.
func NewAdam() *Adam {
	return &Adam{Beta1: 0.9, Beta2: 0.999, Epsilon: 1e-8}
}

func (a *Adam) Step(params []*param, lr float64) {
	if a.m == nil {
		a.m = make([][]float32, len(params))
		a.v = make([][]float32, len(params))
		for i, p := range params {
			a.m[i] = make([]float32, len(p.w))
			a.v[i] = make([]float32, len(p.w))
		}
	}
	a.t++
	c1 := 1 - math.Pow(a.Beta1, float64(a.t))
	c2 := 1 - math.Pow(a.Beta2, float64(a.t))
	for i, p := range params {
		m, v := a.m[i], a.v[i]
		for j := range p.w {
			g := float64(p.g[j])
			mj := a.Beta1*float64(m[j]) + (1-a.Beta1)*g
			vj := a.Beta2*float64(v[j]) + (1-a.Beta2)*g*g
			m[j] = float32(mj)
			v[j] = float32(vj)
			p.w[j] -= float32(lr * (mj / c1) / (math.Sqrt(vj/c2) + a.Epsilon))
		}
	}
}
