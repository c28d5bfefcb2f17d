package comptonnet

import (
	"math"
	"math/rand"
)

// The layers in this file operate on one sample at a time. A sequence is a
// flat row-major float32 buffer of shape (T, C): element (t, c) lives at
// t*C+c. Each forward pass returns whatever cache its backward pass needs;
// backward passes accumulate into the layer's param gradients and return
// the gradient with respect to their input.

// conv1d is a 1-D convolution along the event axis with "same" zero
// padding and stride 1. The six detector features enter as input channels,
// so the feature axis is never convolved over.
type conv1d struct {
	in, out, k int
	w          *param // (out, k*in)
	b          *param // (out)
}

func newConv1d(rng *rand.Rand, name string, in, out, k int) *conv1d {
	c := &conv1d{in: in, out: out, k: k,
		w: newParam(name+".w", out*k*in),
		b: newParam(name+".b", out),
	}
	initXavier(rng, c.w.w, k*in, out)
	return c
}

func (c *conv1d) params() []*param { return []*param{c.w, c.b} }

func (c *conv1d) forward(x []float32, T int) []float32 {
	y := make([]float32, T*c.out)
	off := c.k / 2
	for t := 0; t < T; t++ {
		for co := 0; co < c.out; co++ {
			sum := c.b.w[co]
			wRow := c.w.w[co*c.k*c.in : (co+1)*c.k*c.in]
			for kk := 0; kk < c.k; kk++ {
				src := t + kk - off
				if src < 0 || src >= T {
					continue
				}
				xRow := x[src*c.in : (src+1)*c.in]
				wk := wRow[kk*c.in : (kk+1)*c.in]
				for ci := 0; ci < c.in; ci++ {
					sum += wk[ci] * xRow[ci]
				}
			}
			y[t*c.out+co] = sum
		}
	}
	return y
}

func (c *conv1d) backward(x []float32, T int, dy []float32) []float32 {
	dx := make([]float32, T*c.in)
	off := c.k / 2
	for t := 0; t < T; t++ {
		for co := 0; co < c.out; co++ {
			d := dy[t*c.out+co]
			if d == 0 {
				continue
			}
			c.b.g[co] += d
			wRow := c.w.w[co*c.k*c.in : (co+1)*c.k*c.in]
			gRow := c.w.g[co*c.k*c.in : (co+1)*c.k*c.in]
			for kk := 0; kk < c.k; kk++ {
				src := t + kk - off
				if src < 0 || src >= T {
					continue
				}
				xRow := x[src*c.in : (src+1)*c.in]
				dxRow := dx[src*c.in : (src+1)*c.in]
				wk := wRow[kk*c.in : (kk+1)*c.in]
				gk := gRow[kk*c.in : (kk+1)*c.in]
				for ci := 0; ci < c.in; ci++ {
					gk[ci] += d * xRow[ci]
					dxRow[ci] += d * wk[ci]
				}
			}
		}
	}
	return dx
}

// channelNorm normalizes each channel over the event axis of a single
// sample, with a learned per-channel gain and bias. It is the
// normalization step of each conv block.
type channelNorm struct {
	c    int
	gain *param
	bias *param
	eps  float64
}

type channelNormCache struct {
	xhat []float32
	inv  []float64 // per channel 1/sqrt(var+eps)
	T    int
}

func newChannelNorm(name string, c int) *channelNorm {
	n := &channelNorm{c: c, gain: newParam(name+".gain", c), bias: newParam(name+".bias", c), eps: 1e-5}
	for i := range n.gain.w {
		n.gain.w[i] = 1
	}
	return n
}

func (n *channelNorm) params() []*param { return []*param{n.gain, n.bias} }

func (n *channelNorm) forward(x []float32, T int) ([]float32, *channelNormCache) {
	y := make([]float32, len(x))
	cache := &channelNormCache{xhat: make([]float32, len(x)), inv: make([]float64, n.c), T: T}
	for c := 0; c < n.c; c++ {
		var mu float64
		for t := 0; t < T; t++ {
			mu += float64(x[t*n.c+c])
		}
		mu /= float64(T)
		var v float64
		for t := 0; t < T; t++ {
			d := float64(x[t*n.c+c]) - mu
			v += d * d
		}
		v /= float64(T)
		inv := 1.0 / math.Sqrt(v+n.eps)
		cache.inv[c] = inv
		g, b := n.gain.w[c], n.bias.w[c]
		for t := 0; t < T; t++ {
			xh := float32((float64(x[t*n.c+c]) - mu) * inv)
			cache.xhat[t*n.c+c] = xh
			y[t*n.c+c] = g*xh + b
		}
	}
	return y, cache
}

func (n *channelNorm) backward(cache *channelNormCache, dy []float32) []float32 {
	T := cache.T
	dx := make([]float32, len(dy))
	for c := 0; c < n.c; c++ {
		g := float64(n.gain.w[c])
		var sumD, sumDX float64
		for t := 0; t < T; t++ {
			i := t*n.c + c
			d := float64(dy[i]) * g
			sumD += d
			sumDX += d * float64(cache.xhat[i])
			n.gain.g[c] += dy[i] * cache.xhat[i]
			n.bias.g[c] += dy[i]
		}
		meanD := sumD / float64(T)
		meanDX := sumDX / float64(T)
		for t := 0; t < T; t++ {
			i := t*n.c + c
			d := float64(dy[i]) * g
			dx[i] = float32(cache.inv[c] * (d - meanD - float64(cache.xhat[i])*meanDX))
		}
	}
	return dx
}

// reluForward applies ReLU in place and returns the buffer for chaining.
func reluForward(x []float32) []float32 {
	for i, v := range x {
		if v < 0 {
			x[i] = 0
		}
	}
	return x
}

// reluBackward zeroes gradient entries where the activation was clipped.
// act must be the post-ReLU output.
func reluBackward(act, dy []float32) []float32 {
	for i := range dy {
		if act[i] <= 0 {
			dy[i] = 0
		}
	}
	return dy
}

// maxPool1d pools along the event axis only, keeping every channel.
// A trailing remainder shorter than the pool window is dropped.
type maxPool1d struct {
	pool, c int
}

func (m *maxPool1d) outLen(T int) int { return T / m.pool }

// forward returns the pooled sequence and the argmax event index used per
// output cell, which backward needs for gradient routing.
func (m *maxPool1d) forward(x []float32, T int) ([]float32, []int) {
	oT := m.outLen(T)
	y := make([]float32, oT*m.c)
	arg := make([]int, oT*m.c)
	for ot := 0; ot < oT; ot++ {
		base := ot * m.pool
		for c := 0; c < m.c; c++ {
			best := x[base*m.c+c]
			bestT := base
			for dt := 1; dt < m.pool; dt++ {
				v := x[(base+dt)*m.c+c]
				if v > best {
					best = v
					bestT = base + dt
				}
			}
			y[ot*m.c+c] = best
			arg[ot*m.c+c] = bestT
		}
	}
	return y, arg
}

func (m *maxPool1d) backward(arg []int, T int, dy []float32) []float32 {
	dx := make([]float32, T*m.c)
	for i, d := range dy {
		c := i % m.c
		dx[arg[i]*m.c+c] += d
	}
	return dx
}

// dense is a fully connected layer, weights (out, in).
type dense struct {
	in, out int
	w       *param
	b       *param
}

func newDense(rng *rand.Rand, name string, in, out int, l2 bool) *dense {
	d := &dense{in: in, out: out, w: newParam(name+".w", out*in), b: newParam(name+".b", out)}
	d.w.decay = l2
	initXavier(rng, d.w.w, in, out)
	return d
}

func (d *dense) params() []*param { return []*param{d.w, d.b} }

func (d *dense) forward(x []float32) []float32 {
	y := make([]float32, d.out)
	for o := 0; o < d.out; o++ {
		sum := d.b.w[o]
		row := d.w.w[o*d.in : (o+1)*d.in]
		for i, xv := range x {
			sum += row[i] * xv
		}
		y[o] = sum
	}
	return y
}

func (d *dense) backward(x []float32, dy []float32) []float32 {
	dx := make([]float32, d.in)
	for o := 0; o < d.out; o++ {
		g := dy[o]
		d.b.g[o] += g
		row := d.w.w[o*d.in : (o+1)*d.in]
		grow := d.w.g[o*d.in : (o+1)*d.in]
		for i, xv := range x {
			grow[i] += g * xv
			dx[i] += g * row[i]
		}
	}
	return dx
}

// dropout implements inverted dropout: active only during training, the
// kept activations are scaled by 1/(1-rate) so inference needs no rescale.
type dropout struct {
	rate float64
}

func (dr *dropout) forward(rng *rand.Rand, x []float32, train bool) ([]float32, []float32) {
	if !train || dr.rate <= 0 {
		return x, nil
	}
	keep := float32(1.0 / (1.0 - dr.rate))
	mask := make([]float32, len(x))
	y := make([]float32, len(x))
	for i := range x {
		if rng.Float64() >= dr.rate {
			mask[i] = keep
			y[i] = x[i] * keep
		}
	}
	return y, mask
}

func (dr *dropout) backward(mask []float32, dy []float32) []float32 {
	if mask == nil {
		return dy
	}
	for i := range dy {
		dy[i] *= mask[i]
	}
	return dy
}

func sigmoid(v float32) float32 {
	return float32(1.0 / (1.0 + math.Exp(-float64(v))))
}
