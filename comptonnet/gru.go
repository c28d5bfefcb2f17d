package comptonnet

import (
	"math"
	"math/rand"
)

// gruCell is a single-direction GRU over a (T, in) sequence. The cell
// stores per-step gate activations during the forward pass so backward can
// run full backpropagation through time.
//
//	z_t = sigmoid(Wz x_t + Uz h_prev + bz)
//	r_t = sigmoid(Wr x_t + Ur h_prev + br)
//	c_t = tanh(Wh x_t + Uh (r_t*h_prev) + bh)
//	h_t = (1-z_t)*h_prev + z_t*c_t
type gruCell struct {
	in, h      int
	reverse    bool
	wz, wr, wh *param // (h, in)
	uz, ur, uh *param // (h, h)
	bz, br, bh *param // (h)
}

type gruCache struct {
	// all aligned by input index t, each of length T*h
	z, r, c, h []float32
}

func newGRUCell(rng *rand.Rand, name string, in, h int, reverse bool) *gruCell {
	g := &gruCell{
		in: in, h: h, reverse: reverse,
		wz: newParam(name+".wz", h*in), wr: newParam(name+".wr", h*in), wh: newParam(name+".wh", h*in),
		uz: newParam(name+".uz", h*h), ur: newParam(name+".ur", h*h), uh: newParam(name+".uh", h*h),
		bz: newParam(name+".bz", h), br: newParam(name+".br", h), bh: newParam(name+".bh", h),
	}
	initXavier(rng, g.wz.w, in, h)
	initXavier(rng, g.wr.w, in, h)
	initXavier(rng, g.wh.w, in, h)
	initXavier(rng, g.uz.w, h, h)
	initXavier(rng, g.ur.w, h, h)
	initXavier(rng, g.uh.w, h, h)
	return g
}

func (g *gruCell) params() []*param {
	return []*param{g.wz, g.wr, g.wh, g.uz, g.ur, g.uh, g.bz, g.br, g.bh}
}

// step returns the input index processed at step i.
func (g *gruCell) step(i, T int) int {
	if g.reverse {
		return T - 1 - i
	}
	return i
}

// matvecAdd computes y += W x for W of shape (rows, cols).
func matvecAdd(y []float32, w []float32, x []float32, rows, cols int) {
	for r := 0; r < rows; r++ {
		row := w[r*cols : (r+1)*cols]
		sum := y[r]
		for c, xv := range x {
			sum += row[c] * xv
		}
		y[r] = sum
	}
}

// matvecTAdd computes x += W^T d for W of shape (rows, cols).
func matvecTAdd(x []float32, w []float32, d []float32, rows, cols int) {
	for r := 0; r < rows; r++ {
		dv := d[r]
		if dv == 0 {
			continue
		}
		row := w[r*cols : (r+1)*cols]
		for c := range x {
			x[c] += row[c] * dv
		}
	}
}

// outerAdd accumulates G += d ⊗ x for G of shape (rows, cols).
func outerAdd(grad []float32, d []float32, x []float32, rows, cols int) {
	for r := 0; r < rows; r++ {
		dv := d[r]
		if dv == 0 {
			continue
		}
		row := grad[r*cols : (r+1)*cols]
		for c, xv := range x {
			row[c] += dv * xv
		}
	}
}

func (g *gruCell) forward(x []float32, T int) *gruCache {
	h := g.h
	cache := &gruCache{
		z: make([]float32, T*h), r: make([]float32, T*h),
		c: make([]float32, T*h), h: make([]float32, T*h),
	}
	prev := make([]float32, h)
	rh := make([]float32, h)
	for i := 0; i < T; i++ {
		t := g.step(i, T)
		xt := x[t*g.in : (t+1)*g.in]
		zt := cache.z[t*h : (t+1)*h]
		rt := cache.r[t*h : (t+1)*h]
		ct := cache.c[t*h : (t+1)*h]
		ht := cache.h[t*h : (t+1)*h]

		copy(zt, g.bz.w)
		matvecAdd(zt, g.wz.w, xt, h, g.in)
		matvecAdd(zt, g.uz.w, prev, h, h)
		copy(rt, g.br.w)
		matvecAdd(rt, g.wr.w, xt, h, g.in)
		matvecAdd(rt, g.ur.w, prev, h, h)
		for j := 0; j < h; j++ {
			zt[j] = sigmoid(zt[j])
			rt[j] = sigmoid(rt[j])
			rh[j] = rt[j] * prev[j]
		}
		copy(ct, g.bh.w)
		matvecAdd(ct, g.wh.w, xt, h, g.in)
		matvecAdd(ct, g.uh.w, rh, h, h)
		for j := 0; j < h; j++ {
			ct[j] = float32(math.Tanh(float64(ct[j])))
			ht[j] = (1-zt[j])*prev[j] + zt[j]*ct[j]
		}
		prev = ht
	}
	return cache
}

// final returns the hidden state after the last processing step.
func (g *gruCell) final(cache *gruCache, T int) []float32 {
	t := g.step(T-1, T)
	return cache.h[t*g.h : (t+1)*g.h]
}

// backward runs BPTT. dhSeq, if non-nil, carries the per-step output
// gradient aligned by input index; dhFinal, if non-nil, is the gradient on
// the final hidden state. Returns the gradient with respect to x.
func (g *gruCell) backward(x []float32, T int, cache *gruCache, dhSeq, dhFinal []float32) []float32 {
	h := g.h
	dx := make([]float32, T*g.in)
	carry := make([]float32, h) // gradient on h at the current processing step
	dh := make([]float32, h)
	dzPre := make([]float32, h)
	drPre := make([]float32, h)
	dcPre := make([]float32, h)
	rh := make([]float32, h)
	duh := make([]float32, h)

	for i := T - 1; i >= 0; i-- {
		t := g.step(i, T)
		xt := x[t*g.in : (t+1)*g.in]
		zt := cache.z[t*h : (t+1)*h]
		rt := cache.r[t*h : (t+1)*h]
		ct := cache.c[t*h : (t+1)*h]

		var prev []float32
		if i > 0 {
			pt := g.step(i-1, T)
			prev = cache.h[pt*h : (pt+1)*h]
		} else {
			prev = make([]float32, h)
		}

		copy(dh, carry)
		if dhSeq != nil {
			for j := 0; j < h; j++ {
				dh[j] += dhSeq[t*h+j]
			}
		}
		if i == T-1 && dhFinal != nil {
			for j := 0; j < h; j++ {
				dh[j] += dhFinal[j]
			}
		}

		for j := 0; j < h; j++ {
			dz := dh[j] * (ct[j] - prev[j])
			dc := dh[j] * zt[j]
			carry[j] = dh[j] * (1 - zt[j]) // gradient flowing to h_prev, extended below
			dzPre[j] = dz * zt[j] * (1 - zt[j])
			dcPre[j] = dc * (1 - ct[j]*ct[j])
			rh[j] = rt[j] * prev[j]
		}

		// through the candidate's recurrent term Uh (r*h_prev)
		for j := range duh {
			duh[j] = 0
		}
		matvecTAdd(duh, g.uh.w, dcPre, h, h)
		for j := 0; j < h; j++ {
			drPre[j] = duh[j] * prev[j] * rt[j] * (1 - rt[j])
			carry[j] += duh[j] * rt[j]
		}

		outerAdd(g.wz.g, dzPre, xt, h, g.in)
		outerAdd(g.wr.g, drPre, xt, h, g.in)
		outerAdd(g.wh.g, dcPre, xt, h, g.in)
		outerAdd(g.uz.g, dzPre, prev, h, h)
		outerAdd(g.ur.g, drPre, prev, h, h)
		outerAdd(g.uh.g, dcPre, rh, h, h)
		for j := 0; j < h; j++ {
			g.bz.g[j] += dzPre[j]
			g.br.g[j] += drPre[j]
			g.bh.g[j] += dcPre[j]
		}

		matvecTAdd(carry, g.uz.w, dzPre, h, h)
		matvecTAdd(carry, g.ur.w, drPre, h, h)

		dxt := dx[t*g.in : (t+1)*g.in]
		matvecTAdd(dxt, g.wz.w, dzPre, h, g.in)
		matvecTAdd(dxt, g.wr.w, drPre, h, g.in)
		matvecTAdd(dxt, g.wh.w, dcPre, h, g.in)
	}
	return dx
}

// biGRU runs one forward and one backward gruCell over the sequence and
// concatenates their states: per step when returnSeq is set (feeding a
// deeper recurrent layer), or the two final states otherwise.
type biGRU struct {
	in, h     int
	returnSeq bool
	fwd, bwd  *gruCell
}

type biGRUCache struct {
	cf, cb *gruCache
}

func newBiGRU(rng *rand.Rand, name string, in, h int, returnSeq bool) *biGRU {
	return &biGRU{
		in: in, h: h, returnSeq: returnSeq,
		fwd: newGRUCell(rng, name+".fwd", in, h, false),
		bwd: newGRUCell(rng, name+".bwd", in, h, true),
	}
}

func (b *biGRU) params() []*param {
	return append(b.fwd.params(), b.bwd.params()...)
}

// outWidth is the channel width of the layer's output.
func (b *biGRU) outWidth() int { return 2 * b.h }

func (b *biGRU) forward(x []float32, T int) ([]float32, *biGRUCache) {
	cache := &biGRUCache{cf: b.fwd.forward(x, T), cb: b.bwd.forward(x, T)}
	h := b.h
	if b.returnSeq {
		y := make([]float32, T*2*h)
		for t := 0; t < T; t++ {
			copy(y[t*2*h:], cache.cf.h[t*h:(t+1)*h])
			copy(y[t*2*h+h:], cache.cb.h[t*h:(t+1)*h])
		}
		return y, cache
	}
	y := make([]float32, 2*h)
	copy(y, b.fwd.final(cache.cf, T))
	copy(y[h:], b.bwd.final(cache.cb, T))
	return y, cache
}

func (b *biGRU) backward(x []float32, T int, cache *biGRUCache, dy []float32) []float32 {
	h := b.h
	var dxf, dxb []float32
	if b.returnSeq {
		dhF := make([]float32, T*h)
		dhB := make([]float32, T*h)
		for t := 0; t < T; t++ {
			copy(dhF[t*h:(t+1)*h], dy[t*2*h:t*2*h+h])
			copy(dhB[t*h:(t+1)*h], dy[t*2*h+h:(t+1)*2*h])
		}
		dxf = b.fwd.backward(x, T, cache.cf, dhF, nil)
		dxb = b.bwd.backward(x, T, cache.cb, dhB, nil)
	} else {
		dxf = b.fwd.backward(x, T, cache.cf, nil, dy[:h])
		dxb = b.bwd.backward(x, T, cache.cb, nil, dy[h:])
	}
	for i := range dxf {
		dxf[i] += dxb[i]
	}
	return dxf
}
