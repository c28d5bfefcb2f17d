package comptonnet

import "math"

// Schedule controls the learning rate across epochs. The trainer calls
// Rate exactly once per epoch, before the epoch's first batch, passing the
// previous epoch's validation loss (NaN before any validation has run).
// The two implementations are alternative, mutually exclusive policies.
type Schedule interface {
	Rate(epoch int, prevValLoss float64) float64
}

// ConstantRate keeps a fixed learning rate.
type ConstantRate float64

func (c ConstantRate) Rate(int, float64) float64 { return float64(c) }

// ExponentialDecay multiplies the initial rate by Decay^epoch, never going
// below Floor.
type ExponentialDecay struct {
	Initial float64
	Decay   float64
	Floor   float64
}

func (e *ExponentialDecay) Rate(epoch int, _ float64) float64 {
	lr := e.Initial * math.Pow(e.Decay, float64(epoch))
	if lr < e.Floor {
		lr = e.Floor
	}
	return lr
}

// ReduceOnPlateau decays the rate multiplicatively whenever validation
// loss has not improved for Patience consecutive epochs, with a floor.
type ReduceOnPlateau struct {
	Initial  float64
	Factor   float64 // multiplicative decay, e.g. 0.5
	Patience int
	Floor    float64

	cur  float64
	best float64
	wait int
}

// NewReduceOnPlateau returns the monitored-plateau policy with the
// standard settings (halve after 10 stagnant epochs, floor 1e-6).
func NewReduceOnPlateau(initial float64) *ReduceOnPlateau {
	return &ReduceOnPlateau{Initial: initial, Factor: 0.5, Patience: 10, Floor: 1e-6}
}

func (r *ReduceOnPlateau) Rate(epoch int, prevValLoss float64) float64 {
	if epoch == 0 || r.cur == 0 {
		r.cur = r.Initial
		r.best = math.Inf(1)
		r.wait = 0
	}
	if !math.IsNaN(prevValLoss) {
		if prevValLoss < r.best {
			r.best = prevValLoss
			r.wait = 0
		} else {
			r.wait++
			if r.wait >= r.Patience {
				r.cur *= r.Factor
				if r.cur < r.Floor {
					r.cur = r.Floor
				}
				r.wait = 0
			}
		}
	}
	return r.cur
}
