package comptonnet

import "math"

// Loss scores a prediction against its label and supplies the gradient
// with respect to the prediction.
type Loss interface {
	// Eval returns the scalar loss and dLoss/dPred.
	Eval(pred, label []float32) (float64, []float32)
}

// CompositeLoss is the training objective: a weighted sum of squared
// error, absolute error and an optional magnitude-weighted absolute term
// that penalizes errors on larger-magnitude targets more,
//
//	L = Wmse*mean((p-y)^2) + Wmae*mean(|p-y|) + Wmag*mean(|p-y|*y^2)
//
// The weights are fixed for a whole run so metric histories stay
// comparable.
type CompositeLoss struct {
	Wmse float64
	Wmag float64
	Wmae float64
}

// DefaultLoss returns the weighting used by the standard variant.
func DefaultLoss() *CompositeLoss {
	return &CompositeLoss{Wmse: 1.0, Wmae: 0.5, Wmag: 0}
}

func (l *CompositeLoss) Eval(pred, label []float32) (float64, []float32) {
	n := float64(len(pred))
	grad := make([]float32, len(pred))
	var loss float64
	for j := range pred {
		e := float64(pred[j] - label[j])
		y := float64(label[j])
		s := sign(e)
		loss += l.Wmse*e*e + l.Wmae*math.Abs(e) + l.Wmag*math.Abs(e)*y*y
		grad[j] = float32((l.Wmse*2*e + l.Wmae*s + l.Wmag*s*y*y) / n)
	}
	return loss / n, grad
}

func sign(v float64) float64 {
	switch {
	case v > 0:
		return 1
	case v < 0:
		return -1
	}
	return 0
}
