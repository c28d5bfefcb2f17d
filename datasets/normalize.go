package datasets

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// ScalePolicy selects how per-event features are rescaled before
// tensorization.
type ScalePolicy int

const (
	// ScaleStandard rescales each feature column to zero mean and unit
	// variance.
	ScaleStandard ScalePolicy = iota
	// ScaleMinMax rescales each feature column affinely into [-1, 1].
	ScaleMinMax
)

func (p ScalePolicy) String() string {
	switch p {
	case ScaleStandard:
		return "standard"
	case ScaleMinMax:
		return "minmax"
	}
	return fmt.Sprintf("ScalePolicy(%d)", int(p))
}

// FittedScaler is the result of fitting a ScalePolicy over a feature
// matrix. Both policies reduce to the affine map (x - Center) / Scale per
// column, so transform and inverse share one code path.
type FittedScaler struct {
	Policy ScalePolicy
	Center [FeatureCount]float64
	Scale  [FeatureCount]float64
}

// FitScaler fits a scaling transform over the given feature matrix, shape
// (rows, FeatureCount). Non-finite values are zeroed before fitting.
// Degenerate columns (constant, or too few rows to estimate a spread) fall
// back to unit scale so constant features map to 0 instead of dividing by
// zero.
func FitScaler(policy ScalePolicy, features [][]float32) (*FittedScaler, error) {
	for _, row := range features {
		if len(row) != FeatureCount {
			return nil, &ShapeError{
				Want: fmt.Sprintf("(rows, %d)", FeatureCount),
				Got:  fmt.Sprintf("row of width %d", len(row)),
			}
		}
	}

	fs := &FittedScaler{Policy: policy}
	for c := range fs.Scale {
		fs.Scale[c] = 1
	}
	if len(features) == 0 {
		return fs, nil
	}

	col := make([]float64, len(features))
	for c := 0; c < FeatureCount; c++ {
		for r, row := range features {
			v := float64(row[c])
			if math.IsNaN(v) || math.IsInf(v, 0) {
				v = 0
			}
			col[r] = v
		}
		switch policy {
		case ScaleStandard:
			fs.Center[c] = stat.Mean(col, nil)
			fs.Scale[c] = stat.StdDev(col, nil)
		case ScaleMinMax:
			lo, hi := floats.Min(col), floats.Max(col)
			fs.Center[c] = (lo + hi) / 2
			fs.Scale[c] = (hi - lo) / 2
		default:
			return nil, fmt.Errorf("unknown scale policy %v", policy)
		}
		if fs.Scale[c] == 0 || math.IsNaN(fs.Scale[c]) || math.IsInf(fs.Scale[c], 0) {
			fs.Scale[c] = 1
		}
	}
	return fs, nil
}

// Transform returns a scaled copy of the feature matrix. The input is not
// mutated; non-finite values are zeroed before scaling.
func (fs *FittedScaler) Transform(features [][]float32) [][]float32 {
	out := make([][]float32, len(features))
	for r, row := range features {
		scaled := make([]float32, len(row))
		for c, x := range row {
			v := float64(x)
			if math.IsNaN(v) || math.IsInf(v, 0) {
				v = 0
			}
			scaled[c] = float32((v - fs.Center[c]) / fs.Scale[c])
		}
		out[r] = scaled
	}
	return out
}

// LabelPolicy selects how ground-truth coordinates are mapped into the
// model's output space.
type LabelPolicy int

const (
	// LabelScaleFitted fits an affine min-max transform over all labels
	// jointly, mapping them into [0,1], and retains the inverse. It makes
	// no assumption about the physical coordinate domain.
	LabelScaleFitted LabelPolicy = iota
	// LabelScaleBounded divides coordinates by 255. It assumes the
	// coordinate domain is bounded in [0,255] and pairs with the sigmoid
	// output head.
	LabelScaleBounded
)

func (p LabelPolicy) String() string {
	switch p {
	case LabelScaleFitted:
		return "fitted"
	case LabelScaleBounded:
		return "bounded"
	}
	return fmt.Sprintf("LabelPolicy(%d)", int(p))
}

// boundedDomain is the coordinate range assumed by LabelScaleBounded.
const boundedDomain = 255.0

// LabelTransform maps 2-D labels into model output space and back. It is
// fitted once before training and passed, read-only, to the evaluator;
// it is never re-fit at evaluation time.
type LabelTransform struct {
	Policy LabelPolicy
	Min    [2]float64
	Range  [2]float64
}

// FitLabelTransform fits the label transform over all labels jointly.
// For LabelScaleBounded no statistics are needed and labels may be nil.
func FitLabelTransform(policy LabelPolicy, labels [][]float32) (*LabelTransform, error) {
	lt := &LabelTransform{Policy: policy}
	for d := range lt.Range {
		lt.Range[d] = 1
	}
	if policy == LabelScaleBounded {
		return lt, nil
	}
	if len(labels) == 0 {
		return nil, &DataError{Msg: "cannot fit label transform over zero labels"}
	}
	col := make([]float64, len(labels))
	for d := 0; d < 2; d++ {
		for i, lab := range labels {
			if len(lab) != 2 {
				return nil, &ShapeError{Want: "label of width 2", Got: fmt.Sprintf("width %d", len(lab))}
			}
			col[i] = float64(lab[d])
		}
		lo, hi := floats.Min(col), floats.Max(col)
		lt.Min[d] = lo
		lt.Range[d] = hi - lo
		if lt.Range[d] == 0 {
			lt.Range[d] = 1
		}
	}
	return lt, nil
}

// Apply maps a physical-unit label into model output space.
func (lt *LabelTransform) Apply(label []float32) []float32 {
	out := make([]float32, 2)
	switch lt.Policy {
	case LabelScaleBounded:
		out[0] = label[0] / boundedDomain
		out[1] = label[1] / boundedDomain
	default:
		for d := 0; d < 2; d++ {
			out[d] = float32((float64(label[d]) - lt.Min[d]) / lt.Range[d])
		}
	}
	return out
}

// Invert maps a model-space value back into physical units. For all
// inputs, Invert(Apply(x)) reproduces x within floating-point tolerance.
func (lt *LabelTransform) Invert(scaled []float32) []float32 {
	out := make([]float32, 2)
	switch lt.Policy {
	case LabelScaleBounded:
		out[0] = scaled[0] * boundedDomain
		out[1] = scaled[1] * boundedDomain
	default:
		for d := 0; d < 2; d++ {
			out[d] = float32(float64(scaled[d])*lt.Range[d] + lt.Min[d])
		}
	}
	return out
}
