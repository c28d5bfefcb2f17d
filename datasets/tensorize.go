package datasets

import (
	"fmt"
	"math"

	"github.com/gomlx/gomlx/pkg/core/tensors"
)

// FixedEventCount is the event dimension every tensorized group is padded
// or truncated to.
const FixedEventCount = 3000

// FixedEventTensor is one source group's normalized feature matrix brought
// to the fixed shape (1, FixedEventCount, 1, FeatureCount). Data is stored
// as a flat row-major float32 buffer with shape metadata, convertible to a
// gomlx tensor on demand.
type FixedEventTensor struct {
	Buf    []float32 // len == Events*Channels
	Events int       // == FixedEventCount
	// Channels is the per-event feature width.
	Channels int
}

// Tensorize brings a normalized feature matrix of shape (rows, FeatureCount)
// to the fixed event count:
//
//   - rows < FixedEventCount: zero-pad at the end
//   - rows > FixedEventCount: keep the first FixedEventCount rows
//   - rows == FixedEventCount: pass through unchanged
//
// Row order is preserved; there is no resampling. An empty matrix yields an
// all-zero tensor, which is accepted behavior, not an error. Any remaining
// non-finite value becomes 0, so the output never contains NaN.
func Tensorize(features [][]float32) (*FixedEventTensor, error) {
	t := &FixedEventTensor{
		Buf:      make([]float32, FixedEventCount*FeatureCount),
		Events:   FixedEventCount,
		Channels: FeatureCount,
	}
	n := len(features)
	if n > FixedEventCount {
		n = FixedEventCount
	}
	for r := 0; r < n; r++ {
		row := features[r]
		if len(row) != FeatureCount {
			return nil, &ShapeError{
				Want: fmt.Sprintf("(rows, %d)", FeatureCount),
				Got:  fmt.Sprintf("row %d of width %d", r, len(row)),
			}
		}
		for c, v := range row {
			f := float64(v)
			if math.IsNaN(f) || math.IsInf(f, 0) {
				v = 0
			}
			t.Buf[r*FeatureCount+c] = v
		}
	}
	return t, nil
}

// Row returns the r-th event row as a view into the flat buffer.
func (t *FixedEventTensor) Row(r int) []float32 {
	return t.Buf[r*t.Channels : (r+1)*t.Channels]
}

// checkShape verifies the fixed-shape contract. A violation means a
// normalizer or tensorizer bug and is fatal.
func (t *FixedEventTensor) checkShape() error {
	if t.Events != FixedEventCount || t.Channels != FeatureCount ||
		len(t.Buf) != t.Events*t.Channels {
		return &ShapeError{
			Want: fmt.Sprintf("(1, %d, 1, %d)", FixedEventCount, FeatureCount),
			Got:  fmt.Sprintf("events=%d channels=%d buf=%d", t.Events, t.Channels, len(t.Buf)),
		}
	}
	return nil
}

// ToGomlxTensor converts the fixed tensor into a gomlx tensor of shape
// (1, FixedEventCount, 1, FeatureCount).
func (t *FixedEventTensor) ToGomlxTensor() (*tensors.Tensor, error) {
	if err := t.checkShape(); err != nil {
		return nil, err
	}
	data := make([][][][]float32, 1)
	data[0] = make([][][]float32, t.Events)
	for r := 0; r < t.Events; r++ {
		data[0][r] = [][]float32{t.Row(r)}
	}
	return tensors.FromAnyValue(data), nil
}

// EventBatchFlat stores a batch of fixed tensors and their model-space
// labels in flat contiguous buffers with shape metadata.
type EventBatchFlat struct {
	Inputs   []float32 // Batch*Events*Channels
	Labels   []float32 // Batch*2
	Batch    int
	Events   int
	Channels int
}

// MakeEventBatchFlat flattens a batch of tensorized groups. Every tensor
// must satisfy the fixed-shape contract.
func MakeEventBatchFlat(ts []*FixedEventTensor, labels [][]float32) (*EventBatchFlat, error) {
	if len(ts) != len(labels) {
		return nil, fmt.Errorf("inputs and labels batch sizes don't match: %d != %d", len(ts), len(labels))
	}
	b := &EventBatchFlat{Batch: len(ts), Events: FixedEventCount, Channels: FeatureCount}
	if b.Batch == 0 {
		return b, nil
	}
	per := b.Events * b.Channels
	b.Inputs = make([]float32, b.Batch*per)
	b.Labels = make([]float32, b.Batch*2)
	for i, t := range ts {
		if err := t.checkShape(); err != nil {
			return nil, err
		}
		if len(labels[i]) != 2 {
			return nil, &ShapeError{Want: "label of width 2", Got: fmt.Sprintf("width %d", len(labels[i]))}
		}
		copy(b.Inputs[i*per:], t.Buf)
		copy(b.Labels[i*2:], labels[i])
	}
	return b, nil
}

// ToGomlxTensors converts the flat batch into gomlx tensors of shapes
// (Batch, Events, 1, Channels) and (Batch, 2).
func (b *EventBatchFlat) ToGomlxTensors() (*tensors.Tensor, *tensors.Tensor, error) {
	if b.Batch == 0 {
		return tensors.FromAnyValue(make([][][][]float32, 0)),
			tensors.FromAnyValue(make([][]float32, 0)), nil
	}
	per := b.Events * b.Channels
	inputs := make([][][][]float32, b.Batch)
	labels := make([][]float32, b.Batch)
	for i := 0; i < b.Batch; i++ {
		sample := b.Inputs[i*per : (i+1)*per]
		rows := make([][][]float32, b.Events)
		for r := 0; r < b.Events; r++ {
			rows[r] = [][]float32{sample[r*b.Channels : (r+1)*b.Channels]}
		}
		inputs[i] = rows
		labels[i] = b.Labels[i*2 : (i+1)*2]
	}
	return tensors.FromAnyValue(inputs), tensors.FromAnyValue(labels), nil
}
