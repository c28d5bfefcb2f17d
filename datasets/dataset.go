package datasets

import (
	"fmt"
	"math/rand"

	"github.com/gomlx/gomlx/pkg/core/tensors"
)

// Dataset is the interface the trainer requires from a tensorized event
// dataset. Inputs are flattened (FixedEventCount*FeatureCount) float32
// vectors; labels are model-space coordinate pairs.
//
// Yield exists so a dataset can also drive gomlx training loops
// (the gomlx train.Dataset contract); the in-repo trainer uses Batch.
type Dataset interface {
	Len() int
	Example(i int) (input []float32, label []float32, err error)
	Batch(indices []int) (inputs [][]float32, labels [][]float32, err error)
	Shuffle(seed int64)

	Yield() (spec any, inputs []*tensors.Tensor, labels []*tensors.Tensor, err error)
}

// TensorDataset holds tensorized source groups fully in memory. Unlike the
// raw EventSource it is cheap to index repeatedly, which is what the epoch
// loop needs.
type TensorDataset struct {
	// BatchSize used when yielding gomlx batches.
	BatchSize int

	ids     []SourceID
	tensors []*FixedEventTensor
	labels  [][]float32 // model-space

	order  []int
	cursor int
}

// NewTensorDataset builds a dataset over parallel slices of group IDs,
// fixed tensors and model-space labels.
func NewTensorDataset(ids []SourceID, ts []*FixedEventTensor, labels [][]float32) (*TensorDataset, error) {
	if len(ids) != len(ts) || len(ids) != len(labels) {
		return nil, fmt.Errorf("mismatched lengths: ids=%d tensors=%d labels=%d", len(ids), len(ts), len(labels))
	}
	for i, t := range ts {
		if err := t.checkShape(); err != nil {
			return nil, fmt.Errorf("group %s: %w", ids[i], err)
		}
	}
	order := make([]int, len(ids))
	for i := range order {
		order[i] = i
	}
	return &TensorDataset{
		BatchSize: 32,
		ids:       ids,
		tensors:   ts,
		labels:    labels,
		order:     order,
	}, nil
}

// Len returns the number of source groups in the dataset.
func (d *TensorDataset) Len() int { return len(d.ids) }

// SourceID returns the group identity of example i.
func (d *TensorDataset) SourceID(i int) SourceID { return d.ids[d.order[i]] }

// Tensor returns the fixed tensor of example i.
func (d *TensorDataset) Tensor(i int) *FixedEventTensor { return d.tensors[d.order[i]] }

// Example returns the flattened input and model-space label of example i.
func (d *TensorDataset) Example(i int) ([]float32, []float32, error) {
	if i < 0 || i >= len(d.order) {
		return nil, nil, fmt.Errorf("index %d out of range [0, %d)", i, len(d.order))
	}
	j := d.order[i]
	return d.tensors[j].Buf, d.labels[j], nil
}

// Batch returns inputs and labels for the provided indices.
func (d *TensorDataset) Batch(indices []int) ([][]float32, [][]float32, error) {
	inputs := make([][]float32, len(indices))
	labels := make([][]float32, len(indices))
	for bi, idx := range indices {
		in, lab, err := d.Example(idx)
		if err != nil {
			return nil, nil, err
		}
		inputs[bi] = in
		labels[bi] = lab
	}
	return inputs, labels, nil
}

// Shuffle permutes example order deterministically for the given seed.
func (d *TensorDataset) Shuffle(seed int64) {
	rng := rand.New(rand.NewSource(seed))
	rng.Shuffle(len(d.order), func(i, j int) {
		d.order[i], d.order[j] = d.order[j], d.order[i]
	})
}

// Subset returns a view dataset over the given example indices, as used by
// the splitter to carve train/val/test partitions without copying tensors.
func (d *TensorDataset) Subset(indices []int) (*TensorDataset, error) {
	ids := make([]SourceID, len(indices))
	ts := make([]*FixedEventTensor, len(indices))
	labels := make([][]float32, len(indices))
	for i, idx := range indices {
		if idx < 0 || idx >= len(d.order) {
			return nil, fmt.Errorf("subset index %d out of range [0, %d)", idx, len(d.order))
		}
		j := d.order[idx]
		ids[i] = d.ids[j]
		ts[i] = d.tensors[j]
		labels[i] = d.labels[j]
	}
	sub, err := NewTensorDataset(ids, ts, labels)
	if err != nil {
		return nil, err
	}
	sub.BatchSize = d.BatchSize
	return sub, nil
}

// Name returns the name of the dataset.
func (d *TensorDataset) Name() string { return "TensorDataset" }

// Yield returns the next BatchSize examples as gomlx tensors, advancing an
// internal cursor. Implements the gomlx train.Dataset surface.
func (d *TensorDataset) Yield() (any, []*tensors.Tensor, []*tensors.Tensor, error) {
	if d.cursor >= d.Len() {
		return nil, nil, nil, fmt.Errorf("dataset exhausted; call Restart")
	}
	end := d.cursor + d.BatchSize
	if end > d.Len() {
		end = d.Len()
	}
	ts := make([]*FixedEventTensor, 0, end-d.cursor)
	labels := make([][]float32, 0, end-d.cursor)
	for i := d.cursor; i < end; i++ {
		j := d.order[i]
		ts = append(ts, d.tensors[j])
		labels = append(labels, d.labels[j])
	}
	d.cursor = end

	flat, err := MakeEventBatchFlat(ts, labels)
	if err != nil {
		return nil, nil, nil, err
	}
	in, lab, err := flat.ToGomlxTensors()
	if err != nil {
		return nil, nil, nil, err
	}
	return nil, []*tensors.Tensor{in}, []*tensors.Tensor{lab}, nil
}

// Restart resets the Yield cursor for a new epoch.
func (d *TensorDataset) Restart() error {
	d.cursor = 0
	return nil
}
