package datasets

import (
	"testing"

	"github.com/gomlx/gomlx/pkg/core/tensors"
)

func buildTestDataset(t *testing.T, n int) *TensorDataset {
	t.Helper()
	ids := make([]SourceID, n)
	ts := make([]*FixedEventTensor, n)
	labels := make([][]float32, n)
	for i := 0; i < n; i++ {
		ids[i] = SourceID{X: float32(i), Y: float32(i * 2)}
		ft, err := Tensorize([][]float32{{float32(i), 0, 0, 0, 0, 0}})
		if err != nil {
			t.Fatalf("Tensorize error: %v", err)
		}
		ts[i] = ft
		labels[i] = []float32{float32(i) / 10, float32(i) / 20}
	}
	ds, err := NewTensorDataset(ids, ts, labels)
	if err != nil {
		t.Fatalf("NewTensorDataset error: %v", err)
	}
	return ds
}

func TestTensorDatasetExampleAndBatch(t *testing.T) {
	ds := buildTestDataset(t, 5)
	if ds.Len() != 5 {
		t.Fatalf("Len = %d", ds.Len())
	}

	in, lab, err := ds.Example(3)
	if err != nil {
		t.Fatalf("Example error: %v", err)
	}
	if len(in) != FixedEventCount*FeatureCount {
		t.Fatalf("input length %d", len(in))
	}
	if in[0] != 3 || lab[0] != 0.3 {
		t.Fatalf("unexpected example: in[0]=%v lab=%v", in[0], lab)
	}

	ins, labs, err := ds.Batch([]int{0, 4})
	if err != nil {
		t.Fatalf("Batch error: %v", err)
	}
	if len(ins) != 2 || ins[1][0] != 4 || labs[1][1] != 0.2 {
		t.Fatalf("unexpected batch: %v %v", ins[1][0], labs[1])
	}

	if _, _, err := ds.Example(5); err == nil {
		t.Fatal("expected out-of-range error")
	}
}

func TestTensorDatasetShuffleDeterministic(t *testing.T) {
	a := buildTestDataset(t, 20)
	b := buildTestDataset(t, 20)
	a.Shuffle(5)
	b.Shuffle(5)
	for i := 0; i < 20; i++ {
		if a.SourceID(i) != b.SourceID(i) {
			t.Fatal("same seed produced different orders")
		}
	}
	// Shuffling reorders but keeps every example reachable.
	seen := make(map[float32]bool)
	for i := 0; i < 20; i++ {
		seen[a.SourceID(i).X] = true
	}
	if len(seen) != 20 {
		t.Fatalf("shuffle lost examples: %d distinct", len(seen))
	}
}

func TestTensorDatasetSubset(t *testing.T) {
	ds := buildTestDataset(t, 6)
	sub, err := ds.Subset([]int{1, 4})
	if err != nil {
		t.Fatalf("Subset error: %v", err)
	}
	if sub.Len() != 2 {
		t.Fatalf("subset Len = %d", sub.Len())
	}
	in, _, err := sub.Example(1)
	if err != nil {
		t.Fatalf("Example error: %v", err)
	}
	if in[0] != 4 {
		t.Fatalf("subset example wrong: %v", in[0])
	}
	if _, err := ds.Subset([]int{9}); err == nil {
		t.Fatal("expected error for out-of-range subset index")
	}
}

func TestTensorDatasetYield(t *testing.T) {
	ds := buildTestDataset(t, 5)
	ds.BatchSize = 2

	var batches int
	var total int
	for {
		_, ins, labs, err := ds.Yield()
		if err != nil {
			break
		}
		if len(ins) != 1 || len(labs) != 1 || ins[0] == nil || labs[0] == nil {
			t.Fatalf("unexpected yield shapes: %d %d", len(ins), len(labs))
		}
		batches++
		if batches == 3 {
			total = batches
			break
		}
	}
	if total != 3 {
		// 5 examples at batch size 2 make 3 batches.
		t.Fatalf("expected 3 batches, got %d", batches)
	}
	if _, _, _, err := ds.Yield(); err == nil {
		t.Fatal("expected exhaustion error after final batch")
	}
	if err := ds.Restart(); err != nil {
		t.Fatalf("Restart error: %v", err)
	}
	if _, _, _, err := ds.Yield(); err != nil {
		t.Fatalf("Yield after Restart error: %v", err)
	}

	_ = tensors.FromAnyValue // tensor contents are exercised by the trainer path
}
