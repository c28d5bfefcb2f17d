package comptonnet

import (
	"math"
	"testing"

	"github.com/gomlx/gomlx/pkg/core/tensors"
)

// mockDataset implements datasets.Dataset over in-memory slices.
type mockDataset struct {
	inputs [][]float32
	labels [][]float32
}

func (m *mockDataset) Len() int { return len(m.inputs) }

func (m *mockDataset) Example(i int) ([]float32, []float32, error) {
	return m.inputs[i], m.labels[i], nil
}

func (m *mockDataset) Batch(indices []int) ([][]float32, [][]float32, error) {
	in := make([][]float32, len(indices))
	la := make([][]float32, len(indices))
	for i, idx := range indices {
		in[i] = m.inputs[idx]
		la[i] = m.labels[idx]
	}
	return in, la, nil
}

func (m *mockDataset) Shuffle(int64) {}

func (m *mockDataset) Yield() (any, []*tensors.Tensor, []*tensors.Tensor, error) {
	return nil, nil, nil, nil
}

// synthDataset builds n samples whose target depends on the mean of the
// first input channel, a relation the tiny network can learn.
func synthDataset(m *Model, n int) *mockDataset {
	ds := &mockDataset{}
	ch := m.Config.Channels
	for i := 0; i < n; i++ {
		x := make([]float32, m.InputSize())
		level := float32(i%8) / 8
		for t := 0; t < m.Config.Events; t++ {
			x[t*ch] = level
			x[t*ch+1] = 0.5
		}
		ds.inputs = append(ds.inputs, x)
		ds.labels = append(ds.labels, []float32{level, 1 - level})
	}
	return ds
}

func TestTrainerStateMachine(t *testing.T) {
	m, err := NewModel(tinyConfig())
	if err != nil {
		t.Fatalf("NewModel error: %v", err)
	}
	tr := NewTrainer(m)
	if tr.State() != Uninitialized {
		t.Fatalf("initial state %s", tr.State())
	}

	// Fit before Compile is rejected.
	if _, err := tr.Fit(&mockDataset{}, nil); err == nil {
		t.Fatal("expected error fitting uncompiled trainer")
	}

	cfg := TrainConfig{Epochs: 1, BatchSize: 4, Seed: 42}
	if err := tr.Compile(DefaultLoss(), &SGD{}, ConstantRate(0.001), cfg); err != nil {
		t.Fatalf("Compile error: %v", err)
	}
	if tr.State() != Compiled {
		t.Fatalf("state after compile: %s", tr.State())
	}
	// Second compile is rejected.
	if err := tr.Compile(DefaultLoss(), &SGD{}, ConstantRate(0.001), cfg); err == nil {
		t.Fatal("expected error on double compile")
	}

	ds := synthDataset(m, 8)
	if _, err := tr.Fit(ds, nil); err != nil {
		t.Fatalf("Fit error: %v", err)
	}
	if tr.State() != Frozen {
		t.Fatalf("state after fit: %s", tr.State())
	}
	if tr.Halt() != Converged {
		t.Fatalf("halt reason: %s", tr.Halt())
	}
	// A frozen trainer refuses another fit.
	if _, err := tr.Fit(ds, nil); err == nil {
		t.Fatal("expected error fitting frozen trainer")
	}
}

func TestTrainerCompileRejectsNil(t *testing.T) {
	m, err := NewModel(tinyConfig())
	if err != nil {
		t.Fatalf("NewModel error: %v", err)
	}
	tr := NewTrainer(m)
	if err := tr.Compile(nil, &SGD{}, ConstantRate(0.01), TrainConfig{}); err == nil {
		t.Fatal("expected error for nil loss")
	}
}

func TestTrainerReducesLoss(t *testing.T) {
	m, err := NewModel(tinyConfig())
	if err != nil {
		t.Fatalf("NewModel error: %v", err)
	}
	tr := NewTrainer(m)
	cfg := TrainConfig{Epochs: 25, BatchSize: 8, ClipNorm: 5, Seed: 42}
	if err := tr.Compile(DefaultLoss(), NewAdam(), ConstantRate(0.005), cfg); err != nil {
		t.Fatalf("Compile error: %v", err)
	}

	ds := synthDataset(m, 32)
	before, err := tr.Evaluate(ds)
	if err != nil {
		t.Fatalf("Evaluate error: %v", err)
	}
	history, err := tr.Fit(ds, nil)
	if err != nil {
		t.Fatalf("Fit error: %v", err)
	}
	after, err := tr.Evaluate(ds)
	if err != nil {
		t.Fatalf("Evaluate error: %v", err)
	}
	if after >= before {
		t.Fatalf("training did not reduce loss: before=%v after=%v", before, after)
	}
	if len(history) != cfg.Epochs {
		t.Fatalf("history length %d, want %d", len(history), cfg.Epochs)
	}
	// No validation set: ValLoss stays NaN, train loss is recorded.
	if !math.IsNaN(history[0].ValLoss) || math.IsNaN(history[0].TrainLoss) {
		t.Fatalf("unexpected history entry: %+v", history[0])
	}
}

func TestTrainerEarlyStopping(t *testing.T) {
	m, err := NewModel(tinyConfig())
	if err != nil {
		t.Fatalf("NewModel error: %v", err)
	}
	tr := NewTrainer(m)
	// A zero learning rate freezes the weights, so validation loss can
	// never improve and patience must fire on the second epoch.
	cfg := TrainConfig{Epochs: 100, BatchSize: 4, Patience: 1, Seed: 42}
	if err := tr.Compile(DefaultLoss(), &SGD{}, ConstantRate(0), cfg); err != nil {
		t.Fatalf("Compile error: %v", err)
	}

	ds := synthDataset(m, 8)
	history, err := tr.Fit(ds, ds)
	if err != nil {
		t.Fatalf("Fit error: %v", err)
	}
	if tr.Halt() != Stopped {
		t.Fatalf("halt reason %s, want stopped", tr.Halt())
	}
	if len(history) != 2 {
		t.Fatalf("expected early stop after 2 epochs, got %d", len(history))
	}
	if tr.State() != Frozen {
		t.Fatalf("state after early stop: %s", tr.State())
	}
}

func TestTrainerEmptyDataset(t *testing.T) {
	m, err := NewModel(tinyConfig())
	if err != nil {
		t.Fatalf("NewModel error: %v", err)
	}
	tr := NewTrainer(m)
	if err := tr.Compile(DefaultLoss(), &SGD{}, ConstantRate(0.01), TrainConfig{Epochs: 1}); err != nil {
		t.Fatalf("Compile error: %v", err)
	}
	if _, err := tr.Fit(&mockDataset{}, nil); err == nil {
		t.Fatal("expected error for empty training dataset")
	}
}

func TestEarlyStopperObserve(t *testing.T) {
	params := []*param{newParam("p", 2)}
	params[0].w[0] = 1
	e := &earlyStopper{patience: 2, best: math.Inf(1)}

	if e.observe(0.5, params) {
		t.Fatal("first observation should not stop")
	}
	params[0].w[0] = 9 // drift after the snapshot
	if e.observe(0.6, params) {
		t.Fatal("one stagnant epoch within patience")
	}
	if !e.observe(0.7, params) {
		t.Fatal("patience exhausted, expected stop")
	}
	restoreParams(params, e.snap)
	if params[0].w[0] != 1 {
		t.Fatalf("rollback failed: %v", params[0].w[0])
	}
}
