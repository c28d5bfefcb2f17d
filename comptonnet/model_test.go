package comptonnet

import (
	"math"
	"testing"
)

// tinyConfig is a small architecture that keeps tests fast while still
// exercising every layer type.
func tinyConfig() Config {
	return Config{
		Events:       32,
		Channels:     4,
		ConvChannels: []int{8},
		KernelSize:   3,
		PoolSize:     2,
		GRUSizes:     []int{6},
		DenseSize:    8,
		Seed:         42,
	}
}

func TestNewModelValidation(t *testing.T) {
	if _, err := NewModel(Config{}); err == nil {
		t.Fatal("expected error for empty config")
	}

	cfg := tinyConfig()
	cfg.KernelSize = 4
	if _, err := NewModel(cfg); err == nil {
		t.Fatal("expected error for even kernel size")
	}

	cfg = tinyConfig()
	cfg.PoolSize = 64 // pools past the event dimension
	if _, err := NewModel(cfg); err == nil {
		t.Fatal("expected error when event dimension collapses")
	}
}

func TestModelPredictShape(t *testing.T) {
	m, err := NewModel(tinyConfig())
	if err != nil {
		t.Fatalf("NewModel error: %v", err)
	}
	x := make([]float32, m.InputSize())
	for i := range x {
		x[i] = float32(i%7) * 0.1
	}
	pred, err := m.Predict(x)
	if err != nil {
		t.Fatalf("Predict error: %v", err)
	}
	if len(pred) != 2 {
		t.Fatalf("prediction length %d", len(pred))
	}
	for d, v := range pred {
		if math.IsNaN(float64(v)) || math.IsInf(float64(v), 0) {
			t.Fatalf("prediction dim %d is non-finite: %v", d, v)
		}
	}

	if _, err := m.Predict(x[:10]); err == nil {
		t.Fatal("expected error for wrong input length")
	}
}

func TestModelDeterministicUnderSeed(t *testing.T) {
	a, err := NewModel(tinyConfig())
	if err != nil {
		t.Fatalf("NewModel error: %v", err)
	}
	b, err := NewModel(tinyConfig())
	if err != nil {
		t.Fatalf("NewModel error: %v", err)
	}
	x := make([]float32, a.InputSize())
	for i := range x {
		x[i] = float32(i) * 0.01
	}
	pa, err := a.Predict(x)
	if err != nil {
		t.Fatalf("Predict error: %v", err)
	}
	pb, err := b.Predict(x)
	if err != nil {
		t.Fatalf("Predict error: %v", err)
	}
	if pa[0] != pb[0] || pa[1] != pb[1] {
		t.Fatalf("same seed, different predictions: %v vs %v", pa, pb)
	}
}

func TestModelSigmoidHeadBounds(t *testing.T) {
	cfg := tinyConfig()
	cfg.SigmoidHead = true
	m, err := NewModel(cfg)
	if err != nil {
		t.Fatalf("NewModel error: %v", err)
	}
	x := make([]float32, m.InputSize())
	for i := range x {
		x[i] = float32(i%11) - 5
	}
	pred, err := m.Predict(x)
	if err != nil {
		t.Fatalf("Predict error: %v", err)
	}
	for d, v := range pred {
		if v <= 0 || v >= 1 {
			t.Fatalf("sigmoid output dim %d out of (0,1): %v", d, v)
		}
	}
}

func TestPredictBatch(t *testing.T) {
	m, err := NewModel(tinyConfig())
	if err != nil {
		t.Fatalf("NewModel error: %v", err)
	}
	inputs := make([][]float32, 3)
	for i := range inputs {
		x := make([]float32, m.InputSize())
		for j := range x {
			x[j] = float32(i + j%5)
		}
		inputs[i] = x
	}
	preds, err := m.PredictBatch(inputs)
	if err != nil {
		t.Fatalf("PredictBatch error: %v", err)
	}
	if len(preds) != 3 || len(preds[0]) != 2 {
		t.Fatalf("unexpected batch prediction shape")
	}
	// Inference is stateless: repeating a sample reproduces its prediction.
	again, err := m.Predict(inputs[1])
	if err != nil {
		t.Fatalf("Predict error: %v", err)
	}
	if again[0] != preds[1][0] || again[1] != preds[1][1] {
		t.Fatalf("inference not repeatable: %v vs %v", again, preds[1])
	}
}

func TestDeepConfigWider(t *testing.T) {
	d := DeepConfig()
	s := DefaultConfig()
	if d.ConvChannels[0] <= s.ConvChannels[0] {
		t.Fatal("deep variant should widen the conv stack")
	}
	if len(d.GRUSizes) >= len(s.GRUSizes) {
		t.Fatal("deep variant should use fewer recurrent layers")
	}
}
