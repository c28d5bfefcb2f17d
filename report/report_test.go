package report

import (
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/PillaiMahesh/ComptonNet/comptonnet"
	"github.com/PillaiMahesh/ComptonNet/evaluate"
)

func testHistory() comptonnet.History {
	return comptonnet.History{
		{Epoch: 0, TrainLoss: 1.0, ValLoss: 1.2, LR: 0.001},
		{Epoch: 1, TrainLoss: 0.6, ValLoss: 0.8, LR: 0.001},
		{Epoch: 2, TrainLoss: 0.4, ValLoss: 0.7, LR: 0.0005},
	}
}

func testReport(t *testing.T) *evaluate.Report {
	t.Helper()
	rep, err := evaluate.EvaluateSamples(
		[]string{"a", "b", "c"},
		[][]float32{{10, 20}, {100, 100}, {30, 200}},
		[][]float32{{12, 21}, {90, 110}, {30, 200}},
	)
	if err != nil {
		t.Fatalf("EvaluateSamples error: %v", err)
	}
	return rep
}

func TestNewSinkCreatesDir(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "nested", "out")
	s, err := NewSink(dir)
	if err != nil {
		t.Fatalf("NewSink error: %v", err)
	}
	if info, err := os.Stat(s.Dir); err != nil || !info.IsDir() {
		t.Fatalf("output directory missing: %v", err)
	}

	if _, err := NewSink(""); err == nil {
		t.Fatal("expected error for empty directory")
	}
}

func TestWriteAllProducesArtifacts(t *testing.T) {
	dir := t.TempDir()
	s, err := NewSink(dir)
	if err != nil {
		t.Fatalf("NewSink error: %v", err)
	}
	s.MaxHeatmapPairs = 1

	warnings := s.WriteAll(testHistory(), testReport(t))
	for _, w := range warnings {
		t.Errorf("unexpected warning: %s", w)
	}

	for _, name := range []string{
		"training_curves.png",
		"learning_rate.png",
		"error_histogram.png",
		"sample_000_true.png",
		"sample_000_pred.png",
		"summary.txt",
	} {
		if _, err := os.Stat(filepath.Join(dir, name)); err != nil {
			t.Errorf("artifact %s missing: %v", name, err)
		}
	}
	// Pair cap honored.
	if _, err := os.Stat(filepath.Join(dir, "sample_001_true.png")); err == nil {
		t.Error("heatmap pair cap not honored")
	}
}

func TestSummaryContents(t *testing.T) {
	dir := t.TempDir()
	s, err := NewSink(dir)
	if err != nil {
		t.Fatalf("NewSink error: %v", err)
	}
	if err := s.Summary(testHistory(), testReport(t)); err != nil {
		t.Fatalf("Summary error: %v", err)
	}
	data, err := os.ReadFile(filepath.Join(dir, "summary.txt"))
	if err != nil {
		t.Fatalf("read summary: %v", err)
	}
	text := string(data)
	for _, want := range []string{"epochs trained", "mean SSIM", "mean euclidean error", "sample a", "sample c"} {
		if !strings.Contains(text, want) {
			t.Errorf("summary missing %q:\n%s", want, text)
		}
	}
}

func TestWriteAllWarnsOnEmptyHistory(t *testing.T) {
	dir := t.TempDir()
	s, err := NewSink(dir)
	if err != nil {
		t.Fatalf("NewSink error: %v", err)
	}

	// Empty history fails the curve plots but must not abort the rest.
	warnings := s.WriteAll(nil, testReport(t))
	if len(warnings) == 0 {
		t.Fatal("expected warnings for empty history")
	}
	if _, err := os.Stat(filepath.Join(dir, "summary.txt")); err != nil {
		t.Fatalf("summary should still be written: %v", err)
	}
}

func TestTrainingCurvesWithoutValidation(t *testing.T) {
	dir := t.TempDir()
	s, err := NewSink(dir)
	if err != nil {
		t.Fatalf("NewSink error: %v", err)
	}
	hist := comptonnet.History{
		{Epoch: 0, TrainLoss: 1.0, ValLoss: math.NaN(), LR: 0.001},
		{Epoch: 1, TrainLoss: 0.9, ValLoss: math.NaN(), LR: 0.001},
	}
	if err := s.TrainingCurves(hist); err != nil {
		t.Fatalf("TrainingCurves error: %v", err)
	}
}
