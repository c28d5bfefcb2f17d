package pipeline

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/PillaiMahesh/ComptonNet/datasets"
)

// writeEventCSV writes a detector event table with the given per-group row
// counts. Group i is sourced at (10*(i+1), 20*(i+1)).
func writeEventCSV(t *testing.T, path string, groupRows []int) {
	t.Helper()
	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("create csv: %v", err)
	}
	defer f.Close()

	fmt.Fprintln(f, "Source_X,Source_Y,Scatter_X,Scatter_Y,Energy,Absorb_X,Absorb_Y,Energy_Abs")
	for g, rows := range groupRows {
		sx, sy := 10*(g+1), 20*(g+1)
		for r := 0; r < rows; r++ {
			fmt.Fprintf(f, "%d,%d,%d,%d,%d,%d,%d,%d\n",
				sx, sy, r%17, (r+3)%13, r%29, (r+5)%11, (r+7)%19, r%23)
		}
	}
}

// TestRunEndToEnd exercises the whole pipeline on a small table with one
// short group (padded) and one oversized group (truncated).
func TestRunEndToEnd(t *testing.T) {
	if testing.Short() {
		t.Skip("end-to-end training is slow")
	}
	tmp := t.TempDir()
	csvPath := filepath.Join(tmp, "events.csv")
	writeEventCSV(t, csvPath, []int{10, 5000})

	outDir := filepath.Join(tmp, "out")
	cfg := Config{
		Pattern:  filepath.Join(tmp, "*.csv"),
		OutDir:   outDir,
		Seed:     42,
		Epochs:   2,
		Patience: 0,
		LogEvery: 0,
	}
	res, err := Run(cfg)
	if err != nil {
		t.Fatalf("Run error: %v", err)
	}

	// Two groups split into one train and one test sample.
	if len(res.Split.Train) != 1 || len(res.Split.Test) != 1 {
		t.Fatalf("unexpected split: train=%d val=%d test=%d",
			len(res.Split.Train), len(res.Split.Val), len(res.Split.Test))
	}
	if len(res.History) != cfg.Epochs {
		t.Fatalf("history length %d", len(res.History))
	}
	if len(res.Report.Samples) != len(res.Split.Test) {
		t.Fatalf("scored %d samples for %d test groups", len(res.Report.Samples), len(res.Split.Test))
	}
	// Artifact warnings never abort the run; surface them for inspection.
	for _, w := range res.Warnings {
		t.Logf("report warning: %s", w)
	}
	for _, name := range []string{"training_curves.png", "summary.txt"} {
		if _, err := os.Stat(filepath.Join(outDir, name)); err != nil {
			t.Errorf("artifact %s missing: %v", name, err)
		}
	}
}

func TestRunMissingInput(t *testing.T) {
	cfg := Config{Pattern: filepath.Join(t.TempDir(), "*.csv"), OutDir: t.TempDir()}
	if _, err := Run(cfg); err == nil {
		t.Fatal("expected error for missing input files")
	}
}

func TestConfigValidation(t *testing.T) {
	c := Config{}
	if err := c.applyDefaults(); err == nil {
		t.Fatal("expected error for empty pattern")
	}
	c = Config{Pattern: "x", OutDir: "y", Schedule: "bogus"}
	if err := c.applyDefaults(); err == nil {
		t.Fatal("expected error for unknown schedule")
	}
	c = Config{Pattern: "x", OutDir: "y"}
	if err := c.applyDefaults(); err != nil {
		t.Fatalf("applyDefaults error: %v", err)
	}
	if c.Epochs != 300 || c.BatchSize != 32 || c.TrainFrac != 0.70 || c.Schedule != "plateau" {
		t.Fatalf("defaults not applied: %+v", c)
	}
}

// TestBuildDatasetShapes verifies every group tensorizes to the same fixed
// shape regardless of its raw row count.
func TestBuildDatasetShapes(t *testing.T) {
	tmp := t.TempDir()
	writeEventCSV(t, filepath.Join(tmp, "events.csv"), []int{1, 10, 3000, 3500})

	source, err := datasets.NewEventSource(filepath.Join(tmp, "*.csv"))
	if err != nil {
		t.Fatalf("NewEventSource error: %v", err)
	}
	cfg := Config{Pattern: "x", OutDir: "y"}
	if err := cfg.applyDefaults(); err != nil {
		t.Fatalf("applyDefaults error: %v", err)
	}

	ds, lt, err := buildDataset(cfg, source, source.Sources())
	if err != nil {
		t.Fatalf("buildDataset error: %v", err)
	}
	if ds.Len() != 4 {
		t.Fatalf("dataset length %d", ds.Len())
	}
	wantLen := datasets.FixedEventCount * datasets.FeatureCount
	for i := 0; i < ds.Len(); i++ {
		in, lab, err := ds.Example(i)
		if err != nil {
			t.Fatalf("Example(%d) error: %v", i, err)
		}
		if len(in) != wantLen {
			t.Fatalf("example %d input length %d, want %d", i, len(in), wantLen)
		}
		// Labels live in model space with a working inverse.
		back := lt.Invert(lab)
		id := ds.SourceID(i)
		if diff := float64(back[0] - id.X); diff > 1e-3 || diff < -1e-3 {
			t.Fatalf("label inverse mismatch for %s: %v", id, back)
		}
		if diff := float64(back[1] - id.Y); diff > 1e-3 || diff < -1e-3 {
			t.Fatalf("label inverse mismatch for %s: %v", id, back)
		}
	}
}
