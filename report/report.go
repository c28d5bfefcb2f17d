// Package report writes the evaluation artifacts: training-curve and
// learning-rate plots, true/predicted heatmap pairs, an error-distribution
// histogram and a plain-text metric summary.
//
// Artifact generation and numeric evaluation are decoupled failure
// domains: every artifact that fails is recorded as a Warning and never
// aborts the caller's pipeline.
package report

import (
	"fmt"
	"math"
	"os"
	"path/filepath"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/palette/moreland"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"

	"github.com/PillaiMahesh/ComptonNet/comptonnet"
	"github.com/PillaiMahesh/ComptonNet/evaluate"
)

// Warning records one failed artifact without failing the run.
type Warning struct {
	Artifact string
	Err      error
}

func (w Warning) String() string { return fmt.Sprintf("%s: %v", w.Artifact, w.Err) }

// Sink writes named artifacts into an output directory.
type Sink struct {
	Dir string
	// MaxHeatmapPairs caps how many per-sample heatmap pairs are rendered.
	MaxHeatmapPairs int
}

// NewSink creates the output directory if absent.
func NewSink(dir string) (*Sink, error) {
	if dir == "" {
		return nil, fmt.Errorf("empty output directory")
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("mkdir %s: %w", dir, err)
	}
	return &Sink{Dir: dir, MaxHeatmapPairs: 8}, nil
}

// WriteAll emits every artifact for a finished run and returns the
// warnings for artifacts that could not be produced.
func (s *Sink) WriteAll(history comptonnet.History, rep *evaluate.Report) []Warning {
	var warnings []Warning
	record := func(artifact string, err error) {
		if err != nil {
			warnings = append(warnings, Warning{Artifact: artifact, Err: err})
		}
	}

	record("training_curves.png", s.TrainingCurves(history))
	record("learning_rate.png", s.LearningRateCurve(history))
	record("error_histogram.png", s.ErrorHistogram(rep))
	for i := range rep.Samples {
		if i >= s.MaxHeatmapPairs {
			break
		}
		record(fmt.Sprintf("sample_%03d heatmaps", i), s.HeatmapPair(i, rep.Samples[i]))
	}
	record("summary.txt", s.Summary(history, rep))
	return warnings
}

// TrainingCurves plots train and validation loss per epoch.
func (s *Sink) TrainingCurves(history comptonnet.History) error {
	if len(history) == 0 {
		return fmt.Errorf("empty training history")
	}
	p := plot.New()
	p.Title.Text = "Training loss"
	p.X.Label.Text = "epoch"
	p.Y.Label.Text = "loss"

	trainXY := make(plotter.XYs, 0, len(history))
	valXY := make(plotter.XYs, 0, len(history))
	for _, m := range history {
		trainXY = append(trainXY, plotter.XY{X: float64(m.Epoch), Y: m.TrainLoss})
		if !math.IsNaN(m.ValLoss) {
			valXY = append(valXY, plotter.XY{X: float64(m.Epoch), Y: m.ValLoss})
		}
	}

	trainLine, err := plotter.NewLine(trainXY)
	if err != nil {
		return err
	}
	p.Add(trainLine)
	p.Legend.Add("train", trainLine)

	if len(valXY) > 0 {
		valLine, err := plotter.NewLine(valXY)
		if err != nil {
			return err
		}
		valLine.Dashes = []vg.Length{vg.Points(3), vg.Points(2)}
		p.Add(valLine)
		p.Legend.Add("validation", valLine)
	}
	p.Add(plotter.NewGrid())
	return p.Save(8*vg.Inch, 6*vg.Inch, filepath.Join(s.Dir, "training_curves.png"))
}

// LearningRateCurve plots the per-epoch learning rate, making schedule
// decisions (plateau reductions, exponential decay) visible.
func (s *Sink) LearningRateCurve(history comptonnet.History) error {
	if len(history) == 0 {
		return fmt.Errorf("empty training history")
	}
	p := plot.New()
	p.Title.Text = "Learning rate schedule"
	p.X.Label.Text = "epoch"
	p.Y.Label.Text = "learning rate"

	xy := make(plotter.XYs, 0, len(history))
	for _, m := range history {
		xy = append(xy, plotter.XY{X: float64(m.Epoch), Y: m.LR})
	}
	line, err := plotter.NewLine(xy)
	if err != nil {
		return err
	}
	p.Add(line, plotter.NewGrid())
	return p.Save(8*vg.Inch, 4*vg.Inch, filepath.Join(s.Dir, "learning_rate.png"))
}

// ErrorHistogram plots the distribution of per-sample Euclidean errors.
func (s *Sink) ErrorHistogram(rep *evaluate.Report) error {
	if len(rep.Samples) == 0 {
		return fmt.Errorf("no samples to plot")
	}
	vals := make(plotter.Values, len(rep.Samples))
	for i, sm := range rep.Samples {
		vals[i] = sm.Euclid
	}
	p := plot.New()
	p.Title.Text = "Euclidean error distribution"
	p.X.Label.Text = "distance"
	p.Y.Label.Text = "count"

	bins := 16
	if len(vals) < bins {
		bins = len(vals)
	}
	h, err := plotter.NewHist(vals, bins)
	if err != nil {
		return err
	}
	p.Add(h)
	return p.Save(8*vg.Inch, 6*vg.Inch, filepath.Join(s.Dir, "error_histogram.png"))
}

// heatGrid adapts a row-major square image to plotter.GridXYZ.
type heatGrid struct {
	data []float64
	size int
}

func (g heatGrid) Dims() (int, int)   { return g.size, g.size }
func (g heatGrid) X(c int) float64    { return float64(c) }
func (g heatGrid) Y(r int) float64    { return float64(r) }
func (g heatGrid) Z(c, r int) float64 { return g.data[r*g.size+c] }

// HeatmapPair renders the smoothed true and predicted position heatmaps
// for one test sample into a pair of PNGs.
func (s *Sink) HeatmapPair(idx int, sm evaluate.SampleMetrics) error {
	trueImg := evaluate.GaussianBlur(evaluate.PointHeatmap(sm.TrueX, sm.TrueY), evaluate.HeatmapSize, evaluate.BlurSigma)
	predImg := evaluate.GaussianBlur(evaluate.PointHeatmap(sm.PredX, sm.PredY), evaluate.HeatmapSize, evaluate.BlurSigma)

	write := func(img []float64, title, path string) error {
		p := plot.New()
		p.Title.Text = title
		p.X.Label.Text = "x"
		p.Y.Label.Text = "y"
		pal := moreland.SmoothBlueRed().Palette(255)
		p.Add(plotter.NewHeatMap(heatGrid{data: img, size: evaluate.HeatmapSize}, pal))
		return p.Save(5*vg.Inch, 5*vg.Inch, path)
	}

	truePath := filepath.Join(s.Dir, fmt.Sprintf("sample_%03d_true.png", idx))
	predPath := filepath.Join(s.Dir, fmt.Sprintf("sample_%03d_pred.png", idx))
	if err := write(trueImg, fmt.Sprintf("true (%.1f, %.1f)", sm.TrueX, sm.TrueY), truePath); err != nil {
		return err
	}
	return write(predImg, fmt.Sprintf("predicted (%.1f, %.1f) ssim=%.3f", sm.PredX, sm.PredY, sm.SSIM), predPath)
}

// Summary writes the plain-text metric summary.
func (s *Sink) Summary(history comptonnet.History, rep *evaluate.Report) error {
	path := filepath.Join(s.Dir, "summary.txt")
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	if len(history) > 0 {
		last := history[len(history)-1]
		fmt.Fprintf(f, "epochs trained      : %d\n", len(history))
		fmt.Fprintf(f, "final train loss    : %.6f\n", last.TrainLoss)
		if !math.IsNaN(last.ValLoss) {
			fmt.Fprintf(f, "final val loss      : %.6f\n", last.ValLoss)
		}
	}
	fmt.Fprintf(f, "test samples        : %d\n", len(rep.Samples))
	fmt.Fprintf(f, "mean SSIM           : %.6f\n", rep.MeanSSIM)
	fmt.Fprintf(f, "mean image MSE      : %.8f\n", rep.MeanMSE)
	fmt.Fprintf(f, "mean image MAE      : %.8f\n", rep.MeanMAE)
	fmt.Fprintf(f, "mean euclidean error: %.6f\n", rep.MeanEuclid)
	fmt.Fprintln(f)
	for _, sm := range rep.Samples {
		fmt.Fprintf(f, "sample %-16s true=(%.2f, %.2f) pred=(%.2f, %.2f) ssim=%.4f dist=%.4f\n",
			sm.ID, sm.TrueX, sm.TrueY, sm.PredX, sm.PredY, sm.SSIM, sm.Euclid)
	}
	return nil
}
