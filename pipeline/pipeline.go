// Package pipeline wires ingestion, normalization, tensorization,
// splitting, training, evaluation and reporting into one end-to-end run.
package pipeline

import (
	"errors"
	"fmt"
	"log"
	"strings"

	"github.com/PillaiMahesh/ComptonNet/comptonnet"
	"github.com/PillaiMahesh/ComptonNet/datasets"
	"github.com/PillaiMahesh/ComptonNet/evaluate"
	"github.com/PillaiMahesh/ComptonNet/report"
)

// NormScope selects whether the feature scaler is fitted per source group
// or once over the concatenated rows of every group.
type NormScope int

const (
	NormPerGroup NormScope = iota
	NormGlobal
)

func (s NormScope) String() string {
	if s == NormGlobal {
		return "global"
	}
	return "per-group"
}

// Config holds every knob of an end-to-end run. Zero values fall back to
// the documented defaults.
type Config struct {
	// Pattern is the CSV glob for the detector event table(s).
	Pattern string
	// OutDir receives plots and summary.txt.
	OutDir string

	ScalePolicy datasets.ScalePolicy
	NormScope   NormScope
	LabelPolicy datasets.LabelPolicy

	// Deep selects the wider conv stack variant.
	Deep bool

	TrainFrac float64 // default 0.70
	ValFrac   float64 // default 0.15
	Seed      int64   // default 1

	Epochs    int     // default 300
	BatchSize int     // default 32
	Patience  int     // 0 disables early stopping
	LR        float64 // default 1e-3
	ClipNorm  float64 // default 5
	// Schedule is "plateau" or "exponential".
	Schedule string
	// Decay is the per-epoch multiplier for the exponential schedule.
	Decay float64 // default 0.97
	// SGD selects plain SGD instead of Adam.
	SGD bool

	LogEvery int
}

func (c *Config) applyDefaults() error {
	if c.Pattern == "" {
		return errors.New("input pattern is required")
	}
	if c.OutDir == "" {
		return errors.New("output directory is required")
	}
	if c.TrainFrac == 0 {
		c.TrainFrac = 0.70
	}
	if c.ValFrac == 0 {
		c.ValFrac = 0.15
	}
	if c.Seed == 0 {
		c.Seed = 1
	}
	if c.Epochs == 0 {
		c.Epochs = 300
	}
	if c.BatchSize == 0 {
		c.BatchSize = 32
	}
	if c.LR == 0 {
		c.LR = 1e-3
	}
	if c.ClipNorm == 0 {
		c.ClipNorm = 5
	}
	if c.Schedule == "" {
		c.Schedule = "plateau"
	}
	if c.Decay == 0 {
		c.Decay = 0.97
	}
	switch strings.ToLower(c.Schedule) {
	case "plateau", "exponential":
	default:
		return fmt.Errorf("unknown schedule %q (want plateau or exponential)", c.Schedule)
	}
	return nil
}

// Result is everything a finished run produces.
type Result struct {
	Split    *datasets.Split
	History  comptonnet.History
	Report   *evaluate.Report
	Warnings []report.Warning
}

// Run executes the full pipeline: ingest, normalize, tensorize, split,
// train, evaluate the test partition and write report artifacts. Data and
// shape failures are fatal; artifact failures surface as warnings on the
// Result.
func Run(cfg Config) (*Result, error) {
	if err := cfg.applyDefaults(); err != nil {
		return nil, err
	}

	source, err := datasets.NewEventSource(cfg.Pattern)
	if err != nil {
		return nil, fmt.Errorf("ingest: %w", err)
	}
	ids := source.Sources()
	log.Printf("loaded %d source groups from %s", len(ids), cfg.Pattern)

	full, labelTransform, err := buildDataset(cfg, source, ids)
	if err != nil {
		return nil, err
	}

	split, err := datasets.SplitGroups(full.Len(), cfg.TrainFrac, cfg.ValFrac, cfg.Seed)
	if err != nil {
		return nil, fmt.Errorf("split: %w", err)
	}
	log.Print(split.Summary())

	train, err := full.Subset(split.Train)
	if err != nil {
		return nil, fmt.Errorf("train subset: %w", err)
	}
	val, err := full.Subset(split.Val)
	if err != nil {
		return nil, fmt.Errorf("val subset: %w", err)
	}
	test, err := full.Subset(split.Test)
	if err != nil {
		return nil, fmt.Errorf("test subset: %w", err)
	}

	model, trainer, err := buildTrainer(cfg)
	if err != nil {
		return nil, err
	}

	var valDS datasets.Dataset
	if val.Len() > 0 {
		valDS = val
	}
	history, err := trainer.Fit(train, valDS)
	if err != nil {
		return nil, fmt.Errorf("training failed: %w", err)
	}
	log.Printf("training %s after %d epochs", trainer.Halt(), len(history))

	rep, err := evaluateTest(model, test, labelTransform)
	if err != nil {
		return nil, err
	}
	log.Printf("test: mean ssim=%.4f mse=%.6f mae=%.6f euclid=%.4f over %d samples",
		rep.MeanSSIM, rep.MeanMSE, rep.MeanMAE, rep.MeanEuclid, len(rep.Samples))

	sink, err := report.NewSink(cfg.OutDir)
	if err != nil {
		return nil, fmt.Errorf("report sink: %w", err)
	}
	warnings := sink.WriteAll(history, rep)
	for _, w := range warnings {
		log.Printf("report warning: %s", w)
	}

	return &Result{Split: split, History: history, Report: rep, Warnings: warnings}, nil
}

// buildDataset normalizes, encodes labels and tensorizes every group.
func buildDataset(cfg Config, source *datasets.EventSource, ids []datasets.SourceID) (*datasets.TensorDataset, *datasets.LabelTransform, error) {
	features := make([][][]float32, len(ids))
	for i, id := range ids {
		f, err := source.GroupFeatures(id)
		if err != nil {
			return nil, nil, fmt.Errorf("group %s: %w", id, err)
		}
		features[i] = f
	}

	if cfg.NormScope == NormGlobal {
		var all [][]float32
		for _, f := range features {
			all = append(all, f...)
		}
		scaler, err := datasets.FitScaler(cfg.ScalePolicy, all)
		if err != nil {
			return nil, nil, fmt.Errorf("fit global scaler: %w", err)
		}
		for i := range features {
			features[i] = scaler.Transform(features[i])
		}
	} else {
		for i := range features {
			scaler, err := datasets.FitScaler(cfg.ScalePolicy, features[i])
			if err != nil {
				return nil, nil, fmt.Errorf("fit scaler for group %s: %w", ids[i], err)
			}
			features[i] = scaler.Transform(features[i])
		}
	}

	rawLabels := make([][]float32, len(ids))
	for i, id := range ids {
		rawLabels[i] = id.Label()
	}
	labelTransform, err := datasets.FitLabelTransform(cfg.LabelPolicy, rawLabels)
	if err != nil {
		return nil, nil, fmt.Errorf("fit label transform: %w", err)
	}

	ts := make([]*datasets.FixedEventTensor, len(ids))
	labels := make([][]float32, len(ids))
	for i := range ids {
		t, err := datasets.Tensorize(features[i])
		if err != nil {
			return nil, nil, fmt.Errorf("tensorize group %s: %w", ids[i], err)
		}
		ts[i] = t
		labels[i] = labelTransform.Apply(rawLabels[i])
	}

	ds, err := datasets.NewTensorDataset(ids, ts, labels)
	if err != nil {
		return nil, nil, err
	}
	ds.BatchSize = cfg.BatchSize
	return ds, labelTransform, nil
}

// buildTrainer compiles a model and trainer from the run config.
func buildTrainer(cfg Config) (*comptonnet.Model, *comptonnet.Trainer, error) {
	mcfg := comptonnet.DefaultConfig()
	if cfg.Deep {
		mcfg = comptonnet.DeepConfig()
	}
	mcfg.Seed = cfg.Seed
	mcfg.SigmoidHead = cfg.LabelPolicy == datasets.LabelScaleBounded

	model, err := comptonnet.NewModel(mcfg)
	if err != nil {
		return nil, nil, fmt.Errorf("build model: %w", err)
	}

	var sched comptonnet.Schedule
	if strings.ToLower(cfg.Schedule) == "exponential" {
		sched = &comptonnet.ExponentialDecay{Initial: cfg.LR, Decay: cfg.Decay, Floor: 1e-6}
	} else {
		sched = comptonnet.NewReduceOnPlateau(cfg.LR)
	}

	var opt comptonnet.Optimizer
	if cfg.SGD {
		opt = &comptonnet.SGD{}
	} else {
		opt = comptonnet.NewAdam()
	}

	trainer := comptonnet.NewTrainer(model)
	tcfg := comptonnet.TrainConfig{
		Epochs:    cfg.Epochs,
		BatchSize: cfg.BatchSize,
		ClipNorm:  float32(cfg.ClipNorm),
		Patience:  cfg.Patience,
		Seed:      cfg.Seed,
		LogEvery:  cfg.LogEvery,
	}
	if err := trainer.Compile(comptonnet.DefaultLoss(), opt, sched, tcfg); err != nil {
		return nil, nil, fmt.Errorf("compile trainer: %w", err)
	}
	return model, trainer, nil
}

// evaluateTest predicts the test partition, inverts the label transform
// and scores the predictions in physical units.
func evaluateTest(model *comptonnet.Model, test *datasets.TensorDataset, lt *datasets.LabelTransform) (*evaluate.Report, error) {
	n := test.Len()
	ids := make([]string, n)
	truth := make([][]float32, n)
	preds := make([][]float32, n)
	for i := 0; i < n; i++ {
		input, label, err := test.Example(i)
		if err != nil {
			return nil, fmt.Errorf("test sample %d: %w", i, err)
		}
		pred, err := model.Predict(input)
		if err != nil {
			return nil, fmt.Errorf("predict test sample %d: %w", i, err)
		}
		ids[i] = test.SourceID(i).String()
		truth[i] = lt.Invert(label)
		preds[i] = lt.Invert(pred)
	}
	rep, err := evaluate.EvaluateSamples(ids, truth, preds)
	if err != nil {
		return nil, fmt.Errorf("evaluate: %w", err)
	}
	return rep, nil
}
