package main

import (
	"encoding/json"
	"flag"
	"log"
	"os"
	"strings"

	"github.com/PillaiMahesh/ComptonNet/datasets"
	"github.com/PillaiMahesh/ComptonNet/pipeline"
)

// jsonConfig mirrors the CLI flags. Pointer fields so absent keys are
// distinguishable from zero values; JSON applies only where the
// corresponding flag was left at its default.
type jsonConfig struct {
	Pattern   *string  `json:"pattern"`
	OutDir    *string  `json:"out"`
	Scale     *string  `json:"scale"`
	NormScope *string  `json:"norm_scope"`
	Labels    *string  `json:"labels"`
	Deep      *bool    `json:"deep"`
	TrainFrac *float64 `json:"train_frac"`
	ValFrac   *float64 `json:"val_frac"`
	Seed      *int64   `json:"seed"`
	Epochs    *int     `json:"epochs"`
	BatchSize *int     `json:"batch_size"`
	Patience  *int     `json:"patience"`
	LR        *float64 `json:"learning_rate"`
	ClipNorm  *float64 `json:"clip_norm"`
	Schedule  *string  `json:"schedule"`
	Decay     *float64 `json:"decay"`
	Optimizer *string  `json:"optimizer"`
	LogEvery  *int     `json:"log_every"`
}

func main() {
	pattern := flag.String("pattern", "data/*.csv", "glob pattern for detector event CSV files")
	outDir := flag.String("out", "output", "output directory for plots and summary.txt")
	configPath := flag.String("config", "", "optional JSON config file; flags left at defaults take its values")

	scale := flag.String("scale", "standard", "feature scaling policy: 'standard' or 'minmax'")
	normScope := flag.String("norm-scope", "group", "scaler fit scope: 'group' (per source) or 'global'")
	labels := flag.String("labels", "fitted", "label policy: 'fitted' (min-max into [0,1]) or 'bounded' (divide by 255, sigmoid head)")
	deep := flag.Bool("deep", false, "use the wider conv stack variant")

	trainFrac := flag.Float64("train-frac", 0.70, "fraction of source groups used for training")
	valFrac := flag.Float64("val-frac", 0.15, "fraction of source groups used for validation")
	seed := flag.Int64("seed", 1, "random seed for splitting, init and shuffling")

	epochs := flag.Int("epochs", 300, "number of training epochs")
	batchSize := flag.Int("batch-size", 32, "training batch size")
	patience := flag.Int("patience", 0, "early stopping patience in epochs (0 disables)")
	learningRate := flag.Float64("learning-rate", 1e-3, "initial learning rate")
	clipNorm := flag.Float64("clip-norm", 5.0, "gradient clipping norm")
	schedule := flag.String("schedule", "plateau", "learning-rate schedule: 'plateau' or 'exponential'")
	decay := flag.Float64("decay", 0.97, "per-epoch multiplier for the exponential schedule")
	optimizer := flag.String("optimizer", "adam", "optimizer to use for training: 'adam' or 'sgd'")
	logEvery := flag.Int("log-every", 10, "log training progress every n epochs (0 disables)")

	flag.Parse()

	if *configPath != "" {
		data, err := os.ReadFile(*configPath)
		if err != nil {
			log.Fatalf("failed to read config %s: %v", *configPath, err)
		}
		var jc jsonConfig
		if err := json.Unmarshal(data, &jc); err != nil {
			log.Fatalf("failed to parse config %s: %v", *configPath, err)
		}
		// CLI flags always win over JSON; JSON fills flags still at default.
		if jc.Pattern != nil && *pattern == "data/*.csv" {
			*pattern = *jc.Pattern
		}
		if jc.OutDir != nil && *outDir == "output" {
			*outDir = *jc.OutDir
		}
		if jc.Scale != nil && *scale == "standard" {
			*scale = *jc.Scale
		}
		if jc.NormScope != nil && *normScope == "group" {
			*normScope = *jc.NormScope
		}
		if jc.Labels != nil && *labels == "fitted" {
			*labels = *jc.Labels
		}
		if jc.Deep != nil && !*deep {
			*deep = *jc.Deep
		}
		if jc.TrainFrac != nil && *trainFrac == 0.70 {
			*trainFrac = *jc.TrainFrac
		}
		if jc.ValFrac != nil && *valFrac == 0.15 {
			*valFrac = *jc.ValFrac
		}
		if jc.Seed != nil && *seed == 1 {
			*seed = *jc.Seed
		}
		if jc.Epochs != nil && *epochs == 300 {
			*epochs = *jc.Epochs
		}
		if jc.BatchSize != nil && *batchSize == 32 {
			*batchSize = *jc.BatchSize
		}
		if jc.Patience != nil && *patience == 0 {
			*patience = *jc.Patience
		}
		if jc.LR != nil && *learningRate == 1e-3 {
			*learningRate = *jc.LR
		}
		if jc.ClipNorm != nil && *clipNorm == 5.0 {
			*clipNorm = *jc.ClipNorm
		}
		if jc.Schedule != nil && *schedule == "plateau" {
			*schedule = *jc.Schedule
		}
		if jc.Decay != nil && *decay == 0.97 {
			*decay = *jc.Decay
		}
		if jc.Optimizer != nil && *optimizer == "adam" {
			*optimizer = *jc.Optimizer
		}
		if jc.LogEvery != nil && *logEvery == 10 {
			*logEvery = *jc.LogEvery
		}
		log.Printf("merged config from %s", *configPath)
	}

	cfg := pipeline.Config{
		Pattern:   *pattern,
		OutDir:    *outDir,
		Deep:      *deep,
		TrainFrac: *trainFrac,
		ValFrac:   *valFrac,
		Seed:      *seed,
		Epochs:    *epochs,
		BatchSize: *batchSize,
		Patience:  *patience,
		LR:        *learningRate,
		ClipNorm:  *clipNorm,
		Schedule:  *schedule,
		Decay:     *decay,
		LogEvery:  *logEvery,
	}

	switch strings.ToLower(*scale) {
	case "standard":
		cfg.ScalePolicy = datasets.ScaleStandard
	case "minmax":
		cfg.ScalePolicy = datasets.ScaleMinMax
	default:
		log.Fatalf("unknown scale policy %q (want 'standard' or 'minmax')", *scale)
	}

	switch strings.ToLower(*normScope) {
	case "group":
		cfg.NormScope = pipeline.NormPerGroup
	case "global":
		cfg.NormScope = pipeline.NormGlobal
	default:
		log.Fatalf("unknown norm scope %q (want 'group' or 'global')", *normScope)
	}

	switch strings.ToLower(*labels) {
	case "fitted":
		cfg.LabelPolicy = datasets.LabelScaleFitted
	case "bounded":
		cfg.LabelPolicy = datasets.LabelScaleBounded
	default:
		log.Fatalf("unknown label policy %q (want 'fitted' or 'bounded')", *labels)
	}

	switch strings.ToLower(*optimizer) {
	case "adam":
	case "sgd":
		cfg.SGD = true
	default:
		log.Fatalf("unknown optimizer %q (want 'adam' or 'sgd')", *optimizer)
	}

	result, err := pipeline.Run(cfg)
	if err != nil {
		log.Fatalf("pipeline failed: %v", err)
	}
	log.Printf("done: %d test samples scored, %d report warnings, artifacts in %s",
		len(result.Report.Samples), len(result.Warnings), *outDir)
}
