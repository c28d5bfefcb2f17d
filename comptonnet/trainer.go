package comptonnet

import (
	"errors"
	"fmt"
	"log"
	"math"
	"math/rand"

	"github.com/PillaiMahesh/ComptonNet/datasets"
)

// State tracks the trainer lifecycle:
// Uninitialized → Compiled → Training → Converged/Stopped → Frozen.
type State int

const (
	Uninitialized State = iota
	Compiled
	Training
	// Converged means the epoch budget ran out.
	Converged
	// Stopped means early stopping fired and best weights were restored.
	Stopped
	Frozen
)

func (s State) String() string {
	switch s {
	case Uninitialized:
		return "uninitialized"
	case Compiled:
		return "compiled"
	case Training:
		return "training"
	case Converged:
		return "converged"
	case Stopped:
		return "stopped"
	case Frozen:
		return "frozen"
	}
	return fmt.Sprintf("State(%d)", int(s))
}

// TrainConfig holds the epoch-loop hyperparameters.
type TrainConfig struct {
	Epochs    int
	BatchSize int
	ClipNorm  float32
	// Patience enables early stopping when > 0: training halts after this
	// many epochs without validation improvement and rolls back to the
	// best-observed weights.
	Patience int
	Seed     int64
	// LogEvery logs progress every n epochs (0 disables logging).
	LogEvery int
}

// DefaultTrainConfig mirrors the documented budget: 300 epochs, batches of
// 32, gradient clipping at 5.
func DefaultTrainConfig() TrainConfig {
	return TrainConfig{Epochs: 300, BatchSize: 32, ClipNorm: 5.0}
}

// EpochMetrics is one epoch's record in the training history.
type EpochMetrics struct {
	Epoch     int
	TrainLoss float64
	ValLoss   float64 // NaN when no validation set was provided
	LR        float64
}

// History is the per-epoch metric record returned by Fit.
type History []EpochMetrics

// earlyStopper tracks the best validation loss and a rollback snapshot.
type earlyStopper struct {
	patience int
	best     float64
	wait     int
	snap     [][]float32
}

// observe returns true when patience is exhausted.
func (e *earlyStopper) observe(valLoss float64, params []*param) bool {
	if valLoss < e.best {
		e.best = valLoss
		e.wait = 0
		e.snap = snapshotParams(params)
		return false
	}
	e.wait++
	return e.wait >= e.patience
}

// Trainer binds a model to a loss, optimizer and learning-rate schedule
// and runs the epoch loop. It mutates model weights only; datasets are
// never modified beyond their own Shuffle.
type Trainer struct {
	model *Model
	loss  Loss
	opt   Optimizer
	sched Schedule
	cfg   TrainConfig
	state State
	// halt records whether training ended by budget (Converged) or early
	// stopping (Stopped) once the trainer is Frozen.
	halt State
	rng  *rand.Rand
}

// NewTrainer returns an uninitialized trainer for the model.
func NewTrainer(model *Model) *Trainer {
	return &Trainer{model: model, state: Uninitialized}
}

// State reports the trainer's lifecycle state.
func (t *Trainer) State() State { return t.state }

// Halt reports how a frozen trainer ended: Converged (epoch budget) or
// Stopped (early stopping).
func (t *Trainer) Halt() State { return t.halt }

// Compile binds the optimizer, loss and schedule. Must be called exactly
// once before Fit.
func (t *Trainer) Compile(loss Loss, opt Optimizer, sched Schedule, cfg TrainConfig) error {
	if t.state != Uninitialized {
		return fmt.Errorf("compile called in state %s", t.state)
	}
	if loss == nil || opt == nil || sched == nil {
		return errors.New("loss, optimizer and schedule are all required")
	}
	if cfg.Epochs <= 0 {
		cfg.Epochs = 300
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 32
	}
	if cfg.Seed == 0 {
		cfg.Seed = t.model.Config.Seed
	}
	t.loss = loss
	t.opt = opt
	t.sched = sched
	t.cfg = cfg
	t.rng = rand.New(rand.NewSource(cfg.Seed))
	t.state = Compiled
	return nil
}

// Fit trains the model over the train partition, validating once per
// epoch when val is non-nil. It blocks until the epoch budget runs out or
// early stopping fires, then freezes the model and returns the history.
// Any dataset or shape failure aborts training and is fatal to the run.
func (t *Trainer) Fit(train, val datasets.Dataset) (History, error) {
	if t.state != Compiled {
		return nil, fmt.Errorf("fit called in state %s", t.state)
	}
	n := train.Len()
	if n == 0 {
		return nil, errors.New("training dataset is empty")
	}
	t.state = Training

	var early *earlyStopper
	if t.cfg.Patience > 0 {
		early = &earlyStopper{patience: t.cfg.Patience, best: math.Inf(1)}
	}

	indices := make([]int, n)
	for i := range indices {
		indices[i] = i
	}

	history := make(History, 0, t.cfg.Epochs)
	prevVal := math.NaN()

	for epoch := 0; epoch < t.cfg.Epochs; epoch++ {
		lr := t.sched.Rate(epoch, prevVal)

		t.rng.Shuffle(n, func(i, j int) { indices[i], indices[j] = indices[j], indices[i] })

		var epochLoss float64
		var seen int
		for start := 0; start < n; start += t.cfg.BatchSize {
			end := start + t.cfg.BatchSize
			if end > n {
				end = n
			}
			batchLoss, err := t.trainBatch(train, indices[start:end], lr)
			if err != nil {
				return history, fmt.Errorf("epoch %d: %w", epoch, err)
			}
			epochLoss += batchLoss * float64(end-start)
			seen += end - start
		}
		epochLoss /= float64(seen)

		valLoss := math.NaN()
		if val != nil && val.Len() > 0 {
			var err error
			valLoss, err = t.Evaluate(val)
			if err != nil {
				return history, fmt.Errorf("epoch %d validation: %w", epoch, err)
			}
		}
		monitored := valLoss
		if math.IsNaN(monitored) {
			monitored = epochLoss
		}
		prevVal = monitored

		history = append(history, EpochMetrics{Epoch: epoch, TrainLoss: epochLoss, ValLoss: valLoss, LR: lr})
		if t.cfg.LogEvery > 0 && epoch%t.cfg.LogEvery == 0 {
			log.Printf("epoch %d: train=%.6f val=%.6f lr=%.2e", epoch, epochLoss, valLoss, lr)
		}

		if early != nil && early.observe(monitored, t.model.params()) {
			restoreParams(t.model.params(), early.snap)
			t.halt = Stopped
			break
		}
	}

	if t.halt != Stopped {
		// Epoch budget exhausted; keep the best weights if we tracked them.
		if early != nil && early.snap != nil {
			restoreParams(t.model.params(), early.snap)
		}
		t.halt = Converged
	}
	t.state = Frozen
	return history, nil
}

// trainBatch runs forward/backward over one mini-batch and applies a
// single optimizer step with batch-averaged gradients.
func (t *Trainer) trainBatch(train datasets.Dataset, batchIdx []int, lr float64) (float64, error) {
	inputs, labels, err := train.Batch(batchIdx)
	if err != nil {
		return 0, fmt.Errorf("read batch: %w", err)
	}
	if len(inputs) == 0 {
		return 0, nil
	}

	params := t.model.params()
	for _, p := range params {
		p.zeroGrad()
	}

	var batchLoss float64
	for ex := range inputs {
		cache, err := t.model.forward(inputs[ex], true)
		if err != nil {
			return 0, err
		}
		sampleLoss, dPred := t.loss.Eval(cache.pred, labels[ex])
		batchLoss += sampleLoss
		t.model.backward(cache, dPred)
	}
	batchLoss /= float64(len(inputs))

	scaleGrads(params, 1/float32(len(inputs)))
	if l2 := t.model.Config.L2; l2 > 0 {
		for _, p := range params {
			if !p.decay {
				continue
			}
			for i := range p.g {
				p.g[i] += float32(l2) * p.w[i]
			}
		}
	}
	clipGrads(params, t.cfg.ClipNorm)
	t.opt.Step(params, lr)
	return batchLoss, nil
}

// Evaluate computes the mean loss over a dataset without touching weights.
func (t *Trainer) Evaluate(ds datasets.Dataset) (float64, error) {
	n := ds.Len()
	if n == 0 {
		return math.NaN(), nil
	}
	var total float64
	for i := 0; i < n; i++ {
		input, label, err := ds.Example(i)
		if err != nil {
			return 0, err
		}
		pred, err := t.model.Predict(input)
		if err != nil {
			return 0, err
		}
		sampleLoss, _ := t.loss.Eval(pred, label)
		total += sampleLoss
	}
	return total / float64(n), nil
}
