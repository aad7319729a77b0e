package classify

import (
	"errors"
	"fmt"
	"math/rand"
	"time"

	"go.uber.org/zap"

	"github.com/study-eyes/backend/config"
	"github.com/study-eyes/backend/internal/temporal"
)

// ErrInsufficientExamples rejects a retrain request whose corpus is too
// small to produce a model better than the bootstrap.
var ErrInsufficientExamples = errors.New("insufficient training examples")

// Example is one labeled observation accumulated from a real session.
type Example struct {
	Features    []float64
	Focused     bool
	Distraction DistractionType
	Fatigue     FatigueLevel
}

// RetrainReport summarizes a completed retrain.
type RetrainReport struct {
	Examples            int       `json:"examples"`
	Holdout             int       `json:"holdout"`
	AttentionAccuracy   float64   `json:"attention_accuracy"`
	DistractionAccuracy float64   `json:"distraction_accuracy"`
	FatigueAccuracy     float64   `json:"fatigue_accuracy"`
	Version             int       `json:"version"`
	TrainedAt           time.Time `json:"trained_at"`
}

// LoadOrBootstrap loads the persisted generation, or trains a fresh one
// from synthetic data when none exists. The service is always operable
// afterwards, with or without prior artifacts.
func (e *Ensemble) LoadOrBootstrap(store *Store, cfg config.ModelsConfig) error {
	set, err := store.Load()
	if err == nil {
		e.swap(set)
		return nil
	}
	if !errors.Is(err, ErrArtifactsMissing) {
		return err
	}
	return e.Bootstrap(store, cfg)
}

// Bootstrap synthesizes a labeled training set with the documented rule
// heuristics, fits all three models and persists them. Deterministic:
// the same config always yields the same generation.
func (e *Ensemble) Bootstrap(store *Store, cfg config.ModelsConfig) error {
	start := time.Now()
	rng := rand.New(rand.NewSource(BootstrapSeed))
	samples := SyntheticFeatures(cfg.BootstrapSamples, rng)

	attLabels := make([]int, len(samples))
	distLabels := make([]int, len(samples))
	fatLabels := make([]int, len(samples))
	for i, fv := range samples {
		attLabels[i] = AttentionLabel(fv)
		distLabels[i] = DistractionLabel(fv)
		fatLabels[i] = FatigueLabel(fv)
	}

	set := &artifactSet{
		Attention:   TrainForest(samples, attLabels, forestConfig(cfg.Estimators, cfg.AttentionDepth, attentionClasses)),
		Distraction: TrainForest(samples, distLabels, forestConfig(cfg.Estimators, cfg.DistractionDepth, distractionClasses)),
		Fatigue:     TrainForest(samples, fatLabels, forestConfig(cfg.Estimators, cfg.FatigueDepth, fatigueClasses)),
		State:       StateBootstrapped,
		Version:     1,
		TrainedAt:   time.Now().UTC(),
	}
	if err := store.Save(set, nil); err != nil {
		return fmt.Errorf("persist bootstrapped models: %w", err)
	}
	e.swap(set)

	e.logger.Info("bootstrapped model ensemble from synthetic data",
		zap.Int("samples", len(samples)),
		zap.Int("estimators", cfg.Estimators),
		zap.Duration("took", time.Since(start)))
	return nil
}

// Retrain fits a new generation from accumulated real examples, scores
// it on a 20% holdout and atomically replaces both the persisted
// artifacts and the serving snapshot. In-flight classifications keep
// the generation they started with.
func (e *Ensemble) Retrain(store *Store, cfg config.ModelsConfig, examples []Example) (*RetrainReport, error) {
	valid := examples[:0:0]
	for _, ex := range examples {
		if len(ex.Features) == temporal.FeatureCount {
			valid = append(valid, ex)
		}
	}
	if dropped := len(examples) - len(valid); dropped > 0 {
		e.logger.Warn("dropped malformed training examples", zap.Int("dropped", dropped))
	}
	if len(valid) < cfg.RetrainMinExamples {
		return nil, fmt.Errorf("%w: have %d, need %d",
			ErrInsufficientExamples, len(valid), cfg.RetrainMinExamples)
	}

	rng := rand.New(rand.NewSource(BootstrapSeed))
	rng.Shuffle(len(valid), func(i, j int) { valid[i], valid[j] = valid[j], valid[i] })

	holdout := len(valid) / 5
	if holdout == 0 {
		holdout = 1
	}
	test, train := valid[:holdout], valid[holdout:]

	trainX := make([][]float64, len(train))
	attY := make([]int, len(train))
	distY := make([]int, len(train))
	fatY := make([]int, len(train))
	for i, ex := range train {
		trainX[i] = ex.Features
		if ex.Focused {
			attY[i] = 1
		}
		distY[i] = DistractionClass(ex.Distraction)
		fatY[i] = FatigueClass(ex.Fatigue)
	}

	testX := make([][]float64, len(test))
	attT := make([]int, len(test))
	distT := make([]int, len(test))
	fatT := make([]int, len(test))
	for i, ex := range test {
		testX[i] = ex.Features
		if ex.Focused {
			attT[i] = 1
		}
		distT[i] = DistractionClass(ex.Distraction)
		fatT[i] = FatigueClass(ex.Fatigue)
	}

	set := &artifactSet{
		Attention:   TrainForest(trainX, attY, forestConfig(cfg.Estimators, cfg.AttentionDepth, attentionClasses)),
		Distraction: TrainForest(trainX, distY, forestConfig(cfg.Estimators, cfg.DistractionDepth, distractionClasses)),
		Fatigue:     TrainForest(trainX, fatY, forestConfig(cfg.Estimators, cfg.FatigueDepth, fatigueClasses)),
		State:       StateRetrained,
		Version:     e.Version() + 1,
		TrainedAt:   time.Now().UTC(),
	}

	report := &RetrainReport{
		Examples:            len(valid),
		Holdout:             holdout,
		AttentionAccuracy:   set.Attention.Accuracy(testX, attT),
		DistractionAccuracy: set.Distraction.Accuracy(testX, distT),
		FatigueAccuracy:     set.Fatigue.Accuracy(testX, fatT),
		Version:             set.Version,
		TrainedAt:           set.TrainedAt,
	}

	if err := store.Save(set, map[string]float64{
		"attention":   report.AttentionAccuracy,
		"distraction": report.DistractionAccuracy,
		"fatigue":     report.FatigueAccuracy,
	}); err != nil {
		return nil, fmt.Errorf("persist retrained models: %w", err)
	}
	e.swap(set)

	e.logger.Info("retrained model ensemble",
		zap.Int("examples", report.Examples),
		zap.Int("version", report.Version),
		zap.Float64("attention_accuracy", report.AttentionAccuracy),
		zap.Float64("distraction_accuracy", report.DistractionAccuracy),
		zap.Float64("fatigue_accuracy", report.FatigueAccuracy))
	return report, nil
}

func forestConfig(estimators, depth, classes int) ForestConfig {
	return ForestConfig{
		Estimators: estimators,
		MaxDepth:   depth,
		Classes:    classes,
		Seed:       BootstrapSeed,
	}
}
