package classify

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/study-eyes/backend/config"
	"github.com/study-eyes/backend/internal/temporal"
)

func testModelsConfig(dir string) config.ModelsConfig {
	return config.ModelsConfig{
		Dir:                dir,
		Estimators:         15,
		AttentionDepth:     8,
		DistractionDepth:   6,
		FatigueDepth:       5,
		BootstrapSamples:   400,
		RetrainMinExamples: 100,
	}
}

// attentiveVector is a sample that trips none of the labeling rules.
func attentiveVector() []float64 {
	fv := make([]float64, temporal.FeatureCount)
	fv[temporal.IdxGazeStability] = 0.9
	fv[temporal.IdxBlinkRate] = 15
	fv[temporal.IdxAvgEyeOpenness] = 0.9
	fv[temporal.IdxPupilDilation] = 0.6
	fv[temporal.IdxFixationDuration] = 1.0
	fv[temporal.IdxMovementFrequency] = 8
	fv[temporal.IdxDistanceFromScreen] = 65
	fv[temporal.IdxPostureScore] = 0.9
	return fv
}

func TestAttentionLabel(t *testing.T) {
	focused := attentiveVector()
	assert.Equal(t, 1, AttentionLabel(focused))

	// Stacked penalties push the score to 0.6 exactly, which the
	// strict > comparison rejects.
	drifting := attentiveVector()
	drifting[temporal.IdxGazeX] = 20              // -0.3
	drifting[temporal.IdxDistanceFromScreen] = 90 // -0.1
	assert.Equal(t, 0, AttentionLabel(drifting))

	sleepy := attentiveVector()
	sleepy[temporal.IdxAvgEyeOpenness] = 0.4 // -0.4
	assert.Equal(t, 0, AttentionLabel(sleepy))
}

func TestDistractionLabelPrecedence(t *testing.T) {
	fv := attentiveVector()
	assert.Equal(t, distractionNone, DistractionLabel(fv))

	fv[temporal.IdxMovementFrequency] = 25
	fv[temporal.IdxGazeStability] = 0.4
	assert.Equal(t, distractionPhone, DistractionLabel(fv))

	fv[temporal.IdxHeadYaw] = 40
	assert.Equal(t, distractionLookingAway, DistractionLabel(fv))

	// Closed eyes dominates everything else.
	fv[temporal.IdxAvgEyeOpenness] = 0.2
	assert.Equal(t, distractionClosedEyes, DistractionLabel(fv))
}

func TestFatigueLabelBuckets(t *testing.T) {
	alert := attentiveVector()
	assert.Equal(t, fatigueAlert, FatigueLabel(alert))

	tired := attentiveVector()
	tired[temporal.IdxBlinkRate] = 27 // one indicator
	tired[temporal.IdxAvgEyeOpenness] = 0.65
	assert.Equal(t, fatigueTired, FatigueLabel(tired))

	exhausted := attentiveVector()
	exhausted[temporal.IdxBlinkRate] = 32       // two indicators
	exhausted[temporal.IdxAvgEyeOpenness] = 0.4 // two more
	assert.Equal(t, fatigueVeryTired, FatigueLabel(exhausted))
}

func leafForest(classes int, probs []float64) *Forest {
	return &Forest{Classes: classes, Trees: []*TreeNode{{Probs: probs}}}
}

func fixedEnsemble(att, dist, fat []float64) *Ensemble {
	e := NewEnsemble(zap.NewNop())
	e.swap(&artifactSet{
		Attention:   leafForest(attentionClasses, att),
		Distraction: leafForest(distractionClasses, dist),
		Fatigue:     leafForest(fatigueClasses, fat),
		State:       StateBootstrapped,
		Version:     1,
	})
	return e
}

func TestClassifyScoreBands(t *testing.T) {
	dist := []float64{1, 0, 0, 0}
	fat := []float64{1, 0, 0}
	tests := []struct {
		name      string
		att       []float64
		wantScore int
		wantFocus FocusLevel
	}{
		{name: "confident focus", att: []float64{0.1, 0.9}, wantScore: 90, wantFocus: FocusHigh},
		{name: "marginal focus floors at 60", att: []float64{0.45, 0.55}, wantScore: 60, wantFocus: FocusMedium},
		{name: "not focused caps at 40", att: []float64{0.7, 0.3}, wantScore: 40, wantFocus: FocusLow},
		{name: "confident not focused", att: []float64{0.95, 0.05}, wantScore: 40, wantFocus: FocusLow},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := fixedEnsemble(tt.att, dist, fat)
			result := e.Classify(temporal.FeatureVector(attentiveVector()))
			assert.True(t, result.AIProcessed)
			assert.Equal(t, tt.wantScore, result.AttentionScore)
			assert.Equal(t, tt.wantFocus, result.FocusLevel)
		})
	}
}

func TestClassifyStrainAndFatigueMapping(t *testing.T) {
	e := fixedEnsemble([]float64{0.2, 0.8}, []float64{0.9, 0.1, 0, 0}, []float64{0.2, 0.5, 0.3})
	result := e.Classify(temporal.FeatureVector(attentiveVector()))
	assert.Equal(t, FatigueTired, result.FatigueLevel)
	assert.Equal(t, 15, result.EyeStrainLevel) // 0.5 confidence × 30
	assert.Equal(t, DistractionNone, result.DistractionType)
	assert.InDelta(t, 0.5, result.FatigueConfidence, 1e-9)
}

func TestClassifyPostureScore(t *testing.T) {
	e := fixedEnsemble([]float64{0.2, 0.8}, []float64{1, 0, 0, 0}, []float64{1, 0, 0})

	good := e.Classify(temporal.FeatureVector(attentiveVector()))
	assert.Equal(t, 95, good.PostureScore)

	askew := attentiveVector()
	askew[temporal.IdxGazeX] = 20
	assert.Equal(t, 80, e.Classify(temporal.FeatureVector(askew)).PostureScore)

	slumped := attentiveVector()
	slumped[temporal.IdxGazeX] = 20
	slumped[temporal.IdxHeadPitch] = 25
	// 95 - 15 - 20 = 60, at the floor.
	assert.Equal(t, 60, e.Classify(temporal.FeatureVector(slumped)).PostureScore)
}

func TestClassifyFallsBackOnBadInput(t *testing.T) {
	e := fixedEnsemble([]float64{0.2, 0.8}, []float64{1, 0, 0, 0}, []float64{1, 0, 0})

	short := e.Classify(temporal.FeatureVector{1, 2, 3})
	assert.False(t, short.AIProcessed)
	assert.Equal(t, 75, short.AttentionScore)
	assert.Equal(t, FocusMedium, short.FocusLevel)
	assert.Equal(t, DistractionNone, short.DistractionType)
	assert.Equal(t, FatigueAlert, short.FatigueLevel)

	// No models loaded at all.
	empty := NewEnsemble(zap.NewNop())
	assert.False(t, empty.Classify(temporal.FeatureVector(attentiveVector())).AIProcessed)
}

func TestBootstrapIsDeterministic(t *testing.T) {
	cfgA := testModelsConfig(t.TempDir())
	cfgB := testModelsConfig(t.TempDir())

	a := NewEnsemble(zap.NewNop())
	require.NoError(t, a.Bootstrap(NewStore(cfgA.Dir, zap.NewNop()), cfgA))
	b := NewEnsemble(zap.NewNop())
	require.NoError(t, b.Bootstrap(NewStore(cfgB.Dir, zap.NewNop()), cfgB))

	rng := rand.New(rand.NewSource(7))
	for _, fv := range SyntheticFeatures(20, rng) {
		ra := a.Classify(temporal.FeatureVector(fv))
		rb := b.Classify(temporal.FeatureVector(fv))
		assert.Equal(t, ra, rb)
	}
}

func TestBootstrappedEnsembleSeparatesObviousCases(t *testing.T) {
	cfg := testModelsConfig(t.TempDir())
	e := NewEnsemble(zap.NewNop())
	require.NoError(t, e.Bootstrap(NewStore(cfg.Dir, zap.NewNop()), cfg))
	assert.Equal(t, StateBootstrapped, e.State())

	focused := e.Classify(temporal.FeatureVector(attentiveVector()))
	assert.True(t, focused.AIProcessed)
	assert.GreaterOrEqual(t, focused.AttentionScore, 60)

	distracted := attentiveVector()
	distracted[temporal.IdxGazeX] = 30
	distracted[temporal.IdxHeadYaw] = 40
	distracted[temporal.IdxAvgEyeOpenness] = 0.35
	distracted[temporal.IdxMovementFrequency] = 19
	result := e.Classify(temporal.FeatureVector(distracted))
	assert.True(t, result.AIProcessed)
	assert.LessOrEqual(t, result.AttentionScore, 40)
	assert.Equal(t, DistractionLookingAway, result.DistractionType)
}

func TestStoreRoundTrip(t *testing.T) {
	cfg := testModelsConfig(t.TempDir())
	store := NewStore(cfg.Dir, zap.NewNop())

	e := NewEnsemble(zap.NewNop())
	require.NoError(t, e.Bootstrap(store, cfg))

	loaded, err := store.Load()
	require.NoError(t, err)
	assert.Equal(t, StateBootstrapped, loaded.State)
	assert.Equal(t, 1, loaded.Version)
	assert.Equal(t, e.snapshot().Attention, loaded.Attention)
	assert.Equal(t, e.snapshot().Fatigue, loaded.Fatigue)
}

func TestLoadMissingArtifacts(t *testing.T) {
	store := NewStore(t.TempDir(), zap.NewNop())
	_, err := store.Load()
	assert.ErrorIs(t, err, ErrArtifactsMissing)
}

// HasArtifacts gates the mirror restore at startup: it must be false on
// a fresh deployment and true once a generation has been committed.
func TestStoreHasArtifacts(t *testing.T) {
	cfg := testModelsConfig(t.TempDir())
	store := NewStore(cfg.Dir, zap.NewNop())
	assert.False(t, store.HasArtifacts())

	e := NewEnsemble(zap.NewNop())
	require.NoError(t, e.Bootstrap(store, cfg))
	assert.True(t, store.HasArtifacts())
}

func TestLoadOrBootstrapPrefersExistingArtifacts(t *testing.T) {
	cfg := testModelsConfig(t.TempDir())
	store := NewStore(cfg.Dir, zap.NewNop())

	first := NewEnsemble(zap.NewNop())
	require.NoError(t, first.Bootstrap(store, cfg))

	second := NewEnsemble(zap.NewNop())
	require.NoError(t, second.LoadOrBootstrap(store, cfg))
	assert.Equal(t, first.Version(), second.Version())
	assert.Equal(t, StateBootstrapped, second.State())
}

func ruleLabeled(n int, seed int64) []Example {
	rng := rand.New(rand.NewSource(seed))
	samples := SyntheticFeatures(n, rng)
	out := make([]Example, n)
	for i, fv := range samples {
		out[i] = Example{
			Features:    fv,
			Focused:     AttentionLabel(fv) == 1,
			Distraction: distractionByClass[DistractionLabel(fv)],
			Fatigue:     fatigueByClass[FatigueLabel(fv)],
		}
	}
	return out
}

func TestRetrainRequiresMinimumCorpus(t *testing.T) {
	cfg := testModelsConfig(t.TempDir())
	store := NewStore(cfg.Dir, zap.NewNop())
	e := NewEnsemble(zap.NewNop())
	require.NoError(t, e.Bootstrap(store, cfg))

	_, err := e.Retrain(store, cfg, ruleLabeled(99, 3))
	assert.ErrorIs(t, err, ErrInsufficientExamples)
	assert.Equal(t, StateBootstrapped, e.State())
}

func TestRetrainDropsMalformedExamples(t *testing.T) {
	cfg := testModelsConfig(t.TempDir())
	store := NewStore(cfg.Dir, zap.NewNop())
	e := NewEnsemble(zap.NewNop())
	require.NoError(t, e.Bootstrap(store, cfg))

	examples := ruleLabeled(99, 3)
	examples = append(examples, Example{Features: []float64{1, 2}})
	_, err := e.Retrain(store, cfg, examples)
	assert.ErrorIs(t, err, ErrInsufficientExamples)
}

func TestRetrainReplacesGeneration(t *testing.T) {
	cfg := testModelsConfig(t.TempDir())
	store := NewStore(cfg.Dir, zap.NewNop())
	e := NewEnsemble(zap.NewNop())
	require.NoError(t, e.Bootstrap(store, cfg))

	report, err := e.Retrain(store, cfg, ruleLabeled(200, 3))
	require.NoError(t, err)
	assert.Equal(t, 200, report.Examples)
	assert.Equal(t, 40, report.Holdout)
	assert.Equal(t, 2, report.Version)
	assert.GreaterOrEqual(t, report.AttentionAccuracy, 0.5)
	assert.LessOrEqual(t, report.AttentionAccuracy, 1.0)

	assert.Equal(t, StateRetrained, e.State())
	assert.Equal(t, 2, e.Version())

	// The new generation is what a fresh process would load.
	loaded, err := store.Load()
	require.NoError(t, err)
	assert.Equal(t, StateRetrained, loaded.State)
	assert.Equal(t, 2, loaded.Version)
}
