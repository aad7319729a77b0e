package classify

import (
	"math"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/study-eyes/backend/internal/temporal"
)

// FocusLevel buckets the 0-100 attention score.
type FocusLevel string

const (
	FocusHigh   FocusLevel = "high"
	FocusMedium FocusLevel = "medium"
	FocusLow    FocusLevel = "low"
)

// DistractionType is the distraction classifier's class space.
type DistractionType string

const (
	DistractionNone        DistractionType = "none"
	DistractionPhone       DistractionType = "phone"
	DistractionLookingAway DistractionType = "looking_away"
	DistractionClosedEyes  DistractionType = "closed_eyes"
)

// FatigueLevel is the fatigue classifier's class space.
type FatigueLevel string

const (
	FatigueAlert     FatigueLevel = "alert"
	FatigueTired     FatigueLevel = "tired"
	FatigueVeryTired FatigueLevel = "very_tired"
)

// Class indices inside the trained forests.
const (
	distractionNone = iota
	distractionPhone
	distractionLookingAway
	distractionClosedEyes
	distractionClasses
)

const (
	fatigueAlert = iota
	fatigueTired
	fatigueVeryTired
	fatigueClasses
)

const attentionClasses = 2

var distractionByClass = [distractionClasses]DistractionType{
	DistractionNone, DistractionPhone, DistractionLookingAway, DistractionClosedEyes,
}

var fatigueByClass = [fatigueClasses]FatigueLevel{
	FatigueAlert, FatigueTired, FatigueVeryTired,
}

// DistractionClass maps a stored label back to its forest class index;
// unknown labels fold into "none".
func DistractionClass(d DistractionType) int {
	for i, v := range distractionByClass {
		if v == d {
			return i
		}
	}
	return distractionNone
}

// FatigueClass maps a stored label back to its forest class index.
func FatigueClass(f FatigueLevel) int {
	for i, v := range fatigueByClass {
		if v == f {
			return i
		}
	}
	return fatigueAlert
}

// Classification is the per-tick output of the ensemble. AIProcessed is
// false only on the fallback path, so consumers can tell a genuine
// low-confidence result from a degraded one.
type Classification struct {
	AttentionScore        int             `json:"attention_score"`
	FocusLevel            FocusLevel      `json:"focus_level"`
	DistractionType       DistractionType `json:"distraction_type"`
	FatigueLevel          FatigueLevel    `json:"fatigue_level"`
	EyeStrainLevel        int             `json:"eye_strain_level"`
	PostureScore          int             `json:"posture_score"`
	AttentionConfidence   float64         `json:"attention_confidence"`
	DistractionConfidence float64         `json:"distraction_confidence"`
	FatigueConfidence     float64         `json:"fatigue_confidence"`
	AIProcessed           bool            `json:"ai_processed"`
}

// Fallback is the neutral classification emitted when inference cannot
// run: plausible mid-range values, flagged unprocessed.
func Fallback() Classification {
	return Classification{
		AttentionScore:        75,
		FocusLevel:            FocusMedium,
		DistractionType:       DistractionNone,
		FatigueLevel:          FatigueAlert,
		EyeStrainLevel:        10,
		PostureScore:          80,
		AttentionConfidence:   0.7,
		DistractionConfidence: 0.6,
		FatigueConfidence:     0.8,
		AIProcessed:           false,
	}
}

// ModelState tracks artifact provenance: Missing until first training,
// Bootstrapped after synthetic training, Retrained once fit on real
// session data. There is no transition back to Missing.
type ModelState string

const (
	StateMissing      ModelState = "missing"
	StateBootstrapped ModelState = "bootstrapped"
	StateRetrained    ModelState = "retrained"
)

// artifactSet is one immutable generation of the three models. Swapped
// wholesale under the ensemble lock; never mutated after publication.
type artifactSet struct {
	Attention   *Forest
	Distraction *Forest
	Fatigue     *Forest
	State       ModelState
	Version     int
	TrainedAt   time.Time
}

// Ensemble serves classifications from the current model generation.
// Inference takes a read lock only long enough to snapshot the artifact
// pointer; in-flight classifications finish against the generation they
// started with even while a retrain swaps in a new one.
type Ensemble struct {
	mu      sync.RWMutex
	current *artifactSet
	logger  *zap.Logger
}

func NewEnsemble(logger *zap.Logger) *Ensemble {
	return &Ensemble{logger: logger}
}

func (e *Ensemble) snapshot() *artifactSet {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.current
}

func (e *Ensemble) swap(next *artifactSet) {
	e.mu.Lock()
	e.current = next
	e.mu.Unlock()
}

// State reports the current artifact provenance.
func (e *Ensemble) State() ModelState {
	if s := e.snapshot(); s != nil {
		return s.State
	}
	return StateMissing
}

// Version reports the current artifact generation number.
func (e *Ensemble) Version() int {
	if s := e.snapshot(); s != nil {
		return s.Version
	}
	return 0
}

// Info summarizes the current model generation for the API surface.
type Info struct {
	State        ModelState `json:"state"`
	Version      int        `json:"version"`
	TrainedAt    *time.Time `json:"trained_at,omitempty"`
	FeatureCount int        `json:"feature_count"`
	Estimators   int        `json:"estimators"`
}

// Info reports the current generation's metadata.
func (e *Ensemble) Info() Info {
	info := Info{State: StateMissing, FeatureCount: temporal.FeatureCount}
	if s := e.snapshot(); s != nil {
		info.State = s.State
		info.Version = s.Version
		trained := s.TrainedAt
		info.TrainedAt = &trained
		if s.Attention != nil {
			info.Estimators = len(s.Attention.Trees)
		}
	}
	return info
}

// Classify runs all three models over one feature vector. Any malformed
// input or missing model degrades to Fallback rather than erroring the
// caller's tick.
func (e *Ensemble) Classify(features temporal.FeatureVector) Classification {
	models := e.snapshot()
	if models == nil || len(features) != temporal.FeatureCount {
		if e.logger != nil {
			e.logger.Warn("classification fell back to neutral result",
				zap.Bool("models_loaded", models != nil),
				zap.Int("feature_width", len(features)))
		}
		return Fallback()
	}

	fv := []float64(features)

	attProbs := models.Attention.Proba(fv)
	attClass := argmax(attProbs)
	var attentionScore int
	if attClass == 1 {
		attentionScore = int(attProbs[1] * 100)
		if attentionScore < 60 {
			attentionScore = 60
		}
	} else {
		attentionScore = int(attProbs[0] * 100)
		if attentionScore > 40 {
			attentionScore = 40
		}
	}

	focus := FocusLow
	switch {
	case attentionScore >= 80:
		focus = FocusHigh
	case attentionScore >= 60:
		focus = FocusMedium
	}

	distClass, distConf := models.Distraction.Predict(fv)
	fatClass, fatConf := models.Fatigue.Predict(fv)

	strain := int(fatConf * 30)
	if strain < 0 {
		strain = 0
	} else if strain > 30 {
		strain = 30
	}

	posture := 95
	if math.Abs(fv[temporal.IdxGazeX]) > 15 || math.Abs(fv[temporal.IdxGazeY]) > 15 {
		posture -= 15
	}
	if math.Abs(fv[temporal.IdxHeadPitch]) > 20 || math.Abs(fv[temporal.IdxHeadYaw]) > 25 {
		posture -= 20
	}
	if posture < 60 {
		posture = 60
	}

	return Classification{
		AttentionScore:        attentionScore,
		FocusLevel:            focus,
		DistractionType:       distractionByClass[distClass],
		FatigueLevel:          fatigueByClass[fatClass],
		EyeStrainLevel:        strain,
		PostureScore:          posture,
		AttentionConfidence:   attProbs[attClass],
		DistractionConfidence: distConf,
		FatigueConfidence:     fatConf,
		AIProcessed:           true,
	}
}

func argmax(probs []float64) int {
	best := 0
	for i, p := range probs {
		if p > probs[best] {
			best = i
		}
	}
	return best
}
