// Package temporal maintains the sliding window of recent frame signals
// and derives the history-dependent features (blink rate, gaze
// stability, movement frequency) the classifiers consume.
package temporal

import (
	"time"

	"go.uber.org/zap"

	"github.com/study-eyes/backend/internal/geometry"
)

// FeatureCount is the fixed width of every feature vector.
const FeatureCount = 13

// Positions of each feature inside the vector. The ordering is part of
// the model artifact contract: trained trees index features by these
// offsets, so it must never be reordered without retraining.
const (
	IdxGazeX = iota
	IdxGazeY
	IdxGazeStability
	IdxHeadPitch
	IdxHeadYaw
	IdxHeadRoll
	IdxBlinkRate
	IdxAvgEyeOpenness
	IdxPupilDilation
	IdxFixationDuration
	IdxMovementFrequency
	IdxDistanceFromScreen
	IdxPostureScore
)

// FeatureVector is an ordered, fixed-width sequence of floats:
// [gaze_x, gaze_y, gaze_stability, head_pitch, head_yaw, head_roll,
// blink_rate, avg_eye_openness, pupil_dilation, fixation_duration,
// movement_frequency, distance_from_screen, posture_score].
type FeatureVector []float64

// Placeholder constants for signals a webcam cannot measure reliably.
// Feeding stable constants keeps the vector width honest without
// pretending precision the sensor does not have.
const (
	placeholderPupilDilation    = 0.6
	placeholderFixationDuration = 1.0
	placeholderPostureScore     = 0.8
)

// How much history each derived feature looks at.
const (
	blinkRateSamples     = 30
	gazeStabilitySamples = 5
	movementSamples      = 10
	movementDeltaDegrees = 2.0
	neutralGazeStability = 0.5
)

// Window is a bounded FIFO of recent frame signals. Eviction is
// time-based with a count cap for bounded memory. A window belongs to
// exactly one tracking session and is never shared across goroutines.
type Window struct {
	retention  time.Duration
	maxSamples int
	samples    []geometry.FrameSignal
	logger     *zap.Logger
}

// NewWindow builds a window retaining signals for the given duration,
// capped at maxSamples entries.
func NewWindow(retention time.Duration, maxSamples int, logger *zap.Logger) *Window {
	return &Window{
		retention:  retention,
		maxSamples: maxSamples,
		samples:    make([]geometry.FrameSignal, 0, maxSamples),
		logger:     logger,
	}
}

// Push appends a signal and evicts everything older than the retention
// horizon measured from the new signal's timestamp.
func (w *Window) Push(sig geometry.FrameSignal) {
	w.samples = append(w.samples, sig)

	// A sample whose whole lifetime lies outside the horizon is evicted,
	// so the boundary itself is exclusive.
	horizon := sig.Timestamp.Add(-w.retention)
	cut := 0
	for cut < len(w.samples) && !w.samples[cut].Timestamp.After(horizon) {
		cut++
	}
	if over := len(w.samples) - cut - w.maxSamples; over > 0 {
		cut += over
	}
	if cut > 0 {
		w.samples = append(w.samples[:0], w.samples[cut:]...)
	}
}

// Len reports the number of retained samples.
func (w *Window) Len() int {
	return len(w.samples)
}

// Latest returns the most recent signal, or false when empty.
func (w *Window) Latest() (geometry.FrameSignal, bool) {
	if len(w.samples) == 0 {
		return geometry.FrameSignal{}, false
	}
	return w.samples[len(w.samples)-1], true
}

// BlinkRate is the blinks-per-minute estimate over the last 30 samples.
func (w *Window) BlinkRate() float64 {
	tail := w.tail(blinkRateSamples)
	if len(tail) == 0 {
		return 0
	}
	blinks := 0
	for _, s := range tail {
		if s.IsBlinking {
			blinks++
		}
	}
	return float64(blinks) / float64(len(tail)) * 60
}

// GazeStability is 1/(1 + var(gaze_x) + var(gaze_y)) over the last 5
// samples; steadier gaze scores higher. With fewer than 5 samples there
// is no meaningful variance, so a neutral 0.5 is reported.
func (w *Window) GazeStability() float64 {
	tail := w.tail(gazeStabilitySamples)
	if len(tail) < gazeStabilitySamples {
		return neutralGazeStability
	}
	xs := make([]float64, len(tail))
	ys := make([]float64, len(tail))
	for i, s := range tail {
		xs[i] = s.GazeX
		ys[i] = s.GazeY
	}
	return 1 / (1 + variance(xs) + variance(ys))
}

// MovementFrequency counts head movements (a consecutive pitch or yaw
// delta above 2 degrees) over the last 10 samples, scaled to a
// per-minute rate assuming the ~3Hz effective sampling that ten frames
// of history represent.
func (w *Window) MovementFrequency() float64 {
	tail := w.tail(movementSamples)
	if len(tail) < 2 {
		return 0
	}
	moves := 0
	for i := 1; i < len(tail); i++ {
		dp := tail[i].HeadPitch - tail[i-1].HeadPitch
		dy := tail[i].HeadYaw - tail[i-1].HeadYaw
		if dp < 0 {
			dp = -dp
		}
		if dy < 0 {
			dy = -dy
		}
		if dp > movementDeltaDegrees || dy > movementDeltaDegrees {
			moves++
		}
	}
	return float64(moves) * 6
}

// Features derives the full fixed-width vector from the current window
// contents. An empty window yields neutral values.
func (w *Window) Features() FeatureVector {
	latest, ok := w.Latest()
	if !ok {
		latest = geometry.NeutralSignal(time.Now())
	}
	return w.fit([]float64{
		latest.GazeX,
		latest.GazeY,
		w.GazeStability(),
		latest.HeadPitch,
		latest.HeadYaw,
		latest.HeadRoll,
		w.BlinkRate(),
		w.avgEyeOpenness(),
		placeholderPupilDilation,
		placeholderFixationDuration,
		w.MovementFrequency(),
		latest.DistanceFromScreenCM,
		placeholderPostureScore,
	})
}

func (w *Window) avgEyeOpenness() float64 {
	tail := w.tail(blinkRateSamples)
	if len(tail) == 0 {
		return 0.3
	}
	var sum float64
	for _, s := range tail {
		sum += (s.EyeAspectRatioLeft + s.EyeAspectRatioRight) / 2
	}
	return sum / float64(len(tail))
}

// fit enforces the fixed vector width. Pad or truncate instead of
// failing the tick, but a mismatch means a producer bug, so log it.
func (w *Window) fit(vals []float64) FeatureVector {
	if len(vals) == FeatureCount {
		return vals
	}
	if w.logger != nil {
		w.logger.Error("feature vector width mismatch",
			zap.Int("got", len(vals)),
			zap.Int("want", FeatureCount))
	}
	out := make(FeatureVector, FeatureCount)
	copy(out, vals)
	return out
}

func (w *Window) tail(n int) []geometry.FrameSignal {
	if len(w.samples) <= n {
		return w.samples
	}
	return w.samples[len(w.samples)-n:]
}

func variance(vals []float64) float64 {
	if len(vals) == 0 {
		return 0
	}
	var mean float64
	for _, v := range vals {
		mean += v
	}
	mean /= float64(len(vals))
	var acc float64
	for _, v := range vals {
		d := v - mean
		acc += d * d
	}
	return acc / float64(len(vals))
}
