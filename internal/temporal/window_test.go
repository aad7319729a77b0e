package temporal

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/study-eyes/backend/internal/geometry"
)

func signalAt(ts time.Time) geometry.FrameSignal {
	sig := geometry.NeutralSignal(ts)
	sig.FaceDetected = true
	return sig
}

func newTestWindow() *Window {
	return NewWindow(30*time.Second, 900, zap.NewNop())
}

func TestWindowTimeBasedEviction(t *testing.T) {
	w := newTestWindow()
	base := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	for i := 0; i < 35; i++ {
		w.Push(signalAt(base.Add(time.Duration(i) * time.Second)))
	}

	require.Equal(t, 30, w.Len())
	latest, ok := w.Latest()
	require.True(t, ok)
	assert.Equal(t, base.Add(34*time.Second), latest.Timestamp)
	// The oldest survivor is inside the 30s horizon.
	assert.Equal(t, base.Add(5*time.Second), w.samples[0].Timestamp)
}

func TestWindowCountCap(t *testing.T) {
	w := NewWindow(time.Hour, 10, zap.NewNop())
	base := time.Now()
	for i := 0; i < 25; i++ {
		w.Push(signalAt(base.Add(time.Duration(i) * time.Second)))
	}
	assert.Equal(t, 10, w.Len())
}

func TestFeatureVectorWidth(t *testing.T) {
	w := newTestWindow()
	assert.Len(t, w.Features(), FeatureCount)

	base := time.Now()
	for i := 0; i < 40; i++ {
		w.Push(signalAt(base.Add(time.Duration(i) * 33 * time.Millisecond)))
	}
	assert.Len(t, w.Features(), FeatureCount)
}

func TestFitPadsAndTruncatesMismatchedVectors(t *testing.T) {
	w := newTestWindow()

	short := w.fit([]float64{1, 2, 3})
	require.Len(t, short, FeatureCount)
	assert.Equal(t, 3.0, short[2])
	assert.Zero(t, short[FeatureCount-1])

	long := make([]float64, FeatureCount+4)
	for i := range long {
		long[i] = float64(i)
	}
	assert.Len(t, w.fit(long), FeatureCount)
}

func TestBlinkRate(t *testing.T) {
	w := newTestWindow()
	base := time.Now()
	// 6 blinks out of 30 samples → 12 per minute.
	for i := 0; i < 30; i++ {
		sig := signalAt(base.Add(time.Duration(i) * 33 * time.Millisecond))
		sig.IsBlinking = i%5 == 0
		w.Push(sig)
	}
	assert.InDelta(t, 12.0, w.BlinkRate(), 1e-9)
}

func TestBlinkRateEmptyWindow(t *testing.T) {
	assert.Zero(t, newTestWindow().BlinkRate())
}

func TestGazeStabilityNeutralBelowFiveSamples(t *testing.T) {
	w := newTestWindow()
	base := time.Now()
	for i := 0; i < 4; i++ {
		w.Push(signalAt(base.Add(time.Duration(i) * time.Second)))
		assert.Equal(t, 0.5, w.GazeStability())
	}
	w.Push(signalAt(base.Add(5 * time.Second)))
	// Five identical gaze positions: zero variance, perfect stability.
	assert.InDelta(t, 1.0, w.GazeStability(), 1e-9)
}

func TestGazeStabilityDropsWithJitter(t *testing.T) {
	w := newTestWindow()
	base := time.Now()
	offsets := []float64{-8, 6, -4, 9, -7}
	for i, off := range offsets {
		sig := signalAt(base.Add(time.Duration(i) * time.Second))
		sig.GazeX = off
		sig.GazeY = -off
		w.Push(sig)
	}
	assert.Less(t, w.GazeStability(), 0.5)
}

func TestMovementFrequency(t *testing.T) {
	w := newTestWindow()
	base := time.Now()
	pitches := []float64{0, 0.5, 4, 4.2, 9, 9.1, 9.2, 15, 15.3, 15.4}
	for i, p := range pitches {
		sig := signalAt(base.Add(time.Duration(i) * time.Second))
		sig.HeadPitch = p
		w.Push(sig)
	}
	// Deltas above 2°: 0.5→4, 4.2→9, 9.2→15. Three moves, 18/min.
	assert.InDelta(t, 18.0, w.MovementFrequency(), 1e-9)
}

func TestFeaturesReflectLatestSignal(t *testing.T) {
	w := newTestWindow()
	base := time.Now()
	for i := 0; i < 10; i++ {
		sig := signalAt(base.Add(time.Duration(i) * time.Second))
		sig.GazeX = float64(i)
		sig.HeadYaw = float64(i) * 2
		sig.DistanceFromScreenCM = 50 + float64(i)
		w.Push(sig)
	}

	fv := w.Features()
	assert.Equal(t, 9.0, fv[IdxGazeX])
	assert.Equal(t, 18.0, fv[IdxHeadYaw])
	assert.Equal(t, 59.0, fv[IdxDistanceFromScreen])
	assert.Equal(t, placeholderPupilDilation, fv[IdxPupilDilation])
	assert.Equal(t, placeholderFixationDuration, fv[IdxFixationDuration])
	assert.Equal(t, placeholderPostureScore, fv[IdxPostureScore])
}
