package tracking

import (
	"math"
	"math/rand"
	"time"

	"github.com/study-eyes/backend/internal/geometry"
)

// Synthetic signal shaping. Gaze drifts slowly around the center with
// jitter, attention follows a slower sinusoid, blinks arrive at a
// natural ~16/minute, and brief distraction events fire at a low
// fixed probability.
const (
	synGazeAmplitudeX = 8.0
	synGazeAmplitudeY = 4.0
	synGazeJitter     = 3.0

	synBlinkProbability       = 0.009
	synDistractionProbability = 0.05
)

// SyntheticGenerator produces plausible time-varying frame signals when
// no camera is available. One generator belongs to one session loop.
type SyntheticGenerator struct {
	rng  *rand.Rand
	tick uint64
}

// NewSyntheticGenerator seeds a generator. Pass a fixed seed for
// reproducible streams.
func NewSyntheticGenerator(seed int64) *SyntheticGenerator {
	return &SyntheticGenerator{rng: rand.New(rand.NewSource(seed))}
}

// Next produces the signal for one tick.
func (g *SyntheticGenerator) Next(now time.Time) geometry.FrameSignal {
	t := float64(g.tick) / 30.0
	g.tick++

	gazeX := synGazeAmplitudeX*math.Sin(t*0.5) + g.uniform(-synGazeJitter, synGazeJitter)
	gazeY := synGazeAmplitudeY*math.Cos(t*0.3) + g.uniform(-synGazeJitter, synGazeJitter)

	earL := g.uniform(0.28, 0.38)
	earR := g.uniform(0.28, 0.38)
	pitch := g.uniform(-5, 5)
	yaw := g.uniform(-10, 10)
	roll := g.uniform(-3, 3)

	if g.rng.Float64() < synBlinkProbability {
		earL = g.uniform(0.08, 0.15)
		earR = g.uniform(0.08, 0.15)
	}

	// Occasional distraction: perturb the signal hard enough for the
	// classifiers to pick it up downstream.
	if g.rng.Float64() < synDistractionProbability {
		switch g.rng.Intn(3) {
		case 0: // looking away
			gazeX += math.Copysign(30, gazeX)
			yaw = math.Copysign(35, yaw)
		case 1: // eyes drooping
			earL, earR = 0.16, 0.16
		case 2: // head down at a device
			pitch = 25
			gazeY += 20
		}
	}

	attention := 0.8 + 0.15*math.Sin(t*0.1) + g.uniform(-0.1, 0.1)
	attention = math.Max(0.3, math.Min(1.0, attention))

	return geometry.FrameSignal{
		Timestamp:            now,
		FaceDetected:         true,
		GazeX:                gazeX,
		GazeY:                gazeY,
		GazeDirection:        geometry.ClassifyGaze(gazeX, gazeY),
		HeadPitch:            pitch,
		HeadYaw:              yaw,
		HeadRoll:             roll,
		EyeAspectRatioLeft:   earL,
		EyeAspectRatioRight:  earR,
		IsBlinking:           (earL+earR)/2 < geometry.BlinkEARThreshold,
		AttentionScoreRaw:    attention,
		DistanceFromScreenCM: g.uniform(60, 75),
	}
}

func (g *SyntheticGenerator) uniform(lo, hi float64) float64 {
	return lo + g.rng.Float64()*(hi-lo)
}
