package classify

import (
	"math"
	"math/rand"

	"github.com/study-eyes/backend/internal/temporal"
)

// BootstrapSeed fixes the synthetic training distribution so a fresh
// deployment always trains the same initial models.
const BootstrapSeed = 42

// SyntheticFeatures draws n feature vectors from per-feature
// distributions shaped like a real study session: mostly centered gaze,
// moderate head motion, natural blink rates.
func SyntheticFeatures(n int, rng *rand.Rand) [][]float64 {
	out := make([][]float64, n)
	for i := range out {
		fv := make([]float64, temporal.FeatureCount)
		fv[temporal.IdxGazeX] = rng.NormFloat64() * 10
		fv[temporal.IdxGazeY] = rng.NormFloat64() * 10
		fv[temporal.IdxGazeStability] = uniform(rng, 0.5, 1.0)
		fv[temporal.IdxHeadPitch] = rng.NormFloat64() * 15
		fv[temporal.IdxHeadYaw] = rng.NormFloat64() * 20
		fv[temporal.IdxHeadRoll] = rng.NormFloat64() * 10
		fv[temporal.IdxBlinkRate] = uniform(rng, 10, 30)
		fv[temporal.IdxAvgEyeOpenness] = uniform(rng, 0.3, 1.0)
		fv[temporal.IdxPupilDilation] = uniform(rng, 0.4, 0.8)
		fv[temporal.IdxFixationDuration] = uniform(rng, 0.1, 3.0)
		fv[temporal.IdxMovementFrequency] = uniform(rng, 0, 20)
		fv[temporal.IdxDistanceFromScreen] = uniform(rng, 40, 100)
		fv[temporal.IdxPostureScore] = uniform(rng, 0.3, 1.0)
		out[i] = fv
	}
	return out
}

func uniform(rng *rand.Rand, lo, hi float64) float64 {
	return lo + rng.Float64()*(hi-lo)
}

// AttentionLabel scores a synthetic sample with threshold penalties and
// labels it focused (1) when the score stays above 0.6. These rules are
// the documented ground truth for bootstrap training, not runtime logic.
func AttentionLabel(fv []float64) int {
	score := 1.0
	if math.Abs(fv[temporal.IdxGazeX]) > 15 || math.Abs(fv[temporal.IdxGazeY]) > 15 {
		score -= 0.3
	}
	if fv[temporal.IdxGazeStability] < 0.7 {
		score -= 0.2
	}
	if math.Abs(fv[temporal.IdxHeadPitch]) > 20 || math.Abs(fv[temporal.IdxHeadYaw]) > 25 {
		score -= 0.3
	}
	if fv[temporal.IdxAvgEyeOpenness] < 0.6 {
		score -= 0.4
	}
	if fv[temporal.IdxBlinkRate] > 25 || fv[temporal.IdxBlinkRate] < 12 {
		score -= 0.1
	}
	if fv[temporal.IdxMovementFrequency] > 15 {
		score -= 0.2
	}
	if fv[temporal.IdxDistanceFromScreen] > 80 || fv[temporal.IdxDistanceFromScreen] < 50 {
		score -= 0.1
	}
	if fv[temporal.IdxPostureScore] < 0.6 {
		score -= 0.1
	}
	if score > 0.6 {
		return 1
	}
	return 0
}

// DistractionLabel assigns the distraction class, most specific rule
// first: closed eyes beat looking away beat device fidgeting.
func DistractionLabel(fv []float64) int {
	switch {
	case fv[temporal.IdxAvgEyeOpenness] < 0.3:
		return int(distractionClosedEyes)
	case math.Abs(fv[temporal.IdxHeadYaw]) > 30 || math.Abs(fv[temporal.IdxGazeX]) > 25:
		return int(distractionLookingAway)
	case fv[temporal.IdxMovementFrequency] > 20 && fv[temporal.IdxGazeStability] < 0.5:
		return int(distractionPhone)
	default:
		return int(distractionNone)
	}
}

// FatigueLabel counts tiredness indicators and buckets the total:
// 0-1 alert, 2-3 tired, 4+ very tired.
func FatigueLabel(fv []float64) int {
	score := 0
	if fv[temporal.IdxBlinkRate] > 25 {
		score++
	}
	if fv[temporal.IdxBlinkRate] > 30 {
		score++
	}
	if fv[temporal.IdxAvgEyeOpenness] < 0.7 {
		score++
	}
	if fv[temporal.IdxAvgEyeOpenness] < 0.5 {
		score++
	}
	if fv[temporal.IdxHeadPitch] > 15 {
		score++
	}
	if fv[temporal.IdxGazeStability] < 0.6 {
		score++
	}
	if fv[temporal.IdxMovementFrequency] > 25 || fv[temporal.IdxMovementFrequency] < 5 {
		score++
	}
	switch {
	case score >= 4:
		return int(fatigueVeryTired)
	case score >= 2:
		return int(fatigueTired)
	default:
		return int(fatigueAlert)
	}
}
