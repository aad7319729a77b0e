package geometry

// Penalty thresholds for the frame-local heuristic attention score.
// Distinct from, and deliberately cruder than, the classifier ensemble:
// this score survives even when the models are unavailable.
const (
	attnPitchLimit   = 15.0
	attnYawLimit     = 20.0
	attnBlinkRateMin = 12.0
	attnBlinkRateMax = 25.0
	attnMovementMax  = 15.0

	// RateUnknown marks a rate argument with no history behind it yet.
	RateUnknown = -1.0
)

// HeuristicAttention scores frame-level attention in [0,1]: start at 1.0
// and subtract fixed penalties for off-center gaze, extreme head pose,
// near-closed eyes, and (when history exists) out-of-range blink rate or
// head movement. Pass RateUnknown for rates with no window behind them.
func HeuristicAttention(gaze GazeDirection, pitch, yaw, earLeft, earRight, blinkRate, movementFreq float64) float64 {
	score := 1.0
	if gaze != GazeCenter {
		score -= 0.3
	}
	if abs(pitch) > attnPitchLimit {
		score -= 0.2
	}
	if abs(yaw) > attnYawLimit {
		score -= 0.2
	}
	if (earLeft+earRight)/2 < BlinkEARThreshold {
		score -= 0.4
	}
	if blinkRate != RateUnknown && (blinkRate < attnBlinkRateMin || blinkRate > attnBlinkRateMax) {
		score -= 0.1
	}
	if movementFreq != RateUnknown && movementFreq > attnMovementMax {
		score -= 0.1
	}
	if score < 0 {
		return 0
	}
	if score > 1 {
		return 1
	}
	return score
}

func abs(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}
