package geometry

import (
	"time"

	"github.com/study-eyes/backend/internal/landmarks"
)

// DefaultScreenDistanceCM is assumed when the inter-eye distance cannot
// be measured.
const DefaultScreenDistanceCM = 65.0

// interEyeCM is the average adult interpupillary distance; paired with
// the observation that ~100px of eye separation corresponds to ~65cm on
// a 640px frame, it gives a rough monocular distance estimate.
const interEyeCM = 6.3

// Compute derives the full per-frame signal from a landmark set.
// width/height are the pixel dimensions of the source frame.
func Compute(set *landmarks.LandmarkSet, width, height int, now time.Time) FrameSignal {
	leftRing := ringPixels(set, landmarks.LeftEyeRing, width, height)
	rightRing := ringPixels(set, landmarks.RightEyeRing, width, height)
	leftCenter := centroid(leftRing[:])
	rightCenter := centroid(rightRing[:])

	earLeft := EyeAspectRatio(leftRing)
	earRight := EyeAspectRatio(rightRing)
	blinking := IsBlinking(earLeft, earRight)

	var leftIris, rightIris []Point2
	if set.HasIris() {
		leftIris = quadPixels(set, landmarks.LeftIris, width, height)
		rightIris = quadPixels(set, landmarks.RightIris, width, height)
	} else {
		// Sparse mesh: the ring centroid is the best iris proxy.
		leftIris = leftRing[:]
		rightIris = rightRing[:]
	}
	gazeX, gazeY := GazeOffset(leftIris, rightIris, leftCenter, rightCenter)
	gazeDir := ClassifyGaze(gazeX, gazeY)

	anchors := [6]Point2{
		pixel(set.At(landmarks.NoseTip), width, height),
		pixel(set.At(landmarks.Chin), width, height),
		pixel(set.At(landmarks.LeftEyeCorner), width, height),
		pixel(set.At(landmarks.RightEyeCorner), width, height),
		pixel(set.At(landmarks.LeftMouthCorner), width, height),
		pixel(set.At(landmarks.RightMouthCorner), width, height),
	}
	pose, ok := EstimateHeadPose(anchors, width, height)
	if !ok {
		pose = HeadPose{}
	}

	distance := DefaultScreenDistanceCM
	if eyeWidth := dist(leftCenter, rightCenter); eyeWidth > 0 {
		distance = interEyeCM * 100 / eyeWidth
	}

	return FrameSignal{
		Timestamp:            now,
		FaceDetected:         true,
		GazeX:                gazeX,
		GazeY:                gazeY,
		GazeDirection:        gazeDir,
		HeadPitch:            pose.Pitch,
		HeadYaw:              pose.Yaw,
		HeadRoll:             pose.Roll,
		EyeAspectRatioLeft:   earLeft,
		EyeAspectRatioRight:  earRight,
		IsBlinking:           blinking,
		AttentionScoreRaw:    HeuristicAttention(gazeDir, pose.Pitch, pose.Yaw, earLeft, earRight, RateUnknown, RateUnknown),
		DistanceFromScreenCM: distance,
	}
}

func pixel(p landmarks.Point, width, height int) Point2 {
	return Point2{X: p.X * float64(width), Y: p.Y * float64(height)}
}

func ringPixels(set *landmarks.LandmarkSet, ring [6]int, width, height int) [6]Point2 {
	var out [6]Point2
	for i, idx := range ring {
		out[i] = pixel(set.At(idx), width, height)
	}
	return out
}

func quadPixels(set *landmarks.LandmarkSet, quad [4]int, width, height int) []Point2 {
	out := make([]Point2, 4)
	for i, idx := range quad {
		out[i] = pixel(set.At(idx), width, height)
	}
	return out
}
