// Package geometry derives per-frame scalar signals (eye aspect ratio,
// gaze, head pose, heuristic attention) from facial landmarks.
package geometry

import "time"

// GazeDirection is the coarse classification of where the eyes point.
type GazeDirection string

const (
	GazeCenter GazeDirection = "center"
	GazeLeft   GazeDirection = "left"
	GazeRight  GazeDirection = "right"
	GazeUp     GazeDirection = "up"
	GazeDown   GazeDirection = "down"
)

// FrameSignal is the per-frame record produced by the feature computer,
// exactly one per successfully processed frame (or per synthetic tick).
// Angle fields are finite degrees in [-180, 180].
type FrameSignal struct {
	Timestamp    time.Time     `json:"timestamp"`
	FaceDetected bool          `json:"face_detected"`

	GazeX         float64       `json:"gaze_x"`
	GazeY         float64       `json:"gaze_y"`
	GazeDirection GazeDirection `json:"gaze_direction"`

	HeadPitch float64 `json:"head_pitch"`
	HeadYaw   float64 `json:"head_yaw"`
	HeadRoll  float64 `json:"head_roll"`

	EyeAspectRatioLeft  float64 `json:"eye_aspect_ratio_left"`
	EyeAspectRatioRight float64 `json:"eye_aspect_ratio_right"`
	IsBlinking          bool    `json:"is_blinking"`

	// AttentionScoreRaw is the frame-local heuristic in [0,1]. It is a
	// fallback signal independent of the classifier ensemble output and
	// is published alongside it.
	AttentionScoreRaw float64 `json:"attention_score_raw"`

	DistanceFromScreenCM float64 `json:"distance_from_screen_cm"`
}

// NeutralSignal is the stand-in emitted for a tick whose frame produced
// no face: open eyes, centered gaze, nominal screen distance.
func NeutralSignal(now time.Time) FrameSignal {
	return FrameSignal{
		Timestamp:            now,
		FaceDetected:         false,
		GazeDirection:        GazeCenter,
		EyeAspectRatioLeft:   0.3,
		EyeAspectRatioRight:  0.3,
		AttentionScoreRaw:    0,
		DistanceFromScreenCM: DefaultScreenDistanceCM,
	}
}
