package geometry

import "math"

// BlinkEARThreshold is the mean eye-aspect-ratio below which a blink is
// declared. Strictly below: an EAR of exactly 0.21 is an open eye.
const BlinkEARThreshold = 0.21

// Point2 is a pixel-space 2D point.
type Point2 struct {
	X, Y float64
}

func dist(a, b Point2) float64 {
	return math.Hypot(a.X-b.X, a.Y-b.Y)
}

func centroid(pts []Point2) Point2 {
	if len(pts) == 0 {
		return Point2{}
	}
	var c Point2
	for _, p := range pts {
		c.X += p.X
		c.Y += p.Y
	}
	c.X /= float64(len(pts))
	c.Y /= float64(len(pts))
	return c
}

// EyeAspectRatio computes EAR from the 6-point eye ring ordered
// corner, top, top, corner, bottom, bottom:
//
//	EAR = (‖p2−p6‖ + ‖p3−p5‖) / (2·‖p1−p4‖)
//
// Returns 0 when the eye has no horizontal extent.
func EyeAspectRatio(ring [6]Point2) float64 {
	vertA := dist(ring[1], ring[5])
	vertB := dist(ring[2], ring[4])
	horiz := dist(ring[0], ring[3])
	if horiz == 0 {
		return 0
	}
	return (vertA + vertB) / (2 * horiz)
}

// IsBlinking declares a blink when the mean of both EARs drops below the
// threshold.
func IsBlinking(earLeft, earRight float64) bool {
	return (earLeft+earRight)/2 < BlinkEARThreshold
}
