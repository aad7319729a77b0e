package geometry

import "math"

// GazePixelThreshold is the dead zone: offsets with both axes under this
// many pixels count as looking at the center.
const GazePixelThreshold = 5.0

// GazeOffset averages the iris-centroid displacement from the eye-ring
// centroid across both eyes. Positive x is the subject's right on
// screen, positive y is down.
func GazeOffset(leftIris, rightIris []Point2, leftEyeCenter, rightEyeCenter Point2) (x, y float64) {
	li := centroid(leftIris)
	ri := centroid(rightIris)
	x = ((li.X - leftEyeCenter.X) + (ri.X - rightEyeCenter.X)) / 2
	y = ((li.Y - leftEyeCenter.Y) + (ri.Y - rightEyeCenter.Y)) / 2
	return x, y
}

// ClassifyGaze maps a pixel offset to a coarse direction. Inside the
// dead zone on both axes → center; otherwise the axis with the larger
// magnitude wins (vertical on an exact tie).
func ClassifyGaze(x, y float64) GazeDirection {
	if math.Abs(x) < GazePixelThreshold && math.Abs(y) < GazePixelThreshold {
		return GazeCenter
	}
	if math.Abs(x) > math.Abs(y) {
		if x < 0 {
			return GazeLeft
		}
		return GazeRight
	}
	if y < 0 {
		return GazeUp
	}
	return GazeDown
}
