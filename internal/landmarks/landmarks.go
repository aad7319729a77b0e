// Package landmarks converts raw frames into normalized face-mesh
// landmark positions. The mesh topology follows the 468-point dense face
// mesh (478 with iris refinement); index constants below name the
// subsets the geometry package consumes.
package landmarks

import "errors"

// MeshPoints is the minimum landmark count for a dense face mesh.
// Iris-refined meshes carry 478 points.
const MeshPoints = 468

// Point is a single normalized landmark: x and y in [0,1] image space,
// z is relative depth with the screen plane at 0.
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
}

// LandmarkSet is one frame's worth of mesh points. Produced once per
// frame and consumed immediately; never retained.
type LandmarkSet struct {
	Points []Point
}

// ErrNoFace is returned when the mesh model finds no face in the frame.
var ErrNoFace = errors.New("landmarks: no face detected")

// Eye ring indices, ordered corner, top, top, corner, bottom, bottom:
// the 6-point ordering the eye-aspect-ratio formula expects.
var (
	LeftEyeRing  = [6]int{33, 160, 158, 133, 153, 144}
	RightEyeRing = [6]int{362, 385, 387, 263, 373, 380}
)

// Iris quads (present only on refined meshes; fall back to the eye ring
// centroid when the set is too short).
var (
	LeftIris  = [4]int{474, 475, 476, 477}
	RightIris = [4]int{469, 470, 471, 472}
)

// Head-pose anchor indices: the six canonical points matched against the
// 3D face model during the perspective-n-point solve.
const (
	NoseTip          = 1
	Chin             = 18
	LeftEyeCorner    = 33
	RightEyeCorner   = 263
	LeftMouthCorner  = 61
	RightMouthCorner = 291
)

// HasIris reports whether the set carries refined iris points.
func (s *LandmarkSet) HasIris() bool {
	max := LeftIris[3]
	if RightIris[3] > max {
		max = RightIris[3]
	}
	return len(s.Points) > max
}

// At returns the landmark at index i, or a zero point when the set is
// too short. Keeps callers free of bounds plumbing on sparse meshes.
func (s *LandmarkSet) At(i int) Point {
	if i < 0 || i >= len(s.Points) {
		return Point{}
	}
	return s.Points[i]
}
