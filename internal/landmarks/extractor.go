package landmarks

import (
	"github.com/study-eyes/backend/internal/camera"
)

// Extractor turns a raw frame into a landmark set. Implementations serve
// exactly one tracking loop; none are required to be safe for concurrent
// frames.
type Extractor interface {
	// Extract returns the landmarks of the primary face, or ErrNoFace.
	Extract(frame camera.RawFrame) (*LandmarkSet, error)
	Close() error
}
