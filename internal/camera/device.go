package camera

import (
	"errors"
	"fmt"
)

// Backend identifies a capture API to probe. Probing order matters:
// platform-native backends come before the wildcard.
type Backend string

const (
	BackendV4L2      Backend = "v4l2"
	BackendGStreamer Backend = "gstreamer"
	BackendAny       Backend = "any"
)

// Candidate is one (backend, device index) pair in the probe order.
type Candidate struct {
	Backend Backend
	Index   int
}

func (c Candidate) String() string {
	return fmt.Sprintf("%s/%d", c.Backend, c.Index)
}

// Device is an open capture device. Implementations are not safe for
// concurrent use; each device is owned by exactly one tracking loop.
type Device interface {
	// Read returns the next frame. A false ok means a transient read
	// failure; the caller decides when failures become permanent.
	Read() (frame RawFrame, ok bool)
	Close() error
}

// Opener opens a candidate device with the standard capture
// configuration applied. Injectable so probing is testable without
// hardware.
type Opener func(c Candidate, cfg Config) (Device, error)

// Config holds probe and acquisition parameters. See config.CameraConfig
// for the environment defaults.
type Config struct {
	Candidates       []Candidate
	Width            int
	Height           int
	FPS              int
	WarmupFrames     int
	ProbeAttempts    int
	MinSuccessRatio  float64
	MinLuminanceMean float64
	MinLuminanceStd  float64
	MaxFailedFrames  int
}

// DefaultCandidates expands device indices into the standard probe order:
// every index on the native backend first, then the wildcard backend.
func DefaultCandidates(indices []int) []Candidate {
	out := make([]Candidate, 0, len(indices)*2)
	for _, backend := range []Backend{BackendV4L2, BackendAny} {
		for _, idx := range indices {
			out = append(out, Candidate{Backend: backend, Index: idx})
		}
	}
	return out
}

var (
	// ErrNoCamera means no candidate passed probe validation. The caller
	// is expected to fall back to synthetic signals for the session.
	ErrNoCamera = errors.New("camera: no usable device found")

	// ErrFrameUnavailable is a transient single-read failure.
	ErrFrameUnavailable = errors.New("camera: frame unavailable")

	// ErrExhausted means the source hit its consecutive-failure limit and
	// permanently switched off for this session. It never re-probes.
	ErrExhausted = errors.New("camera: device exhausted")
)
