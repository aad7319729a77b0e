package camera

import (
	"go.uber.org/zap"
)

// Source is a validated, persistently open frame source. It is owned by
// exactly one tracking loop and is not safe for concurrent use.
//
// A single bad read is transient (ErrFrameUnavailable); after
// maxFailedFrames consecutive failures the device is closed and the
// source reports ErrExhausted for the rest of the session. It never
// re-probes: the caller switches to synthetic signals instead.
type Source struct {
	candidate Candidate
	dev       Device
	logger    *zap.Logger

	failures  int
	maxFailed int
	exhausted bool
}

// NewSource wraps an already-open device. Probe is the normal way to
// obtain one; direct construction is for callers that manage their own
// device validation.
func NewSource(cand Candidate, dev Device, maxFailed int, logger *zap.Logger) *Source {
	if maxFailed <= 0 {
		maxFailed = 30
	}
	return &Source{candidate: cand, dev: dev, maxFailed: maxFailed, logger: logger}
}

// Candidate returns the accepted (backend, index) pair.
func (s *Source) Candidate() Candidate { return s.candidate }

// Exhausted reports whether the source has permanently given up.
func (s *Source) Exhausted() bool { return s.exhausted }

// Acquire reads one frame. Bounded by device read latency only; probing
// never happens here.
func (s *Source) Acquire() (RawFrame, error) {
	if s.exhausted {
		return RawFrame{}, ErrExhausted
	}
	frame, ok := s.dev.Read()
	if !ok || frame.Empty() {
		s.failures++
		if s.failures >= s.maxFailed {
			s.logger.Warn("camera read failed repeatedly, switching to synthetic mode",
				zap.String("candidate", s.candidate.String()),
				zap.Int("consecutive_failures", s.failures))
			s.exhausted = true
			_ = s.dev.Close()
			return RawFrame{}, ErrExhausted
		}
		return RawFrame{}, ErrFrameUnavailable
	}
	s.failures = 0
	return frame, nil
}

// Close releases the device. Safe to call after exhaustion.
func (s *Source) Close() error {
	if s.exhausted {
		return nil
	}
	s.exhausted = true
	return s.dev.Close()
}
