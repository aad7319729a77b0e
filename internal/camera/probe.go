package camera

import (
	"context"

	"go.uber.org/zap"
)

// Probe walks the candidate list and returns a Source for the first
// device that passes validation.
//
// Per candidate: open, discard WarmupFrames reads (hardware
// stabilization), then sample ProbeAttempts frames. A frame is good when
// its luminance mean and standard deviation both clear their floors; the
// candidate is accepted when the good ratio reaches MinSuccessRatio.
// The probe capture is closed and the candidate re-opened for persistent
// use, mirroring how drivers behave better on a fresh handle after a
// heavy read burst.
//
// Returns ErrNoCamera when every candidate fails.
func Probe(ctx context.Context, cfg Config, open Opener, logger *zap.Logger) (*Source, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	for _, cand := range cfg.Candidates {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		ok := validateCandidate(cand, cfg, open, logger)
		if !ok {
			continue
		}
		dev, err := open(cand, cfg)
		if err != nil {
			logger.Warn("camera reopen after validation failed",
				zap.String("candidate", cand.String()), zap.Error(err))
			continue
		}
		logger.Info("camera accepted",
			zap.String("candidate", cand.String()),
			zap.Int("width", cfg.Width), zap.Int("height", cfg.Height))
		return NewSource(cand, dev, cfg.MaxFailedFrames, logger), nil
	}
	logger.Warn("no usable camera found, caller should fall back to synthetic signals")
	return nil, ErrNoCamera
}

func validateCandidate(cand Candidate, cfg Config, open Opener, logger *zap.Logger) bool {
	dev, err := open(cand, cfg)
	if err != nil {
		logger.Debug("camera open failed", zap.String("candidate", cand.String()), zap.Error(err))
		return false
	}
	defer dev.Close()

	for i := 0; i < cfg.WarmupFrames; i++ {
		dev.Read()
	}

	good := 0
	for i := 0; i < cfg.ProbeAttempts; i++ {
		frame, ok := dev.Read()
		if !ok || frame.Empty() {
			continue
		}
		mean, std := frame.LuminanceStats()
		if mean > cfg.MinLuminanceMean && std > cfg.MinLuminanceStd {
			good++
		}
	}

	ratio := 0.0
	if cfg.ProbeAttempts > 0 {
		ratio = float64(good) / float64(cfg.ProbeAttempts)
	}
	accepted := ratio >= cfg.MinSuccessRatio
	logger.Info("camera probe result",
		zap.String("candidate", cand.String()),
		zap.Int("good_frames", good),
		zap.Int("attempts", cfg.ProbeAttempts),
		zap.Float64("ratio", ratio),
		zap.Bool("accepted", accepted))
	return accepted
}
