package camera

import (
	"fmt"
	"time"

	"gocv.io/x/gocv"
)

// gocvDevice adapts a gocv.VideoCapture to the Device interface. All
// OpenCV usage in the repo is confined to this file; everything above it
// works on RawFrame buffers.
type gocvDevice struct {
	cap *gocv.VideoCapture
	mat gocv.Mat
}

// OpenDevice is the production Opener: opens the candidate with the
// standard configuration (640x480 @ 30fps, single-frame buffer to avoid
// latency buildup, autofocus and auto-exposure enabled).
func OpenDevice(c Candidate, cfg Config) (Device, error) {
	api := gocv.VideoCaptureAny
	switch c.Backend {
	case BackendV4L2:
		api = gocv.VideoCaptureV4L2
	case BackendGStreamer:
		api = gocv.VideoCaptureGstreamer
	}
	cap, err := gocv.OpenVideoCaptureWithAPI(c.Index, api)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", c.String(), err)
	}
	if !cap.IsOpened() {
		_ = cap.Close()
		return nil, fmt.Errorf("open %s: device not opened", c.String())
	}

	cap.Set(gocv.VideoCaptureFrameWidth, float64(cfg.Width))
	cap.Set(gocv.VideoCaptureFrameHeight, float64(cfg.Height))
	cap.Set(gocv.VideoCaptureFPS, float64(cfg.FPS))
	cap.Set(gocv.VideoCaptureBufferSize, 1)
	cap.Set(gocv.VideoCaptureAutoFocus, 1)
	cap.Set(gocv.VideoCaptureAutoExposure, 0.25)

	return &gocvDevice{cap: cap, mat: gocv.NewMat()}, nil
}

func (d *gocvDevice) Read() (RawFrame, bool) {
	if !d.cap.Read(&d.mat) || d.mat.Empty() {
		return RawFrame{}, false
	}
	return RawFrame{
		Width:     d.mat.Cols(),
		Height:    d.mat.Rows(),
		Pixels:    d.mat.ToBytes(),
		Timestamp: time.Now(),
	}, true
}

func (d *gocvDevice) Close() error {
	_ = d.mat.Close()
	return d.cap.Close()
}
