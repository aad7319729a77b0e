package camera

import (
	"math"
	"time"
)

// RawFrame is a single captured video frame: packed BGR bytes plus the
// capture timestamp. Frames are transient; the tracking loop discards
// them right after landmark extraction.
type RawFrame struct {
	Width     int
	Height    int
	Pixels    []byte // BGR, len == Width*Height*3
	Timestamp time.Time
}

// Empty reports whether the frame carries no pixel data.
func (f RawFrame) Empty() bool {
	return len(f.Pixels) == 0 || f.Width <= 0 || f.Height <= 0
}

// LuminanceStats returns the mean and standard deviation of the frame's
// per-pixel luminance (ITU-R BT.601 weights). Used to reject solid-black
// and frozen frames during probe validation.
func (f RawFrame) LuminanceStats() (mean, std float64) {
	n := f.Width * f.Height
	if n == 0 || len(f.Pixels) < n*3 {
		return 0, 0
	}
	var sum, sumSq float64
	for i := 0; i < n; i++ {
		b := float64(f.Pixels[i*3])
		g := float64(f.Pixels[i*3+1])
		r := float64(f.Pixels[i*3+2])
		y := 0.114*b + 0.587*g + 0.299*r
		sum += y
		sumSq += y * y
	}
	mean = sum / float64(n)
	variance := sumSq/float64(n) - mean*mean
	if variance < 0 {
		variance = 0
	}
	return mean, math.Sqrt(variance)
}
