package camera

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// fakeDevice replays a scripted sequence of frames; a nil entry is a
// failed read. After the script runs out it keeps returning the last
// behavior.
type fakeDevice struct {
	script []*RawFrame
	pos    int
	reads  int
	closed int
}

func (d *fakeDevice) Read() (RawFrame, bool) {
	d.reads++
	if len(d.script) == 0 {
		return RawFrame{}, false
	}
	i := d.pos
	if i >= len(d.script) {
		i = len(d.script) - 1
	} else {
		d.pos++
	}
	if d.script[i] == nil {
		return RawFrame{}, false
	}
	return *d.script[i], true
}

func (d *fakeDevice) Close() error {
	d.closed++
	return nil
}

// solidFrame builds a frame with every pixel set to the same BGR value.
func solidFrame(w, h int, b, g, r byte) *RawFrame {
	px := make([]byte, w*h*3)
	for i := 0; i < w*h; i++ {
		px[i*3], px[i*3+1], px[i*3+2] = b, g, r
	}
	return &RawFrame{Width: w, Height: h, Pixels: px, Timestamp: time.Now()}
}

// texturedFrame builds a frame with alternating dark and bright pixels,
// giving it both a high luminance mean and high variance.
func texturedFrame(w, h int) *RawFrame {
	px := make([]byte, w*h*3)
	for i := 0; i < w*h; i++ {
		v := byte(40)
		if i%2 == 0 {
			v = 200
		}
		px[i*3], px[i*3+1], px[i*3+2] = v, v, v
	}
	return &RawFrame{Width: w, Height: h, Pixels: px, Timestamp: time.Now()}
}

func testConfig() Config {
	return Config{
		Candidates:       []Candidate{{Backend: BackendV4L2, Index: 0}},
		Width:            8,
		Height:           8,
		FPS:              30,
		WarmupFrames:     2,
		ProbeAttempts:    10,
		MinSuccessRatio:  0.7,
		MinLuminanceMean: 10,
		MinLuminanceStd:  5,
		MaxFailedFrames:  3,
	}
}

func TestLuminanceStats(t *testing.T) {
	tests := []struct {
		name     string
		frame    *RawFrame
		wantMean float64
		wantStd  float64
		delta    float64
	}{
		{name: "solid black", frame: solidFrame(8, 8, 0, 0, 0), wantMean: 0, wantStd: 0, delta: 0.001},
		{name: "solid gray has no variance", frame: solidFrame(8, 8, 128, 128, 128), wantMean: 128, wantStd: 0, delta: 0.5},
		{name: "textured has variance", frame: texturedFrame(8, 8), wantMean: 120, wantStd: 80, delta: 1.0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mean, std := tt.frame.LuminanceStats()
			assert.InDelta(t, tt.wantMean, mean, tt.delta)
			assert.InDelta(t, tt.wantStd, std, tt.delta)
		})
	}
}

func TestLuminanceStatsEmptyFrame(t *testing.T) {
	mean, std := RawFrame{}.LuminanceStats()
	assert.Zero(t, mean)
	assert.Zero(t, std)
}

func TestProbeAcceptsGoodCandidate(t *testing.T) {
	cfg := testConfig()
	good := texturedFrame(cfg.Width, cfg.Height)
	opened := 0
	opener := func(c Candidate, cfg Config) (Device, error) {
		opened++
		return &fakeDevice{script: []*RawFrame{good}}, nil
	}

	src, err := Probe(context.Background(), cfg, opener, zap.NewNop())
	require.NoError(t, err)
	require.NotNil(t, src)
	// Once for validation, once for the persistent handle.
	assert.Equal(t, 2, opened)
	assert.Equal(t, cfg.Candidates[0], src.Candidate())

	frame, err := src.Acquire()
	require.NoError(t, err)
	assert.False(t, frame.Empty())
}

func TestProbeRejectsBlackFrames(t *testing.T) {
	cfg := testConfig()
	opener := func(c Candidate, cfg Config) (Device, error) {
		return &fakeDevice{script: []*RawFrame{solidFrame(cfg.Width, cfg.Height, 0, 0, 0)}}, nil
	}
	src, err := Probe(context.Background(), cfg, opener, zap.NewNop())
	assert.ErrorIs(t, err, ErrNoCamera)
	assert.Nil(t, src)
}

func TestProbeRejectsFrozenFrames(t *testing.T) {
	// Bright but zero-variance frames look like a frozen feed.
	cfg := testConfig()
	opener := func(c Candidate, cfg Config) (Device, error) {
		return &fakeDevice{script: []*RawFrame{solidFrame(cfg.Width, cfg.Height, 180, 180, 180)}}, nil
	}
	_, err := Probe(context.Background(), cfg, opener, zap.NewNop())
	assert.ErrorIs(t, err, ErrNoCamera)
}

func TestProbeFallsThroughToNextCandidate(t *testing.T) {
	cfg := testConfig()
	cfg.Candidates = []Candidate{
		{Backend: BackendV4L2, Index: 0},
		{Backend: BackendV4L2, Index: 1},
	}
	opener := func(c Candidate, cfg Config) (Device, error) {
		if c.Index == 0 {
			return &fakeDevice{}, nil // all reads fail
		}
		return &fakeDevice{script: []*RawFrame{texturedFrame(cfg.Width, cfg.Height)}}, nil
	}
	src, err := Probe(context.Background(), cfg, opener, zap.NewNop())
	require.NoError(t, err)
	assert.Equal(t, 1, src.Candidate().Index)
}

func TestProbeSuccessRatioBoundary(t *testing.T) {
	cfg := testConfig()
	cfg.ProbeAttempts = 10
	cfg.MinSuccessRatio = 0.7
	good := texturedFrame(cfg.Width, cfg.Height)

	// 7 good frames out of 10 is exactly the threshold: accepted.
	script := make([]*RawFrame, 0, cfg.WarmupFrames+10)
	for i := 0; i < cfg.WarmupFrames; i++ {
		script = append(script, nil)
	}
	for i := 0; i < 7; i++ {
		script = append(script, good)
	}
	for i := 0; i < 3; i++ {
		script = append(script, nil)
	}
	// Re-open for persistent use reads nothing during probe, so any
	// script works for the second open.
	calls := 0
	opener := func(c Candidate, cfg Config) (Device, error) {
		calls++
		if calls == 1 {
			return &fakeDevice{script: script}, nil
		}
		return &fakeDevice{script: []*RawFrame{good}}, nil
	}
	src, err := Probe(context.Background(), cfg, opener, zap.NewNop())
	require.NoError(t, err)
	require.NotNil(t, src)
}

func TestProbeDiscardsWarmupFrames(t *testing.T) {
	cfg := testConfig()
	cfg.WarmupFrames = 5
	cfg.ProbeAttempts = 4
	cfg.MinSuccessRatio = 1.0
	good := texturedFrame(cfg.Width, cfg.Height)

	// First 5 reads are garbage; if warmup were skipped the candidate
	// would be rejected.
	script := []*RawFrame{nil, nil, nil, nil, nil, good, good, good, good}
	calls := 0
	opener := func(c Candidate, cfg Config) (Device, error) {
		calls++
		return &fakeDevice{script: script}, nil
	}
	_, err := Probe(context.Background(), cfg, opener, zap.NewNop())
	require.NoError(t, err)
}

func TestSourceTransientFailureThenRecovery(t *testing.T) {
	cfg := testConfig()
	good := texturedFrame(cfg.Width, cfg.Height)
	dev := &fakeDevice{script: []*RawFrame{nil, nil, good}}
	src := NewSource(Candidate{Backend: BackendV4L2}, dev, cfg.MaxFailedFrames, zap.NewNop())

	_, err := src.Acquire()
	assert.ErrorIs(t, err, ErrFrameUnavailable)
	_, err = src.Acquire()
	assert.ErrorIs(t, err, ErrFrameUnavailable)

	// A good read resets the consecutive-failure counter.
	_, err = src.Acquire()
	require.NoError(t, err)
	assert.False(t, src.Exhausted())
}

func TestSourceExhaustionIsPermanent(t *testing.T) {
	dev := &fakeDevice{} // every read fails
	src := NewSource(Candidate{Backend: BackendV4L2}, dev, 3, zap.NewNop())

	_, err := src.Acquire()
	assert.ErrorIs(t, err, ErrFrameUnavailable)
	_, err = src.Acquire()
	assert.ErrorIs(t, err, ErrFrameUnavailable)
	_, err = src.Acquire()
	assert.ErrorIs(t, err, ErrExhausted)
	assert.True(t, src.Exhausted())
	assert.Equal(t, 1, dev.closed)

	// Subsequent acquires never touch the device again.
	readsAtExhaustion := dev.reads
	for i := 0; i < 5; i++ {
		_, err = src.Acquire()
		assert.ErrorIs(t, err, ErrExhausted)
	}
	assert.Equal(t, readsAtExhaustion, dev.reads)
}

func TestDefaultCandidatesOrder(t *testing.T) {
	cands := DefaultCandidates([]int{0, 1})
	require.Len(t, cands, 4)
	assert.Equal(t, Candidate{Backend: BackendV4L2, Index: 0}, cands[0])
	assert.Equal(t, Candidate{Backend: BackendV4L2, Index: 1}, cands[1])
	assert.Equal(t, Candidate{Backend: BackendAny, Index: 0}, cands[2])
	assert.Equal(t, Candidate{Backend: BackendAny, Index: 1}, cands[3])
}
