package tracking

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/study-eyes/backend/config"
	"github.com/study-eyes/backend/internal/camera"
	"github.com/study-eyes/backend/internal/classify"
	"github.com/study-eyes/backend/internal/landmarks"
	"github.com/study-eyes/backend/internal/temporal"
)

type captureHub struct {
	mu     sync.Mutex
	events []capturedEvent
}

type capturedEvent struct {
	sessionID uuid.UUID
	event     string
	payload   any
}

func (h *captureHub) BroadcastToSession(sessionID uuid.UUID, event string, payload any) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.events = append(h.events, capturedEvent{sessionID: sessionID, event: event, payload: payload})
}

func (h *captureHub) snapshots() []Snapshot {
	h.mu.Lock()
	defer h.mu.Unlock()
	var out []Snapshot
	for _, e := range h.events {
		if snap, ok := e.payload.(Snapshot); ok {
			out = append(out, snap)
		}
	}
	return out
}

type captureStore struct {
	mu    sync.Mutex
	saved []Snapshot
}

func (s *captureStore) SaveSnapshot(_ context.Context, snap *Snapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.saved = append(s.saved, *snap)
	return nil
}

func (s *captureStore) snapshots() []Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Snapshot(nil), s.saved...)
}

type stubClassifier struct{}

func (stubClassifier) Classify(_ temporal.FeatureVector) classify.Classification {
	c := classify.Fallback()
	c.AIProcessed = true
	return c
}

type scriptedDevice struct {
	mu       sync.Mutex
	frames   []bool // per read: true = deliver a frame, false = fail; last entry repeats
	reads    int
	closed   int
	template camera.RawFrame
}

func newScriptedDevice(frames []bool) *scriptedDevice {
	pixels := make([]byte, 4*4*3)
	for i := range pixels {
		pixels[i] = byte(40 + (i*37)%120)
	}
	return &scriptedDevice{
		frames:   frames,
		template: camera.RawFrame{Width: 4, Height: 4, Pixels: pixels},
	}
}

func (d *scriptedDevice) Read() (camera.RawFrame, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	ok := false
	if d.reads < len(d.frames) {
		ok = d.frames[d.reads]
	} else if len(d.frames) > 0 {
		ok = d.frames[len(d.frames)-1]
	}
	d.reads++
	if !ok {
		return camera.RawFrame{}, false
	}
	frame := d.template
	frame.Timestamp = time.Now()
	return frame, true
}

func (d *scriptedDevice) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.closed++
	return nil
}

func (d *scriptedDevice) closedCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.closed
}

type noFaceExtractor struct {
	mu     sync.Mutex
	closed bool
}

func (e *noFaceExtractor) Extract(_ camera.RawFrame) (*landmarks.LandmarkSet, error) {
	return nil, landmarks.ErrNoFace
}

func (e *noFaceExtractor) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.closed = true
	return nil
}

func (e *noFaceExtractor) wasClosed() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.closed
}

func fastTracking(persistEvery int) config.TrackingConfig {
	return config.TrackingConfig{
		TickRate:         500,
		WindowSeconds:    30,
		WindowMaxSamples: 900,
		PersistEvery:     persistEvery,
	}
}

func waitFor(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	require.FailNow(t, "condition not met before timeout")
}

func TestSyntheticSessionPublishesEveryTick(t *testing.T) {
	hub := &captureHub{}
	sessionID := uuid.New()
	session := NewSession(SessionConfig{
		SessionID:     sessionID,
		UserID:        "user-1",
		Classifier:    stubClassifier{},
		Hub:           hub,
		Tracking:      fastTracking(30),
		SyntheticSeed: 1,
		Logger:        zap.NewNop(),
	})
	require.True(t, session.Synthetic())

	session.Start()
	waitFor(t, 2*time.Second, func() bool { return len(hub.snapshots()) >= 10 })
	session.Stop()

	snaps := hub.snapshots()
	require.GreaterOrEqual(t, len(snaps), 10)
	for i, snap := range snaps {
		assert.Equal(t, sessionID, snap.SessionID)
		assert.Equal(t, uint64(i+1), snap.Tick)
		assert.True(t, snap.IsSynthetic)
		assert.True(t, snap.FaceDetected)
		assert.True(t, snap.AIProcessed)
		assert.NotEmpty(t, snap.FocusLevel)
		assert.NotEmpty(t, snap.GazeDirection)
		if i > 0 {
			assert.False(t, snap.Timestamp.Before(snaps[i-1].Timestamp),
				"timestamps must be monotonically non-decreasing")
		}
	}
}

func TestPersistCadence(t *testing.T) {
	hub := &captureHub{}
	store := &captureStore{}
	session := NewSession(SessionConfig{
		SessionID:     uuid.New(),
		UserID:        "user-1",
		Classifier:    stubClassifier{},
		Hub:           hub,
		Store:         store,
		Tracking:      fastTracking(5),
		SyntheticSeed: 1,
		Logger:        zap.NewNop(),
	})

	session.Start()
	waitFor(t, 2*time.Second, func() bool { return len(store.snapshots()) >= 3 })
	session.Stop()

	saved := store.snapshots()
	require.GreaterOrEqual(t, len(saved), 3)
	for i, snap := range saved {
		assert.Equal(t, uint64(0), snap.Tick%5, "persisted snapshots land on the cadence")
		assert.Equal(t, uint64((i+1)*5), snap.Tick)
	}
	// Far fewer persists than publishes.
	assert.Greater(t, len(hub.snapshots()), len(saved))
}

func TestCameraExhaustionFallsBackPermanently(t *testing.T) {
	dev := newScriptedDevice([]bool{false}) // every read fails
	source := camera.NewSource(camera.Candidate{Backend: camera.BackendV4L2}, dev, 3, zap.NewNop())
	hub := &captureHub{}
	session := NewSession(SessionConfig{
		SessionID:     uuid.New(),
		UserID:        "user-1",
		Source:        source,
		Extractor:     &noFaceExtractor{},
		Classifier:    stubClassifier{},
		Hub:           hub,
		Tracking:      fastTracking(30),
		SyntheticSeed: 1,
		Logger:        zap.NewNop(),
	})
	require.False(t, session.Synthetic())

	session.Start()
	waitFor(t, 2*time.Second, func() bool { return session.Synthetic() && len(hub.snapshots()) >= 8 })
	session.Stop()

	// The device was closed exactly once, by exhaustion; publishing
	// continued with synthetic data afterwards.
	assert.Equal(t, 1, dev.closedCount())
	snaps := hub.snapshots()
	for _, snap := range snaps {
		assert.True(t, snap.IsSynthetic)
	}
	assert.Equal(t, uint64(len(snaps)), snaps[len(snaps)-1].Tick, "no tick skipped a publish")
}

func TestNoFaceProducesNeutralRealSignal(t *testing.T) {
	dev := newScriptedDevice([]bool{true}) // every read succeeds
	source := camera.NewSource(camera.Candidate{Backend: camera.BackendV4L2}, dev, 3, zap.NewNop())
	extractor := &noFaceExtractor{}
	hub := &captureHub{}
	session := NewSession(SessionConfig{
		SessionID:     uuid.New(),
		UserID:        "user-1",
		Source:        source,
		Extractor:     extractor,
		Classifier:    stubClassifier{},
		Hub:           hub,
		Tracking:      fastTracking(30),
		SyntheticSeed: 1,
		Logger:        zap.NewNop(),
	})

	session.Start()
	waitFor(t, 2*time.Second, func() bool { return len(hub.snapshots()) >= 5 })
	session.Stop()

	for _, snap := range hub.snapshots() {
		assert.False(t, snap.IsSynthetic, "a real frame with no face is not synthetic data")
		assert.False(t, snap.FaceDetected)
	}
	// Stop released both the device and the extractor.
	assert.Equal(t, 1, dev.closedCount())
	assert.True(t, extractor.wasClosed())
}

func syntheticSession(userID string) *Session {
	return NewSession(SessionConfig{
		SessionID:     uuid.New(),
		UserID:        userID,
		Classifier:    stubClassifier{},
		Hub:           &captureHub{},
		Tracking:      fastTracking(30),
		SyntheticSeed: 1,
		Logger:        zap.NewNop(),
	})
}

func TestRegistryRejectsSecondSession(t *testing.T) {
	reg := NewRegistry(zap.NewNop())
	first := syntheticSession("user-1")
	require.NoError(t, reg.Start(first))
	defer reg.StopAll()

	err := reg.Start(syntheticSession("user-1"))
	assert.ErrorIs(t, err, ErrAlreadyActive)
	assert.Equal(t, 1, reg.ActiveCount())
	assert.Same(t, first, reg.Get("user-1"))

	// A different user is unaffected.
	require.NoError(t, reg.Start(syntheticSession("user-2")))
	assert.Equal(t, 2, reg.ActiveCount())
}

func TestRegistryStop(t *testing.T) {
	reg := NewRegistry(zap.NewNop())
	require.NoError(t, reg.Start(syntheticSession("user-1")))

	assert.True(t, reg.Stop("user-1"))
	assert.Zero(t, reg.ActiveCount())
	assert.False(t, reg.Stop("user-1"), "second stop is a no-op")

	// The user can start again after stopping.
	require.NoError(t, reg.Start(syntheticSession("user-1")))
	reg.StopAll()
	assert.Zero(t, reg.ActiveCount())
}

func TestSyntheticGeneratorShape(t *testing.T) {
	gen := NewSyntheticGenerator(123)
	now := time.Now()

	blinks := 0
	for i := 0; i < 10000; i++ {
		sig := gen.Next(now.Add(time.Duration(i) * 33 * time.Millisecond))
		assert.True(t, sig.FaceDetected)
		assert.GreaterOrEqual(t, sig.AttentionScoreRaw, 0.3)
		assert.LessOrEqual(t, sig.AttentionScoreRaw, 1.0)
		if sig.IsBlinking {
			blinks++
		}
	}
	// ~0.9% per frame plus occasional drooping-eye distractions; allow
	// a generous band around the natural blink rate.
	assert.Greater(t, blinks, 40)
	assert.Less(t, blinks, 400)
}

func TestSyntheticGeneratorDeterminism(t *testing.T) {
	now := time.Now()
	a := NewSyntheticGenerator(7)
	b := NewSyntheticGenerator(7)
	for i := 0; i < 100; i++ {
		ts := now.Add(time.Duration(i) * 33 * time.Millisecond)
		assert.Equal(t, a.Next(ts), b.Next(ts))
	}
}
