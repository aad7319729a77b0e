package tracking

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/study-eyes/backend/config"
	"github.com/study-eyes/backend/internal/camera"
	"github.com/study-eyes/backend/internal/classify"
	"github.com/study-eyes/backend/internal/geometry"
	"github.com/study-eyes/backend/internal/landmarks"
	"github.com/study-eyes/backend/internal/temporal"
)

// Events published to the session's realtime feed.
const (
	EventTrackingUpdate = "tracking_update"
	EventTrackingError  = "tracking_error"
)

// Broadcaster delivers events to the session's realtime consumers.
// Delivery is best-effort; a slow or absent consumer never blocks the
// tick loop.
type Broadcaster interface {
	BroadcastToSession(sessionID uuid.UUID, event string, payload any)
}

// SnapshotStore persists periodic snapshots. Failures are logged and
// swallowed by the loop.
type SnapshotStore interface {
	SaveSnapshot(ctx context.Context, snap *Snapshot) error
}

// Classifier runs the model ensemble over one feature vector.
type Classifier interface {
	Classify(features temporal.FeatureVector) classify.Classification
}

// SessionConfig wires one tracking session. Source and Extractor may be
// nil, in which case the session runs fully synthetic from the first
// tick.
type SessionConfig struct {
	SessionID     uuid.UUID
	UserID        string
	Source        *camera.Source
	Extractor     landmarks.Extractor
	Classifier    Classifier
	Hub           Broadcaster
	Store         SnapshotStore
	Tracking      config.TrackingConfig
	SyntheticSeed int64
	Logger        *zap.Logger
}

// Session drives one user's tracking loop: acquire, extract, compute,
// aggregate, classify, publish, once per tick. The camera device handle
// is owned exclusively by this loop.
type Session struct {
	id        uuid.UUID
	userID    string
	startedAt time.Time

	source     *camera.Source
	extractor  landmarks.Extractor
	window     *temporal.Window
	classifier Classifier
	hub        Broadcaster
	store      SnapshotStore
	gen        *SyntheticGenerator
	logger     *zap.Logger

	interval     time.Duration
	persistEvery uint64
	tick         uint64
	synthetic    atomic.Bool

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// NewSession builds a session from its wiring. It does not start the
// loop.
func NewSession(cfg SessionConfig) *Session {
	tickRate := cfg.Tracking.TickRate
	if tickRate <= 0 {
		tickRate = 30
	}
	persistEvery := cfg.Tracking.PersistEvery
	if persistEvery <= 0 {
		persistEvery = 30
	}
	windowSeconds := cfg.Tracking.WindowSeconds
	if windowSeconds <= 0 {
		windowSeconds = 30
	}
	maxSamples := cfg.Tracking.WindowMaxSamples
	if maxSamples <= 0 {
		maxSamples = windowSeconds * tickRate
	}
	seed := cfg.SyntheticSeed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	s := &Session{
		id:           cfg.SessionID,
		userID:       cfg.UserID,
		startedAt:    time.Now().UTC(),
		source:       cfg.Source,
		extractor:    cfg.Extractor,
		window:       temporal.NewWindow(time.Duration(windowSeconds)*time.Second, maxSamples, cfg.Logger),
		classifier:   cfg.Classifier,
		hub:          cfg.Hub,
		store:        cfg.Store,
		gen:          NewSyntheticGenerator(seed),
		logger:       cfg.Logger,
		interval:     time.Second / time.Duration(tickRate),
		persistEvery: uint64(persistEvery),
		done:         make(chan struct{}),
	}
	s.synthetic.Store(s.source == nil)
	return s
}

// ID returns the session identifier.
func (s *Session) ID() uuid.UUID { return s.id }

// UserID returns the owning user identity.
func (s *Session) UserID() string { return s.userID }

// StartedAt returns the session creation time.
func (s *Session) StartedAt() time.Time { return s.startedAt }

// Synthetic reports whether the session currently generates its data.
func (s *Session) Synthetic() bool { return s.synthetic.Load() }

// Start launches the tracking loop. Call Stop to release the device.
func (s *Session) Start() {
	s.mu.Lock()
	if s.cancel != nil {
		s.mu.Unlock()
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	s.mu.Unlock()

	go s.run(ctx)
	s.logger.Info("tracking session started",
		zap.String("session_id", s.id.String()),
		zap.String("user_id", s.userID),
		zap.Bool("synthetic", s.Synthetic()),
		zap.Duration("tick_interval", s.interval))
}

// Stop halts the loop and waits for it to release its resources. The
// stop is observed at the next tick boundary; an in-flight frame read
// is never interrupted.
func (s *Session) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel == nil {
		return
	}
	s.cancel()
	s.cancel = nil
	<-s.done
	s.logger.Info("tracking session stopped",
		zap.String("session_id", s.id.String()),
		zap.String("user_id", s.userID),
		zap.Uint64("ticks", s.tick))
}

// Done is closed when the loop has fully exited.
func (s *Session) Done() <-chan struct{} { return s.done }

func (s *Session) run(ctx context.Context) {
	defer close(s.done)
	defer s.release()
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("tracking loop terminated on internal error",
				zap.String("session_id", s.id.String()),
				zap.Any("panic", r))
			if s.hub != nil {
				s.hub.BroadcastToSession(s.id, EventTrackingError, map[string]any{
					"session_id": s.id,
					"error":      "internal tracking failure, session ended",
				})
			}
		}
	}()

	// Pacing sleep rather than a fixed ticker: a slow tick delays the
	// next one, it never causes a burst of catch-up ticks.
	timer := time.NewTimer(s.interval)
	defer timer.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
			s.step(ctx)
			timer.Reset(s.interval)
		}
	}
}

// step runs one tick of the pipeline.
func (s *Session) step(ctx context.Context) {
	now := time.Now()
	sig, synthetic := s.signal(now)
	s.window.Push(sig)
	feats := s.window.Features()
	cls := s.classifier.Classify(feats)
	s.tick++

	snap := newSnapshot(s.id, s.tick, sig, feats, cls, synthetic)
	if s.hub != nil {
		s.hub.BroadcastToSession(s.id, EventTrackingUpdate, snap)
	}
	if s.store != nil && s.tick%s.persistEvery == 0 {
		if err := s.store.SaveSnapshot(ctx, &snap); err != nil {
			s.logger.Warn("snapshot persist failed",
				zap.String("session_id", s.id.String()),
				zap.Uint64("tick", s.tick),
				zap.Error(err))
		}
	}
}

// signal produces this tick's frame signal, falling through to the
// synthetic generator on camera exhaustion and to a neutral signal on
// per-frame perception failures.
func (s *Session) signal(now time.Time) (geometry.FrameSignal, bool) {
	if s.source == nil {
		return s.gen.Next(now), true
	}

	frame, err := s.source.Acquire()
	if err != nil {
		if errors.Is(err, camera.ErrExhausted) {
			s.logger.Warn("camera exhausted, switching to synthetic data permanently",
				zap.String("session_id", s.id.String()))
			s.source = nil
			s.synthetic.Store(true)
		}
		return s.gen.Next(now), true
	}

	set, err := s.extractor.Extract(frame)
	if err != nil {
		if !errors.Is(err, landmarks.ErrNoFace) {
			s.logger.Warn("landmark extraction failed",
				zap.String("session_id", s.id.String()),
				zap.Error(err))
		}
		return geometry.NeutralSignal(now), false
	}
	return geometry.Compute(set, frame.Width, frame.Height, now), false
}

func (s *Session) release() {
	if s.source != nil {
		if err := s.source.Close(); err != nil {
			s.logger.Warn("camera release failed", zap.Error(err))
		}
		s.source = nil
	}
	if s.extractor != nil {
		if err := s.extractor.Close(); err != nil {
			s.logger.Warn("landmark extractor shutdown failed", zap.Error(err))
		}
	}
}
