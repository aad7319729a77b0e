package sessions

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/study-eyes/backend/config"
	"github.com/study-eyes/backend/internal/camera"
	"github.com/study-eyes/backend/internal/landmarks"
	"github.com/study-eyes/backend/internal/tracking"
)

// DeviceFactory builds the per-session frame source and landmark
// extractor. A nil source is a valid result: the session then runs on
// synthetic data from the first tick.
type DeviceFactory func(ctx context.Context) (*camera.Source, landmarks.Extractor)

// Service owns session lifecycle: one DB row and one tracking loop per
// active session, started and stopped together.
type Service struct {
	repo     *Repository
	registry *tracking.Registry

	classifier tracking.Classifier
	hub        tracking.Broadcaster
	devices    DeviceFactory
	tracking   config.TrackingConfig
	logger     *zap.Logger
}

// NewService creates the session lifecycle service.
func NewService(repo *Repository, registry *tracking.Registry, classifier tracking.Classifier, hub tracking.Broadcaster, devices DeviceFactory, trackingCfg config.TrackingConfig, logger *zap.Logger) *Service {
	return &Service{
		repo:       repo,
		registry:   registry,
		classifier: classifier,
		hub:        hub,
		devices:    devices,
		tracking:   trackingCfg,
		logger:     logger,
	}
}

// StartTracking opens a study session and launches its tracking loop.
// A user with a live loop is rejected with tracking.ErrAlreadyActive.
func (s *Service) StartTracking(ctx context.Context, userID string) (uuid.UUID, error) {
	uid, err := uuid.Parse(userID)
	if err != nil {
		return uuid.Nil, fmt.Errorf("invalid user id: %w", err)
	}
	if s.registry.Get(userID) != nil {
		return uuid.Nil, tracking.ErrAlreadyActive
	}

	// A session row left open by a crash has no loop behind it; close
	// it so the new one satisfies the one-active-per-user constraint.
	if stale, err := s.repo.GetActiveByUser(ctx, uid); err != nil {
		return uuid.Nil, fmt.Errorf("check active session: %w", err)
	} else if stale != nil {
		s.logger.Warn("closing stale session",
			zap.String("session_id", stale.ID.String()),
			zap.String("user_id", userID))
		if err := s.repo.End(ctx, stale.ID); err != nil {
			return uuid.Nil, fmt.Errorf("close stale session: %w", err)
		}
	}

	row, err := s.repo.Create(ctx, uid)
	if err != nil {
		return uuid.Nil, fmt.Errorf("create session: %w", err)
	}

	source, extractor := s.devices(ctx)
	sess := tracking.NewSession(tracking.SessionConfig{
		SessionID:  row.ID,
		UserID:     userID,
		Source:     source,
		Extractor:  extractor,
		Classifier: s.classifier,
		Hub:        s.hub,
		Store:      s.repo,
		Tracking:   s.tracking,
		Logger:     s.logger,
	})
	if err := s.registry.Start(sess); err != nil {
		if endErr := s.repo.End(ctx, row.ID); endErr != nil {
			s.logger.Warn("end orphaned session", zap.Error(endErr))
		}
		return uuid.Nil, err
	}
	return row.ID, nil
}

// StopTracking stops the user's loop and closes the session row.
// Returns false when the user has no active session.
func (s *Service) StopTracking(ctx context.Context, userID string) (uuid.UUID, bool) {
	sess := s.registry.Get(userID)
	if sess == nil {
		return uuid.Nil, false
	}
	sessionID := sess.ID()
	s.registry.Stop(userID)
	if err := s.repo.End(ctx, sessionID); err != nil {
		s.logger.Warn("end session",
			zap.String("session_id", sessionID.String()),
			zap.Error(err))
	}
	return sessionID, true
}

// Shutdown stops every live loop and closes their rows.
func (s *Service) Shutdown(ctx context.Context) {
	for _, sess := range s.registry.Active() {
		id := sess.ID()
		s.registry.Stop(sess.UserID())
		if err := s.repo.End(ctx, id); err != nil {
			s.logger.Warn("end session on shutdown",
				zap.String("session_id", id.String()),
				zap.Error(err))
		}
	}
}
