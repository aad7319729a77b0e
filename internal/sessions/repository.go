package sessions

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/study-eyes/backend/internal/classify"
	"github.com/study-eyes/backend/internal/geometry"
	"github.com/study-eyes/backend/internal/tracking"
)

// StudySession is one user's monitored study period.
type StudySession struct {
	ID        uuid.UUID  `json:"id"`
	UserID    uuid.UUID  `json:"user_id"`
	StartedAt time.Time  `json:"started_at"`
	EndedAt   *time.Time `json:"ended_at,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
}

// Repository handles study_sessions and tracking_snapshots persistence.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a study sessions repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// Create opens a new study session for a user.
func (r *Repository) Create(ctx context.Context, userID uuid.UUID) (*StudySession, error) {
	const q = `INSERT INTO study_sessions (id, user_id, started_at)
		VALUES (gen_random_uuid(), $1, NOW())
		RETURNING id, user_id, started_at, ended_at, created_at`
	var s StudySession
	err := r.pool.QueryRow(ctx, q, userID).Scan(&s.ID, &s.UserID, &s.StartedAt, &s.EndedAt, &s.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &s, nil
}

// GetActiveByUser returns the user's open session, or nil when none.
func (r *Repository) GetActiveByUser(ctx context.Context, userID uuid.UUID) (*StudySession, error) {
	const q = `SELECT id, user_id, started_at, ended_at, created_at
		FROM study_sessions WHERE user_id = $1 AND ended_at IS NULL ORDER BY started_at DESC LIMIT 1`
	var s StudySession
	err := r.pool.QueryRow(ctx, q, userID).Scan(&s.ID, &s.UserID, &s.StartedAt, &s.EndedAt, &s.CreatedAt)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	return &s, nil
}

// End closes a session. Idempotent: an already-ended session keeps its
// original ended_at.
func (r *Repository) End(ctx context.Context, sessionID uuid.UUID) error {
	const q = `UPDATE study_sessions SET ended_at = NOW() WHERE id = $1 AND ended_at IS NULL`
	_, err := r.pool.Exec(ctx, q, sessionID)
	return err
}

// ListByUser returns a user's sessions, newest first.
func (r *Repository) ListByUser(ctx context.Context, userID uuid.UUID, limit int) ([]StudySession, error) {
	const q = `SELECT id, user_id, started_at, ended_at, created_at
		FROM study_sessions WHERE user_id = $1 ORDER BY started_at DESC LIMIT $2`
	rows, err := r.pool.Query(ctx, q, userID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []StudySession
	for rows.Next() {
		var s StudySession
		if err := rows.Scan(&s.ID, &s.UserID, &s.StartedAt, &s.EndedAt, &s.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// SaveSnapshot inserts one tracking snapshot row.
func (r *Repository) SaveSnapshot(ctx context.Context, snap *tracking.Snapshot) error {
	const q = `INSERT INTO tracking_snapshots (
			session_id, tick, recorded_at,
			face_detected, gaze_x, gaze_y, gaze_direction,
			head_pitch, head_yaw, head_roll,
			eye_aspect_ratio_left, eye_aspect_ratio_right, is_blinking,
			attention_score_raw, distance_from_screen_cm,
			attention_score, focus_level, distraction_type, fatigue_level,
			eye_strain_level, posture_score,
			attention_confidence, distraction_confidence, fatigue_confidence,
			ai_processed, is_synthetic, features)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14,
			$15, $16, $17, $18, $19, $20, $21, $22, $23, $24, $25, $26, $27)`
	_, err := r.pool.Exec(ctx, q,
		snap.SessionID, snap.Tick, snap.Timestamp,
		snap.FaceDetected, snap.GazeX, snap.GazeY, string(snap.GazeDirection),
		snap.HeadPitch, snap.HeadYaw, snap.HeadRoll,
		snap.EyeAspectRatioLeft, snap.EyeAspectRatioRight, snap.IsBlinking,
		snap.AttentionScoreRaw, snap.DistanceFromScreenCM,
		snap.AttentionScore, string(snap.FocusLevel), string(snap.DistractionType), string(snap.FatigueLevel),
		snap.EyeStrainLevel, snap.PostureScore,
		snap.AttentionConfidence, snap.DistractionConfidence, snap.FatigueConfidence,
		snap.AIProcessed, snap.IsSynthetic, []float64(snap.Features),
	)
	return err
}

// ListRecentSnapshots returns a session's latest snapshots, newest first.
func (r *Repository) ListRecentSnapshots(ctx context.Context, sessionID uuid.UUID, limit int) ([]tracking.Snapshot, error) {
	const q = `SELECT session_id, tick, recorded_at,
			face_detected, gaze_x, gaze_y, gaze_direction,
			head_pitch, head_yaw, head_roll,
			eye_aspect_ratio_left, eye_aspect_ratio_right, is_blinking,
			attention_score_raw, distance_from_screen_cm,
			attention_score, focus_level, distraction_type, fatigue_level,
			eye_strain_level, posture_score,
			attention_confidence, distraction_confidence, fatigue_confidence,
			ai_processed, is_synthetic
		FROM tracking_snapshots WHERE session_id = $1 ORDER BY tick DESC LIMIT $2`
	rows, err := r.pool.Query(ctx, q, sessionID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []tracking.Snapshot
	for rows.Next() {
		var s tracking.Snapshot
		var direction, focus, distraction, fatigue string
		err := rows.Scan(&s.SessionID, &s.Tick, &s.Timestamp,
			&s.FaceDetected, &s.GazeX, &s.GazeY, &direction,
			&s.HeadPitch, &s.HeadYaw, &s.HeadRoll,
			&s.EyeAspectRatioLeft, &s.EyeAspectRatioRight, &s.IsBlinking,
			&s.AttentionScoreRaw, &s.DistanceFromScreenCM,
			&s.AttentionScore, &focus, &distraction, &fatigue,
			&s.EyeStrainLevel, &s.PostureScore,
			&s.AttentionConfidence, &s.DistractionConfidence, &s.FatigueConfidence,
			&s.AIProcessed, &s.IsSynthetic)
		if err != nil {
			return nil, err
		}
		s.GazeDirection = geometry.GazeDirection(direction)
		s.FocusLevel = classify.FocusLevel(focus)
		s.DistractionType = classify.DistractionType(distraction)
		s.FatigueLevel = classify.FatigueLevel(fatigue)
		out = append(out, s)
	}
	return out, rows.Err()
}

// ListLabeledExamples exports persisted AI-processed snapshots as
// training examples for the retrain worker. Synthetic rows are
// included: they follow the same labeling rules as real ones and are
// often the only data available early on. Rows whose stored vector has
// drifted from the expected width are skipped.
func (r *Repository) ListLabeledExamples(ctx context.Context, limit int) ([]classify.Example, error) {
	const q = `SELECT features, focus_level, distraction_type, fatigue_level
		FROM tracking_snapshots WHERE ai_processed ORDER BY id DESC LIMIT $1`
	rows, err := r.pool.Query(ctx, q, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []classify.Example
	for rows.Next() {
		var feats []float64
		var focus, distraction, fatigue string
		if err := rows.Scan(&feats, &focus, &distraction, &fatigue); err != nil {
			return nil, err
		}
		out = append(out, classify.Example{
			Features:    feats,
			Focused:     classify.FocusLevel(focus) != classify.FocusLow,
			Distraction: classify.DistractionType(distraction),
			Fatigue:     classify.FatigueLevel(fatigue),
		})
	}
	return out, rows.Err()
}
