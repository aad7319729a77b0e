// Package tracking runs the per-session perception loop: frame
// acquisition, feature extraction, classification and publishing at a
// fixed cadence, with a synthetic fallback when no camera works.
package tracking

import (
	"github.com/google/uuid"

	"github.com/study-eyes/backend/internal/classify"
	"github.com/study-eyes/backend/internal/geometry"
	"github.com/study-eyes/backend/internal/temporal"
)

// Snapshot is the one record published per tick and persisted
// periodically: the frame signal and the classification merged, plus
// provenance flags. All outbound serialization of tracking data goes
// through this type, so the wire shape and the stored shape never
// drift apart.
type Snapshot struct {
	SessionID uuid.UUID `json:"session_id"`
	Tick      uint64    `json:"tick"`

	geometry.FrameSignal
	classify.Classification

	// IsSynthetic marks generated data. Synthetic output is never
	// silently indistinguishable from a real camera feed.
	IsSynthetic bool `json:"is_synthetic"`

	// Features is the aggregated vector the classification was made
	// from. Persisted for retraining, not published.
	Features temporal.FeatureVector `json:"-"`
}

func newSnapshot(sessionID uuid.UUID, tick uint64, sig geometry.FrameSignal, feats temporal.FeatureVector, cls classify.Classification, synthetic bool) Snapshot {
	return Snapshot{
		SessionID:      sessionID,
		Tick:           tick,
		FrameSignal:    sig,
		Classification: cls,
		IsSynthetic:    synthetic,
		Features:       feats,
	}
}
