// Package worker processes background retrain jobs: collect persisted
// labeled snapshots, fit a new model generation, mirror the artifacts.
package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/study-eyes/backend/config"
	"github.com/study-eyes/backend/internal/classify"
	"github.com/study-eyes/backend/internal/sessions"
	"github.com/study-eyes/backend/pkg/queue"
	"github.com/study-eyes/backend/pkg/storage"
)

// maxExamples caps how many persisted snapshots one retrain reads.
const maxExamples = 10000

// RetrainProcessor executes model retrain jobs.
type RetrainProcessor struct {
	repo     *sessions.Repository
	ensemble *classify.Ensemble
	store    *classify.Store
	models   config.ModelsConfig
	s3       *storage.S3 // nil disables mirroring
	queue    *queue.Queue
	logger   *zap.Logger
}

// NewRetrainProcessor creates a retrain job processor.
func NewRetrainProcessor(repo *sessions.Repository, ensemble *classify.Ensemble, store *classify.Store, models config.ModelsConfig, s3 *storage.S3, q *queue.Queue, logger *zap.Logger) *RetrainProcessor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RetrainProcessor{
		repo:     repo,
		ensemble: ensemble,
		store:    store,
		models:   models,
		s3:       s3,
		queue:    q,
		logger:   logger,
	}
}

// Process executes one retrain job.
func (p *RetrainProcessor) Process(ctx context.Context, job *queue.Job) error {
	if job.Type != queue.JobTypeRetrain {
		return fmt.Errorf("unknown job type: %s", job.Type)
	}
	var payload queue.RetrainPayload
	if err := json.Unmarshal(job.Payload, &payload); err != nil {
		return fmt.Errorf("unmarshal payload: %w", err)
	}

	examples, err := p.repo.ListLabeledExamples(ctx, maxExamples)
	if err != nil {
		return fmt.Errorf("load examples: %w", err)
	}

	report, err := p.ensemble.Retrain(p.store, p.models, examples)
	if err != nil {
		// Too little data is not a job failure; retrying will not
		// conjure examples. Wait for the next trigger.
		if errors.Is(err, classify.ErrInsufficientExamples) {
			p.logger.Info("retrain skipped",
				zap.Int("examples", len(examples)),
				zap.Int("required", p.models.RetrainMinExamples),
				zap.String("reason", payload.Reason))
			return nil
		}
		return fmt.Errorf("retrain: %w", err)
	}

	p.logger.Info("retrain completed",
		zap.Int("version", p.ensemble.Version()),
		zap.Int("examples", report.Examples),
		zap.Int("holdout", report.Holdout),
		zap.Float64("attention_accuracy", report.AttentionAccuracy),
		zap.Float64("distraction_accuracy", report.DistractionAccuracy),
		zap.Float64("fatigue_accuracy", report.FatigueAccuracy),
		zap.String("requested_by", payload.RequestedBy))

	if p.s3 != nil {
		if err := p.s3.UploadArtifacts(ctx, p.ensemble.Version(), p.store.ArtifactPaths()); err != nil {
			// The new generation is live locally; mirroring is
			// recoverable on the next retrain.
			p.logger.Error("artifact mirror failed", zap.Error(err))
		}
	}
	return nil
}

// Run starts the worker loop: dequeue, process, retry on error.
func (p *RetrainProcessor) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			p.logger.Info("retrain worker stopping")
			return
		default:
		}

		job, _, err := p.queue.Dequeue(ctx)
		if err != nil {
			p.logger.Warn("dequeue error", zap.Error(err))
			time.Sleep(queue.RetryBackoff)
			continue
		}
		if job == nil {
			continue
		}

		p.logger.Debug("processing job", zap.String("job_id", job.ID), zap.String("type", string(job.Type)))
		if err := p.Process(ctx, job); err != nil {
			p.logger.Error("job failed", zap.String("job_id", job.ID), zap.Error(err))
			if reErr := p.queue.Retry(ctx, job); reErr != nil {
				p.logger.Error("retry enqueue failed", zap.Error(reErr))
			}
			time.Sleep(queue.RetryBackoff)
		}
	}
}
