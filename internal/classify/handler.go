package classify

import (
	"github.com/gin-gonic/gin"

	"github.com/study-eyes/backend/internal/middleware"
	"github.com/study-eyes/backend/pkg/queue"
	"github.com/study-eyes/backend/pkg/response"
)

// Handler exposes model state and the retrain trigger.
type Handler struct {
	ensemble *Ensemble
	jobs     *queue.Queue
}

// NewHandler creates a models handler.
func NewHandler(ensemble *Ensemble, jobs *queue.Queue) *Handler {
	return &Handler{ensemble: ensemble, jobs: jobs}
}

// Info handles GET /models (current generation metadata).
func (h *Handler) Info(c *gin.Context) {
	response.OK(c, h.ensemble.Info())
}

// Retrain handles POST /models/retrain (enqueue a retrain job for the
// worker). The call returns as soon as the job is queued.
func (h *Handler) Retrain(c *gin.Context) {
	if h.jobs == nil {
		response.ServiceUnavailable(c, "retrain queue unavailable")
		return
	}
	var body struct {
		Reason string `json:"reason"`
	}
	_ = c.ShouldBindJSON(&body)

	requestedBy := ""
	if v, ok := c.Get(middleware.ContextUserEmail); ok {
		requestedBy, _ = v.(string)
	}
	err := h.jobs.EnqueueRetrain(c.Request.Context(), queue.RetrainPayload{
		RequestedBy: requestedBy,
		Reason:      body.Reason,
	})
	if err != nil {
		response.Internal(c, "failed to enqueue retrain job")
		return
	}
	response.OK(c, gin.H{"queued": true})
}
