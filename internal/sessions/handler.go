package sessions

import (
	"errors"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/study-eyes/backend/internal/middleware"
	"github.com/study-eyes/backend/internal/tracking"
	"github.com/study-eyes/backend/pkg/response"
)

// Handler handles the session REST surface.
type Handler struct {
	svc  *Service
	repo *Repository
}

// NewHandler creates a sessions handler.
func NewHandler(svc *Service, repo *Repository) *Handler {
	return &Handler{svc: svc, repo: repo}
}

// Start handles POST /sessions (start tracking for the caller).
func (h *Handler) Start(c *gin.Context) {
	userID := contextUserID(c)
	if userID == "" {
		response.Unauthorized(c, "missing user context")
		return
	}
	sessionID, err := h.svc.StartTracking(c.Request.Context(), userID)
	if err != nil {
		if errors.Is(err, tracking.ErrAlreadyActive) {
			response.Conflict(c, "tracking session already active")
			return
		}
		response.Internal(c, "failed to start session")
		return
	}
	response.Created(c, gin.H{"session_id": sessionID})
}

// Stop handles DELETE /sessions/active (stop the caller's active session).
func (h *Handler) Stop(c *gin.Context) {
	userID := contextUserID(c)
	if userID == "" {
		response.Unauthorized(c, "missing user context")
		return
	}
	sessionID, stopped := h.svc.StopTracking(c.Request.Context(), userID)
	if !stopped {
		response.NotFound(c, "no active session")
		return
	}
	response.OK(c, gin.H{"session_id": sessionID})
}

// Active handles GET /sessions/active (the caller's live session, if any).
func (h *Handler) Active(c *gin.Context) {
	userID := contextUserID(c)
	if userID == "" {
		response.Unauthorized(c, "missing user context")
		return
	}
	sess := h.svc.registry.Get(userID)
	if sess == nil {
		response.NotFound(c, "no active session")
		return
	}
	response.OK(c, gin.H{
		"session_id": sess.ID(),
		"started_at": sess.StartedAt(),
		"synthetic":  sess.Synthetic(),
	})
}

// Live handles GET /sessions/live (admin: every running loop).
func (h *Handler) Live(c *gin.Context) {
	active := h.svc.registry.Active()
	out := make([]gin.H, 0, len(active))
	for _, sess := range active {
		out = append(out, gin.H{
			"session_id": sess.ID(),
			"user_id":    sess.UserID(),
			"started_at": sess.StartedAt(),
			"synthetic":  sess.Synthetic(),
		})
	}
	response.OK(c, gin.H{"sessions": out})
}

// List handles GET /sessions (the caller's session history).
func (h *Handler) List(c *gin.Context) {
	userID := contextUserID(c)
	if userID == "" {
		response.Unauthorized(c, "missing user context")
		return
	}
	uid, err := uuid.Parse(userID)
	if err != nil {
		response.BadRequest(c, "invalid user id")
		return
	}
	limit := queryInt(c, "limit", 20, 100)
	list, err := h.repo.ListByUser(c.Request.Context(), uid, limit)
	if err != nil {
		response.Internal(c, "failed to list sessions")
		return
	}
	response.OK(c, gin.H{"sessions": list})
}

// Snapshots handles GET /sessions/:id/snapshots (recent persisted
// snapshots for one session).
func (h *Handler) Snapshots(c *gin.Context) {
	sessionID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid session id")
		return
	}
	limit := queryInt(c, "limit", 100, 1000)
	list, err := h.repo.ListRecentSnapshots(c.Request.Context(), sessionID, limit)
	if err != nil {
		response.Internal(c, "failed to list snapshots")
		return
	}
	response.OK(c, gin.H{"snapshots": list})
}

func contextUserID(c *gin.Context) string {
	v, ok := c.Get(middleware.ContextUserID)
	if !ok {
		return ""
	}
	switch id := v.(type) {
	case uuid.UUID:
		return id.String()
	case string:
		return id
	default:
		return ""
	}
}

func queryInt(c *gin.Context, key string, def, max int) int {
	n, err := strconv.Atoi(c.DefaultQuery(key, strconv.Itoa(def)))
	if err != nil || n <= 0 {
		return def
	}
	if n > max {
		return max
	}
	return n
}
