package tracking

import (
	"errors"
	"sync"

	"go.uber.org/zap"
)

// ErrAlreadyActive rejects a second tracking session for a user whose
// first is still running. The caller must stop the existing session
// explicitly; sessions are never superseded implicitly.
var ErrAlreadyActive = errors.New("tracking session already active for user")

// Registry holds the running tracking session per user (thread-safe).
type Registry struct {
	mu       sync.RWMutex
	sessions map[string]*Session
	logger   *zap.Logger
}

// NewRegistry creates an empty session registry.
func NewRegistry(logger *zap.Logger) *Registry {
	return &Registry{sessions: make(map[string]*Session), logger: logger}
}

// Start registers and launches a session for its user. Returns
// ErrAlreadyActive without starting anything when the user already has
// one running.
func (reg *Registry) Start(session *Session) error {
	key := session.UserID()
	reg.mu.Lock()
	if reg.sessions[key] != nil {
		reg.mu.Unlock()
		return ErrAlreadyActive
	}
	reg.sessions[key] = session
	reg.mu.Unlock()

	session.Start()

	// A crashed loop must not leave a dead entry blocking the user
	// from starting again.
	go func() {
		<-session.Done()
		reg.remove(key, session)
	}()
	return nil
}

// Stop halts and removes the user's session. Returns false when the
// user has none.
func (reg *Registry) Stop(userID string) bool {
	reg.mu.Lock()
	session := reg.sessions[userID]
	delete(reg.sessions, userID)
	reg.mu.Unlock()
	if session == nil {
		return false
	}
	session.Stop()
	return true
}

// Get returns the user's running session, or nil.
func (reg *Registry) Get(userID string) *Session {
	reg.mu.RLock()
	defer reg.mu.RUnlock()
	return reg.sessions[userID]
}

// ActiveCount reports how many sessions are running.
func (reg *Registry) ActiveCount() int {
	reg.mu.RLock()
	defer reg.mu.RUnlock()
	return len(reg.sessions)
}

// Active returns the running sessions.
func (reg *Registry) Active() []*Session {
	reg.mu.RLock()
	defer reg.mu.RUnlock()
	out := make([]*Session, 0, len(reg.sessions))
	for _, s := range reg.sessions {
		out = append(out, s)
	}
	return out
}

// StopAll halts every session; used on shutdown.
func (reg *Registry) StopAll() {
	reg.mu.Lock()
	sessions := make([]*Session, 0, len(reg.sessions))
	for _, s := range reg.sessions {
		sessions = append(sessions, s)
	}
	reg.sessions = make(map[string]*Session)
	reg.mu.Unlock()

	for _, s := range sessions {
		s.Stop()
	}
	if len(sessions) > 0 {
		reg.logger.Info("stopped all tracking sessions", zap.Int("count", len(sessions)))
	}
}

func (reg *Registry) remove(key string, session *Session) {
	reg.mu.Lock()
	if reg.sessions[key] == session {
		delete(reg.sessions, key)
	}
	reg.mu.Unlock()
}
