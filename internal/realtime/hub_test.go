package realtime

import (
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeSubscriber struct {
	mu       sync.Mutex
	handlers map[uuid.UUID]func(event string, payload []byte)
	canceled map[uuid.UUID]bool
}

func newFakeSubscriber() *fakeSubscriber {
	return &fakeSubscriber{
		handlers: make(map[uuid.UUID]func(event string, payload []byte)),
		canceled: make(map[uuid.UUID]bool),
	}
}

func (f *fakeSubscriber) SubscribeSession(sessionID uuid.UUID, handler func(event string, payload []byte)) (func(), error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.handlers[sessionID] = handler
	return func() {
		f.mu.Lock()
		f.canceled[sessionID] = true
		f.mu.Unlock()
	}, nil
}

func (f *fakeSubscriber) fire(sessionID uuid.UUID, event string, payload []byte) {
	f.mu.Lock()
	handler := f.handlers[sessionID]
	f.mu.Unlock()
	if handler != nil {
		handler(event, payload)
	}
}

func newTestClient(sessionID uuid.UUID) *Client {
	return &Client{
		ID:        uuid.New().String(),
		sessionID: sessionID,
		send:      make(chan WSMessage, 8),
	}
}

func drain(c *Client) []WSMessage {
	var out []WSMessage
	for {
		select {
		case msg := <-c.send:
			out = append(out, msg)
		default:
			return out
		}
	}
}

// A subscription created when a room opens must keep delivering to that
// room even after the client that opened it moves elsewhere.
func TestRedisSubscriptionPinnedToSession(t *testing.T) {
	sub := newFakeSubscriber()
	hub := NewHub(zap.NewNop(), nil, sub)

	sessionA := uuid.New()
	sessionB := uuid.New()

	mover := newTestClient(sessionA)
	hub.Register(mover) // opens session A's subscription
	watcher := newTestClient(sessionA)
	hub.Register(watcher)

	// The first client switches to another session's feed.
	hub.Unregister(mover)
	mover.sessionID = sessionB
	hub.Register(mover)

	sub.fire(sessionA, "tracking_update", []byte(`{"tick":1}`))

	got := drain(watcher)
	require.Len(t, got, 1)
	assert.Equal(t, "tracking_update", got[0].Event)
	assert.JSONEq(t, `{"tick":1}`, string(got[0].Data))
	assert.Empty(t, drain(mover), "session B client must not see session A events")
}

func TestRedisSubscriptionCanceledWithLastWatcher(t *testing.T) {
	sub := newFakeSubscriber()
	hub := NewHub(zap.NewNop(), nil, sub)

	sessionID := uuid.New()
	first := newTestClient(sessionID)
	second := newTestClient(sessionID)
	hub.Register(first)
	hub.Register(second)

	hub.Unregister(first)
	sub.mu.Lock()
	canceled := sub.canceled[sessionID]
	sub.mu.Unlock()
	assert.False(t, canceled, "subscription lives while a watcher remains")

	hub.Unregister(second)
	sub.mu.Lock()
	canceled = sub.canceled[sessionID]
	sub.mu.Unlock()
	assert.True(t, canceled)
	assert.Zero(t, hub.WatcherCount(sessionID))
}

// Broadcasts run concurrently with clients connecting and disconnecting;
// the watcher set must be snapshotted so the room map is never iterated
// while mutated.
func TestBroadcastDuringRegisterChurn(t *testing.T) {
	hub := NewHub(zap.NewNop(), nil, nil)
	sessionID := uuid.New()

	stay := newTestClient(sessionID)
	hub.Register(stay)

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		for i := 0; i < 500; i++ {
			c := newTestClient(sessionID)
			hub.Register(c)
			hub.Unregister(c)
		}
	}()
	go func() {
		defer wg.Done()
		for i := 0; i < 500; i++ {
			hub.BroadcastToSession(sessionID, "tracking_update", map[string]int{"tick": i})
			if i%16 == 0 {
				drain(stay)
			}
		}
	}()
	wg.Wait()

	assert.Equal(t, 1, hub.WatcherCount(sessionID))
	for _, msg := range drain(stay) {
		assert.Equal(t, "tracking_update", msg.Event)
	}
}
