package identity

import (
	"sync"

	"github.com/brazeiro63/vovo-achados-portal/types"
)

// Change is a session event fanned out to the listeners of a user.
type Change struct {
	Event     types.AuthEvent
	UserID    string
	SessionID string
	// Session is the refreshed session for USER_UPDATED; nil otherwise.
	Session *types.Session
}

// Hub delivers Changes to listeners registered per user id. Listeners run
// synchronously on the publishing goroutine and must not block.
type Hub struct {
	mu        sync.RWMutex
	next      int
	listeners map[string]map[int]func(Change)
}

func NewHub() *Hub {
	return &Hub{listeners: make(map[string]map[int]func(Change))}
}

// Subscribe registers fn for changes of userID and returns its unsubscribe
// function, which is safe to call more than once.
func (h *Hub) Subscribe(userID string, fn func(Change)) func() {
	h.mu.Lock()
	h.next++
	id := h.next
	if h.listeners[userID] == nil {
		h.listeners[userID] = make(map[int]func(Change))
	}
	h.listeners[userID][id] = fn
	h.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			h.mu.Lock()
			defer h.mu.Unlock()
			delete(h.listeners[userID], id)
			if len(h.listeners[userID]) == 0 {
				delete(h.listeners, userID)
			}
		})
	}
}

func (h *Hub) Publish(change Change) {
	h.mu.RLock()
	fns := make([]func(Change), 0, len(h.listeners[change.UserID]))
	for _, fn := range h.listeners[change.UserID] {
		fns = append(fns, fn)
	}
	h.mu.RUnlock()

	for _, fn := range fns {
		fn(change)
	}
}

// Listeners returns the number of listeners registered for userID.
func (h *Hub) Listeners(userID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.listeners[userID])
}
