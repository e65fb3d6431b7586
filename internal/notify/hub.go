// Package notify fans terminal result events out to the channel group
// owned by each user. Delivery is at most once: no queue, no replay.
package notify

import (
	"sync"

	"judgehub/internal/dispatch/model"
)

const defaultSubscriptionBuffer = 16

// Subscription is one active delivery target for a user.
// Events arrive on C until Close is called.
type Subscription struct {
	userID string
	hub    *Hub

	// C receives result events for the subscribed user.
	C chan model.ResultEvent

	once sync.Once
}

// UserID returns the owning user identifier.
func (s *Subscription) UserID() string {
	return s.userID
}

// Close leaves the channel group and releases the subscription.
func (s *Subscription) Close() {
	s.once.Do(func() {
		s.hub.unsubscribe(s)
		close(s.C)
	})
}

// Hub maps user identifiers to their set of active delivery targets.
// Join and leave are explicit lifecycle events; publishing to a user
// with no targets drops the event.
type Hub struct {
	mu     sync.RWMutex
	groups map[string]map[*Subscription]struct{}
	buffer int
}

// NewHub creates a hub with the default per-subscription buffer.
func NewHub() *Hub {
	return NewHubWithBuffer(defaultSubscriptionBuffer)
}

// NewHubWithBuffer creates a hub with a custom per-subscription buffer.
func NewHubWithBuffer(buffer int) *Hub {
	if buffer <= 0 {
		buffer = 1
	}
	return &Hub{
		groups: make(map[string]map[*Subscription]struct{}),
		buffer: buffer,
	}
}

// Subscribe joins the channel group for userID and returns the new
// delivery target. The caller owns the subscription and must Close it.
func (h *Hub) Subscribe(userID string) *Subscription {
	sub := &Subscription{
		userID: userID,
		hub:    h,
		C:      make(chan model.ResultEvent, h.buffer),
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	group, ok := h.groups[userID]
	if !ok {
		group = make(map[*Subscription]struct{})
		h.groups[userID] = group
	}
	group[sub] = struct{}{}
	return sub
}

func (h *Hub) unsubscribe(sub *Subscription) {
	h.mu.Lock()
	defer h.mu.Unlock()
	group, ok := h.groups[sub.userID]
	if !ok {
		return
	}
	delete(group, sub)
	if len(group) == 0 {
		delete(h.groups, sub.userID)
	}
}

// Publish delivers the event to every active target of userID and
// returns how many targets received it. Targets with a full buffer are
// skipped rather than blocked; zero means the event was dropped.
func (h *Hub) Publish(userID string, event model.ResultEvent) int {
	h.mu.RLock()
	defer h.mu.RUnlock()

	delivered := 0
	for sub := range h.groups[userID] {
		select {
		case sub.C <- event:
			delivered++
		default:
		}
	}
	return delivered
}

// Subscribers returns the number of active targets for userID.
func (h *Hub) Subscribers(userID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.groups[userID])
}
