// Package realtime fans claim events out to every connected viewer of a
// claim.
package realtime

import (
	"sync"

	"go.uber.org/zap"
)

// Event is the envelope delivered to subscribers
type Event struct {
	Name string `json:"event"`
	Data any    `json:"data"`
}

// Subscriber receives events for the claims it has joined. Send must not
// block; it reports false when the event was dropped.
type Subscriber interface {
	ID() string
	Send(Event) bool
}

// Publisher is the write side of the hub used by services
type Publisher interface {
	Publish(claimID, event string, data any)
}

// Hub tracks which subscribers view which claim. Delivery is best-effort:
// a slow subscriber loses events instead of holding up the publisher.
type Hub struct {
	mu     sync.RWMutex
	groups map[string]map[string]Subscriber // claim -> subscriber id -> subscriber
	joined map[string]map[string]struct{}   // subscriber id -> claims
	logger *zap.Logger
}

// NewHub creates an empty hub
func NewHub(logger *zap.Logger) *Hub {
	return &Hub{
		groups: make(map[string]map[string]Subscriber),
		joined: make(map[string]map[string]struct{}),
		logger: logger,
	}
}

// Join adds sub to a claim's group. Joining twice is a no-op.
func (h *Hub) Join(sub Subscriber, claimID string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	group, ok := h.groups[claimID]
	if !ok {
		group = make(map[string]Subscriber)
		h.groups[claimID] = group
	}
	group[sub.ID()] = sub

	claims, ok := h.joined[sub.ID()]
	if !ok {
		claims = make(map[string]struct{})
		h.joined[sub.ID()] = claims
	}
	claims[claimID] = struct{}{}
}

// Leave removes sub from a claim's group. Leaving a group it never joined
// is a no-op.
func (h *Hub) Leave(sub Subscriber, claimID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.leave(sub.ID(), claimID)
}

// LeaveAll removes sub from every group, typically on disconnect
func (h *Hub) LeaveAll(sub Subscriber) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for claimID := range h.joined[sub.ID()] {
		h.leave(sub.ID(), claimID)
	}
	delete(h.joined, sub.ID())
}

func (h *Hub) leave(subID, claimID string) {
	if group, ok := h.groups[claimID]; ok {
		delete(group, subID)
		if len(group) == 0 {
			delete(h.groups, claimID)
		}
	}
	if claims, ok := h.joined[subID]; ok {
		delete(claims, claimID)
		if len(claims) == 0 {
			delete(h.joined, subID)
		}
	}
}

// Publish delivers an event to every current member of the claim's group
func (h *Hub) Publish(claimID, event string, data any) {
	h.PublishCount(claimID, event, data)
}

// PublishCount is Publish that reports how many subscribers accepted the event
func (h *Hub) PublishCount(claimID, event string, data any) int {
	h.mu.RLock()
	defer h.mu.RUnlock()

	ev := Event{Name: event, Data: data}
	delivered := 0
	for id, sub := range h.groups[claimID] {
		if sub.Send(ev) {
			delivered++
			continue
		}
		h.logger.Debug("dropped realtime event",
			zap.String("claim_id", claimID),
			zap.String("subscriber", id),
			zap.String("event", event))
	}
	return delivered
}

// GroupSize returns the number of subscribers viewing a claim
func (h *Hub) GroupSize(claimID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.groups[claimID])
}

// ChannelSubscriber buffers events in a channel
type ChannelSubscriber struct {
	id string
	ch chan Event
}

// NewChannelSubscriber creates a subscriber with the given buffer size
func NewChannelSubscriber(id string, buffer int) *ChannelSubscriber {
	if buffer <= 0 {
		buffer = 1
	}
	return &ChannelSubscriber{id: id, ch: make(chan Event, buffer)}
}

// ID implements Subscriber
func (s *ChannelSubscriber) ID() string { return s.id }

// Send implements Subscriber
func (s *ChannelSubscriber) Send(ev Event) bool {
	select {
	case s.ch <- ev:
		return true
	default:
		return false
	}
}

// Events returns the receive side of the buffer
func (s *ChannelSubscriber) Events() <-chan Event { return s.ch }
