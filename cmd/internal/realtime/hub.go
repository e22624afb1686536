package realtime

import (
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"pdfgate/cmd/internal/device"
	v1 "pdfgate/shared/contracts/devicefeed/v1"
)

// Hub fans device events out to every connected admin feed.
//
// Join/Leave are safe under concurrent Broadcast, and Broadcast never blocks:
// a subscriber whose queue is full misses the event.
type Hub struct {
	log *slog.Logger

	mu          sync.RWMutex
	subscribers map[string]*Client
	dropped     func()
}

// NewHub constructs a Hub. onDrop, when non-nil, is called for every event
// a slow subscriber misses.
func NewHub(log *slog.Logger, onDrop func()) *Hub {
	if log == nil {
		log = slog.Default()
	}
	return &Hub{
		log:         log,
		subscribers: make(map[string]*Client),
		dropped:     onDrop,
	}
}

// Join adds a client to the fanout set.
func (h *Hub) Join(client *Client) {
	if h == nil || client == nil || client.SessionID == "" {
		return
	}

	h.mu.Lock()
	h.subscribers[client.SessionID] = client
	n := len(h.subscribers)
	h.mu.Unlock()

	h.log.Info("feed.subscriber.join", "session_id", client.SessionID, "user_id", client.UserID, "subscribers", n)
}

// Leave removes a client and signals its shutdown.
func (h *Hub) Leave(sessionID string) {
	if h == nil || sessionID == "" {
		return
	}

	h.mu.Lock()
	cl := h.subscribers[sessionID]
	delete(h.subscribers, sessionID)
	h.mu.Unlock()

	// Removed from the set before closing, so no broadcaster still holds it.
	if cl != nil {
		cl.Close()
	}

	h.log.Info("feed.subscriber.leave", "session_id", sessionID)
}

// Subscribers returns the current subscriber count.
func (h *Hub) Subscribers() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subscribers)
}

// Broadcast enqueues env for every subscriber without blocking.
func (h *Hub) Broadcast(env v1.Envelope) {
	if h == nil {
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	for _, m := range h.subscribers {
		select {
		case <-m.Done():
			continue
		default:
		}

		select {
		case m.Send <- env:
		default:
			if h.dropped != nil {
				h.dropped()
			}
		}
	}
}

// PublishDeviceEvent implements device.Publisher.
func (h *Hub) PublishDeviceEvent(e device.Event) {
	p, err := json.Marshal(deviceEventPayload(e))
	if err != nil {
		h.log.Error("feed.encode.fail", "err", err)
		return
	}
	at := e.At
	if at.IsZero() {
		at = time.Now().UTC()
	}
	h.Broadcast(newEnvelope(v1.TypeDeviceEvent, p, at))
}

func deviceEventPayload(e device.Event) v1.DeviceEventPayload {
	r := e.Device
	return v1.DeviceEventPayload{
		Event:       string(e.Type),
		ID:          r.ID,
		UserID:      r.UserID,
		DeviceID:    r.DeviceID,
		Label:       r.Label,
		Status:      string(r.Status),
		RequestedAt: r.RequestedAt,
		ApprovedAt:  r.ApprovedAt,
		RejectedAt:  r.RejectedAt,
		RevokedAt:   r.RevokedAt,
		LastLoginAt: r.LastLoginAt,
		At:          e.At,
	}
}
