package device

import "time"

// EventType names a registry state change; values double as wire event names.
type EventType string

const (
	EventRequested EventType = "device.requested"
	EventApproved  EventType = "device.approved"
	EventRejected  EventType = "device.rejected"
	EventRevoked   EventType = "device.revoked"
)

// Event is published after a state change commits.
type Event struct {
	Type   EventType
	Device Record
	At     time.Time
}

// Publisher receives registry events. Implementations must not block.
type Publisher interface {
	PublishDeviceEvent(Event)
}

// PublisherFunc adapts a function to Publisher.
type PublisherFunc func(Event)

func (f PublisherFunc) PublishDeviceEvent(e Event) { f(e) }
