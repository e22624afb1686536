package realtime

import (
	"encoding/json"
	"testing"
	"time"

	"pdfgate/cmd/internal/device"
	v1 "pdfgate/shared/contracts/devicefeed/v1"
)

func TestHub_PublishDeviceEventFansOut(t *testing.T) {
	t.Parallel()

	h := NewHub(nil, nil)
	a := NewClient("admin-a", "s-a", 4)
	b := NewClient("admin-b", "s-b", 4)
	h.Join(a)
	h.Join(b)

	at := time.Date(2024, 4, 1, 12, 0, 0, 0, time.UTC)
	h.PublishDeviceEvent(device.Event{
		Type: device.EventRequested,
		Device: device.Record{
			ID: "rec-1", UserID: "u-1", DeviceID: "laptop", Label: "Chrome 120 on macOS",
			Status: device.StatusPending, RequestedAt: at,
		},
		At: at,
	})

	for _, c := range []*Client{a, b} {
		select {
		case env := <-c.Send:
			if env.Type != v1.TypeDeviceEvent || env.V != v1.Version {
				t.Fatalf("envelope=%+v", env)
			}
			var p v1.DeviceEventPayload
			if err := json.Unmarshal(env.Payload, &p); err != nil {
				t.Fatalf("payload: %v", err)
			}
			if p.Event != "device.requested" || p.ID != "rec-1" || p.Status != "PENDING" || p.DeviceID != "laptop" {
				t.Fatalf("payload=%+v", p)
			}
		default:
			t.Fatalf("client %s got nothing", c.SessionID)
		}
	}
}

func TestHub_BroadcastDropsForSlowSubscribers(t *testing.T) {
	t.Parallel()

	drops := 0
	h := NewHub(nil, func() { drops++ })
	c := NewClient("admin", "s-1", 1)
	h.Join(c)

	env := newEnvelope(v1.TypePong, json.RawMessage(`{}`), time.Now())
	h.Broadcast(env)
	h.Broadcast(env)
	if drops != 1 {
		t.Fatalf("drops=%d", drops)
	}

	h.Leave("s-1")
	select {
	case <-c.Done():
	default:
		t.Fatalf("Leave must close the client")
	}
	if h.Subscribers() != 0 {
		t.Fatalf("subscribers=%d", h.Subscribers())
	}
	h.Broadcast(env)
	if drops != 1 {
		t.Fatalf("left client still received: drops=%d", drops)
	}
}
