package realtime

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"pdfgate/cmd/internal/device"
	v1 "pdfgate/shared/contracts/devicefeed/v1"

	"github.com/coder/websocket"
)

func testGatewayConfig() GatewayConfig {
	return GatewayConfig{
		OriginRequired:  true,
		AllowedOrigins:  []string{"http://localhost"},
		WriteTimeout:    2 * time.Second,
		ReadIdleTimeout: 10 * time.Second,
		SendQueueSize:   wsMinSendQueueSize,
		HeartbeatEvery:  time.Minute,
		RateEvents:      20,
		RateWindow:      time.Second,
	}
}

func bearerAuth(r *http.Request) (string, error) {
	switch r.Header.Get("Authorization") {
	case "Bearer admin":
		return "admin-1", nil
	case "Bearer user":
		return "", fmt.Errorf("role: %w", ErrForbidden)
	default:
		return "", ErrUnauthenticated
	}
}

func startFeed(t *testing.T) (*httptest.Server, *Hub) {
	t.Helper()
	hub := NewHub(nil, nil)
	gw := NewWSGateway(nil, hub, bearerAuth, testGatewayConfig())
	ts := httptest.NewServer(gw)
	t.Cleanup(ts.Close)
	return ts, hub
}

func dialFeed(ctx context.Context, t *testing.T, baseURL, origin, bearer string) (*websocket.Conn, *http.Response, error) {
	t.Helper()
	h := http.Header{}
	if origin != "" {
		h.Set("Origin", origin)
	}
	if bearer != "" {
		h.Set("Authorization", "Bearer "+bearer)
	}
	return websocket.Dial(ctx, "ws"+strings.TrimPrefix(baseURL, "http"), &websocket.DialOptions{
		Subprotocols: []string{v1.Subprotocol},
		HTTPHeader:   h,
	})
}

func send(ctx context.Context, t *testing.T, c *websocket.Conn, typ string) {
	t.Helper()
	b, _ := json.Marshal(v1.Envelope{V: v1.Version, Type: typ, ID: "c-1", TS: time.Now().UTC(), Payload: json.RawMessage(`{}`)})
	if err := c.Write(ctx, websocket.MessageText, b); err != nil {
		t.Fatalf("write %s: %v", typ, err)
	}
}

func recv(ctx context.Context, t *testing.T, c *websocket.Conn) v1.Envelope {
	t.Helper()
	_, data, err := c.Read(ctx)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	var env v1.Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		t.Fatalf("decode: %v", err)
	}
	return env
}

func TestWSGateway_RejectsBeforeUpgrade(t *testing.T) {
	t.Parallel()

	ts, _ := startFeed(t)
	cases := []struct {
		name   string
		origin string
		bearer string
		want   int
	}{
		{"missing origin", "", "admin", http.StatusForbidden},
		{"foreign origin", "http://evil.example", "admin", http.StatusForbidden},
		{"no token", "http://localhost", "", http.StatusUnauthorized},
		{"non-admin", "http://localhost", "user", http.StatusForbidden},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()

			conn, resp, err := dialFeed(ctx, t, ts.URL, tc.origin, tc.bearer)
			if err == nil {
				_ = conn.Close(websocket.StatusNormalClosure, "")
				t.Fatalf("expected handshake failure")
			}
			if resp == nil || resp.StatusCode != tc.want {
				t.Fatalf("expected %d, got resp=%v err=%v", tc.want, resp, err)
			}
		})
	}
}

func TestWSGateway_HelloThenDeviceEvents(t *testing.T) {
	t.Parallel()

	ts, hub := startFeed(t)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	conn, _, err := dialFeed(ctx, t, ts.URL, "http://localhost", "admin")
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close(websocket.StatusNormalClosure, "")

	send(ctx, t, conn, v1.TypeHello)
	ack := recv(ctx, t, conn)
	if ack.Type != v1.TypeHelloAck {
		t.Fatalf("expected hello_ack, got %+v", ack)
	}
	var ap v1.HelloAckPayload
	_ = json.Unmarshal(ack.Payload, &ap)
	if ap.UserID != "admin-1" || len(ap.SessionID) != 26 {
		t.Fatalf("ack payload=%+v", ap)
	}

	deadline := time.Now().Add(5 * time.Second)
	for hub.Subscribers() == 0 {
		if time.Now().After(deadline) {
			t.Fatalf("subscriber never joined")
		}
		time.Sleep(10 * time.Millisecond)
	}

	now := time.Now().UTC()
	hub.PublishDeviceEvent(device.Event{
		Type:   device.EventApproved,
		Device: device.Record{ID: "rec-9", UserID: "u-9", DeviceID: "phone", Status: device.StatusApproved, RequestedAt: now, ApprovedAt: &now},
		At:     now,
	})
	ev := recv(ctx, t, conn)
	if ev.Type != v1.TypeDeviceEvent {
		t.Fatalf("expected device_event, got %+v", ev)
	}
	var p v1.DeviceEventPayload
	_ = json.Unmarshal(ev.Payload, &p)
	if p.Event != "device.approved" || p.ID != "rec-9" || p.ApprovedAt == nil {
		t.Fatalf("payload=%+v", p)
	}

	send(ctx, t, conn, v1.TypePing)
	if pong := recv(ctx, t, conn); pong.Type != v1.TypePong {
		t.Fatalf("expected pong, got %+v", pong)
	}

	send(ctx, t, conn, v1.TypeDeviceEvent)
	if e := recv(ctx, t, conn); e.Type != v1.TypeError {
		t.Fatalf("expected error for client-sent device_event, got %+v", e)
	}
}

func TestWSGateway_LeavesHubOnClose(t *testing.T) {
	t.Parallel()

	ts, hub := startFeed(t)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	conn, _, err := dialFeed(ctx, t, ts.URL, "http://localhost", "admin")
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	send(ctx, t, conn, v1.TypeHello)
	_ = recv(ctx, t, conn)
	_ = conn.Close(websocket.StatusNormalClosure, "done")

	deadline := time.Now().Add(5 * time.Second)
	for hub.Subscribers() != 0 {
		if time.Now().After(deadline) {
			t.Fatalf("subscriber not removed after close")
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestLoadGatewayConfigFromEnv(t *testing.T) {
	t.Setenv("PDFGATE_WS_ALLOWED_ORIGINS", "https://admin.example.com, http://localhost:3000")
	t.Setenv("PDFGATE_WS_SEND_QUEUE", "4")
	t.Setenv("PDFGATE_WS_ORIGIN_REQUIRED", "false")

	c := LoadGatewayConfigFromEnv()
	if len(c.AllowedOrigins) != 2 || c.AllowedOrigins[1] != "http://localhost:3000" {
		t.Fatalf("origins=%v", c.AllowedOrigins)
	}
	if c.SendQueueSize != wsMinSendQueueSize {
		t.Fatalf("send queue=%d", c.SendQueueSize)
	}
	if c.OriginRequired {
		t.Fatalf("origin required should be false")
	}
	if got := deriveOriginPatternsFromAllowedOrigins(c.AllowedOrigins); len(got) != 2 || got[0] != "admin.example.com" || got[1] != "localhost" {
		t.Fatalf("patterns=%v", got)
	}
}
