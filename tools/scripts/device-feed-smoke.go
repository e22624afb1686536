// Package main is a CI-friendly smoke test for the admin device feed.
//
// It validates:
//   - admin login over HTTP
//   - handshake + subprotocol selection
//   - hello/hello_ack
//   - ping/pong
//   - device_event fanout when a user logs in from an unknown device (--user-email)
package main

import (
	"bytes"
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	v1 "pdfgate/shared/contracts/devicefeed/v1"

	"github.com/coder/websocket"
	"github.com/spf13/pflag"
)

const maxReadBytes = 1 << 20 // 1MiB

type feedClient struct {
	conn  *websocket.Conn
	inbox chan v1.Envelope
	errCh chan error
}

func main() {
	var (
		baseURL      = pflag.String("url", "http://127.0.0.1:8080", "pdfgate base URL")
		origin       = pflag.String("origin", "", "Origin header to send on the WebSocket handshake")
		adminEmail   = pflag.String("admin-email", os.Getenv("PDFGATE_SEED_ADMIN_EMAIL"), "admin email")
		adminPass    = pflag.String("admin-password", os.Getenv("PDFGATE_SEED_ADMIN_PASSWORD"), "admin password")
		userEmail    = pflag.String("user-email", "", "optional USER account used to trigger a device request")
		userPassword = pflag.String("user-password", "", "password for --user-email")
		timeout      = pflag.Duration("timeout", 7*time.Second, "per-step timeout")
		verbose      = pflag.BoolP("verbose", "v", false, "verbose output")
	)
	pflag.Parse()

	base, err := url.Parse(strings.TrimRight(*baseURL, "/"))
	if err != nil || (base.Scheme != "http" && base.Scheme != "https") || base.Host == "" {
		fatalf("invalid --url %q", *baseURL)
	}
	if *adminEmail == "" || *adminPass == "" {
		fatalf("--admin-email and --admin-password are required")
	}

	root := context.Background()

	status, body := mustLogin(root, base, *adminEmail, *adminPass, "", *timeout)
	if status != http.StatusOK {
		fatalf("admin login: status=%d body=%s", status, body)
	}
	var login struct {
		Session struct {
			AccessToken string `json:"access_token"`
		} `json:"session"`
	}
	if err := json.Unmarshal(body, &login); err != nil || login.Session.AccessToken == "" {
		fatalf("admin login: no access token in %s", body)
	}

	c := mustConnect(root, feedURL(base), login.Session.AccessToken, *origin, *timeout)
	defer func() { _ = c.conn.Close(websocket.StatusNormalClosure, "bye") }()

	ack := c.mustReadUntilType(root, v1.TypeHelloAck, *timeout)
	var hp v1.HelloAckPayload
	if err := json.Unmarshal(ack.Payload, &hp); err != nil || hp.SessionID == "" {
		fatalf("hello_ack missing session_id: %s", ack.Payload)
	}
	if *verbose {
		fmt.Printf("subscribed: session=%s user=%s\n", hp.SessionID, hp.UserID)
	}

	mustWrite(root, c.conn, v1.Envelope{V: v1.Version, Type: v1.TypePing, ID: "smoke-ping", TS: time.Now().UTC()}, *timeout)
	c.mustReadUntilType(root, v1.TypePong, *timeout)

	if *userEmail != "" {
		deviceID := "smoke-" + randomHex(8)
		status, body := mustLogin(root, base, *userEmail, *userPassword, deviceID, *timeout)
		if status != http.StatusForbidden {
			fatalf("user login from new device: status=%d body=%s (want 403 device_pending)", status, body)
		}

		ev := c.mustReadUntilType(root, v1.TypeDeviceEvent, *timeout)
		var p v1.DeviceEventPayload
		if err := json.Unmarshal(ev.Payload, &p); err != nil {
			fatalf("device_event payload: %v", err)
		}
		if p.DeviceID != deviceID || p.Status != "PENDING" {
			fatalf("device_event mismatch: device=%q status=%q want device=%q status=PENDING", p.DeviceID, p.Status, deviceID)
		}
		if *verbose {
			fmt.Printf("device_event: %s %s label=%q\n", p.Event, p.ID, p.Label)
		}
	}

	fmt.Printf("OK: session=%s\n", hp.SessionID)
}

func feedURL(base *url.URL) string {
	u := *base
	if u.Scheme == "https" {
		u.Scheme = "wss"
	} else {
		u.Scheme = "ws"
	}
	u.Path = strings.TrimRight(u.Path, "/") + "/admin/devices/events"
	return u.String()
}

func mustLogin(parent context.Context, base *url.URL, email, password, deviceID string, stepTimeout time.Duration) (int, []byte) {
	ctx, cancel := context.WithTimeout(parent, stepTimeout)
	defer cancel()

	b, _ := json.Marshal(map[string]string{"email": email, "password": password, "device_id": deviceID})
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, base.String()+"/auth/login", bytes.NewReader(b))
	if err != nil {
		fatalf("login request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "pdfgate-smoke/1 (X11; Linux x86_64) Firefox/128.0")

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		fatalf("login: %v", err)
	}
	defer func() { _ = resp.Body.Close() }()

	var buf bytes.Buffer
	_, _ = buf.ReadFrom(resp.Body)
	return resp.StatusCode, buf.Bytes()
}

func mustConnect(parent context.Context, wsURL, accessToken, origin string, stepTimeout time.Duration) *feedClient {
	ctx, cancel := context.WithTimeout(parent, stepTimeout)
	defer cancel()

	h := http.Header{}
	h.Set("Authorization", "Bearer "+accessToken)
	if strings.TrimSpace(origin) != "" {
		h.Set("Origin", origin)
	}

	conn, resp, err := websocket.Dial(ctx, wsURL, &websocket.DialOptions{
		Subprotocols: []string{v1.Subprotocol},
		HTTPHeader:   h,
	})
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	if err != nil {
		fatalf("connect: %v", err)
	}
	if got := conn.Subprotocol(); got != v1.Subprotocol {
		fatalf("subprotocol mismatch: got=%q want=%q", got, v1.Subprotocol)
	}
	conn.SetReadLimit(maxReadBytes)

	c := &feedClient{
		conn:  conn,
		inbox: make(chan v1.Envelope, 64),
		errCh: make(chan error, 1),
	}
	c.startReadLoop()

	mustWrite(parent, conn, v1.Envelope{
		V:       v1.Version,
		Type:    v1.TypeHello,
		ID:      "smoke-hello",
		TS:      time.Now().UTC(),
		Payload: mustJSON(v1.HelloPayload{Client: "device-feed-smoke"}),
	}, stepTimeout)
	return c
}

func (c *feedClient) startReadLoop() {
	go func() {
		defer close(c.inbox)
		for {
			_, data, err := c.conn.Read(context.Background())
			if err != nil {
				c.fail(err)
				return
			}
			var env v1.Envelope
			if err := json.Unmarshal(data, &env); err != nil {
				c.fail(fmt.Errorf("bad json: %w", err))
				return
			}
			if err := env.Validate(); err != nil {
				c.fail(fmt.Errorf("bad envelope: %w", err))
				return
			}
			select {
			case c.inbox <- env:
			default:
				c.fail(errors.New("inbox overflow: consumer too slow"))
				return
			}
		}
	}()
}

func (c *feedClient) fail(err error) {
	select {
	case c.errCh <- err:
	default:
	}
}

// mustReadUntilType skips unrelated envelopes and fails on error envelopes.
func (c *feedClient) mustReadUntilType(parent context.Context, want string, stepTimeout time.Duration) v1.Envelope {
	ctx, cancel := context.WithTimeout(parent, stepTimeout)
	defer cancel()

	for {
		select {
		case <-ctx.Done():
			fatalf("timeout waiting for %s", want)
		case err := <-c.errCh:
			fatalf("read failed while waiting for %s: %v", want, err)
		case env, ok := <-c.inbox:
			if !ok {
				fatalf("connection closed while waiting for %s", want)
			}
			if env.Type == want {
				return env
			}
			if env.Type == v1.TypeError {
				fatalf("server error while waiting for %s: %s", want, env.Payload)
			}
		}
	}
}

func mustWrite(parent context.Context, conn *websocket.Conn, env v1.Envelope, stepTimeout time.Duration) {
	ctx, cancel := context.WithTimeout(parent, stepTimeout)
	defer cancel()

	b, err := json.Marshal(env)
	if err != nil {
		fatalf("marshal envelope: %v", err)
	}
	if err := conn.Write(ctx, websocket.MessageText, b); err != nil {
		fatalf("write failed: %v", err)
	}
}

func mustJSON(v any) json.RawMessage {
	b, err := json.Marshal(v)
	if err != nil {
		panic(err)
	}
	return b
}

func randomHex(n int) string {
	b := make([]byte, n)
	_, _ = rand.Read(b)
	return hex.EncodeToString(b)
}

func fatalf(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "FAIL: "+format+"\n", args...)
	os.Exit(1)
}
