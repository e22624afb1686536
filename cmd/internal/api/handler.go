// Package api is pdfgate's HTTP surface: authentication, the user document
// list, view sessions, the content gateway and the admin console endpoints.
package api

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"pdfgate/cmd/identity"
	"pdfgate/cmd/internal/accounts"
	"pdfgate/cmd/internal/auth/session"
	"pdfgate/cmd/internal/device"
	"pdfgate/cmd/internal/library"
	"pdfgate/cmd/internal/ratelimit"
	"pdfgate/cmd/internal/realtime"
	"pdfgate/cmd/internal/viewsession"

	"github.com/go-chi/chi/v5"
)

// Deps are the services behind the API. Feed, IPLimiter, EmailLimiter,
// Auditor and Metrics are optional.
type Deps struct {
	Users    identity.Store
	Verifier *identity.Verifier
	Sessions *session.Service
	Devices  *device.Registry
	Library  *library.Service
	Accounts *accounts.Service
	Views    *viewsession.Issuer
	Gateway  *viewsession.Gateway

	Feed http.Handler

	IPLimiter    ratelimit.Limiter
	EmailLimiter ratelimit.Limiter
	Auditor      Auditor
	Metrics      *Metrics
}

// Handler wires HTTP endpoints to the domain services.
type Handler struct {
	log *slog.Logger
	cfg Config

	users    identity.Store
	verifier *identity.Verifier
	sessions *session.Service
	devices  *device.Registry
	library  *library.Service
	accounts *accounts.Service
	views    *viewsession.Issuer
	gateway  *viewsession.Gateway
	feed     http.Handler

	ipLimiter    ratelimit.Limiter
	emailLimiter ratelimit.Limiter
	auditor      Auditor
	metrics      *Metrics

	now func() time.Time
}

// NewHandler validates deps and fills optional ones with no-op defaults.
func NewHandler(log *slog.Logger, cfg Config, deps Deps) (*Handler, error) {
	if log == nil {
		log = slog.Default()
	}
	switch {
	case deps.Users == nil:
		return nil, errors.New("api: nil user store")
	case deps.Verifier == nil:
		return nil, errors.New("api: nil verifier")
	case deps.Sessions == nil:
		return nil, errors.New("api: nil session service")
	case deps.Devices == nil:
		return nil, errors.New("api: nil device registry")
	case deps.Library == nil:
		return nil, errors.New("api: nil library")
	case deps.Accounts == nil:
		return nil, errors.New("api: nil accounts service")
	case deps.Views == nil || deps.Gateway == nil:
		return nil, errors.New("api: nil view session issuer or gateway")
	}

	h := &Handler{
		log:          log,
		cfg:          cfg.withDefaults(),
		users:        deps.Users,
		verifier:     deps.Verifier,
		sessions:     deps.Sessions,
		devices:      deps.Devices,
		library:      deps.Library,
		accounts:     deps.Accounts,
		views:        deps.Views,
		gateway:      deps.Gateway,
		feed:         deps.Feed,
		ipLimiter:    deps.IPLimiter,
		emailLimiter: deps.EmailLimiter,
		auditor:      deps.Auditor,
		metrics:      deps.Metrics,
		now:          func() time.Time { return time.Now().UTC() },
	}
	if h.ipLimiter == nil {
		h.ipLimiter = ratelimit.NewMemoryLimiter(h.cfg.LoginIPMax, h.cfg.LoginIPWindow)
	}
	if h.emailLimiter == nil {
		h.emailLimiter = ratelimit.NewMemoryLimiter(h.cfg.LoginEmailMax, h.cfg.LoginEmailWindow)
	}
	if h.auditor == nil {
		h.auditor = NewLogAuditor(log)
	}
	return h, nil
}

// Register wires API routes onto r. Admin routes re-check the role server-side
// on every request.
func (h *Handler) Register(r chi.Router) {
	if h == nil || r == nil {
		return
	}

	r.Group(func(r chi.Router) {
		r.Use(h.metrics.Instrument)

		r.Post("/auth/login", h.handleLogin)
		r.Post("/auth/refresh", h.handleRefresh)
		r.With(h.requireAuth).Post("/auth/logout", h.handleLogout)

		r.With(h.requireAuth).Get("/me", h.handleMe)
		r.With(h.requireAuth).Get("/me/documents", h.handleMyDocuments)
		r.With(h.requireAuth).Post("/documents/{shareID}/view", h.handleIssueView)

		r.Get("/content/{token}", h.handleContent)

		r.Route("/admin", func(r chi.Router) {
			r.Use(h.requireAuth, h.requireAdmin)

			r.Get("/devices", h.handleListDevices)
			r.Patch("/devices/{id}", h.handleDeviceAction)
			r.Get("/devices/events", h.handleDeviceFeed)

			r.Get("/users", h.handleListUsers)
			r.Post("/users", h.handleCreateUser)
			r.Delete("/users/{id}", h.handleDeleteUser)

			r.Get("/uploads", h.handleListUploads)
			r.Post("/uploads", h.handleCreateUpload)
			r.Get("/uploads/{id}/shares", h.handleListShares)
			r.Post("/uploads/{id}/shares", h.handleGrantShare)
			r.Delete("/uploads/{id}/shares/{userID}", h.handleRevokeShare)
			r.Post("/uploads/{id}/preview", h.handlePreview)
		})
	})
}

// ---- auth middleware ----

type claimsKey struct{}

func claimsFromContext(ctx context.Context) (session.AccessClaims, bool) {
	c, ok := ctx.Value(claimsKey{}).(session.AccessClaims)
	return c, ok
}

// requireAuth runs the session Transition for the presented access token.
// Browsers cannot set headers on a WebSocket upgrade, so upgrade requests may
// carry the token in the access_token query parameter instead.
func (h *Handler) requireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		tok := bearerToken(r)
		if tok == "" && isWebSocketUpgrade(r) {
			tok = strings.TrimSpace(r.URL.Query().Get("access_token"))
		}
		if tok == "" {
			writeError(w, http.StatusUnauthorized, "unauthorized", "missing bearer token")
			return
		}

		claims, err := h.sessions.Authorize(r.Context(), tok, h.now())
		if err != nil {
			switch {
			case errors.Is(err, session.ErrSessionInvalidated):
				writeError(w, http.StatusUnauthorized, "session_invalidated", "session is no longer valid")
			case errors.Is(err, session.ErrInvalidToken),
				errors.Is(err, session.ErrSessionNotFound),
				errors.Is(err, session.ErrSessionExpired),
				errors.Is(err, session.ErrSessionRevoked):
				writeError(w, http.StatusUnauthorized, "unauthorized", "invalid token")
			default:
				h.log.Error("auth.authorize.fail", "err", err)
				writeError(w, http.StatusInternalServerError, "server_error", "internal error")
			}
			return
		}

		if err := h.sessions.TouchSession(r.Context(), h.now(), claims.SessionID); err != nil {
			h.log.Debug("auth.touch.fail", "session_id", claims.SessionID, "err", err)
		}

		ctx := context.WithValue(r.Context(), claimsKey{}, claims)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (h *Handler) requireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		claims, ok := claimsFromContext(r.Context())
		if !ok {
			writeError(w, http.StatusUnauthorized, "unauthorized", "missing bearer token")
			return
		}
		if !claims.Role.IsAdmin() {
			writeError(w, http.StatusForbidden, "forbidden", "admin role required")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// FeedAuthenticator lets the realtime gateway reuse the claims requireAuth
// already placed on the request.
func FeedAuthenticator(r *http.Request) (string, error) {
	claims, ok := claimsFromContext(r.Context())
	if !ok {
		return "", realtime.ErrUnauthenticated
	}
	if !claims.Role.IsAdmin() {
		return "", realtime.ErrForbidden
	}
	return claims.UserID, nil
}

func (h *Handler) handleDeviceFeed(w http.ResponseWriter, r *http.Request) {
	if h.feed == nil {
		writeError(w, http.StatusServiceUnavailable, "feed_unavailable", "device feed is not enabled")
		return
	}
	h.feed.ServeHTTP(w, r)
}

// ---- request helpers ----

func bearerToken(r *http.Request) string {
	raw := strings.TrimSpace(r.Header.Get("Authorization"))
	if raw == "" {
		return ""
	}
	parts := strings.SplitN(raw, " ", 2)
	if len(parts) != 2 {
		return ""
	}
	if !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}

func isWebSocketUpgrade(r *http.Request) bool {
	return strings.EqualFold(strings.TrimSpace(r.Header.Get("Upgrade")), "websocket")
}

func clientIP(r *http.Request, trustProxy bool) net.IP {
	if trustProxy {
		if ip := parseForwardedIP(r.Header.Get("X-Forwarded-For")); ip != nil {
			return ip
		}
		if ip := net.ParseIP(strings.TrimSpace(r.Header.Get("X-Real-IP"))); ip != nil {
			return ip
		}
	}
	host, _, err := net.SplitHostPort(strings.TrimSpace(r.RemoteAddr))
	if err == nil {
		if ip := net.ParseIP(host); ip != nil {
			return ip
		}
	}
	return nil
}

func parseForwardedIP(raw string) net.IP {
	if raw == "" {
		return nil
	}
	for _, p := range strings.Split(raw, ",") {
		if ip := net.ParseIP(strings.TrimSpace(p)); ip != nil {
			return ip
		}
	}
	return nil
}

func clientContext(r *http.Request, trustProxy bool) session.ClientContext {
	return session.ClientContext{
		UserAgent: strings.TrimSpace(r.UserAgent()),
		IP:        clientIP(r, trustProxy),
	}
}
