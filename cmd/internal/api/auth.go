package api

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"pdfgate/cmd/identity"
	"pdfgate/cmd/internal/auth/session"
	"pdfgate/cmd/internal/device"
)

func (h *Handler) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decodeJSON(w, r, h.cfg.MaxBodyBytes, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json", "invalid request body")
		return
	}
	// Missing fields fall through to Verify and fail like any wrong credential.
	email := identity.NormalizeEmail(req.Email)

	ctx := r.Context()
	now := h.now()
	client := clientContext(r, h.cfg.TrustProxy)

	// Throttle before touching the user store.
	if ok := h.throttleLogin(w, r, "ip", ipKey(client), email, now); !ok {
		return
	}
	if email != "" {
		if ok := h.throttleLogin(w, r, "email", email, email, now); !ok {
			return
		}
	}

	u, err := h.verifier.Verify(ctx, email, req.Password, now)
	if err != nil {
		if identity.IsInvalidCredentials(err) {
			h.metrics.login("invalid_credentials")
			h.audit(r, "auth.login.failed", "", "", map[string]any{"email": email, "reason": "invalid_credentials"})
			writeError(w, http.StatusUnauthorized, "invalid_credentials", "invalid credentials")
			return
		}
		h.log.Error("auth.login.verify.fail", "err", err)
		writeError(w, http.StatusInternalServerError, "server_error", "internal error")
		return
	}

	subj := session.Subject{UserID: u.ID, Role: u.Role}
	if !u.Role.IsAdmin() {
		deviceID, ok := device.NormalizeDeviceID(req.DeviceID)
		if !ok {
			h.metrics.login("device_id_required")
			writeError(w, http.StatusBadRequest, "device_id_required", "device_id is required")
			return
		}

		decision, rec, err := h.devices.RegisterOrInspect(ctx, u.ID, deviceID, client.UserAgent, now)
		if err != nil {
			h.log.Error("auth.login.device.fail", "user_id", u.ID, "err", err)
			writeError(w, http.StatusInternalServerError, "server_error", "internal error")
			return
		}
		switch decision {
		case device.DecisionPending:
			h.metrics.login("device_pending")
			h.audit(r, "auth.login.device_gate", u.ID, "", map[string]any{"device": rec.ID, "decision": decision.String()})
			writeError(w, http.StatusForbidden, "device_pending", "this device is awaiting admin approval")
			return
		case device.DecisionRejected:
			h.metrics.login("device_rejected")
			h.audit(r, "auth.login.device_gate", u.ID, "", map[string]any{"device": rec.ID, "decision": decision.String()})
			writeError(w, http.StatusForbidden, "device_rejected", "this device was rejected by an admin")
			return
		}
		subj.DeviceID = deviceID
	}

	issued, err := h.sessions.IssueSession(ctx, now, subj, client)
	if err != nil {
		h.log.Error("auth.login.issue_session.fail", "err", err)
		writeError(w, http.StatusInternalServerError, "server_error", "internal error")
		return
	}

	h.metrics.login("success")
	h.audit(r, "auth.login.success", u.ID, issued.SessionID, map[string]any{"email": email})

	writeJSON(w, http.StatusOK, loginResponse{
		User:    toUserResponse(u),
		Session: toSessionResponse(issued),
	})
}

// throttleLogin consumes one attempt from the limiter for scope and writes a
// 429 when the budget is spent. It reports whether the request may proceed.
func (h *Handler) throttleLogin(w http.ResponseWriter, r *http.Request, scope, key, email string, now time.Time) bool {
	limiter := h.ipLimiter
	if scope == "email" {
		limiter = h.emailLimiter
	}
	if key == "" {
		return true
	}

	ok, retryAfter, err := limiter.Allow(r.Context(), scope+":"+key, now)
	if err != nil {
		// Fail open when the limiter backend is unavailable.
		h.log.Warn("auth.login.throttle_"+scope+".fail", "err", err)
		return true
	}
	if ok {
		return true
	}
	h.metrics.login("rate_limited")
	h.audit(r, "auth.login.rate_limited", "", "", map[string]any{
		"email":         email,
		"scope":         scope,
		"retry_after_s": int64(retryAfter.Seconds()),
	})
	writeRateLimited(w, retryAfter)
	return false
}

func ipKey(c session.ClientContext) string {
	if c.IP == nil {
		return ""
	}
	return c.IP.String()
}

func (h *Handler) handleRefresh(w http.ResponseWriter, r *http.Request) {
	var req refreshRequest
	if err := decodeJSON(w, r, h.cfg.MaxBodyBytes, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json", "invalid request body")
		return
	}
	refreshToken := strings.TrimSpace(req.RefreshToken)
	if refreshToken == "" {
		writeError(w, http.StatusBadRequest, "invalid_request", "refresh_token is required")
		return
	}

	issued, err := h.sessions.RotateRefresh(r.Context(), h.now(), refreshToken, clientContext(r, h.cfg.TrustProxy))
	if err != nil {
		switch {
		case errors.Is(err, session.ErrRefreshReuseDetected):
			h.audit(r, "auth.refresh.reuse_detected", "", "", nil)
			writeError(w, http.StatusUnauthorized, "refresh_reuse_detected", "refresh token reuse detected")
		case errors.Is(err, session.ErrSessionInvalidated):
			writeError(w, http.StatusUnauthorized, "session_invalidated", "session is no longer valid")
		case errors.Is(err, session.ErrSessionExpired), errors.Is(err, session.ErrSessionRevoked), errors.Is(err, session.ErrSessionNotFound):
			writeError(w, http.StatusUnauthorized, "session_not_active", "session not active")
		default:
			h.log.Error("auth.refresh.fail", "err", err)
			writeError(w, http.StatusInternalServerError, "server_error", "internal error")
		}
		return
	}

	h.audit(r, "auth.refresh.success", issued.Subject.UserID, issued.SessionID, nil)
	writeJSON(w, http.StatusOK, refreshResponse{Session: toSessionResponse(issued)})
}

func (h *Handler) handleLogout(w http.ResponseWriter, r *http.Request) {
	claims, _ := claimsFromContext(r.Context())

	if err := h.sessions.RevokeSession(r.Context(), h.now(), claims.SessionID); err != nil {
		h.log.Error("auth.logout.fail", "err", err)
		writeError(w, http.StatusInternalServerError, "server_error", "internal error")
		return
	}

	h.audit(r, "auth.logout", claims.UserID, claims.SessionID, nil)
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleMe(w http.ResponseWriter, r *http.Request) {
	claims, _ := claimsFromContext(r.Context())

	u, err := h.users.GetUserByID(r.Context(), claims.UserID)
	if err != nil {
		if identity.IsNotFound(err) {
			writeError(w, http.StatusUnauthorized, "unauthorized", "user not found")
			return
		}
		h.log.Error("auth.me.fail", "err", err)
		writeError(w, http.StatusInternalServerError, "server_error", "internal error")
		return
	}

	writeJSON(w, http.StatusOK, meResponse{User: toUserResponse(u), DeviceID: claims.DeviceID})
}
