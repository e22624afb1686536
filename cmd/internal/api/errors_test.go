package api

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"pdfgate/cmd/identity"
	"pdfgate/cmd/internal/auth/session"
	"pdfgate/cmd/internal/device"
	"pdfgate/cmd/internal/library"
	"pdfgate/cmd/internal/viewsession"
)

func TestClassify(t *testing.T) {
	t.Parallel()

	cases := []struct {
		err    error
		status int
		code   string
	}{
		{identity.OpError{Op: "x", Kind: identity.ErrInvalidInput}, http.StatusBadRequest, "invalid_request"},
		{identity.OpError{Op: "x", Kind: identity.ErrInvalidCredentials}, http.StatusUnauthorized, "invalid_credentials"},
		{fmt.Errorf("wrap: %w", session.ErrSessionInvalidated), http.StatusUnauthorized, "session_invalidated"},
		{library.OpError{Op: "x", Kind: library.ErrForbidden}, http.StatusForbidden, "forbidden"},
		{viewsession.OpError{Op: "x", Kind: viewsession.ErrAccessRevoked}, http.StatusForbidden, "access_revoked"},
		{identity.OpError{Op: "x", Kind: identity.ErrAdminProtected}, http.StatusForbidden, "admin_protected"},
		{library.NotFoundError{Op: "x", Resource: "upload"}, http.StatusNotFound, "not_found"},
		{identity.NotFoundError{Op: "x", Resource: "user"}, http.StatusNotFound, "not_found"},
		{library.ConflictError{Op: "x"}, http.StatusConflict, "share_exists"},
		{identity.ConflictError{Op: "x", Field: "email"}, http.StatusConflict, "email_taken"},
		{device.CapacityError{UserID: "u", Approved: 2}, http.StatusConflict, "device_capacity"},
		{device.StateError{Op: "x", From: device.StatusPending}, http.StatusConflict, "invalid_state"},
		{viewsession.OpError{Op: "x", Kind: viewsession.ErrGone}, http.StatusGone, "gone"},
		{library.OpError{Op: "x", Kind: library.ErrTooLarge}, http.StatusRequestEntityTooLarge, "upload_too_large"},
	}
	for _, tc := range cases {
		m, ok := classify(tc.err)
		if !ok || m.status != tc.status || m.code != tc.code {
			t.Fatalf("classify(%v)=%+v ok=%v want %d %s", tc.err, m, ok, tc.status, tc.code)
		}
	}

	if _, ok := classify(errors.New("disk on fire")); ok {
		t.Fatalf("unexpected errors must not classify")
	}
}

func TestWriteDomainError_Unexpected(t *testing.T) {
	t.Parallel()

	rec := httptest.NewRecorder()
	writeDomainError(rec, discardLogger(), "test.fail", errors.New("boom"))
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("status=%d", rec.Code)
	}
	if got := rec.Body.String(); got != `{"error":{"code":"server_error","message":"internal error"}}`+"\n" {
		t.Fatalf("body=%s", got)
	}
}

func TestWriteRateLimited_RoundsUp(t *testing.T) {
	t.Parallel()

	rec := httptest.NewRecorder()
	writeRateLimited(rec, 1500*time.Millisecond)
	if rec.Code != http.StatusTooManyRequests || rec.Header().Get("Retry-After") != "2" {
		t.Fatalf("status=%d retry=%q", rec.Code, rec.Header().Get("Retry-After"))
	}
}

func TestDispositionName(t *testing.T) {
	t.Parallel()

	cases := map[string]string{
		"report.pdf":      "report.pdf",
		`a"b\c.pdf`:       "a_b_c.pdf",
		"résumé.pdf":      "r_sum_.pdf",
		"line\nbreak.pdf": "line_break.pdf",
		"":                "document.pdf",
	}
	for in, want := range cases {
		if got := dispositionName(in); got != want {
			t.Fatalf("dispositionName(%q)=%q want %q", in, got, want)
		}
	}
}

func TestClientIP(t *testing.T) {
	t.Parallel()

	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.RemoteAddr = "10.0.0.9:5555"
	r.Header.Set("X-Forwarded-For", "203.0.113.7, 10.0.0.1")

	if got := clientIP(r, false); got.String() != "10.0.0.9" {
		t.Fatalf("untrusted proxy: %v", got)
	}
	if got := clientIP(r, true); got.String() != "203.0.113.7" {
		t.Fatalf("trusted proxy: %v", got)
	}
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}
