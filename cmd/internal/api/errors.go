package api

import (
	"errors"
	"log/slog"
	"net/http"

	"pdfgate/cmd/identity"
	"pdfgate/cmd/internal/auth/session"
	"pdfgate/cmd/internal/device"
	"pdfgate/cmd/internal/library"
	"pdfgate/cmd/internal/viewsession"
)

// errorMapping is one row of the domain error table.
type errorMapping struct {
	kind   error
	status int
	code   string
	msg    string
}

// errorTable is checked in order; the first errors.Is match wins.
var errorTable = []errorMapping{
	{identity.ErrInvalidInput, http.StatusBadRequest, "invalid_request", "invalid request"},
	{device.ErrInvalidInput, http.StatusBadRequest, "invalid_request", "invalid request"},
	{library.ErrInvalidInput, http.StatusBadRequest, "invalid_request", "invalid request"},
	{viewsession.ErrInvalidInput, http.StatusBadRequest, "invalid_request", "invalid request"},

	{identity.ErrInvalidCredentials, http.StatusUnauthorized, "invalid_credentials", "invalid credentials"},
	{session.ErrSessionInvalidated, http.StatusUnauthorized, "session_invalidated", "session is no longer valid"},

	{library.ErrForbidden, http.StatusForbidden, "forbidden", "forbidden"},
	{viewsession.ErrForbidden, http.StatusForbidden, "forbidden", "forbidden"},
	{viewsession.ErrAccessRevoked, http.StatusForbidden, "access_revoked", "access to this document was revoked"},
	{identity.ErrAdminProtected, http.StatusForbidden, "admin_protected", "admin accounts cannot be deleted"},

	{identity.ErrNotFound, http.StatusNotFound, "not_found", "not found"},
	{device.ErrNotFound, http.StatusNotFound, "not_found", "not found"},
	{library.ErrNotFound, http.StatusNotFound, "not_found", "not found"},
	{viewsession.ErrNotFound, http.StatusNotFound, "not_found", "not found"},

	{library.ErrConflict, http.StatusConflict, "share_exists", "document is already shared with this user"},
	{identity.ErrConflict, http.StatusConflict, "email_taken", "email is already registered"},
	{device.ErrCapacity, http.StatusConflict, "device_capacity", "user already has the maximum number of approved devices"},
	{device.ErrInvalidState, http.StatusConflict, "invalid_state", "device is not in a state that allows this action"},

	{viewsession.ErrGone, http.StatusGone, "gone", "link expired or revoked"},
	{library.ErrTooLarge, http.StatusRequestEntityTooLarge, "upload_too_large", "upload exceeds the size limit"},
}

// classify maps err onto the table. ok is false for unexpected errors.
func classify(err error) (errorMapping, bool) {
	for _, m := range errorTable {
		if errors.Is(err, m.kind) {
			return m, true
		}
	}
	return errorMapping{}, false
}

// writeDomainError renders err through the table. Unexpected errors are
// logged under event and surfaced as a generic 500.
func writeDomainError(w http.ResponseWriter, log *slog.Logger, event string, err error) {
	if m, ok := classify(err); ok {
		writeError(w, m.status, m.code, m.msg)
		return
	}
	log.Error(event, "err", err)
	writeError(w, http.StatusInternalServerError, "server_error", "internal error")
}
