package api

import (
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"
	"unicode"

	"pdfgate/cmd/internal/viewsession"

	"github.com/go-chi/chi/v5"
)

func (h *Handler) handleMyDocuments(w http.ResponseWriter, r *http.Request) {
	claims, _ := claimsFromContext(r.Context())
	ctx := r.Context()

	docs, err := h.library.ListActiveFor(ctx, claims.UserID)
	if err != nil {
		writeDomainError(w, h.log, "library.list_active.fail", err)
		return
	}

	users := newUserCache(h.users)
	out := make([]documentResponse, 0, len(docs))
	for _, d := range docs {
		sharer, err := users.get(ctx, d.Upload.UploadedBy)
		if err != nil {
			writeDomainError(w, h.log, "library.list_active.fail", err)
			return
		}
		out = append(out, documentResponse{
			ShareID:      d.Share.ID,
			UploadID:     d.Upload.ID,
			OriginalName: d.Upload.OriginalName,
			FileSize:     d.Upload.Size,
			SharedAt:     d.Share.SharedAt,
			SharedBy:     sharer.Name,
		})
	}
	writeJSON(w, http.StatusOK, documentsResponse{Documents: out})
}

func (h *Handler) handleIssueView(w http.ResponseWriter, r *http.Request) {
	claims, _ := claimsFromContext(r.Context())
	shareID := chi.URLParam(r, "shareID")

	issued, err := h.views.Issue(r.Context(), viewsession.Viewer{UserID: claims.UserID, Role: claims.Role}, shareID, h.now())
	if err != nil {
		writeDomainError(w, h.log, "view.issue.fail", err)
		return
	}

	h.metrics.viewSession(issued.Reused)
	h.audit(r, "view.issue", claims.UserID, claims.SessionID, map[string]any{
		"share_id": shareID,
		"reused":   issued.Reused,
	})
	writeJSON(w, http.StatusOK, toViewSessionResponse(issued))
}

// handleContent is the Access Gateway endpoint. The view token is the only
// credential, so no bearer auth applies.
func (h *Handler) handleContent(w http.ResponseWriter, r *http.Request) {
	tok := chi.URLParam(r, "token")

	c, err := h.gateway.Resolve(r.Context(), tok, h.now())
	if err != nil {
		if errors.Is(err, viewsession.ErrGone) {
			h.metrics.content("gone")
			writeError(w, http.StatusGone, "gone", "link expired or revoked")
			return
		}
		h.metrics.content("error")
		h.log.Error("view.content.fail", "err", err)
		writeError(w, http.StatusInternalServerError, "server_error", "internal error")
		return
	}
	defer func() { _ = c.Body.Close() }()

	hdr := w.Header()
	hdr.Set("Content-Type", "application/pdf")
	hdr.Set("Content-Disposition", `inline; filename="`+dispositionName(c.Name)+`"`)
	hdr.Set("Cache-Control", "no-store, no-cache, must-revalidate, private")
	hdr.Set("Pragma", "no-cache")
	hdr.Set("Expires", "0")
	hdr.Set("X-Content-Type-Options", "nosniff")
	hdr.Set("X-Frame-Options", "SAMEORIGIN")
	hdr.Set("Referrer-Policy", "no-referrer")
	if c.Size > 0 {
		hdr.Set("Content-Length", strconv.FormatInt(c.Size, 10))
	}
	w.WriteHeader(http.StatusOK)

	h.metrics.content("served")
	h.auditor.Record(r.Context(), AuditEntry{
		Action:    "view.content",
		UserID:    c.UserID,
		IP:        clientIP(r, h.cfg.TrustProxy),
		UserAgent: strings.TrimSpace(r.UserAgent()),
		Meta:      map[string]any{"share_id": c.ShareID, "upload_id": c.UploadID},
	})

	if _, err := io.Copy(w, c.Body); err != nil {
		h.log.Warn("view.content.copy.fail", "upload_id", c.UploadID, "err", err)
	}
}

// dispositionName reduces a display name to printable ASCII without quotes
// or backslashes so it can sit inside a quoted header parameter.
func dispositionName(name string) string {
	var b strings.Builder
	for _, r := range name {
		switch {
		case r == '"' || r == '\\':
			b.WriteByte('_')
		case r > unicode.MaxASCII || !unicode.IsPrint(r):
			b.WriteByte('_')
		default:
			b.WriteRune(r)
		}
	}
	if b.Len() == 0 {
		return "document.pdf"
	}
	return b.String()
}
