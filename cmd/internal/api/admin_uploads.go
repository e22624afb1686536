package api

import (
	"errors"
	"io"
	"net/http"

	"pdfgate/cmd/internal/library"
	"pdfgate/cmd/internal/viewsession"

	"github.com/go-chi/chi/v5"
)

// multipartOverhead leaves room for boundaries and part headers on top of
// the file size limit.
const multipartOverhead = 64 << 10

func (h *Handler) handleListUploads(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	ups, err := h.library.ListUploads(ctx)
	if err != nil {
		writeDomainError(w, h.log, "library.upload.list.fail", err)
		return
	}

	users := newUserCache(h.users)
	out := make([]uploadResponse, 0, len(ups))
	for _, up := range ups {
		u, err := users.get(ctx, up.UploadedBy)
		if err != nil {
			writeDomainError(w, h.log, "library.upload.list.fail", err)
			return
		}
		active := up.ActiveShares
		out = append(out, uploadResponse{
			ID:            up.ID,
			OriginalName:  up.OriginalName,
			Size:          up.Size,
			Digest:        up.Digest,
			UploadedBy:    up.UploadedBy,
			UploaderName:  u.Name,
			UploaderEmail: u.Email,
			ActiveShares:  &active,
			CreatedAt:     up.CreatedAt,
		})
	}
	writeJSON(w, http.StatusOK, uploadsResponse{Uploads: out})
}

// handleCreateUpload streams the "file" part of a multipart body straight
// into the library; nothing is buffered to a temp file.
func (h *Handler) handleCreateUpload(w http.ResponseWriter, r *http.Request) {
	claims, _ := claimsFromContext(r.Context())

	r.Body = http.MaxBytesReader(w, r.Body, h.cfg.UploadMaxBytes+multipartOverhead)
	mr, err := r.MultipartReader()
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "multipart/form-data body is required")
		return
	}

	for {
		part, err := mr.NextPart()
		if errors.Is(err, io.EOF) {
			writeError(w, http.StatusBadRequest, "invalid_request", "file is required")
			return
		}
		if err != nil {
			h.writeUploadError(w, err)
			return
		}
		if part.FormName() != "file" {
			_ = part.Close()
			continue
		}

		up, shared, err := h.library.CreateUpload(r.Context(), library.UploadInput{
			UploaderID:  claims.UserID,
			Name:        part.FileName(),
			ContentType: part.Header.Get("Content-Type"),
			Body:        part,
			Now:         h.now(),
		})
		_ = part.Close()
		if err != nil {
			h.writeUploadError(w, err)
			return
		}

		h.audit(r, "admin.upload.create", claims.UserID, claims.SessionID, map[string]any{
			"upload_id":   up.ID,
			"size":        up.Size,
			"shared_with": shared,
		})
		writeJSON(w, http.StatusCreated, uploadResponse{
			ID:           up.ID,
			OriginalName: up.OriginalName,
			Size:         up.Size,
			Digest:       up.Digest,
			UploadedBy:   up.UploadedBy,
			SharedWith:   &shared,
			CreatedAt:    up.CreatedAt,
		})
		return
	}
}

func (h *Handler) writeUploadError(w http.ResponseWriter, err error) {
	var mbe *http.MaxBytesError
	if errors.As(err, &mbe) {
		writeError(w, http.StatusRequestEntityTooLarge, "upload_too_large", "upload exceeds the size limit")
		return
	}
	writeDomainError(w, h.log, "library.upload.create.fail", err)
}

func (h *Handler) handleListShares(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	shares, err := h.library.ListForUpload(ctx, chi.URLParam(r, "id"))
	if err != nil {
		writeDomainError(w, h.log, "library.share.list.fail", err)
		return
	}

	users := newUserCache(h.users)
	out := make([]shareResponse, 0, len(shares))
	for _, sh := range shares {
		u, err := users.get(ctx, sh.UserID)
		if err != nil {
			writeDomainError(w, h.log, "library.share.list.fail", err)
			return
		}
		out = append(out, toShareResponse(sh, u))
	}
	writeJSON(w, http.StatusOK, sharesResponse{Shares: out})
}

func (h *Handler) handleGrantShare(w http.ResponseWriter, r *http.Request) {
	var req grantShareRequest
	if err := decodeJSON(w, r, h.cfg.MaxBodyBytes, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json", "invalid request body")
		return
	}

	ctx := r.Context()
	uploadID := chi.URLParam(r, "id")
	sh, err := h.library.Grant(ctx, uploadID, req.UserID, h.now())
	if err != nil {
		writeDomainError(w, h.log, "library.share.grant.fail", err)
		return
	}

	claims, _ := claimsFromContext(ctx)
	h.audit(r, "admin.share.grant", claims.UserID, claims.SessionID, map[string]any{
		"share_id":       sh.ID,
		"upload_id":      uploadID,
		"target_user_id": sh.UserID,
	})

	u, err := newUserCache(h.users).get(ctx, sh.UserID)
	if err != nil {
		writeDomainError(w, h.log, "library.share.grant.fail", err)
		return
	}
	writeJSON(w, http.StatusCreated, toShareResponse(sh, u))
}

func (h *Handler) handleRevokeShare(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	uploadID := chi.URLParam(r, "id")
	userID := chi.URLParam(r, "userID")

	sh, err := h.library.Revoke(ctx, uploadID, userID, h.now())
	if err != nil {
		writeDomainError(w, h.log, "library.share.revoke.fail", err)
		return
	}

	claims, _ := claimsFromContext(ctx)
	h.audit(r, "admin.share.revoke", claims.UserID, claims.SessionID, map[string]any{
		"share_id":       sh.ID,
		"upload_id":      uploadID,
		"target_user_id": userID,
	})
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handlePreview(w http.ResponseWriter, r *http.Request) {
	claims, _ := claimsFromContext(r.Context())
	uploadID := chi.URLParam(r, "id")

	issued, err := h.views.IssuePreview(r.Context(), viewsession.Viewer{UserID: claims.UserID, Role: claims.Role}, uploadID, h.now())
	if err != nil {
		writeDomainError(w, h.log, "view.preview.fail", err)
		return
	}

	h.metrics.viewSession(issued.Reused)
	h.audit(r, "view.preview", claims.UserID, claims.SessionID, map[string]any{
		"upload_id": uploadID,
		"reused":    issued.Reused,
	})
	writeJSON(w, http.StatusOK, toViewSessionResponse(issued))
}
