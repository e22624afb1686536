package viewsession

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"time"

	"pdfgate/cmd/internal/library"
	"pdfgate/cmd/internal/storage"
	"pdfgate/cmd/security/token"
)

// Content is a resolved document. The caller must close Body.
type Content struct {
	Body     io.ReadCloser
	Name     string
	Size     int64
	UploadID string
	ShareID  string
	UserID   string
}

// Gateway is the Access Gateway: view token in, bytes out.
type Gateway struct {
	store   Store
	library Library
	blobs   storage.Store
	log     *slog.Logger
}

func NewGateway(store Store, lib Library, blobs storage.Store, log *slog.Logger) *Gateway {
	if log == nil {
		log = slog.Default()
	}
	return &Gateway{store: store, library: lib, blobs: blobs, log: log}
}

// Resolve maps a view token to document content. Every reason a token cannot
// be used yields ErrGone so callers learn nothing about which check failed.
func (g *Gateway) Resolve(ctx context.Context, tok string, now time.Time) (Content, error) {
	const op = "viewsession.Resolve"
	gone := OpError{Op: op, Kind: ErrGone}

	if !token.LooksOpaque(tok, maxTokenLen) {
		return Content{}, gone
	}
	vs, err := g.store.GetByToken(ctx, tok)
	if err != nil {
		if isNotFound(err) {
			return Content{}, gone
		}
		return Content{}, err
	}
	if !vs.ExpiresAt.After(now) {
		return Content{}, gone
	}

	sh, err := g.library.GetShare(ctx, vs.ShareID)
	if err != nil {
		if library.IsNotFound(err) {
			return Content{}, gone
		}
		return Content{}, err
	}
	if !sh.Active() || vs.IssuedAt.Before(sh.SharedAt) {
		return Content{}, gone
	}

	up, err := g.library.GetUpload(ctx, sh.UploadID)
	if err != nil {
		if library.IsNotFound(err) {
			return Content{}, gone
		}
		return Content{}, err
	}

	body, err := g.blobs.Open(ctx, up.StorageKey)
	if err != nil {
		g.log.Error("view.content.storage.fail", "upload_id", up.ID, "err", err)
		return Content{}, err
	}
	return Content{
		Body:     body,
		Name:     up.OriginalName,
		Size:     up.Size,
		UploadID: up.ID,
		ShareID:  sh.ID,
		UserID:   vs.UserID,
	}, nil
}

func isNotFound(err error) bool { return errors.Is(err, ErrNotFound) }
