package viewsession

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"pdfgate/cmd/identity"
	"pdfgate/cmd/identity/ids"
	"pdfgate/cmd/internal/library"
	"pdfgate/cmd/security/token"
)

// Library is the slice of library.Service the issuer and gateway need.
type Library interface {
	GetShare(ctx context.Context, id string) (library.Share, error)
	GetUpload(ctx context.Context, id string) (library.Upload, error)
	EnsureSelfShare(ctx context.Context, uploadID, adminID string, now time.Time) (library.Share, error)
}

// Viewer is the authenticated caller asking for a view session.
type Viewer struct {
	UserID string
	Role   identity.Role
}

// Issued is the outcome of Issue. Reused is true when an existing token was
// handed out again.
type Issued struct {
	Session Session
	Reused  bool
}

// Issuer is the View Session Issuer.
type Issuer struct {
	cfg     Config
	store   Store
	library Library
	log     *slog.Logger
}

func NewIssuer(cfg Config, store Store, lib Library, log *slog.Logger) *Issuer {
	if log == nil {
		log = slog.Default()
	}
	return &Issuer{cfg: cfg.withDefaults(), store: store, library: lib, log: log}
}

// Issue returns a view session for the viewer's share, reusing one that is
// still valid under the share's current grant.
func (i *Issuer) Issue(ctx context.Context, viewer Viewer, shareID string, now time.Time) (Issued, error) {
	const op = "viewsession.Issue"

	if strings.TrimSpace(shareID) == "" || strings.TrimSpace(viewer.UserID) == "" {
		return Issued{}, OpError{Op: op, Kind: ErrInvalidInput, Msg: "share id is required"}
	}
	sh, err := i.library.GetShare(ctx, shareID)
	if err != nil {
		if library.IsNotFound(err) {
			return Issued{}, OpError{Op: op, Kind: ErrNotFound, Msg: "share"}
		}
		return Issued{}, err
	}
	return i.issueFor(ctx, op, viewer, sh, now)
}

// IssuePreview lets an admin view any upload through their own self-share.
func (i *Issuer) IssuePreview(ctx context.Context, viewer Viewer, uploadID string, now time.Time) (Issued, error) {
	const op = "viewsession.IssuePreview"

	if !viewer.Role.IsAdmin() {
		return Issued{}, OpError{Op: op, Kind: ErrForbidden}
	}
	if _, err := i.library.GetUpload(ctx, uploadID); err != nil {
		if library.IsNotFound(err) {
			return Issued{}, OpError{Op: op, Kind: ErrNotFound, Msg: "upload"}
		}
		return Issued{}, err
	}
	sh, err := i.library.EnsureSelfShare(ctx, uploadID, viewer.UserID, now)
	if err != nil {
		return Issued{}, err
	}
	return i.issueFor(ctx, op, viewer, sh, now)
}

func (i *Issuer) issueFor(ctx context.Context, op string, viewer Viewer, sh library.Share, now time.Time) (Issued, error) {
	if sh.UserID != viewer.UserID {
		return Issued{}, OpError{Op: op, Kind: ErrForbidden}
	}
	if !sh.Active() {
		return Issued{}, OpError{Op: op, Kind: ErrAccessRevoked}
	}

	now = now.UTC()
	candidate, err := i.mint(sh, now)
	if err != nil {
		return Issued{}, err
	}
	vs, reused, err := i.store.ReuseOrCreate(ctx, candidate, sh.SharedAt, now)
	if err != nil {
		return Issued{}, err
	}

	i.log.Info("view.issue",
		"share_id", sh.ID,
		"user_id", viewer.UserID,
		"view_session_id", vs.ID,
		"reused", reused,
	)
	return Issued{Session: vs, Reused: reused}, nil
}

func (i *Issuer) mint(sh library.Share, now time.Time) (Session, error) {
	id, err := ids.NewULID(now)
	if err != nil {
		return Session{}, err
	}
	tok, err := token.NewOpaque(i.cfg.TokenBytes)
	if err != nil {
		return Session{}, err
	}
	return Session{
		ID:        id,
		Token:     tok,
		ShareID:   sh.ID,
		UserID:    sh.UserID,
		IssuedAt:  now,
		ExpiresAt: now.Add(i.cfg.TTL),
	}, nil
}

// DeleteForUser removes every view session owned by userID.
func (i *Issuer) DeleteForUser(ctx context.Context, userID string) (int, error) {
	return i.store.DeleteForUser(ctx, userID)
}
