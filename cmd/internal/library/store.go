package library

import (
	"context"
	"time"
)

// Store persists uploads and shares. Each (upload, user) pair has at most one
// share row for its whole life; revocation and re-grant update that row.
type Store interface {
	CreateUpload(ctx context.Context, u Upload) error
	GetUpload(ctx context.Context, id string) (Upload, error)
	// ListUploads returns every upload newest first.
	ListUploads(ctx context.Context) ([]UploadSummary, error)
	DeleteUpload(ctx context.Context, id string) error

	GetShare(ctx context.Context, id string) (Share, error)
	GetShareFor(ctx context.Context, uploadID, userID string) (Share, error)

	// Grant creates the pair's share or reactivates a revoked one. An active
	// share yields ConflictError.
	Grant(ctx context.Context, uploadID, userID string, now time.Time) (Share, error)
	// EnsureSelfShare is Grant without the conflict: an active share is
	// returned unchanged.
	EnsureSelfShare(ctx context.Context, uploadID, userID string, now time.Time) (Share, error)
	// Revoke marks the pair's share revoked. Already revoked is a no-op.
	Revoke(ctx context.Context, uploadID, userID string, now time.Time) (Share, error)

	// ListActiveFor returns the user's active shares, newest sharedAt first.
	ListActiveFor(ctx context.Context, userID string) ([]SharedDocument, error)
	// ListForUpload returns every share of an upload, revoked included,
	// newest sharedAt first.
	ListForUpload(ctx context.Context, uploadID string) ([]Share, error)

	// Bulk grants skip pairs that already have a row, active or not.
	GrantUploadToUsers(ctx context.Context, uploadID string, userIDs []string, now time.Time) (int, error)
	GrantUploadsToUser(ctx context.Context, userID string, now time.Time) (int, error)

	DeleteForUser(ctx context.Context, userID string) (int, error)
}
