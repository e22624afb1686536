package library

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"mime"
	"strings"
	"time"

	"pdfgate/cmd/identity"
	"pdfgate/cmd/identity/ids"
	"pdfgate/cmd/internal/storage"
)

// DefaultMaxUploadBytes is the upload ceiling when none is configured (20 MiB).
const DefaultMaxUploadBytes int64 = 20 << 20

const maxOriginalNameLen = 255

var pdfMagic = []byte("%PDF-")

// Directory is the slice of identity.Store the library needs.
type Directory interface {
	GetUserByID(ctx context.Context, id string) (identity.User, error)
	ListUserIDsByRole(ctx context.Context, role identity.Role) ([]string, error)
}

// Service wraps a Store with upload validation, role checks and auto-sharing.
type Service struct {
	store    Store
	blobs    storage.Store
	users    Directory
	log      *slog.Logger
	maxBytes int64
}

func NewService(store Store, blobs storage.Store, users Directory, maxBytes int64, log *slog.Logger) *Service {
	if log == nil {
		log = slog.Default()
	}
	if maxBytes <= 0 {
		maxBytes = DefaultMaxUploadBytes
	}
	return &Service{store: store, blobs: blobs, users: users, log: log, maxBytes: maxBytes}
}

func (s *Service) MaxUploadBytes() int64 { return s.maxBytes }

// UploadInput is one multipart file as received from an admin.
type UploadInput struct {
	UploaderID  string
	Name        string
	ContentType string
	Body        io.Reader
	Now         time.Time
}

// CreateUpload validates and stores a PDF, then shares it with every
// current non-admin user. It returns the upload and how many shares were
// created.
func (s *Service) CreateUpload(ctx context.Context, in UploadInput) (Upload, int, error) {
	const op = "library.CreateUpload"

	if strings.TrimSpace(in.UploaderID) == "" || in.Body == nil {
		return Upload{}, 0, OpError{Op: op, Kind: ErrInvalidInput, Msg: "file is required"}
	}
	if !isPDFContentType(in.ContentType) {
		return Upload{}, 0, OpError{Op: op, Kind: ErrInvalidInput, Msg: "only PDF files are allowed"}
	}

	br := bufio.NewReader(in.Body)
	head, _ := br.Peek(len(pdfMagic))
	if !bytes.Equal(head, pdfMagic) {
		return Upload{}, 0, OpError{Op: op, Kind: ErrInvalidInput, Msg: "file is not a PDF document"}
	}

	now := in.Now
	if now.IsZero() {
		now = time.Now()
	}
	now = now.UTC()
	name := displayName(in.Name)

	obj, err := s.blobs.Put(ctx, name, br, s.maxBytes, now)
	if err != nil {
		if errors.Is(err, storage.ErrTooLarge) {
			return Upload{}, 0, OpError{Op: op, Kind: ErrTooLarge, Msg: "file exceeds the upload limit"}
		}
		return Upload{}, 0, err
	}

	id, err := ids.NewULID(now)
	if err != nil {
		s.discard(obj.Key)
		return Upload{}, 0, err
	}
	up := Upload{
		ID:           id,
		StorageKey:   obj.Key,
		OriginalName: name,
		Size:         obj.Size,
		Digest:       obj.Digest,
		UploadedBy:   in.UploaderID,
		CreatedAt:    now,
	}
	if err := s.store.CreateUpload(ctx, up); err != nil {
		s.discard(obj.Key)
		return Upload{}, 0, err
	}

	userIDs, err := s.users.ListUserIDsByRole(ctx, identity.RoleUser)
	if err != nil {
		return up, 0, err
	}
	shared, err := s.store.GrantUploadToUsers(ctx, up.ID, userIDs, now)
	if err != nil {
		return up, shared, err
	}

	s.log.Info("library.upload.create",
		"upload_id", up.ID,
		"uploaded_by", up.UploadedBy,
		"size", up.Size,
		"shared_with", shared,
	)
	return up, shared, nil
}

func (s *Service) discard(key string) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.blobs.Delete(ctx, key); err != nil {
		s.log.Warn("library.upload.discard.fail", "err", err)
	}
}

func (s *Service) GetUpload(ctx context.Context, id string) (Upload, error) {
	return s.store.GetUpload(ctx, id)
}

func (s *Service) ListUploads(ctx context.Context) ([]UploadSummary, error) {
	return s.store.ListUploads(ctx)
}

func (s *Service) GetShare(ctx context.Context, id string) (Share, error) {
	return s.store.GetShare(ctx, id)
}

// Grant shares an upload with a non-admin user.
func (s *Service) Grant(ctx context.Context, uploadID, userID string, now time.Time) (Share, error) {
	const op = "library.Grant"

	if strings.TrimSpace(uploadID) == "" || strings.TrimSpace(userID) == "" {
		return Share{}, OpError{Op: op, Kind: ErrInvalidInput, Msg: "upload and user are required"}
	}
	u, err := s.users.GetUserByID(ctx, userID)
	if err != nil {
		if identity.IsNotFound(err) {
			return Share{}, notFound(op, "user")
		}
		return Share{}, err
	}
	if u.Role.IsAdmin() {
		return Share{}, OpError{Op: op, Kind: ErrForbidden, Msg: "admins preview through self-shares"}
	}

	sh, err := s.store.Grant(ctx, uploadID, userID, now.UTC())
	if err != nil {
		return Share{}, err
	}
	s.log.Info("library.share.grant", "share_id", sh.ID, "upload_id", uploadID, "user_id", userID)
	return sh, nil
}

func (s *Service) Revoke(ctx context.Context, uploadID, userID string, now time.Time) (Share, error) {
	sh, err := s.store.Revoke(ctx, uploadID, userID, now.UTC())
	if err != nil {
		return Share{}, err
	}
	s.log.Info("library.share.revoke", "share_id", sh.ID, "upload_id", uploadID, "user_id", userID)
	return sh, nil
}

// EnsureSelfShare upserts and reactivates the admin's own share of an upload.
func (s *Service) EnsureSelfShare(ctx context.Context, uploadID, adminID string, now time.Time) (Share, error) {
	return s.store.EnsureSelfShare(ctx, uploadID, adminID, now.UTC())
}

func (s *Service) ListActiveFor(ctx context.Context, userID string) ([]SharedDocument, error) {
	return s.store.ListActiveFor(ctx, userID)
}

func (s *Service) ListForUpload(ctx context.Context, uploadID string) ([]Share, error) {
	return s.store.ListForUpload(ctx, uploadID)
}

// GrantAllUploadsTo shares every existing upload with a newly created user.
func (s *Service) GrantAllUploadsTo(ctx context.Context, userID string, now time.Time) (int, error) {
	return s.store.GrantUploadsToUser(ctx, userID, now.UTC())
}

func (s *Service) DeleteForUser(ctx context.Context, userID string) (int, error) {
	return s.store.DeleteForUser(ctx, userID)
}

func isPDFContentType(ct string) bool {
	mt, _, err := mime.ParseMediaType(ct)
	return err == nil && mt == "application/pdf"
}

// displayName keeps the client's file name for display only; storage keys
// are derived separately.
func displayName(name string) string {
	name = strings.ReplaceAll(name, "\\", "/")
	if i := strings.LastIndex(name, "/"); i >= 0 {
		name = name[i+1:]
	}
	name = strings.Map(func(r rune) rune {
		if r < 0x20 || r == 0x7f {
			return -1
		}
		return r
	}, strings.TrimSpace(name))
	if name == "" {
		return "document.pdf"
	}
	if r := []rune(name); len(r) > maxOriginalNameLen {
		name = string(r[:maxOriginalNameLen])
	}
	return name
}
