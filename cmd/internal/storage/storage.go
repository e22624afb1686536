// Package storage is the blob collaborator behind uploads. Keys are opaque
// to every other package and never leave the server.
package storage

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/afero"
	"github.com/zeebo/blake3"
)

var (
	ErrTooLarge   = errors.New("object too large")
	ErrNotFound   = errors.New("object not found")
	ErrInvalidKey = errors.New("invalid object key")
)

// Object describes a stored blob. Digest is the BLAKE3-256 hex of the bytes.
type Object struct {
	Key    string
	Size   int64
	Digest string
}

// Store is the storage collaborator.
type Store interface {
	// Put stores at most maxBytes from r under a fresh key derived from name
	// and the upload instant at.
	Put(ctx context.Context, name string, r io.Reader, maxBytes int64, at time.Time) (Object, error)
	Open(ctx context.Context, key string) (io.ReadCloser, error)
	Delete(ctx context.Context, key string) error
}

// FSStore keeps blobs on an afero filesystem.
type FSStore struct {
	fs afero.Fs
}

// NewFSStore wraps fs. Production passes a BasePathFs rooted at the storage
// dir; tests pass afero.NewMemMapFs().
func NewFSStore(fs afero.Fs) *FSStore {
	return &FSStore{fs: fs}
}

// NewDirStore roots an FSStore at dir, creating it if needed.
func NewDirStore(dir string) (*FSStore, error) {
	if strings.TrimSpace(dir) == "" {
		return nil, errors.New("storage: empty dir")
	}
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("storage: %w", err)
	}
	return NewFSStore(afero.NewBasePathFs(afero.NewOsFs(), dir)), nil
}

var unsafeChars = regexp.MustCompile(`[^a-zA-Z0-9.\-_]`)

// SafeName replaces every character outside [a-zA-Z0-9.-_] with '_'.
func SafeName(name string) string {
	name = path.Base(strings.ReplaceAll(name, "\\", "/"))
	if name == "." || name == "/" || name == "" {
		name = "file"
	}
	return unsafeChars.ReplaceAllString(name, "_")
}

func newKey(name string, at time.Time) string {
	at = at.UTC()
	return fmt.Sprintf("%04d/%02d/%d-%s-%s",
		at.Year(), int(at.Month()), at.UnixMilli(), uuid.NewString(), SafeName(name))
}

func (s *FSStore) Put(ctx context.Context, name string, r io.Reader, maxBytes int64, at time.Time) (Object, error) {
	if err := ctx.Err(); err != nil {
		return Object{}, err
	}
	if at.IsZero() {
		at = time.Now()
	}
	key := newKey(name, at)
	if err := s.fs.MkdirAll(path.Dir(key), 0o700); err != nil {
		return Object{}, fmt.Errorf("storage: mkdir: %w", err)
	}

	f, err := s.fs.OpenFile(key, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o600)
	if err != nil {
		return Object{}, fmt.Errorf("storage: create: %w", err)
	}

	h := blake3.New()
	src := r
	if maxBytes > 0 {
		src = io.LimitReader(r, maxBytes+1)
	}
	n, copyErr := io.Copy(io.MultiWriter(f, h), src)
	closeErr := f.Close()

	switch {
	case copyErr != nil:
		_ = s.fs.Remove(key)
		return Object{}, fmt.Errorf("storage: write: %w", copyErr)
	case closeErr != nil:
		_ = s.fs.Remove(key)
		return Object{}, fmt.Errorf("storage: close: %w", closeErr)
	case maxBytes > 0 && n > maxBytes:
		_ = s.fs.Remove(key)
		return Object{}, ErrTooLarge
	}

	return Object{Key: key, Size: n, Digest: hex.EncodeToString(h.Sum(nil))}, nil
}

func (s *FSStore) Open(ctx context.Context, key string) (io.ReadCloser, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if !validKey(key) {
		return nil, ErrInvalidKey
	}
	f, err := s.fs.Open(key)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return f, nil
}

// Delete is idempotent.
func (s *FSStore) Delete(ctx context.Context, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if !validKey(key) {
		return ErrInvalidKey
	}
	if err := s.fs.Remove(key); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}

// validKey rejects traversal and absolute keys before they reach the filesystem.
func validKey(key string) bool {
	if key == "" || strings.HasPrefix(key, "/") || strings.Contains(key, "\\") {
		return false
	}
	return path.Clean(key) == key && !strings.HasPrefix(key, "../") && key != ".."
}
