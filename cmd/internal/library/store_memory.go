package library

import (
	"context"
	"sort"
	"sync"
	"time"

	"pdfgate/cmd/identity/ids"
)

// MemoryStore is a mutex-guarded Store for tests and database-less runs.
type MemoryStore struct {
	mu      sync.Mutex
	uploads map[string]Upload
	shares  map[string]*Share
	pairs   map[pairKey]string
}

type pairKey struct{ upload, user string }

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		uploads: make(map[string]Upload),
		shares:  make(map[string]*Share),
		pairs:   make(map[pairKey]string),
	}
}

func (s *MemoryStore) CreateUpload(ctx context.Context, u Upload) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.uploads[u.ID]; ok {
		return OpError{Op: "library.CreateUpload", Kind: ErrInvalidInput, Msg: "duplicate upload id"}
	}
	s.uploads[u.ID] = u
	return nil
}

func (s *MemoryStore) GetUpload(ctx context.Context, id string) (Upload, error) {
	if err := ctx.Err(); err != nil {
		return Upload{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.uploads[id]
	if !ok {
		return Upload{}, notFound("library.GetUpload", "upload")
	}
	return u, nil
}

func (s *MemoryStore) ListUploads(ctx context.Context) ([]UploadSummary, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	active := make(map[string]int)
	for _, sh := range s.shares {
		if sh.Active() {
			active[sh.UploadID]++
		}
	}
	out := make([]UploadSummary, 0, len(s.uploads))
	for _, u := range s.uploads {
		out = append(out, UploadSummary{Upload: u, ActiveShares: active[u.ID]})
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID > out[j].ID
	})
	return out, nil
}

func (s *MemoryStore) DeleteUpload(ctx context.Context, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.uploads[id]; !ok {
		return notFound("library.DeleteUpload", "upload")
	}
	delete(s.uploads, id)
	for sid, sh := range s.shares {
		if sh.UploadID == id {
			delete(s.pairs, pairKey{sh.UploadID, sh.UserID})
			delete(s.shares, sid)
		}
	}
	return nil
}

func (s *MemoryStore) GetShare(ctx context.Context, id string) (Share, error) {
	if err := ctx.Err(); err != nil {
		return Share{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	sh, ok := s.shares[id]
	if !ok {
		return Share{}, notFound("library.GetShare", "share")
	}
	return *sh, nil
}

func (s *MemoryStore) GetShareFor(ctx context.Context, uploadID, userID string) (Share, error) {
	if err := ctx.Err(); err != nil {
		return Share{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	id, ok := s.pairs[pairKey{uploadID, userID}]
	if !ok {
		return Share{}, notFound("library.GetShareFor", "share")
	}
	return *s.shares[id], nil
}

func (s *MemoryStore) Grant(ctx context.Context, uploadID, userID string, now time.Time) (Share, error) {
	return s.upsert(ctx, "library.Grant", uploadID, userID, now, true)
}

func (s *MemoryStore) EnsureSelfShare(ctx context.Context, uploadID, userID string, now time.Time) (Share, error) {
	return s.upsert(ctx, "library.EnsureSelfShare", uploadID, userID, now, false)
}

func (s *MemoryStore) upsert(ctx context.Context, op, uploadID, userID string, now time.Time, conflictIfActive bool) (Share, error) {
	if err := ctx.Err(); err != nil {
		return Share{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.uploads[uploadID]; !ok {
		return Share{}, notFound(op, "upload")
	}
	if id, ok := s.pairs[pairKey{uploadID, userID}]; ok {
		sh := s.shares[id]
		if sh.Active() {
			if conflictIfActive {
				return Share{}, ConflictError{Op: op, UploadID: uploadID, UserID: userID}
			}
			return *sh, nil
		}
		sh.RevokedAt = nil
		sh.SharedAt = now
		return *sh, nil
	}
	sh, err := s.insertLocked(uploadID, userID, now)
	if err != nil {
		return Share{}, err
	}
	return *sh, nil
}

func (s *MemoryStore) insertLocked(uploadID, userID string, now time.Time) (*Share, error) {
	id, err := ids.NewULID(now)
	if err != nil {
		return nil, err
	}
	sh := &Share{ID: id, UploadID: uploadID, UserID: userID, SharedAt: now}
	s.shares[id] = sh
	s.pairs[pairKey{uploadID, userID}] = id
	return sh, nil
}

func (s *MemoryStore) Revoke(ctx context.Context, uploadID, userID string, now time.Time) (Share, error) {
	if err := ctx.Err(); err != nil {
		return Share{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	id, ok := s.pairs[pairKey{uploadID, userID}]
	if !ok {
		return Share{}, notFound("library.Revoke", "share")
	}
	sh := s.shares[id]
	if sh.RevokedAt == nil {
		at := now
		sh.RevokedAt = &at
	}
	return *sh, nil
}

func (s *MemoryStore) ListActiveFor(ctx context.Context, userID string) ([]SharedDocument, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []SharedDocument
	for _, sh := range s.shares {
		if sh.UserID != userID || !sh.Active() {
			continue
		}
		out = append(out, SharedDocument{Share: *sh, Upload: s.uploads[sh.UploadID]})
	}
	sort.Slice(out, func(i, j int) bool {
		return newerShare(out[i].Share, out[j].Share)
	})
	return out, nil
}

func (s *MemoryStore) ListForUpload(ctx context.Context, uploadID string) ([]Share, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.uploads[uploadID]; !ok {
		return nil, notFound("library.ListForUpload", "upload")
	}
	var out []Share
	for _, sh := range s.shares {
		if sh.UploadID == uploadID {
			out = append(out, *sh)
		}
	}
	sort.Slice(out, func(i, j int) bool { return newerShare(out[i], out[j]) })
	return out, nil
}

func (s *MemoryStore) GrantUploadToUsers(ctx context.Context, uploadID string, userIDs []string, now time.Time) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.uploads[uploadID]; !ok {
		return 0, notFound("library.GrantUploadToUsers", "upload")
	}
	n := 0
	for _, uid := range userIDs {
		if _, ok := s.pairs[pairKey{uploadID, uid}]; ok {
			continue
		}
		if _, err := s.insertLocked(uploadID, uid, now); err != nil {
			return n, err
		}
		n++
	}
	return n, nil
}

func (s *MemoryStore) GrantUploadsToUser(ctx context.Context, userID string, now time.Time) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	n := 0
	for uploadID := range s.uploads {
		if _, ok := s.pairs[pairKey{uploadID, userID}]; ok {
			continue
		}
		if _, err := s.insertLocked(uploadID, userID, now); err != nil {
			return n, err
		}
		n++
	}
	return n, nil
}

func (s *MemoryStore) DeleteForUser(ctx context.Context, userID string) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	n := 0
	for id, sh := range s.shares {
		if sh.UserID == userID {
			delete(s.pairs, pairKey{sh.UploadID, sh.UserID})
			delete(s.shares, id)
			n++
		}
	}
	return n, nil
}

func newerShare(a, b Share) bool {
	if !a.SharedAt.Equal(b.SharedAt) {
		return a.SharedAt.After(b.SharedAt)
	}
	return a.ID > b.ID
}
