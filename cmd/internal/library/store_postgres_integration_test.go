package library

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"pdfgate/cmd/internal/dbschema/dbtest"
)

func TestPostgresStore_ShareLifecycle(t *testing.T) {
	pool := dbtest.Open(t)
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()

	adminID := dbtest.InsertUser(t, pool, "ADMIN")
	userID := dbtest.InsertUser(t, pool, "USER")
	s := NewPostgresStore(pool)

	now := time.Now().UTC().Truncate(time.Microsecond)
	up := Upload{
		ID:           fmt.Sprintf("up-%d", now.UnixNano()),
		StorageKey:   fmt.Sprintf("it/%d.pdf", now.UnixNano()),
		OriginalName: "it.pdf",
		Size:         10,
		Digest:       "00",
		UploadedBy:   adminID,
		CreatedAt:    now,
	}
	if err := s.CreateUpload(ctx, up); err != nil {
		t.Fatalf("CreateUpload: %v", err)
	}
	t.Cleanup(func() { _ = s.DeleteUpload(context.Background(), up.ID) })

	n, err := s.GrantUploadToUsers(ctx, up.ID, []string{userID}, now)
	if err != nil || n != 1 {
		t.Fatalf("bulk grant n=%d err=%v", n, err)
	}
	n, err = s.GrantUploadToUsers(ctx, up.ID, []string{userID}, now)
	if err != nil || n != 0 {
		t.Fatalf("repeat bulk grant n=%d err=%v", n, err)
	}

	if _, err := s.Grant(ctx, up.ID, userID, now); !IsConflict(err) {
		t.Fatalf("expected conflict, got %v", err)
	}
	first, err := s.GetShareFor(ctx, up.ID, userID)
	if err != nil {
		t.Fatalf("GetShareFor: %v", err)
	}

	if _, err := s.Revoke(ctx, up.ID, userID, now.Add(time.Second)); err != nil {
		t.Fatalf("Revoke: %v", err)
	}
	again, err := s.Grant(ctx, up.ID, userID, now.Add(2*time.Second))
	if err != nil || again.ID != first.ID || !again.Active() {
		t.Fatalf("re-grant share=%+v err=%v", again, err)
	}

	docs, err := s.ListActiveFor(ctx, userID)
	if err != nil || len(docs) != 1 || docs[0].Upload.OriginalName != "it.pdf" {
		t.Fatalf("ListActiveFor=%v err=%v", docs, err)
	}

	if _, err := s.Revoke(ctx, up.ID, "no-such-user", now); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
	if _, err := s.Grant(ctx, "no-such-upload", userID, now); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected not found for FK, got %v", err)
	}
}
