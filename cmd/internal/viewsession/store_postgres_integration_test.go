package viewsession

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"pdfgate/cmd/internal/dbschema/dbtest"
	"pdfgate/cmd/internal/library"
)

func TestPostgresStore_ReuseOrCreateIsAtomicPerShare(t *testing.T) {
	pool := dbtest.Open(t)
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	adminID := dbtest.InsertUser(t, pool, "ADMIN")
	userID := dbtest.InsertUser(t, pool, "USER")
	lib := library.NewPostgresStore(pool)

	now := time.Now().UTC().Truncate(time.Microsecond)
	up := library.Upload{
		ID:           fmt.Sprintf("vs-%d", now.UnixNano()),
		StorageKey:   fmt.Sprintf("it/vs-%d.pdf", now.UnixNano()),
		OriginalName: "vs.pdf",
		Size:         1,
		Digest:       "00",
		UploadedBy:   adminID,
		CreatedAt:    now,
	}
	if err := lib.CreateUpload(ctx, up); err != nil {
		t.Fatalf("CreateUpload: %v", err)
	}
	t.Cleanup(func() { _ = lib.DeleteUpload(context.Background(), up.ID) })

	sh, err := lib.Grant(ctx, up.ID, userID, now)
	if err != nil {
		t.Fatalf("Grant: %v", err)
	}

	store := NewPostgresStore(pool)
	issuer := NewIssuer(DefaultConfig(), store, lib, nil)

	var (
		wg     sync.WaitGroup
		mu     sync.Mutex
		tokens = map[string]bool{}
	)
	for i := 0; i < 6; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			is, err := issuer.Issue(ctx, Viewer{UserID: userID, Role: "USER"}, sh.ID, now.Add(time.Second))
			if err != nil {
				t.Errorf("Issue: %v", err)
				return
			}
			mu.Lock()
			tokens[is.Session.Token] = true
			mu.Unlock()
		}()
	}
	wg.Wait()
	if len(tokens) != 1 {
		t.Fatalf("expected a single token, got %d", len(tokens))
	}

	n, err := store.DeleteForUser(ctx, userID)
	if err != nil || n != 1 {
		t.Fatalf("DeleteForUser n=%d err=%v", n, err)
	}
}
