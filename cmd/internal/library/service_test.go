package library

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"testing"
	"time"

	"pdfgate/cmd/identity"
	"pdfgate/cmd/internal/storage"
	"pdfgate/cmd/security/password"

	"github.com/spf13/afero"
)

func cheapHasher() password.Config {
	cfg := password.DefaultConfig()
	cfg.Params.MemoryKiB = 8 * 1024
	cfg.Params.Iterations = 1
	cfg.Params.Parallelism = 1
	cfg.Policy.MinLength = 8
	return cfg
}

type fixture struct {
	svc   *Service
	store *MemoryStore
	users *identity.MemoryStore
	blobs *storage.FSStore
	admin identity.User
}

func newFixture(t *testing.T, maxBytes int64) fixture {
	t.Helper()

	users := identity.NewMemoryStore(cheapHasher())
	admin, err := users.CreateUser(context.Background(), identity.CreateUserInput{
		Email: "admin@example.com", Name: "Admin", Password: "correct-horse-42", Role: identity.RoleAdmin,
	})
	if err != nil {
		t.Fatalf("create admin: %v", err)
	}
	store := NewMemoryStore()
	blobs := storage.NewFSStore(afero.NewMemMapFs())
	return fixture{
		svc:   NewService(store, blobs, users, maxBytes, nil),
		store: store,
		users: users,
		blobs: blobs,
		admin: admin,
	}
}

func (f fixture) addUser(t *testing.T, email string) identity.User {
	t.Helper()
	u, err := f.users.CreateUser(context.Background(), identity.CreateUserInput{
		Email: email, Name: "Viewer", Password: "correct-horse-42",
	})
	if err != nil {
		t.Fatalf("create user: %v", err)
	}
	return u
}

func (f fixture) upload(t *testing.T, name string, now time.Time) Upload {
	t.Helper()
	up, _, err := f.svc.CreateUpload(context.Background(), UploadInput{
		UploaderID:  f.admin.ID,
		Name:        name,
		ContentType: "application/pdf",
		Body:        strings.NewReader("%PDF-1.4\n" + name),
		Now:         now,
	})
	if err != nil {
		t.Fatalf("CreateUpload: %v", err)
	}
	return up
}

func TestCreateUpload_StoresBlobAndAutoSharesWithUsers(t *testing.T) {
	t.Parallel()

	f := newFixture(t, 0)
	ctx := context.Background()
	u1 := f.addUser(t, "a@example.com")
	u2 := f.addUser(t, "b@example.com")

	up, shared, err := f.svc.CreateUpload(ctx, UploadInput{
		UploaderID:  f.admin.ID,
		Name:        `C:\Users\me\Q3 report.pdf`,
		ContentType: "application/pdf; charset=binary",
		Body:        strings.NewReader("%PDF-1.7 body"),
		Now:         time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC),
	})
	if err != nil {
		t.Fatalf("CreateUpload: %v", err)
	}
	if shared != 2 {
		t.Fatalf("shared_with=%d want 2", shared)
	}
	if up.OriginalName != "Q3 report.pdf" {
		t.Fatalf("original name=%q", up.OriginalName)
	}
	if !strings.HasPrefix(up.StorageKey, "2024/03/") || !strings.HasSuffix(up.StorageKey, "-Q3_report.pdf") {
		t.Fatalf("storage key=%q", up.StorageKey)
	}
	if want := fmt.Sprintf("2024/03/%d-", up.CreatedAt.UnixMilli()); !strings.HasPrefix(up.StorageKey, want) {
		t.Fatalf("storage key=%q not derived from created_at, want prefix %q", up.StorageKey, want)
	}
	if up.Size != int64(len("%PDF-1.7 body")) || len(up.Digest) != 64 {
		t.Fatalf("size=%d digest=%q", up.Size, up.Digest)
	}

	rc, err := f.blobs.Open(ctx, up.StorageKey)
	if err != nil {
		t.Fatalf("Open blob: %v", err)
	}
	body, _ := io.ReadAll(rc)
	_ = rc.Close()
	if string(body) != "%PDF-1.7 body" {
		t.Fatalf("blob body=%q", body)
	}

	for _, u := range []identity.User{u1, u2} {
		docs, err := f.svc.ListActiveFor(ctx, u.ID)
		if err != nil || len(docs) != 1 || docs[0].Upload.ID != up.ID {
			t.Fatalf("ListActiveFor(%s)=%v err=%v", u.Email, docs, err)
		}
	}
	if _, err := f.store.GetShareFor(ctx, up.ID, f.admin.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("admin must not be auto-shared, got %v", err)
	}
}

func TestCreateUpload_Validation(t *testing.T) {
	t.Parallel()

	f := newFixture(t, 16)
	cases := []struct {
		name string
		ct   string
		body string
		want error
	}{
		{"wrong content type", "image/png", "%PDF-1.4", ErrInvalidInput},
		{"missing magic", "application/pdf", "hello world", ErrInvalidInput},
		{"empty body", "application/pdf", "", ErrInvalidInput},
		{"too large", "application/pdf", "%PDF-" + strings.Repeat("x", 20), ErrTooLarge},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, _, err := f.svc.CreateUpload(context.Background(), UploadInput{
				UploaderID: f.admin.ID, Name: "x.pdf", ContentType: tc.ct, Body: strings.NewReader(tc.body),
			})
			if !errors.Is(err, tc.want) {
				t.Fatalf("expected %v, got %v", tc.want, err)
			}
		})
	}

	list, err := f.svc.ListUploads(context.Background())
	if err != nil || len(list) != 0 {
		t.Fatalf("no uploads expected, got %d err=%v", len(list), err)
	}
}

func TestShareScenario_GrantConflictRevokeRegrant(t *testing.T) {
	t.Parallel()

	f := newFixture(t, 0)
	ctx := context.Background()
	t0 := time.Date(2024, 1, 1, 10, 0, 0, 0, time.UTC)

	up := f.upload(t, "doc.pdf", t0)
	u := f.addUser(t, "late@example.com") // created after the upload: no auto-share

	first, err := f.svc.Grant(ctx, up.ID, u.ID, t0.Add(time.Minute))
	if err != nil {
		t.Fatalf("Grant: %v", err)
	}

	_, err = f.svc.Grant(ctx, up.ID, u.ID, t0.Add(2*time.Minute))
	var ce ConflictError
	if !errors.As(err, &ce) || !IsConflict(err) {
		t.Fatalf("expected ConflictError, got %v", err)
	}

	revoked, err := f.svc.Revoke(ctx, up.ID, u.ID, t0.Add(3*time.Minute))
	if err != nil || revoked.Active() {
		t.Fatalf("Revoke: share=%+v err=%v", revoked, err)
	}
	again, err := f.svc.Revoke(ctx, up.ID, u.ID, t0.Add(4*time.Minute))
	if err != nil || !again.RevokedAt.Equal(*revoked.RevokedAt) {
		t.Fatalf("second Revoke should be a no-op: %+v err=%v", again, err)
	}

	docs, _ := f.svc.ListActiveFor(ctx, u.ID)
	if len(docs) != 0 {
		t.Fatalf("revoked share listed: %v", docs)
	}

	regrant, err := f.svc.Grant(ctx, up.ID, u.ID, t0.Add(5*time.Minute))
	if err != nil {
		t.Fatalf("re-grant: %v", err)
	}
	if regrant.ID != first.ID {
		t.Fatalf("re-grant must reuse the row: %s vs %s", regrant.ID, first.ID)
	}
	if !regrant.Active() || !regrant.SharedAt.Equal(t0.Add(5*time.Minute)) {
		t.Fatalf("re-grant state: %+v", regrant)
	}

	all, err := f.svc.ListForUpload(ctx, up.ID)
	if err != nil || len(all) != 1 {
		t.Fatalf("ListForUpload=%v err=%v", all, err)
	}
}

func TestGrant_RejectsAdminsAndUnknowns(t *testing.T) {
	t.Parallel()

	f := newFixture(t, 0)
	ctx := context.Background()
	now := time.Now()
	up := f.upload(t, "doc.pdf", now)
	u := f.addUser(t, "u@example.com")

	if _, err := f.svc.Grant(ctx, up.ID, f.admin.ID, now); !errors.Is(err, ErrForbidden) {
		t.Fatalf("admin grant: expected ErrForbidden, got %v", err)
	}
	if _, err := f.svc.Grant(ctx, up.ID, "missing-user", now); !errors.Is(err, ErrNotFound) {
		t.Fatalf("unknown user: expected ErrNotFound, got %v", err)
	}
	if _, err := f.svc.Grant(ctx, "missing-upload", u.ID, now); !errors.Is(err, ErrNotFound) {
		t.Fatalf("unknown upload: expected ErrNotFound, got %v", err)
	}
	if _, err := f.svc.Revoke(ctx, "missing-upload", u.ID, now); !errors.Is(err, ErrNotFound) {
		t.Fatalf("revoke unknown: expected ErrNotFound, got %v", err)
	}
}

func TestEnsureSelfShare_ReactivatesWithoutConflict(t *testing.T) {
	t.Parallel()

	f := newFixture(t, 0)
	ctx := context.Background()
	t0 := time.Date(2024, 5, 5, 12, 0, 0, 0, time.UTC)
	up := f.upload(t, "doc.pdf", t0)

	a, err := f.svc.EnsureSelfShare(ctx, up.ID, f.admin.ID, t0)
	if err != nil {
		t.Fatalf("EnsureSelfShare: %v", err)
	}
	b, err := f.svc.EnsureSelfShare(ctx, up.ID, f.admin.ID, t0.Add(time.Hour))
	if err != nil || b.ID != a.ID || !b.SharedAt.Equal(a.SharedAt) {
		t.Fatalf("active self-share must be returned unchanged: %+v err=%v", b, err)
	}

	if _, err := f.store.Revoke(ctx, up.ID, f.admin.ID, t0.Add(2*time.Hour)); err != nil {
		t.Fatalf("Revoke: %v", err)
	}
	c, err := f.svc.EnsureSelfShare(ctx, up.ID, f.admin.ID, t0.Add(3*time.Hour))
	if err != nil || c.ID != a.ID || !c.Active() || !c.SharedAt.Equal(t0.Add(3*time.Hour)) {
		t.Fatalf("reactivated self-share: %+v err=%v", c, err)
	}
}

func TestBulkGrants_AreIdempotentAndSkipRevoked(t *testing.T) {
	t.Parallel()

	f := newFixture(t, 0)
	ctx := context.Background()
	t0 := time.Date(2024, 2, 2, 8, 0, 0, 0, time.UTC)

	up1 := f.upload(t, "one.pdf", t0)
	up2 := f.upload(t, "two.pdf", t0.Add(time.Minute))
	u := f.addUser(t, "new@example.com")

	n, err := f.svc.GrantAllUploadsTo(ctx, u.ID, t0.Add(2*time.Minute))
	if err != nil || n != 2 {
		t.Fatalf("GrantAllUploadsTo n=%d err=%v", n, err)
	}
	if _, err := f.svc.Revoke(ctx, up1.ID, u.ID, t0.Add(3*time.Minute)); err != nil {
		t.Fatalf("Revoke: %v", err)
	}
	n, err = f.svc.GrantAllUploadsTo(ctx, u.ID, t0.Add(4*time.Minute))
	if err != nil || n != 0 {
		t.Fatalf("second bulk grant n=%d err=%v", n, err)
	}

	docs, _ := f.svc.ListActiveFor(ctx, u.ID)
	if len(docs) != 1 || docs[0].Upload.ID != up2.ID {
		t.Fatalf("active docs=%v", docs)
	}

	summaries, err := f.svc.ListUploads(ctx)
	if err != nil || len(summaries) != 2 {
		t.Fatalf("ListUploads=%v err=%v", summaries, err)
	}
	if summaries[0].ID != up2.ID || summaries[0].ActiveShares != 1 || summaries[1].ActiveShares != 0 {
		t.Fatalf("summaries order/counts: %+v", summaries)
	}

	deleted, err := f.svc.DeleteForUser(ctx, u.ID)
	if err != nil || deleted != 2 {
		t.Fatalf("DeleteForUser=%d err=%v", deleted, err)
	}
}
