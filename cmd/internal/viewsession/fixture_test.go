package viewsession

import (
	"context"
	"strings"
	"testing"
	"time"

	"pdfgate/cmd/identity"
	"pdfgate/cmd/internal/library"
	"pdfgate/cmd/internal/storage"
	"pdfgate/cmd/security/password"

	"github.com/spf13/afero"
)

const pdfBody = "%PDF-1.4\nview me"

func cheapHasher() password.Config {
	cfg := password.DefaultConfig()
	cfg.Params.MemoryKiB = 8 * 1024
	cfg.Params.Iterations = 1
	cfg.Params.Parallelism = 1
	cfg.Policy.MinLength = 8
	return cfg
}

type fixture struct {
	lib     *library.Service
	blobs   *storage.FSStore
	store   *MemoryStore
	issuer  *Issuer
	gateway *Gateway

	admin  identity.User
	viewer identity.User
	upload library.Upload
	share  library.Share
}

func newFixture(t *testing.T, t0 time.Time) fixture {
	t.Helper()
	ctx := context.Background()

	users := identity.NewMemoryStore(cheapHasher())
	admin, err := users.CreateUser(ctx, identity.CreateUserInput{
		Email: "admin@example.com", Name: "Admin", Password: "correct-horse-42", Role: identity.RoleAdmin,
	})
	if err != nil {
		t.Fatalf("create admin: %v", err)
	}
	viewer, err := users.CreateUser(ctx, identity.CreateUserInput{
		Email: "viewer@example.com", Name: "Viewer", Password: "correct-horse-42",
	})
	if err != nil {
		t.Fatalf("create viewer: %v", err)
	}

	blobs := storage.NewFSStore(afero.NewMemMapFs())
	lib := library.NewService(library.NewMemoryStore(), blobs, users, 0, nil)
	up, _, err := lib.CreateUpload(ctx, library.UploadInput{
		UploaderID:  admin.ID,
		Name:        "handbook.pdf",
		ContentType: "application/pdf",
		Body:        strings.NewReader(pdfBody),
		Now:         t0,
	})
	if err != nil {
		t.Fatalf("CreateUpload: %v", err)
	}
	docs, err := lib.ListActiveFor(ctx, viewer.ID)
	if err != nil || len(docs) != 1 {
		t.Fatalf("auto-share missing: %v err=%v", docs, err)
	}

	store := NewMemoryStore()
	return fixture{
		lib:     lib,
		blobs:   blobs,
		store:   store,
		issuer:  NewIssuer(DefaultConfig(), store, lib, nil),
		gateway: NewGateway(store, lib, blobs, nil),
		admin:   admin,
		viewer:  viewer,
		upload:  up,
		share:   docs[0].Share,
	}
}

func (f fixture) viewerOf() Viewer { return Viewer{UserID: f.viewer.ID, Role: f.viewer.Role} }
func (f fixture) adminOf() Viewer  { return Viewer{UserID: f.admin.ID, Role: f.admin.Role} }
