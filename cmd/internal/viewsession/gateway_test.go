package viewsession

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"
	"time"
)

func TestResolve_ServesContent(t *testing.T) {
	t.Parallel()

	t0 := time.Date(2024, 6, 1, 9, 0, 0, 0, time.UTC)
	f := newFixture(t, t0)
	ctx := context.Background()

	is, err := f.issuer.Issue(ctx, f.viewerOf(), f.share.ID, t0.Add(time.Minute))
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	c, err := f.gateway.Resolve(ctx, is.Session.Token, t0.Add(2*time.Minute))
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	defer c.Body.Close()

	body, _ := io.ReadAll(c.Body)
	if string(body) != pdfBody {
		t.Fatalf("body=%q", body)
	}
	if c.Name != "handbook.pdf" || c.Size != int64(len(pdfBody)) || c.UploadID != f.upload.ID {
		t.Fatalf("content meta: %+v", c)
	}
}

func TestResolve_EveryFailureIsGone(t *testing.T) {
	t.Parallel()

	t0 := time.Date(2024, 6, 1, 9, 0, 0, 0, time.UTC)

	cases := []struct {
		name  string
		setup func(t *testing.T, f fixture) (tok string, at time.Time)
	}{
		{
			name: "malformed token",
			setup: func(t *testing.T, f fixture) (string, time.Time) {
				return "../../etc/passwd", t0
			},
		},
		{
			name: "overlong token",
			setup: func(t *testing.T, f fixture) (string, time.Time) {
				return strings.Repeat("a", maxTokenLen+1), t0
			},
		},
		{
			name: "unknown token",
			setup: func(t *testing.T, f fixture) (string, time.Time) {
				return "AAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAA", t0
			},
		},
		{
			name: "expired",
			setup: func(t *testing.T, f fixture) (string, time.Time) {
				is := mustIssue(t, f, t0)
				return is.Session.Token, is.Session.ExpiresAt
			},
		},
		{
			name: "share revoked",
			setup: func(t *testing.T, f fixture) (string, time.Time) {
				is := mustIssue(t, f, t0)
				if _, err := f.lib.Revoke(context.Background(), f.upload.ID, f.viewer.ID, t0.Add(time.Minute)); err != nil {
					t.Fatalf("Revoke: %v", err)
				}
				return is.Session.Token, t0.Add(2 * time.Minute)
			},
		},
		{
			name: "share deleted with user",
			setup: func(t *testing.T, f fixture) (string, time.Time) {
				is := mustIssue(t, f, t0)
				if _, err := f.lib.DeleteForUser(context.Background(), f.viewer.ID); err != nil {
					t.Fatalf("DeleteForUser: %v", err)
				}
				return is.Session.Token, t0.Add(time.Minute)
			},
		},
	}

	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			f := newFixture(t, t0)
			tok, at := tc.setup(t, f)
			_, err := f.gateway.Resolve(context.Background(), tok, at)
			if !errors.Is(err, ErrGone) {
				t.Fatalf("expected ErrGone, got %v", err)
			}
		})
	}
}

func TestResolve_MissingBlobIsServerError(t *testing.T) {
	t.Parallel()

	t0 := time.Date(2024, 6, 1, 9, 0, 0, 0, time.UTC)
	f := newFixture(t, t0)
	ctx := context.Background()

	is := mustIssue(t, f, t0)
	if err := f.blobs.Delete(ctx, f.upload.StorageKey); err != nil {
		t.Fatalf("Delete blob: %v", err)
	}
	_, err := f.gateway.Resolve(ctx, is.Session.Token, t0.Add(time.Minute))
	if err == nil || errors.Is(err, ErrGone) {
		t.Fatalf("expected a storage error, got %v", err)
	}
}

func mustIssue(t *testing.T, f fixture, at time.Time) Issued {
	t.Helper()
	is, err := f.issuer.Issue(context.Background(), f.viewerOf(), f.share.ID, at)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	return is
}
