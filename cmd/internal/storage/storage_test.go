package storage

import (
	"bytes"
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/spf13/afero"
	"github.com/zeebo/blake3"
)

func TestSafeName(t *testing.T) {
	t.Parallel()

	cases := map[string]string{
		"report.pdf":             "report.pdf",
		"Q3 results (final).pdf": "Q3_results__final_.pdf",
		"../../etc/passwd":       "passwd",
		`C:\docs\été.pdf`:        "_t_.pdf",
		"":                       "file",
	}
	for in, want := range cases {
		if got := SafeName(in); got != want {
			t.Errorf("SafeName(%q)=%q want %q", in, got, want)
		}
	}
}

func TestFSStore_PutOpenDelete(t *testing.T) {
	t.Parallel()

	s := NewFSStore(afero.NewMemMapFs())
	at := time.Date(2024, 7, 9, 10, 0, 0, 0, time.UTC)
	ctx := context.Background()

	body := []byte("%PDF-1.7 hello")
	obj, err := s.Put(ctx, "My Doc.pdf", bytes.NewReader(body), 1024, at)
	if err != nil {
		t.Fatalf("Put: %v", err)
	}

	keyRe := regexp.MustCompile(`^2024/07/\d+-[0-9a-f-]{36}-My_Doc\.pdf$`)
	if !keyRe.MatchString(obj.Key) {
		t.Fatalf("key=%q", obj.Key)
	}
	if want := fmt.Sprintf("2024/07/%d-", at.UnixMilli()); !strings.HasPrefix(obj.Key, want) {
		t.Fatalf("key=%q, want prefix %q", obj.Key, want)
	}
	if obj.Size != int64(len(body)) {
		t.Fatalf("size=%d", obj.Size)
	}
	sum := blake3.Sum256(body)
	if obj.Digest != hex.EncodeToString(sum[:]) {
		t.Fatalf("digest mismatch")
	}

	rc, err := s.Open(ctx, obj.Key)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	got, _ := io.ReadAll(rc)
	_ = rc.Close()
	if !bytes.Equal(got, body) {
		t.Fatalf("body mismatch")
	}

	if err := s.Delete(ctx, obj.Key); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if err := s.Delete(ctx, obj.Key); err != nil {
		t.Fatalf("second Delete: %v", err)
	}
	if _, err := s.Open(ctx, obj.Key); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestFSStore_PutTooLargeLeavesNothing(t *testing.T) {
	t.Parallel()

	fs := afero.NewMemMapFs()
	s := NewFSStore(fs)
	_, err := s.Put(context.Background(), "big.pdf", strings.NewReader(strings.Repeat("x", 11)), 10, time.Now())
	if !errors.Is(err, ErrTooLarge) {
		t.Fatalf("expected ErrTooLarge, got %v", err)
	}

	files := 0
	_ = afero.Walk(fs, "/", func(_ string, info os.FileInfo, _ error) error {
		if info != nil && !info.IsDir() {
			files++
		}
		return nil
	})
	if files != 0 {
		t.Fatalf("expected no files left, found %d", files)
	}

	if _, err := s.Put(context.Background(), "exact.pdf", strings.NewReader(strings.Repeat("x", 10)), 10, time.Now()); err != nil {
		t.Fatalf("exact size: %v", err)
	}
}

func TestFSStore_RejectsTraversalKeys(t *testing.T) {
	t.Parallel()

	s := NewFSStore(afero.NewMemMapFs())
	for _, key := range []string{"../x", "/abs", "a/../../b", "", `a\b`} {
		if _, err := s.Open(context.Background(), key); !errors.Is(err, ErrInvalidKey) {
			t.Errorf("Open(%q): expected ErrInvalidKey, got %v", key, err)
		}
	}
}
