package storage

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/starford/tera/internal/apperr"
	"github.com/starford/tera/internal/checksum"
	"github.com/starford/tera/internal/models"
)

func tempStore(t *testing.T) *FS {
	t.Helper()
	dir := t.TempDir()
	fs, err := NewFS(dir)
	if err != nil {
		t.Fatalf("NewFS: %v", err)
	}
	return fs
}

func testDoc(id string) *models.MapDocument {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	return &models.MapDocument{
		ID:           id,
		Title:        "map " + id,
		SectorMode:   models.SectorMode12,
		LayerMode:    models.DefaultLayerMode,
		CreatedAt:    now,
		UpdatedAt:    now,
		SectorImages: models.SectorImages{3: "data:image/png;base64,iVBORw0KGgo="},
		Nodes:        []models.Node{{ID: "n1", Title: "1 Импульс", FunctionID: 1}},
		Edges:        []models.Edge{},
	}
}

func TestPutAndGet(t *testing.T) {
	s := tempStore(t)
	ctx := context.Background()
	doc := testDoc("m1")

	rev, err := s.Put(ctx, doc)
	if err != nil {
		t.Fatalf("Put: %v", err)
	}
	rec, err := s.Get(ctx, "m1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if rec.Revision != rev {
		t.Errorf("revision = %q, want %q", rec.Revision, rev)
	}
	if rec.Doc.Title != doc.Title || rec.Doc.SectorImages[3] != doc.SectorImages[3] {
		t.Errorf("document mismatch: %+v", rec.Doc)
	}
	if len(rec.Doc.Nodes) != 1 || rec.Doc.Nodes[0].FunctionID != 1 {
		t.Errorf("nodes = %+v", rec.Doc.Nodes)
	}

	raw, _ := os.ReadFile(filepath.Join(s.Root(), "m1.json"))
	if checksum.Sum(raw) != rev {
		t.Error("revision is not the checksum of the stored bytes")
	}
	if got, _ := s.Revision(ctx, "m1"); got != rev {
		t.Errorf("Revision = %q, want %q", got, rev)
	}
}

func TestPutChangesRevision(t *testing.T) {
	s := tempStore(t)
	ctx := context.Background()
	doc := testDoc("m1")
	rev1, _ := s.Put(ctx, doc)
	doc.Title = "renamed"
	rev2, _ := s.Put(ctx, doc)
	if rev1 == rev2 {
		t.Error("revision did not change after update")
	}
}

func TestGetMissing(t *testing.T) {
	s := tempStore(t)
	_, err := s.Get(context.Background(), "nope")
	if !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
	if _, err := s.Revision(context.Background(), "nope"); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("Revision err = %v, want ErrNotFound", err)
	}
}

func TestFirst(t *testing.T) {
	s := tempStore(t)
	ctx := context.Background()

	if _, err := s.First(ctx); !errors.Is(err, apperr.ErrNotFound) {
		t.Fatalf("First on empty store: %v", err)
	}

	_, _ = s.Put(ctx, testDoc("b"))
	_, _ = s.Put(ctx, testDoc("a"))
	_ = os.WriteFile(filepath.Join(s.Root(), "readme.txt"), []byte("not a map"), 0o644)

	rec, err := s.First(ctx)
	if err != nil {
		t.Fatalf("First: %v", err)
	}
	if rec.Doc.ID != "a" {
		t.Errorf("first id = %q, want a", rec.Doc.ID)
	}

	ids, _ := s.IDs()
	if len(ids) != 2 {
		t.Errorf("ids = %v, want 2 entries", ids)
	}
}

func TestGetCorrupt(t *testing.T) {
	s := tempStore(t)
	_ = os.WriteFile(filepath.Join(s.Root(), "bad.json"), []byte("{not json"), 0o644)
	_, err := s.Get(context.Background(), "bad")
	if err == nil || errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("expected decode error, got %v", err)
	}
}

func TestTraversalBlocked(t *testing.T) {
	s := tempStore(t)
	ctx := context.Background()

	cases := []string{
		"../../etc/passwd",
		"../outside",
		"/etc/shadow",
		"a/b",
		"..",
		"",
	}
	for _, id := range cases {
		if _, err := s.Get(ctx, id); err == nil {
			t.Errorf("expected error for id %q", id)
		}
		if _, err := s.Put(ctx, testDoc(id)); err == nil {
			t.Errorf("expected error for put of %q", id)
		}
	}
}

func TestAtomicWriteNoCorruption(t *testing.T) {
	s := tempStore(t)
	ctx := context.Background()
	doc := testDoc("atomic")
	_, _ = s.Put(ctx, doc)

	doc.Title = "updated"
	if _, err := s.Put(ctx, doc); err != nil {
		t.Fatalf("Put: %v", err)
	}
	rec, _ := s.Get(ctx, "atomic")
	if rec.Doc.Title != "updated" {
		t.Errorf("expected updated content, got %q", rec.Doc.Title)
	}

	// Confirm no leftover temp files.
	matches, _ := filepath.Glob(filepath.Join(s.Root(), tmpPrefix+"*"))
	if len(matches) != 0 {
		t.Errorf("leftover temp files: %v", matches)
	}
}

func TestPutCancelledContext(t *testing.T) {
	s := tempStore(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := s.Put(ctx, testDoc("m1")); !errors.Is(err, context.Canceled) {
		t.Errorf("err = %v, want context.Canceled", err)
	}
}

func TestIDFromPath(t *testing.T) {
	s := tempStore(t)
	root := s.Root()
	cases := []struct {
		path string
		want string
	}{
		{filepath.Join(root, "m1.json"), "m1"},
		{filepath.Join(root, tmpPrefix+"123"), ""},
		{filepath.Join(root, "notes.txt"), ""},
		{filepath.Join(root, "sub", "m2.json"), ""},
		{filepath.Join(filepath.Dir(root), "x.json"), ""},
	}
	for _, tc := range cases {
		got, ok := s.IDFromPath(tc.path)
		if got != tc.want || ok != (tc.want != "") {
			t.Errorf("IDFromPath(%q) = %q, %v", tc.path, got, ok)
		}
	}
}

func TestNewFS_NonExistentDir(t *testing.T) {
	_, err := NewFS("/tmp/tera-does-not-exist-" + t.Name())
	if err == nil {
		t.Error("expected error for non-existent dir")
	}
}

func TestNewFS_FileNotDir(t *testing.T) {
	f, _ := os.CreateTemp("", "tera-test-*")
	_ = f.Close()
	defer os.Remove(f.Name())
	_, err := NewFS(f.Name())
	if err == nil {
		t.Error("expected error when root is a file")
	}
}
