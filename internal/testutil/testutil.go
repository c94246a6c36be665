// Package testutil provides shared test helpers for setting up stores,
// databases and sessions.
package testutil

import (
	"context"
	"log/slog"
	"os"
	"testing"

	"github.com/starford/tera/internal/imagedata"
	"github.com/starford/tera/internal/mapdb"
	"github.com/starford/tera/internal/mapdoc"
	"github.com/starford/tera/internal/mapservice"
	"github.com/starford/tera/internal/storage"
)

// PNG is a minimal image payload that passes validation.
var PNG = imagedata.Encode("image/png", []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR\x00\x00\x00\x01\x00\x00\x00\x01"))

// GIF is a second valid payload.
var GIF = imagedata.Encode("image/gif", []byte("GIF89a\x01\x00\x01\x00\x00\x00\x00"))

// TestDB creates a temporary SQLite database that is automatically cleaned up.
func TestDB(t *testing.T) *mapdb.DB {
	t.Helper()
	dbFile, err := os.CreateTemp("", "tera-test-*.db")
	if err != nil {
		t.Fatal(err)
	}
	dbFile.Close()
	t.Cleanup(func() { os.Remove(dbFile.Name()) })

	db, err := mapdb.Open(dbFile.Name())
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

// TestStore creates a temporary store directory with an FS gateway.
func TestStore(t *testing.T) (string, *storage.FS) {
	t.Helper()
	dir := t.TempDir()
	store, err := storage.NewFS(dir)
	if err != nil {
		t.Fatal(err)
	}
	return dir, store
}

// TestSession opens a session over gw. A nil gw means a fresh FS store.
func TestSession(t *testing.T, gw storage.Gateway, events mapservice.Publisher) *mapservice.Session {
	t.Helper()
	if gw == nil {
		_, gw = TestStore(t)
	}
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
	sess := mapservice.New(gw, mapdoc.NewEditor(), events, logger)
	if err := sess.Open(context.Background()); err != nil {
		t.Fatalf("open session: %v", err)
	}
	return sess
}
