package storage

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/starford/tera/internal/apperr"
	"github.com/starford/tera/internal/checksum"
	"github.com/starford/tera/internal/models"
)

const (
	ext       = ".json"
	tmpPrefix = ".tera-tmp-"
)

// FS implements Gateway with one <id>.json file per document.
type FS struct {
	root string // absolute path to the store directory
}

var _ Gateway = (*FS)(nil)

// NewFS creates a new FS gateway rooted at the given directory.
// The directory must already exist.
func NewFS(root string) (*FS, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("storage: resolve root: %w", err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		return nil, fmt.Errorf("storage: stat root: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("storage: root is not a directory: %s", abs)
	}
	return &FS{root: abs}, nil
}

// Root returns the absolute store directory.
func (f *FS) Root() string { return f.root }

// pathFor maps a document id to its file and rejects ids that would escape
// the root (directory traversal) or name a nested path.
func (f *FS) pathFor(id string) (string, error) {
	if id == "" || id == "." || id == ".." || strings.ContainsAny(id, `/\`) || strings.HasPrefix(id, tmpPrefix) {
		return "", fmt.Errorf("storage: invalid document id %q", id)
	}
	abs := filepath.Join(f.root, id+ext)
	if filepath.Dir(abs) != f.root {
		return "", fmt.Errorf("storage: path escapes store root: %s", id)
	}
	return abs, nil
}

// IDFromPath returns the document id stored at abs, if abs is a document
// file directly under the root.
func (f *FS) IDFromPath(abs string) (string, bool) {
	if filepath.Dir(abs) != f.root {
		return "", false
	}
	name := filepath.Base(abs)
	if !strings.HasSuffix(name, ext) || strings.HasPrefix(name, tmpPrefix) {
		return "", false
	}
	id := strings.TrimSuffix(name, ext)
	if _, err := f.pathFor(id); err != nil {
		return "", false
	}
	return id, true
}

// Put atomically writes the document: tmp file → fsync → rename.
func (f *FS) Put(ctx context.Context, doc *models.MapDocument) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	abs, err := f.pathFor(doc.ID)
	if err != nil {
		return "", err
	}
	data, err := Encode(doc)
	if err != nil {
		return "", err
	}
	if err := writeAtomic(abs, data); err != nil {
		return "", err
	}
	return checksum.Sum(data), nil
}

// Get reads and decodes one document.
func (f *FS) Get(ctx context.Context, id string) (*Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	abs, err := f.pathFor(id)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(abs)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("storage: document %s: %w", id, apperr.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("storage: read %s: %w", id, err)
	}
	rec, err := Decode(data)
	if err != nil {
		return nil, fmt.Errorf("storage: %s: %w", id, err)
	}
	return rec, nil
}

// Revision returns the checksum of the stored file.
func (f *FS) Revision(ctx context.Context, id string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	abs, err := f.pathFor(id)
	if err != nil {
		return "", err
	}
	data, err := os.ReadFile(abs)
	if errors.Is(err, fs.ErrNotExist) {
		return "", fmt.Errorf("storage: document %s: %w", id, apperr.ErrNotFound)
	}
	if err != nil {
		return "", fmt.Errorf("storage: read %s: %w", id, err)
	}
	return checksum.Sum(data), nil
}

// First returns the document with the lexicographically smallest id.
func (f *FS) First(ctx context.Context) (*Record, error) {
	ids, err := f.IDs()
	if err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return nil, fmt.Errorf("storage: empty store: %w", apperr.ErrNotFound)
	}
	return f.Get(ctx, ids[0])
}

// IDs lists stored document ids in sorted order.
func (f *FS) IDs() ([]string, error) {
	entries, err := os.ReadDir(f.root)
	if err != nil {
		return nil, fmt.Errorf("storage: list: %w", err)
	}
	var ids []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if id, ok := f.IDFromPath(filepath.Join(f.root, e.Name())); ok {
			ids = append(ids, id)
		}
	}
	slices.Sort(ids)
	return ids, nil
}

func writeAtomic(abs string, content []byte) error {
	dir := filepath.Dir(abs)
	tmp, err := os.CreateTemp(dir, tmpPrefix+"*")
	if err != nil {
		return fmt.Errorf("storage: create temp: %w", err)
	}
	tmpName := tmp.Name()

	// Clean up on any failure path.
	success := false
	defer func() {
		if !success {
			_ = tmp.Close()
			_ = os.Remove(tmpName)
		}
	}()

	if _, err := tmp.Write(content); err != nil {
		return fmt.Errorf("storage: write temp: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		return fmt.Errorf("storage: fsync: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("storage: close temp: %w", err)
	}
	if err := os.Rename(tmpName, abs); err != nil {
		return fmt.Errorf("storage: rename: %w", err)
	}
	success = true
	return nil
}
