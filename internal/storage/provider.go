// Package storage defines the map persistence gateway and its file-system
// backend.
package storage

import (
	"context"

	"github.com/starford/tera/internal/models"
)

// Record is a stored document together with its revision, the checksum of
// the stored bytes.
type Record struct {
	Doc      *models.MapDocument
	Revision string
}

// Gateway persists map documents keyed by id.
type Gateway interface {
	// Put stores doc, replacing any document with the same id, and returns
	// the new revision.
	Put(ctx context.Context, doc *models.MapDocument) (string, error)
	// Get returns the document with id or apperr.ErrNotFound.
	Get(ctx context.Context, id string) (*Record, error)
	// First returns the first stored document in id order or
	// apperr.ErrNotFound when the store is empty.
	First(ctx context.Context) (*Record, error)
	// Revision returns the current revision of id without decoding it.
	Revision(ctx context.Context, id string) (string, error)
}
