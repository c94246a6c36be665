// Package mapservice owns the active map document: it loads it from a
// storage gateway, applies mutations, persists them and publishes change
// events.
package mapservice

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/starford/tera/internal/apperr"
	"github.com/starford/tera/internal/checksum"
	"github.com/starford/tera/internal/mapdoc"
	"github.com/starford/tera/internal/models"
	"github.com/starford/tera/internal/sse"
	"github.com/starford/tera/internal/storage"
)

// ErrNotOpen is returned by every operation before Open succeeds.
var ErrNotOpen = errors.New("mapservice: session not open")

// Publisher receives map change events.
type Publisher interface {
	PublishMapEvent(kind string, ev sse.MapEvent)
}

// Result is the state of the document after an operation.
type Result struct {
	Doc      *models.MapDocument `json:"map"`
	Revision string              `json:"revision"`
	Changed  bool                `json:"changed"`
}

// Patch lists the document attributes PATCH /map may change. Nil fields
// are left alone.
type Patch struct {
	Title      *string            `json:"title,omitempty"`
	SectorMode *models.SectorMode `json:"sector_mode,omitempty"`
}

// Session holds the single active document. Mutations are serialised, run
// against a copy, and replace the active document only after the copy has
// been stored.
type Session struct {
	gw     storage.Gateway
	editor *mapdoc.Editor
	events Publisher
	logger *slog.Logger

	mu  sync.Mutex
	doc *models.MapDocument
	rev string
}

// New creates a session. events and logger may be nil.
func New(gw storage.Gateway, editor *mapdoc.Editor, events Publisher, logger *slog.Logger) *Session {
	if editor == nil {
		editor = mapdoc.NewEditor()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Session{gw: gw, editor: editor, events: events, logger: logger}
}

// Open loads the first stored document, or creates and stores the template
// document when the store is empty.
func (s *Session) Open(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, err := s.gw.First(ctx)
	switch {
	case errors.Is(err, apperr.ErrNotFound):
		doc, err := s.editor.FromTemplate()
		if err != nil {
			return fmt.Errorf("mapservice: create template: %w", err)
		}
		rev, err := s.gw.Put(ctx, doc)
		if err != nil {
			return fmt.Errorf("mapservice: store template: %w", err)
		}
		s.doc, s.rev = doc, rev
		s.logger.Info("map created from template", slog.String("id", doc.ID))
		return nil
	case err != nil:
		return fmt.Errorf("mapservice: load map: %w", err)
	}

	if err := s.editor.Accept(rec.Doc); err != nil {
		return fmt.Errorf("mapservice: stored map %s: %w", rec.Doc.ID, err)
	}
	s.doc, s.rev = rec.Doc, rec.Revision
	s.logger.Info("map loaded", slog.String("id", rec.Doc.ID), slog.String("revision", rec.Revision))
	return nil
}

// Current returns a copy of the active document and its revision.
func (s *Session) Current() (Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.doc == nil {
		return Result{}, ErrNotOpen
	}
	return Result{Doc: s.doc.Clone(), Revision: s.rev}, nil
}

// Mode returns the active sector mode.
func (s *Session) Mode() (models.SectorMode, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.doc == nil {
		return "", ErrNotOpen
	}
	return s.doc.SectorMode, nil
}

// mutation edits a working copy and reports whether it changed anything.
type mutation func(doc *models.MapDocument) (bool, error)

// apply runs fn on a copy of the active document. When fn reports a change
// the copy is stored, swapped in and announced with an event of kind.
// ifMatch, when set, must name the current revision.
func (s *Session) apply(ctx context.Context, ifMatch, kind string, fid int, fn mutation) (Result, error) {
	s.mu.Lock()
	if s.doc == nil {
		s.mu.Unlock()
		return Result{}, ErrNotOpen
	}
	if !checksum.Matches(ifMatch, s.rev) {
		s.mu.Unlock()
		return Result{}, fmt.Errorf("mapservice: revision %s is stale: %w", ifMatch, apperr.ErrConflict)
	}

	work := s.doc.Clone()
	changed, err := fn(work)
	if err != nil {
		s.mu.Unlock()
		return Result{}, err
	}
	if !changed {
		res := Result{Doc: work, Revision: s.rev}
		s.mu.Unlock()
		return res, nil
	}

	rev, err := s.gw.Put(ctx, work)
	if err != nil {
		s.mu.Unlock()
		return Result{}, fmt.Errorf("mapservice: store map: %w", err)
	}
	s.doc, s.rev = work, rev
	res := Result{Doc: work.Clone(), Revision: rev, Changed: true}
	s.mu.Unlock()

	s.publish(kind, res, fid)
	return res, nil
}

func (s *Session) publish(kind string, res Result, fid int) {
	if s.events == nil {
		return
	}
	s.events.PublishMapEvent(kind, sse.MapEvent{
		MapID:      res.Doc.ID,
		Revision:   res.Revision,
		FunctionID: fid,
		UpdatedAt:  res.Doc.UpdatedAt,
	})
}

// SetSectorImage stores a data URI image for a sector.
func (s *Session) SetSectorImage(ctx context.Context, ifMatch string, fid int, payload string) (Result, error) {
	return s.apply(ctx, ifMatch, sse.SectorImageSet, fid, func(doc *models.MapDocument) (bool, error) {
		return true, s.editor.SetSectorImage(doc, fid, payload)
	})
}

// DeleteSectorImage removes a sector image. Removing an absent image is a
// no-op that stores nothing.
func (s *Session) DeleteSectorImage(ctx context.Context, ifMatch string, fid int) (Result, error) {
	return s.apply(ctx, ifMatch, sse.SectorImageDeleted, fid, func(doc *models.MapDocument) (bool, error) {
		if !models.ValidFunctionID(fid) {
			return false, &mapdoc.SectorError{FunctionID: fid, Mode: doc.SectorMode}
		}
		return s.editor.DeleteSectorImage(doc, fid), nil
	})
}

// ExportSectorImages returns the exchange file for the active document.
func (s *Session) ExportSectorImages() ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.doc == nil {
		return nil, ErrNotOpen
	}
	return s.editor.ExportSectorImages(s.doc)
}

// ImportSectorImages replaces all sector images with the file content.
func (s *Session) ImportSectorImages(ctx context.Context, ifMatch string, data []byte) (Result, error) {
	return s.apply(ctx, ifMatch, sse.SectorImagesImported, 0, func(doc *models.MapDocument) (bool, error) {
		return true, s.editor.ImportSectorImages(doc, data)
	})
}

// Update applies a title and/or sector mode change.
func (s *Session) Update(ctx context.Context, ifMatch string, p Patch) (Result, error) {
	return s.apply(ctx, ifMatch, sse.MapUpdated, 0, func(doc *models.MapDocument) (bool, error) {
		changed := false
		if p.SectorMode != nil {
			c, err := s.editor.SetSectorMode(doc, *p.SectorMode)
			if err != nil {
				return false, err
			}
			changed = c
		}
		if p.Title != nil && s.editor.SetTitle(doc, *p.Title) {
			changed = true
		}
		return changed, nil
	})
}

// AddNode appends a guarded node.
func (s *Session) AddNode(ctx context.Context, ifMatch string, n models.Node) (models.Node, Result, error) {
	var added models.Node
	res, err := s.apply(ctx, ifMatch, sse.MapUpdated, 0, func(doc *models.MapDocument) (bool, error) {
		var err error
		added, err = s.editor.AddNode(doc, n)
		return err == nil, err
	})
	return added, res, err
}

// MoveNode repositions a node.
func (s *Session) MoveNode(ctx context.Context, ifMatch, id string, pos models.Position) (Result, error) {
	return s.apply(ctx, ifMatch, sse.MapUpdated, 0, func(doc *models.MapDocument) (bool, error) {
		return s.editor.MoveNode(doc, id, pos)
	})
}

// RemoveNode deletes a node and its edges.
func (s *Session) RemoveNode(ctx context.Context, ifMatch, id string) (Result, error) {
	return s.apply(ctx, ifMatch, sse.MapUpdated, 0, func(doc *models.MapDocument) (bool, error) {
		return true, s.editor.RemoveNode(doc, id)
	})
}

// AddEdge connects two nodes.
func (s *Session) AddEdge(ctx context.Context, ifMatch string, ed models.Edge) (models.Edge, Result, error) {
	var added models.Edge
	res, err := s.apply(ctx, ifMatch, sse.MapUpdated, 0, func(doc *models.MapDocument) (bool, error) {
		var err error
		added, err = s.editor.AddEdge(doc, ed)
		return err == nil, err
	})
	return added, res, err
}

// Reload re-reads document id from storage after an external change and
// swaps it in when its revision differs from the active one. Changes to
// other documents are ignored.
func (s *Session) Reload(ctx context.Context, id string) (bool, error) {
	s.mu.Lock()
	if s.doc == nil || s.doc.ID != id {
		s.mu.Unlock()
		return false, nil
	}
	rev, err := s.gw.Revision(ctx, id)
	if err != nil {
		s.mu.Unlock()
		return false, fmt.Errorf("mapservice: reload %s: %w", id, err)
	}
	if rev == s.rev {
		s.mu.Unlock()
		return false, nil
	}
	rec, err := s.gw.Get(ctx, id)
	if err != nil {
		s.mu.Unlock()
		return false, fmt.Errorf("mapservice: reload %s: %w", id, err)
	}
	if err := s.editor.Accept(rec.Doc); err != nil {
		s.mu.Unlock()
		return false, fmt.Errorf("mapservice: reload %s: %w", id, err)
	}
	s.doc, s.rev = rec.Doc, rec.Revision
	res := Result{Doc: rec.Doc.Clone(), Revision: rec.Revision, Changed: true}
	s.mu.Unlock()

	s.logger.Info("map reloaded", slog.String("id", id), slog.String("revision", rec.Revision))
	s.publish(sse.MapReloaded, res, 0)
	return true, nil
}
