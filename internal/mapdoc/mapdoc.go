// Package mapdoc implements the map document lifecycle: creation, template
// instantiation, and every mutation of sector images, nodes and edges.
//
// Operations work on a caller-owned *models.MapDocument and never touch
// storage. A failed operation leaves the document exactly as it was.
package mapdoc

import (
	"errors"
	"fmt"
	"maps"
	"slices"
	"time"

	"github.com/google/uuid"

	"github.com/starford/tera/internal/guard"
	"github.com/starford/tera/internal/imagedata"
	"github.com/starford/tera/internal/models"
	"github.com/starford/tera/internal/sectorfile"
)

const (
	DefaultTitle        = "TERA карта"
	TemplateTitle       = "Шаблон Лачиняна"
	PlaceholderSynopsis = "—"
)

// Editor creates and mutates documents using its clock and id source.
type Editor struct {
	Now   func() time.Time
	NewID func() string
}

// NewEditor returns an Editor using UTC wall time and random UUIDs.
func NewEditor() *Editor {
	return &Editor{
		Now:   func() time.Time { return time.Now().UTC() },
		NewID: uuid.NewString,
	}
}

// NewDefault returns an empty twelve-sector document.
func (e *Editor) NewDefault() *models.MapDocument {
	now := e.Now()
	return &models.MapDocument{
		ID:           e.NewID(),
		Title:        DefaultTitle,
		SectorMode:   models.SectorMode12,
		LayerMode:    models.DefaultLayerMode,
		CreatedAt:    now,
		UpdatedAt:    now,
		SectorImages: models.SectorImages{},
		Nodes:        []models.Node{},
		Edges:        []models.Edge{},
	}
}

// FromTemplate returns a fresh document holding one node per taxonomy
// function, in function order.
func (e *Editor) FromTemplate() (*models.MapDocument, error) {
	doc := e.NewDefault()
	doc.Title = TemplateTitle
	nodes := make([]models.Node, 0, models.FunctionCount)
	for i, name := range models.FunctionNames {
		nodes = append(nodes, e.newNode(i+1, name, PlaceholderSynopsis))
	}
	if err := guard.CheckNodes(nodes); err != nil {
		return nil, err
	}
	doc.Nodes = nodes
	return doc, nil
}

func (e *Editor) newNode(functionID int, title, synopsis string) models.Node {
	now := e.Now()
	return models.Node{
		ID:         e.NewID(),
		Title:      title,
		Synopsis:   synopsis,
		FunctionID: functionID,
		Position:   models.Position{X: 0, Y: 0},
		CreatedAt:  now,
		UpdatedAt:  now,
	}
}

// touch bumps updated_at, never moving it backwards.
func (e *Editor) touch(doc *models.MapDocument) time.Time {
	now := e.Now()
	if now.After(doc.UpdatedAt) {
		doc.UpdatedAt = now
	}
	return doc.UpdatedAt
}

// Accept validates a document entering the system from storage or from an
// external file: structure, sector image payloads, then the guard over nodes
// and edges. Every image Accept admits can be imported again.
func (e *Editor) Accept(doc *models.MapDocument) error {
	if doc == nil {
		return fmt.Errorf("%w: nil document", ErrInvalidDocument)
	}
	doc.Normalize()
	if err := doc.Validate(); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidDocument, err)
	}
	if fid, err := checkImages(doc.SectorImages); err != nil {
		return fmt.Errorf("%w: sector image %d: %v", ErrInvalidDocument, fid, err)
	}
	if err := guard.CheckNodes(doc.Nodes); err != nil {
		return err
	}
	return guard.CheckNodes(doc.Edges)
}

// SetSectorImage stores payload for functionID. The id must be addressable
// in the document's current sector mode and the payload must be a valid
// image data URI.
func (e *Editor) SetSectorImage(doc *models.MapDocument, functionID int, payload string) error {
	if !doc.SectorMode.Addressable(functionID) {
		return &SectorError{FunctionID: functionID, Mode: doc.SectorMode}
	}
	if _, err := imagedata.Parse(payload); err != nil {
		return err
	}
	if doc.SectorImages == nil {
		doc.SectorImages = models.SectorImages{}
	}
	doc.SectorImages[functionID] = payload
	e.touch(doc)
	return nil
}

// DeleteSectorImage removes the image for functionID and reports whether
// anything was removed. updated_at only moves on removal.
func (e *Editor) DeleteSectorImage(doc *models.MapDocument, functionID int) bool {
	if _, ok := doc.SectorImages[functionID]; !ok {
		return false
	}
	delete(doc.SectorImages, functionID)
	e.touch(doc)
	return true
}

// ExportSectorImages encodes the sector images as an exchange file.
func (e *Editor) ExportSectorImages(doc *models.MapDocument) ([]byte, error) {
	return sectorfile.Encode(doc.SectorImages)
}

// ImportSectorImages replaces the sector images wholesale with the content
// of an exchange file. Entries for sectors the current mode cannot address
// are kept, as they are when the mode is switched.
func (e *Editor) ImportSectorImages(doc *models.MapDocument, data []byte) error {
	f, err := sectorfile.Parse(data)
	if err != nil {
		reason := "unreadable file"
		if errors.Is(err, sectorfile.ErrWrongType) {
			reason = "type is not " + sectorfile.Type
		}
		return &MalformedImportError{Reason: reason, Err: err}
	}
	if fid, err := checkImages(f.Images); err != nil {
		return &MalformedImportError{Reason: fmt.Sprintf("image %d", fid), Err: err}
	}
	doc.SectorImages = models.SectorImages(f.Images)
	e.touch(doc)
	return nil
}

// checkImages applies the payload rule shared by loading and importing, in
// function id order. It returns the first failing id.
func checkImages(images map[int]string) (int, error) {
	for _, fid := range slices.Sorted(maps.Keys(images)) {
		if _, err := imagedata.Parse(images[fid]); err != nil {
			return fid, err
		}
	}
	return 0, nil
}

// SetSectorMode switches between four and twelve sectors and reports
// whether the mode changed. Stored images are never pruned.
func (e *Editor) SetSectorMode(doc *models.MapDocument, mode models.SectorMode) (bool, error) {
	if mode != models.SectorMode4 && mode != models.SectorMode12 {
		return false, fmt.Errorf("%w: %q", ErrInvalidMode, mode)
	}
	if doc.SectorMode == mode {
		return false, nil
	}
	doc.SectorMode = mode
	e.touch(doc)
	return true, nil
}

// SetTitle renames the document and reports whether the title changed.
func (e *Editor) SetTitle(doc *models.MapDocument, title string) bool {
	if doc.Title == title {
		return false
	}
	doc.Title = title
	e.touch(doc)
	return true
}

// AddNode appends a node after the guard and structural checks pass. A
// missing id or missing timestamps are filled in.
func (e *Editor) AddNode(doc *models.MapDocument, n models.Node) (models.Node, error) {
	if err := guard.CheckNode(n); err != nil {
		return models.Node{}, err
	}
	if n.ID == "" {
		n.ID = e.NewID()
	}
	if doc.NodeIndex(n.ID) >= 0 {
		return models.Node{}, fmt.Errorf("%w: node %s", ErrDuplicateID, n.ID)
	}
	if err := n.Validate(); err != nil {
		return models.Node{}, fmt.Errorf("%w: %v", ErrInvalidNode, err)
	}
	now := e.touch(doc)
	if n.CreatedAt.IsZero() {
		n.CreatedAt = now
	}
	if n.UpdatedAt.Before(n.CreatedAt) {
		n.UpdatedAt = n.CreatedAt
	}
	doc.Nodes = append(doc.Nodes, n)
	return n, nil
}

// MoveNode sets a node position and reports whether it moved.
func (e *Editor) MoveNode(doc *models.MapDocument, id string, pos models.Position) (bool, error) {
	i := doc.NodeIndex(id)
	if i < 0 {
		return false, fmt.Errorf("%w: %s", ErrNodeNotFound, id)
	}
	if doc.Nodes[i].Position == pos {
		return false, nil
	}
	doc.Nodes[i].Position = pos
	now := e.touch(doc)
	if now.After(doc.Nodes[i].UpdatedAt) {
		doc.Nodes[i].UpdatedAt = now
	}
	return true, nil
}

// RemoveNode deletes a node and every edge touching it.
func (e *Editor) RemoveNode(doc *models.MapDocument, id string) error {
	i := doc.NodeIndex(id)
	if i < 0 {
		return fmt.Errorf("%w: %s", ErrNodeNotFound, id)
	}
	doc.Nodes = slices.Delete(doc.Nodes, i, i+1)
	doc.Edges = slices.DeleteFunc(doc.Edges, func(ed models.Edge) bool {
		return ed.From == id || ed.To == id
	})
	e.touch(doc)
	return nil
}

// AddEdge connects two existing nodes.
func (e *Editor) AddEdge(doc *models.MapDocument, ed models.Edge) (models.Edge, error) {
	if err := guard.CheckNode(ed); err != nil {
		return models.Edge{}, err
	}
	if ed.ID == "" {
		ed.ID = e.NewID()
	}
	if slices.ContainsFunc(doc.Edges, func(x models.Edge) bool { return x.ID == ed.ID }) {
		return models.Edge{}, fmt.Errorf("%w: edge %s", ErrDuplicateID, ed.ID)
	}
	for _, end := range []string{ed.From, ed.To} {
		if doc.NodeIndex(end) < 0 {
			return models.Edge{}, fmt.Errorf("%w: %s", ErrNodeNotFound, end)
		}
	}
	doc.Edges = append(doc.Edges, ed)
	e.touch(doc)
	return ed, nil
}
