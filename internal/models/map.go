// Package models defines the domain types for TERA.
package models

import (
	"encoding/json"
	"errors"
	"fmt"
	"maps"
	"slices"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
)

// SectorMode selects how many wedges the map shows.
type SectorMode string

// Sector modes.
const (
	SectorMode4  SectorMode = "4"
	SectorMode12 SectorMode = "12"
)

// DefaultLayerMode is the only layer mode in use.
const DefaultLayerMode = "all"

// MapDocument is the single persisted unit of state.
type MapDocument struct {
	ID           string       `json:"id"`
	Title        string       `json:"title"`
	SectorMode   SectorMode   `json:"sector_mode"`
	LayerMode    string       `json:"layer_mode"`
	CreatedAt    time.Time    `json:"created_at"`
	UpdatedAt    time.Time    `json:"updated_at"`
	SectorImages SectorImages `json:"sector_images"`
	Nodes        []Node       `json:"nodes"`
	Edges        []Edge       `json:"edges"`
}

// SectorImages maps a function id to an image payload (a data URI).
// A missing key means the sector has no image.
type SectorImages map[int]string

// MarshalJSON encodes a nil mapping as {}.
func (s SectorImages) MarshalJSON() ([]byte, error) {
	if s == nil {
		return []byte("{}"), nil
	}
	return json.Marshal(map[int]string(s))
}

// Position is a node location on the canvas.
type Position struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Node is a map entry tied to one taxonomy function.
type Node struct {
	ID         string    `json:"id"`
	Title      string    `json:"title"`
	Synopsis   string    `json:"synopsis"`
	FunctionID int       `json:"function_id"`
	Position   Position  `json:"position"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`

	// Extra keeps keys outside the schema so they survive a round trip and
	// remain visible to the guard.
	Extra map[string]json.RawMessage `json:"-"`
}

var nodeKeys = []string{"id", "title", "synopsis", "function_id", "position", "created_at", "updated_at"}

type nodeAlias Node

// UnmarshalJSON decodes the schema fields and collects the rest into Extra.
func (n *Node) UnmarshalJSON(data []byte) error {
	var a nodeAlias
	extra, err := decodeWithExtra(data, &a, nodeKeys)
	if err != nil {
		return err
	}
	a.Extra = extra
	*n = Node(a)
	return nil
}

// MarshalJSON encodes the schema fields followed by Extra.
func (n Node) MarshalJSON() ([]byte, error) {
	return encodeWithExtra(nodeAlias(n), n.Extra)
}

// Keys returns every key the node carries.
func (n Node) Keys() []string {
	return withExtraKeys(nodeKeys, n.Extra)
}

// RecordID returns the node id.
func (n Node) RecordID() string { return n.ID }

// Validate checks the node structure.
func (n Node) Validate() error {
	return validation.ValidateStruct(&n,
		validation.Field(&n.ID, validation.Required),
		validation.Field(&n.FunctionID, validation.Required, validation.Min(1), validation.Max(FunctionCount)),
	)
}

// Edge connects two nodes. The map does not interpret edges beyond their
// endpoints.
type Edge struct {
	ID    string `json:"id"`
	From  string `json:"from"`
	To    string `json:"to"`
	Label string `json:"label,omitempty"`

	Extra map[string]json.RawMessage `json:"-"`
}

var edgeKeys = []string{"id", "from", "to", "label"}

type edgeAlias Edge

// UnmarshalJSON decodes the schema fields and collects the rest into Extra.
func (e *Edge) UnmarshalJSON(data []byte) error {
	var a edgeAlias
	extra, err := decodeWithExtra(data, &a, edgeKeys)
	if err != nil {
		return err
	}
	a.Extra = extra
	*e = Edge(a)
	return nil
}

// MarshalJSON encodes the schema fields followed by Extra.
func (e Edge) MarshalJSON() ([]byte, error) {
	return encodeWithExtra(edgeAlias(e), e.Extra)
}

// Keys returns every key the edge carries.
func (e Edge) Keys() []string {
	return withExtraKeys(edgeKeys, e.Extra)
}

// RecordID returns the edge id.
func (e Edge) RecordID() string { return e.ID }

// Validate checks the edge structure.
func (e Edge) Validate() error {
	return validation.ValidateStruct(&e,
		validation.Field(&e.ID, validation.Required),
		validation.Field(&e.From, validation.Required),
		validation.Field(&e.To, validation.Required),
	)
}

// Validate checks the document structure. Guard checks are separate.
func (d *MapDocument) Validate() error {
	return validation.ValidateStruct(d,
		validation.Field(&d.ID, validation.Required),
		validation.Field(&d.SectorMode, validation.Required, validation.In(SectorMode4, SectorMode12)),
		validation.Field(&d.CreatedAt, validation.Required),
		validation.Field(&d.UpdatedAt, validation.Required, validation.By(notBefore(d.CreatedAt))),
		validation.Field(&d.SectorImages, validation.By(validImageKeys)),
		validation.Field(&d.Nodes),
		validation.Field(&d.Edges),
	)
}

func notBefore(min time.Time) validation.RuleFunc {
	return func(value interface{}) error {
		t, _ := value.(time.Time)
		if t.Before(min) {
			return errors.New("must not be before created_at")
		}
		return nil
	}
}

func validImageKeys(value interface{}) error {
	images, _ := value.(SectorImages)
	for fid := range images {
		if !ValidFunctionID(fid) {
			return fmt.Errorf("function id %d out of range", fid)
		}
	}
	return nil
}

// Normalize replaces nil collections with empty ones so the document always
// encodes as objects and arrays.
func (d *MapDocument) Normalize() {
	if d.SectorImages == nil {
		d.SectorImages = SectorImages{}
	}
	if d.Nodes == nil {
		d.Nodes = []Node{}
	}
	if d.Edges == nil {
		d.Edges = []Edge{}
	}
	if d.LayerMode == "" {
		d.LayerMode = DefaultLayerMode
	}
}

// Clone returns a deep copy.
func (d *MapDocument) Clone() *MapDocument {
	c := *d
	c.SectorImages = maps.Clone(d.SectorImages)
	c.Nodes = make([]Node, len(d.Nodes))
	for i, n := range d.Nodes {
		n.Extra = maps.Clone(n.Extra)
		c.Nodes[i] = n
	}
	c.Edges = make([]Edge, len(d.Edges))
	for i, e := range d.Edges {
		e.Extra = maps.Clone(e.Extra)
		c.Edges[i] = e
	}
	return &c
}

// NodeIndex returns the position of the node with id, or -1.
func (d *MapDocument) NodeIndex(id string) int {
	return slices.IndexFunc(d.Nodes, func(n Node) bool { return n.ID == id })
}

func decodeWithExtra(data []byte, target any, known []string) (map[string]json.RawMessage, error) {
	if err := json.Unmarshal(data, target); err != nil {
		return nil, err
	}
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, err
	}
	for _, k := range known {
		delete(raw, k)
	}
	if len(raw) == 0 {
		return nil, nil
	}
	return raw, nil
}

func encodeWithExtra(v any, extra map[string]json.RawMessage) ([]byte, error) {
	data, err := json.Marshal(v)
	if err != nil || len(extra) == 0 {
		return data, err
	}
	var merged map[string]json.RawMessage
	if err := json.Unmarshal(data, &merged); err != nil {
		return nil, err
	}
	for k, v := range extra {
		if _, ok := merged[k]; !ok {
			merged[k] = v
		}
	}
	return json.Marshal(merged)
}

func withExtraKeys(known []string, extra map[string]json.RawMessage) []string {
	keys := slices.Clone(known)
	for k := range extra {
		keys = append(keys, k)
	}
	return keys
}
