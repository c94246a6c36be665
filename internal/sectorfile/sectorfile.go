// Package sectorfile reads and writes the sector-image exchange file.
//
// The file is a JSON object tagged with a fixed type discriminator:
//
//	{ "type": "tera-sector-images", "images": { "<functionId>": "<payload>" } }
package sectorfile

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
)

const (
	// Type is the discriminator every exchange file must carry.
	Type = "tera-sector-images"
	// Filename is the suggested download name.
	Filename = "tera-sector-images.json"

	maxFunctionID = 12
)

var (
	// ErrWrongType is returned when the type discriminator is missing or differs.
	ErrWrongType = errors.New("sectorfile: unexpected type discriminator")
	// ErrMalformed is returned for files that are not a well-formed exchange file.
	ErrMalformed = errors.New("sectorfile: malformed file")
)

// File is a decoded exchange file.
type File struct {
	Type   string         `json:"type"`
	Images map[int]string `json:"images"`
}

// Encode writes images as an exchange file: two-space indentation and a
// trailing newline.
func Encode(images map[int]string) ([]byte, error) {
	f := File{Type: Type, Images: images}
	if f.Images == nil {
		f.Images = map[int]string{}
	}
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(f); err != nil {
		return nil, fmt.Errorf("sectorfile: encode: %w", err)
	}
	return buf.Bytes(), nil
}

// Parse decodes an exchange file. A missing "images" member decodes to an
// empty mapping.
func Parse(data []byte) (*File, error) {
	var raw struct {
		Type   any            `json:"type"`
		Images map[string]any `json:"images"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}

	typ, _ := raw.Type.(string)
	if typ != Type {
		return nil, fmt.Errorf("%w: %q", ErrWrongType, typ)
	}

	images := make(map[int]string, len(raw.Images))
	for key, v := range raw.Images {
		fid, err := strconv.Atoi(key)
		if err != nil || fid < 1 || fid > maxFunctionID || strconv.Itoa(fid) != key {
			return nil, fmt.Errorf("%w: invalid function id %q", ErrMalformed, key)
		}
		payload, ok := v.(string)
		if !ok {
			return nil, fmt.Errorf("%w: image %d is not a string", ErrMalformed, fid)
		}
		images[fid] = payload
	}

	return &File{Type: typ, Images: images}, nil
}
