package storage

import (
	"encoding/json"
	"fmt"

	"github.com/starford/tera/internal/checksum"
	"github.com/starford/tera/internal/models"
)

// Encode serialises doc the way every backend stores it.
func Encode(doc *models.MapDocument) ([]byte, error) {
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("storage: encode %s: %w", doc.ID, err)
	}
	return append(data, '\n'), nil
}

// Decode parses stored bytes into a record. Structural and guard validation
// is left to the caller.
func Decode(data []byte) (*Record, error) {
	var doc models.MapDocument
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("storage: decode: %w", err)
	}
	return &Record{Doc: &doc, Revision: checksum.Sum(data)}, nil
}
