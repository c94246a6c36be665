package mapdoc

import (
	"errors"
	"fmt"

	"github.com/starford/tera/internal/models"
)

var (
	ErrNodeNotFound    = errors.New("mapdoc: node not found")
	ErrDuplicateID     = errors.New("mapdoc: duplicate id")
	ErrInvalidMode     = errors.New("mapdoc: invalid sector mode")
	ErrInvalidDocument = errors.New("mapdoc: invalid document")
	ErrInvalidNode     = errors.New("mapdoc: invalid node")
)

// SectorError reports a function id that the current sector mode cannot
// address.
type SectorError struct {
	FunctionID int
	Mode       models.SectorMode
}

func (e *SectorError) Error() string {
	return fmt.Sprintf("mapdoc: function %d is not addressable in %s-sector mode", e.FunctionID, e.Mode)
}

// MalformedImportError reports an import payload that failed shape, type or
// content validation. The document is left untouched.
type MalformedImportError struct {
	Reason string
	Err    error
}

func (e *MalformedImportError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("mapdoc: malformed import: %s: %v", e.Reason, e.Err)
	}
	return "mapdoc: malformed import: " + e.Reason
}

func (e *MalformedImportError) Unwrap() error { return e.Err }
