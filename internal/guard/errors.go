package guard

import (
	"errors"
	"fmt"
)

// ErrViolation matches every guard failure via errors.Is.
var ErrViolation = errors.New("guard violation")

// ForbiddenFieldError reports a node (or edge) record carrying a key from the
// forbidden field set.
type ForbiddenFieldError struct {
	Field string
	// Index is the position of the record within the checked sequence,
	// or -1 when a single record was checked.
	Index  int
	NodeID string
}

func (e *ForbiddenFieldError) Error() string {
	switch {
	case e.Index >= 0 && e.NodeID != "":
		return fmt.Sprintf("guard: forbidden node field %q in node #%d (%s)", e.Field, e.Index, e.NodeID)
	case e.Index >= 0:
		return fmt.Sprintf("guard: forbidden node field %q in node #%d", e.Field, e.Index)
	case e.NodeID != "":
		return fmt.Sprintf("guard: forbidden node field %q in node %s", e.Field, e.NodeID)
	default:
		return fmt.Sprintf("guard: forbidden node field %q", e.Field)
	}
}

// Is reports whether target is ErrViolation.
func (e *ForbiddenFieldError) Is(target error) bool { return target == ErrViolation }

// SystemVoiceError reports UI text containing a directive term.
type SystemVoiceError struct {
	Term string
	Lang string
	// Step is the onboarding step index, or -1 for free text.
	Step int
}

func (e *SystemVoiceError) Error() string {
	if e.Step >= 0 {
		return fmt.Sprintf("guard: system voice detected in onboarding step #%d: %q (%s)", e.Step, e.Term, e.Lang)
	}
	return fmt.Sprintf("guard: system voice detected: %q (%s)", e.Term, e.Lang)
}

// Is reports whether target is ErrViolation.
func (e *SystemVoiceError) Is(target error) bool { return target == ErrViolation }
