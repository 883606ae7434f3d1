package rewrite

import (
	"fmt"
	"strings"

	"github.com/mapcraft/leaflet-retrofit/internal/policy"
)

// MissingInputError reports that the input document does not exist at the
// expected path. Nothing has been written when this is returned.
type MissingInputError struct {
	Path string
}

func (e *MissingInputError) Error() string {
	return fmt.Sprintf("input document %s not found (run from the directory containing it, or point the config at it)", e.Path)
}

// StructureMismatchError reports that the document does not match the shape
// this tool knows how to transform. The run aborts before any mutation: the
// original document and the filesystem are untouched.
type StructureMismatchError struct {
	Violations []policy.Violation
}

func (e *StructureMismatchError) Error() string {
	lines := make([]string, 0, len(e.Violations))
	for _, v := range e.Violations {
		lines = append(lines, v.String())
	}
	return "document does not match the expected shape:\n  " + strings.Join(lines, "\n  ")
}

// WriteFailure reports a failed artifact write. State describes what had
// already been written, so the operator knows recovery via the backup is safe.
type WriteFailure struct {
	Stage string // "backup", "output" or "log"
	Path  string
	State string
	Err   error
}

func (e *WriteFailure) Error() string {
	return fmt.Sprintf("writing %s %s: %v (%s)", e.Stage, e.Path, e.Err, e.State)
}

func (e *WriteFailure) Unwrap() error {
	return e.Err
}
