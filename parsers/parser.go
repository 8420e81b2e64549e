// Package parsers turns raw manifest content into dependency records.
// There is one adapter per manifest format; new ecosystems are added as new adapters.
package parsers

import (
	"errors"
	"fmt"

	"github.com/ortelius/sbom-enricher/model"
)

// ErrNoParseableEntries is returned when a manifest had dependency entries but none of them could be read.
var ErrNoParseableEntries = errors.New("no parseable dependency entries")

// Adapter is the interface for manifest adapters
type Adapter interface {
	// Name identifies the manifest format (used in logs and errors)
	Name() string

	// Produce extracts the project metadata and dependency records from raw manifest content.
	// A malformed entry is skipped. Empty input yields an empty manifest.
	Produce(raw []byte) (*model.Manifest, error)
}

// tally counts candidate entries so an adapter can tell "nothing there" from "nothing readable".
type tally struct {
	candidates int
	malformed  int
}

func (t *tally) check(format string) error {
	if t.candidates > 0 && t.candidates == t.malformed {
		return fmt.Errorf("%s: all %d entries malformed: %w", format, t.candidates, ErrNoParseableEntries)
	}
	return nil
}
