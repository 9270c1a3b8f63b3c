// Package enumerate discovers work units in the input directory.
package enumerate

import (
	"context"
	"fmt"
	"iter"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

// WorkUnit is one batch of source paths discovered together.
type WorkUnit struct {
	ID    string
	Paths []string
}

// Enumerator yields work units lazily. Each call to Batches takes a fresh
// snapshot; a sequence cannot be restarted mid-scan.
type Enumerator interface {
	Batches(ctx context.Context) iter.Seq2[WorkUnit, error]
}

// Dir yields one single-path WorkUnit per entry of a directory.
type Dir struct {
	Path string
	// IgnoreHidden skips entries whose names start with ".".
	IgnoreHidden bool
}

var _ Enumerator = Dir{}

// Batches snapshots the directory listing when iteration starts. A listing
// failure is yielded once as an error and ends the sequence.
func (d Dir) Batches(ctx context.Context) iter.Seq2[WorkUnit, error] {
	return func(yield func(WorkUnit, error) bool) {
		root, err := filepath.Abs(d.Path)
		if err != nil {
			yield(WorkUnit{}, fmt.Errorf("resolve input directory: %w", err))
			return
		}

		entries, err := os.ReadDir(root)
		if err != nil {
			yield(WorkUnit{}, fmt.Errorf("list input directory: %w", err))
			return
		}

		for _, entry := range entries {
			if err := ctx.Err(); err != nil {
				yield(WorkUnit{}, err)
				return
			}
			if d.IgnoreHidden && strings.HasPrefix(entry.Name(), ".") {
				continue
			}
			unit := WorkUnit{
				ID:    uuid.NewString(),
				Paths: []string{filepath.Join(root, entry.Name())},
			}
			if !yield(unit, nil) {
				return
			}
		}
	}
}
