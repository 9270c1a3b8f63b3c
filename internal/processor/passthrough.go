package processor

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/mattjoyce/automaton/internal/fsutil"
)

// Passthrough copies every staged regular file into the out directory
// unchanged and reports success. It is the reference processor for wiring
// checks and tests.
type Passthrough struct {
	// Suffix is appended to each output name, e.g. ".out".
	Suffix string
}

var _ Processor = Passthrough{}

// Process implements Processor.
func (p Passthrough) Process(ctx context.Context, inputs []string, outDir string) (Result, error) {
	outputs := make([]string, 0, len(inputs))
	for _, in := range inputs {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		info, err := os.Stat(in)
		if err != nil {
			return nil, err
		}
		if !info.Mode().IsRegular() {
			return Failure{Outputs: outputs, Reason: fmt.Sprintf("%s is not a regular file", filepath.Base(in))}, nil
		}

		dst := filepath.Join(outDir, filepath.Base(in)+p.Suffix)
		if err := fsutil.CopyFileVerified(in, dst); err != nil {
			return nil, fmt.Errorf("copy %s: %w", filepath.Base(in), err)
		}
		outputs = append(outputs, dst)
	}
	return Success{Outputs: outputs}, nil
}
