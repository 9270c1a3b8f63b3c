// Package processor defines the pluggable transformation step invoked once
// per work unit, and a few concrete implementations of it.
//
// A Processor receives the staged input paths and the workspace out/
// directory. It reports its verdict as a Result, which is either Success or
// Failure; no third shape can be constructed outside this package.
package processor

import "context"

//go:generate mockgen -destination=mocks/mock_processor.go -package=mocks github.com/mattjoyce/automaton/internal/processor Processor

// Processor transforms one staged work unit.
type Processor interface {
	Process(ctx context.Context, inputs []string, outDir string) (Result, error)
}

// Func adapts an ordinary function to the Processor interface.
type Func func(ctx context.Context, inputs []string, outDir string) (Result, error)

// Process calls f.
func (f Func) Process(ctx context.Context, inputs []string, outDir string) (Result, error) {
	return f(ctx, inputs, outDir)
}

type unitIDKey struct{}

// WithUnitID annotates ctx with the work unit being processed.
func WithUnitID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, unitIDKey{}, id)
}

// UnitID returns the work unit annotated on ctx, or "".
func UnitID(ctx context.Context) string {
	id, _ := ctx.Value(unitIDKey{}).(string)
	return id
}
