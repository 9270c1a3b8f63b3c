package processor

// Result is the verdict of a Processor. The only implementations are Success
// and Failure.
type Result interface {
	// Succeeded reports which terminal directory the inputs belong in.
	Succeeded() bool
	// Produced lists output paths under the workspace out/ directory.
	Produced() []string

	result()
}

// Success routes inputs to the success terminal directory and deletes the
// workspace after routing.
type Success struct {
	Outputs []string
}

// Failure routes inputs to the failure terminal directory and keeps the
// workspace. Outputs are still surfaced to the output directory.
type Failure struct {
	Outputs []string
	Reason  string
}

func (Success) Succeeded() bool      { return true }
func (s Success) Produced() []string { return s.Outputs }
func (Success) result()              {}

func (Failure) Succeeded() bool      { return false }
func (f Failure) Produced() []string { return f.Outputs }
func (Failure) result()              {}
