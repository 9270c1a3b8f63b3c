package automaton

import (
	"context"

	"github.com/mattjoyce/automaton/internal/ledger"
)

//go:generate mockgen -destination=mocks/mock_automaton.go -package=mocks github.com/mattjoyce/automaton/internal/automaton Recorder,Publisher

// Recorder persists unit outcomes. *ledger.Ledger satisfies it.
type Recorder interface {
	Begin(ctx context.Context, req ledger.BeginRequest) error
	Complete(ctx context.Context, req ledger.CompleteRequest) error
}

// Publisher receives lifecycle events. *events.Hub satisfies it.
type Publisher interface {
	Publish(eventType string, data any)
}
