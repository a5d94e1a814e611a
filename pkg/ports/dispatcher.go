package ports

import (
	"context"

	"github.com/quotecraft/drew/pkg/domain"
)

// Dispatcher defines the per-turn conversation engine.
// It holds no state between calls: the caller stores the returned context and
// supplies it verbatim on the next turn. This is the primary interface used by
// adapters (e.g., HTTP, MCP, the terminal chat).
type Dispatcher interface {
	// Dispatch handles exactly one user turn. It returns an error only for
	// defects in the machine definition (*domain.ContractError).
	Dispatch(ctx context.Context, req domain.Request) (*domain.Response, error)

	// Describe returns the transition table for introspection.
	Describe() []domain.Transition
}
