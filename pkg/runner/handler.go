package runner

import (
	"context"

	"github.com/quotecraft/drew/pkg/domain"
)

// IOHandler defines the strategy for interacting with the user.
// This allows switching between Text (terminal) and JSON (structured) modes.
type IOHandler interface {
	// Output presents one engine response.
	Output(ctx context.Context, resp *domain.Response) error

	// Input reads the next user turn. It returns io.EOF when the input is
	// exhausted and ctx.Err() when ctx is done first.
	Input(ctx context.Context) (domain.Input, error)

	// SystemOutput presents a meta-message (status, errors) that is not part
	// of the conversation.
	SystemOutput(ctx context.Context, msg string) error
}
