package ports

import (
	"context"

	"github.com/quotecraft/drew/pkg/domain"
)

// ContextStore defines the interface for persisting conversations between turns.
// The engine itself never stores anything; stores back the stateful transports.
type ContextStore interface {
	// Save persists the conversation under conv.ID.
	Save(ctx context.Context, conv *domain.Conversation) error

	// Load retrieves the conversation for a given ID.
	// Returns domain.ErrConversationNotFound if the conversation does not exist.
	Load(ctx context.Context, id string) (*domain.Conversation, error)

	// Delete removes the conversation for a given ID.
	Delete(ctx context.Context, id string) error

	// List returns the IDs of all stored conversations.
	List(ctx context.Context) ([]string, error)
}
