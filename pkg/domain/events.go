package domain

import (
	"context"
	"time"
)

// StateEvent represents entry into or exit from a conversation state.
type StateEvent struct {
	Timestamp time.Time         `json:"timestamp"`
	State     ConversationState `json:"state"`
	Event     EventType         `json:"event,omitempty"`
	Automatic bool              `json:"automatic,omitempty"` // Entered through an always transition
}

// CollaboratorEvent reports a call to an external collaborator.
type CollaboratorEvent struct {
	Timestamp time.Time     `json:"timestamp"`
	Name      string        `json:"name"` // e.g. "knowledge.lookup", "catalog.search"
	Duration  time.Duration `json:"duration"`
	Err       error         `json:"-"`
}

// ClarifyEvent reports a failed turn routed to the clarify state.
type ClarifyEvent struct {
	Timestamp time.Time         `json:"timestamp"`
	Previous  ConversationState `json:"previous"`
	Attempts  int               `json:"attempts"`
	Escalated bool              `json:"escalated"`
}

// LifecycleHooks defines callbacks for engine observability.
// OnCollaborator may be invoked concurrently while categories are searched.
type LifecycleHooks struct {
	OnStateEnter   func(context.Context, *StateEvent)
	OnStateLeave   func(context.Context, *StateEvent)
	OnCollaborator func(context.Context, *CollaboratorEvent)
	OnClarify      func(context.Context, *ClarifyEvent)
}
