package domain

// Transition is one row of the declarative transition table.
type Transition struct {
	From ConversationState `json:"from" yaml:"from"`

	// On is the event that triggers the row. Always marks an automatic
	// transition evaluated after entry, with no event.
	On     EventType `json:"on,omitempty" yaml:"on,omitempty"`
	Always bool      `json:"always,omitempty" yaml:"always,omitempty"`

	// Guard names a predicate over the context and event.
	// If empty, the row always matches.
	Guard string `json:"guard,omitempty" yaml:"guard,omitempty"`

	// Actions are applied in order to the cloned context.
	Actions []string `json:"actions,omitempty" yaml:"actions,omitempty"`

	To ConversationState `json:"to" yaml:"to"`
}

// AnyState is the wildcard source used for global transitions.
const AnyState ConversationState = "*"
