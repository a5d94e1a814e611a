package domain

// ConversationState names a stage of the quote-building dialogue.
type ConversationState string

const (
	StateGreeting         ConversationState = "greeting" // Initial
	StateJobSelection     ConversationState = "job_selection"
	StateScoping          ConversationState = "scoping"
	StateChecklist        ConversationState = "checklist"
	StateProductSelection ConversationState = "product_selection"
	StateLabor            ConversationState = "labor"
	StateMarkup           ConversationState = "markup"
	StateReview           ConversationState = "review"
	StateDone             ConversationState = "done" // Terminal
	StateClarify          ConversationState = "clarify"
)

var allStates = []ConversationState{
	StateGreeting,
	StateJobSelection,
	StateScoping,
	StateChecklist,
	StateProductSelection,
	StateLabor,
	StateMarkup,
	StateReview,
	StateDone,
	StateClarify,
}

// AllStates returns every conversation state in declaration order.
func AllStates() []ConversationState {
	out := make([]ConversationState, len(allStates))
	copy(out, allStates)
	return out
}

// Valid reports whether s belongs to the closed set of states.
func (s ConversationState) Valid() bool {
	for _, known := range allStates {
		if s == known {
			return true
		}
	}
	return false
}

// Terminal reports whether s is the sink state.
func (s ConversationState) Terminal() bool {
	return s == StateDone
}

// Conversation is the unit persisted by stores: a state tag plus the context
// that must be handed back on the next turn.
type Conversation struct {
	ID        string            `json:"id"`
	State     ConversationState `json:"state"`
	Context   *Context          `json:"context"`
	UpdatedAt int64             `json:"updated_at,omitempty"` // Unix seconds

	// Sealed holds an encrypted snapshot written by an encrypting store
	// wrapper. Context is empty while it is set.
	Sealed string `json:"sealed,omitempty"`
}

// NewConversation creates a fresh conversation positioned at the greeting.
func NewConversation(id string) *Conversation {
	return &Conversation{
		ID:      id,
		State:   StateGreeting,
		Context: NewContext(),
	}
}
