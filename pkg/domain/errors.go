package domain

import (
	"errors"
	"fmt"
)

// ErrConversationNotFound is returned when a conversation ID cannot be found in the store.
var ErrConversationNotFound = errors.New("conversation not found")

// ErrJobTypeNotFound is returned by knowledge bases that hold no document for a job type.
var ErrJobTypeNotFound = errors.New("job type not found")

// ErrUninterpretable is returned by interpreters that could not resolve the input.
var ErrUninterpretable = errors.New("input could not be interpreted")

// ErrInvalidState is returned when a request names a state outside the closed set.
var ErrInvalidState = errors.New("invalid conversation state")

// ContractKind classifies a defect in the machine definition.
type ContractKind string

const (
	ContractUnknownGuard  ContractKind = "unknown_guard"
	ContractUnknownAction ContractKind = "unknown_action"
	ContractUnknownTarget ContractKind = "unknown_target"
	ContractUnknownState  ContractKind = "unknown_state"
	ContractRunawayChain  ContractKind = "runaway_chain"
)

// ContractError reports a programmer error in the machine definition. It is
// the only error class the dispatch loop surfaces.
type ContractError struct {
	Kind  ContractKind
	Name  string
	State ConversationState
}

func (e *ContractError) Error() string {
	return fmt.Sprintf("machine contract violation (%s): %q in state %q", e.Kind, e.Name, e.State)
}
