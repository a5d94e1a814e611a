package runtime

import (
	"github.com/quotecraft/drew/pkg/domain"
)

// Validate checks that the definition is logically sound: every state is
// declared, and every referenced guard, action and target exists. The
// registry must also carry GuardHasPreviousState, which gates clarify retries.
func (m *Machine) Validate() error {
	if _, ok := m.guards[GuardHasPreviousState]; !ok {
		return &domain.ContractError{Kind: domain.ContractUnknownGuard, Name: string(GuardHasPreviousState), State: domain.StateClarify}
	}

	for _, s := range domain.AllStates() {
		if _, ok := m.def[s]; !ok {
			return &domain.ContractError{Kind: domain.ContractUnknownState, Name: string(s), State: s}
		}
	}

	for _, s := range domain.AllStates() {
		node := m.def[s]
		for _, et := range domain.AllEventTypes() {
			for _, t := range node.On[et] {
				if err := m.validateTransition(s, t); err != nil {
					return err
				}
			}
		}
		for _, t := range node.Always {
			if err := m.validateTransition(s, t); err != nil {
				return err
			}
		}
	}

	for s := range m.def {
		if !s.Valid() {
			return &domain.ContractError{Kind: domain.ContractUnknownState, Name: string(s), State: s}
		}
	}
	return nil
}

func (m *Machine) validateTransition(s domain.ConversationState, t Transition) error {
	if !t.Target.Valid() {
		return &domain.ContractError{Kind: domain.ContractUnknownTarget, Name: string(t.Target), State: s}
	}
	if t.Guard != "" {
		if _, ok := m.guards[t.Guard]; !ok {
			return &domain.ContractError{Kind: domain.ContractUnknownGuard, Name: string(t.Guard), State: s}
		}
	}
	for _, a := range t.Actions {
		if _, ok := m.actions[a]; !ok {
			return &domain.ContractError{Kind: domain.ContractUnknownAction, Name: string(a), State: s}
		}
	}
	return nil
}
