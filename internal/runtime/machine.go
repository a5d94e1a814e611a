package runtime

import (
	"github.com/quotecraft/drew/pkg/domain"
)

// GuardName references a registered guard.
type GuardName string

// ActionName references a registered action.
type ActionName string

// Transition is a candidate move out of a state. An empty Guard always passes.
type Transition struct {
	Target  domain.ConversationState
	Guard   GuardName
	Actions []ActionName
}

// StateNode declares how a state reacts to events and what it does on entry.
// Candidates are tried in order; the first whose guard passes wins.
type StateNode struct {
	On     map[domain.EventType][]Transition
	Always []Transition
}

// Definition is the whole machine, keyed by state.
type Definition map[domain.ConversationState]StateNode

// DefaultDefinition returns the quote-building machine.
func DefaultDefinition() Definition {
	def := Definition{
		domain.StateGreeting: {
			On: map[domain.EventType][]Transition{
				domain.EventStart:     {{Target: domain.StateJobSelection}},
				domain.EventSelectJob: {{Target: domain.StateScoping, Actions: []ActionName{ActionLoadTradecraft}}},
			},
		},
		domain.StateJobSelection: {
			On: map[domain.EventType][]Transition{
				domain.EventSelectJob: {{Target: domain.StateScoping, Actions: []ActionName{ActionLoadTradecraft}}},
			},
		},
		domain.StateScoping: {
			On: map[domain.EventType][]Transition{
				domain.EventAnswerScoping: {{Target: domain.StateScoping, Actions: []ActionName{ActionRecordAnswer}}},
			},
			Always: []Transition{
				{Target: domain.StateChecklist, Guard: GuardNoMoreQuestions},
			},
		},
		domain.StateChecklist: {
			On: map[domain.EventType][]Transition{
				domain.EventConfirmChecklist: {{Target: domain.StateProductSelection, Actions: []ActionName{ActionStoreConfirmedChecklist}}},
				domain.EventSkipChecklist:    {{Target: domain.StateLabor, Actions: []ActionName{ActionSkipChecklist}}},
			},
			Always: []Transition{
				{Target: domain.StateLabor, Guard: GuardChecklistEmpty},
			},
		},
		domain.StateProductSelection: {
			On: map[domain.EventType][]Transition{
				domain.EventAddProducts:  {{Target: domain.StateLabor, Actions: []ActionName{ActionAddProducts}}},
				domain.EventSkipProducts: {{Target: domain.StateLabor, Actions: []ActionName{ActionSkipProducts}}},
			},
			Always: []Transition{
				{Target: domain.StateLabor, Guard: GuardProductsEmpty},
			},
		},
		domain.StateLabor: {
			On: map[domain.EventType][]Transition{
				domain.EventSetLabor: {{Target: domain.StateMarkup, Actions: []ActionName{ActionSetLabor}}},
			},
		},
		domain.StateMarkup: {
			On: map[domain.EventType][]Transition{
				domain.EventSetMarkup: {{Target: domain.StateReview, Actions: []ActionName{ActionSetMarkup}}},
			},
		},
		domain.StateReview: {
			On: map[domain.EventType][]Transition{
				domain.EventFinalize:    {{Target: domain.StateDone}},
				domain.EventAddProducts: {{Target: domain.StateReview, Actions: []ActionName{ActionAppendProducts}}},
			},
		},
		domain.StateDone:    {},
		domain.StateClarify: {},
	}

	reset := Transition{Target: domain.StateJobSelection, Actions: []ActionName{ActionReset}}
	for _, s := range domain.AllStates() {
		node := def[s]
		if node.On == nil {
			node.On = make(map[domain.EventType][]Transition)
		}
		node.On[domain.EventStartNew] = []Transition{reset}
		def[s] = node
	}
	return def
}

// Machine binds a definition to its guard and action registries.
type Machine struct {
	def     Definition
	guards  map[GuardName]Guard
	actions map[ActionName]Action
}

// NewMachine validates def against the registries. A nil registry uses the
// built-in one.
func NewMachine(def Definition, guards map[GuardName]Guard, actions map[ActionName]Action) (*Machine, error) {
	if guards == nil {
		guards = DefaultGuards()
	}
	if actions == nil {
		actions = DefaultActions()
	}
	m := &Machine{def: def, guards: guards, actions: actions}
	if err := m.Validate(); err != nil {
		return nil, err
	}
	return m, nil
}

// Match returns the transition declared for ev in state, if any.
func (m *Machine) Match(state domain.ConversationState, c *domain.Context, ev domain.Event) (Transition, bool, error) {
	node, ok := m.def[state]
	if !ok {
		return Transition{}, false, &domain.ContractError{Kind: domain.ContractUnknownState, Name: string(state), State: state}
	}
	if ev == nil {
		return Transition{}, false, nil
	}
	return m.pick(state, c, node.On[ev.Type()])
}

// Always returns the first automatic transition of state whose guard passes.
func (m *Machine) Always(state domain.ConversationState, c *domain.Context) (Transition, bool, error) {
	node, ok := m.def[state]
	if !ok {
		return Transition{}, false, &domain.ContractError{Kind: domain.ContractUnknownState, Name: string(state), State: state}
	}
	return m.pick(state, c, node.Always)
}

func (m *Machine) pick(state domain.ConversationState, c *domain.Context, candidates []Transition) (Transition, bool, error) {
	for _, t := range candidates {
		if t.Guard == "" {
			return t, true, nil
		}
		guard, ok := m.guards[t.Guard]
		if !ok {
			return Transition{}, false, &domain.ContractError{Kind: domain.ContractUnknownGuard, Name: string(t.Guard), State: state}
		}
		if guard(c) {
			return t, true, nil
		}
	}
	return Transition{}, false, nil
}

// Holds evaluates a registered guard by name outside of any transition.
func (m *Machine) Holds(name GuardName, c *domain.Context) (bool, error) {
	guard, ok := m.guards[name]
	if !ok {
		return false, &domain.ContractError{Kind: domain.ContractUnknownGuard, Name: string(name)}
	}
	return guard(c), nil
}

// Apply runs the transition's actions in declared order. Each action returns
// a new context; c itself is never modified.
func (m *Machine) Apply(state domain.ConversationState, t Transition, c *domain.Context, ev domain.Event) (*domain.Context, error) {
	next := c
	for _, name := range t.Actions {
		action, ok := m.actions[name]
		if !ok {
			return nil, &domain.ContractError{Kind: domain.ContractUnknownAction, Name: string(name), State: state}
		}
		next = action(next, ev)
	}
	if next == c {
		next = c.Clone()
	}
	return next, nil
}

// Declares reports whether state has any transition for the event type,
// regardless of guards.
func (m *Machine) Declares(state domain.ConversationState, et domain.EventType) bool {
	return len(m.def[state].On[et]) > 0
}

// Describe flattens the table into rows for introspection. Rows declared
// identically by every state are reported once with domain.AnyState.
func (m *Machine) Describe() []domain.Transition {
	var rows []domain.Transition
	global := m.globalEvents()

	for _, et := range domain.AllEventTypes() {
		if t, ok := global[et]; ok {
			rows = append(rows, row(domain.AnyState, et, false, t))
		}
	}
	for _, s := range domain.AllStates() {
		node := m.def[s]
		for _, et := range domain.AllEventTypes() {
			if _, ok := global[et]; ok {
				continue
			}
			for _, t := range node.On[et] {
				rows = append(rows, row(s, et, false, t))
			}
		}
		for _, t := range node.Always {
			rows = append(rows, row(s, "", true, t))
		}
	}
	return rows
}

func (m *Machine) globalEvents() map[domain.EventType]Transition {
	out := make(map[domain.EventType]Transition)
	for _, et := range domain.AllEventTypes() {
		var first *Transition
		shared := true
		for _, s := range domain.AllStates() {
			ts := m.def[s].On[et]
			if len(ts) != 1 {
				shared = false
				break
			}
			if first == nil {
				first = &ts[0]
				continue
			}
			if !sameTransition(*first, ts[0]) {
				shared = false
				break
			}
		}
		if shared && first != nil {
			out[et] = *first
		}
	}
	return out
}

func sameTransition(a, b Transition) bool {
	if a.Target != b.Target || a.Guard != b.Guard || len(a.Actions) != len(b.Actions) {
		return false
	}
	for i := range a.Actions {
		if a.Actions[i] != b.Actions[i] {
			return false
		}
	}
	return true
}

func row(from domain.ConversationState, et domain.EventType, always bool, t Transition) domain.Transition {
	actions := make([]string, 0, len(t.Actions))
	for _, a := range t.Actions {
		actions = append(actions, string(a))
	}
	return domain.Transition{
		From:    from,
		On:      et,
		Always:  always,
		Guard:   string(t.Guard),
		Actions: actions,
		To:      t.Target,
	}
}
