package runtime

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quotecraft/drew/pkg/domain"
)

func TestDefaultDefinition_IsValid(t *testing.T) {
	m, err := NewMachine(DefaultDefinition(), nil, nil)
	require.NoError(t, err)

	for _, s := range domain.AllStates() {
		assert.True(t, m.Declares(s, domain.EventStartNew), "%s must accept start_new", s)
	}
}

func TestDefaultDefinition_Table(t *testing.T) {
	m, err := NewMachine(DefaultDefinition(), nil, nil)
	require.NoError(t, err)

	tests := []struct {
		state domain.ConversationState
		ev    domain.Event
		want  domain.ConversationState
	}{
		{domain.StateGreeting, domain.StartEvent{}, domain.StateJobSelection},
		{domain.StateGreeting, domain.SelectJobEvent{JobType: "x"}, domain.StateScoping},
		{domain.StateJobSelection, domain.SelectJobEvent{JobType: "x"}, domain.StateScoping},
		{domain.StateScoping, domain.AnswerScopingEvent{Answer: "a"}, domain.StateScoping},
		{domain.StateChecklist, domain.ConfirmChecklistEvent{}, domain.StateProductSelection},
		{domain.StateChecklist, domain.SkipChecklistEvent{}, domain.StateLabor},
		{domain.StateProductSelection, domain.AddProductsEvent{}, domain.StateLabor},
		{domain.StateProductSelection, domain.SkipProductsEvent{}, domain.StateLabor},
		{domain.StateLabor, domain.SetLaborEvent{Hours: 1}, domain.StateMarkup},
		{domain.StateMarkup, domain.SetMarkupEvent{Percent: 1}, domain.StateReview},
		{domain.StateReview, domain.FinalizeEvent{}, domain.StateDone},
		{domain.StateReview, domain.AddProductsEvent{}, domain.StateReview},
		{domain.StateDone, domain.StartNewEvent{}, domain.StateJobSelection},
		{domain.StateClarify, domain.StartNewEvent{}, domain.StateJobSelection},
	}
	for _, tt := range tests {
		t.Run(string(tt.state)+"/"+string(tt.ev.Type()), func(t *testing.T) {
			tr, ok, err := m.Match(tt.state, domain.NewContext(), tt.ev)
			require.NoError(t, err)
			require.True(t, ok)
			assert.Equal(t, tt.want, tr.Target)
		})
	}

	t.Run("undeclared", func(t *testing.T) {
		_, ok, err := m.Match(domain.StateLabor, domain.NewContext(), domain.FinalizeEvent{})
		require.NoError(t, err)
		assert.False(t, ok)
	})
}

func TestMachine_Always(t *testing.T) {
	m, err := NewMachine(DefaultDefinition(), nil, nil)
	require.NoError(t, err)

	scoping := domain.NewContext()
	scoping.Tradecraft = panelDoc()

	tr, ok, err := m.Always(domain.StateScoping, scoping)
	require.NoError(t, err)
	assert.False(t, ok, "questions remain")

	scoping.ScopingIndex = 2
	tr, ok, err = m.Always(domain.StateScoping, scoping)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, domain.StateChecklist, tr.Target)

	tr, ok, err = m.Always(domain.StateChecklist, domain.NewContext())
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, domain.StateLabor, tr.Target)

	_, ok, err = m.Always(domain.StateLabor, domain.NewContext())
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestMachine_ApplyNeverMutates(t *testing.T) {
	m, err := NewMachine(DefaultDefinition(), nil, nil)
	require.NoError(t, err)

	c := domain.NewContext()
	c.Items = []domain.LineItem{{ProductID: "a", Quantity: 1}}
	before := c.Clone()

	tr, _, _ := m.Match(domain.StateReview, c, domain.FinalizeEvent{})
	next, err := m.Apply(domain.StateReview, tr, c, domain.FinalizeEvent{})
	require.NoError(t, err)
	assert.NotSame(t, c, next, "a transition without actions still yields a new context")
	assert.Equal(t, before, c)

	tr, _, _ = m.Match(domain.StateLabor, c, domain.SetLaborEvent{Hours: 3})
	next, err = m.Apply(domain.StateLabor, tr, c, domain.SetLaborEvent{Hours: 3})
	require.NoError(t, err)
	assert.Equal(t, 3.0, *next.LaborHours)
	assert.Nil(t, c.LaborHours)
}

func TestMachine_Validate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(Definition)
		kind   domain.ContractKind
		item   string
	}{
		{
			name:   "missing state",
			mutate: func(d Definition) { delete(d, domain.StateMarkup) },
			kind:   domain.ContractUnknownState,
			item:   "markup",
		},
		{
			name:   "unknown state key",
			mutate: func(d Definition) { d["limbo"] = StateNode{} },
			kind:   domain.ContractUnknownState,
			item:   "limbo",
		},
		{
			name: "unknown target",
			mutate: func(d Definition) {
				d[domain.StateLabor].On[domain.EventSetLabor] = []Transition{{Target: "nowhere"}}
			},
			kind: domain.ContractUnknownTarget,
			item: "nowhere",
		},
		{
			name: "unknown action",
			mutate: func(d Definition) {
				d[domain.StateLabor].On[domain.EventSetLabor] = []Transition{{Target: domain.StateMarkup, Actions: []ActionName{"chargeDouble"}}}
			},
			kind: domain.ContractUnknownAction,
			item: "chargeDouble",
		},
		{
			name: "unknown guard",
			mutate: func(d Definition) {
				d[domain.StateLabor].On[domain.EventSetLabor] = []Transition{{Target: domain.StateMarkup, Guard: "isFriday"}}
			},
			kind: domain.ContractUnknownGuard,
			item: "isFriday",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			def := DefaultDefinition()
			tt.mutate(def)

			_, err := NewMachine(def, nil, nil)
			var ce *domain.ContractError
			require.ErrorAs(t, err, &ce)
			assert.Equal(t, tt.kind, ce.Kind)
			assert.Equal(t, tt.item, ce.Name)
		})
	}
}

func TestMachine_CustomRegistries(t *testing.T) {
	def := DefaultDefinition()
	def[domain.StateLabor].On[domain.EventSetLabor] = []Transition{
		{Target: domain.StateReview, Guard: "skipMarkup", Actions: []ActionName{ActionSetLabor}},
		{Target: domain.StateMarkup, Actions: []ActionName{ActionSetLabor}},
	}
	guards := DefaultGuards()
	guards["skipMarkup"] = func(c *domain.Context) bool { return c.MarkupPercent != nil }

	m, err := NewMachine(def, guards, nil)
	require.NoError(t, err)

	tr, ok, err := m.Match(domain.StateLabor, domain.NewContext(), domain.SetLaborEvent{})
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, domain.StateMarkup, tr.Target)

	c := domain.NewContext()
	c.MarkupPercent = domain.Float(10)
	tr, ok, err = m.Match(domain.StateLabor, c, domain.SetLaborEvent{})
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, domain.StateReview, tr.Target, "first passing guard wins")
}

func TestMachine_RetryGuard(t *testing.T) {
	m, err := NewMachine(DefaultDefinition(), nil, nil)
	require.NoError(t, err)

	c := domain.NewContext()
	ok, err := m.Holds(GuardHasPreviousState, c)
	require.NoError(t, err)
	assert.False(t, ok)

	c.PreviousState = domain.StateLabor
	ok, err = m.Holds(GuardHasPreviousState, c)
	require.NoError(t, err)
	assert.True(t, ok)

	_, err = m.Holds("nope", c)
	var ce *domain.ContractError
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, domain.ContractUnknownGuard, ce.Kind)

	guards := DefaultGuards()
	delete(guards, GuardHasPreviousState)
	_, err = NewMachine(DefaultDefinition(), guards, nil)
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, "hasPreviousState", ce.Name)
}

func TestMachine_Describe(t *testing.T) {
	m, err := NewMachine(DefaultDefinition(), nil, nil)
	require.NoError(t, err)

	rows := m.Describe()
	require.NotEmpty(t, rows)

	assert.Equal(t, domain.Transition{
		From:    domain.AnyState,
		On:      domain.EventStartNew,
		Actions: []string{"reset"},
		To:      domain.StateJobSelection,
	}, rows[0])

	var resets, always int
	for _, r := range rows {
		if r.On == domain.EventStartNew {
			resets++
		}
		if r.Always {
			always++
			assert.NotEmpty(t, r.Guard)
		}
	}
	assert.Equal(t, 1, resets, "the global reset is collapsed into one row")
	assert.Equal(t, 3, always)
	assert.Contains(t, rows, domain.Transition{
		From:    domain.StateChecklist,
		On:      domain.EventConfirmChecklist,
		Actions: []string{"storeConfirmedChecklist"},
		To:      domain.StateProductSelection,
	})
}
