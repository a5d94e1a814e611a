package runtime

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quotecraft/drew/pkg/domain"
)

func TestEngine_HappyPath(t *testing.T) {
	searcher := panelCatalog()
	e := newTestEngine(t, WithProductSearcher(searcher))

	resp := dispatch(t, e, domain.StateGreeting, nil, "start")
	assert.Equal(t, domain.StateJobSelection, resp.State)
	assert.Equal(t, []string{"EV Charger", "Outlet Install", "Panel Upgrade"}, resp.QuickReplies)

	resp = dispatch(t, e, resp.State, resp.Context, "panel upgrade")
	require.Equal(t, domain.StateScoping, resp.State)
	assert.Equal(t, "panel_upgrade", resp.Context.TradecraftJobType)
	assert.Contains(t, resp.Message, "What amperage")
	assert.Equal(t, []string{"100A", "200A"}, resp.QuickReplies)

	resp = dispatch(t, e, resp.State, resp.Context, "200a")
	require.Equal(t, domain.StateScoping, resp.State)
	assert.Equal(t, "200A", resp.Context.ScopingAnswers["amps"])
	assert.Equal(t, 1, resp.Context.ScopingIndex)

	resp = dispatch(t, e, resp.State, resp.Context, "outdoors")
	require.Equal(t, domain.StateChecklist, resp.State)
	require.NotNil(t, resp.Display)
	assert.Equal(t, domain.DisplayChecklist, resp.Display.Type)
	assert.Len(t, resp.Context.PendingChecklist, 3)

	resp = dispatch(t, e, resp.State, resp.Context, "looks good")
	require.Equal(t, domain.StateProductSelection, resp.State)
	assert.Empty(t, resp.Context.PendingChecklist, "product lookup consumes the checklist")
	require.Len(t, resp.Context.PendingProducts, 3)
	assert.Equal(t, "lc-200", resp.Context.PendingProducts[0].Product.ID)
	assert.Equal(t, 8.0, resp.Context.PendingProducts[1].Quantity)
	assert.Equal(t, domain.DisplayProductList, resp.Display.Type)

	resp = dispatch(t, e, resp.State, resp.Context, "1, 3")
	require.Equal(t, domain.StateLabor, resp.State)
	require.Len(t, resp.Context.Items, 2)
	assert.Equal(t, "w-2", resp.Context.Items[1].ProductID)
	assert.Equal(t, 2.0, resp.Context.Items[1].Quantity)
	assert.Empty(t, resp.Context.PendingProducts)
	require.NotNil(t, resp.Display)
	assert.Equal(t, domain.DisplayAddedItems, resp.Display.Type)

	resp = dispatch(t, e, resp.State, resp.Context, "4 hours at $75/hr")
	require.Equal(t, domain.StateMarkup, resp.State)
	assert.Equal(t, 4.0, *resp.Context.LaborHours)
	assert.Equal(t, 75.0, *resp.Context.LaborRate)

	resp = dispatch(t, e, resp.State, resp.Context, "20%")
	require.Equal(t, domain.StateReview, resp.State)
	require.NotNil(t, resp.Display.Summary)
	assert.InDelta(t, 607.2, resp.Display.Summary.Total, 1e-9)
	assert.Contains(t, resp.Message, "Total: $607.20")

	resp = dispatch(t, e, resp.State, resp.Context, "finalize")
	assert.Equal(t, domain.StateDone, resp.State)
	assert.True(t, resp.Complete)
	assert.Equal(t, []string{"Start new quote"}, resp.QuickReplies)

	resp = dispatch(t, e, resp.State, resp.Context, "new quote")
	assert.Equal(t, domain.StateJobSelection, resp.State)
	assert.Empty(t, resp.Context.Items)
	assert.Empty(t, resp.Context.TradecraftJobType)
}

func TestEngine_JobWithoutQuestionsGoesToChecklist(t *testing.T) {
	e := newTestEngine(t)

	resp := dispatch(t, e, domain.StateJobSelection, nil, "ev charger")
	assert.Equal(t, domain.StateChecklist, resp.State)
	assert.Equal(t, "ev_charger", resp.Context.TradecraftJobType)
	assert.Len(t, resp.Context.PendingChecklist, 1)
}

func TestEngine_JobWithNothingSkipsToLabor(t *testing.T) {
	e := newTestEngine(t)

	resp := dispatch(t, e, domain.StateJobSelection, nil, "outlet install")
	assert.Equal(t, domain.StateLabor, resp.State)
	assert.Equal(t, "outlet_install", resp.Context.TradecraftJobType)
}

func TestEngine_UnknownJobTypeHasNoGuidance(t *testing.T) {
	e := newTestEngine(t)

	resp := command(t, e, domain.StateJobSelection, nil, &domain.Command{
		Name: "select_job",
		Args: map[string]any{"job_type": "roof_repair"},
	})
	assert.Equal(t, domain.StateLabor, resp.State, "no document means nothing to scope or check")
	assert.Equal(t, "roof_repair", resp.Context.TradecraftJobType)
	assert.Nil(t, resp.Context.Tradecraft)
}

func TestEngine_ScopingEndAutoAdvancesThroughEmptyChecklist(t *testing.T) {
	e := newTestEngine(t)

	doc := &domain.TradecraftDoc{
		JobType:   "inspection",
		Questions: []domain.ScopingQuestion{{ID: "size", Prompt: "How big is the house?"}},
	}
	c := domain.NewContext()
	c.TradecraftJobType = doc.JobType
	c.Tradecraft = doc

	resp := dispatch(t, e, domain.StateScoping, c, "about 2000 sq ft")
	assert.Equal(t, domain.StateLabor, resp.State, "checklist must be skipped within the same dispatch")
	assert.Equal(t, "about 2000 sq ft", resp.Context.ScopingAnswers["size"])
	assert.Equal(t, 1, resp.Context.ScopingIndex)
}

func TestEngine_SkipChecklist(t *testing.T) {
	searcher := panelCatalog()
	e := newTestEngine(t, WithProductSearcher(searcher))

	c := domain.NewContext()
	c.Tradecraft = panelDoc()
	c.TradecraftJobType = "panel_upgrade"
	c.ScopingIndex = 2
	c.PendingChecklist = panelDoc().Checklist

	resp := dispatch(t, e, domain.StateChecklist, c, "skip")
	assert.Equal(t, domain.StateLabor, resp.State)
	assert.Empty(t, resp.Context.PendingChecklist)
	assert.Empty(t, searcher.calls(), "no product search on skip")
}

func TestEngine_ConfirmSubset(t *testing.T) {
	e := newTestEngine(t)

	c := domain.NewContext()
	c.Tradecraft = panelDoc()
	c.ScopingIndex = 2
	c.PendingChecklist = panelDoc().Checklist

	resp := dispatch(t, e, domain.StateChecklist, c, "just the breakers")
	require.Equal(t, domain.StateProductSelection, resp.State)
	require.Len(t, resp.Context.PendingProducts, 1)
	assert.Equal(t, "br-20", resp.Context.PendingProducts[0].Product.ID)
}

func TestEngine_NoProductsSkipsToLabor(t *testing.T) {
	e := newTestEngine(t, WithProductSearcher(&fakeSearcher{}))

	c := domain.NewContext()
	c.Tradecraft = panelDoc()
	c.ScopingIndex = 2
	c.PendingChecklist = panelDoc().Checklist

	resp := dispatch(t, e, domain.StateChecklist, c, "yes")
	assert.Equal(t, domain.StateLabor, resp.State)
	assert.Empty(t, resp.Context.PendingChecklist)
	assert.Empty(t, resp.Context.PendingProducts)
}

func TestEngine_Labor(t *testing.T) {
	e := newTestEngine(t)

	resp := dispatch(t, e, domain.StateLabor, nil, "4 hours")
	assert.Equal(t, domain.StateMarkup, resp.State)
	require.NotNil(t, resp.Context.LaborHours)
	assert.Equal(t, 4.0, *resp.Context.LaborHours)

	resp = dispatch(t, e, domain.StateLabor, nil, "garbage")
	assert.Equal(t, domain.StateClarify, resp.State)
	assert.Equal(t, domain.StateLabor, resp.Context.PreviousState)
	assert.Equal(t, 1, resp.Context.ClarifyAttempts)
	assert.Equal(t, "garbage", resp.Context.LastInput)
	assert.Contains(t, resp.Message, "How many hours")
	assert.Equal(t, laborReplies, resp.QuickReplies)
}

func TestEngine_NegativeAmountsRouteToClarify(t *testing.T) {
	e := newTestEngine(t)

	tests := []struct {
		state domain.ConversationState
		in    string
	}{
		{domain.StateMarkup, "-20%"},
		{domain.StateLabor, "-4 hours"},
		{domain.StateLabor, "4 hours at $-75/hr"},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			resp := dispatch(t, e, tt.state, nil, tt.in)
			assert.Equal(t, domain.StateClarify, resp.State)
			assert.Equal(t, tt.state, resp.Context.PreviousState)
			assert.Nil(t, resp.Context.MarkupPercent)
			assert.Nil(t, resp.Context.LaborHours)
			assert.Nil(t, resp.Context.LaborRate)
		})
	}
}

func TestEngine_ReviewTotal(t *testing.T) {
	e := newTestEngine(t)

	c := domain.NewContext()
	c.Items = []domain.LineItem{{ProductID: "p", Name: "Panel", UnitPrice: 250, Quantity: 2}}
	c.LaborHours = domain.Float(4)
	c.LaborRate = domain.Float(50)

	resp := dispatch(t, e, domain.StateMarkup, c, "20")
	require.Equal(t, domain.StateReview, resp.State)
	require.NotNil(t, resp.Display)
	require.NotNil(t, resp.Display.Summary)
	assert.InDelta(t, 800.0, resp.Display.Summary.Total, 1e-9)
	assert.Contains(t, resp.Message, "Total: $800.00")
}

func TestEngine_UndeclaredEventsRouteToClarify(t *testing.T) {
	e := newTestEngine(t)

	for _, state := range domain.AllStates() {
		if state == domain.StateClarify {
			continue
		}
		for _, et := range domain.AllEventTypes() {
			cmd := commandFor(et)
			if cmd == nil || e.machine.Declares(state, et) {
				continue
			}
			t.Run(string(state)+"/"+string(et), func(t *testing.T) {
				resp := command(t, e, state, domain.NewContext(), cmd)
				assert.Equal(t, domain.StateClarify, resp.State)
				assert.Equal(t, state, resp.Context.PreviousState)
				assert.Equal(t, 1, resp.Context.ClarifyAttempts)
			})
		}
	}
}

func TestEngine_UndeclaredEventInClarifyPreservesStamp(t *testing.T) {
	e := newTestEngine(t)

	for _, et := range domain.AllEventTypes() {
		cmd := commandFor(et)
		if cmd == nil || e.machine.Declares(domain.StateLabor, et) || et == domain.EventStartNew {
			continue
		}
		t.Run(string(et), func(t *testing.T) {
			c := domain.NewContext()
			c.PreviousState = domain.StateLabor
			c.ClarifyAttempts = 1

			resp := command(t, e, domain.StateClarify, c, cmd)
			assert.Equal(t, domain.StateClarify, resp.State)
			assert.Equal(t, domain.StateLabor, resp.Context.PreviousState, "retry target must survive re-entry")
			assert.Equal(t, 2, resp.Context.ClarifyAttempts)
		})
	}
}

func TestEngine_DeclaredCommandInClarifyRetries(t *testing.T) {
	e := newTestEngine(t)

	c := domain.NewContext()
	c.PreviousState = domain.StateLabor
	c.ClarifyAttempts = 1

	resp := command(t, e, domain.StateClarify, c, &domain.Command{Name: "set_labor", Args: map[string]any{"hours": "6"}})
	assert.Equal(t, domain.StateMarkup, resp.State)
	assert.Equal(t, 6.0, *resp.Context.LaborHours)
	assert.Zero(t, resp.Context.ClarifyAttempts)
	assert.Empty(t, resp.Context.PreviousState)
}

func TestEngine_DelegatedJobInterpretation(t *testing.T) {
	t.Run("resolved", func(t *testing.T) {
		interp := &fakeInterpreter{job: interpretation(true, "ev_charger")}
		e := newTestEngine(t, WithInterpreter(interp))

		resp := dispatch(t, e, domain.StateJobSelection, nil, "hook up the thing in the garage")
		assert.Equal(t, domain.StateChecklist, resp.State)
		assert.Equal(t, "ev_charger", resp.Context.TradecraftJobType)
		assert.Equal(t, 1, interp.jobCalls)
	})

	t.Run("unresolved carries the interpreter question", func(t *testing.T) {
		interp := &fakeInterpreter{job: interpretationMessage("Is this a charger or a panel job?", "EV Charger", "Panel Upgrade")}
		e := newTestEngine(t, WithInterpreter(interp))

		resp := dispatch(t, e, domain.StateJobSelection, nil, "something electrical")
		assert.Equal(t, domain.StateClarify, resp.State)
		assert.Equal(t, "Is this a charger or a panel job?", resp.Message)
		assert.Equal(t, []string{"EV Charger", "Panel Upgrade"}, resp.QuickReplies)
	})

	t.Run("unknown job key is not trusted", func(t *testing.T) {
		interp := &fakeInterpreter{job: interpretation(true, "roof_repair")}
		e := newTestEngine(t, WithInterpreter(interp))

		resp := dispatch(t, e, domain.StateJobSelection, nil, "fix my roof")
		assert.Equal(t, domain.StateClarify, resp.State)
	})

	t.Run("failure is soft", func(t *testing.T) {
		interp := &fakeInterpreter{jobErr: errors.New("model unavailable")}
		e := newTestEngine(t, WithInterpreter(interp))

		resp := dispatch(t, e, domain.StateJobSelection, nil, "something electrical")
		assert.Equal(t, domain.StateClarify, resp.State)
		assert.Equal(t, domain.StateJobSelection, resp.Context.PreviousState)
	})

	t.Run("not used in closed states", func(t *testing.T) {
		interp := &fakeInterpreter{job: interpretation(true, "ev_charger")}
		e := newTestEngine(t, WithInterpreter(interp))

		resp := dispatch(t, e, domain.StateLabor, nil, "whatever you think")
		assert.Equal(t, domain.StateClarify, resp.State)
		assert.Zero(t, interp.jobCalls)
	})
}

func TestEngine_RenderOnlyTurn(t *testing.T) {
	e := newTestEngine(t)

	resp := dispatch(t, e, "", nil, "")
	assert.Equal(t, domain.StateGreeting, resp.State)
	assert.Contains(t, resp.Message, "Drew")
	assert.Equal(t, []string{"Start"}, resp.QuickReplies)
	require.Len(t, resp.Context.Transcript, 1)
	assert.Equal(t, domain.RoleAssistant, resp.Context.Transcript[0].Role)
}

func TestEngine_DoesNotMutateRequestContext(t *testing.T) {
	e := newTestEngine(t)

	c := domain.NewContext()
	c.Tradecraft = panelDoc()
	c.TradecraftJobType = "panel_upgrade"
	before := c.Clone()

	_ = dispatch(t, e, domain.StateScoping, c, "200A")
	assert.Equal(t, before, c)
}

func TestEngine_Transcript(t *testing.T) {
	e := newTestEngine(t, WithMaxTranscript(3))

	resp := dispatch(t, e, domain.StateGreeting, nil, "start")
	require.Len(t, resp.Context.Transcript, 2)
	assert.Equal(t, domain.Turn{Role: domain.RoleUser, Text: "start"}, resp.Context.Transcript[0])

	resp = dispatch(t, e, resp.State, resp.Context, "panel upgrade")
	require.Len(t, resp.Context.Transcript, 3)
	assert.Equal(t, "panel upgrade", resp.Context.Transcript[1].Text)
}

func TestEngine_InvalidInputsAreTolerated(t *testing.T) {
	e := newTestEngine(t)

	resp := dispatch(t, e, "bogus", nil, "start")
	assert.Equal(t, domain.StateJobSelection, resp.State, "unknown state restarts at greeting")

	broken := domain.NewContext()
	broken.ScopingIndex = 7
	resp = dispatch(t, e, domain.StateLabor, broken, "start")
	assert.Equal(t, domain.StateJobSelection, resp.State, "invalid context restarts at greeting")
}

func TestEngine_LifecycleHooks(t *testing.T) {
	var entered, left []domain.StateEvent
	var collaborators []string
	hooks := domain.LifecycleHooks{
		OnStateEnter: func(_ context.Context, ev *domain.StateEvent) { entered = append(entered, *ev) },
		OnStateLeave: func(_ context.Context, ev *domain.StateEvent) { left = append(left, *ev) },
		OnCollaborator: func(_ context.Context, ev *domain.CollaboratorEvent) {
			collaborators = append(collaborators, ev.Name)
		},
	}
	e := newTestEngine(t, WithLifecycleHooks(hooks), WithProductSearcher(nil))

	_ = dispatch(t, e, domain.StateJobSelection, nil, "ev charger")

	require.Len(t, entered, 2)
	assert.Equal(t, domain.StateScoping, entered[0].State)
	assert.False(t, entered[0].Automatic)
	assert.Equal(t, domain.StateChecklist, entered[1].State)
	assert.True(t, entered[1].Automatic)

	require.Len(t, left, 2)
	assert.Equal(t, domain.StateJobSelection, left[0].State)
	assert.Equal(t, domain.EventSelectJob, left[0].Event)
	assert.Equal(t, domain.StateScoping, left[1].State)

	assert.Contains(t, collaborators, CollabKnowledgeLookup)
}

func TestEngine_ContractErrors(t *testing.T) {
	t.Run("unknown guard", func(t *testing.T) {
		def := DefaultDefinition()
		node := def[domain.StateLabor]
		node.Always = []Transition{{Target: domain.StateMarkup, Guard: "hasEverything"}}
		def[domain.StateLabor] = node

		_, err := NewEngine(WithDefinition(def, nil, nil))
		var ce *domain.ContractError
		require.ErrorAs(t, err, &ce)
		assert.Equal(t, domain.ContractUnknownGuard, ce.Kind)
		assert.Equal(t, "hasEverything", ce.Name)
	})

	t.Run("runaway chain", func(t *testing.T) {
		def := DefaultDefinition()
		scoping := def[domain.StateScoping]
		scoping.Always = []Transition{{Target: domain.StateChecklist}}
		def[domain.StateScoping] = scoping
		checklist := def[domain.StateChecklist]
		checklist.Always = []Transition{{Target: domain.StateScoping}}
		def[domain.StateChecklist] = checklist

		e, err := NewEngine(WithDefinition(def, nil, nil), WithKnowledgeBase(newFakeKB(panelDoc())))
		require.NoError(t, err)

		_, err = e.Dispatch(context.Background(), domain.Request{
			State: domain.StateJobSelection,
			Input: domain.Input{Text: "panel upgrade"},
		})
		var ce *domain.ContractError
		require.ErrorAs(t, err, &ce)
		assert.Equal(t, domain.ContractRunawayChain, ce.Kind)
	})
}

// commandFor returns a well-formed command for every event type that has one.
func commandFor(et domain.EventType) *domain.Command {
	switch et {
	case domain.EventSelectJob:
		return &domain.Command{Name: string(et), Args: map[string]any{"job_type": "panel_upgrade"}}
	case domain.EventAnswerScoping:
		return &domain.Command{Name: string(et), Args: map[string]any{"answer": "200A"}}
	case domain.EventSetLabor:
		return &domain.Command{Name: string(et), Args: map[string]any{"hours": 4}}
	case domain.EventSetMarkup:
		return &domain.Command{Name: string(et), Args: map[string]any{"percent": 10}}
	case domain.EventUnclear:
		return nil
	}
	return &domain.Command{Name: string(et)}
}
