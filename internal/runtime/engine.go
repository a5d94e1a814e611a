package runtime

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/quotecraft/drew/internal/logging"
	"github.com/quotecraft/drew/pkg/domain"
	"github.com/quotecraft/drew/pkg/ports"
)

const (
	// DefaultClarifyThreshold is the number of consecutive clarify entries
	// after which delegated interpretation is tried.
	DefaultClarifyThreshold = 2
	// DefaultMaxTranscript bounds the transcript carried in the context.
	DefaultMaxTranscript = 50
)

// Engine is the per-turn conversation reducer. It holds configuration and
// collaborators only; all conversation memory travels in the request.
type Engine struct {
	def     Definition
	guards  map[GuardName]Guard
	actions map[ActionName]Action

	machine     *Machine
	coordinator *Coordinator
	parser      *Parser

	clarifyThreshold int
	maxTranscript    int

	hooks  domain.LifecycleHooks
	logger *slog.Logger
}

// EngineOption configures an Engine.
type EngineOption func(*Engine)

// WithLogger sets the structured logger.
func WithLogger(logger *slog.Logger) EngineOption {
	return func(e *Engine) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// WithLifecycleHooks registers observability hooks.
func WithLifecycleHooks(hooks domain.LifecycleHooks) EngineOption {
	return func(e *Engine) {
		e.hooks = hooks
	}
}

// WithKnowledgeBase sets the tradecraft document source.
func WithKnowledgeBase(kb ports.KnowledgeBase) EngineOption {
	return func(e *Engine) {
		e.coordinator.knowledge = kb
	}
}

// WithInterpreter enables delegated interpretation.
func WithInterpreter(i ports.Interpreter) EngineOption {
	return func(e *Engine) {
		e.coordinator.interpreter = i
	}
}

// WithChecklistAdjuster enables checklist adjustment from scoping answers.
func WithChecklistAdjuster(a ports.ChecklistAdjuster) EngineOption {
	return func(e *Engine) {
		e.coordinator.adjuster = a
	}
}

// WithProductSearcher sets the product catalog.
func WithProductSearcher(s ports.ProductSearcher) EngineOption {
	return func(e *Engine) {
		e.coordinator.searcher = s
	}
}

// WithJobOptions fixes the job types known to the parser instead of asking
// the knowledge base on every turn.
func WithJobOptions(jobs []domain.JobOption) EngineOption {
	return func(e *Engine) {
		e.coordinator.jobOptions = append([]domain.JobOption(nil), jobs...)
	}
}

// WithClarifyThreshold sets after how many consecutive clarify entries the
// engine escalates to delegated interpretation (default 2).
func WithClarifyThreshold(n int) EngineOption {
	return func(e *Engine) {
		if n > 0 {
			e.clarifyThreshold = n
		}
	}
}

// WithCollaboratorTimeout bounds every collaborator call.
func WithCollaboratorTimeout(d time.Duration) EngineOption {
	return func(e *Engine) {
		if d > 0 {
			e.coordinator.timeout = d
		}
	}
}

// WithSearchConcurrency bounds concurrent category lookups.
func WithSearchConcurrency(n int) EngineOption {
	return func(e *Engine) {
		if n > 0 {
			e.coordinator.concurrency = n
		}
	}
}

// WithSearchLimit caps the products offered per category.
func WithSearchLimit(n int) EngineOption {
	return func(e *Engine) {
		if n > 0 {
			e.coordinator.searchLimit = n
		}
	}
}

// WithMaxTranscript bounds the transcript kept in the context.
func WithMaxTranscript(n int) EngineOption {
	return func(e *Engine) {
		if n > 0 {
			e.maxTranscript = n
		}
	}
}

// WithDefinition replaces the machine definition and, when non-nil, the
// guard and action registries.
func WithDefinition(def Definition, guards map[GuardName]Guard, actions map[ActionName]Action) EngineOption {
	return func(e *Engine) {
		e.def = def
		e.guards = guards
		e.actions = actions
	}
}

// NewEngine creates an engine and validates its machine definition.
func NewEngine(opts ...EngineOption) (*Engine, error) {
	e := &Engine{
		coordinator: &Coordinator{
			timeout:     DefaultCollaboratorTimeout,
			concurrency: DefaultSearchConcurrency,
			searchLimit: DefaultSearchLimit,
		},
		clarifyThreshold: DefaultClarifyThreshold,
		maxTranscript:    DefaultMaxTranscript,
		logger:           logging.NewNop(),
	}
	for _, opt := range opts {
		opt(e)
	}

	if e.def == nil {
		e.def = DefaultDefinition()
	}
	machine, err := NewMachine(e.def, e.guards, e.actions)
	if err != nil {
		e.logger.Error("invalid machine definition", "err", err)
		return nil, err
	}
	e.machine = machine

	e.coordinator.hooks = e.hooks
	e.coordinator.logger = e.logger
	e.parser = NewParser(e.coordinator, e.logger)
	return e, nil
}

// turn is the outcome of one dispatch before the transcript is appended.
type turn struct {
	state    domain.ConversationState
	ctx      *domain.Context
	rendered Rendered
}

// Dispatch handles exactly one user turn:
// parse, hydrate, transition, act, enter, enrich, resolve always, render.
// User behaviour and collaborator failures never produce an error; only a
// defect in the machine definition does.
func (e *Engine) Dispatch(ctx context.Context, req domain.Request) (*domain.Response, error) {
	state, c := e.prepare(req)
	text := strings.TrimSpace(req.Input.Text)

	var (
		out turn
		err error
	)
	switch {
	case text == "" && req.Input.Command == nil:
		// Nothing to parse: re-display the current step.
		out = turn{state: state, ctx: c, rendered: e.render(ctx, state, c, nil, req.Settings)}
	case state == domain.StateClarify:
		out, err = e.clarify(ctx, c, req.Input, req.Settings)
	default:
		ev := e.parser.Parse(ctx, state, req.Input, c)
		out, err = e.step(ctx, state, c, ev, text, req.Settings)
	}
	if err != nil {
		e.logger.Error("machine contract violation", "state", state, "err", err)
		return nil, err
	}

	final := appendTranscript(out.ctx, req.Input, out.rendered.Message, e.maxTranscript)
	replies := out.rendered.QuickReplies
	if replies == nil {
		replies = []string{}
	}
	return &domain.Response{
		State:        out.state,
		Context:      final,
		Message:      out.rendered.Message,
		QuickReplies: replies,
		Display:      out.rendered.Display,
		Complete:     out.rendered.Complete,
	}, nil
}

// Describe returns the transition table for introspection.
func (e *Engine) Describe() []domain.Transition {
	return e.machine.Describe()
}

// step applies ev in state: a declared transition advances the machine,
// anything else falls back to clarify.
func (e *Engine) step(ctx context.Context, state domain.ConversationState, c *domain.Context, ev domain.Event, text string, s domain.Settings) (turn, error) {
	ev = e.coordinator.Hydrate(ctx, ev)

	t, ok, err := e.machine.Match(state, c, ev)
	if err != nil {
		return turn{}, err
	}
	if !ok {
		return e.fallback(ctx, state, c, ev, text, s), nil
	}
	return e.advance(ctx, state, c, ev, t, s)
}

func (e *Engine) advance(ctx context.Context, state domain.ConversationState, c *domain.Context, ev domain.Event, t Transition, s domain.Settings) (turn, error) {
	e.emitLeave(ctx, state, ev.Type(), false)

	next, err := e.machine.Apply(state, t, c, ev)
	if err != nil {
		return turn{}, err
	}
	if t.Target != domain.StateClarify {
		next = leaveClarify(next)
	}
	e.logger.Debug("transition", "state", state, "event", ev.Type(), "target", t.Target)

	target, next, err := e.settle(ctx, t.Target, next, ev.Type())
	if err != nil {
		return turn{}, err
	}
	return turn{state: target, ctx: next, rendered: e.render(ctx, target, next, ev, s)}, nil
}

// settle enters state, folds in its enrichment, then follows automatic
// transitions, repeating enrichment for every hop. A chain longer than the
// number of states can only come from a cyclic definition.
func (e *Engine) settle(ctx context.Context, state domain.ConversationState, c *domain.Context, et domain.EventType) (domain.ConversationState, *domain.Context, error) {
	limit := len(domain.AllStates())
	for hops := 0; ; hops++ {
		e.emitEnter(ctx, state, et, hops > 0)
		c = e.coordinator.Enter(ctx, state, c)

		t, ok, err := e.machine.Always(state, c)
		if err != nil {
			return state, c, err
		}
		if !ok {
			return state, c, nil
		}
		if hops >= limit {
			return state, c, &domain.ContractError{Kind: domain.ContractRunawayChain, Name: string(t.Target), State: state}
		}

		e.emitLeave(ctx, state, "", true)
		c, err = e.machine.Apply(state, t, c, nil)
		if err != nil {
			return state, c, err
		}
		e.logger.Debug("automatic transition", "state", state, "target", t.Target)
		state = t.Target
	}
}

// fallback routes an unparseable input or an undeclared event to clarify,
// stamping state as the retry target.
func (e *Engine) fallback(ctx context.Context, state domain.ConversationState, c *domain.Context, ev domain.Event, text string, s domain.Settings) turn {
	u, ok := ev.(domain.UnclearEvent)
	if !ok {
		u = domain.UnclearEvent{}
	}
	if u.Text == "" {
		u.Text = text
	}

	next := EnterClarify(c, u, state)
	e.logger.Debug("routing to clarify", "state", state, "event", ev.Type(), "attempts", next.ClarifyAttempts)
	if state != domain.StateClarify {
		e.emitLeave(ctx, state, ev.Type(), false)
		e.emitEnter(ctx, domain.StateClarify, ev.Type(), false)
	}
	e.emitClarify(ctx, next, false)

	return turn{state: domain.StateClarify, ctx: next, rendered: e.render(ctx, domain.StateClarify, next, u, s)}
}

func (e *Engine) render(ctx context.Context, state domain.ConversationState, c *domain.Context, ev domain.Event, s domain.Settings) Rendered {
	r := Renderer{ClarifyThreshold: e.clarifyThreshold}
	if state == domain.StateJobSelection || (state == domain.StateClarify && c.PreviousState == domain.StateJobSelection) {
		r.Jobs = e.coordinator.JobOptions(ctx)
	}
	return r.Render(state, c, ev, s)
}

func appendTranscript(c *domain.Context, in domain.Input, reply string, limit int) *domain.Context {
	next := c.Clone()
	user := strings.TrimSpace(in.Text)
	if user == "" && in.Command != nil {
		user = "[" + in.Command.Name + "]"
	}
	if user != "" {
		next.Transcript = append(next.Transcript, domain.Turn{Role: domain.RoleUser, Text: user})
	}
	if reply != "" {
		next.Transcript = append(next.Transcript, domain.Turn{Role: domain.RoleAssistant, Text: reply})
	}
	if limit > 0 && len(next.Transcript) > limit {
		next.Transcript = append([]domain.Turn(nil), next.Transcript[len(next.Transcript)-limit:]...)
	}
	return next
}

func (e *Engine) emitEnter(ctx context.Context, state domain.ConversationState, et domain.EventType, automatic bool) {
	if e.hooks.OnStateEnter != nil {
		e.hooks.OnStateEnter(ctx, &domain.StateEvent{Timestamp: time.Now(), State: state, Event: et, Automatic: automatic})
	}
}

func (e *Engine) emitLeave(ctx context.Context, state domain.ConversationState, et domain.EventType, automatic bool) {
	if e.hooks.OnStateLeave != nil {
		e.hooks.OnStateLeave(ctx, &domain.StateEvent{Timestamp: time.Now(), State: state, Event: et, Automatic: automatic})
	}
}

func (e *Engine) emitClarify(ctx context.Context, c *domain.Context, escalated bool) {
	if e.hooks.OnClarify != nil {
		e.hooks.OnClarify(ctx, &domain.ClarifyEvent{
			Timestamp: time.Now(),
			Previous:  c.PreviousState,
			Attempts:  c.ClarifyAttempts,
			Escalated: escalated,
		})
	}
}
