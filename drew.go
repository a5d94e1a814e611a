package drew

import (
	"context"
	"log/slog"
	"time"

	"github.com/quotecraft/drew/internal/logging"
	"github.com/quotecraft/drew/internal/runtime"
	"github.com/quotecraft/drew/pkg/domain"
	"github.com/quotecraft/drew/pkg/ports"
)

// Engine is the high-level entry point for the Drew library.
// It wraps the internal runtime and provides a simplified API for consumers.
type Engine struct {
	runtime     *runtime.Engine
	runtimeOpts []runtime.EngineOption
	hooks       domain.LifecycleHooks
	logger      *slog.Logger
}

var _ ports.Dispatcher = (*Engine)(nil)

// Option defines a functional option for configuring the Engine.
type Option func(*Engine)

// WithLifecycleHooks registers observability hooks.
func WithLifecycleHooks(hooks domain.LifecycleHooks) Option {
	return func(e *Engine) {
		e.hooks = hooks
	}
}

// WithLogger sets a custom structured logger for the engine.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) {
		e.logger = logger
	}
}

// WithKnowledgeBase sets where tradecraft documents come from. Without one,
// every job type proceeds with no scoping questions and no checklist.
func WithKnowledgeBase(kb ports.KnowledgeBase) Option {
	return runtimeOption(runtime.WithKnowledgeBase(kb))
}

// WithInterpreter enables delegated interpretation of open-ended input.
func WithInterpreter(i ports.Interpreter) Option {
	return runtimeOption(runtime.WithInterpreter(i))
}

// WithChecklistAdjuster enables answer-driven checklist adjustment.
func WithChecklistAdjuster(a ports.ChecklistAdjuster) Option {
	return runtimeOption(runtime.WithChecklistAdjuster(a))
}

// WithProductSearcher sets the product catalog.
func WithProductSearcher(s ports.ProductSearcher) Option {
	return runtimeOption(runtime.WithProductSearcher(s))
}

// WithJobOptions fixes the list of job types the parser recognizes.
func WithJobOptions(jobs []domain.JobOption) Option {
	return runtimeOption(runtime.WithJobOptions(jobs))
}

// WithClarifyThreshold sets how many consecutive clarifications happen before
// delegated interpretation is tried (default 2).
func WithClarifyThreshold(n int) Option {
	return runtimeOption(runtime.WithClarifyThreshold(n))
}

// WithCollaboratorTimeout bounds each collaborator call (default 10s).
func WithCollaboratorTimeout(d time.Duration) Option {
	return runtimeOption(runtime.WithCollaboratorTimeout(d))
}

// WithSearchConcurrency bounds concurrent category searches (default 4).
func WithSearchConcurrency(n int) Option {
	return runtimeOption(runtime.WithSearchConcurrency(n))
}

// WithSearchLimit caps the products offered per checklist category (default 3).
func WithSearchLimit(n int) Option {
	return runtimeOption(runtime.WithSearchLimit(n))
}

// WithMaxTranscript bounds the transcript carried in the context (default 50 turns).
func WithMaxTranscript(n int) Option {
	return runtimeOption(runtime.WithMaxTranscript(n))
}

func runtimeOption(opt runtime.EngineOption) Option {
	return func(e *Engine) {
		e.runtimeOpts = append(e.runtimeOpts, opt)
	}
}

// New initializes a new Drew engine. It fails only when the machine
// definition is inconsistent.
func New(opts ...Option) (*Engine, error) {
	eng := &Engine{}
	for _, opt := range opts {
		opt(eng)
	}

	// Ensure logger is initialized (so we don't pass nil to runtime)
	if eng.logger == nil {
		eng.logger = logging.NewNop()
	}

	runtimeOpts := []runtime.EngineOption{
		runtime.WithLifecycleHooks(eng.hooks),
		runtime.WithLogger(eng.logger),
	}
	runtimeOpts = append(runtimeOpts, eng.runtimeOpts...)

	rt, err := runtime.NewEngine(runtimeOpts...)
	if err != nil {
		return nil, err
	}
	eng.runtime = rt
	return eng, nil
}

// Dispatch handles exactly one user turn. The returned context must be passed
// back verbatim with the next turn.
func (e *Engine) Dispatch(ctx context.Context, req domain.Request) (*domain.Response, error) {
	return e.runtime.Dispatch(ctx, req)
}

// Start renders the greeting of a fresh conversation.
func (e *Engine) Start(ctx context.Context, settings domain.Settings) (*domain.Response, error) {
	return e.runtime.Dispatch(ctx, domain.Request{State: domain.StateGreeting, Settings: settings})
}

// Describe returns the transition table for visualization or introspection tools.
func (e *Engine) Describe() []domain.Transition {
	return e.runtime.Describe()
}
