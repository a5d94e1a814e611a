package runner

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/quotecraft/drew/internal/logging"
	"github.com/quotecraft/drew/pkg/domain"
	"github.com/quotecraft/drew/pkg/ports"
	"github.com/quotecraft/drew/pkg/session"
)

// Runner drives a conversation over an IOHandler until the input ends.
// Each turn is a single Dispatch; the runner carries the returned context to
// the next one, or lets a session.Manager persist it.
type Runner struct {
	Handler IOHandler
	Logger  *slog.Logger

	// Sessions, when set, loads and saves the conversation ConversationID
	// around every turn.
	Sessions       *session.Manager
	ConversationID string

	Settings       domain.Settings
	Headless       bool
	StopOnComplete bool
	OnTurn         func(*domain.Response)
}

// NewRunner creates a new Runner. Without WithInputHandler it talks to
// Stdin/Stdout.
func NewRunner(opts ...Option) *Runner {
	r := &Runner{
		Logger: logging.NewNop(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Run executes the conversation loop until EOF, "exit"/"quit", or, with
// StopOnComplete, a finalized quote. It resumes from resume when non-nil.
// A cancelled ctx ends the loop with ctx.Err().
func (r *Runner) Run(ctx context.Context, d ports.Dispatcher, resume *domain.Conversation) error {
	handler := r.resolveHandler()
	if r.Sessions != nil && r.ConversationID == "" {
		return fmt.Errorf("conversation id is required when sessions are enabled")
	}

	if !r.Headless {
		_ = handler.SystemOutput(ctx, "--- Drew ---")
	}

	resp, err := r.first(ctx, d, resume)
	for {
		if err != nil {
			return fmt.Errorf("dispatch error: %w", err)
		}
		if r.OnTurn != nil {
			r.OnTurn(resp)
		}
		if err := handler.Output(ctx, resp); err != nil {
			return fmt.Errorf("output error: %w", err)
		}
		if resp.Complete && r.StopOnComplete {
			return nil
		}

		in, err := r.read(ctx, handler)
		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return err
		}
		if in == nil {
			_ = handler.SystemOutput(ctx, "Bye!")
			return nil
		}

		resp, err = r.turn(ctx, d, resp, *in)
	}
}

// read returns the next acceptable input, or nil when the user asked to leave.
func (r *Runner) read(ctx context.Context, handler IOHandler) (*domain.Input, error) {
	for {
		in, err := handler.Input(ctx)
		if err != nil {
			if ctx.Err() != nil {
				r.Logger.Debug("Runner input: Context cancelled", "err", ctx.Err())
				return nil, ctx.Err()
			}
			if errors.Is(err, io.EOF) {
				return nil, io.EOF
			}
			return nil, fmt.Errorf("input error: %w", err)
		}

		if in.Command == nil {
			text := strings.TrimSpace(in.Text)
			if text == "exit" || text == "quit" {
				return nil, nil
			}
			in.Text = text
		}
		clean, err := SanitizeTurn(in)
		if err != nil {
			r.Logger.Warn("Runner input: Input rejected", "err", err, "size", len(in.Text))
			_ = handler.SystemOutput(ctx, fmt.Sprintf("Input rejected: %v", err))
			continue
		}
		return &clean, nil
	}
}

func (r *Runner) first(ctx context.Context, d ports.Dispatcher, resume *domain.Conversation) (*domain.Response, error) {
	if r.Sessions != nil {
		if _, err := r.Sessions.LoadOrStart(ctx, r.ConversationID); err != nil {
			return nil, err
		}
		// An empty turn re-renders wherever the stored conversation stands.
		resp, _, err := r.Sessions.Turn(ctx, d, r.ConversationID, domain.Input{}, r.Settings)
		return resp, err
	}

	req := domain.Request{State: domain.StateGreeting, Settings: r.Settings}
	if resume != nil {
		req.State = resume.State
		req.Context = resume.Context
	}
	return d.Dispatch(ctx, req)
}

func (r *Runner) turn(ctx context.Context, d ports.Dispatcher, prev *domain.Response, in domain.Input) (*domain.Response, error) {
	if r.Sessions != nil {
		resp, diff, err := r.Sessions.Turn(ctx, d, r.ConversationID, in, r.Settings)
		if err == nil && diff != nil {
			r.Logger.Debug("turn saved", "conversation_id", r.ConversationID, "state", resp.State)
		}
		return resp, err
	}
	return d.Dispatch(ctx, domain.Request{
		State:    prev.State,
		Context:  prev.Context,
		Input:    in,
		Settings: r.Settings,
	})
}

// resolveHandler ensures a valid IOHandler is set.
func (r *Runner) resolveHandler() IOHandler {
	if r.Handler == nil {
		// Memoize so the input pump survives repeated Run calls
		r.Handler = NewTextHandler(os.Stdin, os.Stdout)
	}
	return r.Handler
}
