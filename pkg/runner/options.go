package runner

import (
	"log/slog"

	"github.com/quotecraft/drew/pkg/domain"
	"github.com/quotecraft/drew/pkg/session"
)

// Option defines a functional option for configuring the Runner.
type Option func(*Runner)

// WithLogger configures the structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(r *Runner) {
		r.Logger = logger
	}
}

// WithInputHandler configures a custom IOHandler.
func WithInputHandler(handler IOHandler) Option {
	return func(r *Runner) {
		r.Handler = handler
	}
}

// WithHeadless suppresses the banner.
func WithHeadless(headless bool) Option {
	return func(r *Runner) {
		r.Headless = headless
	}
}

// WithSessions persists every turn under conversationID.
func WithSessions(m *session.Manager, conversationID string) Option {
	return func(r *Runner) {
		r.Sessions = m
		r.ConversationID = conversationID
	}
}

// WithSettings sets the quote defaults sent with every turn.
func WithSettings(s domain.Settings) Option {
	return func(r *Runner) {
		r.Settings = s
	}
}

// WithStopOnComplete ends the loop once a quote is finalized.
func WithStopOnComplete(stop bool) Option {
	return func(r *Runner) {
		r.StopOnComplete = stop
	}
}

// WithOnTurn observes every response.
func WithOnTurn(fn func(*domain.Response)) Option {
	return func(r *Runner) {
		r.OnTurn = fn
	}
}
