package observability

import (
	"context"
	"log/slog"

	"github.com/quotecraft/drew/pkg/domain"
)

// LoggingHooks logs every lifecycle event at Debug, and collaborator
// failures at Warn.
func LoggingHooks(logger *slog.Logger) domain.LifecycleHooks {
	return domain.LifecycleHooks{
		OnStateEnter: func(ctx context.Context, e *domain.StateEvent) {
			logger.DebugContext(ctx, "state_enter", "state", e.State, "event", e.Event, "automatic", e.Automatic)
		},
		OnStateLeave: func(ctx context.Context, e *domain.StateEvent) {
			logger.DebugContext(ctx, "state_leave", "state", e.State, "event", e.Event)
		},
		OnCollaborator: func(ctx context.Context, e *domain.CollaboratorEvent) {
			if e.Err != nil {
				logger.WarnContext(ctx, "collaborator_failed", "collaborator", e.Name, "duration", e.Duration, "err", e.Err)
				return
			}
			logger.DebugContext(ctx, "collaborator", "collaborator", e.Name, "duration", e.Duration)
		},
		OnClarify: func(ctx context.Context, e *domain.ClarifyEvent) {
			logger.DebugContext(ctx, "clarify", "previous", e.Previous, "attempts", e.Attempts, "escalated", e.Escalated)
		},
	}
}

// Compose fans every event out to each set of hooks in order.
func Compose(sets ...domain.LifecycleHooks) domain.LifecycleHooks {
	var out domain.LifecycleHooks

	var enter []func(context.Context, *domain.StateEvent)
	var leave []func(context.Context, *domain.StateEvent)
	var collab []func(context.Context, *domain.CollaboratorEvent)
	var clarify []func(context.Context, *domain.ClarifyEvent)
	for _, h := range sets {
		if h.OnStateEnter != nil {
			enter = append(enter, h.OnStateEnter)
		}
		if h.OnStateLeave != nil {
			leave = append(leave, h.OnStateLeave)
		}
		if h.OnCollaborator != nil {
			collab = append(collab, h.OnCollaborator)
		}
		if h.OnClarify != nil {
			clarify = append(clarify, h.OnClarify)
		}
	}

	if len(enter) > 0 {
		out.OnStateEnter = func(ctx context.Context, e *domain.StateEvent) {
			for _, fn := range enter {
				fn(ctx, e)
			}
		}
	}
	if len(leave) > 0 {
		out.OnStateLeave = func(ctx context.Context, e *domain.StateEvent) {
			for _, fn := range leave {
				fn(ctx, e)
			}
		}
	}
	if len(collab) > 0 {
		out.OnCollaborator = func(ctx context.Context, e *domain.CollaboratorEvent) {
			for _, fn := range collab {
				fn(ctx, e)
			}
		}
	}
	if len(clarify) > 0 {
		out.OnClarify = func(ctx context.Context, e *domain.ClarifyEvent) {
			for _, fn := range clarify {
				fn(ctx, e)
			}
		}
	}
	return out
}
