package runtime

import (
	"context"
	"strings"

	"github.com/quotecraft/drew/pkg/domain"
	"github.com/quotecraft/drew/pkg/ports"
)

// clarify handles a turn while in the clarify state.
//
//  1. A global reset wins over any retry.
//  2. The input is re-parsed as if the machine were still in the stamped
//     state; a declared match proceeds from there without a clarification
//     message.
//  3. Otherwise the attempt counter grows. From the threshold on, delegated
//     interpretation gets a chance with the stamped state, the question last
//     posed, the scoping answers and the input that failed first; a resolved result is re-parsed in the
//     stamped state.
//  4. Failing that, a clarification prompt is rendered.
func (e *Engine) clarify(ctx context.Context, c *domain.Context, input domain.Input, s domain.Settings) (turn, error) {
	text := strings.TrimSpace(input.Text)
	prev := c.PreviousState

	if IsGlobalReset(text) {
		return e.step(ctx, domain.StateClarify, c, domain.StartNewEvent{}, text, s)
	}

	if input.Command != nil {
		ev, known, err := DecodeCommand(input.Command)
		switch {
		case err != nil:
			e.logger.Warn("malformed command", "command", input.Command.Name, "state", domain.StateClarify, "err", err)
		case known && ev.Type() == domain.EventStartNew:
			return e.step(ctx, domain.StateClarify, c, ev, text, s)
		case known:
			ev = e.coordinator.Hydrate(ctx, ev)
			t, ok, err := e.machine.Match(prev, c, ev)
			if err != nil {
				return turn{}, err
			}
			if ok {
				e.logger.Debug("clarify retry succeeded", "state", prev, "event", ev.Type())
				return e.advance(ctx, prev, c, ev, t, s)
			}
		}
	}

	if res, ok, err := e.retry(ctx, prev, text, c, s); err != nil || ok {
		return res, err
	}

	earlier := c.LastInput
	next := EnterClarify(c, domain.UnclearEvent{Text: text}, domain.StateClarify)
	unclear := domain.UnclearEvent{Text: text}
	escalated := false

	if next.ClarifyAttempts >= e.clarifyThreshold {
		escalated = true
		res, ok := e.coordinator.Clarify(ctx, e.clarifyRequest(ctx, prev, text, earlier, next, s))
		if ok && res.Resolved {
			if out, matched, err := e.resolveEscalation(ctx, prev, res, c, s); err != nil || matched {
				return out, err
			}
		}
		if ok && !res.Resolved && res.Message != "" {
			unclear.Message = res.Message
			unclear.Options = res.Options
		}
	}

	e.logger.Debug("still unclear", "state", prev, "attempts", next.ClarifyAttempts, "escalated", escalated)
	e.emitClarify(ctx, next, escalated)
	return turn{state: domain.StateClarify, ctx: next, rendered: e.render(ctx, domain.StateClarify, next, unclear, s)}, nil
}

// retry re-parses text deterministically in the stamped state. It proceeds
// only when the stamped state declares a transition for the result.
func (e *Engine) retry(ctx context.Context, prev domain.ConversationState, text string, c *domain.Context, s domain.Settings) (turn, bool, error) {
	ev, ok := ParseDeterministic(prev, text, c, e.parser.jobsFunc(ctx))
	if !ok {
		return turn{}, false, nil
	}
	ev = e.coordinator.Hydrate(ctx, ev)
	t, ok, err := e.machine.Match(prev, c, ev)
	if err != nil || !ok {
		return turn{}, false, err
	}
	e.logger.Debug("clarify retry succeeded", "state", prev, "event", ev.Type())
	out, err := e.advance(ctx, prev, c, ev, t, s)
	return out, err == nil, err
}

// resolveEscalation turns a resolved interpretation into a transition from
// the stamped state.
func (e *Engine) resolveEscalation(ctx context.Context, prev domain.ConversationState, res ports.Interpretation, c *domain.Context, s domain.Settings) (turn, bool, error) {
	if res.JobType != "" && (prev == domain.StateGreeting || prev == domain.StateJobSelection) {
		jobs := e.coordinator.JobOptions(ctx)
		if knownJob(res.JobType, jobs) {
			ev := e.coordinator.Hydrate(ctx, domain.SelectJobEvent{JobType: res.JobType})
			t, ok, err := e.machine.Match(prev, c, ev)
			if err != nil {
				return turn{}, false, err
			}
			if ok {
				out, err := e.advance(ctx, prev, c, ev, t, s)
				return out, err == nil, err
			}
		}
	}
	if res.Normalized != "" {
		return e.retry(ctx, prev, res.Normalized, c, s)
	}
	return turn{}, false, nil
}

func (e *Engine) clarifyRequest(ctx context.Context, prev domain.ConversationState, text, earlier string, c *domain.Context, s domain.Settings) ports.ClarifyRequest {
	posed := e.render(ctx, prev, c, nil, s)
	req := ports.ClarifyRequest{
		Text:     text,
		State:    prev,
		Question: posed.Message,
		Options:  posed.QuickReplies,
		Answers:  c.Clone().ScopingAnswers,
	}
	if earlier != text {
		req.Earlier = earlier
	}
	if prev == domain.StateGreeting || prev == domain.StateJobSelection {
		req.JobTypes = e.coordinator.JobOptions(ctx)
	}
	return req
}
