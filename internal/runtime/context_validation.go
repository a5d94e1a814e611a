package runtime

import (
	"github.com/quotecraft/drew/pkg/domain"
)

// prepare normalizes an incoming request into a usable state and a private
// copy of its context. Unknown states restart at the greeting; a context that
// breaks its structural invariants is discarded.
func (e *Engine) prepare(req domain.Request) (domain.ConversationState, *domain.Context) {
	state := req.State
	if !state.Valid() {
		if state != "" {
			e.logger.Warn("unknown conversation state, restarting at greeting", "state", state)
		}
		state = domain.StateGreeting
	}

	if req.Context == nil {
		return state, domain.NewContext()
	}

	c := req.Context.Clone()
	if err := c.Validate(); err != nil {
		e.logger.Warn("discarding invalid context", "state", state, "err", err)
		return domain.StateGreeting, domain.NewContext()
	}

	if state == domain.StateClarify && !e.canRetry(c) {
		e.logger.Warn("clarify without a retry target, retrying from greeting", "previous", c.PreviousState)
		c.PreviousState = domain.StateGreeting
	}
	return state, c
}

// canRetry reports whether a clarify context names a state to retry. The
// check goes through the machine so a custom registry can override it.
func (e *Engine) canRetry(c *domain.Context) bool {
	ok, err := e.machine.Holds(GuardHasPreviousState, c)
	if err != nil {
		e.logger.Error("evaluating retry guard", "err", err)
		return false
	}
	return ok
}
