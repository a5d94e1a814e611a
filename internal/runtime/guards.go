package runtime

import (
	"github.com/quotecraft/drew/pkg/domain"
)

// Guard is a pure predicate over the context. Guards never look at the raw
// event and may be evaluated any number of times per dispatch.
type Guard func(c *domain.Context) bool

const (
	GuardHasMoreQuestions  GuardName = "hasMoreQuestions"
	GuardNoMoreQuestions   GuardName = "noMoreQuestions"
	GuardChecklistNotEmpty GuardName = "checklistNotEmpty"
	GuardChecklistEmpty    GuardName = "checklistEmpty"
	GuardProductsNotEmpty  GuardName = "productsNotEmpty"
	GuardProductsEmpty     GuardName = "productsEmpty"
	GuardHasPreviousState  GuardName = "hasPreviousState"
)

// DefaultGuards returns the built-in guard registry.
func DefaultGuards() map[GuardName]Guard {
	return map[GuardName]Guard{
		GuardHasMoreQuestions:  hasMoreQuestions,
		GuardNoMoreQuestions:   not(hasMoreQuestions),
		GuardChecklistNotEmpty: checklistNotEmpty,
		GuardChecklistEmpty:    not(checklistNotEmpty),
		GuardProductsNotEmpty:  productsNotEmpty,
		GuardProductsEmpty:     not(productsNotEmpty),
		GuardHasPreviousState:  hasPreviousState,
	}
}

func hasMoreQuestions(c *domain.Context) bool {
	return c != nil && c.ScopingIndex < len(c.Questions())
}

func checklistNotEmpty(c *domain.Context) bool {
	return c != nil && len(c.PendingChecklist) > 0
}

func productsNotEmpty(c *domain.Context) bool {
	return c != nil && len(c.PendingProducts) > 0
}

func hasPreviousState(c *domain.Context) bool {
	return c != nil && c.PreviousState.Valid() && c.PreviousState != domain.StateClarify
}

func not(g Guard) Guard {
	return func(c *domain.Context) bool { return !g(c) }
}
