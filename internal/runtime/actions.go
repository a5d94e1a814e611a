package runtime

import (
	"slices"

	"github.com/quotecraft/drew/pkg/domain"
)

// Action computes the next context from the current one and the triggering
// event. Actions must return a new value and leave c untouched.
type Action func(c *domain.Context, ev domain.Event) *domain.Context

const (
	ActionLoadTradecraft          ActionName = "loadTradecraft"
	ActionRecordAnswer            ActionName = "recordAnswer"
	ActionStoreConfirmedChecklist ActionName = "storeConfirmedChecklist"
	ActionSkipChecklist           ActionName = "skipChecklist"
	ActionAddProducts             ActionName = "addProducts"
	ActionAppendProducts          ActionName = "appendProducts"
	ActionSkipProducts            ActionName = "skipProducts"
	ActionSetLabor                ActionName = "setLabor"
	ActionSetMarkup               ActionName = "setMarkup"
	ActionReset                   ActionName = "reset"
)

// DefaultActions returns the built-in action registry.
func DefaultActions() map[ActionName]Action {
	return map[ActionName]Action{
		ActionLoadTradecraft:          loadTradecraft,
		ActionRecordAnswer:            recordAnswer,
		ActionStoreConfirmedChecklist: storeConfirmedChecklist,
		ActionSkipChecklist:           skipChecklist,
		ActionAddProducts:             addProducts,
		ActionAppendProducts:          appendProducts,
		ActionSkipProducts:            skipProducts,
		ActionSetLabor:                setLabor,
		ActionSetMarkup:               setMarkup,
		ActionReset:                   reset,
	}
}

// loadTradecraft installs the hydrated document and seeds scoping and
// checklist state from it. A missing document leaves no questions and no
// checklist, so the automatic transitions skip straight to labor.
func loadTradecraft(c *domain.Context, ev domain.Event) *domain.Context {
	next := c.Clone()
	sel, ok := ev.(domain.SelectJobEvent)
	if !ok {
		return next
	}
	next.TradecraftJobType = sel.JobType
	next.Tradecraft = sel.Doc.Clone()
	next.ScopingIndex = 0
	next.ScopingAnswers = make(map[string]string)
	next.ConfirmedChecklist = nil
	next.PendingProducts = nil
	next.PendingChecklist = nil
	if sel.Doc != nil {
		next.PendingChecklist = sel.Doc.Clone().Checklist
	}
	return next
}

func recordAnswer(c *domain.Context, ev domain.Event) *domain.Context {
	next := c.Clone()
	ans, ok := ev.(domain.AnswerScopingEvent)
	if !ok {
		return next
	}
	q, ok := next.CurrentQuestion()
	if !ok {
		return next
	}
	key := q.ID
	if q.AnswerKey != "" {
		key = q.AnswerKey
	}
	next.ScopingAnswers[key] = ans.Answer
	next.ScopingIndex++
	return next
}

// storeConfirmedChecklist keeps the confirmed subset of the pending checklist,
// in pending order. The pending list itself is consumed by the product lookup.
func storeConfirmedChecklist(c *domain.Context, ev domain.Event) *domain.Context {
	next := c.Clone()
	conf, ok := ev.(domain.ConfirmChecklistEvent)
	if !ok {
		return next
	}
	if len(conf.Categories) == 0 {
		next.ConfirmedChecklist = next.PendingChecklist
		return next
	}
	confirmed := make([]domain.ChecklistItem, 0, len(conf.Categories))
	for _, item := range next.PendingChecklist {
		if slices.Contains(conf.Categories, item.Category) {
			confirmed = append(confirmed, item)
		}
	}
	next.ConfirmedChecklist = confirmed
	return next
}

func skipChecklist(c *domain.Context, _ domain.Event) *domain.Context {
	next := c.Clone()
	next.PendingChecklist = nil
	next.ConfirmedChecklist = nil
	return next
}

// addProducts appends the selected products. Re-selecting a product already
// on the quote replaces its quantity.
func addProducts(c *domain.Context, ev domain.Event) *domain.Context {
	next := c.Clone()
	add, ok := ev.(domain.AddProductsEvent)
	if !ok {
		return next
	}
	next.Items = domain.MergeReplace(next.Items, selectedItems(next.PendingProducts, add))
	next.PendingProducts = nil
	next.ConfirmedChecklist = nil
	return next
}

// appendProducts is "add more" from review: quantities of products already
// on the quote are summed.
func appendProducts(c *domain.Context, ev domain.Event) *domain.Context {
	next := c.Clone()
	add, ok := ev.(domain.AddProductsEvent)
	if !ok {
		return next
	}
	next.Items = domain.MergeSum(next.Items, selectedItems(next.PendingProducts, add))
	next.PendingProducts = nil
	return next
}

func selectedItems(pending []domain.ProductMatch, add domain.AddProductsEvent) []domain.LineItem {
	var items []domain.LineItem
	if len(add.Selections) == 0 && len(add.Products) == 0 {
		for _, m := range pending {
			items = append(items, domain.LineItemFromMatch(m, 0))
		}
		return items
	}
	for _, sel := range add.Selections {
		for _, m := range pending {
			if m.Product.ID == sel.ProductID {
				items = append(items, domain.LineItemFromMatch(m, sel.Quantity))
				break
			}
		}
	}
	for _, m := range add.Products {
		items = append(items, domain.LineItemFromMatch(m, 0))
	}
	return items
}

func skipProducts(c *domain.Context, _ domain.Event) *domain.Context {
	next := c.Clone()
	next.PendingProducts = nil
	next.ConfirmedChecklist = nil
	return next
}

func setLabor(c *domain.Context, ev domain.Event) *domain.Context {
	next := c.Clone()
	if l, ok := ev.(domain.SetLaborEvent); ok {
		next.LaborHours = domain.Float(l.Hours)
		if l.Rate != nil {
			next.LaborRate = domain.Float(*l.Rate)
		}
	}
	return next
}

func setMarkup(c *domain.Context, ev domain.Event) *domain.Context {
	next := c.Clone()
	if m, ok := ev.(domain.SetMarkupEvent); ok {
		next.MarkupPercent = domain.Float(m.Percent)
	}
	return next
}

func reset(_ *domain.Context, _ domain.Event) *domain.Context {
	return domain.NewContext()
}

// EnterClarify routes a failed turn to clarify. current is the state the
// failure happened in; when it is clarify itself the original retry target is
// kept. The attempt counter always increments.
func EnterClarify(c *domain.Context, ev domain.Event, current domain.ConversationState) *domain.Context {
	next := c.Clone()
	if current != domain.StateClarify {
		next.PreviousState = current
	}
	next.ClarifyAttempts++
	if u, ok := ev.(domain.UnclearEvent); ok && u.Text != "" {
		next.LastInput = u.Text
	}
	return next
}

// ReplaceChecklistWithProducts consumes the checklist and offers products in
// its place, keeping the two pending lists mutually exclusive.
func ReplaceChecklistWithProducts(c *domain.Context, products []domain.ProductMatch) *domain.Context {
	next := c.Clone()
	next.PendingChecklist = nil
	next.PendingProducts = append([]domain.ProductMatch(nil), products...)
	return next
}

// leaveClarify clears the retry bookkeeping on entry to any state other than
// clarify.
func leaveClarify(c *domain.Context) *domain.Context {
	if c.PreviousState == "" && c.ClarifyAttempts == 0 && c.LastInput == "" {
		return c
	}
	next := c.Clone()
	next.PreviousState = ""
	next.ClarifyAttempts = 0
	next.LastInput = ""
	return next
}
