package runtime

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/quotecraft/drew/pkg/domain"
)

// Rendered is the user-visible output of a state's entry handler.
type Rendered struct {
	Message      string
	QuickReplies []string
	Display      *domain.Display
	Complete     bool
}

// Renderer produces per-state messages. It is pure: equal inputs yield equal
// output and the context is never modified.
type Renderer struct {
	// ClarifyThreshold is the attempt count from which clarify gives the
	// generic "still unclear" response.
	ClarifyThreshold int
	// Jobs feeds the job selection quick replies.
	Jobs []domain.JobOption
}

const maxJobReplies = 6

var (
	laborReplies  = []string{"2 hours", "4 hours", "8 hours", "No labor"}
	markupReplies = []string{"10%", "15%", "20%", "No markup"}
)

// Render runs the entry handler of state. ev is the event that led here and
// may be nil when only re-displaying the current step.
func (r Renderer) Render(state domain.ConversationState, c *domain.Context, ev domain.Event, s domain.Settings) Rendered {
	if c == nil {
		c = domain.NewContext()
	}
	switch state {
	case domain.StateGreeting:
		return Rendered{
			Message:      "Hi, I'm Drew. I'll walk you through building a quote one step at a time. Ready to start?",
			QuickReplies: []string{"Start"},
		}
	case domain.StateJobSelection:
		return r.renderJobSelection(ev)
	case domain.StateScoping:
		return r.renderScoping(c, ev)
	case domain.StateChecklist:
		return r.renderChecklist(c)
	case domain.StateProductSelection:
		return r.renderProducts(c, s)
	case domain.StateLabor:
		return r.renderLabor(c, ev, s)
	case domain.StateMarkup:
		return r.renderMarkup(s)
	case domain.StateReview:
		return r.renderReview(c, ev, s)
	case domain.StateDone:
		sum := domain.Summarize(c, s)
		return Rendered{
			Message:      fmt.Sprintf("Your quote is finalized. Total: %s.", money(sum.Total, s)),
			QuickReplies: []string{"Start new quote"},
			Display:      &domain.Display{Type: domain.DisplayQuoteSummary, Summary: &sum},
			Complete:     true,
		}
	case domain.StateClarify:
		return r.renderClarify(c, ev, s)
	}
	return Rendered{Message: "Let's keep going."}
}

func (r Renderer) renderJobSelection(ev domain.Event) Rendered {
	msg := "What kind of job are you quoting? Describe it in a few words, like \"panel upgrade\"."
	if _, ok := ev.(domain.StartNewEvent); ok {
		msg = "Starting a fresh quote. " + msg
	}
	return Rendered{Message: msg, QuickReplies: r.jobReplies()}
}

func (r Renderer) jobReplies() []string {
	replies := make([]string, 0, maxJobReplies)
	for _, j := range r.Jobs {
		if len(replies) == maxJobReplies {
			break
		}
		title := j.Title
		if title == "" {
			title = strings.ReplaceAll(j.Key, "_", " ")
		}
		replies = append(replies, title)
	}
	return replies
}

func (r Renderer) renderScoping(c *domain.Context, ev domain.Event) Rendered {
	q, ok := c.CurrentQuestion()
	if !ok {
		return Rendered{Message: "Thanks, that's everything I need to ask."}
	}
	var b strings.Builder
	if _, loaded := ev.(domain.SelectJobEvent); loaded && c.Tradecraft != nil {
		fmt.Fprintf(&b, "Great, let's scope the %s. ", titleOf(c))
	}
	if n := len(c.Questions()); n > 1 {
		fmt.Fprintf(&b, "(%d of %d) ", c.ScopingIndex+1, n)
	}
	b.WriteString(q.Prompt)
	return Rendered{
		Message:      b.String(),
		QuickReplies: append([]string(nil), q.QuickReplies...),
	}
}

func (r Renderer) renderChecklist(c *domain.Context) Rendered {
	var b strings.Builder
	b.WriteString("Here's what this job usually needs:\n")
	for i, item := range c.PendingChecklist {
		fmt.Fprintf(&b, "%d. %s", i+1, item.DisplayName)
		if item.DefaultQuantity > 0 {
			fmt.Fprintf(&b, " (%s%s)", formatQty(item.DefaultQuantity), unitSuffix(item.Unit))
		}
		if !item.Required {
			b.WriteString(" [optional]")
		}
		b.WriteString("\n")
	}
	b.WriteString("Confirm the list, name the categories you want, or skip to go straight to labor.")
	return Rendered{
		Message:      b.String(),
		QuickReplies: []string{"Looks good", "Skip"},
		Display: &domain.Display{
			Type:      domain.DisplayChecklist,
			Checklist: append([]domain.ChecklistItem(nil), c.PendingChecklist...),
		},
	}
}

func (r Renderer) renderProducts(c *domain.Context, s domain.Settings) Rendered {
	var b strings.Builder
	b.WriteString("I found these products:\n")
	for i, m := range c.PendingProducts {
		fmt.Fprintf(&b, "%d. %s, %s each, qty %s\n", i+1, m.Product.Name, money(m.Product.UnitPrice, s), formatQty(m.Quantity))
	}
	b.WriteString("Reply with the numbers to add (like \"1, 3\"), \"add all\", or \"skip\".")
	return Rendered{
		Message:      b.String(),
		QuickReplies: []string{"Add all", "Skip"},
		Display: &domain.Display{
			Type:     domain.DisplayProductList,
			Products: append([]domain.ProductMatch(nil), c.PendingProducts...),
		},
	}
}

func (r Renderer) renderLabor(c *domain.Context, ev domain.Event, s domain.Settings) Rendered {
	var b strings.Builder
	var display *domain.Display
	if _, added := ev.(domain.AddProductsEvent); added && len(c.Items) > 0 {
		fmt.Fprintf(&b, "Added to the quote. You now have %d line item%s.\n", len(c.Items), plural(len(c.Items)))
		display = &domain.Display{Type: domain.DisplayAddedItems, Items: append([]domain.LineItem(nil), c.Items...)}
	}
	b.WriteString("How many hours of labor should I include?")
	if rate := laborRate(c, s); rate > 0 {
		fmt.Fprintf(&b, " I'll use %s/hr unless you give a rate, like \"4 hours at $75/hr\".", money(rate, s))
	}
	return Rendered{
		Message:      b.String(),
		QuickReplies: append([]string(nil), laborReplies...),
		Display:      display,
	}
}

func (r Renderer) renderMarkup(s domain.Settings) Rendered {
	replies := append([]string(nil), markupReplies...)
	if d := s.DefaultMarkupPercent; d > 0 {
		def := formatQty(d) + "%"
		found := false
		for _, q := range replies {
			if q == def {
				found = true
				break
			}
		}
		if !found {
			replies = append([]string{def}, replies...)
		}
	}
	return Rendered{
		Message:      "What markup should I apply to materials? Markup never applies to labor.",
		QuickReplies: replies,
	}
}

func (r Renderer) renderReview(c *domain.Context, ev domain.Event, s domain.Settings) Rendered {
	sum := domain.Summarize(c, s)
	var b strings.Builder
	if _, added := ev.(domain.AddProductsEvent); added {
		b.WriteString("Added. ")
	}
	b.WriteString("Here's your quote:\n")
	fmt.Fprintf(&b, "Materials: %s\n", money(sum.MaterialsSubtotal, s))
	fmt.Fprintf(&b, "Markup (%s%%): %s\n", formatQty(sum.MarkupPercent), money(sum.MarkupAmount, s))
	fmt.Fprintf(&b, "Labor (%s h at %s/h): %s\n", formatQty(sum.LaborHours), money(sum.LaborRate, s), money(sum.LaborTotal, s))
	fmt.Fprintf(&b, "Total: %s\n", money(sum.Total, s))
	b.WriteString("Finalize the quote, or start over.")
	return Rendered{
		Message:      b.String(),
		QuickReplies: []string{"Finalize quote", "Start over"},
		Display:      &domain.Display{Type: domain.DisplayQuoteSummary, Summary: &sum},
	}
}

func (r Renderer) renderClarify(c *domain.Context, ev domain.Event, s domain.Settings) Rendered {
	u, _ := ev.(domain.UnclearEvent)
	if u.Message != "" {
		return Rendered{Message: u.Message, QuickReplies: append([]string(nil), u.Options...)}
	}

	threshold := r.ClarifyThreshold
	if threshold <= 0 {
		threshold = DefaultClarifyThreshold
	}
	if c.ClarifyAttempts >= threshold {
		return Rendered{
			Message:      "Sorry, I'm still not sure what you mean. Try one of the options below, or say \"start over\" to begin again.",
			QuickReplies: append(r.retryReplies(c, s), "Start over"),
		}
	}

	return Rendered{
		Message:      "Sorry, I didn't catch that. " + r.retryPrompt(c),
		QuickReplies: r.retryReplies(c, s),
	}
}

// retryPrompt restates what the stamped state was asking.
func (r Renderer) retryPrompt(c *domain.Context) string {
	switch c.PreviousState {
	case domain.StateGreeting:
		return "Say \"start\" to begin, or tell me what job you're quoting."
	case domain.StateJobSelection:
		return "What kind of job is it? For example \"panel upgrade\" or \"EV charger\"."
	case domain.StateScoping:
		if q, ok := c.CurrentQuestion(); ok {
			return q.Prompt
		}
	case domain.StateChecklist:
		return "Say \"looks good\" to confirm the checklist, name the categories you want, or \"skip\"."
	case domain.StateProductSelection:
		return "Reply with product numbers like \"1, 3\", \"add all\", or \"skip\"."
	case domain.StateLabor:
		return "How many hours of labor? You can say a number like \"4 hours\", or \"no labor\"."
	case domain.StateMarkup:
		return "What markup percentage? For example \"20%\", or \"no markup\"."
	case domain.StateReview:
		return "Say \"finalize\" to finish the quote, or \"start over\"."
	case domain.StateDone:
		return "Say \"new quote\" to start another one."
	}
	return "Could you rephrase that?"
}

func (r Renderer) retryReplies(c *domain.Context, s domain.Settings) []string {
	prev := c.PreviousState
	if !prev.Valid() || prev == domain.StateClarify {
		return nil
	}
	return r.Render(prev, c, nil, s).QuickReplies
}

func titleOf(c *domain.Context) string {
	if c.Tradecraft != nil && c.Tradecraft.Title != "" {
		return strings.ToLower(c.Tradecraft.Title)
	}
	return strings.ReplaceAll(c.TradecraftJobType, "_", " ")
}

func laborRate(c *domain.Context, s domain.Settings) float64 {
	if c.LaborRate != nil {
		return *c.LaborRate
	}
	return s.DefaultLaborRate
}

func money(v float64, s domain.Settings) string {
	return s.CurrencySymbol() + strconv.FormatFloat(v, 'f', 2, 64)
}

func formatQty(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func unitSuffix(unit string) string {
	if unit == "" {
		return ""
	}
	return " " + unit
}

func plural(n int) string {
	if n == 1 {
		return ""
	}
	return "s"
}
