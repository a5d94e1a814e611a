package domain

import (
	"fmt"
	"maps"
)

// Context is the full conversation memory. The engine never mutates a Context
// it was given; every step works on a Clone.
type Context struct {
	Items []LineItem `json:"items,omitempty"`
	Quote QuoteMeta  `json:"quote"`

	LaborHours    *float64 `json:"labor_hours,omitempty"`
	LaborRate     *float64 `json:"labor_rate,omitempty"`
	MarkupPercent *float64 `json:"markup_percent,omitempty"`

	TradecraftJobType string         `json:"tradecraft_job_type,omitempty"`
	Tradecraft        *TradecraftDoc `json:"tradecraft,omitempty"`

	// ScopingIndex points at the next unanswered question and stays within
	// [0, len(Tradecraft.Questions)].
	ScopingIndex   int               `json:"scoping_index"`
	ScopingAnswers map[string]string `json:"scoping_answers,omitempty"`

	PendingChecklist   []ChecklistItem `json:"pending_checklist,omitempty"`
	ConfirmedChecklist []ChecklistItem `json:"confirmed_checklist,omitempty"`
	PendingProducts    []ProductMatch  `json:"pending_products,omitempty"`

	PreviousState   ConversationState `json:"previous_state,omitempty"`
	ClarifyAttempts int               `json:"clarify_attempts,omitempty"`
	LastInput       string            `json:"last_input,omitempty"`

	Transcript []Turn `json:"transcript,omitempty"`
}

// QuoteMeta holds the descriptive fields of the quote being built.
type QuoteMeta struct {
	Name          string `json:"name,omitempty"`
	ClientName    string `json:"client_name,omitempty"`
	ClientEmail   string `json:"client_email,omitempty"`
	ClientPhone   string `json:"client_phone,omitempty"`
	ClientAddress string `json:"client_address,omitempty"`
}

// Role identifies the speaker of a transcript turn.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Turn is one line of the transcript. It is kept for rendering continuity only.
type Turn struct {
	Role Role   `json:"role"`
	Text string `json:"text"`
}

// NewContext returns an empty conversation memory.
func NewContext() *Context {
	return &Context{
		ScopingAnswers: make(map[string]string),
	}
}

// Clone returns a deep copy so that the receiver can never be observed changing.
func (c *Context) Clone() *Context {
	if c == nil {
		return NewContext()
	}
	next := *c

	next.Items = append([]LineItem(nil), c.Items...)
	next.LaborHours = cloneFloat(c.LaborHours)
	next.LaborRate = cloneFloat(c.LaborRate)
	next.MarkupPercent = cloneFloat(c.MarkupPercent)
	if c.Tradecraft != nil {
		next.Tradecraft = c.Tradecraft.Clone()
	}

	next.ScopingAnswers = make(map[string]string, len(c.ScopingAnswers))
	maps.Copy(next.ScopingAnswers, c.ScopingAnswers)

	next.PendingChecklist = cloneChecklist(c.PendingChecklist)
	next.ConfirmedChecklist = cloneChecklist(c.ConfirmedChecklist)
	next.PendingProducts = append([]ProductMatch(nil), c.PendingProducts...)
	next.Transcript = append([]Turn(nil), c.Transcript...)
	return &next
}

// Questions returns the scoping questions of the loaded document, if any.
func (c *Context) Questions() []ScopingQuestion {
	if c == nil || c.Tradecraft == nil {
		return nil
	}
	return c.Tradecraft.Questions
}

// CurrentQuestion returns the next unanswered scoping question.
func (c *Context) CurrentQuestion() (ScopingQuestion, bool) {
	qs := c.Questions()
	if c == nil || c.ScopingIndex < 0 || c.ScopingIndex >= len(qs) {
		return ScopingQuestion{}, false
	}
	return qs[c.ScopingIndex], true
}

// Validate checks the structural invariants of the context.
func (c *Context) Validate() error {
	if c == nil {
		return nil
	}
	if c.ScopingIndex < 0 || c.ScopingIndex > len(c.Questions()) {
		return fmt.Errorf("scoping index %d out of range [0, %d]", c.ScopingIndex, len(c.Questions()))
	}
	if len(c.PendingChecklist) > 0 && len(c.PendingProducts) > 0 {
		return fmt.Errorf("pending checklist and pending products are both populated")
	}
	return nil
}

func cloneFloat(f *float64) *float64 {
	if f == nil {
		return nil
	}
	v := *f
	return &v
}

// Float returns a pointer to v, for optional numeric fields.
func Float(v float64) *float64 {
	return &v
}
