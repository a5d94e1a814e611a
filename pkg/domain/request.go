package domain

// Command is a structured pseudo-command originating from a UI control
// (a button or picker) instead of typed text.
type Command struct {
	Name string         `json:"name"`
	Args map[string]any `json:"args,omitempty"`
}

// Input is one user turn: free text, a command, or both (the command wins).
type Input struct {
	Text    string   `json:"text,omitempty"`
	Command *Command `json:"command,omitempty"`
}

// Settings are caller-supplied defaults applied at render time.
type Settings struct {
	DefaultLaborRate     float64 `json:"default_labor_rate" yaml:"default_labor_rate"`
	DefaultMarkupPercent float64 `json:"default_markup_percent" yaml:"default_markup_percent"`
	Currency             string  `json:"currency,omitempty" yaml:"currency,omitempty"`
}

// CurrencySymbol returns the configured symbol, "$" by default.
func (s Settings) CurrencySymbol() string {
	if s.Currency == "" {
		return "$"
	}
	return s.Currency
}

// Request is the input of a single dispatch call. A nil Context starts a
// fresh conversation.
type Request struct {
	State    ConversationState `json:"state"`
	Context  *Context          `json:"context,omitempty"`
	Input    Input             `json:"input"`
	Settings Settings          `json:"settings"`
}

// DisplayType selects the structured payload shown next to the message.
type DisplayType string

const (
	DisplayChecklist    DisplayType = "checklist"
	DisplayProductList  DisplayType = "product_list"
	DisplayAddedItems   DisplayType = "added_items"
	DisplayQuoteSummary DisplayType = "quote_summary"
)

// Display is the optional structured payload of a response.
type Display struct {
	Type      DisplayType     `json:"type"`
	Checklist []ChecklistItem `json:"checklist,omitempty"`
	Products  []ProductMatch  `json:"products,omitempty"`
	Items     []LineItem      `json:"items,omitempty"`
	Summary   *QuoteSummary   `json:"summary,omitempty"`
}

// Response is the output of a single dispatch call. Context must be stored
// and supplied verbatim on the next call.
type Response struct {
	State        ConversationState `json:"state"`
	Context      *Context          `json:"context"`
	Message      string            `json:"message"`
	QuickReplies []string          `json:"quick_replies"`
	Display      *Display          `json:"display,omitempty"`
	Complete     bool              `json:"complete"`
}
