package domain

// TradecraftDoc is the domain-knowledge document for one job type: guidance
// text, the scoping questions to ask, and the base materials checklist.
type TradecraftDoc struct {
	JobType   string            `json:"job_type" yaml:"job_type"`
	Title     string            `json:"title" yaml:"title"`
	Guidance  string            `json:"guidance,omitempty" yaml:"guidance,omitempty"`
	Aliases   []string          `json:"aliases,omitempty" yaml:"aliases,omitempty"`
	Questions []ScopingQuestion `json:"questions,omitempty" yaml:"questions,omitempty"`
	Checklist []ChecklistItem   `json:"checklist,omitempty" yaml:"checklist,omitempty"`
}

// ScopingQuestion is a single question asked before the checklist is built.
type ScopingQuestion struct {
	ID           string   `json:"id" yaml:"id"`
	Prompt       string   `json:"prompt" yaml:"prompt"`
	QuickReplies []string `json:"quick_replies,omitempty" yaml:"quick_replies,omitempty"`
	AnswerKey    string   `json:"answer_key,omitempty" yaml:"answer_key,omitempty"`
}

// ChecklistItem is one material category proposed for confirmation.
type ChecklistItem struct {
	Category        string   `json:"category" yaml:"category"`
	DisplayName     string   `json:"display_name" yaml:"display_name"`
	SearchTerms     []string `json:"search_terms,omitempty" yaml:"search_terms,omitempty"`
	DefaultQuantity float64  `json:"default_quantity" yaml:"default_quantity"`
	Unit            string   `json:"unit,omitempty" yaml:"unit,omitempty"`
	Required        bool     `json:"required" yaml:"required"`
	Notes           string   `json:"notes,omitempty" yaml:"notes,omitempty"`
}

// AdjustmentOp is the kind of change a checklist adjustment applies.
type AdjustmentOp string

const (
	AdjustAdd      AdjustmentOp = "add"
	AdjustRemove   AdjustmentOp = "remove"
	AdjustQuantity AdjustmentOp = "quantity"
)

// Adjustment modifies a base checklist in response to scoping answers.
// Add carries Item; Remove and Quantity address an existing Category.
type Adjustment struct {
	Op       AdjustmentOp   `json:"op"`
	Category string         `json:"category,omitempty"`
	Quantity float64        `json:"quantity,omitempty"`
	Item     *ChecklistItem `json:"item,omitempty"`
	Reason   string         `json:"reason,omitempty"`
}

// Clone deep-copies the document.
func (d *TradecraftDoc) Clone() *TradecraftDoc {
	if d == nil {
		return nil
	}
	next := *d
	next.Aliases = append([]string(nil), d.Aliases...)
	next.Questions = make([]ScopingQuestion, len(d.Questions))
	for i, q := range d.Questions {
		q.QuickReplies = append([]string(nil), q.QuickReplies...)
		next.Questions[i] = q
	}
	next.Checklist = cloneChecklist(d.Checklist)
	return &next
}

func cloneChecklist(items []ChecklistItem) []ChecklistItem {
	if items == nil {
		return nil
	}
	out := make([]ChecklistItem, len(items))
	for i, it := range items {
		it.SearchTerms = append([]string(nil), it.SearchTerms...)
		out[i] = it
	}
	return out
}

// ApplyAdjustments returns a new checklist with the adjustments applied in
// order. Adds for a category already present and changes to unknown
// categories are ignored.
func ApplyAdjustments(base []ChecklistItem, adjustments []Adjustment) []ChecklistItem {
	out := cloneChecklist(base)
	for _, adj := range adjustments {
		switch adj.Op {
		case AdjustAdd:
			if adj.Item == nil || adj.Item.Category == "" || indexOfCategory(out, adj.Item.Category) >= 0 {
				continue
			}
			item := *adj.Item
			item.SearchTerms = append([]string(nil), adj.Item.SearchTerms...)
			out = append(out, item)
		case AdjustRemove:
			if i := indexOfCategory(out, adj.Category); i >= 0 {
				out = append(out[:i], out[i+1:]...)
			}
		case AdjustQuantity:
			if i := indexOfCategory(out, adj.Category); i >= 0 && adj.Quantity > 0 {
				out[i].DefaultQuantity = adj.Quantity
			}
		}
	}
	return out
}

func indexOfCategory(items []ChecklistItem, category string) int {
	for i, it := range items {
		if it.Category == category {
			return i
		}
	}
	return -1
}

// JobOption is a selectable job type as known to the parser.
type JobOption struct {
	Key     string   `json:"key" yaml:"key"`
	Title   string   `json:"title" yaml:"title"`
	Aliases []string `json:"aliases,omitempty" yaml:"aliases,omitempty"`
}

// Option returns the job option describing the document.
func (d *TradecraftDoc) Option() JobOption {
	return JobOption{
		Key:     d.JobType,
		Title:   d.Title,
		Aliases: append([]string(nil), d.Aliases...),
	}
}
