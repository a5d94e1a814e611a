package ports

import (
	"context"

	"github.com/quotecraft/drew/pkg/domain"
)

// KnowledgeBase is the tradecraft document lookup.
type KnowledgeBase interface {
	// Lookup returns the document for a job type, or domain.ErrJobTypeNotFound.
	Lookup(ctx context.Context, jobType string) (*domain.TradecraftDoc, error)

	// JobTypes lists the job types the knowledge base can serve.
	JobTypes(ctx context.Context) ([]domain.JobOption, error)
}

// JobRequest asks the interpreter to map free text onto a known job type.
type JobRequest struct {
	Text     string
	JobTypes []domain.JobOption
}

// ClarifyRequest asks the interpreter to resolve input that failed parsing
// twice. It carries the state being retried and what was asked there.
// Earlier is the input that first failed, when it differs from Text.
type ClarifyRequest struct {
	Text     string
	Earlier  string
	State    domain.ConversationState
	Question string
	Options  []string
	Answers  map[string]string
	JobTypes []domain.JobOption
}

// Interpretation is the best-guess result of delegated interpretation.
// When Resolved is false, Message and Options describe what to ask next.
type Interpretation struct {
	Resolved bool `json:"resolved"`

	// JobType is set by InterpretJob on success.
	JobType string `json:"job_type,omitempty"`
	// Normalized is set by Clarify on success: the input rewritten in a form
	// the deterministic parser understands (e.g. "4 hours", "20%", "skip").
	Normalized string `json:"normalized,omitempty"`

	Message string   `json:"message,omitempty"`
	Options []string `json:"options,omitempty"`
}

// Interpreter is the language-model backed fallback for open-ended input.
type Interpreter interface {
	InterpretJob(ctx context.Context, req JobRequest) (Interpretation, error)
	Clarify(ctx context.Context, req ClarifyRequest) (Interpretation, error)
}

// AdjustRequest carries the scoping answers to fold into a base checklist.
type AdjustRequest struct {
	JobType   string
	Answers   map[string]string
	Checklist []domain.ChecklistItem
}

// ChecklistAdjuster proposes changes to a base checklist from scoping answers.
type ChecklistAdjuster interface {
	Adjust(ctx context.Context, req AdjustRequest) ([]domain.Adjustment, error)
}

// ProductSearcher is the catalog full-text search.
type ProductSearcher interface {
	// Search returns ranked candidates for term. An empty category searches
	// the whole catalog.
	Search(ctx context.Context, term, category string, limit int) ([]domain.Product, error)
}
