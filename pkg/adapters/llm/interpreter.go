package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/quotecraft/drew/internal/logging"
	"github.com/quotecraft/drew/pkg/domain"
	"github.com/quotecraft/drew/pkg/ports"
)

// Interpreter implements ports.Interpreter and ports.ChecklistAdjuster by
// asking a model for a small JSON document.
type Interpreter struct {
	completer Completer
	logger    *slog.Logger
}

var (
	_ ports.Interpreter       = (*Interpreter)(nil)
	_ ports.ChecklistAdjuster = (*Interpreter)(nil)
)

// Option configures an Interpreter.
type Option func(*Interpreter)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(i *Interpreter) {
		i.logger = logger
	}
}

// New creates an interpreter over c.
func New(c Completer, opts ...Option) *Interpreter {
	i := &Interpreter{completer: c, logger: logging.NewNop()}
	for _, opt := range opts {
		opt(i)
	}
	return i
}

const jobSystemPrompt = `You help an electrician pick the job type for a quote.
Map the user's description onto exactly one of the known job types, or none.
Reply with JSON only: {"resolved": bool, "job_type": string, "message": string, "options": [string]}.
When unsure set resolved to false, ask one short question in message, and list up to 4 job titles in options.`

const clarifySystemPrompt = `You help an electrician answer a quoting assistant that did not understand them.
Rewrite the user's reply into the form the assistant expects, or admit you cannot.
Expected forms by state:
- job_selection, greeting: return the job type key in job_type.
- scoping: the answer text, or one of the offered options.
- checklist: "yes" to confirm all, "skip", or the category names to keep.
- product_selection: "add all", "skip", or item numbers like "1, 3".
- labor: "<hours> hours" optionally followed by " at <rate>".
- markup: "<percent>%" or "no markup".
- review: "finalize".
Reply with JSON only: {"resolved": bool, "normalized": string, "job_type": string, "message": string, "options": [string]}.`

const adjustSystemPrompt = `You adjust a materials checklist for an electrical job from the customer's scoping answers.
Only propose changes the answers justify.
Reply with JSON only: {"adjustments": [{"op": "add"|"remove"|"quantity", "category": string, "quantity": number, "item": {"category": string, "display_name": string, "search_terms": [string], "default_quantity": number, "unit": string}, "reason": string}]}.`

type interpretationReply struct {
	Resolved   bool     `json:"resolved"`
	JobType    string   `json:"job_type"`
	Normalized string   `json:"normalized"`
	Message    string   `json:"message"`
	Options    []string `json:"options"`
}

func (r interpretationReply) toPort() ports.Interpretation {
	return ports.Interpretation{
		Resolved:   r.Resolved,
		JobType:    strings.TrimSpace(r.JobType),
		Normalized: strings.TrimSpace(r.Normalized),
		Message:    strings.TrimSpace(r.Message),
		Options:    r.Options,
	}
}

// InterpretJob maps free text onto one of req.JobTypes.
func (i *Interpreter) InterpretJob(ctx context.Context, req ports.JobRequest) (ports.Interpretation, error) {
	var sb strings.Builder
	sb.WriteString("Known job types:\n")
	writeJobs(&sb, req.JobTypes)
	if req.Earlier != "" {
		fmt.Fprintf(&sb, "\nUser first said: %q\n", req.Earlier)
		fmt.Fprintf(&sb, "Then said: %q\n", req.Text)
	} else {
		fmt.Fprintf(&sb, "\nUser said: %q\n", req.Text)
	}

	var reply interpretationReply
	if err := i.ask(ctx, jobSystemPrompt, sb.String(), &reply); err != nil {
		return ports.Interpretation{}, err
	}

	out := reply.toPort()
	if out.Resolved && !hasJob(req.JobTypes, out.JobType) {
		i.logger.Debug("interpreter returned unknown job type", "job_type", out.JobType)
		out.Resolved = false
		out.JobType = ""
	}
	if !out.Resolved && out.Message == "" {
		return out, domain.ErrUninterpretable
	}
	return out, nil
}

// Clarify rewrites input that failed parsing in req.State.
func (i *Interpreter) Clarify(ctx context.Context, req ports.ClarifyRequest) (ports.Interpretation, error) {
	var sb strings.Builder
	fmt.Fprintf(&sb, "State: %s\n", req.State)
	if req.Question != "" {
		fmt.Fprintf(&sb, "The assistant asked: %q\n", req.Question)
	}
	if len(req.Options) > 0 {
		fmt.Fprintf(&sb, "Offered options: %s\n", strings.Join(req.Options, ", "))
	}
	if len(req.Answers) > 0 {
		sb.WriteString("Earlier answers:\n")
		keys := make([]string, 0, len(req.Answers))
		for k := range req.Answers {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			fmt.Fprintf(&sb, "- %s: %s\n", k, req.Answers[k])
		}
	}
	if len(req.JobTypes) > 0 {
		sb.WriteString("Known job types:\n")
		writeJobs(&sb, req.JobTypes)
	}
	fmt.Fprintf(&sb, "\nUser said: %q\n", req.Text)

	var reply interpretationReply
	if err := i.ask(ctx, clarifySystemPrompt, sb.String(), &reply); err != nil {
		return ports.Interpretation{}, err
	}

	out := reply.toPort()
	if out.JobType != "" && !hasJob(req.JobTypes, out.JobType) {
		out.JobType = ""
	}
	if out.Resolved && out.Normalized == "" && out.JobType == "" {
		out.Resolved = false
	}
	if !out.Resolved && out.Message == "" {
		return out, domain.ErrUninterpretable
	}
	return out, nil
}

// Adjust proposes checklist changes from scoping answers.
func (i *Interpreter) Adjust(ctx context.Context, req ports.AdjustRequest) ([]domain.Adjustment, error) {
	payload, err := json.Marshal(struct {
		JobType   string                 `json:"job_type"`
		Answers   map[string]string      `json:"answers"`
		Checklist []domain.ChecklistItem `json:"checklist"`
	}{req.JobType, req.Answers, req.Checklist})
	if err != nil {
		return nil, fmt.Errorf("failed to encode adjust request: %w", err)
	}

	var reply struct {
		Adjustments []domain.Adjustment `json:"adjustments"`
	}
	if err := i.ask(ctx, adjustSystemPrompt, string(payload), &reply); err != nil {
		return nil, err
	}

	out := reply.Adjustments[:0]
	for _, adj := range reply.Adjustments {
		switch adj.Op {
		case domain.AdjustAdd, domain.AdjustRemove, domain.AdjustQuantity:
			out = append(out, adj)
		default:
			i.logger.Debug("dropping adjustment with unknown op", "op", adj.Op)
		}
	}
	return out, nil
}

func (i *Interpreter) ask(ctx context.Context, system, user string, v any) error {
	text, err := i.completer.Complete(ctx, system, user)
	if err != nil {
		return err
	}
	raw, ok := extractJSON(text)
	if !ok {
		return fmt.Errorf("%w: reply is not json", domain.ErrUninterpretable)
	}
	if err := json.Unmarshal([]byte(raw), v); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrUninterpretable, err)
	}
	return nil
}

// extractJSON returns the outermost JSON object in text, tolerating code
// fences and prose around it.
func extractJSON(text string) (string, bool) {
	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start < 0 || end <= start {
		return "", false
	}
	return text[start : end+1], true
}

func writeJobs(sb *strings.Builder, jobs []domain.JobOption) {
	for _, j := range jobs {
		fmt.Fprintf(sb, "- %s: %s", j.Key, j.Title)
		if len(j.Aliases) > 0 {
			fmt.Fprintf(sb, " (also: %s)", strings.Join(j.Aliases, ", "))
		}
		sb.WriteString("\n")
	}
}

func hasJob(jobs []domain.JobOption, key string) bool {
	for _, j := range jobs {
		if j.Key == key {
			return true
		}
	}
	return false
}
