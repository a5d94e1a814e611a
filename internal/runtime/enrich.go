package runtime

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/quotecraft/drew/pkg/domain"
	"github.com/quotecraft/drew/pkg/ports"
)

// Collaborator names reported to hooks and logs.
const (
	CollabKnowledgeLookup   = "knowledge.lookup"
	CollabKnowledgeJobTypes = "knowledge.job_types"
	CollabInterpretJob      = "interpreter.job"
	CollabInterpretClarify  = "interpreter.clarify"
	CollabChecklistAdjust   = "checklist.adjust"
	CollabCatalogSearch     = "catalog.search"
)

const (
	DefaultCollaboratorTimeout = 10 * time.Second
	DefaultSearchConcurrency   = 4
	DefaultSearchLimit         = 3
)

// Coordinator runs the asynchronous enrichment a state needs before its
// automatic transitions are checked. Every collaborator failure is soft: the
// turn continues with the unenriched data.
type Coordinator struct {
	knowledge   ports.KnowledgeBase
	interpreter ports.Interpreter
	adjuster    ports.ChecklistAdjuster
	searcher    ports.ProductSearcher

	jobOptions  []domain.JobOption
	timeout     time.Duration
	concurrency int
	searchLimit int

	hooks  domain.LifecycleHooks
	logger *slog.Logger
}

// Hydrate resolves the payload an event needs before actions run. For job
// selection it fetches the tradecraft document; not-found or failure leaves
// the event without guidance.
func (c *Coordinator) Hydrate(ctx context.Context, ev domain.Event) domain.Event {
	sel, ok := ev.(domain.SelectJobEvent)
	if !ok || sel.Doc != nil || c.knowledge == nil {
		return ev
	}

	var doc *domain.TradecraftDoc
	err := c.call(ctx, CollabKnowledgeLookup, func(ctx context.Context) error {
		var err error
		doc, err = c.knowledge.Lookup(ctx, sel.JobType)
		return err
	})
	if err != nil {
		if !errors.Is(err, domain.ErrJobTypeNotFound) {
			c.logger.Warn("tradecraft lookup failed, continuing without guidance", "job_type", sel.JobType, "err", err)
		}
		return sel
	}
	sel.Doc = doc
	return sel
}

// Enter folds the newly entered state's enrichment into the context.
func (c *Coordinator) Enter(ctx context.Context, state domain.ConversationState, cx *domain.Context) *domain.Context {
	switch state {
	case domain.StateChecklist:
		return c.enterChecklist(ctx, cx)
	case domain.StateProductSelection:
		return c.enterProductSelection(ctx, cx)
	}
	return cx
}

func (c *Coordinator) enterChecklist(ctx context.Context, cx *domain.Context) *domain.Context {
	next := cx.Clone()
	if next.Tradecraft == nil {
		next.PendingChecklist = nil
		return next
	}
	base := next.Tradecraft.Clone().Checklist
	next.PendingChecklist = base

	if len(next.ScopingAnswers) == 0 || c.adjuster == nil {
		return next
	}

	var adjustments []domain.Adjustment
	err := c.call(ctx, CollabChecklistAdjust, func(ctx context.Context) error {
		var err error
		adjustments, err = c.adjuster.Adjust(ctx, ports.AdjustRequest{
			JobType:   next.TradecraftJobType,
			Answers:   next.Clone().ScopingAnswers,
			Checklist: next.Tradecraft.Clone().Checklist,
		})
		return err
	})
	if err != nil {
		c.logger.Warn("checklist adjustment failed, using base checklist", "job_type", next.TradecraftJobType, "err", err)
		return next
	}
	next.PendingChecklist = domain.ApplyAdjustments(base, adjustments)
	return next
}

func (c *Coordinator) enterProductSelection(ctx context.Context, cx *domain.Context) *domain.Context {
	if len(cx.ConfirmedChecklist) == 0 || c.searcher == nil {
		return ReplaceChecklistWithProducts(cx, nil)
	}
	return ReplaceChecklistWithProducts(cx, c.searchProducts(ctx, cx.ConfirmedChecklist))
}

// searchProducts resolves every confirmed category concurrently. Results are
// slotted by category index and merged in category order; on duplicate
// product identity the first seen wins, whatever the completion order.
func (c *Coordinator) searchProducts(ctx context.Context, categories []domain.ChecklistItem) []domain.ProductMatch {
	slots := make([][]domain.ProductMatch, len(categories))

	g := new(errgroup.Group)
	g.SetLimit(c.concurrency)

	for i, item := range categories {
		g.Go(func() error {
			slots[i] = c.searchCategory(ctx, item)
			return nil
		})
	}
	_ = g.Wait()

	var merged []domain.ProductMatch
	seen := make(map[string]bool)
	for _, slot := range slots {
		for _, m := range slot {
			if seen[m.Product.ID] {
				continue
			}
			seen[m.Product.ID] = true
			merged = append(merged, m)
		}
	}
	return merged
}

func (c *Coordinator) searchCategory(ctx context.Context, item domain.ChecklistItem) []domain.ProductMatch {
	terms := item.SearchTerms
	if len(terms) == 0 {
		terms = []string{item.DisplayName}
	}

	var out []domain.ProductMatch
	seen := make(map[string]bool)
	for _, term := range terms {
		if len(out) >= c.searchLimit {
			break
		}
		var products []domain.Product
		err := c.call(ctx, CollabCatalogSearch, func(ctx context.Context) error {
			var err error
			products, err = c.searcher.Search(ctx, term, item.Category, c.searchLimit)
			return err
		})
		if err != nil {
			c.logger.Warn("product search failed", "category", item.Category, "term", term, "err", err)
			continue
		}
		for _, p := range products {
			if seen[p.ID] || len(out) >= c.searchLimit {
				continue
			}
			seen[p.ID] = true
			out = append(out, domain.ProductMatch{Product: p, Category: item.Category, Quantity: item.DefaultQuantity})
		}
	}
	return out
}

// JobOptions returns the job types known to the parser: the configured list,
// or the knowledge base listing.
func (c *Coordinator) JobOptions(ctx context.Context) []domain.JobOption {
	if len(c.jobOptions) > 0 || c.knowledge == nil {
		return c.jobOptions
	}
	var opts []domain.JobOption
	err := c.call(ctx, CollabKnowledgeJobTypes, func(ctx context.Context) error {
		var err error
		opts, err = c.knowledge.JobTypes(ctx)
		return err
	})
	if err != nil {
		c.logger.Warn("listing job types failed", "err", err)
		return nil
	}
	return opts
}

// InterpretJob delegates open-ended job descriptions. ok is false when no
// interpreter is configured or the call failed.
func (c *Coordinator) InterpretJob(ctx context.Context, text string, jobs []domain.JobOption) (ports.Interpretation, bool) {
	if c.interpreter == nil {
		return ports.Interpretation{}, false
	}
	var res ports.Interpretation
	err := c.call(ctx, CollabInterpretJob, func(ctx context.Context) error {
		var err error
		res, err = c.interpreter.InterpretJob(ctx, ports.JobRequest{Text: text, JobTypes: jobs})
		return err
	})
	if err != nil {
		if !errors.Is(err, domain.ErrUninterpretable) {
			c.logger.Warn("job interpretation failed", "err", err)
		}
		return ports.Interpretation{}, false
	}
	return res, true
}

// Clarify escalates repeated clarification failures.
func (c *Coordinator) Clarify(ctx context.Context, req ports.ClarifyRequest) (ports.Interpretation, bool) {
	if c.interpreter == nil {
		return ports.Interpretation{}, false
	}
	var res ports.Interpretation
	err := c.call(ctx, CollabInterpretClarify, func(ctx context.Context) error {
		var err error
		res, err = c.interpreter.Clarify(ctx, req)
		return err
	})
	if err != nil {
		if !errors.Is(err, domain.ErrUninterpretable) {
			c.logger.Warn("clarify escalation failed", "state", req.State, "err", err)
		}
		return ports.Interpretation{}, false
	}
	return res, true
}

// call runs fn under the collaborator timeout and reports it to the hooks.
func (c *Coordinator) call(ctx context.Context, name string, fn func(ctx context.Context) error) error {
	callCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	start := time.Now()
	err := fn(callCtx)
	if err == nil && callCtx.Err() != nil {
		err = callCtx.Err()
	}

	if c.hooks.OnCollaborator != nil {
		c.hooks.OnCollaborator(ctx, &domain.CollaboratorEvent{
			Timestamp: start,
			Name:      name,
			Duration:  time.Since(start),
			Err:       err,
		})
	}
	c.logger.Debug("collaborator call", "collaborator", name, "duration", time.Since(start), "err", err)
	return err
}
