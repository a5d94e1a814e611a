package runtime

import (
	"context"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/quotecraft/drew/pkg/domain"
	"github.com/quotecraft/drew/pkg/ports"
)

func panelDoc() *domain.TradecraftDoc {
	return &domain.TradecraftDoc{
		JobType:  "panel_upgrade",
		Title:    "Panel Upgrade",
		Guidance: "Replace the main service panel.",
		Aliases:  []string{"main panel swap"},
		Questions: []domain.ScopingQuestion{
			{ID: "amps", Prompt: "What amperage is the new service?", QuickReplies: []string{"100A", "200A"}},
			{ID: "location", Prompt: "Is the panel indoors or outdoors?", QuickReplies: []string{"Indoors", "Outdoors"}},
		},
		Checklist: []domain.ChecklistItem{
			{Category: "panel", DisplayName: "Load center", SearchTerms: []string{"load center"}, DefaultQuantity: 1, Required: true},
			{Category: "breakers", DisplayName: "Breakers", SearchTerms: []string{"breaker"}, DefaultQuantity: 8, Required: true},
			{Category: "wire", DisplayName: "Service wire", SearchTerms: []string{"wire"}, DefaultQuantity: 2, Unit: "ft"},
		},
	}
}

func chargerDoc() *domain.TradecraftDoc {
	return &domain.TradecraftDoc{
		JobType: "ev_charger",
		Title:   "EV Charger",
		Checklist: []domain.ChecklistItem{
			{Category: "charger", DisplayName: "Charger", SearchTerms: []string{"charger"}, DefaultQuantity: 1},
		},
	}
}

// bareDoc has neither questions nor checklist.
func bareDoc() *domain.TradecraftDoc {
	return &domain.TradecraftDoc{JobType: "outlet_install", Title: "Outlet Install"}
}

type fakeKB struct {
	docs map[string]*domain.TradecraftDoc
	err  error

	mu      sync.Mutex
	lookups int
}

func newFakeKB(docs ...*domain.TradecraftDoc) *fakeKB {
	kb := &fakeKB{docs: make(map[string]*domain.TradecraftDoc)}
	for _, d := range docs {
		kb.docs[d.JobType] = d
	}
	return kb
}

func (k *fakeKB) Lookup(_ context.Context, jobType string) (*domain.TradecraftDoc, error) {
	k.mu.Lock()
	k.lookups++
	k.mu.Unlock()
	if k.err != nil {
		return nil, k.err
	}
	doc, ok := k.docs[jobType]
	if !ok {
		return nil, domain.ErrJobTypeNotFound
	}
	return doc.Clone(), nil
}

func (k *fakeKB) JobTypes(context.Context) ([]domain.JobOption, error) {
	var out []domain.JobOption
	for _, d := range k.docs {
		out = append(out, d.Option())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out, nil
}

type fakeSearcher struct {
	results map[string][]domain.Product
	delays  map[string]time.Duration
	errs    map[string]error

	mu    sync.Mutex
	terms []string
}

func (f *fakeSearcher) Search(ctx context.Context, term, _ string, limit int) ([]domain.Product, error) {
	f.mu.Lock()
	f.terms = append(f.terms, term)
	f.mu.Unlock()

	if d := f.delays[term]; d > 0 {
		select {
		case <-time.After(d):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if err := f.errs[term]; err != nil {
		return nil, err
	}
	res := f.results[term]
	if limit > 0 && len(res) > limit {
		res = res[:limit]
	}
	return res, nil
}

func (f *fakeSearcher) calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.terms...)
}

func panelCatalog() *fakeSearcher {
	return &fakeSearcher{results: map[string][]domain.Product{
		"load center": {{ID: "lc-200", Name: "200A Load Center", UnitPrice: 250, Unit: "ea"}},
		"breaker":     {{ID: "br-20", Name: "20A Breaker", UnitPrice: 10, Unit: "ea"}},
		"wire":        {{ID: "w-2", Name: "2 AWG Wire", UnitPrice: 3, Unit: "ft"}},
		"charger":     {{ID: "ev-48", Name: "48A Charger", UnitPrice: 600}},
	}}
}

type fakeInterpreter struct {
	job        ports.Interpretation
	jobErr     error
	clarify    ports.Interpretation
	clarifyErr error

	mu          sync.Mutex
	jobCalls    int
	clarifyReqs []ports.ClarifyRequest
}

func (f *fakeInterpreter) InterpretJob(_ context.Context, _ ports.JobRequest) (ports.Interpretation, error) {
	f.mu.Lock()
	f.jobCalls++
	f.mu.Unlock()
	return f.job, f.jobErr
}

func (f *fakeInterpreter) Clarify(_ context.Context, req ports.ClarifyRequest) (ports.Interpretation, error) {
	f.mu.Lock()
	f.clarifyReqs = append(f.clarifyReqs, req)
	f.mu.Unlock()
	return f.clarify, f.clarifyErr
}

type fakeAdjuster struct {
	adjustments []domain.Adjustment
	err         error
	block       bool
	calls       int
}

func (f *fakeAdjuster) Adjust(ctx context.Context, _ ports.AdjustRequest) ([]domain.Adjustment, error) {
	f.calls++
	if f.block {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	return f.adjustments, f.err
}

func newTestEngine(t *testing.T, opts ...EngineOption) *Engine {
	t.Helper()
	base := []EngineOption{
		WithKnowledgeBase(newFakeKB(panelDoc(), chargerDoc(), bareDoc())),
		WithProductSearcher(panelCatalog()),
	}
	e, err := NewEngine(append(base, opts...)...)
	require.NoError(t, err)
	return e
}

func dispatch(t *testing.T, e *Engine, state domain.ConversationState, c *domain.Context, text string) *domain.Response {
	t.Helper()
	resp, err := e.Dispatch(context.Background(), domain.Request{
		State:    state,
		Context:  c,
		Input:    domain.Input{Text: text},
		Settings: domain.Settings{DefaultLaborRate: 50},
	})
	require.NoError(t, err)
	return resp
}

func command(t *testing.T, e *Engine, state domain.ConversationState, c *domain.Context, cmd *domain.Command) *domain.Response {
	t.Helper()
	resp, err := e.Dispatch(context.Background(), domain.Request{
		State:    state,
		Context:  c,
		Input:    domain.Input{Command: cmd},
		Settings: domain.Settings{DefaultLaborRate: 50},
	})
	require.NoError(t, err)
	return resp
}

func interpretation(resolved bool, jobType string) ports.Interpretation {
	return ports.Interpretation{Resolved: resolved, JobType: jobType}
}

func interpretationMessage(msg string, options ...string) ports.Interpretation {
	return ports.Interpretation{Message: msg, Options: options}
}
