package memory

import (
	"context"
	"sort"

	"github.com/quotecraft/drew/pkg/domain"
)

// KnowledgeBase implements ports.KnowledgeBase over a fixed set of tradecraft
// documents.
type KnowledgeBase struct {
	docs map[string]*domain.TradecraftDoc
}

// NewKnowledgeBase creates a knowledge base from domain objects. Documents
// without a job type are ignored; a later duplicate replaces an earlier one.
func NewKnowledgeBase(docs ...*domain.TradecraftDoc) *KnowledgeBase {
	kb := &KnowledgeBase{docs: make(map[string]*domain.TradecraftDoc, len(docs))}
	for _, d := range docs {
		if d == nil || d.JobType == "" {
			continue
		}
		kb.docs[d.JobType] = d.Clone()
	}
	return kb
}

// Lookup returns a copy of the document for jobType.
func (k *KnowledgeBase) Lookup(_ context.Context, jobType string) (*domain.TradecraftDoc, error) {
	doc, ok := k.docs[jobType]
	if !ok {
		return nil, domain.ErrJobTypeNotFound
	}
	return doc.Clone(), nil
}

// JobTypes lists the known job types ordered by key.
func (k *KnowledgeBase) JobTypes(_ context.Context) ([]domain.JobOption, error) {
	keys := make([]string, 0, len(k.docs))
	for key := range k.docs {
		keys = append(keys, key)
	}
	sort.Strings(keys) // Deterministic order

	opts := make([]domain.JobOption, 0, len(keys))
	for _, key := range keys {
		opts = append(opts, k.docs[key].Option())
	}
	return opts, nil
}
