package tests

import (
	"context"
	"errors"
	"testing"

	"github.com/quotecraft/drew/pkg/domain"
	"github.com/quotecraft/drew/pkg/ports"
)

// KnowledgeBaseContractTest is a reusable test suite that verifies if an adapter complies with ports.KnowledgeBase.
// expected maps each job type the adapter was seeded with to its title.
func KnowledgeBaseContractTest(t *testing.T, kb ports.KnowledgeBase, expected map[string]string) {
	t.Helper()
	ctx := context.Background()

	t.Run("Lookup_Success", func(t *testing.T) {
		for jobType, title := range expected {
			doc, err := kb.Lookup(ctx, jobType)
			if err != nil {
				t.Fatalf("unexpected error looking up %s: %v", jobType, err)
			}
			if doc.JobType != jobType {
				t.Errorf("job type mismatch: got %q, want %q", doc.JobType, jobType)
			}
			if doc.Title != title {
				t.Errorf("title mismatch for %s: got %q, want %q", jobType, doc.Title, title)
			}
		}
	})

	t.Run("Lookup_NotFound", func(t *testing.T) {
		_, err := kb.Lookup(ctx, "non-existent-job")
		if !errors.Is(err, domain.ErrJobTypeNotFound) {
			t.Errorf("expected ErrJobTypeNotFound, got %v", err)
		}
	})

	t.Run("Lookup_ReturnsCopy", func(t *testing.T) {
		for jobType := range expected {
			doc, err := kb.Lookup(ctx, jobType)
			if err != nil {
				t.Fatal(err)
			}
			doc.Title = "mutated"
			again, _ := kb.Lookup(ctx, jobType)
			if again.Title == "mutated" {
				t.Errorf("lookup for %s returned a shared document", jobType)
			}
			return
		}
	})

	t.Run("JobTypes", func(t *testing.T) {
		opts, err := kb.JobTypes(ctx)
		if err != nil {
			t.Fatalf("unexpected error listing job types: %v", err)
		}

		if len(opts) != len(expected) {
			t.Errorf("expected %d job types, got %d", len(expected), len(opts))
		}

		lookup := make(map[string]bool)
		for _, o := range opts {
			lookup[o.Key] = true
		}

		for jobType := range expected {
			if !lookup[jobType] {
				t.Errorf("job type %s missing from list", jobType)
			}
		}
	})
}
