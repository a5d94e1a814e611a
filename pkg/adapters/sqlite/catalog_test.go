package sqlite_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quotecraft/drew/pkg/adapters/sqlite"
	"github.com/quotecraft/drew/pkg/domain"
)

func newCatalog(t *testing.T) *sqlite.Catalog {
	t.Helper()
	cat, err := sqlite.Open(context.Background(), ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = cat.Close() })

	require.NoError(t, cat.Upsert(context.Background(),
		domain.Product{ID: "br-15", Name: "15A Single Pole Breaker", UnitPrice: 9.5, Unit: "ea", Category: "breakers"},
		domain.Product{ID: "br-20", Name: "20A Single Pole Breaker", UnitPrice: 11, Unit: "ea", Category: "breakers"},
		domain.Product{ID: "gfci", Name: "GFCI Breaker 20A", UnitPrice: 42},
		domain.Product{ID: "w-12", Name: "12 AWG THHN Wire", UnitPrice: 0.8, Unit: "ft", Category: "wire"},
		domain.Product{ID: "pan-200", Name: "200A Main Breaker Panel", UnitPrice: 250, Unit: "ea", Category: "panel"},
	))
	return cat
}

func ids(products []domain.Product) []string {
	var out []string
	for _, p := range products {
		out = append(out, p.ID)
	}
	return out
}

func TestCatalog_Search(t *testing.T) {
	cat := newCatalog(t)
	ctx := context.Background()

	cases := []struct {
		name     string
		term     string
		category string
		limit    int
		want     []string
	}{
		{name: "all words must match", term: "single pole", want: []string{"br-15", "br-20"}},
		{name: "prefix match", term: "thh", want: []string{"w-12"}},
		{name: "category keeps untagged", term: "breaker", category: "breakers", want: []string{"br-15", "br-20", "gfci"}},
		{name: "category excludes other tags", term: "breaker", category: "wire", want: []string{"gfci"}},
		{name: "punctuation is not syntax", term: `"breaker" OR (wire`, want: nil},
		{name: "empty term", term: "  ", want: nil},
		{name: "no match", term: "conduit", want: nil},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := cat.Search(ctx, tc.term, tc.category, tc.limit)
			require.NoError(t, err)
			if tc.want == nil {
				assert.Empty(t, got)
				return
			}
			assert.ElementsMatch(t, tc.want, ids(got))
		})
	}
}

func TestCatalog_SearchLimitAndFields(t *testing.T) {
	cat := newCatalog(t)

	got, err := cat.Search(context.Background(), "breaker", "", 2)
	require.NoError(t, err)
	assert.Len(t, got, 2)

	got, err = cat.Search(context.Background(), "wire", "", 0)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, domain.Product{ID: "w-12", Name: "12 AWG THHN Wire", UnitPrice: 0.8, Unit: "ft", Category: "wire"}, got[0])
}

func TestCatalog_UpsertReplaces(t *testing.T) {
	cat := newCatalog(t)
	ctx := context.Background()

	require.NoError(t, cat.Upsert(ctx, domain.Product{ID: "w-12", Name: "12 AWG Romex", UnitPrice: 1.1, Category: "wire"}))

	got, err := cat.Search(ctx, "thhn", "", 0)
	require.NoError(t, err)
	assert.Empty(t, got, "old name must leave the index")

	got, err = cat.Search(ctx, "romex", "", 0)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, 1.1, got[0].UnitPrice)

	assert.Error(t, cat.Upsert(ctx, domain.Product{Name: "no id"}))
}

func TestCatalog_ImportFile(t *testing.T) {
	cat, err := sqlite.Open(context.Background(), ":memory:")
	require.NoError(t, err)
	defer cat.Close()

	path := filepath.Join(t.TempDir(), "products.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
products:
  - id: ev-48
    name: 48A Level 2 Charger
    unit_price: 600
    unit: ea
    category: charger
  - id: w-6
    name: 6 AWG Copper Wire
    unit_price: 2.4
    unit: ft
    category: wire
`), 0o644))

	n, err := cat.ImportFile(context.Background(), path)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	got, err := cat.Search(context.Background(), "charger", "charger", 3)
	require.NoError(t, err)
	assert.Equal(t, []string{"ev-48"}, ids(got))

	_, err = cat.ImportFile(context.Background(), filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestCatalog_CancelledContext(t *testing.T) {
	cat := newCatalog(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := cat.Search(ctx, "breaker", "", 0)
	assert.Error(t, err)
}
