package tradecraft_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"testing/fstest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quotecraft/drew/pkg/adapters/tradecraft"
	"github.com/quotecraft/drew/pkg/domain"
	"github.com/quotecraft/drew/pkg/ports/tests"
)

func TestDefault_Contract(t *testing.T) {
	lib, err := tradecraft.Default()
	require.NoError(t, err)

	tests.KnowledgeBaseContractTest(t, lib, map[string]string{
		"panel_upgrade":  "Panel Upgrade",
		"ev_charger":     "EV Charger",
		"outlet_install": "Outlet Install",
	})
}

func TestDefault_Content(t *testing.T) {
	lib, err := tradecraft.Default()
	require.NoError(t, err)

	doc, err := lib.Lookup(context.Background(), "panel_upgrade")
	require.NoError(t, err)
	require.Len(t, doc.Questions, 3)
	assert.Equal(t, "amps", doc.Questions[0].ID)
	assert.Equal(t, []string{"100A", "200A", "400A"}, doc.Questions[0].QuickReplies)
	require.NotEmpty(t, doc.Checklist)
	assert.Equal(t, "panel", doc.Checklist[0].Category)
	assert.True(t, doc.Checklist[0].Required)
	assert.Equal(t, 20.0, doc.Checklist[1].DefaultQuantity)

	src, ok := lib.Source("panel_upgrade")
	assert.True(t, ok)
	assert.Equal(t, "panel_upgrade.yaml", src)
	assert.Equal(t, 3, lib.Len())
}

func TestLoad_FormatsAndNesting(t *testing.T) {
	fsys := fstest.MapFS{
		"electrical/panel.yml": {Data: []byte("job_type: panel_upgrade\ntitle: Panel Upgrade\n")},
		"plumbing/heater.json": {Data: []byte(`{"job_type":"water_heater","title":"Water Heater","checklist":[{"category":"tank","display_name":"Tank","default_quantity":1}]}`)},
		"README.md":            {Data: []byte("# not a document")},
	}

	lib, err := tradecraft.Load(fsys)
	require.NoError(t, err)

	opts, err := lib.JobTypes(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []domain.JobOption{
		{Key: "panel_upgrade", Title: "Panel Upgrade"},
		{Key: "water_heater", Title: "Water Heater"},
	}, opts)

	doc, err := lib.Lookup(context.Background(), "water_heater")
	require.NoError(t, err)
	assert.Equal(t, "tank", doc.Checklist[0].Category)
}

func TestLoad_Errors(t *testing.T) {
	cases := []struct {
		name    string
		fsys    fstest.MapFS
		wantErr string
	}{
		{
			name:    "bad yaml",
			fsys:    fstest.MapFS{"a.yaml": {Data: []byte("job_type: [unterminated")}},
			wantErr: "invalid yaml",
		},
		{
			name:    "missing job type",
			fsys:    fstest.MapFS{"a.yaml": {Data: []byte("title: Nothing\n")}},
			wantErr: "missing job_type",
		},
		{
			name: "duplicate job type",
			fsys: fstest.MapFS{
				"a.yaml": {Data: []byte("job_type: x\ntitle: X\n")},
				"b.yaml": {Data: []byte("job_type: x\ntitle: X again\n")},
			},
			wantErr: "already defined in a.yaml",
		},
		{
			name:    "duplicate question",
			fsys:    fstest.MapFS{"a.yaml": {Data: []byte("job_type: x\ntitle: X\nquestions:\n  - id: q\n    prompt: one\n  - id: q\n    prompt: two\n")}},
			wantErr: `duplicate question id "q"`,
		},
		{
			name:    "duplicate category",
			fsys:    fstest.MapFS{"a.yaml": {Data: []byte("job_type: x\ntitle: X\nchecklist:\n  - category: wire\n  - category: wire\n")}},
			wantErr: `duplicate checklist category "wire"`,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := tradecraft.Load(tc.fsys)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tc.wantErr)
		})
	}
}

func TestLoadDir(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "outlet.yaml"), []byte("job_type: outlet_install\ntitle: Outlet Install\n"), 0o644))

	lib, err := tradecraft.LoadDir(dir)
	require.NoError(t, err)
	tests.KnowledgeBaseContractTest(t, lib, map[string]string{"outlet_install": "Outlet Install"})

	_, err = tradecraft.LoadDir(filepath.Join(dir, "missing"))
	assert.Error(t, err)

	_, err = tradecraft.LoadDir(filepath.Join(dir, "outlet.yaml"))
	assert.Error(t, err)
}
