package main

import (
	"bytes"
	"context"
	"encoding/base64"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quotecraft/drew/internal/config"
	"github.com/quotecraft/drew/internal/logging"
	"github.com/quotecraft/drew/pkg/domain"
)

const productsYAML = `products:
  - id: rec-15
    name: Duplex Receptacle 15A
    unit_price: 2.5
    unit: ea
    category: receptacles
  - id: box-1g
    name: Old Work Box 1-Gang
    unit_price: 1.75
    unit: ea
    category: boxes
`

func testKey() string {
	return base64.StdEncoding.EncodeToString(bytes.Repeat([]byte{7}, 32))
}

func TestBuildApp_Memory(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	products := filepath.Join(dir, "products.yaml")
	require.NoError(t, os.WriteFile(products, []byte(productsYAML), 0o644))

	cfg := config.Default()
	cfg.Catalog.Import = products

	a, err := buildApp(ctx, cfg, logging.NewNop())
	require.NoError(t, err)
	defer a.Close()

	assert.Positive(t, a.library.Len())

	found, err := a.catalog.Search(ctx, "receptacle", "receptacles", 5)
	require.NoError(t, err)
	require.Len(t, found, 1)
	assert.Equal(t, "rec-15", found[0].ID)

	resp, err := a.engine.Start(ctx, cfg.Quote)
	require.NoError(t, err)
	assert.Equal(t, domain.StateGreeting, resp.State)
}

func TestBuildApp_Stores(t *testing.T) {
	mr := miniredis.RunT(t)

	tests := []struct {
		name   string
		mutate func(*config.StoreConfig, string)
	}{
		{"memory", func(*config.StoreConfig, string) {}},
		{"file", func(s *config.StoreConfig, dir string) {
			s.Driver = config.StoreFile
			s.Dir = dir
		}},
		{"file encrypted and masked", func(s *config.StoreConfig, dir string) {
			s.Driver = config.StoreFile
			s.Dir = dir
			s.EncryptionKey = testKey()
			s.MaskPII = true
		}},
		{"redis", func(s *config.StoreConfig, _ string) {
			s.Driver = config.StoreRedis
			s.RedisAddr = mr.Addr()
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := context.Background()
			cfg := config.Default()
			tt.mutate(&cfg.Store, t.TempDir())

			a, err := buildApp(ctx, cfg, logging.NewNop())
			require.NoError(t, err)
			defer a.Close()

			conv, _, err := a.sessions.Start(ctx, a.engine, cfg.Quote)
			require.NoError(t, err)

			resp, _, err := a.sessions.Turn(ctx, a.engine, conv.ID, domain.Input{Text: "Start"}, cfg.Quote)
			require.NoError(t, err)
			assert.Equal(t, domain.StateJobSelection, resp.State)

			loaded, err := a.sessions.Load(ctx, conv.ID)
			require.NoError(t, err)
			assert.Equal(t, domain.StateJobSelection, loaded.State)
			assert.Empty(t, loaded.Sealed)
		})
	}
}

func TestBuildApp_Errors(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*config.Config)
		want   string
	}{
		{"unknown driver", func(c *config.Config) { c.Store.Driver = "etcd" }, "unknown driver"},
		{"bad key", func(c *config.Config) { c.Store.EncryptionKey = "not-a-key" }, "store"},
		{"missing import", func(c *config.Config) { c.Catalog.Import = "/nonexistent/products.yaml" }, "catalog import"},
		{"missing tradecraft", func(c *config.Config) { c.Tradecraft.Dir = "/nonexistent/tradecraft" }, "tradecraft"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := config.Default()
			tt.mutate(cfg)
			_, err := buildApp(context.Background(), cfg, logging.NewNop())
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestNewInterpreter(t *testing.T) {
	assert.Nil(t, newInterpreter(config.LLMConfig{Provider: config.ProviderNone}, logging.NewNop()))
	assert.NotNil(t, newInterpreter(config.LLMConfig{Provider: config.ProviderAnthropic, APIKey: "k"}, logging.NewNop()))
	assert.NotNil(t, newInterpreter(config.LLMConfig{Provider: config.ProviderOpenAI, APIKey: "k"}, logging.NewNop()))
}

func TestParseOverlay(t *testing.T) {
	overlay, err := parseOverlay("", nil)
	require.NoError(t, err)
	assert.Nil(t, overlay)

	overlay, err = parseOverlay("labor", []string{"greeting", "job_selection"})
	require.NoError(t, err)
	assert.Equal(t, domain.StateLabor, overlay.CurrentState)
	assert.Len(t, overlay.VisitedStates, 2)

	_, err = parseOverlay("billing", nil)
	assert.ErrorIs(t, err, domain.ErrInvalidState)

	_, err = parseOverlay("", []string{"nowhere"})
	assert.ErrorIs(t, err, domain.ErrInvalidState)
}

// execute runs the root command in an empty working directory so that no
// drew.yaml or .env leaks in.
func execute(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	rootCmd.SetIn(strings.NewReader(stdin))
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&bytes.Buffer{})
	rootCmd.SetArgs(args)
	err := rootCmd.ExecuteContext(context.Background())
	return out.String(), err
}

func TestCommands_Version(t *testing.T) {
	t.Chdir(t.TempDir())
	out, err := execute(t, "", "version")
	require.NoError(t, err)
	assert.Equal(t, "drew v0.1.0\n", out)
}

func TestCommands_Graph(t *testing.T) {
	t.Chdir(t.TempDir())
	out, err := execute(t, "", "graph", "--current", "review")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(out, "graph TD\n"))
	assert.Contains(t, out, "review")
}

func TestCommands_ChatAndConversations(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("DREW_STORE", "file")
	t.Setenv("DREW_STORE_DIR", filepath.Join(t.TempDir(), "conversations"))
	t.Setenv("DREW_STORE_KEY", testKey())

	out, err := execute(t, "Start\nexit\n", "chat", "--id", "van-7")
	require.NoError(t, err)
	assert.Contains(t, out, "[1] Start")
	assert.Contains(t, out, "Bye!")

	out, err = execute(t, "", "conversations", "ls")
	require.NoError(t, err)
	assert.Equal(t, "- van-7\n", out)

	out, err = execute(t, "", "conversations", "show", "van-7")
	require.NoError(t, err)
	assert.Contains(t, out, `"state": "job_selection"`)

	out, err = execute(t, "", "conversations", "rm", "van-7")
	require.NoError(t, err)
	assert.Contains(t, out, "Removed conversation 'van-7'")

	_, err = execute(t, "", "conversations", "show", "van-7")
	assert.ErrorIs(t, err, domain.ErrConversationNotFound)
}

func TestCommands_Catalog(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)
	require.NoError(t, os.WriteFile("products.yaml", []byte(productsYAML), 0o644))
	t.Setenv("DREW_CATALOG", filepath.Join(dir, "catalog.db"))

	out, err := execute(t, "", "catalog", "import", "products.yaml")
	require.NoError(t, err)
	assert.Contains(t, out, "Imported 2 products")

	out, err = execute(t, "", "catalog", "search", "old", "work")
	require.NoError(t, err)
	assert.Contains(t, out, "box-1g")
	assert.Contains(t, out, "$1.75/ea")
}
