package config_test

import (
	"encoding/base64"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quotecraft/drew/internal/config"
)

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoad_MissingFileUsesDefaults(t *testing.T) {
	t.Chdir(t.TempDir())

	cfg, err := config.Load("does-not-exist.yaml")
	require.NoError(t, err)
	assert.Equal(t, config.Default(), cfg)
}

func TestLoad_YAML(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)
	path := writeFile(t, dir, "drew.yaml", `
server:
  addr: ":9000"
store:
  driver: redis
  redis_addr: cache:6379
  ttl: 24h
  mask_pii: true
catalog:
  path: products.db
quote:
  default_labor_rate: 85
  default_markup_percent: 20
engine:
  clarify_threshold: 3
  collaborator_timeout: 2s
log:
  level: debug
`)

	cfg, err := config.Load(path)
	require.NoError(t, err)
	assert.Equal(t, ":9000", cfg.Server.Addr)
	assert.Equal(t, ":8081", cfg.Server.MCPAddr, "unset keys keep defaults")
	assert.Equal(t, config.StoreRedis, cfg.Store.Driver)
	assert.Equal(t, "cache:6379", cfg.Store.RedisAddr)
	assert.Equal(t, 24*time.Hour, cfg.Store.TTL)
	assert.True(t, cfg.Store.MaskPII)
	assert.Equal(t, "products.db", cfg.Catalog.Path)
	assert.Equal(t, 85.0, cfg.Quote.DefaultLaborRate)
	assert.Equal(t, 20.0, cfg.Quote.DefaultMarkupPercent)
	assert.Equal(t, "$", cfg.Quote.Currency)
	assert.Equal(t, 3, cfg.Engine.ClarifyThreshold)
	assert.Equal(t, 2*time.Second, cfg.Engine.CollaboratorTimeout)
	assert.Equal(t, "debug", cfg.Log.Level)
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)
	path := writeFile(t, dir, "drew.yaml", "quote:\n  default_labor_rate: 85\n")

	t.Setenv("DREW_LABOR_RATE", "95.5")
	t.Setenv("DREW_STORE", "file")
	t.Setenv("DREW_STORE_DIR", "/var/lib/drew")
	t.Setenv("DREW_LLM_PROVIDER", "anthropic")
	t.Setenv("ANTHROPIC_API_KEY", "sk-test")
	t.Setenv("DREW_COLLABORATOR_TIMEOUT", "750ms")

	cfg, err := config.Load(path)
	require.NoError(t, err)
	assert.Equal(t, 95.5, cfg.Quote.DefaultLaborRate)
	assert.Equal(t, config.StoreFile, cfg.Store.Driver)
	assert.Equal(t, "/var/lib/drew", cfg.Store.Dir)
	assert.Equal(t, "sk-test", cfg.LLM.APIKey)
	assert.Equal(t, 750*time.Millisecond, cfg.Engine.CollaboratorTimeout)
}

func TestLoad_DotEnv(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)
	writeFile(t, dir, ".env", "DREW_CURRENCY=€\nDREW_LOG_LEVEL=warn\n")
	// Real environment wins over .env.
	t.Setenv("DREW_LOG_LEVEL", "error")
	t.Setenv("DREW_CURRENCY", "")
	require.NoError(t, os.Unsetenv("DREW_CURRENCY"))

	cfg, err := config.Load("")
	require.NoError(t, err)
	assert.Equal(t, "€", cfg.Quote.Currency)
	assert.Equal(t, "error", cfg.Log.Level)
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name string
		yaml string
		env  map[string]string
		want []string
	}{
		{
			name: "bad yaml",
			yaml: "server: [",
			want: []string{"failed to parse"},
		},
		{
			name: "bad values reported together",
			yaml: "store:\n  driver: postgres\nllm:\n  provider: gemini\nlog:\n  level: loud\n",
			want: []string{"store.driver", "llm.provider", "log.level"},
		},
		{
			name: "provider without key",
			yaml: "llm:\n  provider: openai\n",
			want: []string{"llm.api_key"},
		},
		{
			name: "short encryption key",
			yaml: "store:\n  encryption_key: " + base64.StdEncoding.EncodeToString([]byte("short")) + "\n",
			want: []string{"store.encryption_key"},
		},
		{
			name: "malformed env",
			env:  map[string]string{"DREW_REDIS_DB": "two", "DREW_STORE_TTL": "forever"},
			want: []string{"DREW_REDIS_DB", "DREW_STORE_TTL"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := t.TempDir()
			t.Chdir(dir)
			path := writeFile(t, dir, "drew.yaml", tt.yaml)
			for k, v := range tt.env {
				t.Setenv(k, v)
			}

			_, err := config.Load(path)
			require.Error(t, err)
			for _, want := range tt.want {
				assert.True(t, strings.Contains(err.Error(), want), "error %q should mention %q", err, want)
			}
		})
	}
}
