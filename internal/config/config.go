// Package config loads the drew configuration from a YAML file, a .env file
// and DREW_* environment variables, in increasing order of precedence.
// Command-line flags are applied on top by cmd/drew.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/quotecraft/drew/internal/logging"
	"github.com/quotecraft/drew/pkg/domain"
	"github.com/quotecraft/drew/pkg/persistence/middleware"
)

// DefaultPath is the config file read when none is named.
const DefaultPath = "drew.yaml"

// Store drivers.
const (
	StoreMemory = "memory"
	StoreFile   = "file"
	StoreRedis  = "redis"
)

// LLM providers.
const (
	ProviderNone      = "none"
	ProviderAnthropic = "anthropic"
	ProviderOpenAI    = "openai"
)

type Config struct {
	Server     ServerConfig     `yaml:"server"`
	Store      StoreConfig      `yaml:"store"`
	Catalog    CatalogConfig    `yaml:"catalog"`
	Tradecraft TradecraftConfig `yaml:"tradecraft"`
	LLM        LLMConfig        `yaml:"llm"`
	Quote      domain.Settings  `yaml:"quote"`
	Engine     EngineConfig     `yaml:"engine"`
	Log        LogConfig        `yaml:"log"`
}

type ServerConfig struct {
	Addr    string `yaml:"addr"`
	MCPAddr string `yaml:"mcp_addr"`
}

type StoreConfig struct {
	Driver        string        `yaml:"driver"`
	Dir           string        `yaml:"dir"`
	RedisAddr     string        `yaml:"redis_addr"`
	RedisPassword string        `yaml:"redis_password"`
	RedisDB       int           `yaml:"redis_db"`
	TTL           time.Duration `yaml:"ttl"`
	LockTTL       time.Duration `yaml:"lock_ttl"`
	// EncryptionKey is a base64 AES-256 key. When set, contexts are sealed at rest.
	EncryptionKey string `yaml:"encryption_key"`
	MaskPII       bool   `yaml:"mask_pii"`
}

type CatalogConfig struct {
	// Path is the sqlite database; empty keeps the catalog in memory.
	Path string `yaml:"path"`
	// Import is a YAML product list loaded at startup.
	Import string `yaml:"import"`
}

type TradecraftConfig struct {
	// Dir holds tradecraft documents; empty uses the built-in library.
	Dir string `yaml:"dir"`
}

type LLMConfig struct {
	Provider string `yaml:"provider"`
	Model    string `yaml:"model"`
	APIKey   string `yaml:"api_key"`
}

type EngineConfig struct {
	ClarifyThreshold    int           `yaml:"clarify_threshold"`
	CollaboratorTimeout time.Duration `yaml:"collaborator_timeout"`
	SearchConcurrency   int           `yaml:"search_concurrency"`
	SearchLimit         int           `yaml:"search_limit"`
	MaxTranscript       int           `yaml:"max_transcript"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"` // text or json
}

// Default returns the configuration used when nothing is set.
func Default() *Config {
	return &Config{
		Server: ServerConfig{Addr: ":8080", MCPAddr: ":8081"},
		Store:  StoreConfig{Driver: StoreMemory, RedisAddr: "localhost:6379", TTL: 72 * time.Hour},
		LLM:    LLMConfig{Provider: ProviderNone},
		Quote:  domain.Settings{Currency: "$"},
		Log:    LogConfig{Level: "info", Format: "text"},
	}
}

// Load reads path (a missing file means defaults), then the .env file next
// to the working directory, then the environment.
func Load(path string) (*Config, error) {
	cfg := Default()
	if err := cfg.readFile(path); err != nil {
		return nil, err
	}
	if err := LoadDotEnv(".env"); err != nil {
		return nil, err
	}
	if err := cfg.applyEnv(os.Getenv); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) readFile(path string) error {
	if path == "" {
		return nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("failed to read config: %w", err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("failed to parse %s: %w", path, err)
	}
	return nil
}

// LoadDotEnv exports the variables of a .env file. Variables already set in
// the environment win. A missing file is not an error.
func LoadDotEnv(path string) error {
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	if err := godotenv.Load(path); err != nil {
		return fmt.Errorf("failed to load %s: %w", path, err)
	}
	return nil
}

func (c *Config) applyEnv(getenv func(string) string) error {
	var errs []error
	str := func(key string, dst *string) {
		if v := getenv(key); v != "" {
			*dst = v
		}
	}
	num := func(key string, dst *int) {
		if v := getenv(key); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", key, err))
				return
			}
			*dst = n
		}
	}
	float := func(key string, dst *float64) {
		if v := getenv(key); v != "" {
			f, err := strconv.ParseFloat(v, 64)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", key, err))
				return
			}
			*dst = f
		}
	}
	dur := func(key string, dst *time.Duration) {
		if v := getenv(key); v != "" {
			d, err := time.ParseDuration(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", key, err))
				return
			}
			*dst = d
		}
	}
	boolean := func(key string, dst *bool) {
		if v := getenv(key); v != "" {
			b, err := strconv.ParseBool(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", key, err))
				return
			}
			*dst = b
		}
	}

	str("DREW_HTTP_ADDR", &c.Server.Addr)
	str("DREW_MCP_ADDR", &c.Server.MCPAddr)

	str("DREW_STORE", &c.Store.Driver)
	str("DREW_STORE_DIR", &c.Store.Dir)
	str("DREW_REDIS_ADDR", &c.Store.RedisAddr)
	str("DREW_REDIS_PASSWORD", &c.Store.RedisPassword)
	num("DREW_REDIS_DB", &c.Store.RedisDB)
	dur("DREW_STORE_TTL", &c.Store.TTL)
	dur("DREW_LOCK_TTL", &c.Store.LockTTL)
	str("DREW_STORE_KEY", &c.Store.EncryptionKey)
	boolean("DREW_MASK_PII", &c.Store.MaskPII)

	str("DREW_CATALOG", &c.Catalog.Path)
	str("DREW_CATALOG_IMPORT", &c.Catalog.Import)
	str("DREW_TRADECRAFT_DIR", &c.Tradecraft.Dir)

	str("DREW_LLM_PROVIDER", &c.LLM.Provider)
	str("DREW_LLM_MODEL", &c.LLM.Model)
	str("DREW_LLM_API_KEY", &c.LLM.APIKey)
	if c.LLM.APIKey == "" {
		switch c.LLM.Provider {
		case ProviderAnthropic:
			str("ANTHROPIC_API_KEY", &c.LLM.APIKey)
		case ProviderOpenAI:
			str("OPENAI_API_KEY", &c.LLM.APIKey)
		}
	}

	float("DREW_LABOR_RATE", &c.Quote.DefaultLaborRate)
	float("DREW_MARKUP_PERCENT", &c.Quote.DefaultMarkupPercent)
	str("DREW_CURRENCY", &c.Quote.Currency)

	num("DREW_CLARIFY_THRESHOLD", &c.Engine.ClarifyThreshold)
	dur("DREW_COLLABORATOR_TIMEOUT", &c.Engine.CollaboratorTimeout)
	num("DREW_SEARCH_CONCURRENCY", &c.Engine.SearchConcurrency)
	num("DREW_SEARCH_LIMIT", &c.Engine.SearchLimit)

	str("DREW_LOG_LEVEL", &c.Log.Level)
	str("DREW_LOG_FORMAT", &c.Log.Format)

	return errors.Join(errs...)
}

// Validate reports every invalid setting at once.
func (c *Config) Validate() error {
	var errs []error
	switch c.Store.Driver {
	case StoreMemory, StoreFile, StoreRedis:
	default:
		errs = append(errs, fmt.Errorf("store.driver: unknown driver %q", c.Store.Driver))
	}
	if c.Store.EncryptionKey != "" {
		if _, err := middleware.ParseKey(c.Store.EncryptionKey); err != nil {
			errs = append(errs, fmt.Errorf("store.encryption_key: %w", err))
		}
	}
	switch c.LLM.Provider {
	case "", ProviderNone:
	case ProviderAnthropic, ProviderOpenAI:
		if c.LLM.APIKey == "" {
			errs = append(errs, fmt.Errorf("llm.api_key: required for provider %q", c.LLM.Provider))
		}
	default:
		errs = append(errs, fmt.Errorf("llm.provider: unknown provider %q", c.LLM.Provider))
	}
	if c.Quote.DefaultLaborRate < 0 {
		errs = append(errs, errors.New("quote.default_labor_rate: must not be negative"))
	}
	if c.Quote.DefaultMarkupPercent < 0 {
		errs = append(errs, errors.New("quote.default_markup_percent: must not be negative"))
	}
	for name, v := range map[string]int{
		"engine.clarify_threshold":  c.Engine.ClarifyThreshold,
		"engine.search_concurrency": c.Engine.SearchConcurrency,
		"engine.search_limit":       c.Engine.SearchLimit,
		"engine.max_transcript":     c.Engine.MaxTranscript,
	} {
		if v < 0 {
			errs = append(errs, fmt.Errorf("%s: must not be negative", name))
		}
	}
	if _, err := logging.ParseLevel(c.Log.Level); err != nil {
		errs = append(errs, fmt.Errorf("log.level: %w", err))
	}
	switch strings.ToLower(c.Log.Format) {
	case "", "text", "json":
	default:
		errs = append(errs, fmt.Errorf("log.format: unknown format %q", c.Log.Format))
	}
	return errors.Join(errs...)
}
