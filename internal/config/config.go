package config

import (
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/sells-group/compete-cli/internal/db"
)

// Config holds the full application configuration.
type Config struct {
	Store     StoreConfig     `yaml:"store" mapstructure:"store"`
	Anthropic AnthropicConfig `yaml:"anthropic" mapstructure:"anthropic"`
	Tavily    TavilyConfig    `yaml:"tavily" mapstructure:"tavily"`
	Firecrawl FirecrawlConfig `yaml:"firecrawl" mapstructure:"firecrawl"`
	Discovery DiscoveryConfig `yaml:"discovery" mapstructure:"discovery"`
	Scrape    ScrapeConfig    `yaml:"scrape" mapstructure:"scrape"`
	Server    ServerConfig    `yaml:"server" mapstructure:"server"`
	Log       LogConfig       `yaml:"log" mapstructure:"log"`
}

// StoreConfig configures the persistence backend.
type StoreConfig struct {
	// Driver is one of memory, sqlite, or postgres.
	Driver      string        `yaml:"driver" mapstructure:"driver"`
	Path        string        `yaml:"path" mapstructure:"path"`
	DatabaseURL string        `yaml:"database_url" mapstructure:"database_url"`
	Pool        db.PoolConfig `yaml:"pool" mapstructure:"pool"`
}

// AnthropicConfig holds Anthropic API settings.
type AnthropicConfig struct {
	Key   string `yaml:"key" mapstructure:"key"`
	Model string `yaml:"model" mapstructure:"model"`
}

// TavilyConfig holds Tavily search API settings.
type TavilyConfig struct {
	Key     string `yaml:"key" mapstructure:"key"`
	BaseURL string `yaml:"base_url" mapstructure:"base_url"`
}

// FirecrawlConfig holds Firecrawl scraping API settings.
type FirecrawlConfig struct {
	Key     string `yaml:"key" mapstructure:"key"`
	BaseURL string `yaml:"base_url" mapstructure:"base_url"`
}

// DiscoveryConfig bounds a market discovery run.
type DiscoveryConfig struct {
	BaseTimeoutSecs       int `yaml:"base_timeout_secs" mapstructure:"base_timeout_secs"`
	CompetitorTimeoutSecs int `yaml:"competitor_timeout_secs" mapstructure:"competitor_timeout_secs"`
	Concurrency           int `yaml:"concurrency" mapstructure:"concurrency"`
	MaxCompetitors        int `yaml:"max_competitors" mapstructure:"max_competitors"`
}

// BaseTimeout returns the base company analysis budget as a duration.
func (c DiscoveryConfig) BaseTimeout() time.Duration {
	return time.Duration(c.BaseTimeoutSecs) * time.Second
}

// CompetitorTimeout returns the per-competitor analysis budget as a duration.
func (c DiscoveryConfig) CompetitorTimeout() time.Duration {
	return time.Duration(c.CompetitorTimeoutSecs) * time.Second
}

// ScrapeConfig configures page scraping behavior.
type ScrapeConfig struct {
	CacheTTLMins int `yaml:"cache_ttl_mins" mapstructure:"cache_ttl_mins"`
}

// CacheTTL returns the scrape cache lifetime as a duration.
func (c ScrapeConfig) CacheTTL() time.Duration {
	return time.Duration(c.CacheTTLMins) * time.Minute
}

// ServerConfig configures the HTTP API server.
type ServerConfig struct {
	Port   int    `yaml:"port" mapstructure:"port"`
	APIKey string `yaml:"api_key" mapstructure:"api_key"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("COMPETE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("store.driver", "memory")
	v.SetDefault("store.path", "compete.db")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("server.port", 8080)
	v.SetDefault("tavily.base_url", "https://api.tavily.com")
	v.SetDefault("firecrawl.base_url", "https://api.firecrawl.dev/v1")
	v.SetDefault("anthropic.model", "claude-sonnet-4-5-20250929")
	v.SetDefault("discovery.base_timeout_secs", 30)
	v.SetDefault("discovery.competitor_timeout_secs", 60)
	v.SetDefault("discovery.concurrency", 5)
	v.SetDefault("discovery.max_competitors", 5)
	v.SetDefault("scrape.cache_ttl_mins", 60)

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	return &cfg, nil
}

// Validate checks configuration required for the given mode. Mode is one of
// "discover", "monitor", or "serve". Shared invariants (store driver, run
// bounds) are checked in every mode.
func (c *Config) Validate(mode string) error {
	var problems []string

	switch mode {
	case "discover", "monitor":
	case "serve":
		if c.Server.Port <= 0 {
			problems = append(problems, "server.port must be > 0")
		}
	default:
		return eris.Errorf("config: unknown mode %q", mode)
	}

	switch c.Store.Driver {
	case "memory":
	case "sqlite":
		if c.Store.Path == "" {
			problems = append(problems, "store.path is required for the sqlite driver")
		}
	case "postgres":
		if c.Store.DatabaseURL == "" {
			problems = append(problems, "store.database_url is required for the postgres driver")
		}
	default:
		problems = append(problems, "store.driver must be one of memory, sqlite, postgres")
	}

	if c.Discovery.Concurrency < 1 || c.Discovery.Concurrency > 50 {
		problems = append(problems, "discovery.concurrency must be between 1 and 50")
	}
	if c.Discovery.MaxCompetitors < 1 || c.Discovery.MaxCompetitors > 20 {
		problems = append(problems, "discovery.max_competitors must be between 1 and 20")
	}
	if c.Discovery.BaseTimeoutSecs <= 0 || c.Discovery.CompetitorTimeoutSecs <= 0 {
		problems = append(problems, "discovery timeouts must be > 0")
	}

	if len(problems) > 0 {
		return eris.New("config: " + strings.Join(problems, "; "))
	}
	return nil
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}
