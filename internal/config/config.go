package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

const (
	StoreDriverPostgres = "postgres"
	StoreDriverSQLite   = "sqlite"

	ProviderAnthropic = "anthropic"
	ProviderOpenAI    = "openai"
)

type Config struct {
	Port                string   `mapstructure:"PORT"`
	Env                 string   `mapstructure:"ENV"`
	LogLevel            string   `mapstructure:"LOG_LEVEL"`
	StoreDriver         string   `mapstructure:"STORE_DRIVER"`
	DatabaseURL         string   `mapstructure:"DATABASE_URL"`
	SQLitePath          string   `mapstructure:"SQLITE_PATH"`
	DBMaxConns          int32    `mapstructure:"DB_MAX_CONNS"`
	DBMinConns          int32    `mapstructure:"DB_MIN_CONNS"`
	CORSOrigins         []string `mapstructure:"CORS_ORIGINS"`
	RateLimitRPS        float64  `mapstructure:"RATE_LIMIT_RPS"`
	RateLimitBurst      int      `mapstructure:"RATE_LIMIT_BURST"`
	BodyLimit           string   `mapstructure:"BODY_LIMIT"`
	ListMaxLimit        int      `mapstructure:"LIST_MAX_LIMIT"`
	GenerationProvider  string   `mapstructure:"GENERATION_PROVIDER"`
	GenerationModel     string   `mapstructure:"GENERATION_MODEL"`
	GenerationMaxTokens int      `mapstructure:"GENERATION_MAX_TOKENS"`
	AnthropicAPIKey     string   `mapstructure:"ANTHROPIC_API_KEY"`
	AnthropicBaseURL    string   `mapstructure:"ANTHROPIC_BASE_URL"`
	OpenAIAPIKey        string   `mapstructure:"OPENAI_API_KEY"`
	OpenAIBaseURL       string   `mapstructure:"OPENAI_BASE_URL"`
}

var keys = []string{
	"PORT", "ENV", "LOG_LEVEL",
	"STORE_DRIVER", "DATABASE_URL", "SQLITE_PATH", "DB_MAX_CONNS", "DB_MIN_CONNS",
	"CORS_ORIGINS", "RATE_LIMIT_RPS", "RATE_LIMIT_BURST", "BODY_LIMIT", "LIST_MAX_LIMIT",
	"GENERATION_PROVIDER", "GENERATION_MODEL", "GENERATION_MAX_TOKENS",
	"ANTHROPIC_API_KEY", "ANTHROPIC_BASE_URL", "OPENAI_API_KEY", "OPENAI_BASE_URL",
}

// Load reads configuration from the environment and an optional .env file.
// API credentials are not required here: a missing credential is reported by
// the generator when a care plan is requested.
func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigFile(".env")
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("PORT", "8000")
	v.SetDefault("ENV", "development")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("STORE_DRIVER", StoreDriverPostgres)
	v.SetDefault("SQLITE_PATH", "careplan.db")
	v.SetDefault("DB_MAX_CONNS", 20)
	v.SetDefault("DB_MIN_CONNS", 5)
	v.SetDefault("CORS_ORIGINS", "http://localhost:3000")
	v.SetDefault("RATE_LIMIT_RPS", 100)
	v.SetDefault("RATE_LIMIT_BURST", 200)
	v.SetDefault("BODY_LIMIT", "1M")
	v.SetDefault("LIST_MAX_LIMIT", 0)
	v.SetDefault("GENERATION_PROVIDER", ProviderAnthropic)
	v.SetDefault("GENERATION_MAX_TOKENS", 1024)

	for _, k := range keys {
		v.BindEnv(k)
	}

	// Try reading .env file, but don't fail if missing
	_ = v.ReadInConfig()

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if cfg.CORSOrigins == nil {
		origins := v.GetString("CORS_ORIGINS")
		if origins != "" {
			cfg.CORSOrigins = strings.Split(origins, ",")
		}
	}

	if cfg.GenerationModel == "" {
		cfg.GenerationModel = DefaultModel(cfg.GenerationProvider)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// DefaultModel returns the model identifier used when GENERATION_MODEL is unset.
func DefaultModel(provider string) string {
	if provider == ProviderOpenAI {
		return "gpt-4o-mini"
	}
	return "claude-3-haiku-20240307"
}

func (c *Config) IsDev() bool {
	return c.Env == "development"
}

// Validate checks that the configuration can start a server.
func (c *Config) Validate() error {
	switch c.StoreDriver {
	case StoreDriverPostgres:
		if c.DatabaseURL == "" {
			return fmt.Errorf("DATABASE_URL is required when STORE_DRIVER is %q", StoreDriverPostgres)
		}
	case StoreDriverSQLite:
		if c.SQLitePath == "" {
			return fmt.Errorf("SQLITE_PATH is required when STORE_DRIVER is %q", StoreDriverSQLite)
		}
	default:
		return fmt.Errorf("STORE_DRIVER must be %q or %q, got %q", StoreDriverPostgres, StoreDriverSQLite, c.StoreDriver)
	}

	if c.GenerationProvider != ProviderAnthropic && c.GenerationProvider != ProviderOpenAI {
		return fmt.Errorf("GENERATION_PROVIDER must be %q or %q, got %q", ProviderAnthropic, ProviderOpenAI, c.GenerationProvider)
	}
	if c.GenerationMaxTokens <= 0 {
		return fmt.Errorf("GENERATION_MAX_TOKENS must be positive, got %d", c.GenerationMaxTokens)
	}
	if c.ListMaxLimit < 0 {
		return fmt.Errorf("LIST_MAX_LIMIT must not be negative, got %d", c.ListMaxLimit)
	}
	return nil
}
