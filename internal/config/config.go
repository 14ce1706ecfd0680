package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

type Config struct {
	// Server
	Host        string `json:"host"`
	Port        int    `json:"port"`
	Environment string `json:"environment"`
	APIPrefix   string `json:"api_prefix"`
	LogLevel    string `json:"log_level"`

	// CORS
	CORSOrigins []string `json:"cors_origins"`

	// Auth
	APIKeyHeader string   `json:"api_key_header"`
	APIKeys      []string `json:"api_keys"`
	EnableAuth   bool     `json:"enable_auth"`

	// Rate Limiting
	RateLimitPerMinute int `json:"rate_limit_per_minute"`

	// Notion
	NotionToken         string            `json:"notion_token"`
	NotionVersion       string            `json:"notion_version"`
	NotionBaseURL       string            `json:"notion_base_url"`
	NotionRatePerSecond float64           `json:"notion_rate_per_second"`
	Databases           map[string]string `json:"databases"` // table -> database id

	// Telegram
	TelegramBotToken      string `json:"telegram_bot_token"`
	TelegramWebhookSecret string `json:"telegram_webhook_secret"`
	TelegramBaseURL       string `json:"telegram_base_url"`
	AllowedUserID         string `json:"allowed_user_id"`
	WebhookTimeout        int    `json:"webhook_timeout"`

	// Confirmation store
	ConfirmStore      string `json:"confirm_store"` // memory | sqlite | postgres | redis
	ConfirmSQLitePath string `json:"confirm_sqlite_path"`
	DatabaseURL       string `json:"database_url"`
	RedisAddr         string `json:"redis_addr"`
	RedisPassword     string `json:"redis_password"`

	// Security
	EnableDataMasking  bool     `json:"enable_data_masking"`
	EnablePIIDetection bool     `json:"enable_pii_detection"`
	SensitiveFields    []string `json:"sensitive_fields"`
	SecretKeywords     []string `json:"secret_keywords"`
	EnableAuditLogging bool     `json:"enable_audit_logging"`
	ExposeErrors       bool     `json:"expose_errors"`

	// Bookkeeping
	DefaultAccount        string `json:"default_account"`
	SubscriptionResetCron string `json:"subscription_reset_cron"`

	// AI / LLM
	AnthropicAPIKey  string `json:"anthropic_api_key"`
	AnthropicBaseURL string `json:"anthropic_base_url"` // override for a custom proxy
	AnthropicModel   string `json:"anthropic_model"`
	AgentTimeout     int    `json:"agent_timeout"`
}

// databaseEnv maps table names to the environment keys holding their database ids.
var databaseEnv = map[string]string{
	"expenses":      "NOTION_EXPENSE_DB_ID",
	"income":        "NOTION_INCOME_DB_ID",
	"accounts":      "NOTION_ACCOUNTS_DB_ID",
	"categories":    "NOTION_CATEGORIES_DB_ID",
	"subscriptions": "NOTION_SUBSCRIPTIONS_DB_ID",
	"transfers":     "NOTION_TRANSFERS_DB_ID",
	"loans":         "NOTION_LOANS_DB_ID",
}

func Load() (*Config, error) {
	// A missing .env is normal outside development.
	_ = godotenv.Load()

	cfg := &Config{
		Host:                  DefaultHost,
		Port:                  DefaultPort,
		Environment:           DefaultEnvironment,
		APIPrefix:             DefaultAPIPrefix,
		LogLevel:              DefaultLogLevel,
		CORSOrigins:           DefaultCORSOrigins,
		APIKeyHeader:          "X-API-Key",
		EnableAuth:            true,
		RateLimitPerMinute:    DefaultRateLimitPerMinute,
		NotionVersion:         DefaultNotionVersion,
		NotionRatePerSecond:   DefaultNotionRatePerSecond,
		Databases:             make(map[string]string),
		WebhookTimeout:        DefaultWebhookTimeout,
		ConfirmStore:          DefaultConfirmStore,
		ConfirmSQLitePath:     DefaultConfirmSQLitePath,
		EnableDataMasking:     true,
		EnablePIIDetection:    true,
		SensitiveFields:       DefaultSensitiveFields,
		EnableAuditLogging:    true,
		SubscriptionResetCron: DefaultSubscriptionResetCron,
		AgentTimeout:          DefaultAgentTimeout,
	}

	// Load from JSON config file if specified
	if path := getEnv("FINBOT_CONFIG", ""); path != "" {
		if err := loadJSON(path, cfg); err != nil {
			return nil, err
		}
	}

	// Environment overrides
	applyEnvOverrides(cfg)

	return cfg, nil
}

func loadJSON(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parse %s: %w", path, err)
	}
	if cfg.Databases == nil {
		cfg.Databases = make(map[string]string)
	}
	return nil
}

func applyEnvOverrides(cfg *Config) {
	if v := getEnv("HOST", ""); v != "" {
		cfg.Host = v
	}
	if v := getEnv("PORT", ""); v != "" {
		if p, err := strconv.Atoi(v); err == nil {
			cfg.Port = p
		}
	}
	if v := getEnv("FINBOT_ENV", ""); v != "" {
		cfg.Environment = v
	}
	if v := getEnv("FINBOT_LOG_LEVEL", ""); v != "" {
		cfg.LogLevel = v
	}
	if v := getEnv("FINBOT_API_KEYS", ""); v != "" {
		cfg.APIKeys = strings.Split(v, ",")
	}
	if v := getEnv("ENABLE_AUTH", ""); v != "" {
		cfg.EnableAuth = v == "true" || v == "1"
	}
	if v := getEnv("RATE_LIMIT_PER_MINUTE", ""); v != "" {
		if r, err := strconv.Atoi(v); err == nil {
			cfg.RateLimitPerMinute = r
		}
	}

	if v := getEnv("NOTION_TOKEN", ""); v != "" {
		cfg.NotionToken = v
	}
	if v := getEnv("NOTION_VERSION", ""); v != "" {
		cfg.NotionVersion = v
	}
	if v := getEnv("NOTION_BASE_URL", ""); v != "" {
		cfg.NotionBaseURL = v
	}
	if v := getEnv("NOTION_RATE_PER_SECOND", ""); v != "" {
		if r, err := strconv.ParseFloat(v, 64); err == nil && r > 0 {
			cfg.NotionRatePerSecond = r
		}
	}
	for table, key := range databaseEnv {
		if v := getEnv(key, ""); v != "" {
			cfg.Databases[table] = v
		}
	}

	if v := getEnv("TELEGRAM_BOT_TOKEN", ""); v != "" {
		cfg.TelegramBotToken = v
	}
	if v := getEnv("TELEGRAM_WEBHOOK_SECRET", ""); v != "" {
		cfg.TelegramWebhookSecret = v
	}
	if v := getEnv("ALLOWED_USER_ID", ""); v != "" {
		cfg.AllowedUserID = v
	}

	if v := getEnv("CONFIRM_STORE", ""); v != "" {
		cfg.ConfirmStore = strings.ToLower(v)
	}
	if v := getEnv("CONFIRM_SQLITE_PATH", ""); v != "" {
		cfg.ConfirmSQLitePath = v
	}
	if v := getEnv("DATABASE_URL", ""); v != "" {
		cfg.DatabaseURL = v
	}
	if v := getEnv("REDIS_ADDR", ""); v != "" {
		cfg.RedisAddr = v
	}
	if v := getEnv("REDIS_PASSWORD", ""); v != "" {
		cfg.RedisPassword = v
	}

	if v := getEnv("SUBSCRIPTION_RESET_CRON", ""); v != "" {
		cfg.SubscriptionResetCron = v
	}
	if v := getEnv("DEFAULT_ACCOUNT", ""); v != "" {
		cfg.DefaultAccount = v
	}

	if v := getEnv("ANTHROPIC_API_KEY", ""); v != "" {
		cfg.AnthropicAPIKey = v
	}
	if v := getEnv("ANTHROPIC_BASE_URL", ""); v != "" {
		cfg.AnthropicBaseURL = v
	}
	if v := getEnv("ANTHROPIC_MODEL", ""); v != "" {
		cfg.AnthropicModel = v
	}
}

// IsDevelopment reports whether logs should be human readable.
func (c *Config) IsDevelopment() bool {
	return c.Environment == "development"
}

// Validate checks the settings serve needs.
func (c *Config) Validate() error {
	if c.NotionToken == "" {
		return fmt.Errorf("NOTION_TOKEN is required")
	}
	if c.Databases["expenses"] == "" {
		return fmt.Errorf("NOTION_EXPENSE_DB_ID is required")
	}
	switch c.ConfirmStore {
	case "memory", "sqlite":
	case "postgres":
		if c.DatabaseURL == "" {
			return fmt.Errorf("DATABASE_URL is required for the postgres confirm store")
		}
	case "redis":
		if c.RedisAddr == "" {
			return fmt.Errorf("REDIS_ADDR is required for the redis confirm store")
		}
	default:
		return fmt.Errorf("unknown CONFIRM_STORE %q", c.ConfirmStore)
	}
	return nil
}

func getEnv(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok {
		return v
	}
	return fallback
}
