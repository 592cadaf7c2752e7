package config

import (
	"fmt"
	"log"
	"strings"

	"github.com/spf13/viper"
)

type Config struct {
	Port        string `mapstructure:"PORT"`
	Env         string `mapstructure:"ENV"`
	DatabaseURL string `mapstructure:"DATABASE_URL"`
	DBMaxConns  int32  `mapstructure:"DB_MAX_CONNS"`
	DBMinConns  int32  `mapstructure:"DB_MIN_CONNS"`

	// LLM gateway
	LLMProvider        string `mapstructure:"LLM_PROVIDER"`
	LLMAPIKey          string `mapstructure:"LLM_API_KEY"`
	LLMBaseURL         string `mapstructure:"LLM_BASE_URL"`
	LLMModel           string `mapstructure:"LLM_MODEL"`
	EmbeddingModel     string `mapstructure:"EMBEDDING_MODEL"`
	EmbeddingAPIKey    string `mapstructure:"EMBEDDING_API_KEY"`
	LLMMaxRetries      int    `mapstructure:"LLM_MAX_RETRIES"`
	LLMRetryBaseMillis int    `mapstructure:"LLM_RETRY_BASE_MS"`

	// Pipeline
	ParallelValidation  bool    `mapstructure:"PARALLEL_VALIDATION"`
	ConfidenceThreshold float64 `mapstructure:"CONFIDENCE_THRESHOLD"`
	BatchSizeLimit      int     `mapstructure:"BATCH_SIZE_LIMIT"`
	BatchConcurrency    int     `mapstructure:"BATCH_CONCURRENCY"`

	// Guideline references
	GuidelineDir string `mapstructure:"GUIDELINE_DIR"`

	AuthSecret     string   `mapstructure:"AUTH_SECRET"`
	CORSOrigins    []string `mapstructure:"CORS_ORIGINS"`
	RateLimitRPS   float64  `mapstructure:"RATE_LIMIT_RPS"`
	RateLimitBurst int      `mapstructure:"RATE_LIMIT_BURST"`
}

func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigFile(".env")
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("PORT", "8000")
	v.SetDefault("ENV", "development")
	v.SetDefault("DB_MAX_CONNS", 20)
	v.SetDefault("DB_MIN_CONNS", 5)
	v.SetDefault("LLM_PROVIDER", "openai")
	v.SetDefault("LLM_MODEL", "gpt-4o")
	v.SetDefault("EMBEDDING_MODEL", "text-embedding-3-small")
	v.SetDefault("LLM_MAX_RETRIES", 3)
	v.SetDefault("LLM_RETRY_BASE_MS", 1000)
	v.SetDefault("PARALLEL_VALIDATION", true)
	v.SetDefault("CONFIDENCE_THRESHOLD", 0.7)
	v.SetDefault("BATCH_SIZE_LIMIT", 50)
	v.SetDefault("BATCH_CONCURRENCY", 4)
	v.SetDefault("CORS_ORIGINS", "http://localhost:3000")
	v.SetDefault("RATE_LIMIT_RPS", 100)
	v.SetDefault("RATE_LIMIT_BURST", 200)

	// Bind env vars explicitly so Unmarshal picks them up
	v.BindEnv("PORT")
	v.BindEnv("ENV")
	v.BindEnv("DATABASE_URL")
	v.BindEnv("DB_MAX_CONNS")
	v.BindEnv("DB_MIN_CONNS")
	v.BindEnv("LLM_PROVIDER")
	v.BindEnv("LLM_API_KEY")
	v.BindEnv("LLM_BASE_URL")
	v.BindEnv("LLM_MODEL")
	v.BindEnv("EMBEDDING_MODEL")
	v.BindEnv("EMBEDDING_API_KEY")
	v.BindEnv("LLM_MAX_RETRIES")
	v.BindEnv("LLM_RETRY_BASE_MS")
	v.BindEnv("PARALLEL_VALIDATION")
	v.BindEnv("CONFIDENCE_THRESHOLD")
	v.BindEnv("BATCH_SIZE_LIMIT")
	v.BindEnv("BATCH_CONCURRENCY")
	v.BindEnv("GUIDELINE_DIR")
	v.BindEnv("AUTH_SECRET")
	v.BindEnv("CORS_ORIGINS")
	v.BindEnv("RATE_LIMIT_RPS")
	v.BindEnv("RATE_LIMIT_BURST")

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

	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}

	if cfg.IsDev() {
		log.Println("WARNING: ============================================================")
		log.Println("WARNING: Server is running in DEVELOPMENT mode (ENV=development).")
		log.Println("WARNING: DevAuthMiddleware is active — all requests get admin access.")
		log.Println("WARNING: Do NOT use this configuration in production.")
		log.Println("WARNING: Set ENV=production and configure AUTH_SECRET for production.")
		log.Println("WARNING: ============================================================")
	}

	return cfg, nil
}

func (c *Config) IsDev() bool {
	return c.Env == "development"
}

// IsProduction returns true when the server is configured for production mode.
func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

// Validate checks that the configuration is safe to run. Outside development
// mode AUTH_SECRET must be set so that real JWT authentication is enforced,
// and the LLM gateway needs an API key unless a local base URL is configured.
func (c *Config) Validate() error {
	if !c.IsDev() && c.AuthSecret == "" {
		return fmt.Errorf("AUTH_SECRET is required when ENV=%q. "+
			"Refusing to start without authentication configuration", c.Env)
	}
	switch c.LLMProvider {
	case "", "openai", "anthropic":
	default:
		return fmt.Errorf("LLM_PROVIDER must be \"openai\" or \"anthropic\", got %q", c.LLMProvider)
	}
	if c.LLMAPIKey == "" && c.LLMBaseURL == "" {
		return fmt.Errorf("LLM_API_KEY is required unless LLM_BASE_URL points at a local gateway")
	}
	if c.ConfidenceThreshold < 0 || c.ConfidenceThreshold > 1 {
		return fmt.Errorf("CONFIDENCE_THRESHOLD must be in [0,1], got %v", c.ConfidenceThreshold)
	}
	if c.BatchSizeLimit < 1 {
		return fmt.Errorf("BATCH_SIZE_LIMIT must be at least 1, got %d", c.BatchSizeLimit)
	}
	if c.BatchConcurrency < 1 {
		return fmt.Errorf("BATCH_CONCURRENCY must be at least 1, got %d", c.BatchConcurrency)
	}
	return nil
}
