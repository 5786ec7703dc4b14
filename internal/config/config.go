package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Storage backends
const (
	StorageMemory = "memory"
	StorageAzure  = "azure"
	StorageRedis  = "redis"
)

// Classifier providers. Lexicon needs no external service.
const (
	ClassifierOpenAI    = "openai"
	ClassifierAnthropic = "anthropic"
	ClassifierLexicon   = "lexicon"
)

// Config holds all configuration for the application. It is built once in
// main and passed to each component.
type Config struct {
	// Server configuration
	Port  string
	Debug bool

	// Schedule configuration (cron with seconds)
	IngestionSchedule      string
	ClassificationSchedule string
	DigestSchedule         string
	DigestDays             int
	TimeZone               string

	// Tenants the scheduler runs for
	Tenants []string

	// Storage configuration
	StorageBackend   string
	StorageAccount   string
	StorageContainer string
	RedisAddr        string
	RedisPassword    string
	RedisDB          int
	RedisKeyPrefix   string

	// Notification configuration
	TeamsWebhookURL   string
	NotificationEmail string
	SMTPHost          string
	SMTPPort          int
	SMTPUsername      string
	SMTPPassword      string

	// Classifier configuration
	ClassifierProvider   string
	OpenAIAPIKey         string
	OpenAIModel          string
	OpenAIBaseURL        string
	AnthropicAPIKey      string
	AnthropicModel       string
	ClassifierBatchSize  int
	ClassifierMaxRetries int

	// Ingestion
	FetchConcurrency int
	FetchTimeout     time.Duration
	// InitialLookback bounds the first fetch for a tenant with no cursor
	InitialLookback time.Duration

	// Platform API endpoints
	TwitterAPIURL   string
	YouTubeAPIURL   string
	RedditAPIURL    string
	InstagramAPIURL string
}

// Load loads configuration from environment variables
func Load() (*Config, error) {
	cfg := &Config{
		Port:  getEnv("PORT", "8080"),
		Debug: getBoolEnv("DEBUG", false),

		IngestionSchedule:      getEnv("INGESTION_SCHEDULE", "0 */15 * * * *"),
		ClassificationSchedule: getEnv("CLASSIFICATION_SCHEDULE", "0 */30 * * * *"),
		DigestSchedule:         getEnv("DIGEST_SCHEDULE", "0 0 9 * * *"),
		DigestDays:             getIntEnv("DIGEST_DAYS", 1),
		TimeZone:               getEnv("TIMEZONE", "UTC"),

		Tenants: getSliceEnv("TENANTS", nil),

		StorageBackend:   strings.ToLower(getEnv("STORAGE_BACKEND", StorageMemory)),
		StorageAccount:   getEnv("AZURE_STORAGE_ACCOUNT", ""),
		StorageContainer: getEnv("AZURE_STORAGE_CONTAINER", "mentions"),
		RedisAddr:        getEnv("REDIS_ADDR", ""),
		RedisPassword:    getEnv("REDIS_PASSWORD", ""),
		RedisDB:          getIntEnv("REDIS_DB", 0),
		RedisKeyPrefix:   getEnv("REDIS_KEY_PREFIX", "social-mentions:"),

		TeamsWebhookURL:   getEnv("TEAMS_WEBHOOK_URL", ""),
		NotificationEmail: getEnv("NOTIFICATION_EMAIL", ""),
		SMTPHost:          getEnv("SMTP_HOST", ""),
		SMTPPort:          getIntEnv("SMTP_PORT", 587),
		SMTPUsername:      getEnv("SMTP_USERNAME", ""),
		SMTPPassword:      getEnv("SMTP_PASSWORD", ""),

		ClassifierProvider:   strings.ToLower(getEnv("CLASSIFIER_PROVIDER", ClassifierLexicon)),
		OpenAIAPIKey:         getEnv("OPENAI_API_KEY", ""),
		OpenAIModel:          getEnv("OPENAI_MODEL", ""),
		OpenAIBaseURL:        getEnv("OPENAI_BASE_URL", ""),
		AnthropicAPIKey:      getEnv("ANTHROPIC_API_KEY", ""),
		AnthropicModel:       getEnv("ANTHROPIC_MODEL", ""),
		ClassifierBatchSize:  getIntEnv("CLASSIFIER_BATCH_SIZE", 5),
		ClassifierMaxRetries: getIntEnv("CLASSIFIER_MAX_RETRIES", 2),

		FetchConcurrency: getIntEnv("FETCH_CONCURRENCY", 5),
		FetchTimeout:     getDurationEnv("FETCH_TIMEOUT", 60*time.Second),
		InitialLookback:  getDurationEnv("INITIAL_LOOKBACK", 24*time.Hour),

		TwitterAPIURL:   getEnv("TWITTER_API_URL", ""),
		YouTubeAPIURL:   getEnv("YOUTUBE_API_URL", ""),
		RedditAPIURL:    getEnv("REDDIT_API_URL", ""),
		InstagramAPIURL: getEnv("INSTAGRAM_API_URL", ""),
	}

	// Validate required configuration
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

func (c *Config) validate() error {
	switch c.StorageBackend {
	case StorageMemory:
	case StorageAzure:
		if c.StorageAccount == "" {
			return fmt.Errorf("AZURE_STORAGE_ACCOUNT is required when STORAGE_BACKEND is 'azure'")
		}
	case StorageRedis:
		if c.RedisAddr == "" {
			return fmt.Errorf("REDIS_ADDR is required when STORAGE_BACKEND is 'redis'")
		}
	default:
		return fmt.Errorf("STORAGE_BACKEND must be 'memory', 'azure' or 'redis'")
	}

	switch c.ClassifierProvider {
	case ClassifierLexicon:
	case ClassifierOpenAI:
		if c.OpenAIAPIKey == "" {
			return fmt.Errorf("OPENAI_API_KEY is required when CLASSIFIER_PROVIDER is 'openai'")
		}
	case ClassifierAnthropic:
		if c.AnthropicAPIKey == "" {
			return fmt.Errorf("ANTHROPIC_API_KEY is required when CLASSIFIER_PROVIDER is 'anthropic'")
		}
	default:
		return fmt.Errorf("CLASSIFIER_PROVIDER must be 'openai', 'anthropic' or 'lexicon'")
	}

	if c.NotificationEmail != "" {
		if c.SMTPHost == "" || c.SMTPUsername == "" || c.SMTPPassword == "" {
			return fmt.Errorf("SMTP configuration is required when NOTIFICATION_EMAIL is set")
		}
	}

	if c.ClassifierBatchSize <= 0 {
		return fmt.Errorf("CLASSIFIER_BATCH_SIZE must be positive")
	}
	if c.FetchConcurrency <= 0 {
		return fmt.Errorf("FETCH_CONCURRENCY must be positive")
	}
	if c.FetchTimeout <= 0 {
		return fmt.Errorf("FETCH_TIMEOUT must be positive")
	}
	if c.DigestDays <= 0 {
		return fmt.Errorf("DIGEST_DAYS must be positive")
	}

	if _, err := time.LoadLocation(c.TimeZone); err != nil {
		return fmt.Errorf("invalid TIMEZONE %q: %w", c.TimeZone, err)
	}

	return nil
}

// Helper functions for environment variable parsing
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getBoolEnv(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseBool(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getIntEnv(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getDurationEnv(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if parsed, err := time.ParseDuration(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getSliceEnv(key string, defaultValue []string) []string {
	if value := os.Getenv(key); value != "" {
		var values []string
		for _, v := range strings.Split(value, ",") {
			if v = strings.TrimSpace(v); v != "" {
				values = append(values, v)
			}
		}
		return values
	}
	return defaultValue
}
