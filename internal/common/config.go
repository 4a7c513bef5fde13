package common

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/joseph-ayodele/bookkeeper/constants"
)

// Config holds all application configuration
type Config struct {
	Database   DatabaseConfig
	Server     ServerConfig
	Watch      WatchConfig
	LLM        LLMConfig
	Categories CategoriesConfig
	Retry      RetryConfig
	Log        LogConfig
}

// DatabaseConfig holds database-related configuration
type DatabaseConfig struct {
	DSN              string // sqlite file path or postgres:// URL
	MaxConns         int32
	MinConns         int32
	MaxConnLifetime  time.Duration
	MaxConnIdleTime  time.Duration
	DialTimeout      time.Duration
	StatementTimeout time.Duration
}

// ServerConfig holds the health endpoint configuration
type ServerConfig struct {
	GRPCAddr string // empty disables the health server
}

// WatchConfig holds inbox/archive locations and watcher tuning
type WatchConfig struct {
	InboxDir     string
	ProcessedDir string
	ReviewDir    string
	Debounce     time.Duration
	InitialScan  bool
	QueueSize    int
}

// LLMConfig holds provider selection and per-call limits
type LLMConfig struct {
	Provider       constants.Provider
	Models         map[constants.Provider]string
	BaseURLs       map[constants.Provider]string
	Temperature    float32
	MaxTokens      int
	Timeout        time.Duration
	RequestsPerMin int
	Pdftoppm       string
	RenderDPI      int
	RenderMaxPages int
}

// CategoriesConfig selects the jurisdiction whose category list is offered to providers
type CategoriesConfig struct {
	Jurisdiction string
	File         string // optional YAML overlay
}

// RetryConfig is the caller-level policy for retryable extraction failures
type RetryConfig struct {
	MaxAttempts    int
	BaseDelay      time.Duration
	MaxDelay       time.Duration
	RetryRateLimit bool
	RetryNetwork   bool
}

// LogConfig holds slog handler settings
type LogConfig struct {
	Level  string
	Format string // text|json
}

// KeySource resolves an API key for a provider. Keys never live in Config fields.
type KeySource interface {
	APIKey(p constants.Provider) string
}

// EnvKeySource reads API keys from the process environment.
type EnvKeySource struct{}

var apiKeyEnv = map[constants.Provider][]string{
	constants.ProviderOpenAI:    {"OPENAI_API_KEY"},
	constants.ProviderAnthropic: {"ANTHROPIC_API_KEY"},
	constants.ProviderXAI:       {"XAI_API_KEY"},
	constants.ProviderGoogle:    {"GEMINI_API_KEY", "GOOGLE_API_KEY"},
}

func (EnvKeySource) APIKey(p constants.Provider) string {
	for _, k := range apiKeyEnv[p] {
		if v := strings.TrimSpace(os.Getenv(k)); v != "" {
			return v
		}
	}
	return ""
}

// APIKeyEnvNames returns the environment variables consulted for a provider.
func APIKeyEnvNames(p constants.Provider) []string {
	return apiKeyEnv[p]
}

// StaticKeySource is a fixed map, handy for tests and one-off runs.
type StaticKeySource map[constants.Provider]string

func (s StaticKeySource) APIKey(p constants.Provider) string { return s[p] }

// LoadConfig loads configuration from environment variables, after reading an optional .env file.
func LoadConfig() *Config {
	// a missing .env is normal; real env always wins
	_ = godotenv.Load()

	provider, err := constants.ParseProvider(getEnv("LLM_PROVIDER", "openai"))
	if err != nil {
		provider = constants.Provider(strings.ToLower(getEnv("LLM_PROVIDER", "")))
	}

	inbox := getEnv("INBOX_DIR", "./inbox")
	return &Config{
		Database: DatabaseConfig{
			DSN:              getEnv("DB_URL", "./bookkeeper.db"),
			MaxConns:         getEnvAsInt32("DB_MAX_CONNS", 10),
			MinConns:         getEnvAsInt32("DB_MIN_CONNS", 1),
			MaxConnLifetime:  getEnvAsDuration("DB_MAX_CONN_LIFETIME", 30*time.Minute),
			MaxConnIdleTime:  getEnvAsDuration("DB_MAX_CONN_IDLE_TIME", 5*time.Minute),
			DialTimeout:      getEnvAsDuration("DB_DIAL_TIMEOUT", 3*time.Second),
			StatementTimeout: getEnvAsDuration("DB_STATEMENT_TIMEOUT", 0),
		},
		Server: ServerConfig{
			GRPCAddr: getEnv("GRPC_ADDR", ""),
		},
		Watch: WatchConfig{
			InboxDir:     inbox,
			ProcessedDir: getEnv("PROCESSED_DIR", inbox+"/processed"),
			ReviewDir:    getEnv("REVIEW_DIR", inbox+"/needs-review"),
			Debounce:     getEnvAsDuration("WATCH_DEBOUNCE", 750*time.Millisecond),
			InitialScan:  getEnvAsBool("WATCH_INITIAL_SCAN", true),
			QueueSize:    getEnvAsInt("WATCH_QUEUE_SIZE", 256),
		},
		LLM: LLMConfig{
			Provider: provider,
			Models: map[constants.Provider]string{
				constants.ProviderOpenAI:    getEnv("OPENAI_MODEL", "gpt-4o-mini"),
				constants.ProviderAnthropic: getEnv("ANTHROPIC_MODEL", "claude-sonnet-4-5"),
				constants.ProviderXAI:       getEnv("XAI_MODEL", "grok-4"),
				constants.ProviderGoogle:    getEnv("GEMINI_MODEL", "gemini-2.5-flash"),
			},
			BaseURLs: map[constants.Provider]string{
				constants.ProviderOpenAI:    getEnv("OPENAI_BASE_URL", ""),
				constants.ProviderAnthropic: getEnv("ANTHROPIC_BASE_URL", ""),
				constants.ProviderXAI:       getEnv("XAI_BASE_URL", ""),
				constants.ProviderGoogle:    getEnv("GEMINI_BASE_URL", ""),
			},
			Temperature:    getEnvAsFloat32("LLM_TEMPERATURE", 0.0),
			MaxTokens:      getEnvAsInt("LLM_MAX_TOKENS", 1024),
			Timeout:        getEnvAsDuration("LLM_TIMEOUT", 60*time.Second),
			RequestsPerMin: getEnvAsInt("LLM_REQUESTS_PER_MIN", 0),
			Pdftoppm:       getEnv("PDFTOPPM", "pdftoppm"),
			RenderDPI:      getEnvAsInt("RENDER_DPI", 200),
			RenderMaxPages: getEnvAsInt("RENDER_MAX_PAGES", 3),
		},
		Categories: CategoriesConfig{
			Jurisdiction: getEnv("JURISDICTION", constants.DefaultJurisdiction),
			File:         getEnv("CATEGORIES_FILE", ""),
		},
		Retry: RetryConfig{
			MaxAttempts:    getEnvAsInt("RETRY_MAX_ATTEMPTS", 1),
			BaseDelay:      getEnvAsDuration("RETRY_BASE_DELAY", 2*time.Second),
			MaxDelay:       getEnvAsDuration("RETRY_MAX_DELAY", 30*time.Second),
			RetryRateLimit: getEnvAsBool("RETRY_RATE_LIMIT", true),
			RetryNetwork:   getEnvAsBool("RETRY_NETWORK", false),
		},
		Log: LogConfig{
			Level:  getEnv("LOG_LEVEL", "info"),
			Format: getEnv("LOG_FORMAT", "text"),
		},
	}
}

// Helper functions for environment variable parsing
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvAsInt32(key string, defaultValue int32) int32 {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.ParseInt(value, 10, 32); err == nil {
			return int32(intVal)
		}
	}
	return defaultValue
}

func getEnvAsFloat32(key string, defaultValue float32) float32 {
	if value := os.Getenv(key); value != "" {
		if floatVal, err := strconv.ParseFloat(value, 32); err == nil {
			return float32(floatVal)
		}
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

// Validate checks the loaded configuration. API keys are checked later, by the provider factory.
func (c *Config) Validate() error {
	if c.Database.DSN == "" {
		return NewAppError("CONFIG_ERROR", "DB_URL is required", ErrInvalidInput)
	}
	if _, err := constants.ParseProvider(string(c.LLM.Provider)); err != nil {
		return NewAppError("CONFIG_ERROR", "LLM_PROVIDER must be one of openai, anthropic, xai, google", ErrInvalidInput)
	}
	if c.LLM.Timeout <= 0 {
		return NewAppError("CONFIG_ERROR", "LLM_TIMEOUT must be positive", ErrInvalidInput)
	}
	if c.Watch.InboxDir == "" {
		return NewAppError("CONFIG_ERROR", "INBOX_DIR is required", ErrInvalidInput)
	}
	if c.Watch.ProcessedDir == "" || c.Watch.ReviewDir == "" {
		return NewAppError("CONFIG_ERROR", "PROCESSED_DIR and REVIEW_DIR are required", ErrInvalidInput)
	}
	if c.Watch.ProcessedDir == c.Watch.ReviewDir {
		return NewAppError("CONFIG_ERROR", "PROCESSED_DIR and REVIEW_DIR must differ", ErrInvalidInput)
	}
	if c.Retry.MaxAttempts < 1 {
		return NewAppError("CONFIG_ERROR", "RETRY_MAX_ATTEMPTS must be at least 1", ErrInvalidInput)
	}
	return nil
}
