package common

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joseph-ayodele/bookkeeper/constants"
)

func TestLoadConfig_Defaults(t *testing.T) {
	t.Setenv("LLM_PROVIDER", "")
	t.Setenv("INBOX_DIR", "")
	t.Setenv("DB_URL", "")

	cfg := LoadConfig()
	assert.Equal(t, constants.ProviderOpenAI, cfg.LLM.Provider)
	assert.Equal(t, "./inbox", cfg.Watch.InboxDir)
	assert.Equal(t, "./inbox/processed", cfg.Watch.ProcessedDir)
	assert.Equal(t, "./inbox/needs-review", cfg.Watch.ReviewDir)
	assert.Equal(t, constants.DefaultJurisdiction, cfg.Categories.Jurisdiction)
	assert.Equal(t, 1, cfg.Retry.MaxAttempts)
	assert.NoError(t, cfg.Validate())
}

func TestLoadConfig_Overrides(t *testing.T) {
	t.Setenv("LLM_PROVIDER", "Claude")
	t.Setenv("INBOX_DIR", "/srv/inbox")
	t.Setenv("LLM_TIMEOUT", "15s")
	t.Setenv("RETRY_MAX_ATTEMPTS", "3")
	t.Setenv("RETRY_NETWORK", "true")
	t.Setenv("WATCH_INITIAL_SCAN", "false")
	t.Setenv("LLM_TEMPERATURE", "not-a-number")

	cfg := LoadConfig()
	assert.Equal(t, constants.ProviderAnthropic, cfg.LLM.Provider)
	assert.Equal(t, "/srv/inbox/processed", cfg.Watch.ProcessedDir)
	assert.Equal(t, 15*time.Second, cfg.LLM.Timeout)
	assert.Equal(t, 3, cfg.Retry.MaxAttempts)
	assert.True(t, cfg.Retry.RetryNetwork)
	assert.False(t, cfg.Watch.InitialScan)
	assert.Zero(t, cfg.LLM.Temperature, "unparsable values fall back to the default")
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name string
		edit func(*Config)
	}{
		{"unknown provider", func(c *Config) { c.LLM.Provider = "mistral" }},
		{"no dsn", func(c *Config) { c.Database.DSN = "" }},
		{"zero timeout", func(c *Config) { c.LLM.Timeout = 0 }},
		{"same archive dirs", func(c *Config) { c.Watch.ReviewDir = c.Watch.ProcessedDir }},
		{"no attempts", func(c *Config) { c.Retry.MaxAttempts = 0 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := LoadConfig()
			tt.edit(cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.Equal(t, "CONFIG_ERROR", CodeOf(err))
			assert.True(t, errors.Is(err, ErrInvalidInput))
		})
	}
}

func TestEnvKeySource(t *testing.T) {
	t.Setenv("GEMINI_API_KEY", "")
	t.Setenv("GOOGLE_API_KEY", " g-key ")
	assert.Equal(t, "g-key", EnvKeySource{}.APIKey(constants.ProviderGoogle))

	t.Setenv("OPENAI_API_KEY", "")
	assert.Empty(t, EnvKeySource{}.APIKey(constants.ProviderOpenAI))
}

func TestLoggerFromContext(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(&buf, LogConfig{Level: "debug", Format: "json"})

	ctx := WithRequestID(WithLogger(context.Background(), logger), "req-1")
	LoggerFromContext(ctx, nil).Debug("pipeline.process.start")
	assert.Contains(t, buf.String(), `"req_id":"req-1"`)
	assert.Contains(t, buf.String(), `"msg":"pipeline.process.start"`)

	assert.Equal(t, slog.LevelWarn, ParseLevel("WARNING"))
	assert.Equal(t, slog.LevelInfo, ParseLevel("loud"))
}
