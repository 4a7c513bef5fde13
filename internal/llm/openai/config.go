package openai

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/joseph-ayodele/bookkeeper/constants"
)

// DefaultBaseURL is the public OpenAI API root.
const DefaultBaseURL = "https://api.openai.com/v1"

// Config for the OpenAI client (and OpenAI-compatible vendors).
type Config struct {
	APIKey      string
	BaseURL     string        // default https://api.openai.com/v1
	Model       string        // e.g., "gpt-4o-mini"
	Temperature float32       // 0..2
	MaxTokens   int           // 0 leaves the vendor default
	Timeout     time.Duration // per-call bound, also the http client timeout
	JSONMode    bool          // send response_format json_object
	AllowPDF    bool          // send PDFs as file parts
}

type Client struct {
	name   string
	cfg    Config
	http   *http.Client
	logger *slog.Logger
}

// NewClient builds the OpenAI adapter.
func NewClient(cfg Config, logger *slog.Logger) *Client {
	cfg.JSONMode = true
	cfg.AllowPDF = true
	return NewCompatibleClient(string(constants.ProviderOpenAI), cfg, logger)
}

// NewCompatibleClient builds an adapter for any vendor speaking the chat/completions dialect.
func NewCompatibleClient(name string, cfg Config, logger *slog.Logger) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.Model == "" {
		cfg.Model = "gpt-4o-mini"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 60 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		name:   name,
		cfg:    cfg,
		http:   &http.Client{Timeout: cfg.Timeout},
		logger: logger,
	}
}

// WithHTTPClient swaps the transport (tests point it at httptest servers).
func (c *Client) WithHTTPClient(hc *http.Client) *Client {
	if hc != nil {
		c.http = hc
	}
	return c
}

func (c *Client) Name() string { return c.name }
