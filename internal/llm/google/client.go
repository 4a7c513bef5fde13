package google

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"google.golang.org/genai"

	"github.com/joseph-ayodele/bookkeeper/constants"
	"github.com/joseph-ayodele/bookkeeper/internal/common"
	"github.com/joseph-ayodele/bookkeeper/internal/llm"
)

type Config struct {
	APIKey      string
	BaseURL     string // optional override, mostly for tests
	Model       string
	Temperature float32
	MaxTokens   int
	Timeout     time.Duration
}

// contentGenerator is the slice of *genai.Models we use.
type contentGenerator interface {
	GenerateContent(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error)
}

type Client struct {
	cfg    Config
	models contentGenerator
	logger *slog.Logger
}

// NewClient builds a Gemini adapter over the genai SDK.
func NewClient(ctx context.Context, cfg Config, logger *slog.Logger) (*Client, error) {
	if cfg.Model == "" {
		cfg.Model = "gemini-2.5-flash"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 60 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, llm.Errorf(llm.KindAuthentication, "no API key configured")
	}

	cc := &genai.ClientConfig{
		APIKey:     cfg.APIKey,
		Backend:    genai.BackendGeminiAPI,
		HTTPClient: &http.Client{Timeout: cfg.Timeout},
	}
	if cfg.BaseURL != "" {
		cc.HTTPOptions = genai.HTTPOptions{BaseURL: cfg.BaseURL}
	}
	client, err := genai.NewClient(ctx, cc)
	if err != nil {
		return nil, err
	}
	return &Client{cfg: cfg, models: client.Models, logger: logger}, nil
}

// newWithGenerator is used by tests to inject a fake.
func newWithGenerator(cfg Config, gen contentGenerator, logger *slog.Logger) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 60 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{cfg: cfg, models: gen, logger: logger}
}

func (c *Client) Name() string { return string(constants.ProviderGoogle) }

func (c *Client) Extract(ctx context.Context, doc llm.Document, categories []string) llm.Result {
	rid := common.RequestIDFromContext(ctx)
	if rid == "" {
		rid = uuid.New().String()
	}
	start := time.Now()

	if strings.TrimSpace(c.cfg.APIKey) == "" {
		return llm.Failed(c.Name(), llm.Errorf(llm.KindAuthentication, "no API key configured"))
	}

	c.logger.Info("llm.extract.start",
		"req_id", rid,
		"provider", c.Name(),
		"model", c.cfg.Model,
		"document", doc.Name,
		"format", doc.Format,
		"bytes", len(doc.Data),
		"categories", len(categories),
	)

	ctx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	schema := llm.BuildTransactionJSONSchema(categories)
	contents := []*genai.Content{
		{
			Role: "user",
			Parts: []*genai.Part{
				{Text: llm.BuildUserPrompt(doc)},
				{
					InlineData: &genai.Blob{
						MIMEType: doc.MIMEType,
						Data:     doc.Data,
					},
				},
			},
		},
	}
	config := &genai.GenerateContentConfig{
		Temperature:      genai.Ptr(c.cfg.Temperature),
		ResponseMIMEType: "application/json",
		SystemInstruction: &genai.Content{
			Parts: []*genai.Part{{Text: llm.BuildSystemPrompt(categories) + "\n\n" + llm.SchemaInstruction(schema)}},
		},
	}
	if c.cfg.MaxTokens > 0 {
		config.MaxOutputTokens = int32(c.cfg.MaxTokens)
	}

	resp, err := c.models.GenerateContent(ctx, c.cfg.Model, contents, config)
	if err != nil {
		ee := classify(err)
		c.logger.Error("llm.extract.api_error",
			"req_id", rid, "provider", c.Name(), "kind", ee.Kind, "error", err,
			"elapsed_ms", time.Since(start).Milliseconds(),
		)
		return llm.Failed(c.Name(), ee)
	}
	if resp == nil {
		return llm.Failed(c.Name(), llm.Errorf(llm.KindMalformedResponse, "nil response"))
	}
	if resp.PromptFeedback != nil && resp.PromptFeedback.BlockReason != "" {
		return llm.Failed(c.Name(), malformed(resp, "prompt blocked: %s", resp.PromptFeedback.BlockReason))
	}

	text := resp.Text()
	if strings.TrimSpace(text) == "" {
		return llm.Failed(c.Name(), malformed(resp, "empty response from model"))
	}

	res := llm.ParseModelAnswer(c.Name(), text, categories, c.logger)
	if res.Success() {
		c.logger.Info("llm.extract.ok",
			"req_id", rid,
			"provider", c.Name(),
			"vendor", res.Fields.Vendor,
			"amount", res.Fields.Amount,
			"elapsed_ms", time.Since(start).Milliseconds(),
		)
	}
	return res
}

// malformed keeps the raw response so the review report shows what the model sent.
func malformed(resp *genai.GenerateContentResponse, format string, args ...any) *llm.ExtractionError {
	ee := llm.Errorf(llm.KindMalformedResponse, format, args...)
	if b, err := json.Marshal(resp); err == nil {
		ee.Raw = b
	}
	return ee
}

// classify maps SDK errors. genai returns APIError by value; check the pointer form too.
func classify(err error) *llm.ExtractionError {
	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		return fromAPIError(apiErr, err)
	}
	var apiErrPtr *genai.APIError
	if errors.As(err, &apiErrPtr) && apiErrPtr != nil {
		return fromAPIError(*apiErrPtr, err)
	}
	return llm.ClassifyTransport(err)
}

func fromAPIError(apiErr genai.APIError, cause error) *llm.ExtractionError {
	body, _ := json.Marshal(map[string]any{"error": map[string]any{"message": apiErr.Message, "status": apiErr.Status}})
	ee := llm.ClassifyStatus(apiErr.Code, body)
	ee.Message = apiErr.Message
	if apiErr.Status != "" {
		ee.Message = apiErr.Status + ": " + apiErr.Message
	}
	// Gemini reports bad keys as 400 INVALID_ARGUMENT "API key not valid".
	if apiErr.Code == http.StatusBadRequest && strings.Contains(strings.ToLower(apiErr.Message), "api key") {
		ee.Kind = llm.KindAuthentication
	}
	if apiErr.Status == "RESOURCE_EXHAUSTED" {
		ee.Kind = llm.KindRateLimit
	}
	ee.Cause = cause
	return ee
}
