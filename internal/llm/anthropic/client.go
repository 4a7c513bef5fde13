package anthropic

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/joseph-ayodele/bookkeeper/constants"
	"github.com/joseph-ayodele/bookkeeper/internal/common"
	"github.com/joseph-ayodele/bookkeeper/internal/llm"
)

const (
	DefaultBaseURL = "https://api.anthropic.com"
	APIVersion     = "2023-06-01"
)

// Config for the Anthropic Messages API client.
type Config struct {
	APIKey      string
	BaseURL     string
	Model       string
	Temperature float32
	MaxTokens   int
	Timeout     time.Duration
}

type Client struct {
	cfg    Config
	http   *http.Client
	logger *slog.Logger
}

func NewClient(cfg Config, logger *slog.Logger) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.Model == "" {
		cfg.Model = "claude-sonnet-4-5"
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = 1024
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 60 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{cfg: cfg, http: &http.Client{Timeout: cfg.Timeout}, logger: logger}
}

// WithHTTPClient swaps the transport (tests point it at httptest servers).
func (c *Client) WithHTTPClient(hc *http.Client) *Client {
	if hc != nil {
		c.http = hc
	}
	return c
}

func (c *Client) Name() string { return string(constants.ProviderAnthropic) }

// Extract implements llm.Provider over POST /v1/messages.
func (c *Client) Extract(ctx context.Context, doc llm.Document, categories []string) llm.Result {
	rid := common.RequestIDFromContext(ctx)
	if rid == "" {
		rid = uuid.New().String()
		ctx = common.WithRequestID(ctx, rid)
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
	body := map[string]any{
		"model":       c.cfg.Model,
		"max_tokens":  c.cfg.MaxTokens,
		"temperature": c.cfg.Temperature,
		"system":      llm.BuildSystemPrompt(categories) + "\n\n" + llm.SchemaInstruction(schema),
		"messages": []map[string]any{
			{
				"role": "user",
				"content": []map[string]any{
					documentBlock(doc),
					{"type": "text", "text": llm.BuildUserPrompt(doc)},
				},
			},
		},
	}
	headers := map[string]string{
		"x-api-key":         c.cfg.APIKey,
		"anthropic-version": APIVersion,
	}
	endpoint := strings.TrimRight(c.cfg.BaseURL, "/") + "/v1/messages"

	raw, _, err := llm.SendJSON(ctx, c.http, endpoint, body, headers, c.logger)
	if err != nil {
		var ee *llm.ExtractionError
		if !errors.As(err, &ee) {
			ee = llm.ClassifyTransport(err)
		}
		refineErrorType(ee)
		c.logger.Error("llm.extract.http_error",
			"req_id", rid, "provider", c.Name(), "kind", ee.Kind, "error", err,
			"elapsed_ms", time.Since(start).Milliseconds(),
		)
		return llm.Failed(c.Name(), ee)
	}

	text, ee := parseMessagesResponse(raw)
	if ee != nil {
		c.logger.Error("llm.extract.decode_error",
			"req_id", rid, "provider", c.Name(), "error", ee,
			"elapsed_ms", time.Since(start).Milliseconds(),
		)
		return llm.Failed(c.Name(), ee)
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

func documentBlock(doc llm.Document) map[string]any {
	kind := "document"
	if doc.IsImage() {
		kind = "image"
	}
	return map[string]any{
		"type": kind,
		"source": map[string]any{
			"type":       "base64",
			"media_type": doc.MIMEType,
			"data":       doc.Base64(),
		},
	}
}

func parseMessagesResponse(raw []byte) (string, *llm.ExtractionError) {
	var resp struct {
		Type    string `json:"type"`
		Content []struct {
			Type string `json:"type"`
			Text string `json:"text"`
		} `json:"content"`
		StopReason string `json:"stop_reason"`
	}
	if err := json.Unmarshal(raw, &resp); err != nil {
		return "", &llm.ExtractionError{Kind: llm.KindMalformedResponse, Message: "decode messages response", Raw: raw, Cause: err}
	}
	var b strings.Builder
	for _, block := range resp.Content {
		if block.Type == "text" {
			b.WriteString(block.Text)
		}
	}
	text := strings.TrimSpace(b.String())
	if text == "" {
		return "", &llm.ExtractionError{Kind: llm.KindMalformedResponse, Message: "no text content (stop_reason=" + resp.StopReason + ")", Raw: raw}
	}
	return text, nil
}

// refineErrorType uses the typed error envelope, which is more precise than the status code.
func refineErrorType(ee *llm.ExtractionError) {
	if len(ee.Raw) == 0 {
		return
	}
	var env struct {
		Error struct {
			Type string `json:"type"`
		} `json:"error"`
	}
	if json.Unmarshal(ee.Raw, &env) != nil {
		return
	}
	switch env.Error.Type {
	case "authentication_error", "permission_error":
		ee.Kind = llm.KindAuthentication
	case "rate_limit_error", "overloaded_error":
		ee.Kind = llm.KindRateLimit
	case "api_error", "timeout_error":
		ee.Kind = llm.KindNetwork
	case "request_too_large":
		ee.Kind = llm.KindUnsupportedFormat
	}
}
