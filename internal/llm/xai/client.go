// Package xai adapts Grok's OpenAI-compatible API. Grok's vision models take images only,
// so PDFs are rasterized first.
package xai

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/joseph-ayodele/bookkeeper/constants"
	"github.com/joseph-ayodele/bookkeeper/internal/llm"
	"github.com/joseph-ayodele/bookkeeper/internal/llm/openai"
	"github.com/joseph-ayodele/bookkeeper/internal/render"
)

const DefaultBaseURL = "https://api.x.ai/v1"

type Config struct {
	APIKey      string
	BaseURL     string
	Model       string
	Temperature float32
	MaxTokens   int
	Timeout     time.Duration
}

// PageRenderer turns a PDF into page images.
type PageRenderer interface {
	FirstPages(ctx context.Context, pdf []byte) ([][]byte, error)
}

type Client struct {
	inner    *openai.Client
	renderer PageRenderer
	timeout  time.Duration
	logger   *slog.Logger
}

func NewClient(cfg Config, renderer PageRenderer, logger *slog.Logger) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.Model == "" {
		cfg.Model = "grok-4"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 60 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	inner := openai.NewCompatibleClient(string(constants.ProviderXAI), openai.Config{
		APIKey:      cfg.APIKey,
		BaseURL:     cfg.BaseURL,
		Model:       cfg.Model,
		Temperature: cfg.Temperature,
		MaxTokens:   cfg.MaxTokens,
		Timeout:     cfg.Timeout,
		JSONMode:    true,
		AllowPDF:    false,
	}, logger)
	return &Client{inner: inner, renderer: renderer, timeout: cfg.Timeout, logger: logger}
}

// Inner exposes the wrapped chat client (tests swap its transport).
func (c *Client) Inner() *openai.Client { return c.inner }

func (c *Client) Name() string { return c.inner.Name() }

func (c *Client) Extract(ctx context.Context, doc llm.Document, categories []string) llm.Result {
	if doc.IsImage() {
		return c.inner.Extract(ctx, doc, categories)
	}
	if c.renderer == nil {
		return llm.Failed(c.Name(), llm.Errorf(llm.KindUnsupportedFormat, "PDF input needs a page renderer for %s", c.Name()))
	}

	// one deadline covers rendering plus the vendor request
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()
	pngs, err := c.renderer.FirstPages(ctx, doc.Data)
	if err != nil {
		kind := llm.KindUnsupportedFormat
		if errors.Is(err, context.DeadlineExceeded) {
			kind = llm.KindNetwork
		}
		c.logger.Error("llm.xai.render_failed", "document", doc.Name, "error", err, "unavailable", errors.Is(err, render.ErrUnavailable))
		return llm.Failed(c.Name(), llm.NewError(kind, "render PDF pages", err))
	}

	pages := make([]llm.Document, 0, len(pngs))
	for i, png := range pngs {
		pages = append(pages, doc.WithImage(png, i+1))
	}
	return c.inner.ExtractPages(ctx, doc, pages, categories)
}
