// Package factory builds the configured extraction provider.
package factory

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/joseph-ayodele/bookkeeper/constants"
	"github.com/joseph-ayodele/bookkeeper/internal/common"
	"github.com/joseph-ayodele/bookkeeper/internal/llm"
	"github.com/joseph-ayodele/bookkeeper/internal/llm/anthropic"
	"github.com/joseph-ayodele/bookkeeper/internal/llm/google"
	"github.com/joseph-ayodele/bookkeeper/internal/llm/openai"
	"github.com/joseph-ayodele/bookkeeper/internal/llm/xai"
	"github.com/joseph-ayodele/bookkeeper/internal/render"
)

// New returns the adapter for p, wrapped in the local rate limiter when configured.
// A missing API key is reported here, before any network traffic.
func New(ctx context.Context, p constants.Provider, keys common.KeySource, cfg common.LLMConfig, logger *slog.Logger) (llm.Provider, error) {
	if logger == nil {
		logger = slog.Default()
	}
	key := strings.TrimSpace(keys.APIKey(p))
	if key == "" {
		return nil, common.NewAppError("CONFIG_ERROR",
			fmt.Sprintf("no API key for %s (set %s)", p, strings.Join(common.APIKeyEnvNames(p), " or ")),
			llm.Errorf(llm.KindAuthentication, "no API key configured"))
	}

	var provider llm.Provider
	switch p {
	case constants.ProviderOpenAI:
		provider = openai.NewClient(openai.Config{
			APIKey:      key,
			BaseURL:     cfg.BaseURLs[p],
			Model:       cfg.Models[p],
			Temperature: cfg.Temperature,
			MaxTokens:   cfg.MaxTokens,
			Timeout:     cfg.Timeout,
		}, logger)
	case constants.ProviderAnthropic:
		provider = anthropic.NewClient(anthropic.Config{
			APIKey:      key,
			BaseURL:     cfg.BaseURLs[p],
			Model:       cfg.Models[p],
			Temperature: cfg.Temperature,
			MaxTokens:   cfg.MaxTokens,
			Timeout:     cfg.Timeout,
		}, logger)
	case constants.ProviderXAI:
		raster := render.NewRasterizer(render.Config{
			Pdftoppm: cfg.Pdftoppm,
			DPI:      cfg.RenderDPI,
			MaxPages: cfg.RenderMaxPages,
		}, nil, logger)
		if !raster.Available() {
			logger.Warn("llm.factory.pdftoppm_missing", "provider", p, "note", "PDFs will be reported as unsupported_format")
		}
		provider = xai.NewClient(xai.Config{
			APIKey:      key,
			BaseURL:     cfg.BaseURLs[p],
			Model:       cfg.Models[p],
			Temperature: cfg.Temperature,
			MaxTokens:   cfg.MaxTokens,
			Timeout:     cfg.Timeout,
		}, raster, logger)
	case constants.ProviderGoogle:
		g, err := google.NewClient(ctx, google.Config{
			APIKey:      key,
			BaseURL:     cfg.BaseURLs[p],
			Model:       cfg.Models[p],
			Temperature: cfg.Temperature,
			MaxTokens:   cfg.MaxTokens,
			Timeout:     cfg.Timeout,
		}, logger)
		if err != nil {
			return nil, common.NewAppError("CONFIG_ERROR", "create gemini client", err)
		}
		provider = g
	default:
		return nil, common.NewAppError("CONFIG_ERROR", fmt.Sprintf("unknown provider %q", p), common.ErrInvalidInput)
	}

	logger.Info("llm.provider.ready", "provider", p, "model", cfg.Models[p], "requests_per_min", cfg.RequestsPerMin)
	return llm.NewRateLimited(provider, cfg.RequestsPerMin, logger), nil
}
