package constants

import (
	"fmt"
	"strings"
)

// Provider identifies an LLM vendor.
type Provider string

const (
	ProviderOpenAI    Provider = "openai"
	ProviderAnthropic Provider = "anthropic"
	ProviderXAI       Provider = "xai"
	ProviderGoogle    Provider = "google"
)

var allProviders = []Provider{ProviderOpenAI, ProviderAnthropic, ProviderXAI, ProviderGoogle}

// Providers returns every supported provider in display order.
func Providers() []Provider {
	out := make([]Provider, len(allProviders))
	copy(out, allProviders)
	return out
}

// ParseProvider accepts a few common aliases ("claude", "grok", "gemini").
func ParseProvider(s string) (Provider, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "openai", "gpt", "chatgpt":
		return ProviderOpenAI, nil
	case "anthropic", "claude":
		return ProviderAnthropic, nil
	case "xai", "grok":
		return ProviderXAI, nil
	case "google", "gemini":
		return ProviderGoogle, nil
	default:
		return "", fmt.Errorf("unknown provider %q", s)
	}
}

func (p Provider) String() string { return string(p) }
