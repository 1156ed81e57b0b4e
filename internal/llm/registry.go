package llm

import (
	"context"
	"fmt"
	"os"
)

// ProviderFactory creates providers.
type ProviderFactory func(ctx context.Context, cfg ProviderConfig) (Provider, error)

// DefaultModels maps provider names to their default models.
var DefaultModels = map[string]string{
	"gemini":     "gemini-1.5-flash",
	"anthropic":  "claude-sonnet-4-20250514",
	"openai":     "gpt-4o",
	"openrouter": "google/gemini-flash-1.5",
}

var registry = map[string]ProviderFactory{
	"gemini": func(ctx context.Context, cfg ProviderConfig) (Provider, error) {
		return NewGeminiProvider(ctx, cfg)
	},
	"anthropic": func(_ context.Context, cfg ProviderConfig) (Provider, error) {
		return NewAnthropicProvider(cfg)
	},
	"openai": func(_ context.Context, cfg ProviderConfig) (Provider, error) {
		return NewOpenAIProvider(cfg)
	},
	"openrouter": func(_ context.Context, cfg ProviderConfig) (Provider, error) {
		return NewOpenRouterProvider(cfg)
	},
}

// NewProvider creates a provider by name.
func NewProvider(ctx context.Context, name string, cfg ProviderConfig) (Provider, error) {
	factory, ok := registry[name]
	if !ok {
		return nil, fmt.Errorf("unknown provider: %s (available: gemini, anthropic, openai, openrouter)", name)
	}
	return factory(ctx, cfg)
}

// RegisterProvider adds a custom provider factory.
func RegisterProvider(name string, factory ProviderFactory) {
	registry[name] = factory
}

// DetectProvider auto-detects the best provider based on available API keys.
// Returns the provider name and API key.
// Priority: GEMINI_API_KEY > ANTHROPIC_API_KEY > OPENAI_API_KEY > OPENROUTER_API_KEY
func DetectProvider() (provider string, apiKey string) {
	if key := os.Getenv("GEMINI_API_KEY"); key != "" {
		return "gemini", key
	}

	if key := os.Getenv("ANTHROPIC_API_KEY"); key != "" {
		return "anthropic", key
	}

	if key := os.Getenv("OPENAI_API_KEY"); key != "" {
		return "openai", key
	}

	if key := os.Getenv("OPENROUTER_API_KEY"); key != "" {
		return "openrouter", key
	}

	return "gemini", ""
}

// GetDefaultModel returns the default model for a provider.
func GetDefaultModel(provider string) string {
	if model, ok := DefaultModels[provider]; ok {
		return model
	}
	return ""
}
