package commands

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/Domusgpt/parserator-sub000/internal/llm"
	"github.com/Domusgpt/parserator-sub000/internal/logger"
)

// addProviderFlags registers the LLM provider flags shared by serve and parse.
func addProviderFlags(cmd *cobra.Command) {
	flags := cmd.Flags()
	flags.StringP("provider", "p", "", "LLM provider: gemini, anthropic, openai, openrouter (auto-detects from env vars)")
	flags.StringP("model", "m", "", "model name (provider-specific)")
	flags.StringP("api-key", "k", "", "API key (or use env var)")
	flags.String("base-url", "", "custom API base URL")

	_ = viper.BindPFlag("provider", flags.Lookup("provider"))
	_ = viper.BindPFlag("model", flags.Lookup("model"))
	_ = viper.BindPFlag("api_key", flags.Lookup("api-key"))
	_ = viper.BindPFlag("base_url", flags.Lookup("base-url"))
}

// buildProvider resolves the configured provider, falling back to env-var
// detection when no provider is named.
func buildProvider(ctx context.Context) (llm.Provider, error) {
	name := viper.GetString("provider")
	apiKey := viper.GetString("api_key")

	if name == "" {
		detected, detectedKey := llm.DetectProvider()
		name = detected
		if apiKey == "" {
			apiKey = detectedKey
		}
		logger.Debug("auto-detected provider", "provider", name)
	}
	if apiKey == "" {
		return nil, fmt.Errorf("no API key configured for provider %s (set --api-key or the provider's env var)", name)
	}

	model := viper.GetString("model")
	if model == "" {
		model = llm.GetDefaultModel(name)
	}

	cfg := llm.DefaultProviderConfig()
	cfg.APIKey = apiKey
	cfg.Model = model
	cfg.BaseURL = viper.GetString("base_url")

	provider, err := llm.NewProvider(ctx, name, cfg)
	if err != nil {
		return nil, fmt.Errorf("creating %s provider: %w", name, err)
	}
	logger.Debug("provider ready", "provider", name, "model", model)
	return provider, nil
}
