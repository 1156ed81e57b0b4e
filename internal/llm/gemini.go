package llm

import (
	"context"
	"fmt"

	"google.golang.org/genai"
)

// GeminiProvider wraps the Google GenAI SDK.
type GeminiProvider struct {
	client *genai.Client
	model  string
	cfg    ProviderConfig
}

// NewGeminiProvider creates a new Gemini provider.
func NewGeminiProvider(ctx context.Context, cfg ProviderConfig) (*GeminiProvider, error) {
	cc := &genai.ClientConfig{
		Backend: genai.BackendGeminiAPI,
	}
	if cfg.APIKey != "" {
		cc.APIKey = cfg.APIKey
	}

	client, err := genai.NewClient(ctx, cc)
	if err != nil {
		return nil, fmt.Errorf("failed to create gemini client: %w", err)
	}

	model := cfg.Model
	if model == "" {
		model = "gemini-1.5-flash"
	}

	return &GeminiProvider{
		client: client,
		model:  model,
		cfg:    cfg,
	}, nil
}

// Complete sends a completion request to Gemini.
func (p *GeminiProvider) Complete(ctx context.Context, req CompletionRequest) (CompletionResponse, error) {
	var systemPrompt string
	var parts []*genai.Part

	for _, msg := range req.Messages {
		switch msg.Role {
		case RoleSystem:
			systemPrompt = msg.Content
		case RoleUser:
			parts = append(parts, genai.NewPartFromText(msg.Content))
		}
	}

	if len(parts) == 0 {
		return CompletionResponse{}, &Error{Provider: "gemini", Err: fmt.Errorf("no user content provided")}
	}

	contents := []*genai.Content{genai.NewContentFromParts(parts, genai.RoleUser)}

	temperature := float32(req.Temperature)
	config := &genai.GenerateContentConfig{
		Temperature: &temperature,
	}
	if req.MaxTokens > 0 {
		config.MaxOutputTokens = int32(req.MaxTokens)
	}
	if req.JSONMode {
		config.ResponseMIMEType = "application/json"
	}
	if systemPrompt != "" {
		config.SystemInstruction = genai.NewContentFromText(systemPrompt, genai.RoleUser)
	}

	resp, err := p.client.Models.GenerateContent(ctx, p.model, contents, config)
	if err != nil {
		return CompletionResponse{}, &Error{Provider: "gemini", Err: err}
	}

	if len(resp.Candidates) == 0 {
		return CompletionResponse{}, &Error{Provider: "gemini", Err: fmt.Errorf("no candidates in response")}
	}

	candidate := resp.Candidates[0]
	if candidate.Content == nil || len(candidate.Content.Parts) == 0 {
		return CompletionResponse{}, &Error{Provider: "gemini", Err: fmt.Errorf("no parts in candidate content")}
	}

	var usage Usage
	if resp.UsageMetadata != nil {
		usage.InputTokens = int(resp.UsageMetadata.PromptTokenCount)
		usage.OutputTokens = int(resp.UsageMetadata.CandidatesTokenCount)
	}

	return CompletionResponse{
		Content:      candidate.Content.Parts[0].Text,
		FinishReason: string(candidate.FinishReason),
		Usage:        usage,
		Model:        p.model,
	}, nil
}

// Name returns the provider identifier.
func (p *GeminiProvider) Name() string {
	return "gemini"
}
