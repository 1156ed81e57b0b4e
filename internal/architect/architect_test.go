package architect

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"testing"

	"github.com/Domusgpt/parserator-sub000/internal/llm"
	"github.com/Domusgpt/parserator-sub000/internal/logger"
	"github.com/Domusgpt/parserator-sub000/internal/plan"
)

func TestMain(m *testing.M) {
	logger.Init(logger.Options{Quiet: true})
	os.Exit(m.Run())
}

type stubProvider struct {
	content string
	err     error
	lastReq llm.CompletionRequest
}

func (p *stubProvider) Complete(ctx context.Context, req llm.CompletionRequest) (llm.CompletionResponse, error) {
	p.lastReq = req
	if p.err != nil {
		return llm.CompletionResponse{}, p.err
	}
	return llm.CompletionResponse{
		Content: p.content,
		Usage:   llm.Usage{InputTokens: 120, OutputTokens: 60},
		Model:   "stub-model",
	}, nil
}

func (p *stubProvider) Name() string { return "stub" }

func planJSON(confidence float64, stepKeys ...string) string {
	var steps []string
	for _, key := range stepKeys {
		steps = append(steps, fmt.Sprintf(
			`{"targetKey": %q, "description": "the %s", "searchInstruction": "Locate the %s field in the text", "validationType": "string", "isRequired": true}`,
			key, key, key))
	}
	return fmt.Sprintf(`{"steps": [%s], "totalSteps": %d, "estimatedComplexity": "low", "planConfidence": %g}`,
		strings.Join(steps, ","), len(stepKeys), confidence)
}

func TestGenerate_Success(t *testing.T) {
	provider := &stubProvider{content: planJSON(0.9, "name", "email")}
	a := New(provider)

	res, err := a.Generate(context.Background(),
		map[string]string{"name": "string", "email": "email"},
		"Ada Lovelace <ada@example.com>", "", "req-1")
	if err != nil {
		t.Fatalf("Generate returned error: %v", err)
	}
	if !res.Success {
		t.Fatalf("Generate failed: %+v", res.Err)
	}
	if res.Plan.TotalSteps != 2 {
		t.Errorf("totalSteps = %d, want 2", res.Plan.TotalSteps)
	}
	if res.Plan.Confidence != 0.9 {
		t.Errorf("planConfidence = %g, want 0.9", res.Plan.Confidence)
	}
	if res.Plan.Metadata.PlanVersion != "v2.1" {
		t.Errorf("planVersion = %q, want v2.1", res.Plan.Metadata.PlanVersion)
	}
	if res.TokensUsed != 180 {
		t.Errorf("tokensUsed = %d, want 180", res.TokensUsed)
	}
	if !provider.lastReq.JSONMode {
		t.Error("architect call should request JSON mode")
	}
}

func TestGenerate_InputValidation(t *testing.T) {
	bigSchema := make(map[string]string)
	for i := 0; i < 51; i++ {
		bigSchema[fmt.Sprintf("field%d", i)] = "string"
	}

	tests := []struct {
		name     string
		schema   map[string]string
		sample   string
		wantCode string
	}{
		{"nil schema", nil, "text", CodeInvalidOutputSchema},
		{"empty schema", map[string]string{}, "text", CodeEmptyOutputSchema},
		{"oversized schema", bigSchema, "text", CodeSchemaTooLarge},
		{"empty sample", map[string]string{"a": "string"}, "", CodeInvalidDataSample},
		{"whitespace sample", map[string]string{"a": "string"}, "   \n\t", CodeEmptyDataSample},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := New(&stubProvider{content: planJSON(0.9, "a")})
			res, err := a.Generate(context.Background(), tt.schema, tt.sample, "", "req-1")
			if err != nil {
				t.Fatalf("Generate returned error: %v", err)
			}
			if res.Success {
				t.Fatal("expected failure")
			}
			if res.Err.Code != tt.wantCode {
				t.Errorf("code = %q, want %q", res.Err.Code, tt.wantCode)
			}
		})
	}
}

func TestGenerate_ResponseParsing(t *testing.T) {
	tests := []struct {
		name     string
		content  string
		wantCode string
	}{
		{"malformed json", "not json", CodeJSONParseError},
		{"missing steps", `{"planConfidence": 0.9}`, CodeInvalidResponseFormat},
		{"missing confidence", `{"steps": []}`, CodeInvalidResponseFormat},
		{
			"step missing targetKey",
			`{"steps": [{"description": "d", "searchInstruction": "Find the value here", "validationType": "string", "isRequired": true}], "planConfidence": 0.9}`,
			CodeInvalidSearchStep,
		},
		{
			"step instruction too short",
			`{"steps": [{"targetKey": "a", "description": "d", "searchInstruction": "short", "validationType": "string", "isRequired": true}], "planConfidence": 0.9}`,
			CodeInvalidSearchStep,
		},
		{
			"step bad validation type",
			`{"steps": [{"targetKey": "a", "description": "d", "searchInstruction": "Find the value here", "validationType": "integer", "isRequired": true}], "planConfidence": 0.9}`,
			CodeInvalidSearchStep,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := New(&stubProvider{content: tt.content})
			res, err := a.Generate(context.Background(),
				map[string]string{"a": "string"}, "sample text", "", "req-1")
			if err != nil {
				t.Fatalf("Generate returned error: %v", err)
			}
			if res.Success {
				t.Fatal("expected failure")
			}
			if res.Err.Code != tt.wantCode {
				t.Errorf("code = %q, want %q", res.Err.Code, tt.wantCode)
			}
		})
	}
}

func TestGenerate_PlanValidation(t *testing.T) {
	tests := []struct {
		name     string
		content  string
		schema   map[string]string
		opts     []Option
		wantCode string
	}{
		{
			"low confidence",
			planJSON(0.5, "a"),
			map[string]string{"a": "string"},
			nil,
			CodeLowConfidence,
		},
		{
			"missing schema field",
			planJSON(0.9, "a"),
			map[string]string{"a": "string", "b": "string"},
			nil,
			CodeMissingSchemaFields,
		},
		{
			"unexpected target key",
			planJSON(0.9, "a", "b"),
			map[string]string{"a": "string"},
			nil,
			CodeUnexpectedTargetKeys,
		},
		{
			"duplicate target keys",
			planJSON(0.9, "a", "a"),
			map[string]string{"a": "string"},
			nil,
			CodeDuplicateTargetKeys,
		},
		{
			"too many steps",
			planJSON(0.9, "a", "b", "c"),
			map[string]string{"a": "string"},
			[]Option{WithMaxFieldCount(2)},
			CodeTooManyFields,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := New(&stubProvider{content: tt.content}, tt.opts...)
			res, err := a.Generate(context.Background(), tt.schema, "sample text", "", "req-1")
			if err != nil {
				t.Fatalf("Generate returned error: %v", err)
			}
			if res.Success {
				t.Fatal("expected failure")
			}
			if res.Err.Code != tt.wantCode {
				t.Errorf("code = %q, want %q", res.Err.Code, tt.wantCode)
			}
		})
	}
}

func TestGenerate_ProviderErrorIsDomainFailure(t *testing.T) {
	a := New(&stubProvider{err: &llm.Error{Provider: "stub", Err: errors.New("rate limited")}})
	res, err := a.Generate(context.Background(),
		map[string]string{"a": "string"}, "sample text", "", "req-1")
	if err != nil {
		t.Fatalf("provider errors should not propagate: %v", err)
	}
	if res.Success {
		t.Fatal("expected failure")
	}
	if res.Err.Code != CodeLLMError {
		t.Errorf("code = %q, want %q", res.Err.Code, CodeLLMError)
	}
	if len(res.Plan.Steps) != 0 {
		t.Error("failure result should carry an empty plan")
	}
}

func TestGenerate_FencedResponse(t *testing.T) {
	fenced := "```json\n" + planJSON(0.9, "a") + "\n```"
	a := New(&stubProvider{content: fenced})
	res, err := a.Generate(context.Background(),
		map[string]string{"a": "string"}, "sample text", "", "req-1")
	if err != nil {
		t.Fatal(err)
	}
	if !res.Success {
		t.Fatalf("fenced JSON should parse: %+v", res.Err)
	}
}

func TestGenerate_DefaultsComplexity(t *testing.T) {
	content := `{"steps": [{"targetKey": "a", "description": "d", "searchInstruction": "Find the a value in text", "validationType": "string", "isRequired": true}], "estimatedComplexity": "extreme", "planConfidence": 0.9}`
	a := New(&stubProvider{content: content})
	res, err := a.Generate(context.Background(),
		map[string]string{"a": "string"}, "sample text", "", "req-1")
	if err != nil {
		t.Fatal(err)
	}
	if !res.Success {
		t.Fatalf("unexpected failure: %+v", res.Err)
	}
	if res.Plan.EstimatedComplexity != plan.ComplexityMedium {
		t.Errorf("complexity = %q, want medium fallback", res.Plan.EstimatedComplexity)
	}
	if res.Plan.TotalSteps != 1 {
		t.Errorf("totalSteps = %d, want inferred 1", res.Plan.TotalSteps)
	}
}

func TestOptimizeSample(t *testing.T) {
	tests := []struct {
		name      string
		input     string
		maxLength int
		want      string
	}{
		{
			"under limit unchanged",
			"short text",
			100,
			"short text",
		},
		{
			"breaks at last separator",
			"First sentence is here. Second one follows right after the break",
			30,
			"First sentence is here. ",
		},
		{
			"hard cut when break too early",
			"word " + strings.Repeat("x", 100),
			20,
			"word xxxxxxxxxxxxxxx",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := OptimizeSample(tt.input, tt.maxLength)
			if got != tt.want {
				t.Errorf("OptimizeSample() = %q, want %q", got, tt.want)
			}
			if len(got) > tt.maxLength {
				t.Errorf("result length %d exceeds max %d", len(got), tt.maxLength)
			}
		})
	}
}
