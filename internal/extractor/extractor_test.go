package extractor

import (
	"context"
	"errors"
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
		Usage:   llm.Usage{InputTokens: 150, OutputTokens: 75},
		Model:   "stub-model",
	}, nil
}

func (p *stubProvider) Name() string { return "stub" }

func contactPlan() plan.SearchPlan {
	return plan.SearchPlan{
		Steps: []plan.SearchStep{
			{TargetKey: "name", SearchInstruction: "find the person's full name", ValidationType: plan.TypeString, IsRequired: true},
			{TargetKey: "email", SearchInstruction: "find the contact email address", ValidationType: plan.TypeEmail, IsRequired: true},
			{TargetKey: "company", SearchInstruction: "find the company name if any", ValidationType: plan.TypeString, IsRequired: false, DefaultValue: "unknown"},
		},
		TotalSteps:          3,
		EstimatedComplexity: plan.ComplexityLow,
		Confidence:          0.9,
	}
}

func TestExecute_Success(t *testing.T) {
	provider := &stubProvider{content: `{
		"extractedData": {"name": "Ada Lovelace", "email": "ada@example.com", "company": "Analytical Engines"},
		"extractionNotes": {"name": "clear match", "email": "exact", "company": "clear"}
	}`}
	e := New(provider)

	res, err := e.Execute(context.Background(), "Ada Lovelace <ada@example.com>, Analytical Engines", contactPlan(), "req-1")
	if err != nil {
		t.Fatalf("Execute returned error: %v", err)
	}
	if !res.Success {
		t.Fatalf("Execute failed: %+v", res.Err)
	}
	if res.Data["name"] != "Ada Lovelace" {
		t.Errorf("name = %v", res.Data["name"])
	}
	if len(res.FailedFields) != 0 {
		t.Errorf("failedFields = %v, want none", res.FailedFields)
	}
	if res.TokensUsed != 225 {
		t.Errorf("tokensUsed = %d, want 225", res.TokensUsed)
	}
	if !provider.lastReq.JSONMode {
		t.Error("extractor call should request JSON mode")
	}
}

func TestExecute_KeySetMatchesPlanExactly(t *testing.T) {
	// The response misses "company", includes a surplus "phone".
	provider := &stubProvider{content: `{
		"extractedData": {"name": "Ada", "email": "ada@example.com", "phone": "555-0100"}
	}`}
	e := New(provider)

	res, err := e.Execute(context.Background(), "some input", contactPlan(), "req-1")
	if err != nil {
		t.Fatal(err)
	}
	if !res.Success {
		t.Fatalf("Execute failed: %+v", res.Err)
	}

	if len(res.Data) != 3 {
		t.Fatalf("result has %d keys, want exactly the plan's 3", len(res.Data))
	}
	if _, ok := res.Data["phone"]; ok {
		t.Error("surplus key phone should be dropped")
	}
	// Missing optional key takes the step default.
	if res.Data["company"] != "unknown" {
		t.Errorf("company = %v, want default %q", res.Data["company"], "unknown")
	}
}

func TestExecute_MissingWithoutDefaultIsNil(t *testing.T) {
	provider := &stubProvider{content: `{"extractedData": {"email": "ada@example.com"}}`}
	e := New(provider)

	res, err := e.Execute(context.Background(), "some input", contactPlan(), "req-1")
	if err != nil {
		t.Fatal(err)
	}
	value, ok := res.Data["name"]
	if !ok {
		t.Fatal("name key must be present")
	}
	if value != nil {
		t.Errorf("name = %v, want nil", value)
	}
	if len(res.FailedFields) != 1 || res.FailedFields[0] != "name" {
		t.Errorf("failedFields = %v, want [name]", res.FailedFields)
	}
}

func TestExecute_InputValidation(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		sp       plan.SearchPlan
		opts     []Option
		wantCode string
	}{
		{"empty input", "", contactPlan(), nil, CodeInvalidInputData},
		{"whitespace input", " \n\t ", contactPlan(), nil, CodeEmptyInputData},
		{"oversized input", strings.Repeat("x", 101), contactPlan(), []Option{WithMaxInputLength(100)}, CodeInputTooLarge},
		{"empty plan", "valid input", plan.SearchPlan{}, nil, CodeEmptySearchPlan},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := New(&stubProvider{content: "{}"}, tt.opts...)
			res, err := e.Execute(context.Background(), tt.input, tt.sp, "req-1")
			if err != nil {
				t.Fatalf("Execute returned error: %v", err)
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

func TestExecute_ResponseParsing(t *testing.T) {
	tests := []struct {
		name     string
		content  string
		wantCode string
	}{
		{"malformed json", "not json", CodeJSONParseError},
		{"missing extractedData", `{"extractionNotes": {}}`, CodeInvalidResponseFormat},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := New(&stubProvider{content: tt.content})
			res, err := e.Execute(context.Background(), "some input", contactPlan(), "req-1")
			if err != nil {
				t.Fatal(err)
			}
			if res.Success {
				t.Fatal("expected failure")
			}
			if res.Err.Code != tt.wantCode {
				t.Errorf("code = %q, want %q", res.Err.Code, tt.wantCode)
			}
			// Failure results report every plan key as failed.
			if len(res.FailedFields) != 3 {
				t.Errorf("failedFields = %v, want all plan keys", res.FailedFields)
			}
		})
	}
}

func TestExecute_ProviderErrorIsDomainFailure(t *testing.T) {
	e := New(&stubProvider{err: &llm.Error{Provider: "stub", Err: errors.New("overloaded")}})
	res, err := e.Execute(context.Background(), "some input", contactPlan(), "req-1")
	if err != nil {
		t.Fatalf("provider errors should not propagate: %v", err)
	}
	if res.Success {
		t.Fatal("expected failure")
	}
	if res.Err.Code != CodeLLMError {
		t.Errorf("code = %q, want %q", res.Err.Code, CodeLLMError)
	}
}

func TestExecute_FencedResponse(t *testing.T) {
	e := New(&stubProvider{content: "```json\n" + `{"extractedData": {"name": "Ada", "email": "ada@example.com", "company": "AE"}}` + "\n```"})
	res, err := e.Execute(context.Background(), "some input", contactPlan(), "req-1")
	if err != nil {
		t.Fatal(err)
	}
	if !res.Success {
		t.Fatalf("fenced JSON should parse: %+v", res.Err)
	}
}
