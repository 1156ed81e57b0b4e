// Package architect implements the first stage of the two-stage parsing
// workflow: turning an output schema plus a bounded data sample into a
// SearchPlan for the extractor to execute.
package architect

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/Domusgpt/parserator-sub000/internal/llm"
	"github.com/Domusgpt/parserator-sub000/internal/logger"
	"github.com/Domusgpt/parserator-sub000/internal/plan"
)

// Error codes returned by the architect stage.
const (
	CodeInvalidOutputSchema   = "INVALID_OUTPUT_SCHEMA"
	CodeEmptyOutputSchema     = "EMPTY_OUTPUT_SCHEMA"
	CodeSchemaTooLarge        = "SCHEMA_TOO_LARGE"
	CodeInvalidDataSample     = "INVALID_DATA_SAMPLE"
	CodeEmptyDataSample       = "EMPTY_DATA_SAMPLE"
	CodeInvalidResponseFormat = "INVALID_RESPONSE_FORMAT"
	CodeJSONParseError        = "JSON_PARSE_ERROR"
	CodeInvalidSearchStep     = "INVALID_SEARCH_STEP"
	CodeLowConfidence         = "LOW_CONFIDENCE"
	CodeTooManyFields         = "TOO_MANY_FIELDS"
	CodeMissingSchemaFields   = "MISSING_SCHEMA_FIELDS"
	CodeUnexpectedTargetKeys  = "UNEXPECTED_TARGET_KEYS"
	CodeDuplicateTargetKeys   = "DUPLICATE_TARGET_KEYS"
	CodeLLMError              = "LLM_ERROR"
)

// Error is a domain failure of the architect stage.
type Error struct {
	Code    string
	Message string
	Details map[string]any
}

func (e *Error) Error() string {
	return fmt.Sprintf("architect %s: %s", e.Code, e.Message)
}

// Config holds architect settings.
type Config struct {
	MaxSampleLength        int
	MinConfidenceThreshold float64
	MaxFieldCount          int
	PlanVersion            string
	Timeout                time.Duration
	MaxTokens              int
	Temperature            float64
}

// DefaultConfig returns defaults tuned for planning efficiency.
func DefaultConfig() Config {
	return Config{
		MaxSampleLength:        1000,
		MinConfidenceThreshold: 0.7,
		MaxFieldCount:          50,
		PlanVersion:            "v2.1",
		Timeout:                20 * time.Second,
		MaxTokens:              2048,
		Temperature:            0.1,
	}
}

// Result carries the outcome of one plan generation.
type Result struct {
	Plan           plan.SearchPlan
	TokensUsed     int
	ProcessingTime time.Duration
	Model          string
	Success        bool
	Err            *Error
}

// Architect generates SearchPlans via the extraction service.
type Architect struct {
	provider llm.Provider
	config   Config
}

// Option configures the architect.
type Option func(*Config)

// WithMaxSampleLength bounds the data sample sent to the LLM.
func WithMaxSampleLength(n int) Option {
	return func(c *Config) { c.MaxSampleLength = n }
}

// WithMinConfidence sets the plan acceptance threshold.
func WithMinConfidence(v float64) Option {
	return func(c *Config) { c.MinConfidenceThreshold = v }
}

// WithMaxFieldCount bounds the schema and plan size.
func WithMaxFieldCount(n int) Option {
	return func(c *Config) { c.MaxFieldCount = n }
}

// WithTimeout bounds a single generation call.
func WithTimeout(d time.Duration) Option {
	return func(c *Config) { c.Timeout = d }
}

// New creates an Architect.
func New(provider llm.Provider, opts ...Option) *Architect {
	cfg := DefaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	return &Architect{provider: provider, config: cfg}
}

// Config returns a copy of the current configuration.
func (a *Architect) Config() Config {
	return a.config
}

// Generate produces a validated SearchPlan for the given output schema and
// data sample. Domain failures are reported in Result.Err; only non-domain
// errors are returned as error.
func (a *Architect) Generate(ctx context.Context, outputSchema map[string]string, dataSample, instructions, requestID string) (Result, error) {
	start := time.Now()

	logger.Info("starting search plan generation",
		"request_id", requestID,
		"schema_fields", len(outputSchema),
		"sample_length", len(dataSample),
		"has_instructions", instructions != "")

	if err := a.validateInputs(outputSchema, dataSample); err != nil {
		return a.failure(err, start, 0, requestID), nil
	}

	sample := OptimizeSample(dataSample, a.config.MaxSampleLength)
	prompt := buildArchitectPrompt(outputSchema, sample, instructions)

	callCtx, cancel := context.WithTimeout(ctx, a.config.Timeout)
	defer cancel()

	resp, err := a.provider.Complete(callCtx, llm.CompletionRequest{
		Messages: []llm.Message{
			{Role: llm.RoleSystem, Content: architectSystemPrompt},
			{Role: llm.RoleUser, Content: prompt},
		},
		MaxTokens:   a.config.MaxTokens,
		Temperature: a.config.Temperature,
		JSONMode:    true,
	})
	if err != nil {
		var provErr *llm.Error
		if errors.As(err, &provErr) || errors.Is(err, context.DeadlineExceeded) {
			return a.failure(&Error{
				Code:    CodeLLMError,
				Message: err.Error(),
				Details: map[string]any{"requestId": requestID},
			}, start, 0, requestID), nil
		}
		return Result{}, fmt.Errorf("architect LLM call: %w", err)
	}

	searchPlan, perr := a.parseResponse(resp.Content, len(sample), requestID)
	if perr != nil {
		return a.failure(perr, start, resp.Usage.Total(), requestID), nil
	}

	if perr := a.validatePlan(searchPlan, outputSchema); perr != nil {
		return a.failure(perr, start, resp.Usage.Total(), requestID), nil
	}

	elapsed := time.Since(start)
	logger.Info("search plan generation completed",
		"request_id", requestID,
		"steps_generated", len(searchPlan.Steps),
		"confidence", searchPlan.Confidence,
		"complexity", searchPlan.EstimatedComplexity,
		"tokens_used", resp.Usage.Total(),
		"processing_time_ms", elapsed.Milliseconds())

	return Result{
		Plan:           searchPlan,
		TokensUsed:     resp.Usage.Total(),
		ProcessingTime: elapsed,
		Model:          resp.Model,
		Success:        true,
	}, nil
}

func (a *Architect) failure(aerr *Error, start time.Time, tokens int, requestID string) Result {
	elapsed := time.Since(start)
	logger.Error("search plan generation failed",
		"request_id", requestID,
		"code", aerr.Code,
		"error", aerr.Message,
		"processing_time_ms", elapsed.Milliseconds())
	return Result{
		Plan:           plan.Empty(a.config.PlanVersion),
		TokensUsed:     tokens,
		ProcessingTime: elapsed,
		Success:        false,
		Err:            aerr,
	}
}

func (a *Architect) validateInputs(outputSchema map[string]string, dataSample string) *Error {
	if outputSchema == nil {
		return &Error{Code: CodeInvalidOutputSchema, Message: "output schema must be a non-nil map"}
	}
	if len(outputSchema) == 0 {
		return &Error{Code: CodeEmptyOutputSchema, Message: "output schema cannot be empty"}
	}
	if len(outputSchema) > a.config.MaxFieldCount {
		return &Error{
			Code:    CodeSchemaTooLarge,
			Message: fmt.Sprintf("output schema has %d fields, exceeding limit of %d", len(outputSchema), a.config.MaxFieldCount),
			Details: map[string]any{"fieldCount": len(outputSchema), "limit": a.config.MaxFieldCount},
		}
	}
	if dataSample == "" {
		return &Error{Code: CodeInvalidDataSample, Message: "data sample must be a non-empty string"}
	}
	if strings.TrimSpace(dataSample) == "" {
		return &Error{Code: CodeEmptyDataSample, Message: "data sample cannot be empty or only whitespace"}
	}
	return nil
}

// architectResponse mirrors the JSON shape the LLM is instructed to emit.
type architectResponse struct {
	Steps                 []json.RawMessage `json:"steps"`
	TotalSteps            int               `json:"totalSteps"`
	EstimatedComplexity   string            `json:"estimatedComplexity"`
	PlanConfidence        *float64          `json:"planConfidence"`
	ExtractorInstructions string            `json:"extractorInstructions"`
}

func (a *Architect) parseResponse(content string, sampleLength int, requestID string) (plan.SearchPlan, *Error) {
	clean := llm.CleanJSONResponse(content)

	var parsed architectResponse
	if err := json.Unmarshal([]byte(clean), &parsed); err != nil {
		return plan.SearchPlan{}, &Error{
			Code:    CodeJSONParseError,
			Message: "invalid JSON response from architect",
			Details: map[string]any{"requestId": requestID, "responsePreview": preview(content), "parseError": err.Error()},
		}
	}

	if parsed.Steps == nil {
		return plan.SearchPlan{}, &Error{
			Code:    CodeInvalidResponseFormat,
			Message: "invalid response: missing or invalid steps array",
			Details: map[string]any{"requestId": requestID, "responsePreview": preview(content)},
		}
	}
	if parsed.PlanConfidence == nil {
		return plan.SearchPlan{}, &Error{
			Code:    CodeInvalidResponseFormat,
			Message: "invalid response: missing or invalid planConfidence",
			Details: map[string]any{"requestId": requestID, "responsePreview": preview(content)},
		}
	}

	steps := make([]plan.SearchStep, 0, len(parsed.Steps))
	for i, raw := range parsed.Steps {
		step, serr := decodeStep(raw, i, requestID)
		if serr != nil {
			return plan.SearchPlan{}, serr
		}
		steps = append(steps, step)
	}

	totalSteps := parsed.TotalSteps
	if totalSteps == 0 {
		totalSteps = len(steps)
	}
	complexity := plan.Complexity(parsed.EstimatedComplexity)
	switch complexity {
	case plan.ComplexityLow, plan.ComplexityMedium, plan.ComplexityHigh:
	default:
		complexity = plan.ComplexityMedium
	}

	return plan.SearchPlan{
		Steps:                 steps,
		TotalSteps:            totalSteps,
		EstimatedComplexity:   complexity,
		Confidence:            *parsed.PlanConfidence,
		ExtractorInstructions: parsed.ExtractorInstructions,
		Metadata: plan.Metadata{
			CreatedAt:    time.Now().UTC(),
			SampleLength: sampleLength,
			PlanVersion:  a.config.PlanVersion,
		},
	}, nil
}

// decodeStep validates one raw step against the structural contract.
func decodeStep(raw json.RawMessage, index int, requestID string) (plan.SearchStep, *Error) {
	stepErr := func(format string, args ...any) *Error {
		return &Error{
			Code:    CodeInvalidSearchStep,
			Message: fmt.Sprintf("step %d: %s", index, fmt.Sprintf(format, args...)),
			Details: map[string]any{"requestId": requestID, "stepIndex": index},
		}
	}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal(raw, &fields); err != nil {
		return plan.SearchStep{}, stepErr("not a JSON object")
	}
	for _, required := range []string{"targetKey", "description", "searchInstruction", "validationType", "isRequired"} {
		v, ok := fields[required]
		if !ok || string(v) == "null" {
			return plan.SearchStep{}, stepErr("missing required field %q", required)
		}
	}

	var step plan.SearchStep
	if err := json.Unmarshal(raw, &step); err != nil {
		return plan.SearchStep{}, stepErr("malformed field types: %v", err)
	}

	if strings.TrimSpace(step.TargetKey) == "" {
		return plan.SearchStep{}, stepErr("targetKey must be a non-empty string")
	}
	if len(strings.TrimSpace(step.SearchInstruction)) < 10 {
		return plan.SearchStep{}, stepErr("searchInstruction must be at least 10 characters")
	}
	if !step.ValidationType.Valid() {
		return plan.SearchStep{}, stepErr("invalid validationType %q", step.ValidationType)
	}

	return step, nil
}

func (a *Architect) validatePlan(sp plan.SearchPlan, outputSchema map[string]string) *Error {
	if sp.Confidence < a.config.MinConfidenceThreshold {
		return &Error{
			Code:    CodeLowConfidence,
			Message: fmt.Sprintf("plan confidence %.2f below threshold %.2f", sp.Confidence, a.config.MinConfidenceThreshold),
			Details: map[string]any{"confidence": sp.Confidence, "threshold": a.config.MinConfidenceThreshold},
		}
	}

	if len(sp.Steps) > a.config.MaxFieldCount {
		return &Error{
			Code:    CodeTooManyFields,
			Message: fmt.Sprintf("plan has %d steps, exceeding limit of %d", len(sp.Steps), a.config.MaxFieldCount),
			Details: map[string]any{"stepCount": len(sp.Steps), "limit": a.config.MaxFieldCount},
		}
	}

	planKeys := make(map[string]int, len(sp.Steps))
	for _, step := range sp.Steps {
		planKeys[step.TargetKey]++
	}

	var missing []string
	for key := range outputSchema {
		if planKeys[key] == 0 {
			missing = append(missing, key)
		}
	}
	if len(missing) > 0 {
		return &Error{
			Code:    CodeMissingSchemaFields,
			Message: fmt.Sprintf("plan missing steps for schema fields: %s", strings.Join(missing, ", ")),
			Details: map[string]any{"missingFields": missing},
		}
	}

	// An accepted plan's key set must equal the schema's exactly: a step
	// for an unrequested key would leak into the result via the extractor.
	var unexpected []string
	for key := range planKeys {
		if _, ok := outputSchema[key]; !ok {
			unexpected = append(unexpected, key)
		}
	}
	if len(unexpected) > 0 {
		return &Error{
			Code:    CodeUnexpectedTargetKeys,
			Message: fmt.Sprintf("plan has steps for fields not in the schema: %s", strings.Join(unexpected, ", ")),
			Details: map[string]any{"unexpectedFields": unexpected},
		}
	}

	var duplicates []string
	for key, count := range planKeys {
		if count > 1 {
			duplicates = append(duplicates, key)
		}
	}
	if len(duplicates) > 0 {
		return &Error{
			Code:    CodeDuplicateTargetKeys,
			Message: fmt.Sprintf("plan has duplicate target keys: %s", strings.Join(duplicates, ", ")),
			Details: map[string]any{"duplicateKeys": duplicates},
		}
	}

	return nil
}

// OptimizeSample bounds the data sample, preferring a break at the last
// sentence terminator, newline, comma or space inside the window. The break
// point is used only when it retains at least 70% of the window; otherwise
// the sample is hard-cut.
func OptimizeSample(inputData string, maxLength int) string {
	if len(inputData) <= maxLength {
		return inputData
	}

	sample := inputData[:maxLength]

	breakPoint := -1
	for _, sep := range []string{".", "\n", ",", " "} {
		if idx := strings.LastIndex(sample, sep); idx > breakPoint {
			breakPoint = idx
		}
	}

	if float64(breakPoint) > float64(maxLength)*0.7 {
		return sample[:breakPoint+1]
	}
	return sample
}

func preview(content string) string {
	if len(content) <= 200 {
		return content
	}
	return content[:200]
}
