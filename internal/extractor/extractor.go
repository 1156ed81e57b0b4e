// Package extractor implements the second stage of the two-stage parsing
// workflow: executing a SearchPlan against the full input data and scoring
// the extracted values.
package extractor

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

// Error codes returned by the extractor stage.
const (
	CodeInvalidInputData      = "INVALID_INPUT_DATA"
	CodeEmptyInputData        = "EMPTY_INPUT_DATA"
	CodeInputTooLarge         = "INPUT_TOO_LARGE"
	CodeInvalidSearchPlan     = "INVALID_SEARCH_PLAN"
	CodeEmptySearchPlan       = "EMPTY_SEARCH_PLAN"
	CodeInvalidResponseFormat = "INVALID_RESPONSE_FORMAT"
	CodeJSONParseError        = "JSON_PARSE_ERROR"
	CodeLLMError              = "LLM_ERROR"
)

// Error is a domain failure of the extractor stage.
type Error struct {
	Code    string
	Message string
	Details map[string]any
}

func (e *Error) Error() string {
	return fmt.Sprintf("extractor %s: %s", e.Code, e.Message)
}

// Config holds extractor settings.
type Config struct {
	MaxInputLength int
	Timeout        time.Duration
	MaxTokens      int
	Temperature    float64
}

// DefaultConfig returns defaults tuned for extraction efficiency.
func DefaultConfig() Config {
	return Config{
		MaxInputLength: 100_000,
		Timeout:        25 * time.Second,
		MaxTokens:      3072,
		Temperature:    0.0,
	}
}

// Result carries the outcome of one plan execution.
type Result struct {
	Data              map[string]any
	FieldConfidence   map[string]float64
	OverallConfidence float64
	FailedFields      []string
	TokensUsed        int
	ProcessingTime    time.Duration
	Model             string
	Success           bool
	Err               *Error
}

// Extractor executes SearchPlans via the extraction service.
type Extractor struct {
	provider llm.Provider
	config   Config
}

// Option configures the extractor.
type Option func(*Config)

// WithMaxInputLength bounds the accepted input size.
func WithMaxInputLength(n int) Option {
	return func(c *Config) { c.MaxInputLength = n }
}

// WithTimeout bounds a single execution call.
func WithTimeout(d time.Duration) Option {
	return func(c *Config) { c.Timeout = d }
}

// New creates an Extractor.
func New(provider llm.Provider, opts ...Option) *Extractor {
	cfg := DefaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	return &Extractor{provider: provider, config: cfg}
}

// Config returns a copy of the current configuration.
func (e *Extractor) Config() Config {
	return e.config
}

// Execute runs the search plan against the full input. Domain failures are
// reported in Result.Err; only non-domain errors are returned as error.
func (e *Extractor) Execute(ctx context.Context, inputData string, sp plan.SearchPlan, requestID string) (Result, error) {
	start := time.Now()

	logger.Info("starting data extraction",
		"request_id", requestID,
		"input_length", len(inputData),
		"steps_to_execute", len(sp.Steps),
		"plan_complexity", sp.EstimatedComplexity)

	if xerr := e.validateInputs(inputData, sp); xerr != nil {
		return e.failure(xerr, sp, start, 0, requestID), nil
	}

	prompt := buildExtractorPrompt(inputData, sp)

	callCtx, cancel := context.WithTimeout(ctx, e.config.Timeout)
	defer cancel()

	resp, err := e.provider.Complete(callCtx, llm.CompletionRequest{
		Messages: []llm.Message{
			{Role: llm.RoleSystem, Content: extractorSystemPrompt},
			{Role: llm.RoleUser, Content: prompt},
		},
		MaxTokens:   e.config.MaxTokens,
		Temperature: e.config.Temperature,
		JSONMode:    true,
	})
	if err != nil {
		var provErr *llm.Error
		if errors.As(err, &provErr) || errors.Is(err, context.DeadlineExceeded) {
			return e.failure(&Error{
				Code:    CodeLLMError,
				Message: err.Error(),
				Details: map[string]any{"requestId": requestID},
			}, sp, start, 0, requestID), nil
		}
		return Result{}, fmt.Errorf("extractor LLM call: %w", err)
	}

	data, notes, xerr := parseExtractorResponse(resp.Content, sp, requestID)
	if xerr != nil {
		return e.failure(xerr, sp, start, resp.Usage.Total(), requestID), nil
	}

	fieldConfidence := calculateFieldConfidence(data, sp, notes)
	overall := calculateOverallConfidence(fieldConfidence, sp)
	failed := identifyFailedFields(data, sp)

	elapsed := time.Since(start)
	logger.Info("data extraction completed",
		"request_id", requestID,
		"fields_extracted", len(data),
		"failed_fields", len(failed),
		"overall_confidence", overall,
		"tokens_used", resp.Usage.Total(),
		"processing_time_ms", elapsed.Milliseconds())

	return Result{
		Data:              data,
		FieldConfidence:   fieldConfidence,
		OverallConfidence: overall,
		FailedFields:      failed,
		TokensUsed:        resp.Usage.Total(),
		ProcessingTime:    elapsed,
		Model:             resp.Model,
		Success:           true,
	}, nil
}

func (e *Extractor) failure(xerr *Error, sp plan.SearchPlan, start time.Time, tokens int, requestID string) Result {
	elapsed := time.Since(start)
	logger.Error("data extraction failed",
		"request_id", requestID,
		"code", xerr.Code,
		"error", xerr.Message,
		"processing_time_ms", elapsed.Milliseconds())
	return Result{
		Data:            map[string]any{},
		FieldConfidence: map[string]float64{},
		FailedFields:    sp.TargetKeys(),
		TokensUsed:      tokens,
		ProcessingTime:  elapsed,
		Success:         false,
		Err:             xerr,
	}
}

func (e *Extractor) validateInputs(inputData string, sp plan.SearchPlan) *Error {
	if inputData == "" {
		return &Error{Code: CodeInvalidInputData, Message: "input data must be a non-empty string"}
	}
	if strings.TrimSpace(inputData) == "" {
		return &Error{Code: CodeEmptyInputData, Message: "input data cannot be empty or only whitespace"}
	}
	if len(inputData) > e.config.MaxInputLength {
		return &Error{
			Code:    CodeInputTooLarge,
			Message: fmt.Sprintf("input data length %d exceeds maximum %d", len(inputData), e.config.MaxInputLength),
			Details: map[string]any{"inputLength": len(inputData), "maxLength": e.config.MaxInputLength},
		}
	}
	if len(sp.Steps) == 0 {
		return &Error{Code: CodeEmptySearchPlan, Message: "search plan cannot have zero steps"}
	}
	return nil
}

// extractorResponse mirrors the JSON shape the LLM is instructed to emit.
type extractorResponse struct {
	ExtractedData   map[string]any    `json:"extractedData"`
	ExtractionNotes map[string]string `json:"extractionNotes"`
}

// parseExtractorResponse decodes the LLM response and normalizes the key set
// to exactly the plan's target keys: missing keys take the step default (or
// nil), surplus keys are dropped.
func parseExtractorResponse(content string, sp plan.SearchPlan, requestID string) (map[string]any, map[string]string, *Error) {
	clean := llm.CleanJSONResponse(content)

	var parsed extractorResponse
	if err := json.Unmarshal([]byte(clean), &parsed); err != nil {
		return nil, nil, &Error{
			Code:    CodeJSONParseError,
			Message: "invalid JSON response from extractor",
			Details: map[string]any{"requestId": requestID, "responsePreview": preview(content), "parseError": err.Error()},
		}
	}

	if parsed.ExtractedData == nil {
		return nil, nil, &Error{
			Code:    CodeInvalidResponseFormat,
			Message: "invalid response: missing or invalid extractedData object",
			Details: map[string]any{"requestId": requestID, "responsePreview": preview(content)},
		}
	}

	data := make(map[string]any, len(sp.Steps))
	for _, step := range sp.Steps {
		if value, ok := parsed.ExtractedData[step.TargetKey]; ok {
			data[step.TargetKey] = value
		} else if step.DefaultValue != nil {
			data[step.TargetKey] = step.DefaultValue
		} else {
			data[step.TargetKey] = nil
		}
	}

	notes := parsed.ExtractionNotes
	if notes == nil {
		notes = map[string]string{}
	}
	return data, notes, nil
}

func preview(content string) string {
	if len(content) <= 200 {
		return content
	}
	return content[:200]
}
