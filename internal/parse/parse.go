// Package parse sequences the two-stage pipeline: plan cache lookup,
// plan generation on miss, plan execution, and confidence combination.
package parse

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/Domusgpt/parserator-sub000/internal/architect"
	"github.com/Domusgpt/parserator-sub000/internal/extractor"
	"github.com/Domusgpt/parserator-sub000/internal/logger"
	"github.com/Domusgpt/parserator-sub000/internal/plan"
	"github.com/Domusgpt/parserator-sub000/internal/plancache"
)

// Stages a parse request can fail in.
const (
	StageValidation    = "validation"
	StageArchitect     = "architect"
	StageExtractor     = "extractor"
	StageOrchestration = "orchestration"
)

// Confidence weighting between the plan and the extraction. Extraction
// quality dominates because the plan only guides the search.
const (
	planConfidenceWeight       = 0.3
	extractionConfidenceWeight = 0.7
)

// Error is a stage-attributed parse failure.
type Error struct {
	Code    string         `json:"code"`
	Message string         `json:"message"`
	Stage   string         `json:"stage"`
	Details map[string]any `json:"details,omitempty"`
}

func (e *Error) Error() string {
	return fmt.Sprintf("parse %s/%s: %s", e.Stage, e.Code, e.Message)
}

// Request is one parse job.
type Request struct {
	InputData    string            `json:"inputData"`
	OutputSchema map[string]string `json:"outputSchema"`
	Instructions string            `json:"instructions,omitempty"`
	ForceRefresh bool              `json:"forceRefresh,omitempty"`

	// RequestID correlates log lines; generated when empty.
	RequestID string `json:"-"`
	// UserID identifies the caller for logging; empty for anonymous.
	UserID string `json:"-"`
}

// CacheInfo reports how the plan cache behaved for one request.
type CacheInfo struct {
	Hit                    bool   `json:"hit"`
	Fingerprint            string `json:"fingerprint"`
	InvalidatedByExtractor bool   `json:"invalidatedByExtractor,omitempty"`
}

// StageStats is the per-stage token/time breakdown.
type StageStats struct {
	TokensUsed       int   `json:"tokensUsed"`
	ProcessingTimeMs int64 `json:"processingTimeMs"`
}

// Confidence carries per-field and combined scores.
type Confidence struct {
	Fields  map[string]float64 `json:"fields"`
	Overall float64            `json:"overall"`
}

// Metadata describes how a result was produced.
type Metadata struct {
	Plan             plan.SearchPlan       `json:"plan"`
	Confidence       Confidence            `json:"confidence"`
	TokensUsed       int                   `json:"tokensUsed"`
	ProcessingTimeMs int64                 `json:"processingTimeMs"`
	StageBreakdown   map[string]StageStats `json:"stageBreakdown"`
	CacheInfo        CacheInfo             `json:"cacheInfo"`
	RequestID        string                `json:"requestId"`
}

// Result is the outcome of one parse request.
type Result struct {
	Success    bool           `json:"success"`
	ParsedData map[string]any `json:"parsedData,omitempty"`
	Metadata   Metadata       `json:"metadata"`
	Err        *Error         `json:"error,omitempty"`
}

// Config holds orchestrator settings.
type Config struct {
	// MinOverallConfidence is a soft floor: results below it are logged,
	// not rejected.
	MinOverallConfidence float64
	CacheSize            int
}

// DefaultConfig returns orchestrator defaults.
func DefaultConfig() Config {
	return Config{
		MinOverallConfidence: 0.5,
		CacheSize:            plancache.DefaultMaxSize,
	}
}

// Option configures the Service.
type Option func(*Config)

// WithMinOverallConfidence sets the soft confidence floor.
func WithMinOverallConfidence(v float64) Option {
	return func(c *Config) { c.MinOverallConfidence = v }
}

// WithCacheSize bounds the plan cache.
func WithCacheSize(n int) Option {
	return func(c *Config) { c.CacheSize = n }
}

// Service runs parse requests end to end.
type Service struct {
	architect *architect.Architect
	extractor *extractor.Extractor
	cache     *plancache.Cache
	config    Config
}

// NewService wires the pipeline stages together.
func NewService(a *architect.Architect, x *extractor.Extractor, opts ...Option) *Service {
	cfg := DefaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	return &Service{
		architect: a,
		extractor: x,
		cache:     plancache.New(cfg.CacheSize),
		config:    cfg,
	}
}

// CacheLen reports the number of cached plans.
func (s *Service) CacheLen() int { return s.cache.Len() }

// Parse runs one request through the pipeline. Domain failures come back as
// a Result with Err set; the error return is reserved for non-domain
// failures such as a cancelled context.
func (s *Service) Parse(ctx context.Context, req Request) (Result, error) {
	start := time.Now()
	if req.RequestID == "" {
		req.RequestID = uuid.NewString()
	}

	log := logger.With("request_id", req.RequestID)
	if req.UserID != "" {
		log = log.With("user_id", req.UserID)
	}
	log.Info("parse request received",
		"input_length", len(req.InputData),
		"schema_fields", len(req.OutputSchema),
		"force_refresh", req.ForceRefresh)

	if perr := s.validateRequest(req); perr != nil {
		log.Warn("parse request rejected", "code", perr.Code, "message", perr.Message)
		return s.failure(perr, start, req.RequestID, nil), nil
	}

	fingerprint := plancache.Fingerprint(req.OutputSchema)
	cacheInfo := CacheInfo{Fingerprint: fingerprint}
	breakdown := make(map[string]StageStats, 2)

	var sp plan.SearchPlan
	if !req.ForceRefresh {
		if cached, ok := s.cache.Lookup(fingerprint); ok {
			sp = cached
			cacheInfo.Hit = true
			log.Info("plan cache hit", "fingerprint", fingerprint)
		}
	}

	if !cacheInfo.Hit {
		ares, err := s.architect.Generate(ctx, req.OutputSchema, req.InputData, req.Instructions, req.RequestID)
		breakdown[StageArchitect] = StageStats{
			TokensUsed:       ares.TokensUsed,
			ProcessingTimeMs: ares.ProcessingTime.Milliseconds(),
		}
		if err != nil {
			return Result{}, fmt.Errorf("plan generation: %w", err)
		}
		if !ares.Success {
			perr := &Error{
				Code:    ares.Err.Code,
				Message: ares.Err.Message,
				Stage:   StageArchitect,
				Details: ares.Err.Details,
			}
			return s.failureWithCache(perr, start, req.RequestID, breakdown, cacheInfo), nil
		}
		sp = ares.Plan
		s.cache.Store(fingerprint, sp)
		log.Info("plan generated and cached",
			"fingerprint", fingerprint,
			"steps", sp.TotalSteps,
			"plan_confidence", sp.Confidence)
	}

	xres, err := s.extractor.Execute(ctx, req.InputData, sp, req.RequestID)
	breakdown[StageExtractor] = StageStats{
		TokensUsed:       xres.TokensUsed,
		ProcessingTimeMs: xres.ProcessingTime.Milliseconds(),
	}
	if err != nil {
		return Result{}, fmt.Errorf("plan execution: %w", err)
	}
	if !xres.Success {
		perr := &Error{
			Code:    xres.Err.Code,
			Message: xres.Err.Message,
			Stage:   StageExtractor,
			Details: xres.Err.Details,
		}
		return s.failureWithCache(perr, start, req.RequestID, breakdown, cacheInfo), nil
	}

	// A cached plan that can no longer find required fields is stale:
	// drop it so the next request regenerates one from fresh input.
	if cacheInfo.Hit && hasRequiredFailure(sp, xres.FailedFields) {
		s.cache.Invalidate(fingerprint)
		cacheInfo.InvalidatedByExtractor = true
		log.Warn("cached plan invalidated after required-field failures",
			"fingerprint", fingerprint,
			"failed_fields", xres.FailedFields)
	}

	overall := clamp(planConfidenceWeight*sp.Confidence + extractionConfidenceWeight*xres.OverallConfidence)
	if overall < s.config.MinOverallConfidence {
		log.Warn("parse result below confidence floor",
			"overall_confidence", overall,
			"floor", s.config.MinOverallConfidence)
	}

	totalTokens := 0
	for _, st := range breakdown {
		totalTokens += st.TokensUsed
	}

	res := Result{
		Success:    true,
		ParsedData: xres.Data,
		Metadata: Metadata{
			Plan: sp,
			Confidence: Confidence{
				Fields:  xres.FieldConfidence,
				Overall: overall,
			},
			TokensUsed:       totalTokens,
			ProcessingTimeMs: time.Since(start).Milliseconds(),
			StageBreakdown:   breakdown,
			CacheInfo:        cacheInfo,
			RequestID:        req.RequestID,
		},
	}
	log.Info("parse request completed",
		"overall_confidence", overall,
		"tokens_used", totalTokens,
		"cache_hit", cacheInfo.Hit,
		"duration_ms", res.Metadata.ProcessingTimeMs)
	return res, nil
}

func (s *Service) failure(perr *Error, start time.Time, requestID string, breakdown map[string]StageStats) Result {
	return s.failureWithCache(perr, start, requestID, breakdown, CacheInfo{})
}

func (s *Service) failureWithCache(perr *Error, start time.Time, requestID string, breakdown map[string]StageStats, ci CacheInfo) Result {
	if breakdown == nil {
		breakdown = map[string]StageStats{}
	}
	totalTokens := 0
	for _, st := range breakdown {
		totalTokens += st.TokensUsed
	}
	return Result{
		Success: false,
		Err:     perr,
		Metadata: Metadata{
			TokensUsed:       totalTokens,
			ProcessingTimeMs: time.Since(start).Milliseconds(),
			StageBreakdown:   breakdown,
			CacheInfo:        ci,
			RequestID:        requestID,
		},
	}
}

func (s *Service) validateRequest(req Request) *Error {
	if strings.TrimSpace(req.InputData) == "" {
		return &Error{
			Code:    extractor.CodeEmptyInputData,
			Message: "inputData must be a non-empty string",
			Stage:   StageValidation,
		}
	}
	if max := s.extractor.Config().MaxInputLength; len(req.InputData) > max {
		return &Error{
			Code:    extractor.CodeInputTooLarge,
			Message: fmt.Sprintf("inputData length %d exceeds maximum %d", len(req.InputData), max),
			Stage:   StageValidation,
			Details: map[string]any{"inputLength": len(req.InputData), "maxLength": max},
		}
	}
	if len(req.OutputSchema) == 0 {
		return &Error{
			Code:    architect.CodeEmptyOutputSchema,
			Message: "outputSchema must contain at least one field",
			Stage:   StageValidation,
		}
	}
	if max := s.architect.Config().MaxFieldCount; len(req.OutputSchema) > max {
		return &Error{
			Code:    architect.CodeSchemaTooLarge,
			Message: fmt.Sprintf("outputSchema has %d fields, exceeding limit of %d", len(req.OutputSchema), max),
			Stage:   StageValidation,
			Details: map[string]any{"fieldCount": len(req.OutputSchema), "limit": max},
		}
	}
	for name := range req.OutputSchema {
		if strings.TrimSpace(name) == "" {
			return &Error{
				Code:    architect.CodeInvalidOutputSchema,
				Message: "outputSchema field names must be non-empty",
				Stage:   StageValidation,
			}
		}
	}
	return nil
}

func hasRequiredFailure(sp plan.SearchPlan, failed []string) bool {
	if len(failed) == 0 {
		return false
	}
	required := make(map[string]bool, len(sp.Steps))
	for _, step := range sp.Steps {
		if step.IsRequired {
			required[step.TargetKey] = true
		}
	}
	for _, key := range failed {
		if required[key] {
			return true
		}
	}
	return false
}

func clamp(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
