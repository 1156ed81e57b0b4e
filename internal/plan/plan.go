// Package plan defines the SearchPlan produced by the architect stage and
// executed by the extractor stage.
package plan

import "time"

// Complexity is the architect's estimate of how hard a plan is to execute.
type Complexity string

const (
	ComplexityLow    Complexity = "low"
	ComplexityMedium Complexity = "medium"
	ComplexityHigh   Complexity = "high"
)

// SearchStep tells the extractor how to locate a single output field.
type SearchStep struct {
	TargetKey             string         `json:"targetKey"`
	Description           string         `json:"description"`
	SearchInstruction     string         `json:"searchInstruction"`
	ValidationType        ValidationType `json:"validationType"`
	IsRequired            bool           `json:"isRequired"`
	Examples              []string       `json:"examples,omitempty"`
	Pattern               string         `json:"pattern,omitempty"`
	DefaultValue          any            `json:"defaultValue,omitempty"`
	ErrorRecoveryStrategy string         `json:"errorRecoveryStrategy,omitempty"`
	ConfidenceThreshold   float64        `json:"confidenceThreshold,omitempty"`
}

// Metadata records provenance for a generated plan.
type Metadata struct {
	CreatedAt    time.Time `json:"createdAt"`
	SampleLength int       `json:"sampleLength"`
	PlanVersion  string    `json:"planVersion"`
}

// SearchPlan is an ordered set of search steps covering every key of the
// requested output schema. Immutable once validated.
type SearchPlan struct {
	Steps                 []SearchStep `json:"steps"`
	TotalSteps            int          `json:"totalSteps"`
	EstimatedComplexity   Complexity   `json:"estimatedComplexity"`
	Confidence            float64      `json:"planConfidence"`
	ExtractorInstructions string       `json:"extractorInstructions,omitempty"`
	Metadata              Metadata     `json:"metadata"`
}

// TargetKeys returns the step keys in plan order.
func (p SearchPlan) TargetKeys() []string {
	keys := make([]string, 0, len(p.Steps))
	for _, s := range p.Steps {
		keys = append(keys, s.TargetKey)
	}
	return keys
}

// Empty returns a zero-value plan used in failure results.
func Empty(version string) SearchPlan {
	return SearchPlan{
		Steps:               []SearchStep{},
		EstimatedComplexity: ComplexityHigh,
		Metadata: Metadata{
			CreatedAt:   time.Now().UTC(),
			PlanVersion: version,
		},
	}
}
