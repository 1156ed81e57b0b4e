package extractor

import (
	"strings"

	"github.com/Domusgpt/parserator-sub000/internal/plan"
)

// Confidence scoring constants. These are empirical heuristics, not a
// probability model; the exact increments are behavioral contracts
// verified by tests.
const (
	baseConfidence       = 0.5
	presentConfidence    = 0.8
	typeValidBonus       = 0.1
	patternMatchBonus    = 0.05
	clearNoteBonus       = 0.05
	unsureNotePenalty    = 0.2
	missingRequiredScore = 0.1
	missingOptionalScore = 0.7
	requiredFieldWeight  = 2.0
	optionalFieldWeight  = 1.0
)

// calculateFieldConfidence scores each extracted field.
func calculateFieldConfidence(data map[string]any, sp plan.SearchPlan, notes map[string]string) map[string]float64 {
	fieldConfidence := make(map[string]float64, len(sp.Steps))

	for _, step := range sp.Steps {
		value := data[step.TargetKey]
		note := strings.ToLower(notes[step.TargetKey])

		confidence := baseConfidence

		if isPresent(value) {
			confidence = presentConfidence

			if plan.CheckValue(value, step.ValidationType, step.TargetKey) == nil {
				confidence += typeValidBonus
			}
			if step.Pattern != "" && plan.MatchPattern(value, step.Pattern) {
				confidence += patternMatchBonus
			}
			if strings.Contains(note, "clear") || strings.Contains(note, "exact") {
				confidence += clearNoteBonus
			}
			if strings.Contains(note, "unsure") || strings.Contains(note, "guess") {
				confidence -= unsureNotePenalty
			}
		} else {
			if step.IsRequired {
				confidence = missingRequiredScore
			} else {
				confidence = missingOptionalScore
			}
		}

		fieldConfidence[step.TargetKey] = clamp(confidence)
	}

	return fieldConfidence
}

// calculateOverallConfidence is the weighted mean of field confidences,
// with required fields weighted double.
func calculateOverallConfidence(fieldConfidence map[string]float64, sp plan.SearchPlan) float64 {
	if len(fieldConfidence) == 0 {
		return 0.0
	}

	var weightedSum, totalWeight float64
	for _, step := range sp.Steps {
		confidence := fieldConfidence[step.TargetKey]
		weight := optionalFieldWeight
		if step.IsRequired {
			weight = requiredFieldWeight
		}
		weightedSum += confidence * weight
		totalWeight += weight
	}

	if totalWeight == 0 {
		return 0.0
	}
	return weightedSum / totalWeight
}

// identifyFailedFields reports required steps whose value is missing or an
// empty string.
func identifyFailedFields(data map[string]any, sp plan.SearchPlan) []string {
	var failed []string
	for _, step := range sp.Steps {
		if step.IsRequired && !isPresent(data[step.TargetKey]) {
			failed = append(failed, step.TargetKey)
		}
	}
	return failed
}

func isPresent(value any) bool {
	if value == nil {
		return false
	}
	if s, ok := value.(string); ok && s == "" {
		return false
	}
	return true
}

func clamp(v float64) float64 {
	if v < 0.0 {
		return 0.0
	}
	if v > 1.0 {
		return 1.0
	}
	return v
}
