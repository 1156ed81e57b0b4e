package extractor

import (
	"encoding/json"
	"strings"

	"github.com/Domusgpt/parserator-sub000/internal/plan"
)

const extractorSystemPrompt = `You are the Extractor in a two-stage data parsing system. The Architect has analyzed the data and created a SearchPlan for you to follow. Execute the plan precisely and respond with ONLY valid JSON - no explanations or markdown formatting.`

// buildExtractorPrompt creates the execution prompt from the input and plan.
func buildExtractorPrompt(inputData string, sp plan.SearchPlan) string {
	stepsJSON, _ := json.MarshalIndent(sp.Steps, "", "  ")

	var prompt strings.Builder

	prompt.WriteString("## YOUR TASK\n")
	prompt.WriteString("Follow the SearchPlan exactly to extract data from the input. Return a JSON object with the extracted values.\n\n")

	prompt.WriteString("## INPUT DATA\n")
	prompt.WriteString("```\n")
	prompt.WriteString(inputData)
	prompt.WriteString("\n```\n\n")

	prompt.WriteString("## SEARCH PLAN (follow exactly)\n")
	prompt.WriteString("```json\n")
	prompt.Write(stepsJSON)
	prompt.WriteString("\n```\n\n")

	if sp.ExtractorInstructions != "" {
		prompt.WriteString("## SPECIAL INSTRUCTIONS\n")
		prompt.WriteString(sp.ExtractorInstructions)
		prompt.WriteString("\n\n")
	}

	prompt.WriteString(`## RESPONSE FORMAT
You must respond with ONLY a valid JSON object in this exact format:

` + "```json" + `
{
  "extractedData": {
    "field1": "extracted_value",
    "field2": "extracted_value"
  },
  "extractionNotes": {
    "field1": "brief note about extraction quality/confidence",
    "field2": "brief note about extraction quality/confidence"
  }
}
` + "```" + `

## EXTRACTION INSTRUCTIONS

For each step in the SearchPlan:
1. Use the searchInstruction as your primary guide
2. Look for data matching the description
3. Format the result according to validationType
4. If isRequired is true, try harder to find something
5. Use examples and pattern if provided for guidance

## VALIDATION TYPES GUIDE

- string: Plain text, trim whitespace
- email: Valid email address format
- number: Numeric value (int or float)
- iso_date: Date in YYYY-MM-DD format
- string_array: Array of strings ["item1", "item2"]
- boolean: true or false
- url: Valid URL format
- phone: Phone number (any reasonable format)
- json_object: Valid JSON object

## EXTRACTION RULES

1. BE PRECISE: Extract exactly what the searchInstruction asks for
2. FOLLOW TYPES: Convert values to the correct validationType
3. HANDLE MISSING: If data isn't found, use null
4. QUALITY NOTES: Add brief confidence/quality notes for each field
5. NO HALLUCINATION: Only extract data that actually exists in the input

RESPOND WITH ONLY THE JSON - NO OTHER TEXT.`)

	return prompt.String()
}
