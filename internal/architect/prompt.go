package architect

import (
	"encoding/json"
	"fmt"
	"strings"
)

const architectSystemPrompt = `You are the Architect in a two-stage data parsing system. Your job is to analyze the user's desired output schema and a sample of their input data, then create a detailed SearchPlan for the Extractor to follow. Respond with ONLY valid JSON - no explanations or markdown formatting.`

// buildArchitectPrompt creates the planning prompt from the schema and sample.
func buildArchitectPrompt(outputSchema map[string]string, dataSample, instructions string) string {
	schemaJSON, _ := json.MarshalIndent(outputSchema, "", "  ")

	var prompt strings.Builder

	prompt.WriteString("## YOUR TASK\n")
	prompt.WriteString("Create a JSON SearchPlan that tells the Extractor exactly how to find each piece of data in the full input.\n\n")

	prompt.WriteString("## OUTPUT SCHEMA (what the user wants)\n")
	prompt.WriteString("```json\n")
	prompt.Write(schemaJSON)
	prompt.WriteString("\n```\n\n")

	prompt.WriteString("## DATA SAMPLE (representative portion of input)\n")
	prompt.WriteString("```\n")
	prompt.WriteString(dataSample)
	prompt.WriteString("\n```\n\n")

	if instructions != "" {
		prompt.WriteString("## USER INSTRUCTIONS\n")
		prompt.WriteString(instructions)
		prompt.WriteString("\n\n")
	}

	prompt.WriteString("## RESPONSE FORMAT\n")
	prompt.WriteString("You must respond with ONLY a valid JSON object matching this exact structure:\n\n")
	prompt.WriteString("```json\n")
	fmt.Fprintf(&prompt, `{
  "steps": [
    {
      "targetKey": "fieldName",
      "description": "Clear description of what this data represents",
      "searchInstruction": "Direct, specific instruction for finding this data",
      "validationType": "string|email|number|iso_date|string_array|boolean|url|phone|json_object",
      "isRequired": true,
      "examples": ["example1", "example2"],
      "pattern": "optional regex pattern"
    }
  ],
  "totalSteps": %d,
  "estimatedComplexity": "low|medium|high",
  "planConfidence": 0.95,
  "extractorInstructions": "Any special guidance for the Extractor"
}`, len(outputSchema))
	prompt.WriteString("\n```\n\n")

	prompt.WriteString(`## CRITICAL INSTRUCTIONS

1. Each searchInstruction must be DIRECT and ACTIONABLE
   - Bad: "Look for the customer name"
   - Good: "Find the text after 'Customer:' or 'Name:' that appears to be a person's name"

2. Use the data sample to understand patterns
   - Identify how information is formatted
   - Note any delimiters, labels, or structural patterns
   - Create instructions that work for similar data

3. Choose appropriate validationType
   - string: General text
   - email: Email addresses
   - number: Numeric values
   - iso_date: Dates in ISO format (YYYY-MM-DD)
   - string_array: Multiple text values
   - boolean: True/false values
   - url: Web URLs
   - phone: Phone numbers
   - json_object: Nested objects

4. Set planConfidence based on clarity
   - High (0.9+): Clear patterns, well-structured data
   - Medium (0.7-0.89): Some ambiguity but patterns visible
   - Low (0.5-0.69): Messy data, unclear patterns

5. Estimate complexity honestly
   - low: Simple extraction, clear patterns
   - medium: Some context needed, moderate complexity
   - high: Complex reasoning, ambiguous patterns

6. Provide helpful examples when patterns are clear

Remember: The Extractor will follow your plan exactly. Make your instructions clear, specific, and actionable.

RESPOND WITH ONLY THE JSON - NO EXPLANATIONS OR MARKDOWN FORMATTING.`)

	return prompt.String()
}
