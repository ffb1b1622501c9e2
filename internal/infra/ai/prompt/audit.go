package prompt

import (
	"fmt"
	"strings"

	"github.com/bryanwahyu/codeaudit/internal/domain/analysis"
)

// GetSystemPrompt provides strict directions and schema for JSON output.
func GetSystemPrompt() string {
	return fmt.Sprintf(`You are a senior application security analyst. You must produce one valid JSON object only (no markdown, no commentary) that follows the schema below.

Requirements:
- Output must be a single JSON object with a "vulnerabilities" array.
- Use lowercase severity values: critical, high, medium, low.
- "type" must be one of exactly these values: %s.
- "description" and "recommendation" must each be at least 10 characters.
- "confidenceScore" is a number between 0 and 1.
- Escape all control characters inside string fields; strings must be valid JSON.
- If the code has no vulnerabilities, return {"vulnerabilities": []}.

Schema (example with empty values):
{
  "vulnerabilities": [
    {
      "severity": "<critical|high|medium|low>",
      "type": "<string>",
      "category": "<string>",
      "filePath": "<string>",
      "lineNumber": 0,
      "codeSnippet": "<string>",
      "description": "<string>",
      "recommendation": "<string>",
      "confidenceScore": 0.0
    }
  ]
}`, strings.Join(analysis.FindingTypes, ", "))
}

// GetUserPrompt wraps the project's source content for assessment.
func GetUserPrompt(sourceContent, projectLabel string) string {
	return fmt.Sprintf("Analyze the following source code from project %q for security vulnerabilities and respond with the JSON per schema.\n\n%s", projectLabel, sourceContent)
}
