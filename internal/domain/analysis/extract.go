package analysis

import (
	"encoding/json"
	"log/slog"
	"strings"

	"github.com/go-playground/validator/v10"
)

var validate = validator.New()

// FindingCandidate is one entry of the reasoning service's vulnerabilities
// array after schema validation. FilePath may still be empty here; the
// orchestrator substitutes a fallback path before persistence.
type FindingCandidate struct {
	Severity        string   `json:"severity" validate:"required,oneof=critical high medium low"`
	Type            string   `json:"type" validate:"required"`
	Category        string   `json:"category" validate:"required"`
	FilePath        string   `json:"filePath"`
	LineNumber      *int     `json:"lineNumber" validate:"omitempty,gte=1"`
	CodeSnippet     string   `json:"codeSnippet" validate:"omitempty,max=5000"`
	Description     string   `json:"description" validate:"required,min=10"`
	Recommendation  string   `json:"recommendation" validate:"required,min=10"`
	ConfidenceScore *float64 `json:"confidenceScore" validate:"omitempty,gte=0,lte=1"`
}

type findingPayload struct {
	Vulnerabilities []json.RawMessage `json:"vulnerabilities"`
}

// ExtractFindings locates a JSON payload inside the raw reasoning-service
// output and returns the entries that pass schema validation. It never
// returns an error: no payload, unparseable JSON, or an all-invalid batch
// all yield nil so the pipeline degrades to "zero findings".
func ExtractFindings(raw string) []FindingCandidate {
	candidate := locateJSON(raw)
	if candidate == "" {
		slog.Warn("no JSON payload in reasoning output", "len", len(raw))
		return nil
	}

	var payload findingPayload
	if err := json.Unmarshal([]byte(candidate), &payload); err != nil {
		slog.Warn("reasoning output payload is not valid JSON", "err", err)
		return nil
	}

	var out []FindingCandidate
	dropped := 0
	for _, rawEntry := range payload.Vulnerabilities {
		var f FindingCandidate
		if err := json.Unmarshal(rawEntry, &f); err != nil {
			dropped++
			continue
		}
		f.Severity = strings.ToLower(strings.TrimSpace(f.Severity))
		if err := validate.Struct(f); err != nil {
			dropped++
			continue
		}
		out = append(out, f)
	}
	if dropped > 0 {
		// Individual malformed entries are dropped, not the whole batch.
		slog.Warn("dropped malformed findings", "dropped", dropped, "kept", len(out))
	}
	return out
}

// locateJSON returns the candidate JSON payload: the content of the first
// fenced ```json block if present, otherwise the first balanced top-level
// {...} substring, otherwise "".
func locateJSON(raw string) string {
	if block := fencedJSONBlock(raw); block != "" {
		return block
	}
	return balancedObject(raw)
}

func fencedJSONBlock(raw string) string {
	lower := strings.ToLower(raw)
	start := strings.Index(lower, "```json")
	if start < 0 {
		return ""
	}
	rest := raw[start+len("```json"):]
	end := strings.Index(rest, "```")
	if end < 0 {
		return ""
	}
	return strings.TrimSpace(rest[:end])
}

func balancedObject(raw string) string {
	start := strings.IndexByte(raw, '{')
	if start < 0 {
		return ""
	}
	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(raw); i++ {
		ch := raw[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case ch == '\\':
				escaped = true
			case ch == '"':
				inString = false
			}
			continue
		}
		switch ch {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return raw[start : i+1]
			}
		}
	}
	return ""
}
