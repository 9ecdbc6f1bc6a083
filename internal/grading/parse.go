package grading

import (
	"encoding/json"
	"fmt"
	"math"
	"strings"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/smartexam/reval/internal/types"
)

// resultSchema describes the JSON the model must return. missing_points is
// accepted as an alias of weak_points.
const resultSchema = `{
  "type": "object",
  "required": ["score", "feedback"],
  "properties": {
    "score": {"type": "number"},
    "feedback": {"type": "string", "minLength": 1},
    "gap_analysis": {
      "type": "object",
      "properties": {
        "strong_points": {"type": "array", "items": {"type": "string"}},
        "weak_points": {"type": "array", "items": {"type": "string"}},
        "missing_points": {"type": "array", "items": {"type": "string"}}
      }
    }
  }
}`

var compiledSchema = sync.OnceValues(func() (*jsonschema.Schema, error) {
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource("grading.json", strings.NewReader(resultSchema)); err != nil {
		return nil, fmt.Errorf("failed to load grading schema: %w", err)
	}
	return compiler.Compile("grading.json")
})

type gradingOutput struct {
	Score       float64 `json:"score"`
	Feedback    string  `json:"feedback"`
	GapAnalysis struct {
		StrongPoints  []string `json:"strong_points"`
		WeakPoints    []string `json:"weak_points"`
		MissingPoints []string `json:"missing_points"`
	} `json:"gap_analysis"`
}

// ParseResult turns raw model output into a validated AIResult. Output that
// is not JSON is retried once with markdown fences removed.
func ParseResult(raw string) (*types.AIResult, error) {
	doc, err := decodeJSON(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", types.ErrMalformedAIResponse, err)
	}

	schema, err := compiledSchema()
	if err != nil {
		return nil, err
	}
	if err := schema.Validate(doc); err != nil {
		return nil, fmt.Errorf("%w: %v", types.ErrMalformedAIResponse, err)
	}

	// Re-encode the validated document so the typed decode sees exactly what
	// the schema checked.
	normalized, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", types.ErrMalformedAIResponse, err)
	}
	var out gradingOutput
	if err := json.Unmarshal(normalized, &out); err != nil {
		return nil, fmt.Errorf("%w: %v", types.ErrMalformedAIResponse, err)
	}

	result := &types.AIResult{
		Score:        int(math.Round(out.Score)),
		Feedback:     strings.TrimSpace(out.Feedback),
		StrongPoints: nonNil(out.GapAnalysis.StrongPoints),
		WeakPoints:   nonNil(append(out.GapAnalysis.WeakPoints, out.GapAnalysis.MissingPoints...)),
	}
	if !result.Valid() {
		return nil, fmt.Errorf("%w: score %d outside 0..100 or empty feedback", types.ErrMalformedAIResponse, result.Score)
	}
	return result, nil
}

func decodeJSON(raw string) (any, error) {
	var doc any
	err := json.Unmarshal([]byte(raw), &doc)
	if err == nil {
		return doc, nil
	}
	stripped := stripCodeFences(raw)
	if stripped == "" {
		return nil, fmt.Errorf("empty output")
	}
	if err2 := json.Unmarshal([]byte(stripped), &doc); err2 != nil {
		return nil, fmt.Errorf("not JSON: %v", err2)
	}
	return doc, nil
}

// stripCodeFences removes one markdown fence around content: a leading
// ``` with an optional json tag and a trailing ```. Backticks inside the
// document are left alone.
func stripCodeFences(content string) string {
	content = strings.TrimSpace(content)
	if rest, ok := strings.CutPrefix(content, "```"); ok {
		if strings.HasPrefix(strings.ToLower(rest), "json") {
			rest = rest[len("json"):]
		}
		content = strings.TrimSpace(rest)
	}
	content = strings.TrimSuffix(content, "```")
	return strings.TrimSpace(content)
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
