package types

import "strings"

// AIResult is the structured grade produced by the AI grading client.
type AIResult struct {
	Score        int      `json:"score" yaml:"score"`
	Feedback     string   `json:"feedback" yaml:"feedback"`
	StrongPoints []string `json:"strong_points" yaml:"strong_points"`
	WeakPoints   []string `json:"weak_points" yaml:"weak_points"`
	Model        string   `json:"model,omitempty" yaml:"model,omitempty"`
}

// Valid reports whether the result satisfies the output guarantee:
// score within 0..100 and non-empty feedback.
func (r *AIResult) Valid() bool {
	if r == nil {
		return false
	}
	return r.Score >= 0 && r.Score <= 100 && strings.TrimSpace(r.Feedback) != ""
}

// RequestContext is the view of a request the workers need.
type RequestContext struct {
	RequestID     int64         `json:"request_id" yaml:"request_id"`
	SubjectCode   string        `json:"subject_code" yaml:"subject_code"`
	SubjectName   string        `json:"subject_name" yaml:"subject_name"`
	ScriptRefs    []string      `json:"script_refs" yaml:"script_refs"`
	Status        RequestStatus `json:"status" yaml:"status"`
	ExtractedText string        `json:"extracted_text,omitempty" yaml:"extracted_text,omitempty"`
	Version       int64         `json:"version" yaml:"version"`
}
