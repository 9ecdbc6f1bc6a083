package grading

import (
	"errors"
	"reflect"
	"testing"

	"github.com/smartexam/reval/internal/types"
)

func TestParseResult_FenceEquivalence(t *testing.T) {
	bodies := map[string]string{
		"plain output": validOutput,
		"backticks in feedback": "{\"score\": 64, \"feedback\": \"Write it as ```F = ma``` with units.\", " +
			"\"gap_analysis\": {\"strong_points\": [\"`a` is defined\"], \"weak_points\": []}}",
	}
	for bodyName, body := range bodies {
		plain, err := ParseResult(body)
		if err != nil {
			t.Fatalf("ParseResult(%s) error = %v", bodyName, err)
		}

		variants := map[string]string{
			"json fence":   "```json\n" + body + "\n```",
			"bare fence":   "```\n" + body + "\n```",
			"padded fence": "  ```json" + body + "```  \n",
			"upper tag":    "```JSON\n" + body + "\n```",
		}
		for name, raw := range variants {
			t.Run(bodyName+"/"+name, func(t *testing.T) {
				got, err := ParseResult(raw)
				if err != nil {
					t.Fatalf("ParseResult() error = %v", err)
				}
				if !reflect.DeepEqual(got, plain) {
					t.Errorf("fenced result %+v differs from plain %+v", got, plain)
				}
			})
		}
	}
}

func TestParseResult(t *testing.T) {
	tests := []struct {
		name      string
		raw       string
		wantScore int
		wantWeak  []string
		wantErr   bool
	}{
		{
			name:      "float score rounds",
			raw:       `{"score": 66.6, "feedback": "ok"}`,
			wantScore: 67,
			wantWeak:  []string{},
		},
		{
			name:      "missing_points alias",
			raw:       `{"score": 40, "feedback": "weak", "gap_analysis": {"strong_points": [], "missing_points": ["units"]}}`,
			wantScore: 40,
			wantWeak:  []string{"units"},
		},
		{name: "score above range", raw: `{"score": 120, "feedback": "x"}`, wantErr: true},
		{name: "negative score", raw: `{"score": -3, "feedback": "x"}`, wantErr: true},
		{name: "empty feedback", raw: `{"score": 50, "feedback": ""}`, wantErr: true},
		{name: "blank feedback", raw: `{"score": 50, "feedback": "   "}`, wantErr: true},
		{name: "missing score", raw: `{"feedback": "x"}`, wantErr: true},
		{name: "score as string", raw: `{"score": "50", "feedback": "x"}`, wantErr: true},
		{name: "points not strings", raw: `{"score": 50, "feedback": "x", "gap_analysis": {"strong_points": [1]}}`, wantErr: true},
		{name: "prose", raw: `The score is 50.`, wantErr: true},
		{name: "empty", raw: ``, wantErr: true},
		{name: "array", raw: `[50]`, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseResult(tt.raw)
			if tt.wantErr {
				if !errors.Is(err, types.ErrMalformedAIResponse) {
					t.Errorf("expected ErrMalformedAIResponse, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseResult() error = %v", err)
			}
			if got.Score != tt.wantScore {
				t.Errorf("score = %d, want %d", got.Score, tt.wantScore)
			}
			if !reflect.DeepEqual(got.WeakPoints, tt.wantWeak) {
				t.Errorf("weak points = %v, want %v", got.WeakPoints, tt.wantWeak)
			}
			if got.StrongPoints == nil {
				t.Error("strong points should never be nil")
			}
		})
	}
}
