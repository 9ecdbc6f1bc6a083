package output

import (
	"bytes"
	"strings"
	"testing"
)

type sample struct {
	ID     int64  `json:"id" yaml:"id"`
	Status string `json:"status" yaml:"status"`
}

func TestParseFormat(t *testing.T) {
	tests := []struct {
		in      string
		want    Format
		wantErr bool
	}{
		{"yaml", FormatYAML, false},
		{"json", FormatJSON, false},
		{"", FormatYAML, false},
		{"xml", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseFormat(tt.in)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseFormat(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("ParseFormat(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestWrite(t *testing.T) {
	data := sample{ID: 7, Status: "TEACHER_REVIEW"}

	t.Run("json", func(t *testing.T) {
		var buf bytes.Buffer
		if err := Write(&buf, FormatJSON, data); err != nil {
			t.Fatalf("Write() error = %v", err)
		}
		want := "{\n  \"id\": 7,\n  \"status\": \"TEACHER_REVIEW\"\n}\n"
		if buf.String() != want {
			t.Errorf("got %q, want %q", buf.String(), want)
		}
	})

	t.Run("yaml", func(t *testing.T) {
		var buf bytes.Buffer
		if err := Write(&buf, FormatYAML, data); err != nil {
			t.Fatalf("Write() error = %v", err)
		}
		if !strings.Contains(buf.String(), "id: 7") || !strings.Contains(buf.String(), "status: TEACHER_REVIEW") {
			t.Errorf("unexpected yaml: %q", buf.String())
		}
	})

	t.Run("unknown", func(t *testing.T) {
		if err := Write(&bytes.Buffer{}, Format("csv"), data); err == nil {
			t.Error("expected error for unknown format")
		}
	})
}

func TestSetFormat(t *testing.T) {
	defer func() { current = FormatYAML }()

	if err := SetFormat("json"); err != nil {
		t.Fatalf("SetFormat() error = %v", err)
	}
	if Current() != FormatJSON {
		t.Errorf("expected json, got %s", Current())
	}
	if err := SetFormat("toml"); err == nil {
		t.Error("expected error for unknown format")
	}
	if Current() != FormatJSON {
		t.Error("a rejected format must not change the current one")
	}
}
