// Package output renders CLI results as YAML or JSON.
package output

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"
)

// Format is a structured output format.
type Format string

const (
	FormatYAML Format = "yaml"
	FormatJSON Format = "json"
)

// current is set by the root command's --output flag.
var current = FormatYAML

// ParseFormat converts a flag value into a Format.
func ParseFormat(s string) (Format, error) {
	switch Format(s) {
	case FormatYAML, FormatJSON:
		return Format(s), nil
	case "":
		return FormatYAML, nil
	default:
		return "", fmt.Errorf("unknown output format %q (want yaml or json)", s)
	}
}

// SetFormat sets the process-wide output format.
func SetFormat(s string) error {
	f, err := ParseFormat(s)
	if err != nil {
		return err
	}
	current = f
	return nil
}

// Current returns the process-wide output format.
func Current() Format {
	return current
}

// Print writes data to stdout in the current format.
func Print(data any) error {
	return Write(os.Stdout, current, data)
}

// Write renders data to w in the given format.
func Write(w io.Writer, format Format, data any) error {
	switch format {
	case FormatJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(data)
	case FormatYAML:
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		defer enc.Close()
		return enc.Encode(data)
	default:
		return fmt.Errorf("unknown output format: %s", format)
	}
}

// Notice prints a human-readable line to stderr, keeping stdout parseable.
func Notice(format string, args ...any) {
	fmt.Fprintf(os.Stderr, format+"\n", args...)
}
