package protocol

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"
)

// Format selects how a result value is rendered for the operator.
type Format string

const (
	FormatJSON Format = "json"
	FormatYAML Format = "yaml"
)

// ParseFormat validates a format name.
func ParseFormat(s string) (Format, error) {
	switch f := Format(strings.ToLower(s)); f {
	case FormatJSON, FormatYAML:
		return f, nil
	default:
		return "", fmt.Errorf("unsupported output format %q", s)
	}
}

// Render returns the textual form of a decoded result value, without a
// trailing newline.
func Render(v any, format Format) (string, error) {
	switch format {
	case FormatYAML:
		data, err := yaml.Marshal(normalizeNumbers(v))
		if err != nil {
			return "", fmt.Errorf("render yaml: %w", err)
		}

		return strings.TrimRight(string(data), "\n"), nil

	case FormatJSON, "":
		var buf bytes.Buffer

		enc := json.NewEncoder(&buf)
		enc.SetEscapeHTML(false)

		if err := enc.Encode(v); err != nil {
			return "", fmt.Errorf("render json: %w", err)
		}

		return strings.TrimRight(buf.String(), "\n"), nil

	default:
		return "", fmt.Errorf("unsupported output format %q", format)
	}
}

// Text returns the plain text form of a scalar value, as used for completion
// candidates. Strings are returned verbatim.
func Text(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case json.Number:
		return t.String()
	case nil:
		return ""
	default:
		return fmt.Sprint(t)
	}
}

// normalizeNumbers converts json.Number values into int64 or float64 so
// that the YAML encoder emits them as numbers rather than quoted strings.
func normalizeNumbers(v any) any {
	switch t := v.(type) {
	case json.Number:
		if i, err := t.Int64(); err == nil {
			return i
		}

		if f, err := t.Float64(); err == nil {
			return f
		}

		return t.String()

	case []any:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = normalizeNumbers(e)
		}

		return out

	case map[string]any:
		out := make(map[string]any, len(t))
		for k, e := range t {
			out[k] = normalizeNumbers(e)
		}

		return out

	default:
		return v
	}
}
