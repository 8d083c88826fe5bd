// Package output renders resolution results for the resolve command.
package output

import (
	"fmt"
	"strings"

	"github.com/refreshrelay/refreshrelay/internal/core/refresh"
)

// Format represents an output format.
type Format string

const (
	FormatTable    Format = "table"
	FormatJSON     Format = "json"
	FormatMarkdown Format = "markdown"
	FormatYAML     Format = "yaml"
)

// Result is the outcome of resolving one target. Exactly one of Decision and
// Error is set.
type Result struct {
	Target   string            `json:"target" yaml:"target"`
	Decision *refresh.Decision `json:"decision,omitempty" yaml:"decision,omitempty"`
	Error    string            `json:"error,omitempty" yaml:"error,omitempty"`
}

// Failed reports whether the target could not be resolved.
func (r Result) Failed() bool { return r.Decision == nil }

// Formatter renders results.
type Formatter interface {
	Format(results []Result) (string, error)
}

// ParseFormat validates and normalizes a format string.
func ParseFormat(value string) (Format, error) {
	normalized := strings.ToLower(strings.TrimSpace(value))
	switch normalized {
	case "", string(FormatTable):
		return FormatTable, nil
	case string(FormatJSON):
		return FormatJSON, nil
	case string(FormatMarkdown), "md":
		return FormatMarkdown, nil
	case string(FormatYAML), "yml":
		return FormatYAML, nil
	default:
		return "", fmt.Errorf("unsupported output format: %s", value)
	}
}

// NewFormatter returns a formatter for the requested format.
func NewFormatter(format Format) Formatter {
	switch format {
	case FormatJSON:
		return &JSONFormatter{Indent: true}
	case FormatMarkdown:
		return &MarkdownFormatter{}
	case FormatYAML:
		return &YAMLFormatter{}
	default:
		return &TableFormatter{}
	}
}

// Extension returns the file extension used when writing format to disk.
func Extension(format Format) string {
	switch format {
	case FormatJSON:
		return "json"
	case FormatMarkdown:
		return "md"
	case FormatYAML:
		return "yaml"
	default:
		return "txt"
	}
}

// row flattens a result into the columns shared by table and markdown output.
func row(r Result) (outcome, source, location, notes string) {
	if r.Failed() {
		return "error", "", "", r.Error
	}
	d := r.Decision
	return string(d.Outcome), string(d.Source), d.Location, d.Reason
}
