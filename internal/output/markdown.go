package output

import (
	"fmt"
	"strings"
)

// MarkdownFormatter renders results as a markdown table.
type MarkdownFormatter struct{}

// Format renders results as Markdown.
func (f *MarkdownFormatter) Format(results []Result) (string, error) {
	var sb strings.Builder
	sb.WriteString("## Refresh resolution\n\n")
	sb.WriteString("| Target | Outcome | Source | Location | Notes |\n")
	sb.WriteString("|--------|---------|--------|----------|-------|\n")

	for _, r := range results {
		outcome, source, location, notes := row(r)
		sb.WriteString(fmt.Sprintf("| %s | %s | %s | %s | %s |\n",
			escapeMarkdownCell(r.Target),
			escapeMarkdownCell(outcome),
			escapeMarkdownCell(source),
			escapeMarkdownCell(location),
			escapeMarkdownCell(notes),
		))
	}
	return sb.String(), nil
}

func escapeMarkdownCell(value string) string {
	value = strings.ReplaceAll(value, "|", "\\|")
	return strings.ReplaceAll(value, "\n", " ")
}
