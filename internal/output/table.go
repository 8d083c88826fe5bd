package output

import (
	"fmt"

	"github.com/jedib0t/go-pretty/v6/table"
)

// TableFormatter renders results as an ASCII table.
type TableFormatter struct{}

// Format renders results as a table with a redirect count footer.
func (f *TableFormatter) Format(results []Result) (string, error) {
	t := table.NewWriter()
	t.SetStyle(table.StyleRounded)
	t.AppendHeader(table.Row{"Target", "Outcome", "Source", "Location", "Notes"})

	redirects, failures := 0, 0
	for _, r := range results {
		outcome, source, location, notes := row(r)
		t.AppendRow(table.Row{r.Target, outcome, source, location, notes})
		switch {
		case r.Failed():
			failures++
		case r.Decision.IsRedirect():
			redirects++
		}
	}

	if len(results) > 0 {
		summary := fmt.Sprintf("%d/%d redirected", redirects, len(results))
		if failures > 0 {
			summary += fmt.Sprintf(", %d failed", failures)
		}
		t.AppendFooter(table.Row{"", summary, "", "", ""})
	}

	return t.Render(), nil
}
