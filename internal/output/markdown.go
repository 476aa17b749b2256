package output

import (
	"fmt"
	"strings"
)

// MarkdownFormatter renders views as a markdown table.
type MarkdownFormatter struct{}

func (f *MarkdownFormatter) Format(view View) (string, error) {
	var sb strings.Builder
	if view.Title != "" {
		sb.WriteString(fmt.Sprintf("## %s\n\n", escapeMarkdownCell(view.Title)))
	}

	cells := make([]string, len(view.Header))
	rules := make([]string, len(view.Header))
	for i, col := range view.Header {
		cells[i] = escapeMarkdownCell(col)
		rules[i] = strings.Repeat("-", max(3, len(col)))
	}
	sb.WriteString("| " + strings.Join(cells, " | ") + " |\n")
	sb.WriteString("|" + strings.Join(rules, "|") + "|\n")

	for _, row := range view.Rows {
		cells := make([]string, len(view.Header))
		for i := range cells {
			if i < len(row) {
				cells[i] = escapeMarkdownCell(row[i])
			}
		}
		sb.WriteString("| " + strings.Join(cells, " | ") + " |\n")
	}

	if view.Footer != "" {
		sb.WriteString(fmt.Sprintf("\n**%s**\n", escapeMarkdownCell(view.Footer)))
	}
	return sb.String(), nil
}

func escapeMarkdownCell(value string) string {
	value = strings.ReplaceAll(value, "|", "\\|")
	return strings.ReplaceAll(value, "\n", " ")
}
