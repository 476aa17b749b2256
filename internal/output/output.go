package output

import (
	"fmt"
	"strings"
)

// Format represents an output format.
type Format string

const (
	FormatTable    Format = "table"
	FormatJSON     Format = "json"
	FormatMarkdown Format = "markdown"
	FormatYAML     Format = "yaml"
	FormatCSV      Format = "csv"
)

// View is a renderable result: a titled table for humans and Data for
// machine formats. Data falls back to the rows when nil.
type View struct {
	Title  string
	Header []string
	Rows   [][]string
	Footer string
	Data   any
}

// Formatter renders views.
type Formatter interface {
	Format(view View) (string, error)
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
	case string(FormatCSV):
		return FormatCSV, nil
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
	case FormatCSV:
		return &CSVFormatter{}
	default:
		return &TableFormatter{}
	}
}

// Render formats view with the requested format.
func Render(format Format, view View) (string, error) {
	return NewFormatter(format).Format(view)
}

func (v View) data() any {
	if v.Data != nil {
		return v.Data
	}
	rows := make([]map[string]string, 0, len(v.Rows))
	for _, row := range v.Rows {
		item := make(map[string]string, len(v.Header))
		for i, col := range v.Header {
			if i < len(row) {
				item[strings.ToLower(strings.ReplaceAll(col, " ", "_"))] = row[i]
			}
		}
		rows = append(rows, item)
	}
	return rows
}
