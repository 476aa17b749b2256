package output

import (
	"github.com/jedib0t/go-pretty/v6/table"
)

// TableFormatter renders views as an ASCII table.
type TableFormatter struct{}

func (f *TableFormatter) Format(view View) (string, error) {
	t := table.NewWriter()
	t.SetStyle(table.StyleRounded)
	if view.Title != "" {
		t.SetTitle(view.Title)
	}

	t.AppendHeader(toRow(view.Header))
	for _, row := range view.Rows {
		t.AppendRow(toRow(row))
	}

	if view.Footer != "" && len(view.Header) > 0 {
		footer := make(table.Row, len(view.Header))
		footer[len(footer)-1] = view.Footer
		t.AppendFooter(footer)
	}

	return t.Render(), nil
}

// CSVFormatter renders the header and rows as CSV. Title and footer are
// dropped so the result imports cleanly into spreadsheets.
type CSVFormatter struct{}

func (f *CSVFormatter) Format(view View) (string, error) {
	t := table.NewWriter()
	t.AppendHeader(toRow(view.Header))
	for _, row := range view.Rows {
		t.AppendRow(toRow(row))
	}
	return t.RenderCSV(), nil
}

func toRow(values []string) table.Row {
	row := make(table.Row, len(values))
	for i, v := range values {
		row[i] = v
	}
	return row
}
