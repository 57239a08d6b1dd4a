package formatter

import (
	"fmt"
	"io"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"

	"github.com/artpar/scopedb/core/schema"
)

// NullText is how the table format shows NULL.
const NullText = "NULL"

// TableFormatter formats output as a text table.
type TableFormatter struct{}

// NewTableFormatter creates a new table formatter.
func NewTableFormatter() *TableFormatter {
	return &TableFormatter{}
}

// Name returns the formatter name.
func (f *TableFormatter) Name() string {
	return "table"
}

// Description returns the formatter description.
func (f *TableFormatter) Description() string {
	return "Human-readable table format"
}

// Format writes the records as a table with a row count footer.
func (f *TableFormatter) Format(w io.Writer, res Result, opts Options) error {
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.Style().Format.Header = text.FormatDefault

	if !opts.NoHeader {
		header := table.Row{schema.KeyColumn}
		for _, c := range res.Columns {
			header = append(header, c)
		}
		t.AppendHeader(header)
	}

	for _, rec := range res.Records {
		row := table.Row{int64(rec.ID())}
		for _, v := range rec.Values() {
			if v == nil {
				row = append(row, NullText)
				continue
			}
			row = append(row, Display(v))
		}
		t.AppendRow(row)
	}
	t.AppendFooter(table.Row{fmt.Sprintf("%d rows", len(res.Records))})
	t.Render()
	return nil
}

// FormatError writes the error on one line.
func (f *TableFormatter) FormatError(w io.Writer, err error) error {
	_, werr := fmt.Fprintf(w, "Error: %v\n", err)
	return werr
}
