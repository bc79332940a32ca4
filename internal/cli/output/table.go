package output

import (
	"io"

	"github.com/olekukonko/tablewriter"
)

// Table is implemented by results that can be shown as rows.
type Table interface {
	Headers() []string
	Rows() [][]string
}

// Render writes t as a borderless, left-aligned table.
func Render(w io.Writer, t Table) error {
	tw := newWriter(w, "")
	tw.SetHeader(t.Headers())
	tw.SetAutoFormatHeaders(true)
	tw.AppendBulk(t.Rows())
	tw.Render()
	return nil
}

// KeyValues writes label/value pairs as two aligned columns.
func KeyValues(w io.Writer, pairs [][2]string) error {
	tw := newWriter(w, ":")
	for _, p := range pairs {
		tw.Append([]string{p[0], p[1]})
	}
	tw.Render()
	return nil
}

func newWriter(w io.Writer, sep string) *tablewriter.Table {
	tw := tablewriter.NewWriter(w)
	tw.SetAutoWrapText(false)
	tw.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	tw.SetAlignment(tablewriter.ALIGN_LEFT)
	tw.SetCenterSeparator("")
	tw.SetColumnSeparator(sep)
	tw.SetRowSeparator("")
	tw.SetHeaderLine(false)
	tw.SetBorder(false)
	tw.SetTablePadding("  ")
	tw.SetNoWhiteSpace(true)
	return tw
}

// Rows is a Table built row by row.
type Rows struct {
	headers []string
	rows    [][]string
}

// NewRows creates an empty table with the given headers.
func NewRows(headers ...string) *Rows {
	return &Rows{headers: headers}
}

// Add appends a row.
func (r *Rows) Add(cells ...string) { r.rows = append(r.rows, cells) }

func (r *Rows) Headers() []string { return r.headers }
func (r *Rows) Rows() [][]string  { return r.rows }
