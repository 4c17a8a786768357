package core

import (
	"context"
	"strings"
)

// DefaultPreviewRowCap is the maximum number of data rows materialized for display.
const DefaultPreviewRowCap = 2000

// PreviewTable is a bounded view of generated CSV text.
type PreviewTable struct {
	Header    []string   `json:"header"`
	Rows      [][]string `json:"rows"`
	TotalRows int        `json:"totalRows"` // Non-blank data rows in the full payload
}

// Truncated reports whether rows beyond the display cap were left out.
func (t *PreviewTable) Truncated() bool {
	return t.TotalRows > len(t.Rows)
}

// Renderer turns CSV text into a PreviewTable.
type Renderer struct {
	// RowCap limits displayed data rows. Zero or negative means DefaultPreviewRowCap.
	RowCap int
}

// Render parses csvText with the default row cap.
func Render(csvText string) (*PreviewTable, error) {
	return Renderer{}.Render(csvText)
}

// Render parses csvText. The first non-blank row is the header; all-blank rows
// are dropped; cell text is kept exactly as parsed with no type coercion.
// Rows past the cap are counted but not materialized. The cap applies to the
// preview only; the downloaded file always carries the full text.
func (r Renderer) Render(csvText string) (*PreviewTable, error) {
	limit := r.RowCap
	if limit <= 0 {
		limit = DefaultPreviewRowCap
	}

	var table *PreviewTable
	err := eachRecord(context.Background(), WrapForPreview(strings.NewReader(csvText)), func(record []string) bool {
		if table == nil {
			table = &PreviewTable{Header: record, Rows: [][]string{}}
			return true
		}
		table.TotalRows++
		if len(table.Rows) < limit {
			table.Rows = append(table.Rows, record)
		}
		return true
	})
	if err != nil {
		return nil, &Error{Kind: KindParseFailure, Message: "generated data is not valid CSV", Err: err}
	}

	if table == nil {
		return nil, &Error{Kind: KindEmptyPayload, Message: "the generator returned no rows"}
	}

	return table, nil
}
