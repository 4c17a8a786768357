package core

import (
	"context"
	"encoding/csv"
	"errors"
	"io"
	"strings"
)

// ContextCheckInterval is how often (in records) long parses check for cancellation.
var ContextCheckInterval = 100

// newCSVReader returns a tolerant reader: ragged rows and stray quotes are
// accepted, empty lines are skipped by encoding/csv itself.
func newCSVReader(r io.Reader) *csv.Reader {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.LazyQuotes = true
	return cr
}

// eachRecord calls fn for every non-blank record until EOF, an error, or fn
// returns false.
func eachRecord(ctx context.Context, r io.Reader, fn func(record []string) bool) error {
	cr := newCSVReader(r)
	cr.ReuseRecord = false

	for i := 0; ; i++ {
		if i%ContextCheckInterval == 0 {
			if err := ctx.Err(); err != nil {
				return err
			}
		}

		record, err := cr.Read()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return err
		}
		if isEmptyRow(record) {
			continue
		}
		if !fn(record) {
			return nil
		}
	}
}

// isEmptyRow reports whether every field in row is blank.
func isEmptyRow(row []string) bool {
	for _, v := range row {
		if strings.TrimSpace(v) != "" {
			return false
		}
	}
	return true
}
