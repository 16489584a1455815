// Package csvrow splits broker statement text into rows and maps header columns.
package csvrow

import (
	"errors"
	"iter"
	"strings"

	"github.com/username/holdfolio/backend/src/models"
)

// ErrEmptyFile is returned when a statement has no non-blank lines.
var ErrEmptyFile = errors.New("File appears to be empty")

// Rows lazily yields one RawRow per non-blank physical line of content.
//
// A double quote toggles quoted mode, commas outside quotes end a field and
// every other character is kept. Fields are trimmed. Doubled quotes and
// line breaks inside quotes are not supported; unbalanced quotes simply
// swallow the rest of the line into the current field.
func Rows(content string) iter.Seq[models.RawRow] {
	return func(yield func(models.RawRow) bool) {
		line := 0
		for rest := content; rest != ""; {
			var text string
			if i := strings.IndexByte(rest, '\n'); i >= 0 {
				text, rest = rest[:i], rest[i+1:]
			} else {
				text, rest = rest, ""
			}
			line++
			if strings.TrimSpace(text) == "" {
				continue
			}
			if !yield(models.RawRow{Line: line, Fields: SplitLine(text)}) {
				return
			}
		}
	}
}

// SplitLine splits a single line into trimmed fields.
func SplitLine(text string) []string {
	var (
		fields   []string
		current  strings.Builder
		inQuotes bool
	)
	for _, r := range text {
		switch {
		case r == '"':
			inQuotes = !inQuotes
		case r == ',' && !inQuotes:
			fields = append(fields, strings.TrimSpace(current.String()))
			current.Reset()
		default:
			current.WriteRune(r)
		}
	}
	return append(fields, strings.TrimSpace(current.String()))
}

// Collect materialises the rows of content.
func Collect(content string) []models.RawRow {
	var rows []models.RawRow
	for row := range Rows(content) {
		rows = append(rows, row)
	}
	return rows
}

// IsBlank reports whether every field of the row is empty.
func IsBlank(row models.RawRow) bool {
	for _, f := range row.Fields {
		if f != "" {
			return false
		}
	}
	return true
}

// Header returns the first non-blank row of content.
func Header(content string) (models.RawRow, bool) {
	for row := range Rows(content) {
		return row, true
	}
	return models.RawRow{}, false
}

// DataRows yields every non-blank row after the header.
func DataRows(content string) iter.Seq[models.RawRow] {
	return func(yield func(models.RawRow) bool) {
		first := true
		for row := range Rows(content) {
			if first {
				first = false
				continue
			}
			if !yield(row) {
				return
			}
		}
	}
}
