package csvrow

import (
	"fmt"
	"strings"
)

// Field is a logical column the generic statement format needs.
type Field int

const (
	FieldSymbol Field = iota
	FieldDate
	FieldSide
	FieldQuantity
	FieldPrice
)

// Unmapped marks a field with no matching header.
const Unmapped = -1

var fieldKeywords = [...]struct {
	field    Field
	label    string
	keywords []string
}{
	{FieldSymbol, "Symbol", []string{"symbol", "script", "stock", "instrument"}},
	{FieldDate, "Date", []string{"date", "time"}},
	{FieldSide, "Action", []string{"buy", "sell", "action", "type", "trade"}},
	{FieldQuantity, "Quantity", []string{"qty", "quantity", "shares", "units"}},
	{FieldPrice, "Price", []string{"price", "rate", "value", "amount"}},
}

// ColumnMap holds the column index of each logical field, or Unmapped.
type ColumnMap struct {
	Symbol   int
	Date     int
	Side     int
	Quantity int
	Price    int
}

// Index returns the column of f.
func (m ColumnMap) Index(f Field) int {
	switch f {
	case FieldSymbol:
		return m.Symbol
	case FieldDate:
		return m.Date
	case FieldSide:
		return m.Side
	case FieldQuantity:
		return m.Quantity
	case FieldPrice:
		return m.Price
	}
	return Unmapped
}

func (m *ColumnMap) set(f Field, idx int) {
	switch f {
	case FieldSymbol:
		m.Symbol = idx
	case FieldDate:
		m.Date = idx
	case FieldSide:
		m.Side = idx
	case FieldQuantity:
		m.Quantity = idx
	case FieldPrice:
		m.Price = idx
	}
}

// Complete reports whether every field is mapped.
func (m ColumnMap) Complete() bool {
	for _, fk := range fieldKeywords {
		if m.Index(fk.field) == Unmapped {
			return false
		}
	}
	return true
}

// MapColumns assigns each field the first header, in header order, whose
// lower-cased trimmed text contains one of the field's keywords.
func MapColumns(headers []string) ColumnMap {
	m := ColumnMap{Unmapped, Unmapped, Unmapped, Unmapped, Unmapped}
	for _, fk := range fieldKeywords {
		for i, h := range headers {
			h = strings.ToLower(strings.TrimSpace(h))
			if containsAny(h, fk.keywords) {
				m.set(fk.field, i)
				break
			}
		}
	}
	return m
}

// RequireColumns maps headers and fails when any field stays unmapped.
func RequireColumns(headers []string) (ColumnMap, error) {
	m := MapColumns(headers)
	if m.Complete() {
		return m, nil
	}
	labels := make([]string, len(fieldKeywords))
	for i, fk := range fieldKeywords {
		labels[i] = fk.label
	}
	return m, fmt.Errorf("Could not detect required columns. Found headers: %s. Expected: %s",
		strings.Join(headers, ", "), strings.Join(labels, ", "))
}

func containsAny(s string, keywords []string) bool {
	for _, k := range keywords {
		if strings.Contains(s, k) {
			return true
		}
	}
	return false
}
