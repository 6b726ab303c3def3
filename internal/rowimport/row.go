package rowimport

import (
	"strconv"
	"strings"
)

// Column positions of the import sheet.
const (
	ColQuestion = 0
	ColAnswer   = 1
	ColTruth    = 2
	ColCategory = 3
)

// Cell is one spreadsheet value. Absent cells and empty strings are not Present.
type Cell struct {
	Text    string
	Present bool
}

type Row []Cell

func TextCell(s string) Cell {
	if s == "" {
		return Cell{}
	}
	return Cell{Text: s, Present: true}
}

// CellFromValue converts a decoded JSON or spreadsheet value into a Cell.
func CellFromValue(v any) Cell {
	switch x := v.(type) {
	case nil:
		return Cell{}
	case string:
		return TextCell(x)
	case bool:
		return TextCell(strconv.FormatBool(x))
	case float64:
		return TextCell(strconv.FormatFloat(x, 'f', -1, 64))
	case float32:
		return TextCell(strconv.FormatFloat(float64(x), 'f', -1, 32))
	case int:
		return TextCell(strconv.Itoa(x))
	case int64:
		return TextCell(strconv.FormatInt(x, 10))
	default:
		return Cell{}
	}
}

func RowFromStrings(values ...string) Row {
	row := make(Row, len(values))
	for i, v := range values {
		row[i] = TextCell(v)
	}
	return row
}

func RowFromValues(values []any) Row {
	row := make(Row, len(values))
	for i, v := range values {
		row[i] = CellFromValue(v)
	}
	return row
}

// Cell returns the cell at i, or an absent cell past the end of the row.
func (r Row) Cell(i int) Cell {
	if i < 0 || i >= len(r) {
		return Cell{}
	}
	return r[i]
}

// Truth reads the cell as a case-insensitive "true"/"false" literal.
func (c Cell) Truth() (value bool, ok bool) {
	if !c.Present {
		return false, false
	}
	switch strings.ToLower(c.Text) {
	case "true":
		return true, true
	case "false":
		return false, true
	default:
		return false, false
	}
}
