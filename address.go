package spreadsheet

import (
	"fmt"
	"strconv"
	"strings"
)

// ColumnIndexToLabel converts a zero-based column index to its base-26 A1
// column label (0 -> "A", 25 -> "Z", 26 -> "AA"), the inverse of the column
// parsing loop in Parser.parseCellAddress.
func ColumnIndexToLabel(index uint32) string {
	if index == 0 {
		return "A"
	}
	var digits []byte
	n := int64(index) + 1 // work in 1-based terms, like spreadsheet column numbering
	for n > 0 {
		n--
		digits = append([]byte{byte('A' + n%26)}, digits...)
		n /= 26
	}
	return string(digits)
}

// ColumnLabelToIndex converts a base-26 A1 column label to a zero-based
// index ("A" -> 0, "Z" -> 25, "AA" -> 26). Matches the positional-notation
// loop already used inline by Parser.parseCellAddress.
func ColumnLabelToIndex(label string) (uint32, error) {
	label = strings.ToUpper(label)
	if label == "" {
		return 0, NewSpreadsheetError(ErrorCodeRef, "empty column label")
	}
	var col int64
	for i, ch := range label {
		if ch < 'A' || ch > 'Z' {
			return 0, NewSpreadsheetError(ErrorCodeRef, fmt.Sprintf("invalid column label: %s", label))
		}
		col = col*26 + int64(ch-'A')
		if i < len(label)-1 {
			col++
		}
	}
	return uint32(col), nil
}

// FormatA1 renders a zero-based (row, col) pair as an absolute A1-style
// address, e.g. (0, 0) -> "A1".
func FormatA1(row, col uint32) string {
	return fmt.Sprintf("%s%d", ColumnIndexToLabel(col), row+1)
}

// FormatR1C1 renders a zero-based (row, col) pair as an absolute R1C1-style
// address, e.g. (0, 0) -> "R1C1".
func FormatR1C1(row, col uint32) string {
	return fmt.Sprintf("R%dC%d", row+1, col+1)
}

// FormatRangeA1 renders a RangeAddress as an A1-style range string, collapsing
// to a single cell address when the range is one cell wide and tall.
func FormatRangeA1(r RangeAddress) string {
	start := FormatA1(r.StartRow, r.StartColumn)
	if r.StartRow == r.EndRow && r.StartColumn == r.EndColumn {
		return start
	}
	return fmt.Sprintf("%s:%s", start, FormatA1(r.EndRow, r.EndColumn))
}

// ParseA1 parses a bare A1-style cell address (no worksheet prefix) into a
// zero-based (row, col) pair. Thin wrapper kept separate from
// Parser.parseCellAddress so callers that only need address arithmetic -
// not full formula parsing context - don't need to construct a Parser.
func ParseA1(cell string) (row, col uint32, err error) {
	p := &Parser{}
	c, r, parseErr := p.parseCellAddress(cell)
	if parseErr != nil {
		return 0, 0, parseErr
	}
	return uint32(r), uint32(c), nil
}

// RangesIntersect reports whether two ranges on the same worksheet overlap,
// and if so returns their rectangular intersection.
func RangesIntersect(a, b RangeAddress) (RangeAddress, bool) {
	if a.WorksheetID != b.WorksheetID {
		return RangeAddress{}, false
	}
	startRow := max(a.StartRow, b.StartRow)
	startCol := max(a.StartColumn, b.StartColumn)
	endRow := min(a.EndRow, b.EndRow)
	endCol := min(a.EndColumn, b.EndColumn)
	if startRow > endRow || startCol > endCol {
		return RangeAddress{}, false
	}
	return RangeAddress{
		WorksheetID: a.WorksheetID,
		StartRow:    startRow,
		StartColumn: startCol,
		EndRow:      endRow,
		EndColumn:   endCol,
	}, true
}

// RangeUnion returns the bounding box covering both ranges. Used where a
// rectangular superset is acceptable (RangeExprNode); AddressSetRange is used
// instead where the exact non-rectangular union must be preserved.
func RangeUnion(a, b RangeAddress) RangeAddress {
	return RangeAddress{
		WorksheetID: a.WorksheetID,
		StartRow:    min(a.StartRow, b.StartRow),
		StartColumn: min(a.StartColumn, b.StartColumn),
		EndRow:      max(a.EndRow, b.EndRow),
		EndColumn:   max(a.EndColumn, b.EndColumn),
	}
}

// ParseRowNumber parses a 1-based row number string into a zero-based row
// index, the same convention Parser.parseCellAddress applies inline.
func ParseRowNumber(s string) (uint32, error) {
	n, err := strconv.ParseInt(s, 10, 32)
	if err != nil || n < 1 {
		return 0, NewSpreadsheetError(ErrorCodeRef, fmt.Sprintf("invalid row number: %s", s))
	}
	return uint32(n - 1), nil
}
