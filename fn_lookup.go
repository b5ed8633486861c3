package spreadsheet

import (
	"fmt"
	"sort"
	"strings"
)

func init() {
	registerFunction("MATCH", fnMatch)
	registerFunction("VLOOKUP", fnVlookup)
	registerFunction("HLOOKUP", fnHlookup)
	registerFunction("LOOKUP", fnLookup)
	registerFunction("INDEX", fnIndex)
	registerFunction("OFFSET", fnOffset)
	registerFunction("INDIRECT", fnIndirect)
}

// comparePrimitives orders two primitives the way MATCH's sorted modes need:
// numbers compare numerically, everything else falls back to string
// comparison of their rendered form. Returns -1, 0, 1.
func comparePrimitives(a, b Primitive) int {
	an, aok := toNumber(a)
	_, aIsStr := a.(string)
	bn, bok := toNumber(b)
	_, bIsStr := b.(string)
	if aok && bok && !aIsStr && !bIsStr {
		switch {
		case an < bn:
			return -1
		case an > bn:
			return 1
		default:
			return 0
		}
	}
	as, bs := toString(a), toString(b)
	return strings.Compare(as, bs)
}

// fnMatch implements MATCH's three modes: 1 (sorted ascending, largest <=
// target via binary search), 0 (exact, wildcards allowed for strings), -1
// (sorted descending, smallest >= target). Ties in mode 1 break to the
// leftmost of the equal run after the binary probe.
func fnMatch(bf *BuiltInFunctions, sheet *Spreadsheet, args ...any) (Primitive, error) {
	if len(args) < 2 || len(args) > 3 {
		return nil, NewSpreadsheetError(ErrorCodeNA, "MATCH requires 2 or 3 arguments")
	}
	if err := checkForError(args[0]); err != nil {
		return nil, err
	}
	lookupValue := args[0]
	r, err := rangeArg(args[1])
	if err != nil {
		return nil, err
	}
	matchType := 1
	if len(args) == 3 {
		mt, ok := toNumber(args[2])
		if !ok {
			return nil, NewSpreadsheetError(ErrorCodeValue, "MATCH requires a numeric match type")
		}
		matchType = int(mt)
	}
	values := flattenRange(r)

	switch matchType {
	case 0:
		pattern, isStr := lookupValue.(string)
		for i, v := range values {
			if err := checkForError(v); err != nil {
				continue
			}
			if isStr {
				if vs, ok := v.(string); ok && wildcardMatch(pattern, vs) {
					return float64(i + 1), nil
				}
				continue
			}
			if comparePrimitives(v, lookupValue) == 0 {
				return float64(i + 1), nil
			}
		}
		return nil, NewSpreadsheetError(ErrorCodeNA, "MATCH: value not found")
	case 1:
		idx := sort.Search(len(values), func(i int) bool {
			return comparePrimitives(values[i], lookupValue) > 0
		})
		if idx == 0 {
			return nil, NewSpreadsheetError(ErrorCodeNA, "MATCH: no value <= lookup value")
		}
		// idx is the first element greater than lookupValue; idx-1 is the
		// largest element <= lookupValue. Walk left across ties to the
		// leftmost member of the equal run.
		for idx-2 >= 0 && comparePrimitives(values[idx-2], values[idx-1]) == 0 {
			idx--
		}
		return float64(idx), nil
	case -1:
		idx := sort.Search(len(values), func(i int) bool {
			return comparePrimitives(values[i], lookupValue) < 0
		})
		if idx == 0 {
			return nil, NewSpreadsheetError(ErrorCodeNA, "MATCH: no value >= lookup value")
		}
		// idx is the first element less than lookupValue; idx-1 is the
		// smallest element >= lookupValue.
		return float64(idx), nil
	default:
		return nil, NewSpreadsheetError(ErrorCodeValue, "MATCH: match type must be -1, 0 or 1")
	}
}

func fnVlookup(bf *BuiltInFunctions, sheet *Spreadsheet, args ...any) (Primitive, error) {
	if len(args) < 3 || len(args) > 4 {
		return nil, NewSpreadsheetError(ErrorCodeNA, "VLOOKUP requires 3 or 4 arguments")
	}
	if err := checkForError(args[0]); err != nil {
		return nil, err
	}
	lookupValue := args[0]
	r, err := rangeArg(args[1])
	if err != nil {
		return nil, err
	}
	colIndex, ok := toNumber(args[2])
	if !ok {
		return nil, NewSpreadsheetError(ErrorCodeValue, "VLOOKUP requires a numeric column index")
	}
	exact := false
	if len(args) == 4 {
		exact = !isTruthy(args[3])
	}
	grid := rangeGrid(r)
	col := int(colIndex) - 1
	if col < 0 || (len(grid) > 0 && col >= len(grid[0])) {
		return nil, NewSpreadsheetError(ErrorCodeRef, "VLOOKUP: column index out of range")
	}
	rowIdx, err := lookupRow(grid, 0, lookupValue, exact)
	if err != nil {
		return nil, err
	}
	return grid[rowIdx][col], nil
}

func fnHlookup(bf *BuiltInFunctions, sheet *Spreadsheet, args ...any) (Primitive, error) {
	if len(args) < 3 || len(args) > 4 {
		return nil, NewSpreadsheetError(ErrorCodeNA, "HLOOKUP requires 3 or 4 arguments")
	}
	if err := checkForError(args[0]); err != nil {
		return nil, err
	}
	lookupValue := args[0]
	r, err := rangeArg(args[1])
	if err != nil {
		return nil, err
	}
	rowIndex, ok := toNumber(args[2])
	if !ok {
		return nil, NewSpreadsheetError(ErrorCodeValue, "HLOOKUP requires a numeric row index")
	}
	exact := false
	if len(args) == 4 {
		exact = !isTruthy(args[3])
	}
	grid := rangeGrid(r)
	row := int(rowIndex) - 1
	if row < 0 || row >= len(grid) {
		return nil, NewSpreadsheetError(ErrorCodeRef, "HLOOKUP: row index out of range")
	}
	if len(grid) == 0 {
		return nil, NewSpreadsheetError(ErrorCodeRef, "HLOOKUP: empty range")
	}
	headerRow := make([][]Primitive, len(grid[0]))
	for i, v := range grid[0] {
		headerRow[i] = []Primitive{v}
	}
	colIdx, err := lookupRow(headerRow, 0, lookupValue, exact)
	if err != nil {
		return nil, err
	}
	return grid[row][colIdx], nil
}

// lookupRow searches column `col` of grid for lookupValue. When exact is
// false (the VLOOKUP/HLOOKUP default), grid must be sorted ascending on
// that column and the largest value <= lookupValue is returned, matching
// MATCH mode 1. When exact is true, the first equal (wildcard-aware for
// strings) value wins.
func lookupRow(grid [][]Primitive, col int, lookupValue Primitive, exact bool) (int, error) {
	if exact {
		pattern, isStr := lookupValue.(string)
		for i, row := range grid {
			if col >= len(row) {
				continue
			}
			v := row[col]
			if isStr {
				if vs, ok := v.(string); ok && wildcardMatch(pattern, vs) {
					return i, nil
				}
				continue
			}
			if comparePrimitives(v, lookupValue) == 0 {
				return i, nil
			}
		}
		return 0, NewSpreadsheetError(ErrorCodeNA, "lookup value not found")
	}
	best := -1
	for i, row := range grid {
		if col >= len(row) {
			continue
		}
		if comparePrimitives(row[col], lookupValue) <= 0 {
			best = i
		} else {
			break
		}
	}
	if best < 0 {
		return 0, NewSpreadsheetError(ErrorCodeNA, "no value <= lookup value")
	}
	return best, nil
}

// fnLookup implements both the vector form (LOOKUP(value, vector)) and the
// two-vector form (LOOKUP(value, lookup_vector, result_vector)); both
// vectors must be sorted ascending, the same convention VLOOKUP's
// approximate match uses.
func fnLookup(bf *BuiltInFunctions, sheet *Spreadsheet, args ...any) (Primitive, error) {
	if len(args) < 2 || len(args) > 3 {
		return nil, NewSpreadsheetError(ErrorCodeNA, "LOOKUP requires 2 or 3 arguments")
	}
	if err := checkForError(args[0]); err != nil {
		return nil, err
	}
	lookupValue := args[0]
	lookupRange, err := rangeArg(args[1])
	if err != nil {
		return nil, err
	}
	lookupValues := flattenRange(lookupRange)
	resultValues := lookupValues
	if len(args) == 3 {
		resultRange, err := rangeArg(args[2])
		if err != nil {
			return nil, err
		}
		resultValues = flattenRange(resultRange)
	}
	best := -1
	for i, v := range lookupValues {
		if comparePrimitives(v, lookupValue) <= 0 {
			best = i
		} else {
			break
		}
	}
	if best < 0 || best >= len(resultValues) {
		return nil, NewSpreadsheetError(ErrorCodeNA, "LOOKUP: no value <= lookup value")
	}
	return resultValues[best], nil
}

// fnIndex implements both INDEX(range, row, col) scalar lookup and the
// whole-row/whole-column forms where row==0 or col==0 selects an entire
// line, mirroring Excel's overload of the same function name.
func fnIndex(bf *BuiltInFunctions, sheet *Spreadsheet, args ...any) (Primitive, error) {
	if len(args) < 2 || len(args) > 3 {
		return nil, NewSpreadsheetError(ErrorCodeNA, "INDEX requires 2 or 3 arguments")
	}
	r, err := rangeArg(args[0])
	if err != nil {
		return nil, err
	}
	rowNum, ok := toNumber(args[1])
	if !ok {
		return nil, NewSpreadsheetError(ErrorCodeValue, "INDEX requires a numeric row argument")
	}
	colNum := 0.0
	if len(args) == 3 {
		colNum, ok = toNumber(args[2])
		if !ok {
			return nil, NewSpreadsheetError(ErrorCodeValue, "INDEX requires a numeric column argument")
		}
	}
	bounds := r.GetBounds()
	rows := int(bounds.EndRow-bounds.StartRow) + 1
	cols := int(bounds.EndColumn-bounds.StartColumn) + 1
	row, col := int(rowNum), int(colNum)
	if row < 0 || row > rows || col < 0 || col > cols {
		return nil, NewSpreadsheetError(ErrorCodeRef, "INDEX: index out of range")
	}

	cr, isCellRange := r.(*CellRange)
	if !isCellRange {
		grid := rangeGrid(r)
		if row == 0 || col == 0 {
			return nil, NewSpreadsheetError(ErrorCodeValue, "INDEX: whole row/column selection requires a cell range")
		}
		return grid[row-1][col-1], nil
	}

	switch {
	case row == 0 && col == 0:
		return nil, NewSpreadsheetError(ErrorCodeValue, "INDEX requires at least one of row or column")
	case row == 0:
		return &CellRange{
			worksheetID: cr.worksheetID,
			startRow:    bounds.StartRow,
			startCol:    bounds.StartColumn + uint32(col-1),
			endRow:      bounds.EndRow,
			endCol:      bounds.StartColumn + uint32(col-1),
			worksheet:   cr.worksheet,
			storage:     cr.storage,
		}, nil
	case col == 0:
		return &CellRange{
			worksheetID: cr.worksheetID,
			startRow:    bounds.StartRow + uint32(row-1),
			startCol:    bounds.StartColumn,
			endRow:      bounds.StartRow + uint32(row-1),
			endCol:      bounds.EndColumn,
			worksheet:   cr.worksheet,
			storage:     cr.storage,
		}, nil
	default:
		cell := cr.worksheet.GetCell(bounds.StartRow+uint32(row-1), bounds.StartColumn+uint32(col-1))
		if cell == nil {
			return nil, nil
		}
		return cell.Value, nil
	}
}

// fnOffset implements OFFSET(ref, rows, cols, [height], [width]): a new
// range anchored rows/cols away from ref's top-left corner, optionally
// resized. Negative resulting coordinates surface #REF!.
func fnOffset(bf *BuiltInFunctions, sheet *Spreadsheet, args ...any) (Primitive, error) {
	if len(args) < 3 || len(args) > 5 {
		return nil, NewSpreadsheetError(ErrorCodeNA, "OFFSET requires 3 to 5 arguments")
	}
	r, err := rangeArg(args[0])
	if err != nil {
		return nil, err
	}
	rowOffset, ok1 := toNumber(args[1])
	colOffset, ok2 := toNumber(args[2])
	if !ok1 || !ok2 {
		return nil, NewSpreadsheetError(ErrorCodeValue, "OFFSET requires numeric row/column offsets")
	}
	bounds := r.GetBounds()
	height := int(bounds.EndRow-bounds.StartRow) + 1
	width := int(bounds.EndColumn-bounds.StartColumn) + 1
	if len(args) >= 4 {
		h, ok := toNumber(args[3])
		if !ok {
			return nil, NewSpreadsheetError(ErrorCodeValue, "OFFSET requires a numeric height")
		}
		height = int(h)
	}
	if len(args) == 5 {
		w, ok := toNumber(args[4])
		if !ok {
			return nil, NewSpreadsheetError(ErrorCodeValue, "OFFSET requires a numeric width")
		}
		width = int(w)
	}
	if height <= 0 || width <= 0 {
		return nil, NewSpreadsheetError(ErrorCodeValue, "OFFSET requires positive height and width")
	}
	newStartRow := int64(bounds.StartRow) + int64(rowOffset)
	newStartCol := int64(bounds.StartColumn) + int64(colOffset)
	if newStartRow < 0 || newStartCol < 0 {
		return nil, NewSpreadsheetError(ErrorCodeRef, "OFFSET: resulting reference is out of bounds")
	}
	worksheet, exists := sheet.storage.worksheets.GetWorksheet(bounds.WorksheetID)
	if !exists {
		return nil, NewSpreadsheetError(ErrorCodeRef, "OFFSET: worksheet not found")
	}
	return &CellRange{
		worksheetID: bounds.WorksheetID,
		startRow:    uint32(newStartRow),
		startCol:    uint32(newStartCol),
		endRow:      uint32(newStartRow) + uint32(height) - 1,
		endCol:      uint32(newStartCol) + uint32(width) - 1,
		worksheet:   worksheet,
		storage:     sheet.storage,
	}, nil
}

// fnIndirect resolves a textual address - "A1", "Sheet2!A1", "A1:B5" - into
// a live reference at evaluation time, the one function in the library that
// turns a computed string back into a reference. Unrecognized text and
// out-of-sheet addresses surface #REF!.
func fnIndirect(bf *BuiltInFunctions, sheet *Spreadsheet, args ...any) (Primitive, error) {
	if len(args) < 1 || len(args) > 2 {
		return nil, NewSpreadsheetError(ErrorCodeNA, "INDIRECT requires 1 or 2 arguments")
	}
	if err := checkForError(args[0]); err != nil {
		return nil, err
	}
	text, ok := args[0].(string)
	if !ok {
		return nil, NewSpreadsheetError(ErrorCodeValue, "INDIRECT requires a text argument")
	}

	sheetName := ""
	rest := text
	if idx := strings.LastIndex(text, "!"); idx >= 0 {
		sheetName = strings.Trim(text[:idx], "'")
		rest = text[idx+1:]
	}

	worksheetID := sheet.currentAddress.WorksheetID
	if sheetName != "" {
		id, exists := sheet.storage.worksheets.GetWorksheetID(sheetName)
		if !exists {
			return nil, NewSpreadsheetError(ErrorCodeRef, fmt.Sprintf("INDIRECT: unknown worksheet %q", sheetName))
		}
		worksheetID = id
	}
	worksheet, exists := sheet.storage.worksheets.GetWorksheet(worksheetID)
	if !exists {
		return nil, NewSpreadsheetError(ErrorCodeRef, "INDIRECT: worksheet not found")
	}

	if strings.Contains(rest, ":") {
		parts := strings.SplitN(rest, ":", 2)
		startRow, startCol, err1 := ParseA1(parts[0])
		endRow, endCol, err2 := ParseA1(parts[1])
		if err1 != nil || err2 != nil {
			return nil, NewSpreadsheetError(ErrorCodeRef, "INDIRECT: invalid range address")
		}
		return &CellRange{
			worksheetID: worksheetID,
			startRow:    min(startRow, endRow),
			startCol:    min(startCol, endCol),
			endRow:      max(startRow, endRow),
			endCol:      max(startCol, endCol),
			worksheet:   worksheet,
			storage:     sheet.storage,
		}, nil
	}

	row, col, err := ParseA1(rest)
	if err != nil {
		return nil, NewSpreadsheetError(ErrorCodeRef, "INDIRECT: invalid cell address")
	}
	cell := worksheet.GetCell(row, col)
	if cell == nil {
		return nil, nil
	}
	return cell.Value, nil
}

// ROW and COLUMN are dispatched structurally in FunctionCallNode.Eval
// rather than registered here: a single-cell argument must keep its
// address, which eager argument evaluation would discard.
