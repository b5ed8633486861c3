// Package xlsxaccessor adapts an excelize workbook to spreadsheet.WorkbookAccessor,
// so a Compiled Spreadsheet can be loaded directly from a .xlsx file on disk.
package xlsxaccessor

import (
	"fmt"
	"strconv"
	"strings"
	"sync"

	"github.com/xuri/excelize/v2"

	spreadsheet "github.com/arborfield/formulagraph"
)

// Accessor wraps a single open excelize.File behind a read/write mutex:
// readers take the shared lock, Close and WithWrite take the exclusive
// one. A single-sheet cursor (current/currentRows) backs the
// SetSheet/ActiveSheet/GetFormula/GetValue/GetRange/MaxRow/MaxColumn methods
// of spreadsheet.WorkbookAccessor.
type Accessor struct {
	mu          sync.RWMutex
	file        *excelize.File
	path        string
	current     string
	currentRows [][]string
}

var _ spreadsheet.WorkbookAccessor = (*Accessor)(nil)

// Open loads a workbook from path.
func Open(path string) (*Accessor, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, fmt.Errorf("xlsxaccessor: open %s: %w", path, err)
	}
	return &Accessor{file: f, path: path}, nil
}

// New wraps an already-open excelize.File, e.g. excelize.NewFile() for an
// in-memory workbook under construction.
func New(f *excelize.File) *Accessor {
	return &Accessor{file: f}
}

// SheetNames implements spreadsheet.WorkbookAccessor.
func (a *Accessor) SheetNames() ([]string, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.file.GetSheetList(), nil
}

// SetSheet implements spreadsheet.WorkbookAccessor, caching the sheet's rows
// so MaxRow/MaxColumn/GetFormula/GetValue/GetRange don't each re-read the
// whole sheet from excelize.
func (a *Accessor) SetSheet(name string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	rows, err := a.file.GetRows(name)
	if err != nil {
		return fmt.Errorf("xlsxaccessor: rows of %s: %w", name, err)
	}
	a.current = name
	a.currentRows = rows
	return nil
}

// ActiveSheet implements spreadsheet.WorkbookAccessor.
func (a *Accessor) ActiveSheet() string {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.current
}

// MaxRow implements spreadsheet.WorkbookAccessor.
func (a *Accessor) MaxRow() int {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return len(a.currentRows)
}

// MaxColumn implements spreadsheet.WorkbookAccessor.
func (a *Accessor) MaxColumn() int {
	a.mu.RLock()
	defer a.mu.RUnlock()
	width := 0
	for _, row := range a.currentRows {
		if len(row) > width {
			width = len(row)
		}
	}
	return width
}

// GetFormula implements spreadsheet.WorkbookAccessor. The formula text is
// reported without a leading '=' - LoadWorkbook adds it back, matching how
// excelize.GetCellFormula itself omits it.
func (a *Accessor) GetFormula(addr string) (string, bool) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	formula, err := a.file.GetCellFormula(a.current, addr)
	if err != nil || formula == "" {
		return "", false
	}
	return formula, true
}

// GetValue implements spreadsheet.WorkbookAccessor, coercing excelize's
// string-rendered cell value into a number or bool when it looks like one,
// matching the loose coercion a user typing the same text into a cell would
// get from Spreadsheet.Set.
func (a *Accessor) GetValue(addr string) (spreadsheet.Primitive, bool) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	text, err := a.file.GetCellValue(a.current, addr)
	if err != nil || text == "" {
		return nil, false
	}
	return coerce(text), true
}

func coerce(text string) spreadsheet.Primitive {
	if num, err := strconv.ParseFloat(text, 64); err == nil {
		return num
	}
	if b, err := strconv.ParseBool(text); err == nil {
		return b
	}
	return text
}

// GetRange implements spreadsheet.WorkbookAccessor.
func (a *Accessor) GetRange(addr string) ([][]spreadsheet.CellSnapshot, error) {
	parts := strings.SplitN(addr, ":", 2)
	first := parts[0]
	last := first
	if len(parts) == 2 {
		last = parts[1]
	}
	startCol, startRow, err := excelize.CellNameToCoordinates(first)
	if err != nil {
		return nil, fmt.Errorf("xlsxaccessor: invalid range %s: %w", addr, err)
	}
	endCol, endRow, err := excelize.CellNameToCoordinates(last)
	if err != nil {
		return nil, fmt.Errorf("xlsxaccessor: invalid range %s: %w", addr, err)
	}
	if endRow < startRow {
		startRow, endRow = endRow, startRow
	}
	if endCol < startCol {
		startCol, endCol = endCol, startCol
	}

	a.mu.RLock()
	defer a.mu.RUnlock()

	grid := make([][]spreadsheet.CellSnapshot, 0, endRow-startRow+1)
	for row := startRow; row <= endRow; row++ {
		line := make([]spreadsheet.CellSnapshot, 0, endCol-startCol+1)
		for col := startCol; col <= endCol; col++ {
			cellName, err := excelize.CoordinatesToCellName(col, row)
			if err != nil {
				return nil, err
			}
			var snap spreadsheet.CellSnapshot
			if formula, err := a.file.GetCellFormula(a.current, cellName); err == nil && formula != "" {
				snap.Formula = formula
				snap.HasFormula = true
			}
			if text, err := a.file.GetCellValue(a.current, cellName); err == nil && text != "" {
				snap.Value = coerce(text)
				snap.HasValue = true
			}
			line = append(line, snap)
		}
		grid = append(grid, line)
	}
	return grid, nil
}

// DefinedNames implements spreadsheet.WorkbookAccessor.
func (a *Accessor) DefinedNames() ([]spreadsheet.NamedFormula, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	defined := a.file.GetDefinedName()
	names := make([]spreadsheet.NamedFormula, 0, len(defined))
	for _, d := range defined {
		names = append(names, spreadsheet.NamedFormula{Name: d.Name, Formula: d.RefersTo})
	}
	return names, nil
}

// Close implements spreadsheet.WorkbookAccessor.
func (a *Accessor) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.file.Close()
}

// SaveAs writes pending in-memory changes to path, used by a caller that
// wrote results back into the excelize.File via WithWrite and now wants
// them persisted.
func (a *Accessor) SaveAs(path string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.file.SaveAs(path)
}

// WithWrite obtains an exclusive lock on the underlying excelize.File and
// runs fn against it, for callers writing computed values back into cells
// (e.g. persisting a Spreadsheet's evaluated outputs before SaveAs).
func (a *Accessor) WithWrite(fn func(*excelize.File) error) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	return fn(a.file)
}
