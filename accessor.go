package spreadsheet

import (
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"
)

// CellSnapshot is a single cell's accessor-reported state: its formula text
// (if any) and/or its literal value, mirroring the Value sum type's
// Number|Text|Bool|Empty variants - Error and Matrix never come from
// storage, only from evaluation.
type CellSnapshot struct {
	Formula    string
	Value      Primitive
	HasFormula bool
	HasValue   bool
}

// NamedFormula is one accessor-reported defined name: a workbook-level name
// bound to a range address (e.g. "Sheet1!$A$1:$B$10"). LoadWorkbook resolves
// these into the named-range table before any formula referencing the name
// is compiled.
type NamedFormula struct {
	Name    string
	Formula string
}

// WorkbookAccessor is the consumed, external-collaborator interface: a
// cursor-based view over one already-open workbook that something outside
// this package (a concrete file format, a remote store) must implement so a
// Spreadsheet can be populated from it. The core engine never depends on a
// concrete accessor; xlsxaccessor is one real implementation, kept outside
// the core package so file-format concerns stay decoupled from parsing.
//
// Opening the underlying resource is deliberately not part of this
// interface - a concrete accessor is constructed already-open (see
// xlsxaccessor.Open); an accessor cannot produce itself before it exists.
// Everything below operates on that already-open resource.
type WorkbookAccessor interface {
	// SheetNames returns every worksheet name in load order. Needed because
	// SetSheet/ActiveSheet expose a single-cursor view; a caller populating
	// every sheet has to learn the full set first.
	SheetNames() ([]string, error)

	// SetSheet moves the accessor's cursor to the named worksheet. Every
	// subsequent GetFormula/GetValue/GetRange/MaxRow/MaxColumn call is
	// relative to this sheet until SetSheet is called again.
	SetSheet(name string) error

	// ActiveSheet reports the name of the worksheet the cursor currently
	// points at.
	ActiveSheet() string

	// GetFormula returns the active sheet's formula text at addr (without
	// the leading '='), and whether that cell actually holds a formula.
	GetFormula(addr string) (string, bool)

	// GetValue returns the active sheet's literal value at addr, and
	// whether that cell holds one. False for cells that are empty or hold
	// only a formula.
	GetValue(addr string) (Primitive, bool)

	// GetRange returns a row-major grid of snapshots for every cell in the
	// inclusive A1 range addr, on the active sheet.
	GetRange(addr string) ([][]CellSnapshot, error)

	// DefinedNames returns every workbook-level named range, resolved to
	// its underlying range formula (e.g. "Sheet1!$A$1:$B$10") - the graph
	// engine never parses a raw name definition itself.
	DefinedNames() ([]NamedFormula, error)

	// MaxRow and MaxColumn report the active sheet's used extent (1-based,
	// inclusive), bounding how far LoadWorkbook needs to scan.
	MaxRow() int
	MaxColumn() int

	// Close releases any underlying resources (open file handles, etc).
	Close() error
}

// LoadWorkbook populates a fresh Spreadsheet from a WorkbookAccessor: every
// sheet is created in order, every cell in its used range is set via
// Spreadsheet.Set so formulas get compiled and dependencies tracked the same
// as if the caller had typed them in directly, and finally every defined
// name is resolved into the named-range table before any formula that
// references it is evaluated.
func LoadWorkbook(acc WorkbookAccessor, notation Notation) (*Spreadsheet, error) {
	sheetNames, err := acc.SheetNames()
	if err != nil {
		return nil, err
	}

	log.Debug().Strs("sheets", sheetNames).Msg("seeding dependency graph from workbook accessor")

	s := NewSpreadsheetWithNotation(notation)
	for _, name := range sheetNames {
		if err := s.AddWorksheet(name); err != nil {
			return nil, err
		}
	}

	totalCells := 0
	for _, name := range sheetNames {
		if err := acc.SetSheet(name); err != nil {
			return nil, fmt.Errorf("loadworkbook: selecting sheet %s: %w", name, err)
		}
		maxRow, maxCol := acc.MaxRow(), acc.MaxColumn()
		for row := uint32(0); row < uint32(maxRow); row++ {
			for col := uint32(0); col < uint32(maxCol); col++ {
				addr := FormatA1(row, col)
				full := name + "!" + addr

				if formula, ok := acc.GetFormula(addr); ok && formula != "" {
					if err := s.Set(full, "="+formula); err != nil {
						return nil, err
					}
					totalCells++
					continue
				}
				if value, ok := acc.GetValue(addr); ok {
					if err := s.Set(full, value); err != nil {
						return nil, err
					}
					totalCells++
				}
			}
		}
	}

	names, err := acc.DefinedNames()
	if err != nil {
		return nil, fmt.Errorf("loadworkbook: reading defined names: %w", err)
	}
	for _, nf := range names {
		rangeAddr, err := s.resolveRangeAddress(nf.Formula)
		if err != nil {
			log.Debug().Str("name", nf.Name).Str("formula", nf.Formula).Err(err).
				Msg("skipping defined name whose target could not be resolved")
			continue
		}
		s.storage.namedRanges.InternNamedRange(nf.Name)
		s.storage.namedRanges.DefineNamedRange(nf.Name, rangeAddr)
	}

	log.Debug().Int("cells", totalCells).Int("names", len(names)).Msg("workbook loaded")

	return s, nil
}

// resolveRangeAddress resolves a "Sheet1!A1:B10" (or bare "A1:B10", or a
// single "A1" treated as a one-cell range) string into a RangeAddress,
// reusing the same single-address resolution Get/Set/Evaluate rely on for
// each endpoint. Excel's absolute-reference dollar signs are stripped first,
// since resolveAddress only understands relative-style A1 text.
func (s *Spreadsheet) resolveRangeAddress(text string) (RangeAddress, error) {
	text = strings.ReplaceAll(text, "$", "")
	sheetPrefix := ""
	if idx := strings.LastIndex(text, "!"); idx >= 0 {
		sheetPrefix = text[:idx+1]
		text = text[idx+1:]
	}

	start, end := text, text
	if idx := strings.Index(text, ":"); idx >= 0 {
		start, end = text[:idx], text[idx+1:]
	}

	startWorksheetID, startRow, startCol, err := s.resolveAddress(sheetPrefix + start)
	if err != nil {
		return RangeAddress{}, err
	}
	_, endRow, endCol, err := s.resolveAddress(sheetPrefix + end)
	if err != nil {
		return RangeAddress{}, err
	}

	return RangeAddress{
		WorksheetID: startWorksheetID,
		StartRow:    min(startRow, endRow),
		StartColumn: min(startCol, endCol),
		EndRow:      max(startRow, endRow),
		EndColumn:   max(startCol, endCol),
	}, nil
}
