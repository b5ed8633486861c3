package spreadsheet

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"sort"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// serializedDocumentVersion is bumped whenever the on-disk shape of
// SerializedDocument changes incompatibly.
const serializedDocumentVersion = 1

// SerializedCell is one cellmap entry: its address, formula (if any), and
// the currently cached value (if any). A cell with neither is a pure input
// that has never been set - it is omitted from the document entirely.
type SerializedCell struct {
	Address string    `json:"address"`
	Formula string    `json:"formula,omitempty"`
	Value   Primitive `json:"value,omitempty"`
}

// SerializedEdge is one dependency-graph edge: From depends on To, i.e. To
// must be evaluated before From (mirrors DependencyGraph.AddCellDependency's
// (from, to) argument order).
type SerializedEdge struct {
	From string `json:"from"`
	To   string `json:"to"`
}

// SerializedDocument is the self-describing key-value document a Compiled
// Spreadsheet serializes to: enough to reconstruct the cellmap and
// dependency edges, plus compile-time captured output values for Validate
// to compare against on a later load.
type SerializedDocument struct {
	Version        int                  `json:"version"`
	CompileID      string               `json:"compile_id"`
	SourceDigest   string               `json:"source_digest"`
	Notation       Notation             `json:"notation"`
	Cells          []SerializedCell     `json:"cells"`
	Edges          []SerializedEdge     `json:"edges"`
	CapturedValues map[string]Primitive `json:"captured_values,omitempty"`
}

// Serialize writes a self-describing snapshot of the spreadsheet to path:
// every cell's address/formula/value, every dependency edge, and - if
// outputs is non-empty - the current evaluated value of each output address,
// captured for later comparison by Validate. CompileID is a fresh uuid per
// call so two serializations of the same workbook can still be told apart
// (e.g. by a cache or a CI artifact store).
func (s *Spreadsheet) Serialize(ctx context.Context, path string, outputs []string) error {
	doc := SerializedDocument{
		Version:   serializedDocumentVersion,
		CompileID: uuid.NewString(),
		Notation:  s.notation,
	}

	cells, err := s.collectCellmap()
	if err != nil {
		return fmt.Errorf("serialize: collecting cellmap: %w", err)
	}
	doc.Cells = cells
	doc.SourceDigest = digestCells(cells)
	doc.Edges = s.collectEdges()

	if len(outputs) > 0 {
		captured := make(map[string]Primitive, len(outputs))
		for _, addr := range outputs {
			val, evalErr := s.Evaluate(ctx, addr)
			if evalErr != nil {
				return fmt.Errorf("serialize: evaluating output %s: %w", addr, evalErr)
			}
			captured[addr] = val
		}
		doc.CapturedValues = captured
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("serialize: creating %s: %w", path, err)
	}
	defer f.Close()

	enc := json.NewEncoder(f)
	enc.SetIndent("", "  ")
	if err := enc.Encode(doc); err != nil {
		return fmt.Errorf("serialize: encoding %s: %w", path, err)
	}

	log.Info().
		Str("compile_id", doc.CompileID).
		Str("path", path).
		Int("cells", len(doc.Cells)).
		Int("edges", len(doc.Edges)).
		Int("captured_outputs", len(doc.CapturedValues)).
		Msg("spreadsheet serialized")

	return nil
}

// Deserialize loads a document written by Serialize into a fresh Spreadsheet,
// replaying every formula cell through Set so it recompiles and re-registers
// its dependency edges exactly as if typed in directly, then sets every
// non-formula value cell. The edges list itself is not trusted for
// reconstruction - it is informational only, since Set rebuilds the true
// edges from each formula's plan; a document whose edges disagree with what
// recompilation produces signals a stale or hand-edited snapshot.
func Deserialize(path string, notation Notation) (*Spreadsheet, *SerializedDocument, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, fmt.Errorf("deserialize: opening %s: %w", path, err)
	}
	defer f.Close()

	var doc SerializedDocument
	if err := json.NewDecoder(f).Decode(&doc); err != nil {
		return nil, nil, fmt.Errorf("deserialize: decoding %s: %w", path, err)
	}
	if doc.Version != serializedDocumentVersion {
		return nil, nil, fmt.Errorf("deserialize: unsupported document version %d (want %d)", doc.Version, serializedDocumentVersion)
	}

	s := NewSpreadsheetWithNotation(notation)

	sheetNames := map[string]bool{}
	for _, c := range doc.Cells {
		sheet, _, _, splitErr := splitSheetAddress(c.Address)
		if splitErr == nil && sheet != "" && !sheetNames[sheet] {
			sheetNames[sheet] = true
			if err := s.AddWorksheet(sheet); err != nil {
				return nil, nil, fmt.Errorf("deserialize: adding worksheet %s: %w", sheet, err)
			}
		}
	}

	// formula cells first, so their dependency edges exist before any
	// plain-value cell is set and triggers dirty propagation.
	for _, c := range doc.Cells {
		if c.Formula == "" {
			continue
		}
		if err := s.Set(c.Address, c.Formula); err != nil {
			return nil, nil, fmt.Errorf("deserialize: setting formula at %s: %w", c.Address, err)
		}
	}
	for _, c := range doc.Cells {
		if c.Formula != "" {
			continue
		}
		if err := s.Set(c.Address, c.Value); err != nil {
			return nil, nil, fmt.Errorf("deserialize: setting value at %s: %w", c.Address, err)
		}
	}

	log.Info().
		Str("compile_id", doc.CompileID).
		Str("path", path).
		Int("cells", len(doc.Cells)).
		Msg("spreadsheet deserialized")

	return s, &doc, nil
}

// ValidateDocument compares a spreadsheet's current evaluator results against
// the compile-time values captured in a previously serialized document,
// returning any mismatches keyed by address. It is Validate's counterpart
// for checking freshness across a serialize/deserialize round trip rather
// than against a caller-supplied expectation map.
func (s *Spreadsheet) ValidateDocument(ctx context.Context, doc *SerializedDocument) (map[string]ValidationMismatch, error) {
	return s.Validate(ctx, doc.CapturedValues)
}

// collectCellmap walks every defined worksheet's non-empty cells (formula or
// value) and returns them as address-qualified SerializedCell entries,
// sorted for deterministic output.
func (s *Spreadsheet) collectCellmap() ([]SerializedCell, error) {
	var cells []SerializedCell
	for name, ws := range s.storage.worksheets.GetAllDefinedWorksheets() {
		for cell := range ws.AllCells() {
			addr := fmt.Sprintf("%s!%s", name, FormatA1(cell.Row, cell.Col))
			cells = append(cells, SerializedCell{
				Address: addr,
				Formula: cell.Formula,
				Value:   cell.Value,
			})
		}
	}
	sort.Slice(cells, func(i, j int) bool { return cells[i].Address < cells[j].Address })
	return cells, nil
}

// collectEdges flattens the dependency graph's cell-to-cell precedents into
// a sorted, address-qualified edge list.
func (s *Spreadsheet) collectEdges() []SerializedEdge {
	var edges []SerializedEdge
	for addr, node := range s.storage.dependencyGraph.nodes {
		fromName, _ := s.storage.worksheets.GetWorksheetName(addr.WorksheetID)
		fromAddr := fmt.Sprintf("%s!%s", fromName, FormatA1(addr.Row, addr.Column))
		for precedent := range node.CellPrecedents {
			toName, _ := s.storage.worksheets.GetWorksheetName(precedent.WorksheetID)
			toAddr := fmt.Sprintf("%s!%s", toName, FormatA1(precedent.Row, precedent.Column))
			edges = append(edges, SerializedEdge{From: fromAddr, To: toAddr})
		}
	}
	sort.Slice(edges, func(i, j int) bool {
		if edges[i].From != edges[j].From {
			return edges[i].From < edges[j].From
		}
		return edges[i].To < edges[j].To
	})
	return edges
}

// digestCells computes a content digest over the cellmap's addresses,
// formulas, and values, used as the serialized document's source-workbook
// digest for freshness checks - two documents with the same digest were
// compiled from identical cell content, regardless of CompileID.
func digestCells(cells []SerializedCell) string {
	h := sha256.New()
	for _, c := range cells {
		fmt.Fprintf(h, "%s\x00%s\x00%v\x00", c.Address, c.Formula, c.Value)
	}
	return hex.EncodeToString(h.Sum(nil))
}

// splitSheetAddress extracts the sheet-name prefix of a "Sheet!A1" style
// address, used during Deserialize to discover which worksheets to create
// before replaying cells.
func splitSheetAddress(address string) (sheet, rest string, ok bool, err error) {
	for i := len(address) - 1; i >= 0; i-- {
		if address[i] == '!' {
			return address[:i], address[i+1:], true, nil
		}
	}
	return "", address, false, nil
}
