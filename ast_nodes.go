package spreadsheet

import (
	"fmt"
	"iter"
	"strings"
)

// ErrorLiteralNode represents an inline error sentinel used directly in
// formula text or inside an array literal, e.g. `=IF(A1>0,1,#N/A)`.
type ErrorLiteralNode struct {
	Code     ErrorCode
	Position NodePosition
}

func (n *ErrorLiteralNode) Eval(s *Spreadsheet) (Primitive, error) {
	return NewSpreadsheetError(n.Code, ErrorMapper[n.Code]), nil
}

func (n *ErrorLiteralNode) GetPosition() NodePosition { return n.Position }

func (n *ErrorLiteralNode) ToString() string { return ErrorMapper[n.Code] }

// ArrayLiteralNode represents a brace-delimited array constant, e.g.
// `{1,2,3;4,5,6}` (two rows of three columns). Rows need not all be the
// same length; Eval does not pad, it evaluates exactly what was written.
type ArrayLiteralNode struct {
	Rows     [][]ASTNode
	Position NodePosition
}

// Matrix is the evaluated form of an array literal: a row-major grid of
// already-computed primitives, returned as the formula result when an array
// literal is used directly rather than spread across a range.
//
// Matrix also implements Range, so an array constant can stand in wherever
// a function accepts a range argument (MATCH over {…}, SUM of {…}, and so
// on) without the function library special-casing it. Its bounds are
// zero-anchored: a worksheetless grid rather than a region of a sheet.
type Matrix struct {
	Rows [][]Primitive
}

func (m *Matrix) width() uint32 {
	w := 0
	for _, row := range m.Rows {
		if len(row) > w {
			w = len(row)
		}
	}
	return uint32(w)
}

// GetBounds reports a zero-anchored bounding box: rows × widest-row.
func (m *Matrix) GetBounds() RangeAddress {
	if len(m.Rows) == 0 {
		return RangeAddress{}
	}
	return RangeAddress{
		EndRow:    uint32(len(m.Rows)) - 1,
		EndColumn: m.width() - 1,
	}
}

// Iterate yields one synthesized cell per grid position, row-major, with
// nil values padding any row shorter than the widest.
func (m *Matrix) Iterate() iter.Seq[*Cell] {
	width := int(m.width())
	return func(yield func(*Cell) bool) {
		for i, row := range m.Rows {
			for j := 0; j < width; j++ {
				var val Primitive
				if j < len(row) {
					val = row[j]
				}
				cell := &Cell{Row: uint32(i), Col: uint32(j), Value: val}
				if !yield(cell) {
					return
				}
			}
		}
	}
}

// IterateValues yields the grid's values row-major, padded like Iterate.
func (m *Matrix) IterateValues() iter.Seq[Primitive] {
	return func(yield func(Primitive) bool) {
		for cell := range m.Iterate() {
			if !yield(cell.Value) {
				return
			}
		}
	}
}

func (n *ArrayLiteralNode) Eval(s *Spreadsheet) (Primitive, error) {
	rows := make([][]Primitive, len(n.Rows))
	for i, row := range n.Rows {
		vals := make([]Primitive, len(row))
		for j, elem := range row {
			val, err := elem.Eval(s)
			if err != nil {
				if spreadsheetErr, ok := err.(*SpreadsheetError); ok {
					vals[j] = spreadsheetErr
					continue
				}
				return nil, err
			}
			vals[j] = val
		}
		rows[i] = vals
	}
	return &Matrix{Rows: rows}, nil
}

func (n *ArrayLiteralNode) GetPosition() NodePosition { return n.Position }

func (n *ArrayLiteralNode) ToString() string {
	rows := make([]string, len(n.Rows))
	for i, row := range n.Rows {
		cells := make([]string, len(row))
		for j, elem := range row {
			cells[j] = elem.ToString()
		}
		rows[i] = strings.Join(cells, ",")
	}
	return fmt.Sprintf("{%s}", strings.Join(rows, ";"))
}

// asRangeAddress resolves the absolute RangeAddress denoted by a reference-
// producing AST node without reading cell contents, for use by the
// reference operators (range, intersect, union). Structural nodes
// (CellRefNode/RangeNode/NamedRangeNode) resolve directly; anything else is
// evaluated and must produce a Range (e.g. the result of INDEX or OFFSET).
func asRangeAddress(s *Spreadsheet, node ASTNode) (RangeAddress, error) {
	switch ref := node.(type) {
	case *CellRefNode:
		addr, err := ref.ResolveAddress(s)
		if err != nil {
			return RangeAddress{}, err
		}
		return RangeAddress{
			WorksheetID: addr.WorksheetID,
			StartRow:    addr.Row,
			StartColumn: addr.Column,
			EndRow:      addr.Row,
			EndColumn:   addr.Column,
		}, nil
	case *RangeNode:
		return ref.ResolveRangeAddress(s)
	case *NamedRangeNode:
		nameID, exists := s.storage.namedRanges.GetNamedRangeID(ref.Name)
		if !exists {
			return RangeAddress{}, NewSpreadsheetError(ErrorCodeName, fmt.Sprintf("Named range '%s' not found", ref.Name))
		}
		rangeAddr, exists := s.storage.namedRanges.GetRangeAddress(nameID)
		if !exists {
			return RangeAddress{}, NewSpreadsheetError(ErrorCodeName, fmt.Sprintf("Named range '%s' is not defined", ref.Name))
		}
		return rangeAddr, nil
	default:
		val, err := node.Eval(s)
		if err != nil {
			if spreadsheetErr, ok := err.(*SpreadsheetError); ok {
				return RangeAddress{}, spreadsheetErr
			}
			return RangeAddress{}, NewSpreadsheetError(ErrorCodeRef, err.Error())
		}
		if rng, ok := val.(Range); ok {
			return rng.GetBounds(), nil
		}
		return RangeAddress{}, NewSpreadsheetError(ErrorCodeValue, "operand does not resolve to a reference")
	}
}

// RangeExprNode implements the ':' reference operator between two operands
// that the lexer did not already merge into a single TokenRange (the common
// A1:B2 shape is merged at tokenize time; this node covers the remainder,
// e.g. a named range combined with a cell, or two function-call results).
type RangeExprNode struct {
	Left, Right ASTNode
	Position    NodePosition
}

func (n *RangeExprNode) Eval(s *Spreadsheet) (Primitive, error) {
	left, err := asRangeAddress(s, n.Left)
	if err != nil {
		return errorOrNil(err)
	}
	right, err := asRangeAddress(s, n.Right)
	if err != nil {
		return errorOrNil(err)
	}
	if left.WorksheetID != right.WorksheetID {
		return nil, NewSpreadsheetError(ErrorCodeRef, "range operator requires operands on the same worksheet")
	}
	bounds := RangeUnion(left, right)
	worksheet, exists := s.storage.worksheets.GetWorksheet(bounds.WorksheetID)
	if !exists {
		return nil, NewSpreadsheetError(ErrorCodeRef, "Worksheet not found")
	}
	return &CellRange{
		worksheetID: bounds.WorksheetID,
		startRow:    bounds.StartRow,
		startCol:    bounds.StartColumn,
		endRow:      bounds.EndRow,
		endCol:      bounds.EndColumn,
		worksheet:   worksheet,
		storage:     s.storage,
	}, nil
}

func (n *RangeExprNode) GetPosition() NodePosition { return n.Position }

func (n *RangeExprNode) ToString() string {
	return fmt.Sprintf("%s:%s", n.Left.ToString(), n.Right.ToString())
}

// IntersectNode implements the ' ' (whitespace) reference operator: the
// rectangular overlap of two ranges on the same worksheet. Excel returns
// #NULL! when the ranges don't overlap; so do we.
type IntersectNode struct {
	Left, Right ASTNode
	Position    NodePosition
}

func (n *IntersectNode) Eval(s *Spreadsheet) (Primitive, error) {
	left, err := asRangeAddress(s, n.Left)
	if err != nil {
		return errorOrNil(err)
	}
	right, err := asRangeAddress(s, n.Right)
	if err != nil {
		return errorOrNil(err)
	}
	overlap, ok := RangesIntersect(left, right)
	if !ok {
		return NewSpreadsheetError(ErrorCodeNull, "Ranges do not intersect"), nil
	}
	worksheet, exists := s.storage.worksheets.GetWorksheet(overlap.WorksheetID)
	if !exists {
		return nil, NewSpreadsheetError(ErrorCodeRef, "Worksheet not found")
	}
	return &CellRange{
		worksheetID: overlap.WorksheetID,
		startRow:    overlap.StartRow,
		startCol:    overlap.StartColumn,
		endRow:      overlap.EndRow,
		endCol:      overlap.EndColumn,
		worksheet:   worksheet,
		storage:     s.storage,
	}, nil
}

func (n *IntersectNode) GetPosition() NodePosition { return n.Position }

func (n *IntersectNode) ToString() string {
	return fmt.Sprintf("(%s %s)", n.Left.ToString(), n.Right.ToString())
}

// UnionNode implements the ',' reference operator outside a function's
// argument list: the set union of two ranges, possibly non-rectangular.
type UnionNode struct {
	Left, Right ASTNode
	Position    NodePosition
}

func (n *UnionNode) Eval(s *Spreadsheet) (Primitive, error) {
	left, err := asRangeAddress(s, n.Left)
	if err != nil {
		return errorOrNil(err)
	}
	right, err := asRangeAddress(s, n.Right)
	if err != nil {
		return errorOrNil(err)
	}
	if left.WorksheetID != right.WorksheetID {
		return nil, NewSpreadsheetError(ErrorCodeRef, "Union requires operands on the same worksheet")
	}
	worksheet, exists := s.storage.worksheets.GetWorksheet(left.WorksheetID)
	if !exists {
		return nil, NewSpreadsheetError(ErrorCodeRef, "Worksheet not found")
	}
	return &AddressSetRange{
		worksheetID: left.WorksheetID,
		parts:       []RangeAddress{left, right},
		worksheet:   worksheet,
		storage:     s.storage,
	}, nil
}

func (n *UnionNode) GetPosition() NodePosition { return n.Position }

func (n *UnionNode) ToString() string {
	return fmt.Sprintf("(%s,%s)", n.Left.ToString(), n.Right.ToString())
}

// rangeFromBounds materializes a live CellRange over bounds, for callers
// that resolved a reference structurally and need a Range value to pass on.
func (s *Spreadsheet) rangeFromBounds(bounds RangeAddress) (Primitive, error) {
	worksheet, exists := s.storage.worksheets.GetWorksheet(bounds.WorksheetID)
	if !exists {
		return nil, NewSpreadsheetError(ErrorCodeRef, "Worksheet not found")
	}
	return &CellRange{
		worksheetID: bounds.WorksheetID,
		startRow:    bounds.StartRow,
		startCol:    bounds.StartColumn,
		endRow:      bounds.EndRow,
		endCol:      bounds.EndColumn,
		worksheet:   worksheet,
		storage:     s.storage,
	}, nil
}

// errorOrNil turns an error already carrying a *SpreadsheetError into a
// (value, nil) pair so it flows through Eval chains as a value like the
// other nodes in this file, or passes through as a real error otherwise.
func errorOrNil(err error) (Primitive, error) {
	if spreadsheetErr, ok := err.(*SpreadsheetError); ok {
		return spreadsheetErr, nil
	}
	return nil, err
}
