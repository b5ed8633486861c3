package spreadsheet

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func cellAt(row, col uint32) CellAddress {
	return CellAddress{WorksheetID: 1, Row: row, Column: col}
}

func TestDependencyEdges(t *testing.T) {
	dg := NewDependencyGraph()
	a, b := cellAt(0, 0), cellAt(1, 0)

	// b depends on a
	dg.AddCellDependency(b, a)

	require.Equal(t, []CellAddress{a}, dg.GetDirectPrecedents(b))
	require.Equal(t, []CellAddress{b}, dg.GetDirectDependents(a))
	require.Equal(t, 2, dg.NodeCount())

	// idempotent: re-adding the same edge changes nothing
	dg.AddCellDependency(b, a)
	require.Len(t, dg.GetDirectDependents(a), 1)
}

func TestMarkDependentsDirtyTransitive(t *testing.T) {
	dg := NewDependencyGraph()
	a, b, c := cellAt(0, 0), cellAt(1, 0), cellAt(2, 0)
	dg.AddCellDependency(b, a)
	dg.AddCellDependency(c, b)

	dg.MarkDependentsDirty(a)

	require.False(t, dg.IsDirty(a), "the changed cell itself is not dirty")
	require.True(t, dg.IsDirty(b))
	require.True(t, dg.IsDirty(c), "invalidation must reach transitive dependents")
}

func TestMarkDependentsDirtyThroughRanges(t *testing.T) {
	dg := NewDependencyGraph()
	observer := cellAt(9, 0)
	watched := RangeAddress{WorksheetID: 1, StartRow: 0, StartColumn: 0, EndRow: 2, EndColumn: 0}
	dg.AddRangeDependency(observer, watched)

	downstream := cellAt(10, 0)
	dg.AddCellDependency(downstream, observer)

	dg.MarkDependentsDirty(cellAt(1, 0))

	require.True(t, dg.IsDirty(observer), "a cell inside a watched range dirties the observer")
	require.True(t, dg.IsDirty(downstream), "and the observer's own dependents")

	dg.ClearAllDirty()
	dg.MarkDependentsDirty(cellAt(5, 0))
	require.False(t, dg.IsDirty(observer), "cells outside the range leave the observer clean")
}

func TestMarkDependentsDirtyCycleSafe(t *testing.T) {
	dg := NewDependencyGraph()
	a, b := cellAt(0, 0), cellAt(0, 1)
	dg.AddCellDependency(a, b)
	dg.AddCellDependency(b, a)

	// must terminate and mark the other member of the cycle
	dg.MarkDependentsDirty(a)
	require.True(t, dg.IsDirty(b))
}

func TestCalculationOrderAndCycles(t *testing.T) {
	dg := NewDependencyGraph()
	a, b, c := cellAt(0, 0), cellAt(1, 0), cellAt(2, 0)
	dg.AddCellDependency(b, a)
	dg.AddCellDependency(c, b)
	dg.SetFormula(b, "=A1")
	dg.SetFormula(c, "=A2")

	order, hasCycle := dg.GetCalculationOrder()
	require.False(t, hasCycle)
	pos := make(map[CellAddress]int, len(order))
	for i, addr := range order {
		pos[addr] = i
	}
	require.Less(t, pos[a], pos[b])
	require.Less(t, pos[b], pos[c])
	require.False(t, dg.HasCycle())

	dg.AddCellDependency(a, c)
	require.True(t, dg.HasCycle())
	_, hasCycle = dg.GetCalculationOrder()
	require.True(t, hasCycle)
}

func TestTrimKeepsOnlyInputOutputPaths(t *testing.T) {
	dg := NewDependencyGraph()
	a, b, c := cellAt(0, 0), cellAt(1, 0), cellAt(2, 0)
	d, e := cellAt(0, 5), cellAt(1, 5)
	dg.AddCellDependency(b, a)
	dg.AddCellDependency(c, b)
	dg.AddCellDependency(e, d)

	dg.Trim([]CellAddress{a}, []CellAddress{c})

	_, aKept := dg.GetNode(a)
	_, bKept := dg.GetNode(b)
	_, cKept := dg.GetNode(c)
	_, dKept := dg.GetNode(d)
	_, eKept := dg.GetNode(e)
	require.True(t, aKept && bKept && cKept, "the input-to-output path survives")
	require.False(t, dKept || eKept, "disconnected chains are removed")
}

func TestValueTreeMarksCircularReferences(t *testing.T) {
	dg := NewDependencyGraph()
	a, b := cellAt(0, 0), cellAt(0, 1)
	dg.AddCellDependency(a, b)
	dg.AddCellDependency(b, a)
	dg.SetFormula(a, "=B1")
	dg.SetFormula(b, "=A1")

	tree := dg.ValueTree(a)
	require.Contains(t, tree, "(circular)")
	require.Contains(t, tree, "=B1")
}

func TestVolatileTracking(t *testing.T) {
	dg := NewDependencyGraph()
	a := cellAt(0, 0)
	dg.MarkVolatile(a)
	require.True(t, dg.IsVolatile(a))

	dg.MarkAllVolatileDirty()
	require.True(t, dg.IsDirty(a))

	dg.UnmarkVolatile(a)
	require.False(t, dg.IsVolatile(a))
}
