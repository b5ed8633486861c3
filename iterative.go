package spreadsheet

import "math"

// IterativeSettings configures non-strict circular reference evaluation:
// Excel's "enable iterative calculation" workbook option. Without it, a
// formula that participates in a cycle is a #REF! error (Calculate's
// default, strict behavior); with it, the cycle is relaxed by repeated
// sweeps of the sheet until the values it touches stop moving.
type IterativeSettings struct {
	MaxIterations int
	Epsilon       float64
}

// EnableIterativeCalculation turns on non-strict circular reference
// evaluation. Once enabled, calculateCell no longer treats revisiting a
// cell already on the calculation stack as an error: it leaves that cell's
// current value in place (zero/empty on the very first sweep) and lets the
// caller re-sweep with CalculateIterative until the cycle's values settle.
func (s *Spreadsheet) EnableIterativeCalculation(maxIterations int, epsilon float64) {
	if maxIterations <= 0 {
		maxIterations = 100
	}
	if epsilon <= 0 {
		epsilon = 0.001
	}
	s.iterative = &IterativeSettings{MaxIterations: maxIterations, Epsilon: epsilon}
}

// DisableIterativeCalculation restores strict behavior: the next circular
// reference Calculate encounters becomes a #REF! error again.
func (s *Spreadsheet) DisableIterativeCalculation() {
	s.iterative = nil
}

// IsIterativeCalculationEnabled reports whether non-strict evaluation is on.
func (s *Spreadsheet) IsIterativeCalculationEnabled() bool {
	return s.iterative != nil
}

// CalculateIterative recalculates the whole sheet repeatedly, the same way
// a single Calculate pass does, until every formula cell's value changes by
// less than the configured epsilon between passes or MaxIterations passes
// have run. Cells outside any cycle converge on the very first pass exactly
// as they would under plain Calculate; only cells genuinely part of a
// circular reference keep moving across passes. Requires
// EnableIterativeCalculation to have been called; otherwise it's equivalent
// to a single Calculate.
func (s *Spreadsheet) CalculateIterative() error {
	if s.iterative == nil {
		return s.Calculate()
	}

	var previous map[CellAddress]Primitive
	for iteration := 0; iteration < s.iterative.MaxIterations; iteration++ {
		for addr, node := range s.storage.dependencyGraph.nodes {
			if node.Formula != "" {
				s.storage.dependencyGraph.MarkDirty(addr)
			}
		}
		if err := s.Calculate(); err != nil {
			return err
		}

		current := s.snapshotFormulaValues()
		if previous != nil && s.converged(previous, current) {
			return nil
		}
		previous = current
	}
	return nil
}

func (s *Spreadsheet) snapshotFormulaValues() map[CellAddress]Primitive {
	snap := make(map[CellAddress]Primitive, len(s.storage.dependencyGraph.nodes))
	for addr, node := range s.storage.dependencyGraph.nodes {
		if node.Formula != "" {
			snap[addr] = node.Value
		}
	}
	return snap
}

// converged reports whether every cell present in both snapshots settled:
// numeric values within epsilon of each other, everything else unchanged.
// A cell missing from previous (newly created between passes) is treated
// as not yet converged.
func (s *Spreadsheet) converged(previous, current map[CellAddress]Primitive) bool {
	for addr, curVal := range current {
		prevVal, ok := previous[addr]
		if !ok {
			return false
		}
		curNum, curIsNum := toNumber(curVal)
		prevNum, prevIsNum := toNumber(prevVal)
		if curIsNum && prevIsNum {
			if math.Abs(curNum-prevNum) > s.iterative.Epsilon {
				return false
			}
			continue
		}
		if comparePrimitives(curVal, prevVal) != 0 {
			return false
		}
	}
	return true
}
