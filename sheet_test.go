package spreadsheet

import (
	"context"
	"math"
	"strings"
	"testing"
)

type SpreadsheetTestCase struct {
	t           *testing.T
	name        string
	spreadsheet *Spreadsheet
	err         error
	skipped     bool
}

func NewSpreadsheetTestCase(t *testing.T, name string) *SpreadsheetTestCase {
	tc := &SpreadsheetTestCase{
		t:           t,
		name:        name,
		spreadsheet: NewSpreadsheet(),
	}
	return tc.AddWorksheet("Sheet1")
}

// NewSpreadsheetTestCaseWithNotation builds a workbook fixed to the given
// address grammar, for scenarios that exercise the R1C1 side.
func NewSpreadsheetTestCaseWithNotation(t *testing.T, name string, notation Notation) *SpreadsheetTestCase {
	tc := &SpreadsheetTestCase{
		t:           t,
		name:        name,
		spreadsheet: NewSpreadsheetWithNotation(notation),
	}
	return tc.AddWorksheet("Sheet1")
}

func (tc *SpreadsheetTestCase) Skip(reason string) *SpreadsheetTestCase {
	if !tc.skipped {
		tc.t.Skipf("%s: %s", tc.name, reason)
		tc.skipped = true
	}
	return tc
}

func (tc *SpreadsheetTestCase) Set(address string, value Primitive) *SpreadsheetTestCase {
	if tc.skipped || tc.err != nil {
		return tc
	}
	tc.err = tc.spreadsheet.Set(address, value)
	if tc.err != nil {
		tc.t.Errorf("%s: Set(%s) failed: %v", tc.name, address, tc.err)
	}
	return tc
}

func (tc *SpreadsheetTestCase) Remove(address string) *SpreadsheetTestCase {
	if tc.skipped || tc.err != nil {
		return tc
	}
	tc.err = tc.spreadsheet.Remove(address)
	if tc.err != nil {
		tc.t.Errorf("%s: Remove(%s) failed: %v", tc.name, address, tc.err)
	}
	return tc
}

func (tc *SpreadsheetTestCase) AddWorksheet(name string) *SpreadsheetTestCase {
	if tc.skipped || tc.err != nil {
		return tc
	}
	tc.err = tc.spreadsheet.AddWorksheet(name)
	return tc
}

func (tc *SpreadsheetTestCase) RemoveWorksheet(name string) *SpreadsheetTestCase {
	if tc.skipped || tc.err != nil {
		return tc
	}
	tc.err = tc.spreadsheet.RemoveWorksheet(name)
	return tc
}

func (tc *SpreadsheetTestCase) DefineNamedRange(name, rangeText string) *SpreadsheetTestCase {
	if tc.skipped || tc.err != nil {
		return tc
	}
	tc.err = tc.spreadsheet.DefineNamedRange(name, rangeText)
	if tc.err != nil {
		tc.t.Errorf("%s: DefineNamedRange(%s) failed: %v", tc.name, name, tc.err)
	}
	return tc
}

func (tc *SpreadsheetTestCase) Run() *SpreadsheetTestCase {
	if tc.skipped || tc.err != nil {
		return tc
	}
	tc.err = tc.spreadsheet.Calculate()
	if tc.err != nil {
		tc.t.Errorf("%s: Calculate() failed: %v", tc.name, tc.err)
	}
	return tc
}

func (tc *SpreadsheetTestCase) RunAndAssertNoError() *SpreadsheetTestCase {
	return tc.Run()
}

func (tc *SpreadsheetTestCase) AssertCellEq(address string, expected Primitive) *SpreadsheetTestCase {
	if tc.skipped || tc.err != nil {
		return tc
	}
	actual, err := tc.spreadsheet.Get(address)
	if err != nil {
		tc.t.Errorf("%s: Get(%s) failed: %v", tc.name, address, err)
		return tc
	}

	switch exp := expected.(type) {
	case float64:
		if act, ok := actual.(float64); ok {
			if math.Abs(act-exp) > 1e-10 {
				tc.t.Errorf("%s: Cell %s = %v, want %v", tc.name, address, actual, expected)
			}
		} else {
			tc.t.Errorf("%s: Cell %s = %v (%T), want %v (float64)", tc.name, address, actual, actual, expected)
		}
	case int:
		if act, ok := actual.(float64); ok {
			if math.Abs(act-float64(exp)) > 1e-10 {
				tc.t.Errorf("%s: Cell %s = %v, want %v", tc.name, address, actual, expected)
			}
		} else {
			tc.t.Errorf("%s: Cell %s = %v (%T), want %v (int)", tc.name, address, actual, actual, expected)
		}
	case nil:
		if actual != nil {
			tc.t.Errorf("%s: Cell %s = %v, want nil", tc.name, address, actual)
		}
	case ErrorCode:
		if spreadsheetErr, ok := actual.(*SpreadsheetError); ok {
			if spreadsheetErr.ErrorCode != exp {
				tc.t.Errorf("%s: Cell %s has error %v, want %v", tc.name, address, spreadsheetErr.ErrorCode, exp)
			}
		} else {
			tc.t.Errorf("%s: Cell %s = %v, want error %v", tc.name, address, actual, exp)
		}
	default:
		if actual != expected {
			tc.t.Errorf("%s: Cell %s = %v, want %v", tc.name, address, actual, expected)
		}
	}
	return tc
}

// AssertCellNear compares a numeric cell within tolerance, for results of
// regression fits, date fractions, and root finding where the last few
// float digits are not part of the contract.
func (tc *SpreadsheetTestCase) AssertCellNear(address string, expected, tolerance float64) *SpreadsheetTestCase {
	if tc.skipped || tc.err != nil {
		return tc
	}
	actual, err := tc.spreadsheet.Get(address)
	if err != nil {
		tc.t.Errorf("%s: Get(%s) failed: %v", tc.name, address, err)
		return tc
	}
	act, ok := actual.(float64)
	if !ok {
		tc.t.Errorf("%s: Cell %s = %v (%T), want a number near %v", tc.name, address, actual, actual, expected)
		return tc
	}
	if math.Abs(act-expected) > tolerance {
		tc.t.Errorf("%s: Cell %s = %v, want within %v of %v", tc.name, address, act, tolerance, expected)
	}
	return tc
}

func (tc *SpreadsheetTestCase) AssertCellEmpty(address string) *SpreadsheetTestCase {
	if tc.skipped || tc.err != nil {
		return tc
	}
	actual, err := tc.spreadsheet.Get(address)
	if err != nil {
		tc.t.Errorf("%s: Get(%s) failed: %v", tc.name, address, err)
		return tc
	}
	if actual != nil {
		tc.t.Errorf("%s: Cell %s = %v, want nil", tc.name, address, actual)
	}
	return tc
}

func (tc *SpreadsheetTestCase) AssertCellErr(address string, errorCode ErrorCode) *SpreadsheetTestCase {
	if tc.skipped || tc.err != nil {
		return tc
	}
	actual, err := tc.spreadsheet.Get(address)
	if err != nil {
		tc.t.Errorf("%s: Get(%s) failed: %v", tc.name, address, err)
		return tc
	}
	if spreadsheetErr, ok := actual.(*SpreadsheetError); ok {
		if spreadsheetErr.ErrorCode != errorCode {
			tc.t.Errorf("%s: Cell %s has error %v, want %v", tc.name, address, spreadsheetErr.ErrorCode, errorCode)
		}
	} else {
		tc.t.Errorf("%s: Cell %s = %v, want error %v", tc.name, address, actual, errorCode)
	}
	return tc
}

func (tc *SpreadsheetTestCase) AssertCellFn(address string, fn func(value Primitive, t *testing.T)) *SpreadsheetTestCase {
	if tc.skipped {
		return tc
	}
	actual, err := tc.spreadsheet.Get(address)
	if err != nil {
		tc.t.Errorf("%s: Get(%s) failed: %v", tc.name, address, err)
		return tc
	}
	fn(actual, tc.t)
	return tc
}

func (tc *SpreadsheetTestCase) ExpectAppError(expectedCode AppErrorCode) *SpreadsheetTestCase {
	if tc.skipped {
		return tc
	}
	if tc.err == nil {
		tc.t.Errorf("%s: Expected error with code %v, but got no error", tc.name, expectedCode)
		return tc
	}
	if appErr, ok := tc.err.(*AppError); ok {
		if appErr.Code != expectedCode {
			tc.t.Errorf("%s: Got error code %v, want %v", tc.name, appErr.Code, expectedCode)
		}
	} else {
		tc.t.Errorf("%s: Got error %v, want AppError with code %v", tc.name, tc.err, expectedCode)
	}
	tc.err = nil
	return tc
}

func (tc *SpreadsheetTestCase) End() {
}

func TestFormulaCompilation(t *testing.T) {
	t.Run("ValidFormulas", func(t *testing.T) {
		NewSpreadsheetTestCase(t, "Arithmetic and precedence").
			Set("Sheet1!A1", "=1+2*3^2").
			Set("Sheet1!A2", "=2^3^2").
			Set("Sheet1!A3", "=-3^2").
			Set("Sheet1!A4", "=50%").
			Set("Sheet1!A5", "=10%+1").
			Set("Sheet1!A6", "=1++2").
			RunAndAssertNoError().
			AssertCellEq("Sheet1!A1", 19.0).
			AssertCellEq("Sheet1!A2", 64.0).
			AssertCellEq("Sheet1!A3", 9.0).
			AssertCellEq("Sheet1!A4", 0.5).
			AssertCellEq("Sheet1!A5", 1.1).
			AssertCellEq("Sheet1!A6", 3.0).
			End()

		NewSpreadsheetTestCase(t, "Absolute and mixed references").
			Set("Sheet1!A1", 7.0).
			Set("Sheet1!B1", "=$A$1+A$1+$A1").
			RunAndAssertNoError().
			AssertCellEq("Sheet1!B1", 21.0).
			End()

		NewSpreadsheetTestCase(t, "String concat with doubled-quote escape").
			Set("Sheet1!A1", `="he said ""hi"""`).
			Set("Sheet1!A2", `="a"&1&TRUE`).
			RunAndAssertNoError().
			AssertCellEq("Sheet1!A1", `he said "hi"`).
			AssertCellEq("Sheet1!A2", "a1true").
			End()

		NewSpreadsheetTestCase(t, "Cross-worksheet reference").
			AddWorksheet("Data").
			Set("Data!A1", 42.0).
			Set("Sheet1!A1", "=Data!A1*2").
			RunAndAssertNoError().
			AssertCellEq("Sheet1!A1", 84.0).
			End()
	})

	t.Run("InvalidFormulas", func(t *testing.T) {
		NewSpreadsheetTestCase(t, "Empty formula").
			Set("Sheet1!A1", "=").
			Run().
			AssertCellErr("Sheet1!A1", ErrorCodeValue).
			End()

		NewSpreadsheetTestCase(t, "Unclosed function").
			Set("Sheet1!A1", "=SUM(").
			Run().
			AssertCellErr("Sheet1!A1", ErrorCodeValue).
			End()

		NewSpreadsheetTestCase(t, "Trailing operator").
			Set("Sheet1!A1", "=1+").
			Run().
			AssertCellErr("Sheet1!A1", ErrorCodeValue).
			End()

		NewSpreadsheetTestCase(t, "Unterminated string").
			Set("Sheet1!A1", `="hello`).
			Run().
			AssertCellErr("Sheet1!A1", ErrorCodeValue).
			End()

		NewSpreadsheetTestCase(t, "Unbalanced braces").
			Set("Sheet1!A1", "={1,2").
			Run().
			AssertCellErr("Sheet1!A1", ErrorCodeValue).
			End()
	})
}

func TestOperatorSemantics(t *testing.T) {
	NewSpreadsheetTestCase(t, "Comparisons").
		Set("Sheet1!A1", 3.0).
		Set("Sheet1!B1", "=A1>2").
		Set("Sheet1!B2", "=A1<=3").
		Set("Sheet1!B3", `="a"<>"b"`).
		Set("Sheet1!B4", "=A1=3").
		RunAndAssertNoError().
		AssertCellEq("Sheet1!B1", true).
		AssertCellEq("Sheet1!B2", true).
		AssertCellEq("Sheet1!B3", true).
		AssertCellEq("Sheet1!B4", true).
		End()

	// a blank cell participating in a numeric comparison behaves as zero
	NewSpreadsheetTestCase(t, "Blank operand compares as zero").
		Set("Sheet1!B1", "=A1<5").
		Set("Sheet1!B2", "=A1=0").
		RunAndAssertNoError().
		AssertCellEq("Sheet1!B1", true).
		AssertCellEq("Sheet1!B2", true).
		End()

	NewSpreadsheetTestCase(t, "Division by zero").
		Set("Sheet1!A1", "=1/0").
		Run().
		AssertCellErr("Sheet1!A1", ErrorCodeDiv0).
		End()
}

func TestReferenceOperators(t *testing.T) {
	NewSpreadsheetTestCase(t, "Intersect overlap").
		Set("Sheet1!A1", 1.0).Set("Sheet1!B1", 2.0).
		Set("Sheet1!A2", 3.0).Set("Sheet1!B2", 4.0).Set("Sheet1!C2", 5.0).
		Set("Sheet1!B3", 6.0).Set("Sheet1!C3", 7.0).
		Set("Sheet1!E1", "=SUM(A1:B2 B2:C3)").
		RunAndAssertNoError().
		AssertCellEq("Sheet1!E1", 4.0).
		End()

	NewSpreadsheetTestCase(t, "Intersect with no overlap is #NULL!").
		Set("Sheet1!A1", 1.0).
		Set("Sheet1!E1", "=A1:A2 C1:C2").
		Run().
		AssertCellErr("Sheet1!E1", ErrorCodeNull).
		End()

	// the union operator concatenates; an overlapping cell counts per part
	NewSpreadsheetTestCase(t, "Union preserves duplicates").
		Set("Sheet1!A1", 1.0).
		Set("Sheet1!A2", 2.0).
		Set("Sheet1!A3", 3.0).
		Set("Sheet1!E1", "=SUM((A1:A2,A2:A3))").
		RunAndAssertNoError().
		AssertCellEq("Sheet1!E1", 8.0).
		End()

	NewSpreadsheetTestCase(t, "Range operator joins two references").
		Set("Sheet1!A1", 1.0).Set("Sheet1!A2", 2.0).
		Set("Sheet1!B1", 3.0).Set("Sheet1!B2", 4.0).Set("Sheet1!B3", 5.0).
		Set("Sheet1!E1", "=SUM((A1:A2):B3)").
		RunAndAssertNoError().
		AssertCellEq("Sheet1!E1", 15.0).
		End()

	// unparenthesized mixes reduce left to right on one shared precedence
	// level: the intersect below applies before the trailing colon, so the
	// sum covers B3:B5, not just the intersection cell
	NewSpreadsheetTestCase(t, "Reference operators reduce in arrival order").
		Set("Sheet1!B2", 1.0).Set("Sheet1!B3", 2.0).
		Set("Sheet1!B4", 3.0).Set("Sheet1!B5", 4.0).
		Set("Sheet1!E1", "=SUM(B2:B3 B3:B4:B5)").
		RunAndAssertNoError().
		AssertCellEq("Sheet1!E1", 9.0).
		End()

	NewSpreadsheetTestCase(t, "Union applies after an earlier intersect").
		Set("Sheet1!A1", 1.0).Set("Sheet1!A2", 2.0).
		Set("Sheet1!A3", 3.0).Set("Sheet1!A4", 4.0).
		Set("Sheet1!E1", "=SUM((A1:A2 A2:A3,A3:A4))").
		RunAndAssertNoError().
		AssertCellEq("Sheet1!E1", 9.0).
		End()

	NewSpreadsheetTestCase(t, "Whole-column and whole-row ranges").
		Set("Sheet1!B1", 1.0).
		Set("Sheet1!B2", 2.0).
		Set("Sheet1!B3", 3.0).
		Set("Sheet1!A2", 10.0).
		Set("Sheet1!D1", "=SUM(B:B)").
		Set("Sheet1!D5", "=SUM(2:2)").
		RunAndAssertNoError().
		AssertCellEq("Sheet1!D1", 6.0).
		AssertCellEq("Sheet1!D5", 12.0).
		End()
}

func TestArrayLiterals(t *testing.T) {
	NewSpreadsheetTestCase(t, "Aggregation over an array constant").
		Set("Sheet1!A1", "=SUM({1,2;3,4})").
		Set("Sheet1!A2", "=MAX({5,1,9})").
		RunAndAssertNoError().
		AssertCellEq("Sheet1!A1", 10.0).
		AssertCellEq("Sheet1!A2", 9.0).
		End()

	// a scalar never equals a matrix, and the error element stays inert
	// inside the constant because the comparison doesn't evaluate it
	NewSpreadsheetTestCase(t, "Scalar-vs-matrix comparison").
		Set("Sheet1!A1", `=IF("a"={"a","b";"c",#N/A;-1,TRUE},"yes","no")&"  more ""test"" text"`).
		RunAndAssertNoError().
		AssertCellEq("Sheet1!A1", `no  more "test" text`).
		End()

	NewSpreadsheetTestCase(t, "Wildcard MATCH over a mixed array").
		Set("Sheet1!A1", `=MATCH("Th*t",{"xyzzy",1,FALSE,#DIV/0!,"That","TheEnd"},0)`).
		RunAndAssertNoError().
		AssertCellEq("Sheet1!A1", 5.0).
		End()
}

func TestAggregationFunctions(t *testing.T) {
	NewSpreadsheetTestCase(t, "SUM over two ranges").
		Set("Sheet1!B5", 1.0).Set("Sheet1!B6", 2.0).Set("Sheet1!B7", 3.0).
		Set("Sheet1!D5", 10.0).Set("Sheet1!D6", 20.0).
		Set("Sheet1!F1", "=SUM(B5:B7,D5:D6)").
		RunAndAssertNoError().
		AssertCellEq("Sheet1!F1", 36.0).
		End()

	NewSpreadsheetTestCase(t, "AVERAGE COUNT MEDIAN MODE").
		Set("Sheet1!A1", 2.0).Set("Sheet1!A2", 4.0).Set("Sheet1!A3", 4.0).Set("Sheet1!A4", 6.0).
		Set("Sheet1!B1", "=AVERAGE(A1:A4)").
		Set("Sheet1!B2", "=COUNT(A1:A4)").
		Set("Sheet1!B3", "=MEDIAN(A1:A4)").
		Set("Sheet1!B4", "=MODE(A1:A4)").
		Set("Sheet1!B5", "=MIN(A1:A4)").
		Set("Sheet1!B6", "=MAX(A1:A4)").
		RunAndAssertNoError().
		AssertCellEq("Sheet1!B1", 4.0).
		AssertCellEq("Sheet1!B2", 4.0).
		AssertCellEq("Sheet1!B3", 4.0).
		AssertCellEq("Sheet1!B4", 4.0).
		AssertCellEq("Sheet1!B5", 2.0).
		AssertCellEq("Sheet1!B6", 6.0).
		End()

	NewSpreadsheetTestCase(t, "Empty AVERAGE divides by zero").
		Set("Sheet1!B1", "=AVERAGE(A1:A3)").
		Run().
		AssertCellErr("Sheet1!B1", ErrorCodeDiv0).
		End()
}

func TestConditionalAggregation(t *testing.T) {
	NewSpreadsheetTestCase(t, "SUMIF COUNTIF AVERAGEIF with operators").
		Set("Sheet1!A1", 1.0).Set("Sheet1!A2", 2.0).Set("Sheet1!A3", 3.0).Set("Sheet1!A4", 4.0).
		Set("Sheet1!B1", `=SUMIF(A1:A4,">2")`).
		Set("Sheet1!B2", `=COUNTIF(A1:A4,"<=2")`).
		Set("Sheet1!B3", `=AVERAGEIF(A1:A4,"<>1")`).
		RunAndAssertNoError().
		AssertCellEq("Sheet1!B1", 7.0).
		AssertCellEq("Sheet1!B2", 2.0).
		AssertCellEq("Sheet1!B3", 3.0).
		End()

	NewSpreadsheetTestCase(t, "Wildcard criteria").
		Set("Sheet1!A1", "apple").Set("Sheet1!A2", "grape").Set("Sheet1!A3", "apricot").
		Set("Sheet1!B1", `=COUNTIF(A1:A3,"ap*")`).
		Set("Sheet1!B2", `=COUNTIF(A1:A3,"?rape")`).
		RunAndAssertNoError().
		AssertCellEq("Sheet1!B1", 2.0).
		AssertCellEq("Sheet1!B2", 1.0).
		End()

	NewSpreadsheetTestCase(t, "Multi-criteria IFS family").
		Set("Sheet1!A1", 1.0).Set("Sheet1!A2", 2.0).Set("Sheet1!A3", 3.0).
		Set("Sheet1!B1", "x").Set("Sheet1!B2", "y").Set("Sheet1!B3", "x").
		Set("Sheet1!C1", 10.0).Set("Sheet1!C2", 20.0).Set("Sheet1!C3", 30.0).
		Set("Sheet1!D1", `=SUMIFS(C1:C3,A1:A3,">0",B1:B3,"x")`).
		Set("Sheet1!D2", `=COUNTIFS(A1:A3,">1",B1:B3,"x")`).
		Set("Sheet1!D3", `=MAXIFS(C1:C3,B1:B3,"x")`).
		Set("Sheet1!D4", `=MINIFS(C1:C3,B1:B3,"x")`).
		RunAndAssertNoError().
		AssertCellEq("Sheet1!D1", 40.0).
		AssertCellEq("Sheet1!D2", 1.0).
		AssertCellEq("Sheet1!D3", 30.0).
		AssertCellEq("Sheet1!D4", 10.0).
		End()
}

func TestLookupFunctions(t *testing.T) {
	NewSpreadsheetTestCase(t, "VLOOKUP exact and approximate").
		Set("Sheet1!A1", "a").Set("Sheet1!B1", 1.0).
		Set("Sheet1!A2", "b").Set("Sheet1!B2", 2.0).
		Set("Sheet1!A3", "c").Set("Sheet1!B3", 3.0).
		Set("Sheet1!D1", `=VLOOKUP("b",A1:B3,2,FALSE)`).
		Set("Sheet1!D2", `=VLOOKUP("zz",A1:B3,2,FALSE)`).
		Set("Sheet1!D3", `=VLOOKUP("b",A1:B3,5,FALSE)`).
		RunAndAssertNoError().
		AssertCellEq("Sheet1!D1", 2.0).
		AssertCellErr("Sheet1!D2", ErrorCodeNA).
		AssertCellErr("Sheet1!D3", ErrorCodeRef).
		End()

	NewSpreadsheetTestCase(t, "HLOOKUP over a header row").
		Set("Sheet1!A1", "x").Set("Sheet1!B1", "y").
		Set("Sheet1!A2", 10.0).Set("Sheet1!B2", 20.0).
		Set("Sheet1!D1", `=HLOOKUP("y",A1:B2,2,FALSE)`).
		RunAndAssertNoError().
		AssertCellEq("Sheet1!D1", 20.0).
		End()

	NewSpreadsheetTestCase(t, "MATCH modes").
		Set("Sheet1!A1", "=MATCH(4,{1,2,2,4,4,7},1)").
		Set("Sheet1!A2", "=MATCH(5,{9,7,5,3},-1)").
		Set("Sheet1!A3", "=MATCH(42,{1,2,3},0)").
		RunAndAssertNoError().
		AssertCellEq("Sheet1!A1", 4.0).
		AssertCellEq("Sheet1!A2", 3.0).
		AssertCellErr("Sheet1!A3", ErrorCodeNA).
		End()

	NewSpreadsheetTestCase(t, "INDEX scalar and whole-line forms").
		Set("Sheet1!A1", 1.0).Set("Sheet1!B1", 2.0).
		Set("Sheet1!A2", 3.0).Set("Sheet1!B2", 4.0).
		Set("Sheet1!D1", "=INDEX(A1:B2,2,1)").
		Set("Sheet1!D2", "=SUM(INDEX(A1:B2,0,2))").
		Set("Sheet1!D3", "=SUM(INDEX(A1:B2,1,0))").
		RunAndAssertNoError().
		AssertCellEq("Sheet1!D1", 3.0).
		AssertCellEq("Sheet1!D2", 6.0).
		AssertCellEq("Sheet1!D3", 3.0).
		End()

	NewSpreadsheetTestCase(t, "OFFSET builds a shifted range").
		Set("Sheet1!A1", 1.0).Set("Sheet1!A2", 2.0).Set("Sheet1!A3", 3.0).
		Set("Sheet1!D1", "=SUM(OFFSET(A1,1,0,2,1))").
		RunAndAssertNoError().
		AssertCellEq("Sheet1!D1", 5.0).
		End()

	NewSpreadsheetTestCase(t, "INDIRECT resolves computed text").
		Set("Sheet1!B2", 99.0).
		Set("Sheet1!D1", `=INDIRECT("B"&"2")`).
		Set("Sheet1!D2", `=INDIRECT("Nope!A1")`).
		RunAndAssertNoError().
		AssertCellEq("Sheet1!D1", 99.0).
		AssertCellErr("Sheet1!D2", ErrorCodeRef).
		End()

	NewSpreadsheetTestCase(t, "ROW and COLUMN").
		Set("Sheet1!B3", "=ROW()").
		Set("Sheet1!C4", "=COLUMN()").
		Set("Sheet1!D1", "=ROW(B7)").
		Set("Sheet1!D2", "=COLUMN(D9)").
		RunAndAssertNoError().
		AssertCellEq("Sheet1!B3", 3.0).
		AssertCellEq("Sheet1!C4", 3.0).
		AssertCellEq("Sheet1!D1", 7.0).
		AssertCellEq("Sheet1!D2", 4.0).
		End()

	NewSpreadsheetTestCase(t, "LOOKUP vector forms").
		Set("Sheet1!A1", "=LOOKUP(2,{1,2,3})").
		Set("Sheet1!A2", `=LOOKUP(2,{1,2,3},{"a","b","c"})`).
		RunAndAssertNoError().
		AssertCellEq("Sheet1!A1", 2.0).
		AssertCellEq("Sheet1!A2", "b").
		End()
}

func TestTextFunctions(t *testing.T) {
	NewSpreadsheetTestCase(t, "Slicing and searching").
		Set("Sheet1!A1", `=LEFT("spread",2)`).
		Set("Sheet1!A2", `=RIGHT("spread",3)`).
		Set("Sheet1!A3", `=MID("spreadsheet",7,5)`).
		Set("Sheet1!A4", `=LEN("héllo")`).
		Set("Sheet1!A5", `=FIND("c","abcabc")`).
		Set("Sheet1!A6", `=FIND("x","abc")`).
		Set("Sheet1!A7", `=LEFT("ab",-1)`).
		RunAndAssertNoError().
		AssertCellEq("Sheet1!A1", "sp").
		AssertCellEq("Sheet1!A2", "ead").
		AssertCellEq("Sheet1!A3", "sheet").
		AssertCellEq("Sheet1!A4", 5.0).
		AssertCellEq("Sheet1!A5", 3.0).
		AssertCellErr("Sheet1!A6", ErrorCodeValue).
		AssertCellErr("Sheet1!A7", ErrorCodeValue).
		End()

	NewSpreadsheetTestCase(t, "Rewriting").
		Set("Sheet1!A1", `=TRIM("  a   b  ")`).
		Set("Sheet1!A2", `=UPPER("aBc")`).
		Set("Sheet1!A3", `=LOWER("aBc")`).
		Set("Sheet1!A4", `=REPLACE("abcdef",2,3,"XY")`).
		Set("Sheet1!A5", `=SUBSTITUTE("aaa","a","b",2)`).
		Set("Sheet1!A6", `=CONCATENATE("a",1,TRUE)`).
		RunAndAssertNoError().
		AssertCellEq("Sheet1!A1", "a b").
		AssertCellEq("Sheet1!A2", "ABC").
		AssertCellEq("Sheet1!A3", "abc").
		AssertCellEq("Sheet1!A4", "aXYef").
		AssertCellEq("Sheet1!A5", "aba").
		AssertCellEq("Sheet1!A6", "a1true").
		End()

	NewSpreadsheetTestCase(t, "VALUE strict parse").
		Set("Sheet1!A1", `=VALUE("1.5")`).
		Set("Sheet1!A2", `=VALUE("abc")`).
		Set("Sheet1!A3", "=VALUE(TRUE)").
		RunAndAssertNoError().
		AssertCellEq("Sheet1!A1", 1.5).
		AssertCellErr("Sheet1!A2", ErrorCodeValue).
		AssertCellErr("Sheet1!A3", ErrorCodeValue).
		End()

	NewSpreadsheetTestCase(t, "TEXT DOLLAR FIXED formatting").
		Set("Sheet1!A1", `=TEXT(1234.5678,"#,##0.00")`).
		Set("Sheet1!A2", `=TEXT(0.25,"0%")`).
		Set("Sheet1!A3", `=TEXT(DATE(2024,1,15),"yyyy-mm-dd")`).
		Set("Sheet1!A4", "=DOLLAR(1234.567)").
		Set("Sheet1!A5", "=FIXED(1234.567,1)").
		Set("Sheet1!A6", "=FIXED(1234.567,1,TRUE)").
		RunAndAssertNoError().
		AssertCellEq("Sheet1!A1", "1,234.57").
		AssertCellEq("Sheet1!A2", "25%").
		AssertCellEq("Sheet1!A3", "2024-01-15").
		AssertCellEq("Sheet1!A4", "$1,234.57").
		AssertCellEq("Sheet1!A5", "1,234.6").
		AssertCellEq("Sheet1!A6", "1234.6").
		End()
}

func TestLogicalAndInformation(t *testing.T) {
	NewSpreadsheetTestCase(t, "Short-circuit IF only evaluates the taken branch").
		Set("Sheet1!A1", "=IF(TRUE,1,1/0)").
		Set("Sheet1!A2", "=IF(FALSE,1/0,2)").
		Set("Sheet1!A3", "=IF(1>2,99)").
		RunAndAssertNoError().
		AssertCellEq("Sheet1!A1", 1.0).
		AssertCellEq("Sheet1!A2", 2.0).
		AssertCellEq("Sheet1!A3", false).
		End()

	NewSpreadsheetTestCase(t, "IFERROR and IFNA absorption").
		Set("Sheet1!A1", "=IFERROR(1/0,42)").
		Set("Sheet1!A2", "=IFERROR(7,42)").
		Set("Sheet1!A3", "=IFNA(NA(),1)").
		Set("Sheet1!A4", "=IFNA(1/0,1)").
		RunAndAssertNoError().
		AssertCellEq("Sheet1!A1", 42.0).
		AssertCellEq("Sheet1!A2", 7.0).
		AssertCellEq("Sheet1!A3", 1.0).
		AssertCellErr("Sheet1!A4", ErrorCodeDiv0).
		End()

	NewSpreadsheetTestCase(t, "IFS takes the first true pair").
		Set("Sheet1!A1", 15.0).
		Set("Sheet1!B1", `=IFS(A1>20,"big",A1>10,"medium",TRUE,"small")`).
		RunAndAssertNoError().
		AssertCellEq("Sheet1!B1", "medium").
		End()

	NewSpreadsheetTestCase(t, "AND OR XOR NOT").
		Set("Sheet1!A1", "=AND(TRUE,1,2>1)").
		Set("Sheet1!A2", "=OR(FALSE,0)").
		Set("Sheet1!A3", "=XOR(TRUE,TRUE,TRUE)").
		Set("Sheet1!A4", "=NOT(FALSE)").
		Set("Sheet1!A5", "=AND(TRUE,1/0)").
		RunAndAssertNoError().
		AssertCellEq("Sheet1!A1", true).
		AssertCellEq("Sheet1!A2", false).
		AssertCellEq("Sheet1!A3", true).
		AssertCellEq("Sheet1!A4", true).
		AssertCellErr("Sheet1!A5", ErrorCodeDiv0).
		End()

	NewSpreadsheetTestCase(t, "IS family inspects without propagating").
		Set("Sheet1!A1", 5.0).
		Set("Sheet1!A2", "text").
		Set("Sheet1!B1", "=ISNUMBER(A1)").
		Set("Sheet1!B2", "=ISTEXT(A2)").
		Set("Sheet1!B3", "=ISBLANK(Z99)").
		Set("Sheet1!B4", "=ISERROR(1/0)").
		Set("Sheet1!B5", "=ISNA(NA())").
		Set("Sheet1!B6", "=ISERR(NA())").
		Set("Sheet1!B7", "=ISEVEN(4)").
		Set("Sheet1!B8", "=ISODD(4)").
		Set("Sheet1!B9", "=N(TRUE)").
		RunAndAssertNoError().
		AssertCellEq("Sheet1!B1", true).
		AssertCellEq("Sheet1!B2", true).
		AssertCellEq("Sheet1!B3", true).
		AssertCellEq("Sheet1!B4", true).
		AssertCellEq("Sheet1!B5", true).
		AssertCellEq("Sheet1!B6", false).
		AssertCellEq("Sheet1!B7", true).
		AssertCellEq("Sheet1!B8", false).
		AssertCellEq("Sheet1!B9", 1.0).
		End()
}

func TestDateTimeFunctions(t *testing.T) {
	// serial pins around the fictitious 1900-02-29 (serial 60)
	NewSpreadsheetTestCase(t, "Serial numbers honor the 1900 leap quirk").
		Set("Sheet1!A1", "=DATE(1900,1,1)").
		Set("Sheet1!A2", "=DATE(1900,2,28)").
		Set("Sheet1!A3", "=DATE(1900,2,29)").
		Set("Sheet1!A4", "=DATE(1900,3,1)").
		Set("Sheet1!A5", "=DATE(2024,1,1)").
		RunAndAssertNoError().
		AssertCellEq("Sheet1!A1", 1.0).
		AssertCellEq("Sheet1!A2", 59.0).
		AssertCellEq("Sheet1!A3", 60.0).
		AssertCellEq("Sheet1!A4", 61.0).
		AssertCellEq("Sheet1!A5", 45292.0).
		End()

	NewSpreadsheetTestCase(t, "DATE normalizes month and day overflow").
		Set("Sheet1!A1", "=DATE(2008,14,1)=DATE(2009,2,1)").
		Set("Sheet1!A2", "=DATE(2020,1,32)=DATE(2020,2,1)").
		RunAndAssertNoError().
		AssertCellEq("Sheet1!A1", true).
		AssertCellEq("Sheet1!A2", true).
		End()

	NewSpreadsheetTestCase(t, "YEAR MONTH DAY WEEKDAY invert serials").
		Set("Sheet1!A1", "=YEAR(DATE(2015,4,20))").
		Set("Sheet1!A2", "=MONTH(DATE(2015,4,20))").
		Set("Sheet1!A3", "=DAY(DATE(2015,4,20))").
		Set("Sheet1!A4", "=WEEKDAY(DATE(2024,1,1))").
		Set("Sheet1!A5", "=WEEKDAY(DATE(2024,1,1),2)").
		RunAndAssertNoError().
		AssertCellEq("Sheet1!A1", 2015.0).
		AssertCellEq("Sheet1!A2", 4.0).
		AssertCellEq("Sheet1!A3", 20.0).
		AssertCellEq("Sheet1!A4", 2.0).
		AssertCellEq("Sheet1!A5", 1.0).
		End()

	NewSpreadsheetTestCase(t, "DAYS360 and YEARFRAC bases").
		Set("Sheet1!A1", "=DAYS360(DATE(2020,1,31),DATE(2020,3,31))").
		Set("Sheet1!B1", "=YEARFRAC(DATE(2020,1,1),DATE(2021,1,1),0)").
		Set("Sheet1!B2", "=YEARFRAC(DATE(2020,1,1),DATE(2021,1,1),2)").
		Set("Sheet1!B3", "=YEARFRAC(DATE(2020,1,1),DATE(2021,1,1),3)").
		Set("Sheet1!B4", "=YEARFRAC(DATE(2008,1,1),DATE(2015,4,20),1)").
		RunAndAssertNoError().
		AssertCellEq("Sheet1!A1", 60.0).
		AssertCellEq("Sheet1!B1", 1.0).
		AssertCellNear("Sheet1!B2", 366.0/360.0, 1e-9).
		AssertCellNear("Sheet1!B3", 366.0/365.0, 1e-9).
		AssertCellNear("Sheet1!B4", 7.299110198, 1e-6).
		End()
}

func TestEngineeringFunctions(t *testing.T) {
	NewSpreadsheetTestCase(t, "Two's-complement base conversions").
		Set("Sheet1!A1", `=HEX2DEC("FFFFFFFFFE")`).
		Set("Sheet1!A2", "=DEC2BIN(-2)").
		Set("Sheet1!A3", "=DEC2HEX(549755813888)").
		Set("Sheet1!A4", `=BIN2DEC("1111111110")`).
		Set("Sheet1!A5", "=DEC2BIN(9,8)").
		Set("Sheet1!A6", "=DEC2BIN(9,2)").
		Set("Sheet1!A7", `=OCT2HEX("17777777776")`).
		RunAndAssertNoError().
		AssertCellEq("Sheet1!A1", -2.0).
		AssertCellEq("Sheet1!A2", "1111111110").
		AssertCellErr("Sheet1!A3", ErrorCodeNum).
		AssertCellEq("Sheet1!A4", -2.0).
		AssertCellEq("Sheet1!A5", "00001001").
		AssertCellErr("Sheet1!A6", ErrorCodeNum).
		AssertCellErr("Sheet1!A7", ErrorCodeNum).
		End()

	NewSpreadsheetTestCase(t, "Bitwise operations").
		Set("Sheet1!A1", "=BITAND(13,25)").
		Set("Sheet1!A2", "=BITOR(5,3)").
		Set("Sheet1!A3", "=BITXOR(5,3)").
		Set("Sheet1!A4", "=BITLSHIFT(4,2)").
		Set("Sheet1!A5", "=BITRSHIFT(13,2)").
		Set("Sheet1!A6", "=BITLSHIFT(4,-1)").
		Set("Sheet1!A7", "=BITAND(-1,3)").
		Set("Sheet1!A8", "=BITLSHIFT(1,60)").
		RunAndAssertNoError().
		AssertCellEq("Sheet1!A1", 9.0).
		AssertCellEq("Sheet1!A2", 7.0).
		AssertCellEq("Sheet1!A3", 6.0).
		AssertCellEq("Sheet1!A4", 16.0).
		AssertCellEq("Sheet1!A5", 3.0).
		AssertCellEq("Sheet1!A6", 2.0).
		AssertCellErr("Sheet1!A7", ErrorCodeNum).
		AssertCellErr("Sheet1!A8", ErrorCodeNum).
		End()
}

func TestStatisticsFunctions(t *testing.T) {
	NewSpreadsheetTestCase(t, "LARGE and SMALL with bounds checks").
		Set("Sheet1!A1", "=LARGE({3,5,1},1)").
		Set("Sheet1!A2", "=SMALL({3,5,1},2)").
		Set("Sheet1!A3", "=LARGE({3,5,1},1.2)").
		Set("Sheet1!A4", "=LARGE({1},5)").
		RunAndAssertNoError().
		AssertCellEq("Sheet1!A1", 5.0).
		AssertCellEq("Sheet1!A2", 3.0).
		AssertCellEq("Sheet1!A3", 3.0).
		AssertCellErr("Sheet1!A4", ErrorCodeNum).
		End()

	NewSpreadsheetTestCase(t, "Simple regression on an exact line").
		Set("Sheet1!A1", "=SLOPE({2,4,6},{1,2,3})").
		Set("Sheet1!A2", "=INTERCEPT({2,4,6},{1,2,3})").
		Set("Sheet1!A3", "=FORECAST(4,{2,4,6},{1,2,3})").
		Set("Sheet1!A4", "=TREND({2,4,6},{1,2,3},{4})").
		RunAndAssertNoError().
		AssertCellNear("Sheet1!A1", 2.0, 1e-9).
		AssertCellNear("Sheet1!A2", 0.0, 1e-9).
		AssertCellNear("Sheet1!A3", 8.0, 1e-9).
		AssertCellNear("Sheet1!A4", 8.0, 1e-9).
		End()

	NewSpreadsheetTestCase(t, "Sample variance and deviation").
		Set("Sheet1!A1", "=VAR({2,4,4,4,5,5,7,9})").
		Set("Sheet1!A2", "=STDEV({2,4,4,4,5,5,7,9})").
		RunAndAssertNoError().
		AssertCellNear("Sheet1!A1", 32.0/7.0, 1e-9).
		AssertCellNear("Sheet1!A2", math.Sqrt(32.0/7.0), 1e-9).
		End()

	NewSpreadsheetTestCase(t, "LINEST as a lone scalar formula").
		Set("Sheet1!A1", "=LINEST({2,4,6})").
		RunAndAssertNoError().
		AssertCellNear("Sheet1!A1", 2.0, 1e-9).
		End()
}

// TestLinestArrayRun spreads the identical LINEST formula across adjacent
// cells and checks that each reports the coefficient at its position in
// the run, with the cell one past the coefficients reporting R-squared.
func TestLinestArrayRun(t *testing.T) {
	NewSpreadsheetTestCase(t, "Coefficient selection across a run").
		Set("Sheet1!B1", "=LINEST({3,5,7},{1,2,3})").
		Set("Sheet1!C1", "=LINEST({3,5,7},{1,2,3})").
		RunAndAssertNoError().
		AssertCellNear("Sheet1!B1", 2.0, 1e-9).
		AssertCellNear("Sheet1!C1", 1.0, 1e-9).
		End()

	NewSpreadsheetTestCase(t, "Extra run cell reports R-squared").
		Set("Sheet1!B1", "=LINEST({3,5,7},{1,2,3})").
		Set("Sheet1!C1", "=LINEST({3,5,7},{1,2,3})").
		Set("Sheet1!D1", "=LINEST({3,5,7},{1,2,3})").
		RunAndAssertNoError().
		AssertCellNear("Sheet1!D1", 1.0, 1e-9).
		End()

	NewSpreadsheetTestCase(t, "Vertical runs work the same way").
		Set("Sheet1!B1", "=LINEST({3,5,7},{1,2,3})").
		Set("Sheet1!B2", "=LINEST({3,5,7},{1,2,3})").
		RunAndAssertNoError().
		AssertCellNear("Sheet1!B1", 2.0, 1e-9).
		AssertCellNear("Sheet1!B2", 1.0, 1e-9).
		End()
}

func TestFinancialFunctions(t *testing.T) {
	NewSpreadsheetTestCase(t, "NPV discounts from period one").
		Set("Sheet1!A1", "=NPV(0.1,100,200)").
		RunAndAssertNoError().
		AssertCellNear("Sheet1!A1", 100/1.1+200/1.21, 1e-9).
		End()

	NewSpreadsheetTestCase(t, "IRR finds the zero-NPV rate").
		Set("Sheet1!A1", "=IRR({-100,110})").
		Set("Sheet1!A2", "=IRR({-100,60,60})").
		RunAndAssertNoError().
		AssertCellNear("Sheet1!A1", 0.1, 1e-6).
		AssertCellFn("Sheet1!A2", func(v Primitive, t *testing.T) {
			rate, ok := v.(float64)
			if !ok {
				t.Errorf("IRR result = %v (%T), want float64", v, v)
				return
			}
			npv := -100 + 60/(1+rate) + 60/((1+rate)*(1+rate))
			if math.Abs(npv) > 1e-4 {
				t.Errorf("IRR rate %v leaves NPV %v, want ~0", rate, npv)
			}
		}).
		End()

	NewSpreadsheetTestCase(t, "PMT PPMT NPER RATE").
		Set("Sheet1!A1", "=PMT(0.08/12,120,10000)").
		Set("Sheet1!A2", "=PPMT(0.1,1,2,100)").
		Set("Sheet1!A3", "=NPER(0,-100,1000)").
		Set("Sheet1!A4", "=RATE(1,-110,100)").
		RunAndAssertNoError().
		AssertCellNear("Sheet1!A1", -121.3276, 1e-3).
		AssertCellNear("Sheet1!A2", -47.6190476, 1e-4).
		AssertCellEq("Sheet1!A3", 10.0).
		AssertCellNear("Sheet1!A4", 0.1, 1e-6).
		End()
}

func TestIncrementalRecalculation(t *testing.T) {
	ctx := context.Background()

	t.Run("SetInvalidatesTransitively", func(t *testing.T) {
		tc := NewSpreadsheetTestCase(t, "transitive invalidation").
			Set("Sheet1!A1", 2.0).
			Set("Sheet1!A2", "=A1*A1").
			Set("Sheet1!A3", "=A2+1").
			RunAndAssertNoError().
			AssertCellEq("Sheet1!A2", 4.0).
			AssertCellEq("Sheet1!A3", 5.0)
		s := tc.spreadsheet

		if err := s.Set("Sheet1!A1", 3.0); err != nil {
			t.Fatalf("Set: %v", err)
		}
		got, err := s.Evaluate(ctx, "Sheet1!A3")
		if err != nil {
			t.Fatalf("Evaluate: %v", err)
		}
		if got != 10.0 {
			t.Errorf("Evaluate(A3) after Set(A1,3) = %v, want 10", got)
		}
	})

	t.Run("RangeDependentsInvalidate", func(t *testing.T) {
		tc := NewSpreadsheetTestCase(t, "range invalidation").
			Set("Sheet1!A1", 1.0).
			Set("Sheet1!A2", 2.0).
			Set("Sheet1!B1", "=SUM(A1:A2)").
			Set("Sheet1!C1", "=B1*10").
			RunAndAssertNoError().
			AssertCellEq("Sheet1!C1", 30.0)
		s := tc.spreadsheet

		if err := s.Set("Sheet1!A2", 9.0); err != nil {
			t.Fatalf("Set: %v", err)
		}
		got, err := s.Evaluate(ctx, "Sheet1!C1")
		if err != nil {
			t.Fatalf("Evaluate: %v", err)
		}
		if got != 100.0 {
			t.Errorf("Evaluate(C1) after range input change = %v, want 100", got)
		}
	})

	t.Run("ResetForcesRecompute", func(t *testing.T) {
		tc := NewSpreadsheetTestCase(t, "reset").
			Set("Sheet1!A1", 4.0).
			Set("Sheet1!A2", "=A1+1").
			RunAndAssertNoError().
			AssertCellEq("Sheet1!A2", 5.0)
		s := tc.spreadsheet

		if err := s.Reset("Sheet1!A2"); err != nil {
			t.Fatalf("Reset: %v", err)
		}
		if !s.GetDependencyGraph().IsDirty(CellAddress{WorksheetID: 1, Row: 1, Column: 0}) {
			t.Error("Reset did not mark the cell dirty")
		}
		got, err := s.Evaluate(ctx, "Sheet1!A2")
		if err != nil {
			t.Fatalf("Evaluate: %v", err)
		}
		if got != 5.0 {
			t.Errorf("Evaluate after Reset = %v, want 5", got)
		}
	})

	t.Run("RecalculateSweepsEverything", func(t *testing.T) {
		tc := NewSpreadsheetTestCase(t, "recalculate").
			Set("Sheet1!A1", 1.0).
			Set("Sheet1!A2", "=A1+1").
			RunAndAssertNoError()
		s := tc.spreadsheet

		if err := s.Recalculate(ctx); err != nil {
			t.Fatalf("Recalculate: %v", err)
		}
		got, err := s.Get("Sheet1!A2")
		if err != nil {
			t.Fatalf("Get: %v", err)
		}
		if got != 2.0 {
			t.Errorf("Recalculate result = %v, want 2", got)
		}
	})

	t.Run("EvaluateMany", func(t *testing.T) {
		tc := NewSpreadsheetTestCase(t, "evaluate many").
			Set("Sheet1!A1", 1.0).
			Set("Sheet1!A2", "=A1+1").
			Set("Sheet1!A3", "=A1*10").
			Set("Sheet1!A4", "=A2+A3")
		s := tc.spreadsheet

		results, err := s.EvaluateMany(ctx, []string{"Sheet1!A2", "Sheet1!A3", "Sheet1!A4"}, 4)
		if err != nil {
			t.Fatalf("EvaluateMany: %v", err)
		}
		if results["Sheet1!A2"] != 2.0 || results["Sheet1!A3"] != 10.0 || results["Sheet1!A4"] != 12.0 {
			t.Errorf("EvaluateMany = %v, want A2=2 A3=10 A4=12", results)
		}
	})

	t.Run("ValidateReportsMismatches", func(t *testing.T) {
		tc := NewSpreadsheetTestCase(t, "validate").
			Set("Sheet1!A1", 2.0).
			Set("Sheet1!A2", "=A1*2").
			RunAndAssertNoError()
		s := tc.spreadsheet

		mismatches, err := s.Validate(ctx, map[string]Primitive{
			"Sheet1!A2": 4.0,
		})
		if err != nil {
			t.Fatalf("Validate: %v", err)
		}
		if len(mismatches) != 0 {
			t.Errorf("Validate reported unexpected mismatches: %v", mismatches)
		}

		mismatches, err = s.Validate(ctx, map[string]Primitive{
			"Sheet1!A2": 99.0,
		})
		if err != nil {
			t.Fatalf("Validate: %v", err)
		}
		mm, ok := mismatches["Sheet1!A2"]
		if !ok {
			t.Fatal("Validate missed a real mismatch")
		}
		if mm.Expected != 99.0 || mm.Got != 4.0 {
			t.Errorf("mismatch = %+v, want expected 99 got 4", mm)
		}
	})
}

func TestTrimAndValueTree(t *testing.T) {
	ctx := context.Background()

	t.Run("TrimPreservesOutputEvaluation", func(t *testing.T) {
		tc := NewSpreadsheetTestCase(t, "trim").
			Set("Sheet1!A1", 2.0).
			Set("Sheet1!A2", "=A1*3").
			Set("Sheet1!A3", "=A2+1").
			Set("Sheet1!B1", 5.0).
			Set("Sheet1!B2", "=B1*B1").
			RunAndAssertNoError()
		s := tc.spreadsheet

		before := s.GetDependencyGraph().NodeCount()
		if err := s.Trim([]string{"Sheet1!A1"}, []string{"Sheet1!A3"}); err != nil {
			t.Fatalf("Trim: %v", err)
		}
		after := s.GetDependencyGraph().NodeCount()
		if after >= before {
			t.Errorf("Trim removed nothing: %d -> %d nodes", before, after)
		}

		if err := s.Set("Sheet1!A1", 4.0); err != nil {
			t.Fatalf("Set: %v", err)
		}
		got, err := s.Evaluate(ctx, "Sheet1!A3")
		if err != nil {
			t.Fatalf("Evaluate: %v", err)
		}
		if got != 13.0 {
			t.Errorf("trimmed graph Evaluate(A3) = %v, want 13", got)
		}
	})

	t.Run("ValueTreeShowsFormulaAndValue", func(t *testing.T) {
		tc := NewSpreadsheetTestCase(t, "value tree").
			Set("Sheet1!A1", 2.0).
			Set("Sheet1!A2", 3.0).
			Set("Sheet1!A3", "=A1+A2").
			RunAndAssertNoError()
		s := tc.spreadsheet

		tree, err := s.ValueTree("Sheet1!A3")
		if err != nil {
			t.Fatalf("ValueTree: %v", err)
		}
		if !strings.Contains(tree, "=A1+A2") {
			t.Errorf("ValueTree missing formula text:\n%s", tree)
		}
		if !strings.Contains(tree, "-> 5") {
			t.Errorf("ValueTree missing computed value:\n%s", tree)
		}
		if strings.Count(tree, "\n") < 3 {
			t.Errorf("ValueTree should list the two precedents on their own lines:\n%s", tree)
		}
	})
}

func TestCircularReferences(t *testing.T) {
	t.Run("StrictModeRejectsCycles", func(t *testing.T) {
		NewSpreadsheetTestCase(t, "strict cycle").
			Set("Sheet1!A1", "=B1+1").
			Set("Sheet1!B1", "=A1+1").
			Run().
			AssertCellFn("Sheet1!A1", func(v Primitive, t *testing.T) {
				if sErr, ok := v.(*SpreadsheetError); !ok || sErr.ErrorCode != ErrorCodeRef {
					t.Errorf("cycle cell = %v, want #REF!", v)
				}
			}).
			End()
	})

	t.Run("SelfContainingRangeIsCircular", func(t *testing.T) {
		NewSpreadsheetTestCase(t, "self range").
			Set("Sheet1!A1", "=SUM(A1:A3)").
			Run().
			AssertCellErr("Sheet1!A1", ErrorCodeRef).
			End()
	})

	t.Run("IterativeModeConverges", func(t *testing.T) {
		tc := NewSpreadsheetTestCase(t, "iterative").
			Set("Sheet1!A1", "=B1*0.5+1").
			Set("Sheet1!B1", "=A1*0.5+1")
		s := tc.spreadsheet

		s.EnableIterativeCalculation(200, 1e-10)
		if !s.IsIterativeCalculationEnabled() {
			t.Fatal("iterative mode should be enabled")
		}
		if err := s.CalculateIterative(); err != nil {
			t.Fatalf("CalculateIterative: %v", err)
		}

		a1, _ := s.Get("Sheet1!A1")
		b1, _ := s.Get("Sheet1!B1")
		aNum, aOk := a1.(float64)
		bNum, bOk := b1.(float64)
		if !aOk || !bOk {
			t.Fatalf("cycle cells = %v, %v, want numbers", a1, b1)
		}
		if math.Abs(aNum-2.0) > 1e-6 || math.Abs(bNum-2.0) > 1e-6 {
			t.Errorf("cycle converged to (%v, %v), want (2, 2)", aNum, bNum)
		}

		s.DisableIterativeCalculation()
		if s.IsIterativeCalculationEnabled() {
			t.Error("iterative mode should be disabled again")
		}
	})
}

func TestNotationModes(t *testing.T) {
	t.Run("R1C1Workbook", func(t *testing.T) {
		NewSpreadsheetTestCaseWithNotation(t, "r1c1", NotationR1C1).
			Set("Sheet1!A1", 10.0).
			Set("Sheet1!B1", "=R1C1*2").
			Set("Sheet1!C1", "=RC[-1]+5").
			RunAndAssertNoError().
			AssertCellEq("Sheet1!B1", 20.0).
			AssertCellEq("Sheet1!C1", 25.0).
			End()
	})

	t.Run("R1C1WorkbookRejectsA1Tokens", func(t *testing.T) {
		NewSpreadsheetTestCaseWithNotation(t, "r1c1 strict", NotationR1C1).
			Set("Sheet1!A1", 10.0).
			Set("Sheet1!B1", "=A1*2").
			Run().
			AssertCellErr("Sheet1!B1", ErrorCodeValue).
			End()
	})

	t.Run("A1WorkbookRejectsR1C1Tokens", func(t *testing.T) {
		NewSpreadsheetTestCase(t, "a1 strict").
			Set("Sheet1!A1", 10.0).
			Set("Sheet1!B1", "=R1C1*2").
			Run().
			AssertCellErr("Sheet1!B1", ErrorCodeValue).
			End()
	})
}

func TestErrorPropagation(t *testing.T) {
	NewSpreadsheetTestCase(t, "Errors flow through the graph as values").
		Set("Sheet1!A1", "=1/0").
		Set("Sheet1!A2", "=A1+1").
		Set("Sheet1!A3", "=SUM(A1:A2)").
		Set("Sheet1!A4", "=IFERROR(A2,0)").
		Run().
		AssertCellErr("Sheet1!A1", ErrorCodeDiv0).
		AssertCellErr("Sheet1!A2", ErrorCodeDiv0).
		AssertCellErr("Sheet1!A3", ErrorCodeDiv0).
		AssertCellEq("Sheet1!A4", 0.0).
		End()

	NewSpreadsheetTestCase(t, "Unknown function is #NAME?").
		Set("Sheet1!A1", "=NOSUCHFUNCTION(1)").
		Run().
		AssertCellErr("Sheet1!A1", ErrorCodeName).
		End()

	// a formula that fails to compile poisons its cell; the rest of the
	// sheet keeps evaluating
	NewSpreadsheetTestCase(t, "Poisoned cell stays contained").
		Set("Sheet1!A1", "=SUM(").
		Set("Sheet1!A2", "=1+1").
		Run().
		AssertCellErr("Sheet1!A1", ErrorCodeValue).
		AssertCellEq("Sheet1!A2", 2.0).
		End()
}

func TestNamedRanges(t *testing.T) {
	NewSpreadsheetTestCase(t, "Defined name resolves in formulas").
		Set("Sheet1!A1", 1.0).
		Set("Sheet1!A2", 2.0).
		Set("Sheet1!A3", 3.0).
		DefineNamedRange("inputs", "Sheet1!A1:A3").
		Set("Sheet1!B1", "=SUM(inputs)").
		RunAndAssertNoError().
		AssertCellEq("Sheet1!B1", 6.0).
		End()

	NewSpreadsheetTestCase(t, "Undefined name is #NAME?").
		Set("Sheet1!B1", "=SUM(nosuchname)").
		Run().
		AssertCellErr("Sheet1!B1", ErrorCodeName).
		End()
}

func TestWorksheetLifecycle(t *testing.T) {
	tc := NewSpreadsheetTestCase(t, "worksheets").
		AddWorksheet("Inputs").
		Set("Inputs!A1", 5.0).
		Set("Sheet1!A1", "=Inputs!A1*2").
		RunAndAssertNoError().
		AssertCellEq("Sheet1!A1", 10.0)
	s := tc.spreadsheet

	if !s.DoesWorksheetExist("Inputs") {
		t.Error("Inputs worksheet should exist")
	}
	if err := s.RenameWorksheet("Inputs", "Params"); err != nil {
		t.Fatalf("RenameWorksheet: %v", err)
	}
	if s.DoesWorksheetExist("Inputs") || !s.DoesWorksheetExist("Params") {
		t.Error("rename did not take")
	}
	names := s.ListWorksheets()
	if len(names) != 2 {
		t.Errorf("ListWorksheets = %v, want 2 sheets", names)
	}
}

func TestRemoveCellInvalidatesDependents(t *testing.T) {
	ctx := context.Background()
	tc := NewSpreadsheetTestCase(t, "remove").
		Set("Sheet1!A1", 3.0).
		Set("Sheet1!A2", "=A1+1").
		RunAndAssertNoError().
		AssertCellEq("Sheet1!A2", 4.0)
	s := tc.spreadsheet

	if err := s.Remove("Sheet1!A1"); err != nil {
		t.Fatalf("Remove: %v", err)
	}
	got, err := s.Evaluate(ctx, "Sheet1!A2")
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	// the removed precedent reads as empty, which is zero in addition
	if got != 1.0 {
		t.Errorf("Evaluate(A2) after removing A1 = %v, want 1", got)
	}
}

func TestVolatileFunctions(t *testing.T) {
	tc := NewSpreadsheetTestCase(t, "volatile").
		Set("Sheet1!A1", "=RAND()").
		RunAndAssertNoError()
	s := tc.spreadsheet

	addr := CellAddress{WorksheetID: 1, Row: 0, Column: 0}
	if !s.GetDependencyGraph().IsVolatile(addr) {
		t.Error("RAND cell should be marked volatile")
	}

	first, _ := s.Get("Sheet1!A1")
	if _, ok := first.(float64); !ok {
		t.Fatalf("RAND result = %v (%T), want float64", first, first)
	}

	// volatile cells go dirty again on every sweep
	if err := s.Calculate(); err != nil {
		t.Fatalf("Calculate: %v", err)
	}
	second, _ := s.Get("Sheet1!A1")
	if _, ok := second.(float64); !ok {
		t.Fatalf("RAND result after recalc = %v (%T), want float64", second, second)
	}
}
