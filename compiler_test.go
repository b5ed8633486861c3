package spreadsheet

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func testContext() *ParserContext {
	return &ParserContext{
		CurrentWorksheetID: 1,
		CurrentRow:         0,
		CurrentColumn:      0,
		ResolveWorksheet:   func(name string) uint32 { return 1 },
	}
}

func TestCompileFormulaRejectsMalformedInput(t *testing.T) {
	_, err := CompileFormula("A1+1", testContext(), NotationA1)
	require.Error(t, err, "formula without a leading '=' must be rejected")

	_, err = CompileFormula("=SUM(A1", testContext(), NotationA1)
	require.Error(t, err, "unbalanced parentheses must be rejected")

	_, err = CompileFormula("=1+", testContext(), NotationA1)
	require.Error(t, err, "trailing operator with no right operand must be rejected")
}

func TestCompileFormulaPrecedence(t *testing.T) {
	ast, err := CompileFormula("=1+2*3^2", testContext(), NotationA1)
	require.NoError(t, err)
	require.Equal(t, "(1+(2*(3^2)))", ast.ToString())

	ast, err = CompileFormula("=-2^2", testContext(), NotationA1)
	require.NoError(t, err)
	require.Equal(t, "(-2^2)", ast.ToString(), "unary prefix binds tighter than ^, so -2 is raised to the power")
}

func TestCompileFormulaR1C1Notation(t *testing.T) {
	ctx := &ParserContext{
		CurrentWorksheetID: 1,
		CurrentRow:         4,
		CurrentColumn:      2,
		ResolveWorksheet:   func(name string) uint32 { return 1 },
	}
	ast, err := CompileFormula("=R1C1+RC[-1]", ctx, NotationR1C1)
	require.NoError(t, err)
	_, isBinOp := ast.(*BinaryOpNode)
	require.True(t, isBinOp, "R1C1 references compile to the same BinaryOpNode shape as A1 references")
}

func TestCompileFormulaArrayLiteral(t *testing.T) {
	ast, err := CompileFormula("={1,2;3,4}", testContext(), NotationA1)
	require.NoError(t, err)
	arr, ok := ast.(*ArrayLiteralNode)
	require.True(t, ok, "brace-delimited constant compiles to an ArrayLiteralNode")
	require.Len(t, arr.Rows, 2)
	require.Len(t, arr.Rows[0], 2)
	require.Equal(t, "4", arr.Rows[1][1].ToString())
}

func TestCompileFormulaIntersectAndUnionOperators(t *testing.T) {
	ast, err := CompileFormula("=A1:B2 B1:C3", testContext(), NotationA1)
	require.NoError(t, err)
	_, ok := ast.(*IntersectNode)
	require.True(t, ok, "whitespace between two reference operands compiles to an IntersectNode")

	ast, err = CompileFormula("=(A1:A2,C1:C2)", testContext(), NotationA1)
	require.NoError(t, err)
	_, ok = ast.(*UnionNode)
	require.True(t, ok, "comma outside a function argument list compiles to a UnionNode")
}

func TestCompileFormulaReferenceOperatorsReduceLeftToRight(t *testing.T) {
	// the three reference operators share one precedence level, so an
	// unparenthesized mix reduces strictly in arrival order: the intersect
	// is applied before the trailing colon, not after it
	ast, err := CompileFormula("=B2:B3 B3:B4:B5", testContext(), NotationA1)
	require.NoError(t, err)
	rangeExpr, ok := ast.(*RangeExprNode)
	require.True(t, ok, "the trailing ':' is the last operator applied")
	_, ok = rangeExpr.Left.(*IntersectNode)
	require.True(t, ok, "the intersect reduces first, becoming the colon's left operand")

	ast, err = CompileFormula("=A1:A2 A2:A3,A3:A4", testContext(), NotationA1)
	require.NoError(t, err)
	union, ok := ast.(*UnionNode)
	require.True(t, ok, "the ',' arriving last is applied last")
	_, ok = union.Left.(*IntersectNode)
	require.True(t, ok, "the earlier intersect is already reduced when the union arrives")
}

func TestCompileFormulaInlineErrorLiteral(t *testing.T) {
	ast, err := CompileFormula(`=IF(A1>0,A1,#N/A)`, testContext(), NotationA1)
	require.NoError(t, err)
	fn, ok := ast.(*FunctionCallNode)
	require.True(t, ok)
	require.Equal(t, "IF", fn.Name)
	errLit, ok := fn.Args[2].(*ErrorLiteralNode)
	require.True(t, ok, "a bare #N/A token compiles to an ErrorLiteralNode")
	require.Equal(t, ErrorCodeNA, errLit.Code)
}

func TestCompileFormulaFunctionCallArgCount(t *testing.T) {
	ast, err := CompileFormula("=SUM(A1,A2,A3)", testContext(), NotationA1)
	require.NoError(t, err)
	fn, ok := ast.(*FunctionCallNode)
	require.True(t, ok)
	require.Equal(t, "SUM", fn.Name)
	require.Len(t, fn.Args, 3)
}
