package spreadsheet

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func callFn(t *testing.T, name string, args ...any) (Primitive, error) {
	t.Helper()
	bf := NewDefaultBuiltInFunctions()
	return bf.Call(nil, name, args...)
}

func requireFnEq(t *testing.T, expected Primitive, name string, args ...any) {
	t.Helper()
	got, err := callFn(t, name, args...)
	require.NoError(t, err, "%s(%v)", name, args)
	require.Equal(t, expected, got, "%s(%v)", name, args)
}

func requireFnErr(t *testing.T, code ErrorCode, name string, args ...any) {
	t.Helper()
	_, err := callFn(t, name, args...)
	require.Error(t, err, "%s(%v)", name, args)
	sheetErr, ok := err.(*SpreadsheetError)
	require.True(t, ok, "%s(%v) error type %T", name, args, err)
	require.Equal(t, code, sheetErr.ErrorCode, "%s(%v)", name, args)
}

func TestUnknownFunctionIsNameError(t *testing.T) {
	requireFnErr(t, ErrorCodeName, "NOSUCHFN", 1.0)
}

func TestSerialDateRoundTrip(t *testing.T) {
	// round trip across the fictitious leap day and well beyond it
	for serial := 1; serial <= 100; serial++ {
		y, m, d := serialToDate(serial)
		require.Equal(t, serial, dateToSerial(y, m, d), "serial %d (%04d-%02d-%02d)", serial, y, m, d)
	}
	for serial := 39440; serial <= 39460; serial++ {
		y, m, d := serialToDate(serial)
		require.Equal(t, serial, dateToSerial(y, m, d), "serial %d", serial)
	}

	y, m, d := serialToDate(60)
	require.Equal(t, [3]int{1900, 2, 29}, [3]int{y, m, d})
	require.Equal(t, 60, dateToSerial(1900, 2, 29))
	require.Equal(t, 61, dateToSerial(1900, 3, 1))
}

func TestYearfracActualActualDenominator(t *testing.T) {
	// leap year at the start but Feb 29 outside the span: 365 denominator
	start := float64(dateToSerial(2004, 3, 1))
	end := float64(dateToSerial(2005, 2, 28))
	got, err := callFn(t, "YEARFRAC", start, end, 1.0)
	require.NoError(t, err)
	require.InDelta(t, 364.0/365.0, got.(float64), 1e-12)

	// Feb 29 inside the span: 366 denominator
	start = float64(dateToSerial(2004, 1, 1))
	end = float64(dateToSerial(2004, 12, 31))
	got, err = callFn(t, "YEARFRAC", start, end, 1.0)
	require.NoError(t, err)
	require.InDelta(t, 365.0/366.0, got.(float64), 1e-12)
}

func TestWildcardMatch(t *testing.T) {
	cases := []struct {
		pattern, value string
		want           bool
	}{
		{"abc", "abc", true},
		{"abc", "abcd", false},
		{"a*c", "abbbc", true},
		{"a*c", "ac", true},
		{"a?c", "abc", true},
		{"a?c", "ac", false},
		{"*", "anything", true},
		{"Th*t", "That", true},
		{"Th*t", "TheEnd", false},
	}
	for _, c := range cases {
		require.Equal(t, c.want, wildcardMatch(c.pattern, c.value), "%q vs %q", c.pattern, c.value)
	}
}

func TestCriterionParsing(t *testing.T) {
	crit := parseCriterion(">=5")
	require.True(t, crit.matches(5.0))
	require.True(t, crit.matches(6.0))
	require.False(t, crit.matches(4.0))

	crit = parseCriterion("<>x")
	require.True(t, crit.matches("y"))
	require.False(t, crit.matches("x"))

	crit = parseCriterion(3.0)
	require.True(t, crit.matches(3.0))
	require.False(t, crit.matches("3x"))

	crit = parseCriterion("ap*")
	require.True(t, crit.matches("APPLE"), "criteria matching is case-insensitive")
	require.False(t, crit.matches("grape"))
}

func TestBaseEncodingEdges(t *testing.T) {
	v, err := decodeBase("1111111110", 2)
	require.NoError(t, err)
	require.Equal(t, int64(-2), v)

	v, err = decodeBase("FFFFFFFFFE", 16)
	require.NoError(t, err)
	require.Equal(t, int64(-2), v)

	_, err = decodeBase("11111111101", 2)
	require.Error(t, err, "11 digits exceed the fixed width")

	digits, err := encodeBase(-2, 2, nil)
	require.NoError(t, err)
	require.Equal(t, "1111111110", digits)

	places := 4
	digits, err = encodeBase(9, 16, &places)
	require.NoError(t, err)
	require.Equal(t, "0009", digits)

	_, err = encodeBase(1<<39, 16, nil)
	require.Error(t, err, "the sign bit's value is out of range")
}

func TestPaymentAndPeriodsInverse(t *testing.T) {
	pmt, err := callFn(t, "PMT", 0.01, 24.0, 1000.0)
	require.NoError(t, err)

	nper, err := callFn(t, "NPER", 0.01, pmt, 1000.0)
	require.NoError(t, err)
	require.InDelta(t, 24.0, nper.(float64), 1e-9)
}

func TestFitOLSRankDeficientFallsBackToMean(t *testing.T) {
	fit, err := fitOLS([]float64{1, 2, 3}, [][]float64{{1}, {1}, {1}}, true)
	require.NoError(t, err)
	require.False(t, fit.fullRank)
	require.Equal(t, []float64{0, 2}, fit.coefs, "mean of Y as the sole coefficient")
}

func TestMatrixImplementsRange(t *testing.T) {
	m := &Matrix{Rows: [][]Primitive{{1.0, 2.0}, {3.0}}}

	bounds := m.GetBounds()
	require.Equal(t, uint32(1), bounds.EndRow)
	require.Equal(t, uint32(1), bounds.EndColumn)

	var values []Primitive
	for v := range m.IterateValues() {
		values = append(values, v)
	}
	require.Equal(t, []Primitive{1.0, 2.0, 3.0, nil}, values, "short rows pad with empty cells")

	var _ Range = m
}

func TestFunctionIdempotence(t *testing.T) {
	// pure library functions are referentially transparent
	for i := 0; i < 3; i++ {
		requireFnEq(t, 9.0, "BITAND", 13.0, 25.0)
		requireFnEq(t, "sheet", "MID", "spreadsheet", 7.0, 5.0)
		requireFnEq(t, 6.0, "SUM", 1.0, 2.0, 3.0)
	}
}
