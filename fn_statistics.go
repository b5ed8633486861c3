package spreadsheet

import (
	"math"
)

func init() {
	registerFunction("LARGE", fnLarge)
	registerFunction("SMALL", fnSmall)
	registerFunction("LINEST", fnLinest)
	registerFunction("SLOPE", fnSlope)
	registerFunction("INTERCEPT", fnIntercept)
	registerFunction("FORECAST", fnForecast)
	registerFunction("TREND", fnTrend)
	registerFunction("VAR", fnVar)
	registerFunction("STDEV", fnStdev)
}

// numericVector flattens a Range, an array literal's Matrix, or a single
// scalar into a slice of numbers, the same loose coercion SUM/AVERAGE use
// elsewhere in this package.
func numericVector(arg any) ([]float64, error) {
	if err := checkForError(arg); err != nil {
		return nil, err
	}
	var values []float64
	switch v := arg.(type) {
	case Range:
		// array-literal matrices arrive here too: *Matrix implements Range
		for value := range v.IterateValues() {
			if err := checkForError(value); err != nil {
				return nil, err
			}
			if num, ok := toNumber(value); ok {
				values = append(values, num)
			}
		}
	default:
		if num, ok := toNumber(arg); ok {
			values = append(values, num)
		}
	}
	return values, nil
}

// numericMatrix flattens a Range or Matrix into a row-major n x k grid of
// numbers. A bare scalar is treated as a 1x1 matrix.
func numericMatrix(arg any) ([][]float64, error) {
	if err := checkForError(arg); err != nil {
		return nil, err
	}
	switch v := arg.(type) {
	case Range:
		grid := rangeGrid(v)
		out := make([][]float64, len(grid))
		for i, row := range grid {
			out[i] = make([]float64, len(row))
			for j, cell := range row {
				num, _ := toNumber(cell)
				out[i][j] = num
			}
		}
		return out, nil
	default:
		num, ok := toNumber(arg)
		if !ok {
			return nil, NewSpreadsheetError(ErrorCodeValue, "expected a numeric argument")
		}
		return [][]float64{{num}}, nil
	}
}

// asColumns reshapes a flat or transposed matrix into n rows by k columns,
// where n is the known vector length: LINEST and friends accept known_x's
// laid out either as a row per observation or a column per observation.
func asColumns(m [][]float64, n int) [][]float64 {
	if len(m) == n {
		return m
	}
	if len(m) > 0 && len(m[0]) == n {
		cols := make([][]float64, n)
		for i := 0; i < n; i++ {
			cols[i] = make([]float64, len(m))
			for j := range m {
				cols[i][j] = m[j][i]
			}
		}
		return cols
	}
	return m
}

func fnLarge(bf *BuiltInFunctions, sheet *Spreadsheet, args ...any) (Primitive, error) {
	if len(args) != 2 {
		return nil, NewSpreadsheetError(ErrorCodeNA, "LARGE requires exactly 2 arguments")
	}
	return nthExtreme(args[0], args[1], true)
}

func fnSmall(bf *BuiltInFunctions, sheet *Spreadsheet, args ...any) (Primitive, error) {
	if len(args) != 2 {
		return nil, NewSpreadsheetError(ErrorCodeNA, "SMALL requires exactly 2 arguments")
	}
	return nthExtreme(args[0], args[1], false)
}

func nthExtreme(arrayArg, kArg any, largest bool) (Primitive, error) {
	values, err := numericVector(arrayArg)
	if err != nil {
		return nil, err
	}
	if err := checkForError(kArg); err != nil {
		return nil, err
	}
	kNum, ok := toNumber(kArg)
	if !ok {
		return nil, NewSpreadsheetError(ErrorCodeValue, "expected a numeric rank")
	}
	k := int(math.Ceil(kNum))
	if len(values) == 0 || k < 1 || k > len(values) {
		return nil, NewSpreadsheetError(ErrorCodeNum, "rank out of range")
	}
	sorted := append([]float64{}, values...)
	sortFloats(sorted)
	if largest {
		return sorted[len(sorted)-k], nil
	}
	return sorted[k-1], nil
}

// sampleVariance gathers every numeric value across the arguments and
// computes the n-1 denominator (sample) variance shared by VAR and STDEV.
func sampleVariance(args []any) (float64, error) {
	var values []float64
	for _, arg := range args {
		vs, err := numericVector(arg)
		if err != nil {
			return 0, err
		}
		values = append(values, vs...)
	}
	if len(values) < 2 {
		return 0, NewSpreadsheetError(ErrorCodeDiv0, "sample variance requires at least two values")
	}
	mean := meanOf(values)
	sum := 0.0
	for _, v := range values {
		sum += (v - mean) * (v - mean)
	}
	return sum / float64(len(values)-1), nil
}

func fnVar(bf *BuiltInFunctions, sheet *Spreadsheet, args ...any) (Primitive, error) {
	if len(args) == 0 {
		return nil, NewSpreadsheetError(ErrorCodeNA, "VAR requires at least one argument")
	}
	v, err := sampleVariance(args)
	if err != nil {
		return nil, err
	}
	return v, nil
}

func fnStdev(bf *BuiltInFunctions, sheet *Spreadsheet, args ...any) (Primitive, error) {
	if len(args) == 0 {
		return nil, NewSpreadsheetError(ErrorCodeNA, "STDEV requires at least one argument")
	}
	v, err := sampleVariance(args)
	if err != nil {
		return nil, err
	}
	return math.Sqrt(v), nil
}

// olsFit is an ordinary-least-squares fit of y against the columns of x
// (an n x k matrix), optionally with an intercept term. coefs is always
// k+1 long and ordered [x_k, x_(k-1), ..., x_1, intercept] - the same
// highest-column-first, intercept-last order LINEST reports - with the
// intercept forced to 0 when withConst is false rather than dropped, so a
// caller never has to special-case the array's width on const.
type olsFit struct {
	coefs    []float64
	fullRank bool
}

func fitOLS(y []float64, x [][]float64, withConst bool) (olsFit, error) {
	n := len(y)
	if n == 0 || len(x) != n || len(x[0]) == 0 {
		return olsFit{}, NewSpreadsheetError(ErrorCodeRef, "mismatched known_y's and known_x's")
	}
	k := len(x[0])
	p := k
	if withConst {
		p = k + 1
	}

	a := make([][]float64, n)
	for i := 0; i < n; i++ {
		row := make([]float64, p)
		col := 0
		if withConst {
			row[0] = 1
			col = 1
		}
		for j := 0; j < k; j++ {
			row[col+j] = x[i][j]
		}
		a[i] = row
	}

	raw, fullRank := solveNormalEquations(a, y)

	coefs := make([]float64, k+1)
	if !fullRank {
		mean := meanOf(y)
		coefs[k] = mean
		return olsFit{coefs: coefs, fullRank: false}, nil
	}

	if withConst {
		// raw = [intercept, x_1, ..., x_k]; reversed is [x_k, ..., x_1, intercept]
		for i := 0; i <= k; i++ {
			coefs[i] = raw[k-i]
		}
	} else {
		// raw = [x_1, ..., x_k], intercept forced to 0
		for i := 0; i < k; i++ {
			coefs[i] = raw[k-1-i]
		}
		coefs[k] = 0
	}
	return olsFit{coefs: coefs, fullRank: true}, nil
}

func meanOf(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	sum := 0.0
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}

// predictOLS evaluates a fitted model (in LINEST's coefs order) at one
// observation's x values.
func predictOLS(coefs []float64, xRow []float64) float64 {
	k := len(xRow)
	y := coefs[k] // intercept (or forced 0)
	for j := 0; j < k; j++ {
		y += coefs[k-1-j] * xRow[j]
	}
	return y
}

// rSquared reports the fit's coefficient of determination, computed from
// the reported coefficients rather than the raw solve so it stays
// consistent with whatever LINEST actually reports (including the
// mean-only fallback for a rank-deficient fit).
func rSquared(y []float64, x [][]float64, coefs []float64) float64 {
	mean := meanOf(y)
	ssTotal, ssResid := 0.0, 0.0
	for i, yi := range y {
		predicted := predictOLS(coefs, x[i])
		ssResid += (yi - predicted) * (yi - predicted)
		ssTotal += (yi - mean) * (yi - mean)
	}
	if ssTotal == 0 {
		return 1
	}
	return 1 - ssResid/ssTotal
}

// solveNormalEquations solves the p x p system (A^T A) c = A^T y by
// Gaussian elimination with partial pivoting, the direct way to solve a
// small least-squares fit without pulling in a linear-algebra dependency
// for what is, at spreadsheet scale, always a handful of regressors.
func solveNormalEquations(a [][]float64, y []float64) ([]float64, bool) {
	n := len(a)
	p := len(a[0])

	ata := make([][]float64, p)
	aty := make([]float64, p)
	for i := 0; i < p; i++ {
		ata[i] = make([]float64, p)
		for j := 0; j < p; j++ {
			sum := 0.0
			for row := 0; row < n; row++ {
				sum += a[row][i] * a[row][j]
			}
			ata[i][j] = sum
		}
		sum := 0.0
		for row := 0; row < n; row++ {
			sum += a[row][i] * y[row]
		}
		aty[i] = sum
	}

	return gaussianSolve(ata, aty)
}

// gaussianSolve solves the square system a*x = b via Gaussian elimination
// with partial pivoting. Returns ok=false if the system is singular (the
// fit is rank-deficient).
func gaussianSolve(a [][]float64, b []float64) ([]float64, bool) {
	n := len(b)
	aug := make([][]float64, n)
	for i := range a {
		row := make([]float64, n+1)
		copy(row, a[i])
		row[n] = b[i]
		aug[i] = row
	}

	for col := 0; col < n; col++ {
		pivot := col
		maxVal := math.Abs(aug[col][col])
		for row := col + 1; row < n; row++ {
			if math.Abs(aug[row][col]) > maxVal {
				maxVal = math.Abs(aug[row][col])
				pivot = row
			}
		}
		if maxVal < 1e-9 {
			return nil, false
		}
		aug[col], aug[pivot] = aug[pivot], aug[col]
		for row := col + 1; row < n; row++ {
			factor := aug[row][col] / aug[col][col]
			for c := col; c <= n; c++ {
				aug[row][c] -= factor * aug[col][c]
			}
		}
	}

	x := make([]float64, n)
	for i := n - 1; i >= 0; i-- {
		sum := aug[i][n]
		for j := i + 1; j < n; j++ {
			sum -= aug[i][j] * x[j]
		}
		x[i] = sum / aug[i][i]
	}
	return x, true
}

// linestInputs parses LINEST/TREND's known_x's argument, defaulting to the
// index vector 1..n when the caller omitted it.
func linestInputs(xArg any, n int) ([][]float64, error) {
	if xArg == nil {
		x := make([][]float64, n)
		for i := 0; i < n; i++ {
			x[i] = []float64{float64(i + 1)}
		}
		return x, nil
	}
	raw, err := numericMatrix(xArg)
	if err != nil {
		return nil, err
	}
	return asColumns(raw, n), nil
}

// fnLinest fits y = m_k*x_k + ... + m_1*x_1 + b by ordinary least squares.
// Spread across multiple cells (entered as an array formula), each cell
// reports the coefficient at its position in the run - highest-indexed
// regressor first, intercept last - per the run tracked by the spreadsheet
// for identical neighboring formulas. A run exactly one cell longer than
// the coefficient count additionally reports R-squared in that extra cell.
func fnLinest(bf *BuiltInFunctions, sheet *Spreadsheet, args ...any) (Primitive, error) {
	if len(args) < 1 || len(args) > 4 {
		return nil, NewSpreadsheetError(ErrorCodeNA, "LINEST requires 1 to 4 arguments")
	}
	y, err := numericVector(args[0])
	if err != nil {
		return nil, err
	}
	var xArg any
	if len(args) >= 2 && args[1] != nil {
		xArg = args[1]
	}
	withConst := true
	if len(args) >= 3 && args[2] != nil {
		if err := checkForError(args[2]); err != nil {
			return nil, err
		}
		withConst = isTruthy(args[2])
	}

	x, err := linestInputs(xArg, len(y))
	if err != nil {
		return nil, err
	}
	fit, err := fitOLS(y, x, withConst)
	if err != nil {
		return nil, err
	}

	run := sheet.arrayRunFor(sheet.GetCurrentAddress())
	nCoefs := len(fit.coefs)
	if run.coefIndex == nCoefs+1 {
		return rSquared(y, x, fit.coefs), nil
	}
	if run.coefIndex < 1 || run.coefIndex > nCoefs {
		return NewSpreadsheetError(ErrorCodeNA, ErrorMapper[ErrorCodeNA]), nil
	}
	return fit.coefs[run.coefIndex-1], nil
}

// slopeIntercept fits the simple linear regression y = m*x + b shared by
// SLOPE, INTERCEPT, and FORECAST.
func slopeIntercept(yArg, xArg any) (olsFit, error) {
	y, err := numericVector(yArg)
	if err != nil {
		return olsFit{}, err
	}
	xFlat, err := numericVector(xArg)
	if err != nil {
		return olsFit{}, err
	}
	if len(xFlat) != len(y) {
		return olsFit{}, NewSpreadsheetError(ErrorCodeNA, "known_y's and known_x's must be the same size")
	}
	x := make([][]float64, len(xFlat))
	for i, v := range xFlat {
		x[i] = []float64{v}
	}
	return fitOLS(y, x, true)
}

func fnSlope(bf *BuiltInFunctions, sheet *Spreadsheet, args ...any) (Primitive, error) {
	if len(args) != 2 {
		return nil, NewSpreadsheetError(ErrorCodeNA, "SLOPE requires exactly 2 arguments")
	}
	fit, err := slopeIntercept(args[0], args[1])
	if err != nil {
		return nil, err
	}
	if !fit.fullRank {
		return nil, NewSpreadsheetError(ErrorCodeDiv0, "Division by zero")
	}
	return fit.coefs[0], nil
}

func fnIntercept(bf *BuiltInFunctions, sheet *Spreadsheet, args ...any) (Primitive, error) {
	if len(args) != 2 {
		return nil, NewSpreadsheetError(ErrorCodeNA, "INTERCEPT requires exactly 2 arguments")
	}
	fit, err := slopeIntercept(args[0], args[1])
	if err != nil {
		return nil, err
	}
	if !fit.fullRank {
		return nil, NewSpreadsheetError(ErrorCodeDiv0, "Division by zero")
	}
	return fit.coefs[1], nil
}

func fnForecast(bf *BuiltInFunctions, sheet *Spreadsheet, args ...any) (Primitive, error) {
	if len(args) != 3 {
		return nil, NewSpreadsheetError(ErrorCodeNA, "FORECAST requires exactly 3 arguments")
	}
	if err := checkForError(args[0]); err != nil {
		return nil, err
	}
	newX, ok := toNumber(args[0])
	if !ok {
		return nil, NewSpreadsheetError(ErrorCodeValue, "FORECAST requires a numeric first argument")
	}
	fit, err := slopeIntercept(args[1], args[2])
	if err != nil {
		return nil, err
	}
	if !fit.fullRank {
		return nil, NewSpreadsheetError(ErrorCodeDiv0, "Division by zero")
	}
	return fit.coefs[0]*newX + fit.coefs[1], nil
}

// fnTrend fits y against x the same way LINEST does, then evaluates the
// fit at one or more new_x values. Array-entered across several cells, the
// run position (tracked the same way as LINEST's) selects which new_x
// observation this cell reports; called as a plain scalar formula it
// reports the fit at new_x's first (and typically only) observation.
func fnTrend(bf *BuiltInFunctions, sheet *Spreadsheet, args ...any) (Primitive, error) {
	if len(args) < 1 || len(args) > 4 {
		return nil, NewSpreadsheetError(ErrorCodeNA, "TREND requires 1 to 4 arguments")
	}
	y, err := numericVector(args[0])
	if err != nil {
		return nil, err
	}
	var xArg any
	if len(args) >= 2 && args[1] != nil {
		xArg = args[1]
	}
	withConst := true
	if len(args) >= 4 && args[3] != nil {
		if err := checkForError(args[3]); err != nil {
			return nil, err
		}
		withConst = isTruthy(args[3])
	}

	x, err := linestInputs(xArg, len(y))
	if err != nil {
		return nil, err
	}
	fit, err := fitOLS(y, x, withConst)
	if err != nil {
		return nil, err
	}

	var newX [][]float64
	if len(args) >= 3 && args[2] != nil {
		raw, err := numericMatrix(args[2])
		if err != nil {
			return nil, err
		}
		newX = asColumns(raw, len(raw))
		if len(newX) > 0 && len(newX[0]) != len(x[0]) {
			// accept a single flattened row/column of new_x's against a
			// single-regressor fit, the common TREND(known_y's, known_x's, new_x's) shape
			if len(x[0]) == 1 {
				flat, _ := numericVector(args[2])
				newX = make([][]float64, len(flat))
				for i, v := range flat {
					newX[i] = []float64{v}
				}
			}
		}
	} else {
		newX = x
	}

	if len(newX) == 0 {
		return nil, NewSpreadsheetError(ErrorCodeRef, "TREND requires at least one new_x observation")
	}

	run := sheet.arrayRunFor(sheet.GetCurrentAddress())
	idx := run.coefIndex - 1
	if idx < 0 || idx >= len(newX) {
		idx = 0
	}
	return predictOLS(fit.coefs, newX[idx]), nil
}
