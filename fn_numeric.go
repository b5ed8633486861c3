package spreadsheet

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

func init() {
	registerFunction("SUM", fnSum)
	registerFunction("AVERAGE", fnAverage)
	registerFunction("AVERAGEA", fnAverageA)
	registerFunction("COUNT", fnCount)
	registerFunction("COUNTA", fnCountA)
	registerFunction("MAX", fnMax)
	registerFunction("MIN", fnMin)
	registerFunction("MEDIAN", fnMedian)
	registerFunction("MODE", fnMode)
	registerFunction("ABS", fnAbs)
	registerFunction("ROUND", fnRound)
	registerFunction("FLOOR", fnFloor)
	registerFunction("CEILING", fnCeiling)
	registerFunction("SQRT", fnSqrt)
	registerFunction("POWER", fnPower)
	registerFunction("MOD", fnMod)
	registerFunction("PI", fnPi)
	registerFunction("LN", fnLn)
	registerFunction("LOG", fnLn) // natural log, aliased
	registerFunction("ATAN2", fnAtan2)
	registerFunction("SUMIF", fnSumif)
	registerFunction("COUNTIF", fnCountif)
	registerFunction("AVERAGEIF", fnAverageif)
	registerFunction("SUMIFS", fnSumifs)
	registerFunction("COUNTIFS", fnCountifs)
	registerFunction("AVERAGEIFS", fnAverageifs)
	registerFunction("MAXIFS", fnMaxifs)
	registerFunction("MINIFS", fnMinifs)
}

func fnSum(bf *BuiltInFunctions, sheet *Spreadsheet, args ...any) (Primitive, error) {
	sum := 0.0
	for _, arg := range args {
		if err := checkForError(arg); err != nil {
			return nil, err
		}
		if r, ok := arg.(Range); ok {
			for value := range r.IterateValues() {
				if err := checkForError(value); err != nil {
					return nil, err
				}
				if num, ok := toNumber(value); ok && !math.IsNaN(num) {
					sum += num
				}
			}
		} else if num, ok := toNumber(arg); ok && !math.IsNaN(num) {
			sum += num
		}
	}
	rounded, _ := strconv.ParseFloat(fmt.Sprintf("%.15f", sum), 64)
	return rounded, nil
}

func fnAverage(bf *BuiltInFunctions, sheet *Spreadsheet, args ...any) (Primitive, error) {
	sum := 0.0
	count := 0
	for _, arg := range args {
		if err := checkForError(arg); err != nil {
			return nil, err
		}
		if r, ok := arg.(Range); ok {
			for value := range r.IterateValues() {
				if err := checkForError(value); err != nil {
					return nil, err
				}
				if value != nil {
					if num, ok := toNumber(value); ok && !math.IsNaN(num) {
						sum += num
						count++
					}
				}
			}
		} else if num, ok := toNumber(arg); ok && !math.IsNaN(num) {
			sum += num
			count++
		}
	}
	if count == 0 {
		return nil, NewSpreadsheetError(ErrorCodeDiv0, "Division by zero")
	}
	return sum / float64(count), nil
}

func fnAverageA(bf *BuiltInFunctions, sheet *Spreadsheet, args ...any) (Primitive, error) {
	sum := 0.0
	count := 0
	processValue := func(value Primitive) error {
		if value == nil {
			return nil
		}
		if err := checkForError(value); err != nil {
			return err
		}
		switch v := value.(type) {
		case float64:
			sum += v
			count++
		case bool:
			if v {
				sum += 1
			}
			count++
		case string:
			count++
		}
		return nil
	}
	for _, arg := range args {
		if err := checkForError(arg); err != nil {
			return nil, err
		}
		if r, ok := arg.(Range); ok {
			for value := range r.IterateValues() {
				if err := processValue(value); err != nil {
					return nil, err
				}
			}
		} else if err := processValue(arg); err != nil {
			return nil, err
		}
	}
	if count == 0 {
		return nil, NewSpreadsheetError(ErrorCodeRef, "AVERAGEA has no values")
	}
	return sum / float64(count), nil
}

func fnCount(bf *BuiltInFunctions, sheet *Spreadsheet, args ...any) (Primitive, error) {
	count := 0
	shouldCount := func(value Primitive) bool {
		_, isNum := value.(float64)
		return isNum
	}
	for _, arg := range args {
		if err := checkForError(arg); err != nil {
			return nil, err
		}
		if r, ok := arg.(Range); ok {
			for value := range r.IterateValues() {
				if _, isErr := value.(*SpreadsheetError); !isErr && shouldCount(value) {
					count++
				}
			}
		} else if shouldCount(arg) {
			count++
		}
	}
	return float64(count), nil
}

func fnCountA(bf *BuiltInFunctions, sheet *Spreadsheet, args ...any) (Primitive, error) {
	count := 0
	for _, arg := range args {
		if err := checkForError(arg); err != nil {
			return nil, err
		}
		if r, ok := arg.(Range); ok {
			for value := range r.IterateValues() {
				if value != nil {
					count++
				}
			}
		} else {
			count++
		}
	}
	return float64(count), nil
}

func fnMax(bf *BuiltInFunctions, sheet *Spreadsheet, args ...any) (Primitive, error) {
	maxVal := math.Inf(-1)
	hasValues := false
	for _, arg := range args {
		if err := checkForError(arg); err != nil {
			return nil, err
		}
		if r, ok := arg.(Range); ok {
			for value := range r.IterateValues() {
				if err := checkForError(value); err != nil {
					return nil, err
				}
				if num, ok := toNumber(value); ok && !math.IsNaN(num) {
					if num > maxVal {
						maxVal = num
					}
					hasValues = true
				}
			}
		} else if num, ok := toNumber(arg); ok && !math.IsNaN(num) {
			if num > maxVal {
				maxVal = num
			}
			hasValues = true
		}
	}
	if hasValues {
		return maxVal, nil
	}
	return 0.0, nil
}

func fnMin(bf *BuiltInFunctions, sheet *Spreadsheet, args ...any) (Primitive, error) {
	minVal := math.Inf(1)
	hasValues := false
	for _, arg := range args {
		if err := checkForError(arg); err != nil {
			return nil, err
		}
		if r, ok := arg.(Range); ok {
			for value := range r.IterateValues() {
				if err := checkForError(value); err != nil {
					return nil, err
				}
				if num, ok := toNumber(value); ok && !math.IsNaN(num) {
					if num < minVal {
						minVal = num
					}
					hasValues = true
				}
			}
		} else if num, ok := toNumber(arg); ok && !math.IsNaN(num) {
			if num < minVal {
				minVal = num
			}
			hasValues = true
		}
	}
	if hasValues {
		return minVal, nil
	}
	return 0.0, nil
}

func fnMedian(bf *BuiltInFunctions, sheet *Spreadsheet, args ...any) (Primitive, error) {
	var values []float64
	for _, arg := range args {
		if err := checkForError(arg); err != nil {
			return nil, err
		}
		if r, ok := arg.(Range); ok {
			for value := range r.IterateValues() {
				if err := checkForError(value); err != nil {
					return nil, err
				}
				if num, ok := toNumber(value); ok && !math.IsNaN(num) {
					values = append(values, num)
				}
			}
		} else if num, ok := toNumber(arg); ok && !math.IsNaN(num) {
			values = append(values, num)
		}
	}
	if len(values) == 0 {
		return nil, NewSpreadsheetError(ErrorCodeNum, "MEDIAN has no numeric values")
	}
	sortFloats(values)
	mid := len(values) / 2
	if len(values)%2 == 0 {
		return (values[mid-1] + values[mid]) / 2, nil
	}
	return values[mid], nil
}

func fnMode(bf *BuiltInFunctions, sheet *Spreadsheet, args ...any) (Primitive, error) {
	frequencyMap := make(map[float64]int)
	for _, arg := range args {
		if err := checkForError(arg); err != nil {
			return nil, err
		}
		if r, ok := arg.(Range); ok {
			for value := range r.IterateValues() {
				if err := checkForError(value); err != nil {
					return nil, err
				}
				if num, ok := toNumber(value); ok && !math.IsNaN(num) {
					frequencyMap[num]++
				}
			}
		} else if num, ok := toNumber(arg); ok && !math.IsNaN(num) {
			frequencyMap[num]++
		}
	}
	if len(frequencyMap) == 0 {
		return nil, NewSpreadsheetError(ErrorCodeNum, "MODE has no numeric values")
	}
	maxFreq := 0
	for _, freq := range frequencyMap {
		if freq > maxFreq {
			maxFreq = freq
		}
	}
	var modes []float64
	for value, freq := range frequencyMap {
		if freq == maxFreq {
			modes = append(modes, value)
		}
	}
	if maxFreq == 1 && len(modes) == len(frequencyMap) {
		return nil, NewSpreadsheetError(ErrorCodeNA, "MODE: no value appears more than once")
	}
	sortFloats(modes)
	return modes[0], nil
}

func sortFloats(values []float64) {
	for i := 0; i < len(values); i++ {
		for j := i + 1; j < len(values); j++ {
			if values[j] < values[i] {
				values[i], values[j] = values[j], values[i]
			}
		}
	}
}

func fnAbs(bf *BuiltInFunctions, sheet *Spreadsheet, args ...any) (Primitive, error) {
	if len(args) != 1 {
		return nil, NewSpreadsheetError(ErrorCodeNA, "ABS requires exactly 1 argument")
	}
	if err := checkForError(args[0]); err != nil {
		return nil, err
	}
	num, ok := toNumber(args[0])
	if !ok {
		return nil, NewSpreadsheetError(ErrorCodeValue, "ABS requires a numeric argument")
	}
	return math.Abs(num), nil
}

func fnRound(bf *BuiltInFunctions, sheet *Spreadsheet, args ...any) (Primitive, error) {
	if len(args) < 1 || len(args) > 2 {
		return nil, NewSpreadsheetError(ErrorCodeNA, "ROUND requires 1 or 2 arguments")
	}
	for _, arg := range args {
		if err := checkForError(arg); err != nil {
			return nil, err
		}
	}
	num, ok := toNumber(args[0])
	if !ok {
		return nil, NewSpreadsheetError(ErrorCodeValue, "ROUND requires a numeric first argument")
	}
	places := 0.0
	if len(args) == 2 {
		places, ok = toNumber(args[1])
		if !ok {
			return nil, NewSpreadsheetError(ErrorCodeValue, "ROUND requires a numeric second argument")
		}
	}
	multiplier := math.Pow(10, places)
	return math.Round(num*multiplier) / multiplier, nil
}

func fnFloor(bf *BuiltInFunctions, sheet *Spreadsheet, args ...any) (Primitive, error) {
	if len(args) != 1 {
		return nil, NewSpreadsheetError(ErrorCodeNA, "FLOOR requires exactly 1 argument")
	}
	if err := checkForError(args[0]); err != nil {
		return nil, err
	}
	num, ok := toNumber(args[0])
	if !ok {
		return nil, NewSpreadsheetError(ErrorCodeValue, "FLOOR requires a numeric argument")
	}
	return math.Floor(num), nil
}

func fnCeiling(bf *BuiltInFunctions, sheet *Spreadsheet, args ...any) (Primitive, error) {
	if len(args) != 1 {
		return nil, NewSpreadsheetError(ErrorCodeNA, "CEILING requires exactly 1 argument")
	}
	if err := checkForError(args[0]); err != nil {
		return nil, err
	}
	num, ok := toNumber(args[0])
	if !ok {
		return nil, NewSpreadsheetError(ErrorCodeValue, "CEILING requires a numeric argument")
	}
	return math.Ceil(num), nil
}

func fnSqrt(bf *BuiltInFunctions, sheet *Spreadsheet, args ...any) (Primitive, error) {
	if len(args) != 1 {
		return nil, NewSpreadsheetError(ErrorCodeNA, "SQRT requires exactly 1 argument")
	}
	if err := checkForError(args[0]); err != nil {
		return nil, err
	}
	num, ok := toNumber(args[0])
	if !ok {
		return nil, NewSpreadsheetError(ErrorCodeValue, "SQRT requires a numeric argument")
	}
	if num < 0 {
		return nil, NewSpreadsheetError(ErrorCodeNum, "SQRT requires a non-negative argument")
	}
	return math.Sqrt(num), nil
}

func fnPower(bf *BuiltInFunctions, sheet *Spreadsheet, args ...any) (Primitive, error) {
	if len(args) != 2 {
		return nil, NewSpreadsheetError(ErrorCodeNA, "POWER requires exactly 2 arguments")
	}
	for _, arg := range args {
		if err := checkForError(arg); err != nil {
			return nil, err
		}
	}
	base, ok1 := toNumber(args[0])
	exp, ok2 := toNumber(args[1])
	if !ok1 || !ok2 {
		return nil, NewSpreadsheetError(ErrorCodeValue, "POWER requires numeric arguments")
	}
	return math.Pow(base, exp), nil
}

func fnMod(bf *BuiltInFunctions, sheet *Spreadsheet, args ...any) (Primitive, error) {
	if len(args) != 2 {
		return nil, NewSpreadsheetError(ErrorCodeNA, "MOD requires exactly 2 arguments")
	}
	for _, arg := range args {
		if err := checkForError(arg); err != nil {
			return nil, err
		}
	}
	dividend, ok1 := toNumber(args[0])
	divisor, ok2 := toNumber(args[1])
	if !ok1 || !ok2 {
		return nil, NewSpreadsheetError(ErrorCodeValue, "MOD requires numeric arguments")
	}
	if divisor == 0 {
		return nil, NewSpreadsheetError(ErrorCodeDiv0, "Division by zero")
	}
	return math.Mod(dividend, divisor), nil
}

func fnPi(bf *BuiltInFunctions, sheet *Spreadsheet, args ...any) (Primitive, error) {
	if len(args) != 0 {
		return nil, NewSpreadsheetError(ErrorCodeNA, "PI takes no arguments")
	}
	return math.Pi, nil
}

func fnLn(bf *BuiltInFunctions, sheet *Spreadsheet, args ...any) (Primitive, error) {
	if len(args) != 1 {
		return nil, NewSpreadsheetError(ErrorCodeNA, "LN requires exactly 1 argument")
	}
	if err := checkForError(args[0]); err != nil {
		return nil, err
	}
	num, ok := toNumber(args[0])
	if !ok {
		return nil, NewSpreadsheetError(ErrorCodeValue, "LN requires a numeric argument")
	}
	if num <= 0 {
		return nil, NewSpreadsheetError(ErrorCodeNum, "LN requires a positive argument")
	}
	return math.Log(num), nil
}

// fnAtan2 takes its arguments in spreadsheet order (x, y) - the reverse of
// math.Atan2's (y, x) - matching Excel's ATAN2.
func fnAtan2(bf *BuiltInFunctions, sheet *Spreadsheet, args ...any) (Primitive, error) {
	if len(args) != 2 {
		return nil, NewSpreadsheetError(ErrorCodeNA, "ATAN2 requires exactly 2 arguments")
	}
	for _, arg := range args {
		if err := checkForError(arg); err != nil {
			return nil, err
		}
	}
	x, ok1 := toNumber(args[0])
	y, ok2 := toNumber(args[1])
	if !ok1 || !ok2 {
		return nil, NewSpreadsheetError(ErrorCodeValue, "ATAN2 requires numeric arguments")
	}
	if x == 0 && y == 0 {
		return nil, NewSpreadsheetError(ErrorCodeDiv0, "Division by zero")
	}
	return math.Atan2(y, x), nil
}

// criterion parses one …IF/…IFS criterion: either a bare value compared for
// equality, or a string led by a comparison operator (<, <=, >, >=, <>)
// followed by the operand. Wildcards ? and * apply only to string equality.
type criterion struct {
	op      string
	operand Primitive
}

func parseCriterion(raw Primitive) criterion {
	s, isStr := raw.(string)
	if !isStr {
		return criterion{op: "=", operand: raw}
	}
	for _, op := range []string{"<=", ">=", "<>", "<", ">", "="} {
		if strings.HasPrefix(s, op) {
			rest := strings.TrimPrefix(s, op)
			if num, err := strconv.ParseFloat(rest, 64); err == nil {
				return criterion{op: op, operand: num}
			}
			return criterion{op: op, operand: rest}
		}
	}
	return criterion{op: "=", operand: raw}
}

func (c criterion) matches(value Primitive) bool {
	if c.op != "=" && c.op != "<>" {
		num, numOk := toNumber(value)
		operandNum, operandOk := toNumber(c.operand)
		if !numOk || !operandOk {
			return false
		}
		switch c.op {
		case "<":
			return num < operandNum
		case "<=":
			return num <= operandNum
		case ">":
			return num > operandNum
		case ">=":
			return num >= operandNum
		}
	}

	if operandStr, ok := c.operand.(string); ok {
		matched := wildcardMatch(strings.ToUpper(operandStr), strings.ToUpper(toString(value)))
		if c.op == "<>" {
			return !matched
		}
		return matched
	}

	eq := comparePrimitives(value, c.operand) == 0
	if c.op == "<>" {
		return !eq
	}
	return eq
}

// wildcardMatch implements Excel's ? (single char) and * (any run) criteria
// wildcards over full-string equality matching.
func wildcardMatch(pattern, value string) bool {
	if !strings.ContainsAny(pattern, "?*") {
		return pattern == value
	}
	return wildcardMatchRunes([]rune(pattern), []rune(value))
}

func wildcardMatchRunes(pattern, value []rune) bool {
	if len(pattern) == 0 {
		return len(value) == 0
	}
	switch pattern[0] {
	case '*':
		for i := 0; i <= len(value); i++ {
			if wildcardMatchRunes(pattern[1:], value[i:]) {
				return true
			}
		}
		return false
	case '?':
		if len(value) == 0 {
			return false
		}
		return wildcardMatchRunes(pattern[1:], value[1:])
	default:
		if len(value) == 0 || pattern[0] != value[0] {
			return false
		}
		return wildcardMatchRunes(pattern[1:], value[1:])
	}
}

func rangeArg(arg any) (Range, error) {
	r, ok := arg.(Range)
	if !ok {
		return nil, NewSpreadsheetError(ErrorCodeValue, "expected a range argument")
	}
	return r, nil
}

func fnSumif(bf *BuiltInFunctions, sheet *Spreadsheet, args ...any) (Primitive, error) {
	if len(args) < 2 || len(args) > 3 {
		return nil, NewSpreadsheetError(ErrorCodeNA, "SUMIF requires 2 or 3 arguments")
	}
	criteriaRange, err := rangeArg(args[0])
	if err != nil {
		return nil, err
	}
	crit := parseCriterion(args[1])
	sumRange := criteriaRange
	if len(args) == 3 {
		sumRange, err = rangeArg(args[2])
		if err != nil {
			return nil, err
		}
	}
	criteriaValues := flattenRange(criteriaRange)
	sumValues := flattenRange(sumRange)
	sum := 0.0
	for i, cv := range criteriaValues {
		if i >= len(sumValues) {
			break
		}
		if crit.matches(cv) {
			if num, ok := toNumber(sumValues[i]); ok {
				sum += num
			}
		}
	}
	return sum, nil
}

func fnCountif(bf *BuiltInFunctions, sheet *Spreadsheet, args ...any) (Primitive, error) {
	if len(args) != 2 {
		return nil, NewSpreadsheetError(ErrorCodeNA, "COUNTIF requires 2 arguments")
	}
	criteriaRange, err := rangeArg(args[0])
	if err != nil {
		return nil, err
	}
	crit := parseCriterion(args[1])
	count := 0
	for _, cv := range flattenRange(criteriaRange) {
		if crit.matches(cv) {
			count++
		}
	}
	return float64(count), nil
}

func fnAverageif(bf *BuiltInFunctions, sheet *Spreadsheet, args ...any) (Primitive, error) {
	if len(args) < 2 || len(args) > 3 {
		return nil, NewSpreadsheetError(ErrorCodeNA, "AVERAGEIF requires 2 or 3 arguments")
	}
	criteriaRange, err := rangeArg(args[0])
	if err != nil {
		return nil, err
	}
	crit := parseCriterion(args[1])
	avgRange := criteriaRange
	if len(args) == 3 {
		avgRange, err = rangeArg(args[2])
		if err != nil {
			return nil, err
		}
	}
	criteriaValues := flattenRange(criteriaRange)
	avgValues := flattenRange(avgRange)
	sum := 0.0
	count := 0
	for i, cv := range criteriaValues {
		if i >= len(avgValues) {
			break
		}
		if crit.matches(cv) {
			if num, ok := toNumber(avgValues[i]); ok {
				sum += num
				count++
			}
		}
	}
	if count == 0 {
		return nil, NewSpreadsheetError(ErrorCodeDiv0, "Division by zero")
	}
	return sum / float64(count), nil
}

// pairedCriteria parses the (criteria-range, criterion) pairs shared by the
// …IFS family, returning the parsed criteria alongside their flattened
// value slices, all assumed to be the same shape as the first range.
func pairedCriteria(args []any) ([]criterion, [][]Primitive, error) {
	if len(args)%2 != 0 {
		return nil, nil, NewSpreadsheetError(ErrorCodeNA, "expected an even number of criteria-range, criterion pairs")
	}
	criteria := make([]criterion, 0, len(args)/2)
	values := make([][]Primitive, 0, len(args)/2)
	for i := 0; i+1 < len(args); i += 2 {
		r, err := rangeArg(args[i])
		if err != nil {
			return nil, nil, err
		}
		criteria = append(criteria, parseCriterion(args[i+1]))
		values = append(values, flattenRange(r))
	}
	return criteria, values, nil
}

func fnSumifs(bf *BuiltInFunctions, sheet *Spreadsheet, args ...any) (Primitive, error) {
	if len(args) < 3 {
		return nil, NewSpreadsheetError(ErrorCodeNA, "SUMIFS requires a sum range and at least one criteria pair")
	}
	sumRange, err := rangeArg(args[0])
	if err != nil {
		return nil, err
	}
	criteria, values, err := pairedCriteria(args[1:])
	if err != nil {
		return nil, err
	}
	sumValues := flattenRange(sumRange)
	sum := 0.0
	for i := range sumValues {
		if !allCriteriaMatch(criteria, values, i) {
			continue
		}
		if num, ok := toNumber(sumValues[i]); ok {
			sum += num
		}
	}
	return sum, nil
}

func fnCountifs(bf *BuiltInFunctions, sheet *Spreadsheet, args ...any) (Primitive, error) {
	criteria, values, err := pairedCriteria(args)
	if err != nil {
		return nil, err
	}
	if len(values) == 0 {
		return 0.0, nil
	}
	count := 0
	for i := range values[0] {
		if allCriteriaMatch(criteria, values, i) {
			count++
		}
	}
	return float64(count), nil
}

func fnAverageifs(bf *BuiltInFunctions, sheet *Spreadsheet, args ...any) (Primitive, error) {
	if len(args) < 3 {
		return nil, NewSpreadsheetError(ErrorCodeNA, "AVERAGEIFS requires an average range and at least one criteria pair")
	}
	avgRange, err := rangeArg(args[0])
	if err != nil {
		return nil, err
	}
	criteria, values, err := pairedCriteria(args[1:])
	if err != nil {
		return nil, err
	}
	avgValues := flattenRange(avgRange)
	sum := 0.0
	count := 0
	for i := range avgValues {
		if !allCriteriaMatch(criteria, values, i) {
			continue
		}
		if num, ok := toNumber(avgValues[i]); ok {
			sum += num
			count++
		}
	}
	if count == 0 {
		return nil, NewSpreadsheetError(ErrorCodeDiv0, "Division by zero")
	}
	return sum / float64(count), nil
}

func fnMaxifs(bf *BuiltInFunctions, sheet *Spreadsheet, args ...any) (Primitive, error) {
	return ifsExtreme(args, func(a, b float64) bool { return a > b }, math.Inf(-1))
}

func fnMinifs(bf *BuiltInFunctions, sheet *Spreadsheet, args ...any) (Primitive, error) {
	return ifsExtreme(args, func(a, b float64) bool { return a < b }, math.Inf(1))
}

func ifsExtreme(args []any, better func(a, b float64) bool, seed float64) (Primitive, error) {
	if len(args) < 3 {
		return nil, NewSpreadsheetError(ErrorCodeNA, "requires a value range and at least one criteria pair")
	}
	valueRange, err := rangeArg(args[0])
	if err != nil {
		return nil, err
	}
	criteria, values, err := pairedCriteria(args[1:])
	if err != nil {
		return nil, err
	}
	extremeValues := flattenRange(valueRange)
	result := seed
	found := false
	for i := range extremeValues {
		if !allCriteriaMatch(criteria, values, i) {
			continue
		}
		if num, ok := toNumber(extremeValues[i]); ok {
			if !found || better(num, result) {
				result = num
			}
			found = true
		}
	}
	if !found {
		return 0.0, nil
	}
	return result, nil
}

func allCriteriaMatch(criteria []criterion, values [][]Primitive, index int) bool {
	for j, crit := range criteria {
		if index >= len(values[j]) || !crit.matches(values[j][index]) {
			return false
		}
	}
	return true
}
