package spreadsheet

import (
	"fmt"
	"strconv"
	"strings"
)

func init() {
	registerFunction("CONCATENATE", fnConcatenate)
	registerFunction("CONCAT", fnConcatenate)
	registerFunction("LEN", fnLen)
	registerFunction("UPPER", fnUpper)
	registerFunction("LOWER", fnLower)
	registerFunction("TRIM", fnTrim)
	registerFunction("LEFT", fnLeft)
	registerFunction("RIGHT", fnRight)
	registerFunction("MID", fnMid)
	registerFunction("FIND", fnFind)
	registerFunction("REPLACE", fnReplace)
	registerFunction("SUBSTITUTE", fnSubstitute)
	registerFunction("VALUE", fnValue)
	registerFunction("TEXT", fnText)
	registerFunction("DOLLAR", fnDollar)
	registerFunction("FIXED", fnFixed)
}

func fnConcatenate(bf *BuiltInFunctions, sheet *Spreadsheet, args ...any) (Primitive, error) {
	var result strings.Builder
	for _, arg := range args {
		if err := checkForError(arg); err != nil {
			return nil, err
		}
		result.WriteString(toString(arg))
	}
	return result.String(), nil
}

func fnLen(bf *BuiltInFunctions, sheet *Spreadsheet, args ...any) (Primitive, error) {
	if len(args) != 1 {
		return nil, NewSpreadsheetError(ErrorCodeNA, "LEN requires exactly 1 argument")
	}
	if err := checkForError(args[0]); err != nil {
		return nil, err
	}
	return float64(len([]rune(toString(args[0])))), nil
}

func fnUpper(bf *BuiltInFunctions, sheet *Spreadsheet, args ...any) (Primitive, error) {
	if len(args) != 1 {
		return nil, NewSpreadsheetError(ErrorCodeNA, "UPPER requires exactly 1 argument")
	}
	if err := checkForError(args[0]); err != nil {
		return nil, err
	}
	return strings.ToUpper(toString(args[0])), nil
}

func fnLower(bf *BuiltInFunctions, sheet *Spreadsheet, args ...any) (Primitive, error) {
	if len(args) != 1 {
		return nil, NewSpreadsheetError(ErrorCodeNA, "LOWER requires exactly 1 argument")
	}
	if err := checkForError(args[0]); err != nil {
		return nil, err
	}
	return strings.ToLower(toString(args[0])), nil
}

// fnTrim collapses runs of interior spaces to one, mirroring the spreadsheet
// TRIM text function (distinct from strings.TrimSpace, which leaves interior
// runs alone).
func fnTrim(bf *BuiltInFunctions, sheet *Spreadsheet, args ...any) (Primitive, error) {
	if len(args) != 1 {
		return nil, NewSpreadsheetError(ErrorCodeNA, "TRIM requires exactly 1 argument")
	}
	if err := checkForError(args[0]); err != nil {
		return nil, err
	}
	fields := strings.Fields(toString(args[0]))
	return strings.Join(fields, " "), nil
}

func fnLeft(bf *BuiltInFunctions, sheet *Spreadsheet, args ...any) (Primitive, error) {
	if len(args) < 1 || len(args) > 2 {
		return nil, NewSpreadsheetError(ErrorCodeNA, "LEFT requires 1 or 2 arguments")
	}
	if err := checkForError(args[0]); err != nil {
		return nil, err
	}
	s := []rune(toString(args[0]))
	n := 1
	if len(args) == 2 {
		num, ok := toNumber(args[1])
		if !ok {
			return nil, NewSpreadsheetError(ErrorCodeValue, "LEFT requires a numeric second argument")
		}
		n = int(num)
	}
	if n < 0 {
		return nil, NewSpreadsheetError(ErrorCodeValue, "LEFT requires a non-negative count")
	}
	if n > len(s) {
		n = len(s)
	}
	return string(s[:n]), nil
}

func fnRight(bf *BuiltInFunctions, sheet *Spreadsheet, args ...any) (Primitive, error) {
	if len(args) < 1 || len(args) > 2 {
		return nil, NewSpreadsheetError(ErrorCodeNA, "RIGHT requires 1 or 2 arguments")
	}
	if err := checkForError(args[0]); err != nil {
		return nil, err
	}
	s := []rune(toString(args[0]))
	n := 1
	if len(args) == 2 {
		num, ok := toNumber(args[1])
		if !ok {
			return nil, NewSpreadsheetError(ErrorCodeValue, "RIGHT requires a numeric second argument")
		}
		n = int(num)
	}
	if n < 0 {
		return nil, NewSpreadsheetError(ErrorCodeValue, "RIGHT requires a non-negative count")
	}
	if n > len(s) {
		n = len(s)
	}
	return string(s[len(s)-n:]), nil
}

func fnMid(bf *BuiltInFunctions, sheet *Spreadsheet, args ...any) (Primitive, error) {
	if len(args) != 3 {
		return nil, NewSpreadsheetError(ErrorCodeNA, "MID requires exactly 3 arguments")
	}
	for _, arg := range args {
		if err := checkForError(arg); err != nil {
			return nil, err
		}
	}
	s := []rune(toString(args[0]))
	start, ok1 := toNumber(args[1])
	length, ok2 := toNumber(args[2])
	if !ok1 || !ok2 {
		return nil, NewSpreadsheetError(ErrorCodeValue, "MID requires numeric start and length")
	}
	if start < 1 || length < 0 {
		return nil, NewSpreadsheetError(ErrorCodeValue, "MID requires start >= 1 and length >= 0")
	}
	from := int(start) - 1
	if from >= len(s) {
		return "", nil
	}
	to := from + int(length)
	if to > len(s) {
		to = len(s)
	}
	return string(s[from:to]), nil
}

func fnFind(bf *BuiltInFunctions, sheet *Spreadsheet, args ...any) (Primitive, error) {
	if len(args) < 2 || len(args) > 3 {
		return nil, NewSpreadsheetError(ErrorCodeNA, "FIND requires 2 or 3 arguments")
	}
	for _, arg := range args {
		if err := checkForError(arg); err != nil {
			return nil, err
		}
	}
	needle := toString(args[0])
	haystack := []rune(toString(args[1]))
	start := 1
	if len(args) == 3 {
		num, ok := toNumber(args[2])
		if !ok {
			return nil, NewSpreadsheetError(ErrorCodeValue, "FIND requires a numeric start position")
		}
		start = int(num)
	}
	if start < 1 || start > len(haystack)+1 {
		return nil, NewSpreadsheetError(ErrorCodeValue, "FIND start position out of range")
	}
	idx := runeIndex(haystack[start-1:], []rune(needle))
	if idx < 0 {
		return nil, NewSpreadsheetError(ErrorCodeValue, "FIND: text not found")
	}
	return float64(start + idx), nil
}

// runeIndex finds the first index of needle within haystack, operating on
// rune slices so multi-byte characters count as one position the way FIND's
// 1-indexed result expects.
func runeIndex(haystack, needle []rune) int {
	if len(needle) == 0 {
		return 0
	}
	for i := 0; i+len(needle) <= len(haystack); i++ {
		match := true
		for j, r := range needle {
			if haystack[i+j] != r {
				match = false
				break
			}
		}
		if match {
			return i
		}
	}
	return -1
}

func fnReplace(bf *BuiltInFunctions, sheet *Spreadsheet, args ...any) (Primitive, error) {
	if len(args) != 4 {
		return nil, NewSpreadsheetError(ErrorCodeNA, "REPLACE requires exactly 4 arguments")
	}
	for _, arg := range args {
		if err := checkForError(arg); err != nil {
			return nil, err
		}
	}
	s := []rune(toString(args[0]))
	start, ok1 := toNumber(args[1])
	length, ok2 := toNumber(args[2])
	if !ok1 || !ok2 {
		return nil, NewSpreadsheetError(ErrorCodeValue, "REPLACE requires numeric start and length")
	}
	newText := toString(args[3])
	if start < 1 {
		return nil, NewSpreadsheetError(ErrorCodeValue, "REPLACE requires start >= 1")
	}
	from := int(start) - 1
	if from > len(s) {
		from = len(s)
	}
	to := from + int(length)
	if to > len(s) {
		to = len(s)
	}
	if to < from {
		to = from
	}
	return string(s[:from]) + newText + string(s[to:]), nil
}

func fnSubstitute(bf *BuiltInFunctions, sheet *Spreadsheet, args ...any) (Primitive, error) {
	if len(args) < 3 || len(args) > 4 {
		return nil, NewSpreadsheetError(ErrorCodeNA, "SUBSTITUTE requires 3 or 4 arguments")
	}
	for _, arg := range args {
		if err := checkForError(arg); err != nil {
			return nil, err
		}
	}
	text := toString(args[0])
	old := toString(args[1])
	newText := toString(args[2])
	if len(args) == 3 {
		return strings.ReplaceAll(text, old, newText), nil
	}
	instance, ok := toNumber(args[3])
	if !ok || instance < 1 {
		return nil, NewSpreadsheetError(ErrorCodeValue, "SUBSTITUTE instance number must be >= 1")
	}
	n := int(instance)
	occurrence := 0
	var b strings.Builder
	for {
		idx := strings.Index(text, old)
		if idx < 0 || old == "" {
			b.WriteString(text)
			break
		}
		occurrence++
		if occurrence == n {
			b.WriteString(text[:idx])
			b.WriteString(newText)
			text = text[idx+len(old):]
			b.WriteString(text)
			break
		}
		b.WriteString(text[:idx+len(old)])
		text = text[idx+len(old):]
	}
	return b.String(), nil
}

func fnValue(bf *BuiltInFunctions, sheet *Spreadsheet, args ...any) (Primitive, error) {
	if len(args) != 1 {
		return nil, NewSpreadsheetError(ErrorCodeNA, "VALUE requires exactly 1 argument")
	}
	if err := checkForError(args[0]); err != nil {
		return nil, err
	}
	if _, isBool := args[0].(bool); isBool {
		return nil, NewSpreadsheetError(ErrorCodeValue, "VALUE does not accept booleans")
	}
	s, ok := args[0].(string)
	if !ok {
		if num, numOk := toNumber(args[0]); numOk {
			return num, nil
		}
		return nil, NewSpreadsheetError(ErrorCodeValue, "VALUE requires a numeric string")
	}
	num, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return nil, NewSpreadsheetError(ErrorCodeValue, "VALUE: cannot parse as a number")
	}
	return num, nil
}

// fnText renders a number or date serial with a pattern. Numeric patterns
// support "0"/"0.00" (fixed decimals), "#,##0" (thousands separator) and
// "0%" (percentage); date patterns support the yyyy/yy/mmmm/mmm/mm/m and
// dddd/ddd/dd/d tokens against the value read as a date serial.
func fnText(bf *BuiltInFunctions, sheet *Spreadsheet, args ...any) (Primitive, error) {
	if len(args) != 2 {
		return nil, NewSpreadsheetError(ErrorCodeNA, "TEXT requires exactly 2 arguments")
	}
	for _, arg := range args {
		if err := checkForError(arg); err != nil {
			return nil, err
		}
	}
	num, ok := toNumber(args[0])
	if !ok {
		return nil, NewSpreadsheetError(ErrorCodeValue, "TEXT requires a numeric first argument")
	}
	pattern := toString(args[1])

	if strings.ContainsAny(strings.ToLower(pattern), "yd") ||
		(strings.Contains(strings.ToLower(pattern), "m") && !strings.ContainsAny(pattern, "0#")) {
		return formatDatePattern(num, pattern), nil
	}

	percent := strings.HasSuffix(pattern, "%")
	corePattern := strings.TrimSuffix(pattern, "%")
	value := num
	if percent {
		value *= 100
	}

	decimals := 0
	if idx := strings.Index(corePattern, "."); idx >= 0 {
		decimals = len(corePattern) - idx - 1
	}
	thousands := strings.Contains(corePattern, ",")

	rendered := formatFixed(value, decimals, thousands)
	if percent {
		rendered += "%"
	}
	return rendered, nil
}

func fnDollar(bf *BuiltInFunctions, sheet *Spreadsheet, args ...any) (Primitive, error) {
	if len(args) < 1 || len(args) > 2 {
		return nil, NewSpreadsheetError(ErrorCodeNA, "DOLLAR requires 1 or 2 arguments")
	}
	num, ok := toNumber(args[0])
	if !ok {
		return nil, NewSpreadsheetError(ErrorCodeValue, "DOLLAR requires a numeric first argument")
	}
	decimals := 2
	if len(args) == 2 {
		d, dok := toNumber(args[1])
		if !dok {
			return nil, NewSpreadsheetError(ErrorCodeValue, "DOLLAR requires a numeric second argument")
		}
		decimals = int(d)
	}
	sign := ""
	if num < 0 {
		sign = "-"
		num = -num
	}
	return sign + "$" + formatFixed(num, decimals, true), nil
}

func fnFixed(bf *BuiltInFunctions, sheet *Spreadsheet, args ...any) (Primitive, error) {
	if len(args) < 1 || len(args) > 3 {
		return nil, NewSpreadsheetError(ErrorCodeNA, "FIXED requires 1 to 3 arguments")
	}
	num, ok := toNumber(args[0])
	if !ok {
		return nil, NewSpreadsheetError(ErrorCodeValue, "FIXED requires a numeric first argument")
	}
	decimals := 2
	if len(args) >= 2 {
		d, dok := toNumber(args[1])
		if !dok {
			return nil, NewSpreadsheetError(ErrorCodeValue, "FIXED requires a numeric second argument")
		}
		decimals = int(d)
	}
	noCommas := false
	if len(args) == 3 {
		noCommas = isTruthy(args[2])
	}
	return formatFixed(num, decimals, !noCommas), nil
}

var monthNames = [13]string{"", "January", "February", "March", "April",
	"May", "June", "July", "August", "September", "October", "November",
	"December"}

// dayNames is indexed by serial mod 7, aligned with WEEKDAY's convention
// that serial 1 is a Sunday (so serial 7, index 0, is a Saturday).
var dayNames = [7]string{"Saturday", "Sunday", "Monday", "Tuesday",
	"Wednesday", "Thursday", "Friday"}

// formatDatePattern renders a date serial against a token pattern, matching
// the longest token first at each position: yyyy, yy, mmmm, mmm, mm, m,
// dddd, ddd, dd, d. Unrecognized characters pass through as literals.
func formatDatePattern(serial float64, pattern string) string {
	year, month, day := serialToDate(int(serial))
	weekday := dayNames[((int(serial)%7)+7)%7]

	tokens := []struct {
		tok    string
		render func() string
	}{
		{"yyyy", func() string { return fmt.Sprintf("%04d", year) }},
		{"yy", func() string { return fmt.Sprintf("%02d", year%100) }},
		{"mmmm", func() string { return monthNames[month] }},
		{"mmm", func() string { return monthNames[month][:3] }},
		{"mm", func() string { return fmt.Sprintf("%02d", month) }},
		{"m", func() string { return strconv.Itoa(month) }},
		{"dddd", func() string { return weekday }},
		{"ddd", func() string { return weekday[:3] }},
		{"dd", func() string { return fmt.Sprintf("%02d", day) }},
		{"d", func() string { return strconv.Itoa(day) }},
	}

	var b strings.Builder
	lower := strings.ToLower(pattern)
	for i := 0; i < len(pattern); {
		matched := false
		for _, t := range tokens {
			if strings.HasPrefix(lower[i:], t.tok) {
				b.WriteString(t.render())
				i += len(t.tok)
				matched = true
				break
			}
		}
		if !matched {
			b.WriteByte(pattern[i])
			i++
		}
	}
	return b.String()
}

// formatFixed renders a float with a fixed number of decimals, optionally
// grouping the integer part with thousands separators.
func formatFixed(value float64, decimals int, thousands bool) string {
	if decimals < 0 {
		decimals = 0
	}
	s := strconv.FormatFloat(value, 'f', decimals, 64)
	if !thousands {
		return s
	}
	sign := ""
	if strings.HasPrefix(s, "-") {
		sign = "-"
		s = s[1:]
	}
	intPart := s
	fracPart := ""
	if idx := strings.Index(s, "."); idx >= 0 {
		intPart = s[:idx]
		fracPart = s[idx:]
	}
	var grouped strings.Builder
	for i, d := range intPart {
		if i > 0 && (len(intPart)-i)%3 == 0 {
			grouped.WriteByte(',')
		}
		grouped.WriteRune(d)
	}
	return fmt.Sprintf("%s%s%s", sign, grouped.String(), fracPart)
}
