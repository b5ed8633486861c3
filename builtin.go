package spreadsheet

import (
	"fmt"
	"math/rand/v2"
	"strconv"
	"strings"
	"time"
)

// Clock interface provides time functionality for testing
type Clock interface {
	Now() time.Time
}

// WallClock is the default implementation using system time
type WallClock struct{}

func (w *WallClock) Now() time.Time {
	return time.Now()
}

// RandomGenerator interface provides random number generation for testing
type RandomGenerator interface {
	Float64() float64
}

// DefaultRandomGenerator uses the standard library's rand package
type DefaultRandomGenerator struct{}

func (d *DefaultRandomGenerator) Float64() float64 {
	return rand.Float64()
}

// BuiltInFunctions contains all spreadsheet built-in functions
type BuiltInFunctions struct {
	clock Clock
	rng   RandomGenerator
}

// checkForError returns the error if value is a *SpreadsheetError, nil otherwise
func checkForError(value Primitive) *SpreadsheetError {
	if err, ok := value.(*SpreadsheetError); ok {
		return err
	}
	return nil
}

// NewDefaultBuiltInFunctions creates a BuiltInFunctions with default
// implementations
func NewDefaultBuiltInFunctions() *BuiltInFunctions {
	return &BuiltInFunctions{
		clock: &WallClock{},
		rng:   &DefaultRandomGenerator{},
	}
}

// builtinFn is the closure shape every registered function has: already-
// evaluated arguments in, a value or error sentinel out. sheet gives the
// handful of functions that need it (INDEX, OFFSET, INDIRECT, ROW, COLUMN)
// access to worksheet/storage lookups without threading it through every
// other function that doesn't need it.
type builtinFn func(bf *BuiltInFunctions, sheet *Spreadsheet, args ...any) (Primitive, error)

// functionRegistry is the static name -> closure table each fn_*.go file
// populates via its own init(). Function dispatch never falls back to
// dynamic method lookup; everything not in this map is #NAME?.
var functionRegistry = map[string]builtinFn{}

// registerFunction adds name (case-insensitively) to the registry. Panics on
// a duplicate registration since that can only be an authoring mistake
// caught at package init, never a runtime condition.
func registerFunction(name string, fn builtinFn) {
	key := strings.ToUpper(name)
	if _, exists := functionRegistry[key]; exists {
		panic("spreadsheet: duplicate function registration for " + key)
	}
	functionRegistry[key] = fn
}

// Call invokes a built-in function by name with the given arguments. IF,
// IFERROR, IFNA and IFS are intercepted earlier, in FunctionCallNode.Eval,
// because they must not evaluate every argument eagerly; everything else
// reaches this registry lookup with arguments already evaluated.
func (bf *BuiltInFunctions) Call(sheet *Spreadsheet, name string, args ...any) (Primitive, error) {
	fn, ok := functionRegistry[strings.ToUpper(name)]
	if !ok {
		return nil, NewSpreadsheetError(ErrorCodeName, fmt.Sprintf("Unknown function: %s", name))
	}
	return fn(bf, sheet, args...)
}

func (r RangeAddress) Contains(worksheetID uint32, row, col uint32) bool {
	return r.WorksheetID == worksheetID &&
		row >= r.StartRow && row <= r.EndRow &&
		col >= r.StartColumn && col <= r.EndColumn
}

// isVolatileFunction returns true if the function should trigger recalculation
// on every Calculate() call
func isVolatileFunction(name string) bool {
	switch strings.ToUpper(name) {
	case "NOW", "TODAY", "RAND":
		return true
	default:
		return false
	}
}

// toNumber converts value to number, returning ok=false if conversion fails
func toNumber(value Primitive) (float64, bool) {
	switch v := value.(type) {
	case float64:
		return v, true
	case int:
		return float64(v), true
	case int64:
		return float64(v), true
	case bool:
		if v {
			return 1, true
		}
		return 0, true
	case string:
		num, err := strconv.ParseFloat(v, 64) // Parse as 64-bit float
		if err != nil {
			return 0, false
		}
		return num, true
	case nil:
		return 0, true
	default:
		return 0, false
	}
}

// toString converts value to string
func toString(value Primitive) string {
	if value == nil {
		return ""
	}
	return fmt.Sprint(value)
}

// isTruthy checks if value is truthy
func isTruthy(value Primitive) bool {
	switch v := value.(type) {
	case bool:
		return v
	case float64:
		return v != 0
	case int:
		return v != 0
	case string:
		return v != ""
	case nil:
		return false
	default:
		return true
	}
}

// rangeGrid materializes a Range's values into a row-major grid sized to its
// bounds, for functions (VLOOKUP, INDEX, ...) that need positional access
// rather than a flat iteration.
func rangeGrid(r Range) [][]Primitive {
	bounds := r.GetBounds()
	rows := int(bounds.EndRow-bounds.StartRow) + 1
	cols := int(bounds.EndColumn-bounds.StartColumn) + 1
	grid := make([][]Primitive, rows)
	for i := range grid {
		grid[i] = make([]Primitive, cols)
	}
	i := 0
	for value := range r.IterateValues() {
		if i >= rows*cols {
			break
		}
		grid[i/cols][i%cols] = value
		i++
	}
	return grid
}

// flattenRange collects a Range's values in iteration order.
func flattenRange(r Range) []Primitive {
	var values []Primitive
	for value := range r.IterateValues() {
		values = append(values, value)
	}
	return values
}
