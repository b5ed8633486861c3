package spreadsheet

func init() {
	registerFunction("ISBLANK", fnIsblank)
	registerFunction("ISNUMBER", fnIsnumber)
	registerFunction("ISTEXT", fnIstext)
	registerFunction("ISNONTEXT", fnIsnontext)
	registerFunction("ISLOGICAL", fnIslogical)
	registerFunction("ISERROR", fnIserror)
	registerFunction("ISERR", fnIserr)
	registerFunction("ISNA", fnIsna)
	registerFunction("ISEVEN", fnIseven)
	registerFunction("ISODD", fnIsodd)
	registerFunction("N", fnN)
	registerFunction("NA", fnNa)
}

func requireOne(name string, args []any) (Primitive, error) {
	if len(args) != 1 {
		return nil, NewSpreadsheetError(ErrorCodeNA, name+" requires exactly 1 argument")
	}
	return args[0], nil
}

// ISBLANK and the other IS* functions never propagate their argument's
// error: the point of ISERROR et al. is to inspect a value that might be an
// error, so an error sentinel is a normal input here, not a failure.

func fnIsblank(bf *BuiltInFunctions, sheet *Spreadsheet, args ...any) (Primitive, error) {
	v, err := requireOne("ISBLANK", args)
	if err != nil {
		return nil, err
	}
	return v == nil, nil
}

func fnIsnumber(bf *BuiltInFunctions, sheet *Spreadsheet, args ...any) (Primitive, error) {
	v, err := requireOne("ISNUMBER", args)
	if err != nil {
		return nil, err
	}
	_, isNum := v.(float64)
	return isNum, nil
}

func fnIstext(bf *BuiltInFunctions, sheet *Spreadsheet, args ...any) (Primitive, error) {
	v, err := requireOne("ISTEXT", args)
	if err != nil {
		return nil, err
	}
	_, isStr := v.(string)
	return isStr, nil
}

func fnIsnontext(bf *BuiltInFunctions, sheet *Spreadsheet, args ...any) (Primitive, error) {
	v, err := requireOne("ISNONTEXT", args)
	if err != nil {
		return nil, err
	}
	_, isStr := v.(string)
	return !isStr, nil
}

func fnIslogical(bf *BuiltInFunctions, sheet *Spreadsheet, args ...any) (Primitive, error) {
	v, err := requireOne("ISLOGICAL", args)
	if err != nil {
		return nil, err
	}
	_, isBool := v.(bool)
	return isBool, nil
}

func fnIserror(bf *BuiltInFunctions, sheet *Spreadsheet, args ...any) (Primitive, error) {
	v, err := requireOne("ISERROR", args)
	if err != nil {
		return nil, err
	}
	_, isErr := v.(*SpreadsheetError)
	return isErr, nil
}

// fnIserr is true for any error except #N/A, the same distinction ISNA
// makes the other way.
func fnIserr(bf *BuiltInFunctions, sheet *Spreadsheet, args ...any) (Primitive, error) {
	v, err := requireOne("ISERR", args)
	if err != nil {
		return nil, err
	}
	sheetErr, isErr := v.(*SpreadsheetError)
	return isErr && sheetErr.ErrorCode != ErrorCodeNA, nil
}

func fnIsna(bf *BuiltInFunctions, sheet *Spreadsheet, args ...any) (Primitive, error) {
	v, err := requireOne("ISNA", args)
	if err != nil {
		return nil, err
	}
	sheetErr, isErr := v.(*SpreadsheetError)
	return isErr && sheetErr.ErrorCode == ErrorCodeNA, nil
}

func fnIseven(bf *BuiltInFunctions, sheet *Spreadsheet, args ...any) (Primitive, error) {
	if len(args) != 1 {
		return nil, NewSpreadsheetError(ErrorCodeNA, "ISEVEN requires exactly 1 argument")
	}
	if err := checkForError(args[0]); err != nil {
		return nil, err
	}
	num, ok := toNumber(args[0])
	if !ok {
		return nil, NewSpreadsheetError(ErrorCodeValue, "ISEVEN requires a numeric argument")
	}
	return int64(num)%2 == 0, nil
}

func fnIsodd(bf *BuiltInFunctions, sheet *Spreadsheet, args ...any) (Primitive, error) {
	if len(args) != 1 {
		return nil, NewSpreadsheetError(ErrorCodeNA, "ISODD requires exactly 1 argument")
	}
	if err := checkForError(args[0]); err != nil {
		return nil, err
	}
	num, ok := toNumber(args[0])
	if !ok {
		return nil, NewSpreadsheetError(ErrorCodeValue, "ISODD requires a numeric argument")
	}
	return int64(num)%2 != 0, nil
}

// fnN coerces its argument to a number the way Excel's N() does: numbers
// pass through, TRUE/FALSE become 1/0, everything else becomes 0.
func fnN(bf *BuiltInFunctions, sheet *Spreadsheet, args ...any) (Primitive, error) {
	v, err := requireOne("N", args)
	if err != nil {
		return nil, err
	}
	if err := checkForError(v); err != nil {
		return nil, err
	}
	if num, ok := toNumber(v); ok {
		if _, isStr := v.(string); !isStr {
			return num, nil
		}
	}
	return 0.0, nil
}

func fnNa(bf *BuiltInFunctions, sheet *Spreadsheet, args ...any) (Primitive, error) {
	if len(args) != 0 {
		return nil, NewSpreadsheetError(ErrorCodeNA, "NA takes no arguments")
	}
	return NewSpreadsheetError(ErrorCodeNA, ErrorMapper[ErrorCodeNA]), nil
}
