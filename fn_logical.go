package spreadsheet

func init() {
	registerFunction("AND", fnAnd)
	registerFunction("OR", fnOr)
	registerFunction("XOR", fnXor)
	registerFunction("NOT", fnNot)
}

// fnAnd, fnOr, fnXor, fnNot are plain eager functions; IF/IFERROR/IFNA/IFS
// are intercepted before reaching the registry (see FunctionCallNode.Eval)
// since they must not evaluate every branch.

func fnAnd(bf *BuiltInFunctions, sheet *Spreadsheet, args ...any) (Primitive, error) {
	for _, arg := range args {
		if err := checkForError(arg); err != nil {
			return nil, err
		}
		if !isTruthy(arg) {
			return false, nil
		}
	}
	return true, nil
}

func fnOr(bf *BuiltInFunctions, sheet *Spreadsheet, args ...any) (Primitive, error) {
	for _, arg := range args {
		if err := checkForError(arg); err != nil {
			return nil, err
		}
		if isTruthy(arg) {
			return true, nil
		}
	}
	return false, nil
}

func fnXor(bf *BuiltInFunctions, sheet *Spreadsheet, args ...any) (Primitive, error) {
	if len(args) == 0 {
		return nil, NewSpreadsheetError(ErrorCodeNA, "XOR requires at least 1 argument")
	}
	trueCount := 0
	for _, arg := range args {
		if err := checkForError(arg); err != nil {
			return nil, err
		}
		if isTruthy(arg) {
			trueCount++
		}
	}
	return trueCount%2 == 1, nil
}

func fnNot(bf *BuiltInFunctions, sheet *Spreadsheet, args ...any) (Primitive, error) {
	if len(args) != 1 {
		return nil, NewSpreadsheetError(ErrorCodeNA, "NOT requires exactly 1 argument")
	}
	if err := checkForError(args[0]); err != nil {
		return nil, err
	}
	return !isTruthy(args[0]), nil
}
