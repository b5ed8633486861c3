package spreadsheet

import "math"

func init() {
	registerFunction("NPV", fnNpv)
	registerFunction("IRR", fnIrr)
	registerFunction("PMT", fnPmt)
	registerFunction("PPMT", fnPpmt)
	registerFunction("NPER", fnNper)
	registerFunction("RATE", fnRate)
}

// fnNpv discounts a series of cash flows back to the present, the first
// flow one period out - matching Excel's convention that NPV doesn't
// discount an initial investment at period 0 for you.
func fnNpv(bf *BuiltInFunctions, sheet *Spreadsheet, args ...any) (Primitive, error) {
	if len(args) < 2 {
		return nil, NewSpreadsheetError(ErrorCodeNA, "NPV requires a rate and at least one cash flow")
	}
	if err := checkForError(args[0]); err != nil {
		return nil, err
	}
	rate, ok := toNumber(args[0])
	if !ok {
		return nil, NewSpreadsheetError(ErrorCodeValue, "NPV requires a numeric rate")
	}
	var flows []float64
	for _, arg := range args[1:] {
		vs, err := numericVector(arg)
		if err != nil {
			return nil, err
		}
		flows = append(flows, vs...)
	}
	return npv(rate, flows), nil
}

func npv(rate float64, flows []float64) float64 {
	sum := 0.0
	for i, flow := range flows {
		sum += flow / math.Pow(1+rate, float64(i+1))
	}
	return sum
}

// fnIrr finds the rate at which NPV(rate, values) is zero by Newton's
// method, falling back to bisection over a wide bracket when the Newton
// step fails to converge (flat or oscillating derivatives near the root).
func fnIrr(bf *BuiltInFunctions, sheet *Spreadsheet, args ...any) (Primitive, error) {
	if len(args) < 1 || len(args) > 2 {
		return nil, NewSpreadsheetError(ErrorCodeNA, "IRR requires 1 or 2 arguments")
	}
	flows, err := numericVector(args[0])
	if err != nil {
		return nil, err
	}
	if len(flows) < 2 {
		return nil, NewSpreadsheetError(ErrorCodeNum, "IRR requires at least two cash flows")
	}
	guess := 0.1
	if len(args) == 2 {
		if err := checkForError(args[1]); err != nil {
			return nil, err
		}
		g, ok := toNumber(args[1])
		if !ok {
			return nil, NewSpreadsheetError(ErrorCodeValue, "IRR requires a numeric guess")
		}
		guess = g
	}

	// npvAtZero treats flows[0] as the period-0 cash flow (unlike NPV,
	// IRR's first value is not discounted), so it is evaluated separately.
	npvAtZero := func(rate float64) float64 {
		sum := flows[0]
		for i := 1; i < len(flows); i++ {
			sum += flows[i] / math.Pow(1+rate, float64(i))
		}
		return sum
	}
	dNpv := func(rate float64) float64 {
		sum := 0.0
		for i := 1; i < len(flows); i++ {
			sum -= float64(i) * flows[i] / math.Pow(1+rate, float64(i+1))
		}
		return sum
	}

	rate := guess
	converged := false
	for iter := 0; iter < 50; iter++ {
		f := npvAtZero(rate)
		fPrime := dNpv(rate)
		if fPrime == 0 || math.IsNaN(fPrime) {
			break
		}
		next := rate - f/fPrime
		if math.IsNaN(next) || math.IsInf(next, 0) || next <= -1 {
			break
		}
		if math.Abs(next-rate) < 1e-10 {
			rate = next
			converged = true
			break
		}
		rate = next
	}

	if !converged || math.Abs(npvAtZero(rate)) > 1e-6 {
		if bisected, ok := irrBisect(npvAtZero); ok {
			rate = bisected
			converged = true
		}
	}
	if !converged {
		return nil, NewSpreadsheetError(ErrorCodeNum, "IRR failed to converge")
	}
	return rate, nil
}

// irrBisect searches for a sign change in npvAtZero across a wide range of
// rates and bisects down to it, covering the cases where Newton's method
// diverges (flat derivative, oscillation around the root).
func irrBisect(npvAtZero func(float64) float64) (float64, bool) {
	const lo, hi, steps = -0.99, 10.0, 200
	step := (hi - lo) / steps
	prevRate := lo
	prevVal := npvAtZero(prevRate)
	for i := 1; i <= steps; i++ {
		rate := lo + float64(i)*step
		val := npvAtZero(rate)
		if prevVal == 0 {
			return prevRate, true
		}
		if (prevVal < 0) != (val < 0) {
			a, b := prevRate, rate
			for j := 0; j < 100; j++ {
				mid := (a + b) / 2
				midVal := npvAtZero(mid)
				if math.Abs(midVal) < 1e-10 {
					return mid, true
				}
				if (midVal < 0) == (prevVal < 0) {
					a, prevVal = mid, midVal
				} else {
					b = mid
				}
			}
			return (a + b) / 2, true
		}
		prevRate, prevVal = rate, val
	}
	return 0, false
}

// pmtWhen controls whether a period's payment falls at the end (0) or the
// beginning (1) of the period, the same distinction Excel's `type` argument
// makes across PMT, PPMT, and IPMT.
func pmtWhen(args []any, index int) (float64, error) {
	if len(args) <= index || args[index] == nil {
		return 0, nil
	}
	if err := checkForError(args[index]); err != nil {
		return 0, err
	}
	when, ok := toNumber(args[index])
	if !ok {
		return 0, NewSpreadsheetError(ErrorCodeValue, "expected a numeric type argument")
	}
	return when, nil
}

func payment(rate float64, nper float64, pv float64, fv float64, when float64) float64 {
	if rate == 0 {
		return -(fv + pv) / nper
	}
	temp := math.Pow(1+rate, nper)
	fact := (1 + rate*when) * (temp - 1) / rate
	return -(fv + pv*temp) / fact
}

// fnPmt computes the periodic payment for a loan or annuity, following the
// same (rate, nper, pv, [fv], [type]) shape and sign convention as PMT.
func fnPmt(bf *BuiltInFunctions, sheet *Spreadsheet, args ...any) (Primitive, error) {
	if len(args) < 3 || len(args) > 5 {
		return nil, NewSpreadsheetError(ErrorCodeNA, "PMT requires 3 to 5 arguments")
	}
	for _, arg := range args {
		if arg == nil {
			continue
		}
		if err := checkForError(arg); err != nil {
			return nil, err
		}
	}
	rate, ok1 := toNumber(args[0])
	nper, ok2 := toNumber(args[1])
	pv, ok3 := toNumber(args[2])
	if !ok1 || !ok2 || !ok3 {
		return nil, NewSpreadsheetError(ErrorCodeValue, "PMT requires numeric rate, nper, and pv")
	}
	fv := 0.0
	if len(args) >= 4 && args[3] != nil {
		fv, ok1 = toNumber(args[3])
		if !ok1 {
			return nil, NewSpreadsheetError(ErrorCodeValue, "PMT requires a numeric fv")
		}
	}
	when, err := pmtWhen(args, 4)
	if err != nil {
		return nil, err
	}
	return payment(rate, nper, pv, fv, when), nil
}

// remainingBalance is the loan balance carried into period per (1-based)
// before that period's payment is applied, in cash-flow sign convention: a
// positive pv (money received) leaves a negative balance owed, so the
// interest derived from it carries the payment's own sign.
func remainingBalance(rate, per, pmt, pv float64) float64 {
	return -(pv*math.Pow(1+rate, per-1) + pmt*(math.Pow(1+rate, per-1)-1)/rate)
}

// fnPpmt computes the principal portion of the payment due in period per.
func fnPpmt(bf *BuiltInFunctions, sheet *Spreadsheet, args ...any) (Primitive, error) {
	if len(args) < 4 || len(args) > 6 {
		return nil, NewSpreadsheetError(ErrorCodeNA, "PPMT requires 4 to 6 arguments")
	}
	for _, arg := range args {
		if arg == nil {
			continue
		}
		if err := checkForError(arg); err != nil {
			return nil, err
		}
	}
	rate, ok1 := toNumber(args[0])
	per, ok2 := toNumber(args[1])
	nper, ok3 := toNumber(args[2])
	pv, ok4 := toNumber(args[3])
	if !ok1 || !ok2 || !ok3 || !ok4 {
		return nil, NewSpreadsheetError(ErrorCodeValue, "PPMT requires numeric rate, per, nper, and pv")
	}
	if per < 1 || per > nper {
		return nil, NewSpreadsheetError(ErrorCodeNum, "per must fall within the payment schedule")
	}
	fv := 0.0
	if len(args) >= 5 && args[4] != nil {
		fv, ok1 = toNumber(args[4])
		if !ok1 {
			return nil, NewSpreadsheetError(ErrorCodeValue, "PPMT requires a numeric fv")
		}
	}
	when, err := pmtWhen(args, 5)
	if err != nil {
		return nil, err
	}

	totalPmt := payment(rate, nper, pv, fv, when)
	if rate == 0 {
		return totalPmt, nil
	}

	interest := rate * remainingBalance(rate, per, totalPmt*(1+rate*when), pv)
	if when == 1 {
		interest /= 1 + rate
	}
	if per == 1 && when == 1 {
		interest = 0
	}
	return totalPmt - interest, nil
}

// fnNper computes the number of payment periods for a loan or annuity from
// (rate, pmt, pv, [fv], [type]), PMT's equation solved for nper.
func fnNper(bf *BuiltInFunctions, sheet *Spreadsheet, args ...any) (Primitive, error) {
	if len(args) < 3 || len(args) > 5 {
		return nil, NewSpreadsheetError(ErrorCodeNA, "NPER requires 3 to 5 arguments")
	}
	for _, arg := range args {
		if arg == nil {
			continue
		}
		if err := checkForError(arg); err != nil {
			return nil, err
		}
	}
	rate, ok1 := toNumber(args[0])
	pmt, ok2 := toNumber(args[1])
	pv, ok3 := toNumber(args[2])
	if !ok1 || !ok2 || !ok3 {
		return nil, NewSpreadsheetError(ErrorCodeValue, "NPER requires numeric rate, pmt, and pv")
	}
	fv := 0.0
	if len(args) >= 4 && args[3] != nil {
		fv, ok1 = toNumber(args[3])
		if !ok1 {
			return nil, NewSpreadsheetError(ErrorCodeValue, "NPER requires a numeric fv")
		}
	}
	when, err := pmtWhen(args, 4)
	if err != nil {
		return nil, err
	}
	if rate == 0 {
		if pmt == 0 {
			return nil, NewSpreadsheetError(ErrorCodeDiv0, "Division by zero")
		}
		return -(pv + fv) / pmt, nil
	}
	adj := pmt * (1 + rate*when) / rate
	num := adj - fv
	den := pv + adj
	if den == 0 || num/den <= 0 {
		return nil, NewSpreadsheetError(ErrorCodeNum, "NPER has no real solution for these arguments")
	}
	return math.Log(num/den) / math.Log(1+rate), nil
}

// fnRate solves PMT's equation for the per-period interest rate by secant
// iteration from an optional initial guess, the same shape IRR's root
// finding takes but on the closed-form annuity balance instead of a cash
// flow series.
func fnRate(bf *BuiltInFunctions, sheet *Spreadsheet, args ...any) (Primitive, error) {
	if len(args) < 3 || len(args) > 6 {
		return nil, NewSpreadsheetError(ErrorCodeNA, "RATE requires 3 to 6 arguments")
	}
	for _, arg := range args {
		if arg == nil {
			continue
		}
		if err := checkForError(arg); err != nil {
			return nil, err
		}
	}
	nper, ok1 := toNumber(args[0])
	pmt, ok2 := toNumber(args[1])
	pv, ok3 := toNumber(args[2])
	if !ok1 || !ok2 || !ok3 {
		return nil, NewSpreadsheetError(ErrorCodeValue, "RATE requires numeric nper, pmt, and pv")
	}
	fv := 0.0
	if len(args) >= 4 && args[3] != nil {
		fv, ok1 = toNumber(args[3])
		if !ok1 {
			return nil, NewSpreadsheetError(ErrorCodeValue, "RATE requires a numeric fv")
		}
	}
	when, err := pmtWhen(args, 4)
	if err != nil {
		return nil, err
	}
	guess := 0.1
	if len(args) == 6 && args[5] != nil {
		guess, ok1 = toNumber(args[5])
		if !ok1 {
			return nil, NewSpreadsheetError(ErrorCodeValue, "RATE requires a numeric guess")
		}
	}

	balance := func(rate float64) float64 {
		if rate == 0 {
			return pv + pmt*nper + fv
		}
		temp := math.Pow(1+rate, nper)
		return pv*temp + pmt*(1+rate*when)*(temp-1)/rate + fv
	}

	r0, r1 := guess, guess*1.1+1e-4
	f0 := balance(r0)
	for iter := 0; iter < 100; iter++ {
		f1 := balance(r1)
		if math.Abs(f1) < 1e-10 {
			return r1, nil
		}
		if f1 == f0 {
			break
		}
		next := r1 - f1*(r1-r0)/(f1-f0)
		if math.IsNaN(next) || math.IsInf(next, 0) || next <= -1 {
			break
		}
		if math.Abs(next-r1) < 1e-12 {
			return next, nil
		}
		r0, f0 = r1, f1
		r1 = next
	}
	return nil, NewSpreadsheetError(ErrorCodeNum, "RATE failed to converge")
}
