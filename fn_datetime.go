package spreadsheet

import (
	"math"
	"time"
)

func init() {
	registerFunction("NOW", fnNow)
	registerFunction("TODAY", fnToday)
	registerFunction("RAND", fnRand)
	registerFunction("DATE", fnDate)
	registerFunction("YEAR", fnYear)
	registerFunction("MONTH", fnMonth)
	registerFunction("DAY", fnDay)
	registerFunction("WEEKDAY", fnWeekday)
	registerFunction("DAYS360", fnDays360)
	registerFunction("YEARFRAC", fnYearfrac)
}

// Excel date/time constants
const (
	// Excel epoch for NOW/TODAY in Unix milliseconds. Because of the 1900
	// leap-year quirk, serials after February 1900 count days from
	// December 30, 1899, so that is the epoch used here.
	EXCEL_EPOCH_MS = -2209161600000 // December 30, 1899 00:00:00 UTC
	MS_PER_DAY     = 86400000       // milliseconds in a day
)

func fnNow(bf *BuiltInFunctions, sheet *Spreadsheet, args ...any) (Primitive, error) {
	if len(args) != 0 {
		return nil, NewSpreadsheetError(ErrorCodeNA, "NOW takes no arguments")
	}
	now := bf.clock.Now()
	diffMs := float64(now.UnixMilli() - EXCEL_EPOCH_MS)
	return diffMs / MS_PER_DAY, nil
}

func fnToday(bf *BuiltInFunctions, sheet *Spreadsheet, args ...any) (Primitive, error) {
	if len(args) != 0 {
		return nil, NewSpreadsheetError(ErrorCodeNA, "TODAY takes no arguments")
	}
	now := bf.clock.Now()
	midnight := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	diffMs := float64(midnight.UnixMilli() - EXCEL_EPOCH_MS)
	return math.Floor(diffMs / MS_PER_DAY), nil
}

func fnRand(bf *BuiltInFunctions, sheet *Spreadsheet, args ...any) (Primitive, error) {
	if len(args) != 0 {
		return nil, NewSpreadsheetError(ErrorCodeNA, "RAND takes no arguments")
	}
	return bf.rng.Float64(), nil
}

// excelEpoch is day zero of the serial-number scheme: December 31, 1899.
var excelEpoch = time.Date(1899, time.December, 31, 0, 0, 0, 0, time.UTC)

// serialToDate converts an Excel serial day number to a (year, month, day)
// triple, preserving the historical 1900 leap-year bug: serial 60 is the
// fictitious 1900-02-29, so real dates from serial 61 onward are one day
// "behind" where plain Gregorian arithmetic from the epoch would put them.
func serialToDate(serial int) (year, month, day int) {
	if serial == 60 {
		return 1900, 2, 29
	}
	adjusted := serial
	if serial > 60 {
		adjusted--
	}
	t := excelEpoch.AddDate(0, 0, adjusted)
	return t.Year(), int(t.Month()), t.Day()
}

// dateToSerial is serialToDate's inverse for any real Gregorian date.
func dateToSerial(year, month, day int) int {
	if year == 1900 && month == 2 && day == 29 {
		return 60
	}
	t := time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)
	days := int(math.Round(t.Sub(excelEpoch).Hours() / 24))
	march1_1900 := time.Date(1900, time.March, 1, 0, 0, 0, 0, time.UTC)
	if !t.Before(march1_1900) {
		days++
	}
	return days
}

func fnDate(bf *BuiltInFunctions, sheet *Spreadsheet, args ...any) (Primitive, error) {
	if len(args) != 3 {
		return nil, NewSpreadsheetError(ErrorCodeNA, "DATE requires exactly 3 arguments")
	}
	for _, arg := range args {
		if err := checkForError(arg); err != nil {
			return nil, err
		}
	}
	y, ok1 := toNumber(args[0])
	m, ok2 := toNumber(args[1])
	d, ok3 := toNumber(args[2])
	if !ok1 || !ok2 || !ok3 {
		return nil, NewSpreadsheetError(ErrorCodeValue, "DATE requires numeric arguments")
	}
	year, month, day := int(y), int(m), int(d)
	if year == 1900 && month == 2 && day == 29 {
		return float64(60), nil
	}
	// time.Date normalizes out-of-range months and days (negative or
	// overflowing), carrying into adjacent years/months the way DATE's
	// month/day normalization rule requires.
	t := time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)
	return float64(dateToSerial(t.Year(), int(t.Month()), t.Day())), nil
}

func serialArg(args []any, name string) (int, error) {
	if len(args) != 1 {
		return 0, NewSpreadsheetError(ErrorCodeNA, name+" requires exactly 1 argument")
	}
	if err := checkForError(args[0]); err != nil {
		return 0, err
	}
	num, ok := toNumber(args[0])
	if !ok {
		return 0, NewSpreadsheetError(ErrorCodeValue, name+" requires a numeric argument")
	}
	return int(num), nil
}

func fnYear(bf *BuiltInFunctions, sheet *Spreadsheet, args ...any) (Primitive, error) {
	serial, err := serialArg(args, "YEAR")
	if err != nil {
		return nil, err
	}
	y, _, _ := serialToDate(serial)
	return float64(y), nil
}

func fnMonth(bf *BuiltInFunctions, sheet *Spreadsheet, args ...any) (Primitive, error) {
	serial, err := serialArg(args, "MONTH")
	if err != nil {
		return nil, err
	}
	_, m, _ := serialToDate(serial)
	return float64(m), nil
}

func fnDay(bf *BuiltInFunctions, sheet *Spreadsheet, args ...any) (Primitive, error) {
	serial, err := serialArg(args, "DAY")
	if err != nil {
		return nil, err
	}
	_, _, d := serialToDate(serial)
	return float64(d), nil
}

// fnWeekday works from the serial number's position in the 7-day cycle
// rather than reconstructing a calendar date, so the fictitious 1900-02-29
// still gets a self-consistent weekday (one more than 1900-02-28's) without
// needing a real date behind it. Serial 1 maps to Sunday: the 1900 leap
// quirk shifts every modern serial up by one, and keeping WEEKDAY(1) = 1
// is what makes present-day serials report their true weekday.
func fnWeekday(bf *BuiltInFunctions, sheet *Spreadsheet, args ...any) (Primitive, error) {
	if len(args) < 1 || len(args) > 2 {
		return nil, NewSpreadsheetError(ErrorCodeNA, "WEEKDAY requires 1 or 2 arguments")
	}
	if err := checkForError(args[0]); err != nil {
		return nil, err
	}
	serialNum, ok := toNumber(args[0])
	if !ok {
		return nil, NewSpreadsheetError(ErrorCodeValue, "WEEKDAY requires a numeric first argument")
	}
	returnType := 1
	if len(args) == 2 {
		rt, rtOk := toNumber(args[1])
		if !rtOk {
			return nil, NewSpreadsheetError(ErrorCodeValue, "WEEKDAY requires a numeric return-type argument")
		}
		returnType = int(rt)
	}
	serial := int(serialNum)
	sundayIndex := (((serial - 1) % 7) + 7) % 7
	switch returnType {
	case 1:
		return float64(sundayIndex + 1), nil
	case 2:
		return float64((sundayIndex+6)%7 + 1), nil
	case 3:
		return float64((sundayIndex + 6) % 7), nil
	default:
		return nil, NewSpreadsheetError(ErrorCodeNum, "WEEKDAY: unsupported return type")
	}
}

// fnDays360 implements the US (NASD) 30/360 day-count convention: each
// month is treated as having exactly 30 days for the purpose of counting
// the span between two dates.
func fnDays360(bf *BuiltInFunctions, sheet *Spreadsheet, args ...any) (Primitive, error) {
	if len(args) < 2 || len(args) > 3 {
		return nil, NewSpreadsheetError(ErrorCodeNA, "DAYS360 requires 2 or 3 arguments")
	}
	startSerial, ok1 := toNumber(args[0])
	endSerial, ok2 := toNumber(args[1])
	if !ok1 || !ok2 {
		return nil, NewSpreadsheetError(ErrorCodeValue, "DAYS360 requires numeric date serials")
	}
	european := false
	if len(args) == 3 {
		european = isTruthy(args[2])
	}
	y1, m1, d1 := serialToDate(int(startSerial))
	y2, m2, d2 := serialToDate(int(endSerial))

	if european {
		if d1 == 31 {
			d1 = 30
		}
		if d2 == 31 {
			d2 = 30
		}
	} else {
		if d1 == 31 {
			d1 = 30
		}
		if d2 == 31 && d1 == 30 {
			d2 = 30
		}
	}

	return float64((y2-y1)*360 + (m2-m1)*30 + (d2 - d1)), nil
}

// fnYearfrac computes the fraction of a year between two date serials under
// one of five day-count bases: 0 US 30/360, 1 actual/actual, 2 actual/360,
// 3 actual/365, 4 European 30/360.
func fnYearfrac(bf *BuiltInFunctions, sheet *Spreadsheet, args ...any) (Primitive, error) {
	if len(args) < 2 || len(args) > 3 {
		return nil, NewSpreadsheetError(ErrorCodeNA, "YEARFRAC requires 2 or 3 arguments")
	}
	startSerial, ok1 := toNumber(args[0])
	endSerial, ok2 := toNumber(args[1])
	if !ok1 || !ok2 {
		return nil, NewSpreadsheetError(ErrorCodeValue, "YEARFRAC requires numeric date serials")
	}
	basis := 0
	if len(args) == 3 {
		b, bok := toNumber(args[2])
		if !bok {
			return nil, NewSpreadsheetError(ErrorCodeValue, "YEARFRAC requires a numeric basis")
		}
		basis = int(b)
	}
	if startSerial > endSerial {
		startSerial, endSerial = endSerial, startSerial
	}
	actualDays := endSerial - startSerial

	switch basis {
	case 0:
		days360, _ := fnDays360(bf, sheet, startSerial, endSerial, false)
		return days360.(float64) / 360.0, nil
	case 4:
		days360, _ := fnDays360(bf, sheet, startSerial, endSerial, true)
		return days360.(float64) / 360.0, nil
	case 2:
		return actualDays / 360.0, nil
	case 3:
		return actualDays / 365.0, nil
	case 1:
		y1, m1, _ := serialToDate(int(startSerial))
		y2, m2, d2 := serialToDate(int(endSerial))
		if actualDays <= 365 {
			// 366 only when Feb 29 can actually fall inside the span: the
			// start sits on or before Feb 29 of its own leap year, the end
			// sits on or after Feb 29 of its own leap year, or both
			// endpoint years are leap years.
			startBeforeLeapDay := isLeapYear(y1) && (m1 < 3)
			endAfterLeapDay := isLeapYear(y2) && (m2 > 2 || (m2 == 2 && d2 == 29))
			if startBeforeLeapDay || endAfterLeapDay || (isLeapYear(y1) && isLeapYear(y2)) {
				return actualDays / 366.0, nil
			}
			return actualDays / 365.0, nil
		}
		years := y2 - y1 + 1
		totalDaysInSpan := 0
		for y := y1; y <= y2; y++ {
			if isLeapYear(y) {
				totalDaysInSpan += 366
			} else {
				totalDaysInSpan += 365
			}
		}
		avgDaysPerYear := float64(totalDaysInSpan) / float64(years)
		return actualDays / avgDaysPerYear, nil
	default:
		return nil, NewSpreadsheetError(ErrorCodeNum, "YEARFRAC: unsupported basis")
	}
}

func isLeapYear(year int) bool {
	return (year%4 == 0 && year%100 != 0) || year%400 == 0
}
