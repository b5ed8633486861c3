package spreadsheet

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"
)

func BenchmarkCompileFormula(b *testing.B) {
	formulas := []string{
		"=SUM(B5:B15,D5:D15)*MAX(C1:C9)",
		"=IF(A1>0,VLOOKUP(A2,D1:E50,2,FALSE),0)",
		"={1,2;3,4;5,6}",
		"=A1:B2 B2:C3",
		"=YEARFRAC(DATE(2008,1,1),DATE(2015,4,20),1)",
	}
	ctx := testContext()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		for _, f := range formulas {
			if _, err := CompileFormula(f, ctx, NotationA1); err != nil {
				b.Fatal(err)
			}
		}
	}
}

func BenchmarkR1C1Compilation(b *testing.B) {
	ctx := &ParserContext{
		CurrentWorksheetID: 1,
		CurrentRow:         9,
		CurrentColumn:      4,
		ResolveWorksheet:   func(name string) uint32 { return 1 },
	}
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := CompileFormula("=SUM(R1C1:R9C1)+RC[-1]*R[-2]C", ctx, NotationR1C1); err != nil {
			b.Fatal(err)
		}
	}
}

func BenchmarkLookupTable(b *testing.B) {
	s := NewSpreadsheet()
	s.AddWorksheet("Sheet1")

	for row := 1; row <= 200; row++ {
		s.Set(fmt.Sprintf("Sheet1!A%d", row), fmt.Sprintf("key%03d", row))
		s.Set(fmt.Sprintf("Sheet1!B%d", row), float64(row*10))
	}
	s.Set("Sheet1!D1", `=VLOOKUP("key150",A1:B200,2,FALSE)`)
	s.Set("Sheet1!D2", "=MATCH(1500,B1:B200,0)")
	s.Set("Sheet1!D3", "=INDEX(A1:B200,150,2)")
	s.Calculate()

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		s.Set("Sheet1!B150", float64(1500+i%2))
		s.Calculate()
	}
}

func BenchmarkRangeOperators(b *testing.B) {
	s := NewSpreadsheet()
	s.AddWorksheet("Sheet1")

	for row := 1; row <= 50; row++ {
		s.Set(fmt.Sprintf("Sheet1!A%d", row), float64(row))
		s.Set(fmt.Sprintf("Sheet1!B%d", row), float64(row*2))
	}
	s.Set("Sheet1!D1", "=SUM(A1:B30 A20:B50)")
	s.Set("Sheet1!D2", "=SUM((A1:A25,A20:A50))")
	s.Set("Sheet1!D3", "=SUM(A:A)")
	s.Calculate()

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		s.Set("Sheet1!A25", float64(i))
		s.Calculate()
	}
}

func BenchmarkDateFunctions(b *testing.B) {
	s := NewSpreadsheet()
	s.AddWorksheet("Sheet1")

	for row := 1; row <= 50; row++ {
		s.Set(fmt.Sprintf("Sheet1!A%d", row), fmt.Sprintf("=DATE(%d,%d,%d)", 1999+row, row%12+1, row%28+1))
		s.Set(fmt.Sprintf("Sheet1!B%d", row), fmt.Sprintf("=YEARFRAC(DATE(2000,1,1),A%d,1)", row))
		s.Set(fmt.Sprintf("Sheet1!C%d", row), fmt.Sprintf("=WEEKDAY(A%d)", row))
	}

	ctx := context.Background()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if err := s.Recalculate(ctx); err != nil {
			b.Fatal(err)
		}
	}
}

func BenchmarkEngineeringConversions(b *testing.B) {
	s := NewSpreadsheet()
	s.AddWorksheet("Sheet1")

	for row := 1; row <= 50; row++ {
		s.Set(fmt.Sprintf("Sheet1!A%d", row), fmt.Sprintf("=DEC2HEX(%d)", row*37))
		s.Set(fmt.Sprintf("Sheet1!B%d", row), fmt.Sprintf("=HEX2DEC(A%d)", row))
		s.Set(fmt.Sprintf("Sheet1!C%d", row), fmt.Sprintf("=BITXOR(%d,%d)", row, row*3))
	}

	ctx := context.Background()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if err := s.Recalculate(ctx); err != nil {
			b.Fatal(err)
		}
	}
}

func BenchmarkLinestArrayRun(b *testing.B) {
	s := NewSpreadsheet()
	s.AddWorksheet("Sheet1")

	for row := 1; row <= 20; row++ {
		s.Set(fmt.Sprintf("Sheet1!A%d", row), float64(row))
		s.Set(fmt.Sprintf("Sheet1!B%d", row), float64(row*3+1))
	}
	// three-cell horizontal run: slope, intercept, r-squared
	s.Set("Sheet1!D1", "=LINEST(B1:B20,A1:A20)")
	s.Set("Sheet1!E1", "=LINEST(B1:B20,A1:A20)")
	s.Set("Sheet1!F1", "=LINEST(B1:B20,A1:A20)")
	s.Calculate()

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		s.Set("Sheet1!B10", float64(31+i%3))
		s.Calculate()
	}
}

func BenchmarkIterativeConvergence(b *testing.B) {
	s := NewSpreadsheet()
	s.AddWorksheet("Sheet1")
	s.Set("Sheet1!A1", "=B1*0.5+1")
	s.Set("Sheet1!B1", "=A1*0.5+1")
	s.EnableIterativeCalculation(100, 1e-9)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if err := s.CalculateIterative(); err != nil {
			b.Fatal(err)
		}
	}
}

func BenchmarkEvaluateMany(b *testing.B) {
	s := NewSpreadsheet()
	s.AddWorksheet("Sheet1")

	s.Set("Sheet1!A1", 1.0)
	addresses := make([]string, 0, 100)
	for i := 1; i <= 100; i++ {
		addr := fmt.Sprintf("Sheet1!B%d", i)
		s.Set(addr, fmt.Sprintf("=A1*%d+SUM(A1:A1)", i))
		addresses = append(addresses, addr)
	}

	ctx := context.Background()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		s.Set("Sheet1!A1", float64(i+1))
		if _, err := s.EvaluateMany(ctx, addresses, 4); err != nil {
			b.Fatal(err)
		}
	}
}

func BenchmarkTrim(b *testing.B) {
	for i := 0; i < b.N; i++ {
		s := NewSpreadsheet()
		s.AddWorksheet("Sheet1")
		s.Set("Sheet1!A1", 1.0)
		for row := 2; row <= 200; row++ {
			s.Set(fmt.Sprintf("Sheet1!A%d", row), fmt.Sprintf("=A%d+1", row-1))
		}
		// a disconnected formula chain the trim should discard
		s.Set("Sheet1!C1", 1.0)
		for row := 2; row <= 200; row++ {
			s.Set(fmt.Sprintf("Sheet1!C%d", row), fmt.Sprintf("=C%d*2", row-1))
		}
		s.Calculate()
		if err := s.Trim([]string{"Sheet1!A1"}, []string{"Sheet1!A200"}); err != nil {
			b.Fatal(err)
		}
	}
}

func BenchmarkValueTree(b *testing.B) {
	s := NewSpreadsheet()
	s.AddWorksheet("Sheet1")
	s.Set("Sheet1!A1", 1.0)
	for row := 2; row <= 100; row++ {
		s.Set(fmt.Sprintf("Sheet1!A%d", row), fmt.Sprintf("=A%d+1", row-1))
	}
	s.Calculate()

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := s.ValueTree("Sheet1!A100"); err != nil {
			b.Fatal(err)
		}
	}
}

func BenchmarkSerializeRoundTrip(b *testing.B) {
	s := NewSpreadsheet()
	s.AddWorksheet("Sheet1")
	for row := 1; row <= 50; row++ {
		s.Set(fmt.Sprintf("Sheet1!A%d", row), float64(row))
		s.Set(fmt.Sprintf("Sheet1!B%d", row), fmt.Sprintf("=A%d*2", row))
	}
	s.Calculate()

	ctx := context.Background()
	dir := b.TempDir()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		path := filepath.Join(dir, fmt.Sprintf("artifact%d.json", i%8))
		if err := s.Serialize(ctx, path, []string{"Sheet1!B50"}); err != nil {
			b.Fatal(err)
		}
		if _, _, err := Deserialize(path, NotationA1); err != nil {
			b.Fatal(err)
		}
	}
}

func BenchmarkIncrementalInvalidation(b *testing.B) {
	s := NewSpreadsheet()
	s.AddWorksheet("Sheet1")

	// wide fan-out over one input plus a deep chain hanging off it
	s.Set("Sheet1!A1", 1.0)
	for i := 1; i <= 300; i++ {
		s.Set(fmt.Sprintf("Sheet1!B%d", i), "=A1*2")
	}
	s.Set("Sheet1!C1", "=B1+1")
	for i := 2; i <= 100; i++ {
		s.Set(fmt.Sprintf("Sheet1!C%d", i), fmt.Sprintf("=C%d+1", i-1))
	}
	s.Calculate()

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		s.Set("Sheet1!A1", float64(i))
		s.Calculate()
	}
}
