// Command sheetcalc is a thin CLI wrapper around the spreadsheet package,
// exercising the Compiled Spreadsheet surface end to end: load a workbook,
// evaluate an address, or trim the graph down to a minimal standalone
// artifact. Exit 0 on success; non-zero with a single-line diagnostic on
// parse/compile/evaluate failure, per the package's exit-semantics contract.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	spreadsheet "github.com/arborfield/formulagraph"
	"github.com/arborfield/formulagraph/xlsxaccessor"
)

// cliOptions mirrors the flag set below into a struct so validator/v10 can
// check cross-field invariants (trim needs both inputs and outputs,
// evaluate needs an address) before any workbook is touched.
type cliOptions struct {
	Workbook    string   `validate:"required,endswith=.xlsx"`
	Evaluate    string   `validate:"required_without_all=TrimInputs TrimOutputs"`
	TrimInputs  []string `validate:"required_with=TrimOutputs"`
	TrimOutputs []string `validate:"required_with=TrimInputs"`
	Out         string
	Notation    string   `validate:"oneof=a1 r1c1"`
	Verbose     bool
}

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	fs := flag.NewFlagSet("sheetcalc", flag.ContinueOnError)
	workbook := fs.String("workbook", "", "path to the .xlsx workbook to load")
	evaluate := fs.String("evaluate", "", "address to evaluate, e.g. Sheet1!B2")
	trimInputs := fs.String("trim-inputs", "", "comma-separated input addresses for trimming")
	trimOutputs := fs.String("trim-outputs", "", "comma-separated output addresses for trimming")
	out := fs.String("out", "", "path to write the trimmed/serialized artifact to")
	notation := fs.String("notation", "a1", "formula notation: a1 or r1c1")
	verbose := fs.Bool("verbose", false, "enable debug-level logging")

	if err := fs.Parse(args); err != nil {
		return 2
	}

	opts := cliOptions{
		Workbook:    *workbook,
		Evaluate:    *evaluate,
		TrimInputs:  splitNonEmpty(*trimInputs),
		TrimOutputs: splitNonEmpty(*trimOutputs),
		Out:         *out,
		Notation:    *notation,
		Verbose:     *verbose,
	}

	zerolog.SetGlobalLevel(zerolog.InfoLevel)
	if opts.Verbose {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	}
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen})

	if err := validator.New().Struct(opts); err != nil {
		fmt.Fprintf(os.Stderr, "sheetcalc: invalid arguments: %v\n", err)
		return 2
	}

	sessionID := uuid.NewString()
	log.Info().Str("session_id", sessionID).Str("workbook", opts.Workbook).Msg("loading workbook")

	notationValue := spreadsheet.NotationA1
	if strings.EqualFold(opts.Notation, "r1c1") {
		notationValue = spreadsheet.NotationR1C1
	}

	acc, err := xlsxaccessor.Open(opts.Workbook)
	if err != nil {
		log.Error().Err(err).Msg("opening workbook")
		fmt.Fprintf(os.Stderr, "sheetcalc: %v\n", err)
		return 1
	}
	defer acc.Close()

	sheet, err := spreadsheet.LoadWorkbook(acc, notationValue)
	if err != nil {
		log.Error().Err(err).Msg("compiling workbook")
		fmt.Fprintf(os.Stderr, "sheetcalc: %v\n", err)
		return 1
	}

	ctx := context.Background()

	if len(opts.TrimInputs) > 0 {
		return runTrim(ctx, sheet, opts)
	}
	return runEvaluate(ctx, sheet, opts)
}

func runEvaluate(ctx context.Context, sheet *spreadsheet.Spreadsheet, opts cliOptions) int {
	val, err := sheet.Evaluate(ctx, opts.Evaluate)
	if err != nil {
		log.Error().Err(err).Str("address", opts.Evaluate).Msg("evaluate failed")
		fmt.Fprintf(os.Stderr, "sheetcalc: evaluate %s: %v\n", opts.Evaluate, err)
		return 1
	}
	fmt.Printf("%v\n", val)
	return 0
}

func runTrim(ctx context.Context, sheet *spreadsheet.Spreadsheet, opts cliOptions) int {
	if err := sheet.Trim(opts.TrimInputs, opts.TrimOutputs); err != nil {
		log.Error().Err(err).Msg("trim failed")
		fmt.Fprintf(os.Stderr, "sheetcalc: trim: %v\n", err)
		return 1
	}
	if opts.Out == "" {
		log.Info().Msg("trim complete, no --out given, skipping serialization")
		return 0
	}
	if err := sheet.Serialize(ctx, opts.Out, opts.TrimOutputs); err != nil {
		log.Error().Err(err).Str("out", opts.Out).Msg("serialize failed")
		fmt.Fprintf(os.Stderr, "sheetcalc: serialize: %v\n", err)
		return 1
	}
	log.Info().Str("out", opts.Out).Msg("trimmed artifact serialized")
	return 0
}

func splitNonEmpty(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	result := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			result = append(result, p)
		}
	}
	return result
}
