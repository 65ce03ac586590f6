// =============================================================================
// Payment Command Converter - Convert Command
// =============================================================================
//
// This file defines the 'convert' command, which turns one or more
// spreadsheets into payment-command XML files.
//
// COMMAND USAGE:
//   converter convert --file janeiro.xlsx --responsible 2 --folha 012025
//   converter convert a.xlsx b.csv --responsible 2 --folha 012025
//
// FLAGS:
//   --file         : Input file (repeatable; positional arguments also work)
//   --responsible  : Id of the active responsible party signing the payload
//   --folha        : Period code MMYYYY
//   --output       : Output path (single input only)
//   --dry-run      : Validate and generate without writing anything
//
// PROCESSING PIPELINE:
//   1. Resolve the responsible party from the registry
//   2. For each file (concurrently):
//      a. Read and validate the rows
//      b. Generate the XML
//      c. Write the output and the rejected-rows log
//      d. Archive the input (archive_on_success)
//   3. Print a summary
//
// =============================================================================

package cmd

import (
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/ginjaninja78/comandos-pagamento-xml/internal/converter"
	"github.com/spf13/cobra"
)

// =============================================================================
// COMMAND FLAGS
// =============================================================================

var (
	convertFiles       []string
	convertResponsible int
	convertFolha       string
	convertOutput      string
	convertDryRun      bool
)

// =============================================================================
// CONVERT COMMAND DEFINITION
// =============================================================================

var convertCmd = &cobra.Command{
	Use:   "convert [files...]",
	Short: "Convert spreadsheets into payment-command XML",
	Long: `The convert command reads each spreadsheet (.xlsx, .xlsm or .csv), validates
every row, and writes the valid rows as an ISO-8859-1 XML payload signed by the
chosen responsible party.

Rows that fail validation are left out of the payload and listed in a
"_rejeitados.log" file next to it. A file with no valid rows produces no XML.

Files are converted concurrently; a failure in one file does not stop the
others.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runConvert(append(append([]string{}, convertFiles...), args...))
	},
}

func init() {
	rootCmd.AddCommand(convertCmd)

	convertCmd.Flags().StringSliceVarP(&convertFiles, "file", "f", nil, "Input spreadsheet (repeatable)")
	convertCmd.Flags().IntVarP(&convertResponsible, "responsible", "r", 0, "Id of the responsible party")
	convertCmd.Flags().StringVar(&convertFolha, "folha", "", "Period code (MMYYYY)")
	convertCmd.Flags().StringVarP(&convertOutput, "output", "o", "", "Output file (single input only)")
	convertCmd.Flags().BoolVar(&convertDryRun, "dry-run", false, "Validate and generate without writing files")

	convertCmd.MarkFlagRequired("responsible")
	convertCmd.MarkFlagRequired("folha")
}

// =============================================================================
// MAIN PROCESSING FUNCTION
// =============================================================================

func runConvert(inputFiles []string) error {
	startTime := time.Now()

	if len(inputFiles) == 0 {
		return errors.New("no input file given (use --file or pass paths as arguments)")
	}
	if convertOutput != "" && len(inputFiles) > 1 {
		return errors.New("--output can only be used with a single input file")
	}

	// =========================================================================
	// STEP 1: RESOLVE RESPONSIBLE
	// =========================================================================

	reg, err := openRegistry()
	if err != nil {
		return err
	}

	signer, err := reg.Get(convertResponsible)
	if err != nil {
		return fmt.Errorf("failed to resolve responsible: %w", err)
	}

	fmt.Println("=== Payment Command Converter ===")
	fmt.Printf("Responsible: %d - %s\n", signer.ID, signer.Nome)
	fmt.Printf("Folha:       %s\n", convertFolha)
	fmt.Printf("Files:       %d\n", len(inputFiles))

	// =========================================================================
	// STEP 2: CONVERT FILES CONCURRENTLY
	// =========================================================================

	conv := converter.New(appConfig)

	var wg sync.WaitGroup
	results := make(chan converter.Result, len(inputFiles))

	for _, file := range inputFiles {
		wg.Add(1)

		go func(path string) {
			defer wg.Done()

			results <- conv.Run(converter.Request{
				InputPath:  path,
				Signer:     signer,
				Folha:      convertFolha,
				OutputPath: convertOutput,
				DryRun:     convertDryRun,
			})
		}(file)
	}

	go func() {
		wg.Wait()
		close(results)
	}()

	// =========================================================================
	// STEP 3: COLLECT RESULTS AND PRINT SUMMARY
	// =========================================================================

	var successCount, errorCount, rejected int

	for result := range results {
		name := filepath.Base(result.FilePath)
		if !result.Success {
			errorCount++
			fmt.Printf("  ✗ %s: %v\n", name, result.Error)
			continue
		}

		successCount++
		rejected += result.Summary.Invalid
		target := result.OutputFile
		if convertDryRun {
			target = "(dry run)"
		}
		fmt.Printf("  ✓ %s -> %s [%d valid, %d rejected, %d trigramas]\n",
			name, target, result.Summary.Valid, result.Summary.Invalid, result.Groups)
		if result.DiagnosticsFile != "" {
			fmt.Printf("    rejected rows: %s\n", result.DiagnosticsFile)
		}
	}

	fmt.Println("\n=== Conversion Complete ===")
	fmt.Printf("Successful:    %d\n", successCount)
	fmt.Printf("Errors:        %d\n", errorCount)
	fmt.Printf("Rejected rows: %d\n", rejected)
	fmt.Printf("Time elapsed:  %s\n", time.Since(startTime).Round(time.Millisecond))

	if errorCount > 0 {
		return fmt.Errorf("%d of %d file(s) failed", errorCount, len(inputFiles))
	}
	return nil
}
