// =============================================================================
// Payment Command Converter - Preview Command
// =============================================================================
//
// This file defines the 'preview' command, which validates a spreadsheet and
// prints every rejected row without generating any XML.
//
// COMMAND USAGE:
//   converter preview --file janeiro.xlsx [--rows 10]
//
// =============================================================================

package cmd

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/ginjaninja78/comandos-pagamento-xml/internal/converter"
	"github.com/ginjaninja78/comandos-pagamento-xml/internal/xmlwriter"
	"github.com/spf13/cobra"
)

var (
	previewFile string
	previewRows int
)

var previewCmd = &cobra.Command{
	Use:   "preview",
	Short: "Validate a spreadsheet and list rejected rows",
	RunE: func(cmd *cobra.Command, args []string) error {
		if previewFile == "" && len(args) == 1 {
			previewFile = args[0]
		}
		return runPreview()
	},
}

func init() {
	rootCmd.AddCommand(previewCmd)

	previewCmd.Flags().StringVarP(&previewFile, "file", "f", "", "Input spreadsheet")
	previewCmd.Flags().IntVar(&previewRows, "rows", 5, "Number of valid records to show")
}

func runPreview() error {
	if previewFile == "" {
		return fmt.Errorf("no input file given (use --file)")
	}

	records, err := converter.LoadFile(previewFile, appConfig.CSV)
	if err != nil {
		return err
	}

	summary := converter.Summarize(records)
	groups := xmlwriter.GroupByTrigrama(records)

	fmt.Printf("File:      %s\n", previewFile)
	fmt.Printf("Total:     %d\n", summary.Total)
	fmt.Printf("Valid:     %d\n", summary.Valid)
	fmt.Printf("Rejected:  %d\n", summary.Invalid)
	fmt.Printf("Trigramas: %d\n", len(groups))

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)

	valid := converter.ValidRecords(records)
	if len(valid) > 0 && previewRows > 0 {
		fmt.Println("\nValid records:")
		fmt.Fprintln(w, "ROW\tMATRICULA\tRUBRICA\tVALOR\tTIPO\tTRIGRAMA")
		for i, r := range valid {
			if i == previewRows {
				break
			}
			fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%s\t%s\n", r.LineNumber, r.Matricula, r.Rubrica, r.ValorFormatado(), r.Tipo, r.Trigrama)
		}
		w.Flush()
	}

	if diags := converter.Diagnostics(records); len(diags) > 0 {
		fmt.Println("\nRejected rows:")
		fmt.Fprintln(w, "ROW\tFIELD\tVALUE\tMESSAGE")
		for _, d := range diags {
			fmt.Fprintf(w, "%d\t%s\t%s\t%s\n", d.Row, d.Field, d.Value, d.Message)
		}
		w.Flush()
	}

	return nil
}
