package cmd

import (
	"fmt"

	"github.com/ginjaninja78/comandos-pagamento-xml/internal/xlsxparser"
	"github.com/spf13/cobra"
)

var templateOutput string

// templateCmd writes a blank input workbook.
var templateCmd = &cobra.Command{
	Use:   "template",
	Short: "Write a blank input spreadsheet with the required columns",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := xlsxparser.WriteTemplate(templateOutput); err != nil {
			return err
		}
		fmt.Printf("Template written to %s\n", templateOutput)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(templateCmd)

	templateCmd.Flags().StringVarP(&templateOutput, "output", "o", "modelo_comandos.xlsx", "Template path")
}
