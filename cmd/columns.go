package cmd

import (
	"context"
	"fmt"
	"strings"

	"clinicsync/importer"

	"github.com/spf13/cobra"
)

var (
	columnsFlags       sessionFlags
	columnsSuggestions int
)

var columnsCmd = &cobra.Command{
	Use:   "columns",
	Short: "Show sheets, headers and the proposed column mapping of a file",
	Long: `Load a spreadsheet, list its sheets and headers, and show which header each
field of the record kind is mapped to. Unmapped fields list the closest headers.

Nothing is written to the database.`,
	Example: `
  # Show the automatic mapping for a patient file
  clinicsync columns -i pacientes.xlsx --kind persona

  # Use another sheet and preview an override
  clinicsync columns -i vendas.xlsx --kind vendas --sheet "Janeiro" --map amount="Valor Liquido"
`,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp()
		if err != nil {
			return err
		}
		defer a.Close()

		session, err := openSession(context.Background(), a.service, columnsFlags)
		if err != nil {
			return err
		}

		fmt.Printf("File: %s\n", session.Filename)
		fmt.Printf("Sheets: %s\n", strings.Join(session.Sheets, ", "))
		fmt.Printf("Headers: %s\n", strings.Join(session.Sheet.Headers, " | "))
		printMapping(session)

		mapping := session.Mapping()
		for _, field := range session.Schema.Fields {
			if mapping.Header(field.Name) != "" {
				continue
			}
			suggestions := importer.Suggest(session.Schema, field.Name, session.Sheet.Headers, columnsSuggestions)
			if len(suggestions) == 0 {
				continue
			}
			fmt.Printf("Suggestions for %s: %s\n", field.Name, strings.Join(suggestions, ", "))
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(columnsCmd)

	addSessionFlags(columnsCmd, &columnsFlags)
	columnsCmd.Flags().IntVar(&columnsSuggestions, "suggestions", 3, "Number of header suggestions shown for unmapped fields")
}

func addSessionFlags(cmd *cobra.Command, flags *sessionFlags) {
	cmd.Flags().StringVarP(&flags.input, "input", "i", "", "Input file path (.xlsx, .xlsm, .xls, .csv)")
	cmd.Flags().StringVarP(&flags.kind, "kind", "k", "", "Record kind: persona|vendas|executados")
	cmd.Flags().StringVar(&flags.sheet, "sheet", "", "Sheet to read (default: first sheet)")
	cmd.Flags().StringArrayVar(&flags.maps, "map", nil, `Mapping override field=Header (repeatable, "field=" unmaps)`)

	_ = cmd.MarkFlagRequired("input")
	_ = cmd.MarkFlagRequired("kind")
}
