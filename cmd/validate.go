package cmd

import (
	"context"
	"fmt"

	"clinicsync/output"

	"github.com/spf13/cobra"
)

var (
	validateFlags        sessionFlags
	validateReport       string
	validateReportFormat string
)

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Check a file against the current mapping without writing anything",
	Long: `Run every row through normalization, identity matching and seller attribution
and report what an import would do. Errors and warnings are listed up to
import.message_limit; the counts are always exact.

With --report, every listed finding is also written to a CSV or Excel file.`,
	Example: `
  # Validate a sales file
  clinicsync validate -i vendas.xlsx --kind vendas

  # Validate and write the findings to Excel
  clinicsync validate -i pacientes.csv --kind persona --report ./pacientes-report.xlsx
`,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp()
		if err != nil {
			return err
		}
		defer a.Close()

		ctx := context.Background()
		session, err := openSession(ctx, a.service, validateFlags)
		if err != nil {
			return err
		}
		printMapping(session)

		result, err := a.service.Validate(ctx, session)
		if err != nil {
			return err
		}

		summary := result.Summary
		fmt.Printf("Validation completed. Rows: %d, Valid: %d, Duplicates: %d, Invalid: %d, Skipped: %d, Errors: %d, Warnings: %d\n",
			summary.Total,
			summary.Valid,
			summary.Duplicates,
			summary.Invalid,
			summary.Skipped,
			summary.Errors,
			summary.Warnings,
		)
		printIssues("Errors", result.Errors, summary.Errors)
		printIssues("Warnings", result.Warnings, summary.Warnings)

		if validateReport != "" {
			if err := output.WriteFile(validateReport, validateReportFormat, output.ValidationTable(result)); err != nil {
				return err
			}
			fmt.Printf("Report written: %s\n", validateReport)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(validateCmd)

	addSessionFlags(validateCmd, &validateFlags)
	validateCmd.Flags().StringVar(&validateReport, "report", "", "Write errors and warnings to this file (.csv or .xlsx)")
	validateCmd.Flags().StringVar(&validateReportFormat, "report-format", "", "Report format: csv|excel (optional, inferred from extension)")
}
