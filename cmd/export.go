package cmd

import (
	"context"
	"fmt"
	"strings"

	"clinicsync/output"
	"clinicsync/storage"

	"github.com/spf13/cobra"
)

var (
	exportFormat string
	exportTable  string
	exportOutput string
)

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export stored records, import logs, backups or RFV scores to CSV/Excel",
	Long: `Export one table of the local database.

Tables:
- personas, vendas, executados: every stored record, all columns
- import_logs: the import and rollback history, newest first
- backups: every backup with its status and row counts
- rfv: the latest recency/frequency/value scores

Output format can be selected explicitly via --format or inferred from --output extension.`,
	Example: `
  # Export patients to CSV
  clinicsync export --table personas --output ./personas.csv

  # Export the import history to Excel
  clinicsync export --table import_logs --output ./imports.xlsx

  # Force Excel format independent of extension
  clinicsync export --table rfv --format excel --output ./rfv.out
`,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp()
		if err != nil {
			return err
		}
		defer a.Close()

		table, err := buildExportTable(context.Background(), a.store, exportTable)
		if err != nil {
			return err
		}
		format := exportFormat
		if strings.TrimSpace(format) == "" {
			format = output.FormatForPath(exportOutput)
		}
		if err := output.WriteFile(exportOutput, format, table); err != nil {
			return err
		}
		fmt.Printf("Export completed. Rows: %d, Table: %s, Format: %s, File: %s\n", len(table.Rows), exportTable, format, exportOutput)
		return nil
	},
}

func buildExportTable(ctx context.Context, store *storage.SQLiteStore, name string) (output.Table, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	switch name {
	case "import_logs":
		entries, err := store.ListImportLogs(ctx, 0)
		if err != nil {
			return output.Table{}, err
		}
		return output.ImportLogTable(entries), nil
	case "backups":
		artifacts, err := store.ListBackups(ctx)
		if err != nil {
			return output.Table{}, err
		}
		return output.BackupTable(artifacts), nil
	case "rfv":
		scores, err := store.ListScores(ctx)
		if err != nil {
			return output.Table{}, err
		}
		return output.ScoreTable(scores), nil
	default:
		headers, rows, err := store.ExportTable(ctx, name)
		if err != nil {
			return output.Table{}, fmt.Errorf("unsupported export table %q (supported: %s, import_logs, backups, rfv): %w",
				name, strings.Join(storage.RecordTables(), ", "), err)
		}
		return output.Table{Sheet: name, Headers: headers, Rows: rows}, nil
	}
}

func init() {
	rootCmd.AddCommand(exportCmd)

	exportCmd.Flags().StringVarP(&exportTable, "table", "t", "personas", "Table to export: personas|vendas|executados|import_logs|backups|rfv")
	exportCmd.Flags().StringVarP(&exportFormat, "format", "f", "", "Output format: csv|excel (optional, inferred from output extension)")
	exportCmd.Flags().StringVarP(&exportOutput, "output", "o", "", "Output file path")

	_ = exportCmd.MarkFlagRequired("output")
}
