package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"clinicsync/batch"
	"clinicsync/importer"

	"github.com/spf13/cobra"
)

var (
	importFlags           sessionFlags
	importBackupMode      string
	importRecalculateMode string
	importQuiet           bool
)

var importCmd = &cobra.Command{
	Use:   "import",
	Short: "Import a patient, sales or executed-procedure spreadsheet",
	Long: `Read one spreadsheet, map its columns to the fields of the record kind,
and write the rows to the database in batches.

Patients are matched against stored records by prontuario, then CPF. Matches
are updated without erasing stored values; everything else is inserted.
Sales and executed procedures are credited to the seller named in the file,
falling back to the configured operator.

Unless disabled, the target table is backed up before anything is written,
so the import can be undone with "clinicsync rollback <backup-id>".`,
	Example: `
  # Import patients
  clinicsync import -i pacientes.xlsx --kind persona

  # Import sales from a given sheet with one mapping override
  clinicsync import -i vendas.xlsx --kind vendas --sheet "Fevereiro" --map seller="Consultora"

  # Skip the backup and the RFV recalculation for this run
  clinicsync import -i executados.csv --kind executados --backup off --recalculate off
`,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp()
		if err != nil {
			return err
		}
		defer a.Close()

		backupBefore, err := resolveToggle("backup", importBackupMode, a.cfg.Import.BackupBeforeImport)
		if err != nil {
			return err
		}
		recalculate, err := resolveToggle("recalculate", importRecalculateMode, a.cfg.Import.AutoRecalculateAfterImport)
		if err != nil {
			return err
		}

		progressOut := io.Writer(os.Stderr)
		if importQuiet {
			progressOut = io.Discard
		}
		report, err := runImport(context.Background(), a.service, importFlags, importer.RunOptions{
			Backup:      backupBefore,
			Recalculate: recalculate,
		}, progressOut)
		if report != nil {
			printReport(report)
		}
		if hint := importFailureHint(err); hint != "" {
			fmt.Fprintln(os.Stderr, hint)
		}
		return err
	},
}

func init() {
	rootCmd.AddCommand(importCmd)

	addSessionFlags(importCmd, &importFlags)
	importCmd.Flags().StringVar(&importBackupMode, "backup", "auto", "Backup before import: auto|on|off (auto uses import.backup_before_import)")
	importCmd.Flags().StringVar(&importRecalculateMode, "recalculate", "auto", "RFV recalculation after transaction imports: auto|on|off")
	importCmd.Flags().BoolVarP(&importQuiet, "quiet", "q", false, "Do not print batch progress")
}

func runImport(ctx context.Context, service *importer.Service, flags sessionFlags, options importer.RunOptions, progressOut io.Writer) (*importer.Report, error) {
	session, err := openSession(ctx, service, flags)
	if err != nil {
		return nil, err
	}

	options.OnProgress = func(p batch.Progress) {
		fmt.Fprintf(progressOut, "\r%s: %d/%d", p.Phase, p.Done, p.Total)
		if p.Done == p.Total {
			fmt.Fprintln(progressOut)
		}
	}
	return service.Run(ctx, session, options)
}

func printReport(report *importer.Report) {
	stats := report.Stats
	fmt.Printf("Import %s. Rows: %d, New: %d, Updated: %d, Duplicates merged: %d, Skipped: %d, Errors: %d, Not attempted: %d, Duration: %s\n",
		report.Status,
		stats.Total,
		stats.New,
		stats.Updated,
		stats.Duplicates,
		stats.Skipped,
		stats.Errors,
		stats.NotAttempted,
		report.Duration.Round(time.Millisecond),
	)
	if report.BackupID != "" {
		fmt.Printf("Backup: %s (undo with: clinicsync rollback %s)\n", report.BackupID, report.BackupID)
	}
	if report.Recalculated {
		fmt.Printf("RFV recalculated for %d patients.\n", report.Recalc.Scored)
	}
	if report.RecalcError != "" {
		fmt.Printf("RFV recalculation failed: %s\n", report.RecalcError)
	}
	printIssues("Issues", report.Issues, report.IssueCount)
}

// importFailureHint tells the user whether a failed run touched the table.
func importFailureHint(err error) string {
	switch {
	case err == nil:
		return ""
	case importer.IsFatal(err):
		return "Import stopped before any row was written."
	default:
		return "Import stopped after writing began; check the import log and roll back if needed."
	}
}

func resolveToggle(name, mode string, configDefault bool) (bool, error) {
	switch strings.ToLower(strings.TrimSpace(mode)) {
	case "", "auto":
		return configDefault, nil
	case "on", "true", "yes":
		return true, nil
	case "off", "false", "no":
		return false, nil
	default:
		return false, fmt.Errorf("invalid %s mode %q (supported: auto|on|off)", name, mode)
	}
}
