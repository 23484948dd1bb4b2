package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"clinicsync/backup"
	"clinicsync/output"

	"github.com/spf13/cobra"
)

var (
	backupListActive bool
	backupListOutput string
)

var backupCmd = &cobra.Command{
	Use:   "backup",
	Short: "Inspect and expire import backups",
	Long: `Every import that writes rows first snapshots the target table into a backup.
Backups stay restorable for backup.retention_days; after that they are expired
and can no longer be rolled back.`,
	Example: `
  # List every backup
  clinicsync backup list

  # List backups that can still be restored, and write them to Excel
  clinicsync backup list --active --output ./backups.xlsx

  # Mark backups past their retention as expired
  clinicsync backup expire
`,
}

var backupListCmd = &cobra.Command{
	Use:   "list",
	Short: "List backups, newest first",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp()
		if err != nil {
			return err
		}
		defer a.Close()

		artifacts, err := a.backups.List(context.Background(), backupListActive)
		if err != nil {
			return err
		}
		if len(artifacts) == 0 {
			fmt.Println("No backups found.")
		} else {
			printBackups(os.Stdout, artifacts, time.Now())
		}

		if backupListOutput != "" {
			if err := output.WriteFile(backupListOutput, "", output.BackupTable(artifacts)); err != nil {
				return err
			}
			fmt.Printf("Backups written: %s\n", backupListOutput)
		}
		return nil
	},
}

var backupExpireCmd = &cobra.Command{
	Use:   "expire",
	Short: "Expire completed backups past their retention",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp()
		if err != nil {
			return err
		}
		defer a.Close()

		expired, err := a.backups.ExpireStale(context.Background())
		if err != nil {
			return err
		}
		fmt.Printf("Expired backups: %d\n", expired)
		return nil
	},
}

func printBackups(out io.Writer, artifacts []backup.Artifact, now time.Time) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tNAME\tSTATUS\tTABLES\tROWS\tCREATED\tEXPIRES\tRESTORABLE")
	for _, artifact := range artifacts {
		var rows int64
		for _, count := range artifact.RowCounts {
			rows += count
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%d\t%s\t%s\t%t\n",
			artifact.ID,
			artifact.Name,
			artifact.Status,
			strings.Join(artifact.Tables, ","),
			rows,
			artifact.CreatedAt.Local().Format("2006-01-02 15:04"),
			artifact.ExpiresAt.Local().Format("2006-01-02 15:04"),
			artifact.Restorable(now),
		)
	}
	_ = w.Flush()
}

func init() {
	rootCmd.AddCommand(backupCmd)
	backupCmd.AddCommand(backupListCmd)
	backupCmd.AddCommand(backupExpireCmd)

	backupListCmd.Flags().BoolVar(&backupListActive, "active", false, "Only list backups that are not expired")
	backupListCmd.Flags().StringVarP(&backupListOutput, "output", "o", "", "Also write the list to this file (.csv or .xlsx)")
}
