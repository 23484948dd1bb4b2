package cmd

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

var rollbackYes bool

var rollbackCmd = &cobra.Command{
	Use:   "rollback <backup-id>",
	Short: "Restore the tables of one backup",
	Long: `Replace the current contents of every table in the backup with its snapshot.
Rows imported after the backup was taken are lost.

Only completed backups inside their retention can be restored, and each backup
can be restored once. Before restoring, an interactive security prompt requires
typing exactly "Y" unless --yes is given.`,
	Example: `
  # Undo the import that created backup 3f0c...
  clinicsync rollback 3f0c2b0e-6c1d-4b8a-9d1e-8f6f0a1b2c3d
`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		backupID := strings.TrimSpace(args[0])

		a, err := openApp()
		if err != nil {
			return err
		}
		defer a.Close()

		ctx := context.Background()
		artifact, err := a.backups.Get(ctx, backupID)
		if err != nil {
			return err
		}

		if !rollbackYes {
			question := fmt.Sprintf("Restore %s (%s) from backup %q? Current rows will be replaced.",
				strings.Join(artifact.Tables, ", "), artifact.Name, artifact.ID)
			confirmed, err := confirmPrompt(promptInput, promptOutput, question)
			if err != nil {
				return err
			}
			if !confirmed {
				return fmt.Errorf("rollback aborted: confirmation was not 'Y'")
			}
		}

		restored, err := a.service.Rollback(ctx, backupID)
		if err != nil {
			return err
		}
		fmt.Printf("Rollback completed. Backup: %s, Tables: %s\n", restored.ID, strings.Join(restored.Tables, ", "))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(rollbackCmd)

	rollbackCmd.Flags().BoolVarP(&rollbackYes, "yes", "y", false, "Skip the confirmation prompt")
}
