package cmd

import (
	"fmt"
	"io"
	"os"

	"clinicsync/config"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show active configuration values.",
	Long: `Display the currently loaded configuration and the resolved config file path.

This command validates the configuration before printing values.`,
	Example: `
  # Show active configuration
  clinicsync config show
`,
	Run: func(cmd *cobra.Command, args []string) {
		cfg, err := config.LoadAndValidate()
		if err != nil {
			fmt.Println("Invalid config:", err)
			return
		}

		if configPath := viper.ConfigFileUsed(); configPath != "" {
			fmt.Println("Config file loaded from:", configPath)
		} else {
			fmt.Println("No config file loaded, showing defaults.")
		}
		printConfig(os.Stdout, cfg)
	},
}

func printConfig(out io.Writer, cfg *config.Config) {
	fmt.Fprintln(out, "Configuration:")
	fmt.Fprintf(out, "database.path: %s\n", cfg.Database.Path)
	fmt.Fprintf(out, "operator.user_id: %d\n", cfg.Operator.UserID)
	fmt.Fprintf(out, "import.insert_batch_size: %d\n", cfg.Import.InsertBatchSize)
	fmt.Fprintf(out, "import.update_batch_size: %d\n", cfg.Import.UpdateBatchSize)
	fmt.Fprintf(out, "import.update_workers: %d\n", cfg.Import.UpdateWorkers)
	fmt.Fprintf(out, "import.batch_timeout: %s\n", cfg.Import.BatchTimeout)
	fmt.Fprintf(out, "import.progress_interval: %s\n", cfg.Import.ProgressInterval)
	fmt.Fprintf(out, "import.index_page_size: %d\n", cfg.Import.IndexPageSize)
	fmt.Fprintf(out, "import.message_limit: %d\n", cfg.Import.MessageLimit)
	fmt.Fprintf(out, "import.backup_before_import: %t\n", cfg.Import.BackupBeforeImport)
	fmt.Fprintf(out, "import.auto_recalculate_after_import: %t\n", cfg.Import.AutoRecalculateAfterImport)
	fmt.Fprintf(out, "backup.retention_days: %d\n", cfg.Backup.RetentionDays)
	fmt.Fprintf(out, "log.level: %s\n", cfg.Log.Level)
	fmt.Fprintf(out, "log.format: %s\n", cfg.Log.Format)
	fmt.Fprintf(out, "directory.teams: %d\n", len(cfg.Directory.Teams))
	for i, team := range cfg.Directory.Teams {
		fmt.Fprintf(out, "directory.teams[%d]: %d %s\n", i, team.ID, team.Name)
	}
	fmt.Fprintf(out, "directory.people: %d\n", len(cfg.Directory.People))
	for i, person := range cfg.Directory.People {
		fmt.Fprintf(out, "directory.people[%d]: %d %s (team %d)\n", i, person.UserID, person.FullName, person.TeamID)
	}
	fmt.Fprintf(out, "directory.aliases: %d\n", len(cfg.Directory.Aliases))
	for i, alias := range cfg.Directory.Aliases {
		fmt.Fprintf(out, "directory.aliases[%d]: %s -> %d\n", i, alias.Name, alias.UserID)
	}
}

func init() {
	configCmd.AddCommand(configShowCmd)
}
