package cmd

import "github.com/spf13/cobra"

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage clinicsync configuration file values.",
	Long: `Create, edit, display, and delete the clinicsync configuration file.

The configuration stores application-wide values:
- database.path and operator.user_id
- import.* batch sizes, worker count, timeouts and default toggles
- backup.retention_days and log.level / log.format
- directory.teams / people / aliases used by "directory sync"`,
	Example: `
  # Create default config in $HOME/.clinicsync.yaml
  clinicsync config create

  # Show active config and source file
  clinicsync config show

  # Open active config in editor (creates example if missing)
  clinicsync config edit

  # Delete active config file
  clinicsync config delete
`,
}

func init() {
	rootCmd.AddCommand(configCmd)
}
