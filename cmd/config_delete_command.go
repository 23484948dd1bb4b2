package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var configDeleteYes bool

var configDeleteCmd = &cobra.Command{
	Use:   "delete",
	Short: "Delete the active configuration file.",
	Long: `Delete the configuration file currently selected by clinicsync.

The directory (teams, people, seller aliases) kept in the file is lost; the
copy already synced into the database is not touched. An interactive prompt
requires typing exactly "Y" unless --yes is given.

If no configuration file is active, the command returns an error.`,
	Example: `
  # Delete active config
  clinicsync config delete

  # Delete config at a custom path without prompting
  clinicsync --configFile ./custom-clinicsync.yaml config delete --yes
`,
	RunE: func(cmd *cobra.Command, args []string) error {
		configPath := viper.ConfigFileUsed()
		if configPath == "" {
			return fmt.Errorf("no configuration file found")
		}

		if !configDeleteYes {
			confirmed, err := confirmPrompt(promptInput, promptOutput, fmt.Sprintf("Delete configuration file %q?", configPath))
			if err != nil {
				return err
			}
			if !confirmed {
				return fmt.Errorf("config delete aborted: confirmation was not 'Y'")
			}
		}

		if err := os.Remove(configPath); err != nil {
			return fmt.Errorf("error deleting configuration file: %w", err)
		}

		fmt.Printf("Configuration file successfully deleted: %s\n", configPath)
		return nil
	},
}

func init() {
	configCmd.AddCommand(configDeleteCmd)

	configDeleteCmd.Flags().BoolVarP(&configDeleteYes, "yes", "y", false, "Skip the confirmation prompt")
}
