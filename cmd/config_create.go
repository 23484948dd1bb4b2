package cmd

import (
	"fmt"
	"io"
	"os"

	"clinicsync/config"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var configCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Create a configuration file, or check the one already in place.",
	Long: `Create a new configuration file from the same example template used by "config edit".

If the file already exists it is left untouched and checked instead: the
directory section must only reference known teams and people, and the operator
must be listed among the people. The command fails when the check does not pass.`,
	Example: `
  # Create default config at $HOME/.clinicsync.yaml
  clinicsync config create

  # Create or check config at a custom path
  clinicsync --configFile ./clinic.yaml config create
`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return saveDefaultConfig(cmd.OutOrStdout())
	},
}

func saveDefaultConfig(out io.Writer) error {
	configPath, err := resolveConfigEditPath(cfgFile, viper.ConfigFileUsed())
	if err != nil {
		return err
	}

	created, err := ensureConfigFileWithTemplate(configPath)
	if err != nil {
		return err
	}

	content, err := os.ReadFile(configPath)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}
	cfg, err := config.ValidateYAMLContent(content)
	if err != nil {
		return fmt.Errorf("config file %s: %w", configPath, err)
	}

	if created {
		fmt.Fprintf(out, "New config file created at: %s\n", configPath)
	} else {
		fmt.Fprintf(out, "Config file already exists at: %s\n", configPath)
	}
	fmt.Fprintln(out, directoryHint(cfg.Directory))
	return nil
}

func init() {
	configCmd.AddCommand(configCreateCmd)
}
