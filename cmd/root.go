/*
Copyright © 2025 riad@rsworld.eu

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

	http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/
package cmd

import (
	"fmt"
	"os"
	"strings"

	"clinicsync/config"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	cfgFile  string
	dbPath   string
	logLevel string
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "clinicsync",
	Short: "Import, reconcile and roll back clinic CRM spreadsheets.",
	Long: `
**********************************************
*               CLINICSYNC                   *
**********************************************

This CLI bulk-imports patient, sales and executed-procedure spreadsheets into the
clinic CRM database. Columns are mapped automatically, patients are matched by
prontuario or CPF, sales are credited to sellers, and every import can be
backed up first and rolled back later.

Supported input formats:
- Excel: .xlsx, .xlsm, .xls
- CSV: .csv (UTF-8 or Windows-1252, separated by ";", "," or tab)
`,
	Example: `
  # Create configuration file
  clinicsync config create

  # Write teams, people and seller aliases from config into the database
  clinicsync directory sync

  # Inspect how the columns of a spreadsheet map to patient fields
  clinicsync columns -i pacientes.xlsx --kind persona

  # Dry-run validation with a report file
  clinicsync validate -i vendas.xlsx --kind vendas --report ./vendas-report.xlsx

  # Import sales, overriding one column
  clinicsync import -i vendas.xlsx --kind vendas --map seller="Consultora"

  # List backups and roll one back
  clinicsync backup list
  clinicsync rollback 3f0c...

  # Recalculate RFV scores
  clinicsync rfv
`,
	SilenceUsage: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	err := rootCmd.Execute()
	if err != nil {
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)

	config.SetDefaults()

	rootCmd.PersistentFlags().StringVar(&cfgFile, "configFile", "", "Config file override (default discovery: $HOME/.clinicsync.yaml, then ./.clinicsync.yaml)")
	rootCmd.PersistentFlags().StringVar(&dbPath, "db", "", "Path to the SQLite database (overrides database.path)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Log level override: trace|debug|info|warn|error")

	_ = viper.BindPFlag(config.KeyDatabasePath, rootCmd.PersistentFlags().Lookup("db"))
	_ = viper.BindPFlag(config.KeyLogLevel, rootCmd.PersistentFlags().Lookup("log-level"))
}

// initConfig reads in config file and ENV variables if set.
func initConfig() {
	if cfgFile != "" {
		// Use config file from the flag.
		viper.SetConfigFile(cfgFile)
	} else {
		// Find home directory.
		home, err := os.UserHomeDir()
		cobra.CheckErr(err)

		// Search config in home directory with name ".clinicsync" (without extension).
		viper.AddConfigPath(home)
		viper.AddConfigPath(".")
		viper.SetConfigType("yaml")
		viper.SetConfigName(".clinicsync")
	}

	// CLINICSYNC_IMPORT_UPDATE_WORKERS overrides import.update_workers.
	viper.SetEnvPrefix(config.EnvPrefix)
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	// If a config file is found, read it in.
	if err := viper.ReadInConfig(); err != nil {
		fmt.Fprintln(os.Stderr, "No config file found, using defaults. Create one with: clinicsync config create")
	}
}
