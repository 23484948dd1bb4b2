package cmd

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"clinicsync/config"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	promptInput  io.Reader = os.Stdin
	promptOutput io.Writer = os.Stdout
)

var deleteCmd = &cobra.Command{
	Use:   "delete",
	Short: "Delete the complete SQLite database file",
	Long: `Destructive database cleanup command.

This command always deletes the complete SQLite database file, including every
backup it holds. Before deletion, an interactive security prompt requires
typing exactly "Y".`,
	Example: `
  # Delete the configured database (requires interactive confirmation)
  clinicsync delete

  # Delete a specific database file
  clinicsync delete --db ./clinicsync.db
`,
	RunE: func(cmd *cobra.Command, args []string) error {
		path := viper.GetString(config.KeyDatabasePath)
		confirmed, err := confirmPrompt(promptInput, promptOutput, fmt.Sprintf("Delete database file %q?", path))
		if err != nil {
			return err
		}
		if !confirmed {
			return fmt.Errorf("delete aborted: confirmation was not 'Y'")
		}

		if err := removeDatabaseFile(path); err != nil {
			return err
		}
		fmt.Printf("Deleted database file: %s\n", path)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(deleteCmd)
}

// confirmPrompt asks question and reports whether the answer was exactly "Y".
func confirmPrompt(input io.Reader, output io.Writer, question string) (bool, error) {
	if input == nil {
		return false, fmt.Errorf("confirmation input is not available")
	}

	if output == nil {
		output = io.Discard
	}

	if _, err := fmt.Fprintf(output, "%s Type Y to confirm: ", question); err != nil {
		return false, fmt.Errorf("write confirmation prompt: %w", err)
	}

	line, err := bufio.NewReader(input).ReadString('\n')
	if err != nil {
		if errors.Is(err, io.EOF) {
			line = strings.TrimSpace(line)
			return line == "Y", nil
		}
		return false, fmt.Errorf("read confirmation: %w", err)
	}
	return strings.TrimSpace(line) == "Y", nil
}

func removeDatabaseFile(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("database file not found: %s", path)
		}
		return fmt.Errorf("stat database file: %w", err)
	}
	if info.IsDir() {
		return fmt.Errorf("database path is a directory: %s", path)
	}
	if err := os.Remove(path); err != nil {
		return fmt.Errorf("delete database file: %w", err)
	}
	return nil
}
