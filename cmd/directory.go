package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"clinicsync/attribution"
	"clinicsync/config"
	"clinicsync/storage"

	"github.com/spf13/cobra"
)

var directoryCmd = &cobra.Command{
	Use:   "directory",
	Short: "Manage the teams, people and seller aliases used for attribution",
	Long: `Sales and executed procedures are credited to the person named in their
seller column. Names are matched against seller aliases first, then against
the full and first names of the people directory.

The directory is maintained in the config file (directory.teams, directory.people,
directory.aliases) and written to the database with "directory sync".`,
	Example: `
  # Replace the stored directory with the one from config
  clinicsync directory sync

  # Show the stored directory
  clinicsync directory show
`,
}

var directorySyncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Replace the stored directory with the configured one",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp()
		if err != nil {
			return err
		}
		defer a.Close()

		teams, people, aliases := directoryFromConfig(a.cfg.Directory)
		counts, err := a.store.ReplaceDirectory(context.Background(), teams, people, aliases)
		if err != nil {
			return err
		}
		fmt.Printf("Directory synced. Teams: %d, People: %d, Aliases: %d\n", counts.Teams, counts.People, counts.Aliases)
		return nil
	},
}

var directoryShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show the stored directory",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp()
		if err != nil {
			return err
		}
		defer a.Close()

		return printDirectory(context.Background(), os.Stdout, a.store)
	},
}

func directoryFromConfig(cfg config.DirectoryConfig) ([]storage.Team, []attribution.Person, []attribution.Alias) {
	teams := make([]storage.Team, 0, len(cfg.Teams))
	for _, team := range cfg.Teams {
		teams = append(teams, storage.Team{ID: team.ID, Name: strings.TrimSpace(team.Name)})
	}
	people := make([]attribution.Person, 0, len(cfg.People))
	for _, person := range cfg.People {
		people = append(people, attribution.Person{
			UserID:   person.UserID,
			FullName: strings.TrimSpace(person.FullName),
			TeamID:   person.TeamID,
		})
	}
	aliases := make([]attribution.Alias, 0, len(cfg.Aliases))
	for _, alias := range cfg.Aliases {
		aliases = append(aliases, attribution.Alias{
			ExternalName: strings.TrimSpace(alias.Name),
			UserID:       alias.UserID,
		})
	}
	return teams, people, aliases
}

func printDirectory(ctx context.Context, out io.Writer, store *storage.SQLiteStore) error {
	teams, err := store.ListTeams(ctx)
	if err != nil {
		return err
	}
	people, err := store.FetchPeopleDirectory(ctx)
	if err != nil {
		return err
	}
	aliases, err := store.FetchAliasTable(ctx)
	if err != nil {
		return err
	}

	fmt.Fprintf(out, "Teams (%d):\n", len(teams))
	for _, team := range teams {
		fmt.Fprintf(out, "  %d %s\n", team.ID, team.Name)
	}
	fmt.Fprintf(out, "People (%d):\n", len(people))
	for _, person := range people {
		fmt.Fprintf(out, "  %d %s (team %d)\n", person.UserID, person.FullName, person.TeamID)
	}
	fmt.Fprintf(out, "Aliases (%d):\n", len(aliases))
	for _, alias := range aliases {
		fmt.Fprintf(out, "  %s -> %d\n", alias.ExternalName, alias.UserID)
	}
	return nil
}

func init() {
	rootCmd.AddCommand(directoryCmd)
	directoryCmd.AddCommand(directorySyncCmd)
	directoryCmd.AddCommand(directoryShowCmd)
}
