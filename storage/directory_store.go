package storage

import (
	"context"
	"fmt"

	"clinicsync/attribution"
)

type Team struct {
	ID   int64
	Name string
}

// FetchAliasTable returns every seller alias.
func (s *SQLiteStore) FetchAliasTable(ctx context.Context) ([]attribution.Alias, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT external_name, user_id FROM seller_aliases ORDER BY external_name;`)
	if err != nil {
		return nil, fmt.Errorf("query seller aliases: %w", err)
	}
	defer rows.Close()

	var aliases []attribution.Alias
	for rows.Next() {
		var alias attribution.Alias
		if err := rows.Scan(&alias.ExternalName, &alias.UserID); err != nil {
			return nil, fmt.Errorf("scan seller alias: %w", err)
		}
		aliases = append(aliases, alias)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate seller aliases: %w", err)
	}
	return aliases, nil
}

// FetchPeopleDirectory returns every user in id order.
func (s *SQLiteStore) FetchPeopleDirectory(ctx context.Context) ([]attribution.Person, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, full_name, team_id FROM users ORDER BY id;`)
	if err != nil {
		return nil, fmt.Errorf("query users: %w", err)
	}
	defer rows.Close()

	var people []attribution.Person
	for rows.Next() {
		var person attribution.Person
		if err := rows.Scan(&person.UserID, &person.FullName, &person.TeamID); err != nil {
			return nil, fmt.Errorf("scan user: %w", err)
		}
		people = append(people, person)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate users: %w", err)
	}
	return people, nil
}

func (s *SQLiteStore) ListTeams(ctx context.Context) ([]Team, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, name FROM teams ORDER BY id;`)
	if err != nil {
		return nil, fmt.Errorf("query teams: %w", err)
	}
	defer rows.Close()

	var teams []Team
	for rows.Next() {
		var team Team
		if err := rows.Scan(&team.ID, &team.Name); err != nil {
			return nil, fmt.Errorf("scan team: %w", err)
		}
		teams = append(teams, team)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate teams: %w", err)
	}
	return teams, nil
}

// DirectoryCounts reports how many rows a directory sync wrote.
type DirectoryCounts struct {
	Teams   int
	People  int
	Aliases int
}

// ReplaceDirectory swaps teams, users and seller aliases for the given sets
// in one transaction.
func (s *SQLiteStore) ReplaceDirectory(ctx context.Context, teams []Team, people []attribution.Person, aliases []attribution.Alias) (DirectoryCounts, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return DirectoryCounts{}, fmt.Errorf("begin transaction: %w", err)
	}

	for _, table := range []string{"seller_aliases", "users", "teams"} {
		if _, err := tx.ExecContext(ctx, fmt.Sprintf("DELETE FROM %s;", table)); err != nil {
			_ = tx.Rollback()
			return DirectoryCounts{}, fmt.Errorf("clear %s: %w", table, err)
		}
	}

	for _, team := range teams {
		if _, err := tx.ExecContext(ctx, `INSERT INTO teams (id, name) VALUES (?, ?);`, team.ID, team.Name); err != nil {
			_ = tx.Rollback()
			return DirectoryCounts{}, fmt.Errorf("insert team %d: %w", team.ID, err)
		}
	}
	for _, person := range people {
		if _, err := tx.ExecContext(ctx, `INSERT INTO users (id, full_name, team_id) VALUES (?, ?, ?);`, person.UserID, person.FullName, person.TeamID); err != nil {
			_ = tx.Rollback()
			return DirectoryCounts{}, fmt.Errorf("insert user %d: %w", person.UserID, err)
		}
	}
	for _, alias := range aliases {
		if _, err := tx.ExecContext(ctx, `INSERT OR REPLACE INTO seller_aliases (external_name, user_id) VALUES (?, ?);`, alias.ExternalName, alias.UserID); err != nil {
			_ = tx.Rollback()
			return DirectoryCounts{}, fmt.Errorf("insert seller alias %q: %w", alias.ExternalName, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return DirectoryCounts{}, fmt.Errorf("commit directory: %w", err)
	}
	return DirectoryCounts{Teams: len(teams), People: len(people), Aliases: len(aliases)}, nil
}
