package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"clinicsync/backup"
)

var ErrBackupNotFound = errors.New("backup not found")

// snapshotTable names the table holding a backup's copy of table.
func snapshotTable(backupID, table string) (string, error) {
	if _, ok := writableColumns[table]; !ok {
		return "", fmt.Errorf("%w: %s", ErrUnknownTable, table)
	}
	var b strings.Builder
	for _, r := range backupID {
		if (r >= 'a' && r <= 'f') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
		}
	}
	if b.Len() == 0 {
		return "", fmt.Errorf("invalid backup id %q", backupID)
	}
	return "backup_" + b.String() + "_" + table, nil
}

func (s *SQLiteStore) CreateBackup(ctx context.Context, artifact backup.Artifact) error {
	tables, err := json.Marshal(artifact.Tables)
	if err != nil {
		return fmt.Errorf("encode backup tables: %w", err)
	}
	const insertStmt = `
INSERT INTO backups (id, name, tables, status, created_at, expires_at)
VALUES (?, ?, ?, ?, ?, ?);`
	if _, err := s.db.ExecContext(ctx, insertStmt,
		artifact.ID,
		artifact.Name,
		string(tables),
		string(artifact.Status),
		artifact.CreatedAt.UTC().Format(time.RFC3339Nano),
		artifact.ExpiresAt.UTC().Format(time.RFC3339Nano),
	); err != nil {
		return fmt.Errorf("insert backup %s: %w", artifact.ID, err)
	}
	return nil
}

func (s *SQLiteStore) SaveBackup(ctx context.Context, artifact backup.Artifact) error {
	counts, err := json.Marshal(artifact.RowCounts)
	if err != nil {
		return fmt.Errorf("encode backup row counts: %w", err)
	}
	const updateStmt = `
UPDATE backups
SET status = ?, row_counts = ?, error = ?, completed_at = ?, restored_at = ?
WHERE id = ?;`
	res, err := s.db.ExecContext(ctx, updateStmt,
		string(artifact.Status),
		string(counts),
		artifact.Error,
		formatOptionalTime(artifact.CompletedAt),
		formatOptionalTime(artifact.RestoredAt),
		artifact.ID,
	)
	if err != nil {
		return fmt.Errorf("update backup %s: %w", artifact.ID, err)
	}
	rowsAffected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("read updated row count: %w", err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("%w: %s", ErrBackupNotFound, artifact.ID)
	}
	return nil
}

const backupColumns = `id, name, tables, row_counts, status, error, created_at, expires_at, completed_at, restored_at`

func (s *SQLiteStore) GetBackup(ctx context.Context, id string) (backup.Artifact, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+backupColumns+` FROM backups WHERE id = ?;`, id)
	artifact, err := scanBackup(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return backup.Artifact{}, fmt.Errorf("%w: %s", ErrBackupNotFound, id)
		}
		return backup.Artifact{}, err
	}
	return artifact, nil
}

func (s *SQLiteStore) ListBackups(ctx context.Context) ([]backup.Artifact, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+backupColumns+` FROM backups ORDER BY created_at DESC, id;`)
	if err != nil {
		return nil, fmt.Errorf("query backups: %w", err)
	}
	defer rows.Close()

	var artifacts []backup.Artifact
	for rows.Next() {
		artifact, err := scanBackup(rows)
		if err != nil {
			return nil, err
		}
		artifacts = append(artifacts, artifact)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate backups: %w", err)
	}
	return artifacts, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanBackup(row rowScanner) (backup.Artifact, error) {
	var (
		artifact    backup.Artifact
		tablesRaw   string
		countsRaw   string
		status      string
		createdRaw  string
		expiresRaw  string
		completedAt sql.NullString
		restoredAt  sql.NullString
	)
	if err := row.Scan(&artifact.ID, &artifact.Name, &tablesRaw, &countsRaw, &status, &artifact.Error, &createdRaw, &expiresRaw, &completedAt, &restoredAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return backup.Artifact{}, err
		}
		return backup.Artifact{}, fmt.Errorf("scan backup: %w", err)
	}
	artifact.Status = backup.Status(status)

	if err := json.Unmarshal([]byte(tablesRaw), &artifact.Tables); err != nil {
		return backup.Artifact{}, fmt.Errorf("decode backup tables: %w", err)
	}
	if err := json.Unmarshal([]byte(countsRaw), &artifact.RowCounts); err != nil {
		return backup.Artifact{}, fmt.Errorf("decode backup row counts: %w", err)
	}

	var err error
	if artifact.CreatedAt, err = time.Parse(time.RFC3339Nano, createdRaw); err != nil {
		return backup.Artifact{}, fmt.Errorf("parse backup created_at %q: %w", createdRaw, err)
	}
	if artifact.ExpiresAt, err = time.Parse(time.RFC3339Nano, expiresRaw); err != nil {
		return backup.Artifact{}, fmt.Errorf("parse backup expires_at %q: %w", expiresRaw, err)
	}
	if artifact.CompletedAt, err = parseOptionalTime(completedAt); err != nil {
		return backup.Artifact{}, err
	}
	if artifact.RestoredAt, err = parseOptionalTime(restoredAt); err != nil {
		return backup.Artifact{}, err
	}
	return artifact, nil
}

// SnapshotTable copies every row of table into a snapshot table owned by the
// backup and returns the number of rows copied.
func (s *SQLiteStore) SnapshotTable(ctx context.Context, backupID, table string) (int64, error) {
	snapshot, err := snapshotTable(backupID, table)
	if err != nil {
		return 0, err
	}

	if _, err := s.db.ExecContext(ctx, fmt.Sprintf("CREATE TABLE %s AS SELECT * FROM %s;", snapshot, table)); err != nil {
		return 0, fmt.Errorf("snapshot %s: %w", table, err)
	}
	var count int64
	if err := s.db.QueryRowContext(ctx, fmt.Sprintf("SELECT COUNT(*) FROM %s;", snapshot)).Scan(&count); err != nil {
		return 0, fmt.Errorf("count snapshot %s: %w", snapshot, err)
	}
	return count, nil
}

// RestoreTables replaces the current rows of each table with the backup's
// snapshot. All tables are restored in one transaction.
func (s *SQLiteStore) RestoreTables(ctx context.Context, backupID string, tables []string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	for _, table := range tables {
		snapshot, err := snapshotTable(backupID, table)
		if err != nil {
			_ = tx.Rollback()
			return err
		}
		if _, err := tx.ExecContext(ctx, fmt.Sprintf("DELETE FROM %s;", table)); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("clear %s: %w", table, err)
		}
		if _, err := tx.ExecContext(ctx, fmt.Sprintf("INSERT INTO %s SELECT * FROM %s;", table, snapshot)); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("restore %s from %s: %w", table, snapshot, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit restore: %w", err)
	}
	return nil
}

func formatOptionalTime(value *time.Time) any {
	if value == nil {
		return nil
	}
	return value.UTC().Format(time.RFC3339Nano)
}

func parseOptionalTime(value sql.NullString) (*time.Time, error) {
	if !value.Valid || value.String == "" {
		return nil, nil
	}
	parsed, err := time.Parse(time.RFC3339Nano, value.String)
	if err != nil {
		return nil, fmt.Errorf("parse timestamp %q: %w", value.String, err)
	}
	return &parsed, nil
}
