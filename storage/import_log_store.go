package storage

import (
	"context"
	"fmt"
	"time"

	"clinicsync/crm"
	"clinicsync/importer"
)

// AppendImportLog stores one audit entry. Entries are never updated.
func (s *SQLiteStore) AppendImportLog(ctx context.Context, entry importer.LogEntry) error {
	const insertStmt = `
INSERT INTO import_logs (
	id, action, kind, file, total, imported, updated, duplicates, skipped, errors,
	duration_ms, recalculated, recalc_error, backup_id, status, error, created_at
) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?);`

	createdAt := entry.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}
	if _, err := s.db.ExecContext(ctx, insertStmt,
		entry.ID,
		entry.Action,
		string(entry.Kind),
		entry.File,
		entry.Total,
		entry.Imported,
		entry.Updated,
		entry.Duplicates,
		entry.Skipped,
		entry.Errors,
		entry.Duration.Milliseconds(),
		entry.Recalculated,
		entry.RecalcError,
		entry.BackupID,
		entry.Status,
		entry.Error,
		createdAt.UTC().Format(time.RFC3339Nano),
	); err != nil {
		return fmt.Errorf("insert import log %s: %w", entry.ID, err)
	}
	return nil
}

// ListImportLogs returns the newest entries first; limit <= 0 returns all.
func (s *SQLiteStore) ListImportLogs(ctx context.Context, limit int) ([]importer.LogEntry, error) {
	if limit <= 0 {
		limit = -1
	}
	const query = `
SELECT id, action, kind, file, total, imported, updated, duplicates, skipped, errors,
	duration_ms, recalculated, recalc_error, backup_id, status, error, created_at
FROM import_logs
ORDER BY created_at DESC, rowid DESC
LIMIT ?;`

	rows, err := s.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("query import logs: %w", err)
	}
	defer rows.Close()

	var entries []importer.LogEntry
	for rows.Next() {
		var (
			entry      importer.LogEntry
			kind       string
			durationMS int64
			createdRaw string
		)
		if err := rows.Scan(
			&entry.ID,
			&entry.Action,
			&kind,
			&entry.File,
			&entry.Total,
			&entry.Imported,
			&entry.Updated,
			&entry.Duplicates,
			&entry.Skipped,
			&entry.Errors,
			&durationMS,
			&entry.Recalculated,
			&entry.RecalcError,
			&entry.BackupID,
			&entry.Status,
			&entry.Error,
			&createdRaw,
		); err != nil {
			return nil, fmt.Errorf("scan import log: %w", err)
		}
		entry.Kind = crm.Kind(kind)
		entry.Duration = time.Duration(durationMS) * time.Millisecond
		entry.CreatedAt, err = time.Parse(time.RFC3339Nano, createdRaw)
		if err != nil {
			return nil, fmt.Errorf("parse import log created_at %q: %w", createdRaw, err)
		}
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate import logs: %w", err)
	}
	return entries, nil
}
