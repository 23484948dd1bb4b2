package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"strings"

	"clinicsync/batch"
	"clinicsync/crm"
	"clinicsync/internal/classify"

	_ "modernc.org/sqlite"
)

type SQLiteStore struct {
	db *sql.DB
}

var (
	ErrUnknownTable   = errors.New("unknown table")
	ErrUnknownColumn  = errors.New("unknown column")
	ErrRecordNotFound = errors.New("record not found")
)

func OpenSQLite(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}
	// One writer at a time; concurrent update batches queue on the pool.
	db.SetMaxOpenConns(1)

	store := &SQLiteStore{db: db}
	if err := store.ensureSchema(); err != nil {
		_ = db.Close()
		return nil, err
	}

	return store, nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) ensureSchema() error {
	const schema = `
CREATE TABLE IF NOT EXISTS personas (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	prontuario TEXT,
	cpf TEXT,
	name TEXT,
	email TEXT,
	phone TEXT,
	birth_date TEXT,
	gender TEXT,
	city TEXT,
	state TEXT,
	origin TEXT,
	notes TEXT,
	created_at TEXT NOT NULL DEFAULT CURRENT_TIMESTAMP,
	updated_at TEXT NOT NULL DEFAULT CURRENT_TIMESTAMP
);
CREATE INDEX IF NOT EXISTS idx_personas_prontuario ON personas(prontuario);
CREATE INDEX IF NOT EXISTS idx_personas_cpf ON personas(cpf);

CREATE TABLE IF NOT EXISTS vendas (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	sale_date TEXT NOT NULL,
	amount TEXT NOT NULL,
	amount_paid TEXT NOT NULL DEFAULT '0.00',
	department TEXT,
	procedure TEXT,
	quantity INTEGER,
	paid INTEGER,
	seller_name TEXT,
	patient_name TEXT,
	patient_cpf TEXT,
	prontuario TEXT,
	user_id INTEGER,
	team_id INTEGER NOT NULL CHECK(team_id > 0),
	registered_by_admin INTEGER NOT NULL DEFAULT 0,
	source_file TEXT NOT NULL DEFAULT '',
	source_row INTEGER NOT NULL DEFAULT 0,
	created_at TEXT NOT NULL DEFAULT CURRENT_TIMESTAMP,
	updated_at TEXT NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS executados (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	sale_date TEXT NOT NULL,
	amount TEXT NOT NULL,
	amount_paid TEXT NOT NULL DEFAULT '0.00',
	department TEXT,
	procedure TEXT,
	quantity INTEGER,
	paid INTEGER,
	seller_name TEXT,
	patient_name TEXT,
	patient_cpf TEXT,
	prontuario TEXT,
	user_id INTEGER,
	team_id INTEGER NOT NULL CHECK(team_id > 0),
	registered_by_admin INTEGER NOT NULL DEFAULT 0,
	source_file TEXT NOT NULL DEFAULT '',
	source_row INTEGER NOT NULL DEFAULT 0,
	created_at TEXT NOT NULL DEFAULT CURRENT_TIMESTAMP,
	updated_at TEXT NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS teams (
	id INTEGER PRIMARY KEY,
	name TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS users (
	id INTEGER PRIMARY KEY,
	full_name TEXT NOT NULL,
	team_id INTEGER NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS seller_aliases (
	external_name TEXT PRIMARY KEY COLLATE NOCASE,
	user_id INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS backups (
	id TEXT PRIMARY KEY,
	name TEXT NOT NULL,
	tables TEXT NOT NULL,
	row_counts TEXT NOT NULL DEFAULT '{}',
	status TEXT NOT NULL,
	error TEXT NOT NULL DEFAULT '',
	created_at TEXT NOT NULL,
	expires_at TEXT NOT NULL,
	completed_at TEXT,
	restored_at TEXT
);

CREATE TABLE IF NOT EXISTS import_logs (
	id TEXT PRIMARY KEY,
	action TEXT NOT NULL,
	kind TEXT NOT NULL DEFAULT '',
	file TEXT NOT NULL DEFAULT '',
	total INTEGER NOT NULL DEFAULT 0,
	imported INTEGER NOT NULL DEFAULT 0,
	updated INTEGER NOT NULL DEFAULT 0,
	duplicates INTEGER NOT NULL DEFAULT 0,
	skipped INTEGER NOT NULL DEFAULT 0,
	errors INTEGER NOT NULL DEFAULT 0,
	duration_ms INTEGER NOT NULL DEFAULT 0,
	recalculated INTEGER NOT NULL DEFAULT 0,
	recalc_error TEXT NOT NULL DEFAULT '',
	backup_id TEXT NOT NULL DEFAULT '',
	status TEXT NOT NULL,
	error TEXT NOT NULL DEFAULT '',
	created_at TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS rfv_scores (
	patient_key TEXT PRIMARY KEY,
	patient_name TEXT NOT NULL DEFAULT '',
	last_purchase TEXT NOT NULL,
	recency_days INTEGER NOT NULL,
	frequency INTEGER NOT NULL,
	monetary TEXT NOT NULL,
	r_score INTEGER NOT NULL,
	f_score INTEGER NOT NULL,
	v_score INTEGER NOT NULL,
	segment TEXT NOT NULL,
	calculated_at TEXT NOT NULL
);
`
	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	return nil
}

var personaColumns = []string{"prontuario", "cpf", "name", "email", "phone", "birth_date", "gender", "city", "state", "origin", "notes"}

var transactionColumns = []string{
	"sale_date", "amount", "amount_paid", "department", "procedure", "quantity", "paid",
	"seller_name", "patient_name", "patient_cpf", "prontuario", "user_id", "team_id",
	"registered_by_admin", "source_file", "source_row",
}

// writableColumns is the whitelist for dynamic inserts and updates. Table
// and column names are never taken from input without passing through it.
var writableColumns = map[string]map[string]bool{
	crm.KindPersona.Table():  columnSet(personaColumns),
	crm.KindSales.Table():    columnSet(transactionColumns),
	crm.KindExecuted.Table(): columnSet(transactionColumns),
}

func columnSet(columns []string) map[string]bool {
	set := make(map[string]bool, len(columns))
	for _, column := range columns {
		set[column] = true
	}
	return set
}

// RecordTables lists the tables holding imported records.
func RecordTables() []string {
	return []string{crm.KindPersona.Table(), crm.KindSales.Table(), crm.KindExecuted.Table()}
}

func checkedColumns(table string, fields crm.Columns) ([]string, error) {
	allowed, ok := writableColumns[table]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownTable, table)
	}
	columns := make([]string, 0, len(fields))
	for column := range fields {
		if !allowed[column] {
			return nil, fmt.Errorf("%w: %s.%s", ErrUnknownColumn, table, column)
		}
		columns = append(columns, column)
	}
	sort.Strings(columns)
	return columns, nil
}

// InsertBatch inserts rows in one transaction; either all rows land or none.
func (s *SQLiteStore) InsertBatch(ctx context.Context, table string, rows []crm.Columns) error {
	if len(rows) == 0 {
		return nil
	}
	// Rows of one batch come from the same record type and share their keys.
	columns, err := checkedColumns(table, rows[0])
	if err != nil {
		return err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}

	placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(columns)), ", ")
	insertStmt := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s);", table, strings.Join(columns, ", "), placeholders)
	stmt, err := tx.PrepareContext(ctx, insertStmt)
	if err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("prepare insert statement: %w", err)
	}
	defer stmt.Close()

	for i, row := range rows {
		if len(row) != len(columns) {
			_ = tx.Rollback()
			return fmt.Errorf("insert %s row %d: expected %d columns, got %d", table, i, len(columns), len(row))
		}
		args := make([]any, len(columns))
		for j, column := range columns {
			args[j] = row[column]
		}
		if _, err := stmt.ExecContext(ctx, args...); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("insert %s row %d: %w", table, i, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func updateRecord(ctx context.Context, db execer, table string, id int64, fields crm.Columns) error {
	if id <= 0 {
		return fmt.Errorf("record id must be > 0")
	}
	columns, err := checkedColumns(table, fields)
	if err != nil {
		return err
	}
	if len(columns) == 0 {
		return nil
	}

	assignments := make([]string, len(columns))
	args := make([]any, 0, len(columns)+1)
	for i, column := range columns {
		assignments[i] = column + " = ?"
		args = append(args, fields[column])
	}
	args = append(args, id)

	updateStmt := fmt.Sprintf("UPDATE %s SET %s, updated_at = CURRENT_TIMESTAMP WHERE id = ?;", table, strings.Join(assignments, ", "))
	res, err := db.ExecContext(ctx, updateStmt, args...)
	if err != nil {
		return fmt.Errorf("update %s %d: %w", table, id, err)
	}
	rowsAffected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("read updated row count: %w", err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("%w: %s %d", ErrRecordNotFound, table, id)
	}
	return nil
}

// UpdateOne writes only the given columns of one record.
func (s *SQLiteStore) UpdateOne(ctx context.Context, table string, id int64, fields crm.Columns) error {
	return updateRecord(ctx, s.db, table, id, fields)
}

// UpdateBatch applies every update in one transaction.
func (s *SQLiteStore) UpdateBatch(ctx context.Context, table string, updates []batch.Update) error {
	if len(updates) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	for _, update := range updates {
		if err := updateRecord(ctx, tx, table, update.ID, update.Fields); err != nil {
			_ = tx.Rollback()
			return err
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit update transaction: %w", err)
	}
	return nil
}

// FetchExistingIdentities returns one page of patient identities ordered by id.
func (s *SQLiteStore) FetchExistingIdentities(ctx context.Context, pageSize, offset int) ([]classify.Existing, error) {
	const query = `
SELECT id, COALESCE(prontuario, ''), COALESCE(cpf, '')
FROM personas
ORDER BY id
LIMIT ? OFFSET ?;`

	rows, err := s.db.QueryContext(ctx, query, pageSize, offset)
	if err != nil {
		return nil, fmt.Errorf("query identities: %w", err)
	}
	defer rows.Close()

	page := make([]classify.Existing, 0, pageSize)
	for rows.Next() {
		var record classify.Existing
		if err := rows.Scan(&record.ID, &record.Prontuario, &record.TaxID); err != nil {
			return nil, fmt.Errorf("scan identity: %w", err)
		}
		page = append(page, record)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate identities: %w", err)
	}
	return page, nil
}

// CountRecords returns the number of rows in a record table.
func (s *SQLiteStore) CountRecords(ctx context.Context, table string) (int64, error) {
	if _, ok := writableColumns[table]; !ok {
		return 0, fmt.Errorf("%w: %s", ErrUnknownTable, table)
	}
	var count int64
	if err := s.db.QueryRowContext(ctx, fmt.Sprintf("SELECT COUNT(*) FROM %s;", table)).Scan(&count); err != nil {
		return 0, fmt.Errorf("count %s: %w", table, err)
	}
	return count, nil
}

// ExportTable returns every row of a record table rendered as text, with
// the column names as header.
func (s *SQLiteStore) ExportTable(ctx context.Context, table string) ([]string, [][]string, error) {
	if _, ok := writableColumns[table]; !ok {
		return nil, nil, fmt.Errorf("%w: %s", ErrUnknownTable, table)
	}
	return s.queryText(ctx, fmt.Sprintf("SELECT * FROM %s ORDER BY id;", table))
}

func (s *SQLiteStore) queryText(ctx context.Context, query string, args ...any) ([]string, [][]string, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, nil, fmt.Errorf("query rows: %w", err)
	}
	defer rows.Close()

	columns, err := rows.Columns()
	if err != nil {
		return nil, nil, fmt.Errorf("read columns: %w", err)
	}

	var out [][]string
	for rows.Next() {
		values := make([]sql.NullString, len(columns))
		targets := make([]any, len(columns))
		for i := range values {
			targets[i] = &values[i]
		}
		if err := rows.Scan(targets...); err != nil {
			return nil, nil, fmt.Errorf("scan row: %w", err)
		}
		record := make([]string, len(columns))
		for i, value := range values {
			record[i] = value.String
		}
		out = append(out, record)
	}
	if err := rows.Err(); err != nil {
		return nil, nil, fmt.Errorf("iterate rows: %w", err)
	}
	return columns, out, nil
}
