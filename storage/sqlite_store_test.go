package storage

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"clinicsync/attribution"
	"clinicsync/backup"
	"clinicsync/batch"
	"clinicsync/crm"
	"clinicsync/importer"
	"clinicsync/rfv"

	"github.com/shopspring/decimal"
)

func openTestStore(t *testing.T) *SQLiteStore {
	t.Helper()

	dbPath := filepath.Join(t.TempDir(), "clinicsync_test.db")
	store, err := OpenSQLite(dbPath)
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func persona(prontuario, cpf, name string) crm.Columns {
	p := crm.Persona{Name: crm.StringPtr(name)}
	if prontuario != "" {
		p.Prontuario = crm.StringPtr(prontuario)
	}
	if cpf != "" {
		p.TaxID = crm.StringPtr(cpf)
	}
	return p.Columns()
}

func sale(t *testing.T, prontuario, date, amount string) crm.Columns {
	t.Helper()
	parsed, err := time.Parse(crm.DateLayout, date)
	if err != nil {
		t.Fatalf("parse date: %v", err)
	}
	return crm.Sale{
		Date:       &parsed,
		Amount:     decimal.RequireFromString(amount),
		Prontuario: crm.StringPtr(prontuario),
		TeamID:     1,
		SourceFile: "vendas.xlsx",
		SourceRow:  2,
	}.Columns()
}

func TestSQLiteStore_InsertBatchAndFetchIdentities(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	store := openTestStore(t)

	rows := []crm.Columns{
		persona("P1", "12345678901", "Ana"),
		persona("", "98765432100", "Bruno"),
		persona("P3", "", "Carla"),
	}
	if err := store.InsertBatch(ctx, "personas", rows); err != nil {
		t.Fatalf("insert batch: %v", err)
	}

	first, err := store.FetchExistingIdentities(ctx, 2, 0)
	if err != nil {
		t.Fatalf("fetch first page: %v", err)
	}
	if len(first) != 2 {
		t.Fatalf("expected 2 identities in first page, got %d", len(first))
	}
	if first[0].Prontuario != "P1" || first[0].TaxID != "12345678901" {
		t.Fatalf("unexpected first identity: %+v", first[0])
	}
	if first[1].Prontuario != "" {
		t.Fatalf("expected empty prontuario for NULL column, got %q", first[1].Prontuario)
	}

	second, err := store.FetchExistingIdentities(ctx, 2, 2)
	if err != nil {
		t.Fatalf("fetch second page: %v", err)
	}
	if len(second) != 1 || second[0].Prontuario != "P3" {
		t.Fatalf("unexpected second page: %+v", second)
	}

	count, err := store.CountRecords(ctx, "personas")
	if err != nil {
		t.Fatalf("count records: %v", err)
	}
	if count != 3 {
		t.Fatalf("expected 3 personas, got %d", count)
	}
}

func TestSQLiteStore_InsertBatchIsAtomic(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	store := openTestStore(t)

	// The second row misses a NOT NULL column, which fails the whole batch.
	good := sale(t, "P1", "2024-01-15", "100.00")
	bad := sale(t, "P2", "2024-01-16", "50.00")
	bad["sale_date"] = nil

	err := store.InsertBatch(ctx, "vendas", []crm.Columns{good, bad})
	if err == nil {
		t.Fatalf("expected insert error")
	}

	count, err := store.CountRecords(ctx, "vendas")
	if err != nil {
		t.Fatalf("count records: %v", err)
	}
	if count != 0 {
		t.Fatalf("expected rolled back batch, got %d rows", count)
	}
}

func TestSQLiteStore_RejectsUnknownTablesAndColumns(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	store := openTestStore(t)

	err := store.InsertBatch(ctx, "users; DROP TABLE personas", []crm.Columns{{"name": "x"}})
	if !errors.Is(err, ErrUnknownTable) {
		t.Fatalf("expected ErrUnknownTable, got %v", err)
	}

	err = store.InsertBatch(ctx, "personas", []crm.Columns{{"password": "x"}})
	if !errors.Is(err, ErrUnknownColumn) {
		t.Fatalf("expected ErrUnknownColumn, got %v", err)
	}
}

func TestSQLiteStore_UpdateWritesOnlyGivenColumns(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	store := openTestStore(t)

	row := persona("P1", "12345678901", "Ana")
	row["email"] = "ana@old.example"
	if err := store.InsertBatch(ctx, "personas", []crm.Columns{row}); err != nil {
		t.Fatalf("insert: %v", err)
	}

	if err := store.UpdateOne(ctx, "personas", 1, crm.Columns{"phone": "11987654321"}); err != nil {
		t.Fatalf("update one: %v", err)
	}

	_, rows, err := store.queryText(ctx, `SELECT email, phone, name FROM personas WHERE id = 1;`)
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if rows[0][0] != "ana@old.example" || rows[0][1] != "11987654321" || rows[0][2] != "Ana" {
		t.Fatalf("unexpected row after update: %v", rows[0])
	}

	err = store.UpdateOne(ctx, "personas", 99, crm.Columns{"phone": "1"})
	if !errors.Is(err, ErrRecordNotFound) {
		t.Fatalf("expected ErrRecordNotFound, got %v", err)
	}
}

func TestSQLiteStore_UpdateBatchRollsBackOnMissingRecord(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	store := openTestStore(t)

	if err := store.InsertBatch(ctx, "personas", []crm.Columns{persona("P1", "", "Ana")}); err != nil {
		t.Fatalf("insert: %v", err)
	}

	err := store.UpdateBatch(ctx, "personas", []batch.Update{
		{ID: 1, Fields: crm.Columns{"city": "Recife"}},
		{ID: 42, Fields: crm.Columns{"city": "Natal"}},
	})
	if !errors.Is(err, ErrRecordNotFound) {
		t.Fatalf("expected ErrRecordNotFound, got %v", err)
	}

	_, rows, err := store.queryText(ctx, `SELECT city FROM personas WHERE id = 1;`)
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if rows[0][0] != "" {
		t.Fatalf("expected update batch to roll back, city is %q", rows[0][0])
	}
}

func TestSQLiteStore_ExportFormatsDecimals(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	store := openTestStore(t)

	rows := []crm.Columns{sale(t, "P1", "2024-01-15", "100"), sale(t, "P2", "2024-02-01", "20.5")}
	if err := store.InsertBatch(ctx, "vendas", rows); err != nil {
		t.Fatalf("insert: %v", err)
	}

	header, exported, err := store.ExportTable(ctx, "vendas")
	if err != nil {
		t.Fatalf("export: %v", err)
	}
	if len(exported) != 2 {
		t.Fatalf("expected 2 exported rows, got %d", len(exported))
	}
	amountCol := -1
	for i, column := range header {
		if column == "amount" {
			amountCol = i
		}
	}
	if amountCol < 0 || exported[1][amountCol] != "20.50" {
		t.Fatalf("expected amount column with 20.50, header=%v row=%v", header, exported[1])
	}

	count, err := store.CountRecords(ctx, "vendas")
	if err != nil {
		t.Fatalf("count: %v", err)
	}
	if count != 2 {
		t.Fatalf("expected export to leave 2 rows, got %d", count)
	}
}

func TestSQLiteStore_BackupRestoreRoundTrip(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	store := openTestStore(t)

	if err := store.InsertBatch(ctx, "personas", []crm.Columns{persona("P1", "", "Ana"), persona("P2", "", "Bia")}); err != nil {
		t.Fatalf("insert: %v", err)
	}

	manager := backup.NewManager(store, time.Hour, nil)
	artifact, err := manager.Create(ctx, "before import", []string{"personas"})
	if err != nil {
		t.Fatalf("create backup: %v", err)
	}
	if artifact.Status != backup.StatusCompleted || artifact.RowCounts["personas"] != 2 {
		t.Fatalf("unexpected artifact: %+v", artifact)
	}

	if err := store.InsertBatch(ctx, "personas", []crm.Columns{persona("P3", "", "Caio")}); err != nil {
		t.Fatalf("insert after backup: %v", err)
	}
	if err := store.UpdateOne(ctx, "personas", 1, crm.Columns{"name": "Ana Maria"}); err != nil {
		t.Fatalf("update after backup: %v", err)
	}

	restored, err := manager.Restore(ctx, artifact.ID)
	if err != nil {
		t.Fatalf("restore: %v", err)
	}
	if restored.Status != backup.StatusRestored || restored.RestoredAt == nil {
		t.Fatalf("expected restored artifact, got %+v", restored)
	}

	_, rows, err := store.queryText(ctx, `SELECT name FROM personas ORDER BY id;`)
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if len(rows) != 2 || rows[0][0] != "Ana" || rows[1][0] != "Bia" {
		t.Fatalf("expected pre-import rows, got %v", rows)
	}

	if _, err := manager.Restore(ctx, artifact.ID); !errors.Is(err, backup.ErrRollbackConflict) {
		t.Fatalf("expected ErrRollbackConflict on second restore, got %v", err)
	}

	stored, err := store.GetBackup(ctx, artifact.ID)
	if err != nil {
		t.Fatalf("get backup: %v", err)
	}
	if stored.Status != backup.StatusRestored || stored.Tables[0] != "personas" || stored.CompletedAt == nil {
		t.Fatalf("unexpected stored backup: %+v", stored)
	}
}

func TestSQLiteStore_GetBackupNotFound(t *testing.T) {
	t.Parallel()
	store := openTestStore(t)

	_, err := store.GetBackup(context.Background(), "missing")
	if !errors.Is(err, ErrBackupNotFound) {
		t.Fatalf("expected ErrBackupNotFound, got %v", err)
	}
}

func TestSQLiteStore_ImportLogsNewestFirst(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	store := openTestStore(t)

	base := time.Date(2026, 1, 10, 12, 0, 0, 0, time.UTC)
	entries := []importer.LogEntry{
		{ID: "a", Action: importer.ActionImport, Kind: crm.KindPersona, File: "p.xlsx", Total: 10, Imported: 8, Updated: 2, Status: importer.StatusSucceeded, Duration: 1500 * time.Millisecond, CreatedAt: base},
		{ID: "b", Action: importer.ActionRollback, BackupID: "bk", Status: importer.StatusSucceeded, CreatedAt: base.Add(time.Minute)},
		{ID: "c", Action: importer.ActionImport, Kind: crm.KindSales, Errors: 3, Recalculated: true, Status: importer.StatusPartial, CreatedAt: base.Add(2 * time.Minute)},
	}
	for _, entry := range entries {
		if err := store.AppendImportLog(ctx, entry); err != nil {
			t.Fatalf("append log %s: %v", entry.ID, err)
		}
	}

	listed, err := store.ListImportLogs(ctx, 2)
	if err != nil {
		t.Fatalf("list logs: %v", err)
	}
	if len(listed) != 2 || listed[0].ID != "c" || listed[1].ID != "b" {
		t.Fatalf("unexpected logs: %+v", listed)
	}
	if !listed[0].Recalculated || listed[0].Kind != crm.KindSales || listed[0].Errors != 3 {
		t.Fatalf("unexpected newest log: %+v", listed[0])
	}

	all, err := store.ListImportLogs(ctx, 0)
	if err != nil {
		t.Fatalf("list all logs: %v", err)
	}
	if len(all) != 3 || all[2].Duration != 1500*time.Millisecond {
		t.Fatalf("unexpected full log list: %+v", all)
	}
}

func TestSQLiteStore_ReplaceDirectory(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	store := openTestStore(t)

	counts, err := store.ReplaceDirectory(ctx,
		[]Team{{ID: 1, Name: "Comercial"}},
		[]attribution.Person{{UserID: 7, FullName: "Maria Souza", TeamID: 1}},
		[]attribution.Alias{{ExternalName: "Mari", UserID: 7}},
	)
	if err != nil {
		t.Fatalf("replace directory: %v", err)
	}
	if counts.Teams != 1 || counts.People != 1 || counts.Aliases != 1 {
		t.Fatalf("unexpected counts: %+v", counts)
	}

	resolver, err := attribution.Load(ctx, store, 99)
	if err != nil {
		t.Fatalf("load resolver: %v", err)
	}
	got, err := resolver.Resolve("MARI")
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if got.UserID != 7 || got.TeamID != 1 {
		t.Fatalf("expected alias match for user 7 team 1, got %+v", got)
	}

	// A second sync replaces the previous directory.
	if _, err := store.ReplaceDirectory(ctx, []Team{{ID: 2, Name: "Estetica"}}, nil, nil); err != nil {
		t.Fatalf("second replace: %v", err)
	}
	people, err := store.FetchPeopleDirectory(ctx)
	if err != nil {
		t.Fatalf("fetch people: %v", err)
	}
	if len(people) != 0 {
		t.Fatalf("expected empty people directory, got %+v", people)
	}
}

func TestSQLiteStore_PurchasesAndScores(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	store := openTestStore(t)

	rows := []crm.Columns{
		sale(t, "P1", "2024-01-15", "100"),
		sale(t, "P1", "2024-03-01", "50"),
		sale(t, "P2", "2024-02-01", "20"),
	}
	orphan := sale(t, "", "2024-02-02", "10")
	orphan["prontuario"] = nil
	rows = append(rows, orphan)
	if err := store.InsertBatch(ctx, "vendas", rows); err != nil {
		t.Fatalf("insert: %v", err)
	}

	result, err := rfv.Run(ctx, store, time.Date(2024, 3, 31, 0, 0, 0, 0, time.UTC), nil)
	if err != nil {
		t.Fatalf("run rfv: %v", err)
	}
	if result.PurchasesRead != 3 || result.Patients != 2 {
		t.Fatalf("unexpected rfv result: %+v", result)
	}

	scores, err := store.ListScores(ctx)
	if err != nil {
		t.Fatalf("list scores: %v", err)
	}
	if len(scores) != 2 || scores[0].PatientKey != "P1" {
		t.Fatalf("unexpected scores: %+v", scores)
	}
	if scores[0].Frequency != 2 || scores[0].RecencyDays != 30 || !scores[0].Monetary.Equal(decimal.NewFromInt(150)) {
		t.Fatalf("unexpected P1 score: %+v", scores[0])
	}
}
