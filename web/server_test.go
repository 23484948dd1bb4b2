package web

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"clinicsync/backup"
	"clinicsync/importer"
	"clinicsync/rfv"
	"clinicsync/storage"
)

const personaCSV = "Prontuário;Nome;CPF\nP1;Ana Lima;123.456.789-01\nP2;Bruno Dias;987.654.321-00\n"

func TestServer_ColumnsProposesMapping(t *testing.T) {
	t.Parallel()

	ts, _ := newTestServer(t)
	resp := postUpload(t, ts.URL+"/api/imports/columns", "pacientes.csv", personaCSV, map[string]string{"kind": "persona"})
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", resp.StatusCode, readBody(t, resp))
	}

	var body columnsResponse
	decodeBody(t, resp, &body)
	if body.Rows != 2 || len(body.Headers) != 3 {
		t.Fatalf("unexpected sheet summary: %+v", body)
	}
	if body.Mapping["prontuario"] != "Prontuário" || body.Mapping["name"] != "Nome" || body.Mapping["cpf"] != "CPF" {
		t.Fatalf("unexpected mapping: %+v", body.Mapping)
	}
	if len(body.Missing) != 0 {
		t.Fatalf("expected no missing fields, got %v", body.Missing)
	}
}

func TestServer_RejectsUnknownKind(t *testing.T) {
	t.Parallel()

	ts, _ := newTestServer(t)
	resp := postUpload(t, ts.URL+"/api/imports/columns", "pacientes.csv", personaCSV, map[string]string{"kind": "invoices"})
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.StatusCode)
	}
}

func TestServer_ImportWithIncompleteMappingIsUnprocessable(t *testing.T) {
	t.Parallel()

	ts, store := newTestServer(t)
	resp := postUpload(t, ts.URL+"/api/imports", "pacientes.csv", personaCSV, map[string]string{
		"kind":    "persona",
		"mapping": `{"name": ""}`,
	})
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422, got %d: %s", resp.StatusCode, readBody(t, resp))
	}

	count, err := store.CountRecords(context.Background(), "personas")
	if err != nil {
		t.Fatalf("count personas: %v", err)
	}
	if count != 0 {
		t.Fatalf("expected nothing written, got %d personas", count)
	}
}

func TestServer_ValidateReturnsCSVReport(t *testing.T) {
	t.Parallel()

	ts, _ := newTestServer(t)
	content := "Data;Valor;Vendedor\n;100,00;Ana\n15/01/2024;0;Ana\n"
	resp := postUpload(t, ts.URL+"/api/imports/validate", "vendas.csv", content, map[string]string{
		"kind":   "vendas",
		"format": "csv",
	})
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", resp.StatusCode, readBody(t, resp))
	}
	if !strings.HasPrefix(resp.Header.Get("Content-Type"), "text/csv") {
		t.Fatalf("unexpected content type %q", resp.Header.Get("Content-Type"))
	}

	text := readBody(t, resp)
	if !strings.HasPrefix(text, "Severity,Row,Field,Code,Message\n") {
		t.Fatalf("unexpected report header: %s", text)
	}
	if !strings.Contains(text, importer.CodeRowInvalid) {
		t.Fatalf("expected row_invalid finding in report: %s", text)
	}
}

func TestServer_ImportThenRollback(t *testing.T) {
	t.Parallel()

	ts, store := newTestServer(t)
	ctx := context.Background()

	resp := postUpload(t, ts.URL+"/api/imports", "pacientes.csv", personaCSV, map[string]string{"kind": "persona"})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", resp.StatusCode, readBody(t, resp))
	}
	var report importer.Report
	decodeBody(t, resp, &report)
	resp.Body.Close()
	if report.Stats.New != 2 || report.Status != importer.StatusSucceeded {
		t.Fatalf("unexpected report: %+v", report)
	}
	// The store was empty, so there was nothing to back up.
	if report.BackupID != "" {
		t.Fatalf("expected no backup for an empty table, got %s", report.BackupID)
	}

	// A second import of the same file updates and is backed up first.
	resp = postUpload(t, ts.URL+"/api/imports", "pacientes.csv", personaCSV, map[string]string{"kind": "persona"})
	decodeBody(t, resp, &report)
	resp.Body.Close()
	if report.Stats.Updated != 2 || report.BackupID == "" {
		t.Fatalf("expected 2 updates with a backup, got %+v", report)
	}

	resp = postJSON(t, ts.URL+"/api/backups/"+report.BackupID+"/restore", `{"confirm":"n"}`)
	resp.Body.Close()
	if resp.StatusCode != http.StatusPreconditionRequired {
		t.Fatalf("expected 428 without confirmation, got %d", resp.StatusCode)
	}

	resp = postJSON(t, ts.URL+"/api/backups/"+report.BackupID+"/restore", `{"confirm":"Y"}`)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", resp.StatusCode, readBody(t, resp))
	}
	var artifact backup.Artifact
	decodeBody(t, resp, &artifact)
	resp.Body.Close()
	if artifact.Status != backup.StatusRestored {
		t.Fatalf("expected restored artifact, got %+v", artifact)
	}

	resp = postJSON(t, ts.URL+"/api/backups/"+report.BackupID+"/restore", `{"confirm":"Y"}`)
	resp.Body.Close()
	if resp.StatusCode != http.StatusConflict {
		t.Fatalf("expected 409 on second rollback, got %d", resp.StatusCode)
	}

	count, err := store.CountRecords(ctx, "personas")
	if err != nil {
		t.Fatalf("count personas: %v", err)
	}
	if count != 2 {
		t.Fatalf("expected the 2 personas of the first import, got %d", count)
	}

	logsResp, err := http.Get(ts.URL + "/api/import-logs?limit=10")
	if err != nil {
		t.Fatalf("get import logs: %v", err)
	}
	var entries []importer.LogEntry
	decodeBody(t, logsResp, &entries)
	logsResp.Body.Close()
	// two imports, one successful rollback and one refused rollback
	if len(entries) != 4 {
		t.Fatalf("expected 4 log entries, got %d", len(entries))
	}
}

func TestServer_RestoreUnknownBackupIsNotFound(t *testing.T) {
	t.Parallel()

	ts, _ := newTestServer(t)
	resp := postJSON(t, ts.URL+"/api/backups/does-not-exist/restore", `{"confirm":"Y"}`)
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", resp.StatusCode)
	}
}

func TestServer_BackupsListIsJSONArray(t *testing.T) {
	t.Parallel()

	ts, _ := newTestServer(t)
	resp, err := http.Get(ts.URL + "/api/backups?active=1")
	if err != nil {
		t.Fatalf("get backups: %v", err)
	}
	defer resp.Body.Close()
	if text := strings.TrimSpace(readBody(t, resp)); text != "[]" {
		t.Fatalf("expected empty array, got %s", text)
	}
}

func TestServer_ScoresListIsJSONArray(t *testing.T) {
	t.Parallel()

	ts, _ := newTestServer(t)
	resp, err := http.Get(ts.URL + "/api/rfv")
	if err != nil {
		t.Fatalf("get scores: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	if text := strings.TrimSpace(readBody(t, resp)); text != "[]" {
		t.Fatalf("expected empty array, got %s", text)
	}
}

func TestServer_MetricsExposeRequestCounters(t *testing.T) {
	t.Parallel()

	ts, _ := newTestServer(t)
	warm, err := http.Get(ts.URL + "/api/backups")
	if err != nil {
		t.Fatalf("get backups: %v", err)
	}
	warm.Body.Close()

	resp, err := http.Get(ts.URL + "/metrics")
	if err != nil {
		t.Fatalf("get metrics: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	if text := readBody(t, resp); !strings.Contains(text, "clinicsync_api_requests_total") {
		t.Fatalf("metrics missing request counter")
	}
}

func newTestServer(t *testing.T) (*httptest.Server, *storage.SQLiteStore) {
	t.Helper()

	store, err := storage.OpenSQLite(filepath.Join(t.TempDir(), "web.db"))
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })

	backups := backup.NewManager(store, time.Hour, nil)
	service := importer.NewService(importer.Dependencies{
		Identities:   store,
		Writer:       store,
		Directory:    store,
		Backups:      backups,
		Records:      store,
		Audit:        store,
		Recalculator: rfv.NewHook(store, nil),
	}, importer.Options{OperatorUserID: 1, IndexPageSize: 100, MessageLimit: 50})

	ts := httptest.NewServer(NewServer(service, backups, store, Defaults{Backup: true, Recalculate: true}, nil))
	t.Cleanup(ts.Close)
	return ts, store
}

func postUpload(t *testing.T, url, filename, content string, fields map[string]string) *http.Response {
	t.Helper()

	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)
	part, err := writer.CreateFormFile("file", filename)
	if err != nil {
		t.Fatalf("create form file: %v", err)
	}
	if _, err := io.WriteString(part, content); err != nil {
		t.Fatalf("write form file: %v", err)
	}
	for key, value := range fields {
		if err := writer.WriteField(key, value); err != nil {
			t.Fatalf("write field %s: %v", key, err)
		}
	}
	if err := writer.Close(); err != nil {
		t.Fatalf("close multipart writer: %v", err)
	}

	resp, err := http.Post(url, writer.FormDataContentType(), &buf)
	if err != nil {
		t.Fatalf("post %s: %v", url, err)
	}
	return resp
}

func postJSON(t *testing.T, url, body string) *http.Response {
	t.Helper()
	resp, err := http.Post(url, "application/json", strings.NewReader(body))
	if err != nil {
		t.Fatalf("post %s: %v", url, err)
	}
	return resp
}

func decodeBody(t *testing.T, resp *http.Response, out any) {
	t.Helper()
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		t.Fatalf("decode response: %v", err)
	}
}

func readBody(t *testing.T, resp *http.Response) string {
	t.Helper()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	return string(body)
}
