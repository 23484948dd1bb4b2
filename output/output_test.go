package output

import (
	"bytes"
	"path/filepath"
	"testing"
	"time"

	"clinicsync/backup"
	"clinicsync/importer"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

func sampleTable() Table {
	return Table{
		Sheet:   "Report",
		Headers: []string{"Row", "Message"},
		Rows: [][]string{
			{"2", "data, with comma"},
			{"3", "ok"},
		},
	}
}

func TestCSVWriter_QuotesFields(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	require.NoError(t, (&CSVWriter{}).Write(&buf, sampleTable()))
	assert.Equal(t, "Row,Message\n2,\"data, with comma\"\n3,ok\n", buf.String())
}

func TestExcelWriter_WritesNamedSheet(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "report.xlsx")
	require.NoError(t, WriteFile(path, "", sampleTable()))

	file, err := excelize.OpenFile(path)
	require.NoError(t, err)
	defer file.Close()

	assert.Equal(t, []string{"Report"}, file.GetSheetList())
	rows, err := file.GetRows("Report")
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, []string{"2", "data, with comma"}, rows[1])
}

func TestWriterForFormat(t *testing.T) {
	t.Parallel()

	_, err := WriterForFormat(" XLSX ")
	require.NoError(t, err)
	_, err = WriterForFormat("pdf")
	require.Error(t, err)

	assert.Equal(t, "xlsx", FormatForPath("out.XLSX"))
	assert.Equal(t, "csv", FormatForPath("out.txt"))
}

func TestValidationTable_ErrorsBeforeWarnings(t *testing.T) {
	t.Parallel()

	result := &importer.ValidationResult{
		Errors: []importer.Issue{
			{Row: 9, Field: "data", Code: importer.CodeRowInvalid, Message: "missing date"},
			{Row: 4, Field: "vendedor", Code: importer.CodeAttributionUnresolved, Message: "unknown seller"},
		},
		Warnings: []importer.Issue{
			{Row: 2, Field: "valor", Code: importer.CodeAmountZero, Message: "zero amount"},
		},
	}

	table := ValidationTable(result)
	require.Len(t, table.Rows, 3)
	assert.Equal(t, []string{"error", "4", "vendedor", importer.CodeAttributionUnresolved, "unknown seller"}, table.Rows[0])
	assert.Equal(t, "9", table.Rows[1][1])
	assert.Equal(t, "warning", table.Rows[2][0])
}

func TestBackupTable_SumsRowCounts(t *testing.T) {
	t.Parallel()

	created := time.Date(2026, 2, 1, 10, 0, 0, 0, time.UTC)
	table := BackupTable([]backup.Artifact{{
		ID:        "b1",
		Name:      "before import",
		Status:    backup.StatusCompleted,
		Tables:    []string{"personas", "vendas"},
		RowCounts: map[string]int64{"personas": 3, "vendas": 4},
		CreatedAt: created,
		ExpiresAt: created.Add(backup.DefaultRetention),
	}})

	require.Len(t, table.Rows, 1)
	assert.Equal(t, "personas,vendas", table.Rows[0][3])
	assert.Equal(t, "7", table.Rows[0][4])
	assert.Equal(t, "2026-02-08T10:00:00Z", table.Rows[0][6])
}
