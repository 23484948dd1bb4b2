package output

import (
	"sort"
	"strconv"
	"strings"
	"time"

	"clinicsync/backup"
	"clinicsync/importer"
	"clinicsync/rfv"
)

// ValidationTable lists every error and warning of a validation pass, errors
// first, each group ordered by row.
func ValidationTable(result *importer.ValidationResult) Table {
	table := Table{
		Sheet:   "Validation",
		Headers: []string{"Severity", "Row", "Field", "Code", "Message"},
	}
	appendIssues := func(severity string, issues []importer.Issue) {
		sorted := append([]importer.Issue(nil), issues...)
		sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Row < sorted[j].Row })
		for _, issue := range sorted {
			table.Rows = append(table.Rows, []string{
				severity,
				strconv.Itoa(issue.Row),
				issue.Field,
				issue.Code,
				issue.Message,
			})
		}
	}
	appendIssues("error", result.Errors)
	appendIssues("warning", result.Warnings)
	return table
}

func ImportLogTable(entries []importer.LogEntry) Table {
	table := Table{
		Sheet: "Import log",
		Headers: []string{
			"CreatedAt", "Action", "Kind", "File", "Total", "Imported", "Updated",
			"Duplicates", "Skipped", "Errors", "DurationMs", "Recalculated", "BackupID", "Status", "Error",
		},
	}
	for _, entry := range entries {
		table.Rows = append(table.Rows, []string{
			entry.CreatedAt.Format(time.RFC3339),
			entry.Action,
			entry.Kind.String(),
			entry.File,
			strconv.Itoa(entry.Total),
			strconv.Itoa(entry.Imported),
			strconv.Itoa(entry.Updated),
			strconv.Itoa(entry.Duplicates),
			strconv.Itoa(entry.Skipped),
			strconv.Itoa(entry.Errors),
			strconv.FormatInt(entry.Duration.Milliseconds(), 10),
			strconv.FormatBool(entry.Recalculated),
			entry.BackupID,
			entry.Status,
			entry.Error,
		})
	}
	return table
}

func BackupTable(artifacts []backup.Artifact) Table {
	table := Table{
		Sheet:   "Backups",
		Headers: []string{"ID", "Name", "Status", "Tables", "Rows", "CreatedAt", "ExpiresAt"},
	}
	for _, artifact := range artifacts {
		var rows int64
		for _, count := range artifact.RowCounts {
			rows += count
		}
		table.Rows = append(table.Rows, []string{
			artifact.ID,
			artifact.Name,
			string(artifact.Status),
			strings.Join(artifact.Tables, ","),
			strconv.FormatInt(rows, 10),
			artifact.CreatedAt.Format(time.RFC3339),
			artifact.ExpiresAt.Format(time.RFC3339),
		})
	}
	return table
}

func ScoreTable(scores []rfv.Score) Table {
	table := Table{
		Sheet:   "RFV",
		Headers: []string{"PatientKey", "PatientName", "LastPurchase", "RecencyDays", "Frequency", "Monetary", "R", "F", "V", "Segment"},
	}
	for _, score := range scores {
		table.Rows = append(table.Rows, []string{
			score.PatientKey,
			score.PatientName,
			score.LastPurchase.Format("2006-01-02"),
			strconv.Itoa(score.RecencyDays),
			strconv.Itoa(score.Frequency),
			score.Monetary.StringFixed(2),
			strconv.Itoa(score.R),
			strconv.Itoa(score.F),
			strconv.Itoa(score.V),
			score.Segment,
		})
	}
	return table
}
