package output

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// Table is a header row plus data rows, all rendered as text.
type Table struct {
	Sheet   string
	Headers []string
	Rows    [][]string
}

type Writer interface {
	Write(dst io.Writer, table Table) error
}

func WriterForFormat(format string) (Writer, error) {
	switch normalizeFormat(format) {
	case "csv":
		return &CSVWriter{}, nil
	case "excel", "xlsx":
		return &ExcelWriter{}, nil
	default:
		return nil, fmt.Errorf("unsupported output format: %s", format)
	}
}

// FormatForPath picks the format from the file extension, defaulting to csv.
func FormatForPath(path string) string {
	if strings.EqualFold(filepath.Ext(path), ".xlsx") {
		return "xlsx"
	}
	return "csv"
}

// WriteFile writes table to path in the given format; an empty format is
// derived from the extension.
func WriteFile(path, format string, table Table) error {
	if strings.TrimSpace(format) == "" {
		format = FormatForPath(path)
	}
	writer, err := WriterForFormat(format)
	if err != nil {
		return err
	}

	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create output %s: %w", path, err)
	}
	if err := writer.Write(file, table); err != nil {
		_ = file.Close()
		return err
	}
	if err := file.Close(); err != nil {
		return fmt.Errorf("close output %s: %w", path, err)
	}
	return nil
}

func normalizeFormat(value string) string {
	return strings.TrimSpace(strings.ToLower(value))
}
