package importer

import (
	"bytes"
	"fmt"
	"path/filepath"
	"strings"
)

// Workbook is a loaded tabular source with one or more sheets.
type Workbook interface {
	SheetNames() []string
	ReadSheet(name string) (Sheet, error)
	Close() error
}

var (
	zipMagic = []byte("PK\x03\x04")
	oleMagic = []byte{0xD0, 0xCF, 0x11, 0xE0}
)

// Load opens a workbook from raw bytes. The format comes from the file
// extension, falling back to content sniffing when the extension is unknown.
func Load(filename string, data []byte) (Workbook, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: %s is empty", ErrUnreadableSource, filename)
	}

	switch formatForFile(filename, data) {
	case "excel":
		return openExcel(data)
	case "xls":
		wb, err := openXLS(data)
		if err == nil {
			return wb, nil
		}
		// Some exporters write xlsx content with an .xls extension.
		if bytes.HasPrefix(data, zipMagic) {
			return openExcel(data)
		}
		return nil, err
	default:
		return openCSV(filename, data)
	}
}

// LoadSheet loads a workbook and reads one sheet; an empty name selects the
// first sheet.
func LoadSheet(filename string, data []byte, sheetName string) (Sheet, []string, error) {
	wb, err := Load(filename, data)
	if err != nil {
		return Sheet{}, nil, err
	}
	defer wb.Close()

	names := wb.SheetNames()
	if len(names) == 0 {
		return Sheet{}, nil, fmt.Errorf("%w: %s has no sheets", ErrUnreadableSource, filename)
	}
	if strings.TrimSpace(sheetName) == "" {
		sheetName = names[0]
	}

	sheet, err := wb.ReadSheet(sheetName)
	if err != nil {
		return Sheet{}, names, err
	}
	return sheet, names, nil
}

func formatForFile(filename string, data []byte) string {
	switch strings.ToLower(strings.TrimPrefix(filepath.Ext(filename), ".")) {
	case "xlsx", "xlsm":
		return "excel"
	case "xls":
		return "xls"
	case "csv", "tsv", "txt":
		return "csv"
	}

	switch {
	case bytes.HasPrefix(data, zipMagic):
		return "excel"
	case bytes.HasPrefix(data, oleMagic):
		return "xls"
	default:
		return "csv"
	}
}

func hasSheet(names []string, name string) bool {
	for _, candidate := range names {
		if candidate == name {
			return true
		}
	}
	return false
}
