package importer

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"
)

// csvWorkbook exposes a delimited text file as a workbook with one sheet.
type csvWorkbook struct {
	name string
	data []byte
}

func openCSV(filename string, data []byte) (*csvWorkbook, error) {
	name := strings.TrimSuffix(filepath.Base(filename), filepath.Ext(filename))
	if name == "" || name == "." {
		name = "data"
	}
	return &csvWorkbook{name: name, data: data}, nil
}

func (w *csvWorkbook) SheetNames() []string {
	return []string{w.name}
}

func (w *csvWorkbook) ReadSheet(name string) (Sheet, error) {
	if name != w.name {
		return Sheet{}, fmt.Errorf("%w: sheet %q not found", ErrUnreadableSource, name)
	}

	// UTF-16 and UTF-8 BOMs win; otherwise invalid UTF-8 is treated as the
	// Windows-1252 that Brazilian Excel installs write.
	var fallback encoding.Encoding = unicode.UTF8
	if !utf8.Valid(w.data) {
		fallback = charmap.Windows1252
	}
	decoder := unicode.BOMOverride(fallback.NewDecoder())
	decoded, err := io.ReadAll(transform.NewReader(bytes.NewReader(w.data), decoder))
	if err != nil {
		return Sheet{}, fmt.Errorf("%w: decode csv: %w", ErrUnreadableSource, err)
	}

	reader := csv.NewReader(bytes.NewReader(decoded))
	reader.Comma = sniffDelimiter(decoded)
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true

	var grid [][]Cell
	line := 0
	for {
		row, err := reader.Read()
		if err == io.EOF {
			break
		}
		line++
		if err != nil {
			return Sheet{}, fmt.Errorf("%w: read csv row %d: %w", ErrUnreadableSource, line, err)
		}
		cells := make([]Cell, len(row))
		for i, value := range row {
			cells[i] = TextCell(value)
		}
		grid = append(grid, cells)
	}

	return buildSheet(w.name, grid)
}

func (w *csvWorkbook) Close() error {
	return nil
}

// sniffDelimiter picks the most frequent of ';', ',' and tab on the first line.
func sniffDelimiter(data []byte) rune {
	firstLine := data
	if idx := bytes.IndexByte(data, '\n'); idx >= 0 {
		firstLine = data[:idx]
	}

	best, bestCount := ',', 0
	for _, candidate := range []rune{';', ',', '\t'} {
		if count := bytes.Count(firstLine, []byte(string(candidate))); count > bestCount {
			best, bestCount = candidate, count
		}
	}
	return best
}
