package importer

import (
	"strconv"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// RawRow is one data row of a sheet keyed by source header.
type RawRow struct {
	Line  int
	Cells map[string]Cell
}

// Get returns the cell under header, or an empty cell when the header is
// unknown or blank (an unmapped field).
func (r RawRow) Get(header string) Cell {
	if header == "" {
		return EmptyCell()
	}
	if cell, ok := r.Cells[header]; ok {
		return cell
	}
	return EmptyCell()
}

// Sheet is a loaded sheet: ordered headers and the data rows below them.
type Sheet struct {
	Name    string
	Headers []string
	Rows    []RawRow
}

var accentFolder = transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)

// normalizeHeader folds case and accents and drops separators so that
// "Prontuário", "PRONTUARIO" and "prontuario_" compare equal.
func normalizeHeader(input string) string {
	folded, _, err := transform.String(accentFolder, strings.TrimSpace(input))
	if err != nil {
		folded = input
	}
	folded = strings.ToLower(folded)
	var b strings.Builder
	b.Grow(len(folded))
	for _, r := range folded {
		switch r {
		case '_', '-', ' ', '.', '/', '\t':
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// headerWords folds case and accents like normalizeHeader but keeps word
// boundaries: "Valor Pago (R$)" becomes ["valor", "pago", "r"].
func headerWords(input string) []string {
	folded, _, err := transform.String(accentFolder, input)
	if err != nil {
		folded = input
	}
	return strings.FieldsFunc(strings.ToLower(folded), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}

// buildSheet turns a cell grid into a Sheet. The first non-blank row is the
// header row; blank headers get a positional name and repeated headers a
// numeric suffix so every column stays addressable.
func buildSheet(name string, grid [][]Cell) (Sheet, error) {
	sheet := Sheet{Name: name}

	headerIndex := -1
	for i, row := range grid {
		if !blankRow(row) {
			headerIndex = i
			break
		}
	}
	if headerIndex < 0 {
		return sheet, nil
	}

	seen := make(map[string]int)
	for col, cell := range grid[headerIndex] {
		header := strings.TrimSpace(cell.String())
		if header == "" {
			header = "Column " + strconv.Itoa(col+1)
		}
		seen[header]++
		if count := seen[header]; count > 1 {
			header = header + " (" + strconv.Itoa(count) + ")"
		}
		sheet.Headers = append(sheet.Headers, header)
	}

	sheet.Rows = make([]RawRow, 0, len(grid)-headerIndex-1)
	for i := headerIndex + 1; i < len(grid); i++ {
		row := grid[i]
		if blankRow(row) {
			continue
		}
		cells := make(map[string]Cell, len(sheet.Headers))
		for col, header := range sheet.Headers {
			if col < len(row) {
				cells[header] = row[col]
			} else {
				cells[header] = EmptyCell()
			}
		}
		sheet.Rows = append(sheet.Rows, RawRow{Line: i + 1, Cells: cells})
	}

	return sheet, nil
}

func blankRow(row []Cell) bool {
	for _, cell := range row {
		if !cell.IsEmpty() {
			return false
		}
	}
	return true
}
