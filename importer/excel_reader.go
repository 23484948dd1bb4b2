package importer

import (
	"bytes"
	"fmt"
	"strconv"
	"strings"

	"github.com/xuri/excelize/v2"
)

type excelWorkbook struct {
	file *excelize.File
}

func openExcel(data []byte) (*excelWorkbook, error) {
	file, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: open excel workbook: %w", ErrUnreadableSource, err)
	}
	return &excelWorkbook{file: file}, nil
}

func (w *excelWorkbook) SheetNames() []string {
	return w.file.GetSheetList()
}

func (w *excelWorkbook) ReadSheet(name string) (Sheet, error) {
	if !hasSheet(w.SheetNames(), name) {
		return Sheet{}, fmt.Errorf("%w: sheet %q not found", ErrUnreadableSource, name)
	}

	// Raw values keep date cells as serial numbers instead of locale-formatted text.
	rows, err := w.file.GetRows(name, excelize.Options{RawCellValue: true})
	if err != nil {
		return Sheet{}, fmt.Errorf("%w: read rows from sheet %s: %w", ErrUnreadableSource, name, err)
	}

	grid := make([][]Cell, len(rows))
	for r, row := range rows {
		cells := make([]Cell, len(row))
		for c, value := range row {
			cells[c] = w.cell(name, c+1, r+1, value)
		}
		grid[r] = cells
	}

	return buildSheet(name, grid)
}

func (w *excelWorkbook) cell(sheet string, col, row int, value string) Cell {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return EmptyCell()
	}
	number, err := strconv.ParseFloat(trimmed, 64)
	if err != nil {
		return TextCell(value)
	}

	// Ids typed as text ("00123") must keep their leading zeros.
	axis, err := excelize.CoordinatesToCellName(col, row)
	if err == nil {
		cellType, typeErr := w.file.GetCellType(sheet, axis)
		if typeErr == nil && (cellType == excelize.CellTypeSharedString || cellType == excelize.CellTypeInlineString) {
			return TextCell(value)
		}
	}
	return NumberCell(number)
}

func (w *excelWorkbook) Close() error {
	return w.file.Close()
}
