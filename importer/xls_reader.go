package importer

import (
	"bytes"
	"fmt"
	"strconv"
	"strings"

	"github.com/shakinm/xlsReader/xls"
)

// xlsWorkbook reads legacy BIFF (.xls) workbooks still produced by older
// clinic management exports.
type xlsWorkbook struct {
	workbook xls.Workbook
	names    []string
}

func openXLS(data []byte) (*xlsWorkbook, error) {
	workbook, err := xls.OpenReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: open xls workbook: %w", ErrUnreadableSource, err)
	}

	sheets := workbook.GetSheets()
	names := make([]string, 0, len(sheets))
	for i := range sheets {
		names = append(names, sheets[i].GetName())
	}
	return &xlsWorkbook{workbook: workbook, names: names}, nil
}

func (w *xlsWorkbook) SheetNames() []string {
	return append([]string(nil), w.names...)
}

func (w *xlsWorkbook) ReadSheet(name string) (Sheet, error) {
	index := -1
	for i, candidate := range w.names {
		if candidate == name {
			index = i
			break
		}
	}
	if index < 0 {
		return Sheet{}, fmt.Errorf("%w: sheet %q not found", ErrUnreadableSource, name)
	}

	sheet, err := w.workbook.GetSheet(index)
	if err != nil {
		return Sheet{}, fmt.Errorf("%w: read xls sheet %s: %w", ErrUnreadableSource, name, err)
	}

	var grid [][]Cell
	for _, row := range sheet.GetRows() {
		cols := row.GetCols()
		cells := make([]Cell, len(cols))
		for i, col := range cols {
			value := col.GetString()
			if strings.TrimSpace(value) == "" {
				cells[i] = EmptyCell()
				continue
			}
			// Label records are text cells regardless of their content.
			if strings.Contains(col.GetType(), "Label") {
				cells[i] = TextCell(value)
				continue
			}
			if number, parseErr := strconv.ParseFloat(strings.TrimSpace(value), 64); parseErr == nil {
				cells[i] = NumberCell(number)
				continue
			}
			cells[i] = TextCell(value)
		}
		grid = append(grid, cells)
	}

	return buildSheet(name, grid)
}

func (w *xlsWorkbook) Close() error {
	return nil
}
