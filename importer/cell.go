package importer

import (
	"strconv"
	"strings"
)

type CellKind int

const (
	CellEmpty CellKind = iota
	CellText
	CellNumber
)

// Cell is the closed set of values a spreadsheet cell can hold once loaded.
type Cell struct {
	Kind   CellKind
	Text   string
	Number float64
}

func EmptyCell() Cell {
	return Cell{Kind: CellEmpty}
}

// TextCell returns an empty cell for blank input so downstream checks only
// need to look at Kind.
func TextCell(value string) Cell {
	if strings.TrimSpace(value) == "" {
		return EmptyCell()
	}
	return Cell{Kind: CellText, Text: value}
}

func NumberCell(value float64) Cell {
	return Cell{Kind: CellNumber, Number: value}
}

func (c Cell) IsEmpty() bool {
	return c.Kind == CellEmpty
}

// String renders the cell as text; empty cells render as "".
func (c Cell) String() string {
	switch c.Kind {
	case CellText:
		return c.Text
	case CellNumber:
		return strconv.FormatFloat(c.Number, 'f', -1, 64)
	default:
		return ""
	}
}
