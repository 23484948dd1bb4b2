package importer

import (
	"math"
	"strconv"
	"strings"
	"time"
	"unicode"

	"github.com/shopspring/decimal"
	"golang.org/x/text/transform"
)

// The normalizers below are total: a missing or unparseable value yields the
// zero value or nil, never an error. Callers decide whether absence matters.

// NormalizeText trims a cell and returns nil when nothing is left.
func NormalizeText(cell Cell) *string {
	value := strings.TrimSpace(cell.String())
	if value == "" {
		return nil
	}
	return &value
}

// NormalizeCurrency parses Brazilian and plain decimal amounts such as
// "R$ 1.234,56", "1234.56" or "(50,00)". Garbage yields zero.
func NormalizeCurrency(cell Cell) decimal.Decimal {
	switch cell.Kind {
	case CellNumber:
		return decimal.NewFromFloat(cell.Number)
	case CellEmpty:
		return decimal.Zero
	}

	raw := strings.TrimSpace(cell.Text)
	negative := false
	if strings.HasPrefix(raw, "(") && strings.HasSuffix(raw, ")") {
		negative = true
	}

	var b strings.Builder
	for _, r := range raw {
		switch {
		case unicode.IsDigit(r), r == ',', r == '.':
			b.WriteRune(r)
		case r == '-':
			negative = true
		}
	}
	cleaned := b.String()
	if cleaned == "" {
		return decimal.Zero
	}

	lastComma := strings.LastIndex(cleaned, ",")
	lastDot := strings.LastIndex(cleaned, ".")
	switch {
	case lastComma >= 0 && lastDot >= 0:
		if lastComma > lastDot {
			cleaned = strings.ReplaceAll(cleaned, ".", "")
			cleaned = strings.Replace(cleaned, ",", ".", 1)
		} else {
			cleaned = strings.ReplaceAll(cleaned, ",", "")
		}
	case lastComma >= 0:
		if strings.Count(cleaned, ",") > 1 {
			cleaned = strings.ReplaceAll(cleaned, ",", "")
		} else {
			cleaned = strings.Replace(cleaned, ",", ".", 1)
		}
	case lastDot >= 0:
		// "1.234" is a thousands group, "12.5" a decimal.
		if strings.Count(cleaned, ".") > 1 || len(cleaned)-lastDot-1 == 3 {
			cleaned = strings.ReplaceAll(cleaned, ".", "")
		}
	}

	amount, err := decimal.NewFromString(cleaned)
	if err != nil {
		return decimal.Zero
	}
	if negative {
		amount = amount.Neg()
	}
	return amount
}

// NormalizeDate returns the calendar day of a cell at UTC midnight.
// Numbers (and purely numeric text) are spreadsheet serials; text dates are
// three tokens split by '-', '/' or '.', year-first when the first token has
// four digits and day-first otherwise. Impossible dates yield nil.
func NormalizeDate(cell Cell) *time.Time {
	switch cell.Kind {
	case CellEmpty:
		return nil
	case CellNumber:
		if !plausibleSerial(cell.Number) {
			return nil
		}
		date := SerialToDate(cell.Number)
		return &date
	}

	raw := strings.TrimSpace(cell.Text)
	if cut := strings.IndexAny(raw, " T"); cut > 0 {
		raw = raw[:cut]
	}
	if raw == "" {
		return nil
	}

	if serial, err := strconv.ParseFloat(raw, 64); err == nil {
		if len(raw) == 8 && !strings.Contains(raw, ".") {
			if date, ok := calendarDate(raw[0:4], raw[4:6], raw[6:8]); ok {
				return &date
			}
		}
		if !plausibleSerial(serial) {
			return nil
		}
		date := SerialToDate(serial)
		return &date
	}

	tokens := strings.FieldsFunc(raw, func(r rune) bool {
		return r == '-' || r == '/' || r == '.'
	})
	if len(tokens) != 3 {
		return nil
	}

	var (
		date time.Time
		ok   bool
	)
	if len(tokens[0]) == 4 {
		date, ok = calendarDate(tokens[0], tokens[1], tokens[2])
	} else {
		date, ok = calendarDate(expandYear(tokens[2]), tokens[1], tokens[0])
	}
	if !ok {
		return nil
	}
	return &date
}

func expandYear(token string) string {
	if len(token) != 2 {
		return token
	}
	year, err := strconv.Atoi(token)
	if err != nil {
		return token
	}
	if year < 70 {
		return strconv.Itoa(2000 + year)
	}
	return strconv.Itoa(1900 + year)
}

func calendarDate(yearText, monthText, dayText string) (time.Time, bool) {
	year, errY := strconv.Atoi(yearText)
	month, errM := strconv.Atoi(monthText)
	day, errD := strconv.Atoi(dayText)
	if errY != nil || errM != nil || errD != nil || len(yearText) != 4 {
		return time.Time{}, false
	}
	date := time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)
	// time.Date normalizes 31/02 into March; reject instead.
	if date.Year() != year || int(date.Month()) != month || date.Day() != day {
		return time.Time{}, false
	}
	return date, true
}

// NormalizeTaxID keeps digits only and left-pads short ids to 11 digits.
// A cell without digits yields "".
func NormalizeTaxID(cell Cell) string {
	digits := onlyDigits(cell.String())
	if digits == "" {
		return ""
	}
	if len(digits) < 11 {
		digits = strings.Repeat("0", 11-len(digits)) + digits
	}
	return digits
}

// NormalizePhone keeps digits only.
func NormalizePhone(cell Cell) string {
	return onlyDigits(cell.String())
}

func NormalizeInteger(cell Cell) *int64 {
	var value float64
	switch cell.Kind {
	case CellEmpty:
		return nil
	case CellNumber:
		value = cell.Number
	default:
		cleaned := strings.ReplaceAll(strings.TrimSpace(cell.Text), ",", ".")
		parsed, err := strconv.ParseFloat(cleaned, 64)
		if err != nil {
			return nil
		}
		value = parsed
	}
	rounded := int64(math.Round(value))
	return &rounded
}

var (
	truthy = map[string]bool{"sim": true, "s": true, "yes": true, "y": true, "true": true, "1": true, "x": true, "pago": true, "quitado": true}
	falsy  = map[string]bool{"nao": true, "n": true, "no": true, "false": true, "0": true, "pendente": true, "em aberto": true}
)

func NormalizeBoolean(cell Cell) *bool {
	if cell.IsEmpty() {
		return nil
	}
	folded, _, err := transform.String(accentFolder, strings.ToLower(strings.TrimSpace(cell.String())))
	if err != nil {
		return nil
	}
	var result bool
	switch {
	case truthy[folded]:
		result = true
	case falsy[folded]:
		result = false
	default:
		return nil
	}
	return &result
}

func onlyDigits(value string) string {
	var b strings.Builder
	for _, r := range value {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}
