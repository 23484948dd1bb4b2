package importer

// ValidationSummary holds exact counts; the issue lists may be capped.
type ValidationSummary struct {
	Total      int `json:"total"`
	Valid      int `json:"valid"`
	Invalid    int `json:"invalid"`
	Duplicates int `json:"duplicates"`
	Skipped    int `json:"skipped"`
	Errors     int `json:"errors"`
	Warnings   int `json:"warnings"`
}

type ValidationResult struct {
	ValidRows     []int             `json:"validRows"`
	Errors        []Issue           `json:"errors"`
	Warnings      []Issue           `json:"warnings"`
	DuplicateRows []int             `json:"duplicateRows"`
	MissingFields []string          `json:"missingFields,omitempty"`
	Summary       ValidationSummary `json:"summary"`
}

// Validate evaluates every row against the current mapping without writing
// anything. Rows matching an existing patient are duplicates, not errors.
// At most limit errors and limit warnings are listed.
func Validate(schema Schema, rows []RawRow, mapping ColumnMapping, lookups Lookups, limit int) (*ValidationResult, error) {
	p, err := buildPlan(schema, rows, mapping, lookups, "", limit)
	if err != nil {
		return nil, err
	}

	return &ValidationResult{
		ValidRows:     nonNil(p.validRows),
		Errors:        nonNilIssues(p.errors.items),
		Warnings:      nonNilIssues(p.warnings.items),
		DuplicateRows: nonNil(p.duplicateRows),
		MissingFields: mapping.Missing(schema),
		Summary: ValidationSummary{
			Total:      len(rows),
			Valid:      len(p.validRows),
			Invalid:    p.invalid,
			Duplicates: len(p.duplicateRows),
			Skipped:    p.skipped,
			Errors:     p.errors.count,
			Warnings:   p.warnings.count,
		},
	}, nil
}

func nonNil(values []int) []int {
	if values == nil {
		return []int{}
	}
	return values
}

func nonNilIssues(values []Issue) []Issue {
	if values == nil {
		return []Issue{}
	}
	return values
}
