package importer

import (
	"errors"
	"fmt"
	"strings"

	"clinicsync/attribution"
	"clinicsync/crm"
	"clinicsync/internal/classify"
)

const defaultMessageLimit = 100

// issueList keeps the first limit issues and an exact count of all of them.
type issueList struct {
	limit int
	items []Issue
	count int
}

func newIssueList(limit int) issueList {
	if limit <= 0 {
		limit = defaultMessageLimit
	}
	return issueList{limit: limit}
}

func (l *issueList) add(issue Issue) {
	l.count++
	if len(l.items) < l.limit {
		l.items = append(l.items, issue)
	}
}

// Lookups carries the read-only state rows are evaluated against.
type Lookups struct {
	Index    *classify.Index
	Resolver *attribution.Resolver
}

type pendingUpdate struct {
	id      int64
	persona crm.Persona
}

// plan is the outcome of evaluating every row of a sheet without writing.
type plan struct {
	kind crm.Kind

	inserts []crm.Persona
	updates []pendingUpdate
	sales   []crm.Sale

	validRows     []int
	duplicateRows []int

	skipped int
	invalid int
	// merged counts rows folded into an earlier row of the same file.
	merged int

	errors   issueList
	warnings issueList
}

func (p *plan) rowsToWrite() int {
	return len(p.inserts) + len(p.updates) + len(p.sales)
}

func buildPlan(schema Schema, rows []RawRow, mapping ColumnMapping, lookups Lookups, sourceFile string, limit int) (*plan, error) {
	p := &plan{
		kind:     schema.Kind,
		errors:   newIssueList(limit),
		warnings: newIssueList(limit),
	}

	switch {
	case schema.Kind == crm.KindPersona:
		if lookups.Index == nil {
			return nil, fmt.Errorf("persona import needs an identity index")
		}
		p.addPersonas(rows, mapping, lookups.Index)
	case schema.Kind.IsTransaction():
		if lookups.Resolver == nil {
			return nil, fmt.Errorf("%s import needs an attribution resolver", schema.Kind)
		}
		p.addSales(rows, mapping, lookups.Resolver, sourceFile)
	default:
		return nil, fmt.Errorf("unsupported record kind %q", schema.Kind)
	}
	return p, nil
}

func (p *plan) addPersonas(rows []RawRow, mapping ColumnMapping, index *classify.Index) {
	pending := classify.NewIndex()
	updateByID := make(map[int64]int)

	for _, row := range rows {
		persona := MapPersona(row, mapping)
		if persona.Skippable() {
			p.skipped++
			continue
		}

		if persona.TaxID != nil && len(*persona.TaxID) != 11 && len(*persona.TaxID) != 14 {
			p.warnings.add(Issue{Row: row.Line, Field: "cpf", Code: CodeTaxIDLength, Message: fmt.Sprintf("tax id has %d digits", len(*persona.TaxID))})
		}

		if match := index.Classify(persona); match.Status == classify.StatusExisting {
			p.validRows = append(p.validRows, row.Line)
			p.duplicateRows = append(p.duplicateRows, row.Line)
			if position, seen := updateByID[match.ID]; seen {
				p.updates[position].persona.Overlay(persona)
				p.merged++
				continue
			}
			updateByID[match.ID] = len(p.updates)
			p.updates = append(p.updates, pendingUpdate{id: match.ID, persona: persona})
			continue
		}

		if match := pending.Classify(persona); match.Status == classify.StatusExisting {
			p.validRows = append(p.validRows, row.Line)
			p.duplicateRows = append(p.duplicateRows, row.Line)
			p.warnings.add(Issue{Row: row.Line, Code: CodeDuplicate, Message: "same patient appears earlier in the file; rows are merged"})
			p.inserts[match.ID].Overlay(persona)
			pending.Add(match.ID, deref(persona.Prontuario), deref(persona.TaxID))
			p.merged++
			continue
		}

		position := len(p.inserts)
		pending.Add(int64(position), deref(persona.Prontuario), deref(persona.TaxID))
		p.inserts = append(p.inserts, persona)
		p.validRows = append(p.validRows, row.Line)
	}
}

func (p *plan) addSales(rows []RawRow, mapping ColumnMapping, resolver *attribution.Resolver, sourceFile string) {
	for _, row := range rows {
		if !hasMappedContent(row, mapping) {
			p.skipped++
			continue
		}

		sale := MapSale(row, mapping, sourceFile)
		if sale.Date == nil {
			p.invalid++
			p.errors.add(Issue{Row: row.Line, Field: "date", Code: CodeRowInvalid, Message: fmt.Sprintf("no parseable date in %q", cellFor(row, mapping, "date").String())})
			continue
		}

		seller := deref(sale.SellerName)
		result, err := resolver.Resolve(seller)
		if err != nil {
			p.invalid++
			code := CodeRowInvalid
			if errors.Is(err, attribution.ErrUnresolved) {
				code = CodeAttributionUnresolved
			}
			p.errors.add(Issue{Row: row.Line, Field: "seller", Code: code, Message: err.Error()})
			continue
		}
		switch {
		case result.Ambiguous:
			p.warnings.add(Issue{Row: row.Line, Field: "seller", Code: CodeAttributionAmbiguous, Message: fmt.Sprintf("seller %q matches several people (%s); credited to the operator", seller, strings.Join(result.Candidates, ", "))})
		case result.MatchedBy == attribution.MatchFallback && seller != "":
			message := fmt.Sprintf("seller %q not found; credited to the operator", seller)
			if result.Suggestion != "" {
				message += fmt.Sprintf(" (did you mean %q?)", result.Suggestion)
			}
			p.warnings.add(Issue{Row: row.Line, Field: "seller", Code: CodeAttributionFallback, Message: message})
		}

		sale.UserID = result.UserID
		sale.TeamID = result.TeamID
		sale.RegisteredByAdmin = result.RegisteredByAdmin
		if !sale.Attributed() {
			p.invalid++
			p.errors.add(Issue{Row: row.Line, Field: "seller", Code: CodeAttributionUnresolved, Message: "no team resolved"})
			continue
		}

		if sale.Amount.IsZero() {
			p.warnings.add(Issue{Row: row.Line, Field: "amount", Code: CodeAmountZero, Message: "amount is zero"})
		}
		p.sales = append(p.sales, sale)
		p.validRows = append(p.validRows, row.Line)
	}
}

func hasMappedContent(row RawRow, mapping ColumnMapping) bool {
	for _, header := range mapping {
		if !row.Get(header).IsEmpty() {
			return true
		}
	}
	return false
}

func deref(value *string) string {
	if value == nil {
		return ""
	}
	return *value
}

