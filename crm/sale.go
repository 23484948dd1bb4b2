package crm

import (
	"time"

	"github.com/shopspring/decimal"
)

// Sale is a normalized transaction row ("vendas" or "executados").
type Sale struct {
	Date         *time.Time
	Amount       decimal.Decimal
	AmountPaid   decimal.Decimal
	Department   *string
	Procedure    *string
	Quantity     *int64
	Paid         *bool
	SellerName   *string
	PatientName  *string
	PatientTaxID *string
	Prontuario   *string

	UserID            int64
	TeamID            int64
	RegisteredByAdmin bool

	SourceFile string
	SourceRow  int
}

// Attributed reports whether the sale satisfies the persistence invariant:
// a date and a resolved team.
func (s Sale) Attributed() bool {
	return s.Date != nil && s.TeamID > 0
}

func (s Sale) Columns() Columns {
	var quantity any
	if s.Quantity != nil {
		quantity = *s.Quantity
	}
	var paid any
	if s.Paid != nil {
		paid = *s.Paid
	}
	var userID any
	if s.UserID > 0 {
		userID = s.UserID
	}

	return Columns{
		"sale_date":           dateOrNil(s.Date),
		"amount":              s.Amount.StringFixed(2),
		"amount_paid":         s.AmountPaid.StringFixed(2),
		"department":          stringOrNil(s.Department),
		"procedure":           stringOrNil(s.Procedure),
		"quantity":            quantity,
		"paid":                paid,
		"seller_name":         stringOrNil(s.SellerName),
		"patient_name":        stringOrNil(s.PatientName),
		"patient_cpf":         stringOrNil(s.PatientTaxID),
		"prontuario":          stringOrNil(s.Prontuario),
		"user_id":             userID,
		"team_id":             s.TeamID,
		"registered_by_admin": s.RegisteredByAdmin,
		"source_file":         s.SourceFile,
		"source_row":          s.SourceRow,
	}
}
