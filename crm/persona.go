package crm

import (
	"strings"
	"time"
)

const DateLayout = "2006-01-02"

// Persona is a normalized patient record.
type Persona struct {
	ID         int64
	Prontuario *string
	TaxID      *string
	Name       *string
	Email      *string
	Phone      *string
	BirthDate  *time.Time
	Gender     *string
	City       *string
	State      *string
	Origin     *string
	Notes      *string
}

// HasIdentity reports whether the record carries any key the resolver can match on.
func (p Persona) HasIdentity() bool {
	return present(p.Prontuario) || present(p.TaxID)
}

// Skippable reports whether the row carries neither an identifier nor a name.
// Such rows hold no information worth storing.
func (p Persona) Skippable() bool {
	return !p.HasIdentity() && !present(p.Name)
}

// Columns returns every persisted column, nil for absent values. Used for inserts.
func (p Persona) Columns() Columns {
	return Columns{
		"prontuario": stringOrNil(p.Prontuario),
		"cpf":        stringOrNil(p.TaxID),
		"name":       stringOrNil(p.Name),
		"email":      stringOrNil(p.Email),
		"phone":      stringOrNil(p.Phone),
		"birth_date": dateOrNil(p.BirthDate),
		"gender":     stringOrNil(p.Gender),
		"city":       stringOrNil(p.City),
		"state":      stringOrNil(p.State),
		"origin":     stringOrNil(p.Origin),
		"notes":      stringOrNil(p.Notes),
	}
}

// SparseColumns returns only the columns with a non-blank value. Updates
// write this overlay so a blank incoming cell never erases stored data.
func (p Persona) SparseColumns() Columns {
	full := p.Columns()
	sparse := make(Columns, len(full))
	for column, value := range full {
		if value == nil {
			continue
		}
		if text, ok := value.(string); ok && strings.TrimSpace(text) == "" {
			continue
		}
		sparse[column] = value
	}
	return sparse
}

// Overlay copies every present field of other onto p.
func (p *Persona) Overlay(other Persona) {
	overlayString(&p.Prontuario, other.Prontuario)
	overlayString(&p.TaxID, other.TaxID)
	overlayString(&p.Name, other.Name)
	overlayString(&p.Email, other.Email)
	overlayString(&p.Phone, other.Phone)
	if other.BirthDate != nil {
		value := *other.BirthDate
		p.BirthDate = &value
	}
	overlayString(&p.Gender, other.Gender)
	overlayString(&p.City, other.City)
	overlayString(&p.State, other.State)
	overlayString(&p.Origin, other.Origin)
	overlayString(&p.Notes, other.Notes)
}

func overlayString(dst **string, src *string) {
	if !present(src) {
		return
	}
	value := *src
	*dst = &value
}

func present(value *string) bool {
	return value != nil && strings.TrimSpace(*value) != ""
}

func stringOrNil(value *string) any {
	if value == nil {
		return nil
	}
	return *value
}

func dateOrNil(value *time.Time) any {
	if value == nil {
		return nil
	}
	return value.Format(DateLayout)
}

// StringPtr returns a pointer to value; handy for literals in tests and mappers.
func StringPtr(value string) *string {
	return &value
}
