package classify

import (
	"context"
	"fmt"
	"strings"

	"clinicsync/crm"
)

// Existing is the identity projection of one stored patient record.
type Existing struct {
	ID         int64
	Prontuario string
	TaxID      string
}

// IdentitySource pages through the identities of stored patient records.
type IdentitySource interface {
	FetchExistingIdentities(ctx context.Context, pageSize, offset int) ([]Existing, error)
}

// Index answers identity lookups in constant time. It is built once per
// import session and never shared between sessions.
type Index struct {
	byProntuario map[string]int64
	byTaxID      map[string]int64
}

func NewIndex() *Index {
	return &Index{
		byProntuario: make(map[string]int64),
		byTaxID:      make(map[string]int64),
	}
}

func BuildIndex(records []Existing) *Index {
	index := NewIndex()
	for _, record := range records {
		index.Add(record.ID, record.Prontuario, record.TaxID)
	}
	return index
}

// LoadIndex reads every identity from source, pageSize rows at a time, until
// a short page signals the end.
func LoadIndex(ctx context.Context, source IdentitySource, pageSize int) (*Index, error) {
	if pageSize <= 0 {
		pageSize = 1000
	}
	index := NewIndex()
	for offset := 0; ; offset += pageSize {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		page, err := source.FetchExistingIdentities(ctx, pageSize, offset)
		if err != nil {
			return nil, fmt.Errorf("fetch existing identities at offset %d: %w", offset, err)
		}
		for _, record := range page {
			index.Add(record.ID, record.Prontuario, record.TaxID)
		}
		if len(page) < pageSize {
			return index, nil
		}
	}
}

// Add registers id under its keys. The first id seen for a key is kept.
func (i *Index) Add(id int64, prontuario, taxID string) {
	if key := prontuarioKey(prontuario); key != "" {
		if _, exists := i.byProntuario[key]; !exists {
			i.byProntuario[key] = id
		}
	}
	if key := TaxIDKey(taxID); key != "" {
		if _, exists := i.byTaxID[key]; !exists {
			i.byTaxID[key] = id
		}
	}
}

func (i *Index) Len() int {
	return len(i.byProntuario) + len(i.byTaxID)
}

type Status int

const (
	StatusNew Status = iota
	StatusExisting
)

func (s Status) String() string {
	if s == StatusExisting {
		return "existing"
	}
	return "new"
}

type Result struct {
	Status    Status
	ID        int64
	MatchedBy string
}

// Classify matches persona against the index: prontuario first, then tax
// id. When the prontuario matches, the tax id is never consulted, even if it
// points at a different record.
func (i *Index) Classify(persona crm.Persona) Result {
	if persona.Prontuario != nil {
		if key := prontuarioKey(*persona.Prontuario); key != "" {
			if id, ok := i.byProntuario[key]; ok {
				return Result{Status: StatusExisting, ID: id, MatchedBy: "prontuario"}
			}
		}
	}
	if persona.TaxID != nil {
		if key := TaxIDKey(*persona.TaxID); key != "" {
			if id, ok := i.byTaxID[key]; ok {
				return Result{Status: StatusExisting, ID: id, MatchedBy: "cpf"}
			}
		}
	}
	return Result{Status: StatusNew}
}

func prontuarioKey(value string) string {
	return strings.TrimSpace(value)
}

// TaxIDKey reduces a tax id to digits, left-padded to 11.
func TaxIDKey(value string) string {
	var b strings.Builder
	for _, r := range value {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	digits := b.String()
	if digits == "" {
		return ""
	}
	if len(digits) < 11 {
		digits = strings.Repeat("0", 11-len(digits)) + digits
	}
	return digits
}
