package crm

import (
	"fmt"
	"strings"
)

// Kind identifies one of the fixed record kinds the importer understands.
type Kind string

const (
	KindPersona  Kind = "persona"
	KindSales    Kind = "vendas"
	KindExecuted Kind = "executados"
)

func Kinds() []Kind {
	return []Kind{KindPersona, KindSales, KindExecuted}
}

func ParseKind(value string) (Kind, error) {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "persona", "personas", "patient", "patients", "pacientes":
		return KindPersona, nil
	case "vendas", "sales", "venda":
		return KindSales, nil
	case "executados", "executed", "executado":
		return KindExecuted, nil
	default:
		return "", fmt.Errorf("unsupported record kind: %s (supported: persona, vendas, executados)", value)
	}
}

// Table returns the storage table that holds records of this kind.
func (k Kind) Table() string {
	switch k {
	case KindPersona:
		return "personas"
	case KindSales:
		return "vendas"
	case KindExecuted:
		return "executados"
	default:
		return ""
	}
}

// IsTransaction reports whether records of this kind go through seller attribution.
func (k Kind) IsTransaction() bool {
	return k == KindSales || k == KindExecuted
}

func (k Kind) String() string {
	return string(k)
}

// Columns holds column values keyed by column name, ready for persistence.
type Columns map[string]any
