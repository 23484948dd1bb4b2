package importer

import (
	"fmt"
	"sort"
	"strings"

	"clinicsync/crm"

	"github.com/lithammer/fuzzysearch/fuzzy"
)

// FieldKind selects the normalizer applied to a mapped cell.
type FieldKind string

const (
	FieldText     FieldKind = "text"
	FieldCurrency FieldKind = "currency"
	FieldDate     FieldKind = "date"
	FieldTaxID    FieldKind = "tax_id"
	FieldPhone    FieldKind = "phone"
	FieldInteger  FieldKind = "integer"
	FieldBoolean  FieldKind = "boolean"
)

// Alias is an acceptable source header for a field. Lower Priority values
// are tried first.
type Alias struct {
	Header   string
	Priority int
}

type Field struct {
	Name     string
	Kind     FieldKind
	Aliases  []Alias
	Required bool
	Identity bool
}

// Schema is the static field list for one record kind.
type Schema struct {
	Kind   crm.Kind
	Fields []Field
}

func (s Schema) Field(name string) (Field, bool) {
	for _, field := range s.Fields {
		if field.Name == name {
			return field, true
		}
	}
	return Field{}, false
}

func (s Schema) FieldNames() []string {
	names := make([]string, len(s.Fields))
	for i, field := range s.Fields {
		names[i] = field.Name
	}
	return names
}

// orderedAliases returns a copy of the aliases sorted by priority. Equal
// priorities keep declaration order.
func (f Field) orderedAliases() []Alias {
	aliases := append([]Alias(nil), f.Aliases...)
	sort.SliceStable(aliases, func(i, j int) bool {
		return aliases[i].Priority < aliases[j].Priority
	})
	return aliases
}

// ColumnMapping maps a field name to the chosen source header. Unmapped
// fields are absent.
type ColumnMapping map[string]string

func (m ColumnMapping) Header(field string) string {
	return m[field]
}

func (m ColumnMapping) Set(field, header string) {
	if strings.TrimSpace(header) == "" {
		delete(m, field)
		return
	}
	m[field] = header
}

func (m ColumnMapping) Unset(field string) {
	delete(m, field)
}

func (m ColumnMapping) Clone() ColumnMapping {
	clone := make(ColumnMapping, len(m))
	for field, header := range m {
		clone[field] = header
	}
	return clone
}

// Missing lists required fields of schema that have no header.
func (m ColumnMapping) Missing(schema Schema) []string {
	var missing []string
	for _, field := range schema.Fields {
		if field.Required && m.Header(field.Name) == "" {
			missing = append(missing, field.Name)
		}
	}
	return missing
}

// Check verifies that every entry names a known field and an existing header.
func (m ColumnMapping) Check(schema Schema, headers []string) error {
	for field, header := range m {
		if _, ok := schema.Field(field); !ok {
			return fmt.Errorf("unknown field %q for %s", field, schema.Kind)
		}
		if !hasSheet(headers, header) {
			return fmt.Errorf("field %s: header %q not present in sheet", field, header)
		}
	}
	return nil
}

// Require returns ErrMappingIncomplete when a required field is unmapped.
func (m ColumnMapping) Require(schema Schema) error {
	if missing := m.Missing(schema); len(missing) > 0 {
		return fmt.Errorf("%w: %s", ErrMappingIncomplete, strings.Join(missing, ", "))
	}
	return nil
}

// AutoMap proposes a header for every field of schema. Aliases are tried
// in priority order; each alias is compared against every header, first
// exactly (ignoring case, accents and separators) and then as a run of whole
// words inside the header, before the next alias is considered. A header
// that exactly names an alias of another field is never taken by a partial
// match. A header may serve several fields.
func AutoMap(headers []string, schema Schema) ColumnMapping {
	candidates := make([]headerCandidate, len(headers))
	for i, header := range headers {
		candidates[i] = headerCandidate{
			header:     header,
			normalized: normalizeHeader(header),
			words:      headerWords(header),
		}
	}
	owners := exactOwners(schema)

	mapping := make(ColumnMapping, len(schema.Fields))
	for _, field := range schema.Fields {
		if header, ok := matchField(field, candidates, owners); ok {
			mapping[field.Name] = header
		}
	}
	return mapping
}

type headerCandidate struct {
	header     string
	normalized string
	words      []string
}

// exactOwners maps a normalized alias to the fields that list it.
func exactOwners(schema Schema) map[string]map[string]bool {
	owners := make(map[string]map[string]bool)
	for _, field := range schema.Fields {
		for _, alias := range field.Aliases {
			key := normalizeHeader(alias.Header)
			if key == "" {
				continue
			}
			if owners[key] == nil {
				owners[key] = make(map[string]bool)
			}
			owners[key][field.Name] = true
		}
	}
	return owners
}

func matchField(field Field, candidates []headerCandidate, owners map[string]map[string]bool) (string, bool) {
	for _, alias := range field.orderedAliases() {
		want := normalizeHeader(alias.Header)
		if want == "" {
			continue
		}
		for _, candidate := range candidates {
			if candidate.normalized == want {
				return candidate.header, true
			}
		}

		words := headerWords(alias.Header)
		for _, candidate := range candidates {
			if claimedByOther(owners[candidate.normalized], field.Name) {
				continue
			}
			if containsWords(candidate.words, words) {
				return candidate.header, true
			}
		}
	}
	return "", false
}

func claimedByOther(fields map[string]bool, name string) bool {
	for owner := range fields {
		if owner != name {
			return true
		}
	}
	return false
}

// containsWords reports whether want appears as a contiguous run in words.
func containsWords(words, want []string) bool {
	if len(want) == 0 || len(want) > len(words) {
		return false
	}
	for start := 0; start+len(want) <= len(words); start++ {
		matched := true
		for i, word := range want {
			if words[start+i] != word {
				matched = false
				break
			}
		}
		if matched {
			return true
		}
	}
	return false
}

// Suggest ranks headers that fuzzily resemble any alias of field, best first.
func Suggest(schema Schema, field string, headers []string, limit int) []string {
	definition, ok := schema.Field(field)
	if !ok || len(headers) == 0 {
		return nil
	}

	best := make(map[int]int)
	for _, alias := range definition.orderedAliases() {
		for _, rank := range fuzzy.RankFindNormalizedFold(alias.Header, headers) {
			if current, seen := best[rank.OriginalIndex]; !seen || rank.Distance < current {
				best[rank.OriginalIndex] = rank.Distance
			}
		}
		// Headers that are a shortened form of the alias ("Vlr" for "Valor").
		for i, header := range headers {
			if strings.TrimSpace(header) == "" {
				continue
			}
			if fuzzy.MatchNormalizedFold(header, alias.Header) {
				distance := fuzzy.LevenshteinDistance(strings.ToLower(header), strings.ToLower(alias.Header))
				if current, seen := best[i]; !seen || distance < current {
					best[i] = distance
				}
			}
		}
	}

	indexes := make([]int, 0, len(best))
	for index := range best {
		indexes = append(indexes, index)
	}
	sort.Slice(indexes, func(i, j int) bool {
		if best[indexes[i]] != best[indexes[j]] {
			return best[indexes[i]] < best[indexes[j]]
		}
		return indexes[i] < indexes[j]
	})

	if limit > 0 && len(indexes) > limit {
		indexes = indexes[:limit]
	}
	suggestions := make([]string, len(indexes))
	for i, index := range indexes {
		suggestions[i] = headers[index]
	}
	return suggestions
}

func aliases(headers ...string) []Alias {
	out := make([]Alias, len(headers))
	for i, header := range headers {
		out[i] = Alias{Header: header, Priority: i + 1}
	}
	return out
}

// SchemaFor returns the field schema of kind.
func SchemaFor(kind crm.Kind) (Schema, error) {
	switch kind {
	case crm.KindPersona:
		return personaSchema(), nil
	case crm.KindSales:
		return salesSchema(), nil
	case crm.KindExecuted:
		return executedSchema(), nil
	default:
		return Schema{}, fmt.Errorf("no schema for record kind %q", kind)
	}
}

func personaSchema() Schema {
	return Schema{
		Kind: crm.KindPersona,
		Fields: []Field{
			{Name: "prontuario", Kind: FieldText, Identity: true, Aliases: aliases("Prontuário", "Nº Prontuário", "Cód. Paciente", "Código", "ID Paciente")},
			{Name: "cpf", Kind: FieldTaxID, Identity: true, Aliases: aliases("CPF", "CPF Paciente", "Documento", "CPF/CNPJ")},
			{Name: "name", Kind: FieldText, Required: true, Aliases: aliases("Nome", "Nome Completo", "Nome do Paciente", "Paciente", "Cliente")},
			{Name: "email", Kind: FieldText, Aliases: aliases("E-mail", "Email", "Correio Eletrônico")},
			{Name: "phone", Kind: FieldPhone, Aliases: aliases("Celular", "Telefone", "WhatsApp", "Fone")},
			{Name: "birth_date", Kind: FieldDate, Aliases: aliases("Data de Nascimento", "Nascimento", "Data Nasc", "Dt Nasc")},
			{Name: "gender", Kind: FieldText, Aliases: aliases("Sexo", "Gênero")},
			{Name: "city", Kind: FieldText, Aliases: aliases("Cidade", "Município")},
			{Name: "state", Kind: FieldText, Aliases: aliases("UF", "Estado")},
			{Name: "origin", Kind: FieldText, Aliases: aliases("Origem", "Como Conheceu", "Canal", "Mídia")},
			{Name: "notes", Kind: FieldText, Aliases: aliases("Observações", "Observação", "Obs")},
		},
	}
}

func salesSchema() Schema {
	return Schema{
		Kind: crm.KindSales,
		Fields: []Field{
			{Name: "date", Kind: FieldDate, Required: true, Aliases: aliases("Data da Venda", "Data Venda", "Dt Venda", "Data do Orçamento", "Data")},
			// Contracted value outranks what was actually paid.
			{Name: "amount", Kind: FieldCurrency, Required: true, Aliases: aliases("Valor Total", "Valor Vendido", "Valor do Orçamento", "Valor Contratado", "Valor")},
			{Name: "amount_paid", Kind: FieldCurrency, Aliases: aliases("Valor Pago", "Valor Recebido", "Total Pago", "Valor")},
			{Name: "department", Kind: FieldText, Aliases: aliases("Departamento", "Setor", "Unidade", "Especialidade")},
			{Name: "procedure", Kind: FieldText, Aliases: aliases("Procedimento", "Serviço", "Tratamento", "Produto")},
			{Name: "quantity", Kind: FieldInteger, Aliases: aliases("Quantidade", "Qtde", "Qtd")},
			{Name: "paid", Kind: FieldBoolean, Aliases: aliases("Pago", "Quitado", "Status Pagamento")},
			{Name: "seller", Kind: FieldText, Aliases: aliases("Vendedor", "Vendedora", "Consultor", "Consultora", "Responsável", "Atendente")},
			{Name: "patient_name", Kind: FieldText, Aliases: aliases("Nome do Paciente", "Paciente", "Cliente", "Nome")},
			{Name: "patient_cpf", Kind: FieldTaxID, Aliases: aliases("CPF Paciente", "CPF", "CPF/CNPJ")},
			{Name: "prontuario", Kind: FieldText, Aliases: aliases("Prontuário", "Cód. Paciente")},
		},
	}
}

func executedSchema() Schema {
	return Schema{
		Kind: crm.KindExecuted,
		Fields: []Field{
			{Name: "date", Kind: FieldDate, Required: true, Aliases: aliases("Data de Execução", "Data Execução", "Data Realização", "Data do Atendimento", "Data")},
			{Name: "amount", Kind: FieldCurrency, Required: true, Aliases: aliases("Valor Executado", "Valor Total", "Valor Procedimento", "Valor")},
			{Name: "amount_paid", Kind: FieldCurrency, Aliases: aliases("Valor Pago", "Valor Recebido", "Valor")},
			{Name: "department", Kind: FieldText, Aliases: aliases("Departamento", "Setor", "Unidade", "Especialidade")},
			{Name: "procedure", Kind: FieldText, Aliases: aliases("Procedimento", "Serviço", "Tratamento")},
			{Name: "quantity", Kind: FieldInteger, Aliases: aliases("Quantidade", "Qtde", "Qtd")},
			{Name: "paid", Kind: FieldBoolean, Aliases: aliases("Pago", "Quitado")},
			{Name: "seller", Kind: FieldText, Aliases: aliases("Vendedor", "Consultor", "Profissional", "Executante", "Responsável")},
			{Name: "patient_name", Kind: FieldText, Aliases: aliases("Nome do Paciente", "Paciente", "Cliente", "Nome")},
			{Name: "patient_cpf", Kind: FieldTaxID, Aliases: aliases("CPF Paciente", "CPF")},
			{Name: "prontuario", Kind: FieldText, Aliases: aliases("Prontuário", "Cód. Paciente")},
		},
	}
}
