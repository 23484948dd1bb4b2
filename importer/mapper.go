package importer

import (
	"clinicsync/crm"
)

// cellFor returns the cell mapped to field, empty when the field is unmapped.
func cellFor(row RawRow, mapping ColumnMapping, field string) Cell {
	return row.Get(mapping.Header(field))
}

func textFor(row RawRow, mapping ColumnMapping, field string) *string {
	return NormalizeText(cellFor(row, mapping, field))
}

func taxIDFor(row RawRow, mapping ColumnMapping, field string) *string {
	value := NormalizeTaxID(cellFor(row, mapping, field))
	if value == "" {
		return nil
	}
	return &value
}

// MapPersona normalizes one row into a patient record.
func MapPersona(row RawRow, mapping ColumnMapping) crm.Persona {
	persona := crm.Persona{
		Prontuario: textFor(row, mapping, "prontuario"),
		TaxID:      taxIDFor(row, mapping, "cpf"),
		Name:       textFor(row, mapping, "name"),
		Email:      textFor(row, mapping, "email"),
		BirthDate:  NormalizeDate(cellFor(row, mapping, "birth_date")),
		Gender:     textFor(row, mapping, "gender"),
		City:       textFor(row, mapping, "city"),
		State:      textFor(row, mapping, "state"),
		Origin:     textFor(row, mapping, "origin"),
		Notes:      textFor(row, mapping, "notes"),
	}
	if phone := NormalizePhone(cellFor(row, mapping, "phone")); phone != "" {
		persona.Phone = &phone
	}
	return persona
}

// MapSale normalizes one transaction row. Attribution is left to the caller.
func MapSale(row RawRow, mapping ColumnMapping, sourceFile string) crm.Sale {
	return crm.Sale{
		Date:         NormalizeDate(cellFor(row, mapping, "date")),
		Amount:       NormalizeCurrency(cellFor(row, mapping, "amount")),
		AmountPaid:   NormalizeCurrency(cellFor(row, mapping, "amount_paid")),
		Department:   textFor(row, mapping, "department"),
		Procedure:    textFor(row, mapping, "procedure"),
		Quantity:     NormalizeInteger(cellFor(row, mapping, "quantity")),
		Paid:         NormalizeBoolean(cellFor(row, mapping, "paid")),
		SellerName:   textFor(row, mapping, "seller"),
		PatientName:  textFor(row, mapping, "patient_name"),
		PatientTaxID: taxIDFor(row, mapping, "patient_cpf"),
		Prontuario:   textFor(row, mapping, "prontuario"),
		SourceFile:   sourceFile,
		SourceRow:    row.Line,
	}
}
