package importer

import "errors"

var (
	// ErrUnreadableSource is returned when a workbook or sheet cannot be read.
	// Nothing is mapped or written after it.
	ErrUnreadableSource = errors.New("unreadable source")
	// ErrMappingIncomplete blocks execution (not validation) while a required
	// field has no source column.
	ErrMappingIncomplete = errors.New("mapping incomplete")
	// ErrImportInProgress is returned when another import holds the service.
	ErrImportInProgress = errors.New("import already in progress")
)

// Row issue codes reported in validation results and import reports.
const (
	CodeRowSkipped            = "row_skipped"
	CodeRowInvalid            = "row_invalid"
	CodeAttributionUnresolved = "attribution_unresolved"
	CodeAttributionAmbiguous  = "attribution_ambiguous"
	CodeAttributionFallback   = "attribution_fallback"
	CodeAmountZero            = "amount_zero"
	CodeTaxIDLength           = "cpf_length"
	CodeDuplicate             = "duplicate"
	CodeBatchWriteFailed      = "batch_write_failed"
)

// Issue is a row-level finding. Row is the 1-based source line; zero for
// findings that concern a whole batch.
type Issue struct {
	Row     int    `json:"row"`
	Field   string `json:"field,omitempty"`
	Code    string `json:"code"`
	Message string `json:"message"`
}
