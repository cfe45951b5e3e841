package constants

// FieldStatus is the terminal state of one schema field after reconciliation.
type FieldStatus string

// Stable values (these exact strings appear in results and exports).
const (
	FieldResolved       FieldStatus = "RESOLVED"        // single agreed value
	FieldConflict       FieldStatus = "CONFLICT"        // sources disagreed; best guess chosen
	FieldMissing        FieldStatus = "MISSING"         // no candidate from any source
	FieldCoercionFailed FieldStatus = "COERCION_FAILED" // candidates existed, none coerced
)

// ErrorKind classifies per-field problems in an extraction report.
type ErrorKind string

const (
	ErrMissingRequired ErrorKind = "MissingRequiredField"
	ErrCoercionFailed  ErrorKind = "CoercionFailed"
	ErrConflict        ErrorKind = "ConflictDetected"
	ErrTypeMismatch    ErrorKind = "TypeMismatch"
)
