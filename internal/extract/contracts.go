package extract

import (
	"github.com/formbridge/formbridge/constants"
)

// RawBlock is one unit of text or key/value data produced by an OCR or
// document-AI backend. Blocks are immutable inputs to one extraction request
// and are never persisted by the engine.
type RawBlock struct {
	Provenance constants.Provenance `json:"provenance"`
	Key        string               `json:"key,omitempty"`        // set for OCR_KV blocks
	Text       string               `json:"text"`                 // line text, or the value side of a KV pair
	Confidence float32              `json:"confidence,omitempty"` // optional backend hint in [0,1]; 0 means unset
}

// FieldCandidate is one proposed value for one schema field.
type FieldCandidate struct {
	Path       string               `json:"path"`
	Raw        string               `json:"raw"`
	Value      any                  `json:"value,omitempty"` // set after coercion
	Provenance constants.Provenance `json:"provenance"`
	Confidence float32              `json:"confidence"`
}

// ReconciledField is the terminal state of one field after reconciliation.
// Alternatives retains the losing candidates for audit.
type ReconciledField struct {
	Path         string                `json:"path"`
	Value        any                   `json:"value,omitempty"`
	Status       constants.FieldStatus `json:"status"`
	Provenance   constants.Provenance  `json:"provenance,omitempty"`
	Confidence   float32               `json:"confidence,omitempty"`
	Alternatives []FieldCandidate      `json:"alternatives,omitempty"`
}

// FieldError is a structured per-field problem report.
type FieldError struct {
	Path    string              `json:"path"`
	Kind    constants.ErrorKind `json:"kind"`
	Message string              `json:"message"`
}

// Result is the terminal artifact of one extraction request: a schema-shaped
// record of resolved values plus the ordered error report. Constructed once
// by the engine and not mutated afterward.
type Result struct {
	Record map[string]any    `json:"record"`
	Fields []ReconciledField `json:"fields"`
	Errors []FieldError      `json:"errors"`
}
