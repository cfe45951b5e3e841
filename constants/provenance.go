package constants

// Provenance identifies the origin of a candidate value.
type Provenance string

// Stable values (these exact strings appear in results and exports).
const (
	ProvenanceOCRText Provenance = "OCR_TEXT" // free-text line scan
	ProvenanceOCRKV   Provenance = "OCR_KV"   // structured key/value pair (e.g. Textract forms)
	ProvenanceLLM     Provenance = "LLM"      // language-model extraction
)

// Default candidate confidences per source.
const (
	ConfidenceLLMExact    float32 = 0.9
	ConfidenceLLMLoose    float32 = 0.6
	ConfidenceOCRKV       float32 = 0.75
	ConfidenceOCRText     float32 = 0.5
)

// DefaultProvenanceRank orders sources by trust: structured and semantic
// sources outrank heuristic free-text scanning. Higher wins ties.
var DefaultProvenanceRank = map[Provenance]int{
	ProvenanceLLM:     3,
	ProvenanceOCRKV:   2,
	ProvenanceOCRText: 1,
}
