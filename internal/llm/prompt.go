package llm

import (
	"strings"
)

// BuildSystemPrompt composes the system message: extract the uploaded form's
// fields into JSON matching the supplied schema, nothing more.
func BuildSystemPrompt(req ExtractRequest) string {
	parts := []string{
		"You are a form-data extractor. Return ONLY JSON that matches the provided JSON Schema.",
		"Field values come from the document text; do not invent values.",
		"Never output null. If a field is not present in the document, omit it.",
		"Keep string values exactly as written in the document, trimmed of surrounding whitespace.",
	}
	if req.SchemaKey != "" {
		parts = append(parts, "The target form is registered as '"+req.SchemaKey+"'.")
	}
	return strings.Join(parts, " ")
}

// BuildUserPrompt wraps the OCR text with light provenance hints.
func BuildUserPrompt(ocrText, filenameHint string) string {
	var b strings.Builder
	if filenameHint != "" {
		b.WriteString("Filename: " + filenameHint + "\n\n")
	}
	b.WriteString("Document text:\n")
	b.WriteString(ocrText)
	return b.String()
}
