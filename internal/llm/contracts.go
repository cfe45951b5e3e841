package llm

import (
	"context"

	"github.com/formbridge/formbridge/internal/schema"
)

// ExtractRequest carries everything a field source needs for one document.
type ExtractRequest struct {
	SchemaKey    string
	Definition   *schema.Definition
	OCRText      string
	FilenameHint string
}

// FieldSource produces the optional LLM candidate mapping for one request.
// The engine treats the result as an untyped mapping and never trusts its
// shape beyond single-level key lookup.
type FieldSource interface {
	ExtractFields(ctx context.Context, req ExtractRequest) (map[string]any, []byte /*rawJSON*/, error)
}
