package llm

import (
	"log/slog"
	"strings"
)

// SanitizeFields normalizes the raw LLM mapping before it enters the
// engine: keys are trimmed, null and empty-string values are dropped, and
// a literal "N/A"/"null" string is treated as absent. The mapping's deeper
// shape is left alone; the candidate extractor converts field by field.
func SanitizeFields(m map[string]any, logger *slog.Logger) map[string]any {
	if logger == nil {
		logger = slog.Default()
	}
	if m == nil {
		return nil
	}

	out := make(map[string]any, len(m))
	var dropped []string
	for k, v := range m {
		key := strings.TrimSpace(k)
		if key == "" {
			dropped = append(dropped, "(empty key)")
			continue
		}
		switch t := v.(type) {
		case nil:
			dropped = append(dropped, key+"(null)")
		case string:
			s := strings.TrimSpace(t)
			if s == "" || strings.EqualFold(s, "null") || strings.EqualFold(s, "n/a") {
				dropped = append(dropped, key+"(empty)")
				continue
			}
			out[key] = s
		default:
			out[key] = v
		}
	}
	if len(dropped) > 0 {
		logger.Warn("llm.sanitize.dropped", "fields", dropped)
	}
	return out
}
