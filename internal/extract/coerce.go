package extract

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/formbridge/formbridge/internal/schema"
)

// CoercionError reports a raw value that could not be converted to the
// schema-declared type.
type CoercionError struct {
	Type schema.FieldType
	Raw  string
}

func (e *CoercionError) Error() string {
	return fmt.Sprintf("cannot coerce %q to %s", e.Raw, e.Type)
}

var truthy = map[string]struct{}{"true": {}, "yes": {}, "y": {}, "1": {}}
var falsy = map[string]struct{}{"false": {}, "no": {}, "n": {}, "0": {}}

// currency symbols and separators stripped before numeric parsing
const numericNoise = "$€£¥₹, "

// Coerce converts a raw textual value into the schema-declared scalar type.
// Object and array types are never coerced directly; the engine invokes the
// coercer per nested leaf. Pure: same input, same output or same failure.
func Coerce(raw string, t schema.FieldType) (any, error) {
	if !t.IsScalar() {
		return nil, &CoercionError{Type: t, Raw: raw}
	}
	switch t {
	case schema.TypeString:
		return strings.TrimSpace(raw), nil
	case schema.TypeInteger:
		s := stripNumericNoise(raw)
		n, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			return nil, &CoercionError{Type: t, Raw: raw}
		}
		return n, nil
	case schema.TypeNumber:
		s := stripNumericNoise(raw)
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return nil, &CoercionError{Type: t, Raw: raw}
		}
		return f, nil
	case schema.TypeBoolean:
		s := strings.ToLower(strings.TrimSpace(raw))
		if _, ok := truthy[s]; ok {
			return true, nil
		}
		if _, ok := falsy[s]; ok {
			return false, nil
		}
		return nil, &CoercionError{Type: t, Raw: raw}
	default:
		return nil, &CoercionError{Type: t, Raw: raw}
	}
}

func stripNumericNoise(raw string) string {
	s := strings.TrimSpace(raw)
	var b strings.Builder
	for _, r := range s {
		if strings.ContainsRune(numericNoise, r) {
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// FormatValue renders a coerced value back to its canonical string form.
// Coerce(FormatValue(Coerce(v, t)), t) == Coerce(v, t) for successful
// coercions.
func FormatValue(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case int64:
		return strconv.FormatInt(t, 10)
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(t)
	default:
		return fmt.Sprintf("%v", t)
	}
}
