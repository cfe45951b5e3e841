package extract

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/formbridge/formbridge/constants"
	"github.com/formbridge/formbridge/internal/schema"
)

// Validate walks the schema tree and the reconciled field set together and
// produces the complete error report in schema declaration order. It never
// aborts early; one bad field never hides the rest of the record.
func Validate(def *schema.Definition, fields []ReconciledField) []FieldError {
	idx := make(map[string]ReconciledField, len(fields))
	for _, f := range fields {
		idx[f.Path] = f
	}
	v := &validator{idx: idx}
	v.walkDef("", def)
	return v.errs
}

type validator struct {
	idx  map[string]ReconciledField
	errs []FieldError
}

func (v *validator) walkDef(prefix string, def *schema.Definition) {
	for _, f := range def.Fields {
		v.walkSpec(joinPath(prefix, f.Name), &f.Spec)
	}
}

func (v *validator) walkSpec(path string, spec *schema.FieldSpec) {
	switch spec.Type {
	case schema.TypeObject:
		if spec.Required && !v.anyResolvedUnder(path) {
			v.add(path, constants.ErrMissingRequired, "required object has no resolved fields")
		}
		v.walkDef(path, spec.Fields)
	case schema.TypeArray:
		n := v.observedLen(path)
		if spec.Required && n == 0 {
			v.add(path, constants.ErrMissingRequired, "required array has no elements")
		}
		for i := 0; i < n; i++ {
			v.walkSpec(fmt.Sprintf("%s[%d]", path, i), spec.Items)
		}
	default:
		v.leaf(path, spec)
	}
}

func (v *validator) leaf(path string, spec *schema.FieldSpec) {
	f, ok := v.idx[path]
	if !ok {
		f = ReconciledField{Path: path, Status: constants.FieldMissing}
	}

	switch f.Status {
	case constants.FieldCoercionFailed:
		v.add(path, constants.ErrCoercionFailed, fmt.Sprintf("no candidate coerced to %s", spec.Type))
	case constants.FieldMissing:
		if spec.Required {
			v.add(path, constants.ErrMissingRequired, "required field missing from all sources")
		}
	case constants.FieldConflict:
		v.add(path, constants.ErrConflict,
			fmt.Sprintf("sources disagree; best guess from %s retained", f.Provenance))
		v.checkType(path, spec, f.Value)
	case constants.FieldResolved:
		v.checkType(path, spec, f.Value)
	}
}

// checkType verifies the dynamic type of a reconciled value against the
// declared field type.
func (v *validator) checkType(path string, spec *schema.FieldSpec, value any) {
	ok := false
	switch spec.Type {
	case schema.TypeString:
		_, ok = value.(string)
	case schema.TypeInteger:
		_, ok = value.(int64)
	case schema.TypeNumber:
		switch value.(type) {
		case float64, int64:
			ok = true
		}
	case schema.TypeBoolean:
		_, ok = value.(bool)
	}
	if !ok {
		v.add(path, constants.ErrTypeMismatch,
			fmt.Sprintf("value %v does not conform to %s", value, spec.Type))
	}
}

func (v *validator) anyResolvedUnder(path string) bool {
	for p, f := range v.idx {
		if !strings.HasPrefix(p, path) {
			continue
		}
		rest := p[len(path):]
		if !strings.HasPrefix(rest, ".") && !strings.HasPrefix(rest, "[") {
			continue
		}
		if f.Status == constants.FieldResolved || f.Status == constants.FieldConflict {
			return true
		}
	}
	return false
}

// observedLen derives the element count of an array from the reconciled
// paths, so each observed index is validated independently.
func (v *validator) observedLen(path string) int {
	max := -1
	prefix := path + "["
	for p := range v.idx {
		if !strings.HasPrefix(p, prefix) {
			continue
		}
		rest := p[len(prefix):]
		end := strings.IndexByte(rest, ']')
		if end < 0 {
			continue
		}
		if i, err := strconv.Atoi(rest[:end]); err == nil && i > max {
			max = i
		}
	}
	return max + 1
}

func (v *validator) add(path string, kind constants.ErrorKind, msg string) {
	v.errs = append(v.errs, FieldError{Path: path, Kind: kind, Message: msg})
}
