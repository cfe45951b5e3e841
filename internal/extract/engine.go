package extract

import (
	"context"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/formbridge/formbridge/constants"
	"github.com/formbridge/formbridge/internal/common"
	"github.com/formbridge/formbridge/internal/schema"
)

// Engine is the top-level entry point: it sequences candidate extraction,
// coercion, reconciliation, and validation for one request. Stateless and
// side-effect-free with respect to its own data.
type Engine struct {
	logger *slog.Logger
	policy Policy
}

func NewEngine(logger *slog.Logger, policy Policy) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	if policy.ProvenanceRank == nil {
		policy = DefaultPolicy()
	}
	return &Engine{logger: logger, policy: policy}
}

// Extract produces a schema-conformant record with per-field status and the
// itemized error report. A well-formed schema always yields a result, even
// when every field ends up missing; emptiness is a reported outcome, not a
// failure.
func (e *Engine) Extract(ctx context.Context, def *schema.Definition, blocks []RawBlock, llmFields map[string]any) *Result {
	start := time.Now()

	leaves := Collect(def, blocks, llmFields)

	fields := make([]ReconciledField, 0, len(leaves))
	for _, leaf := range leaves {
		coerced := make([]FieldCandidate, 0, len(leaf.Candidates))
		hadFailures := false
		for _, cand := range leaf.Candidates {
			v, err := Coerce(cand.Raw, leaf.Type)
			if err != nil {
				hadFailures = true
				e.logger.Debug("extract.coerce_failed",
					"path", leaf.Path, "provenance", cand.Provenance, "raw", cand.Raw, "type", leaf.Type)
				continue
			}
			cand.Value = v
			coerced = append(coerced, cand)
		}
		fields = append(fields, e.policy.Reconcile(leaf.Path, coerced, hadFailures))
	}

	errs := Validate(def, fields)
	record := assembleRecord(def, fields)

	res := &Result{Record: record, Fields: fields, Errors: errs}
	e.logger.Info("extract.done",
		"schema_key", common.SchemaKeyFromContext(ctx),
		"fields", len(fields),
		"errors", len(errs),
		"blocks", len(blocks),
		"llm_keys", len(llmFields),
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return res
}

// assembleRecord builds the schema-shaped value tree from reconciled fields.
// RESOLVED and CONFLICT fields contribute values (best guess is exposed so
// the caller can correct it manually); MISSING and COERCION_FAILED fields
// stay absent.
func assembleRecord(def *schema.Definition, fields []ReconciledField) map[string]any {
	idx := make(map[string]ReconciledField, len(fields))
	for _, f := range fields {
		idx[f.Path] = f
	}
	return assembleObject("", def, idx)
}

func assembleObject(prefix string, def *schema.Definition, idx map[string]ReconciledField) map[string]any {
	out := make(map[string]any)
	for _, f := range def.Fields {
		path := joinPath(prefix, f.Name)
		if v, ok := assembleValue(path, &f.Spec, idx); ok {
			out[f.Name] = v
		}
	}
	return out
}

func assembleValue(path string, spec *schema.FieldSpec, idx map[string]ReconciledField) (any, bool) {
	switch spec.Type {
	case schema.TypeObject:
		obj := assembleObject(path, spec.Fields, idx)
		if len(obj) == 0 {
			return nil, false
		}
		return obj, true
	case schema.TypeArray:
		n := observedArrayLen(path, idx)
		if n == 0 {
			return nil, false
		}
		arr := make([]any, n)
		for i := 0; i < n; i++ {
			if v, ok := assembleValue(path+"["+strconv.Itoa(i)+"]", spec.Items, idx); ok {
				arr[i] = v
			}
		}
		return arr, true
	default:
		f, ok := idx[path]
		if !ok {
			return nil, false
		}
		if f.Status != constants.FieldResolved && f.Status != constants.FieldConflict {
			return nil, false
		}
		return f.Value, true
	}
}

func observedArrayLen(path string, idx map[string]ReconciledField) int {
	max := -1
	prefix := path + "["
	for p := range idx {
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
