package extract

import (
	"strings"

	"github.com/formbridge/formbridge/constants"
)

// Policy drives reconciliation when sources disagree. The provenance rank is
// configurable; the default prefers structured and semantic sources over
// free-text scanning.
type Policy struct {
	ProvenanceRank map[constants.Provenance]int
}

// DefaultPolicy returns the LLM > OCR_KV > OCR_TEXT ordering.
func DefaultPolicy() Policy {
	rank := make(map[constants.Provenance]int, len(constants.DefaultProvenanceRank))
	for p, r := range constants.DefaultProvenanceRank {
		rank[p] = r
	}
	return Policy{ProvenanceRank: rank}
}

// PolicyFromOrder builds a Policy from a comma-separated provenance list,
// most trusted first. Unknown names are ignored; an empty or unusable list
// yields the default.
func PolicyFromOrder(order string) Policy {
	parts := strings.Split(order, ",")
	rank := make(map[constants.Provenance]int)
	n := len(parts)
	for i, p := range parts {
		prov := constants.Provenance(strings.TrimSpace(strings.ToUpper(p)))
		if _, known := constants.DefaultProvenanceRank[prov]; known {
			rank[prov] = n - i
		}
	}
	if len(rank) == 0 {
		return DefaultPolicy()
	}
	return Policy{ProvenanceRank: rank}
}

func (p Policy) rank(prov constants.Provenance) int {
	return p.ProvenanceRank[prov]
}

// Reconcile selects the final value for one field from its coerced
// candidates. hadFailures reports whether any candidate existed but failed
// coercion. Pure function of its inputs; fully deterministic.
func (p Policy) Reconcile(path string, coerced []FieldCandidate, hadFailures bool) ReconciledField {
	if len(coerced) == 0 {
		status := constants.FieldMissing
		if hadFailures {
			status = constants.FieldCoercionFailed
		}
		return ReconciledField{Path: path, Status: status}
	}

	if len(coerced) == 1 {
		return ReconciledField{
			Path:       path,
			Value:      coerced[0].Value,
			Status:     constants.FieldResolved,
			Provenance: coerced[0].Provenance,
			Confidence: coerced[0].Confidence,
		}
	}

	bestIdx := 0
	agree := true
	for i, c := range coerced[1:] {
		if !valuesEqual(c.Value, coerced[0].Value) {
			agree = false
		}
		if p.wins(c, coerced[bestIdx]) {
			bestIdx = i + 1
		}
	}

	status := constants.FieldResolved
	if !agree {
		// disagreement is surfaced even though a best guess is chosen
		status = constants.FieldConflict
	}

	var alts []FieldCandidate
	for i, c := range coerced {
		if i != bestIdx {
			alts = append(alts, c)
		}
	}
	best := coerced[bestIdx]
	return ReconciledField{
		Path:         path,
		Value:        best.Value,
		Status:       status,
		Provenance:   best.Provenance,
		Confidence:   best.Confidence,
		Alternatives: alts,
	}
}

// wins reports whether a beats b: strictly higher confidence, then higher
// provenance rank on a tie.
func (p Policy) wins(a, b FieldCandidate) bool {
	if a.Confidence != b.Confidence {
		return a.Confidence > b.Confidence
	}
	return p.rank(a.Provenance) > p.rank(b.Provenance)
}

// valuesEqual compares coerced values: case-insensitive for strings, exact
// for numbers and booleans.
func valuesEqual(a, b any) bool {
	if as, ok := a.(string); ok {
		if bs, ok := b.(string); ok {
			return strings.EqualFold(as, bs)
		}
		return false
	}
	return a == b
}
