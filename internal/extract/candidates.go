package extract

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"unicode"

	"github.com/formbridge/formbridge/constants"
	"github.com/formbridge/formbridge/internal/schema"
)

// Leaf is one scalar schema field with every candidate the sources produced
// for it, in schema declaration order (arrays expanded index by index).
type Leaf struct {
	Path       string
	Type       schema.FieldType
	Required   bool
	Candidates []FieldCandidate
}

// Collect walks the schema and gathers candidates per leaf field from three
// sources: the optional LLM mapping, structured OCR key/value blocks, and a
// label heuristic over free OCR text lines. A leaf with zero candidates is
// still emitted; the extractor never fabricates a value.
func Collect(def *schema.Definition, blocks []RawBlock, llmFields map[string]any) []Leaf {
	c := &collector{
		kv:    buildKVIndex(blocks),
		lines: textLines(blocks),
	}
	c.walkDef("", def, llmFields, constants.ConfidenceLLMExact, false)
	return c.leaves
}

type kvEntry struct {
	key   string
	value string
}

type collector struct {
	kv     []kvEntry
	lines  []string
	leaves []Leaf
}

func buildKVIndex(blocks []RawBlock) []kvEntry {
	var out []kvEntry
	for _, b := range blocks {
		if b.Provenance != constants.ProvenanceOCRKV || b.Key == "" {
			continue
		}
		key := strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(b.Key), ":"))
		if key == "" {
			continue
		}
		out = append(out, kvEntry{key: key, value: b.Text})
	}
	return out
}

func textLines(blocks []RawBlock) []string {
	var out []string
	for _, b := range blocks {
		if b.Provenance != constants.ProvenanceOCRText {
			continue
		}
		for _, ln := range strings.Split(b.Text, "\n") {
			out = append(out, ln)
		}
	}
	return out
}

func joinPath(prefix, name string) string {
	if prefix == "" {
		return name
	}
	return prefix + "." + name
}

// walkDef visits one object level. llmScope is the LLM mapping scoped to this
// level (nil when the LLM produced nothing usable here); llmConf carries the
// weakest key-match confidence on the path down, so a case-insensitive parent
// match caps its children.
func (c *collector) walkDef(prefix string, def *schema.Definition, llmScope map[string]any, llmConf float32, inArray bool) {
	for _, f := range def.Fields {
		path := joinPath(prefix, f.Name)
		llmVal, conf := lookupLLM(llmScope, f.Name, llmConf)
		c.walkSpec(path, f.Name, &f.Spec, llmVal, conf, inArray)
	}
}

func (c *collector) walkSpec(path, leaf string, spec *schema.FieldSpec, llmVal any, llmConf float32, inArray bool) {
	switch spec.Type {
	case schema.TypeObject:
		sub, _ := llmVal.(map[string]any)
		c.walkDef(path, spec.Fields, sub, llmConf, inArray)
	case schema.TypeArray:
		c.walkArray(path, spec, llmVal, llmConf)
	default:
		c.scalar(path, leaf, spec, llmVal, llmConf, inArray)
	}
}

func (c *collector) walkArray(path string, spec *schema.FieldSpec, llmVal any, llmConf float32) {
	arr, _ := llmVal.([]any)
	n := len(arr)
	if kvMax := c.maxKVIndex(path); kvMax+1 > n {
		n = kvMax + 1
	}
	for i := 0; i < n; i++ {
		elemPath := fmt.Sprintf("%s[%d]", path, i)
		var elemVal any
		if i < len(arr) {
			elemVal = arr[i]
		}
		c.walkSpec(elemPath, "", spec.Items, elemVal, llmConf, true)
	}
}

var kvIndexRe = regexp.MustCompile(`^\[(\d+)\]`)

// maxKVIndex finds the highest element index mentioned by path-shaped KV
// keys like "crew[2].role", so rows reported only by the OCR backend still
// get walked.
func (c *collector) maxKVIndex(path string) int {
	max := -1
	prefix := strings.ToLower(path)
	for _, e := range c.kv {
		k := strings.ToLower(e.key)
		if !strings.HasPrefix(k, prefix) {
			continue
		}
		m := kvIndexRe.FindStringSubmatch(k[len(prefix):])
		if m == nil {
			continue
		}
		idx, err := strconv.Atoi(m[1])
		if err == nil && idx > max {
			max = idx
		}
	}
	return max
}

func (c *collector) scalar(path, leaf string, spec *schema.FieldSpec, llmVal any, llmConf float32, inArray bool) {
	l := Leaf{Path: path, Type: spec.Type, Required: spec.Required}

	if raw, ok := stringifyScalar(llmVal); ok {
		l.Candidates = append(l.Candidates, FieldCandidate{
			Path:       path,
			Raw:        raw,
			Provenance: constants.ProvenanceLLM,
			Confidence: llmConf,
		})
	}

	if raw, ok := c.lookupKV(path, leaf, inArray); ok {
		l.Candidates = append(l.Candidates, FieldCandidate{
			Path:       path,
			Raw:        raw,
			Provenance: constants.ProvenanceOCRKV,
			Confidence: constants.ConfidenceOCRKV,
		})
	}

	// Free-text scanning cannot tell array rows apart, so it only feeds
	// fields outside arrays.
	if !inArray && leaf != "" {
		if raw, ok := scanLines(c.lines, HumanLabel(leaf)); ok {
			l.Candidates = append(l.Candidates, FieldCandidate{
				Path:       path,
				Raw:        raw,
				Provenance: constants.ProvenanceOCRText,
				Confidence: constants.ConfidenceOCRText,
			})
		}
	}

	c.leaves = append(c.leaves, l)
}

// lookupLLM resolves a field name in the LLM mapping: exact match first,
// then case-insensitive. When several keys are fold-equal to the name the
// lexicographically smallest wins, so the candidate never depends on map
// iteration order. The returned confidence never exceeds the parent's.
func lookupLLM(scope map[string]any, name string, parentConf float32) (any, float32) {
	if scope == nil {
		return nil, parentConf
	}
	if v, ok := scope[name]; ok {
		return v, minConf(parentConf, constants.ConfidenceLLMExact)
	}
	best := ""
	found := false
	for k := range scope {
		if !strings.EqualFold(k, name) {
			continue
		}
		if !found || k < best {
			best = k
			found = true
		}
	}
	if found {
		return scope[best], minConf(parentConf, constants.ConfidenceLLMLoose)
	}
	return nil, parentConf
}

func minConf(a, b float32) float32 {
	if a < b {
		return a
	}
	return b
}

// lookupKV matches structured key/value blocks. Full-path keys win; leaf-name
// matches (exact, then case-insensitive, then label form) are only trusted
// outside arrays where they are unambiguous.
func (c *collector) lookupKV(path, leaf string, inArray bool) (string, bool) {
	for _, e := range c.kv {
		if e.key == path {
			return e.value, true
		}
	}
	for _, e := range c.kv {
		if strings.EqualFold(e.key, path) {
			return e.value, true
		}
	}
	if inArray || leaf == "" {
		return "", false
	}
	for _, e := range c.kv {
		if e.key == leaf {
			return e.value, true
		}
	}
	label := HumanLabel(leaf)
	for _, e := range c.kv {
		if strings.EqualFold(e.key, leaf) || strings.EqualFold(e.key, label) {
			return e.value, true
		}
	}
	return "", false
}

// stringifyScalar renders a loosely-typed LLM value as a raw string for the
// coercer. Maps and slices never stringify; a scalar field fed a composite
// simply gets no LLM candidate.
func stringifyScalar(v any) (string, bool) {
	switch t := v.(type) {
	case nil:
		return "", false
	case string:
		if strings.TrimSpace(t) == "" {
			return "", false
		}
		return t, true
	case json.Number:
		return t.String(), true
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64), true
	case int:
		return strconv.Itoa(t), true
	case int64:
		return strconv.FormatInt(t, 10), true
	case bool:
		return strconv.FormatBool(t), true
	default:
		return "", false
	}
}

// HumanLabel converts a field name to the label a form would print:
// "postalCode" and "postal_code" both become "Postal Code".
func HumanLabel(name string) string {
	var words []string
	var cur []rune
	flush := func() {
		if len(cur) > 0 {
			words = append(words, string(cur))
			cur = nil
		}
	}
	var prev rune
	for _, r := range name {
		switch {
		case r == '_' || r == '-' || r == ' ':
			flush()
		case unicode.IsUpper(r) && prev != 0 && !unicode.IsUpper(prev):
			flush()
			cur = append(cur, r)
		default:
			cur = append(cur, r)
		}
		prev = r
	}
	flush()
	for i, w := range words {
		r := []rune(w)
		r[0] = unicode.ToUpper(r[0])
		words[i] = string(r)
	}
	return strings.Join(words, " ")
}

var labelDelimRe = regexp.MustCompile(`^\s*(:|\t| {2,})\s*`)

// scanLines searches OCR text lines for "<label><delimiter><value>". When the
// remainder after the delimiter is empty the next non-empty line is taken as
// the value.
func scanLines(lines []string, label string) (string, bool) {
	lower := strings.ToLower(label)
	// also accept the squashed form ("PostalCode: 90210")
	squashed := strings.ToLower(strings.ReplaceAll(label, " ", ""))
	for i, line := range lines {
		rest, ok := matchLabel(line, lower)
		if !ok {
			rest, ok = matchLabel(line, squashed)
		}
		if !ok {
			continue
		}
		rest = strings.TrimSpace(rest)
		if rest != "" {
			return rest, true
		}
		for j := i + 1; j < len(lines); j++ {
			next := strings.TrimSpace(lines[j])
			if next != "" {
				return next, true
			}
		}
		return "", false
	}
	return "", false
}

func matchLabel(line, lowerLabel string) (string, bool) {
	trimmed := []rune(strings.TrimSpace(line))
	label := []rune(lowerLabel)
	if len(trimmed) < len(label) {
		return "", false
	}
	if !strings.EqualFold(string(trimmed[:len(label)]), lowerLabel) {
		return "", false
	}
	rest := string(trimmed[len(label):])
	loc := labelDelimRe.FindStringIndex(rest)
	if loc == nil {
		return "", false
	}
	return rest[loc[1]:], true
}
