package schema

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
)

// FieldType is the closed set of types a schema field may declare.
type FieldType string

const (
	TypeString  FieldType = "string"
	TypeInteger FieldType = "integer"
	TypeNumber  FieldType = "number"
	TypeBoolean FieldType = "boolean"
	TypeObject  FieldType = "object"
	TypeArray   FieldType = "array"
)

var validTypes = map[FieldType]struct{}{
	TypeString:  {},
	TypeInteger: {},
	TypeNumber:  {},
	TypeBoolean: {},
	TypeObject:  {},
	TypeArray:   {},
}

// FieldSpec describes one schema field. Object fields carry a nested
// Definition; array fields carry an element spec. Specs are immutable after
// parse.
type FieldSpec struct {
	Type     FieldType
	Required bool
	Fields   *Definition // object only
	Items    *FieldSpec  // array only
}

// Field pairs a name with its spec, preserving declaration order.
type Field struct {
	Name string
	Spec FieldSpec
}

// Definition is an ordered mapping from field name to FieldSpec. Names are
// unique within one level; nesting is a tree by construction.
type Definition struct {
	Fields []Field
}

// ParseDefinition parses an uploaded schema document. The document is a JSON
// object mapping field names to specs, e.g.
//
//	{"age": {"type": "integer", "required": true}}
//
// Object specs nest another mapping under "fields"; array specs carry the
// element spec under "items". Unknown type tags and duplicate names are
// rejected here, not at extraction time.
func ParseDefinition(doc []byte) (*Definition, error) {
	dec := json.NewDecoder(bytes.NewReader(doc))
	dec.UseNumber()
	def, err := parseMapping(dec)
	if err != nil {
		return nil, err
	}
	// trailing content after the root object is malformed input
	if dec.More() {
		return nil, fmt.Errorf("schema: trailing content after definition")
	}
	return def, nil
}

func parseMapping(dec *json.Decoder) (*Definition, error) {
	tok, err := dec.Token()
	if err != nil {
		return nil, fmt.Errorf("schema: %w", err)
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return nil, fmt.Errorf("schema: expected object, got %v", tok)
	}

	def := &Definition{}
	seen := map[string]struct{}{}
	for dec.More() {
		keyTok, err := dec.Token()
		if err != nil {
			return nil, fmt.Errorf("schema: %w", err)
		}
		name := keyTok.(string)
		if strings.TrimSpace(name) == "" {
			return nil, fmt.Errorf("schema: empty field name")
		}
		if _, dup := seen[name]; dup {
			return nil, fmt.Errorf("schema: duplicate field %q", name)
		}
		seen[name] = struct{}{}

		spec, err := parseSpec(dec, name)
		if err != nil {
			return nil, err
		}
		def.Fields = append(def.Fields, Field{Name: name, Spec: *spec})
	}
	if _, err := dec.Token(); err != nil { // closing '}'
		return nil, fmt.Errorf("schema: %w", err)
	}
	return def, nil
}

func parseSpec(dec *json.Decoder, name string) (*FieldSpec, error) {
	tok, err := dec.Token()
	if err != nil {
		return nil, fmt.Errorf("schema: field %q: %w", name, err)
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return nil, fmt.Errorf("schema: field %q: spec must be an object", name)
	}

	spec := &FieldSpec{}
	for dec.More() {
		keyTok, err := dec.Token()
		if err != nil {
			return nil, fmt.Errorf("schema: field %q: %w", name, err)
		}
		switch key := keyTok.(string); key {
		case "type":
			v, err := dec.Token()
			if err != nil {
				return nil, fmt.Errorf("schema: field %q: %w", name, err)
			}
			s, ok := v.(string)
			if !ok {
				return nil, fmt.Errorf("schema: field %q: type must be a string", name)
			}
			t := FieldType(s)
			if _, ok := validTypes[t]; !ok {
				return nil, fmt.Errorf("schema: field %q: unknown type %q", name, s)
			}
			spec.Type = t
		case "required":
			v, err := dec.Token()
			if err != nil {
				return nil, fmt.Errorf("schema: field %q: %w", name, err)
			}
			b, ok := v.(bool)
			if !ok {
				return nil, fmt.Errorf("schema: field %q: required must be a boolean", name)
			}
			spec.Required = b
		case "fields":
			nested, err := parseMapping(dec)
			if err != nil {
				return nil, fmt.Errorf("schema: field %q: %w", name, err)
			}
			spec.Fields = nested
		case "items":
			item, err := parseSpec(dec, name+"[]")
			if err != nil {
				return nil, err
			}
			spec.Items = item
		default:
			return nil, fmt.Errorf("schema: field %q: unknown key %q", name, key)
		}
	}
	if _, err := dec.Token(); err != nil { // closing '}'
		return nil, fmt.Errorf("schema: field %q: %w", name, err)
	}

	if spec.Type == "" {
		return nil, fmt.Errorf("schema: field %q: missing type", name)
	}
	switch spec.Type {
	case TypeObject:
		if spec.Fields == nil || len(spec.Fields.Fields) == 0 {
			return nil, fmt.Errorf("schema: field %q: object requires nested fields", name)
		}
		if spec.Items != nil {
			return nil, fmt.Errorf("schema: field %q: object cannot declare items", name)
		}
	case TypeArray:
		if spec.Items == nil {
			return nil, fmt.Errorf("schema: field %q: array requires items", name)
		}
		if spec.Fields != nil {
			return nil, fmt.Errorf("schema: field %q: array cannot declare fields", name)
		}
	default:
		if spec.Fields != nil || spec.Items != nil {
			return nil, fmt.Errorf("schema: field %q: scalar cannot nest", name)
		}
	}
	return spec, nil
}

// MarshalJSON renders the definition back to the upload format, preserving
// declaration order. Round-trips with ParseDefinition.
func (d *Definition) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	if err := writeMapping(&buf, d); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func writeMapping(buf *bytes.Buffer, def *Definition) error {
	buf.WriteByte('{')
	for i, f := range def.Fields {
		if i > 0 {
			buf.WriteByte(',')
		}
		nb, err := json.Marshal(f.Name)
		if err != nil {
			return err
		}
		buf.Write(nb)
		buf.WriteByte(':')
		if err := writeSpec(buf, &f.Spec); err != nil {
			return err
		}
	}
	buf.WriteByte('}')
	return nil
}

func writeSpec(buf *bytes.Buffer, spec *FieldSpec) error {
	buf.WriteByte('{')
	fmt.Fprintf(buf, `"type":%q`, spec.Type)
	if spec.Required {
		buf.WriteString(`,"required":true`)
	}
	if spec.Fields != nil {
		buf.WriteString(`,"fields":`)
		if err := writeMapping(buf, spec.Fields); err != nil {
			return err
		}
	}
	if spec.Items != nil {
		buf.WriteString(`,"items":`)
		if err := writeSpec(buf, spec.Items); err != nil {
			return err
		}
	}
	buf.WriteByte('}')
	return nil
}

// IsScalar reports whether the type is a leaf (coercible) type.
func (t FieldType) IsScalar() bool {
	return t != TypeObject && t != TypeArray
}
