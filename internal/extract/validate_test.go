package extract

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/formbridge/formbridge/constants"
)

func TestValidateReportsTypeMismatch(t *testing.T) {
	def := mustParse(t, `{"age": {"type":"integer","required":true}}`)

	fields := []ReconciledField{
		{Path: "age", Value: "thirty", Status: constants.FieldResolved, Provenance: constants.ProvenanceLLM},
	}

	errs := Validate(def, fields)
	require.Len(t, errs, 1)
	assert.Equal(t, "age", errs[0].Path)
	assert.Equal(t, constants.ErrTypeMismatch, errs[0].Kind)
}

func TestValidateTypeMismatchOnConflictValue(t *testing.T) {
	def := mustParse(t, `{"lat": {"type":"number"}}`)

	fields := []ReconciledField{
		{Path: "lat", Value: true, Status: constants.FieldConflict, Provenance: constants.ProvenanceOCRKV},
	}

	errs := Validate(def, fields)
	require.Len(t, errs, 2)
	assert.Equal(t, constants.ErrConflict, errs[0].Kind)
	assert.Equal(t, constants.ErrTypeMismatch, errs[1].Kind)
}

func TestValidateAcceptsConformingValues(t *testing.T) {
	def := mustParse(t, `{
		"name": {"type":"string","required":true},
		"age": {"type":"integer"},
		"score": {"type":"number"},
		"active": {"type":"boolean"}
	}`)

	fields := []ReconciledField{
		{Path: "name", Value: "Jane", Status: constants.FieldResolved},
		{Path: "age", Value: int64(34), Status: constants.FieldResolved},
		{Path: "score", Value: 4.5, Status: constants.FieldResolved},
		{Path: "active", Value: true, Status: constants.FieldResolved},
	}

	assert.Empty(t, Validate(def, fields))
}
