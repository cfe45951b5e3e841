package export

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/formbridge/formbridge/constants"
	"github.com/formbridge/formbridge/internal/extract"
)

func TestResultXLSXSheets(t *testing.T) {
	res := &extract.Result{
		Record: map[string]any{"missionName": "Artemis II"},
		Fields: []extract.ReconciledField{
			{
				Path:       "missionName",
				Value:      "Artemis II",
				Status:     constants.FieldResolved,
				Provenance: constants.ProvenanceLLM,
				Confidence: 0.9,
			},
			{
				Path:       "launchDate",
				Status:     constants.FieldMissing,
			},
		},
		Errors: []extract.FieldError{
			{Path: "launchDate", Kind: constants.ErrMissingRequired, Message: "required field has no usable value"},
		},
	}

	data, err := NewService(nil).ResultXLSX("mission_report", res)
	require.NoError(t, err)
	require.NotEmpty(t, data)

	f, err := excelize.OpenReader(bytes.NewReader(data))
	require.NoError(t, err)
	defer f.Close()

	rows, err := f.GetRows("Fields")
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, "Field Path", rows[0][0])
	assert.Equal(t, "missionName", rows[1][0])
	assert.Equal(t, "Artemis II", rows[1][1])
	assert.Equal(t, "RESOLVED", rows[1][2])
	assert.Equal(t, "LLM", rows[1][3])
	assert.Equal(t, "0.90", rows[1][4])
	assert.Equal(t, "launchDate", rows[2][0])
	assert.Equal(t, "MISSING", rows[2][2])

	errRows, err := f.GetRows("Errors")
	require.NoError(t, err)
	require.Len(t, errRows, 2)
	assert.Equal(t, "launchDate", errRows[1][0])
	assert.Equal(t, "MissingRequiredField", errRows[1][1])
}

func TestResultXLSXAlternatives(t *testing.T) {
	res := &extract.Result{
		Fields: []extract.ReconciledField{
			{
				Path:       "total",
				Value:      int64(42),
				Status:     constants.FieldConflict,
				Provenance: constants.ProvenanceLLM,
				Confidence: 0.9,
				Alternatives: []extract.FieldCandidate{
					{Path: "total", Value: int64(41), Provenance: constants.ProvenanceOCRKV, Confidence: 0.75},
				},
			},
		},
	}

	data, err := NewService(nil).ResultXLSX("invoice", res)
	require.NoError(t, err)

	f, err := excelize.OpenReader(bytes.NewReader(data))
	require.NoError(t, err)
	defer f.Close()

	rows, err := f.GetRows("Fields")
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "CONFLICT", rows[1][2])
	assert.Equal(t, "OCR_KV=41", rows[1][5])
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "abc", truncate("abc", 10))
	assert.Equal(t, "ab…", truncate("abcdef", 3))
	assert.Equal(t, "abcdef", truncate("abcdef", 0))
}
