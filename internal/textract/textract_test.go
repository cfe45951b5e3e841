package textract

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/formbridge/formbridge/constants"
)

const sampleResponse = `{
  "Blocks": [
    {"Id": "p1", "BlockType": "PAGE"},
    {"Id": "l1", "BlockType": "LINE", "Text": "Organisation Name: Global Innovations", "Confidence": 98.2},
    {"Id": "l2", "BlockType": "LINE", "Text": "Postal Code: 90210", "Confidence": 91.0},
    {"Id": "k1", "BlockType": "KEY_VALUE_SET", "EntityTypes": ["KEY"], "Confidence": 95.0,
      "Relationships": [
        {"Type": "VALUE", "Ids": ["v1"]},
        {"Type": "CHILD", "Ids": ["w1", "w2"]}
      ]},
    {"Id": "v1", "BlockType": "KEY_VALUE_SET", "EntityTypes": ["VALUE"], "Confidence": 93.0,
      "Relationships": [{"Type": "CHILD", "Ids": ["w3"]}]},
    {"Id": "w1", "BlockType": "WORD", "Text": "Contact"},
    {"Id": "w2", "BlockType": "WORD", "Text": "Person:"},
    {"Id": "w3", "BlockType": "WORD", "Text": "Jane"},
    {"Id": "k2", "BlockType": "KEY_VALUE_SET", "EntityTypes": ["KEY"], "Confidence": 90.0,
      "Relationships": [{"Type": "CHILD", "Ids": ["w1"]}]}
  ]
}`

func TestParseAnalyzeOutput(t *testing.T) {
	blocks, err := ParseAnalyzeOutput([]byte(sampleResponse))
	require.NoError(t, err)

	// two lines plus one complete KV pair; the valueless key k2 is dropped
	require.Len(t, blocks, 3)

	assert.Equal(t, constants.ProvenanceOCRText, blocks[0].Provenance)
	assert.Equal(t, "Organisation Name: Global Innovations", blocks[0].Text)
	assert.InDelta(t, 0.982, blocks[0].Confidence, 0.001)

	kv := blocks[2]
	assert.Equal(t, constants.ProvenanceOCRKV, kv.Provenance)
	assert.Equal(t, "Contact Person:", kv.Key)
	assert.Equal(t, "Jane", kv.Text)
	// pair confidence is the weaker of key and value
	assert.InDelta(t, 0.93, kv.Confidence, 0.001)
}

func TestParseAnalyzeOutputRejectsGarbage(t *testing.T) {
	_, err := ParseAnalyzeOutput([]byte("not json"))
	assert.Error(t, err)
}

func TestParseAnalyzeOutputEmpty(t *testing.T) {
	blocks, err := ParseAnalyzeOutput([]byte(`{"Blocks": []}`))
	require.NoError(t, err)
	assert.Empty(t, blocks)
}
