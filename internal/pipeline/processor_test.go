package pipeline

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/formbridge/formbridge/constants"
	"github.com/formbridge/formbridge/internal/export"
	"github.com/formbridge/formbridge/internal/extract"
	"github.com/formbridge/formbridge/internal/schema"
)

const contactSchema = `{
	"contactName": {"type": "string", "required": true},
	"age": {"type": "integer"}
}`

const contactArtifact = `{
	"Blocks": [
		{"Id": "l1", "BlockType": "LINE", "Text": "Contact Name: Jane Doe", "Confidence": 99.1},
		{"Id": "l2", "BlockType": "LINE", "Text": "Age: 34", "Confidence": 98.0}
	]
}`

func newTestProcessor(t *testing.T) *Processor {
	t.Helper()
	reg := schema.NewMemoryRegistry(nil)
	def, err := schema.ParseDefinition([]byte(contactSchema))
	require.NoError(t, err)
	require.NoError(t, reg.Put(context.Background(), "contact_card", def))

	engine := extract.NewEngine(nil, extract.DefaultPolicy())
	return NewProcessor(nil, reg, engine, export.NewService(nil), nil)
}

func writeArtifact(t *testing.T, dir string) string {
	t.Helper()
	keyDir := filepath.Join(dir, "contact_card")
	require.NoError(t, os.MkdirAll(keyDir, 0o755))
	path := filepath.Join(keyDir, "card"+constants.TextractArtifactSuffix)
	require.NoError(t, os.WriteFile(path, []byte(contactArtifact), 0o644))
	return path
}

func TestExtractWritesResultArtifacts(t *testing.T) {
	proc := newTestProcessor(t)
	path := writeArtifact(t, t.TempDir())

	res, err := proc.Extract(context.Background(), path)
	require.NoError(t, err)
	assert.Equal(t, "Jane Doe", res.Record["contactName"])
	assert.Equal(t, int64(34), res.Record["age"])
	assert.Empty(t, res.Errors)

	base := filepath.Join(filepath.Dir(path), "card")
	out, err := os.ReadFile(base + constants.ResultArtifactSuffix)
	require.NoError(t, err)
	var stored extract.Result
	require.NoError(t, json.Unmarshal(out, &stored))
	assert.Equal(t, "Jane Doe", stored.Record["contactName"])

	wb, err := os.Stat(base + constants.ReviewArtifactSuffix)
	require.NoError(t, err)
	assert.Greater(t, wb.Size(), int64(0))
}

func TestExtractUsesSiblingLLMArtifact(t *testing.T) {
	proc := newTestProcessor(t)
	path := writeArtifact(t, t.TempDir())

	llmPath := filepath.Join(filepath.Dir(path), "card"+constants.LLMArtifactSuffix)
	require.NoError(t, os.WriteFile(llmPath, []byte(`{"contactName": "Jane A. Doe", "age": 34}`), 0o644))

	res, err := proc.Extract(context.Background(), path)
	require.NoError(t, err)
	// LLM wins the name conflict, and the disagreement is reported
	assert.Equal(t, "Jane A. Doe", res.Record["contactName"])
	var kinds []constants.ErrorKind
	for _, e := range res.Errors {
		kinds = append(kinds, e.Kind)
	}
	assert.Contains(t, kinds, constants.ErrConflict)
}

func TestExtractUnknownSchemaKey(t *testing.T) {
	proc := newTestProcessor(t)
	dir := filepath.Join(t.TempDir(), "no_such_schema")
	require.NoError(t, os.MkdirAll(dir, 0o755))
	path := filepath.Join(dir, "card"+constants.TextractArtifactSuffix)
	require.NoError(t, os.WriteFile(path, []byte(contactArtifact), 0o644))

	_, err := proc.Extract(context.Background(), path)
	require.Error(t, err)
	assert.ErrorIs(t, err, schema.ErrSchemaNotFound)
}

func TestExtractMalformedArtifact(t *testing.T) {
	proc := newTestProcessor(t)
	dir := filepath.Join(t.TempDir(), "contact_card")
	require.NoError(t, os.MkdirAll(dir, 0o755))
	path := filepath.Join(dir, "bad"+constants.TextractArtifactSuffix)
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o644))

	_, err := proc.Extract(context.Background(), path)
	require.Error(t, err)
}

func TestSchemaKeyFor(t *testing.T) {
	assert.Equal(t, "contact_card", SchemaKeyFor("/inbox/contact_card/doc.textract.json"))
	assert.Equal(t, "a", SchemaKeyFor("a/doc.textract.json"))
}
