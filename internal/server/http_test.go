package server

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/formbridge/formbridge/internal/export"
	"github.com/formbridge/formbridge/internal/extract"
	"github.com/formbridge/formbridge/internal/schema"
)

const cardSchema = `{
	"contactName": {"type": "string", "required": true},
	"age": {"type": "integer"}
}`

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	srv := NewServer(nil,
		schema.NewMemoryRegistry(nil),
		extract.NewEngine(nil, extract.DefaultPolicy()),
		export.NewService(nil),
		nil,
	)
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	return ts
}

func putSchema(t *testing.T, ts *httptest.Server, key, body string) *http.Response {
	t.Helper()
	req, err := http.NewRequestWithContext(context.Background(), http.MethodPut,
		ts.URL+"/api/schemas/"+key, strings.NewReader(body))
	require.NoError(t, err)
	resp, err := ts.Client().Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { _ = resp.Body.Close() })
	return resp
}

func TestSchemaPutGetRoundTrip(t *testing.T) {
	ts := newTestServer(t)

	resp := putSchema(t, ts, "contact_card", cardSchema)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	get, err := ts.Client().Get(ts.URL + "/api/schemas/contact_card")
	require.NoError(t, err)
	defer get.Body.Close()
	require.Equal(t, http.StatusOK, get.StatusCode)

	var got map[string]any
	require.NoError(t, json.NewDecoder(get.Body).Decode(&got))
	assert.Contains(t, got, "contactName")
	assert.Contains(t, got, "age")
}

func TestSchemaPutRejectsMalformed(t *testing.T) {
	ts := newTestServer(t)

	resp := putSchema(t, ts, "bad", `{"x": {"type": "uuid"}}`)
	assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
}

func TestSchemaPutRejectsBadKey(t *testing.T) {
	ts := newTestServer(t)

	resp := putSchema(t, ts, "bad%20key", cardSchema)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestSchemaGetUnknownKey(t *testing.T) {
	ts := newTestServer(t)

	resp, err := ts.Client().Get(ts.URL + "/api/schemas/nope")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func postExtract(t *testing.T, ts *httptest.Server, body map[string]any) *http.Response {
	t.Helper()
	b, err := json.Marshal(body)
	require.NoError(t, err)
	resp, err := ts.Client().Post(ts.URL+"/api/extract", "application/json", bytes.NewReader(b))
	require.NoError(t, err)
	t.Cleanup(func() { _ = resp.Body.Close() })
	return resp
}

func TestExtractFromOCRText(t *testing.T) {
	ts := newTestServer(t)
	require.Equal(t, http.StatusOK, putSchema(t, ts, "contact_card", cardSchema).StatusCode)

	resp := postExtract(t, ts, map[string]any{
		"schema_key": "contact_card",
		"ocr_text":   "Contact Name: Jane Doe\nAge: 34",
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var out struct {
		SchemaKey string         `json:"schema_key"`
		RawText   string         `json:"raw_text"`
		Record    map[string]any `json:"extracted_form_data"`
		Errors    []any          `json:"errors"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	assert.Equal(t, "contact_card", out.SchemaKey)
	assert.Equal(t, "Jane Doe", out.Record["contactName"])
	assert.Equal(t, float64(34), out.Record["age"]) // JSON numbers decode as float64
	assert.Empty(t, out.Errors)
}

func TestExtractWithLLMFieldsConflict(t *testing.T) {
	ts := newTestServer(t)
	require.Equal(t, http.StatusOK, putSchema(t, ts, "contact_card", cardSchema).StatusCode)

	resp := postExtract(t, ts, map[string]any{
		"schema_key": "contact_card",
		"ocr_text":   "Contact Name: Jane Doe",
		"llm_fields": map[string]any{"contactName": "Jane A. Doe"},
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var out struct {
		Record map[string]any `json:"extracted_form_data"`
		Errors []struct {
			Path string `json:"path"`
			Kind string `json:"kind"`
		} `json:"errors"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	assert.Equal(t, "Jane A. Doe", out.Record["contactName"])
	require.Len(t, out.Errors, 1)
	assert.Equal(t, "ConflictDetected", out.Errors[0].Kind)
}

func TestExtractUnknownSchema(t *testing.T) {
	ts := newTestServer(t)

	resp := postExtract(t, ts, map[string]any{"schema_key": "nope", "ocr_text": "x"})
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestExtractRejectsBadFilename(t *testing.T) {
	ts := newTestServer(t)
	require.Equal(t, http.StatusOK, putSchema(t, ts, "contact_card", cardSchema).StatusCode)

	resp := postExtract(t, ts, map[string]any{
		"schema_key": "contact_card",
		"filename":   "../escape.pdf",
		"ocr_text":   "x",
	})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestExtractMissingSchemaKey(t *testing.T) {
	ts := newTestServer(t)

	resp := postExtract(t, ts, map[string]any{"ocr_text": "x"})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestExtractXLSXDownload(t *testing.T) {
	ts := newTestServer(t)
	require.Equal(t, http.StatusOK, putSchema(t, ts, "contact_card", cardSchema).StatusCode)

	b, _ := json.Marshal(map[string]any{
		"schema_key": "contact_card",
		"ocr_text":   "Contact Name: Jane Doe",
	})
	resp, err := ts.Client().Post(ts.URL+"/api/extract?format=xlsx", "application/json", bytes.NewReader(b))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, resp.Header.Get("Content-Type"), "spreadsheetml")
	assert.Contains(t, resp.Header.Get("Content-Disposition"), "contact_card-review.xlsx")
}

func TestRequestIDEchoed(t *testing.T) {
	ts := newTestServer(t)

	req, err := http.NewRequest(http.MethodGet, ts.URL+"/healthz", nil)
	require.NoError(t, err)
	req.Header.Set("X-Request-Id", "req-123")
	resp, err := ts.Client().Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, "req-123", resp.Header.Get("X-Request-Id"))
}
