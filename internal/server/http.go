// Package server exposes the extraction engine and schema registry over a
// small JSON API. Callers upload a schema once, then post OCR payloads (and
// optionally pre-fetched LLM candidates) against its key.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/formbridge/formbridge/constants"
	"github.com/formbridge/formbridge/internal/common"
	"github.com/formbridge/formbridge/internal/export"
	"github.com/formbridge/formbridge/internal/extract"
	"github.com/formbridge/formbridge/internal/ingest"
	"github.com/formbridge/formbridge/internal/llm"
	"github.com/formbridge/formbridge/internal/schema"
	"github.com/formbridge/formbridge/internal/textract"
)

const maxBodyBytes = 10 << 20 // schemas and OCR payloads, not documents

type Server struct {
	logger   *slog.Logger
	registry schema.Registry
	engine   *extract.Engine
	exporter *export.Service
	fields   llm.FieldSource // optional; nil disables use_llm
}

func NewServer(
	logger *slog.Logger,
	registry schema.Registry,
	engine *extract.Engine,
	exporter *export.Service,
	fields llm.FieldSource,
) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		logger:   logger,
		registry: registry,
		engine:   engine,
		exporter: exporter,
		fields:   fields,
	}
}

// Handler builds the route table.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.HandleFunc("PUT /api/schemas/{key}", s.handlePutSchema)
	mux.HandleFunc("GET /api/schemas/{key}", s.handleGetSchema)
	mux.HandleFunc("GET /api/schemas", s.handleListSchemas)
	mux.HandleFunc("POST /api/extract", s.handleExtract)
	return s.withRequestID(mux)
}

func (s *Server) withRequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reqID := r.Header.Get("X-Request-Id")
		if reqID == "" {
			reqID = uuid.NewString()
		}
		w.Header().Set("X-Request-Id", reqID)
		start := time.Now()
		next.ServeHTTP(w, r.WithContext(common.WithRequestID(r.Context(), reqID)))
		s.logger.Info("http.request",
			"method", r.Method, "path", r.URL.Path, "req_id", reqID,
			"elapsed_ms", time.Since(start).Milliseconds())
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handlePutSchema(w http.ResponseWriter, r *http.Request) {
	key := r.PathValue("key")
	v := common.NewValidator()
	v.Field("key", key, common.Required, common.MaxLength(128), common.SchemaKey)
	if v.HasErrors() {
		writeError(w, http.StatusBadRequest, v.Error())
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	def, err := schema.ParseDefinition(body)
	if err != nil {
		writeError(w, http.StatusUnprocessableEntity, err)
		return
	}
	if err := s.registry.Put(common.WithSchemaKey(r.Context(), key), key, def); err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"key": key, "fields": len(def.Fields)})
}

func (s *Server) handleGetSchema(w http.ResponseWriter, r *http.Request) {
	key := r.PathValue("key")
	def, err := s.registry.Get(r.Context(), key)
	if err != nil {
		if errors.Is(err, schema.ErrSchemaNotFound) {
			writeError(w, http.StatusNotFound, err)
		} else {
			writeError(w, http.StatusInternalServerError, err)
		}
		return
	}
	writeJSON(w, http.StatusOK, def)
}

// keyLister is implemented by the sqlite-backed store; the in-memory registry
// does not enumerate.
type keyLister interface {
	Keys(ctx context.Context) ([]string, error)
}

func (s *Server) handleListSchemas(w http.ResponseWriter, r *http.Request) {
	l, ok := s.registry.(keyLister)
	if !ok {
		writeError(w, http.StatusNotImplemented, errors.New("schema listing not supported by this registry"))
		return
	}
	keys, err := l.Keys(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"keys": keys})
}

type extractRequest struct {
	SchemaKey string          `json:"schema_key"`
	Filename  string          `json:"filename,omitempty"`   // source document name, used as an LLM hint
	Textract  json.RawMessage `json:"textract,omitempty"`   // raw AnalyzeDocument response
	OCRText   string          `json:"ocr_text,omitempty"`   // plain text, one line per row
	LLMFields map[string]any  `json:"llm_fields,omitempty"` // pre-fetched candidates
	UseLLM    bool            `json:"use_llm,omitempty"`    // fetch candidates from the configured model
}

type extractResponse struct {
	SchemaKey string                    `json:"schema_key"`
	RawText   string                    `json:"raw_text,omitempty"`
	Record    map[string]any            `json:"extracted_form_data"`
	Fields    []extract.ReconciledField `json:"fields"`
	Errors    []extract.FieldError      `json:"errors"`
}

func (s *Server) handleExtract(w http.ResponseWriter, r *http.Request) {
	var req extractRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if req.SchemaKey == "" {
		writeError(w, http.StatusBadRequest, errors.New("schema_key is required"))
		return
	}
	if req.Filename != "" {
		if err := ingest.ValidateFilename(req.Filename); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
	}

	ctx := common.WithSchemaKey(r.Context(), req.SchemaKey)
	def, err := s.registry.Get(ctx, req.SchemaKey)
	if err != nil {
		if errors.Is(err, schema.ErrSchemaNotFound) {
			writeError(w, http.StatusNotFound, err)
		} else {
			writeError(w, http.StatusInternalServerError, err)
		}
		return
	}

	var blocks []extract.RawBlock
	if len(req.Textract) > 0 {
		parsed, perr := textract.ParseAnalyzeOutput(req.Textract)
		if perr != nil {
			writeError(w, http.StatusUnprocessableEntity, perr)
			return
		}
		blocks = parsed
	}
	rawText := req.OCRText
	for _, line := range strings.Split(req.OCRText, "\n") {
		if strings.TrimSpace(line) == "" {
			continue
		}
		blocks = append(blocks, extract.RawBlock{
			Provenance: constants.ProvenanceOCRText,
			Text:       line,
		})
	}

	llmFields := req.LLMFields
	if llmFields != nil {
		llmFields = llm.SanitizeFields(llmFields, s.logger)
	} else if req.UseLLM {
		if s.fields == nil {
			writeError(w, http.StatusBadRequest, errors.New("use_llm requested but no model is configured"))
			return
		}
		fields, _, ferr := s.fields.ExtractFields(ctx, llm.ExtractRequest{
			SchemaKey:    req.SchemaKey,
			Definition:   def,
			OCRText:      rawText,
			FilenameHint: req.Filename,
		})
		if ferr != nil {
			s.logger.Warn("server.llm.unavailable", "schema_key", req.SchemaKey, "error", ferr)
		} else {
			llmFields = fields
		}
	}

	res := s.engine.Extract(ctx, def, blocks, llmFields)

	if wantsXLSX(r) {
		wb, xerr := s.exporter.ResultXLSX(req.SchemaKey, res)
		if xerr != nil {
			writeError(w, http.StatusInternalServerError, xerr)
			return
		}
		w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
		w.Header().Set("Content-Disposition", `attachment; filename="`+req.SchemaKey+`-review.xlsx"`)
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write(wb)
		return
	}

	writeJSON(w, http.StatusOK, extractResponse{
		SchemaKey: req.SchemaKey,
		RawText:   rawText,
		Record:    res.Record,
		Fields:    res.Fields,
		Errors:    res.Errors,
	})
}

func wantsXLSX(r *http.Request) bool {
	if r.URL.Query().Get("format") == "xlsx" {
		return true
	}
	return strings.Contains(r.Header.Get("Accept"), "spreadsheetml")
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}
