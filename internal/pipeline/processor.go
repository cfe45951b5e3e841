package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/formbridge/formbridge/constants"
	"github.com/formbridge/formbridge/internal/common"
	"github.com/formbridge/formbridge/internal/export"
	"github.com/formbridge/formbridge/internal/extract"
	"github.com/formbridge/formbridge/internal/ingest"
	"github.com/formbridge/formbridge/internal/llm"
	"github.com/formbridge/formbridge/internal/schema"
	"github.com/formbridge/formbridge/internal/textract"
)

// Processor coordinates one artifact drop end to end: load the OCR artifact,
// pick up (or fetch) the LLM candidates, run the extraction engine, and write
// the result artifacts next to the source. The schema key is the artifact's
// parent directory name, so an inbox is laid out as <inbox>/<schema_key>/doc.pdf
// plus its dropped artifacts.
type Processor struct {
	logger   *slog.Logger
	registry schema.Registry
	engine   *extract.Engine
	exporter *export.Service
	fields   llm.FieldSource // optional; nil disables the LLM fallback
}

func NewProcessor(
	logger *slog.Logger,
	registry schema.Registry,
	engine *extract.Engine,
	exporter *export.Service,
	fields llm.FieldSource,
) *Processor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Processor{
		logger:   logger,
		registry: registry,
		engine:   engine,
		exporter: exporter,
		fields:   fields,
	}
}

// ProcessArtifact is the queue-worker entry point.
func (p *Processor) ProcessArtifact(ctx context.Context, path string) error {
	_, err := p.Extract(ctx, path)
	return err
}

// Extract runs the full pipeline for one Textract artifact and returns the
// extraction result. Result artifacts (.result.json and the review workbook)
// are written next to the artifact; an existing result is overwritten.
func (p *Processor) Extract(ctx context.Context, path string) (*extract.Result, error) {
	start := time.Now()

	key := SchemaKeyFor(path)
	if key == "" {
		return nil, fmt.Errorf("no schema key derivable from %q", path)
	}
	ctx = common.WithSchemaKey(ctx, key)

	def, err := p.registry.Get(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("schema %q: %w", key, err)
	}

	doc, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read artifact: %w", err)
	}
	blocks, err := textract.ParseAnalyzeOutput(doc)
	if err != nil {
		return nil, fmt.Errorf("parse artifact %s: %w", filepath.Base(path), err)
	}

	llmFields, err := p.llmFields(ctx, key, def, path, blocks)
	if err != nil {
		// the engine still produces a usable OCR-only result
		p.logger.Warn("pipeline.llm.unavailable", "artifact", path, "error", err)
	}

	res := p.engine.Extract(ctx, def, blocks, llmFields)

	if err := p.writeResults(key, path, res); err != nil {
		return nil, err
	}

	p.logger.Info("pipeline.process.ok",
		"schema_key", key,
		"artifact", filepath.Base(path),
		"content_hash", ingest.FileHash(doc),
		"fields", len(res.Fields),
		"errors", len(res.Errors),
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return res, nil
}

// llmFields loads the sibling LLM artifact if one was dropped, otherwise
// falls back to the configured field source. A fresh fetch is cached as the
// artifact so reprocessing is free.
func (p *Processor) llmFields(ctx context.Context, key string, def *schema.Definition, artifactPath string, blocks []extract.RawBlock) (map[string]any, error) {
	llmPath := ingest.LLMArtifactFor(artifactPath)
	if b, err := os.ReadFile(llmPath); err == nil {
		var m map[string]any
		if err := json.Unmarshal(b, &m); err != nil {
			return nil, fmt.Errorf("parse %s: %w", filepath.Base(llmPath), err)
		}
		return llm.SanitizeFields(m, p.logger), nil
	}

	if p.fields == nil {
		return nil, nil
	}

	req := llm.ExtractRequest{
		SchemaKey:    key,
		Definition:   def,
		OCRText:      joinLines(blocks),
		FilenameHint: strings.TrimSuffix(filepath.Base(artifactPath), constants.TextractArtifactSuffix),
	}
	fields, raw, err := p.fields.ExtractFields(ctx, req)
	if err != nil {
		return nil, err
	}
	if len(raw) > 0 {
		if werr := os.WriteFile(llmPath, raw, 0o644); werr != nil {
			p.logger.Warn("pipeline.llm.cache_failed", "path", llmPath, "error", werr)
		}
	}
	return fields, nil
}

func (p *Processor) writeResults(key, artifactPath string, res *extract.Result) error {
	base := strings.TrimSuffix(artifactPath, constants.TextractArtifactSuffix)

	out, err := json.MarshalIndent(res, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal result: %w", err)
	}
	if err := os.WriteFile(base+constants.ResultArtifactSuffix, out, 0o644); err != nil {
		return fmt.Errorf("write result: %w", err)
	}

	if p.exporter != nil {
		wb, err := p.exporter.ResultXLSX(key, res)
		if err != nil {
			return fmt.Errorf("render review workbook: %w", err)
		}
		if err := os.WriteFile(base+constants.ReviewArtifactSuffix, wb, 0o644); err != nil {
			return fmt.Errorf("write review workbook: %w", err)
		}
	}
	return nil
}

// SchemaKeyFor derives the schema key from an artifact path: the name of the
// directory the artifact sits in.
func SchemaKeyFor(artifactPath string) string {
	dir := filepath.Base(filepath.Dir(artifactPath))
	if dir == "." || dir == string(filepath.Separator) {
		return ""
	}
	return dir
}

func joinLines(blocks []extract.RawBlock) string {
	var b strings.Builder
	for _, blk := range blocks {
		if blk.Provenance != constants.ProvenanceOCRText {
			continue
		}
		if b.Len() > 0 {
			b.WriteByte('\n')
		}
		b.WriteString(blk.Text)
	}
	return b.String()
}
