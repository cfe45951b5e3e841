package openai

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/formbridge/formbridge/internal/llm"
	"github.com/formbridge/formbridge/internal/schema"
)

// ExtractFields implements llm.FieldSource using text-only chat/completions
// with the rendered JSON-Schema as a structured output constraint. Transport
// and shape failures are retried with linear backoff; a response that decodes
// but does not validate against the schema is retried too, and the last
// mapping is returned with a warning when retries are exhausted.
func (c *Client) ExtractFields(ctx context.Context, req llm.ExtractRequest) (map[string]any, []byte, error) {
	rid := uuid.New().String()
	start := time.Now()

	c.logger.Info("llm.extract.start",
		"req_id", rid,
		"model", c.cfg.Model,
		"temp", c.cfg.Temperature,
		"schema_key", req.SchemaKey,
		"text_len", len(req.OCRText),
	)

	constraint := schema.ToJSONSchema(req.Definition)
	sys := llm.BuildSystemPrompt(req)
	user := llm.BuildUserPrompt(req.OCRText, req.FilenameHint)

	body := map[string]any{
		"model":           c.cfg.Model,
		"temperature":     c.cfg.Temperature,
		"response_format": map[string]any{"type": "json_object"},
		"messages": []map[string]any{
			{"role": "system", "content": sys},
			{"role": "user", "content": user + "\n\nReturn ONLY JSON that matches the provided schema."},
			{"role": "system", "content": "JSON Schema:\n" + mustJSON(constraint)},
		},
	}
	endpoint := strings.TrimRight(c.cfg.BaseURL, "/") + "/chat/completions"
	headers := map[string]string{"Authorization": "Bearer " + c.cfg.APIKey}

	var lastErr error
	var lastFields map[string]any
	var lastRaw []byte
	for attempt := 1; attempt <= c.cfg.MaxRetries; attempt++ {
		fields, raw, err := c.once(ctx, rid, endpoint, body, headers)
		if err == nil {
			if verr := schema.ValidateValue(req.Definition, fields); verr != nil {
				c.logger.Warn("llm.extract.schema_mismatch",
					"req_id", rid, "attempt", attempt, "error", verr)
				lastErr, lastFields, lastRaw = verr, fields, raw
			} else {
				c.logger.Info("llm.extract.ok",
					"req_id", rid, "attempt", attempt,
					"fields", len(fields),
					"elapsed_ms", time.Since(start).Milliseconds(),
				)
				return fields, raw, nil
			}
		} else {
			lastErr, lastRaw = err, raw
			c.logger.Error("llm.extract.attempt_failed",
				"req_id", rid, "attempt", attempt, "error", err)
		}

		if attempt < c.cfg.MaxRetries {
			select {
			case <-ctx.Done():
				return nil, lastRaw, ctx.Err()
			case <-time.After(c.cfg.RetryDelay * time.Duration(attempt)):
			}
		}
	}

	// A mapping that merely failed the whole-document check is still usable
	// candidate material; the engine reconciles field by field.
	if lastFields != nil {
		c.logger.Warn("llm.extract.returning_unvalidated",
			"req_id", rid, "error", lastErr,
			"elapsed_ms", time.Since(start).Milliseconds(),
		)
		return lastFields, lastRaw, nil
	}
	return nil, lastRaw, fmt.Errorf("llm extract: max retries exceeded: %w", lastErr)
}

func (c *Client) once(ctx context.Context, rid, endpoint string, body map[string]any, headers map[string]string) (map[string]any, []byte, error) {
	raw, _, err := llm.SendJSON(ctx, c.http, endpoint, body, headers, c.logger)
	if err != nil {
		return nil, raw, err
	}

	var cc struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
	}
	if err := json.Unmarshal(raw, &cc); err != nil {
		return nil, raw, fmt.Errorf("decode openai response: %w", err)
	}
	if len(cc.Choices) == 0 {
		return nil, raw, fmt.Errorf("no choices in openai response")
	}

	content := []byte(strings.TrimSpace(cc.Choices[0].Message.Content))
	var fields map[string]any
	if err := json.Unmarshal(content, &fields); err != nil {
		return nil, content, fmt.Errorf("decode field mapping: %w", err)
	}
	return llm.SanitizeFields(fields, c.logger), content, nil
}

func mustJSON(v any) string {
	b, err := json.Marshal(v)
	if err != nil {
		return "{}"
	}
	return string(b)
}
