// Package textract converts AWS Textract AnalyzeDocument output (FORMS and
// text lines) into the engine's raw block shape. The engine never calls
// Textract itself; it consumes responses the upload pipeline has already
// materialized.
package textract

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/formbridge/formbridge/constants"
	"github.com/formbridge/formbridge/internal/extract"
)

type analyzeOutput struct {
	Blocks []block `json:"Blocks"`
}

type block struct {
	ID            string         `json:"Id"`
	BlockType     string         `json:"BlockType"`
	EntityTypes   []string       `json:"EntityTypes"`
	Text          string         `json:"Text"`
	Confidence    float32        `json:"Confidence"` // Textract reports 0..100
	Relationships []relationship `json:"Relationships"`
}

type relationship struct {
	Type string   `json:"Type"`
	Ids  []string `json:"Ids"`
}

// ParseAnalyzeOutput converts one AnalyzeDocument response into raw blocks:
// LINE blocks become OCR_TEXT, key/value set pairs become OCR_KV. Block order
// follows the response, so line order is preserved for the label heuristic.
func ParseAnalyzeOutput(doc []byte) ([]extract.RawBlock, error) {
	var out analyzeOutput
	if err := json.Unmarshal(doc, &out); err != nil {
		return nil, fmt.Errorf("textract: decode response: %w", err)
	}

	byID := make(map[string]*block, len(out.Blocks))
	for i := range out.Blocks {
		byID[out.Blocks[i].ID] = &out.Blocks[i]
	}

	var blocks []extract.RawBlock
	for i := range out.Blocks {
		b := &out.Blocks[i]
		switch b.BlockType {
		case "LINE":
			if strings.TrimSpace(b.Text) == "" {
				continue
			}
			blocks = append(blocks, extract.RawBlock{
				Provenance: constants.ProvenanceOCRText,
				Text:       b.Text,
				Confidence: b.Confidence / 100,
			})
		case "KEY_VALUE_SET":
			if !hasEntityType(b, "KEY") {
				continue
			}
			key := childText(b, byID)
			value, conf := valueOf(b, byID)
			if strings.TrimSpace(key) == "" || strings.TrimSpace(value) == "" {
				continue
			}
			if b.Confidence/100 < conf {
				conf = b.Confidence / 100
			}
			blocks = append(blocks, extract.RawBlock{
				Provenance: constants.ProvenanceOCRKV,
				Key:        key,
				Text:       value,
				Confidence: conf,
			})
		}
	}
	return blocks, nil
}

func hasEntityType(b *block, t string) bool {
	for _, e := range b.EntityTypes {
		if e == t {
			return true
		}
	}
	return false
}

// childText concatenates the WORD children of a block in order.
func childText(b *block, byID map[string]*block) string {
	var words []string
	for _, rel := range b.Relationships {
		if rel.Type != "CHILD" {
			continue
		}
		for _, id := range rel.Ids {
			if child, ok := byID[id]; ok && child.Text != "" {
				words = append(words, child.Text)
			}
		}
	}
	return strings.Join(words, " ")
}

// valueOf resolves the VALUE side of a KEY block and its confidence.
func valueOf(b *block, byID map[string]*block) (string, float32) {
	for _, rel := range b.Relationships {
		if rel.Type != "VALUE" {
			continue
		}
		for _, id := range rel.Ids {
			v, ok := byID[id]
			if !ok {
				continue
			}
			return childText(v, byID), v.Confidence / 100
		}
	}
	return "", 0
}
