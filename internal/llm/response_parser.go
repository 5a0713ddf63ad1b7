package llm

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/scrypster/voxmemo/pkg/types"
)

// analysisPayload mirrors the schema with pointer fields so absent keys are
// detected instead of defaulting to zero values.
type analysisPayload struct {
	Title       *string   `json:"title"`
	Category    *string   `json:"category"`
	ActionItems *[]string `json:"action_items"`
	Mood        *string   `json:"mood"`
}

// stripCodeFence removes a surrounding markdown code block, which some models
// add despite structured output.
func stripCodeFence(text string) string {
	text = strings.TrimSpace(text)
	if !strings.HasPrefix(text, "```") {
		return text
	}
	text = strings.TrimPrefix(text, "```json")
	text = strings.TrimPrefix(text, "```")
	text = strings.TrimSuffix(text, "```")
	return strings.TrimSpace(text)
}

// ParseAnalysis decodes model output strictly: unknown fields are rejected,
// all four fields are required and action_items must be an array of strings.
func ParseAnalysis(text string) (*types.Analysis, error) {
	dec := json.NewDecoder(bytes.NewReader([]byte(stripCodeFence(text))))
	dec.DisallowUnknownFields()

	var p analysisPayload
	if err := dec.Decode(&p); err != nil {
		return nil, fmt.Errorf("invalid JSON: %w", err)
	}
	if dec.More() {
		return nil, errors.New("invalid JSON: trailing data after object")
	}

	var missing []string
	if p.Title == nil {
		missing = append(missing, "title")
	}
	if p.Category == nil {
		missing = append(missing, "category")
	}
	if p.ActionItems == nil {
		missing = append(missing, "action_items")
	}
	if p.Mood == nil {
		missing = append(missing, "mood")
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("missing required fields: %s", strings.Join(missing, ", "))
	}

	items := make([]string, len(*p.ActionItems))
	copy(items, *p.ActionItems)

	return &types.Analysis{
		Title:       *p.Title,
		Category:    *p.Category,
		ActionItems: items,
		Mood:        *p.Mood,
	}, nil
}
