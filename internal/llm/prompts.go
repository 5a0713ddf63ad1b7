// Package llm extracts a structured analysis (title, category, action items,
// mood) from a voice memo transcription using the OpenAI Responses API with a
// strict JSON schema.
package llm

import (
	"fmt"
	"strings"

	"github.com/scrypster/voxmemo/pkg/types"
)

// AnalysisSchemaName is the name of the structured output format.
const AnalysisSchemaName = "transcription_analysis"

// AnalysisSystemPrompt instructs the model how to read a transcription.
const AnalysisSystemPrompt = `You are an assistant that analyzes voice transcriptions and extracts structured information.

The transcription may contain filler words (um, uh, like), repetitions, or minor transcription errors. Filter these out and focus on the actual message.

IMPORTANT: Short or simple messages like "Hello", "Thanks", or "Buy milk" are VALID content, not noise. Only treat transcriptions as unclear if they contain actual nonsensical text that has no recognizable words or meaning.

Respond with JSON only.`

// AnalysisUserPrompt builds the user message carrying the extraction checklist
// and the transcription text verbatim.
func AnalysisUserPrompt(transcription string) string {
	categories := make([]string, len(types.Categories))
	for i, c := range types.Categories {
		categories[i] = string(c)
	}

	return fmt.Sprintf(`Analyze this voice transcription and extract:
- A short poetic title summarizing the content
- A category (%s)
- Action items as specific tasks (only include clear, actionable items). If no action items are found, return an empty array.
- Overall mood/sentiment

Transcription: %s`, strings.Join(categories, ", "), transcription)
}

// AnalysisSchema returns the JSON schema the model's output must satisfy.
func AnalysisSchema() JSONSchema {
	return JSONSchema{
		Type: "object",
		Properties: map[string]SchemaProperty{
			"title": {
				Type:        "string",
				Description: "A short, poetic summary title",
			},
			"category": {
				Type:        "string",
				Description: "Auto-tagging category like Shopping, Learning, Meeting, etc.",
			},
			"action_items": {
				Type:        "array",
				Description: "An array of specific tasks extracted from the transcription",
				Items:       &SchemaProperty{Type: "string"},
			},
			"mood": {
				Type:        "string",
				Description: "A sentiment string describing the overall mood",
			},
		},
		Required:             []string{"title", "category", "action_items", "mood"},
		AdditionalProperties: false,
	}
}

// NewAnalysisRequest builds the request for one transcription. The same
// arguments always produce an equivalent request.
func NewAnalysisRequest(model, transcription string) *ResponsesRequest {
	return &ResponsesRequest{
		Model: model,
		Input: []InputMessage{
			{Role: "system", Content: AnalysisSystemPrompt},
			{Role: "user", Content: AnalysisUserPrompt(transcription)},
		},
		Text: TextConfig{
			Format: TextFormat{
				Type:   "json_schema",
				Name:   AnalysisSchemaName,
				Schema: AnalysisSchema(),
			},
		},
	}
}
