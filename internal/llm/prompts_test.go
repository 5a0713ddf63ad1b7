package llm

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewAnalysisRequest_Shape(t *testing.T) {
	req := NewAnalysisRequest("gpt-4o-mini", "Buy milk")

	raw, err := json.Marshal(req)
	require.NoError(t, err)

	var body map[string]any
	require.NoError(t, json.Unmarshal(raw, &body))
	assert.Equal(t, "gpt-4o-mini", body["model"])

	input := body["input"].([]any)
	require.Len(t, input, 2)
	assert.Equal(t, "system", input[0].(map[string]any)["role"])
	assert.Equal(t, "user", input[1].(map[string]any)["role"])

	format := body["text"].(map[string]any)["format"].(map[string]any)
	assert.Equal(t, "json_schema", format["type"])
	assert.Equal(t, "transcription_analysis", format["name"])

	schema := format["schema"].(map[string]any)
	assert.Equal(t, "object", schema["type"])
	assert.Equal(t, false, schema["additionalProperties"])
	assert.ElementsMatch(t, []any{"title", "category", "action_items", "mood"}, schema["required"])

	props := schema["properties"].(map[string]any)
	assert.Len(t, props, 4)
	items := props["action_items"].(map[string]any)
	assert.Equal(t, "array", items["type"])
	assert.Equal(t, "string", items["items"].(map[string]any)["type"])
}

func TestAnalysisUserPrompt_ContainsTranscriptionVerbatim(t *testing.T) {
	text := `Buy milk, and "eggs" too`
	prompt := AnalysisUserPrompt(text)

	assert.True(t, strings.HasSuffix(prompt, "Transcription: "+text))
	for _, c := range []string{"Shopping", "Learning", "Meeting", "Personal", "Work", "Health", "Travel", "Entertainment"} {
		assert.Contains(t, prompt, c)
	}
}

func TestAnalysisSystemPrompt_TreatsShortUtterancesAsContent(t *testing.T) {
	assert.Contains(t, AnalysisSystemPrompt, `"Buy milk"`)
	assert.Contains(t, AnalysisSystemPrompt, "filler words")
}

func TestNewAnalysisRequest_Deterministic(t *testing.T) {
	a, err := json.Marshal(NewAnalysisRequest("m", "call mom"))
	require.NoError(t, err)
	b, err := json.Marshal(NewAnalysisRequest("m", "call mom"))
	require.NoError(t, err)
	assert.JSONEq(t, string(a), string(b))
}

func TestOutputText(t *testing.T) {
	text := "hello"
	empty := ""

	tests := []struct {
		name   string
		resp   *ResponsesResponse
		want   string
		wantOK bool
	}{
		{"nil response", nil, "", false},
		{"no output", &ResponsesResponse{}, "", false},
		{"no content", &ResponsesResponse{Output: []OutputItem{{Type: "message"}}}, "", false},
		{"text missing", &ResponsesResponse{Output: []OutputItem{{Content: []OutputContent{{Type: "output_text"}}}}}, "", false},
		{"text present", &ResponsesResponse{Output: []OutputItem{{Content: []OutputContent{{Text: &text}}}}}, "hello", true},
		{"empty text present", &ResponsesResponse{Output: []OutputItem{{Content: []OutputContent{{Text: &empty}}}}}, "", true},
		{"reasoning skipped", &ResponsesResponse{Output: []OutputItem{
			{Type: "reasoning"},
			{Type: "message", Content: []OutputContent{{Text: &text}}},
		}}, "hello", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := tt.resp.OutputText()
			assert.Equal(t, tt.wantOK, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}
