package llm

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseAnalysis(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    []string
		wantErr string
	}{
		{
			name:  "all fields",
			input: `{"title":"Milk Run","category":"Shopping","action_items":["Buy milk"],"mood":"neutral"}`,
			want:  []string{"Buy milk"},
		},
		{
			name:  "empty action items",
			input: `{"title":"Hello","category":"Personal","action_items":[],"mood":"warm"}`,
			want:  []string{},
		},
		{
			name:  "code fenced",
			input: "```json\n{\"title\":\"t\",\"category\":\"Work\",\"action_items\":[\"a\",\"b\"],\"mood\":\"busy\"}\n```",
			want:  []string{"a", "b"},
		},
		{
			name:    "missing mood",
			input:   `{"title":"Milk Run","category":"Shopping","action_items":["Buy milk"]}`,
			wantErr: "missing required fields: mood",
		},
		{
			name:    "missing several",
			input:   `{"title":"Milk Run"}`,
			wantErr: "missing required fields: category, action_items, mood",
		},
		{
			name:    "null action items",
			input:   `{"title":"t","category":"c","action_items":null,"mood":"m"}`,
			wantErr: "action_items",
		},
		{
			name:    "action items not an array",
			input:   `{"title":"t","category":"c","action_items":"Buy milk","mood":"m"}`,
			wantErr: "invalid JSON",
		},
		{
			name:    "action items not strings",
			input:   `{"title":"t","category":"c","action_items":[1,2],"mood":"m"}`,
			wantErr: "invalid JSON",
		},
		{
			name:    "unknown field",
			input:   `{"title":"t","category":"c","action_items":[],"mood":"m","priority":"high"}`,
			wantErr: "unknown field",
		},
		{
			name:    "trailing data",
			input:   `{"title":"t","category":"c","action_items":[],"mood":"m"} {}`,
			wantErr: "trailing data",
		},
		{
			name:    "not JSON",
			input:   "Sure! Here is the analysis.",
			wantErr: "invalid JSON",
		},
		{
			name:    "empty",
			input:   "",
			wantErr: "invalid JSON",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseAnalysis(tt.input)
			if tt.wantErr != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
				assert.Nil(t, got)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got.ActionItems)
		})
	}
}

func TestParseAnalysis_Fields(t *testing.T) {
	got, err := ParseAnalysis(`{"title":"Milk Run","category":"Shopping","action_items":["Buy milk"],"mood":"neutral"}`)
	require.NoError(t, err)
	assert.Equal(t, "Milk Run", got.Title)
	assert.Equal(t, "Shopping", got.Category)
	assert.Equal(t, "neutral", got.Mood)
}

func TestParseAnalysis_CategoryNotEnforced(t *testing.T) {
	got, err := ParseAnalysis(`{"title":"t","category":"Gardening","action_items":[],"mood":"calm"}`)
	require.NoError(t, err)
	assert.Equal(t, "Gardening", got.Category)
}

func FuzzParseAnalysis(f *testing.F) {
	f.Add(`{"title":"Milk Run","category":"Shopping","action_items":["Buy milk"],"mood":"neutral"}`)
	f.Add("```json\n{}\n```")
	f.Add(`{"title":null}`)
	f.Add(`[]`)

	f.Fuzz(func(t *testing.T, input string) {
		got, err := ParseAnalysis(input)
		if err == nil {
			require.NotNil(t, got)
			require.NotNil(t, got.ActionItems)
		}
	})
}
