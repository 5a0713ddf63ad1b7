package llm

// ResponsesRequest is the request body for POST /v1/responses.
type ResponsesRequest struct {
	Model string         `json:"model"`
	Input []InputMessage `json:"input"`
	Text  TextConfig     `json:"text"`
}

// InputMessage is one role-tagged input message.
type InputMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// TextConfig selects the output format.
type TextConfig struct {
	Format TextFormat `json:"format"`
}

// TextFormat requests structured output matching Schema.
type TextFormat struct {
	Type   string     `json:"type"`
	Name   string     `json:"name"`
	Schema JSONSchema `json:"schema"`
}

// JSONSchema is the subset of JSON Schema used for structured output.
type JSONSchema struct {
	Type                 string                    `json:"type"`
	Properties           map[string]SchemaProperty `json:"properties"`
	Required             []string                  `json:"required"`
	AdditionalProperties bool                      `json:"additionalProperties"`
}

// SchemaProperty describes one property. Items is set for arrays.
type SchemaProperty struct {
	Type        string          `json:"type"`
	Description string          `json:"description,omitempty"`
	Items       *SchemaProperty `json:"items,omitempty"`
}

// ResponsesResponse is the subset of the Responses API reply that carries
// the generated text.
type ResponsesResponse struct {
	ID     string       `json:"id,omitempty"`
	Output []OutputItem `json:"output"`
}

// OutputItem is one item of the response output.
type OutputItem struct {
	Type    string          `json:"type,omitempty"`
	Content []OutputContent `json:"content"`
}

// OutputContent is one content part. Text is a pointer so a missing field
// can be told apart from an empty string.
type OutputContent struct {
	Type string  `json:"type,omitempty"`
	Text *string `json:"text"`
}

// OutputText returns the text of the first content part of the first
// message item. Reasoning items, which carry no content, are skipped.
func (r *ResponsesResponse) OutputText() (string, bool) {
	if r == nil {
		return "", false
	}
	for _, item := range r.Output {
		if item.Type == "reasoning" {
			continue
		}
		if len(item.Content) == 0 || item.Content[0].Text == nil {
			return "", false
		}
		return *item.Content[0].Text, true
	}
	return "", false
}
