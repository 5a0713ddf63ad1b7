package types

// Analysis is the structured extraction returned by the analysis model.
// All four fields are required in the model output; ActionItems may be empty.
type Analysis struct {
	Title       string   `json:"title"`
	Category    string   `json:"category"`
	ActionItems []string `json:"action_items"`
	Mood        string   `json:"mood"`
}

// Transcription is the outcome of recognizing one finished recording.
//
// Success with an empty Text means no speech was detected; it is not an error.
type Transcription struct {
	Text    string `json:"text"`
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
}

// NoSpeech reports whether the transcription succeeded without any words.
func (t Transcription) NoSpeech() bool {
	return t.Success && t.Text == ""
}
