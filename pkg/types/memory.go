package types

import "time"

// Memory is one persisted, analyzed voice note (a "memory card").
// It is created only by an explicit save and never mutated afterwards.
type Memory struct {
	ID            string    `json:"id"`            // UUID, unique across the store
	Title         string    `json:"title"`         // Short poetic summary
	Category      string    `json:"category"`      // See Categories
	ActionItems   []string  `json:"action_items"`  // Ordered, possibly empty
	Mood          string    `json:"mood"`          // Free-text sentiment
	Transcription string    `json:"transcription"` // Source text the analysis was built from
	CreatedAt     time.Time `json:"created_at"`    // Immutable after insertion
}

// NewMemory projects an analysis and its source transcription into a Memory.
// The caller assigns ID and CreatedAt.
func NewMemory(analysis Analysis, transcription string) *Memory {
	items := make([]string, len(analysis.ActionItems))
	copy(items, analysis.ActionItems)
	return &Memory{
		Title:         analysis.Title,
		Category:      analysis.Category,
		ActionItems:   items,
		Mood:          analysis.Mood,
		Transcription: transcription,
	}
}
