package storage

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/scrypster/voxmemo/pkg/types"
)

var (
	// ErrNotFound indicates that the requested resource was not found.
	ErrNotFound = errors.New("resource not found")

	// ErrInvalidInput indicates that the input parameters are invalid.
	ErrInvalidInput = errors.New("invalid input")
)

// NewMemory builds the record Save inserts: a fresh UUID and the given
// creation time in UTC.
func NewMemory(analysis types.Analysis, transcription string, now time.Time) *types.Memory {
	m := types.NewMemory(analysis, transcription)
	m.ID = uuid.NewString()
	m.CreatedAt = now.UTC()
	return m
}

// ValidateID rejects empty IDs.
func ValidateID(id string) error {
	if id == "" {
		return fmt.Errorf("%w: memory ID is required", ErrInvalidInput)
	}
	return nil
}

// EncodeActionItems serializes action items for the action_items column.
// A nil slice is stored as an empty array.
func EncodeActionItems(items []string) (string, error) {
	if items == nil {
		items = []string{}
	}
	b, err := json.Marshal(items)
	if err != nil {
		return "", fmt.Errorf("failed to encode action items: %w", err)
	}
	return string(b), nil
}

// DecodeActionItems parses the action_items column. Empty input yields an
// empty slice.
func DecodeActionItems(raw []byte) ([]string, error) {
	items := []string{}
	if len(raw) == 0 {
		return items, nil
	}
	if err := json.Unmarshal(raw, &items); err != nil {
		return nil, fmt.Errorf("failed to decode action items: %w", err)
	}
	if items == nil {
		items = []string{}
	}
	return items, nil
}

// FromUnixNano converts a stored created_at value back to UTC time.
func FromUnixNano(ns int64) time.Time {
	return time.Unix(0, ns).UTC()
}
