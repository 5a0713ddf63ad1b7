// Package storage defines the persistence contract for memories and the
// pieces shared by its SQL backends.
package storage

import (
	"context"

	"github.com/scrypster/voxmemo/pkg/types"
)

// MemoryStore persists memories. Records are created only by Save and removed
// only by Delete; nothing else mutates them.
type MemoryStore interface {
	// Save builds a Memory from analysis and transcription, assigns it a
	// fresh ID and creation time, and inserts it. On error nothing is stored.
	Save(ctx context.Context, analysis types.Analysis, transcription string) (*types.Memory, error)

	// Get retrieves a memory by ID.
	// Returns ErrNotFound if the memory doesn't exist.
	Get(ctx context.Context, id string) (*types.Memory, error)

	// List returns every memory, newest first. Memories created in the same
	// instant are ordered by insertion, most recent first.
	List(ctx context.Context) ([]*types.Memory, error)

	// Delete permanently removes a memory.
	// Returns ErrNotFound if the memory doesn't exist.
	Delete(ctx context.Context, id string) error

	// Close releases the underlying connection.
	Close() error
}
