package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/scrypster/voxmemo/internal/logging"
	"github.com/scrypster/voxmemo/internal/storage"
	"github.com/scrypster/voxmemo/pkg/types"
)

// MemoryReader reads saved memories. List returns them newest first.
type MemoryReader interface {
	Get(ctx context.Context, id string) (*types.Memory, error)
	List(ctx context.Context) ([]*types.Memory, error)
}

// MemoryDeleter deletes a saved memory. The pipeline controller satisfies it
// so deletions also refresh the published memory list.
type MemoryDeleter interface {
	DeleteMemory(ctx context.Context, id string) error
}

// MemoryHandlers serves the saved memory API.
type MemoryHandlers struct {
	reader  MemoryReader
	deleter MemoryDeleter
	log     *zap.SugaredLogger
}

// NewMemoryHandlers creates a new MemoryHandlers instance.
func NewMemoryHandlers(reader MemoryReader, deleter MemoryDeleter, logger *zap.SugaredLogger) *MemoryHandlers {
	return &MemoryHandlers{
		reader:  reader,
		deleter: deleter,
		log:     logging.OrNop(logger),
	}
}

// ListMemories handles GET /api/memories.
func (h *MemoryHandlers) ListMemories(w http.ResponseWriter, r *http.Request) {
	memories, err := h.reader.List(r.Context())
	if err != nil {
		h.log.Errorw("failed to list memories", "error", err)
		respondError(w, http.StatusInternalServerError, "failed to list memories", err)
		return
	}
	if memories == nil {
		memories = []*types.Memory{}
	}
	respondJSON(w, http.StatusOK, MemoryListResponse{Memories: memories, Total: len(memories)})
}

// GetMemory handles GET /api/memories/{id}.
func (h *MemoryHandlers) GetMemory(w http.ResponseWriter, r *http.Request) {
	memory, err := h.reader.Get(r.Context(), r.PathValue("id"))
	switch {
	case err == nil:
		respondJSON(w, http.StatusOK, memory)
	case errors.Is(err, storage.ErrNotFound):
		respondError(w, http.StatusNotFound, "memory not found", nil)
	case errors.Is(err, storage.ErrInvalidInput):
		respondError(w, http.StatusBadRequest, "invalid memory id", err)
	default:
		h.log.Errorw("failed to get memory", "error", err)
		respondError(w, http.StatusInternalServerError, "failed to get memory", err)
	}
}

// DeleteMemory handles DELETE /api/memories/{id}.
func (h *MemoryHandlers) DeleteMemory(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	err := h.deleter.DeleteMemory(r.Context(), id)
	switch {
	case err == nil:
		w.WriteHeader(http.StatusNoContent)
	case errors.Is(err, storage.ErrNotFound):
		respondError(w, http.StatusNotFound, "memory not found", nil)
	case errors.Is(err, storage.ErrInvalidInput):
		respondError(w, http.StatusBadRequest, "invalid memory id", err)
	default:
		h.log.Errorw("failed to delete memory", "id", id, "error", err)
		respondError(w, http.StatusInternalServerError, "failed to delete memory", err)
	}
}

// respondJSON writes a JSON response with the given status code.
func respondJSON(w http.ResponseWriter, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	// Headers are already sent; nothing useful can be done on failure.
	_ = json.NewEncoder(w).Encode(data)
}

// respondError writes an error response with the given status code.
func respondError(w http.ResponseWriter, statusCode int, message string, err error) {
	errResp := ErrorResponse{
		Error: message,
		Code:  http.StatusText(statusCode),
	}

	if err != nil {
		errResp.Details = map[string]interface{}{
			"error": err.Error(),
		}
	}

	respondJSON(w, statusCode, errResp)
}
