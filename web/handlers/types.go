package handlers

import "github.com/scrypster/voxmemo/pkg/types"

// MessageSnapshot is the Message type carrying a pipeline snapshot.
const MessageSnapshot = "snapshot"

// Message is the envelope for every WebSocket message.
type Message struct {
	Type string      `json:"type"`
	Data interface{} `json:"data"`
}

// ErrorResponse is the standard error response format for the API.
type ErrorResponse struct {
	Error   string                 `json:"error"`
	Code    string                 `json:"code"`
	Details map[string]interface{} `json:"details,omitempty"`
}

// MemoryListResponse is the response format for GET /api/memories.
type MemoryListResponse struct {
	Memories []*types.Memory `json:"memories"`
	Total    int             `json:"total"`
}
