package llm

import "context"

// Responder sends one request to the Responses API.
type Responder interface {
	Create(ctx context.Context, req *ResponsesRequest) (*ResponsesResponse, error)
	// Retry sends req for an explicit user retry. It must not be refused by
	// any client-side throttle that Create applies after repeated failures.
	Retry(ctx context.Context, req *ResponsesRequest) (*ResponsesResponse, error)
	GetModel() string
}
