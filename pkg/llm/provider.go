package llm

import (
	"context"
	"fmt"
)

// Provider defines the interface for generation backends. Implementations
// handle protocol-specific details such as request formatting, authentication,
// and response parsing.
type Provider interface {
	// Generate sends one generation request and returns the full response.
	Generate(ctx context.Context, req *Request) (*Response, error)
}

// APIError is returned when the backend answers with a non-2xx status. Body
// holds the raw response payload so callers can classify the failure.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("llm: status %d: %s", e.StatusCode, e.Body)
}
