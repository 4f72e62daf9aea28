//go:generate mockgen -destination=mocks/http.go . Sender
package http

import "context"

// Sender defines the interface for issuing one request and reading its response.
type Sender interface {
	// Send writes req over a fresh connection and returns the parsed response.
	// The connection is closed before Send returns.
	Send(ctx context.Context, req *Request) (*Response, error)
}
