package llmclient

import (
	"context"

	"researchagent/internal/agent/admission"
)

// BreakerClient wraps a Client so every call is gated by a circuit
// breaker over a named external dependency (spec.md §4.2: "circuit
// breaker per external dependency"). Opening the breaker after repeated
// failures stops the pipeline from hammering a model provider that is
// already down.
type BreakerClient struct {
	inner    Client
	breakers *admission.BreakerRegistry
	name     string
}

// NewBreakerClient wraps inner's calls through breakers under name.
func NewBreakerClient(inner Client, breakers *admission.BreakerRegistry, name string) *BreakerClient {
	return &BreakerClient{inner: inner, breakers: breakers, name: name}
}

// Generate implements Client.
func (b *BreakerClient) Generate(ctx context.Context, req GenerateRequest) (*GenerateResponse, error) {
	out, err := b.breakers.Execute(ctx, b.name, func(ctx context.Context) (interface{}, error) {
		return b.inner.Generate(ctx, req)
	})
	if err != nil {
		return nil, err
	}
	return out.(*GenerateResponse), nil
}

// StreamText implements Client. A streaming call's success/failure
// isn't known until long after it starts, so rather than let the
// breaker classify a whole stream as one outcome, StreamText only
// consults the breaker's current state up front and skips the call
// entirely while it's open.
func (b *BreakerClient) StreamText(ctx context.Context, req GenerateRequest) (<-chan TextDelta, <-chan error) {
	if b.breakers.State(b.name) == "open" {
		deltas := make(chan TextDelta)
		errs := make(chan error, 1)
		close(deltas)
		errs <- admission.ErrCircuitOpen
		close(errs)
		return deltas, errs
	}
	return b.inner.StreamText(ctx, req)
}
