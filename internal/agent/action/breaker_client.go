package action

import (
	"context"

	"researchagent/internal/agent/admission"
)

// BreakerSearchClient wraps a SearchClient so every call is gated by a
// circuit breaker over a named external dependency (spec.md §4.2).
type BreakerSearchClient struct {
	inner    SearchClient
	breakers *admission.BreakerRegistry
	name     string
}

// NewBreakerSearchClient wraps inner's calls through breakers under name.
func NewBreakerSearchClient(inner SearchClient, breakers *admission.BreakerRegistry, name string) *BreakerSearchClient {
	return &BreakerSearchClient{inner: inner, breakers: breakers, name: name}
}

// Search implements SearchClient.
func (b *BreakerSearchClient) Search(ctx context.Context, query, topic string, maxResults int) ([]SearchResult, error) {
	out, err := b.breakers.Execute(ctx, b.name, func(ctx context.Context) (interface{}, error) {
		return b.inner.Search(ctx, query, topic, maxResults)
	})
	if err != nil {
		return nil, err
	}
	return out.([]SearchResult), nil
}
