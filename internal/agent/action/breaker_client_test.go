package action

import (
	"context"
	"errors"
	"testing"
	"time"

	"researchagent/internal/agent/admission"
)

func TestBreakerSearchClientPassesThroughOnSuccess(t *testing.T) {
	breakers := admission.NewBreakerRegistry(admission.BreakerParams{FailureThreshold: 2, Window: time.Second, Cooldown: time.Second})
	client := &fakeSearchClient{results: []SearchResult{{Title: "T", URL: "u", Snippet: "s"}}}
	wrapped := NewBreakerSearchClient(client, breakers, "web_search")

	out, err := wrapped.Search(context.Background(), "q", "", 5)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(out) != 1 || out[0].Title != "T" {
		t.Fatalf("expected the inner client's results to pass through, got %v", out)
	}
}

func TestBreakerSearchClientOpensAfterRepeatedFailures(t *testing.T) {
	breakers := admission.NewBreakerRegistry(admission.BreakerParams{FailureThreshold: 2, Window: time.Second, Cooldown: time.Minute})
	client := &fakeSearchClient{err: errors.New("boom")}
	wrapped := NewBreakerSearchClient(client, breakers, "web_search")

	for i := 0; i < 2; i++ {
		if _, err := wrapped.Search(context.Background(), "q", "", 5); err == nil {
			t.Fatal("expected failures to propagate before the breaker opens")
		}
	}

	if state := breakers.State("web_search"); state != "open" {
		t.Fatalf("expected breaker to be open after consecutive failures, got %q", state)
	}

	if _, err := wrapped.Search(context.Background(), "q", "", 5); err == nil {
		t.Fatal("expected an error while the breaker is open")
	}
}
