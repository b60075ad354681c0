package admission

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/sony/gobreaker"
)

// BreakerParams configures a per-dependency circuit breaker
// (spec.md §4.2: "trip after F consecutive failures within window W;
// open for cooldown T; in half-open, admit one probe").
type BreakerParams struct {
	FailureThreshold uint32
	Window           time.Duration
	Cooldown         time.Duration
}

// BreakerRegistry owns one gobreaker.CircuitBreaker per named external
// dependency (e.g. "llm", "web_search"), created lazily (spec.md §9:
// "process-wide singletons with explicit lifecycle").
type BreakerRegistry struct {
	params BreakerParams

	mu       sync.Mutex
	breakers map[string]*gobreaker.CircuitBreaker
}

// NewBreakerRegistry creates a BreakerRegistry using params for every
// dependency it creates a breaker for.
func NewBreakerRegistry(params BreakerParams) *BreakerRegistry {
	return &BreakerRegistry{
		params:   params,
		breakers: make(map[string]*gobreaker.CircuitBreaker),
	}
}

func (b *BreakerRegistry) breakerFor(name string) *gobreaker.CircuitBreaker {
	b.mu.Lock()
	defer b.mu.Unlock()
	if cb, ok := b.breakers[name]; ok {
		return cb
	}
	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:     name,
		Interval: b.params.Window,
		Timeout:  b.params.Cooldown,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= b.params.FailureThreshold
		},
	})
	b.breakers[name] = cb
	return cb
}

// Execute runs fn through the named dependency's breaker. If the breaker
// is open, fn is not called and ErrCircuitOpen-wrapping gobreaker.ErrOpenState
// is returned (spec.md §4.2, §7: Admitted-Denied → 503 "circuit open").
func (b *BreakerRegistry) Execute(ctx context.Context, name string, fn func(context.Context) (interface{}, error)) (interface{}, error) {
	cb := b.breakerFor(name)
	out, err := cb.Execute(func() (interface{}, error) {
		return fn(ctx)
	})
	if errors.Is(err, gobreaker.ErrOpenState) {
		return nil, fmt.Errorf("%w: %w", ErrCircuitOpen, err)
	}
	return out, err
}

// State returns the current state of the named dependency's breaker
// ("closed", "half-open", "open"), creating it if it doesn't exist yet.
func (b *BreakerRegistry) State(name string) string {
	switch b.breakerFor(name).State() {
	case gobreaker.StateOpen:
		return "open"
	case gobreaker.StateHalfOpen:
		return "half-open"
	default:
		return "closed"
	}
}
