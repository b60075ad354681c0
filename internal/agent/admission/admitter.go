package admission

import (
	"context"
	"log/slog"
)

// Admitter composes the rate limiter and active-count gate into the
// single `admit(userId, priority) -> ticket | reject(reason)` contract
// spec.md §4.2 asks for. The circuit breaker is consulted separately by
// callers wrapping individual dependency calls (see BreakerRegistry),
// since it gates per-dependency calls rather than whole requests.
type Admitter struct {
	limiter *RateLimiter
	gate    *Gate
	logger  *slog.Logger
}

// NewAdmitter wires a RateLimiter and Gate into one Admitter.
func NewAdmitter(limiter *RateLimiter, gate *Gate, logger *slog.Logger) *Admitter {
	if logger == nil {
		logger = slog.Default()
	}
	return &Admitter{limiter: limiter, gate: gate, logger: logger}
}

// Admit rejects with ErrRateLimited if userID's token bucket is empty,
// otherwise defers to the Gate.
func (a *Admitter) Admit(ctx context.Context, userID string, priority Priority) (*Ticket, error) {
	if !a.limiter.Allow(userID) {
		a.logger.Warn("admission denied: rate limited", "user_id", userID)
		return nil, ErrRateLimited
	}

	ticket, err := a.gate.Admit(ctx, userID, priority)
	if err != nil {
		a.logger.Warn("admission denied", "user_id", userID, "error", err)
	}
	return ticket, err
}
