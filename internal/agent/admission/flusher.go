package admission

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// ConversationMemory is the minimal surface the flusher needs over the
// per-user conversation memory store (spec.md §4.2, §5, §9: "process-wide
// singletons with explicit lifecycle... periodic sweeper task").
type ConversationMemory interface {
	// LastTouched returns when userID's memory was last written/read, and
	// whether any memory is held for that user at all.
	LastTouched(userID string) (time.Time, bool)
	// Clear drops userID's memory entirely.
	Clear(userID string)
	// Users returns every user id currently tracked.
	Users() []string
}

// StaleContextFlusher periodically clears per-user conversation memory
// unused for longer than Idle (default 1h), running every Interval
// (default 30m), per spec.md §4.2.
type StaleContextFlusher struct {
	memory   ConversationMemory
	idle     time.Duration
	interval time.Duration
	logger   *slog.Logger

	stopOnce sync.Once
	stopCh   chan struct{}
}

// DefaultIdle and DefaultInterval are the spec's default parameters.
const (
	DefaultIdle     = time.Hour
	DefaultInterval = 30 * time.Minute
)

// NewStaleContextFlusher creates a flusher. idle/interval of zero fall
// back to the spec's defaults.
func NewStaleContextFlusher(memory ConversationMemory, idle, interval time.Duration, logger *slog.Logger) *StaleContextFlusher {
	if idle <= 0 {
		idle = DefaultIdle
	}
	if interval <= 0 {
		interval = DefaultInterval
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &StaleContextFlusher{
		memory:   memory,
		idle:     idle,
		interval: interval,
		logger:   logger,
		stopCh:   make(chan struct{}),
	}
}

// Run blocks, sweeping every interval until ctx is done or Stop is
// called. Intended to be run in its own goroutine from the composition
// root.
func (f *StaleContextFlusher) Run(ctx context.Context) {
	ticker := time.NewTicker(f.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-f.stopCh:
			return
		case <-ticker.C:
			f.sweepOnce(time.Now())
		}
	}
}

// Stop halts a running Run loop.
func (f *StaleContextFlusher) Stop() {
	f.stopOnce.Do(func() { close(f.stopCh) })
}

func (f *StaleContextFlusher) sweepOnce(now time.Time) {
	for _, userID := range f.memory.Users() {
		last, ok := f.memory.LastTouched(userID)
		if !ok {
			continue
		}
		if now.Sub(last) > f.idle {
			f.memory.Clear(userID)
			f.logger.Info("flushed stale conversation memory", "user_id", userID, "idle_for", now.Sub(last))
		}
	}
}
