package admission

import (
	"container/heap"
	"context"
	"errors"
	"sync"
	"time"
)

// Priority orders queued requests: follow-ups are served ahead of fresh
// queries (spec.md §4.2).
type Priority int

const (
	PriorityFreshQuery Priority = 0
	PriorityFollowUp   Priority = 1
)

// ErrRateLimited is returned by Admit when the user's token bucket is
// empty (spec.md §4.2, §7: Admitted-Denied → 429).
var ErrRateLimited = errors.New("admission: rate limited")

// ErrUserAtCapacity is returned when the user already holds M_user
// active requests; such a request is rejected without being queued.
var ErrUserAtCapacity = errors.New("admission: user active-request limit reached")

// ErrQueueFull is returned when the bounded global priority queue is at
// Q_max (spec.md §4.2, §7: Admitted-Denied → 503 "queue full").
var ErrQueueFull = errors.New("admission: queue full")

// ErrCircuitOpen is returned by breaker-gated dependency calls
// (BreakerRegistry.Execute, llmclient.BreakerClient.StreamText) while that
// dependency's breaker is open. Admit itself never returns it.
var ErrCircuitOpen = errors.New("admission: circuit open")

// Params configures the Gate (spec.md §4.2, §6 "Configuration surface").
type Params struct {
	MaxActivePerUser int // M_user
	MaxActiveGlobal  int // M_global
	MaxQueueDepth    int // Q_max
}

// Ticket is the opaque admission capability; callers must call Release
// exactly once when the request completes, success or failure
// (spec.md §4.2).
type Ticket struct {
	userID string
	gate   *Gate
}

// Release recounts the gate so a subsequent Admit call can succeed.
func (t *Ticket) Release() {
	if t == nil || t.gate == nil {
		return
	}
	t.gate.release(t.userID)
}

type queueItem struct {
	userID    string
	priority  Priority
	enqueueAt time.Time
	ready     chan *Ticket
	index     int
}

// priorityQueue orders by priority desc, then FIFO by enqueue time
// (spec.md §4.2: "ordered first by priority ... then FIFO by enqueue
// timestamp").
type priorityQueue []*queueItem

func (pq priorityQueue) Len() int { return len(pq) }
func (pq priorityQueue) Less(i, j int) bool {
	if pq[i].priority != pq[j].priority {
		return pq[i].priority > pq[j].priority
	}
	return pq[i].enqueueAt.Before(pq[j].enqueueAt)
}
func (pq priorityQueue) Swap(i, j int) {
	pq[i], pq[j] = pq[j], pq[i]
	pq[i].index, pq[j].index = i, j
}
func (pq *priorityQueue) Push(x interface{}) {
	item := x.(*queueItem)
	item.index = len(*pq)
	*pq = append(*pq, item)
}
func (pq *priorityQueue) Pop() interface{} {
	old := *pq
	n := len(old)
	item := old[n-1]
	old[n-1] = nil
	item.index = -1
	*pq = old[:n-1]
	return item
}

// Gate enforces the per-user active-count limit and the bounded global
// priority queue on top of it (spec.md §4.2).
//
// Admit-vs-queue ordering decision (DESIGN.md Open Question 3): the
// per-user gate is checked before the global queue is consulted, so a
// user already at MaxActivePerUser is rejected outright rather than
// queued, even if the global queue has room.
type Gate struct {
	params Params

	mu          sync.Mutex
	activeGlobal int
	activePerUser map[string]int
	queue        priorityQueue
}

// NewGate creates a Gate with the given params.
func NewGate(params Params) *Gate {
	return &Gate{
		params:        params,
		activePerUser: make(map[string]int),
	}
}

// Admit attempts to admit userID immediately, or enqueues it if global
// processing is at capacity, or rejects it (spec.md §4.2).
//
// If the queue is already full, Admit returns ErrQueueFull without
// blocking. Once queued, it blocks until a slot frees up or ctx is
// cancelled.
func (g *Gate) Admit(ctx context.Context, userID string, priority Priority) (*Ticket, error) {
	g.mu.Lock()

	if g.activePerUser[userID] >= g.params.MaxActivePerUser {
		g.mu.Unlock()
		return nil, ErrUserAtCapacity
	}

	if g.activeGlobal < g.params.MaxActiveGlobal {
		g.activeGlobal++
		g.activePerUser[userID]++
		g.mu.Unlock()
		return &Ticket{userID: userID, gate: g}, nil
	}

	if len(g.queue) >= g.params.MaxQueueDepth {
		g.mu.Unlock()
		return nil, ErrQueueFull
	}

	item := &queueItem{
		userID:    userID,
		priority:  priority,
		enqueueAt: time.Now(),
		ready:     make(chan *Ticket, 1),
	}
	heap.Push(&g.queue, item)
	g.activePerUser[userID]++ // reserve the user's slot while queued
	g.mu.Unlock()

	select {
	case ticket := <-item.ready:
		return ticket, nil
	case <-ctx.Done():
		g.abandon(item)
		return nil, ctx.Err()
	}
}

// abandon removes item from the queue if it is still sitting there
// (cooperative cancellation, spec.md §5). If it was already popped and a
// ticket is in flight on item.ready, that ticket is released immediately
// so its slot isn't leaked.
func (g *Gate) abandon(item *queueItem) {
	g.mu.Lock()
	if item.index >= 0 && item.index < len(g.queue) && g.queue[item.index] == item {
		heap.Remove(&g.queue, item.index)
		g.activePerUser[item.userID]--
		if g.activePerUser[item.userID] <= 0 {
			delete(g.activePerUser, item.userID)
		}
		g.mu.Unlock()
		return
	}
	g.mu.Unlock()

	select {
	case ticket := <-item.ready:
		ticket.Release()
	default:
	}
}

// release is invoked by Ticket.Release. It frees the caller's global and
// per-user slots, then promotes the next queued item (if any).
func (g *Gate) release(userID string) {
	g.mu.Lock()
	g.activeGlobal--
	g.activePerUser[userID]--
	if g.activePerUser[userID] <= 0 {
		delete(g.activePerUser, userID)
	}

	if len(g.queue) > 0 && g.activeGlobal < g.params.MaxActiveGlobal {
		next := heap.Pop(&g.queue).(*queueItem)
		g.activeGlobal++
		g.activePerUser[next.userID]++
		g.mu.Unlock()
		next.ready <- &Ticket{userID: next.userID, gate: g}
		return
	}
	g.mu.Unlock()
}

// QueueDepth returns the current number of queued (not yet admitted)
// requests, for diagnostics/tests.
func (g *Gate) QueueDepth() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.queue)
}

// ActiveGlobal returns the current number of admitted (un-released)
// requests, for diagnostics/tests.
func (g *Gate) ActiveGlobal() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.activeGlobal
}
