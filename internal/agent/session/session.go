// Package session implements the Session & Block Protocol (spec.md
// §4.1): the single serialization point for all events produced during
// one request, with server-held materialized block values so reconnect
// replay stays consistent with what was already sent to the client.
package session

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	jsonpatch "github.com/evanphx/json-patch/v5"
	"github.com/google/uuid"

	"researchagent/internal/agent/model"
)

// maxLogHeartbeats bounds how many heartbeats accumulate in the retained
// log before the oldest non-terminal heartbeat is dropped (spec.md §5
// back-pressure policy). Block/updateBlock events are never dropped.
const maxLogHeartbeats = 4

// subscriberBuffer is the size of each subscriber's event channel. A
// subscriber that can't keep up is evicted rather than blocking the
// producer (spec.md §4.1, §5, §9).
const subscriberBuffer = 64

// Subscriber is a callback invoked once per event, in order. Returning a
// non-nil error (or panicking) causes the subscriber to be unsubscribed;
// other subscribers are unaffected (spec.md §4.1).
type Subscriber func(model.Event) error

// Unsubscribe detaches a previously registered Subscriber.
type Unsubscribe func()

// Session is a request-scoped lifecycle handle owning one event log and
// the materialized values of every block emitted into it (spec.md §3).
//
// Thread-safety: all exported methods are safe for concurrent use. The
// session funnels every emission through a single mutex so that, within
// one session, events are strictly and contiguously ordered starting at
// 1 (spec.md §5, §8).
type Session struct {
	id        string
	createdAt time.Time
	logger    *slog.Logger

	mu          sync.Mutex
	nextEventID int64
	nextBlockIx int
	log         []model.Event
	blocks      map[string]*blockState
	closed      bool
	terminal    *model.Event

	subsMu sync.Mutex
	subs   map[int]*subscriberEntry
	nextID int
}

type blockState struct {
	kind  model.BlockKind
	value interface{} // *model.TextValue | *model.WidgetValue | *model.ResearchProgressValue
}

type subscriberEntry struct {
	fn Subscriber
	ch chan model.Event
}

// New creates a Session with a fresh random id.
func New(logger *slog.Logger) *Session {
	return newWithID(uuid.NewString(), logger)
}

func newWithID(id string, logger *slog.Logger) *Session {
	if logger == nil {
		logger = slog.Default()
	}
	return &Session{
		id:          id,
		createdAt:   time.Now(),
		logger:      logger,
		nextEventID: 1,
		blocks:      make(map[string]*blockState),
		subs:        make(map[int]*subscriberEntry),
	}
}

// ID returns the session's unique identifier.
func (s *Session) ID() string { return s.id }

// CreatedAt returns the session's creation time (spec.md §3).
func (s *Session) CreatedAt() time.Time { return s.createdAt }

// NewBlockID mints a new, session-unique block id.
func (s *Session) NewBlockID() string { return uuid.NewString() }

// NextBlockIndex returns the next 0-based creation index to stamp on a
// new block, and reserves it. Callers across the pipeline (orchestrator,
// writer, widget executor) share one session-wide index space
// (spec.md §3: "creation index, 0-based").
func (s *Session) NextBlockIndex() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	ix := s.nextBlockIx
	s.nextBlockIx++
	return ix
}

// EmitBlock assigns the next event id, records the block's initial
// materialized value, appends to the log, and fans out to subscribers
// (spec.md §4.1). It is a no-op returning an error if the session is
// already closed.
func (s *Session) EmitBlock(id string, kind model.BlockKind, index int, value interface{}) (model.Event, error) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return model.Event{}, fmt.Errorf("session %s: closed", s.id)
	}
	if _, exists := s.blocks[id]; exists {
		s.mu.Unlock()
		return model.Event{}, fmt.Errorf("session %s: block %s already exists", s.id, id)
	}
	s.blocks[id] = &blockState{kind: kind, value: value}
	ev := s.appendLocked(model.EventKindBlock, model.BlockPayload{
		BlockID: id,
		Kind:    kind,
		Value:   value,
	})
	s.mu.Unlock()

	s.fanOut(ev)
	return ev, nil
}

// UpdateBlock validates that id refers to an existing block of the given
// kind, applies patch against the server-held materialized value (so
// reconnect replay stays consistent), then fans the patch out to
// subscribers (spec.md §4.1).
func (s *Session) UpdateBlock(id string, kind model.BlockKind, patch []model.PatchOp) (model.Event, error) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return model.Event{}, fmt.Errorf("session %s: closed", s.id)
	}
	bs, ok := s.blocks[id]
	if !ok {
		s.mu.Unlock()
		return model.Event{}, fmt.Errorf("%w: block %s not found", ErrInvariantViolation, id)
	}
	if bs.kind != kind {
		s.mu.Unlock()
		return model.Event{}, fmt.Errorf("%w: block %s kind changed from %s to %s", ErrInvariantViolation, id, bs.kind, kind)
	}

	newValue, err := applyPatch(bs.value, patch)
	if err != nil {
		s.mu.Unlock()
		return model.Event{}, fmt.Errorf("%w: %v", ErrInvariantViolation, err)
	}
	bs.value = newValue

	ev := s.appendLocked(model.EventKindUpdateBlock, model.UpdateBlockPayload{
		BlockID: id,
		Patch:   patch,
	})
	s.mu.Unlock()

	s.fanOut(ev)
	return ev, nil
}

// EmitResearchProgress emits a lightweight researchProgress event. It
// does not create or update a block, and the research loop emits no
// research-progress block of its own; progress reaches clients only
// through these events.
func (s *Session) EmitResearchProgress(step, maxSteps int, actionNames []string) (model.Event, error) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return model.Event{}, fmt.Errorf("session %s: closed", s.id)
	}
	ev := s.appendLocked(model.EventKindResearchProgress, model.ResearchProgressPayload{
		Step:        step,
		MaxSteps:    maxSteps,
		ActionNames: actionNames,
	})
	s.mu.Unlock()
	s.fanOut(ev)
	return ev, nil
}

// EmitHeartbeat emits a periodic, payload-less heartbeat.
func (s *Session) EmitHeartbeat() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	ev := s.appendLocked(model.EventKindHeartbeat, nil)
	s.trimHeartbeatsLocked()
	s.mu.Unlock()
	s.fanOut(ev)
}

// EmitEnd emits the terminal "end" event carrying the final aggregate
// and closes the session to further emission (spec.md §4.1).
func (s *Session) EmitEnd(final model.FinalAggregate) (model.Event, error) {
	return s.emitTerminal(model.EventKindEnd, final)
}

// EmitError emits the terminal "error" event and closes the session. If
// the session is already closed this is a no-op returning the previously
// emitted terminal event's error (spec.md §4.1: "issued (once)").
func (s *Session) EmitError(code, message string) (model.Event, error) {
	return s.emitTerminal(model.EventKindError, model.ErrorPayload{Code: code, Message: message})
}

func (s *Session) emitTerminal(kind model.EventKind, payload interface{}) (model.Event, error) {
	s.mu.Lock()
	if s.closed {
		ev := model.Event{}
		if s.terminal != nil {
			ev = *s.terminal
		}
		s.mu.Unlock()
		return ev, fmt.Errorf("%w: session %s already terminated", ErrAlreadyTerminal, s.id)
	}
	ev := s.appendLocked(kind, payload)
	s.terminal = &ev
	s.closed = true
	s.mu.Unlock()

	s.fanOut(ev)
	s.closeAllSubscribers()
	return ev, nil
}

// IsClosed reports whether a terminal event has already been emitted.
func (s *Session) IsClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// appendLocked assigns the next event id and appends to the log. Caller
// must hold s.mu.
func (s *Session) appendLocked(kind model.EventKind, payload interface{}) model.Event {
	ev := model.Event{
		SessionID: s.id,
		EventID:   s.nextEventID,
		Kind:      kind,
		Payload:   payload,
	}
	s.nextEventID++
	s.log = append(s.log, ev)
	return ev
}

// trimHeartbeatsLocked drops the oldest non-terminal heartbeat once more
// than maxLogHeartbeats are retained (spec.md §5 back-pressure policy).
// Caller must hold s.mu.
func (s *Session) trimHeartbeatsLocked() {
	count := 0
	for _, ev := range s.log {
		if ev.Kind == model.EventKindHeartbeat {
			count++
		}
	}
	if count <= maxLogHeartbeats {
		return
	}
	for i, ev := range s.log {
		if ev.Kind == model.EventKindHeartbeat {
			s.log = append(s.log[:i], s.log[i+1:]...)
			return
		}
	}
}

// Subscribe registers cb to receive a replay of the log up to the
// current event id, then the live tail (spec.md §4.1). The returned
// Unsubscribe function detaches cb; it is safe to call more than once.
func (s *Session) Subscribe(cb Subscriber) Unsubscribe {
	return s.SubscribeFrom(0, cb)
}

// SubscribeFrom registers cb to receive only the events with EventID >
// lastEventID from the log, then the live tail, atomically with
// respect to the live fan-out (spec.md §6's reconnect endpoint, spec.md
// §8's round-trip law: no duplicates, no gaps). Passing 0 is
// equivalent to Subscribe. The returned Unsubscribe function detaches
// cb; it is safe to call more than once.
func (s *Session) SubscribeFrom(lastEventID int64, cb Subscriber) Unsubscribe {
	entry := &subscriberEntry{fn: cb, ch: make(chan model.Event, subscriberBuffer)}

	// Snapshot the replay window and register the subscriber while
	// holding s.mu throughout, so every event appended after this
	// critical section (which also requires s.mu) is guaranteed to see
	// this subscriber in s.subs by the time it fans out, and every
	// event appended before it is already in the snapshot. That closes
	// the gap/duplicate window between "read the log" and "start
	// receiving live events" (spec.md §8's round-trip law).
	s.mu.Lock()
	replay := make([]model.Event, 0, len(s.log))
	for _, ev := range s.log {
		if ev.EventID > lastEventID {
			replay = append(replay, ev)
		}
	}
	s.subsMu.Lock()
	id := s.nextID
	s.nextID++
	s.subs[id] = entry
	s.subsMu.Unlock()
	s.mu.Unlock()

	go s.drain(id, entry)

	for _, ev := range replay {
		select {
		case entry.ch <- ev:
		default:
			s.evict(id)
			break
		}
	}

	return func() { s.evict(id) }
}

// ReplayFrom returns all log events with EventID > lastEventID, for the
// reconnect endpoint (spec.md §6: "(sessionId, lastEventId)").
func (s *Session) ReplayFrom(lastEventID int64) []model.Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]model.Event, 0, len(s.log))
	for _, ev := range s.log {
		if ev.EventID > lastEventID {
			out = append(out, ev)
		}
	}
	return out
}

func (s *Session) drain(id int, entry *subscriberEntry) {
	for ev := range entry.ch {
		err := func() (err error) {
			defer func() {
				if r := recover(); r != nil {
					err = fmt.Errorf("subscriber panicked: %v", r)
				}
			}()
			return entry.fn(ev)
		}()
		if err != nil {
			s.logger.Warn("session subscriber failed, unsubscribing",
				"session_id", s.id, "error", err)
			s.evict(id)
			return
		}
	}
}

func (s *Session) evict(id int) {
	s.subsMu.Lock()
	entry, ok := s.subs[id]
	if ok {
		delete(s.subs, id)
	}
	s.subsMu.Unlock()
	if ok {
		close(entry.ch)
	}
}

func (s *Session) fanOut(ev model.Event) {
	s.subsMu.Lock()
	entries := make([]struct {
		id int
		ch chan model.Event
	}, 0, len(s.subs))
	for id, e := range s.subs {
		entries = append(entries, struct {
			id int
			ch chan model.Event
		}{id, e.ch})
	}
	s.subsMu.Unlock()

	for _, e := range entries {
		select {
		case e.ch <- ev:
		default:
			// Slow subscriber: evicted rather than blocking the producer
			// (spec.md §5, §9).
			s.evict(e.id)
		}
	}
}

func (s *Session) closeAllSubscribers() {
	s.subsMu.Lock()
	ids := make([]int, 0, len(s.subs))
	for id := range s.subs {
		ids = append(ids, id)
	}
	s.subsMu.Unlock()
	for _, id := range ids {
		s.evict(id)
	}
}

// applyPatch applies patch to a block's materialized value. Text blocks
// are patched directly: add at /text/- appends the delta to the string
// (Go's materialized text is a string field, not a JSON array; see
// DESIGN.md Open Question 1), add or replace at /done sets the flag, and
// replace at /text swaps the whole string; any other op on a text block
// is rejected with an error. Widget and research-progress values are
// round-tripped through evanphx/json-patch (applyGenericPatch).
func applyPatch(value interface{}, patch []model.PatchOp) (interface{}, error) {
	switch v := value.(type) {
	case *model.TextValue:
		nv := *v
		for _, op := range patch {
			if op.Path == "/text/-" && op.Op == "add" {
				delta, _ := op.Value.(string)
				nv.Text += delta
				continue
			}
			if op.Path == "/done" && (op.Op == "add" || op.Op == "replace") {
				done, _ := op.Value.(bool)
				nv.Done = done
				continue
			}
			if op.Path == "/text" && op.Op == "replace" {
				text, _ := op.Value.(string)
				nv.Text = text
				continue
			}
			return nil, fmt.Errorf("unsupported patch op %+v for text block", op)
		}
		return &nv, nil
	case *model.WidgetValue, *model.ResearchProgressValue:
		return applyGenericPatch(v, patch)
	default:
		return nil, fmt.Errorf("unknown block value type %T", value)
	}
}

// applyGenericPatch round-trips value through JSON and evanphx/json-patch
// for block kinds without a bespoke append convention.
func applyGenericPatch(value interface{}, patch []model.PatchOp) (interface{}, error) {
	doc, err := marshalJSON(value)
	if err != nil {
		return nil, err
	}
	rawPatch, err := marshalJSON(patch)
	if err != nil {
		return nil, err
	}
	jp, err := jsonpatch.DecodePatch(rawPatch)
	if err != nil {
		return nil, fmt.Errorf("decode patch: %w", err)
	}
	out, err := jp.Apply(doc)
	if err != nil {
		return nil, fmt.Errorf("apply patch: %w", err)
	}
	return unmarshalLike(value, out)
}
