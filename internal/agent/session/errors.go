package session

import "errors"

// ErrInvariantViolation covers patch-against-unknown-block and
// kind-mismatch cases — bugs, per spec.md §7's InternalInvariantViolation
// taxonomy entry.
var ErrInvariantViolation = errors.New("session: invariant violation")

// ErrAlreadyTerminal is returned when EmitEnd/EmitError is called on a
// session that has already emitted a terminal event (spec.md §4.1:
// "once a terminal end or error event is emitted, no further events are
// accepted").
var ErrAlreadyTerminal = errors.New("session: already terminated")
