package es

import (
	"fmt"

	"github.com/sesdev/conduit/internal/errs"
)

// Root is the embeddable event-sourced entity core: a version counter plus the
// buffer of raised-but-unpersisted events. Concrete aggregates embed it and
// route Raise/Replay through their own apply function, which must cover every
// variant of the aggregate's closed event set.
type Root struct {
	version int64
	pending []DomainEvent
}

// Version returns the number of events applied so far.
func (r *Root) Version() int64 { return r.version }

// UncommittedChanges returns a copy of the events raised since the last commit.
func (r *Root) UncommittedChanges() []DomainEvent {
	out := make([]DomainEvent, len(r.pending))
	copy(out, r.pending)
	return out
}

// MarkCommitted clears the pending buffer. Called by the repository after the
// event store accepted the batch; the version is untouched.
func (r *Root) MarkCommitted() { r.pending = nil }

// Raise applies a new event and records it as pending. The version advances by
// exactly one.
func (r *Root) Raise(e DomainEvent, apply func(DomainEvent)) {
	apply(e)
	r.pending = append(r.pending, e)
	r.version++
}

// Replay applies historical events without recording them as pending. A version
// gap means the stream is corrupted or reordered; that is an irrecoverable
// defect, not a domain error.
func (r *Root) Replay(events []DomainEvent, apply func(DomainEvent)) error {
	for _, e := range events {
		if e.AggregateVersion() != r.version+1 {
			return fmt.Errorf("%w: expected version %d, got %d for event %s",
				errs.ErrCorruptHistory, r.version+1, e.AggregateVersion(), e.EventID())
		}
		apply(e)
		r.version++
	}
	return nil
}
