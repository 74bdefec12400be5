package es

import (
	"context"
	"fmt"
	"time"

	"github.com/gofrs/uuid/v5"

	"github.com/sesdev/conduit/internal/core"
	"github.com/sesdev/conduit/internal/errs"
)

// StoredEvent is the at-rest representation of one event row. Payload holds
// ciphertext; KeyContextID names the DEK (or, when read through a grant, the
// grant) that recovers it.
type StoredEvent struct {
	EventID        uuid.UUID
	AggregateID    string
	AggregateType  string
	TenantID       core.TenantID
	SequenceNumber int64
	EventType      string
	Payload        []byte
	EventVersion   string
	AlgorithmID    string
	KeyContextID   uuid.UUID
	OccurredOn     time.Time
	StoredOn       time.Time
	UserID         core.UserID
}

// EventStore is the append-only, per-stream log. Implementations encrypt each
// event under a fresh key context before it is written and enforce optimistic
// concurrency per stream.
type EventStore interface {
	// AppendEvents appends the batch atomically after checking that the stream
	// is at expectedVersion (0 means the stream must not exist yet). An empty
	// batch is a no-op. Version conflicts surface as *ConflictError; a batch
	// whose events do not run expectedVersion+1..+n fails with
	// errs.ErrSequenceMismatch.
	AppendEvents(ctx context.Context, aggregateID, aggregateType string, expectedVersion int64, events []DomainEvent, tenantID core.TenantID, actingUser core.UserID) error

	// LoadEventStream returns all rows of the stream ordered by sequence number.
	LoadEventStream(ctx context.Context, aggregateID string, tenantID core.TenantID) ([]StoredEvent, error)

	// LoadEventStreamAfter returns the rows with sequence number > afterVersion.
	LoadEventStreamAfter(ctx context.Context, aggregateID string, tenantID core.TenantID, afterVersion int64) ([]StoredEvent, error)
}

// ConflictError reports an optimistic concurrency conflict. ActualVersion is -1
// when the race was detected by the storage uniqueness constraint rather than
// the version read.
type ConflictError struct {
	AggregateID     string
	ExpectedVersion int64
	ActualVersion   int64
}

func (e *ConflictError) Error() string {
	if e.ActualVersion < 0 {
		return fmt.Sprintf("concurrency conflict for aggregate %s: expected version %d", e.AggregateID, e.ExpectedVersion)
	}
	return fmt.Sprintf("concurrency conflict for aggregate %s: expected version %d, actual %d", e.AggregateID, e.ExpectedVersion, e.ActualVersion)
}

// Unwrap lets errors.Is match the shared sentinel.
func (e *ConflictError) Unwrap() error { return errs.ErrVersionConflict }
