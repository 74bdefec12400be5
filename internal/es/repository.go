package es

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/sesdev/conduit/internal/core"
	"github.com/sesdev/conduit/internal/encryption"
	"github.com/sesdev/conduit/internal/errs"
)

// Aggregate is what the generic repository needs from an event-sourced
// aggregate. Concrete aggregates satisfy it by embedding Root and implementing
// LoadFromHistory over their closed event set.
type Aggregate interface {
	Version() int64
	UncommittedChanges() []DomainEvent
	MarkCommitted()
	LoadFromHistory(events []DomainEvent) error
}

// Repository persists aggregates of one kind through the event store. Writes
// hand the pending events plus the expected prior version to the store; reads
// decrypt and replay the whole stream onto a blank instance. A stream that
// cannot be fully decrypted is not a valid read result.
type Repository[ID fmt.Stringer, T Aggregate] struct {
	store         EventStore
	enc           encryption.Service
	codec         *Codec
	aggregateType string
	newFn         func(id ID) T
	log           *zap.Logger
}

// NewRepository builds a repository for one aggregate kind. newFn returns a
// blank instance ready for replay.
func NewRepository[ID fmt.Stringer, T Aggregate](
	store EventStore,
	enc encryption.Service,
	codec *Codec,
	aggregateType string,
	newFn func(id ID) T,
	log *zap.Logger,
) *Repository[ID, T] {
	return &Repository[ID, T]{
		store:         store,
		enc:           enc,
		codec:         codec,
		aggregateType: aggregateType,
		newFn:         newFn,
		log:           log,
	}
}

// Save appends the aggregate's pending events and marks them committed on
// success. Saving an aggregate with no pending events is a no-op.
func (r *Repository[ID, T]) Save(ctx context.Context, id ID, agg T, tenantID core.TenantID, actingUser core.UserID) error {
	events := agg.UncommittedChanges()
	if len(events) == 0 {
		return nil
	}
	expectedVersion := agg.Version() - int64(len(events))
	if err := r.store.AppendEvents(ctx, id.String(), r.aggregateType, expectedVersion, events, tenantID, actingUser); err != nil {
		return err
	}
	agg.MarkCommitted()
	return nil
}

// FindByID reconstitutes the aggregate from its stream. found is false when no
// stream exists. Decryption and decoding failures abort the whole load.
func (r *Repository[ID, T]) FindByID(ctx context.Context, id ID, tenantID core.TenantID, accessingUser core.UserID) (agg T, found bool, err error) {
	var zero T
	rows, err := r.store.LoadEventStream(ctx, id.String(), tenantID)
	if err != nil {
		return zero, false, err
	}
	if len(rows) == 0 {
		return zero, false, nil
	}

	events := make([]DomainEvent, 0, len(rows))
	for i := range rows {
		row := &rows[i]
		if row.AggregateType != r.aggregateType {
			return zero, false, fmt.Errorf("%w: aggregate %s has %s row at sequence %d, want %s",
				errs.ErrCorruptHistory, row.AggregateID, row.AggregateType, row.SequenceNumber, r.aggregateType)
		}
		plaintext, err := r.enc.Decrypt(ctx, encryption.EncryptedValue{
			Data:         row.Payload,
			AlgorithmID:  row.AlgorithmID,
			KeyContextID: row.KeyContextID,
		}, tenantID, accessingUser)
		if err != nil {
			return zero, false, fmt.Errorf("aggregate %s sequence %d: %w", row.AggregateID, row.SequenceNumber, err)
		}
		e, err := r.codec.Decode(row.EventType, row.EventVersion, plaintext)
		if err != nil {
			return zero, false, fmt.Errorf("aggregate %s sequence %d: %w", row.AggregateID, row.SequenceNumber, err)
		}
		events = append(events, e)
	}

	agg = r.newFn(id)
	if err := agg.LoadFromHistory(events); err != nil {
		return zero, false, err
	}
	r.log.Debug("reconstituted aggregate",
		zap.String("aggregate", id.String()),
		zap.String("type", r.aggregateType),
		zap.Int64("version", agg.Version()),
	)
	return agg, true, nil
}
