package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/gofrs/uuid/v5"
	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"github.com/sesdev/conduit/internal/core"
	"github.com/sesdev/conduit/internal/encryption"
	"github.com/sesdev/conduit/internal/errs"
	"github.com/sesdev/conduit/internal/es"
	"github.com/sesdev/conduit/internal/obs"
)

// EventStore implements es.EventStore on PostgreSQL. Every append runs in one
// transaction: version check, per-event encryption under a fresh key context,
// batch insert. The unique (aggregate_id, tenant_id, sequence_number)
// constraint backstops races that slip past the version read.
type EventStore struct {
	db    *DB
	enc   encryption.Service
	codec *es.Codec
	log   *zap.Logger
}

// NewEventStore constructs the event store.
func NewEventStore(db *DB, enc encryption.Service, codec *es.Codec, log *zap.Logger) *EventStore {
	return &EventStore{db: db, enc: enc, codec: codec, log: log}
}

const (
	selectCurrentVersionSQL = `SELECT COALESCE(MAX(sequence_number),0) FROM event_store WHERE aggregate_id=$1 AND tenant_id=$2`

	insertEventSQL = `
INSERT INTO event_store (
  event_id, aggregate_id, aggregate_type, tenant_id, sequence_number,
  event_type, event_payload, event_version, encryption_algorithm_id,
  key_context_id, occurred_on, stored_on, user_id
) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13)`

	selectStreamSQL = `
SELECT event_id, aggregate_id, aggregate_type, tenant_id, sequence_number,
       event_type, event_payload, event_version, encryption_algorithm_id,
       key_context_id, occurred_on, stored_on, user_id
FROM event_store
WHERE aggregate_id=$1 AND tenant_id=$2 AND sequence_number>$3
ORDER BY sequence_number ASC`
)

// AppendEvents implements es.EventStore.
func (s *EventStore) AppendEvents(
	ctx context.Context,
	aggregateID, aggregateType string,
	expectedVersion int64,
	events []es.DomainEvent,
	tenantID core.TenantID,
	actingUser core.UserID,
) (err error) {
	if len(events) == 0 {
		return nil
	}
	if expectedVersion < 0 {
		return fmt.Errorf("%w: negative expected version %d", errs.ErrSequenceMismatch, expectedVersion)
	}

	tx, err := s.db.Pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
			return
		}
		if e := tx.Commit(ctx); e != nil {
			err = e
		}
	}()

	var currentVersion int64
	if err = tx.QueryRow(ctx, selectCurrentVersionSQL, aggregateID, tenantID.UUID()).Scan(&currentVersion); err != nil {
		return err
	}
	if currentVersion != expectedVersion {
		obs.AppendConflicts.Inc()
		s.log.Warn("append rejected by version check",
			zap.String("aggregate", aggregateID),
			zap.Int64("expected", expectedVersion),
			zap.Int64("actual", currentVersion),
		)
		return &es.ConflictError{AggregateID: aggregateID, ExpectedVersion: expectedVersion, ActualVersion: currentVersion}
	}

	sequence := expectedVersion
	for _, event := range events {
		sequence++
		if event.AggregateVersion() != sequence {
			return fmt.Errorf("%w: aggregate %s event %s has version %d, expected %d",
				errs.ErrSequenceMismatch, aggregateID, event.EventID(), event.AggregateVersion(), sequence)
		}

		var plaintext []byte
		if plaintext, err = s.codec.Encode(event); err != nil {
			return err
		}
		kc := encryption.NewKeyContext(tenantID, actingUser)
		var sealed encryption.EncryptedValue
		if sealed, err = s.enc.Encrypt(ctx, plaintext, kc); err != nil {
			return err
		}

		_, err = tx.Exec(ctx, insertEventSQL,
			event.EventID(),
			aggregateID,
			aggregateType,
			tenantID.UUID(),
			sequence,
			event.EventType(),
			sealed.Data,
			event.EventVersion(),
			sealed.AlgorithmID,
			sealed.KeyContextID,
			event.OccurredOn(),
			time.Now().UTC(),
			actingUser.UUID(),
		)
		if err != nil {
			if isUniqueViolation(err) {
				obs.AppendConflicts.Inc()
				s.log.Warn("append rejected by uniqueness constraint",
					zap.String("aggregate", aggregateID),
					zap.Int64("expected", expectedVersion),
				)
				err = &es.ConflictError{AggregateID: aggregateID, ExpectedVersion: expectedVersion, ActualVersion: -1}
			}
			return err
		}
	}

	obs.EventsAppended.Add(float64(len(events)))
	s.log.Debug("appended events",
		zap.String("aggregate", aggregateID),
		zap.String("type", aggregateType),
		zap.Int("count", len(events)),
		zap.Int64("newVersion", sequence),
	)
	return nil
}

// LoadEventStream implements es.EventStore.
func (s *EventStore) LoadEventStream(ctx context.Context, aggregateID string, tenantID core.TenantID) ([]es.StoredEvent, error) {
	return s.LoadEventStreamAfter(ctx, aggregateID, tenantID, 0)
}

// LoadEventStreamAfter implements es.EventStore.
func (s *EventStore) LoadEventStreamAfter(ctx context.Context, aggregateID string, tenantID core.TenantID, afterVersion int64) ([]es.StoredEvent, error) {
	if afterVersion < 0 {
		return nil, fmt.Errorf("afterVersion cannot be negative, got %d", afterVersion)
	}
	rows, err := s.db.Pool.Query(ctx, selectStreamSQL, aggregateID, tenantID.UUID(), afterVersion)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []es.StoredEvent
	for rows.Next() {
		var (
			row     es.StoredEvent
			tenantU uuid.UUID
			userU   uuid.UUID
		)
		if err = rows.Scan(
			&row.EventID, &row.AggregateID, &row.AggregateType, &tenantU, &row.SequenceNumber,
			&row.EventType, &row.Payload, &row.EventVersion, &row.AlgorithmID,
			&row.KeyContextID, &row.OccurredOn, &row.StoredOn, &userU,
		); err != nil {
			return nil, err
		}
		row.TenantID = core.TenantID(tenantU)
		row.UserID = core.UserID(userU)
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	obs.StreamsLoaded.Inc()
	return out, nil
}

var _ es.EventStore = (*EventStore)(nil)
