// Package es is the event-sourcing core: the domain event contract, the
// embeddable aggregate root, the event store contract, the versioned payload
// codec, and the generic aggregate repository.
package es

import (
	"time"

	"github.com/gofrs/uuid/v5"

	"github.com/sesdev/conduit/internal/core"
)

// DomainEvent is an immutable fact raised by an aggregate. AggregateVersion is
// the version of the aggregate after the event is applied; EventType and
// EventVersion identify the payload schema at rest.
type DomainEvent interface {
	EventID() uuid.UUID
	TenantID() core.TenantID
	AggregateVersion() int64
	OccurredOn() time.Time
	EventType() string
	EventVersion() string
}

// EventMeta carries the fields every domain event shares. Concrete events embed
// it and add their own payload fields plus EventType/EventVersion methods.
type EventMeta struct {
	ID       uuid.UUID     `json:"event_id"`
	Tenant   core.TenantID `json:"tenant_id"`
	Version  int64         `json:"aggregate_version"`
	Occurred time.Time     `json:"occurred_on"`
}

// NewEventMeta mints metadata for a freshly raised event.
func NewEventMeta(tenantID core.TenantID, aggregateVersion int64) EventMeta {
	return EventMeta{
		ID:       uuid.Must(uuid.NewV4()),
		Tenant:   tenantID,
		Version:  aggregateVersion,
		Occurred: time.Now().UTC(),
	}
}

func (m EventMeta) EventID() uuid.UUID      { return m.ID }
func (m EventMeta) TenantID() core.TenantID { return m.Tenant }
func (m EventMeta) AggregateVersion() int64 { return m.Version }
func (m EventMeta) OccurredOn() time.Time   { return m.Occurred }
