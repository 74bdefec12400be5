package corevalues

import (
	"go.uber.org/zap"

	"github.com/sesdev/conduit/internal/core"
	"github.com/sesdev/conduit/internal/encryption"
	"github.com/sesdev/conduit/internal/es"
)

// AggregateType is the stream discriminator for user core values.
const AggregateType = "user_core_values"

// Repository persists UserCoreValues through the shared event store. The codec
// must have the core values events registered (RegisterEvents).
type Repository = es.Repository[core.UserID, *UserCoreValues]

// NewRepository wires the aggregate repository for user core values.
func NewRepository(store es.EventStore, enc encryption.Service, codec *es.Codec, log *zap.Logger) *Repository {
	return es.NewRepository(store, enc, codec, AggregateType, NewUserCoreValues, log)
}
