package goals

import (
	"go.uber.org/zap"

	"github.com/sesdev/conduit/internal/core"
	"github.com/sesdev/conduit/internal/encryption"
	"github.com/sesdev/conduit/internal/es"
)

// AggregateType is the stream discriminator for user goals.
const AggregateType = "user_goals"

// Repository persists UserGoals through the shared event store. The codec must
// have the goals events registered (RegisterEvents).
type Repository = es.Repository[core.UserID, *UserGoals]

// NewRepository wires the aggregate repository for user goals.
func NewRepository(store es.EventStore, enc encryption.Service, codec *es.Codec, log *zap.Logger) *Repository {
	return es.NewRepository(store, enc, codec, AggregateType, NewUserGoals, log)
}
