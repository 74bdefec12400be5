// Package app wires the engine: key hierarchy, encryption, event store, and
// the aggregate repositories built on top of them.
package app

import (
	"go.uber.org/zap"

	"github.com/sesdev/conduit/internal/corevalues"
	"github.com/sesdev/conduit/internal/crypto"
	"github.com/sesdev/conduit/internal/encryption"
	"github.com/sesdev/conduit/internal/es"
	"github.com/sesdev/conduit/internal/goals"
	"github.com/sesdev/conduit/internal/kms"
	"github.com/sesdev/conduit/internal/sharing"
	"github.com/sesdev/conduit/internal/storage/postgres"
)

// App bundles the engine's services. Embedding hosts pick the surfaces they
// need; everything shares one codec, one encryption service, and one store.
type App struct {
	Keys       kms.Service
	Encryption encryption.Service
	Store      es.EventStore
	Goals      *goals.Repository
	CoreValues *corevalues.Repository
	Sharing    *sharing.Service
}

// New wires the full engine over an open database handle.
func New(db *postgres.DB, master *crypto.MasterKeys, log *zap.Logger) *App {
	keyRepo := postgres.NewKeyRepo(db)
	keyService := kms.NewService(keyRepo, master, log)
	encService := encryption.NewXChaChaService(keyService)

	codec := es.NewCodec()
	goals.RegisterEvents(codec)
	corevalues.RegisterEvents(codec)
	store := postgres.NewEventStore(db, encService, codec, log)

	return &App{
		Keys:       keyService,
		Encryption: encService,
		Store:      store,
		Goals:      goals.NewRepository(store, encService, codec, log),
		CoreValues: corevalues.NewRepository(store, encService, codec, log),
		Sharing:    sharing.NewService(keyService, keyRepo, log),
	}
}
