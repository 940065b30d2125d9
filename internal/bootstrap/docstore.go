package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/target/jobsync/config"
	"github.com/target/jobsync/internal/adapters/firestorestore"
	"github.com/target/jobsync/internal/adapters/mongostore"
	"github.com/target/jobsync/internal/core"
)

// DocStore is the selected document store backend plus its lifecycle.
type DocStore struct {
	Backend  config.DocStoreBackend
	Store    core.DocumentStore
	Exporter core.RowExporter
	closeFn  func(context.Context) error
}

// Close releases the backend client.
func (d *DocStore) Close(ctx context.Context) error {
	if d == nil || d.closeFn == nil {
		return nil
	}
	return d.closeFn(ctx)
}

// DocStoreOptions configures ConnectDocStore.
type DocStoreOptions struct {
	Config          *config.AppConfig
	DeleteBatchSize int
	Logger          *slog.Logger
}

// ConnectDocStore connects the backend selected by DOCSTORE_BACKEND.
func ConnectDocStore(ctx context.Context, opts DocStoreOptions) (*DocStore, error) {
	if opts.Config == nil {
		return nil, errors.New("config is required")
	}
	if err := validateDocStore(opts.Config); err != nil {
		return nil, err
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	switch opts.Config.DocStore.Backend {
	case config.DocStoreFirestore:
		return connectFirestore(ctx, opts.Config.Firestore, opts.DeleteBatchSize, logger)
	default:
		return connectMongo(ctx, opts.Config.Mongo, opts.DeleteBatchSize, logger)
	}
}

func connectMongo(ctx context.Context, cfg config.MongoConfig, batch int, logger *slog.Logger) (*DocStore, error) {
	connectCtx, cancel := context.WithTimeout(ctx, cfg.ConnectTimeout)
	defer cancel()

	store, client, err := mongostore.Connect(connectCtx, mongostore.ConnectOptions{
		URI:             cfg.URI,
		Database:        cfg.Database,
		Collection:      cfg.Collection,
		ConnectTimeout:  cfg.ConnectTimeout,
		DeleteBatchSize: batch,
		Logger:          logger,
	})
	if err != nil {
		return nil, fmt.Errorf("connect document store: %w", err)
	}

	logger.InfoContext(ctx, "document store connected",
		"backend", config.DocStoreMongo,
		"database", cfg.Database,
		"collection", cfg.Collection,
	)
	return &DocStore{
		Backend:  config.DocStoreMongo,
		Store:    store,
		Exporter: store,
		closeFn:  client.Disconnect,
	}, nil
}

func connectFirestore(ctx context.Context, cfg config.FirestoreConfig, batch int, logger *slog.Logger) (*DocStore, error) {
	client, err := firestorestore.NewClient(ctx, cfg.ProjectID)
	if err != nil {
		return nil, fmt.Errorf("connect document store: %w", err)
	}
	store, err := firestorestore.New(firestorestore.Options{
		Client:          client,
		Collection:      cfg.Collection,
		DeleteBatchSize: batch,
		Logger:          logger,
	})
	if err != nil {
		_ = client.Close()
		return nil, err
	}

	logger.InfoContext(ctx, "document store connected",
		"backend", config.DocStoreFirestore,
		"project", cfg.ProjectID,
		"collection", cfg.Collection,
	)
	return &DocStore{
		Backend:  config.DocStoreFirestore,
		Store:    store,
		Exporter: store,
		closeFn:  func(context.Context) error { return client.Close() },
	}, nil
}
