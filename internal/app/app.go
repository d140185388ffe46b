// Package app wires configuration into a ready-to-serve HTTP handler. It is
// shared by the standalone server and the Lambda entrypoint.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"vanishbin/internal/clock"
	"vanishbin/internal/config"
	"vanishbin/internal/expiry"
	"vanishbin/internal/httpserver"
	"vanishbin/internal/id"
	"vanishbin/internal/metrics"
	"vanishbin/internal/paste"
	"vanishbin/internal/security"
	"vanishbin/internal/storage"
	"vanishbin/internal/storage/boltstore"
	"vanishbin/internal/storage/dynamostore"
	"vanishbin/internal/storage/memstore"
	"vanishbin/internal/storage/mongostore"
	"vanishbin/internal/storage/sqlitestore"
)

type App struct {
	Handler http.Handler
	store   storage.Store
}

// New opens the configured store and builds the HTTP handler on top of it.
func New(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*App, error) {
	evaluator, err := expiry.Parse(cfg.Mode)
	if err != nil {
		return nil, err
	}
	ids, err := id.FromKind(cfg.IDKind, cfg.IDLength)
	if err != nil {
		return nil, err
	}
	fingerprints, err := security.NewFingerprinter([]byte(cfg.FingerprintKey))
	if err != nil {
		return nil, err
	}

	store, err := OpenStore(ctx, cfg.Store)
	if err != nil {
		return nil, fmt.Errorf("open %s store: %w", cfg.Store.Backend, err)
	}

	var recorder *metrics.Recorder
	if cfg.Metrics {
		recorder = metrics.New()
	}

	svc, err := paste.New(paste.Config{
		Store:        store,
		Evaluator:    evaluator,
		IDs:          ids,
		Logger:       logger,
		Metrics:      recorder,
		MaxBytes:     cfg.MaxBytes,
		StoreTimeout: cfg.Store.Timeout,
	})
	if err != nil {
		_ = store.Close()
		return nil, err
	}

	srv, err := httpserver.New(httpserver.Config{
		Service:        svc,
		Clock:          clock.System{},
		TrustProxy:     cfg.BehindProxy,
		BaseURL:        cfg.BaseURL,
		OpaqueNotFound: cfg.OpaqueNotFound,
		Logger:         logger,
		Metrics:        recorder,
		Fingerprinter:  fingerprints,
	})
	if err != nil {
		_ = store.Close()
		return nil, err
	}

	if clock.OverrideEnabled() {
		logger.Warn("request time override compiled in; enabled when TEST_MODE=1")
	}
	logger.Info("paste service ready",
		"mode", evaluator.Name(),
		"store", cfg.Store.Backend,
		"id_kind", cfg.IDKind,
		"metrics", cfg.Metrics,
	)
	return &App{Handler: srv.Handler(), store: store}, nil
}

// Close releases the store.
func (a *App) Close() error {
	return a.store.Close()
}

// OpenStore opens the backend named by cfg.Backend.
func OpenStore(ctx context.Context, cfg config.StoreConfig) (storage.Store, error) {
	ctx, cancel := context.WithTimeout(ctx, cfg.Timeout)
	defer cancel()

	switch cfg.Backend {
	case "bolt":
		return boltstore.Open(cfg.Path)
	case "sqlite":
		return sqlitestore.Open(cfg.Path)
	case "mongo":
		return mongostore.Open(ctx, cfg.MongoURI, cfg.MongoDatabase, cfg.MongoCollection)
	case "dynamodb":
		return dynamostore.Open(ctx, cfg.DynamoTable, cfg.DynamoRegion, cfg.DynamoEndpoint)
	case "memory":
		return memstore.New(), nil
	case "":
		return nil, errors.New("store backend not set")
	default:
		return nil, fmt.Errorf("unknown store backend %q", cfg.Backend)
	}
}
