// Package core defines the ports between the reconciliation services and their adapters.
package core

import (
	"context"
	"time"

	"github.com/target/jobsync/internal/domain/model"
)

// This file contains repository interface definitions (ports in hexagonal architecture).
// These interfaces define the contracts between the service layer and data layer.
// Service implementations should depend on these interfaces, not concrete implementations.

// KeyValueStore is the shared key-value layer backing the liveness tracker, the session
// dedup cache and the pass marker.
type KeyValueStore interface {
	// Get returns the value stored at key and whether it exists.
	Get(ctx context.Context, key string) (string, bool, error)

	// MGet returns the values of the keys that exist; missing keys are absent from the map.
	MGet(ctx context.Context, keys []string) (map[string]string, error)

	// Set stores value at key. A ttl <= 0 means the key does not expire.
	Set(ctx context.Context, key, value string, ttl time.Duration) error

	// SetIfNotExists atomically sets key only when it is absent. Returns true if the key was set.
	SetIfNotExists(ctx context.Context, key, value string, ttl time.Duration) (bool, error)

	// SetIfExists atomically overwrites key only when it is present. Returns true if the key was set.
	SetIfExists(ctx context.Context, key, value string, ttl time.Duration) (bool, error)

	// SetManyIfNotExists sets every absent key to value in pipelined batches and returns how many were set.
	SetManyIfNotExists(ctx context.Context, keys []string, value string, ttl time.Duration) (int, error)

	// Exists reports whether key is present.
	Exists(ctx context.Context, key string) (bool, error)

	// Delete removes keys and returns how many existed.
	Delete(ctx context.Context, keys ...string) (int64, error)

	// ScanPrefix calls fn with batches of keys that start with prefix until the keyspace is
	// exhausted or fn returns an error. Batches never repeat a key within one call.
	ScanPrefix(ctx context.Context, prefix string, fn func(keys []string) error) error

	// Health checks the connection.
	Health(ctx context.Context) error
}

// RelationalStore is the fixed-schema store keyed by job identifier.
type RelationalStore interface {
	// SelectAllIdentifiers returns every identifier currently stored. A missing table yields an empty set.
	SelectAllIdentifiers(ctx context.Context) ([]model.Identifier, error)

	// Insert stores one canonical record. Re-inserting an identifier overwrites the stored row.
	Insert(ctx context.Context, rec model.CanonicalRecord) error

	// DeleteByIdentifiers removes the rows of the given identifiers and returns how many were removed.
	DeleteByIdentifiers(ctx context.Context, ids []model.Identifier) (int64, error)
}

// DocumentStore is the schema-flexible store keyed by job identifier.
type DocumentStore interface {
	// Insert stores one canonical record. Re-inserting an identifier replaces the stored document.
	Insert(ctx context.Context, rec model.CanonicalRecord) error

	// DeleteByIdentifiers removes the documents of the given identifiers and returns how many were removed.
	DeleteByIdentifiers(ctx context.Context, ids []model.Identifier) (int64, error)
}

// Page is one batch of listings returned by a Source.
type Page struct {
	// Number is the page number requested; featured pages use the first page number.
	Number int
	// Featured marks the prelude request made before the numbered pages. An empty featured
	// page never signals exhaustion.
	Featured bool
	Listings []model.RawListing
}

// Exhausted reports whether the page signals the end of the listing set.
func (p Page) Exhausted() bool {
	return !p.Featured && len(p.Listings) == 0
}

// Source yields pages of raw listings in order.
type Source interface {
	// NextPage fetches the next page. A failed fetch does not advance the cursor, so the
	// same page is requested again on the next call.
	NextPage(ctx context.Context) (Page, error)

	// Reset rewinds the cursor to the first page.
	Reset()
}

// RowExporter streams stored rows or documents as generic maps.
type RowExporter interface {
	Export(ctx context.Context, fn func(row map[string]any) error) error
}
