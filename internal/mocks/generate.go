// Package mocks provides mock implementations of the core ports for testing.
//
// This package uses go.uber.org/mock (gomock) to generate type-safe mocks for the interfaces in internal/core.
//
// To regenerate mocks after interface changes, run:
//
//	go generate ./internal/mocks
//
// Usage in tests:
//
//	ctrl := gomock.NewController(t)
//	kv := mocks.NewMockKeyValueStore(ctrl)
//	kv.EXPECT().Exists(gomock.Any(), "job_identifiers:abc").Return(true, nil)
package mocks

// KeyValueStore: Get, MGet, Set, SetIfNotExists, SetIfExists, SetManyIfNotExists, Exists, Delete, ScanPrefix, Health
//go:generate go run go.uber.org/mock/mockgen@v0.6.0 -package=mocks -destination=key_value_store_mock.go github.com/target/jobsync/internal/core KeyValueStore

// RelationalStore: SelectAllIdentifiers, Insert, DeleteByIdentifiers
//go:generate go run go.uber.org/mock/mockgen@v0.6.0 -package=mocks -destination=relational_store_mock.go github.com/target/jobsync/internal/core RelationalStore

// DocumentStore: Insert, DeleteByIdentifiers
//go:generate go run go.uber.org/mock/mockgen@v0.6.0 -package=mocks -destination=document_store_mock.go github.com/target/jobsync/internal/core DocumentStore
