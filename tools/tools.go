//go:build tools
// +build tools

// Package tools documents development tool dependencies.
// These tools are run via `go run` or installed with `go install` and are not tracked in go.mod
// since they are development tools, not runtime dependencies.
package tools

// Development tools:
//
// mockgen - Generates the gomock doubles in internal/mocks
//   Run: go generate ./internal/mocks
//   Version: v0.6.0 (matches go.uber.org/mock in go.mod)
//   Docs: https://github.com/uber-go/mock
//
// Firestore emulator - Backs the firestorestore integration tests
//   Run: gcloud emulators firestore start --host-port=localhost:8681
//   Then: export FIRESTORE_EMULATOR_HOST=localhost:8681
//   Docs: https://cloud.google.com/firestore/docs/emulator
