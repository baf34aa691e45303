// Package mocks provides gomock implementations of the fundwell ports for tests.
//
// This package uses go.uber.org/mock (gomock) to generate type-safe mocks for our port interfaces.
// The mocks are generated using go:generate directives and provide a fluent API for setting up test expectations.
//
// To regenerate mocks after interface changes, run:
//
//	go generate ./internal/mocks
//
// Usage in tests:
//
//	ctrl := gomock.NewController(t)
//	backend := mocks.NewMockBackend(ctrl)
//	backend.EXPECT().Login(gomock.Any(), "a@b.com", "pw").Return(pair, nil)
package mocks

// Generate mock for Backend interface from internal/ports package.
// This creates MockBackend with methods for all Backend interface methods:
// Login, LoginWithToken, Me, Refresh, Revoke, Forward
//go:generate go run go.uber.org/mock/mockgen@v0.6.0 -package=mocks -destination=backend_mock.go github.com/fundwell/fundwell-web/internal/ports Backend

// Generate mock for SessionCache interface from internal/ports package.
// This creates MockSessionCache with methods for all SessionCache interface methods:
// Get, Put, Delete
//go:generate go run go.uber.org/mock/mockgen@v0.6.0 -package=mocks -destination=session_cache_mock.go github.com/fundwell/fundwell-web/internal/ports SessionCache
