// Package mocks provides gomock implementations of the client's ports.
//
// This package uses go.uber.org/mock (gomock) to generate type-safe mocks for port interfaces.
// To regenerate mocks after interface changes, run:
//
//	go generate ./internal/mocks
//
// Usage in tests:
//
//	ctrl := gomock.NewController(t)
//	nav := mocks.NewMockNavigator(ctrl)
//	nav.EXPECT().Navigate(gomock.Any(), "/auth/login?expired=1").Return(nil)
package mocks

// Generate mocks for the Navigator and StateStore interfaces from internal/ports.
//go:generate go run go.uber.org/mock/mockgen@v0.6.0 -package=mocks -destination=ports_mock.go github.com/iamdevroyal/blocpoint-client/internal/ports Navigator,StateStore
