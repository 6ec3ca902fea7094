// Package navigator provides route navigators for environments without a router.
package navigator

import (
	"context"
	"log/slog"
	"sync"

	"github.com/iamdevroyal/blocpoint-client/internal/ports"
)

var _ ports.Navigator = (*Logger)(nil)

// Logger reports navigation requests through slog and remembers the most recent target so
// a CLI can tell the user where the app would have sent them.
type Logger struct {
	logger *slog.Logger

	mu   sync.Mutex
	last string
}

// NewLogger returns a Logger. A nil logger falls back to slog.Default.
func NewLogger(logger *slog.Logger) *Logger {
	if logger == nil {
		logger = slog.Default()
	}
	return &Logger{logger: logger.With("component", "navigator")}
}

func (n *Logger) Navigate(ctx context.Context, route string) error {
	n.mu.Lock()
	n.last = route
	n.mu.Unlock()

	n.logger.InfoContext(ctx, "navigate", "route", route)
	return nil
}

// Last returns the most recent route, or "" when nothing navigated.
func (n *Logger) Last() string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.last
}
