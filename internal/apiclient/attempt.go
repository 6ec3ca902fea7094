package apiclient

import "context"

// Attempt numbers the transmissions of one logical call. A call is sent at most twice:
// once as FirstAttempt and, after a successful token refresh, once as RetryAttempt.
type Attempt int

const (
	FirstAttempt Attempt = 1
	RetryAttempt Attempt = 2
)

// Retried reports whether the call has already used its single refresh-retry.
func (a Attempt) Retried() bool {
	return a > FirstAttempt
}

type attemptKey struct{}

// WithAttempt returns a context carrying the attempt number of the request being sent.
func WithAttempt(ctx context.Context, a Attempt) context.Context {
	return context.WithValue(ctx, attemptKey{}, a)
}

// AttemptFromContext returns the attempt stored in ctx, or FirstAttempt when absent.
func AttemptFromContext(ctx context.Context) Attempt {
	if a, ok := ctx.Value(attemptKey{}).(Attempt); ok && a >= FirstAttempt {
		return a
	}
	return FirstAttempt
}
