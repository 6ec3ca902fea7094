package apiclient

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/iamdevroyal/blocpoint-client/internal/observability/metrics"
)

// ErrorHandler inspects a failed call. Returning a nil error means the handler recovered
// and the returned response is handed to the caller; otherwise the (possibly replaced)
// error flows to the next handler.
type ErrorHandler func(ctx context.Context, call *Call, err error) (*Response, error)

const refreshKey = "refresh"

// Expiry reasons tagged on session.expired.
const (
	expiredRefreshFailed = "refresh_failed"
	expiredNoToken       = "no_token"
	expiredRetried       = "retried"
	expiredRefreshPath   = "refresh_endpoint"
)

// recoverUnauthorized refreshes the bearer token once and re-issues the call. Any 401 it
// cannot recover removes the token (identity and device are kept) and sends the user to
// the login route.
func (c *Client) recoverUnauthorized(ctx context.Context, call *Call, err error) (*Response, error) {
	if !IsUnauthorized(err) {
		return nil, err
	}

	switch {
	case c.isRefreshPath(call.Request.Path):
		return nil, c.expire(ctx, expiredRefreshPath, err)
	case call.Attempt.Retried():
		return nil, c.expire(ctx, expiredRetried, err)
	case call.sentToken == "":
		return nil, c.expire(ctx, expiredNoToken, err)
	}

	call.Attempt = RetryAttempt

	current, tokErr := c.tokens.Token(ctx)
	if tokErr != nil {
		return nil, fmt.Errorf("load bearer token: %w", tokErr)
	}
	if current == "" {
		return nil, c.expire(ctx, expiredNoToken, err)
	}
	// Another call may have refreshed while this one was in flight.
	if current == call.sentToken {
		if refreshErr := c.refresh(ctx); refreshErr != nil {
			if ctx.Err() != nil {
				return nil, fmt.Errorf("refresh session: %w", ctx.Err())
			}
			c.logger.WarnContext(ctx, "session refresh failed",
				"path", call.Request.Path,
				"error", refreshErr,
			)
			return nil, c.expire(ctx, expiredRefreshFailed, err)
		}
	}

	// Later handlers see the retry's error once, from the outer dispatch loop.
	resp, retryErr := c.execute(ctx, call)
	if retryErr != nil {
		return c.recoverUnauthorized(ctx, call, retryErr)
	}
	return resp, nil
}

// refresh runs one shared refresh for all concurrent callers. The shared call is detached
// from the first caller's cancellation; each caller still stops waiting when its own ctx ends.
func (c *Client) refresh(ctx context.Context) error {
	ch := c.refreshes.DoChan(refreshKey, func() (any, error) {
		return nil, c.doRefresh(context.WithoutCancel(ctx))
	})
	select {
	case <-ctx.Done():
		return ctx.Err()
	case res := <-ch:
		return res.Err
	}
}

func (c *Client) doRefresh(ctx context.Context) error {
	start := time.Now()
	err := c.exchangeToken(ctx)
	metrics.EmitRefresh(c.metrics, time.Since(start), err)
	return err
}

func (c *Client) exchangeToken(ctx context.Context) error {
	call := &Call{
		Request:        Request{Method: http.MethodPost, Path: c.refreshPath},
		Attempt:        FirstAttempt,
		IdempotencyKey: newIdempotencyKey(),
	}
	// Sent without error handlers: a 401 here is terminal for the caller that asked.
	resp, err := c.execute(ctx, call)
	if err != nil {
		return err
	}

	var token string
	found, err := resp.Extract("data.token", &token)
	if err != nil {
		return fmt.Errorf("read refreshed token: %w", err)
	}
	if !found || strings.TrimSpace(token) == "" {
		return errors.New("refresh response carried no token")
	}
	if err := c.tokens.ReplaceToken(ctx, token); err != nil {
		return fmt.Errorf("store refreshed token: %w", err)
	}
	c.logger.DebugContext(ctx, "session token refreshed")
	return nil
}

// expire performs the partial teardown and returns cause unchanged.
func (c *Client) expire(ctx context.Context, reason string, cause error) error {
	ctx = context.WithoutCancel(ctx)

	if err := c.tokens.ExpireToken(ctx); err != nil {
		c.logger.ErrorContext(ctx, "failed to remove expired token", "error", err)
	}
	metrics.EmitExpired(c.metrics, reason)
	c.logger.InfoContext(ctx, "session expired", "reason", reason)

	if c.navigator != nil {
		if err := c.navigator.Navigate(ctx, c.ExpiredRoute()); err != nil {
			c.logger.WarnContext(ctx, "navigate to login failed", "error", err)
		}
	}
	return cause
}

// ExpiredRoute is the login route the navigator receives when a session cannot be recovered.
func (c *Client) ExpiredRoute() string {
	return c.loginRoute + "?expired=1"
}

func (c *Client) isRefreshPath(p string) bool {
	return normalizePath(p, "") == c.refreshPath
}
