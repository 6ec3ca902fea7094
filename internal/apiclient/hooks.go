package apiclient

import (
	"fmt"
	"net/http"

	"github.com/google/uuid"
	"golang.org/x/oauth2"
)

// Header names attached to outgoing requests.
const (
	HeaderCorrelationID  = "X-Correlation-Id"
	HeaderIdempotencyKey = "Idempotency-Key"
)

// RequestHook mutates an outgoing request before it is transmitted. Hooks run in order on
// every transmitted attempt, including the refresh-retry.
type RequestHook func(req *http.Request, call *Call) error

// IsMutating reports whether method carries an Idempotency-Key.
func IsMutating(method string) bool {
	switch method {
	case http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete:
		return true
	default:
		return false
	}
}

func defaultHeadersHook(userAgent string) RequestHook {
	return func(req *http.Request, _ *Call) error {
		req.Header.Set("Accept", "application/json")
		req.Header.Set("Content-Type", "application/json")
		if userAgent != "" {
			req.Header.Set("User-Agent", userAgent)
		}
		return nil
	}
}

// bearerHook reads the token at transmission time so a retry picks up the refreshed value.
func bearerHook(tokens TokenStore) RequestHook {
	return func(req *http.Request, call *Call) error {
		token, err := tokens.Token(req.Context())
		if err != nil {
			return fmt.Errorf("load bearer token: %w", err)
		}
		call.sentToken = token
		if token == "" {
			req.Header.Del("Authorization")
			return nil
		}
		(&oauth2.Token{AccessToken: token, TokenType: "Bearer"}).SetAuthHeader(req)
		return nil
	}
}

func newIdempotencyKey() string {
	return uuid.NewString()
}

func correlationHook(req *http.Request, call *Call) error {
	call.CorrelationID = uuid.NewString()
	req.Header.Set(HeaderCorrelationID, call.CorrelationID)
	return nil
}

func idempotencyHook(req *http.Request, call *Call) error {
	if call.IdempotencyKey == "" || !IsMutating(req.Method) {
		return nil
	}
	req.Header.Set(HeaderIdempotencyKey, call.IdempotencyKey)
	return nil
}
