package apiclient

import (
	"fmt"
	"net/http"
	"net/http/cookiejar"
	"time"

	"golang.org/x/net/publicsuffix"
)

// DefaultTimeout bounds a single transmitted request.
const DefaultTimeout = 30 * time.Second

// NewHTTPClient builds the transport used to reach the backend. The cookie jar scopes
// cookies by registrable domain so a session cookie set by the API host is replayed only there.
func NewHTTPClient(timeout time.Duration) (*http.Client, error) {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	jar, err := cookiejar.New(&cookiejar.Options{PublicSuffixList: publicsuffix.List})
	if err != nil {
		return nil, fmt.Errorf("create cookie jar: %w", err)
	}
	return &http.Client{Timeout: timeout, Jar: jar}, nil
}
