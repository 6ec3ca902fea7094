package config

import (
	"strings"
	"time"
)

// DefaultAPIBaseURL is the backend root used when API_BASE_URL is unset.
const DefaultAPIBaseURL = "http://localhost/blocpoint/blocpoint-api/public/api/v1"

// APIConfig contains backend API and session client configuration.
type APIConfig struct {
	// BaseURL is the API root every request path is joined onto.
	BaseURL string `env:"BASE_URL" envDefault:"http://localhost/blocpoint/blocpoint-api/public/api/v1"`

	// Timeout bounds a single transmitted request.
	Timeout time.Duration `env:"TIMEOUT" envDefault:"30s"`

	// RefreshPath is the endpoint that exchanges the current token for a fresh one.
	RefreshPath string `env:"REFRESH_PATH" envDefault:"/auth/refresh"`

	// LoginRoute is where the user is sent (with ?expired=1) when the session cannot be recovered.
	LoginRoute string `env:"LOGIN_ROUTE" envDefault:"/auth/login"`

	// UserAgent is sent on every request and doubles as the device model.
	UserAgent string `env:"USER_AGENT" envDefault:"blocpoint-client/1.0"`

	// Platform overrides the detected device os_version.
	Platform string `env:"PLATFORM"`
}

// Sanitize applies guardrails to API configuration values.
func (a *APIConfig) Sanitize() {
	a.BaseURL = strings.TrimRight(strings.TrimSpace(a.BaseURL), "/")
	if a.BaseURL == "" {
		a.BaseURL = DefaultAPIBaseURL
	}
	if a.Timeout <= 0 {
		a.Timeout = 30 * time.Second
	}
	a.RefreshPath = strings.TrimSpace(a.RefreshPath)
	a.LoginRoute = strings.TrimSpace(a.LoginRoute)
	a.UserAgent = strings.TrimSpace(a.UserAgent)
	a.Platform = strings.TrimSpace(a.Platform)
}
