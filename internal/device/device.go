// Package device derives the device metadata sent with login and registration.
package device

import (
	"runtime"
	"strings"

	domainauth "github.com/iamdevroyal/blocpoint-client/internal/domain/auth"
)

const maxModelLen = 100

// Describer computes DeviceInfo from the client's user agent. Nothing is cached or persisted.
type Describer struct {
	UserAgent string
	// Platform overrides user-agent sniffing when set.
	Platform string
}

// Describe returns fresh device metadata.
func (d Describer) Describe() domainauth.DeviceInfo {
	return domainauth.DeviceInfo{
		Model:     truncate(d.UserAgent, maxModelLen),
		OSVersion: d.platform(),
	}
}

func (d Describer) platform() string {
	if p := strings.TrimSpace(d.Platform); p != "" {
		return p
	}
	if p := DetectPlatform(d.UserAgent); p != "" {
		return p
	}
	return goosPlatform(runtime.GOOS)
}

// DetectPlatform sniffs the operating system family from a user agent string.
// Mobile platforms are checked first since their agents also mention Linux or Mac OS.
func DetectPlatform(userAgent string) string {
	switch {
	case strings.Contains(userAgent, "Android"):
		return "Android"
	case strings.Contains(userAgent, "iPhone"), strings.Contains(userAgent, "iPad"):
		return "iOS"
	case strings.Contains(userAgent, "Win"):
		return "Windows"
	case strings.Contains(userAgent, "Mac"):
		return "macOS"
	case strings.Contains(userAgent, "Linux"):
		return "Linux"
	default:
		return ""
	}
}

func goosPlatform(goos string) string {
	switch goos {
	case "windows":
		return "Windows"
	case "darwin":
		return "macOS"
	case "linux":
		return "Linux"
	case "android":
		return "Android"
	case "ios":
		return "iOS"
	default:
		return "web-pwa"
	}
}

// truncate cuts s to at most n runes.
func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
