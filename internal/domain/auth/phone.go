package auth

import (
	"regexp"
	"strings"
)

// rePhone mirrors the backend's accepted Nigerian mobile formats.
var rePhone = regexp.MustCompile(`^(\+234|0)[789][01]\d{8}$`)

// NormalizePhone converts common Nigerian mobile formats to +234XXXXXXXXXX.
// Inputs that cannot be interpreted are returned unchanged so the backend can reject them.
func NormalizePhone(raw string) string {
	if raw == "" {
		return raw
	}

	digits := strings.Map(func(r rune) rune {
		if r >= '0' && r <= '9' {
			return r
		}
		return -1
	}, raw)

	switch {
	case strings.HasPrefix(digits, "234") && len(digits) == 13:
		return "+" + digits
	case strings.HasPrefix(digits, "0") && len(digits) == 11:
		return "+234" + digits[1:]
	case len(digits) == 10:
		return "+234" + digits
	case strings.HasPrefix(digits, "234"):
		return "+" + digits
	default:
		return raw
	}
}

// ValidPhone reports whether phone is in a format the backend accepts.
func ValidPhone(phone string) bool {
	return rePhone.MatchString(phone)
}
