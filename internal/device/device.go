// Package device derives human-readable device display names. When a client
// registers without an explicit initial_device_display_name, the User-Agent
// is the best available hint.
package device

import (
	"strings"

	"github.com/mssola/useragent"
)

const unknownDevice = "Unknown Device"

// DisplayName prefers the explicitly requested name and falls back to a name
// parsed from the User-Agent.
func DisplayName(requested, userAgent string) string {
	if name := strings.TrimSpace(requested); name != "" {
		return name
	}
	return ParseUserAgent(userAgent)
}

// ParseUserAgent renders a "<browser> on <platform>" label from a raw
// User-Agent string.
func ParseUserAgent(raw string) string {
	if strings.TrimSpace(raw) == "" {
		return unknownDevice
	}

	ua := useragent.New(raw)

	browser, _ := ua.Browser()
	if browser == "" {
		browser = "Unknown Browser"
	}

	platform := ua.OSInfo().Name
	if ua.Mobile() && ua.Platform() != "" {
		platform = ua.Platform()
	}
	if platform == "" {
		platform = "Unknown OS"
	}

	return browser + " on " + platform
}
