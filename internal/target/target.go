// Package target derives the stable identity of a captured link.
package target

import (
	"net/url"
	"strings"
)

// Normalize derives the canonical target identity from a raw captured
// string. It trims surrounding whitespace and requires an absolute http or
// https URL; anything else is rejected so the caller can fall back to an
// alternate capture source. It deliberately does not strip tracking
// parameters — those are distinct targets until resolved downstream.
func Normalize(raw string) (string, bool) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return "", false
	}

	u, err := url.Parse(trimmed)
	if err != nil {
		return "", false
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return "", false
	}
	return u.String(), true
}

// DisplayHost returns a short display hint for a normalized target: the host
// without a leading www. Falls back to the target itself if it no longer
// parses.
func DisplayHost(target string) string {
	u, err := url.Parse(target)
	if err != nil || u.Host == "" {
		return target
	}
	return strings.TrimPrefix(u.Host, "www.")
}
