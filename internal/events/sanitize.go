package events

import (
	"net/url"
	"strings"
	"unicode/utf8"
)

// Column limits for page_view_events.
const (
	MaxSessionIDLength = 64
	MaxPagePathLength  = 500
	MaxPageTitleLength = 300
	MaxReferrerLength  = 1000
	MaxDomainLength    = 255
	MaxUTMLength       = 100
	MaxClassLength     = 50
)

// Truncate trims value and cuts it to at most max runes.
func Truncate(value string, max int) string {
	value = strings.TrimSpace(value)
	if max <= 0 || utf8.RuneCountInString(value) <= max {
		return value
	}
	runes := []rune(value)
	return strings.TrimSpace(string(runes[:max]))
}

// Optional truncates value and returns nil when nothing is left.
func Optional(value string, max int) *string {
	v := Truncate(value, max)
	if v == "" {
		return nil
	}
	return &v
}

// NormalizePath reduces a path or full URL to a rooted path without query or
// fragment. An empty result means the input carried no usable path.
func NormalizePath(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}

	if strings.Contains(raw, "://") {
		if u, err := url.Parse(raw); err == nil {
			raw = u.EscapedPath()
		}
	}
	if i := strings.IndexAny(raw, "?#"); i >= 0 {
		raw = raw[:i]
	}
	if raw == "" {
		return "/"
	}
	if !strings.HasPrefix(raw, "/") {
		raw = "/" + raw
	}
	return Truncate(raw, MaxPagePathLength)
}

// ReferrerDomain returns the lower-cased hostname of a referrer URL, or ""
// when the referrer is missing, relative or unparseable.
func ReferrerDomain(referrer string) string {
	referrer = strings.TrimSpace(referrer)
	if referrer == "" {
		return ""
	}
	u, err := url.Parse(referrer)
	if err != nil || u.Scheme == "" {
		return ""
	}
	return Truncate(strings.ToLower(u.Hostname()), MaxDomainLength)
}

// IsSelfReferral reports whether the referrer host is the tracked site itself.
// Only exact (case-insensitive) host matches count.
func IsSelfReferral(referrerHost, siteHost string) bool {
	if referrerHost == "" || siteHost == "" {
		return false
	}
	return strings.EqualFold(referrerHost, siteHost)
}
