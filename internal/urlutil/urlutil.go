// Package urlutil canonicalizes pasted share links into fetchable URLs and
// stable cache keys.
package urlutil

import (
	"net/url"
	"regexp"
	"strings"

	"shortvid/internal/domain"
)

var urlPattern = regexp.MustCompile(`(?i)https?://[^\s]+`)

// ExtractURL pulls the first http(s) URL out of free-form pasted text and
// forces the https scheme. Returns domain.ErrNoURLFound when the text holds
// no URL at all.
func ExtractURL(input string) (string, error) {
	trimmed := strings.TrimSpace(input)
	candidate := urlPattern.FindString(trimmed)
	if candidate == "" {
		return "", domain.ErrNoURLFound
	}
	if strings.HasPrefix(strings.ToLower(candidate), "http://") {
		candidate = "https://" + candidate[len("http://"):]
	}
	return candidate, nil
}

// CacheKey derives the normalized form used for cache lookups: https scheme,
// query and fragment stripped, single trailing slash removed. Malformed URLs
// degrade to a best-effort string strip instead of failing, since a cache key
// never needs to be dereferenced.
func CacheKey(rawURL string) string {
	parsed, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil || parsed.Host == "" {
		return fallbackKey(rawURL)
	}

	parsed.Scheme = "https"
	parsed.RawQuery = ""
	parsed.Fragment = ""
	parsed.RawFragment = ""
	normalized := parsed.String()
	normalized = strings.TrimSuffix(normalized, "/")
	return strings.ToLower(normalized)
}

func fallbackKey(rawURL string) string {
	key := strings.TrimSpace(rawURL)
	if idx := strings.IndexAny(key, "?#"); idx != -1 {
		key = key[:idx]
	}
	key = strings.TrimSuffix(key, "/")
	return strings.ToLower(key)
}
