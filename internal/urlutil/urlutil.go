// Package urlutil holds small URL helpers shared by the research pipeline
// and the discovery orchestrator.
package urlutil

import (
	"net/url"
	"strings"
)

// EnsureScheme prepends https:// when the URL has no scheme.
func EnsureScheme(raw string) string {
	if raw == "" {
		return raw
	}
	if strings.HasPrefix(raw, "http://") || strings.HasPrefix(raw, "https://") {
		return raw
	}
	return "https://" + raw
}

// Domain extracts the host from a URL, or returns the input when it cannot
// be parsed. Used for site-scoped search queries.
func Domain(raw string) string {
	parsed, err := url.Parse(EnsureScheme(raw))
	if err != nil || parsed.Host == "" {
		return raw
	}
	return parsed.Host
}

// Origin extracts scheme://host, used for fallback paths like /pricing and
// /blog when search yields nothing.
func Origin(raw string) string {
	parsed, err := url.Parse(EnsureScheme(raw))
	if err != nil || parsed.Host == "" {
		return raw
	}
	scheme := parsed.Scheme
	if scheme == "" {
		scheme = "https"
	}
	return strings.TrimRight(scheme+"://"+parsed.Host, "/")
}

// NormalizeDomain lowercases the host and strips a leading www. prefix.
// This is the stable identity used to dedupe competitors.
func NormalizeDomain(raw string) string {
	host := strings.ToLower(Domain(raw))
	return strings.TrimPrefix(host, "www.")
}

// NormalizeBaseURL canonicalizes a base URL for use as a history key:
// trimmed, lowercased, no trailing slash.
func NormalizeBaseURL(raw string) string {
	return strings.TrimRight(strings.ToLower(strings.TrimSpace(raw)), "/")
}

// SameDomain reports whether the URL's host equals the domain or is a
// subdomain of it.
func SameDomain(raw, domain string) bool {
	host := NormalizeDomain(raw)
	return host == domain || strings.HasSuffix(host, "."+domain)
}
