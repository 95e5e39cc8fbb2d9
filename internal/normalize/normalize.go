// Package normalize turns scraped markup into plain text suitable for LLM
// prompts and decides whether a piece of content is real or a placeholder.
// All functions are pure.
package normalize

import (
	"strings"
	"unicode/utf8"

	"golang.org/x/net/html"
)

// MinContentLen is the minimum trimmed length for text to count as real
// content rather than a placeholder.
const MinContentLen = 150

// Placeholder sentinels written by the research pipeline when a page could
// not be scraped. Their presence marks text as a placeholder regardless of
// length.
const (
	PlaceholderNoPricingURL  = "(No pricing URL.)"
	PlaceholderNoNewsURL     = "(No news URL or same as pricing.)"
	PlaceholderPricingFailed = "(Could not scrape pricing page.)"
	PlaceholderNewsFailed    = "(Could not scrape news page.)"
	PlaceholderNewsHomepage  = "(News page unavailable.)"
)

var placeholderMarkers = []string{
	"(Could not scrape",
	"(No pricing URL",
	"(No news URL",
	"same as pricing",
}

// StripHTML removes script and style subtrees plus all tags, collapses
// whitespace, and truncates to maxChars. maxChars <= 0 means no limit.
func StripHTML(markup string, maxChars int) string {
	if markup == "" {
		return ""
	}

	var b strings.Builder
	z := html.NewTokenizer(strings.NewReader(markup))
	skipDepth := 0
	for {
		tt := z.Next()
		switch tt {
		case html.ErrorToken:
			return Truncate(collapseWhitespace(b.String()), maxChars)
		case html.StartTagToken:
			name, _ := z.TagName()
			if skippedTag(string(name)) {
				skipDepth++
			}
		case html.EndTagToken:
			name, _ := z.TagName()
			if skippedTag(string(name)) && skipDepth > 0 {
				skipDepth--
			}
		case html.TextToken:
			if skipDepth == 0 {
				b.Write(z.Text())
				b.WriteByte(' ')
			}
		}
	}
}

func skippedTag(name string) bool {
	return name == "script" || name == "style" || name == "noscript"
}

// Truncate cuts s to at most n bytes, backing off to the previous rune
// boundary so the cut never produces invalid UTF-8. n <= 0 means no limit.
func Truncate(s string, n int) string {
	if n <= 0 || len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}

func collapseWhitespace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// IsPlaceholder reports whether text looks like an error placeholder rather
// than real page content: absent, shorter than MinContentLen, or carrying a
// recognized sentinel substring.
func IsPlaceholder(text string) bool {
	trimmed := strings.TrimSpace(text)
	if len(trimmed) < MinContentLen {
		return true
	}
	for _, marker := range placeholderMarkers {
		if strings.Contains(text, marker) {
			return true
		}
	}
	return false
}
