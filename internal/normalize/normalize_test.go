package normalize

import (
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
)

func TestStripHTML(t *testing.T) {
	markup := `<html><head><style>body { color: red }</style>
<script>var x = 1;</script></head>
<body><h1>Pricing</h1><p>Starter  plan costs   <b>$20/mo</b>.</p></body></html>`

	got := StripHTML(markup, 0)

	assert.Equal(t, "Pricing Starter plan costs $20/mo .", got)
	assert.NotContains(t, got, "color: red")
	assert.NotContains(t, got, "var x")
}

func TestStripHTML_Truncates(t *testing.T) {
	markup := "<p>" + strings.Repeat("abcd ", 100) + "</p>"
	got := StripHTML(markup, 50)
	assert.Len(t, got, 50)
}

func TestStripHTML_Idempotent(t *testing.T) {
	markup := "<div><script>nope</script><p>Visible   text here</p></div>"
	once := StripHTML(markup, 0)
	twice := StripHTML(once, 0)
	assert.Equal(t, once, twice)
}

func TestIsPlaceholder(t *testing.T) {
	assert.True(t, IsPlaceholder(""))
	assert.True(t, IsPlaceholder("short text"))
	assert.True(t, IsPlaceholder(strings.Repeat("x", 149)))
	assert.False(t, IsPlaceholder(strings.Repeat("x", 151)))

	// Sentinels mark text as placeholder regardless of length.
	long := "(Could not scrape this) " + strings.Repeat("y", 300)
	assert.True(t, IsPlaceholder(long))
	assert.True(t, IsPlaceholder(PlaceholderNoPricingURL))
	assert.True(t, IsPlaceholder(PlaceholderNoNewsURL+strings.Repeat("z", 200)))
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "abc", Truncate("abcdef", 3))
	assert.Equal(t, "abcdef", Truncate("abcdef", 0))
	assert.Equal(t, "abcdef", Truncate("abcdef", 10))
}

func TestTruncate_RuneBoundary(t *testing.T) {
	// The euro sign is three bytes; a cut inside it backs off.
	assert.Equal(t, "ab", Truncate("ab€cd", 4))
	assert.Equal(t, "ab€", Truncate("ab€cd", 5))
	assert.Equal(t, "€", Truncate("€€€", 5))
	assert.True(t, utf8.ValidString(Truncate("€€€", 4)))
}
