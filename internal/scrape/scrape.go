// Package scrape fetches public web pages as plain text via Firecrawl, with
// a TTL cache so repeated discovery runs don't re-scrape unchanged pages.
package scrape

import (
	"context"
	"strings"
	"time"

	gocache "github.com/patrickmn/go-cache"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/compete-cli/internal/normalize"
	"github.com/sells-group/compete-cli/pkg/firecrawl"
)

// maxPageChars caps the text handed to downstream extraction per page.
const maxPageChars = 10000

// minHTMLFallbackChars is the minimum useful length for text recovered from
// raw HTML when markdown came back empty.
const minHTMLFallbackChars = 200

// Service fetches URLs and returns normalized plain text.
type Service struct {
	fc    firecrawl.Client
	cache *gocache.Cache
}

// New creates a scrape service. ttl controls how long fetched text is
// served from cache; ttl <= 0 disables caching.
func New(fc firecrawl.Client, ttl time.Duration) *Service {
	var c *gocache.Cache
	if ttl > 0 {
		c = gocache.New(ttl, 2*ttl)
	}
	return &Service{fc: fc, cache: c}
}

// Fetch scrapes a URL and returns its content as plain text, capped at
// 10000 chars. Markdown is preferred; stripped HTML is accepted when it
// yields more than 200 chars; anything less is an error.
func (s *Service) Fetch(ctx context.Context, url string) (string, error) {
	if s.fc == nil {
		return "", eris.New("scrape: no client configured")
	}

	if s.cache != nil {
		if cached, ok := s.cache.Get(url); ok {
			zap.L().Debug("scrape: cache hit", zap.String("url", url))
			return cached.(string), nil
		}
	}

	resp, err := s.fc.Scrape(ctx, firecrawl.ScrapeRequest{
		URL:     url,
		Formats: []string{"markdown", "html"},
	})
	if err != nil {
		return "", err
	}
	if !resp.Success {
		reason := resp.Error
		if reason == "" {
			reason = "scrape not successful"
		}
		return "", eris.Errorf("scrape: %s: %s", url, reason)
	}

	text, err := pageText(resp.Data)
	if err != nil {
		return "", eris.Wrapf(err, "scrape: %s", url)
	}

	if s.cache != nil {
		s.cache.Set(url, text, gocache.DefaultExpiration)
	}
	return text, nil
}

// pageText picks the richest usable content from a page result.
func pageText(data firecrawl.PageData) (string, error) {
	if md := normalize.Truncate(strings.TrimSpace(data.Markdown), maxPageChars); md != "" {
		return md, nil
	}

	html := data.HTML
	if html == "" {
		html = data.RawHTML
	}
	if html != "" {
		text := normalize.StripHTML(html, maxPageChars)
		if len(text) > minHTMLFallbackChars {
			return text, nil
		}
	}

	return "", eris.New("no markdown or HTML content")
}
