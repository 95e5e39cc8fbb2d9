package tavily

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSearch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/search", r.URL.Path)

		var req map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "site:xero.com pricing", req["query"])
		assert.Equal(t, float64(5), req["max_results"])
		assert.Equal(t, "test-key", req["api_key"])

		_ = json.NewEncoder(w).Encode(SearchResponse{
			Query: "site:xero.com pricing",
			Results: []SearchResult{
				{Title: "Pricing plans", URL: "https://www.xero.com/pricing/", Score: 0.98},
			},
		})
	}))
	defer srv.Close()

	client := NewClient("test-key", WithBaseURL(srv.URL))
	resp, err := client.Search(context.Background(), "site:xero.com pricing", WithMaxResults(5))

	require.NoError(t, err)
	require.Len(t, resp.Results, 1)
	assert.Equal(t, "https://www.xero.com/pricing/", resp.Results[0].URL)
}

func TestSearch_RetriesTransientFailure(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_ = json.NewEncoder(w).Encode(SearchResponse{Results: []SearchResult{{URL: "https://a.com"}}})
	}))
	defer srv.Close()

	client := NewClient("test-key", WithBaseURL(srv.URL))
	resp, err := client.Search(context.Background(), "query")

	require.NoError(t, err)
	assert.Len(t, resp.Results, 1)
	assert.Equal(t, int32(2), calls.Load())
}

func TestSearch_NonRetryableStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"detail":"invalid api key"}`))
	}))
	defer srv.Close()

	client := NewClient("bad-key", WithBaseURL(srv.URL))
	_, err := client.Search(context.Background(), "query")

	require.Error(t, err)
	assert.Contains(t, err.Error(), "401")
}
