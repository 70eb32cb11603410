package googlebooks

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banux/nxt-booksearch/internal/catalog"
	"github.com/banux/nxt-booksearch/internal/metrics"
)

const twoItemsJSON = `{
  "kind": "books#volumes",
  "totalItems": 45,
  "items": [
    {
      "id": "a1",
      "volumeInfo": {
        "title": "Dune",
        "authors": ["Frank Herbert"],
        "publisher": "Ace",
        "publishedDate": "1990-09-01",
        "description": "<p>Set on the desert planet <b>Arrakis</b> &amp; beyond.</p>",
        "industryIdentifiers": [
          {"type": "ISBN_13", "identifier": "9780441172719"},
          {"type": "ISBN_10", "identifier": "0441172717"}
        ],
        "pageCount": 535,
        "categories": ["Fiction"],
        "imageLinks": {"smallThumbnail": "http://img/s", "thumbnail": "http://img/t"},
        "infoLink": "http://books.google.com/books?id=a1"
      }
    },
    {
      "id": "b2",
      "volumeInfo": {}
    }
  ]
}`

// newCatalogServer starts a fake volumes endpoint that replies with body and
// records the query of every request.
func newCatalogServer(t *testing.T, status int, body string) (*httptest.Server, *[]url.Values) {
	t.Helper()
	var mu sync.Mutex
	var seen []url.Values
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		seen = append(seen, r.URL.Query())
		mu.Unlock()
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return srv, &seen
}

func TestSearch_BuildsRequest(t *testing.T) {
	tests := []struct {
		name      string
		q         catalog.Query
		wantQ     string
		wantStart string
	}{
		{"all", catalog.Query{Keyword: "dune", Type: catalog.SearchAll, Page: 1}, "dune", "0"},
		{"isbn", catalog.Query{Keyword: "9780441172719", Type: catalog.SearchISBN, Page: 1}, "isbn:9780441172719", "0"},
		{"title", catalog.Query{Keyword: "dune", Type: catalog.SearchTitle, Page: 2}, "intitle:dune", "20"},
		{"author", catalog.Query{Keyword: "herbert", Type: catalog.SearchAuthor, Page: 3}, "inauthor:herbert", "40"},
		{"unknown type", catalog.Query{Keyword: "dune", Type: "publisher", Page: 1}, "dune", "0"},
		{"keyword trimmed", catalog.Query{Keyword: "  dune ", Type: catalog.SearchAll, Page: 0}, "dune", "0"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv, seen := newCatalogServer(t, http.StatusOK, `{"totalItems":0}`)
			c := New(Options{BaseURL: srv.URL})

			_, err := c.Search(context.Background(), tt.q)
			require.NoError(t, err)
			require.Len(t, *seen, 1)

			got := (*seen)[0]
			assert.Equal(t, tt.wantQ, got.Get("q"))
			assert.Equal(t, "20", got.Get("maxResults"))
			assert.Equal(t, tt.wantStart, got.Get("startIndex"))
			assert.Equal(t, "en", got.Get("langRestrict"))
		})
	}
}

func TestSearch_LangRestrictFromOptions(t *testing.T) {
	srv, seen := newCatalogServer(t, http.StatusOK, `{"totalItems":0}`)
	c := New(Options{BaseURL: srv.URL, Lang: "fr"})

	_, err := c.Search(context.Background(), catalog.Query{Keyword: "x", Page: 1})
	require.NoError(t, err)
	assert.Equal(t, "fr", (*seen)[0].Get("langRestrict"))
}

func TestSearch_NormalizesItems(t *testing.T) {
	srv, _ := newCatalogServer(t, http.StatusOK, twoItemsJSON)
	c := New(Options{BaseURL: srv.URL})

	res, err := c.Search(context.Background(), catalog.Query{Keyword: "dune", Page: 1})
	require.NoError(t, err)

	assert.Equal(t, 45, res.TotalItems)
	assert.Equal(t, 3, res.TotalPages)
	require.Len(t, res.Books, 2)

	full := res.Books[0]
	assert.Equal(t, "Dune", full.Title)
	assert.Equal(t, []string{"Frank Herbert"}, full.Authors)
	assert.Equal(t, "Set on the desert planet Arrakis & beyond.", full.Description)
	assert.Equal(t, "9780441172719", full.ISBN)
	assert.Equal(t, "Ace", full.Publisher)
	assert.Equal(t, "1990-09-01", full.PublishedDate)
	assert.Equal(t, "535", full.PageCount)
	assert.Equal(t, []string{"Fiction"}, full.Categories)
	assert.Equal(t, "http://img/t", full.ImageLinks["thumbnail"])
	assert.Equal(t, "http://books.google.com/books?id=a1", full.InfoLink)

	empty := res.Books[1]
	assert.Equal(t, catalog.FallbackTitle, empty.Title)
	assert.Equal(t, []string{catalog.FallbackAuthor}, empty.Authors)
	assert.Equal(t, catalog.FallbackDescription, empty.Description)
	assert.Equal(t, "", empty.ISBN)
	assert.Equal(t, catalog.FallbackPublisher, empty.Publisher)
	assert.Equal(t, catalog.FallbackPublishedDate, empty.PublishedDate)
	assert.Equal(t, catalog.FallbackPageCount, empty.PageCount)
	assert.Equal(t, []string{catalog.FallbackCategory}, empty.Categories)
	assert.NotNil(t, empty.ImageLinks)
	assert.Empty(t, empty.ImageLinks)
	assert.Equal(t, catalog.FallbackInfoLink, empty.InfoLink)
}

func TestSearch_NoItemsKey(t *testing.T) {
	srv, _ := newCatalogServer(t, http.StatusOK, `{"kind":"books#volumes","totalItems":0}`)
	c := New(Options{BaseURL: srv.URL})

	res, err := c.Search(context.Background(), catalog.Query{Keyword: "zzzz", Page: 1})
	require.NoError(t, err)
	assert.NotNil(t, res.Books)
	assert.Empty(t, res.Books)
	assert.Zero(t, res.TotalItems)
	assert.Zero(t, res.TotalPages)
}

func TestSearch_FailuresYieldEmptyResult(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
	}{
		{"server error", http.StatusInternalServerError, `{"error":"boom"}`},
		{"forbidden", http.StatusForbidden, `{"error":"quota"}`},
		{"not json", http.StatusOK, `<html>`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv, _ := newCatalogServer(t, tt.status, tt.body)
			c := New(Options{BaseURL: srv.URL})

			res, err := c.Search(context.Background(), catalog.Query{Keyword: "dune", Page: 1})
			require.NoError(t, err)
			assert.Empty(t, res.Books)
			assert.Zero(t, res.TotalItems)
			assert.Zero(t, res.TotalPages)
		})
	}
}

func TestSearch_TransportFailureYieldsEmptyResult(t *testing.T) {
	srv, _ := newCatalogServer(t, http.StatusOK, twoItemsJSON)
	base := srv.URL
	srv.Close()

	c := New(Options{BaseURL: base})
	res, err := c.Search(context.Background(), catalog.Query{Keyword: "dune", Page: 1})
	require.NoError(t, err)
	assert.Empty(t, res.Books)
	assert.Zero(t, res.TotalPages)
}

func TestSearch_EmptyKeywordIssuesNoRequest(t *testing.T) {
	srv, seen := newCatalogServer(t, http.StatusOK, twoItemsJSON)
	c := New(Options{BaseURL: srv.URL})

	res, err := c.Search(context.Background(), catalog.Query{Keyword: "   ", Page: 1})
	assert.True(t, errors.Is(err, catalog.ErrEmptyKeyword))
	assert.Empty(t, res.Books)
	assert.Empty(t, *seen)
}

func TestSearch_SendsUserAgent(t *testing.T) {
	var ua atomic.Value
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ua.Store(r.UserAgent())
		_, _ = w.Write([]byte(`{"totalItems":0}`))
	}))
	defer srv.Close()

	c := New(Options{BaseURL: srv.URL, UserAgent: "nxt-booksearch-test"})
	_, err := c.Search(context.Background(), catalog.Query{Keyword: "x", Page: 1})
	require.NoError(t, err)
	assert.Equal(t, "nxt-booksearch-test", ua.Load())
}

func TestSearch_RateLimitedClientStillSearches(t *testing.T) {
	srv, seen := newCatalogServer(t, http.StatusOK, `{"totalItems":1,"items":[{"volumeInfo":{"title":"T"}}]}`)
	c := New(Options{BaseURL: srv.URL, RateLimit: 1000})

	for i := 0; i < 3; i++ {
		res, err := c.Search(context.Background(), catalog.Query{Keyword: "x", Page: 1})
		require.NoError(t, err)
		require.Len(t, res.Books, 1)
	}
	assert.Len(t, *seen, 3)
}

func TestSearch_CancelledContextYieldsEmptyResult(t *testing.T) {
	srv, _ := newCatalogServer(t, http.StatusOK, twoItemsJSON)
	c := New(Options{BaseURL: srv.URL, RateLimit: 1})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	res, err := c.Search(ctx, catalog.Query{Keyword: "dune", Page: 1})
	require.NoError(t, err)
	assert.Empty(t, res.Books)
}

// memCache is an in-memory Cache for tests.
type memCache struct {
	mu      sync.Mutex
	entries map[string][]byte
	getErr  error
}

func newMemCache() *memCache { return &memCache{entries: map[string][]byte{}} }

func (m *memCache) Get(_ context.Context, key string) ([]byte, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.getErr != nil {
		return nil, false, m.getErr
	}
	b, ok := m.entries[key]
	return b, ok, nil
}

func (m *memCache) Put(_ context.Context, key string, body []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries[key] = body
	return nil
}

func TestSearch_ServesRepeatFromCache(t *testing.T) {
	srv, seen := newCatalogServer(t, http.StatusOK, twoItemsJSON)
	cache := newMemCache()
	c := New(Options{BaseURL: srv.URL, Cache: cache})

	q := catalog.Query{Keyword: "dune", Page: 1}
	first, err := c.Search(context.Background(), q)
	require.NoError(t, err)
	second, err := c.Search(context.Background(), q)
	require.NoError(t, err)

	assert.Len(t, *seen, 1, "second search should be served from cache")
	assert.Equal(t, first, second)

	// A different page is a different key.
	_, err = c.Search(context.Background(), catalog.Query{Keyword: "dune", Page: 2})
	require.NoError(t, err)
	assert.Len(t, *seen, 2)
}

func TestSearch_FailedResponsesAreNotCached(t *testing.T) {
	srv, seen := newCatalogServer(t, http.StatusServiceUnavailable, `{}`)
	cache := newMemCache()
	c := New(Options{BaseURL: srv.URL, Cache: cache})

	q := catalog.Query{Keyword: "dune", Page: 1}
	_, _ = c.Search(context.Background(), q)
	_, _ = c.Search(context.Background(), q)

	assert.Len(t, *seen, 2)
	assert.Empty(t, cache.entries)
}

func TestSearch_UndecodableResponsesAreNotCached(t *testing.T) {
	srv, seen := newCatalogServer(t, http.StatusOK, `<html>captcha</html>`)
	cache := newMemCache()
	c := New(Options{BaseURL: srv.URL, Cache: cache})

	q := catalog.Query{Keyword: "dune", Page: 1}
	for i := 0; i < 2; i++ {
		res, err := c.Search(context.Background(), q)
		require.NoError(t, err)
		assert.Empty(t, res.Books)
	}

	assert.Len(t, *seen, 2, "each search should reach the catalog again")
	assert.Empty(t, cache.entries)
}

func TestSearch_OutcomeCountedOnce(t *testing.T) {
	outcomes := func() (ok, failed, hit float64) {
		return testutil.ToFloat64(metrics.CatalogRequestsTotal.WithLabelValues(metrics.OutcomeOK)),
			testutil.ToFloat64(metrics.CatalogRequestsTotal.WithLabelValues(metrics.OutcomeError)),
			testutil.ToFloat64(metrics.CatalogRequestsTotal.WithLabelValues(metrics.OutcomeCacheHit))
	}

	t.Run("undecodable body", func(t *testing.T) {
		srv, _ := newCatalogServer(t, http.StatusOK, `<html>`)
		c := New(Options{BaseURL: srv.URL})

		ok0, err0, hit0 := outcomes()
		_, _ = c.Search(context.Background(), catalog.Query{Keyword: "dune", Page: 1})
		ok1, err1, hit1 := outcomes()

		assert.Equal(t, ok0, ok1)
		assert.Equal(t, err0+1, err1)
		assert.Equal(t, hit0, hit1)
	})

	t.Run("success then cache hit", func(t *testing.T) {
		srv, _ := newCatalogServer(t, http.StatusOK, twoItemsJSON)
		c := New(Options{BaseURL: srv.URL, Cache: newMemCache()})
		q := catalog.Query{Keyword: "dune", Page: 1}

		ok0, err0, hit0 := outcomes()
		_, _ = c.Search(context.Background(), q)
		_, _ = c.Search(context.Background(), q)
		ok1, err1, hit1 := outcomes()

		assert.Equal(t, ok0+1, ok1)
		assert.Equal(t, err0, err1)
		assert.Equal(t, hit0+1, hit1)
	})
}

func TestSearch_CacheErrorFallsBackToRemote(t *testing.T) {
	srv, seen := newCatalogServer(t, http.StatusOK, twoItemsJSON)
	cache := newMemCache()
	cache.getErr = errors.New("disk on fire")
	c := New(Options{BaseURL: srv.URL, Cache: cache})

	res, err := c.Search(context.Background(), catalog.Query{Keyword: "dune", Page: 1})
	require.NoError(t, err)
	assert.Len(t, res.Books, 2)
	assert.Len(t, *seen, 1)
}
