// Package googlebooks implements catalog.Searcher on top of the Google Books
// volumes API.
//
// Remote failures are not reported to the caller: they are logged and the
// search yields an empty result, so the UI shows "no books found" whether the
// catalog had no matches or could not be reached.
package googlebooks

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"golang.org/x/time/rate"

	"github.com/banux/nxt-booksearch/internal/catalog"
	"github.com/banux/nxt-booksearch/internal/logger"
	"github.com/banux/nxt-booksearch/internal/metrics"
)

// maxBodySize bounds how much of a catalog response is read.
const maxBodySize = 8 << 20

// Cache stores raw catalog responses keyed by request URL.
type Cache interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Put(ctx context.Context, key string, body []byte) error
}

// Options configures a Client. Zero values select the defaults noted per field.
type Options struct {
	// BaseURL is the volumes endpoint. Defaults to DefaultBaseURL.
	BaseURL string

	// Lang is sent as langRestrict. Defaults to "en".
	Lang string

	// UserAgent is sent with every request when non-empty.
	UserAgent string

	// Timeout bounds each request. 0 keeps the transport default.
	Timeout time.Duration

	// RateLimit caps requests per second. 0 disables limiting.
	RateLimit float64

	// Cache, when non-nil, is consulted before and filled after each request.
	Cache Cache

	// HTTPClient overrides the client built from Timeout.
	HTTPClient *http.Client
}

// DefaultBaseURL is the public Google Books volumes endpoint.
const DefaultBaseURL = "https://www.googleapis.com/books/v1/volumes"

// Client is a catalog.Searcher backed by the Google Books API.
type Client struct {
	httpClient *http.Client
	baseURL    string
	lang       string
	userAgent  string
	limiter    *rate.Limiter
	cache      Cache
}

var _ catalog.Searcher = (*Client)(nil)

// New returns a Client configured by opts.
func New(opts Options) *Client {
	c := &Client{
		httpClient: opts.HTTPClient,
		baseURL:    opts.BaseURL,
		lang:       opts.Lang,
		userAgent:  opts.UserAgent,
		cache:      opts.Cache,
	}
	if c.httpClient == nil {
		c.httpClient = &http.Client{Timeout: opts.Timeout}
	}
	if c.baseURL == "" {
		c.baseURL = DefaultBaseURL
	}
	if c.lang == "" {
		c.lang = "en"
	}
	if opts.RateLimit > 0 {
		c.limiter = rate.NewLimiter(rate.Limit(opts.RateLimit), 1)
	}
	return c
}

// Search runs q against the remote catalog. Transport, status and decoding
// failures are logged and produce an empty Result with a nil error.
func (c *Client) Search(ctx context.Context, q catalog.Query) (catalog.Result, error) {
	q = q.Normalize()
	if q.Keyword == "" {
		return emptyResult(), catalog.ErrEmptyKeyword
	}

	u := c.requestURL(q)
	log := logger.For(ctx).WithField("query", q.Term()).WithField("page", q.Page)

	body, cached, err := c.fetch(ctx, u)
	if err != nil {
		log.WithError(err).Warn("error fetching data from catalog API")
		metrics.CatalogRequestsTotal.WithLabelValues(metrics.OutcomeError).Inc()
		return emptyResult(), nil
	}

	var resp volumesResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		log.WithError(err).Warn("error decoding catalog API response")
		metrics.CatalogRequestsTotal.WithLabelValues(metrics.OutcomeError).Inc()
		return emptyResult(), nil
	}

	// Only bodies that decode are cached.
	if cached {
		metrics.CatalogRequestsTotal.WithLabelValues(metrics.OutcomeCacheHit).Inc()
	} else {
		metrics.CatalogRequestsTotal.WithLabelValues(metrics.OutcomeOK).Inc()
		c.store(ctx, u, body)
	}

	res := catalog.Result{
		Books:      make([]catalog.Book, 0, len(resp.Items)),
		TotalItems: resp.TotalItems,
		TotalPages: catalog.TotalPages(resp.TotalItems),
	}
	for _, item := range resp.Items {
		res.Books = append(res.Books, normalize(item))
	}
	log.WithField("total_items", res.TotalItems).Debug("catalog search done")
	return res, nil
}

// requestURL builds the volumes query URL for q.
func (c *Client) requestURL(q catalog.Query) string {
	v := url.Values{}
	v.Set("q", q.Term())
	v.Set("maxResults", strconv.Itoa(catalog.PageSize))
	v.Set("startIndex", strconv.Itoa(q.Offset()))
	v.Set("langRestrict", c.lang)
	return c.baseURL + "?" + v.Encode()
}

// fetch returns the response body for u, serving from the cache when
// possible. The boolean reports a cache hit.
func (c *Client) fetch(ctx context.Context, u string) ([]byte, bool, error) {
	if c.cache != nil {
		body, ok, err := c.cache.Get(ctx, u)
		if err != nil {
			logger.For(ctx).WithError(err).Warn("cache lookup failed")
		} else if ok {
			return body, true, nil
		}
	}

	body, err := c.get(ctx, u)
	if err != nil {
		return nil, false, err
	}
	return body, false, nil
}

func (c *Client) store(ctx context.Context, u string, body []byte) {
	if c.cache == nil {
		return
	}
	if err := c.cache.Put(ctx, u, body); err != nil {
		logger.For(ctx).WithError(err).Warn("cache store failed")
	}
}

// get performs a single GET with no retries.
func (c *Client) get(ctx context.Context, u string) ([]byte, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("rate limit: %w", err)
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	if c.userAgent != "" {
		req.Header.Set("User-Agent", c.userAgent)
	}

	done := logger.Track(ctx, "catalog request")
	start := time.Now()
	resp, err := c.httpClient.Do(req)
	metrics.CatalogRequestDuration.Observe(time.Since(start).Seconds())
	done()
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("unexpected status code: %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}
	return body, nil
}

func emptyResult() catalog.Result {
	return catalog.Result{Books: []catalog.Book{}}
}
