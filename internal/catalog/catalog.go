// Package catalog provides the book search abstraction for nxt-booksearch.
// It defines the normalized record type, the search query and result types,
// and the Searcher interface that catalog backends implement.
package catalog

import (
	"context"
	"errors"
	"math"
	"strings"
)

// PageSize is the number of results requested from the remote catalog per page.
const PageSize = 20

// MaxPage is the highest page whose offset still fits in an int32.
const MaxPage = math.MaxInt32/PageSize + 1

// Fallback values used when the remote record omits a field.
const (
	FallbackTitle         = "Title not available"
	FallbackAuthor        = "Author not available"
	FallbackDescription   = "Description not available"
	FallbackPublisher     = "Publisher not available"
	FallbackPublishedDate = "Date not available"
	FallbackPageCount     = "Not available"
	FallbackCategory      = "Category not available"
	FallbackInfoLink      = "#"
)

// ErrEmptyKeyword is returned when a search is attempted without a keyword.
var ErrEmptyKeyword = errors.New("empty search keyword")

// Book is a display-ready book record built from one remote catalog item.
// Every field carries a defined value; see the Fallback constants.
type Book struct {
	Title         string            `json:"title"`
	Authors       []string          `json:"authors"`
	Description   string            `json:"description"`
	ISBN          string            `json:"isbn"`
	Publisher     string            `json:"publisher"`
	PublishedDate string            `json:"published_date"`
	PageCount     string            `json:"page_count"`
	Categories    []string          `json:"categories"`
	ImageLinks    map[string]string `json:"image_links"`
	InfoLink      string            `json:"info_link"`
}

// Thumbnail returns the best available cover image URL, or "".
func (b Book) Thumbnail() string {
	for _, k := range []string{"thumbnail", "smallThumbnail", "small", "medium"} {
		if u := b.ImageLinks[k]; u != "" {
			return u
		}
	}
	return ""
}

// SearchType selects which field the keyword is matched against.
type SearchType string

const (
	SearchAll    SearchType = "all"
	SearchISBN   SearchType = "isbn"
	SearchTitle  SearchType = "title"
	SearchAuthor SearchType = "author"
)

// queryPrefixes maps a search type to the field selector prepended to the keyword.
var queryPrefixes = map[SearchType]string{
	SearchAll:    "",
	SearchISBN:   "isbn:",
	SearchTitle:  "intitle:",
	SearchAuthor: "inauthor:",
}

// ParseSearchType converts a form value to a SearchType.
// Unrecognized values map to SearchAll.
func ParseSearchType(s string) SearchType {
	t := SearchType(strings.ToLower(strings.TrimSpace(s)))
	if _, ok := queryPrefixes[t]; ok {
		return t
	}
	return SearchAll
}

// Prefix returns the query field selector for t.
func (t SearchType) Prefix() string {
	return queryPrefixes[ParseSearchType(string(t))]
}

// Query carries the parameters of one search request.
type Query struct {
	// Keyword is the user-supplied search term.
	Keyword string

	// Type selects the field the keyword is matched against.
	Type SearchType

	// Page is the 1-based result page.
	Page int
}

// ClampPage limits page to [1, MaxPage].
func ClampPage(page int) int {
	if page < 1 {
		return 1
	}
	if page > MaxPage {
		return MaxPage
	}
	return page
}

// Normalize returns a copy of q with a trimmed keyword, a known search type
// and a page within [1, MaxPage].
func (q Query) Normalize() Query {
	q.Keyword = strings.TrimSpace(q.Keyword)
	q.Type = ParseSearchType(string(q.Type))
	q.Page = ClampPage(q.Page)
	return q
}

// Term returns the remote query string: the type prefix followed by the keyword.
func (q Query) Term() string {
	return q.Type.Prefix() + q.Keyword
}

// Offset returns the zero-based index of the first result on q.Page.
func (q Query) Offset() int {
	return (ClampPage(q.Page) - 1) * PageSize
}

// Result is one page of search results.
type Result struct {
	Books      []Book
	TotalItems int
	TotalPages int
}

// Searcher is the interface that catalog backends must satisfy.
type Searcher interface {
	// Search runs q against the catalog and returns one page of results.
	// Implementations return ErrEmptyKeyword when q has no keyword.
	Search(ctx context.Context, q Query) (Result, error)
}
