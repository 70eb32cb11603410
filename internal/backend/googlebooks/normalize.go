package googlebooks

import (
	"html"
	"strconv"
	"strings"

	"github.com/microcosm-cc/bluemonday"

	"github.com/banux/nxt-booksearch/internal/catalog"
)

// volumesResponse matches the subset of the volumes list payload we read.
type volumesResponse struct {
	TotalItems int          `json:"totalItems"`
	Items      []volumeItem `json:"items"`
}

type volumeItem struct {
	ID         string     `json:"id"`
	VolumeInfo volumeInfo `json:"volumeInfo"`
}

// volumeInfo uses pointers so that a missing key can be told apart from a
// present zero value.
type volumeInfo struct {
	Title               *string              `json:"title"`
	Authors             []string             `json:"authors"`
	Description         *string              `json:"description"`
	IndustryIdentifiers []industryIdentifier `json:"industryIdentifiers"`
	Publisher           *string              `json:"publisher"`
	PublishedDate       *string              `json:"publishedDate"`
	PageCount           *int                 `json:"pageCount"`
	Categories          []string             `json:"categories"`
	ImageLinks          map[string]string    `json:"imageLinks"`
	InfoLink            *string              `json:"infoLink"`
}

type industryIdentifier struct {
	Type       string `json:"type"`
	Identifier string `json:"identifier"`
}

var descriptionPolicy = bluemonday.StrictPolicy()

// normalize maps a raw catalog item to a Book, filling every missing field
// with its fallback value.
func normalize(item volumeItem) catalog.Book {
	vi := item.VolumeInfo

	b := catalog.Book{
		Title:         stringOr(vi.Title, catalog.FallbackTitle),
		Authors:       listOr(vi.Authors, catalog.FallbackAuthor),
		Description:   catalog.FallbackDescription,
		ISBN:          isbn(vi.IndustryIdentifiers),
		Publisher:     stringOr(vi.Publisher, catalog.FallbackPublisher),
		PublishedDate: stringOr(vi.PublishedDate, catalog.FallbackPublishedDate),
		PageCount:     catalog.FallbackPageCount,
		Categories:    listOr(vi.Categories, catalog.FallbackCategory),
		ImageLinks:    map[string]string{},
		InfoLink:      stringOr(vi.InfoLink, catalog.FallbackInfoLink),
	}
	if vi.Description != nil {
		b.Description = plainText(*vi.Description)
	}
	if vi.PageCount != nil {
		b.PageCount = strconv.Itoa(*vi.PageCount)
	}
	for k, v := range vi.ImageLinks {
		b.ImageLinks[k] = v
	}
	return b
}

// isbn returns the first ISBN_13 or ISBN_10 identifier in list order, or "".
// List order decides: an ISBN_10 listed before an ISBN_13 wins.
func isbn(ids []industryIdentifier) string {
	for _, id := range ids {
		if id.Type == "ISBN_13" || id.Type == "ISBN_10" {
			return id.Identifier
		}
	}
	return ""
}

// plainText strips markup from a catalog description.
func plainText(s string) string {
	return strings.TrimSpace(html.UnescapeString(descriptionPolicy.Sanitize(s)))
}

func stringOr(p *string, fallback string) string {
	if p == nil {
		return fallback
	}
	return *p
}

func listOr(l []string, fallback string) []string {
	if l == nil {
		return []string{fallback}
	}
	return l
}
