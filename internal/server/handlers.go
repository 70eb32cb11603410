package server

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/mux"

	"github.com/banux/nxt-booksearch/internal/catalog"
	"github.com/banux/nxt-booksearch/internal/logger"
	"github.com/banux/nxt-booksearch/internal/opds"
)

// User-visible advisory notices.
const (
	noticeNoKeyword = "Please enter a search keyword"
	noticeNoResults = "No books found"
)

// notice is an advisory message shown above the results.
type notice struct {
	Level string // "error" or "info"
	Text  string
}

// searchTypeOption is one entry of the search type <select>.
type searchTypeOption struct {
	Value string
	Label string
}

var searchTypeOptions = []searchTypeOption{
	{string(catalog.SearchAll), "All"},
	{string(catalog.SearchTitle), "Title"},
	{string(catalog.SearchAuthor), "Author"},
	{string(catalog.SearchISBN), "ISBN"},
}

// searchPage is the data passed to index.html.
type searchPage struct {
	Books       []catalog.Book
	Page        int
	Keyword     string
	SearchType  string
	TotalItems  int
	TotalPages  int
	Pages       []int
	Notices     []notice
	SearchTypes []searchTypeOption
}

func newSearchPage(keyword string, st catalog.SearchType, page int) *searchPage {
	return &searchPage{
		Books:       []catalog.Book{},
		Page:        page,
		Keyword:     keyword,
		SearchType:  string(st),
		Pages:       []int{},
		SearchTypes: searchTypeOptions,
	}
}

// search runs q and folds any searcher error into an empty result.
func (s *Server) search(ctx context.Context, q catalog.Query) catalog.Result {
	res, err := s.searcher.Search(ctx, q)
	if err != nil {
		if !errors.Is(err, catalog.ErrEmptyKeyword) {
			logger.For(ctx).WithError(err).Warn("search failed")
		}
		return catalog.Result{Books: []catalog.Book{}}
	}
	if res.Books == nil {
		res.Books = []catalog.Book{}
	}
	return res
}

// fillResults runs the search for p and records the outcome on it.
func (s *Server) fillResults(ctx context.Context, p *searchPage) {
	res := s.search(ctx, catalog.Query{
		Keyword: p.Keyword,
		Type:    catalog.SearchType(p.SearchType),
		Page:    p.Page,
	})
	p.Books = res.Books
	p.TotalItems = res.TotalItems
	p.TotalPages = res.TotalPages
	if len(p.Books) == 0 {
		p.Notices = append(p.Notices, notice{Level: "info", Text: noticeNoResults})
	}
}

// handleIndex serves the empty search form.
func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	p := newSearchPage("", catalog.SearchAll, 1)
	s.renderer.render(w, r, http.StatusOK, "index.html", p)
}

// handleSearchSubmit handles the search form POST. The first page is always
// shown, whatever page the form carries.
func (s *Server) handleSearchSubmit(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}
	keyword := strings.TrimSpace(r.PostFormValue("keyword"))
	st := catalog.ParseSearchType(r.PostFormValue("search_type"))

	p := newSearchPage(keyword, st, 1)
	if keyword == "" {
		p.Notices = append(p.Notices, notice{Level: "error", Text: noticeNoKeyword})
	} else {
		s.fillResults(r.Context(), p)
	}
	p.Pages = catalog.PageWindow(p.Page, p.TotalPages)
	s.renderer.render(w, r, http.StatusOK, "index.html", p)
}

// handlePage serves /page/{page}?keyword=&search_type= navigation links.
func (s *Server) handlePage(w http.ResponseWriter, r *http.Request) {
	page, err := strconv.Atoi(mux.Vars(r)["page"])
	if err != nil {
		page = 1
	}
	page = catalog.ClampPage(page)
	keyword := strings.TrimSpace(r.URL.Query().Get("keyword"))
	st := catalog.ParseSearchType(r.URL.Query().Get("search_type"))

	if keyword == "" {
		p := newSearchPage("", catalog.SearchAll, 1)
		p.Notices = append(p.Notices, notice{Level: "error", Text: noticeNoKeyword})
		s.renderer.render(w, r, http.StatusOK, "index.html", p)
		return
	}

	p := newSearchPage(keyword, st, page)
	s.fillResults(r.Context(), p)
	p.Pages = catalog.PageWindow(p.Page, p.TotalPages)
	s.renderer.render(w, r, http.StatusOK, "index.html", p)
}

// handleNotFound renders the 404 page.
func (s *Server) handleNotFound(w http.ResponseWriter, r *http.Request) {
	s.renderer.render(w, r, http.StatusNotFound, "404.html", nil)
}

// handleHealth serves a simple health-check endpoint.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write([]byte(`{"status":"ok"}`))
}

// parseQuery reads keyword, search type and page from the named query parameters.
func parseQuery(r *http.Request, keywordParam, typeParam string) catalog.Query {
	v := r.URL.Query()
	page, _ := strconv.Atoi(v.Get("page"))
	return catalog.Query{
		Keyword: v.Get(keywordParam),
		Type:    catalog.SearchType(v.Get(typeParam)),
		Page:    page,
	}.Normalize()
}

// searchJSON is the response body of GET /api/search.
type searchJSON struct {
	Books      []catalog.Book `json:"books"`
	Page       int            `json:"page"`
	Keyword    string         `json:"keyword"`
	SearchType string         `json:"search_type"`
	TotalItems int            `json:"total_items"`
	TotalPages int            `json:"total_pages"`
	Pages      []int          `json:"pages"`
}

// handleAPISearch serves one page of results as JSON.
// Supports ?keyword=, ?search_type= and ?page= (default 1).
func (s *Server) handleAPISearch(w http.ResponseWriter, r *http.Request) {
	q := parseQuery(r, "keyword", "search_type")
	if q.Keyword == "" {
		http.Error(w, "missing search query parameter 'keyword'", http.StatusBadRequest)
		return
	}

	res := s.search(r.Context(), q)

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(searchJSON{
		Books:      res.Books,
		Page:       q.Page,
		Keyword:    q.Keyword,
		SearchType: string(q.Type),
		TotalItems: res.TotalItems,
		TotalPages: res.TotalPages,
		Pages:      catalog.PageWindow(q.Page, res.TotalPages),
	})
}

// writeOPDS writes an OPDS XML feed response.
func writeOPDS(w http.ResponseWriter, status int, feed *opds.Feed) {
	data, err := feed.MarshalToXML()
	if err != nil {
		http.Error(w, "feed serialization error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", opds.MIMEAcquisitionFeed+"; charset=utf-8")
	w.WriteHeader(status)
	_, _ = w.Write(data)
}

// paginationLink builds a URL for the given page while preserving all other
// query parameters (e.g. q=).
func paginationLink(r *http.Request, page int) string {
	q := r.URL.Query()
	q.Set("page", strconv.Itoa(page))
	return r.URL.Path + "?" + q.Encode()
}

// addPaginationLinks appends OPDS-standard first/previous/next/last link elements
// to feed when the result set spans more than one page.
func addPaginationLinks(feed *opds.Feed, r *http.Request, page, totalPages int) {
	if totalPages <= 1 {
		return
	}
	feed.AddLink(opds.RelFirst, paginationLink(r, 1), opds.MIMEAcquisitionFeed)
	if page > 1 {
		feed.AddLink(opds.RelPrevious, paginationLink(r, page-1), opds.MIMEAcquisitionFeed)
	}
	if page < totalPages {
		feed.AddLink(opds.RelNext, paginationLink(r, page+1), opds.MIMEAcquisitionFeed)
	}
	feed.AddLink(opds.RelLast, paginationLink(r, totalPages), opds.MIMEAcquisitionFeed)
}

// bookToEntry converts a catalog.Book to an opds.Entry. index is the
// book's zero-based position in the full result set.
func bookToEntry(b catalog.Book, index int, updated time.Time) opds.Entry {
	entry := opds.Entry{
		ID:        fmt.Sprintf("urn:nxt-booksearch:result:%d", index),
		Title:     opds.Text{Value: b.Title},
		Updated:   opds.AtomDate{Time: updated},
		Summary:   &opds.Text{Value: b.Description},
		Publisher: b.Publisher,
		Issued:    b.PublishedDate,
	}
	if b.ISBN != "" {
		entry.ID = "urn:isbn:" + b.ISBN
		entry.Identifier = entry.ID
	}

	for _, a := range b.Authors {
		entry.Authors = append(entry.Authors, opds.Author{Name: a})
	}
	for _, c := range b.Categories {
		entry.Categories = append(entry.Categories, opds.Category{Term: c, Label: c})
	}

	if b.InfoLink != catalog.FallbackInfoLink {
		entry.Links = append(entry.Links, opds.Link{
			Rel:  opds.RelAlternate,
			Href: b.InfoLink,
			Type: opds.MIMEHTML,
		})
	}
	if cover := b.Thumbnail(); cover != "" {
		entry.Links = append(entry.Links, opds.Link{
			Rel:  opds.RelCover,
			Href: cover,
			Type: "image/jpeg",
		})
	}
	if thumb := b.ImageLinks["smallThumbnail"]; thumb != "" {
		entry.Links = append(entry.Links, opds.Link{
			Rel:  opds.RelThumbnail,
			Href: thumb,
			Type: "image/jpeg",
		})
	}

	return entry
}

// handleOPDSSearch serves search results as an OPDS acquisition feed.
// Supports ?q=, ?type= and ?page=.
func (s *Server) handleOPDSSearch(w http.ResponseWriter, r *http.Request) {
	q := parseQuery(r, "q", "type")
	if q.Keyword == "" {
		http.Error(w, "missing search query parameter 'q'", http.StatusBadRequest)
		return
	}

	res := s.search(r.Context(), q)

	feed := opds.NewAcquisitionFeed(
		"urn:nxt-booksearch:search:"+url.QueryEscape(q.Term()),
		fmt.Sprintf("Search: %s (%d results)", q.Keyword, res.TotalItems),
	)
	feed.TotalResults = res.TotalItems
	feed.ItemsPerPage = catalog.PageSize
	feed.StartIndex = q.Offset() + 1
	feed.AddLink(opds.RelSelf, r.URL.RequestURI(), opds.MIMEAcquisitionFeed)
	feed.AddLink(opds.RelSearch, "/opds/opensearch.xml", opds.MIMEOpenSearchDesc)
	addPaginationLinks(feed, r, q.Page, res.TotalPages)

	now := time.Now()
	for i, bk := range res.Books {
		feed.AddEntry(bookToEntry(bk, q.Offset()+i, now))
	}

	writeOPDS(w, http.StatusOK, feed)
}

// handleOpenSearch serves the OpenSearch description document.
func (s *Server) handleOpenSearch(w http.ResponseWriter, r *http.Request) {
	desc := opds.NewOpenSearchDescription(
		"nxt-booksearch",
		"Search the book catalog",
		"/opds/search?q={searchTerms}",
	)
	data, err := desc.MarshalToXML()
	if err != nil {
		http.Error(w, "opensearch serialization error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", opds.MIMEOpenSearchDesc+"; charset=utf-8")
	_, _ = w.Write(data)
}

// handleLoginPage serves the GET /login HTML form.
func (s *Server) handleLoginPage(w http.ResponseWriter, r *http.Request) {
	// If auth is disabled, redirect straight to home.
	if s.opts.Password == "" {
		http.Redirect(w, r, "/", http.StatusSeeOther)
		return
	}
	// If already logged in, redirect to home.
	if c, err := r.Cookie(sessionCookieName); err == nil && s.sessions.valid(c.Value) {
		http.Redirect(w, r, "/", http.StatusSeeOther)
		return
	}
	s.renderLoginPage(w, r, safeRedirect(r.URL.Query().Get("redirect")), "")
}

// handleLoginPost processes the POST /login form submission.
func (s *Server) handleLoginPost(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}

	password := r.FormValue("password")
	redirect := safeRedirect(r.FormValue("redirect"))

	// Constant-time password comparison to prevent timing attacks.
	passwordOK := s.opts.Password == "" ||
		(subtle.ConstantTimeCompare([]byte(password), []byte(s.opts.Password)) == 1)

	if passwordOK {
		token, err := s.sessions.create()
		if err != nil {
			logger.For(r.Context()).WithError(err).Error("session token creation failed")
			http.Error(w, "internal server error", http.StatusInternalServerError)
			return
		}
		http.SetCookie(w, &http.Cookie{
			Name:     sessionCookieName,
			Value:    token,
			Path:     "/",
			MaxAge:   int(sessionDuration.Seconds()),
			HttpOnly: true,
			SameSite: http.SameSiteLaxMode,
		})
		http.Redirect(w, r, redirect, http.StatusSeeOther)
		return
	}

	logger.For(r.Context()).WithField("remote", r.RemoteAddr).Warn("failed login attempt")
	s.renderLoginPage(w, r, redirect, "Incorrect password. Please try again.")
}

// handleLogout clears the session cookie and redirects to /login.
func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	http.SetCookie(w, &http.Cookie{
		Name:    sessionCookieName,
		Value:   "",
		Path:    "/",
		MaxAge:  -1,
		Expires: time.Unix(0, 0),
	})
	http.Redirect(w, r, "/login", http.StatusSeeOther)
}

// renderLoginPage writes the login HTML page with the given error message.
func (s *Server) renderLoginPage(w http.ResponseWriter, r *http.Request, redirect, errMsg string) {
	type data struct {
		Error    string
		Redirect string
	}
	status := http.StatusOK
	if errMsg != "" {
		status = http.StatusUnauthorized
	}
	s.renderer.render(w, r, status, "login.html", data{Error: errMsg, Redirect: redirect})
}

// safeRedirect keeps only same-site absolute paths. Browsers read a
// backslash as a slash, so any backslash is rejected.
func safeRedirect(target string) string {
	if target == "" || target[0] != '/' || strings.HasPrefix(target, "//") ||
		strings.Contains(target, "\\") {
		return "/"
	}
	u, err := url.Parse(target)
	if err != nil || u.Scheme != "" || u.Host != "" {
		return "/"
	}
	return target
}
