package server

import (
	"bytes"
	"html/template"
	"io/fs"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/banux/nxt-booksearch/internal/logger"
)

// numberPrinter formats integers with English thousands separators.
var numberPrinter = message.NewPrinter(language.English)

// formatNumber renders n with thousands separators (1234567 → "1,234,567").
func formatNumber(n int) string {
	return numberPrinter.Sprintf("%d", n)
}

// pageURL builds the pagination link for page carrying the current search.
func pageURL(page int, keyword, searchType string) string {
	q := url.Values{}
	q.Set("keyword", keyword)
	q.Set("search_type", searchType)
	return "/page/" + strconv.Itoa(page) + "?" + q.Encode()
}

var templateFuncs = template.FuncMap{
	"format_number": formatNumber,
	"join":          strings.Join,
	"inc":           func(n int) int { return n + 1 },
	"dec":           func(n int) int { return n - 1 },
	"page_url":      pageURL,
}

// renderer executes the embedded page templates.
type renderer struct {
	tmpl *template.Template
}

// newRenderer parses every templates/*.html file in fsys.
func newRenderer(fsys fs.FS) (*renderer, error) {
	tmpl, err := template.New("").Funcs(templateFuncs).ParseFS(fsys, "templates/*.html")
	if err != nil {
		return nil, err
	}
	return &renderer{tmpl: tmpl}, nil
}

// render executes the named template into a buffer first so that a template
// failure still produces a clean 500 response.
func (rn *renderer) render(w http.ResponseWriter, r *http.Request, status int, name string, data any) {
	var buf bytes.Buffer
	if err := rn.tmpl.ExecuteTemplate(&buf, name, data); err != nil {
		logger.For(r.Context()).WithError(err).WithField("template", name).Error("template execution failed")
		http.Error(w, "template error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	_, _ = buf.WriteTo(w)
}
