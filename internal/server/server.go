// Package server implements the HTTP server and routing for nxt-booksearch.
package server

import (
	"io/fs"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/banux/nxt-booksearch/internal/catalog"
	"github.com/banux/nxt-booksearch/web"
)

// Options holds optional configuration for the Server.
type Options struct {
	// Password is the shared password for form-based session authentication.
	// If empty, authentication is disabled.
	Password string

	// SessionSecret signs session cookies. Required when Password is set.
	SessionSecret string

	// AssetsFS holds the templates/ and static/ directories.
	// Defaults to the embedded web.FS.
	AssetsFS fs.FS
}

// Server is the HTTP front-end for the book search.
type Server struct {
	router   *mux.Router
	searcher catalog.Searcher
	renderer *renderer
	sessions *sessionSigner
	opts     Options
}

// New creates and configures a new Server backed by the given searcher.
// If opts.Password is non-empty, session-cookie auth is required on all
// endpoints except /health, /metrics, /static/ and /login.
func New(searcher catalog.Searcher, opts Options) (*Server, error) {
	if opts.AssetsFS == nil {
		opts.AssetsFS = web.FS
	}
	rn, err := newRenderer(opts.AssetsFS)
	if err != nil {
		return nil, err
	}
	s := &Server{
		router:   mux.NewRouter(),
		searcher: searcher,
		renderer: rn,
		sessions: newSessionSigner(opts.SessionSecret),
		opts:     opts,
	}
	if err := s.registerRoutes(); err != nil {
		return nil, err
	}
	return s, nil
}

// ServeHTTP implements http.Handler, delegating to the mux router.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// registerRoutes sets up all endpoint routes.
func (s *Server) registerRoutes() error {
	r := s.router
	r.Use(requestLogger, s.recoverer)
	auth := authMiddleware(s.opts.Password, s.sessions)

	// Unmatched paths bypass router middleware, so wrap the 404 page by hand.
	r.NotFoundHandler = requestLogger(http.HandlerFunc(s.handleNotFound))

	static, err := fs.Sub(s.opts.AssetsFS, "static")
	if err != nil {
		return err
	}

	// Always-public endpoints (no auth required)
	r.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)
	r.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)
	r.PathPrefix("/static/").Handler(http.StripPrefix("/static/", http.FileServer(http.FS(static))))
	r.HandleFunc("/login", s.handleLoginPage).Methods(http.MethodGet)
	r.HandleFunc("/login", s.handleLoginPost).Methods(http.MethodPost)
	r.HandleFunc("/logout", s.handleLogout).Methods(http.MethodPost, http.MethodGet)

	// All other routes are wrapped with the auth middleware.
	protected := r.NewRoute().Subrouter()
	protected.Use(auth)

	// HTML search form and result pages
	protected.HandleFunc("/", s.handleIndex).Methods(http.MethodGet)
	protected.HandleFunc("/", s.handleSearchSubmit).Methods(http.MethodPost)
	protected.HandleFunc("/page/{page:[0-9]+}", s.handlePage).Methods(http.MethodGet)

	// API: JSON search results
	protected.HandleFunc("/api/search", s.handleAPISearch).Methods(http.MethodGet)

	// OPDS acquisition feed of search results, plus its OpenSearch description
	protected.HandleFunc("/opds/search", s.handleOPDSSearch).Methods(http.MethodGet)
	protected.HandleFunc("/opds/opensearch.xml", s.handleOpenSearch).Methods(http.MethodGet)

	return nil
}
