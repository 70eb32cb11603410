package server

import (
	"crypto/subtle"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const (
	sessionCookieName = "nxt_session"
	sessionDuration   = 30 * 24 * time.Hour // 30 days
)

// sessionSigner issues and verifies stateless session tokens: HS256 JWTs
// keyed by the configured session secret, carrying only an expiry. No
// session state is kept server-side.
type sessionSigner struct {
	key []byte
	now func() time.Time
}

func newSessionSigner(secret string) *sessionSigner {
	return &sessionSigner{key: []byte(secret), now: time.Now}
}

// create returns a token valid for sessionDuration.
func (s *sessionSigner) create() (string, error) {
	now := s.now()
	claims := jwt.RegisteredClaims{
		Subject:   "nxt-booksearch",
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(sessionDuration)),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.key)
}

// valid reports whether token carries a correct signature and has not expired.
func (s *sessionSigner) valid(token string) bool {
	t, err := jwt.ParseWithClaims(token, &jwt.RegisteredClaims{},
		func(*jwt.Token) (any, error) { return s.key, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(s.now),
	)
	return err == nil && t.Valid
}

// authMiddleware returns a middleware that enforces session-cookie authentication.
// For feed readers and API clients, HTTP Basic Auth is also accepted as a fallback.
// If password is empty, auth is disabled.
func authMiddleware(password string, sessions *sessionSigner) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if password == "" {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			// 1. Check session cookie
			if c, err := r.Cookie(sessionCookieName); err == nil {
				if sessions.valid(c.Value) {
					next.ServeHTTP(w, r)
					return
				}
			}

			// 2. Fallback: HTTP Basic Auth (for OPDS readers / API clients)
			if _, pass, ok := r.BasicAuth(); ok {
				if subtle.ConstantTimeCompare([]byte(pass), []byte(password)) == 1 {
					next.ServeHTTP(w, r)
					return
				}
			}

			// 3. Not authenticated – redirect browser requests to /login,
			//    return 401 for API / OPDS requests.
			isAPI := strings.HasPrefix(r.URL.Path, "/api/") ||
				strings.HasPrefix(r.URL.Path, "/opds/")
			accept := r.Header.Get("Accept")
			if !isAPI && (accept == "" || containsHTML(accept)) {
				http.Redirect(w, r, "/login?redirect="+url.QueryEscape(r.URL.RequestURI()), http.StatusSeeOther)
				return
			}

			w.Header().Set("WWW-Authenticate", `Basic realm="nxt-booksearch"`)
			http.Error(w, "unauthorized", http.StatusUnauthorized)
		})
	}
}

// containsHTML reports whether an Accept header value includes text/html.
func containsHTML(accept string) bool {
	for _, part := range strings.Split(accept, ",") {
		// strip quality value: "text/html;q=0.9" → "text/html"
		mt, _, _ := strings.Cut(part, ";")
		switch strings.TrimSpace(mt) {
		case "text/html", "text/*", "*/*":
			return true
		}
	}
	return false
}
