package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/banux/nxt-booksearch/internal/config"
)

// clearEnv blanks every variable Load consults so the host environment
// cannot leak into a test.
func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range []string{
		"LISTEN_ADDR", "CATALOG_API_URL", "LANG_RESTRICT", "USER_AGENT",
		"HTTP_TIMEOUT", "RATE_LIMIT", "CACHE_PATH", "CACHE_TTL",
		"AUTH_PASSWORD", "SESSION_SECRET", "LOG_LEVEL",
	} {
		t.Setenv(k, "")
	}
}

func TestDefault_Values(t *testing.T) {
	cfg := config.Default()
	if cfg.ListenAddr != ":8080" {
		t.Errorf("ListenAddr: got %q, want :8080", cfg.ListenAddr)
	}
	if cfg.APIURL != config.DefaultAPIURL {
		t.Errorf("APIURL: got %q, want %q", cfg.APIURL, config.DefaultAPIURL)
	}
	if cfg.LangRestrict != "en" {
		t.Errorf("LangRestrict: got %q, want en", cfg.LangRestrict)
	}
	if cfg.Password != "" {
		t.Errorf("Password: got %q, want empty", cfg.Password)
	}
	if cfg.CachePath != "" {
		t.Errorf("CachePath: got %q, want empty (cache disabled)", cfg.CachePath)
	}
	if cfg.CacheTTL != time.Hour {
		t.Errorf("CacheTTL: got %v, want 1h", cfg.CacheTTL)
	}
}

func TestLoad_EmptyPath_UsesDefaults(t *testing.T) {
	clearEnv(t)

	cfg, err := config.Load("")
	if err != nil {
		t.Fatalf("Load(\"\") error: %v", err)
	}
	if cfg.ListenAddr != ":8080" {
		t.Errorf("ListenAddr: got %q, want :8080", cfg.ListenAddr)
	}
	if cfg.HTTPTimeout != 0 {
		t.Errorf("HTTPTimeout: got %v, want 0 (transport default)", cfg.HTTPTimeout)
	}
	if cfg.RateLimit != 0 {
		t.Errorf("RateLimit: got %v, want 0", cfg.RateLimit)
	}
}

func TestLoad_FromYAMLFile(t *testing.T) {
	yaml := `
listen_addr: ":9090"
api_url: "http://localhost:9999/volumes"
lang_restrict: "fr"
http_timeout: "5s"
rate_limit: 2.5
cache_path: "/tmp/cache.db"
cache_ttl: "10m"
auth_password: "topsecret"
session_secret: "s3cr3t"
log_level: "debug"
`
	path := writeTemp(t, "config.yaml", yaml)
	clearEnv(t)

	cfg, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load error: %v", err)
	}
	if cfg.ListenAddr != ":9090" {
		t.Errorf("ListenAddr: got %q, want :9090", cfg.ListenAddr)
	}
	if cfg.APIURL != "http://localhost:9999/volumes" {
		t.Errorf("APIURL: got %q", cfg.APIURL)
	}
	if cfg.LangRestrict != "fr" {
		t.Errorf("LangRestrict: got %q, want fr", cfg.LangRestrict)
	}
	if cfg.HTTPTimeout != 5*time.Second {
		t.Errorf("HTTPTimeout: got %v, want 5s", cfg.HTTPTimeout)
	}
	if cfg.RateLimit != 2.5 {
		t.Errorf("RateLimit: got %v, want 2.5", cfg.RateLimit)
	}
	if cfg.CachePath != "/tmp/cache.db" {
		t.Errorf("CachePath: got %q", cfg.CachePath)
	}
	if cfg.CacheTTL != 10*time.Minute {
		t.Errorf("CacheTTL: got %v, want 10m", cfg.CacheTTL)
	}
	if cfg.Password != "topsecret" {
		t.Errorf("Password: got %q, want topsecret", cfg.Password)
	}
	if cfg.SessionSecret != "s3cr3t" {
		t.Errorf("SessionSecret: got %q", cfg.SessionSecret)
	}
	if cfg.LogLevel != "debug" {
		t.Errorf("LogLevel: got %q, want debug", cfg.LogLevel)
	}
}

func TestLoad_PartialYAML_UsesDefaults(t *testing.T) {
	// Only override one field; the others should stay at defaults.
	path := writeTemp(t, "partial.yaml", `listen_addr: ":7777"`)
	clearEnv(t)

	cfg, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load error: %v", err)
	}
	if cfg.ListenAddr != ":7777" {
		t.Errorf("ListenAddr: got %q, want :7777", cfg.ListenAddr)
	}
	if cfg.LangRestrict != "en" {
		t.Errorf("LangRestrict: got %q, want en (default)", cfg.LangRestrict)
	}
}

func TestLoad_EnvVarsOverrideFile(t *testing.T) {
	yaml := `
listen_addr: ":9090"
lang_restrict: "de"
auth_password: "filepass"
`
	path := writeTemp(t, "config.yaml", yaml)
	clearEnv(t)

	t.Setenv("LISTEN_ADDR", ":5555")
	t.Setenv("LANG_RESTRICT", "es")
	t.Setenv("AUTH_PASSWORD", "envpass")
	t.Setenv("RATE_LIMIT", "4")

	cfg, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load error: %v", err)
	}
	if cfg.ListenAddr != ":5555" {
		t.Errorf("ListenAddr: got %q, want :5555 (from env)", cfg.ListenAddr)
	}
	if cfg.LangRestrict != "es" {
		t.Errorf("LangRestrict: got %q, want es (from env)", cfg.LangRestrict)
	}
	if cfg.Password != "envpass" {
		t.Errorf("Password: got %q, want envpass (from env)", cfg.Password)
	}
	if cfg.RateLimit != 4 {
		t.Errorf("RateLimit: got %v, want 4 (from env)", cfg.RateLimit)
	}
}

func TestLoad_InvalidRateLimitEnv_ReturnsError(t *testing.T) {
	clearEnv(t)
	t.Setenv("RATE_LIMIT", "fast")

	if _, err := config.Load(""); err == nil {
		t.Error("expected error for non-numeric RATE_LIMIT, got nil")
	}
}

func TestLoad_NonexistentFile_ReturnsError(t *testing.T) {
	_, err := config.Load("/nonexistent/path/config.yaml")
	if err == nil {
		t.Error("expected error for nonexistent config file, got nil")
	}
}

func TestLoad_InvalidYAML_ReturnsError(t *testing.T) {
	path := writeTemp(t, "bad.yaml", "{ invalid yaml: [")
	_, err := config.Load(path)
	if err == nil {
		t.Error("expected error for invalid YAML, got nil")
	}
}

func TestFindConfigFile_EnvVar(t *testing.T) {
	path := writeTemp(t, "explicit.yaml", "listen_addr: \":1234\"")
	t.Setenv("NXT_BOOKSEARCH_CONFIG", path)

	found := config.FindConfigFile()
	if found != path {
		t.Errorf("FindConfigFile: got %q, want %q", found, path)
	}
}

func TestFindConfigFile_NoFile_ReturnsEmpty(t *testing.T) {
	t.Setenv("NXT_BOOKSEARCH_CONFIG", "")

	// Run from a fresh temp directory so there's no nxt-booksearch.yaml nearby.
	orig, _ := os.Getwd()
	dir := t.TempDir()
	_ = os.Chdir(dir)
	defer func() { _ = os.Chdir(orig) }()

	found := config.FindConfigFile()
	// ~/.config/nxt-booksearch/config.yaml may exist on the test machine,
	// so only the local-file case is checked.
	if found == "nxt-booksearch.yaml" {
		t.Error("should not return local nxt-booksearch.yaml from temp dir")
	}
}

// ---- duration settings ----

func TestLoad_CacheTTL_FromEnv(t *testing.T) {
	clearEnv(t)
	t.Setenv("CACHE_TTL", "30s")

	cfg, err := config.Load("")
	if err != nil {
		t.Fatalf("Load error: %v", err)
	}
	if cfg.CacheTTL != 30*time.Second {
		t.Errorf("CacheTTL from env: got %v, want 30s", cfg.CacheTTL)
	}
}

func TestLoad_CacheTTL_ZeroDisablesExpiry(t *testing.T) {
	path := writeTemp(t, "ttl_zero.yaml", `cache_ttl: "0"`)
	clearEnv(t)

	cfg, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load error: %v", err)
	}
	if cfg.CacheTTL != 0 {
		t.Errorf("CacheTTL with '0': got %v, want 0", cfg.CacheTTL)
	}
}

func TestLoad_InvalidDuration_KeepsDefault(t *testing.T) {
	yaml := `
cache_ttl: "not-a-duration"
http_timeout: "soon"
`
	path := writeTemp(t, "bad_duration.yaml", yaml)
	clearEnv(t)

	cfg, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load error: %v", err)
	}
	if cfg.CacheTTL != time.Hour {
		t.Errorf("CacheTTL with invalid string: got %v, want 1h (preserved default)", cfg.CacheTTL)
	}
	if cfg.HTTPTimeout != 0 {
		t.Errorf("HTTPTimeout with invalid string: got %v, want 0", cfg.HTTPTimeout)
	}
}

// writeTemp creates a temporary file with the given content and returns its path.
func writeTemp(t *testing.T, name, content string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("writeTemp: %v", err)
	}
	return path
}
