// Package config handles loading application configuration from a YAML file
// with environment variable overrides.
//
// Config file format (nxt-booksearch.yaml):
//
//	listen_addr: ":8080"
//	api_url: "https://www.googleapis.com/books/v1/volumes"
//	lang_restrict: "en"
//	http_timeout: "0"
//	rate_limit: 0
//	cache_path: ""
//	cache_ttl: "1h"
//	auth_password: ""
//	session_secret: ""
//	log_level: "info"
//
// Configuration sources, in increasing priority order:
//  1. Built-in defaults
//  2. YAML config file (located by FindConfigFile or explicit path)
//  3. Environment variables (LISTEN_ADDR, CATALOG_API_URL, LANG_RESTRICT, ...)
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// DefaultAPIURL is the Google Books volumes search endpoint.
const DefaultAPIURL = "https://www.googleapis.com/books/v1/volumes"

// Config holds all application configuration.
// It is built once at startup and passed by value; nothing mutates it afterwards.
type Config struct {
	// ListenAddr is the TCP address for the HTTP server (e.g. ":8080").
	ListenAddr string `yaml:"listen_addr"`

	// APIURL is the remote catalog search endpoint.
	APIURL string `yaml:"api_url"`

	// LangRestrict restricts remote results to one language (langRestrict parameter).
	LangRestrict string `yaml:"lang_restrict"`

	// UserAgent is sent with every outbound catalog request.
	UserAgent string `yaml:"user_agent"`

	// HTTPTimeoutStr bounds each outbound request. "0" or empty leaves the
	// transport default in place (no timeout).
	HTTPTimeoutStr string `yaml:"http_timeout"`

	// HTTPTimeout is the parsed form of HTTPTimeoutStr.
	HTTPTimeout time.Duration `yaml:"-"`

	// RateLimit caps outbound catalog requests per second. 0 disables limiting.
	RateLimit float64 `yaml:"rate_limit"`

	// CachePath is the SQLite file used to cache raw catalog responses.
	// Leave empty to disable caching.
	CachePath string `yaml:"cache_path"`

	// CacheTTLStr is how long a cached response stays valid (e.g. "1h").
	CacheTTLStr string `yaml:"cache_ttl"`

	// CacheTTL is the parsed form of CacheTTLStr.
	CacheTTL time.Duration `yaml:"-"`

	// Password is the shared password for form-based authentication.
	// Leave empty to disable authentication.
	Password string `yaml:"auth_password"`

	// SessionSecret signs session cookies. When empty, main generates a
	// random secret at startup, so sessions do not survive a restart.
	SessionSecret string `yaml:"session_secret"`

	// LogLevel is a logrus level name ("debug", "info", "warn", ...).
	LogLevel string `yaml:"log_level"`
}

// Default returns a Config populated with sensible defaults.
func Default() Config {
	return Config{
		ListenAddr:   ":8080",
		APIURL:       DefaultAPIURL,
		LangRestrict: "en",
		UserAgent:    "nxt-booksearch/1.0",
		CacheTTLStr:  "1h",
		CacheTTL:     time.Hour,
		LogLevel:     "info",
	}
}

// Load reads configuration from the YAML file at path (if non-empty), then
// applies environment variable overrides on top. Returns the merged Config.
// If path is empty, only defaults and environment variables are applied.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return cfg, fmt.Errorf("read config %q: %w", path, err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("parse config %q: %w", path, err)
		}
	}

	// Environment variables always override file values so that Docker /
	// systemd overrides still work even when a config file is present.
	if v := os.Getenv("LISTEN_ADDR"); v != "" {
		cfg.ListenAddr = v
	}
	if v := os.Getenv("CATALOG_API_URL"); v != "" {
		cfg.APIURL = v
	}
	if v := os.Getenv("LANG_RESTRICT"); v != "" {
		cfg.LangRestrict = v
	}
	if v := os.Getenv("USER_AGENT"); v != "" {
		cfg.UserAgent = v
	}
	if v := os.Getenv("HTTP_TIMEOUT"); v != "" {
		cfg.HTTPTimeoutStr = v
	}
	if v := os.Getenv("RATE_LIMIT"); v != "" {
		rps, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return cfg, fmt.Errorf("parse RATE_LIMIT %q: %w", v, err)
		}
		cfg.RateLimit = rps
	}
	if v := os.Getenv("CACHE_PATH"); v != "" {
		cfg.CachePath = v
	}
	if v := os.Getenv("CACHE_TTL"); v != "" {
		cfg.CacheTTLStr = v
	}
	if v := os.Getenv("AUTH_PASSWORD"); v != "" {
		cfg.Password = v
	}
	if v := os.Getenv("SESSION_SECRET"); v != "" {
		cfg.SessionSecret = v
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}

	cfg.HTTPTimeout = parseDuration(cfg.HTTPTimeoutStr, 0)
	cfg.CacheTTL = parseDuration(cfg.CacheTTLStr, time.Hour)
	if cfg.RateLimit < 0 {
		cfg.RateLimit = 0
	}

	return cfg, nil
}

// parseDuration parses s. An empty string or "0" yields 0; an invalid
// string yields def.
func parseDuration(s string, def time.Duration) time.Duration {
	if s == "" || s == "0" {
		return 0
	}
	d, err := time.ParseDuration(s)
	if err != nil || d < 0 {
		return def
	}
	return d
}

// FindConfigFile returns the path to the first config file found in the
// standard search order, or "" if none is found.
//
// Search order:
//  1. NXT_BOOKSEARCH_CONFIG environment variable (explicit override)
//  2. ./nxt-booksearch.yaml (current working directory)
//  3. ~/.config/nxt-booksearch/config.yaml (XDG user config)
func FindConfigFile() string {
	if p := os.Getenv("NXT_BOOKSEARCH_CONFIG"); p != "" {
		return p
	}

	if _, err := os.Stat("nxt-booksearch.yaml"); err == nil {
		return "nxt-booksearch.yaml"
	}

	if home, err := os.UserHomeDir(); err == nil {
		p := filepath.Join(home, ".config", "nxt-booksearch", "config.yaml")
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}

	return ""
}
