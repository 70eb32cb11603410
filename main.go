package main

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
	"github.com/urfave/cli/v2"

	"github.com/banux/nxt-booksearch/internal/backend/googlebooks"
	sqlitecache "github.com/banux/nxt-booksearch/internal/backend/sqlite"
	"github.com/banux/nxt-booksearch/internal/catalog"
	"github.com/banux/nxt-booksearch/internal/config"
	"github.com/banux/nxt-booksearch/internal/logger"
	"github.com/banux/nxt-booksearch/internal/server"
)

var version = "dev"

func main() {
	_ = godotenv.Load(".env.local")

	app := &cli.App{
		Name:    "nxt-booksearch",
		Usage:   "Search the Google Books catalog from a small web front-end",
		Version: version,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "Load configuration from `FILE` (default: search standard locations)",
			},
		},
		Action: serve,
		Commands: []*cli.Command{
			{
				Name:   "serve",
				Usage:  "Run the web front-end",
				Action: serve,
			},
			{
				Name:      "search",
				Usage:     "Run one search and print the normalized results",
				ArgsUsage: "KEYWORD...",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:    "type",
						Aliases: []string{"t"},
						Usage:   "Search type: all, title, author or isbn",
						Value:   string(catalog.SearchAll),
					},
					&cli.IntFlag{
						Name:    "page",
						Aliases: []string{"p"},
						Usage:   "Result page to fetch",
						Value:   1,
					},
				},
				Action: search,
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		logrus.WithError(err).Fatal("nxt-booksearch failed")
	}
}

// loadConfig resolves the config file, loads it and sets up logging.
func loadConfig(c *cli.Context) (config.Config, error) {
	path := c.String("config")
	if path == "" {
		path = config.FindConfigFile()
	}
	cfg, err := config.Load(path)
	if err != nil {
		return cfg, err
	}
	logger.Setup(cfg.LogLevel)
	if path != "" {
		logrus.WithField("path", path).Info("loaded config file")
	}
	return cfg, nil
}

// newSearcher builds the catalog client, with its response cache when one
// is configured. The returned func releases the cache.
func newSearcher(ctx context.Context, cfg config.Config) (*googlebooks.Client, func(), error) {
	opts := googlebooks.Options{
		BaseURL:   cfg.APIURL,
		Lang:      cfg.LangRestrict,
		UserAgent: cfg.UserAgent,
		Timeout:   cfg.HTTPTimeout,
		RateLimit: cfg.RateLimit,
	}
	closeFn := func() {}

	if cfg.CachePath != "" {
		cache, err := sqlitecache.New(cfg.CachePath, cfg.CacheTTL)
		if err != nil {
			return nil, nil, fmt.Errorf("open response cache: %w", err)
		}
		if n, err := cache.Prune(ctx); err != nil {
			logrus.WithError(err).Warn("pruning response cache failed")
		} else if n > 0 {
			logrus.WithField("removed", n).Info("pruned expired cached responses")
		}
		opts.Cache = cache
		closeFn = func() { _ = cache.Close() }
		logrus.WithFields(logrus.Fields{"path": cfg.CachePath, "ttl": cfg.CacheTTL}).Info("response cache enabled")
	}

	return googlebooks.New(opts), closeFn, nil
}

func serve(c *cli.Context) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
	defer stop()

	searcher, closeCache, err := newSearcher(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeCache()

	if cfg.Password == "" {
		logrus.Warn("AUTH_PASSWORD is not set, authentication is disabled")
	}
	secret := cfg.SessionSecret
	if secret == "" {
		secret, err = randomSecret()
		if err != nil {
			return err
		}
		if cfg.Password != "" {
			logrus.Warn("SESSION_SECRET is not set, sessions will not survive a restart")
		}
	}

	handler, err := server.New(searcher, server.Options{
		Password:      cfg.Password,
		SessionSecret: secret,
	})
	if err != nil {
		return fmt.Errorf("build server: %w", err)
	}

	httpServer := &http.Server{
		Addr:         cfg.ListenAddr,
		Handler:      handler,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logrus.WithField("addr", cfg.ListenAddr).Info("nxt-booksearch starting")
		errCh <- httpServer.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	logrus.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return httpServer.Shutdown(shutdownCtx)
}

func search(c *cli.Context) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}

	searcher, closeCache, err := newSearcher(c.Context, cfg)
	if err != nil {
		return err
	}
	defer closeCache()

	q := catalog.Query{
		Keyword: strings.Join(c.Args().Slice(), " "),
		Type:    catalog.ParseSearchType(c.String("type")),
		Page:    c.Int("page"),
	}.Normalize()

	res, err := searcher.Search(c.Context, q)
	if errors.Is(err, catalog.ErrEmptyKeyword) {
		return cli.Exit("Please enter a search keyword", 2)
	}
	if err != nil {
		return err
	}

	out := c.App.Writer
	if len(res.Books) == 0 {
		fmt.Fprintln(out, "No books found")
		return nil
	}
	fmt.Fprintf(out, "%d results, page %d of %d\n\n", res.TotalItems, q.Page, res.TotalPages)
	for i, b := range res.Books {
		fmt.Fprintf(out, "%3d. %s\n", q.Offset()+i+1, b.Title)
		fmt.Fprintf(out, "     by %s\n", strings.Join(b.Authors, ", "))
		fmt.Fprintf(out, "     %s, %s, %s pages\n", b.Publisher, b.PublishedDate, b.PageCount)
		if b.ISBN != "" {
			fmt.Fprintf(out, "     ISBN %s\n", b.ISBN)
		}
		fmt.Fprintf(out, "     %s\n", b.InfoLink)
	}
	fmt.Fprintf(out, "\npages: %v\n", catalog.PageWindow(q.Page, res.TotalPages))
	return nil
}

// randomSecret returns 32 random bytes, hex encoded.
func randomSecret() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("generate session secret: %w", err)
	}
	return hex.EncodeToString(b), nil
}
