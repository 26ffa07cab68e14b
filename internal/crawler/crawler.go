// Package crawler fetches web pages and local files into an output directory
// so they can be converted into documents.
package crawler

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/kalambet/pageqa/internal/domain"
)

const (
	defaultOutputDir    = "crawled_files"
	defaultTimeout      = 10 * time.Second
	defaultUserAgent    = "pageqa/1.0"
	defaultMaxBodyBytes = 10 << 20
	maxFileNameLen      = 150
)

// Content types the converter understands.
const (
	TypeHTML  = "text/html"
	TypePDF   = "application/pdf"
	TypePlain = "text/plain"
)

// Options configures a Crawler. Zero values fall back to defaults.
type Options struct {
	OutputDir string
	// Depth is how many levels of same-host links to follow from each seed.
	Depth int
	// Overwrite refetches a page even if its file already exists.
	Overwrite bool
	// FilterURLs are regular expressions a discovered link must match to be
	// followed. Empty means every same-host link.
	FilterURLs   []string
	UserAgent    string
	Timeout      time.Duration
	MaxBodyBytes int64
}

// Page is one crawled file.
type Page struct {
	Locator     string
	Path        string
	ContentType string
	Seed        bool
}

type Crawler struct {
	opts    Options
	filters []*regexp.Regexp
	client  *http.Client
}

// New validates opts and returns a Crawler using its own HTTP client.
func New(opts Options) (*Crawler, error) {
	if opts.OutputDir == "" {
		opts.OutputDir = defaultOutputDir
	}
	if opts.Timeout <= 0 {
		opts.Timeout = defaultTimeout
	}
	if opts.UserAgent == "" {
		opts.UserAgent = defaultUserAgent
	}
	if opts.MaxBodyBytes <= 0 {
		opts.MaxBodyBytes = defaultMaxBodyBytes
	}
	if opts.Depth < 0 {
		return nil, fmt.Errorf("crawler depth must be >= 0, got %d", opts.Depth)
	}

	filters := make([]*regexp.Regexp, 0, len(opts.FilterURLs))
	for _, f := range opts.FilterURLs {
		re, err := regexp.Compile(f)
		if err != nil {
			return nil, fmt.Errorf("compiling url filter %q: %w", f, err)
		}
		filters = append(filters, re)
	}

	return &Crawler{
		opts:    opts,
		filters: filters,
		client:  &http.Client{Timeout: opts.Timeout},
	}, nil
}

// OutputDir is where crawled files are written.
func (c *Crawler) OutputDir() string {
	return c.opts.OutputDir
}

// Crawl fetches every seed locator, then follows links up to the configured
// depth. Seeds come first in input order, followed by discovered pages in
// discovery order. Any seed failure aborts the crawl with an
// *domain.IngestionError; discovered pages that fail are skipped.
func (c *Crawler) Crawl(ctx context.Context, locators []string) ([]Page, error) {
	if len(locators) == 0 {
		return nil, &domain.IngestionError{Err: domain.ErrNoLocators}
	}
	if err := os.MkdirAll(c.opts.OutputDir, 0o755); err != nil {
		return nil, &domain.IngestionError{Err: fmt.Errorf("creating output dir: %w", err)}
	}

	visited := make(map[string]bool)
	var pages []Page
	for _, loc := range locators {
		p, err := c.fetchLocator(ctx, loc)
		if err != nil {
			return nil, &domain.IngestionError{Locator: loc, Err: err}
		}
		p.Seed = true
		visited[normalizeURL(loc)] = true
		pages = append(pages, p)
	}

	frontier := pages
	for level := 0; level < c.opts.Depth && len(frontier) > 0; level++ {
		links := c.discover(frontier, visited)
		if len(links) == 0 {
			break
		}
		fetched := c.fetchAll(ctx, links)
		if err := ctx.Err(); err != nil {
			return nil, &domain.IngestionError{Err: err}
		}
		pages = append(pages, fetched...)
		frontier = fetched
	}

	slog.Debug("crawl finished", "seeds", len(locators), "pages", len(pages), "dir", c.opts.OutputDir)
	return pages, nil
}

// discover returns unvisited, same-host, filter-matching links found in the
// HTML pages of frontier, in document order.
func (c *Crawler) discover(frontier []Page, visited map[string]bool) []string {
	var links []string
	for _, p := range frontier {
		if p.ContentType != TypeHTML {
			continue
		}
		base, err := url.Parse(p.Locator)
		if err != nil || !isWeb(base) {
			continue
		}
		f, err := os.Open(p.Path)
		if err != nil {
			slog.Warn("reading crawled page for links", "path", p.Path, "error", err)
			continue
		}
		found := ExtractLinks(f, base)
		f.Close()

		for _, l := range found {
			u, err := url.Parse(l)
			if err != nil || u.Host != base.Host {
				continue
			}
			key := normalizeURL(l)
			if visited[key] || !c.allowed(l) {
				continue
			}
			visited[key] = true
			links = append(links, l)
		}
	}
	return links
}

func (c *Crawler) allowed(link string) bool {
	if len(c.filters) == 0 {
		return true
	}
	for _, re := range c.filters {
		if re.MatchString(link) {
			return true
		}
	}
	return false
}

// fetchAll fetches links with bounded concurrency, keeping input order and
// dropping failures.
func (c *Crawler) fetchAll(ctx context.Context, links []string) []Page {
	results := make([]*Page, len(links))
	g, gCtx := errgroup.WithContext(ctx)
	g.SetLimit(4)

	for i, link := range links {
		g.Go(func() error {
			p, err := c.fetchURL(gCtx, link)
			if err != nil {
				slog.Warn("skipping linked page", "url", link, "error", err)
				return nil
			}
			results[i] = &p
			return nil
		})
	}
	_ = g.Wait()

	pages := make([]Page, 0, len(links))
	for _, p := range results {
		if p != nil {
			pages = append(pages, *p)
		}
	}
	return pages
}

func (c *Crawler) fetchLocator(ctx context.Context, loc string) (Page, error) {
	u, err := url.Parse(loc)
	if err != nil {
		return Page{}, fmt.Errorf("parsing locator: %w", err)
	}
	if isWeb(u) {
		return c.fetchURL(ctx, loc)
	}
	switch u.Scheme {
	case "file":
		return c.copyLocal(loc, u.Path)
	case "":
		return c.copyLocal(loc, loc)
	default:
		// Windows drive letters parse as a one-letter scheme.
		if len(u.Scheme) == 1 {
			return c.copyLocal(loc, loc)
		}
		return Page{}, fmt.Errorf("unsupported scheme %q", u.Scheme)
	}
}

func (c *Crawler) fetchURL(ctx context.Context, rawURL string) (Page, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return Page{}, fmt.Errorf("parsing url: %w", err)
	}

	if !c.opts.Overwrite {
		for _, ct := range []string{TypeHTML, TypePDF, TypePlain} {
			path := filepath.Join(c.opts.OutputDir, FileName(u, ct))
			if _, err := os.Stat(path); err == nil {
				slog.Debug("reusing crawled file", "url", rawURL, "path", path)
				return Page{Locator: rawURL, Path: path, ContentType: ct}, nil
			}
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return Page{}, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("User-Agent", c.opts.UserAgent)

	resp, err := c.client.Do(req)
	if err != nil {
		return Page{}, fmt.Errorf("fetching %s: %w", rawURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return Page{}, fmt.Errorf("fetching %s: status %d", rawURL, resp.StatusCode)
	}

	ct := contentType(resp.Header.Get("Content-Type"), u.Path)
	if ct == "" {
		return Page{}, fmt.Errorf("unsupported content type %q", resp.Header.Get("Content-Type"))
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, c.opts.MaxBodyBytes+1))
	if err != nil {
		return Page{}, fmt.Errorf("reading body: %w", err)
	}
	if int64(len(body)) > c.opts.MaxBodyBytes {
		return Page{}, fmt.Errorf("body exceeds %d bytes", c.opts.MaxBodyBytes)
	}

	path := filepath.Join(c.opts.OutputDir, FileName(u, ct))
	if err := os.WriteFile(path, body, 0o644); err != nil {
		return Page{}, fmt.Errorf("writing %s: %w", path, err)
	}
	return Page{Locator: rawURL, Path: path, ContentType: ct}, nil
}

func (c *Crawler) copyLocal(loc, path string) (Page, error) {
	ct := typeFromExt(filepath.Ext(path))
	if ct == "" {
		ct = TypePlain
	}

	src, err := filepath.Abs(path)
	if err != nil {
		return Page{}, err
	}
	dst := src
	if !inDir(src, c.opts.OutputDir) {
		dst, err = filepath.Abs(filepath.Join(c.opts.OutputDir, localFileName(src)))
		if err != nil {
			return Page{}, err
		}
	}
	if src == dst {
		if _, err := os.Stat(src); err != nil {
			return Page{}, err
		}
		return Page{Locator: loc, Path: dst, ContentType: ct}, nil
	}

	if !c.opts.Overwrite {
		if _, err := os.Stat(dst); err == nil {
			return Page{Locator: loc, Path: dst, ContentType: ct}, nil
		}
	}

	data, err := os.ReadFile(src)
	if err != nil {
		return Page{}, fmt.Errorf("reading %s: %w", path, err)
	}
	if err := os.WriteFile(dst, data, 0o644); err != nil {
		return Page{}, fmt.Errorf("writing %s: %w", dst, err)
	}
	return Page{Locator: loc, Path: dst, ContentType: ct}, nil
}

// localFileName names the copy of a local file. Files sharing a base name in
// different directories get distinct names from a hash of the full path.
func localFileName(abs string) string {
	ext := filepath.Ext(abs)
	stem := strings.TrimSuffix(filepath.Base(abs), ext)
	stem = strings.Trim(unsafeChars.ReplaceAllString(stem, "_"), "_.")
	if len(stem) > maxFileNameLen {
		stem = stem[:maxFileNameLen]
	}
	sum := sha256.Sum256([]byte(abs))
	return stem + "_" + hex.EncodeToString(sum[:4]) + ext
}

// inDir reports whether path lies directly in dir.
func inDir(path, dir string) bool {
	d, err := filepath.Abs(dir)
	return err == nil && filepath.Dir(path) == d
}

// contentType maps a Content-Type header to one of the supported types,
// falling back to the URL path extension. Returns "" for unsupported types.
func contentType(header, urlPath string) string {
	if header != "" {
		mt, _, err := mime.ParseMediaType(header)
		if err == nil {
			switch {
			case mt == TypeHTML || mt == "application/xhtml+xml":
				return TypeHTML
			case mt == TypePDF:
				return TypePDF
			case strings.HasPrefix(mt, "text/"):
				return TypePlain
			case mt != "application/octet-stream":
				return ""
			}
		}
	}
	if ct := typeFromExt(filepath.Ext(urlPath)); ct != "" {
		return ct
	}
	if header == "" {
		return TypeHTML
	}
	return ""
}

func typeFromExt(ext string) string {
	switch strings.ToLower(ext) {
	case ".html", ".htm", ".xhtml":
		return TypeHTML
	case ".pdf":
		return TypePDF
	case ".txt", ".md", ".markdown", ".text":
		return TypePlain
	}
	return ""
}

func extForType(ct string) string {
	switch ct {
	case TypePDF:
		return ".pdf"
	case TypePlain:
		return ".txt"
	default:
		return ".html"
	}
}

var unsafeChars = regexp.MustCompile(`[^A-Za-z0-9._-]+`)

// FileName derives a stable file name from a URL: host and path with unsafe
// characters replaced, suffixed with the extension for ct.
func FileName(u *url.URL, ct string) string {
	ext := extForType(ct)
	name := u.Host + "_" + strings.Trim(u.Path, "/")
	if u.RawQuery != "" {
		name += "_" + u.RawQuery
	}
	name = strings.Trim(unsafeChars.ReplaceAllString(name, "_"), "_.")
	name = strings.TrimSuffix(name, ext)
	if name == "" {
		name = "index"
	}
	if len(name) > maxFileNameLen {
		name = name[:maxFileNameLen]
	}
	return name + ext
}

func normalizeURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return raw
	}
	u.Fragment = ""
	if u.Path == "" {
		u.Path = "/"
	}
	return u.String()
}

// isWeb reports whether u is an http(s) URL. Only those are fetched over the
// network and followed for links.
func isWeb(u *url.URL) bool {
	return u.Scheme == "http" || u.Scheme == "https"
}
