package scraper

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/FranksOps/bingscrape/internal/bypass"
	"github.com/FranksOps/bingscrape/internal/fingerprint"
	"github.com/FranksOps/bingscrape/pkg/httpclient"
	"github.com/FranksOps/bingscrape/pkg/useragent"
)

// DefaultTimeout bounds every page request.
const DefaultTimeout = 10 * time.Second

// FetchConfig configures the page fetcher. The header set is built once and
// sent unchanged on every request.
type FetchConfig struct {
	Timeout time.Duration
	// MaxRedirects: 0 selects 10, negative disables following.
	MaxRedirects int
	UseCookieJar bool
	UserAgent    string
	Referer      string
	// Headers override or extend BrowserHeaders.
	Headers     http.Header
	Fingerprint fingerprint.Profile
	Detectors   []bypass.Detector
}

// Page is one fetched document.
type Page struct {
	URL        string
	StatusCode int
	Headers    http.Header
	Body       []byte
	Duration   time.Duration
	FetchedAt  time.Time
	// Challenge names the detected bot challenge, if any.
	Challenge string
}

// HTML returns the body as text.
func (p *Page) HTML() string {
	return string(p.Body)
}

// BrowserHeaders returns the desktop-browser header set sent with every
// request. An empty userAgent selects useragent.Default.
func BrowserHeaders(userAgent, referer string) http.Header {
	if userAgent == "" {
		userAgent = useragent.Default
	}
	h := http.Header{}
	h.Set("User-Agent", userAgent)
	h.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,image/avif,image/webp,*/*;q=0.8")
	h.Set("Accept-Language", "en-US,en;q=0.5")
	h.Set("DNT", "1")
	h.Set("Connection", "keep-alive")
	if referer != "" {
		h.Set("Referer", referer)
	}
	h.Set("Upgrade-Insecure-Requests", "1")
	h.Set("Sec-Fetch-Dest", "document")
	h.Set("Sec-Fetch-Mode", "navigate")
	h.Set("Sec-Fetch-Site", "same-origin")
	h.Set("Sec-Fetch-User", "?1")
	h.Set("Sec-GPC", "1")
	return h
}

// Fetcher performs single page fetches with a fixed browser identity.
type Fetcher struct {
	config FetchConfig
	client *httpclient.Client
	logger *slog.Logger
}

// NewFetcher initializes a new Fetcher with the given configuration.
func NewFetcher(cfg FetchConfig, logger *slog.Logger) (*Fetcher, error) {
	if cfg.Timeout == 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.MaxRedirects == 0 {
		cfg.MaxRedirects = 10
	}
	if cfg.Fingerprint == "" {
		cfg.Fingerprint = fingerprint.DefaultProfile
	}
	if cfg.Detectors == nil {
		cfg.Detectors = bypass.DefaultDetectors()
	}
	if logger == nil {
		logger = slog.Default()
	}

	transport, err := fingerprint.Transport(cfg.Fingerprint)
	if err != nil {
		return nil, fmt.Errorf("failed to setup transport: %w", err)
	}

	headers := BrowserHeaders(cfg.UserAgent, cfg.Referer)
	for k, vals := range cfg.Headers {
		headers[http.CanonicalHeaderKey(k)] = append([]string(nil), vals...)
	}

	client, err := httpclient.New(httpclient.Config{
		Timeout:      cfg.Timeout,
		MaxRedirects: cfg.MaxRedirects,
		UseCookieJar: cfg.UseCookieJar,
		Headers:      headers,
		Transport:    transport,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create client: %w", err)
	}

	return &Fetcher{
		config: cfg,
		client: client,
		logger: logger,
	}, nil
}

// Headers returns a copy of the header set sent with every request.
func (f *Fetcher) Headers() http.Header {
	return f.client.Headers()
}

// Fetch executes a GET request to targetURL. Transport failures, timeouts
// and body read failures return an error; any HTTP status is returned as a
// Page for the caller to judge.
func (f *Fetcher) Fetch(ctx context.Context, targetURL string) (*Page, error) {
	start := time.Now()

	resp, err := f.client.Get(ctx, targetURL)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read body: %w", err)
	}

	page := &Page{
		URL:        targetURL,
		StatusCode: resp.StatusCode,
		Headers:    resp.Header,
		Body:       body,
		Duration:   time.Since(start),
		FetchedAt:  start.UTC(),
	}

	if detected, source := bypass.Analyze(&bypass.Response{
		StatusCode: page.StatusCode,
		Headers:    page.Headers,
		Body:       page.Body,
	}, f.config.Detectors); detected {
		page.Challenge = source
		f.logger.Warn("challenge page detected", "url", targetURL, "source", source, "status", page.StatusCode)
	} else if page.StatusCode >= 400 {
		f.logger.Warn("unexpected status", "url", targetURL, "status", page.StatusCode)
	}

	return page, nil
}

// Close releases idle connections held by the transport.
func (f *Fetcher) Close() {
	f.client.CloseIdleConnections()
}
