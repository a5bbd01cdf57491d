package bing

import (
	"context"
	"crypto/rand"
	"fmt"
	"log/slog"
	"math/big"
	"net/url"
	"strings"
	"time"

	"github.com/FranksOps/bingscrape/internal/metrics"
	"github.com/FranksOps/bingscrape/internal/scraper"
	"github.com/FranksOps/bingscrape/internal/serp"
)

// DefaultBaseURL is the engine origin all requests resolve against.
const DefaultBaseURL = "https://www.bing.com/"

const (
	tokenLength   = 32
	tokenAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
)

// PageFetcher is the transport the Fetcher drives. *scraper.Fetcher
// satisfies it.
type PageFetcher interface {
	Fetch(ctx context.Context, targetURL string) (*scraper.Page, error)
}

// Fetcher issues the two kinds of result page request: the first page of a
// query and a follow-up page reached through a "next" link.
type Fetcher struct {
	base   *url.URL
	pages  PageFetcher
	token  func() (string, error)
	logger *slog.Logger
}

// NewFetcher builds a Fetcher rooted at baseURL (DefaultBaseURL when empty).
func NewFetcher(baseURL string, pages PageFetcher, logger *slog.Logger) (*Fetcher, error) {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if logger == nil {
		logger = slog.Default()
	}
	base, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid base url %q: %w", baseURL, err)
	}
	if base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("invalid base url %q: scheme and host required", baseURL)
	}
	if !strings.HasSuffix(base.Path, "/") {
		base.Path += "/"
	}
	return &Fetcher{
		base:   base,
		pages:  pages,
		token:  NewCorrelationToken,
		logger: logger,
	}, nil
}

// BaseURL returns the origin requests are resolved against.
func (f *Fetcher) BaseURL() string {
	return f.base.String()
}

// NewCorrelationToken returns a random 32 character token of uppercase
// letters and digits identifying one result collection.
func NewCorrelationToken() (string, error) {
	size := big.NewInt(int64(len(tokenAlphabet)))
	var b strings.Builder
	b.Grow(tokenLength)
	for i := 0; i < tokenLength; i++ {
		n, err := rand.Int(rand.Reader, size)
		if err != nil {
			return "", fmt.Errorf("generate correlation token: %w", err)
		}
		b.WriteByte(tokenAlphabet[n.Int64()])
	}
	return b.String(), nil
}

// FirstPageParams returns the query parameters of a browser-originated
// search for query, tagged with the correlation token cvid.
func FirstPageParams(query, cvid string) url.Values {
	params := url.Values{}
	params.Set("q", query)
	params.Set("form", "QBLH")
	params.Set("sp", "-1")
	params.Set("ghc", "1")
	params.Set("lq", "0")
	params.Set("pq", strings.ToLower(query))
	params.Set("sc", "10-1")
	params.Set("qs", "n")
	params.Set("sk", "")
	params.Set("cvid", cvid)
	params.Set("ghsh", "0")
	params.Set("ghacc", "0")
	params.Set("ghpl", "")
	return params
}

// FirstPageURL builds the search URL for query with a fresh correlation token.
func (f *Fetcher) FirstPageURL(query string) (string, error) {
	cvid, err := f.token()
	if err != nil {
		return "", err
	}
	u := f.base.ResolveReference(&url.URL{Path: "search"})
	u.RawQuery = FirstPageParams(query, cvid).Encode()
	return u.String(), nil
}

// FirstPage requests the first result page for query.
func (f *Fetcher) FirstPage(ctx context.Context, query string) (*scraper.Page, error) {
	target, err := f.FirstPageURL(query)
	if err != nil {
		return nil, err
	}
	return f.fetch(ctx, metrics.KindFirst, target)
}

// ResolveLink resolves a "next" href against the base origin.
func (f *Fetcher) ResolveLink(link string) (string, error) {
	ref, err := url.Parse(strings.TrimSpace(link))
	if err != nil {
		return "", fmt.Errorf("invalid next link %q: %w", link, err)
	}
	return f.base.ResolveReference(ref).String(), nil
}

// NextPage requests the page a "next" link points at.
func (f *Fetcher) NextPage(ctx context.Context, relativeLink string) (*scraper.Page, error) {
	target, err := f.ResolveLink(relativeLink)
	if err != nil {
		return nil, err
	}
	return f.fetch(ctx, metrics.KindNext, target)
}

func (f *Fetcher) fetch(ctx context.Context, kind, target string) (*scraper.Page, error) {
	f.logger.Debug("fetching", "kind", kind, "url", target)

	start := time.Now()
	page, err := f.pages.Fetch(ctx, target)
	if err != nil {
		metrics.RecordFetch(kind, 0, 0, time.Since(start), err)
		return nil, fmt.Errorf("%w: %w", serp.ErrNetworkFailure, err)
	}

	metrics.RecordFetch(kind, page.StatusCode, len(page.Body), page.Duration, nil)
	if page.Challenge != "" {
		metrics.ChallengesTotal.WithLabelValues(page.Challenge).Inc()
	}
	return page, nil
}
