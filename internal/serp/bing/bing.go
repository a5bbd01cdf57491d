// Package bing scrapes the Bing web search result pages: it requests the
// first page of a query, recognizes the empty-result notice, extracts the
// listing into records and follows "next page" links up to a fixed cap.
package bing

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/FranksOps/bingscrape/internal/metrics"
	"github.com/FranksOps/bingscrape/internal/scraper"
	"github.com/FranksOps/bingscrape/internal/serp"
)

// ensure Scraper implements serp.Provider
var _ serp.Provider = (*Scraper)(nil)

// Scraper runs the fetch/extract/paginate loop for one query at a time.
type Scraper struct {
	fetcher   *Fetcher
	extractor *Extractor
	logger    *slog.Logger
	now       func() time.Time
}

// New creates a Scraper from its fetcher and extractor.
func New(fetcher *Fetcher, extractor *Extractor, logger *slog.Logger) *Scraper {
	if logger == nil {
		logger = slog.Default()
	}
	if extractor == nil {
		extractor = NewExtractor(DefaultPageModel, logger)
	}
	return &Scraper{
		fetcher:   fetcher,
		extractor: extractor,
		logger:    logger,
		now:       time.Now,
	}
}

// Search runs one query. A failed first page returns the (empty) outcome
// with an error wrapping serp.ErrNetworkFailure. A failure on a later page
// ends pagination quietly and keeps what was gathered. Requests are issued
// one at a time, never overlapping.
func (s *Scraper) Search(ctx context.Context, req serp.Request) (*serp.Outcome, error) {
	out := &serp.Outcome{
		Query:     req.Query,
		StartedAt: s.now().UTC(),
	}
	defer func() { out.FinishedAt = s.now().UTC() }()

	s.logger.Info("retrieving results", "query", req.Query)

	page, err := s.fetcher.FirstPage(ctx, req.Query)
	if err != nil {
		out.Stop = serp.StopFetchFailed
		return out, err
	}

	if s.extractor.DetectNoResults(page.HTML(), req.Query) {
		s.logger.Info("there are no results", "query", req.Query)
		out.Stop = serp.StopNoResults
		return out, nil
	}

	out.Found = true
	s.collect(out, page)

	if !req.Paginate {
		out.Stop = serp.StopSinglePage
		return out, nil
	}

	limit := req.PageLimit()
	s.logger.Info("starting pagination", "query", req.Query, "max_pages", limit)

	out.Stop = serp.StopPageLimit
	for fetched := 0; fetched < limit; fetched++ {
		link, ok := s.extractor.FindNextLink(page.HTML())
		if !ok {
			out.Stop = serp.StopLastPage
			break
		}

		next, err := s.fetcher.NextPage(ctx, link)
		if err != nil {
			s.logger.Warn("pagination stopped: next page failed", "link", link, "page", out.Pages+1, "err", err)
			out.Stop = serp.StopFetchFailed
			break
		}

		page = next
		s.collect(out, page)
	}

	if out.Stop == serp.StopPageLimit {
		if _, more := s.extractor.FindNextLink(page.HTML()); more {
			s.logger.Info("page limit reached, stopping pagination", "query", req.Query, "pages", out.Pages)
		} else {
			out.Stop = serp.StopLastPage
		}
	}

	return out, nil
}

// collect parses page and appends its records. A page without a listing
// contributes nothing but still counts as fetched.
func (s *Scraper) collect(out *serp.Outcome, page *scraper.Page) {
	out.Pages++

	listing, err := s.extractor.ParsePage(page.HTML())
	if err != nil {
		if errors.Is(err, serp.ErrMalformedPage) {
			metrics.MalformedPagesTotal.Inc()
		}
		s.logger.Warn("page has no results listing", "url", page.URL, "page", out.Pages, "status", page.StatusCode, "challenge", page.Challenge, "err", err)
		return
	}

	out.Results = append(out.Results, listing.Results...)
	out.SkippedItems += listing.Skipped
	metrics.RecordExtraction(len(listing.Results), listing.Skipped)

	s.logger.Debug("page parsed", "url", page.URL, "page", out.Pages, "results", len(listing.Results), "skipped", listing.Skipped, "total", len(out.Results))
}

// Config wires a Scraper over a scraper.Fetcher.
type Config struct {
	BaseURL string
	Model   PageModel
	Fetch   scraper.FetchConfig
}

// NewFromConfig builds the page fetcher, Fetcher and Extractor for cfg. The
// Referer header defaults to the base URL.
func NewFromConfig(cfg Config, logger *slog.Logger) (*Scraper, error) {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.Fetch.Referer == "" {
		cfg.Fetch.Referer = cfg.BaseURL
	}

	pages, err := scraper.NewFetcher(cfg.Fetch, logger)
	if err != nil {
		return nil, err
	}
	fetcher, err := NewFetcher(cfg.BaseURL, pages, logger)
	if err != nil {
		return nil, err
	}
	return New(fetcher, NewExtractor(cfg.Model, logger), logger), nil
}
