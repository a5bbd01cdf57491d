package serp

import (
	"context"
	"errors"
	"time"
)

// HardPageLimit is the maximum number of pages fetched after the first one.
const HardPageLimit = 100

var (
	// ErrNetworkFailure marks a timeout or transport-level failure on a fetch.
	ErrNetworkFailure = errors.New("network failure")
	// ErrMalformedPage marks a page without the results listing container.
	ErrMalformedPage = errors.New("malformed page")
	// ErrItemExtraction marks a listing item missing a required field.
	ErrItemExtraction = errors.New("item extraction failure")
	// ErrPersistence marks a failed write of the run output.
	ErrPersistence = errors.New("persistence failure")
)

// Result is one entry extracted from a results listing. Caption is nil when
// the entry has no caption block, which serializes as JSON null.
type Result struct {
	Title   string  `json:"title"`
	URL     string  `json:"url"`
	Caption *string `json:"caption"`
}

// HasCaption reports whether the entry carried a caption block.
func (r Result) HasCaption() bool {
	return r.Caption != nil
}

// CaptionText returns the caption or "" when there is none.
func (r Result) CaptionText() string {
	if r.Caption == nil {
		return ""
	}
	return *r.Caption
}

// Caption returns a pointer to s for use as Result.Caption.
func Caption(s string) *string {
	return &s
}

// URLs returns the url field of every result, in order.
func URLs(results []Result) []string {
	urls := make([]string, 0, len(results))
	for _, r := range results {
		urls = append(urls, r.URL)
	}
	return urls
}

// Request describes one top-level query.
type Request struct {
	Query    string
	Paginate bool
	// MaxPages caps pages fetched after the first. 0 or anything above
	// HardPageLimit means HardPageLimit.
	MaxPages int
}

// PageLimit returns the effective cap on follow-up page fetches.
func (r Request) PageLimit() int {
	if r.MaxPages <= 0 || r.MaxPages > HardPageLimit {
		return HardPageLimit
	}
	return r.MaxPages
}

// StopReason records why a run stopped fetching.
type StopReason string

const (
	StopNoResults   StopReason = "no_results"
	StopSinglePage  StopReason = "single_page"
	StopLastPage    StopReason = "last_page"
	StopPageLimit   StopReason = "page_limit"
	StopFetchFailed StopReason = "fetch_failed"
)

// Outcome is the aggregate of one run. Results grows in page order and is
// never reordered.
type Outcome struct {
	Query        string
	Found        bool
	Results      []Result
	Pages        int
	SkippedItems int
	Stop         StopReason
	StartedAt    time.Time
	FinishedAt   time.Time
}

// Duration returns how long the run took.
func (o *Outcome) Duration() time.Duration {
	return o.FinishedAt.Sub(o.StartedAt)
}

// Provider abstracts a search engine that can be scraped for a query.
// A query the engine has nothing for returns an Outcome with Found == false
// and a nil error.
type Provider interface {
	Search(ctx context.Context, req Request) (*Outcome, error)
}
