package bing

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/FranksOps/bingscrape/internal/fingerprint"
	"github.com/FranksOps/bingscrape/internal/scraper"
	"github.com/FranksOps/bingscrape/internal/serp"
)

func newTestFetcher(t *testing.T, baseURL string) *Fetcher {
	t.Helper()
	pages, err := scraper.NewFetcher(scraper.FetchConfig{Fingerprint: fingerprint.ProfileGo}, discardLogger())
	if err != nil {
		t.Fatalf("failed to create page fetcher: %v", err)
	}
	t.Cleanup(pages.Close)

	f, err := NewFetcher(baseURL, pages, discardLogger())
	if err != nil {
		t.Fatalf("failed to create fetcher: %v", err)
	}
	return f
}

func TestNewCorrelationToken(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 50; i++ {
		tok, err := NewCorrelationToken()
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if len(tok) != 32 {
			t.Fatalf("expected 32 characters, got %d (%q)", len(tok), tok)
		}
		for _, c := range tok {
			if !strings.ContainsRune(tokenAlphabet, c) {
				t.Fatalf("unexpected character %q in %q", c, tok)
			}
		}
		seen[tok] = true
	}
	if len(seen) < 50 {
		t.Errorf("expected distinct tokens, got %d unique of 50", len(seen))
	}
}

func TestFirstPageParams(t *testing.T) {
	p := FirstPageParams(`Filetype:PDF "Test"`, "ABC123")

	want := map[string]string{
		"q":     `Filetype:PDF "Test"`,
		"form":  "QBLH",
		"sp":    "-1",
		"ghc":   "1",
		"lq":    "0",
		"pq":    `filetype:pdf "test"`,
		"sc":    "10-1",
		"qs":    "n",
		"sk":    "",
		"cvid":  "ABC123",
		"ghsh":  "0",
		"ghacc": "0",
		"ghpl":  "",
	}
	if len(p) != len(want) {
		t.Errorf("expected %d parameters, got %d", len(want), len(p))
	}
	for k, v := range want {
		if _, ok := p[k]; !ok {
			t.Errorf("missing parameter %q", k)
			continue
		}
		if got := p.Get(k); got != v {
			t.Errorf("parameter %q: expected %q, got %q", k, v, got)
		}
	}
}

func TestNewFetcher_BaseURL(t *testing.T) {
	f := newTestFetcher(t, "http://127.0.0.1:9999")
	if f.BaseURL() != "http://127.0.0.1:9999/" {
		t.Errorf("expected trailing slash to be added, got %q", f.BaseURL())
	}

	f = newTestFetcher(t, "")
	if f.BaseURL() != DefaultBaseURL {
		t.Errorf("expected default base url, got %q", f.BaseURL())
	}

	if _, err := NewFetcher("/relative", nil, nil); err == nil {
		t.Error("expected error for base url without scheme and host")
	}
}

func TestResolveLink(t *testing.T) {
	f := newTestFetcher(t, "https://www.bing.com/")

	tests := []struct {
		link string
		want string
	}{
		{"/search?q=enthec&first=11&FORM=PERE", "https://www.bing.com/search?q=enthec&first=11&FORM=PERE"},
		{"search?q=x&first=21", "https://www.bing.com/search?q=x&first=21"},
		{"https://other.example/next", "https://other.example/next"},
		{"  /search?first=31  ", "https://www.bing.com/search?first=31"},
	}
	for _, tt := range tests {
		got, err := f.ResolveLink(tt.link)
		if err != nil {
			t.Fatalf("resolve %q: %v", tt.link, err)
		}
		if got != tt.want {
			t.Errorf("resolve %q: expected %q, got %q", tt.link, tt.want, got)
		}
	}

	if _, err := f.ResolveLink("http://[::1"); err == nil {
		t.Error("expected error for an unparsable link")
	}
}

func TestFirstPage_RequestShape(t *testing.T) {
	var mu sync.Mutex
	var cvids []string
	var headers http.Header

	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/search" {
			t.Errorf("expected /search, got %s", r.URL.Path)
		}
		mu.Lock()
		cvids = append(cvids, r.URL.Query().Get("cvid"))
		headers = r.Header.Clone()
		mu.Unlock()
		if got := r.URL.Query().Get("q"); got != "enthec" {
			t.Errorf("expected q=enthec, got %q", got)
		}
		w.Write([]byte(numberedPage(1, 1, "")))
	}))
	defer ts.Close()

	f := newTestFetcher(t, ts.URL)
	for i := 0; i < 2; i++ {
		page, err := f.FirstPage(context.Background(), "enthec")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if page.StatusCode != http.StatusOK || !strings.Contains(page.HTML(), "b_results") {
			t.Errorf("unexpected page: status %d", page.StatusCode)
		}
	}

	mu.Lock()
	defer mu.Unlock()
	if len(cvids) != 2 || cvids[0] == cvids[1] || len(cvids[0]) != 32 {
		t.Errorf("expected a fresh 32 character cvid per first page, got %v", cvids)
	}
	if headers.Get("User-Agent") == "" || headers.Get("Sec-Fetch-Mode") != "navigate" || headers.Get("DNT") != "1" {
		t.Errorf("expected browser headers, got %v", headers)
	}
}

func TestFirstPage_TokenFailure(t *testing.T) {
	f := newTestFetcher(t, "http://127.0.0.1:1")
	f.token = func() (string, error) { return "", errors.New("entropy exhausted") }

	if _, err := f.FirstPage(context.Background(), "enthec"); err == nil {
		t.Error("expected token error to be returned")
	}
}

func TestFetch_NetworkFailure(t *testing.T) {
	ts := httptest.NewServer(http.NotFoundHandler())
	addr := ts.URL
	ts.Close()

	f := newTestFetcher(t, addr)

	_, err := f.FirstPage(context.Background(), "enthec")
	if !errors.Is(err, serp.ErrNetworkFailure) {
		t.Errorf("expected ErrNetworkFailure from first page, got %v", err)
	}

	_, err = f.NextPage(context.Background(), "/search?first=11")
	if !errors.Is(err, serp.ErrNetworkFailure) {
		t.Errorf("expected ErrNetworkFailure from next page, got %v", err)
	}
}

func TestFetch_ErrorStatusIsNotAFailure(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
		w.Write([]byte("<html><body>down</body></html>"))
	}))
	defer ts.Close()

	f := newTestFetcher(t, ts.URL)
	page, err := f.FirstPage(context.Background(), "enthec")
	if err != nil {
		t.Fatalf("expected non-2xx to be returned as a page, got %v", err)
	}
	if page.StatusCode != http.StatusServiceUnavailable {
		t.Errorf("expected status 503, got %d", page.StatusCode)
	}
}
