package bing

import (
	"fmt"
	"html"
	"log/slog"
	"regexp"
	"slices"
	"strings"

	"github.com/FranksOps/bingscrape/internal/serp"
	"github.com/PuerkitoBio/goquery"
)

// Listing is what one result page yields.
type Listing struct {
	Results []serp.Result
	// Skipped counts items dropped for missing a heading, anchor or title.
	Skipped int
}

// Extractor turns result page HTML into records using a PageModel.
type Extractor struct {
	model  PageModel
	logger *slog.Logger
}

// NewExtractor creates an Extractor. Empty model fields fall back to
// DefaultPageModel.
func NewExtractor(model PageModel, logger *slog.Logger) *Extractor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Extractor{model: model.withDefaults(), logger: logger}
}

// Model returns the page model in use.
func (e *Extractor) Model() PageModel {
	return e.model
}

// entityEscaper writes the named entities result pages use for quotes.
var entityEscaper = strings.NewReplacer(
	`&`, "&amp;",
	`<`, "&lt;",
	`>`, "&gt;",
	`"`, "&quot;",
	`'`, "&#39;",
)

// queryForms returns the distinct literal spellings query may take in page
// source: raw, with named entities, and with numeric entities.
func queryForms(query string) []string {
	forms := []string{query}
	for _, f := range []string{entityEscaper.Replace(query), html.EscapeString(query)} {
		if !slices.Contains(forms, f) {
			forms = append(forms, f)
		}
	}
	return forms
}

// DetectNoResults reports whether page carries the engine's empty-result
// notice for query. The query is matched as literal text, never as a
// pattern, optionally wrapped in <strong>.
func (e *Extractor) DetectNoResults(page, query string) bool {
	forms := queryForms(query)
	for i, f := range forms {
		forms[i] = regexp.QuoteMeta(f)
	}
	pattern := regexp.QuoteMeta(e.model.NoResultsPhrase) + `\s*(?:<strong>)?(?:` + strings.Join(forms, "|") + `)`

	re, err := regexp.Compile(pattern)
	if err != nil {
		e.logger.Error("no-results pattern failed to compile", "err", err)
		return false
	}
	return re.MatchString(page)
}

// ParsePage extracts the results listing of page in document order. A page
// without the listing container returns serp.ErrMalformedPage and no
// results; items missing a required field are skipped and counted.
func (e *Extractor) ParsePage(page string) (Listing, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(page))
	if err != nil {
		return Listing{}, fmt.Errorf("%w: %w", serp.ErrMalformedPage, err)
	}

	container := doc.Find(e.model.Container).First()
	if container.Length() == 0 {
		return Listing{}, fmt.Errorf("%w: no %q container", serp.ErrMalformedPage, e.model.Container)
	}

	var listing Listing
	container.Find(e.model.Item).Each(func(i int, item *goquery.Selection) {
		res, err := e.extractItem(item)
		if err != nil {
			listing.Skipped++
			e.logger.Warn("skipping result item", "position", i, "err", err)
			return
		}
		listing.Results = append(listing.Results, res)
	})

	return listing, nil
}

func (e *Extractor) extractItem(item *goquery.Selection) (serp.Result, error) {
	heading := item.Find(e.model.Heading).First()
	if heading.Length() == 0 {
		return serp.Result{}, fmt.Errorf("%w: no heading", serp.ErrItemExtraction)
	}

	title := strings.TrimSpace(heading.Text())
	if title == "" {
		return serp.Result{}, fmt.Errorf("%w: empty title", serp.ErrItemExtraction)
	}

	href, ok := heading.Find(e.model.Link).First().Attr("href")
	href = strings.TrimSpace(href)
	if !ok || href == "" {
		return serp.Result{}, fmt.Errorf("%w: no link in heading %q", serp.ErrItemExtraction, title)
	}

	res := serp.Result{Title: title, URL: href}

	block := item.Find(e.model.CaptionBlock).First()
	if block.Length() > 0 {
		if p := block.Find(e.model.CaptionText).First(); p.Length() > 0 {
			res.Caption = serp.Caption(strings.TrimSpace(p.Text()))
		}
	}

	return res, nil
}

// FindNextLink returns the href of the "next page" anchor, or false when the
// page has none.
func (e *Extractor) FindNextLink(page string) (string, bool) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(page))
	if err != nil {
		return "", false
	}

	href, ok := doc.Find(e.model.NextLink).First().Attr("href")
	if !ok || strings.TrimSpace(href) == "" {
		return "", false
	}
	return href, true
}
