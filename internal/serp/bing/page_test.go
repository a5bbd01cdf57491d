package bing

import (
	"fmt"
	"io"
	"log/slog"
	"strings"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type fakeItem struct {
	title   string
	href    string
	caption *string
}

func algoItem(it fakeItem) string {
	var b strings.Builder
	b.WriteString(`<li class="b_algo"><div class="b_tpcn"><a class="tilk" href="` + it.href + `">site</a></div>`)
	b.WriteString(`<h2><a href="` + it.href + `" h="ID=SERP,5100.1">` + it.title + `</a></h2>`)
	if it.caption != nil {
		b.WriteString(`<div class="b_caption"><p class="b_lineclamp2">` + *it.caption + `</p></div>`)
	}
	b.WriteString(`</li>`)
	return b.String()
}

// resultsPage renders a result page with the given raw items and, when next
// is not empty, a "Next page" anchor pointing at it.
func resultsPage(items []string, next string) string {
	var b strings.Builder
	b.WriteString(`<!DOCTYPE html><html><head><title>results - Search</title></head><body>`)
	b.WriteString(`<div id="b_content"><main><ol id="b_results" role="main">`)
	b.WriteString(`<li class="b_ans"><div>Related searches</div></li>`)
	for _, it := range items {
		b.WriteString(it)
	}
	b.WriteString(`<li class="b_pag"><nav role="navigation" aria-label="More results"><ul>`)
	b.WriteString(`<li><a class="sb_pagS" href="#">1</a></li>`)
	if next != "" {
		b.WriteString(`<li><a class="sb_pagN sb_pagN_bp b_widePag sb_bp" title="Next page" href="` + next + `"><div class="sw_next">Next</div></a></li>`)
	}
	b.WriteString(`</ul></nav></li></ol></main></div></body></html>`)
	return b.String()
}

// numberedPage renders n captioned items labelled with page p.
func numberedPage(p, n int, next string) string {
	items := make([]string, 0, n)
	for i := 1; i <= n; i++ {
		c := fmt.Sprintf("Caption %d.%d", p, i)
		items = append(items, algoItem(fakeItem{
			title:   fmt.Sprintf("Result %d.%d", p, i),
			href:    fmt.Sprintf("https://example.com/%d/%d", p, i),
			caption: &c,
		}))
	}
	return resultsPage(items, next)
}

func noResultsPage(query string) string {
	return `<html><body><ol id="b_results"><li class="b_no"><h1>There are no results for <strong>` +
		strings.NewReplacer(`&`, "&amp;", `"`, "&quot;", `<`, "&lt;", `>`, "&gt;").Replace(query) +
		`</strong></h1><ul><li>Check your spelling or try different keywords</li></ul></li></ol></body></html>`
}
