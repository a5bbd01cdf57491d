package bing

// PageModel declares where things live on a result page. It is the only part
// of the package tied to the engine's current markup.
type PageModel struct {
	// Container selects the results listing; the first match is used.
	Container string
	// Item selects one result inside Container.
	Item string
	// Heading selects the result heading inside Item; its text is the title.
	Heading string
	// Link selects the anchor inside Heading; its href is the url.
	Link string
	// CaptionBlock selects the snippet block inside Item.
	CaptionBlock string
	// CaptionText selects the paragraph inside CaptionBlock.
	CaptionText string
	// NextLink selects the "next page" navigation anchor.
	NextLink string
	// NoResultsPhrase precedes the echoed query on an empty result page.
	NoResultsPhrase string
}

// DefaultPageModel describes the engine's desktop result page.
var DefaultPageModel = PageModel{
	Container:       "ol#b_results",
	Item:            "li.b_algo",
	Heading:         "h2",
	Link:            "a",
	CaptionBlock:    "div.b_caption",
	CaptionText:     "p",
	NextLink:        `a.sb_bp[title="Next page"], a.sb_bp[aria-label="Next page"]`,
	NoResultsPhrase: "There are no results for",
}

// withDefaults fills empty fields from DefaultPageModel.
func (m PageModel) withDefaults() PageModel {
	d := DefaultPageModel
	if m.Container == "" {
		m.Container = d.Container
	}
	if m.Item == "" {
		m.Item = d.Item
	}
	if m.Heading == "" {
		m.Heading = d.Heading
	}
	if m.Link == "" {
		m.Link = d.Link
	}
	if m.CaptionBlock == "" {
		m.CaptionBlock = d.CaptionBlock
	}
	if m.CaptionText == "" {
		m.CaptionText = d.CaptionText
	}
	if m.NextLink == "" {
		m.NextLink = d.NextLink
	}
	if m.NoResultsPhrase == "" {
		m.NoResultsPhrase = d.NoResultsPhrase
	}
	return m
}
