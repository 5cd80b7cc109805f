package types

// SearchResult is a single organic result read from a rendered results page.
type SearchResult struct {
	// Rank is the 1-based position in DOM order.
	Rank int `json:"rank"`

	// Title is the visible result title.
	Title string `json:"title"`

	// URL is the absolute target URL.
	URL string `json:"link"`

	// Snippet is the description text, possibly empty.
	Snippet string `json:"snippet"`
}

// SearchResultSet is an ordered, duplicate-free sequence of results.
type SearchResultSet []SearchResult

// URLs returns the result URLs in rank order.
func (s SearchResultSet) URLs() []string {
	urls := make([]string, len(s))
	for i, r := range s {
		urls[i] = r.URL
	}
	return urls
}

// SearchResponse is returned by a structured search.
type SearchResponse struct {
	Query   string          `json:"query"`
	Results SearchResultSet `json:"results"`
	URL     string          `json:"url,omitempty"`
}

// HTMLResponse is returned by a raw-HTML search.
type HTMLResponse struct {
	Query              string `json:"query"`
	HTML               string `json:"html"`
	URL                string `json:"url"`
	OriginalHTMLLength int    `json:"originalHtmlLength"`
	SavedPath          string `json:"savedPath,omitempty"`
	ScreenshotPath     string `json:"screenshotPath,omitempty"`
}

// MarkdownDocument is a rendered page converted to Markdown.
type MarkdownDocument struct {
	// Content is at most the requested number of characters.
	Content string `json:"content"`

	// Truncated is true when the full conversion exceeded the limit.
	Truncated bool `json:"truncated"`

	Title string `json:"title,omitempty"`
	URL   string `json:"url,omitempty"`

	// Degraded is set when conversion fell back to plain-text extraction.
	Degraded bool `json:"degraded,omitempty"`

	// Warnings describes any degraded conversion path taken.
	Warnings []string `json:"warnings,omitempty"`
}
