package search

import (
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/entrhq/scout/pkg/types"
)

// SelectorSet locates result entries in one results-page layout.
type SelectorSet struct {
	Container string
	Title     string
	Snippet   string
}

// DefaultSelectorSets cover the layouts the provider currently serves, most
// specific first.
var DefaultSelectorSets = []SelectorSet{
	{Container: "#search div[data-hveid]", Title: "h3", Snippet: ".VwiC3b"},
	{Container: "#rso div[data-hveid]", Title: "h3", Snippet: "[data-sncf='1']"},
	{Container: ".g", Title: "h3", Snippet: "div[style*='webkit-line-clamp']"},
	{Container: "div[jscontroller][data-hveid]", Title: "h3", Snippet: "div[role='text']"},
}

// Extractor reads structured results from a rendered results page. It never
// fails: unreadable markup yields fewer (possibly zero) results.
type Extractor struct {
	sets []SelectorSet
}

// NewExtractor creates an extractor. With no sets, DefaultSelectorSets are used.
func NewExtractor(sets ...SelectorSet) *Extractor {
	if len(sets) == 0 {
		sets = DefaultSelectorSets
	}
	return &Extractor{sets: sets}
}

// Extract returns at most limit results in document order, ranked from 1.
// Selector sets are tried in order; later sets only contribute URLs not seen
// yet. Entries without an http(s) link are skipped and do not count.
func (e *Extractor) Extract(html, baseURL string, limit int) types.SearchResultSet {
	results := types.SearchResultSet{}
	if limit <= 0 || strings.TrimSpace(html) == "" {
		return results
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return results
	}
	base, _ := url.Parse(baseURL)

	seen := make(map[string]bool)
	for _, set := range e.sets {
		if len(results) >= limit {
			break
		}
		doc.Find(set.Container).EachWithBreak(func(_ int, c *goquery.Selection) bool {
			r, ok := extractEntry(c, set, base)
			if !ok || seen[r.URL] {
				return true
			}
			seen[r.URL] = true
			r.Rank = len(results) + 1
			results = append(results, r)
			return len(results) < limit
		})
	}
	return results
}

func extractEntry(c *goquery.Selection, set SelectorSet, base *url.URL) (types.SearchResult, bool) {
	titleEl := c.Find(set.Title).First()
	if titleEl.Length() == 0 {
		return types.SearchResult{}, false
	}
	title := normalizeText(titleEl.Text())
	if title == "" {
		return types.SearchResult{}, false
	}

	link := resolveLink(findHref(titleEl, c), base)
	if link == "" {
		return types.SearchResult{}, false
	}

	snippet := ""
	if set.Snippet != "" {
		snippet = normalizeText(c.Find(set.Snippet).First().Text())
	}
	return types.SearchResult{Title: title, URL: link, Snippet: snippet}, true
}

// findHref prefers the anchor wrapping the title, then one inside it, then
// the first link in the container.
func findHref(titleEl, container *goquery.Selection) string {
	candidates := []*goquery.Selection{
		titleEl.Closest("a[href]"),
		titleEl.Find("a[href]").First(),
		container.Find("a[href]").First(),
	}
	for _, s := range candidates {
		if href, ok := s.Attr("href"); ok && strings.TrimSpace(href) != "" {
			return strings.TrimSpace(href)
		}
	}
	return ""
}

// resolveLink makes href absolute, unwraps provider redirect links such as
// /url?q=<target>, and returns "" unless the result is http(s).
func resolveLink(href string, base *url.URL) string {
	if href == "" {
		return ""
	}
	u, err := url.Parse(href)
	if err != nil {
		return ""
	}
	if base != nil {
		u = base.ResolveReference(u)
	}

	if u.Path == "/url" || u.Path == "/interstitial" {
		q := u.Query()
		target := q.Get("q")
		if target == "" {
			target = q.Get("url")
		}
		if target == "" {
			return ""
		}
		if u, err = url.Parse(target); err != nil {
			return ""
		}
	}

	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return ""
	}
	return u.String()
}

func normalizeText(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
