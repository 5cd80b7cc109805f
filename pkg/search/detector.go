package search

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/gobwas/glob"

	"github.com/entrhq/scout/pkg/config"
)

// Detection describes why a page was judged to be a block or challenge page.
type Detection struct {
	// Signal is "url", "text" or "selector".
	Signal string

	// Marker is the pattern, phrase or selector that matched.
	Marker string
}

func (d Detection) String() string {
	return fmt.Sprintf("%s marker %q", d.Signal, d.Marker)
}

// BlockDetector decides whether a rendered page is a block, CAPTCHA or
// consent interstitial instead of results.
//
// resultsMissing is set once the results container failed to appear. Checks
// that real result snippets can trigger should only run then.
type BlockDetector interface {
	Detect(pageURL, html string, resultsMissing bool) (Detection, bool)
}

// DetectorFunc adapts a function to BlockDetector.
type DetectorFunc func(pageURL, html string, resultsMissing bool) (Detection, bool)

// Detect implements BlockDetector.
func (f DetectorFunc) Detect(pageURL, html string, resultsMissing bool) (Detection, bool) {
	return f(pageURL, html, resultsMissing)
}

// MarkerDetector matches the page URL (without query or fragment) against
// glob patterns and the DOM against CSS selectors. Body text phrases are
// matched case-insensitively, and only when results are missing.
type MarkerDetector struct {
	urlPatterns []compiledPattern
	phrases     []string
	selectors   []string
}

type compiledPattern struct {
	raw string
	g   glob.Glob
}

// NewMarkerDetector compiles the markers in cfg.
func NewMarkerDetector(cfg config.BlockConfig) (*MarkerDetector, error) {
	d := &MarkerDetector{selectors: cfg.Selectors}

	for _, p := range cfg.URLPatterns {
		g, err := glob.Compile(strings.ToLower(p))
		if err != nil {
			return nil, fmt.Errorf("invalid block url pattern %q: %w", p, err)
		}
		d.urlPatterns = append(d.urlPatterns, compiledPattern{raw: p, g: g})
	}
	for _, m := range cfg.TextMarkers {
		if m = strings.ToLower(strings.TrimSpace(m)); m != "" {
			d.phrases = append(d.phrases, m)
		}
	}
	return d, nil
}

// Detect implements BlockDetector. URL patterns are checked first since they
// need no DOM parsing.
func (d *MarkerDetector) Detect(pageURL, html string, resultsMissing bool) (Detection, bool) {
	lowerURL := strings.ToLower(stripQuery(pageURL))
	for _, p := range d.urlPatterns {
		if p.g.Match(lowerURL) {
			return Detection{Signal: "url", Marker: p.raw}, true
		}
	}

	phrases := d.phrases
	if !resultsMissing {
		phrases = nil
	}
	if html == "" || (len(phrases) == 0 && len(d.selectors) == 0) {
		return Detection{}, false
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return Detection{}, false
	}

	for _, sel := range d.selectors {
		if doc.Find(sel).Length() > 0 {
			return Detection{Signal: "selector", Marker: sel}, true
		}
	}

	if len(phrases) == 0 {
		return Detection{}, false
	}

	body := doc.Find("body")
	body.Find("script, style, noscript").Remove()
	text := strings.ToLower(strings.Join(strings.Fields(body.Text()), " "))
	for _, phrase := range phrases {
		if strings.Contains(text, phrase) {
			return Detection{Signal: "text", Marker: phrase}, true
		}
	}
	return Detection{}, false
}

// stripQuery drops the query and fragment so search terms never match URL
// patterns.
func stripQuery(pageURL string) string {
	u, err := url.Parse(pageURL)
	if err != nil {
		if i := strings.IndexAny(pageURL, "?#"); i >= 0 {
			return pageURL[:i]
		}
		return pageURL
	}
	u.RawQuery = ""
	u.ForceQuery = false
	u.Fragment = ""
	u.RawFragment = ""
	return u.String()
}
