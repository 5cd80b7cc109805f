package search

import (
	"encoding/json"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// resultsPage renders n organic entries in the primary layout.
func resultsPage(n int) string {
	var b strings.Builder
	b.WriteString(`<html><head><title>results</title></head><body><div id="search"><div id="rso">`)
	for i := 1; i <= n; i++ {
		fmt.Fprintf(&b, `<div data-hveid="r%d"><a href="https://example.com/page/%d"><h3>Result %d</h3></a><div class="VwiC3b">Snippet %d</div></div>`, i, i, i, i)
	}
	b.WriteString(`</div></div></body></html>`)
	return b.String()
}

func TestExtractLimitAndOrder(t *testing.T) {
	results := NewExtractor().Extract(resultsPage(8), "https://www.google.com/search?q=openai+gpt", 5)

	require.Len(t, results, 5)
	for i, r := range results {
		assert.Equal(t, i+1, r.Rank)
		assert.Equal(t, fmt.Sprintf("Result %d", i+1), r.Title)
		assert.Equal(t, fmt.Sprintf("https://example.com/page/%d", i+1), r.URL)
		assert.Equal(t, fmt.Sprintf("Snippet %d", i+1), r.Snippet)
	}
}

func TestExtractCountProperty(t *testing.T) {
	for _, found := range []int{0, 1, 3, 10} {
		for _, limit := range []int{1, 2, 5, 10, 20} {
			results := NewExtractor().Extract(resultsPage(found), "", limit)
			assert.Len(t, results, min(found, limit), "found=%d limit=%d", found, limit)
			for i, r := range results {
				assert.Equal(t, i+1, r.Rank)
			}
		}
	}
}

func TestExtractDeterministic(t *testing.T) {
	html := resultsPage(12)
	first, err := json.Marshal(NewExtractor().Extract(html, "", 10))
	require.NoError(t, err)
	for i := 0; i < 5; i++ {
		again, err := json.Marshal(NewExtractor().Extract(html, "", 10))
		require.NoError(t, err)
		assert.Equal(t, first, again)
	}
}

func TestExtractSkipsAndUnwraps(t *testing.T) {
	html := `<html><body><div id="search">
<div data-hveid="a"><h3>No link here</h3><div class="VwiC3b">orphan</div></div>
<div data-hveid="b"><a href="/url?q=https://target.test/article&amp;sa=U"><h3>Redirected</h3></a></div>
<div data-hveid="c"><a href="javascript:void(0)"><h3>Script link</h3></a></div>
<div data-hveid="d"><a href="https://dup.test/"><h3>First</h3></a></div>
<div data-hveid="e"><a href="https://dup.test/"><h3>Duplicate</h3></a></div>
<div data-hveid="f"><a href="/relative/path"><h3>Relative</h3></a></div>
<div data-hveid="g"><a href="https://empty-title.test/"><h3>   </h3></a></div>
<div data-hveid="h"><h3><a href="https://inner.test/">Inner anchor</a></h3></div>
</div></body></html>`

	results := NewExtractor().Extract(html, "https://www.google.com/search?q=x", 10)
	require.Len(t, results, 4)

	assert.Equal(t, "Redirected", results[0].Title)
	assert.Equal(t, "https://target.test/article", results[0].URL)
	assert.Empty(t, results[0].Snippet)

	assert.Equal(t, "First", results[1].Title)
	assert.Equal(t, "https://dup.test/", results[1].URL)

	assert.Equal(t, "Relative", results[2].Title)
	assert.Equal(t, "https://www.google.com/relative/path", results[2].URL)

	assert.Equal(t, "Inner anchor", results[3].Title)
	assert.Equal(t, 4, results[3].Rank)
}

func TestExtractFallbackLayouts(t *testing.T) {
	html := `<html><body>
<div class="g"><a href="https://one.test/"><h3>One</h3></a><div style="-webkit-line-clamp:2">first snippet</div></div>
<div jscontroller="x" data-hveid="y"><a href="https://two.test/"><h3>Two</h3></a><div role="text">second snippet</div></div>
</body></html>`

	results := NewExtractor().Extract(html, "", 10)
	require.Len(t, results, 2)
	assert.Equal(t, "One", results[0].Title)
	assert.Equal(t, "first snippet", results[0].Snippet)
	assert.Equal(t, "Two", results[1].Title)
	assert.Equal(t, "second snippet", results[1].Snippet)
	assert.Equal(t, []string{"https://one.test/", "https://two.test/"}, results.URLs())
}

func TestExtractMalformed(t *testing.T) {
	tests := []string{
		"",
		"not html at all",
		"<div data-hveid><h3>unclosed <a href='https://x.test/'>",
		"<<<>>>",
	}
	for _, html := range tests {
		assert.NotPanics(t, func() {
			results := NewExtractor().Extract(html, "", 5)
			assert.NotNil(t, results)
			assert.LessOrEqual(t, len(results), 5)
		})
	}
	assert.Empty(t, NewExtractor().Extract(resultsPage(3), "", 0))
}

func TestResolveLink(t *testing.T) {
	tests := []struct {
		href string
		want string
	}{
		{href: "https://a.test/x", want: "https://a.test/x"},
		{href: "http://a.test", want: "http://a.test"},
		{href: "/url?q=https%3A%2F%2Fb.test%2Fy", want: "https://b.test/y"},
		{href: "/url?url=https://c.test/", want: "https://c.test/"},
		{href: "/url?sa=t", want: ""},
		{href: "mailto:me@x.test", want: ""},
		{href: "", want: ""},
		{href: "/search?q=more", want: "https://www.google.com/search?q=more"},
	}
	base := mustParse(t, "https://www.google.com/search?q=x")
	for _, tt := range tests {
		t.Run(tt.href, func(t *testing.T) {
			assert.Equal(t, tt.want, resolveLink(tt.href, base))
		})
	}
}
