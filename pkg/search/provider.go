package search

import (
	"net/url"
	"strconv"
	"strings"
)

// BuildURL returns the results-page URL on domain for q. The page size is
// requested with some headroom over the limit since entries without a link
// are skipped during extraction.
func BuildURL(domain string, q Query, language string) string {
	num := q.Limit() + q.Limit()/2
	if num < 10 {
		num = 10
	}
	if num > MaxLimit {
		num = MaxLimit
	}

	v := url.Values{}
	v.Set("q", q.Text())
	if language != "" {
		v.Set("hl", language)
	}
	v.Set("num", strconv.Itoa(num))
	return strings.TrimRight(domain, "/") + "/search?" + v.Encode()
}
