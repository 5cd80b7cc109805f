package content

import (
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"

	"github.com/entrhq/scout/pkg/types"
)

// FallbackWarning is reported when structural conversion produced nothing
// and plain text was returned instead.
const FallbackWarning = "structural conversion produced no content; fell back to plain text"

// boilerplate is removed before conversion.
var boilerplate = strings.Join([]string{
	"script", "style", "noscript", "template",
	"nav", "aside", "iframe", "embed", "object", "svg", "canvas",
	"input", "select", "button", "textarea",
	"[aria-hidden='true']",
	"[role='navigation']", "[role='banner']", "[role='contentinfo']",
}, ", ")

// formContent marks a form that carries the page instead of inputs.
const formContent = "h1, h2, h3, h4, h5, h6, p, li, table, article, main, section"

var adPattern = regexp.MustCompile(`(?i)(?:^|[\s_-])(?:ad|ads|adsbygoogle|advert|advertisement|advertising|sponsor|sponsored|promo|promoted)(?:[\s_-]|$)`)

// Converter renders HTML as Markdown.
type Converter struct{}

// NewConverter creates a converter.
func NewConverter() *Converter {
	return &Converter{}
}

// Convert renders rawHTML as Markdown with links resolved against baseURL.
// Content is cut to maxChars characters; Truncated is set iff the full
// rendering was longer. Convert never fails: when structure yields nothing
// from a non-empty document, plain text is returned and Degraded is set.
func (c *Converter) Convert(rawHTML, baseURL string, maxChars int) types.MarkdownDocument {
	var out types.MarkdownDocument
	base, _ := url.Parse(baseURL)
	out.URL = baseURL

	var md, stripped string
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(rawHTML))
	if err == nil {
		out.Title = normalizeSpace(doc.Find("title").First().Text())
		stripBoilerplate(doc)
		stripped, _ = doc.Html()

		root := doc.Find("body").First()
		if root.Length() == 0 {
			root = doc.Selection
		}
		r := &renderer{base: base}
		md = strings.Join(r.blocks(root.Nodes[0]), "\n\n")
	}

	if strings.TrimSpace(md) == "" && strings.TrimSpace(rawHTML) != "" {
		md = plainText(stripped)
		if md == "" {
			md = plainText(rawHTML)
		}
		out.Degraded = true
		out.Warnings = append(out.Warnings, FallbackWarning)
	}

	out.Content, out.Truncated = truncateRunes(md, maxChars)
	return out
}

func stripBoilerplate(doc *goquery.Document) {
	doc.Find(boilerplate).Remove()

	// Pages such as WebForms wrap everything in a form; only forms without
	// document content are chrome.
	doc.Find("form").Each(func(_ int, s *goquery.Selection) {
		if s.Find(formContent).Length() == 0 {
			s.Remove()
		}
	})

	// header and footer are landmarks only outside sectioning content. A
	// header holding the page title stays.
	doc.Find("header, footer").Each(func(_ int, s *goquery.Selection) {
		if s.ParentsFiltered("article, main, section").Length() > 0 {
			return
		}
		if goquery.NodeName(s) == "header" && s.Find("h1").Length() > 0 {
			return
		}
		s.Remove()
	})

	doc.Find("body [class], body [id]").Each(func(_ int, s *goquery.Selection) {
		class, _ := s.Attr("class")
		id, _ := s.Attr("id")
		if adPattern.MatchString(class) || adPattern.MatchString(id) {
			s.Remove()
		}
	})
}

// truncateRunes cuts s to at most limit characters.
func truncateRunes(s string, limit int) (string, bool) {
	if limit <= 0 {
		return "", s != ""
	}
	if utf8.RuneCountInString(s) <= limit {
		return s, false
	}
	n := 0
	for i := range s {
		if n == limit {
			return s[:i], true
		}
		n++
	}
	return s, false
}

type renderer struct {
	base *url.URL
}

// blocks renders the children of n as a list of Markdown blocks. Runs of
// inline content between block children become paragraphs.
func (r *renderer) blocks(n *html.Node) []string {
	var out []string
	var inline strings.Builder
	flush := func() {
		if p := cleanInline(inline.String()); p != "" {
			out = append(out, p)
		}
		inline.Reset()
	}

	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if c.Type == html.ElementNode && isBlockElement(c.Data) {
			flush()
			out = append(out, r.block(c)...)
			continue
		}
		inline.WriteString(r.inline(c))
	}
	flush()
	return out
}

func (r *renderer) block(n *html.Node) []string {
	switch n.Data {
	case "h1", "h2", "h3", "h4", "h5", "h6":
		text := singleLine(r.inlineChildren(n))
		if text == "" {
			return nil
		}
		level := int(n.Data[1] - '0')
		return []string{strings.Repeat("#", level) + " " + text}
	case "ul", "ol":
		if l := r.list(n, ""); l != "" {
			return []string{l}
		}
		return nil
	case "pre":
		return []string{codeBlock(n)}
	case "blockquote":
		inner := r.blocks(n)
		if len(inner) == 0 {
			return nil
		}
		return []string{quote(strings.Join(inner, "\n\n"))}
	case "hr":
		return []string{"---"}
	case "table":
		if t := r.table(n); t != "" {
			return []string{t}
		}
		return nil
	default:
		return r.blocks(n)
	}
}

func (r *renderer) inline(n *html.Node) string {
	if n.Type == html.TextNode {
		return collapseSpace(n.Data)
	}
	if n.Type != html.ElementNode {
		return ""
	}

	switch n.Data {
	case "a":
		text := r.inlineChildren(n)
		href := r.resolve(attr(n, "href"))
		if href == "" || strings.TrimSpace(text) == "" {
			return text
		}
		return wrapSpace(text, func(t string) string { return "[" + t + "](" + href + ")" })
	case "strong", "b":
		return wrapSpace(r.inlineChildren(n), func(t string) string { return "**" + t + "**" })
	case "em", "i":
		return wrapSpace(r.inlineChildren(n), func(t string) string { return "*" + t + "*" })
	case "del", "s", "strike":
		return wrapSpace(r.inlineChildren(n), func(t string) string { return "~~" + t + "~~" })
	case "code", "kbd", "samp":
		return inlineCode(textContent(n))
	case "img":
		src := attr(n, "src")
		if strings.HasPrefix(src, "data:") {
			return ""
		}
		src = r.resolve(src)
		if src == "" {
			return ""
		}
		return "![" + normalizeSpace(attr(n, "alt")) + "](" + src + ")"
	case "br":
		return "\n"
	default:
		return r.inlineChildren(n)
	}
}

func (r *renderer) inlineChildren(n *html.Node) string {
	var b strings.Builder
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if c.Type == html.ElementNode && isBlockElement(c.Data) {
			b.WriteString(" ")
			b.WriteString(strings.Join(r.block(c), " "))
			b.WriteString(" ")
			continue
		}
		b.WriteString(r.inline(c))
	}
	return b.String()
}

// list renders ul/ol. Nested lists are indented to the content column of
// their parent item.
func (r *renderer) list(n *html.Node, indent string) string {
	ordered := n.Data == "ol"
	num := 1
	if v, err := strconv.Atoi(attr(n, "start")); err == nil && ordered {
		num = v
	}

	var lines []string
	for li := n.FirstChild; li != nil; li = li.NextSibling {
		if li.Type != html.ElementNode || li.Data != "li" {
			continue
		}
		marker := "-"
		if ordered {
			marker = strconv.Itoa(num) + "."
			num++
		}
		childIndent := indent + strings.Repeat(" ", len(marker)+1)

		var text strings.Builder
		var nested []string
		for c := li.FirstChild; c != nil; c = c.NextSibling {
			switch {
			case c.Type == html.ElementNode && (c.Data == "ul" || c.Data == "ol"):
				if l := r.list(c, childIndent); l != "" {
					nested = append(nested, l)
				}
			case c.Type == html.ElementNode && isBlockElement(c.Data):
				text.WriteString(" ")
				text.WriteString(strings.Join(r.block(c), " "))
				text.WriteString(" ")
			default:
				text.WriteString(r.inline(c))
			}
		}

		lines = append(lines, indent+marker+" "+singleLine(text.String()))
		lines = append(lines, nested...)
	}
	return strings.Join(lines, "\n")
}

// table renders a pipe table. The first row is the header.
func (r *renderer) table(n *html.Node) string {
	var rows [][]string
	addRow := func(tr *html.Node) {
		var cells []string
		for td := tr.FirstChild; td != nil; td = td.NextSibling {
			if td.Type == html.ElementNode && (td.Data == "td" || td.Data == "th") {
				cell := singleLine(r.inlineChildren(td))
				cells = append(cells, strings.ReplaceAll(cell, "|", `\|`))
			}
		}
		if len(cells) > 0 {
			rows = append(rows, cells)
		}
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if c.Type != html.ElementNode {
			continue
		}
		switch c.Data {
		case "tr":
			addRow(c)
		case "thead", "tbody", "tfoot":
			for tr := c.FirstChild; tr != nil; tr = tr.NextSibling {
				if tr.Type == html.ElementNode && tr.Data == "tr" {
					addRow(tr)
				}
			}
		}
	}
	if len(rows) == 0 {
		return ""
	}

	width := 0
	for _, row := range rows {
		width = max(width, len(row))
	}
	line := func(cells []string) string {
		for len(cells) < width {
			cells = append(cells, "")
		}
		return "| " + strings.Join(cells, " | ") + " |"
	}

	sep := make([]string, width)
	for i := range sep {
		sep[i] = "---"
	}
	out := []string{line(rows[0]), line(sep)}
	for _, row := range rows[1:] {
		out = append(out, line(row))
	}
	return strings.Join(out, "\n")
}

func (r *renderer) resolve(href string) string {
	href = strings.TrimSpace(href)
	if href == "" {
		return ""
	}
	u, err := url.Parse(href)
	if err != nil {
		return ""
	}
	if r.base != nil {
		u = r.base.ResolveReference(u)
	}
	if u.Scheme == "javascript" {
		return ""
	}
	return u.String()
}

func codeBlock(n *html.Node) string {
	lang := codeLanguage(n)
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if c.Type == html.ElementNode && c.Data == "code" {
			if l := codeLanguage(c); l != "" {
				lang = l
			}
		}
	}
	body := strings.TrimRight(textContent(n), "\n")
	body = strings.TrimPrefix(body, "\n")

	fence := "```"
	if strings.Contains(body, fence) {
		fence = "~~~"
	}
	return fence + lang + "\n" + body + "\n" + fence
}

func codeLanguage(n *html.Node) string {
	for _, cls := range strings.Fields(attr(n, "class")) {
		if l, ok := strings.CutPrefix(cls, "language-"); ok {
			return l
		}
		if l, ok := strings.CutPrefix(cls, "lang-"); ok {
			return l
		}
	}
	return ""
}

func inlineCode(s string) string {
	s = normalizeSpace(s)
	if s == "" {
		return ""
	}
	if strings.Contains(s, "`") {
		return "`` " + s + " ``"
	}
	return "`" + s + "`"
}

func quote(s string) string {
	lines := strings.Split(s, "\n")
	for i, l := range lines {
		if l == "" {
			lines[i] = ">"
		} else {
			lines[i] = "> " + l
		}
	}
	return strings.Join(lines, "\n")
}

// wrapSpace applies f to the trimmed text and keeps the surrounding
// whitespace outside the markup.
func wrapSpace(s string, f func(string) string) string {
	t := strings.TrimSpace(s)
	if t == "" {
		return s
	}
	var b strings.Builder
	if r, _ := utf8.DecodeRuneInString(s); unicode.IsSpace(r) {
		b.WriteString(" ")
	}
	b.WriteString(f(t))
	if r, _ := utf8.DecodeLastRuneInString(s); unicode.IsSpace(r) {
		b.WriteString(" ")
	}
	return b.String()
}

// collapseSpace folds whitespace runs to one space, keeping a single
// leading or trailing space if present.
func collapseSpace(s string) string {
	if s == "" {
		return ""
	}
	fields := strings.Fields(s)
	if len(fields) == 0 {
		return " "
	}
	out := strings.Join(fields, " ")
	if r, _ := utf8.DecodeRuneInString(s); unicode.IsSpace(r) {
		out = " " + out
	}
	if r, _ := utf8.DecodeLastRuneInString(s); unicode.IsSpace(r) {
		out += " "
	}
	return out
}

// cleanInline normalizes a paragraph, keeping explicit line breaks.
func cleanInline(s string) string {
	lines := strings.Split(s, "\n")
	kept := lines[:0]
	for _, l := range lines {
		if l = normalizeSpace(l); l != "" {
			kept = append(kept, l)
		}
	}
	return strings.Join(kept, "\n")
}

func singleLine(s string) string {
	return normalizeSpace(s)
}

func normalizeSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

func textContent(n *html.Node) string {
	if n.Type == html.TextNode {
		return n.Data
	}
	var b strings.Builder
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		b.WriteString(textContent(c))
	}
	return b.String()
}

func attr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if strings.EqualFold(a.Key, key) {
			return a.Val
		}
	}
	return ""
}

// plainText extracts visible text with the tokenizer, one line per block.
// It works on markup too broken for the tree builder to make sense of.
func plainText(rawHTML string) string {
	z := html.NewTokenizer(strings.NewReader(rawHTML))
	var lines []string
	var line strings.Builder
	flush := func() {
		if t := normalizeSpace(line.String()); t != "" {
			lines = append(lines, t)
		}
		line.Reset()
	}

	skip := 0
	for {
		tt := z.Next()
		switch tt {
		case html.ErrorToken:
			flush()
			return strings.Join(lines, "\n")
		case html.StartTagToken, html.EndTagToken, html.SelfClosingTagToken:
			name, _ := z.TagName()
			tag := string(name)
			if isSkippedElement(tag) {
				if tt == html.StartTagToken {
					skip++
				} else if tt == html.EndTagToken && skip > 0 {
					skip--
				}
				continue
			}
			if isBlockElement(tag) || tag == "br" {
				flush()
			}
		case html.TextToken:
			if skip == 0 {
				line.Write(z.Text())
			}
		}
	}
}

// isSkippedElement reports elements whose text is never content.
func isSkippedElement(tag string) bool {
	switch strings.ToLower(tag) {
	case "script", "style", "noscript", "template", "svg", "title":
		return true
	}
	return false
}

// isBlockElement reports elements rendered as their own Markdown block.
func isBlockElement(tag string) bool {
	switch tag {
	case "address", "article", "aside", "blockquote", "body", "center", "dd",
		"details", "dialog", "div", "dl", "dt", "fieldset", "figcaption",
		"figure", "footer", "form", "h1", "h2", "h3", "h4", "h5", "h6",
		"header", "hgroup", "hr", "html", "li", "main", "nav", "ol", "p",
		"pre", "section", "summary", "table", "tbody", "td", "tfoot", "th",
		"thead", "tr", "ul":
		return true
	}
	return false
}
