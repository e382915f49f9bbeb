package fetch

import (
	"strings"
	"unicode/utf8"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"
)

const (
	maxTitleChars   = 200
	minContentChars = 100
)

// Extraction is the readable part of a page.
type Extraction struct {
	Title     string
	Content   string
	Truncated bool
}

// Elements and chrome that are never readable content.
var removeSelectors = []string{
	"script", "style", "nav", "header", "footer", "aside", "iframe", "noscript", "svg",
	".navigation", ".nav", ".navbar", ".menu", ".sidebar",
	".ad", ".ads", ".advert", ".advertisement", ".ad-banner", "[id^='ad-']",
	".cookie-banner", ".cookie-notice", ".cookie-consent", ".cookie-bar", ".cookie-popup",
	"#cookie-banner", "#cookie-notice", "#cookie-consent", "#cookies",
	".consent", ".consent-banner", "#consent",
	".modal", ".popup", ".overlay",
	".share", ".share-buttons", ".social-share", ".sharing",
	"[aria-hidden='true']", "[hidden]",
	"[role='navigation']", "[role='banner']", "[role='contentinfo']", "[role='complementary']",
}

// Chrome matches are never removed when they are the document itself or
// wrap its main landmark.
const (
	documentSelector = "html, body"
	landmarkSelector = "main, [role='main']"
)

// Main-content candidates, most specific first.
var contentSelectors = []string{
	"main",
	"article",
	"[role='main']",
	".main-content",
	".content",
	".post-content",
	".entry-content",
	".article-content",
	".article-body",
	"#content",
	"#main-content",
	"#main",
}

// Line breaks required around block-level elements: a blank line for blocks,
// a single break for list items and table cells.
var blockElements = map[string]int{
	"address": 2, "article": 2, "blockquote": 2, "body": 2,
	"div": 2, "dl": 2, "figcaption": 2, "figure": 2,
	"h1": 2, "h2": 2, "h3": 2, "h4": 2, "h5": 2, "h6": 2,
	"hr": 2, "main": 2, "ol": 2, "p": 2, "pre": 2,
	"section": 2, "table": 2, "ul": 2,
	"li": 1, "dt": 1, "dd": 1, "tr": 1, "td": 1, "th": 1,
}

// Extract reduces an HTML document to a title and bounded body text. It never
// fails: malformed markup is parsed leniently and the worst case is empty text.
func Extract(htmlText string, maxChars int) Extraction {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(htmlText))
	if err != nil {
		return Extraction{}
	}

	title := truncateRunes(pageTitle(doc), maxTitleChars)

	removeChrome(doc)

	content := mainContent(doc)
	content, truncated := Bound(content, maxChars)
	return Extraction{Title: title, Content: content, Truncated: truncated}
}

// pageTitle tries <title>, then the first <h1>, then og:title. It runs before
// chrome is stripped so a heading inside <header> still counts.
func pageTitle(doc *goquery.Document) string {
	if t := collapseSpaces(doc.Find("title").First().Text()); t != "" {
		return t
	}
	if t := collapseSpaces(doc.Find("h1").First().Text()); t != "" {
		return t
	}
	og, _ := doc.Find("meta[property='og:title']").First().Attr("content")
	return collapseSpaces(og)
}

func removeChrome(doc *goquery.Document) {
	for _, sel := range removeSelectors {
		doc.Find(sel).Not(documentSelector).FilterFunction(func(_ int, s *goquery.Selection) bool {
			return !s.Is(landmarkSelector) && s.Find(landmarkSelector).Length() == 0
		}).Remove()
	}
}

func mainContent(doc *goquery.Document) string {
	for _, sel := range contentSelectors {
		var found string
		doc.Find(sel).EachWithBreak(func(_ int, s *goquery.Selection) bool {
			text := selectionText(s)
			if utf8.RuneCountInString(text) > minContentChars {
				found = text
				return false
			}
			return true
		})
		if found != "" {
			return found
		}
	}
	// Head text (title, meta) is never content.
	return selectionText(doc.Find("body"))
}

// selectionText renders the text under s with line breaks at block
// boundaries, then normalizes whitespace.
func selectionText(s *goquery.Selection) string {
	var b strings.Builder
	for _, n := range s.Nodes {
		writeText(&b, n)
	}
	return normalizeWhitespace(b.String())
}

func writeText(b *strings.Builder, n *html.Node) {
	switch n.Type {
	case html.TextNode:
		b.WriteString(strings.Map(func(r rune) rune {
			if r == '\n' || r == '\r' || r == '\t' {
				return ' '
			}
			return r
		}, n.Data))
		return
	case html.CommentNode:
		return
	case html.ElementNode:
		if n.Data == "br" {
			b.WriteByte('\n')
			return
		}
	}
	var breaks int
	if n.Type == html.ElementNode {
		breaks = blockElements[n.Data]
	}
	lineBreak(b, breaks)
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		writeText(b, c)
	}
	lineBreak(b, breaks)
}

// lineBreak tops up the trailing newlines of b to n, ignoring spaces after
// the last one. Nothing is written at the start of the text.
func lineBreak(b *strings.Builder, n int) {
	if n == 0 {
		return
	}
	s := b.String()
	have := 0
	for i := len(s) - 1; i >= 0; i-- {
		switch s[i] {
		case '\n':
			if have++; have >= n {
				return
			}
		case ' ':
		default:
			b.WriteString(strings.Repeat("\n", n-have))
			return
		}
	}
}

// normalizeWhitespace collapses whitespace runs inside each line to one space,
// squeezes consecutive blank lines to a single blank line and trims the result.
func normalizeWhitespace(s string) string {
	lines := strings.Split(s, "\n")
	out := make([]string, 0, len(lines))
	blank := false
	for _, line := range lines {
		line = collapseSpaces(line)
		if line == "" {
			if !blank && len(out) > 0 {
				out = append(out, "")
			}
			blank = true
			continue
		}
		blank = false
		out = append(out, line)
	}
	return strings.TrimSpace(strings.Join(out, "\n"))
}

func collapseSpaces(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
