package parser

import (
	"bytes"
	"io"
	"net/url"
	"strings"

	"golang.org/x/net/html"
)

// Result is everything extracted from one page. It is always usable: input
// that cannot be parsed yields empty fields rather than an error.
type Result struct {
	// Kind is the document class derived from the page URL.
	Kind Kind
	// Title is the text of the first <title> element.
	Title string
	// Description is the content of <meta name="description">.
	Description string
	// Language is the lang attribute of the <html> element.
	Language string
	// Meta maps lowercase meta name or property to content.
	Meta map[string]string
	// Text is the visible text with whitespace collapsed.
	Text string
	// Links are absolute http(s) URLs in document order, deduplicated.
	// Empty for kinds whose links are not followed.
	Links []string
}

// Parser extracts content from rendered HTML. Relative links are resolved
// against the page URL, or against <base href> when the document has one.
type Parser struct {
	baseURL *url.URL
	kind    Kind
}

// NewParser creates a parser for a page fetched from baseURL.
func NewParser(baseURL string) (*Parser, error) {
	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, err
	}
	return &Parser{baseURL: u, kind: ClassifyURL(baseURL)}, nil
}

// Parse is a convenience for NewParser(pageURL) followed by Parse. An
// unparsable pageURL only disables link resolution.
func Parse(content, pageURL string) *Result {
	p, err := NewParser(pageURL)
	if err != nil {
		p = &Parser{kind: ClassifyURL(pageURL)}
	}
	return p.Parse(strings.NewReader(content))
}

// Parse extracts the page content. It never fails; read errors and malformed
// markup produce a partial result.
func (p *Parser) Parse(r io.Reader) *Result {
	content, _ := io.ReadAll(r)
	result := &Result{
		Kind: p.kind,
		Meta: make(map[string]string),
		Text: ExtractText(content),
	}

	doc, err := html.Parse(bytes.NewReader(content))
	if err != nil {
		return result
	}

	var (
		hrefs []string
		base  string
	)
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode {
			switch n.Data {
			case "html":
				if lang := getAttr(n, "lang"); lang != "" && result.Language == "" {
					result.Language = lang
				}
			case "title":
				if result.Title == "" {
					result.Title = strings.Join(strings.Fields(nodeText(n)), " ")
				}
			case "base":
				if base == "" {
					base = getAttr(n, "href")
				}
			case "meta":
				p.processMeta(n, result)
			case "a", "area":
				if href := getAttr(n, "href"); href != "" {
					hrefs = append(hrefs, href)
				}
			case "script", "style", "noscript", "template":
				return
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)

	if !p.kind.FollowsLinks() || p.baseURL == nil {
		return result
	}

	resolveBase := p.baseURL
	if base != "" {
		if u, err := url.Parse(strings.TrimSpace(base)); err == nil {
			resolveBase = p.baseURL.ResolveReference(u)
		}
	}

	seen := make(map[string]bool, len(hrefs))
	for _, href := range hrefs {
		link := resolveURL(resolveBase, href)
		if link == "" || seen[link] {
			continue
		}
		seen[link] = true
		result.Links = append(result.Links, link)
	}
	return result
}

func (p *Parser) processMeta(n *html.Node, result *Result) {
	key := getAttr(n, "name")
	if key == "" {
		key = getAttr(n, "property")
	}
	if key == "" {
		return
	}
	key = strings.ToLower(strings.TrimSpace(key))
	content := strings.TrimSpace(getAttr(n, "content"))
	if _, exists := result.Meta[key]; !exists {
		result.Meta[key] = content
	}
	if key == "description" && result.Description == "" {
		result.Description = content
	}
}

// resolveURL resolves href against base. Script, mail, phone and data links
// and bare fragments resolve to "".
func resolveURL(base *url.URL, href string) string {
	href = strings.TrimSpace(href)
	lower := strings.ToLower(href)
	if href == "" || strings.HasPrefix(href, "#") ||
		strings.HasPrefix(lower, "javascript:") ||
		strings.HasPrefix(lower, "mailto:") ||
		strings.HasPrefix(lower, "tel:") ||
		strings.HasPrefix(lower, "data:") {
		return ""
	}

	u, err := url.Parse(href)
	if err != nil {
		return ""
	}
	resolved := base.ResolveReference(u)
	if resolved.Scheme != "http" && resolved.Scheme != "https" {
		return ""
	}
	resolved.Fragment = ""
	resolved.RawFragment = ""
	return resolved.String()
}

func nodeText(n *html.Node) string {
	var sb strings.Builder
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if c.Type == html.TextNode {
			sb.WriteString(c.Data)
		}
	}
	return sb.String()
}

// getAttr retrieves an attribute value from an HTML node.
func getAttr(n *html.Node, key string) string {
	for _, attr := range n.Attr {
		if attr.Key == key {
			return attr.Val
		}
	}
	return ""
}
