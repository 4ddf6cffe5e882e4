package parser

import (
	"net/url"
	"path"
	"strings"
)

// Kind is the document class of a URL, derived from its path.
type Kind int

const (
	// KindHTML is a regular web page; its links are followed.
	KindHTML Kind = iota
	// KindText is a plain text or YAML document, or a generated source
	// listing; its text is kept but links are not followed.
	KindText
	// KindPDF is a PDF document.
	KindPDF
	// KindAsset is an image, font, script or stylesheet.
	KindAsset
)

// String returns the lowercase name of the kind.
func (k Kind) String() string {
	switch k {
	case KindHTML:
		return "html"
	case KindText:
		return "text"
	case KindPDF:
		return "pdf"
	case KindAsset:
		return "asset"
	default:
		return "unknown"
	}
}

var assetExtensions = map[string]bool{
	".jpg": true, ".jpeg": true, ".png": true, ".gif": true, ".svg": true, ".ico": true,
	".css": true, ".js": true, ".woff": true, ".woff2": true, ".ttf": true, ".eot": true,
}

// ClassifyURL returns the document kind of rawURL.
func ClassifyURL(rawURL string) Kind {
	p := rawURL
	if u, err := url.Parse(rawURL); err == nil {
		p = u.Path
	}
	lower := strings.ToLower(p)

	if strings.Contains(lower, "/_sources/") {
		return KindText
	}
	switch ext := path.Ext(lower); {
	case ext == ".txt" || ext == ".yaml" || ext == ".yml":
		return KindText
	case ext == ".pdf":
		return KindPDF
	case assetExtensions[ext]:
		return KindAsset
	}
	return KindHTML
}

// FollowsLinks reports whether links of a document of kind k are crawled.
func (k Kind) FollowsLinks() bool {
	return k == KindHTML
}
