package parser

import (
	"html"
	"strings"
	"sync"

	"github.com/microcosm-cc/bluemonday"
	"golang.org/x/text/unicode/norm"
)

// strictPolicies hands out bluemonday policies that strip every tag and drop
// the contents of script, style and similar elements.
var strictPolicies = sync.Pool{
	New: func() any {
		p := bluemonday.StrictPolicy()
		p.AddSpaceWhenStrippingTag(true)
		return p
	},
}

// ExtractText returns the visible text of an HTML fragment or document with
// whitespace collapsed and Unicode in NFC form.
func ExtractText(content []byte) string {
	policy := strictPolicies.Get().(*bluemonday.Policy)
	stripped := policy.SanitizeBytes(content)
	strictPolicies.Put(policy)

	text := html.UnescapeString(string(stripped))
	return norm.NFC.String(strings.Join(strings.Fields(text), " "))
}
