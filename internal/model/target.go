package model

import (
	"net/url"
	"time"
)

// CrawlTarget is a unit of crawl work: one normalized URL at a known depth.
// Targets are values; a retry produces a new target with Attempt incremented
// rather than mutating the queued one.
type CrawlTarget struct {
	// URL is the normalized absolute URL.
	URL string `json:"url"`

	// Depth is the number of link hops from the seed. Seeds have depth 0.
	Depth int `json:"depth"`

	// Origin is the URL of the page the link was discovered on.
	// Empty for seeds.
	Origin string `json:"origin,omitempty"`

	// Attempt counts failed fetch attempts made so far.
	Attempt int `json:"attempt"`

	// NotBefore is the earliest time the target may be dispatched.
	// The zero value means immediately.
	NotBefore time.Time `json:"not_before,omitzero"`
}

// NewSeedTarget returns the depth-0 target for a seed URL.
func NewSeedTarget(normalized string) CrawlTarget {
	return CrawlTarget{URL: normalized}
}

// Child returns the target for a link discovered on t.
func (t CrawlTarget) Child(normalized string) CrawlTarget {
	return CrawlTarget{URL: normalized, Depth: t.Depth + 1, Origin: t.URL}
}

// Retry returns a copy of t that has failed once more and may not be
// dispatched before notBefore.
func (t CrawlTarget) Retry(notBefore time.Time) CrawlTarget {
	t.Attempt++
	t.NotBefore = notBefore
	return t
}

// Host returns the host (with port, if any) of the target URL, lowercased by
// normalization. It returns an empty string for unparsable URLs.
func (t CrawlTarget) Host() string {
	u, err := url.Parse(t.URL)
	if err != nil {
		return ""
	}
	return u.Host
}
