package filter

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"
)

// Reason explains why a candidate URL was rejected.
type Reason int

const (
	// Accepted means the candidate passed every rule.
	Accepted Reason = iota
	// RejectedScope means the candidate left the allowed host or path prefix.
	RejectedScope
	// RejectedExcluded means an exclude pattern matched.
	RejectedExcluded
	// RejectedNotIncluded means include patterns exist and none matched.
	RejectedNotIncluded
)

// String returns a short label for logs.
func (r Reason) String() string {
	switch r {
	case Accepted:
		return "accepted"
	case RejectedScope:
		return "out of scope"
	case RejectedExcluded:
		return "excluded"
	case RejectedNotIncluded:
		return "not included"
	default:
		return "unknown"
	}
}

// Options configures a Filter.
type Options struct {
	// AllowExternal disables the same-host scope rule.
	AllowExternal bool
	// PathPrefix, when set and AllowExternal is false, requires candidate
	// paths to start with it.
	PathPrefix string
	// Include patterns; if any are set, a candidate must match one.
	Include []string
	// Exclude patterns; a candidate matching any is rejected.
	Exclude []string
}

// Filter decides whether a discovered URL should be crawled. It is immutable
// after construction and safe for concurrent use.
type Filter struct {
	allowExternal bool
	pathPrefix    string
	include       []*regexp.Regexp
	exclude       []*regexp.Regexp
}

// New compiles the patterns in opts. A malformed pattern returns an error
// wrapping ErrInvalidPattern.
func New(opts Options) (*Filter, error) {
	include, err := compileAll(opts.Include)
	if err != nil {
		return nil, err
	}
	exclude, err := compileAll(opts.Exclude)
	if err != nil {
		return nil, err
	}
	return &Filter{
		allowExternal: opts.AllowExternal,
		pathPrefix:    opts.PathPrefix,
		include:       include,
		exclude:       exclude,
	}, nil
}

func compileAll(patterns []string) ([]*regexp.Regexp, error) {
	compiled := make([]*regexp.Regexp, 0, len(patterns))
	for _, p := range patterns {
		re, err := regexp.Compile(p)
		if err != nil {
			return nil, fmt.Errorf("%w %q: %w", ErrInvalidPattern, p, err)
		}
		compiled = append(compiled, re)
	}
	return compiled, nil
}

// Allow reports whether candidate, found on a page of originHost, should be
// crawled.
func (f *Filter) Allow(candidate *url.URL, originHost string) bool {
	return f.Check(candidate, originHost) == Accepted
}

// Check evaluates the rules in order (scope, exclude, include) and returns
// the first failing rule, or Accepted.
func (f *Filter) Check(candidate *url.URL, originHost string) Reason {
	if candidate == nil || (candidate.Scheme != "http" && candidate.Scheme != "https") {
		return RejectedScope
	}
	if !f.allowExternal {
		if !strings.EqualFold(candidate.Host, originHost) {
			return RejectedScope
		}
		if f.pathPrefix != "" && !strings.HasPrefix(candidate.Path, f.pathPrefix) {
			return RejectedScope
		}
	}

	s := candidate.String()
	for _, re := range f.exclude {
		if re.MatchString(s) {
			return RejectedExcluded
		}
	}

	if len(f.include) == 0 {
		return Accepted
	}
	for _, re := range f.include {
		if re.MatchString(s) {
			return Accepted
		}
	}
	return RejectedNotIncluded
}
