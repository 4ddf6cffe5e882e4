package filter

import (
	"fmt"
	"net"
	"net/url"
	"path"
	"strings"

	"golang.org/x/net/idna"
)

// Normalize parses raw and returns its canonical string form. Two URLs that
// normalize to the same string are the same crawl target.
//
// Normalization lowercases scheme and host, converts internationalized host
// names to ASCII, drops default ports, the fragment and an empty query,
// resolves dot segments, and removes trailing slashes from non-root paths.
// Percent-encoded path bytes such as %2F keep their encoding. The query is
// kept as given. An empty path becomes "/". Normalize is idempotent.
func Normalize(raw string) (string, error) {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return "", fmt.Errorf("parse %q: %w", raw, err)
	}
	n, err := NormalizeURL(u)
	if err != nil {
		return "", err
	}
	return n.String(), nil
}

// NormalizeURL returns a normalized copy of u. See Normalize.
func NormalizeURL(u *url.URL) (*url.URL, error) {
	n := *u

	n.Scheme = strings.ToLower(n.Scheme)
	if n.Scheme != "http" && n.Scheme != "https" {
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedScheme, u.Scheme)
	}
	if n.Host == "" {
		return nil, ErrMissingHost
	}

	n.Host = normalizeHost(n.Scheme, n.Hostname(), n.Port())
	if n.Host == "" {
		return nil, ErrMissingHost
	}

	n.Fragment = ""
	n.RawFragment = ""
	n.ForceQuery = false

	// Clean the escaped form so that an encoded slash stays inside its
	// segment. path.Clean resolves "." and ".." and drops the trailing slash.
	p := n.EscapedPath()
	if p == "" {
		p = "/"
	}
	p = path.Clean(p)
	if !strings.HasPrefix(p, "/") {
		p = "/" + p
	}
	decoded, err := url.PathUnescape(p)
	if err != nil {
		return nil, fmt.Errorf("unescape path %q: %w", p, err)
	}
	n.Path = decoded
	n.RawPath = p

	return &n, nil
}

func normalizeHost(scheme, hostname, port string) string {
	host := strings.ToLower(strings.TrimSuffix(hostname, "."))
	if host == "" {
		return ""
	}
	if net.ParseIP(host) == nil {
		if ascii, err := idna.Lookup.ToASCII(host); err == nil && ascii != "" {
			host = ascii
		}
	}

	if (scheme == "http" && port == "80") || (scheme == "https" && port == "443") {
		port = ""
	}
	if port != "" {
		return net.JoinHostPort(host, port)
	}
	if strings.Contains(host, ":") {
		return "[" + host + "]"
	}
	return host
}

// HostOf returns the normalized host of raw, or an empty string.
func HostOf(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return ""
	}
	return normalizeHost(strings.ToLower(u.Scheme), u.Hostname(), u.Port())
}
