// Package filter decides which discovered URLs a crawl visits.
//
// Normalize maps every URL to a canonical string so that the visited set can
// deduplicate by string equality. Filter applies the scope rule (same host as
// the page the link was found on, optionally under a path prefix), then the
// exclude patterns, then the include patterns. Robots adds optional
// robots.txt compliance on top.
package filter
