// Package frontier holds the crawl's pending work and its memory of what has
// already been claimed.
//
// Frontier is a priority queue ordered by depth then insertion order, with
// support for deferred targets (retry backoff) and per-host admission checks
// (politeness). VisitedSet is the exactly-once gate: a URL enters the
// frontier only after TryClaim succeeds for it.
package frontier
