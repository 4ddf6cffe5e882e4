// Package crawler implements the crawl scheduler.
//
// A Scheduler owns the frontier, the visited set and the per-host politeness
// table of one run. Workers pull the highest-priority eligible target, lease
// a browser session, fetch and parse the page, emit a record and admit the
// discovered links. Transient failures are re-queued with exponential backoff
// until the retry limit, after which a single failure record is emitted.
//
// Guarantees:
//   - every URL is claimed at most once per run, before it is queued
//   - targets deeper than the maximum depth are counted and never claimed
//   - no more than the configured number of targets per host run at once,
//     and dispatches to one host are spaced by the host interval
//   - the run ends with a summary whether it drained the frontier or was
//     cancelled
package crawler
