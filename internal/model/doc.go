// Package model defines the data structures shared across yieldpage:
//   - CrawlTarget: a queued unit of work (URL, depth, origin, attempt)
//   - PageRecord: the emitted result of a completed or failed target
//   - Summary: the counters reported when a run ends
//
// The types live in their own package so the scheduler, sinks, database and
// reports can all use them without import cycles. All of them serialize to
// JSON for the JSON lines sink, Kafka messages and reports.
package model
