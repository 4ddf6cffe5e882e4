// Package database provides SQLite-based storage for crawl results.
//
// CrawlDB stores:
//   - runs with their seeds and final summary
//   - one page record per URL and run
//   - the outgoing links of every page, in document order
//
// SQLite (via modernc.org/sqlite) keeps the store a single CGO-free file.
// WAL mode lets the history command read while a crawl is writing.
package database
