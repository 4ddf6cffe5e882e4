// Package report renders the end-of-run crawl summary.
//
// A Collector sits among the record sinks during the crawl and gathers the
// failures and status codes; its Report is then handed to a Writer:
//   - SimpleWriter: plain text for the terminal
//   - JSONWriter: structured output for tools
//   - MarkdownWriter: tables and a mermaid chart for sharing
package report
