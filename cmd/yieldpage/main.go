// Package main provides the entry point for the yieldpage CLI.
//
// yieldpage crawls websites with a real browser, following links breadth
// first under per-host politeness limits, and emits one record per page with
// its title, description, metadata, readable text and outgoing links.
//
// Usage:
//
//	yieldpage crawl https://docs.example.com/
//	yieldpage history
//
// See --help for all available options.
package main

func main() {
	Execute()
}
