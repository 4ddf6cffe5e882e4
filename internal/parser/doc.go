// Package parser turns the rendered HTML of a page into a title, metadata,
// visible text and absolute outbound links.
//
// Structure (title, meta, base, anchors) comes from golang.org/x/net/html,
// which repairs malformed markup the way browsers do. Visible text comes from
// a bluemonday strict policy. Parsing never fails: whatever can be extracted
// is returned.
//
// ClassifyURL sorts URLs into document kinds. Plain text, YAML and generated
// source listings are kept for their text but their links are not followed.
package parser
