// Package sink delivers page records to their destinations.
//
// The crawler emits every record exactly once; a sink only needs to be safe
// for concurrent use. Available sinks:
//   - JSONLines writes newline-delimited JSON to a file or stdout
//   - KafkaSink publishes records to a Kafka topic keyed by URL
//   - GraphSink merges the link graph into Neo4j
//   - Multi fans records out to several sinks
//
// The SQLite store in package database is a sink as well.
package sink
