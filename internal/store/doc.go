// Package store publishes the live status of crawl runs so other processes
// can watch a crawl in progress.
package store
