package report

import (
	"context"
	"sort"
	"sync"

	"github.com/nao1215/yieldpage/internal/model"
)

// Report is the end-of-run view handed to writers.
type Report struct {
	Summary *model.Summary `json:"summary"`

	// StatusCodes counts completed pages by HTTP status.
	StatusCodes map[int]int `json:"status_codes,omitempty"`

	// PagesByDepth counts completed pages by link depth.
	PagesByDepth map[int]int `json:"pages_by_depth,omitempty"`

	// Failures lists the pages that failed terminally, sorted by URL.
	Failures []Failure `json:"failures,omitempty"`
}

// Failure describes one page that could not be fetched.
type Failure struct {
	URL      string `json:"url"`
	Error    string `json:"error"`
	Attempts int    `json:"attempts"`
}

// HasFailures reports whether any page failed.
func (r *Report) HasFailures() bool {
	return len(r.Failures) > 0
}

// Collector is a record sink that aggregates what a report needs. It keeps
// counters and failures only, not page content.
type Collector struct {
	mu       sync.Mutex
	statuses map[int]int
	depths   map[int]int
	failures []Failure
}

// NewCollector returns an empty Collector.
func NewCollector() *Collector {
	return &Collector{
		statuses: make(map[int]int),
		depths:   make(map[int]int),
	}
}

// Emit implements the record sink interface.
func (c *Collector) Emit(_ context.Context, rec *model.PageRecord) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if rec.Completed() {
		c.statuses[rec.StatusCode]++
		c.depths[rec.Depth]++
		return nil
	}
	c.failures = append(c.failures, Failure{URL: rec.URL, Error: rec.Error, Attempts: rec.Attempts})
	return nil
}

// Close implements the record sink interface.
func (c *Collector) Close() error { return nil }

// Report combines the collected data with the run summary.
func (c *Collector) Report(summary *model.Summary) *Report {
	c.mu.Lock()
	defer c.mu.Unlock()

	r := &Report{
		Summary:      summary,
		StatusCodes:  make(map[int]int, len(c.statuses)),
		PagesByDepth: make(map[int]int, len(c.depths)),
		Failures:     append([]Failure(nil), c.failures...),
	}
	for k, v := range c.statuses {
		r.StatusCodes[k] = v
	}
	for k, v := range c.depths {
		r.PagesByDepth[k] = v
	}
	sort.Slice(r.Failures, func(i, j int) bool {
		return r.Failures[i].URL < r.Failures[j].URL
	})
	return r
}

// sortedKeys returns the keys of m in ascending order.
func sortedKeys(m map[int]int) []int {
	keys := make([]int, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Ints(keys)
	return keys
}
