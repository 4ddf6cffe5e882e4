package model

import "time"

// Summary reports the counters of a finished crawl run.
type Summary struct {
	RunID string   `json:"run_id"`
	Seeds []string `json:"seeds"`

	// Claimed is the number of distinct URLs admitted to the frontier.
	Claimed int `json:"claimed"`
	// Completed and Failed count emitted records by outcome.
	Completed int `json:"completed"`
	Failed    int `json:"failed"`
	// SkippedDepth counts discovered links beyond the maximum depth.
	SkippedDepth int `json:"skipped_depth"`
	// Filtered counts links rejected by scope, patterns, robots.txt or the page limit.
	Filtered int `json:"filtered"`
	// Duplicates counts links that were already claimed.
	Duplicates int `json:"duplicates"`
	// Retries counts re-queued attempts.
	Retries int `json:"retries"`
	// Abandoned counts claimed targets whose work was discarded on shutdown.
	Abandoned int `json:"abandoned"`
	// EmitErrors counts records a sink failed to accept.
	EmitErrors int `json:"emit_errors"`

	// Interrupted is set when the run ended by cancellation or timeout rather
	// than by exhausting the frontier.
	Interrupted bool `json:"interrupted"`

	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
}

// Skipped returns the number of discovered links that were not claimed for a
// reason other than duplication.
func (s *Summary) Skipped() int {
	return s.SkippedDepth + s.Filtered
}

// Duration returns the wall-clock duration of the run.
func (s *Summary) Duration() time.Duration {
	if s.FinishedAt.IsZero() {
		return 0
	}
	return s.FinishedAt.Sub(s.StartedAt)
}

// Pending returns claimed targets that produced no record.
func (s *Summary) Pending() int {
	n := s.Claimed - s.Completed - s.Failed
	if n < 0 {
		return 0
	}
	return n
}
