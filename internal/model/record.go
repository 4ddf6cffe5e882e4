package model

import (
	"encoding/hex"
	"fmt"
	"time"

	"golang.org/x/crypto/blake2b"
)

// Outcome is the final state of a target that produced a record.
type Outcome int

const (
	// OutcomeCompleted means the page was fetched and parsed.
	OutcomeCompleted Outcome = iota
	// OutcomeFailed means every allowed attempt failed.
	OutcomeFailed
)

// String returns the lowercase name of the outcome.
func (o Outcome) String() string {
	switch o {
	case OutcomeCompleted:
		return "completed"
	case OutcomeFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// MarshalText encodes the outcome by name so JSON records stay readable.
func (o Outcome) MarshalText() ([]byte, error) {
	return []byte(o.String()), nil
}

// UnmarshalText decodes an outcome name.
func (o *Outcome) UnmarshalText(text []byte) error {
	switch string(text) {
	case "completed":
		*o = OutcomeCompleted
	case "failed":
		*o = OutcomeFailed
	default:
		return fmt.Errorf("unknown outcome %q", text)
	}
	return nil
}

// PageRecord is the output unit of a crawl. Exactly one record is emitted per
// URL that completes or fails terminally.
type PageRecord struct {
	RunID  string `json:"run_id"`
	URL    string `json:"url"`
	Depth  int    `json:"depth"`
	Origin string `json:"origin,omitempty"`

	Outcome Outcome `json:"outcome"`
	// Error is the last fetch error of a failed record.
	Error string `json:"error,omitempty"`
	// Attempts is the number of fetch attempts made, including the final one.
	Attempts int `json:"attempts"`

	StatusCode  int               `json:"status_code,omitempty"`
	Title       string            `json:"title,omitempty"`
	Description string            `json:"description,omitempty"`
	Meta        map[string]string `json:"meta,omitempty"`
	Text        string            `json:"text,omitempty"`
	Links       []string          `json:"links,omitempty"`

	// ContentHash is a BLAKE2b-256 digest of Text, for change detection
	// across runs.
	ContentHash string `json:"content_hash,omitempty"`

	FetchDuration time.Duration `json:"fetch_duration"`
	FetchedAt     time.Time     `json:"fetched_at"`
}

// Completed reports whether the record describes a successful fetch.
func (r *PageRecord) Completed() bool {
	return r.Outcome == OutcomeCompleted
}

// HashContent returns the hex BLAKE2b-256 digest of text.
func HashContent(text string) string {
	sum := blake2b.Sum256([]byte(text))
	return hex.EncodeToString(sum[:])
}
