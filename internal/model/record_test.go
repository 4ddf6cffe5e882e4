package model

import (
	"encoding/json"
	"strings"
	"testing"
	"time"
)

func TestOutcomeText(t *testing.T) {
	t.Parallel()

	rec := PageRecord{URL: "https://example.com/", Outcome: OutcomeFailed, Error: "fetch timeout", Attempts: 3}
	data, err := json.Marshal(rec)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if !strings.Contains(string(data), `"outcome":"failed"`) {
		t.Errorf("expected outcome by name, got %s", data)
	}

	var back PageRecord
	if err := json.Unmarshal(data, &back); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if back.Outcome != OutcomeFailed || back.Completed() {
		t.Errorf("expected failed outcome, got %v", back.Outcome)
	}

	var o Outcome
	if err := o.UnmarshalText([]byte("exploded")); err == nil {
		t.Error("expected error for unknown outcome")
	}
}

func TestHashContent(t *testing.T) {
	t.Parallel()

	a := HashContent("hello world")
	if len(a) != 64 {
		t.Errorf("expected 64 hex characters, got %d", len(a))
	}
	if a != HashContent("hello world") {
		t.Error("hash is not deterministic")
	}
	if a == HashContent("hello world!") {
		t.Error("different content produced the same hash")
	}
}

func TestSummary(t *testing.T) {
	t.Parallel()

	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	s := Summary{
		Claimed:      10,
		Completed:    6,
		Failed:       2,
		SkippedDepth: 3,
		Filtered:     4,
		StartedAt:    start,
		FinishedAt:   start.Add(90 * time.Second),
	}

	if got := s.Skipped(); got != 7 {
		t.Errorf("Skipped() = %d, want 7", got)
	}
	if got := s.Pending(); got != 2 {
		t.Errorf("Pending() = %d, want 2", got)
	}
	if got := s.Duration(); got != 90*time.Second {
		t.Errorf("Duration() = %v, want 90s", got)
	}
	if got := (&Summary{StartedAt: start}).Duration(); got != 0 {
		t.Errorf("unfinished Duration() = %v, want 0", got)
	}
}
