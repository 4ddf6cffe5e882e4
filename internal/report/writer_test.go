package report

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/nao1215/yieldpage/internal/model"
)

// createTestReport creates a report with sample data for testing.
func createTestReport(t *testing.T) *Report {
	t.Helper()

	started := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	summary := &model.Summary{
		RunID:        "run-123",
		Seeds:        []string{"https://docs.example.com/"},
		Claimed:      5,
		Completed:    3,
		Failed:       2,
		SkippedDepth: 4,
		Filtered:     6,
		Duplicates:   10,
		Retries:      3,
		StartedAt:    started,
		FinishedAt:   started.Add(90 * time.Second),
	}

	c := NewCollector()
	records := []*model.PageRecord{
		{URL: "https://docs.example.com/", Outcome: model.OutcomeCompleted, StatusCode: 200},
		{URL: "https://docs.example.com/a", Depth: 1, Outcome: model.OutcomeCompleted, StatusCode: 200},
		{URL: "https://docs.example.com/b", Depth: 1, Outcome: model.OutcomeCompleted, StatusCode: 404},
		{URL: "https://docs.example.com/z", Depth: 1, Outcome: model.OutcomeFailed, Error: "fetch timeout", Attempts: 3},
		{URL: "https://docs.example.com/c", Depth: 2, Outcome: model.OutcomeFailed, Error: "transport error", Attempts: 3},
	}
	for _, rec := range records {
		if err := c.Emit(context.Background(), rec); err != nil {
			t.Fatal(err)
		}
	}
	return c.Report(summary)
}

func TestCollector(t *testing.T) {
	t.Parallel()

	report := createTestReport(t)

	if diff := cmp.Diff(map[int]int{200: 2, 404: 1}, report.StatusCodes); diff != "" {
		t.Errorf("StatusCodes mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff(map[int]int{0: 1, 1: 2}, report.PagesByDepth); diff != "" {
		t.Errorf("PagesByDepth mismatch (-want +got):\n%s", diff)
	}
	want := []Failure{
		{URL: "https://docs.example.com/c", Error: "transport error", Attempts: 3},
		{URL: "https://docs.example.com/z", Error: "fetch timeout", Attempts: 3},
	}
	if diff := cmp.Diff(want, report.Failures); diff != "" {
		t.Errorf("Failures mismatch (-want +got):\n%s", diff)
	}
	if !report.HasFailures() {
		t.Error("expected failures")
	}
}

func TestSimpleWriter(t *testing.T) {
	t.Parallel()

	t.Run("writes header and counts", func(t *testing.T) {
		t.Parallel()

		var buf bytes.Buffer
		if _, err := NewSimpleWriter(&buf).Write(createTestReport(t)); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		output := buf.String()
		for _, want := range []string{
			"YIELDPAGE CRAWL SUMMARY",
			"run-123",
			"https://docs.example.com/",
			"Duration:  1m30s",
			"Status:    Complete",
			"COMPLETED:   3",
			"SKIPPED:     10 (depth 4, filtered 6)",
			"FAILED PAGES",
			"[x] https://docs.example.com/c (3 attempts)",
		} {
			if !strings.Contains(output, want) {
				t.Errorf("expected output to contain %q\n%s", want, output)
			}
		}
		if strings.Contains(output, "By status") {
			t.Error("breakdown is verbose only")
		}
		if strings.Contains(output, "transport error") {
			t.Error("error text is verbose only")
		}
	})

	t.Run("verbose adds breakdowns", func(t *testing.T) {
		t.Parallel()

		var buf bytes.Buffer
		if _, err := NewSimpleWriter(&buf, WithVerbose(true)).Write(createTestReport(t)); err != nil {
			t.Fatal(err)
		}
		output := buf.String()
		for _, want := range []string{"By status:", "404: 1", "By depth:", "transport error"} {
			if !strings.Contains(output, want) {
				t.Errorf("expected output to contain %q", want)
			}
		}
	})

	t.Run("failure list is capped", func(t *testing.T) {
		t.Parallel()

		var buf bytes.Buffer
		if _, err := NewSimpleWriter(&buf, WithMaxFailures(1)).Write(createTestReport(t)); err != nil {
			t.Fatal(err)
		}
		if !strings.Contains(buf.String(), "... and 1 more") {
			t.Errorf("expected truncation note, got:\n%s", buf.String())
		}
	})

	t.Run("interrupted run", func(t *testing.T) {
		t.Parallel()

		report := createTestReport(t)
		report.Summary.Interrupted = true
		var buf bytes.Buffer
		if _, err := NewSimpleWriter(&buf).Write(report); err != nil {
			t.Fatal(err)
		}
		if !strings.Contains(buf.String(), "INTERRUPTED") {
			t.Error("expected interrupted status")
		}
	})
}

func TestJSONWriter(t *testing.T) {
	t.Parallel()

	t.Run("compact output with version", func(t *testing.T) {
		t.Parallel()

		var buf bytes.Buffer
		if _, err := NewJSONWriter(&buf, WithVersion("v1.2.3")).Write(createTestReport(t)); err != nil {
			t.Fatal(err)
		}

		output := buf.String()
		if strings.Count(output, "\n") != 1 {
			t.Errorf("expected a single line, got:\n%s", output)
		}

		var decoded struct {
			Version string         `json:"version"`
			Summary *model.Summary `json:"summary"`
			Failure []Failure      `json:"failures"`
		}
		if err := json.Unmarshal(buf.Bytes(), &decoded); err != nil {
			t.Fatalf("invalid JSON: %v", err)
		}
		if decoded.Version != "v1.2.3" || decoded.Summary.RunID != "run-123" || len(decoded.Failure) != 2 {
			t.Errorf("unexpected document: %+v", decoded)
		}
	})

	t.Run("pretty print", func(t *testing.T) {
		t.Parallel()

		var buf bytes.Buffer
		if _, err := NewJSONWriter(&buf, WithPrettyPrint()).Write(createTestReport(t)); err != nil {
			t.Fatal(err)
		}
		if !strings.Contains(buf.String(), "\n  \"summary\"") {
			t.Errorf("expected indented output, got:\n%s", buf.String())
		}
		if strings.Contains(buf.String(), "\"version\"") {
			t.Error("version is omitted when unset")
		}
	})
}

func TestMarkdownWriter(t *testing.T) {
	t.Parallel()

	t.Run("writes tables chart and failures", func(t *testing.T) {
		t.Parallel()

		var buf bytes.Buffer
		if _, err := NewMarkdownWriter(&buf).Write(createTestReport(t)); err != nil {
			t.Fatal(err)
		}

		output := buf.String()
		for _, want := range []string{
			"# Crawl Report",
			"## Outcomes",
			"pie",
			"## HTTP Status",
			"## Failed Pages",
			"https://docs.example.com/z",
			"[!WARNING]",
		} {
			if !strings.Contains(output, want) {
				t.Errorf("expected output to contain %q\n%s", want, output)
			}
		}
	})

	t.Run("clean run shows a tip", func(t *testing.T) {
		t.Parallel()

		report := NewCollector().Report(&model.Summary{RunID: "run-ok", Claimed: 1, Completed: 1})
		var buf bytes.Buffer
		if _, err := NewMarkdownWriter(&buf).Write(report); err != nil {
			t.Fatal(err)
		}
		output := buf.String()
		if !strings.Contains(output, "[!TIP]") || !strings.Contains(output, "No page failed.") {
			t.Errorf("unexpected output:\n%s", output)
		}
	})
}

type failingWriter struct{}

func (failingWriter) Write(*Report) (int, error) { return 0, errors.New("disk full") }

func TestMultiWriter(t *testing.T) {
	t.Parallel()

	t.Run("writes to all writers", func(t *testing.T) {
		t.Parallel()

		var a, b bytes.Buffer
		n, err := NewMultiWriter(NewSimpleWriter(&a), NewJSONWriter(&b)).Write(createTestReport(t))
		if err != nil {
			t.Fatal(err)
		}
		if a.Len() == 0 || b.Len() == 0 || n != a.Len()+b.Len() {
			t.Errorf("n=%d a=%d b=%d", n, a.Len(), b.Len())
		}
	})

	t.Run("stops on first error", func(t *testing.T) {
		t.Parallel()

		var after bytes.Buffer
		_, err := NewMultiWriter(failingWriter{}, NewSimpleWriter(&after)).Write(createTestReport(t))
		if err == nil {
			t.Error("expected error")
		}
		if after.Len() != 0 {
			t.Error("writers after the failing one must not run")
		}
	})
}

func TestTruncateString(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in     string
		maxLen int
		want   string
	}{
		{"short", 10, "short"},
		{"exactly-10", 10, "exactly-10"},
		{"much longer string", 10, "much lo..."},
		{"abcdef", 3, "abc"},
	}
	for _, tt := range tests {
		if got := truncateString(tt.in, tt.maxLen); got != tt.want {
			t.Errorf("truncateString(%q, %d) = %q, want %q", tt.in, tt.maxLen, got, tt.want)
		}
	}
}
