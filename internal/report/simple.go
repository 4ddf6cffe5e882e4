package report

import (
	"fmt"
	"io"
	"strings"
	"time"
)

// SimpleWriter outputs a plain-text summary for the terminal.
type SimpleWriter struct {
	baseWriter

	// verbose adds per-status and per-depth breakdowns and error messages.
	verbose bool

	// maxFailures caps the failures listed; zero lists all.
	maxFailures int
}

// SimpleWriterOption configures a SimpleWriter.
type SimpleWriterOption func(*SimpleWriter)

// WithVerbose enables verbose output with additional details.
func WithVerbose(verbose bool) SimpleWriterOption {
	return func(w *SimpleWriter) {
		w.verbose = verbose
	}
}

// WithMaxFailures limits how many failed URLs are listed.
func WithMaxFailures(n int) SimpleWriterOption {
	return func(w *SimpleWriter) {
		w.maxFailures = n
	}
}

// NewSimpleWriter creates a SimpleWriter that outputs to the given writer.
func NewSimpleWriter(output io.Writer, opts ...SimpleWriterOption) *SimpleWriter {
	w := &SimpleWriter{
		baseWriter:  newBaseWriter(output),
		maxFailures: 20,
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Write outputs the report in human-readable format.
func (w *SimpleWriter) Write(report *Report) (int, error) {
	var sb strings.Builder

	w.writeHeader(&sb, report)
	w.writeCounts(&sb, report)
	if w.verbose {
		w.writeBreakdown(&sb, report)
	}
	w.writeFailures(&sb, report)
	sb.WriteString(strings.Repeat("=", 70))
	sb.WriteString("\n")

	return w.output.Write([]byte(sb.String()))
}

func (w *SimpleWriter) writeHeader(sb *strings.Builder, report *Report) {
	s := report.Summary
	sb.WriteString("\n")
	sb.WriteString(strings.Repeat("=", 70))
	sb.WriteString("\n")
	sb.WriteString("                         YIELDPAGE CRAWL SUMMARY\n")
	sb.WriteString(strings.Repeat("=", 70))
	sb.WriteString("\n\n")

	fmt.Fprintf(sb, "Run ID:    %s\n", s.RunID)
	for _, seed := range s.Seeds {
		fmt.Fprintf(sb, "Seed:      %s\n", seed)
	}
	if !s.StartedAt.IsZero() {
		fmt.Fprintf(sb, "Started:   %s\n", s.StartedAt.Format("2006-01-02 15:04:05 MST"))
	}
	fmt.Fprintf(sb, "Duration:  %s\n", s.Duration().Round(time.Millisecond))
	if s.Interrupted {
		sb.WriteString("Status:    INTERRUPTED (partial results)\n")
	} else {
		sb.WriteString("Status:    Complete\n")
	}
	sb.WriteString("\n")
}

func (w *SimpleWriter) writeCounts(sb *strings.Builder, report *Report) {
	s := report.Summary
	sb.WriteString(strings.Repeat("-", 70))
	sb.WriteString("\nPAGES\n")
	sb.WriteString(strings.Repeat("-", 70))
	sb.WriteString("\n\n")

	fmt.Fprintf(sb, "  CLAIMED:     %d\n", s.Claimed)
	fmt.Fprintf(sb, "  COMPLETED:   %d\n", s.Completed)
	fmt.Fprintf(sb, "  FAILED:      %d\n", s.Failed)
	fmt.Fprintf(sb, "  SKIPPED:     %d (depth %d, filtered %d)\n", s.Skipped(), s.SkippedDepth, s.Filtered)
	fmt.Fprintf(sb, "  DUPLICATES:  %d\n", s.Duplicates)
	fmt.Fprintf(sb, "  RETRIES:     %d\n", s.Retries)
	if s.Abandoned > 0 {
		fmt.Fprintf(sb, "  ABANDONED:   %d\n", s.Abandoned)
	}
	if s.EmitErrors > 0 {
		fmt.Fprintf(sb, "  SINK ERRORS: %d\n", s.EmitErrors)
	}
	sb.WriteString("\n")
}

func (w *SimpleWriter) writeBreakdown(sb *strings.Builder, report *Report) {
	if len(report.StatusCodes) > 0 {
		sb.WriteString("  By status:\n")
		for _, code := range sortedKeys(report.StatusCodes) {
			fmt.Fprintf(sb, "    %d: %d\n", code, report.StatusCodes[code])
		}
	}
	if len(report.PagesByDepth) > 0 {
		sb.WriteString("  By depth:\n")
		for _, depth := range sortedKeys(report.PagesByDepth) {
			fmt.Fprintf(sb, "    %d: %d\n", depth, report.PagesByDepth[depth])
		}
	}
	sb.WriteString("\n")
}

func (w *SimpleWriter) writeFailures(sb *strings.Builder, report *Report) {
	if !report.HasFailures() {
		return
	}
	sb.WriteString(strings.Repeat("-", 70))
	sb.WriteString("\nFAILED PAGES\n")
	sb.WriteString(strings.Repeat("-", 70))
	sb.WriteString("\n\n")

	failures := report.Failures
	if w.maxFailures > 0 && len(failures) > w.maxFailures {
		failures = failures[:w.maxFailures]
	}
	for _, f := range failures {
		fmt.Fprintf(sb, "  [x] %s (%d attempts)\n", f.URL, f.Attempts)
		if w.verbose && f.Error != "" {
			fmt.Fprintf(sb, "      %s\n", f.Error)
		}
	}
	if rest := len(report.Failures) - len(failures); rest > 0 {
		fmt.Fprintf(sb, "  ... and %d more\n", rest)
	}
	sb.WriteString("\n")
}
