package report

import (
	"io"
	"strconv"
	"strings"

	"github.com/nao1215/markdown"
	"github.com/nao1215/markdown/mermaid/piechart"
)

// MarkdownWriter outputs reports in Markdown format for documentation and
// sharing.
type MarkdownWriter struct {
	baseWriter
}

// NewMarkdownWriter creates a MarkdownWriter that outputs to the given writer.
func NewMarkdownWriter(output io.Writer) *MarkdownWriter {
	return &MarkdownWriter{
		baseWriter: newBaseWriter(output),
	}
}

// Write outputs the report in Markdown format.
func (w *MarkdownWriter) Write(report *Report) (int, error) {
	md := markdown.NewMarkdown(w.output)

	w.writeHeader(md, report)
	w.writeOutcomes(md, report)
	w.writeStatusCodes(md, report)
	w.writeFailures(md, report)
	w.writeFooter(md)

	return len(md.String()), md.Build()
}

func (w *MarkdownWriter) writeHeader(md *markdown.Markdown, report *Report) {
	s := report.Summary
	md.H1("Crawl Report")
	md.PlainText("")

	seeds := make([]string, len(s.Seeds))
	for i, seed := range s.Seeds {
		seeds[i] = "`" + seed + "`"
	}
	md.Table(markdown.TableSet{
		Header: []string{"Property", "Value"},
		Rows: [][]string{
			{"Run ID", "`" + s.RunID + "`"},
			{"Seeds", strings.Join(seeds, "<br>")},
			{"Started", s.StartedAt.Format("2006-01-02 15:04:05 MST")},
			{"Duration", s.Duration().String()},
			{"Status", statusText(report)},
		},
	})
	md.PlainText("")
}

func statusText(report *Report) string {
	if report.Summary.Interrupted {
		return "⚠️ Interrupted (partial results)"
	}
	if report.HasFailures() {
		return "❗ Complete with failures"
	}
	return "✅ Complete"
}

func (w *MarkdownWriter) writeOutcomes(md *markdown.Markdown, report *Report) {
	s := report.Summary
	md.H2("Outcomes")
	md.PlainText("")

	md.Table(markdown.TableSet{
		Header: []string{"Outcome", "Count"},
		Rows: [][]string{
			{"🟢 Completed", strconv.Itoa(s.Completed)},
			{"🔴 Failed", strconv.Itoa(s.Failed)},
			{"⚪ Skipped (depth)", strconv.Itoa(s.SkippedDepth)},
			{"⚪ Skipped (filtered)", strconv.Itoa(s.Filtered)},
			{"🔁 Duplicates", strconv.Itoa(s.Duplicates)},
			{"🔁 Retries", strconv.Itoa(s.Retries)},
			{"**Claimed**", "**" + strconv.Itoa(s.Claimed) + "**"},
		},
	})
	md.PlainText("")

	if s.Completed+s.Failed+s.Skipped() > 0 {
		w.writePieChart(md, report)
	}
	w.writeAlert(md, report)
}

func (w *MarkdownWriter) writePieChart(md *markdown.Markdown, report *Report) {
	s := report.Summary
	chart := piechart.NewPieChart(
		io.Discard,
		piechart.WithTitle("Discovered URL Outcomes"),
		piechart.WithShowData(true),
	)

	if s.Completed > 0 {
		chart.LabelAndIntValue("Completed", uint64(s.Completed))
	}
	if s.Failed > 0 {
		chart.LabelAndIntValue("Failed", uint64(s.Failed))
	}
	if s.SkippedDepth > 0 {
		chart.LabelAndIntValue("Beyond max depth", uint64(s.SkippedDepth))
	}
	if s.Filtered > 0 {
		chart.LabelAndIntValue("Filtered", uint64(s.Filtered))
	}

	md.PlainText("")
	md.CodeBlocks(markdown.SyntaxHighlightMermaid, chart.String())
	md.PlainText("")
}

func (w *MarkdownWriter) writeAlert(md *markdown.Markdown, report *Report) {
	s := report.Summary
	switch {
	case s.Interrupted:
		md.Cautionf("The crawl was interrupted. %d claimed page(s) produced no record.", s.Pending())
	case s.Failed > 0:
		md.Warningf("%d page(s) failed after all retries.", s.Failed)
	case s.EmitErrors > 0:
		md.Importantf("%d record(s) could not be written to an output sink.", s.EmitErrors)
	default:
		md.Tip("Every claimed page was crawled.")
	}
	md.PlainText("")
}

func (w *MarkdownWriter) writeStatusCodes(md *markdown.Markdown, report *Report) {
	if len(report.StatusCodes) == 0 {
		return
	}
	md.H2("HTTP Status")
	md.PlainText("")

	codes := sortedKeys(report.StatusCodes)
	rows := make([][]string, len(codes))
	for i, code := range codes {
		rows[i] = []string{strconv.Itoa(code), strconv.Itoa(report.StatusCodes[code])}
	}
	md.Table(markdown.TableSet{
		Header: []string{"Status", "Pages"},
		Rows:   rows,
	})
	md.PlainText("")
}

func (w *MarkdownWriter) writeFailures(md *markdown.Markdown, report *Report) {
	md.H2("Failed Pages")
	md.PlainText("")

	if !report.HasFailures() {
		md.PlainText("No page failed.")
		md.PlainText("")
		return
	}

	rows := make([][]string, len(report.Failures))
	for i, f := range report.Failures {
		rows[i] = []string{
			truncateString(f.URL, 80),
			strconv.Itoa(f.Attempts),
			truncateString(f.Error, 60),
		}
	}
	md.Table(markdown.TableSet{
		Header: []string{"URL", "Attempts", "Error"},
		Rows:   rows,
	})
	md.PlainText("")
}

func (w *MarkdownWriter) writeFooter(md *markdown.Markdown) {
	md.HorizontalRule()
	md.PlainText("")
	md.PlainTextf("*Report generated by [yieldpage](https://github.com/nao1215/yieldpage)*")
}

// truncateString truncates a string to maxLen bytes with ellipsis.
func truncateString(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	if maxLen <= 3 {
		return s[:maxLen]
	}
	return s[:maxLen-3] + "..."
}
