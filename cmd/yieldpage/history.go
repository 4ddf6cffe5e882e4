package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"github.com/nao1215/yieldpage/internal/config"
	"github.com/nao1215/yieldpage/internal/database"
	"github.com/nao1215/yieldpage/internal/model"
)

// NewHistoryCmd creates the history command.
// It reads the runs stored by 'yieldpage crawl --db'.
func NewHistoryCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "history [run-id] [run-id]",
		Short: "Show stored crawl runs and compare them",
		Long: `History reads crawl runs stored with 'yieldpage crawl --db'.

Without arguments it lists all runs, newest first. With one run ID it lists
the pages of that run. With --diff it compares two runs and shows pages that
were added, removed or whose content changed. When --diff is given without run
IDs the latest two runs are compared.

Examples:
  # List stored runs
  yieldpage history

  # Show the pages of one run
  yieldpage history 3f6c2a9e-...

  # Compare the latest two runs
  yieldpage history --diff

  # Compare two specific runs as JSON
  yieldpage history --diff --json <old-run-id> <new-run-id>`,
		Args: cobra.MaximumNArgs(2),
		RunE: runHistoryCmd,
	}

	cmd.Flags().Bool("diff", false, "Compare two runs")
	cmd.Flags().BoolP("json", "j", false, "Output in JSON format")
	cmd.Flags().String("db-dir", config.XDGDataDir(), "Directory of the SQLite database")

	return cmd
}

func runHistoryCmd(cmd *cobra.Command, args []string) error {
	diff, err := cmd.Flags().GetBool("diff")
	if err != nil {
		return err
	}
	jsonOutput, err := cmd.Flags().GetBool("json")
	if err != nil {
		return err
	}
	dbDir, err := cmd.Flags().GetString("db-dir")
	if err != nil {
		return err
	}

	// Validate arguments before opening the database.
	if diff && len(args) == 1 {
		return errors.New("--diff needs two run IDs, or none to compare the latest two runs")
	}
	if !diff && len(args) == 2 {
		return errors.New("two run IDs are only accepted with --diff")
	}

	opts := database.DefaultOptions()
	opts.CreateIfNotExists = false
	db, err := database.Open(dbDir, opts)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer db.Close()

	ctx := cmd.Context()
	out := cmd.OutOrStdout()

	switch {
	case diff:
		comparison, err := compareRuns(ctx, db, args)
		if err != nil {
			return err
		}
		if jsonOutput {
			return writeJSON(out, comparison)
		}
		writeComparisonText(out, comparison)
		return nil
	case len(args) == 1:
		return showRunPages(ctx, out, db, args[0], jsonOutput)
	default:
		return listRuns(ctx, out, db, jsonOutput)
	}
}

// RunInfo is the listing entry of a stored run.
type RunInfo struct {
	ID          string   `json:"id"`
	Seeds       []string `json:"seeds"`
	StartedAt   string   `json:"started_at"`
	Finished    bool     `json:"finished"`
	Interrupted bool     `json:"interrupted"`
	Completed   int      `json:"completed"`
	Failed      int      `json:"failed"`
	Skipped     int      `json:"skipped"`
}

func newRunInfo(run *database.RunRecord) RunInfo {
	info := RunInfo{
		ID:          run.ID,
		Seeds:       run.Seeds,
		StartedAt:   run.StartedAt.Format("2006-01-02 15:04:05"),
		Finished:    run.Summary != nil,
		Interrupted: run.Interrupted,
	}
	if run.Summary != nil {
		info.Completed = run.Summary.Completed
		info.Failed = run.Summary.Failed
		info.Skipped = run.Summary.Skipped()
	}
	return info
}

func (r RunInfo) status() string {
	switch {
	case !r.Finished:
		return "running"
	case r.Interrupted:
		return "interrupted"
	default:
		return "complete"
	}
}

func listRuns(ctx context.Context, out io.Writer, db *database.CrawlDB, jsonOutput bool) error {
	runs, err := db.ListRuns(ctx)
	if err != nil {
		return fmt.Errorf("failed to list runs: %w", err)
	}

	infos := make([]RunInfo, 0, len(runs))
	for _, run := range runs {
		infos = append(infos, newRunInfo(run))
	}
	if jsonOutput {
		return writeJSON(out, infos)
	}

	if len(infos) == 0 {
		fmt.Fprintln(out, "No crawl runs found in the database.")
		fmt.Fprintln(out, "\nUse 'yieldpage crawl --db <url>' to store a run.")
		return nil
	}

	fmt.Fprintf(out, "Crawl runs (%d):\n\n", len(infos))
	fmt.Fprintf(out, "  %-36s  %-19s  %-11s  %9s  %6s  %7s  %s\n",
		"ID", "Started", "Status", "Completed", "Failed", "Skipped", "Seeds")
	fmt.Fprintln(out, "  "+strings.Repeat("-", 110))
	for _, info := range infos {
		fmt.Fprintf(out, "  %-36s  %-19s  %-11s  %9d  %6d  %7d  %s\n",
			info.ID, info.StartedAt, info.status(),
			info.Completed, info.Failed, info.Skipped,
			strings.Join(info.Seeds, " "),
		)
	}
	fmt.Fprintln(out, "\nUse 'yieldpage history <run-id>' to list the pages of a run.")
	fmt.Fprintln(out, "Use 'yieldpage history --diff' to compare the latest two runs.")
	return nil
}

// PageInfo is the listing entry of a stored page.
type PageInfo struct {
	URL        string `json:"url"`
	Depth      int    `json:"depth"`
	Outcome    string `json:"outcome"`
	StatusCode int    `json:"status_code,omitempty"`
	Title      string `json:"title,omitempty"`
	Links      int    `json:"links"`
	Error      string `json:"error,omitempty"`
}

func showRunPages(ctx context.Context, out io.Writer, db *database.CrawlDB, runID string, jsonOutput bool) error {
	run, err := db.GetRun(ctx, runID)
	if err != nil {
		return fmt.Errorf("failed to get run: %w", err)
	}
	if run == nil {
		return fmt.Errorf("run %s not found (use 'yieldpage history' to list runs)", runID)
	}

	pages, err := db.ListPages(ctx, runID)
	if err != nil {
		return fmt.Errorf("failed to list pages: %w", err)
	}
	infos := make([]PageInfo, 0, len(pages))
	for _, p := range pages {
		infos = append(infos, PageInfo{
			URL:        p.URL,
			Depth:      p.Depth,
			Outcome:    p.Outcome.String(),
			StatusCode: p.StatusCode,
			Title:      p.Title,
			Links:      len(p.Links),
			Error:      p.Error,
		})
	}
	if jsonOutput {
		return writeJSON(out, infos)
	}

	fmt.Fprintf(out, "Pages of run %s (%d):\n\n", runID, len(infos))
	for _, p := range infos {
		if p.Outcome == model.OutcomeFailed.String() {
			fmt.Fprintf(out, "  [x] %d  %s  (%s)\n", p.Depth, p.URL, p.Error)
			continue
		}
		fmt.Fprintf(out, "  [+] %d  %s  %q  %d links\n", p.Depth, p.URL, p.Title, p.Links)
	}
	return nil
}

// Comparison is the difference between two stored runs.
type Comparison struct {
	OldRun  RunInfo  `json:"old_run"`
	NewRun  RunInfo  `json:"new_run"`
	Added   []string `json:"added"`
	Removed []string `json:"removed"`
	Changed []string `json:"changed"`
}

// HasChanges reports whether the runs differ in any page.
func (c *Comparison) HasChanges() bool {
	return len(c.Added) > 0 || len(c.Removed) > 0 || len(c.Changed) > 0
}

// compareRuns compares the runs named by args, or the latest two runs when
// args is empty.
func compareRuns(ctx context.Context, db *database.CrawlDB, args []string) (*Comparison, error) {
	var oldRun, newRun *database.RunRecord
	if len(args) == 2 {
		var err error
		if oldRun, err = getRun(ctx, db, args[0]); err != nil {
			return nil, err
		}
		if newRun, err = getRun(ctx, db, args[1]); err != nil {
			return nil, err
		}
	} else {
		runs, err := db.ListRuns(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to list runs: %w", err)
		}
		if len(runs) < 2 {
			return nil, fmt.Errorf("at least 2 runs are required for comparison (found %d)", len(runs))
		}
		// ListRuns is newest first.
		newRun, oldRun = runs[0], runs[1]
	}

	oldPages, err := completedURLs(ctx, db, oldRun.ID)
	if err != nil {
		return nil, err
	}
	newPages, err := completedURLs(ctx, db, newRun.ID)
	if err != nil {
		return nil, err
	}
	changed, err := db.ChangedPages(ctx, oldRun.ID, newRun.ID)
	if err != nil {
		return nil, err
	}

	return &Comparison{
		OldRun:  newRunInfo(oldRun),
		NewRun:  newRunInfo(newRun),
		Added:   difference(newPages, oldPages),
		Removed: difference(oldPages, newPages),
		Changed: nonNil(changed),
	}, nil
}

func getRun(ctx context.Context, db *database.CrawlDB, runID string) (*database.RunRecord, error) {
	run, err := db.GetRun(ctx, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to get run %s: %w", runID, err)
	}
	if run == nil {
		return nil, fmt.Errorf("run %s not found", runID)
	}
	return run, nil
}

func completedURLs(ctx context.Context, db *database.CrawlDB, runID string) (map[string]bool, error) {
	pages, err := db.ListPages(ctx, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to list pages of run %s: %w", runID, err)
	}
	urls := make(map[string]bool, len(pages))
	for _, p := range pages {
		if p.Completed() {
			urls[p.URL] = true
		}
	}
	return urls, nil
}

// difference returns the sorted keys of a that are missing from b.
func difference(a, b map[string]bool) []string {
	out := []string{}
	for u := range a {
		if !b[u] {
			out = append(out, u)
		}
	}
	sort.Strings(out)
	return out
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

func writeComparisonText(out io.Writer, c *Comparison) {
	fmt.Fprintf(out, "Comparing runs\n")
	fmt.Fprintf(out, "  old: %s (%s)\n", c.OldRun.ID, c.OldRun.StartedAt)
	fmt.Fprintf(out, "  new: %s (%s)\n\n", c.NewRun.ID, c.NewRun.StartedAt)

	if !c.HasChanges() {
		fmt.Fprintln(out, "No page was added, removed or changed.")
		return
	}
	writeURLSection(out, "ADDED", "+", c.Added)
	writeURLSection(out, "REMOVED", "-", c.Removed)
	writeURLSection(out, "CHANGED", "~", c.Changed)
}

func writeURLSection(out io.Writer, title, marker string, urls []string) {
	if len(urls) == 0 {
		return
	}
	fmt.Fprintf(out, "%s (%d)\n", title, len(urls))
	for _, u := range urls {
		fmt.Fprintf(out, "  %s %s\n", marker, u)
	}
	fmt.Fprintln(out)
}

func writeJSON(out io.Writer, v any) error {
	encoder := json.NewEncoder(out)
	encoder.SetIndent("", "  ")
	return encoder.Encode(v)
}
