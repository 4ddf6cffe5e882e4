package database

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"

	"github.com/nao1215/yieldpage/internal/model"
)

// setupTestDB creates a temporary database for testing.
func setupTestDB(t *testing.T) *CrawlDB {
	t.Helper()

	db, err := Open(t.TempDir(), DefaultOptions())
	if err != nil {
		t.Fatalf("failed to open database: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func samplePage(runID, url string, links ...string) *model.PageRecord {
	return &model.PageRecord{
		RunID:         runID,
		URL:           url,
		Depth:         1,
		Origin:        "https://example.com/",
		Outcome:       model.OutcomeCompleted,
		Attempts:      2,
		StatusCode:    200,
		Title:         "Example",
		Description:   "An example page",
		Meta:          map[string]string{"description": "An example page", "og:type": "article"},
		Text:          "hello world",
		Links:         links,
		ContentHash:   model.HashContent("hello world"),
		FetchDuration: 1500 * time.Millisecond,
		FetchedAt:     time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC),
	}
}

func TestOpen(t *testing.T) {
	t.Parallel()

	t.Run("creates database in new directory", func(t *testing.T) {
		t.Parallel()

		dbDir := filepath.Join(t.TempDir(), "newdir", "subdir")
		db, err := Open(dbDir, DefaultOptions())
		if err != nil {
			t.Fatalf("failed to open database: %v", err)
		}
		defer db.Close()

		if _, err := os.Stat(filepath.Join(dbDir, FileName)); os.IsNotExist(err) {
			t.Error("database file was not created")
		}
		if db.Path() != filepath.Join(dbDir, FileName) {
			t.Errorf("Path = %s", db.Path())
		}
	})

	t.Run("CreateIfNotExists=false returns error when database does not exist", func(t *testing.T) {
		t.Parallel()

		dbDir := filepath.Join(t.TempDir(), "nonexistent-db")
		_, err := Open(dbDir, Options{CreateIfNotExists: false, EnableWAL: true})
		if err == nil {
			t.Fatal("expected error when CreateIfNotExists=false and database does not exist")
		}
		if !strings.Contains(err.Error(), "database not found") {
			t.Errorf("unexpected error %q", err)
		}
		if _, statErr := os.Stat(dbDir); !os.IsNotExist(statErr) {
			t.Error("database directory should not have been created")
		}
	})

	t.Run("CreateIfNotExists=false opens existing database", func(t *testing.T) {
		t.Parallel()

		dbDir := filepath.Join(t.TempDir(), "existing-db")
		db1, err := Open(dbDir, DefaultOptions())
		if err != nil {
			t.Fatalf("failed to create database: %v", err)
		}
		if err := db1.StartRun(context.Background(), "run-1", []string{"https://example.com/"}, time.Now()); err != nil {
			t.Fatal(err)
		}
		_ = db1.Close()

		db2, err := Open(dbDir, Options{CreateIfNotExists: false})
		if err != nil {
			t.Fatalf("failed to reopen database: %v", err)
		}
		defer db2.Close()

		run, err := db2.GetRun(context.Background(), "run-1")
		if err != nil || run == nil {
			t.Fatalf("expected stored run, got %v, %v", run, err)
		}
	})
}

func TestRuns(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	db := setupTestDB(t)
	started := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)

	if err := db.StartRun(ctx, "run-old", []string{"https://example.com/"}, started); err != nil {
		t.Fatal(err)
	}
	if err := db.StartRun(ctx, "run-new", []string{"https://example.com/", "https://example.org/"}, started.Add(time.Hour)); err != nil {
		t.Fatal(err)
	}

	t.Run("unfinished run has no summary", func(t *testing.T) {
		run, err := db.GetRun(ctx, "run-old")
		if err != nil {
			t.Fatal(err)
		}
		if run.Summary != nil || !run.FinishedAt.IsZero() {
			t.Errorf("unexpected finish state: %+v", run)
		}
		if !run.StartedAt.Equal(started) {
			t.Errorf("StartedAt = %v, want %v", run.StartedAt, started)
		}
	})

	t.Run("finish stores the summary", func(t *testing.T) {
		summary := &model.Summary{
			RunID:       "run-old",
			Seeds:       []string{"https://example.com/"},
			Claimed:     3,
			Completed:   2,
			Failed:      1,
			Interrupted: true,
			StartedAt:   started,
			FinishedAt:  started.Add(time.Minute),
		}
		if err := db.FinishRun(ctx, summary); err != nil {
			t.Fatal(err)
		}

		run, err := db.GetRun(ctx, "run-old")
		if err != nil {
			t.Fatal(err)
		}
		if !run.Interrupted || !run.FinishedAt.Equal(summary.FinishedAt) {
			t.Errorf("unexpected run %+v", run)
		}
		if diff := cmp.Diff(summary, run.Summary); diff != "" {
			t.Errorf("summary mismatch (-want +got):\n%s", diff)
		}
	})

	t.Run("finishing an unknown run fails", func(t *testing.T) {
		if err := db.FinishRun(ctx, &model.Summary{RunID: "missing"}); err == nil {
			t.Error("expected error")
		}
	})

	t.Run("runs are listed most recent first", func(t *testing.T) {
		runs, err := db.ListRuns(ctx)
		if err != nil {
			t.Fatal(err)
		}
		var ids []string
		for _, r := range runs {
			ids = append(ids, r.ID)
		}
		if diff := cmp.Diff([]string{"run-new", "run-old"}, ids); diff != "" {
			t.Errorf("order mismatch (-want +got):\n%s", diff)
		}
	})

	t.Run("unknown run is nil", func(t *testing.T) {
		run, err := db.GetRun(ctx, "nope")
		if err != nil || run != nil {
			t.Errorf("expected nil, nil; got %v, %v", run, err)
		}
	})
}

func TestEmitAndGetPage(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	db := setupTestDB(t)

	rec := samplePage("run-1", "https://example.com/a", "https://example.com/b", "https://example.com/c")
	if err := db.Emit(ctx, rec); err != nil {
		t.Fatalf("Emit: %v", err)
	}

	got, err := db.GetPage(ctx, "run-1", rec.URL)
	if err != nil {
		t.Fatalf("GetPage: %v", err)
	}
	if diff := cmp.Diff(rec, got); diff != "" {
		t.Errorf("record mismatch (-want +got):\n%s", diff)
	}

	t.Run("re-emitting replaces the record and links", func(t *testing.T) {
		updated := samplePage("run-1", rec.URL, "https://example.com/d")
		updated.Title = "Updated"
		if err := db.Emit(ctx, updated); err != nil {
			t.Fatal(err)
		}
		got, err := db.GetPage(ctx, "run-1", rec.URL)
		if err != nil {
			t.Fatal(err)
		}
		if got.Title != "Updated" {
			t.Errorf("Title = %q", got.Title)
		}
		if diff := cmp.Diff([]string{"https://example.com/d"}, got.Links); diff != "" {
			t.Errorf("links mismatch (-want +got):\n%s", diff)
		}
	})

	t.Run("missing page is nil", func(t *testing.T) {
		got, err := db.GetPage(ctx, "run-2", rec.URL)
		if err != nil || got != nil {
			t.Errorf("expected nil, nil; got %v, %v", got, err)
		}
	})
}

func TestFailedRecord(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	db := setupTestDB(t)

	rec := &model.PageRecord{
		RunID:     "run-1",
		URL:       "https://example.com/broken",
		Depth:     2,
		Outcome:   model.OutcomeFailed,
		Error:     "fetch timeout",
		Attempts:  3,
		FetchedAt: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC),
	}
	if err := db.Emit(ctx, rec); err != nil {
		t.Fatal(err)
	}
	got, err := db.GetPage(ctx, "run-1", rec.URL)
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff(rec, got, cmpopts.EquateEmpty()); diff != "" {
		t.Errorf("record mismatch (-want +got):\n%s", diff)
	}
}

func TestListPagesAndLinks(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	db := setupTestDB(t)

	root := samplePage("run-1", "https://example.com/", "https://example.com/b", "https://example.com/a")
	root.Depth = 0
	pages := []*model.PageRecord{
		samplePage("run-1", "https://example.com/b", "https://example.com/"),
		root,
		samplePage("run-1", "https://example.com/a", "https://example.com/"),
		samplePage("run-2", "https://example.com/other"),
	}
	for _, p := range pages {
		if err := db.Emit(ctx, p); err != nil {
			t.Fatal(err)
		}
	}

	listed, err := db.ListPages(ctx, "run-1")
	if err != nil {
		t.Fatal(err)
	}
	var urls []string
	for _, p := range listed {
		urls = append(urls, p.URL)
	}
	want := []string{"https://example.com/", "https://example.com/a", "https://example.com/b"}
	if diff := cmp.Diff(want, urls); diff != "" {
		t.Errorf("ListPages mismatch (-want +got):\n%s", diff)
	}

	links, err := db.Links(ctx, "run-1", "https://example.com/")
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff([]string{"https://example.com/b", "https://example.com/a"}, links); diff != "" {
		t.Errorf("links must keep document order (-want +got):\n%s", diff)
	}

	back, err := db.Backlinks(ctx, "run-1", "https://example.com/")
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff([]string{"https://example.com/a", "https://example.com/b"}, back); diff != "" {
		t.Errorf("Backlinks mismatch (-want +got):\n%s", diff)
	}
}

func TestChangedPages(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	db := setupTestDB(t)

	same := samplePage("old", "https://example.com/same")
	changed := samplePage("old", "https://example.com/changed")
	gone := samplePage("old", "https://example.com/gone")
	for _, p := range []*model.PageRecord{same, changed, gone} {
		if err := db.Emit(ctx, p); err != nil {
			t.Fatal(err)
		}
	}

	newChanged := samplePage("new", "https://example.com/changed")
	newChanged.Text = "new text"
	newChanged.ContentHash = model.HashContent(newChanged.Text)
	for _, p := range []*model.PageRecord{samplePage("new", "https://example.com/same"), newChanged, samplePage("new", "https://example.com/added")} {
		if err := db.Emit(ctx, p); err != nil {
			t.Fatal(err)
		}
	}

	got, err := db.ChangedPages(ctx, "old", "new")
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff([]string{"https://example.com/changed"}, got); diff != "" {
		t.Errorf("ChangedPages mismatch (-want +got):\n%s", diff)
	}
}

func TestConcurrentEmit(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	db := setupTestDB(t)

	var wg sync.WaitGroup
	for i := range 20 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			url := "https://example.com/" + strings.Repeat("p", i+1)
			if err := db.Emit(ctx, samplePage("run-1", url, "https://example.com/")); err != nil {
				t.Errorf("Emit: %v", err)
			}
		}()
	}
	wg.Wait()

	pages, err := db.ListPages(ctx, "run-1")
	if err != nil {
		t.Fatal(err)
	}
	if len(pages) != 20 {
		t.Errorf("got %d pages, want 20", len(pages))
	}
}

func TestParseTimestamp(t *testing.T) {
	t.Parallel()

	want := time.Date(2024, 5, 1, 12, 30, 0, 0, time.UTC)
	tests := []struct {
		name string
		in   string
		want time.Time
	}{
		{"rfc3339", "2024-05-01T12:30:00Z", want},
		{"sqlite default", "2024-05-01 12:30:00", want},
		{"empty", "", time.Time{}},
		{"garbage", "yesterday", time.Time{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := parseTimestamp(tt.in); !got.Equal(tt.want) {
				t.Errorf("parseTimestamp(%q) = %v, want %v", tt.in, got, tt.want)
			}
		})
	}

	if got := parseTimestamp(formatTimestamp(want)); !got.Equal(want) {
		t.Errorf("format/parse mismatch: %v", got)
	}
}
