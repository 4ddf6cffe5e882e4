package main

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/nao1215/yieldpage/internal/browser"
	"github.com/nao1215/yieldpage/internal/browser/browsertest"
	"github.com/nao1215/yieldpage/internal/config"
	"github.com/nao1215/yieldpage/internal/database"
	"github.com/nao1215/yieldpage/internal/model"
	"github.com/nao1215/yieldpage/internal/report"
)

func TestNewCrawlCmd(t *testing.T) {
	t.Parallel()

	cmd := NewCrawlCmd()

	if cmd.Use != "crawl [seed-url...]" {
		t.Errorf("unexpected use %q", cmd.Use)
	}

	shorthands := map[string]string{
		"depth":         "d",
		"max-pages":     "p",
		"sessions":      "s",
		"workers":       "w",
		"fetch-timeout": "t",
		"output":        "o",
		"json":          "j",
		"markdown":      "m",
		"report":        "r",
		"config":        "c",
	}
	for name, short := range shorthands {
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			flag := cmd.Flags().Lookup(name)
			if flag == nil {
				t.Fatalf("expected %s flag", name)
			}
			if flag.Shorthand != short {
				t.Errorf("expected shorthand %q, got %q", short, flag.Shorthand)
			}
		})
	}

	for _, name := range []string{
		"include", "exclude", "allow-external", "path-prefix", "max-per-host",
		"host-interval", "retries", "backoff-base", "backoff-multiplier", "backoff-max",
		"run-timeout", "robots", "browser-url", "headless", "user-agent", "render-wait",
		"tor", "tor-timeout", "db", "db-dir", "kafka-brokers", "kafka-topic",
		"neo4j-uri", "neo4j-user", "neo4j-password", "redis-addr",
	} {
		if cmd.Flags().Lookup(name) == nil {
			t.Errorf("expected %s flag", name)
		}
	}
}

func writeConfigFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatal(err)
	}
	return path
}

func parseCrawlConfig(t *testing.T, flags []string, args []string) (*config.Config, error) {
	t.Helper()
	cmd := NewCrawlCmd()
	if err := cmd.ParseFlags(flags); err != nil {
		t.Fatalf("ParseFlags: %v", err)
	}
	return buildConfig(cmd, args)
}

func TestBuildConfig(t *testing.T) {
	t.Parallel()

	t.Run("missing explicit config file", func(t *testing.T) {
		t.Parallel()
		missing := filepath.Join(t.TempDir(), "nope.yaml")
		_, err := parseCrawlConfig(t, []string{"--config", missing}, nil)
		if !errors.Is(err, config.ErrConfigNotFound) {
			t.Errorf("expected ErrConfigNotFound, got %v", err)
		}
	})

	t.Run("file values apply", func(t *testing.T) {
		t.Parallel()
		path := writeConfigFile(t, `
seeds:
  - https://docs.example.com/
crawl:
  maxDepth: 2
  hostInterval: 250ms
output:
  kafkaBrokers: [broker:9092]
`)
		cfg, err := parseCrawlConfig(t, []string{"-c", path}, nil)
		if err != nil {
			t.Fatal(err)
		}
		if diff := cmp.Diff([]string{"https://docs.example.com/"}, cfg.Seeds); diff != "" {
			t.Errorf("seeds mismatch (-want +got):\n%s", diff)
		}
		if cfg.MaxDepth != 2 || cfg.HostInterval != 250*time.Millisecond {
			t.Errorf("file values not applied: depth=%d interval=%v", cfg.MaxDepth, cfg.HostInterval)
		}
		if diff := cmp.Diff([]string{"broker:9092"}, cfg.KafkaBrokers); diff != "" {
			t.Errorf("brokers mismatch (-want +got):\n%s", diff)
		}
		// Untouched values keep their defaults.
		if cfg.RetryLimit != config.DefaultRetryLimit {
			t.Errorf("expected default retry limit, got %d", cfg.RetryLimit)
		}
	})

	t.Run("explicit flags win over the file", func(t *testing.T) {
		t.Parallel()
		path := writeConfigFile(t, `
seeds: [https://docs.example.com/]
crawl:
  maxDepth: 2
  maxPerHost: 3
`)
		cfg, err := parseCrawlConfig(t, []string{
			"-c", path,
			"-d", "7",
			"--host-interval", "1s",
			"--exclude", `/v\d{1,2}/`,
			"--json",
		}, []string{"https://other.example.com/"})
		if err != nil {
			t.Fatal(err)
		}
		if cfg.MaxDepth != 7 {
			t.Errorf("expected flag depth 7, got %d", cfg.MaxDepth)
		}
		if cfg.MaxPerHost != 3 {
			t.Errorf("expected file max-per-host 3, got %d", cfg.MaxPerHost)
		}
		if cfg.HostInterval != time.Second {
			t.Errorf("expected 1s interval, got %v", cfg.HostInterval)
		}
		if diff := cmp.Diff([]string{`/v\d{1,2}/`}, cfg.ExcludePatterns); diff != "" {
			t.Errorf("exclude mismatch (-want +got):\n%s", diff)
		}
		if diff := cmp.Diff([]string{"https://other.example.com/"}, cfg.Seeds); diff != "" {
			t.Errorf("positional seeds must replace file seeds (-want +got):\n%s", diff)
		}
		if !cfg.JSONReport {
			t.Error("expected JSON report")
		}
	})

	t.Run("validation catches conflicting formats", func(t *testing.T) {
		t.Parallel()
		path := writeConfigFile(t, "seeds: [https://docs.example.com/]\n")
		cfg, err := parseCrawlConfig(t, []string{"-c", path, "--json", "--markdown"}, nil)
		if err != nil {
			t.Fatal(err)
		}
		if err := cfg.Validate(); !errors.Is(err, config.ErrConflictingReportFormats) {
			t.Errorf("expected ErrConflictingReportFormats, got %v", err)
		}
	})
}

// fakeEnv returns a crawl environment backed by an in-memory browser.
func fakeEnv(out *bytes.Buffer, tr *browsertest.Transport, seen *browser.ChromeOptions) crawlEnv {
	return crawlEnv{
		stdout: out,
		newTransport: func(_ context.Context, opts browser.ChromeOptions, _ *slog.Logger) (browser.Transport, func() error, error) {
			if seen != nil {
				*seen = opts
			}
			return tr, func() error { return nil }, nil
		},
	}
}

func page(title string, hrefs ...string) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "<html><head><title>%s</title></head><body><p>Some text.</p>", title)
	for _, h := range hrefs {
		fmt.Fprintf(&sb, `<a href="%s">link</a>`, h)
	}
	sb.WriteString("</body></html>")
	return sb.String()
}

func testCrawlConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := config.NewConfig()
	cfg.Seeds = []string{"https://site.test/"}
	cfg.HostInterval = 0
	cfg.FetchTimeout = 5 * time.Second
	cfg.RetryLimit = 1
	cfg.RunTimeout = 30 * time.Second
	cfg.DBDir = t.TempDir()
	return cfg
}

func newSiteTransport() *browsertest.Transport {
	tr := browsertest.New()
	tr.SetPage("https://site.test/", page("Home", "/a", "/b", "https://elsewhere.test/"))
	tr.SetPage("https://site.test/a", page("A", "/b"))
	tr.SetPage("https://site.test/b", page("B"))
	return tr
}

func discardLogger() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

func TestRunCrawl(t *testing.T) {
	t.Parallel()

	t.Run("records reach every output", func(t *testing.T) {
		t.Parallel()

		cfg := testCrawlConfig(t)
		cfg.SaveToDB = true
		cfg.OutputFile = filepath.Join(t.TempDir(), "out", "pages.jsonl")
		cfg.JSONReport = true
		cfg.UserAgent = "yieldpage-test"

		var out bytes.Buffer
		var opts browser.ChromeOptions
		if err := runCrawl(t.Context(), cfg, fakeEnv(&out, newSiteTransport(), &opts), discardLogger()); err != nil {
			t.Fatalf("runCrawl: %v", err)
		}

		if opts.UserAgent != "yieldpage-test" || !opts.Headless {
			t.Errorf("browser options not passed through: %+v", opts)
		}

		var got struct {
			Version string        `json:"version"`
			Summary model.Summary `json:"summary"`
		}
		if err := json.Unmarshal(out.Bytes(), &got); err != nil {
			t.Fatalf("report is not JSON: %v\n%s", err, out.String())
		}
		if got.Summary.Completed != 3 || got.Summary.Failed != 0 {
			t.Errorf("unexpected summary: %+v", got.Summary)
		}
		if got.Summary.Filtered != 1 {
			t.Errorf("expected the external link to be filtered, got %d", got.Summary.Filtered)
		}

		f, err := os.Open(cfg.OutputFile)
		if err != nil {
			t.Fatal(err)
		}
		defer f.Close()
		var urls []string
		scanner := bufio.NewScanner(f)
		scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
		for scanner.Scan() {
			var rec model.PageRecord
			if err := json.Unmarshal(scanner.Bytes(), &rec); err != nil {
				t.Fatalf("bad record line: %v", err)
			}
			urls = append(urls, rec.URL)
		}
		if len(urls) != 3 {
			t.Errorf("expected 3 record lines, got %v", urls)
		}

		db, err := database.Open(cfg.DBDir, database.DefaultOptions())
		if err != nil {
			t.Fatal(err)
		}
		defer db.Close()
		runs, err := db.ListRuns(t.Context())
		if err != nil {
			t.Fatal(err)
		}
		if len(runs) != 1 {
			t.Fatalf("expected 1 stored run, got %d", len(runs))
		}
		if runs[0].ID != got.Summary.RunID {
			t.Errorf("stored run %s does not match report run %s", runs[0].ID, got.Summary.RunID)
		}
		if runs[0].Summary == nil || runs[0].Summary.Completed != 3 {
			t.Errorf("run summary not stored: %+v", runs[0].Summary)
		}
		backlinks, err := db.Backlinks(t.Context(), runs[0].ID, "https://site.test/b")
		if err != nil {
			t.Fatal(err)
		}
		if diff := cmp.Diff([]string{"https://site.test/", "https://site.test/a"}, backlinks); diff != "" {
			t.Errorf("backlinks mismatch (-want +got):\n%s", diff)
		}
	})

	t.Run("markdown report to file", func(t *testing.T) {
		t.Parallel()

		cfg := testCrawlConfig(t)
		cfg.MarkdownReport = true
		cfg.ReportFile = filepath.Join(t.TempDir(), "reports", "summary.md")

		var out bytes.Buffer
		if err := runCrawl(t.Context(), cfg, fakeEnv(&out, newSiteTransport(), nil), discardLogger()); err != nil {
			t.Fatalf("runCrawl: %v", err)
		}
		if out.Len() != 0 {
			t.Errorf("expected nothing on stdout, got %q", out.String())
		}
		content, err := os.ReadFile(cfg.ReportFile)
		if err != nil {
			t.Fatal(err)
		}
		if !strings.Contains(string(content), "Crawl Report") {
			t.Errorf("expected markdown report, got:\n%s", content)
		}
	})

	t.Run("interrupted run still reports", func(t *testing.T) {
		t.Parallel()

		ctx, cancel := context.WithCancel(t.Context())
		cancel()

		var out bytes.Buffer
		if err := runCrawl(ctx, testCrawlConfig(t), fakeEnv(&out, newSiteTransport(), nil), discardLogger()); err != nil {
			t.Fatalf("an interrupted crawl is not an error: %v", err)
		}
		if !strings.Contains(out.String(), "INTERRUPTED") {
			t.Errorf("expected interrupted summary, got:\n%s", out.String())
		}
	})

	t.Run("browser startup failure", func(t *testing.T) {
		t.Parallel()

		startErr := errors.New("no chrome")
		env := crawlEnv{
			stdout: &bytes.Buffer{},
			newTransport: func(context.Context, browser.ChromeOptions, *slog.Logger) (browser.Transport, func() error, error) {
				return nil, nil, startErr
			},
		}
		err := runCrawl(t.Context(), testCrawlConfig(t), env, discardLogger())
		if !errors.Is(err, startErr) {
			t.Errorf("expected startup error, got %v", err)
		}
	})

	t.Run("unwritable record file", func(t *testing.T) {
		t.Parallel()

		cfg := testCrawlConfig(t)
		blocker := filepath.Join(t.TempDir(), "file")
		if err := os.WriteFile(blocker, nil, 0600); err != nil {
			t.Fatal(err)
		}
		cfg.OutputFile = filepath.Join(blocker, "pages.jsonl")

		if err := runCrawl(t.Context(), cfg, fakeEnv(&bytes.Buffer{}, newSiteTransport(), nil), discardLogger()); err == nil {
			t.Error("expected error for a record file below a regular file")
		}
	})
}

func TestWriteReport(t *testing.T) {
	t.Parallel()

	rep := &report.Report{
		Summary: &model.Summary{RunID: "run-1", Seeds: []string{"https://site.test/"}, Completed: 2},
	}

	tests := []struct {
		name string
		cfg  config.Config
		want string
	}{
		{"text", config.Config{}, "YIELDPAGE CRAWL SUMMARY"},
		{"json", config.Config{JSONReport: true}, `"run_id": "run-1"`},
		{"markdown", config.Config{MarkdownReport: true}, "Crawl Report"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			var out bytes.Buffer
			if err := writeReport(&tt.cfg, &out, rep); err != nil {
				t.Fatal(err)
			}
			if !strings.Contains(out.String(), tt.want) {
				t.Errorf("expected %q in output:\n%s", tt.want, out.String())
			}
		})
	}
}
