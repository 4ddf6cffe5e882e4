package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite" // SQLite driver

	"github.com/nao1215/yieldpage/internal/model"
)

// FileName is the name of the database file inside the database directory.
const FileName = "yieldpage.db"

// CrawlDB provides SQLite-based storage for crawl runs, page records and the
// link graph between pages. It implements the record sink interface, so the
// crawler can write into it directly.
//
// All runs share one database file; pages and links are keyed by run ID so
// runs can be compared with each other.
type CrawlDB struct {
	db     *sql.DB
	dbPath string
}

// Options configures CrawlDB behavior.
type Options struct {
	// CreateIfNotExists creates the database file if it doesn't exist.
	CreateIfNotExists bool

	// EnableWAL enables Write-Ahead Logging so readers don't block the writer.
	EnableWAL bool
}

// DefaultOptions returns the default database options.
func DefaultOptions() Options {
	return Options{
		CreateIfNotExists: true,
		EnableWAL:         true,
	}
}

// Open opens or creates a CrawlDB in dbDir.
// If CreateIfNotExists is false and the database doesn't exist, an error is returned.
func Open(dbDir string, opts Options) (*CrawlDB, error) {
	dbPath := filepath.Join(dbDir, FileName)

	if !opts.CreateIfNotExists {
		if _, err := os.Stat(dbPath); os.IsNotExist(err) {
			return nil, fmt.Errorf("database not found at %s (use CreateIfNotExists option to create)", dbPath)
		} else if err != nil {
			return nil, fmt.Errorf("failed to check database path: %w", err)
		}
	} else {
		if err := os.MkdirAll(dbDir, 0750); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	// mode=rw refuses to create a missing file, mode=rwc allows it.
	dsn := dbPath + "?mode=rw"
	if opts.CreateIfNotExists {
		dsn = dbPath + "?mode=rwc"
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// SQLite only supports one writer.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(time.Hour)

	cdb := &CrawlDB{
		db:     db,
		dbPath: dbPath,
	}

	if opts.EnableWAL {
		if _, err := db.ExecContext(context.Background(), "PRAGMA journal_mode=WAL"); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
		}
	}

	if err := cdb.createTables(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}

	return cdb, nil
}

// Path returns the database file path.
func (cdb *CrawlDB) Path() string {
	return cdb.dbPath
}

// Close closes the database connection.
func (cdb *CrawlDB) Close() error {
	return cdb.db.Close()
}

func (cdb *CrawlDB) createTables() error {
	schema := `
	CREATE TABLE IF NOT EXISTS runs (
		id TEXT PRIMARY KEY,
		seeds TEXT NOT NULL,
		started_at TEXT NOT NULL,
		finished_at TEXT,
		interrupted INTEGER DEFAULT 0,
		summary TEXT
	);

	CREATE INDEX IF NOT EXISTS idx_runs_started ON runs(started_at);

	CREATE TABLE IF NOT EXISTS pages (
		run_id TEXT NOT NULL,
		url TEXT NOT NULL,
		depth INTEGER NOT NULL,
		origin TEXT,
		outcome TEXT NOT NULL,
		error TEXT,
		attempts INTEGER NOT NULL,
		status_code INTEGER,
		title TEXT,
		description TEXT,
		meta TEXT,
		text TEXT,
		content_hash TEXT,
		fetch_ns INTEGER,
		fetched_at TEXT,
		PRIMARY KEY (run_id, url)
	);

	CREATE INDEX IF NOT EXISTS idx_pages_url ON pages(url);
	CREATE INDEX IF NOT EXISTS idx_pages_hash ON pages(content_hash);

	-- links keeps the outgoing links of a page in document order
	CREATE TABLE IF NOT EXISTS links (
		run_id TEXT NOT NULL,
		from_url TEXT NOT NULL,
		to_url TEXT NOT NULL,
		position INTEGER NOT NULL,
		PRIMARY KEY (run_id, from_url, to_url)
	);

	CREATE INDEX IF NOT EXISTS idx_links_to ON links(run_id, to_url);
	`

	_, err := cdb.db.ExecContext(context.Background(), schema)
	return err
}

// RunRecord is a stored crawl run.
type RunRecord struct {
	ID          string
	Seeds       []string
	StartedAt   time.Time
	FinishedAt  time.Time
	Interrupted bool
	// Summary is nil until FinishRun was called.
	Summary *model.Summary
}

// StartRun registers a new run. Starting an existing run ID again resets its
// finish state.
func (cdb *CrawlDB) StartRun(ctx context.Context, runID string, seeds []string, startedAt time.Time) error {
	seedsJSON, err := json.Marshal(seeds)
	if err != nil {
		return fmt.Errorf("failed to serialize seeds: %w", err)
	}

	query := `
	INSERT INTO runs (id, seeds, started_at)
	VALUES (?, ?, ?)
	ON CONFLICT(id) DO UPDATE SET
		seeds = excluded.seeds,
		started_at = excluded.started_at,
		finished_at = NULL,
		interrupted = 0,
		summary = NULL
	`
	if _, err := cdb.db.ExecContext(ctx, query, runID, string(seedsJSON), formatTimestamp(startedAt)); err != nil {
		return fmt.Errorf("failed to start run: %w", err)
	}
	return nil
}

// FinishRun stores the final summary of a run.
func (cdb *CrawlDB) FinishRun(ctx context.Context, summary *model.Summary) error {
	summaryJSON, err := json.Marshal(summary)
	if err != nil {
		return fmt.Errorf("failed to serialize summary: %w", err)
	}

	query := `
	UPDATE runs SET finished_at = ?, interrupted = ?, summary = ?
	WHERE id = ?
	`
	result, err := cdb.db.ExecContext(ctx, query,
		formatTimestamp(summary.FinishedAt),
		summary.Interrupted,
		string(summaryJSON),
		summary.RunID,
	)
	if err != nil {
		return fmt.Errorf("failed to finish run: %w", err)
	}
	if n, err := result.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("failed to finish run: unknown run %s", summary.RunID)
	}
	return nil
}

// GetRun retrieves a run by ID. It returns nil when the run does not exist.
func (cdb *CrawlDB) GetRun(ctx context.Context, runID string) (*RunRecord, error) {
	query := `
	SELECT id, seeds, started_at, finished_at, interrupted, summary
	FROM runs WHERE id = ?
	`
	run, err := scanRun(cdb.db.QueryRowContext(ctx, query, runID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get run: %w", err)
	}
	return run, nil
}

// ListRuns returns all runs, most recent first.
func (cdb *CrawlDB) ListRuns(ctx context.Context) ([]*RunRecord, error) {
	query := `
	SELECT id, seeds, started_at, finished_at, interrupted, summary
	FROM runs ORDER BY started_at DESC
	`
	rows, err := cdb.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	defer rows.Close()

	var runs []*RunRecord
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRun(row rowScanner) (*RunRecord, error) {
	var (
		run         RunRecord
		seedsJSON   string
		startedAt   string
		finishedAt  sql.NullString
		summaryJSON sql.NullString
	)
	if err := row.Scan(&run.ID, &seedsJSON, &startedAt, &finishedAt, &run.Interrupted, &summaryJSON); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(seedsJSON), &run.Seeds); err != nil {
		return nil, fmt.Errorf("failed to parse seeds: %w", err)
	}
	run.StartedAt = parseTimestamp(startedAt)
	if finishedAt.Valid {
		run.FinishedAt = parseTimestamp(finishedAt.String)
	}
	if summaryJSON.Valid && summaryJSON.String != "" {
		var summary model.Summary
		if err := json.Unmarshal([]byte(summaryJSON.String), &summary); err != nil {
			return nil, fmt.Errorf("failed to parse summary: %w", err)
		}
		run.Summary = &summary
	}
	return &run, nil
}

// Emit stores a page record and its outgoing links. A record for the same run
// and URL replaces the previous one.
func (cdb *CrawlDB) Emit(ctx context.Context, rec *model.PageRecord) error {
	metaJSON, err := json.Marshal(rec.Meta)
	if err != nil {
		return fmt.Errorf("failed to serialize meta: %w", err)
	}

	tx, err := cdb.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	query := `
	INSERT INTO pages (run_id, url, depth, origin, outcome, error, attempts, status_code,
		title, description, meta, text, content_hash, fetch_ns, fetched_at)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT(run_id, url) DO UPDATE SET
		depth = excluded.depth,
		origin = excluded.origin,
		outcome = excluded.outcome,
		error = excluded.error,
		attempts = excluded.attempts,
		status_code = excluded.status_code,
		title = excluded.title,
		description = excluded.description,
		meta = excluded.meta,
		text = excluded.text,
		content_hash = excluded.content_hash,
		fetch_ns = excluded.fetch_ns,
		fetched_at = excluded.fetched_at
	`
	_, err = tx.ExecContext(ctx, query,
		rec.RunID,
		rec.URL,
		rec.Depth,
		rec.Origin,
		rec.Outcome.String(),
		rec.Error,
		rec.Attempts,
		rec.StatusCode,
		rec.Title,
		rec.Description,
		string(metaJSON),
		rec.Text,
		rec.ContentHash,
		int64(rec.FetchDuration),
		formatTimestamp(rec.FetchedAt),
	)
	if err != nil {
		return fmt.Errorf("failed to insert page %s: %w", rec.URL, err)
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM links WHERE run_id = ? AND from_url = ?`, rec.RunID, rec.URL); err != nil {
		return fmt.Errorf("failed to clear links of %s: %w", rec.URL, err)
	}
	for i, link := range rec.Links {
		_, err := tx.ExecContext(ctx,
			`INSERT OR IGNORE INTO links (run_id, from_url, to_url, position) VALUES (?, ?, ?, ?)`,
			rec.RunID, rec.URL, link, i,
		)
		if err != nil {
			return fmt.Errorf("failed to insert link %s: %w", link, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit page %s: %w", rec.URL, err)
	}
	return nil
}

const pageColumns = `run_id, url, depth, origin, outcome, error, attempts, status_code,
	title, description, meta, text, content_hash, fetch_ns, fetched_at`

// GetPage retrieves the record of url in a run. It returns nil when the page
// was not stored. Links are loaded as well.
func (cdb *CrawlDB) GetPage(ctx context.Context, runID, url string) (*model.PageRecord, error) {
	query := `SELECT ` + pageColumns + ` FROM pages WHERE run_id = ? AND url = ?`

	rec, err := scanPage(cdb.db.QueryRowContext(ctx, query, runID, url))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get page: %w", err)
	}

	links, err := cdb.Links(ctx, runID, url)
	if err != nil {
		return nil, err
	}
	rec.Links = links
	return rec, nil
}

// ListPages returns the records of a run ordered by depth and URL. Links are
// not loaded; use Links for a single page.
func (cdb *CrawlDB) ListPages(ctx context.Context, runID string) ([]*model.PageRecord, error) {
	query := `SELECT ` + pageColumns + ` FROM pages WHERE run_id = ? ORDER BY depth, url`

	rows, err := cdb.db.QueryContext(ctx, query, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to list pages: %w", err)
	}
	defer rows.Close()

	var pages []*model.PageRecord
	for rows.Next() {
		rec, err := scanPage(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan page: %w", err)
		}
		pages = append(pages, rec)
	}
	return pages, rows.Err()
}

// Links returns the outgoing links of url in a run, in document order.
func (cdb *CrawlDB) Links(ctx context.Context, runID, url string) ([]string, error) {
	query := `
	SELECT to_url FROM links
	WHERE run_id = ? AND from_url = ?
	ORDER BY position
	`
	rows, err := cdb.db.QueryContext(ctx, query, runID, url)
	if err != nil {
		return nil, fmt.Errorf("failed to query links: %w", err)
	}
	defer rows.Close()

	var links []string
	for rows.Next() {
		var link string
		if err := rows.Scan(&link); err != nil {
			return nil, fmt.Errorf("failed to scan link: %w", err)
		}
		links = append(links, link)
	}
	return links, rows.Err()
}

// Backlinks returns the pages of a run that link to url.
func (cdb *CrawlDB) Backlinks(ctx context.Context, runID, url string) ([]string, error) {
	query := `
	SELECT from_url FROM links
	WHERE run_id = ? AND to_url = ?
	ORDER BY from_url
	`
	rows, err := cdb.db.QueryContext(ctx, query, runID, url)
	if err != nil {
		return nil, fmt.Errorf("failed to query backlinks: %w", err)
	}
	defer rows.Close()

	var froms []string
	for rows.Next() {
		var from string
		if err := rows.Scan(&from); err != nil {
			return nil, fmt.Errorf("failed to scan backlink: %w", err)
		}
		froms = append(froms, from)
	}
	return froms, rows.Err()
}

func scanPage(row rowScanner) (*model.PageRecord, error) {
	var (
		rec       model.PageRecord
		origin    sql.NullString
		outcome   string
		errText   sql.NullString
		title     sql.NullString
		desc      sql.NullString
		metaJSON  sql.NullString
		text      sql.NullString
		hash      sql.NullString
		fetchNS   sql.NullInt64
		fetchedAt sql.NullString
	)
	err := row.Scan(
		&rec.RunID,
		&rec.URL,
		&rec.Depth,
		&origin,
		&outcome,
		&errText,
		&rec.Attempts,
		&rec.StatusCode,
		&title,
		&desc,
		&metaJSON,
		&text,
		&hash,
		&fetchNS,
		&fetchedAt,
	)
	if err != nil {
		return nil, err
	}
	if err := rec.Outcome.UnmarshalText([]byte(outcome)); err != nil {
		return nil, err
	}
	rec.Origin = origin.String
	rec.Error = errText.String
	rec.Title = title.String
	rec.Description = desc.String
	rec.Text = text.String
	rec.ContentHash = hash.String
	rec.FetchDuration = time.Duration(fetchNS.Int64)
	rec.FetchedAt = parseTimestamp(fetchedAt.String)
	if metaJSON.Valid && metaJSON.String != "" && metaJSON.String != "null" {
		if err := json.Unmarshal([]byte(metaJSON.String), &rec.Meta); err != nil {
			return nil, fmt.Errorf("failed to parse meta: %w", err)
		}
	}
	return &rec, nil
}

// ChangedPages returns the URLs whose content hash differs between two runs.
// Pages present in only one of the runs are not reported.
func (cdb *CrawlDB) ChangedPages(ctx context.Context, oldRunID, newRunID string) ([]string, error) {
	query := `
	SELECT n.url FROM pages n
	JOIN pages o ON o.url = n.url AND o.run_id = ?
	WHERE n.run_id = ? AND n.outcome = 'completed' AND o.outcome = 'completed'
		AND n.content_hash <> o.content_hash
	ORDER BY n.url
	`
	rows, err := cdb.db.QueryContext(ctx, query, oldRunID, newRunID)
	if err != nil {
		return nil, fmt.Errorf("failed to compare runs: %w", err)
	}
	defer rows.Close()

	var urls []string
	for rows.Next() {
		var u string
		if err := rows.Scan(&u); err != nil {
			return nil, fmt.Errorf("failed to scan url: %w", err)
		}
		urls = append(urls, u)
	}
	return urls, rows.Err()
}

// timestampFormats contains the timestamp formats that SQLite may return.
// The order matters: more specific formats should come first.
var timestampFormats = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05.999",
}

func formatTimestamp(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339Nano)
}

// parseTimestamp tries each known format and returns the zero time when none
// matches.
func parseTimestamp(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	for _, format := range timestampFormats {
		if t, err := time.Parse(format, s); err == nil {
			return t
		}
	}
	return time.Time{}
}
