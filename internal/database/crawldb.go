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

	"github.com/nao1215/sitemapgen/internal/model"
)

// FileName is the database file created in the database directory.
const FileName = "sitemapgen.db"

// ErrRunNotFound is returned for a run id that is not stored.
var ErrRunNotFound = errors.New("crawl run not found")

// CrawlDB stores finished crawls: one row per run and one row per URL
// record of the run.
type CrawlDB struct {
	// db is the underlying SQL database connection.
	db *sql.DB

	// dbPath is the path to the SQLite database file.
	dbPath string
}

// Options configures CrawlDB behavior.
type Options struct {
	// CreateIfNotExists creates the database file if it doesn't exist.
	CreateIfNotExists bool

	// EnableWAL enables Write-Ahead Logging for better concurrent performance.
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
// If CreateIfNotExists is true, the directory and database file are created.
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

	// mode=rw refuses to create a missing file, mode=rwc creates it.
	var dsn string
	if opts.CreateIfNotExists {
		dsn = dbPath + "?mode=rwc"
	} else {
		dsn = dbPath + "?mode=rw"
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

// Close closes the database connection.
func (cdb *CrawlDB) Close() error {
	return cdb.db.Close()
}

// Path returns the database file path.
func (cdb *CrawlDB) Path() string {
	return cdb.dbPath
}

// createTables creates the database schema if it doesn't exist.
func (cdb *CrawlDB) createTables() error {
	schema := `
	-- One row per crawl
	CREATE TABLE IF NOT EXISTS runs (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		seed TEXT NOT NULL,
		started_at DATETIME NOT NULL,
		finished_at DATETIME,
		elapsed_ms INTEGER DEFAULT 0,
		total INTEGER DEFAULT 0,
		html_pages INTEGER DEFAULT 0,
		errors INTEGER DEFAULT 0,
		aborted INTEGER DEFAULT 0,
		summary_json TEXT
	);

	CREATE INDEX IF NOT EXISTS idx_runs_seed ON runs(seed);

	-- URL records of a run, keyed by their discovery id
	CREATE TABLE IF NOT EXISTS records (
		run_id INTEGER NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
		id INTEGER NOT NULL,
		parent INTEGER NOT NULL,
		found TEXT,
		url TEXT NOT NULL,
		normalized TEXT NOT NULL,
		handle TEXT NOT NULL,
		status_code INTEGER,
		content_type TEXT,
		is_html INTEGER,
		charset TEXT,
		try_count INTEGER,
		redirect_count INTEGER,
		dup_count INTEGER,
		time_ms INTEGER,
		checksum TEXT,
		error TEXT,
		PRIMARY KEY (run_id, id)
	);

	CREATE INDEX IF NOT EXISTS idx_records_url ON records(normalized);
	`

	_, err := cdb.db.ExecContext(context.Background(), schema)
	return err
}

// Run is the stored summary row of one crawl.
type Run struct {
	ID         int64
	Seed       string
	StartedAt  time.Time
	FinishedAt time.Time
	Elapsed    time.Duration
	Total      int
	HTMLPages  int
	Errors     int
	Aborted    bool
}

// BeginRun inserts a run row and returns its id.
func (cdb *CrawlDB) BeginRun(ctx context.Context, seed string, startedAt time.Time) (int64, error) {
	result, err := cdb.db.ExecContext(ctx,
		`INSERT INTO runs (seed, started_at) VALUES (?, ?)`,
		seed, startedAt.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return 0, fmt.Errorf("failed to insert run: %w", err)
	}
	return result.LastInsertId()
}

// SaveRecords stores the records of a run in one transaction.
func (cdb *CrawlDB) SaveRecords(ctx context.Context, runID int64, records []*model.Record) (err error) {
	tx, err := cdb.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	stmt, err := tx.PrepareContext(ctx, `
	INSERT OR REPLACE INTO records (
		run_id, id, parent, found, url, normalized, handle, status_code, content_type,
		is_html, charset, try_count, redirect_count, dup_count, time_ms, checksum, error
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare record insert: %w", err)
	}
	defer stmt.Close()

	for _, r := range records {
		if _, err = stmt.ExecContext(ctx,
			runID, r.ID, r.Parent, r.Found, r.Resolved, r.Normalized, r.Handle.String(),
			r.StatusCode, r.ContentType, r.IsHTML, r.Charset, r.TryCount, r.RedirectCount,
			r.Count, r.Time.Milliseconds(), r.Checksum, r.Error,
		); err != nil {
			return fmt.Errorf("failed to insert record %d: %w", r.ID, err)
		}
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit records: %w", err)
	}
	return nil
}

// FinishRun stores the summary of a run.
func (cdb *CrawlDB) FinishRun(ctx context.Context, runID int64, summary *model.Summary) error {
	summaryJSON, err := json.Marshal(summary)
	if err != nil {
		return fmt.Errorf("failed to serialize summary: %w", err)
	}

	result, err := cdb.db.ExecContext(ctx, `
	UPDATE runs SET
		finished_at = ?,
		elapsed_ms = ?,
		total = ?,
		html_pages = ?,
		errors = ?,
		aborted = ?,
		summary_json = ?
	WHERE id = ?
	`,
		time.Now().UTC().Format(time.RFC3339Nano),
		summary.Elapsed.Milliseconds(),
		summary.Total,
		summary.HTMLPages,
		summary.ErrorCount(),
		summary.Aborted,
		string(summaryJSON),
		runID,
	)
	if err != nil {
		return fmt.Errorf("failed to update run: %w", err)
	}
	if n, err := result.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("%w: %d", ErrRunNotFound, runID)
	}
	return nil
}

// ListRuns returns the runs of seed, newest first. An empty seed lists
// every run.
func (cdb *CrawlDB) ListRuns(ctx context.Context, seed string) ([]Run, error) {
	query := `
	SELECT id, seed, started_at, COALESCE(finished_at, ''), elapsed_ms, total, html_pages, errors, aborted
	FROM runs
	WHERE 1=1
	`
	args := make([]any, 0, 1)
	if seed != "" {
		query += " AND seed = ?"
		args = append(args, seed)
	}
	query += " ORDER BY id DESC"

	rows, err := cdb.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		var (
			run               Run
			started, finished string
			elapsedMS         int64
		)
		if err := rows.Scan(&run.ID, &run.Seed, &started, &finished, &elapsedMS,
			&run.Total, &run.HTMLPages, &run.Errors, &run.Aborted); err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		run.StartedAt = parseTimestamp(started)
		run.FinishedAt = parseTimestamp(finished)
		run.Elapsed = time.Duration(elapsedMS) * time.Millisecond
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

// GetSummary returns the stored summary of a run.
func (cdb *CrawlDB) GetSummary(ctx context.Context, runID int64) (*model.Summary, error) {
	var summaryJSON sql.NullString
	err := cdb.db.QueryRowContext(ctx, `SELECT summary_json FROM runs WHERE id = ?`, runID).Scan(&summaryJSON)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %d", ErrRunNotFound, runID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get run: %w", err)
	}
	if !summaryJSON.Valid || summaryJSON.String == "" {
		return nil, nil
	}

	var summary model.Summary
	if err := json.Unmarshal([]byte(summaryJSON.String), &summary); err != nil {
		return nil, fmt.Errorf("failed to parse summary: %w", err)
	}
	return &summary, nil
}

// GetRecords returns the records of a run in id order.
func (cdb *CrawlDB) GetRecords(ctx context.Context, runID int64) ([]*model.Record, error) {
	rows, err := cdb.db.QueryContext(ctx, `
	SELECT id, parent, found, url, normalized, handle, status_code, content_type,
		is_html, charset, try_count, redirect_count, dup_count, time_ms, checksum, error
	FROM records
	WHERE run_id = ?
	ORDER BY id
	`, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to get records: %w", err)
	}
	defer rows.Close()

	var records []*model.Record
	for rows.Next() {
		var (
			r      model.Record
			handle string
			timeMS int64
		)
		if err := rows.Scan(&r.ID, &r.Parent, &r.Found, &r.Resolved, &r.Normalized, &handle,
			&r.StatusCode, &r.ContentType, &r.IsHTML, &r.Charset, &r.TryCount, &r.RedirectCount,
			&r.Count, &timeMS, &r.Checksum, &r.Error); err != nil {
			return nil, fmt.Errorf("failed to scan record: %w", err)
		}
		r.Handle = model.ParseHandle(handle)
		r.Time = time.Duration(timeMS) * time.Millisecond
		records = append(records, &r)
	}
	return records, rows.Err()
}

// timestampFormats contains the timestamp formats that SQLite may return.
// The order matters: more specific formats should come first.
var timestampFormats = []string{
	time.RFC3339Nano,
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05Z",
	"2006-01-02T15:04:05",
}

// parseTimestamp attempts to parse a timestamp string using multiple formats.
// If parsing fails with all formats, returns zero time.
func parseTimestamp(s string) time.Time {
	for _, format := range timestampFormats {
		if t, err := time.Parse(format, s); err == nil {
			return t
		}
	}
	return time.Time{}
}
