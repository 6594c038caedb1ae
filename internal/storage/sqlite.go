// Package storage persists analysis-run summaries so successive runs can be
// compared and trends reported.
package storage

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

// Storage handles database operations
type Storage struct {
	db *sql.DB
}

// RunSummary is one analysis run over one valgrind log.
type RunSummary struct {
	ID          int64
	Timestamp   time.Time
	InputPath   string
	ReportPath  string
	TotalIssues int
	TotalBytes  int64
	TotalBlocks int64

	// Per-type counters, keyed by the issue type's snake_case name.
	IssuesByType map[string]int
	BytesByType  map[string]int64

	CriticalCount   int
	ParseWarnings   int
	DurationSeconds float64
}

// Database configuration constants
const (
	// busyTimeoutMs is how long SQLite waits when database is locked (5 seconds)
	busyTimeoutMs = 5000
	// maxOpenConns limits concurrent connections (SQLite works best with 1)
	maxOpenConns = 1
	// maxIdleConns is the number of idle connections to keep
	maxIdleConns = 1
	// connMaxLifetime is how long a connection can be reused
	connMaxLifetime = 30 * time.Minute
)

// New creates a new storage instance
func New(dbPath string) (*Storage, error) {
	// Create directory if it doesn't exist (0700 for security - owner only)
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	// The _busy_timeout pragma prevents "database is locked" errors by waiting
	dsn := fmt.Sprintf("%s?_busy_timeout=%d", dbPath, busyTimeoutMs)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(maxOpenConns)
	db.SetMaxIdleConns(maxIdleConns)
	db.SetConnMaxLifetime(connMaxLifetime)

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	storage := &Storage{db: db}

	if err := storage.initSchema(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return storage, nil
}

// currentSchemaVersion is the latest schema version.
// Increment this when adding new migrations.
const currentSchemaVersion = 1

// initSchema creates the database schema if it doesn't exist
func (s *Storage) initSchema() error {
	if _, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS schema_version (
			version INTEGER PRIMARY KEY
		)
	`); err != nil {
		return fmt.Errorf("failed to create schema_version table: %w", err)
	}

	version := s.getSchemaVersion()

	if err := s.migrateSchema(version); err != nil {
		return fmt.Errorf("schema migration failed: %w", err)
	}

	return nil
}

// getSchemaVersion returns the current schema version (0 if not set)
func (s *Storage) getSchemaVersion() int {
	var version int
	err := s.db.QueryRow(`SELECT version FROM schema_version LIMIT 1`).Scan(&version)
	if err != nil {
		return 0 // No version set, needs full migration
	}
	return version
}

// setSchemaVersion updates the schema version
func (s *Storage) setSchemaVersion(version int) error {
	if _, err := s.db.Exec(`DELETE FROM schema_version`); err != nil {
		return err
	}
	if _, err := s.db.Exec(`INSERT INTO schema_version (version) VALUES (?)`, version); err != nil {
		return err
	}
	return nil
}

// migrateSchema runs migrations from currentVersion to latest
func (s *Storage) migrateSchema(currentVersion int) error {
	if currentVersion >= currentSchemaVersion {
		return nil // Already up to date
	}

	log.Printf("storage: migrating schema from version %d to %d", currentVersion, currentSchemaVersion)

	if currentVersion < 1 {
		if err := s.migrateV1(); err != nil {
			return fmt.Errorf("migration v1 failed: %w", err)
		}
	}

	if err := s.setSchemaVersion(currentSchemaVersion); err != nil {
		return fmt.Errorf("failed to update schema version: %w", err)
	}

	return nil
}

// migrateV1 creates the base runs table
func (s *Storage) migrateV1() error {
	schema := `
	CREATE TABLE IF NOT EXISTS runs (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		timestamp TEXT NOT NULL,
		input_path TEXT NOT NULL,
		report_path TEXT NOT NULL DEFAULT '',
		total_issues INTEGER NOT NULL DEFAULT 0,
		total_bytes INTEGER NOT NULL DEFAULT 0,
		total_blocks INTEGER NOT NULL DEFAULT 0,
		issues_by_type TEXT,
		bytes_by_type TEXT,
		critical_count INTEGER NOT NULL DEFAULT 0,
		parse_warnings INTEGER NOT NULL DEFAULT 0,
		duration_seconds REAL NOT NULL DEFAULT 0.0
	);

	CREATE INDEX IF NOT EXISTS idx_runs_timestamp ON runs(timestamp);
	CREATE INDEX IF NOT EXISTS idx_runs_input_path ON runs(input_path);
	`

	_, err := s.db.Exec(schema)
	return err
}

// SaveRun saves a new run summary to the database
func (s *Storage) SaveRun(run *RunSummary) error {
	issuesJSON, err := json.Marshal(run.IssuesByType)
	if err != nil {
		return fmt.Errorf("failed to marshal issue counts: %w", err)
	}
	bytesJSON, err := json.Marshal(run.BytesByType)
	if err != nil {
		return fmt.Errorf("failed to marshal byte counts: %w", err)
	}

	query := `
		INSERT INTO runs (
			timestamp, input_path, report_path,
			total_issues, total_bytes, total_blocks,
			issues_by_type, bytes_by_type,
			critical_count, parse_warnings, duration_seconds
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	result, err := s.db.Exec(
		query,
		run.Timestamp.Format(time.RFC3339),
		run.InputPath,
		run.ReportPath,
		run.TotalIssues,
		run.TotalBytes,
		run.TotalBlocks,
		string(issuesJSON),
		string(bytesJSON),
		run.CriticalCount,
		run.ParseWarnings,
		run.DurationSeconds,
	)
	if err != nil {
		return fmt.Errorf("failed to insert run: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert id: %w", err)
	}

	run.ID = id
	return nil
}

// GetRecentRuns retrieves runs from the last N days, newest first.
func (s *Storage) GetRecentRuns(days int) ([]*RunSummary, error) {
	cutoffDate := time.Now().AddDate(0, 0, -days).Format(time.RFC3339)

	query := `
		SELECT id, timestamp, input_path, report_path,
		       total_issues, total_bytes, total_blocks,
		       issues_by_type, bytes_by_type,
		       critical_count, parse_warnings, duration_seconds
		FROM runs
		WHERE timestamp >= ?
		ORDER BY timestamp DESC
	`

	rows, err := s.db.Query(query, cutoffDate)
	if err != nil {
		return nil, fmt.Errorf("failed to query runs: %w", err)
	}
	defer func(rows *sql.Rows) {
		if err := rows.Close(); err != nil {
			log.Printf("storage: failed to close database rows: %v", err)
		}
	}(rows)

	var runs []*RunSummary
	for rows.Next() {
		run, err := s.scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}

	return runs, rows.Err()
}

// TrendContext formats recent runs into a short text block for logging the
// leak trend across runs.
func (s *Storage) TrendContext(days int) (string, error) {
	runs, err := s.GetRecentRuns(days)
	if err != nil {
		return "", err
	}

	if len(runs) == 0 {
		return "", nil
	}

	var context string
	context += fmt.Sprintf("Previous %d analysis runs:\n", len(runs))
	for i, run := range runs {
		context += fmt.Sprintf("%d. %s - %d issues, %d bytes, %d critical\n",
			i+1,
			run.Timestamp.Format("2006-01-02 15:04"),
			run.TotalIssues,
			run.TotalBytes,
			run.CriticalCount,
		)
	}

	return context, nil
}

// CleanupOldRuns deletes runs older than N days
func (s *Storage) CleanupOldRuns(days int) (int64, error) {
	cutoffDate := time.Now().AddDate(0, 0, -days).Format(time.RFC3339)

	result, err := s.db.Exec(`DELETE FROM runs WHERE timestamp < ?`, cutoffDate)
	if err != nil {
		return 0, fmt.Errorf("failed to cleanup old runs: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}

	return affected, nil
}

// GetStatistics returns aggregate statistics across all stored runs.
func (s *Storage) GetStatistics() (map[string]interface{}, error) {
	stats := make(map[string]interface{})

	var total int
	if err := s.db.QueryRow(`SELECT COUNT(*) FROM runs`).Scan(&total); err != nil {
		return nil, err
	}
	stats["total_runs"] = total

	var totalIssues, totalCritical int64
	err := s.db.QueryRow(`SELECT COALESCE(SUM(total_issues), 0), COALESCE(SUM(critical_count), 0) FROM runs`).
		Scan(&totalIssues, &totalCritical)
	if err != nil {
		return nil, err
	}
	stats["total_issues"] = totalIssues
	stats["total_critical"] = totalCritical

	return stats, nil
}

// scanRun scans a database row into a RunSummary struct
func (s *Storage) scanRun(rows *sql.Rows) (*RunSummary, error) {
	var (
		id                      int64
		timestamp               string
		inputPath, reportPath   string
		totalIssues             int
		totalBytes, totalBlocks int64
		issuesJSON, bytesJSON   string
		criticalCount, warnings int
		durationSeconds         float64
	)

	err := rows.Scan(
		&id, &timestamp, &inputPath, &reportPath,
		&totalIssues, &totalBytes, &totalBlocks,
		&issuesJSON, &bytesJSON,
		&criticalCount, &warnings, &durationSeconds,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to scan row: %w", err)
	}

	ts, err := time.Parse(time.RFC3339, timestamp)
	if err != nil {
		return nil, fmt.Errorf("failed to parse timestamp: %w", err)
	}

	var issuesByType map[string]int
	var bytesByType map[string]int64
	if err := json.Unmarshal([]byte(issuesJSON), &issuesByType); err != nil {
		return nil, fmt.Errorf("failed to unmarshal issue counts: %w", err)
	}
	if err := json.Unmarshal([]byte(bytesJSON), &bytesByType); err != nil {
		return nil, fmt.Errorf("failed to unmarshal byte counts: %w", err)
	}

	return &RunSummary{
		ID:              id,
		Timestamp:       ts,
		InputPath:       inputPath,
		ReportPath:      reportPath,
		TotalIssues:     totalIssues,
		TotalBytes:      totalBytes,
		TotalBlocks:     totalBlocks,
		IssuesByType:    issuesByType,
		BytesByType:     bytesByType,
		CriticalCount:   criticalCount,
		ParseWarnings:   warnings,
		DurationSeconds: durationSeconds,
	}, nil
}

// Close closes the database connection
func (s *Storage) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}
