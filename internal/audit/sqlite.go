package audit

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"

	"github.com/hession/calcmate/internal/dispatch"
)

// SQLiteStore SQLite audit storage implementation
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore creates a new SQLite storage
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	// Ensure directory exists
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	// Open database
	db, err := sql.Open("sqlite3", dbPath+"?_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// Concurrent HTTP handlers share one writer connection
	db.SetMaxOpenConns(1)

	store := &SQLiteStore{db: db}

	// Initialize tables
	if err := store.initTables(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize database tables: %w", err)
	}

	return store, nil
}

// initTables initializes database tables
func (s *SQLiteStore) initTables() error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS audit_logs (
			id TEXT PRIMARY KEY,
			request_id TEXT,
			transport TEXT NOT NULL,
			endpoint TEXT,
			operation TEXT NOT NULL,
			status TEXT NOT NULL,
			kind TEXT,
			message TEXT,
			client_ip TEXT,
			user_agent TEXT,
			arguments TEXT NOT NULL DEFAULT '{}',
			http_status INTEGER,
			duration_ms REAL NOT NULL DEFAULT 0,
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)`,
		// Create indexes
		`CREATE INDEX IF NOT EXISTS idx_audit_logs_created_at ON audit_logs(created_at)`,
		`CREATE INDEX IF NOT EXISTS idx_audit_logs_operation ON audit_logs(operation)`,
	}

	for _, query := range queries {
		if _, err := s.db.Exec(query); err != nil {
			return fmt.Errorf("failed to execute SQL: %s, error: %w", query, err)
		}
	}

	return nil
}

// Record saves an audit entry
func (s *SQLiteStore) Record(entry *Entry) error {
	if entry.ID == "" {
		entry.ID = uuid.New().String()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now()
	}
	if entry.Arguments == "" {
		entry.Arguments = "{}"
	}

	_, err := s.db.Exec(
		`INSERT INTO audit_logs (id, request_id, transport, endpoint, operation, status, kind, message,
			client_ip, user_agent, arguments, http_status, duration_ms, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		entry.ID, entry.RequestID, entry.Transport, entry.Endpoint, entry.Operation, string(entry.Status),
		entry.Kind, entry.Message, entry.ClientIP, entry.UserAgent, entry.Arguments, entry.HTTPStatus,
		entry.DurationMS, entry.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to record audit entry: %w", err)
	}
	return nil
}

// Recent gets the newest audit entries
func (s *SQLiteStore) Recent(limit int) ([]*Entry, error) {
	rows, err := s.db.Query(
		`SELECT id, request_id, transport, endpoint, operation, status, kind, message,
			client_ip, user_agent, arguments, http_status, duration_ms, created_at
		 FROM audit_logs
		 ORDER BY created_at DESC, rowid DESC
		 LIMIT ?`,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to get audit entries: %w", err)
	}
	defer rows.Close()

	var entries []*Entry
	for rows.Next() {
		var entry Entry
		var requestID, endpoint, kind, message, clientIP, userAgent sql.NullString
		var httpStatus sql.NullInt64
		var status string
		if err := rows.Scan(&entry.ID, &requestID, &entry.Transport, &endpoint, &entry.Operation, &status,
			&kind, &message, &clientIP, &userAgent, &entry.Arguments, &httpStatus, &entry.DurationMS,
			&entry.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan audit entry: %w", err)
		}
		entry.Status = dispatch.Status(status)
		entry.RequestID = requestID.String
		entry.Endpoint = endpoint.String
		entry.Kind = kind.String
		entry.Message = message.String
		entry.ClientIP = clientIP.String
		entry.UserAgent = userAgent.String
		entry.HTTPStatus = int(httpStatus.Int64)
		entries = append(entries, &entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read audit entries: %w", err)
	}

	return entries, nil
}

// Summary aggregates audit entries per operation, ordered by name
func (s *SQLiteStore) Summary() ([]*OperationSummary, error) {
	rows, err := s.db.Query(
		`SELECT operation,
			COUNT(*),
			SUM(CASE WHEN status = 'ok' THEN 1 ELSE 0 END),
			SUM(CASE WHEN status = 'ok' THEN 0 ELSE 1 END),
			AVG(duration_ms)
		 FROM audit_logs
		 GROUP BY operation
		 ORDER BY operation`,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to summarize audit entries: %w", err)
	}
	defer rows.Close()

	var summaries []*OperationSummary
	for rows.Next() {
		var sum OperationSummary
		if err := rows.Scan(&sum.Operation, &sum.Total, &sum.Succeeded, &sum.Failed, &sum.AvgDurationMS); err != nil {
			return nil, fmt.Errorf("failed to scan audit summary: %w", err)
		}
		summaries = append(summaries, &sum)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read audit summary: %w", err)
	}

	return summaries, nil
}

// Close closes the database connection
func (s *SQLiteStore) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}
