package tracing

import (
	"database/sql"
	"encoding/json"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// SQLiteExporter persists spans to a local SQLite database, supplementing
// the spec's exporter list with durable local storage for long-running
// processes that want trace history without standing up a collector.
type SQLiteExporter struct {
	mu sync.Mutex
	db *sql.DB
}

// NewSQLiteExporter opens (creating if needed) dsn and ensures the spans
// table exists.
func NewSQLiteExporter(dsn string) (*SQLiteExporter, error) {
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, err
	}
	if _, err := db.Exec(`CREATE TABLE IF NOT EXISTS spans (
		id TEXT PRIMARY KEY,
		trace_id TEXT,
		parent_id TEXT,
		name TEXT,
		start_time TEXT,
		end_time TEXT,
		status TEXT,
		attributes TEXT
	)`); err != nil {
		db.Close()
		return nil, err
	}
	return &SQLiteExporter{db: db}, nil
}

func (e *SQLiteExporter) Export(span Span) {
	attrs, err := json.Marshal(span.Attributes)
	if err != nil {
		attrs = []byte("{}")
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	_, _ = e.db.Exec(
		`INSERT OR REPLACE INTO spans (id, trace_id, parent_id, name, start_time, end_time, status, attributes) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		span.ID, span.TraceID, span.ParentID, span.Name, span.StartTime.Format(time.RFC3339Nano),
		formatEndTime(span.EndTime), span.Status, string(attrs),
	)
}

func formatEndTime(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return t.Format(time.RFC3339Nano)
}

// Close releases the underlying database handle.
func (e *SQLiteExporter) Close() error {
	return e.db.Close()
}
