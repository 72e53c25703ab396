package memory

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3" // SQLite driver for database/sql
)

// SQLiteStore persists memory entries so an index can be rebuilt at
// startup. Entries are write-once, mirroring the index contract.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens (or creates) the entry database at dbPath.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	s := &SQLiteStore{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return s, nil
}

func (s *SQLiteStore) migrate() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS memory_entries (
			collection TEXT NOT NULL,
			id TEXT NOT NULL,
			text TEXT NOT NULL,
			embedding TEXT NOT NULL,
			metadata TEXT,
			created_at TEXT NOT NULL,
			PRIMARY KEY (collection, id)
		);

		CREATE INDEX IF NOT EXISTS idx_memory_collection
			ON memory_entries(collection);
	`)
	return err
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// Save appends one entry. Implements [Persister].
func (s *SQLiteStore) Save(e Entry) error {
	embJSON, err := json.Marshal(e.Embedding)
	if err != nil {
		return fmt.Errorf("marshal embedding: %w", err)
	}

	var metaJSON []byte
	if len(e.Metadata) > 0 {
		metaJSON, err = json.Marshal(e.Metadata)
		if err != nil {
			return fmt.Errorf("marshal metadata: %w", err)
		}
	}

	_, err = s.db.Exec(`
		INSERT INTO memory_entries (collection, id, text, embedding, metadata, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, e.Collection, e.ID, e.Text, string(embJSON), nullString(string(metaJSON)),
		e.CreatedAt.Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("insert entry %s/%s: %w", e.Collection, e.ID, err)
	}
	return nil
}

// Load reads every persisted entry, ordered by ingestion time.
func (s *SQLiteStore) Load() ([]Entry, error) {
	rows, err := s.db.Query(`
		SELECT collection, id, text, embedding, metadata, created_at
		FROM memory_entries
		ORDER BY created_at ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("query entries: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var e Entry
		var embJSON, createdStr string
		var metaJSON sql.NullString

		if err := rows.Scan(&e.Collection, &e.ID, &e.Text, &embJSON, &metaJSON, &createdStr); err != nil {
			return nil, fmt.Errorf("scan entry: %w", err)
		}

		if err := json.Unmarshal([]byte(embJSON), &e.Embedding); err != nil {
			return nil, fmt.Errorf("unmarshal embedding for %s/%s: %w", e.Collection, e.ID, err)
		}
		if metaJSON.Valid && metaJSON.String != "" {
			if err := json.Unmarshal([]byte(metaJSON.String), &e.Metadata); err != nil {
				return nil, fmt.Errorf("unmarshal metadata for %s/%s: %w", e.Collection, e.ID, err)
			}
		}
		e.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdStr)

		entries = append(entries, e)
	}
	return entries, rows.Err()
}

func nullString(s string) any {
	if s == "" {
		return nil
	}
	return s
}
