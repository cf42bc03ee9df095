package store

import (
	"database/sql"
	"fmt"
	"log"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"
)

// SQLiteStore keeps documents in a single sqlite database. The handle
// is the document id.
type SQLiteStore struct {
	db *sql.DB
}

func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, err
	}

	// WAL keeps readers from blocking the flush path
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		return nil, err
	}

	if err := createTables(db); err != nil {
		return nil, err
	}

	log.Printf("Database initialized at %s", dbPath)
	return &SQLiteStore{db: db}, nil
}

func createTables(db *sql.DB) error {
	schema := `
	CREATE TABLE IF NOT EXISTS documents (
		id TEXT PRIMARY KEY,
		title TEXT NOT NULL DEFAULT '',
		owner TEXT NOT NULL DEFAULT '',
		content TEXT NOT NULL DEFAULT '',
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);

	CREATE INDEX IF NOT EXISTS idx_documents_updated_at ON documents(updated_at);
	`

	_, err := db.Exec(schema)
	return err
}

func (s *SQLiteStore) Scan() ([]Entry, error) {
	rows, err := s.db.Query("SELECT id, title, owner FROM documents ORDER BY created_at ASC")
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var e Entry
		if err := rows.Scan(&e.ID, &e.Title, &e.Owner); err != nil {
			log.Printf("Skipping unreadable document row: %v", err)
			continue
		}
		e.Handle = e.ID
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return entries, nil
}

func (s *SQLiteStore) Read(handle string) (string, error) {
	var content string
	err := s.db.QueryRow(
		"SELECT content FROM documents WHERE id = ?", handle,
	).Scan(&content)
	if err == sql.ErrNoRows {
		return "", ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("failed to read document %s: %w", handle, err)
	}
	return content, nil
}

func (s *SQLiteStore) Write(handle, content string) error {
	res, err := s.db.Exec(
		"UPDATE documents SET content = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ?",
		content, handle,
	)
	if err != nil {
		return fmt.Errorf("failed to write document %s: %w", handle, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *SQLiteStore) Create(id, title, owner, content string) (string, error) {
	_, err := s.db.Exec(
		"INSERT INTO documents (id, title, owner, content) VALUES (?, ?, ?, ?)",
		id, title, owner, content,
	)
	if err != nil {
		return "", fmt.Errorf("failed to create document %s: %w", id, err)
	}
	return id, nil
}

func (s *SQLiteStore) Delete(id string) error {
	res, err := s.db.Exec("DELETE FROM documents WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("failed to delete document %s: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

var _ Store = (*SQLiteStore)(nil)
