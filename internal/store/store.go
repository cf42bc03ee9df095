package store

import "errors"

var (
	// ErrNotFound is returned when a handle or id has no stored document.
	ErrNotFound = errors.New("document not found in storage")

	// ErrUnavailable is returned by Scan when the storage location itself
	// cannot be enumerated. Callers treat this as fatal at startup.
	ErrUnavailable = errors.New("storage unavailable")
)

// Entry describes one stored document discovered during a scan.
type Entry struct {
	ID     string
	Title  string
	Owner  string
	Handle string
}

// Store is the durable storage contract consumed by the document
// directory and the persistence controller. A handle is an opaque
// location string; for the file backend it is a path, for the sqlite
// backend it is the row id.
type Store interface {
	// Scan enumerates all stored documents once, for the cold load.
	// Entries with unreadable or undecodable metadata are skipped with
	// a warning. It fails with ErrUnavailable only if the storage
	// location itself cannot be listed.
	Scan() ([]Entry, error)

	// Read returns the current content behind a handle.
	Read(handle string) (string, error)

	// Write replaces the content behind a handle.
	Write(handle, content string) error

	// Create durably writes a new document's content and metadata and
	// returns its handle. A partial failure may leave an orphaned
	// write behind; callers must not register the document on error.
	Create(id, title, owner, content string) (string, error)

	// Delete removes a document's content and metadata.
	Delete(id string) error

	Close() error
}
