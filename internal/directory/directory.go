// Package directory holds the in-memory mapping from document id to
// title and storage handle. It is the source of truth for which
// documents exist and where their content lives.
package directory

import (
	"errors"
	"fmt"
	"log"
	"math/rand"
	"strconv"
	"sync"
	"time"

	"github.com/an-dube/draftpad/internal/store"
)

var (
	ErrNotFound = errors.New("document not found")

	// ErrNotOwner is returned when a delete is requested by a user who
	// does not own the document.
	ErrNotOwner = errors.New("not the document owner")
)

// Info is a directory entry: everything known about a document apart
// from its content.
type Info struct {
	Title  string
	Owner  string
	Handle string
}

// Summary is one row of a directory listing.
type Summary struct {
	ID    string `json:"id"`
	Title string `json:"title"`
}

// Document is a fully loaded document, content included.
type Document struct {
	ID      string `json:"id"`
	Title   string `json:"title"`
	Content string `json:"content"`
}

type Directory struct {
	store store.Store

	mu   sync.RWMutex
	docs map[string]Info
}

func New(s store.Store) *Directory {
	return &Directory{
		store: s,
		docs:  make(map[string]Info),
	}
}

// Load enumerates durable storage once and builds the mapping. The
// store skips individually broken entries; Load fails only when the
// storage location itself cannot be enumerated.
func (d *Directory) Load() error {
	entries, err := d.store.Scan()
	if err != nil {
		return err
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	for _, e := range entries {
		d.docs[e.ID] = Info{Title: e.Title, Owner: e.Owner, Handle: e.Handle}
	}
	log.Printf("Loaded %d documents", len(d.docs))
	return nil
}

// Create durably writes a new document and registers it. On any write
// failure the directory is left untouched; a partial write in storage
// is tolerated as an invisible orphan.
func (d *Directory) Create(title, content, owner string) (string, error) {
	id := newID()

	handle, err := d.store.Create(id, title, owner, content)
	if err != nil {
		return "", fmt.Errorf("failed to create document: %w", err)
	}

	d.mu.Lock()
	d.docs[id] = Info{Title: title, Owner: owner, Handle: handle}
	d.mu.Unlock()
	return id, nil
}

// Get is a pure lookup, no I/O.
func (d *Directory) Get(id string) (Info, error) {
	d.mu.RLock()
	info, ok := d.docs[id]
	d.mu.RUnlock()
	if !ok {
		return Info{}, ErrNotFound
	}
	return info, nil
}

// Read returns a document's metadata together with its stored content.
func (d *Directory) Read(id string) (*Document, error) {
	info, err := d.Get(id)
	if err != nil {
		return nil, err
	}
	content, err := d.store.Read(info.Handle)
	if err != nil {
		return nil, fmt.Errorf("failed to read document %s: %w", id, err)
	}
	return &Document{ID: id, Title: info.Title, Content: content}, nil
}

// List returns a snapshot of the current mapping. Order is not
// meaningful.
func (d *Directory) List() []Summary {
	d.mu.RLock()
	defer d.mu.RUnlock()

	out := make([]Summary, 0, len(d.docs))
	for id, info := range d.docs {
		out = append(out, Summary{ID: id, Title: info.Title})
	}
	return out
}

// WriteDocument persists content for a document id, resolving its
// storage handle. This is the write path used by the persistence
// controller and by direct REST updates.
func (d *Directory) WriteDocument(id, content string) error {
	info, err := d.Get(id)
	if err != nil {
		return err
	}
	return d.store.Write(info.Handle, content)
}

// Remove deletes a document on behalf of a requester. Only the owner
// may delete.
func (d *Directory) Remove(id, requester string) error {
	info, err := d.Get(id)
	if err != nil {
		return err
	}
	if info.Owner != "" && info.Owner != requester {
		return ErrNotOwner
	}

	if err := d.store.Delete(id); err != nil && !errors.Is(err, store.ErrNotFound) {
		return err
	}

	d.mu.Lock()
	delete(d.docs, id)
	d.mu.Unlock()
	return nil
}

// Count returns the number of registered documents.
func (d *Directory) Count() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.docs)
}

// newID follows the storage id scheme: base36 timestamp plus a random
// base36 suffix.
func newID() string {
	return strconv.FormatInt(time.Now().UnixMilli(), 36) +
		strconv.FormatInt(rand.Int63(), 36)
}
