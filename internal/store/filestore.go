package store

import (
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"
)

const metaSuffix = "_meta.json"

type fileMeta struct {
	Title     string `json:"title"`
	Owner     string `json:"owner,omitempty"`
	CreatedAt string `json:"created_at,omitempty"`
}

// FileStore keeps each document as a pair of flat files: <id>.txt for
// the content and <id>_meta.json for the metadata. The handle is the
// content file path.
type FileStore struct {
	dir string
}

func NewFileStore(dir string) (*FileStore, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create storage dir: %w", err)
	}
	return &FileStore{dir: dir}, nil
}

func (s *FileStore) Scan() ([]Entry, error) {
	files, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	var entries []Entry
	for _, f := range files {
		name := f.Name()
		if !strings.HasSuffix(name, metaSuffix) {
			continue
		}

		raw, err := os.ReadFile(filepath.Join(s.dir, name))
		if err != nil {
			log.Printf("Skipping unreadable metadata %s: %v", name, err)
			continue
		}

		var meta fileMeta
		if err := json.Unmarshal(raw, &meta); err != nil {
			log.Printf("Skipping undecodable metadata %s: %v", name, err)
			continue
		}

		id := strings.TrimSuffix(name, metaSuffix)
		entries = append(entries, Entry{
			ID:     id,
			Title:  meta.Title,
			Owner:  meta.Owner,
			Handle: s.contentPath(id),
		})
	}
	return entries, nil
}

func (s *FileStore) Read(handle string) (string, error) {
	raw, err := os.ReadFile(handle)
	if err != nil {
		if os.IsNotExist(err) {
			return "", ErrNotFound
		}
		return "", fmt.Errorf("failed to read %s: %w", handle, err)
	}
	return string(raw), nil
}

func (s *FileStore) Write(handle, content string) error {
	if err := os.WriteFile(handle, []byte(content), 0644); err != nil {
		return fmt.Errorf("failed to write %s: %w", handle, err)
	}
	return nil
}

func (s *FileStore) Create(id, title, owner, content string) (string, error) {
	handle := s.contentPath(id)
	if err := os.WriteFile(handle, []byte(content), 0644); err != nil {
		return "", fmt.Errorf("failed to write content for %s: %w", id, err)
	}

	meta, err := json.Marshal(fileMeta{
		Title:     title,
		Owner:     owner,
		CreatedAt: time.Now().UTC().Format(time.RFC3339),
	})
	if err != nil {
		return "", err
	}
	// Content written but metadata failed: the orphaned content file is
	// tolerated, the caller just never registers the document.
	if err := os.WriteFile(s.metaPath(id), meta, 0644); err != nil {
		return "", fmt.Errorf("failed to write metadata for %s: %w", id, err)
	}
	return handle, nil
}

func (s *FileStore) Delete(id string) error {
	if err := os.Remove(s.contentPath(id)); err != nil {
		if os.IsNotExist(err) {
			return ErrNotFound
		}
		return fmt.Errorf("failed to delete content for %s: %w", id, err)
	}
	if err := os.Remove(s.metaPath(id)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to delete metadata for %s: %w", id, err)
	}
	return nil
}

func (s *FileStore) Close() error { return nil }

func (s *FileStore) contentPath(id string) string {
	return filepath.Join(s.dir, id+".txt")
}

func (s *FileStore) metaPath(id string) string {
	return filepath.Join(s.dir, id+metaSuffix)
}

var _ Store = (*FileStore)(nil)
