package ws

import (
	"os"
	"sync/atomic"
	"testing"
	"time"

	"github.com/an-dube/draftpad/internal/directory"
	"github.com/an-dube/draftpad/internal/persist"
	"github.com/an-dube/draftpad/internal/store"
)

// Counts durable writes flowing through the directory.
type countingWriter struct {
	dir    *directory.Directory
	writes atomic.Int64
}

func (c *countingWriter) WriteDocument(id, content string) error {
	c.writes.Add(1)
	return c.dir.WriteDocument(id, content)
}

func setupStack(t *testing.T, delay time.Duration) (*Hub, *directory.Directory, *countingWriter, func()) {
	t.Helper()

	tmpDir, err := os.MkdirTemp("", "draftpad-e2e-test-*")
	if err != nil {
		t.Fatalf("Failed to create temp dir: %v", err)
	}

	backing, err := store.NewFileStore(tmpDir)
	if err != nil {
		os.RemoveAll(tmpDir)
		t.Fatalf("Failed to create store: %v", err)
	}

	dir := directory.New(backing)
	writer := &countingWriter{dir: dir}
	controller := persist.New(writer, delay)

	hub := NewHub(controller)
	go hub.Run()

	return hub, dir, writer, func() { os.RemoveAll(tmpDir) }
}

func TestEditBurstPersistedOnce(t *testing.T) {
	hub, dir, writer, cleanup := setupStack(t, 100*time.Millisecond)
	defer cleanup()

	id, err := dir.Create("T", "", "alice-id")
	if err != nil {
		t.Fatalf("Failed to create document: %v", err)
	}

	alice := newTestClient(hub, "alice")
	bob := newTestClient(hub, "bob")
	for _, c := range []*Client{alice, bob} {
		connect(hub, c)
		joinDoc(hub, c, id)
		receiveEvent(t, c)
	}

	// Three rapid edits within the debounce window
	for _, content := range []string{"h", "he", "hello"} {
		hub.broadcast <- &Update{Content: content, Sender: alice}
		receiveEvent(t, bob)
	}

	time.Sleep(250 * time.Millisecond)

	doc, err := dir.Read(id)
	if err != nil {
		t.Fatalf("Failed to read document: %v", err)
	}
	if doc.Content != "hello" {
		t.Errorf("Expected stored content 'hello', got '%s'", doc.Content)
	}
	if n := writer.writes.Load(); n != 1 {
		t.Errorf("Expected exactly 1 durable write, got %d", n)
	}
}

func TestDisconnectPersistsBeforeTimer(t *testing.T) {
	hub, dir, writer, cleanup := setupStack(t, 500*time.Millisecond)
	defer cleanup()

	id, err := dir.Create("T", "", "alice-id")
	if err != nil {
		t.Fatalf("Failed to create document: %v", err)
	}

	alice := newTestClient(hub, "alice")
	connect(hub, alice)
	joinDoc(hub, alice, id)
	receiveEvent(t, alice)

	hub.broadcast <- &Update{Content: "abc", Sender: alice}
	time.Sleep(10 * time.Millisecond)

	hub.disconnect(alice)
	time.Sleep(10 * time.Millisecond)

	// Storage holds the edit right after disconnect processing, well
	// before the debounce delay would have elapsed.
	doc, err := dir.Read(id)
	if err != nil {
		t.Fatalf("Failed to read document: %v", err)
	}
	if doc.Content != "abc" {
		t.Errorf("Expected stored content 'abc', got '%s'", doc.Content)
	}
	if n := writer.writes.Load(); n != 1 {
		t.Errorf("Expected exactly 1 durable write, got %d", n)
	}

	// The canceled timer must not produce a duplicate write later.
	time.Sleep(600 * time.Millisecond)
	if n := writer.writes.Load(); n != 1 {
		t.Errorf("Expected no duplicate write after the delay, got %d", n)
	}
}
