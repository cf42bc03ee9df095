package persist

import (
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"
)

// Records every durable write for assertions.
type mockWriter struct {
	mu     sync.Mutex
	writes []write
	fail   bool
}

type write struct {
	id      string
	content string
}

func (m *mockWriter) WriteDocument(id, content string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.fail {
		return errors.New("write failed")
	}
	m.writes = append(m.writes, write{id: id, content: content})
	return nil
}

func (m *mockWriter) Writes() []write {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]write, len(m.writes))
	copy(out, m.writes)
	return out
}

func TestBurstCoalescesToSingleWrite(t *testing.T) {
	writer := &mockWriter{}
	c := New(writer, 50*time.Millisecond)

	c.Schedule("doc-1", "h")
	c.Schedule("doc-1", "he")
	c.Schedule("doc-1", "hello")

	time.Sleep(120 * time.Millisecond)

	writes := writer.Writes()
	if len(writes) != 1 {
		t.Fatalf("Expected exactly 1 write, got %d", len(writes))
	}
	if writes[0].content != "hello" {
		t.Errorf("Expected last content 'hello', got '%s'", writes[0].content)
	}
}

func TestEachScheduleResetsDeadline(t *testing.T) {
	writer := &mockWriter{}
	c := New(writer, 60*time.Millisecond)

	// Keep updating faster than the delay; nothing should be written
	// while the burst lasts.
	for i := 0; i < 5; i++ {
		c.Schedule("doc-1", fmt.Sprintf("v%d", i))
		time.Sleep(20 * time.Millisecond)
	}

	if n := len(writer.Writes()); n != 0 {
		t.Fatalf("Expected no writes during sustained updates, got %d", n)
	}

	time.Sleep(100 * time.Millisecond)

	writes := writer.Writes()
	if len(writes) != 1 {
		t.Fatalf("Expected 1 write after quiet period, got %d", len(writes))
	}
	if writes[0].content != "v4" {
		t.Errorf("Expected content 'v4', got '%s'", writes[0].content)
	}
}

func TestFlushWithNothingPending(t *testing.T) {
	writer := &mockWriter{}
	c := New(writer, 50*time.Millisecond)

	if err := c.Flush("doc-1"); err != nil {
		t.Fatalf("Flush with nothing pending should be a no-op, got %v", err)
	}
	if n := len(writer.Writes()); n != 0 {
		t.Errorf("Expected no writes, got %d", n)
	}
}

func TestFlushWritesPendingContent(t *testing.T) {
	writer := &mockWriter{}
	c := New(writer, 200*time.Millisecond)

	c.Schedule("doc-1", "abc")
	if err := c.Flush("doc-1"); err != nil {
		t.Fatalf("Flush failed: %v", err)
	}

	writes := writer.Writes()
	if len(writes) != 1 {
		t.Fatalf("Expected 1 write, got %d", len(writes))
	}
	if writes[0].content != "abc" {
		t.Errorf("Expected content 'abc', got '%s'", writes[0].content)
	}

	// The consumed slot's timer must not fire a second write later.
	time.Sleep(300 * time.Millisecond)
	if n := len(writer.Writes()); n != 1 {
		t.Errorf("Expected no duplicate write after flush, got %d total", n)
	}
}

func TestFlushAfterTimerFired(t *testing.T) {
	writer := &mockWriter{}
	c := New(writer, 20*time.Millisecond)

	c.Schedule("doc-1", "abc")
	time.Sleep(80 * time.Millisecond)

	if err := c.Flush("doc-1"); err != nil {
		t.Fatalf("Flush after fire should be a no-op, got %v", err)
	}
	if n := len(writer.Writes()); n != 1 {
		t.Errorf("Expected exactly 1 write, got %d", n)
	}
}

func TestDocumentsFlushIndependently(t *testing.T) {
	writer := &mockWriter{}
	c := New(writer, 40*time.Millisecond)

	c.Schedule("doc-a", "aaa")
	c.Schedule("doc-b", "bbb")

	time.Sleep(100 * time.Millisecond)

	writes := writer.Writes()
	if len(writes) != 2 {
		t.Fatalf("Expected 2 writes, got %d", len(writes))
	}
	seen := map[string]string{}
	for _, w := range writes {
		seen[w.id] = w.content
	}
	if seen["doc-a"] != "aaa" || seen["doc-b"] != "bbb" {
		t.Errorf("Unexpected write contents: %v", seen)
	}
}

func TestFailedWriteDropsSlot(t *testing.T) {
	writer := &mockWriter{fail: true}
	c := New(writer, 20*time.Millisecond)

	c.Schedule("doc-1", "abc")
	time.Sleep(80 * time.Millisecond)

	if n := c.PendingCount(); n != 0 {
		t.Errorf("Expected slot removed after failed write, %d pending", n)
	}
}

func TestConcurrentSchedules(t *testing.T) {
	writer := &mockWriter{}
	c := New(writer, 30*time.Millisecond)

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			c.Schedule("doc-1", fmt.Sprintf("v%d", i))
		}(i)
	}
	wg.Wait()

	time.Sleep(100 * time.Millisecond)

	writes := writer.Writes()
	if len(writes) != 1 {
		t.Fatalf("Expected 1 write for racing schedules, got %d", len(writes))
	}
	if writes[0].id != "doc-1" {
		t.Errorf("Unexpected document id '%s'", writes[0].id)
	}
}

func TestCloseFlushesAllPending(t *testing.T) {
	writer := &mockWriter{}
	c := New(writer, time.Minute)

	c.Schedule("doc-a", "aaa")
	c.Schedule("doc-b", "bbb")
	c.Close()

	if n := len(writer.Writes()); n != 2 {
		t.Errorf("Expected 2 writes on close, got %d", n)
	}
	if n := c.PendingCount(); n != 0 {
		t.Errorf("Expected no pending slots after close, got %d", n)
	}
}
