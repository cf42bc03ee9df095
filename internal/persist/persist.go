// Package persist coalesces rapid document updates into infrequent
// durable writes. Each document id owns at most one pending-write
// slot; a newer update replaces the slot's content and restarts its
// timer, so under a burst of edits only the last content is written.
package persist

import (
	"log"
	"sync"
	"time"
)

// DefaultDelay is the quiet period before a pending edit is flushed.
const DefaultDelay = 2000 * time.Millisecond

// DocumentWriter persists the latest content for a document id.
type DocumentWriter interface {
	WriteDocument(id, content string) error
}

type slot struct {
	timer   *time.Timer
	content string
}

type Controller struct {
	writer DocumentWriter
	delay  time.Duration

	mu      sync.Mutex
	pending map[string]*slot
}

func New(writer DocumentWriter, delay time.Duration) *Controller {
	if delay <= 0 {
		delay = DefaultDelay
	}
	return &Controller{
		writer:  writer,
		delay:   delay,
		pending: make(map[string]*slot),
	}
}

// Schedule records content as the pending write for a document and
// restarts the flush timer. The latest call always wins: any earlier
// pending content for the same id is discarded and its timer canceled.
// There is no cap on how often the deadline can be pushed back, so
// sustained edits faster than the delay defer the flush indefinitely.
func (c *Controller) Schedule(id, content string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if old, ok := c.pending[id]; ok {
		old.timer.Stop()
	}

	s := &slot{content: content}
	s.timer = time.AfterFunc(c.delay, func() { c.fire(id, s) })
	c.pending[id] = s
}

// fire is the timer callback. Removing the slot is the single commit
// point: whichever of timer fire and forced flush removes the slot
// performs the write, the loser finds it gone and does nothing.
func (c *Controller) fire(id string, s *slot) {
	c.mu.Lock()
	cur, ok := c.pending[id]
	if !ok || cur != s {
		// A newer schedule or a forced flush won the race.
		c.mu.Unlock()
		return
	}
	delete(c.pending, id)
	c.mu.Unlock()

	if err := c.writer.WriteDocument(id, s.content); err != nil {
		// Logged and dropped; no automatic retry.
		log.Printf("Failed to save document %s: %v", id, err)
		return
	}
	log.Printf("Saved document %s to storage", id)
}

// Flush writes a document's pending content immediately. With nothing
// pending it is a no-op and returns nil. It runs on the disconnect
// path, so it waits for the write to finish and reports its error.
func (c *Controller) Flush(id string) error {
	c.mu.Lock()
	s, ok := c.pending[id]
	if !ok {
		c.mu.Unlock()
		return nil
	}
	s.timer.Stop()
	delete(c.pending, id)
	c.mu.Unlock()

	return c.writer.WriteDocument(id, s.content)
}

// Close flushes every pending slot. Used at shutdown.
func (c *Controller) Close() {
	c.mu.Lock()
	ids := make([]string, 0, len(c.pending))
	for id := range c.pending {
		ids = append(ids, id)
	}
	c.mu.Unlock()

	for _, id := range ids {
		if err := c.Flush(id); err != nil {
			log.Printf("Failed to flush document %s on shutdown: %v", id, err)
		}
	}
}

// PendingCount returns how many documents currently have a write
// waiting to fire.
func (c *Controller) PendingCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.pending)
}
