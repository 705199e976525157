// internal/draft/debounce.go
package draft

import (
	"context"
	"encoding/json"
	"sync"
	"time"
)

// Debouncer coalesces a burst of edits into a single trailing store
// write. Each Edit cancels the pending timer and restarts the quiet
// period; the write fires only after QuietPeriod without edits. Close
// flushes any pending write, so an editor going away never loses its
// last state and never leaks a timer.
type Debouncer struct {
	Store       Store
	OrgID       string
	Key         string
	QuietPeriod time.Duration

	// OnSave observes each completed write; optional.
	OnSave func(*Entry, error)

	mu      sync.Mutex
	timer   *time.Timer
	pending json.RawMessage
	closed  bool
}

const defaultQuietPeriod = time.Second

func (d *Debouncer) quiet() time.Duration {
	if d.QuietPeriod > 0 {
		return d.QuietPeriod
	}
	return defaultQuietPeriod
}

// Edit records new local state and restarts the quiet-period timer.
func (d *Debouncer) Edit(data json.RawMessage) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return
	}
	d.pending = data
	if d.timer != nil {
		d.timer.Stop()
	}
	d.timer = time.AfterFunc(d.quiet(), d.flushTimer)
}

func (d *Debouncer) flushTimer() {
	d.mu.Lock()
	data := d.pending
	d.pending = nil
	d.timer = nil
	closed := d.closed
	d.mu.Unlock()
	if closed || data == nil {
		return
	}
	d.save(data)
}

// Flush writes any pending state immediately.
func (d *Debouncer) Flush() {
	d.mu.Lock()
	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
	data := d.pending
	d.pending = nil
	d.mu.Unlock()
	if data != nil {
		d.save(data)
	}
}

// Close flushes pending state and stops the debouncer for good. No
// write can fire after Close returns.
func (d *Debouncer) Close() {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return
	}
	d.closed = true
	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
	data := d.pending
	d.pending = nil
	d.mu.Unlock()
	if data != nil {
		d.save(data)
	}
}

func (d *Debouncer) save(data json.RawMessage) {
	entry, err := d.Store.Save(context.Background(), d.OrgID, d.Key, data)
	if d.OnSave != nil {
		d.OnSave(entry, err)
	}
}
