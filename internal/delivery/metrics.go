// internal/delivery/metrics.go
package delivery

import "sync/atomic"

// Metrics is the delivery pipeline's counter surface.
type Metrics interface {
	IncEnqueued()
	IncSent()
	IncFailed()
}

// Counters is the in-process Metrics implementation.
type Counters struct {
	enqueued atomic.Int64
	sent     atomic.Int64
	failed   atomic.Int64
}

func NewCounters() *Counters { return &Counters{} }

func (c *Counters) IncEnqueued() { c.enqueued.Add(1) }
func (c *Counters) IncSent()     { c.sent.Add(1) }
func (c *Counters) IncFailed()   { c.failed.Add(1) }

func (c *Counters) Snapshot() map[string]int64 {
	return map[string]int64{
		"enqueued": c.enqueued.Load(),
		"sent":     c.sent.Load(),
		"failed":   c.failed.Load(),
	}
}
