// internal/delivery/queue.go
package delivery

import (
	"context"
	"log/slog"
	"sync"

	"github.com/hearthside/crm-backend/internal/repository"
)

const (
	defaultWorkers = 4
	queueDepth     = 1024
)

// Queue is the in-process delivery queue: a fixed worker pool draining a
// job channel. Fan-out across recipients is concurrent and bounded;
// retries for one job stay inside one worker.
type Queue struct {
	Sender  *Sender
	SendLog repository.SendLogRepositoryInterface

	// OnComplete fires once per campaign, when its last outstanding job
	// reaches a terminal outcome.
	OnComplete func(campaignID string)

	Workers int
	Log     *slog.Logger

	jobs     chan Job
	mu       sync.Mutex
	pending  map[string]int
	declared map[string]bool
	wg       sync.WaitGroup
	once     sync.Once
}

func NewQueue(sender *Sender, sendLog repository.SendLogRepositoryInterface, workers int) *Queue {
	if workers <= 0 {
		workers = defaultWorkers
	}
	return &Queue{
		Sender:   sender,
		SendLog:  sendLog,
		Workers:  workers,
		jobs:     make(chan Job, queueDepth),
		pending:  make(map[string]int),
		declared: make(map[string]bool),
	}
}

func (q *Queue) logger() *slog.Logger {
	if q.Log != nil {
		return q.Log
	}
	return slog.Default()
}

// Start launches the worker pool. Safe to call once.
func (q *Queue) Start(ctx context.Context) {
	q.once.Do(func() {
		for i := 0; i < q.Workers; i++ {
			q.wg.Add(1)
			go q.worker(ctx)
		}
	})
}

// Stop closes intake and waits for in-flight jobs. Jobs already
// enqueued run to their terminal outcome; there is no mid-flight
// cancellation of a send.
func (q *Queue) Stop() {
	close(q.jobs)
	q.wg.Wait()
}

// Enqueue accepts a fully resolved job. The first job of a campaign
// declares the whole fan-out size up front from its Expected count, so
// workers draining early jobs cannot drive the counter to zero while
// later recipients are still being enqueued and complete the campaign
// mid-fan-out. Jobs without an Expected count fall back to counting one
// by one.
func (q *Queue) Enqueue(job Job) error {
	q.mu.Lock()
	switch {
	case q.declared[job.CampaignID]:
		// remainder of a declared fan-out, already counted
	case job.Expected > 0:
		q.pending[job.CampaignID] += job.Expected
		q.declared[job.CampaignID] = true
	default:
		q.pending[job.CampaignID]++
	}
	q.mu.Unlock()

	q.Sender.Metrics.IncEnqueued()
	q.jobs <- job
	return nil
}

// Pending reports outstanding jobs for a campaign.
func (q *Queue) Pending(campaignID string) int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.pending[campaignID]
}

func (q *Queue) worker(ctx context.Context) {
	defer q.wg.Done()
	for job := range q.jobs {
		rec := q.Sender.Deliver(ctx, job)
		if err := q.SendLog.Record(rec); err != nil {
			q.logger().Error("failed to record send outcome", "campaign_id", job.CampaignID, "error", err)
		}
		q.resolve(job.CampaignID)
	}
}

func (q *Queue) resolve(campaignID string) {
	q.mu.Lock()
	q.pending[campaignID]--
	done := q.pending[campaignID] == 0
	if done {
		delete(q.pending, campaignID)
		delete(q.declared, campaignID)
	}
	q.mu.Unlock()

	if done && q.OnComplete != nil {
		q.OnComplete(campaignID)
	}
}

var _ Enqueuer = (*Queue)(nil)
