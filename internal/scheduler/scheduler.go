// internal/scheduler/scheduler.go
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/hearthside/crm-backend/internal/delivery"
	"github.com/hearthside/crm-backend/internal/lifecycle"
	"github.com/hearthside/crm-backend/internal/model"
	"github.com/hearthside/crm-backend/internal/render"
	"github.com/hearthside/crm-backend/internal/repository"
	"github.com/hearthside/crm-backend/internal/segment"
)

// Dispatcher fans a campaign out into per-recipient delivery jobs.
type Dispatcher struct {
	Resolver *segment.Resolver
	Machine  *lifecycle.Machine
	Enqueuer delivery.Enqueuer
	Log      *slog.Logger
}

func (d *Dispatcher) logger() *slog.Logger {
	if d.Log != nil {
		return d.Log
	}
	return slog.Default()
}

// Dispatch resolves the campaign's audience and enqueues one job per
// recipient, returning the number enqueued. A campaign with no audience
// has nothing outstanding and completes on the spot, so it can never
// sit in sending forever.
func (d *Dispatcher) Dispatch(c *model.Campaign) (int, error) {
	blocks, err := render.ParseBlocks(c.ContentJSON)
	if err != nil {
		return 0, err
	}

	var recipients []model.Recipient
	if c.SegmentID != nil {
		recipients, err = d.Resolver.Resolve(c.OrgID, *c.SegmentID)
		if err != nil {
			return 0, err
		}
	}

	if len(recipients) == 0 {
		if _, err := d.Machine.Complete(c.ID); err != nil {
			return 0, err
		}
		return 0, nil
	}

	// Every job carries the full fan-out size, so a partial fan-out is
	// unrecoverable: the workers would wait for jobs that never shipped
	// and the campaign would sit in sending forever. Abort on the first
	// enqueue failure and let the caller complete the campaign.
	enqueued := 0
	for _, r := range recipients {
		job := delivery.Job{
			CampaignID: c.ID,
			Subject:    c.Name,
			Recipient:  r,
			Blocks:     blocks,
			Expected:   len(recipients),
		}
		if err := d.Enqueuer.Enqueue(job); err != nil {
			d.logger().Error("failed to enqueue job, aborting fan-out",
				"campaign_id", c.ID, "to", r.Email, "enqueued", enqueued, "error", err)
			return enqueued, fmt.Errorf("enqueue for campaign %s: %w", c.ID, err)
		}
		enqueued++
	}
	return enqueued, nil
}

// Scheduler periodically activates due campaigns. It is safe to invoke
// concurrently with itself: the activation step is a conditional update,
// so overlapping runs racing on one campaign dispatch it exactly once.
type Scheduler struct {
	CampaignRepo repository.CampaignRepositoryInterface
	Machine      *lifecycle.Machine
	Dispatcher   *Dispatcher
	Log          *slog.Logger

	// Now is the injected clock; nil means time.Now.
	Now func() time.Time
	// Interval drives the background loop; 0 means 30s.
	Interval time.Duration

	mu      sync.Mutex
	running bool
	stop    chan struct{}
	wg      sync.WaitGroup
}

func (s *Scheduler) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

func (s *Scheduler) logger() *slog.Logger {
	if s.Log != nil {
		return s.Log
	}
	return slog.Default()
}

// RunOnce performs a single scheduling pass and returns how many
// campaigns this run activated. Campaigns another run won are skipped,
// not errors.
func (s *Scheduler) RunOnce(ctx context.Context) (int, error) {
	due, err := s.CampaignRepo.ListDue(s.now())
	if err != nil {
		return 0, err
	}

	activated := 0
	for _, c := range due {
		if err := ctx.Err(); err != nil {
			return activated, err
		}

		won, err := s.Machine.Activate(c.ID)
		if err != nil {
			s.logger().Error("activation failed", "campaign_id", c.ID, "error", err)
			continue
		}
		if !won {
			// a concurrent run owns this campaign
			continue
		}
		activated++

		n, err := s.Dispatcher.Dispatch(c)
		if err != nil {
			// The campaign is ours and must not stay stuck in sending;
			// an unresolvable audience resolves it with zero sends.
			s.logger().Error("dispatch failed, completing with no sends",
				"campaign_id", c.ID, "error", err)
			if _, cerr := s.Machine.Complete(c.ID); cerr != nil {
				s.logger().Error("failed to complete campaign", "campaign_id", c.ID, "error", cerr)
			}
			continue
		}
		s.logger().Info("campaign activated", "campaign_id", c.ID, "jobs", n)
	}
	return activated, nil
}

// Start begins the background polling loop.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return
	}
	s.running = true
	s.stop = make(chan struct{})
	s.mu.Unlock()

	interval := s.Interval
	if interval <= 0 {
		interval = 30 * time.Second
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-s.stop:
				return
			case <-ctx.Done():
				return
			case <-ticker.C:
				if _, err := s.RunOnce(ctx); err != nil {
					s.logger().Error("scheduler pass failed", "error", err)
				}
			}
		}
	}()
}

// Stop halts the background loop and waits for the current pass.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	close(s.stop)
	s.mu.Unlock()
	s.wg.Wait()
}
