// internal/delivery/sender.go
package delivery

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/hearthside/crm-backend/internal/apperrors"
	"github.com/hearthside/crm-backend/internal/model"
	"github.com/hearthside/crm-backend/internal/render"
)

const (
	defaultMaxAttempts = 3
	defaultBackoffBase = 500 * time.Millisecond
)

// Sender runs the attempt/retry loop for a single job. Retries for one
// job are strictly sequential with backoff between attempts; a job is
// never retried concurrently with itself.
type Sender struct {
	Transport Transport
	Metrics   Metrics
	Log       *slog.Logger

	// MaxAttempts caps transient retries; 0 means the default of 3.
	MaxAttempts int
	// BackoffBase is the first retry delay, doubled per attempt; 0
	// means the default of 500ms.
	BackoffBase time.Duration

	// Sleep is swapped out in tests; nil means time.Sleep.
	Sleep func(time.Duration)
}

func (s *Sender) maxAttempts() int {
	if s.MaxAttempts > 0 {
		return s.MaxAttempts
	}
	return defaultMaxAttempts
}

func (s *Sender) backoff(attempt int) time.Duration {
	base := s.BackoffBase
	if base <= 0 {
		base = defaultBackoffBase
	}
	return base << (attempt - 1)
}

func (s *Sender) sleep(d time.Duration) {
	if s.Sleep != nil {
		s.Sleep(d)
		return
	}
	time.Sleep(d)
}

func (s *Sender) logger() *slog.Logger {
	if s.Log != nil {
		return s.Log
	}
	return slog.Default()
}

// Deliver runs a job to its terminal outcome and returns the send
// record. It never returns nil: exhausted retries and permanent
// failures produce a failed record, not a dropped job.
func (s *Sender) Deliver(ctx context.Context, job Job) *model.SendRecord {
	rec := &model.SendRecord{
		CampaignID: job.CampaignID,
		Email:      job.Recipient.Email,
	}

	for attempt := job.Attempt + 1; attempt <= s.maxAttempts(); attempt++ {
		rec.Attempts = attempt

		// The unsubscribe invariant is checked before every attempt,
		// not just the first: variables could differ per retry path and
		// a send without a working unsubscribe link must never happen.
		html, err := s.prepare(job)
		if err != nil {
			rec.Outcome = model.SendOutcomeFailed
			rec.LastError = err.Error()
			s.Metrics.IncFailed()
			s.logger().Error("delivery permanently failed",
				"campaign_id", job.CampaignID, "to", job.Recipient.Email, "error", err)
			return rec
		}

		err = s.Transport.Send(ctx, job.Recipient.Email, job.Subject, html)
		if err == nil {
			rec.Outcome = model.SendOutcomeSent
			s.Metrics.IncSent()
			s.logger().Info("delivered",
				"campaign_id", job.CampaignID, "to", job.Recipient.Email, "attempt", attempt)
			return rec
		}

		rec.LastError = err.Error()
		s.logger().Warn("delivery attempt failed",
			"campaign_id", job.CampaignID, "to", job.Recipient.Email,
			"attempt", attempt, "max_attempts", s.maxAttempts(), "error", err)

		if attempt < s.maxAttempts() {
			s.sleep(s.backoff(attempt))
		}
	}

	rec.Outcome = model.SendOutcomeFailed
	s.Metrics.IncFailed()
	s.logger().Error("delivery exhausted retries",
		"campaign_id", job.CampaignID, "to", job.Recipient.Email, "error", rec.LastError)
	return rec
}

// prepare renders the job and enforces the unsubscribe invariant. Any
// error here is a PermanentDeliveryError; the transport is not tried.
func (s *Sender) prepare(job Job) (string, error) {
	unsubscribe := job.Recipient.Variables["unsubscribe_url"]
	if unsubscribe == "" {
		return "", apperrors.NewPermanentDelivery("missing unsubscribe_url variable")
	}

	html := render.Blocks(job.Blocks)
	html = render.ApplyVariables(html, job.Recipient.Variables)

	if !strings.Contains(html, unsubscribe) {
		return "", apperrors.NewPermanentDelivery("rendered content omits unsubscribe link")
	}
	return html, nil
}
