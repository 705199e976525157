// internal/delivery/job.go
package delivery

import "github.com/hearthside/crm-backend/internal/model"

// Job is one recipient-scoped delivery unit. Jobs are ephemeral: they
// live in the queue (or on the wire, for the AMQP driver) and only their
// terminal outcome is persisted to the send log.
type Job struct {
	CampaignID string               `json:"campaign_id"`
	Subject    string               `json:"subject"`
	Recipient  model.Recipient      `json:"recipient"`
	Blocks     []model.ContentBlock `json:"blocks"`

	// Expected is the total number of jobs dispatched for the campaign
	// in this fan-out. The AMQP worker uses it to re-derive completion
	// from the send log; the in-process queue tracks a live counter
	// instead and ignores it.
	Expected int `json:"expected,omitempty"`

	Attempt   int    `json:"attempt"`
	LastError string `json:"last_error,omitempty"`
}

// Enqueuer is what the scheduler hands jobs to. The in-process Queue and
// the AMQP publisher both satisfy it.
type Enqueuer interface {
	Enqueue(job Job) error
}
