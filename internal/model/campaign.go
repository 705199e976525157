// internal/model/campaign.go
package model

import (
	"encoding/json"
	"time"
)

// Campaign statuses. A campaign starts in draft and only ever moves
// forward: draft -> scheduled -> sending -> sent. "sent" is terminal.
const (
	StatusDraft     = "draft"
	StatusScheduled = "scheduled"
	StatusSending   = "sending"
	StatusSent      = "sent"
)

type Campaign struct {
	ID          string          `db:"id" json:"id"`
	OrgID       string          `db:"org_id" json:"org_id"`
	Name        string          `db:"name" json:"name"`
	ContentJSON json.RawMessage `db:"content_json" json:"content_json"`
	SegmentID   *string         `db:"segment_id" json:"segment_id,omitempty"`
	SendAt      *time.Time      `db:"send_at" json:"send_at,omitempty"`
	Status      string          `db:"status" json:"status"`
	CreatedAt   time.Time       `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time       `db:"updated_at" json:"updated_at"`
}

// Editable reports whether campaign fields may still be mutated.
// Everything past draft is owned by the delivery pipeline.
func (c *Campaign) Editable() bool {
	return c.Status == StatusDraft
}
