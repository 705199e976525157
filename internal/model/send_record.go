// internal/model/send_record.go
package model

import "time"

// Send outcomes recorded against the send log. Only terminal outcomes
// are persisted; in-flight jobs live in the queue.
const (
	SendOutcomeSent   = "sent"
	SendOutcomeFailed = "failed"
)

type SendRecord struct {
	ID         int       `db:"id" json:"id"`
	CampaignID string    `db:"campaign_id" json:"campaign_id"`
	Email      string    `db:"email" json:"email"`
	Outcome    string    `db:"outcome" json:"outcome"`
	Attempts   int       `db:"attempts" json:"attempts"`
	LastError  string    `db:"last_error,omitempty" json:"last_error,omitempty"`
	CreatedAt  time.Time `db:"created_at" json:"created_at"`
}
