// internal/model/sequence.go
package model

import (
	"encoding/json"
	"time"
)

type Sequence struct {
	ID        string         `db:"id" json:"id"`
	OrgID     string         `db:"org_id" json:"org_id"`
	Name      string         `db:"name" json:"name"`
	SegmentID *string        `db:"segment_id" json:"segment_id,omitempty"`
	Steps     []SequenceStep `json:"steps"`
	CreatedAt time.Time      `db:"created_at" json:"created_at"`
	UpdatedAt time.Time      `db:"updated_at" json:"updated_at"`
}

type SequenceStep struct {
	ID          string          `db:"id" json:"id"`
	Order       int             `db:"step_order" json:"order"`
	DelayHours  int             `db:"delay_hours" json:"delay_hours"`
	ContentJSON json.RawMessage `db:"content_json" json:"content_json"`
}
