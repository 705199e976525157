// internal/model/segment.go
package model

import (
	"encoding/json"
	"time"
)

type Segment struct {
	ID      string          `db:"id" json:"id"`
	OrgID   string          `db:"org_id" json:"org_id"`
	Name    string          `db:"name" json:"name"`
	DSLJSON json.RawMessage `db:"dsl_json" json:"dsl_json,omitempty"`
	Members []string        `db:"members" json:"members"`

	// Excluded holds contacts explicitly removed from the segment.
	// Rule evaluation never re-adds them; only a fresh manual add does.
	Excluded  []string  `db:"excluded" json:"excluded,omitempty"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

// SegmentRule is one clause of a segment's filter DSL. The DSL is
// advisory: explicit member adds/removes always win for a given contact.
type SegmentRule struct {
	Field string `json:"field"`
	Op    string `json:"op"` // eq, neq, contains
	Value string `json:"value"`
}
