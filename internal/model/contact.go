// internal/model/contact.go
package model

type Contact struct {
	ID        string `db:"id" json:"id"`
	OrgID     string `db:"org_id" json:"org_id"`
	Email     string `db:"email" json:"email"`
	FirstName string `db:"first_name" json:"first_name"`
	LastName  string `db:"last_name" json:"last_name"`
}

// Recipient is a contact resolved for delivery: an address plus the
// variable map handed to the renderer. Variables always include
// unsubscribe_url; delivery refuses the job otherwise.
type Recipient struct {
	ContactID string            `json:"contact_id"`
	Email     string            `json:"email"`
	Variables map[string]string `json:"variables"`
}
