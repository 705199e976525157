package repository

import (
	"database/sql"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/hearthside/crm-backend/internal/model"
)

// ContactRepositoryInterface defines the contact lookups the resolver needs
type ContactRepositoryInterface interface {
	GetByIDs(ids []string) ([]model.Contact, error)
	ListByOrg(orgID string) ([]model.Contact, error)
	Create(c *model.Contact) error
}

type ContactRepository struct {
	DB *sql.DB
}

func (r *ContactRepository) GetByIDs(ids []string) ([]model.Contact, error) {
	if len(ids) == 0 {
		return []model.Contact{}, nil
	}
	query := `SELECT id, org_id, email, first_name, last_name FROM contacts WHERE id = ANY($1)`
	rows, err := r.DB.Query(query, pq.Array(ids))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanContacts(rows)
}

func (r *ContactRepository) ListByOrg(orgID string) ([]model.Contact, error) {
	query := `SELECT id, org_id, email, first_name, last_name FROM contacts WHERE org_id=$1`
	rows, err := r.DB.Query(query, orgID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanContacts(rows)
}

func (r *ContactRepository) Create(c *model.Contact) error {
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	_, err := r.DB.Exec(
		`INSERT INTO contacts (id, org_id, email, first_name, last_name) VALUES ($1, $2, $3, $4, $5)`,
		c.ID, c.OrgID, c.Email, c.FirstName, c.LastName,
	)
	return err
}

func scanContacts(rows *sql.Rows) ([]model.Contact, error) {
	contacts := []model.Contact{}
	for rows.Next() {
		var c model.Contact
		if err := rows.Scan(&c.ID, &c.OrgID, &c.Email, &c.FirstName, &c.LastName); err != nil {
			return nil, err
		}
		contacts = append(contacts, c)
	}
	return contacts, rows.Err()
}

var _ ContactRepositoryInterface = (*ContactRepository)(nil)
